package auth

import "fmt"

// Policy decides which signers may write to an account.
type Policy string

const (
	// PolicyOwner admits only the account authority.
	PolicyOwner Policy = "owner"

	// PolicyOpen admits any signer with a valid signature.
	PolicyOpen Policy = "open"
)

// ParsePolicy parses a policy name. The empty string means PolicyOwner.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyOwner:
		return PolicyOwner, nil
	case PolicyOpen:
		return PolicyOpen, nil
	default:
		return "", fmt.Errorf("unknown policy %q (want owner or open)", s)
	}
}

// Authorize reports whether signer may write to an account owned by
// authority.
func (p Policy) Authorize(authority, signer string) error {
	switch p {
	case PolicyOpen:
		return nil
	case PolicyOwner:
		if signer == authority {
			return nil
		}
		return fmt.Errorf("signer %s is not the account authority: %w", short(signer), ErrUnauthorized)
	default:
		return fmt.Errorf("unknown policy %q: %w", p, ErrUnauthorized)
	}
}

func short(key string) string {
	if len(key) > 12 {
		return key[:12] + "..."
	}
	return key
}
