// Package auth verifies signed transactions and applies per-account write
// policies.
//
// A transaction is signed with ed25519 over ir.SigningMessage: the
// signature domain, a null byte and the canonical JSON of the transaction.
// Signers are identified by the lowercase hex encoding of their public key.
package auth

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/roach88/ledgerbox/internal/ir"
)

var (
	// ErrBadSignature is returned when a signature does not verify against
	// the claimed signer and transaction.
	ErrBadSignature = errors.New("bad signature")

	// ErrUnauthorized is returned when a valid signer may not write to an
	// account under its policy.
	ErrUnauthorized = errors.New("unauthorized")
)

// SignedTx is a transaction together with its signer and signature.
type SignedTx struct {
	Tx        ir.Tx  `json:"tx"`
	Signer    string `json:"signer"`
	Signature string `json:"signature"`
}

// Sign signs tx with key. Strings in tx must be NFC-normalized UTF-8.
func Sign(tx ir.Tx, key ed25519.PrivateKey) (SignedTx, error) {
	msg, err := ir.SigningMessage(tx)
	if err != nil {
		return SignedTx{}, err
	}
	return SignedTx{
		Tx:        tx,
		Signer:    PublicKeyHex(key),
		Signature: hex.EncodeToString(ed25519.Sign(key, msg)),
	}, nil
}

// Verify checks that stx.Signature is the signer's signature over stx.Tx.
func Verify(stx SignedTx) error {
	pub, err := hex.DecodeString(stx.Signer)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("signer %q is not a hex ed25519 public key: %w", stx.Signer, ErrBadSignature)
	}
	sig, err := hex.DecodeString(stx.Signature)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return fmt.Errorf("malformed signature: %w", ErrBadSignature)
	}
	msg, err := ir.SigningMessage(stx.Tx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBadSignature, err)
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), msg, sig) {
		return ErrBadSignature
	}
	return nil
}

// KeyFromSeed builds a private key from a hex-encoded 32-byte seed.
func KeyFromSeed(hexSeed string) (ed25519.PrivateKey, error) {
	seed, err := hex.DecodeString(hexSeed)
	if err != nil {
		return nil, fmt.Errorf("decode seed: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed is %d bytes, want %d", len(seed), ed25519.SeedSize)
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

// PublicKeyHex returns the signer identity of key.
func PublicKeyHex(key ed25519.PrivateKey) string {
	return hex.EncodeToString(key.Public().(ed25519.PublicKey))
}
