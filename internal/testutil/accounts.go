package testutil

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/roach88/ledgerbox/internal/auth"
	"github.com/roach88/ledgerbox/internal/ir"
)

// SequentialAddresses generates "<prefix>-1", "<prefix>-2", ... so that
// scenario runs produce byte-identical logs.
//
// Thread-safety: safe for concurrent use via internal mutex.
type SequentialAddresses struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialAddresses creates a generator. An empty prefix means "acct".
func NewSequentialAddresses(prefix string) *SequentialAddresses {
	if prefix == "" {
		prefix = "acct"
	}
	return &SequentialAddresses{prefix: prefix}
}

// Generate returns the next address. Satisfies engine.AddressGenerator.
func (g *SequentialAddresses) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}

// Seed returns the hex seed of the named test signer. The seed is
// sha256("ledgerbox-test-signer:" + name), so a name always maps to the same
// key.
func Seed(name string) string {
	sum := sha256.Sum256([]byte("ledgerbox-test-signer:" + name))
	return hex.EncodeToString(sum[:])
}

// Key returns the private key of the named test signer.
func Key(name string) ed25519.PrivateKey {
	sum := sha256.Sum256([]byte("ledgerbox-test-signer:" + name))
	return ed25519.NewKeyFromSeed(sum[:])
}

// Signer returns the public identity of the named test signer.
func Signer(name string) string {
	return auth.PublicKeyHex(Key(name))
}

var nonces atomic.Int64

// MustSign signs tx as the named test signer, failing the test on error.
// A zero nonce is replaced with a fresh one, so two calls never sign the
// same transaction unless the caller pins the nonce.
func MustSign(t testing.TB, tx ir.Tx, name string) auth.SignedTx {
	t.Helper()
	if tx.Nonce == 0 {
		tx.Nonce = nonces.Add(1)
	}
	stx, err := auth.Sign(tx, Key(name))
	if err != nil {
		t.Fatalf("sign %s as %s: %v", tx.Action, name, err)
	}
	return stx
}
