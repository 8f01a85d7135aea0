package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ledgerbox/internal/auth"
	"github.com/roach88/ledgerbox/internal/ir"
)

func TestSequentialAddresses(t *testing.T) {
	g := NewSequentialAddresses("")
	assert.Equal(t, "acct-1", g.Generate())
	assert.Equal(t, "acct-2", g.Generate())

	p := NewSequentialAddresses("img")
	assert.Equal(t, "img-1", p.Generate())
}

func TestKeysAreStable(t *testing.T) {
	assert.Equal(t, Signer("alice"), Signer("alice"))
	assert.NotEqual(t, Signer("alice"), Signer("bob"))
	assert.Len(t, Seed("alice"), 64)

	key, err := auth.KeyFromSeed(Seed("alice"))
	require.NoError(t, err)
	assert.Equal(t, Signer("alice"), auth.PublicKeyHex(key))
}

func TestMustSign(t *testing.T) {
	tx := ir.Tx{Program: "deepfake", Account: "a", Action: "store_image", Args: ir.Object{}}
	stx := MustSign(t, tx, "alice")
	assert.Equal(t, Signer("alice"), stx.Signer)
	require.NoError(t, auth.Verify(stx))

	again := MustSign(t, tx, "alice")
	assert.NotZero(t, stx.Tx.Nonce)
	assert.NotEqual(t, stx.Tx.Nonce, again.Tx.Nonce)

	tx.Nonce = 42
	assert.Equal(t, int64(42), MustSign(t, tx, "alice").Tx.Nonce)
}
