package ir

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTx() Tx {
	return Tx{
		Program: "posts",
		Account: "acct-1",
		Action:  "create_post",
		Args:    Object{"content": String("hello"), "world_id": String("w")},
		Nonce:   1,
	}
}

func TestTxID_Deterministic(t *testing.T) {
	id1, err := TxID(sampleTx(), "signer", 1)
	require.NoError(t, err)
	id2, err := TxID(sampleTx(), "signer", 1)
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	assert.Len(t, id1, 64, "SHA-256 hex is 64 characters")
}

func TestTxID_ChangesWithInput(t *testing.T) {
	base := MustTxID(sampleTx(), "signer", 1)

	other := sampleTx()
	other.Nonce = 2
	assert.NotEqual(t, base, MustTxID(other, "signer", 1), "nonce")
	assert.NotEqual(t, base, MustTxID(sampleTx(), "other", 1), "signer")
	assert.NotEqual(t, base, MustTxID(sampleTx(), "signer", 2), "seq")

	other = sampleTx()
	other.Args = Object{"content": String("bye"), "world_id": String("w")}
	assert.NotEqual(t, base, MustTxID(other, "signer", 1), "args")
}

func TestTxID_NilArgsEqualsEmptyArgs(t *testing.T) {
	a := sampleTx()
	a.Args = nil
	b := sampleTx()
	b.Args = Object{}
	assert.Equal(t, MustTxID(a, "s", 1), MustTxID(b, "s", 1))
}

func TestSigningMessage_RequiresNormalizedStrings(t *testing.T) {
	_, err := SigningMessage(sampleTx())
	require.NoError(t, err)

	tx := sampleTx()
	tx.Args = Object{"content": String("cafe\u0301"), "world_id": String("w")}
	_, err = SigningMessage(tx)
	assert.ErrorIs(t, err, ErrNotNormalized)

	tx = sampleTx()
	tx.Account = "acct\xff"
	_, err = SigningMessage(tx)
	assert.ErrorIs(t, err, ErrNotNormalized)
}

func TestEventID(t *testing.T) {
	payload := Object{"post_id": Int(1)}
	id1, err := EventID("tx", "PostCreated", payload, 3)
	require.NoError(t, err)
	id2, err := EventID("tx", "PostCreated", payload, 3)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	id3, err := EventID("tx", "ImageAdded", payload, 3)
	require.NoError(t, err)
	assert.NotEqual(t, id1, id3)

	_, err = EventID("tx", "PostCreated", nil, 3)
	require.NoError(t, err)
}

func TestDomainSeparation(t *testing.T) {
	data := []byte(`{}`)
	assert.NotEqual(t, hashWithDomain(DomainTx, data), hashWithDomain(DomainEvent, data))
	// The null separator keeps "ab"+"c" distinct from "a"+"bc".
	assert.NotEqual(t, hashWithDomain("ab", []byte("c")), hashWithDomain("a", []byte("bc")))
}

func TestSigningMessage(t *testing.T) {
	msg, err := SigningMessage(sampleTx())
	require.NoError(t, err)

	assert.True(t, bytes.HasPrefix(msg, []byte(DomainSignature+"\x00")))
	canonical, err := MarshalCanonical(sampleTx().Object())
	require.NoError(t, err)
	assert.True(t, bytes.HasSuffix(msg, canonical))
}

func TestMustTxIDPanics(t *testing.T) {
	tx := sampleTx()
	tx.Args = Object{"bad": nil}
	assert.Panics(t, func() { MustTxID(tx, "s", 1) })
}
