package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// The version suffix leaves room for algorithm migration.
const (
	DomainTx        = "ledgerbox/tx/v1"
	DomainEvent     = "ledgerbox/event/v1"
	DomainSignature = "ledgerbox/signature/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator removes any ambiguity at the domain/data boundary.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// SigningMessage returns the bytes a signer signs for tx: the signature
// domain, a null separator and the canonical JSON of the transaction.
// Strings must already be NFC UTF-8 (see CheckNormalized), so the signed
// bytes are the bytes a program stores.
func SigningMessage(tx Tx) ([]byte, error) {
	obj := tx.Object()
	if err := CheckNormalized(obj); err != nil {
		return nil, fmt.Errorf("signing message: %w", err)
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return nil, fmt.Errorf("signing message: %w", err)
	}
	msg := make([]byte, 0, len(DomainSignature)+1+len(canonical))
	msg = append(msg, DomainSignature...)
	msg = append(msg, 0x00)
	msg = append(msg, canonical...)
	return msg, nil
}

// TxID computes the content-addressed identifier of a transaction as
// submitted by signer at logical time seq.
func TxID(tx Tx, signer string, seq int64) (string, error) {
	obj := Object{
		"tx":     tx.Object(),
		"signer": String(signer),
		"seq":    Int(seq),
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("TxID: %w", err)
	}
	return hashWithDomain(DomainTx, canonical), nil
}

// EventID computes the content-addressed identifier of an event emitted by
// transaction txID.
func EventID(txID, name string, payload Object, seq int64) (string, error) {
	obj := Object{
		"tx_id":   String(txID),
		"name":    String(name),
		"payload": payload,
		"seq":     Int(seq),
	}
	if payload == nil {
		obj["payload"] = Object{}
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("EventID: %w", err)
	}
	return hashWithDomain(DomainEvent, canonical), nil
}

// MustTxID is like TxID but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustTxID(tx Tx, signer string, seq int64) string {
	id, err := TxID(tx, signer, seq)
	if err != nil {
		panic(err)
	}
	return id
}
