package bounded

import (
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/ledgerbox/internal/layout"
)

// KeyedLayout declares the layout of a keyed store: a u32 record count as
// the only bookkeeping field.
func KeyedLayout(name, counter string, capacity int, record layout.Record) layout.Store {
	return layout.Store{
		Name:        name,
		Bookkeeping: []layout.Field{layout.U32(counter)},
		Capacity:    capacity,
		Record:      record,
	}
}

// KeyedSchema binds a record type to a keyed layout.
type KeyedSchema[R any] struct {
	Layout layout.Store
	Codec  Codec[R]

	// Key returns the lookup key of a record.
	Key func(R) string

	// Validate checks domain rules before any search or mutation. Optional.
	// Errors that are not *Error are reported as INVALID_VALUE.
	Validate func(R) error
}

// Keyed is a bounded upsert map held as an insertion-ordered sequence.
// It never holds two records with the same key.
type Keyed[R any] struct {
	schema  *KeyedSchema[R]
	records []R
}

// NewKeyed returns an empty keyed store.
func NewKeyed[R any](schema *KeyedSchema[R]) *Keyed[R] {
	return &Keyed[R]{
		schema:  schema,
		records: make([]R, 0, schema.Layout.Capacity),
	}
}

// Put stores r. If its key is already present the existing record is
// replaced in place and replaced is true; otherwise r is appended, which
// fails with CAPACITY_EXCEEDED when the store is full.
func (k *Keyed[R]) Put(r R) (stored R, replaced bool, err error) {
	var zero R
	s := k.schema.Layout

	if k.schema.Validate != nil {
		if err := k.schema.Validate(r); err != nil {
			var be *Error
			if errors.As(err, &be) {
				return zero, false, err
			}
			return zero, false, &Error{Code: CodeInvalidValue, Message: err.Error(), Store: s.Name}
		}
	}
	if err := checkFits(s, k.schema.Codec, r); err != nil {
		return zero, false, err
	}

	key := k.schema.Key(r)
	if i := k.index(key); i >= 0 {
		k.records[i] = r
		return r, true, nil
	}
	if len(k.records) >= s.Capacity {
		return zero, false, NewCapacityExceeded(s.Name, s.Capacity)
	}
	k.records = append(k.records, r)
	return r, false, nil
}

// Lookup returns the record stored under key.
func (k *Keyed[R]) Lookup(key string) (R, error) {
	if i := k.index(key); i >= 0 {
		return k.records[i], nil
	}
	var zero R
	return zero, NewNotFound(k.schema.Layout.Name, key)
}

func (k *Keyed[R]) index(key string) int {
	return slices.IndexFunc(k.records, func(r R) bool {
		return k.schema.Key(r) == key
	})
}

// Len returns the number of stored records.
func (k *Keyed[R]) Len() int { return len(k.records) }

// Cap returns the store capacity.
func (k *Keyed[R]) Cap() int { return k.schema.Layout.Capacity }

// Records returns a copy of the records in insertion order.
func (k *Keyed[R]) Records() []R { return slices.Clone(k.records) }

// Layout returns the store layout.
func (k *Keyed[R]) Layout() layout.Store { return k.schema.Layout }

// EncodeTo serializes the store into buf, which must be exactly
// Layout().Size() bytes.
func (k *Keyed[R]) EncodeTo(buf []byte) error {
	return encodeStore(k.schema.Layout, k.schema.Codec, buf, k.records, func(w *layout.Writer) error {
		return w.U32(uint32(len(k.records)))
	})
}

// Encode serializes the store into a newly allocated buffer.
func (k *Keyed[R]) Encode() ([]byte, error) {
	buf := make([]byte, k.schema.Layout.Size())
	if err := k.EncodeTo(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// DecodeKeyed restores a keyed store from a buffer written by EncodeTo.
func DecodeKeyed[R any](schema *KeyedSchema[R], buf []byte) (*Keyed[R], error) {
	var count uint32
	records, err := decodeStore(schema.Layout, schema.Codec, buf, func(rd *layout.Reader) error {
		v, err := rd.U32()
		count = v
		return err
	})
	if err != nil {
		return nil, err
	}
	if int(count) != len(records) {
		return nil, fmt.Errorf("store %q: counter %d disagrees with %d records: %w", schema.Layout.Name, count, len(records), layout.ErrCorrupt)
	}

	k := NewKeyed(schema)
	seen := make(map[string]bool, len(records))
	for _, r := range records {
		key := schema.Key(r)
		if seen[key] {
			return nil, fmt.Errorf("store %q: duplicate key %q: %w", schema.Layout.Name, key, layout.ErrCorrupt)
		}
		seen[key] = true
		k.records = append(k.records, r)
	}
	return k, nil
}
