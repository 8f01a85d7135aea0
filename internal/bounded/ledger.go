package bounded

import (
	"fmt"
	"slices"

	"github.com/roach88/ledgerbox/internal/layout"
)

// LedgerLayout declares the layout of a ledger store: a u64 next-identifier
// counter as the only bookkeeping field.
func LedgerLayout(name, counter string, capacity int, record layout.Record) layout.Store {
	return layout.Store{
		Name:        name,
		Bookkeeping: []layout.Field{layout.U64(counter)},
		Capacity:    capacity,
		Record:      record,
	}
}

// LedgerSchema binds a record type to a ledger layout.
type LedgerSchema[R any] struct {
	Layout layout.Store
	Codec  Codec[R]

	// ID returns the identifier stored in a record.
	ID func(R) uint64

	// WithID returns r carrying identifier id.
	WithID func(r R, id uint64) R
}

// Ledger is an append-only bounded sequence with monotonic identifiers.
//
// The counter lives next to the sequence and is independent of it: it only
// advances on a successful Append, and records are never removed.
type Ledger[R any] struct {
	schema  *LedgerSchema[R]
	nextID  uint64
	records []R
}

// NewLedger returns an empty ledger whose first identifier is 1.
func NewLedger[R any](schema *LedgerSchema[R]) *Ledger[R] {
	return &Ledger[R]{
		schema:  schema,
		nextID:  1,
		records: make([]R, 0, schema.Layout.Capacity),
	}
}

// Append assigns the next identifier to r and stores it.
//
// Width checks run first, then the capacity check; on any failure nothing
// changes and the identifier is not consumed.
func (l *Ledger[R]) Append(r R) (R, error) {
	var zero R
	s := l.schema.Layout

	r = l.schema.WithID(r, l.nextID)
	if err := checkFits(s, l.schema.Codec, r); err != nil {
		return zero, err
	}
	if len(l.records) >= s.Capacity {
		return zero, NewCapacityExceeded(s.Name, s.Capacity)
	}

	l.records = append(l.records, r)
	l.nextID++
	return r, nil
}

// Get returns the record with the given identifier.
func (l *Ledger[R]) Get(id uint64) (R, error) {
	for _, r := range l.records {
		if l.schema.ID(r) == id {
			return r, nil
		}
	}
	var zero R
	return zero, NewNotFound(l.schema.Layout.Name, fmt.Sprintf("%d", id))
}

// Recent returns up to limit records, most recently appended first.
// A limit of zero or less yields an empty slice.
func (l *Ledger[R]) Recent(limit int) []R {
	if limit <= 0 {
		return []R{}
	}
	n := min(limit, len(l.records))
	out := make([]R, 0, n)
	for i := len(l.records) - 1; i >= len(l.records)-n; i-- {
		out = append(out, l.records[i])
	}
	return out
}

// Len returns the number of stored records.
func (l *Ledger[R]) Len() int { return len(l.records) }

// Cap returns the store capacity.
func (l *Ledger[R]) Cap() int { return l.schema.Layout.Capacity }

// NextID returns the identifier the next successful Append will assign.
func (l *Ledger[R]) NextID() uint64 { return l.nextID }

// Records returns a copy of the records in insertion order.
func (l *Ledger[R]) Records() []R { return slices.Clone(l.records) }

// Layout returns the store layout.
func (l *Ledger[R]) Layout() layout.Store { return l.schema.Layout }

// EncodeTo serializes the ledger into buf, which must be exactly
// Layout().Size() bytes.
func (l *Ledger[R]) EncodeTo(buf []byte) error {
	return encodeStore(l.schema.Layout, l.schema.Codec, buf, l.records, func(w *layout.Writer) error {
		return w.U64(l.nextID)
	})
}

// Encode serializes the ledger into a newly allocated buffer.
func (l *Ledger[R]) Encode() ([]byte, error) {
	buf := make([]byte, l.schema.Layout.Size())
	if err := l.EncodeTo(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// DecodeLedger restores a ledger from a buffer written by EncodeTo.
// Identifiers must be strictly increasing, non-zero and below the counter.
func DecodeLedger[R any](schema *LedgerSchema[R], buf []byte) (*Ledger[R], error) {
	var nextID uint64
	records, err := decodeStore(schema.Layout, schema.Codec, buf, func(rd *layout.Reader) error {
		v, err := rd.U64()
		nextID = v
		return err
	})
	if err != nil {
		return nil, err
	}
	if nextID == 0 {
		return nil, fmt.Errorf("store %q: next identifier is zero: %w", schema.Layout.Name, layout.ErrCorrupt)
	}
	var prev uint64
	for i, r := range records {
		id := schema.ID(r)
		if id <= prev || id >= nextID {
			return nil, fmt.Errorf("store %q record %d: identifier %d after %d with counter %d: %w",
				schema.Layout.Name, i, id, prev, nextID, layout.ErrCorrupt)
		}
		prev = id
	}

	l := &Ledger[R]{
		schema:  schema,
		nextID:  nextID,
		records: make([]R, 0, schema.Layout.Capacity),
	}
	l.records = append(l.records, records...)
	return l, nil
}
