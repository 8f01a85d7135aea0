package bounded

import (
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/ledgerbox/internal/layout"
)

// Codec serializes one record. Encode must write the record's fields in the
// order of the store layout's Record so that every record fits RECORD_SIZE.
type Codec[R any] interface {
	Encode(w *layout.Writer, r R) error
	Decode(rd *layout.Reader) (R, error)
}

// checkFits reports FIELD_TOO_LARGE if r does not encode within one
// record slot of s.
func checkFits[R any](s layout.Store, c Codec[R], r R) error {
	slot := make([]byte, s.Record.Size())
	err := c.Encode(layout.NewWriter(slot), r)
	if err == nil {
		return nil
	}

	var tooLarge *layout.StringTooLargeError
	if errors.As(err, &tooLarge) {
		return NewFieldTooLarge(s.Name, tooLarge.Field, tooLarge.Len, tooLarge.Max)
	}
	if errors.Is(err, layout.ErrBufferOverflow) {
		return &Error{
			Code:    CodeFieldTooLarge,
			Message: fmt.Sprintf("record exceeds %d bytes", s.Record.Size()),
			Store:   s.Name,
		}
	}
	return fmt.Errorf("encode record: %w", err)
}

// encodeStore writes header, bookkeeping, count and records into buf and
// zeroes the slack. buf must be exactly s.Size() bytes.
func encodeStore[R any](s layout.Store, c Codec[R], buf []byte, records []R, bookkeeping func(*layout.Writer) error) error {
	if len(buf) != s.Size() {
		return fmt.Errorf("store %q: buffer is %d bytes, layout requires %d: %w", s.Name, len(buf), s.Size(), layout.ErrSizeMismatch)
	}
	if len(records) > s.Capacity {
		return fmt.Errorf("store %q: %d records exceed capacity %d: %w", s.Name, len(records), s.Capacity, layout.ErrBufferOverflow)
	}

	w := layout.NewWriter(buf)
	if err := w.Header(s); err != nil {
		return err
	}
	if err := bookkeeping(w); err != nil {
		return fmt.Errorf("store %q bookkeeping: %w", s.Name, err)
	}
	if err := w.U32(uint32(len(records))); err != nil {
		return err
	}
	for i, r := range records {
		if err := c.Encode(w, r); err != nil {
			return fmt.Errorf("store %q record %d: %w", s.Name, i, err)
		}
	}
	w.Zero()
	return nil
}

// decodeStore reads a buffer produced by encodeStore. bookkeeping consumes
// the scalars that follow the header. Slack after the last record must be
// zero.
func decodeStore[R any](s layout.Store, c Codec[R], buf []byte, bookkeeping func(*layout.Reader) error) ([]R, error) {
	if len(buf) != s.Size() {
		return nil, fmt.Errorf("store %q: buffer is %d bytes, layout requires %d: %w", s.Name, len(buf), s.Size(), layout.ErrSizeMismatch)
	}

	rd := layout.NewReader(buf)
	if err := rd.Header(s); err != nil {
		return nil, err
	}
	if err := bookkeeping(rd); err != nil {
		return nil, fmt.Errorf("store %q bookkeeping: %w", s.Name, err)
	}
	n, err := rd.U32()
	if err != nil {
		return nil, err
	}
	if int(n) > s.Capacity {
		return nil, fmt.Errorf("store %q: count %d exceeds capacity %d: %w", s.Name, n, s.Capacity, layout.ErrCorrupt)
	}

	records := make([]R, 0, n)
	for i := 0; i < int(n); i++ {
		r, err := c.Decode(rd)
		if err != nil {
			return nil, fmt.Errorf("store %q record %d: %w", s.Name, i, err)
		}
		records = append(records, r)
	}

	slack := buf[rd.Offset():]
	if i := slices.IndexFunc(slack, func(b byte) bool { return b != 0 }); i >= 0 {
		return nil, fmt.Errorf("store %q: non-zero slack at offset %d: %w", s.Name, rd.Offset()+i, layout.ErrCorrupt)
	}
	return records, nil
}
