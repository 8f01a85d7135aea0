package layout

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	// ErrBufferOverflow is returned when an encoding would write past the
	// end of its fixed buffer.
	ErrBufferOverflow = errors.New("buffer overflow")

	// ErrCorrupt is returned when a buffer cannot be decoded.
	ErrCorrupt = errors.New("corrupt buffer")

	// ErrDiscriminatorMismatch is returned when a buffer carries the header
	// of a different store type.
	ErrDiscriminatorMismatch = errors.New("discriminator mismatch")

	// ErrSizeMismatch is returned when a buffer is not exactly the size
	// its store layout declares.
	ErrSizeMismatch = errors.New("buffer size mismatch")
)

// StringTooLargeError reports a string whose encoded form exceeds the
// declared width of its field.
type StringTooLargeError struct {
	Field string
	Len   int
	Max   int
}

func (e *StringTooLargeError) Error() string {
	return fmt.Sprintf("field %q: %d bytes exceeds maximum of %d", e.Field, e.Len, e.Max)
}

// Writer encodes values into a preallocated buffer. It never grows the
// buffer; a write that does not fit fails with ErrBufferOverflow.
type Writer struct {
	buf []byte
	off int
}

// NewWriter returns a Writer over buf starting at offset 0.
func NewWriter(buf []byte) *Writer {
	return &Writer{buf: buf}
}

// Offset returns the number of bytes written so far.
func (w *Writer) Offset() int { return w.off }

func (w *Writer) reserve(n int) ([]byte, error) {
	if w.off+n > len(w.buf) {
		return nil, fmt.Errorf("write %d bytes at offset %d of %d: %w", n, w.off, len(w.buf), ErrBufferOverflow)
	}
	b := w.buf[w.off : w.off+n]
	w.off += n
	return b, nil
}

// Raw writes p verbatim.
func (w *Writer) Raw(p []byte) error {
	b, err := w.reserve(len(p))
	if err != nil {
		return err
	}
	copy(b, p)
	return nil
}

// U8 writes one byte.
func (w *Writer) U8(v uint8) error {
	b, err := w.reserve(1)
	if err != nil {
		return err
	}
	b[0] = v
	return nil
}

// U32 writes a little-endian uint32.
func (w *Writer) U32(v uint32) error {
	b, err := w.reserve(4)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(b, v)
	return nil
}

// U64 writes a little-endian uint64.
func (w *Writer) U64(v uint64) error {
	b, err := w.reserve(8)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(b, v)
	return nil
}

// Bool writes 1 for true and 0 for false.
func (w *Writer) Bool(v bool) error {
	if v {
		return w.U8(1)
	}
	return w.U8(0)
}

// String writes a u32 length prefix followed by s. The prefix and content
// together must fit in f.Width.
func (w *Writer) String(f Field, s string) error {
	if err := CheckString(f, s); err != nil {
		return err
	}
	if err := w.U32(uint32(len(s))); err != nil {
		return err
	}
	return w.Raw([]byte(s))
}

// Zero clears every byte after the current offset. Slack capacity is kept
// as zeros so identical logical states encode to identical buffers.
func (w *Writer) Zero() {
	clear(w.buf[w.off:])
}

// CheckString reports whether s fits the declared width of f.
func CheckString(f Field, s string) error {
	if len(s) > f.MaxContent() {
		return &StringTooLargeError{Field: f.Name, Len: len(s), Max: f.MaxContent()}
	}
	return nil
}

// Reader decodes values from a buffer.
type Reader struct {
	buf []byte
	off int
}

// NewReader returns a Reader over buf starting at offset 0.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Offset returns the number of bytes consumed so far.
func (r *Reader) Offset() int { return r.off }

func (r *Reader) take(n int) ([]byte, error) {
	if n < 0 || r.off+n > len(r.buf) {
		return nil, fmt.Errorf("read %d bytes at offset %d of %d: %w", n, r.off, len(r.buf), ErrCorrupt)
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

// Raw returns the next n bytes. The result aliases the underlying buffer.
func (r *Reader) Raw(n int) ([]byte, error) {
	return r.take(n)
}

// U8 reads one byte.
func (r *Reader) U8() (uint8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// U32 reads a little-endian uint32.
func (r *Reader) U32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// U64 reads a little-endian uint64.
func (r *Reader) U64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// Bool reads a boolean; any byte other than 0 or 1 is corrupt.
func (r *Reader) Bool() (bool, error) {
	v, err := r.U8()
	if err != nil {
		return false, err
	}
	switch v {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("bool byte %#x at offset %d: %w", v, r.off-1, ErrCorrupt)
	}
}

// String reads a length-prefixed string and rejects lengths beyond f.Width.
func (r *Reader) String(f Field) (string, error) {
	n, err := r.U32()
	if err != nil {
		return "", err
	}
	if int(n) > f.MaxContent() {
		return "", fmt.Errorf("field %q length %d exceeds %d: %w", f.Name, n, f.MaxContent(), ErrCorrupt)
	}
	b, err := r.take(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Header writes the store discriminator.
func (w *Writer) Header(s Store) error {
	d := s.Discriminator()
	return w.Raw(d[:])
}

// Header reads and checks the store discriminator.
func (r *Reader) Header(s Store) error {
	b, err := r.take(HeaderSize)
	if err != nil {
		return err
	}
	want := s.Discriminator()
	if string(b) != string(want[:]) {
		return fmt.Errorf("store %q: %w", s.Name, ErrDiscriminatorMismatch)
	}
	return nil
}
