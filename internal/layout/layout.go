package layout

import (
	"crypto/sha256"
	"fmt"
)

// Fixed parts of every store buffer.
const (
	// HeaderSize is the width of the account discriminator.
	HeaderSize = 8

	// LengthPrefixSize is the width of the u32 record count that precedes
	// the record sequence (and of every string length prefix).
	LengthPrefixSize = 4
)

// Kind is the wire kind of a record field.
type Kind int

const (
	KindU8 Kind = iota + 1
	KindU32
	KindU64
	KindBool
	KindString
)

// String returns the kind name used in diagnostics and the layout command.
func (k Kind) String() string {
	switch k {
	case KindU8:
		return "u8"
	case KindU32:
		return "u32"
	case KindU64:
		return "u64"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Field describes one record field and its serialized budget.
type Field struct {
	Name  string
	Kind  Kind
	Width int
}

// U8 declares a one-byte unsigned field.
func U8(name string) Field { return Field{Name: name, Kind: KindU8, Width: 1} }

// U32 declares a four-byte unsigned field.
func U32(name string) Field { return Field{Name: name, Kind: KindU32, Width: 4} }

// U64 declares an eight-byte unsigned field.
func U64(name string) Field { return Field{Name: name, Kind: KindU64, Width: 8} }

// Bool declares a one-byte boolean field.
func Bool(name string) Field { return Field{Name: name, Kind: KindBool, Width: 1} }

// String declares a bounded string field. width is the full serialized
// budget including the u32 length prefix; it must be larger than the prefix.
func String(name string, width int) Field {
	if width <= LengthPrefixSize {
		panic(fmt.Sprintf("layout: string field %q width %d must exceed the %d-byte length prefix", name, width, LengthPrefixSize))
	}
	return Field{Name: name, Kind: KindString, Width: width}
}

// MaxContent returns the largest content length a string field accepts.
// For fixed-width fields it returns the width.
func (f Field) MaxContent() int {
	if f.Kind == KindString {
		return f.Width - LengthPrefixSize
	}
	return f.Width
}

// Record is an ordered list of fields.
type Record struct {
	Fields []Field
}

// NewRecord builds a record layout from fields in declaration order.
func NewRecord(fields ...Field) Record {
	return Record{Fields: fields}
}

// Size returns RECORD_SIZE: the sum of the declared field widths.
func (r Record) Size() int {
	n := 0
	for _, f := range r.Fields {
		n += f.Width
	}
	return n
}

// Field returns the field with the given name.
func (r Record) Field(name string) (Field, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Store is the complete fixed layout of a store buffer.
type Store struct {
	// Name identifies the account type and seeds the discriminator.
	Name string

	// Bookkeeping lists the scalar fields written after the header.
	Bookkeeping []Field

	// Capacity is the maximum number of records the store may ever hold.
	Capacity int

	// Record is the layout of one record.
	Record Record
}

// BookkeepingSize returns the combined width of the bookkeeping scalars.
func (s Store) BookkeepingSize() int {
	n := 0
	for _, f := range s.Bookkeeping {
		n += f.Width
	}
	return n
}

// Size returns STORE_SIZE. It is computed from the declaration alone and is
// the exact size of every buffer the store is ever encoded into.
func (s Store) Size() int {
	return HeaderSize + s.BookkeepingSize() + LengthPrefixSize + s.Capacity*s.Record.Size()
}

// Discriminator returns the 8-byte header identifying the store type.
func (s Store) Discriminator() [HeaderSize]byte {
	return Discriminator(s.Name)
}

// Discriminator derives an 8-byte account header from a type name.
func Discriminator(name string) [HeaderSize]byte {
	sum := sha256.Sum256([]byte("account:" + name))
	var d [HeaderSize]byte
	copy(d[:], sum[:HeaderSize])
	return d
}
