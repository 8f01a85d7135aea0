// Package layout computes the fixed byte budget of bounded record stores and
// provides the fixed-buffer codec they are serialized with.
//
// A store is placed into a buffer allocated once at store creation:
//
//	| header (8) | bookkeeping | record count (u32) | CAPACITY × RECORD_SIZE |
//
// RECORD_SIZE is the sum of the declared field widths. Fixed integers count
// their exact width. A bounded string counts its declared width, which
// includes its own u32 length prefix, so its content may hold width-4 bytes.
// Unused capacity is reserved slack: zero bytes in the buffer that are not
// part of the logical record sequence.
//
// All integers are little-endian.
package layout
