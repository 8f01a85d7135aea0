// Package bounded implements capacity-bounded record stores that serialize
// into a buffer of fixed size.
//
// Two variants share one layout and codec:
//
//   - Ledger: an append-only sequence. Each record is assigned the next
//     identifier from a counter that starts at 1 and is never reused, even
//     when an append fails.
//   - Keyed: an upsert map. A record whose key is already stored replaces
//     the existing record in place; a new key is appended.
//
// Every mutation validates first and commits in a single step, so a failed
// call never leaves a partial change. Lookups are linear scans; stores are
// small and bounded by their declared capacity.
//
// A store is encoded as
//
//	| discriminator | bookkeeping | u32 count | records ... | zero slack |
//
// into a buffer of exactly layout.Store.Size() bytes. Records are packed in
// insertion order using their actual string lengths; each one is guaranteed
// to fit inside RECORD_SIZE, so CAPACITY records always fit the buffer.
package bounded
