// Package store provides SQLite-backed durable storage for ledgerbox
// accounts, the transaction log and the event log.
//
// # Tables
//
//   - accounts: one fixed-size store buffer per account, allocated once at
//     exactly the program's store size and never resized
//   - transactions: every submitted transaction, committed or failed
//   - events: notifications of committed writes
//
// A committed write updates the account buffer, appends the transaction
// and appends its event inside one SQL transaction. A failed write only
// appends the transaction with its error code.
//
// # Ordering
//
// All log queries order by seq, the engine's logical clock, never by
// wall-clock timestamps.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - foreign_keys=ON
package store
