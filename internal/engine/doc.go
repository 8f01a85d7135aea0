// Package engine hosts ledgerbox programs.
//
// The engine owns the account store, the program registry and the logical
// clock. It verifies signed transactions, authorizes them against the
// account's write policy, runs the program and persists the result.
//
// Single writer:
// Every mutation runs under one lock. Execute may be called from any
// goroutine; Run and Submit provide a queued loop for callers that prefer
// to hand transactions to one goroutine.
//
// A signer's nonce is single-use: a transaction whose signer and nonce are
// already in the log is rejected before it runs.
//
// Each logged transaction is stamped with the next value of the logical
// clock (seq) and with a wall-clock timestamp in unix seconds. The seq orders the
// log; the timestamp is program input (image timestamps, post timestamps)
// and is recorded so that Replay can feed the same value back.
//
// A transaction either commits fully (account bytes, log entry and event
// in one SQLite transaction, then notification) or is logged as failed with
// an error code and leaves the account untouched.
package engine
