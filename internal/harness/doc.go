// Package harness runs YAML scenarios against a real engine.
//
// Each scenario executes in a fresh in-memory database with a
// deterministic wall clock (testutil.DeterministicClock), sequential
// account addresses and named signers whose keys derive from their names.
// The same scenario therefore always produces the same trace, which is
// compared byte-for-byte against a golden file.
//
// A scenario is a list of steps, each one of:
//
//	init:   <program>   allocate an account (optional account, policy)
//	invoke: <action>    sign and execute a transaction against an account
//	view:   <query>     run a read-only query
//
// Steps may carry an expect clause (status, code, event, result, value).
// Expected strings of the form "@name" stand for the public key of the
// named signer, and the trace renders signer keys back as "@name".
//
// After the steps, assertions check the trace and the final state:
// event_count, event_order, final_state and replay.
package harness
