// Package session holds the mutable state tracking one in-flight request
// through the pipeline: a typed execution context, an ordered audit trail,
// step results, and the append-only checkpoint list.
//
// A session is written by exactly one executing pipeline at a time but may
// be read concurrently by background components (async result polling,
// status reporting), so all accessors lock.
//
// The execution context is a typed struct rather than an open key/value
// bag. Checkpointing it is therefore a value copy: each checkpoint owns an
// independent snapshot, never a shared reference into live state.
package session
