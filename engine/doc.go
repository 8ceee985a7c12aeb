// Package engine provides concurrent ledger processing.
// This package implements:
// - Account store with per-account locking and ordered two-account locks
// - Bounded work queue with backpressure and a preloaded backlog
// - Worker pool draining a shared source against the store
package engine
