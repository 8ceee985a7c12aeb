// Package arrow provides Apache Arrow IPC helpers for HieraLedger-Engine.
// This package implements:
//   - in-memory IPC stream encoding used for network feed payloads
//   - IPC file writing used to export run outcomes and balances
package arrow
