// Package data defines the Apache Arrow schemas used to move ledger data
// between processes and to export run results.
//
// Three record layouts are provided:
//   - EntrySchema: ledger entries as decoded at ingestion
//   - OutcomeSchema: one row per applied or rejected entry
//   - BalanceSchema: final account balances from a store snapshot
package data
