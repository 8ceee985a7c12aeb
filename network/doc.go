// Package network carries ledger entries between processes over ZeroMQ.
//
// This package implements:
//   - Feed: a PULL socket that ingests entry batches into an engine.Queue
//   - Sender: a PUSH socket that ships decoded entries to a Feed
//   - Envelope: the JSON frame wrapping an Arrow IPC payload
package network
