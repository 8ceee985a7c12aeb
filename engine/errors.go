package engine

import "errors"

// Common errors for ledger operations
var (
	ErrInvalidAccount    = errors.New("no account with inputted id")
	ErrSelfTransfer      = errors.New("transfer source and destination are the same account")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("amount must be non-negative")
	ErrBalanceOverflow   = errors.New("credit would overflow account balance")
	ErrUnknownOperation  = errors.New("unknown operation")

	// ErrLedgerRejected marks an entry the worker refused before it reached the store.
	ErrLedgerRejected = errors.New("ledger error")
)

// Common errors for the work queue and pool
var (
	ErrQueueClosed = errors.New("work queue is closed")
	ErrQueueFull   = errors.New("work queue is full")
	ErrPoolStarted = errors.New("worker pool already started")
)
