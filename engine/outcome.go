package engine

import "time"

// Stage tells where an outcome was decided.
type Stage int

const (
	// StageStore outcomes were produced by the account store.
	StageStore Stage = iota
	// StageDispatch outcomes were rejected by a worker before reaching the store.
	StageDispatch
)

func (s Stage) String() string {
	switch s {
	case StageStore:
		return "store"
	case StageDispatch:
		return "dispatch"
	default:
		return "unknown"
	}
}

// Outcome records the result of applying one entry.
type Outcome struct {
	WorkerID int
	LedgerID int64
	Op       Operation
	From     int
	To       int
	Amount   int64

	// Balance is the balance read by CheckBalance, or the balance of From
	// after a successful deposit, withdraw or transfer.
	Balance int64

	Err      error
	Stage    Stage
	Duration time.Duration
}

// Succeeded reports whether the operation was applied.
func (o Outcome) Succeeded() bool {
	return o.Err == nil
}

// Recorder receives one Outcome per completed or rejected entry. Implementations
// must be safe for concurrent use; Record is called outside every account lock.
type Recorder interface {
	Record(o Outcome)
}

// RecorderFunc adapts a function to the Recorder interface.
type RecorderFunc func(o Outcome)

// Record calls f(o).
func (f RecorderFunc) Record(o Outcome) { f(o) }

type nopRecorder struct{}

func (nopRecorder) Record(Outcome) {}
