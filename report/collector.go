package report

import (
	"sort"
	"sync"

	"github.com/VanDung-dev/HieraLedger-Engine/engine"
)

// Collector keeps every outcome it records. It is safe for concurrent use.
type Collector struct {
	mu       sync.Mutex
	outcomes []engine.Outcome
}

// NewCollector creates an empty Collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Record implements engine.Recorder.
func (c *Collector) Record(o engine.Outcome) {
	c.mu.Lock()
	c.outcomes = append(c.outcomes, o)
	c.mu.Unlock()
}

// Len returns the number of recorded outcomes.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.outcomes)
}

// Outcomes returns a copy of the recorded outcomes ordered by ledger id.
func (c *Collector) Outcomes() []engine.Outcome {
	c.mu.Lock()
	out := make([]engine.Outcome, len(c.outcomes))
	copy(out, c.outcomes)
	c.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].LedgerID < out[j].LedgerID })
	return out
}

// Tee fans each outcome out to every recorder in order.
type Tee []engine.Recorder

// Record implements engine.Recorder.
func (t Tee) Record(o engine.Outcome) {
	for _, r := range t {
		if r != nil {
			r.Record(o)
		}
	}
}
