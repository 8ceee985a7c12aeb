package report

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/VanDung-dev/HieraLedger-Engine/engine"
)

// Console prints one line per outcome in the classic ledger format:
//
//	Worker  1 completed ledger  0:     deposit       300 into account  0
//	Worker  2 -FAILED-  ledger  2:    withdraw       200 from account  0
type Console struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsole creates a Console writing to w.
func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

// Record implements engine.Recorder.
func (c *Console) Record(o engine.Outcome) {
	line := FormatOutcome(o)
	c.mu.Lock()
	fmt.Fprintln(c.w, line)
	c.mu.Unlock()
}

// FormatOutcome renders o as a single console line without a newline.
func FormatOutcome(o engine.Outcome) string {
	if errors.Is(o.Err, engine.ErrInvalidAccount) {
		return fmt.Sprintf("Worker %2d -FAILED-  ledger %2d:   Ledger Error: no account with inputted ID",
			o.WorkerID, o.LedgerID)
	}

	status := "completed"
	if !o.Succeeded() {
		status = "-FAILED- "
	}
	prefix := fmt.Sprintf("Worker %2d %s ledger %2d:", o.WorkerID, status, o.LedgerID)

	switch o.Op {
	case engine.OpDeposit:
		return fmt.Sprintf("%s     deposit %9d into account %2d", prefix, o.Amount, o.From)
	case engine.OpWithdraw:
		return fmt.Sprintf("%s    withdraw %9d from account %2d", prefix, o.Amount, o.From)
	case engine.OpTransfer:
		return fmt.Sprintf("%s    transfer %9d from account %2d to account %2d", prefix, o.Amount, o.From, o.To)
	case engine.OpCheckBalance:
		return fmt.Sprintf("%s    balance= %9d  for account %2d", prefix, o.Balance, o.From)
	default:
		return fmt.Sprintf("%s   Ledger Error: %v", prefix, o.Err)
	}
}

// PrintSnapshot writes the balance table followed by the success and
// failure counters.
func PrintSnapshot(w io.Writer, snap engine.Snapshot) error {
	for _, a := range snap.Accounts {
		if _, err := fmt.Fprintf(w, "ID# %2d | %9d\n", a.ID, a.Balance); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "Success: %2d Fails: %2d\n", snap.Succeeded, snap.Failed)
	return err
}
