package report

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/VanDung-dev/HieraLedger-Engine/arrow"
	"github.com/VanDung-dev/HieraLedger-Engine/data"
	"github.com/VanDung-dev/HieraLedger-Engine/engine"
)

// Export holds the paths written by ExportArrow.
type Export struct {
	Outcomes string
	Balances string
}

// ExportArrow writes outcomes-<runID>.arrow and balances-<runID>.arrow into
// dir, creating dir if needed.
func ExportArrow(dir, runID string, outcomes []engine.Outcome, snap engine.Snapshot) (Export, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Export{}, fmt.Errorf("failed to create export dir: %w", err)
	}

	conv := data.NewConverter()
	w := arrow.NewIPCWriter()
	out := Export{
		Outcomes: filepath.Join(dir, "outcomes-"+runID+".arrow"),
		Balances: filepath.Join(dir, "balances-"+runID+".arrow"),
	}

	outcomeRecord := conv.OutcomesToRecord(outcomes)
	defer outcomeRecord.Release()
	if err := w.WriteFile(out.Outcomes, outcomeRecord); err != nil {
		return Export{}, err
	}

	balanceRecord := conv.SnapshotToRecord(snap)
	defer balanceRecord.Release()
	if err := w.WriteFile(out.Balances, balanceRecord); err != nil {
		return Export{}, err
	}

	return out, nil
}
