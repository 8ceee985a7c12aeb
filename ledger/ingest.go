package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/VanDung-dev/HieraLedger-Engine/engine"
)

// Ingest decodes entries from d and puts them on q, blocking whenever q is
// full. It returns the number of entries queued. Ingest does not close q;
// producers registered with q.AddProducers signal completion through
// q.ProducerDone.
func Ingest(ctx context.Context, q *engine.Queue, d *Decoder) (int, error) {
	n := 0
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}

		e, err := d.Next()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, err
		}

		if err := q.Put(e); err != nil {
			return n, fmt.Errorf("failed to queue ledger %d: %w", e.LedgerID, err)
		}
		n++
	}
}

// IngestAll runs one producer per decoder against q and closes q once every
// producer has finished, successfully or not. The decoders should share a
// Sequencer so ledger ids stay unique.
func IngestAll(ctx context.Context, q *engine.Queue, decoders ...*Decoder) (int, error) {
	if len(decoders) == 0 {
		q.Close()
		return 0, nil
	}

	q.AddProducers(len(decoders))
	counts := make([]int, len(decoders))

	g, gctx := errgroup.WithContext(ctx)
	for i, d := range decoders {
		g.Go(func() error {
			defer q.ProducerDone()
			n, err := Ingest(gctx, q, d)
			counts[i] = n
			return err
		})
	}
	err := g.Wait()

	total := 0
	for _, n := range counts {
		total += n
	}
	return total, err
}
