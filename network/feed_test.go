package network

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/VanDung-dev/HieraLedger-Engine/arrow"
	"github.com/VanDung-dev/HieraLedger-Engine/data"
	"github.com/VanDung-dev/HieraLedger-Engine/engine"
	"github.com/VanDung-dev/HieraLedger-Engine/ledger"
)

func entriesEnvelope(t *testing.T, from, nonce string, entries []engine.Entry) []byte {
	t.Helper()
	record, err := data.NewConverter().EntriesToRecord(entries)
	if err != nil {
		t.Fatalf("EntriesToRecord failed: %v", err)
	}
	defer record.Release()

	payload, err := arrow.NewIPCWriter().SerializeToIPC(record)
	if err != nil {
		t.Fatalf("SerializeToIPC failed: %v", err)
	}
	raw, err := (&Envelope{Type: MessageEntries, From: from, Nonce: nonce, Timestamp: time.Now(), Payload: payload}).Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	return raw
}

func drain(q *engine.Queue) []engine.Entry {
	var out []engine.Entry
	for q.Size() > 0 {
		e, _ := q.Get()
		out = append(out, e)
	}
	return out
}

func TestNewFeed(t *testing.T) {
	f := NewFeed(FeedConfig{Address: "tcp://127.0.0.1:0"}, engine.NewQueue(4), nil)
	if f == nil {
		t.Fatal("NewFeed returned nil")
	}
	if f.cfg.ReplayTolerance != 60*time.Second {
		t.Errorf("Expected default replay tolerance, got %v", f.cfg.ReplayTolerance)
	}
	if err := f.Stop(); !errors.Is(err, ErrFeedNotRunning) {
		t.Errorf("Expected ErrFeedNotRunning, got %v", err)
	}
}

func TestFeedRestampsLedgerIDs(t *testing.T) {
	q := engine.NewQueue(16)
	f := NewFeed(FeedConfig{}, q, ledger.NewSequencer(100))

	batch := []engine.Entry{
		{LedgerID: 7, Op: engine.OpDeposit, From: 0, To: 0, Amount: 5},
		{LedgerID: 7, Op: engine.OpTransfer, From: 0, To: 1, Amount: 2},
	}
	if err := f.handle(entriesEnvelope(t, "s1", "n1", batch)); err != nil {
		t.Fatalf("handle failed: %v", err)
	}

	got := drain(q)
	if len(got) != 2 {
		t.Fatalf("Expected 2 queued entries, got %d", len(got))
	}
	if got[0].LedgerID != 100 || got[1].LedgerID != 101 {
		t.Errorf("Expected ids 100,101, got %d,%d", got[0].LedgerID, got[1].LedgerID)
	}
	if got[1].Op != engine.OpTransfer || got[1].To != 1 {
		t.Errorf("Unexpected entry: %+v", got[1])
	}
}

func TestFeedDropsReplays(t *testing.T) {
	q := engine.NewQueue(16)
	f := NewFeed(FeedConfig{}, q, nil)

	raw := entriesEnvelope(t, "s1", "same", []engine.Entry{{Op: engine.OpDeposit, Amount: 1}})
	if err := f.handle(raw); err != nil {
		t.Fatalf("first handle failed: %v", err)
	}
	if err := f.handle(raw); err == nil {
		t.Error("Expected replay to be rejected")
	}

	if q.Size() != 1 {
		t.Errorf("Expected 1 queued entry, got %d", q.Size())
	}
	if f.GetStats().Replays != 1 {
		t.Errorf("Expected 1 replay, got %d", f.GetStats().Replays)
	}
}

func TestFeedDropsStaleMessages(t *testing.T) {
	q := engine.NewQueue(4)
	f := NewFeed(FeedConfig{ReplayTolerance: time.Second}, q, nil)

	raw, _ := (&Envelope{Type: MessageEOF, From: "s1", Nonce: "old", Timestamp: time.Now().Add(-time.Minute)}).Encode()
	if err := f.handle(raw); err == nil {
		t.Error("Expected stale message to be rejected")
	}
}

func TestFeedClosesQueueAfterAllProducers(t *testing.T) {
	q := engine.NewQueue(4)
	f := NewFeed(FeedConfig{Producers: 2}, q, nil)
	q.AddProducers(2)

	eof := func(from, nonce string) []byte {
		raw, _ := (&Envelope{Type: MessageEOF, From: from, Nonce: nonce, Timestamp: time.Now()}).Encode()
		return raw
	}

	_ = f.handle(eof("a", "1"))
	_ = f.handle(eof("a", "2")) // duplicate eof from the same sender
	if q.IsClosed() {
		t.Fatal("Queue closed before every producer finished")
	}
	_ = f.handle(eof("b", "3"))
	if !q.IsClosed() {
		t.Error("Expected queue to close after the last producer")
	}
	if f.GetStats().Finished != 2 {
		t.Errorf("Expected 2 finished producers, got %d", f.GetStats().Finished)
	}
}

func TestFeedCountsEntriesDroppedByClosedQueue(t *testing.T) {
	q := engine.NewQueue(4)
	f := NewFeed(FeedConfig{}, q, nil)
	q.Close()

	batch := []engine.Entry{
		{Op: engine.OpDeposit, Amount: 1},
		{Op: engine.OpDeposit, Amount: 2},
		{Op: engine.OpWithdraw, Amount: 3},
	}
	if err := f.handle(entriesEnvelope(t, "s1", "n1", batch)); !errors.Is(err, engine.ErrQueueClosed) {
		t.Fatalf("Expected ErrQueueClosed, got %v", err)
	}

	stats := f.GetStats()
	if stats.Dropped != 3 {
		t.Errorf("Expected 3 dropped entries, got %d", stats.Dropped)
	}
	if stats.Entries != 0 {
		t.Errorf("Expected 0 queued entries, got %d", stats.Entries)
	}
}

func TestFeedEndToEnd(t *testing.T) {
	const senders, perSender = 2, 300

	q := engine.NewQueue(32)
	seq := ledger.NewSequencer(0)
	feed := NewFeed(FeedConfig{Address: "tcp://127.0.0.1:0", Producers: senders}, q, seq)
	if err := feed.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer feed.Stop()

	var mu sync.Mutex
	ids := make(map[int64]bool)
	store := engine.NewStore(4, engine.WithRecorder(engine.RecorderFunc(func(o engine.Outcome) {
		mu.Lock()
		ids[o.LedgerID] = true
		mu.Unlock()
	})))
	pool := engine.NewWorkerPool("feed", 4, store, q)
	if err := pool.Start(); err != nil {
		t.Fatalf("pool Start failed: %v", err)
	}

	addr := "tcp://" + feed.Addr().String()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	for s := 0; s < senders; s++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sender, err := NewSender(ctx, addr, WithBatchSize(50))
			if err != nil {
				t.Errorf("NewSender failed: %v", err)
				return
			}
			defer sender.Close()

			entries := make([]engine.Entry, perSender)
			for i := range entries {
				entries[i] = engine.Entry{Op: engine.OpDeposit, From: s, To: s, Amount: 1}
			}
			if err := sender.Send(entries); err != nil {
				t.Errorf("Send failed: %v", err)
				return
			}
			if err := sender.Finish(); err != nil {
				t.Errorf("Finish failed: %v", err)
			}
		}()
	}
	wg.Wait()

	select {
	case <-pool.Done():
	case <-time.After(10 * time.Second):
		t.Fatalf("pool did not join, feed stats %+v", feed.GetStats())
	}

	snap := pool.Wait()
	if snap.Succeeded != senders*perSender {
		t.Errorf("Expected %d successes, got %d", senders*perSender, snap.Succeeded)
	}
	if snap.Accounts[0].Balance != perSender || snap.Accounts[1].Balance != perSender {
		t.Errorf("Unexpected balances: %+v", snap.Accounts)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(ids) != senders*perSender {
		t.Errorf("Expected %d unique ledger ids, got %d", senders*perSender, len(ids))
	}
}
