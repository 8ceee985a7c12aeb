package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-zeromq/zmq4"
	"go.uber.org/zap"

	"github.com/VanDung-dev/HieraLedger-Engine/arrow"
	"github.com/VanDung-dev/HieraLedger-Engine/data"
	"github.com/VanDung-dev/HieraLedger-Engine/engine"
	"github.com/VanDung-dev/HieraLedger-Engine/ledger"
)

// FeedConfig contains feed configuration.
type FeedConfig struct {
	// Address is the ZeroMQ endpoint to bind, e.g. tcp://0.0.0.0:7070.
	Address string
	// Producers is the number of distinct senders expected to send eof.
	// When it is zero the feed runs until Stop.
	Producers int
	// ReplayTolerance bounds how old a message may be and how long its
	// nonce is remembered.
	ReplayTolerance time.Duration
}

// DefaultFeedConfig returns default feed configuration.
func DefaultFeedConfig() FeedConfig {
	return FeedConfig{
		Address:         "tcp://127.0.0.1:7070",
		Producers:       1,
		ReplayTolerance: 60 * time.Second,
	}
}

// FeedStats contains feed statistics.
type FeedStats struct {
	Address   string `json:"address"`
	Messages  int64  `json:"messages"`
	Entries   int64  `json:"entries"`
	Replays   int64  `json:"replays"`
	Rejected  int64  `json:"rejected"`
	Dropped   int64  `json:"dropped"`
	Finished  int    `json:"finished"`
	Producers int    `json:"producers"`
	IsRunning bool   `json:"is_running"`
}

// Feed receives entry batches on a PULL socket and puts them on a queue.
// Ledger ids carried by senders are replaced by ids from the feed's
// Sequencer, so ids reflect arrival order at this process.
type Feed struct {
	cfg    FeedConfig
	queue  *engine.Queue
	seq    *ledger.Sequencer
	conv   *data.Converter
	ipc    *arrow.IPCWriter
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	pull   zmq4.Socket

	replayCache map[string]time.Time
	finished    map[string]bool
	mu          sync.Mutex

	messages atomic.Int64
	entries  atomic.Int64
	replays  atomic.Int64
	rejected atomic.Int64
	dropped  atomic.Int64

	running bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// FeedOption configures a Feed.
type FeedOption func(*Feed)

// WithFeedLogger sets the feed logger.
func WithFeedLogger(logger *zap.Logger) FeedOption {
	return func(f *Feed) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewFeed creates a feed that fills q. seq may be shared with other
// producers of the same queue; nil starts a fresh id space at 0.
func NewFeed(cfg FeedConfig, q *engine.Queue, seq *ledger.Sequencer, opts ...FeedOption) *Feed {
	if seq == nil {
		seq = ledger.NewSequencer(0)
	}
	if cfg.ReplayTolerance <= 0 {
		cfg.ReplayTolerance = DefaultFeedConfig().ReplayTolerance
	}
	ctx, cancel := context.WithCancel(context.Background())

	f := &Feed{
		cfg:         cfg,
		queue:       q,
		seq:         seq,
		conv:        data.NewConverter(),
		ipc:         arrow.NewIPCWriter(),
		logger:      zap.NewNop(),
		ctx:         ctx,
		cancel:      cancel,
		replayCache: make(map[string]time.Time),
		finished:    make(map[string]bool),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = f.logger.With(zap.String("component", "feed"))
	return f
}

// Start binds the socket and begins receiving.
func (f *Feed) Start() error {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return ErrFeedRunning
	}

	f.pull = zmq4.NewPull(f.ctx)
	if err := f.pull.Listen(f.cfg.Address); err != nil {
		f.mu.Unlock()
		return fmt.Errorf("failed to bind feed: %w", err)
	}
	if f.cfg.Producers > 0 {
		f.queue.AddProducers(f.cfg.Producers)
	}
	f.running = true
	f.mu.Unlock()

	f.logger.Info("feed listening",
		zap.String("address", f.Addr().String()),
		zap.Int("producers", f.cfg.Producers))

	f.wg.Add(2)
	go f.receiverLoop()
	go f.replayCacheCleaner()

	go func() {
		f.wg.Wait()
		close(f.done)
	}()
	return nil
}

// Addr returns the bound address, useful when listening on port 0.
func (f *Feed) Addr() net.Addr {
	return f.pull.Addr()
}

// Done is closed once the feed has stopped receiving.
func (f *Feed) Done() <-chan struct{} {
	return f.done
}

// Stop stops receiving and closes the queue. Entries already queued are
// still drained by the workers.
func (f *Feed) Stop() error {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return ErrFeedNotRunning
	}
	f.running = false
	f.mu.Unlock()

	f.cancel()
	// Wakes a receiver blocked on a full queue.
	f.queue.Close()
	err := f.pull.Close()
	f.wg.Wait()

	f.logger.Info("feed stopped", zap.Int64("entries", f.entries.Load()))
	return err
}

func (f *Feed) receiverLoop() {
	defer f.wg.Done()

	for {
		msg, err := f.pull.Recv()
		if err != nil {
			select {
			case <-f.ctx.Done():
				return
			default:
				f.logger.Debug("receive failed", zap.Error(err))
				continue
			}
		}

		if err := f.handle(msg.Bytes()); err != nil {
			if errors.Is(err, engine.ErrQueueClosed) {
				f.logger.Info("queue closed, feed stops ingesting")
				return
			}
			f.rejected.Add(1)
			f.logger.Warn("dropping feed message", zap.Error(err))
		}
	}
}

func (f *Feed) handle(raw []byte) error {
	env, err := DecodeEnvelope(raw)
	if err != nil {
		return err
	}
	f.messages.Add(1)

	if !f.isValidReplay(env) {
		f.replays.Add(1)
		return fmt.Errorf("replayed or stale message %q from %s", env.Nonce, env.From)
	}

	switch env.Type {
	case MessageEOF:
		f.finish(env.From)
		return nil
	default:
		return f.ingest(env)
	}
}

func (f *Feed) ingest(env *Envelope) error {
	records, err := f.ipc.DeserializeAllFromIPC(env.Payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadEnvelope, err)
	}
	defer func() {
		for _, r := range records {
			r.Release()
		}
	}()

	var batch []engine.Entry
	for _, r := range records {
		entries, err := f.conv.RecordToEntries(r)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrBadEnvelope, err)
		}
		batch = append(batch, entries...)
	}

	for i, e := range batch {
		e.LedgerID = f.seq.Next()
		if err := f.queue.Put(e); err != nil {
			dropped := len(batch) - i
			f.dropped.Add(int64(dropped))
			f.logger.Warn("queue closed, dropping rest of batch",
				zap.String("from", env.From),
				zap.Int("dropped", dropped),
				zap.Int("queued", i))
			return err
		}
		f.entries.Add(1)
	}
	f.logger.Debug("batch queued", zap.String("from", env.From), zap.Int("entries", len(batch)))
	return nil
}

// finish counts an eof once per sender.
func (f *Feed) finish(from string) {
	f.mu.Lock()
	if f.finished[from] {
		f.mu.Unlock()
		return
	}
	f.finished[from] = true
	count := len(f.finished)
	f.mu.Unlock()

	f.logger.Info("producer finished", zap.String("from", from), zap.Int("finished", count))
	if f.cfg.Producers > 0 && count <= f.cfg.Producers {
		f.queue.ProducerDone()
	}
}

// isValidReplay checks if a message is neither a replay nor stale.
func (f *Feed) isValidReplay(env *Envelope) bool {
	if env.Nonce == "" {
		return true
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, seen := f.replayCache[env.Nonce]; seen {
		return false
	}
	if time.Since(env.Timestamp) > f.cfg.ReplayTolerance {
		return false
	}
	f.replayCache[env.Nonce] = time.Now()
	return true
}

func (f *Feed) replayCacheCleaner() {
	defer f.wg.Done()

	ticker := time.NewTicker(f.cfg.ReplayTolerance / 2)
	defer ticker.Stop()

	for {
		select {
		case <-f.ctx.Done():
			return
		case <-ticker.C:
			f.cleanReplayCache()
		}
	}
}

func (f *Feed) cleanReplayCache() {
	f.mu.Lock()
	defer f.mu.Unlock()

	cutoff := time.Now().Add(-f.cfg.ReplayTolerance)
	for nonce, ts := range f.replayCache {
		if ts.Before(cutoff) {
			delete(f.replayCache, nonce)
		}
	}
}

// GetStats returns current feed statistics.
func (f *Feed) GetStats() FeedStats {
	f.mu.Lock()
	defer f.mu.Unlock()

	return FeedStats{
		Address:   f.cfg.Address,
		Messages:  f.messages.Load(),
		Entries:   f.entries.Load(),
		Replays:   f.replays.Load(),
		Rejected:  f.rejected.Load(),
		Dropped:   f.dropped.Load(),
		Finished:  len(f.finished),
		Producers: f.cfg.Producers,
		IsRunning: f.running,
	}
}
