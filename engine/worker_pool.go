package engine

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// PoolState is the lifecycle state of a WorkerPool.
type PoolState int

const (
	PoolNotStarted PoolState = iota
	PoolRunning
	PoolDraining
	PoolJoined
)

func (s PoolState) String() string {
	switch s {
	case PoolNotStarted:
		return "not_started"
	case PoolRunning:
		return "running"
	case PoolDraining:
		return "draining"
	case PoolJoined:
		return "joined"
	default:
		return "unknown"
	}
}

// PoolStats contains worker pool statistics.
type PoolStats struct {
	Name        string  `json:"name"`
	Workers     int     `json:"workers"`
	Active      int64   `json:"active"`
	Dispatched  int64   `json:"dispatched"`
	Succeeded   int64   `json:"succeeded"`
	Failed      int64   `json:"failed"`
	State       string  `json:"state"`
	SuccessRate float64 `json:"success_rate"`
}

// PoolOption configures a WorkerPool.
type PoolOption func(*WorkerPool)

// WithLogger sets the logger used for lifecycle events.
func WithLogger(logger *zap.Logger) PoolOption {
	return func(p *WorkerPool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithSimulatedLatency makes every worker sleep for d before each dispatch.
// It exists to exercise contention in demos and tests and is off by default.
func WithSimulatedLatency(d time.Duration) PoolOption {
	return func(p *WorkerPool) {
		p.latency = d
	}
}

// WorkerPool runs a fixed number of goroutines that drain a Source against a
// Store. Workers only serialize on the source; everything else is left to the
// store's per-account locks.
type WorkerPool struct {
	name    string
	workers int
	store   *Store
	source  Source
	logger  *zap.Logger
	latency time.Duration
	wg      sync.WaitGroup

	active     int64
	dispatched int64

	state PoolState
	final Snapshot
	done  chan struct{}
	mu    sync.RWMutex
}

// NewWorkerPool creates a pool of workers goroutines. Nothing runs until Start.
func NewWorkerPool(name string, workers int, store *Store, source Source, opts ...PoolOption) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}

	p := &WorkerPool{
		name:    name,
		workers: workers,
		store:   store,
		source:  source,
		logger:  zap.NewNop(),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With(zap.String("pool", name))
	return p
}

// Start launches every worker. A pool can only be started once.
func (p *WorkerPool) Start() error {
	p.mu.Lock()
	if p.state != PoolNotStarted {
		p.mu.Unlock()
		return ErrPoolStarted
	}
	p.state = PoolRunning
	p.mu.Unlock()

	p.logger.Info("worker pool started", zap.Int("workers", p.workers), zap.Int("accounts", p.store.Len()))

	p.wg.Add(p.workers)
	for i := 0; i < p.workers; i++ {
		go p.worker(i)
	}

	go func() {
		p.wg.Wait()
		snap := p.store.Snapshot()

		p.mu.Lock()
		p.final = snap
		p.state = PoolJoined
		p.mu.Unlock()

		p.logger.Info("worker pool joined",
			zap.Int64("dispatched", atomic.LoadInt64(&p.dispatched)),
			zap.Int64("succeeded", snap.Succeeded),
			zap.Int64("failed", snap.Failed))
		close(p.done)
	}()

	return nil
}

// Wait blocks until every worker has exited and returns the snapshot taken
// right after the join. On a pool that was never started it returns the
// current store snapshot immediately.
func (p *WorkerPool) Wait() Snapshot {
	if p.State() == PoolNotStarted {
		return p.store.Snapshot()
	}
	<-p.done
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.final
}

// Done is closed once the pool reaches PoolJoined.
func (p *WorkerPool) Done() <-chan struct{} {
	return p.done
}

// Run starts the pool and waits for it to drain the source.
func (p *WorkerPool) Run() (Snapshot, error) {
	if err := p.Start(); err != nil {
		return Snapshot{}, err
	}
	return p.Wait(), nil
}

// worker is the goroutine that processes entries until the source is exhausted.
func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	for {
		entry, ok := p.source.Next()
		if !ok {
			p.drain(id)
			return
		}
		p.process(id, entry)
	}
}

// drain moves the pool to PoolDraining the first time a worker finds the source exhausted.
func (p *WorkerPool) drain(id int) {
	p.mu.Lock()
	if p.state == PoolRunning {
		p.state = PoolDraining
		p.logger.Debug("work source exhausted, draining", zap.Int("worker", id))
	}
	p.mu.Unlock()
}

// process validates and dispatches a single entry.
func (p *WorkerPool) process(workerID int, entry Entry) {
	atomic.AddInt64(&p.active, 1)
	defer atomic.AddInt64(&p.active, -1)

	if p.latency > 0 {
		time.Sleep(p.latency)
	}

	ref := Ref{WorkerID: workerID, LedgerID: entry.LedgerID}
	atomic.AddInt64(&p.dispatched, 1)

	if err := p.validate(entry); err != nil {
		_ = p.store.reject(ref, entry, err)
		return
	}
	_ = p.store.Apply(ref, entry)
}

// validate rejects entries whose ids fall outside the store before any
// account is touched.
func (p *WorkerPool) validate(entry Entry) error {
	if !p.store.Contains(entry.From) {
		return fmt.Errorf("%w: account %d: %w", ErrLedgerRejected, entry.From, ErrInvalidAccount)
	}
	if entry.Op == OpTransfer && !p.store.Contains(entry.To) {
		return fmt.Errorf("%w: account %d: %w", ErrLedgerRejected, entry.To, ErrInvalidAccount)
	}
	return nil
}

// State returns the current lifecycle state.
func (p *WorkerPool) State() PoolState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// GetStats returns current worker pool statistics.
func (p *WorkerPool) GetStats() PoolStats {
	succeeded, failed := p.store.Counts()
	total := succeeded + failed

	var successRate float64
	if total > 0 {
		successRate = float64(succeeded) / float64(total) * 100
	}

	return PoolStats{
		Name:        p.name,
		Workers:     p.workers,
		Active:      atomic.LoadInt64(&p.active),
		Dispatched:  atomic.LoadInt64(&p.dispatched),
		Succeeded:   succeeded,
		Failed:      failed,
		State:       p.State().String(),
		SuccessRate: successRate,
	}
}
