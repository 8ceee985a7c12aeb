package engine

import "sync"

// Source is anything workers can pull entries from. Next blocks until an entry
// is available and returns false once the source is exhausted for good.
type Source interface {
	Next() (Entry, bool)
}

// Queue is a bounded, blocking FIFO of ledger entries. Producers block in Put
// while the queue is full, consumers block in Get while it is empty. Once
// closed, Get keeps returning queued entries and then reports exhaustion.
type Queue struct {
	buf      []Entry
	head     int
	count    int
	closed   bool
	producer int

	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
}

// NewQueue creates a Queue holding at most capacity entries.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	q := &Queue{buf: make([]Entry, capacity)}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	return q
}

// Put appends e, blocking while the queue is full.
// Returns ErrQueueClosed if the queue was closed before space became available.
func (q *Queue) Put(e Entry) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.count == len(q.buf) && !q.closed {
		q.notFull.Wait()
	}
	if q.closed {
		return ErrQueueClosed
	}
	q.push(e)
	return nil
}

// TryPut appends e without blocking.
func (q *Queue) TryPut(e Entry) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	if q.count == len(q.buf) {
		return ErrQueueFull
	}
	q.push(e)
	return nil
}

func (q *Queue) push(e Entry) {
	q.buf[(q.head+q.count)%len(q.buf)] = e
	q.count++
	q.notEmpty.Signal()
}

// Get removes and returns the head entry, blocking while the queue is empty
// and still open. It returns false once the queue is closed and drained.
func (q *Queue) Get() (Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.count == 0 && !q.closed {
		q.notEmpty.Wait()
	}
	if q.count == 0 {
		return Entry{}, false
	}

	e := q.buf[q.head]
	q.buf[q.head] = Entry{}
	q.head = (q.head + 1) % len(q.buf)
	q.count--
	q.notFull.Signal()
	return e, true
}

// Next implements Source.
func (q *Queue) Next() (Entry, bool) {
	return q.Get()
}

// Close marks the queue as finished and wakes every blocked producer and
// consumer. It is safe to call more than once.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
}

// AddProducers registers n producers. The queue closes itself when the last
// registered producer calls ProducerDone.
func (q *Queue) AddProducers(n int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.producer += n
}

// ProducerDone reports that one registered producer has made its final Put.
func (q *Queue) ProducerDone() {
	q.mu.Lock()
	q.producer--
	last := q.producer <= 0
	q.mu.Unlock()

	if last {
		q.Close()
	}
}

// Size returns the number of queued entries.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Capacity returns the fixed capacity.
func (q *Queue) Capacity() int {
	return len(q.buf)
}

// IsFull returns true if the queue holds capacity entries.
func (q *Queue) IsFull() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count == len(q.buf)
}

// IsClosed returns true once Close has been called.
func (q *Queue) IsClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// QueueStats contains work queue statistics.
type QueueStats struct {
	Size      int  `json:"size"`
	Capacity  int  `json:"capacity"`
	Available int  `json:"available"`
	Closed    bool `json:"closed"`
}

// Stats returns queue statistics.
func (q *Queue) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()

	return QueueStats{
		Size:      q.count,
		Capacity:  len(q.buf),
		Available: len(q.buf) - q.count,
		Closed:    q.closed,
	}
}

// Backlog is the preloaded alternative to Queue: the whole input is known up
// front and an empty backlog means there is no more work.
type Backlog struct {
	entries []Entry
	next    int
	mu      sync.Mutex
}

// NewBacklog creates a Backlog that hands out entries in slice order.
func NewBacklog(entries []Entry) *Backlog {
	cp := make([]Entry, len(entries))
	copy(cp, entries)
	return &Backlog{entries: cp}
}

// Next implements Source.
func (b *Backlog) Next() (Entry, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.next >= len(b.entries) {
		return Entry{}, false
	}
	e := b.entries[b.next]
	b.next++
	return e, true
}

// Remaining returns how many entries have not been handed out yet.
func (b *Backlog) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries) - b.next
}
