package engine

import (
	"math"
	"sync"
	"time"
)

// Account is a point-in-time copy of one account.
type Account struct {
	ID      int   `json:"id"`
	Balance int64 `json:"balance"`
}

// account is the locked, mutable form owned by the Store.
type account struct {
	mu      sync.RWMutex
	id      int
	balance int64
}

// Snapshot is a composite of per-account reads plus the outcome counters.
// It is not isolated: other operations may run between the individual reads.
type Snapshot struct {
	Accounts  []Account `json:"accounts"`
	Succeeded int64     `json:"succeeded"`
	Failed    int64     `json:"failed"`
	TakenAt   time.Time `json:"taken_at"`
}

// Total returns the sum of all balances in the snapshot.
func (s Snapshot) Total() int64 {
	var total int64
	for _, a := range s.Accounts {
		total += a.Balance
	}
	return total
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithRecorder sets the recorder that receives every outcome.
func WithRecorder(r Recorder) StoreOption {
	return func(s *Store) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithInitialBalance opens every account with the given balance.
func WithInitialBalance(balance int64) StoreOption {
	return func(s *Store) {
		for _, a := range s.accounts {
			a.balance = balance
		}
	}
}

// Store owns a fixed set of accounts with ids 0..N-1 and the aggregate
// success/failure counters. Each account has its own lock so unrelated
// accounts never contend; the counters sit behind a separate lock that is only
// taken once all account locks for an operation have been released.
type Store struct {
	accounts []*account
	recorder Recorder

	statsMu   sync.Mutex
	succeeded int64
	failed    int64
}

// NewStore creates a store with n zero-balance accounts.
func NewStore(n int, opts ...StoreOption) *Store {
	if n < 0 {
		n = 0
	}
	s := &Store{
		accounts: make([]*account, n),
		recorder: nopRecorder{},
	}
	for i := range s.accounts {
		s.accounts[i] = &account{id: i}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Len returns the number of accounts.
func (s *Store) Len() int {
	return len(s.accounts)
}

// Contains reports whether id names an account.
func (s *Store) Contains(id int) bool {
	return id >= 0 && id < len(s.accounts)
}

// lookup is the only place the accounts slice is indexed.
func (s *Store) lookup(id int) (*account, bool) {
	if !s.Contains(id) {
		return nil, false
	}
	return s.accounts[id], true
}

// lockPair write-locks two distinct accounts in ascending id order and returns
// the function that releases them in reverse order. Every multi-account
// operation must go through here so lock acquisition follows one total order.
func lockPair(a, b *account) (unlock func()) {
	first, second := a, b
	if b.id < a.id {
		first, second = b, a
	}
	first.mu.Lock()
	second.mu.Lock()
	return func() {
		second.mu.Unlock()
		first.mu.Unlock()
	}
}

// Deposit adds amount to the account.
func (s *Store) Deposit(ref Ref, id int, amount int64) error {
	start := time.Now()
	o := newOutcome(ref, OpDeposit, id, id, amount)

	acct, ok := s.lookup(id)
	switch {
	case !ok:
		o.Err = ErrInvalidAccount
	case amount < 0:
		o.Err = ErrInvalidAmount
	default:
		acct.mu.Lock()
		if acct.balance > math.MaxInt64-amount {
			o.Err = ErrBalanceOverflow
		} else {
			acct.balance += amount
		}
		o.Balance = acct.balance
		acct.mu.Unlock()
	}

	return s.finish(o, start)
}

// Withdraw removes amount from the account unless that would overdraw it.
func (s *Store) Withdraw(ref Ref, id int, amount int64) error {
	start := time.Now()
	o := newOutcome(ref, OpWithdraw, id, id, amount)

	acct, ok := s.lookup(id)
	switch {
	case !ok:
		o.Err = ErrInvalidAccount
	case amount < 0:
		o.Err = ErrInvalidAmount
	default:
		acct.mu.Lock()
		if acct.balance < amount {
			o.Err = ErrInsufficientFunds
		} else {
			acct.balance -= amount
		}
		o.Balance = acct.balance
		acct.mu.Unlock()
	}

	return s.finish(o, start)
}

// Transfer moves amount from src to dst. Both accounts are held for the whole
// check-and-move, so no other operation can observe half a transfer.
func (s *Store) Transfer(ref Ref, src, dst int, amount int64) error {
	start := time.Now()
	o := newOutcome(ref, OpTransfer, src, dst, amount)

	from, okFrom := s.lookup(src)
	to, okTo := s.lookup(dst)
	switch {
	case !okFrom || !okTo:
		o.Err = ErrInvalidAccount
	case src == dst:
		o.Err = ErrSelfTransfer
	case amount < 0:
		o.Err = ErrInvalidAmount
	default:
		unlock := lockPair(from, to)
		switch {
		case from.balance < amount:
			o.Err = ErrInsufficientFunds
		case to.balance > math.MaxInt64-amount:
			o.Err = ErrBalanceOverflow
		default:
			from.balance -= amount
			to.balance += amount
		}
		o.Balance = from.balance
		unlock()
	}

	return s.finish(o, start)
}

// CheckBalance returns the current balance of the account.
func (s *Store) CheckBalance(ref Ref, id int) (int64, error) {
	start := time.Now()
	o := newOutcome(ref, OpCheckBalance, id, id, 0)

	acct, ok := s.lookup(id)
	if !ok {
		o.Err = ErrInvalidAccount
	} else {
		acct.mu.RLock()
		o.Balance = acct.balance
		acct.mu.RUnlock()
	}

	return o.Balance, s.finish(o, start)
}

// Apply dispatches an entry to the matching operation.
func (s *Store) Apply(ref Ref, e Entry) error {
	switch e.Op {
	case OpDeposit:
		return s.Deposit(ref, e.From, e.Amount)
	case OpWithdraw:
		return s.Withdraw(ref, e.From, e.Amount)
	case OpTransfer:
		return s.Transfer(ref, e.From, e.To, e.Amount)
	case OpCheckBalance:
		_, err := s.CheckBalance(ref, e.From)
		return err
	default:
		o := newOutcome(ref, e.Op, e.From, e.To, e.Amount)
		o.Err = ErrUnknownOperation
		return s.finish(o, time.Now())
	}
}

// reject counts and records an entry that never reached an account operation.
func (s *Store) reject(ref Ref, e Entry, err error) error {
	o := newOutcome(ref, e.Op, e.From, e.To, e.Amount)
	o.Err = err
	o.Stage = StageDispatch
	return s.finish(o, time.Now())
}

// Snapshot reads every account under its own lock, one after another, and the
// counters under the counter lock.
func (s *Store) Snapshot() Snapshot {
	snap := Snapshot{
		Accounts: make([]Account, len(s.accounts)),
		TakenAt:  time.Now(),
	}
	for i, a := range s.accounts {
		a.mu.RLock()
		snap.Accounts[i] = Account{ID: a.id, Balance: a.balance}
		a.mu.RUnlock()
	}
	snap.Succeeded, snap.Failed = s.Counts()
	return snap
}

// Counts returns the succeeded and failed counters.
func (s *Store) Counts() (succeeded, failed int64) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.succeeded, s.failed
}

// finish updates the counters and emits the outcome. Callers must not hold any
// account lock.
func (s *Store) finish(o Outcome, start time.Time) error {
	o.Duration = time.Since(start)

	s.statsMu.Lock()
	if o.Err == nil {
		s.succeeded++
	} else {
		s.failed++
	}
	s.statsMu.Unlock()

	s.recorder.Record(o)
	return o.Err
}

func newOutcome(ref Ref, op Operation, from, to int, amount int64) Outcome {
	return Outcome{
		WorkerID: ref.WorkerID,
		LedgerID: ref.LedgerID,
		Op:       op,
		From:     from,
		To:       to,
		Amount:   amount,
		Stage:    StageStore,
	}
}
