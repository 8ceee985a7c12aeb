package engine

import (
	"errors"
	"math"
	"math/rand"
	"sync"
	"testing"
	"time"
)

var testRef = Ref{WorkerID: 0, LedgerID: 0}

func balanceOf(t *testing.T, s *Store, id int) int64 {
	t.Helper()
	bal, err := s.CheckBalance(testRef, id)
	if err != nil {
		t.Fatalf("CheckBalance(%d) failed: %v", id, err)
	}
	return bal
}

func TestNewStore(t *testing.T) {
	s := NewStore(5)
	if s.Len() != 5 {
		t.Fatalf("Expected 5 accounts, got %d", s.Len())
	}

	snap := s.Snapshot()
	for i, a := range snap.Accounts {
		if a.ID != i {
			t.Errorf("Expected account id %d, got %d", i, a.ID)
		}
		if a.Balance != 0 {
			t.Errorf("Expected zero balance for account %d, got %d", i, a.Balance)
		}
	}
	if snap.Succeeded != 0 || snap.Failed != 0 {
		t.Errorf("Expected empty counters, got %d/%d", snap.Succeeded, snap.Failed)
	}
}

func TestStoreInitialBalance(t *testing.T) {
	s := NewStore(3, WithInitialBalance(250))
	if total := s.Snapshot().Total(); total != 750 {
		t.Errorf("Expected total 750, got %d", total)
	}
}

func TestStoreEndToEndExample(t *testing.T) {
	s := NewStore(5)

	if err := s.Deposit(testRef, 0, 300); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}
	if got := s.Snapshot().Accounts[0].Balance; got != 300 {
		t.Errorf("Expected balance[0]=300, got %d", got)
	}

	if err := s.Withdraw(testRef, 0, 200); err != nil {
		t.Fatalf("withdraw failed: %v", err)
	}
	if got := s.Snapshot().Accounts[0].Balance; got != 100 {
		t.Errorf("Expected balance[0]=100, got %d", got)
	}

	if err := s.Withdraw(testRef, 0, 200); !errors.Is(err, ErrInsufficientFunds) {
		t.Errorf("Expected ErrInsufficientFunds, got %v", err)
	}
	if got := s.Snapshot().Accounts[0].Balance; got != 100 {
		t.Errorf("Expected balance[0]=100 after rejected withdraw, got %d", got)
	}
	if _, failed := s.Counts(); failed != 1 {
		t.Errorf("Expected 1 failure, got %d", failed)
	}

	if err := s.Deposit(testRef, 1, 500); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}
	if err := s.Transfer(testRef, 1, 0, 300); err != nil {
		t.Fatalf("transfer failed: %v", err)
	}

	snap := s.Snapshot()
	if snap.Accounts[0].Balance != 400 {
		t.Errorf("Expected balance[0]=400, got %d", snap.Accounts[0].Balance)
	}
	if snap.Accounts[1].Balance != 200 {
		t.Errorf("Expected balance[1]=200, got %d", snap.Accounts[1].Balance)
	}

	if bal := balanceOf(t, s, 1); bal != 200 {
		t.Errorf("Expected check_balance(1)=200, got %d", bal)
	}

	succeeded, failed := s.Counts()
	if succeeded != 5 || failed != 1 {
		t.Errorf("Expected 5 succeeded / 1 failed, got %d / %d", succeeded, failed)
	}
}

func TestStoreInvalidAccount(t *testing.T) {
	s := NewStore(5, WithInitialBalance(10))

	ops := []struct {
		name string
		run  func() error
	}{
		{"deposit", func() error { return s.Deposit(testRef, 99, 1) }},
		{"withdraw", func() error { return s.Withdraw(testRef, 99, 1) }},
		{"transfer-src", func() error { return s.Transfer(testRef, 99, 0, 1) }},
		{"transfer-dst", func() error { return s.Transfer(testRef, 0, 99, 1) }},
		{"check", func() error { _, err := s.CheckBalance(testRef, 99); return err }},
		{"negative", func() error { return s.Deposit(testRef, -1, 1) }},
	}

	for _, op := range ops {
		if err := op.run(); !errors.Is(err, ErrInvalidAccount) {
			t.Errorf("%s: expected ErrInvalidAccount, got %v", op.name, err)
		}
	}

	snap := s.Snapshot()
	for _, a := range snap.Accounts {
		if a.Balance != 10 {
			t.Errorf("Account %d changed to %d", a.ID, a.Balance)
		}
	}
	if snap.Failed != int64(len(ops)) {
		t.Errorf("Expected %d failures, got %d", len(ops), snap.Failed)
	}
	if snap.Succeeded != 0 {
		t.Errorf("Expected no successes, got %d", snap.Succeeded)
	}
}

func TestStoreSelfTransfer(t *testing.T) {
	s := NewStore(2, WithInitialBalance(100))

	if err := s.Transfer(testRef, 1, 1, 10); !errors.Is(err, ErrSelfTransfer) {
		t.Errorf("Expected ErrSelfTransfer, got %v", err)
	}
	if bal := s.Snapshot().Accounts[1].Balance; bal != 100 {
		t.Errorf("Expected balance unchanged at 100, got %d", bal)
	}
}

func TestStoreSelfTransferTakesNoLock(t *testing.T) {
	s := NewStore(2)

	// Hold the account lock; a self transfer must still return immediately.
	s.accounts[1].mu.Lock()
	defer s.accounts[1].mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- s.Transfer(testRef, 1, 1, 10) }()

	select {
	case err := <-done:
		if !errors.Is(err, ErrSelfTransfer) {
			t.Errorf("Expected ErrSelfTransfer, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("self transfer blocked on the account lock")
	}
}

func TestStoreNegativeAmount(t *testing.T) {
	s := NewStore(2, WithInitialBalance(50))

	if err := s.Deposit(testRef, 0, -5); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("Expected ErrInvalidAmount, got %v", err)
	}
	if err := s.Withdraw(testRef, 0, -5); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("Expected ErrInvalidAmount, got %v", err)
	}
	if err := s.Transfer(testRef, 0, 1, -5); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("Expected ErrInvalidAmount, got %v", err)
	}
	if total := s.Snapshot().Total(); total != 100 {
		t.Errorf("Expected total 100, got %d", total)
	}
}

func TestStoreTransferInsufficientLeavesBothUnchanged(t *testing.T) {
	s := NewStore(2)
	_ = s.Deposit(testRef, 0, 50)
	_ = s.Deposit(testRef, 1, 70)

	if err := s.Transfer(testRef, 0, 1, 51); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("Expected ErrInsufficientFunds, got %v", err)
	}

	snap := s.Snapshot()
	if snap.Accounts[0].Balance != 50 || snap.Accounts[1].Balance != 70 {
		t.Errorf("Expected balances 50/70, got %d/%d", snap.Accounts[0].Balance, snap.Accounts[1].Balance)
	}
}

func TestStoreDepositOverflow(t *testing.T) {
	s := NewStore(1)
	_ = s.Deposit(testRef, 0, 1)

	if err := s.Deposit(testRef, 0, math.MaxInt64); !errors.Is(err, ErrBalanceOverflow) {
		t.Fatalf("Expected ErrBalanceOverflow, got %v", err)
	}
	if bal := balanceOf(t, s, 0); bal != 1 {
		t.Errorf("Expected balance 1, got %d", bal)
	}

	// The largest credit that still fits is accepted.
	if err := s.Deposit(testRef, 0, math.MaxInt64-1); err != nil {
		t.Fatalf("Expected deposit up to MaxInt64 to succeed, got %v", err)
	}
	if bal := balanceOf(t, s, 0); bal != math.MaxInt64 {
		t.Errorf("Expected balance MaxInt64, got %d", bal)
	}

	succeeded, failed := s.Counts()
	if succeeded != 4 || failed != 1 {
		t.Errorf("Expected 4 succeeded / 1 failed, got %d/%d", succeeded, failed)
	}
}

func TestStoreTransferOverflowLeavesBothUnchanged(t *testing.T) {
	s := NewStore(2)
	_ = s.Deposit(testRef, 0, math.MaxInt64)
	_ = s.Deposit(testRef, 1, 1)

	if err := s.Transfer(testRef, 1, 0, 1); !errors.Is(err, ErrBalanceOverflow) {
		t.Fatalf("Expected ErrBalanceOverflow, got %v", err)
	}

	snap := s.Snapshot()
	if snap.Accounts[0].Balance != math.MaxInt64 || snap.Accounts[1].Balance != 1 {
		t.Errorf("Expected balances MaxInt64/1, got %d/%d", snap.Accounts[0].Balance, snap.Accounts[1].Balance)
	}
	if snap.Failed != 1 {
		t.Errorf("Expected 1 failed operation, got %d", snap.Failed)
	}
}

func TestStoreSerialArithmetic(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	s := NewStore(1)

	var expected int64
	for i := 0; i < 1000; i++ {
		amount := rng.Int63n(100)
		before := s.Snapshot().Accounts[0].Balance
		if rng.Intn(2) == 0 {
			if err := s.Deposit(testRef, 0, amount); err != nil {
				t.Fatalf("deposit failed: %v", err)
			}
			expected += amount
			continue
		}
		err := s.Withdraw(testRef, 0, amount)
		switch {
		case err == nil:
			expected -= amount
		case errors.Is(err, ErrInsufficientFunds):
			if after := s.Snapshot().Accounts[0].Balance; after != before {
				t.Fatalf("rejected withdraw changed balance %d -> %d", before, after)
			}
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if got := s.Snapshot().Accounts[0].Balance; got != expected {
		t.Errorf("Expected balance %d, got %d", expected, got)
	}
}

func TestStoreApplyDispatch(t *testing.T) {
	s := NewStore(3)

	entries := []Entry{
		{LedgerID: 0, Op: OpDeposit, From: 0, Amount: 100},
		{LedgerID: 1, Op: OpTransfer, From: 0, To: 2, Amount: 40},
		{LedgerID: 2, Op: OpWithdraw, From: 2, Amount: 15},
		{LedgerID: 3, Op: OpCheckBalance, From: 2},
	}
	for _, e := range entries {
		if err := s.Apply(Ref{LedgerID: e.LedgerID}, e); err != nil {
			t.Fatalf("Apply(%d) failed: %v", e.LedgerID, err)
		}
	}

	if err := s.Apply(testRef, Entry{Op: Operation(42)}); !errors.Is(err, ErrUnknownOperation) {
		t.Errorf("Expected ErrUnknownOperation, got %v", err)
	}

	snap := s.Snapshot()
	if snap.Accounts[0].Balance != 60 || snap.Accounts[2].Balance != 25 {
		t.Errorf("Expected balances 60/_/25, got %+v", snap.Accounts)
	}
	if snap.Succeeded != 4 || snap.Failed != 1 {
		t.Errorf("Expected 4/1, got %d/%d", snap.Succeeded, snap.Failed)
	}
}

func TestStoreRecordsOneOutcomePerOperation(t *testing.T) {
	var mu sync.Mutex
	var got []Outcome
	s := NewStore(2, WithRecorder(RecorderFunc(func(o Outcome) {
		mu.Lock()
		got = append(got, o)
		mu.Unlock()
	})))

	_ = s.Deposit(Ref{WorkerID: 3, LedgerID: 9}, 0, 30)
	_ = s.Withdraw(Ref{WorkerID: 4, LedgerID: 10}, 0, 31)
	_, _ = s.CheckBalance(Ref{WorkerID: 5, LedgerID: 11}, 0)

	if len(got) != 3 {
		t.Fatalf("Expected 3 outcomes, got %d", len(got))
	}
	if got[0].WorkerID != 3 || got[0].LedgerID != 9 || !got[0].Succeeded() || got[0].Balance != 30 {
		t.Errorf("Unexpected deposit outcome: %+v", got[0])
	}
	if got[1].Succeeded() || !errors.Is(got[1].Err, ErrInsufficientFunds) || got[1].Amount != 31 {
		t.Errorf("Unexpected withdraw outcome: %+v", got[1])
	}
	if got[2].Op != OpCheckBalance || got[2].Balance != 30 {
		t.Errorf("Unexpected check outcome: %+v", got[2])
	}
}

func TestStoreRecorderRunsOutsideAccountLocks(t *testing.T) {
	var s *Store
	s = NewStore(2, WithRecorder(RecorderFunc(func(o Outcome) {
		// Re-entering the store would deadlock if the account lock were still held.
		if o.Op == OpDeposit {
			_, _ = s.CheckBalance(testRef, o.From)
		}
	})))

	done := make(chan struct{})
	go func() {
		_ = s.Deposit(testRef, 0, 1)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("recorder was called while the account lock was held")
	}
}

func TestStoreConcurrentDeposits(t *testing.T) {
	s := NewStore(1)

	const workers = 100
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			if err := s.Deposit(testRef, 0, 1); err != nil {
				t.Errorf("deposit err: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := s.Snapshot().Accounts[0].Balance; got != workers {
		t.Errorf("Expected balance %d, got %d", workers, got)
	}
}

func TestStoreReversedPairTransfers(t *testing.T) {
	s := NewStore(2, WithInitialBalance(1000))

	const n = 500
	var wg sync.WaitGroup
	wg.Add(2 * n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_ = s.Transfer(testRef, 0, 1, 1)
		}()
		go func() {
			defer wg.Done()
			_ = s.Transfer(testRef, 1, 0, 1)
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("reversed-pair transfers did not reach quiescence")
	}

	snap := s.Snapshot()
	if snap.Total() != 2000 {
		t.Errorf("Expected total 2000, got %d", snap.Total())
	}
	for _, a := range snap.Accounts {
		if a.Balance < 0 {
			t.Errorf("Account %d went negative: %d", a.ID, a.Balance)
		}
	}
	if snap.Succeeded+snap.Failed != 2*n {
		t.Errorf("Expected %d counted operations, got %d", 2*n, snap.Succeeded+snap.Failed)
	}
}

func TestStoreRandomTransferStress(t *testing.T) {
	const (
		accounts  = 8
		goroutine = 32
		perWorker = 2000
		initial   = 100
	)
	s := NewStore(accounts, WithInitialBalance(initial))

	var wg sync.WaitGroup
	wg.Add(goroutine)
	for g := 0; g < goroutine; g++ {
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for i := 0; i < perWorker; i++ {
				src, dst := rng.Intn(accounts), rng.Intn(accounts)
				_ = s.Transfer(Ref{WorkerID: int(seed)}, src, dst, rng.Int63n(initial))
			}
		}(int64(g))
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		t.Fatal("transfer stress deadlocked")
	}

	snap := s.Snapshot()
	if snap.Total() != accounts*initial {
		t.Errorf("Expected conserved total %d, got %d", accounts*initial, snap.Total())
	}
	for _, a := range snap.Accounts {
		if a.Balance < 0 {
			t.Errorf("Account %d went negative: %d", a.ID, a.Balance)
		}
	}
	if snap.Succeeded+snap.Failed != goroutine*perWorker {
		t.Errorf("Expected %d counted operations, got %d", goroutine*perWorker, snap.Succeeded+snap.Failed)
	}
}

func TestStoreTransferAtomicUnderReads(t *testing.T) {
	s := NewStore(2, WithInitialBalance(500))
	stop := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				_ = s.Transfer(testRef, 0, 1, 7)
				_ = s.Transfer(testRef, 1, 0, 7)
			}
		}
	}()

	// A pair lock taken by the reader sees both sides of a transfer or neither.
	for i := 0; i < 2000; i++ {
		unlock := lockPair(s.accounts[1], s.accounts[0])
		total := s.accounts[0].balance + s.accounts[1].balance
		unlock()
		if total != 1000 {
			close(stop)
			wg.Wait()
			t.Fatalf("observed partial transfer: total=%d", total)
		}
	}
	close(stop)
	wg.Wait()
}

func TestLockPairOrdersByID(t *testing.T) {
	a, b := &account{id: 4}, &account{id: 1}

	unlock := lockPair(a, b)
	if b.mu.TryLock() {
		t.Error("Expected lower id account to be locked")
	}
	if a.mu.TryLock() {
		t.Error("Expected higher id account to be locked")
	}
	unlock()

	if !a.mu.TryLock() || !b.mu.TryLock() {
		t.Fatal("Expected both accounts to be released")
	}
	a.mu.Unlock()
	b.mu.Unlock()
}
