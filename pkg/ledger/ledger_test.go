package ledger

import (
	"testing"

	"github.com/cockroachdb/pebble"

	"chatledger/pkg/amount"
	"chatledger/pkg/store"
)

func openBacking(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func commit(t *testing.T, s *store.Store, b *pebble.Batch) {
	t.Helper()
	if err := s.CommitBatch(b); err != nil {
		t.Fatalf("CommitBatch: %v", err)
	}
}

func TestDepositAccumulates(t *testing.T) {
	s := openBacking(t)
	l := New(s)

	b, _ := s.NewBatch()
	if err := l.Deposit(b, "alice", amount.FromUint64(100)); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	commit(t, s, b)

	b2, _ := s.NewBatch()
	if err := l.Deposit(b2, "alice", amount.FromUint64(50)); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	commit(t, s, b2)

	bal, err := l.BalanceOf("alice")
	if err != nil || bal.String() != "150" {
		t.Fatalf("balance = %s, %v", bal.String(), err)
	}
}

func TestDepositRejectsZero(t *testing.T) {
	s := openBacking(t)
	l := New(s)
	b, _ := s.NewBatch()
	defer b.Close()
	if err := l.Deposit(b, "alice", amount.Zero()); err != ErrInvalidAmount {
		t.Fatalf("zero deposit: %v", err)
	}
}

func TestTryDebit(t *testing.T) {
	s := openBacking(t)
	l := New(s)

	b, _ := s.NewBatch()
	_ = l.Deposit(b, "alice", amount.FromUint64(100))
	commit(t, s, b)

	// over-balance debit stages nothing and returns false
	b2, _ := s.NewBatch()
	ok, err := l.TryDebit(b2, "alice", amount.FromUint64(101))
	if err != nil || ok {
		t.Fatalf("over-balance debit: ok=%v err=%v", ok, err)
	}
	b2.Close()
	if bal, _ := l.BalanceOf("alice"); bal.String() != "100" {
		t.Fatalf("balance changed after rejected debit: %s", bal.String())
	}

	// exact-balance debit succeeds and drains the account
	b3, _ := s.NewBatch()
	ok, err = l.TryDebit(b3, "alice", amount.FromUint64(100))
	if err != nil || !ok {
		t.Fatalf("exact debit: ok=%v err=%v", ok, err)
	}
	commit(t, s, b3)
	if bal, _ := l.BalanceOf("alice"); !bal.IsZero() {
		t.Fatalf("balance after exact debit: %s", bal.String())
	}
}

func TestWithdrawFullAndPartial(t *testing.T) {
	s := openBacking(t)
	l := New(s)

	b, _ := s.NewBatch()
	_ = l.Deposit(b, "alice", amount.FromUint64(100))
	commit(t, s, b)

	part := amount.FromUint64(30)
	b2, _ := s.NewBatch()
	taken, err := l.Withdraw(b2, "alice", &part)
	if err != nil || taken.String() != "30" {
		t.Fatalf("partial withdraw: %s, %v", taken.String(), err)
	}
	commit(t, s, b2)

	// nil requested takes the remainder
	b3, _ := s.NewBatch()
	taken, err = l.Withdraw(b3, "alice", nil)
	if err != nil || taken.String() != "70" {
		t.Fatalf("full withdraw: %s, %v", taken.String(), err)
	}
	commit(t, s, b3)

	// the entry survives at zero, distinguishing it from never-deposited
	bal, exists, err := s.GetBalance("alice")
	if err != nil || !exists || !bal.IsZero() {
		t.Fatalf("drained entry: exists=%v bal=%s err=%v", exists, bal.String(), err)
	}
}

func TestWithdrawFullFromEmptyIsZero(t *testing.T) {
	s := openBacking(t)
	l := New(s)
	b, _ := s.NewBatch()
	taken, err := l.Withdraw(b, "ghost", nil)
	if err != nil || !taken.IsZero() {
		t.Fatalf("empty full withdraw: %s, %v", taken.String(), err)
	}
	commit(t, s, b)

	// no ledger entry materializes for an account that never deposited
	if _, exists, err := s.GetBalance("ghost"); err != nil || exists {
		t.Fatalf("entry created for never-deposited account (exists=%v, err=%v)", exists, err)
	}
}

func TestWithdrawRejections(t *testing.T) {
	s := openBacking(t)
	l := New(s)

	b, _ := s.NewBatch()
	_ = l.Deposit(b, "alice", amount.FromUint64(10))
	commit(t, s, b)

	zero := amount.Zero()
	b2, _ := s.NewBatch()
	defer b2.Close()
	if _, err := l.Withdraw(b2, "alice", &zero); err != ErrInvalidAmount {
		t.Fatalf("zero withdraw: %v", err)
	}

	over := amount.FromUint64(11)
	if _, err := l.Withdraw(b2, "alice", &over); err != ErrInsufficientBalance {
		t.Fatalf("over withdraw: %v", err)
	}
	if bal, _ := l.BalanceOf("alice"); bal.String() != "10" {
		t.Fatalf("balance changed after rejections: %s", bal.String())
	}
}

func TestTotalBalances(t *testing.T) {
	s := openBacking(t)
	l := New(s)

	b, _ := s.NewBatch()
	_ = l.Deposit(b, "alice", amount.FromUint64(100))
	_ = l.Deposit(b, "bob", amount.FromUint64(250))
	commit(t, s, b)

	total, err := l.TotalBalances()
	if err != nil || total.String() != "350" {
		t.Fatalf("TotalBalances = %s, %v", total.String(), err)
	}
}
