package chat

import (
	"errors"
	"testing"

	"chatledger/pkg/amount"
	"chatledger/pkg/costmodel"
	"chatledger/pkg/store"
)

// fakeEnv is a deterministic Env: a fixed clock and an in-memory transfer
// log. onTransfer, when set, runs inside Transfer so tests can observe
// service state at settlement time.
type fakeEnv struct {
	now        int64
	transfers  []amount.Amount
	onTransfer func(to string, amt amount.Amount)
	failWith   error
}

func (e *fakeEnv) Now() int64 { return e.now }

func (e *fakeEnv) Transfer(to string, amt amount.Amount) error {
	if e.failWith != nil {
		return e.failWith
	}
	if e.onTransfer != nil {
		e.onTransfer(to, amt)
	}
	e.transfers = append(e.transfers, amt)
	return nil
}

func newTestService(t *testing.T) (*Service, *fakeEnv) {
	t.Helper()
	s, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	env := &fakeEnv{now: 1_700_000_000_000_000_000}
	return New(s, costmodel.New(amount.FromUint64(100)), env), env
}

func fund(t *testing.T, svc *Service, account string, v uint64) {
	t.Helper()
	if err := svc.DepositStorage(account, amount.FromUint64(v)); err != nil {
		t.Fatalf("DepositStorage: %v", err)
	}
}

func TestDepositStorage(t *testing.T) {
	svc, _ := newTestService(t)
	fund(t, svc, "alice", 1000)
	fund(t, svc, "alice", 500)

	bal, err := svc.GetStorageBalance("alice")
	if err != nil || bal.String() != "1500" {
		t.Fatalf("balance = %s, %v", bal.String(), err)
	}
}

func TestDepositStorageRejectsZero(t *testing.T) {
	svc, _ := newTestService(t)
	if err := svc.DepositStorage("alice", amount.Zero()); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero deposit: %v", err)
	}
	if err := svc.DepositStorage("", amount.FromUint64(1)); !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("empty account deposit: %v", err)
	}
}

func TestAddMessageDebitsExactCost(t *testing.T) {
	svc, _ := newTestService(t)
	fund(t, svc, "alice", 1_000_000)

	cost := svc.PreviewStorageCost("alice", "hello")
	m, err := svc.AddMessage("alice", "hello")
	if err != nil {
		t.Fatalf("AddMessage: %v", err)
	}
	if m.Seq != 1 {
		t.Fatalf("seq = %d", m.Seq)
	}
	if m.StoragePaid.Cmp(cost) != 0 {
		t.Fatalf("paid %s, preview said %s", m.StoragePaid.String(), cost.String())
	}
	if m.TS != 1_700_000_000_000_000_000 {
		t.Fatalf("timestamp not from env: %d", m.TS)
	}

	bal, _ := svc.GetStorageBalance("alice")
	want := amount.FromUint64(1_000_000).Sub(cost)
	if bal.Cmp(want) != 0 {
		t.Fatalf("balance = %s, want %s", bal.String(), want.String())
	}
}

func TestAddMessageInsufficientBalanceIsAtomic(t *testing.T) {
	svc, _ := newTestService(t)
	fund(t, svc, "alice", 1)

	_, err := svc.AddMessage("alice", "this will not fit")
	if !errors.Is(err, ErrInsufficientStorageBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}

	// neither the message nor the debit happened
	if bal, _ := svc.GetStorageBalance("alice"); bal.String() != "1" {
		t.Fatalf("balance touched: %s", bal.String())
	}
	if n, _ := svc.TotalMessages(); n != 0 {
		t.Fatalf("message stored despite rejection: %d", n)
	}
	if posted, _ := svc.IsChatter("alice"); posted {
		t.Fatalf("chatter flag set despite rejection")
	}
}

func TestAddMessageValidation(t *testing.T) {
	svc, _ := newTestService(t)
	fund(t, svc, "alice", 1_000_000)

	if _, err := svc.AddMessage("alice", ""); !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("empty body: %v", err)
	}
	if _, err := svc.AddMessage("", "hello"); !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("empty account: %v", err)
	}
}

func TestAuthorIndexNotAliasable(t *testing.T) {
	svc, _ := newTestService(t)
	fund(t, svc, "alice", 1_000_000)

	if _, err := svc.AddMessage("alice", "hi"); err != nil {
		t.Fatalf("AddMessage: %v", err)
	}

	// an account id shaped like another author's index range must be
	// rejected at every entry point
	crafted := "alice:msg:00000000000000000001"
	if _, err := svc.AddMessage(crafted, "from evil"); !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("crafted account posted: %v", err)
	}
	if err := svc.DepositStorage(crafted, amount.FromUint64(1)); !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("crafted account deposited: %v", err)
	}
	if _, err := svc.WithdrawRemainStorage(crafted, nil); !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("crafted account withdrew: %v", err)
	}

	msgs, err := svc.GetMessagesByUser("alice")
	if err != nil {
		t.Fatalf("GetMessagesByUser: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Body != "hi" {
		t.Fatalf("alice's index polluted: %+v", msgs)
	}
}

func TestWithdrawFull(t *testing.T) {
	svc, env := newTestService(t)
	fund(t, svc, "alice", 1000)

	taken, err := svc.WithdrawRemainStorage("alice", nil)
	if err != nil || taken.String() != "1000" {
		t.Fatalf("withdraw: %s, %v", taken.String(), err)
	}
	if len(env.transfers) != 1 || env.transfers[0].String() != "1000" {
		t.Fatalf("transfers: %v", env.transfers)
	}

	// a second full withdrawal finds nothing and transfers nothing
	taken, err = svc.WithdrawRemainStorage("alice", nil)
	if err != nil || !taken.IsZero() {
		t.Fatalf("second withdraw: %s, %v", taken.String(), err)
	}
	if len(env.transfers) != 1 {
		t.Fatalf("zero withdrawal issued a transfer")
	}
}

func TestWithdrawPartial(t *testing.T) {
	svc, env := newTestService(t)
	fund(t, svc, "alice", 1000)

	part := amount.FromUint64(400)
	taken, err := svc.WithdrawRemainStorage("alice", &part)
	if err != nil || taken.String() != "400" {
		t.Fatalf("partial withdraw: %s, %v", taken.String(), err)
	}
	if bal, _ := svc.GetStorageBalance("alice"); bal.String() != "600" {
		t.Fatalf("balance = %s", bal.String())
	}
	if len(env.transfers) != 1 {
		t.Fatalf("transfers: %v", env.transfers)
	}

	over := amount.FromUint64(601)
	if _, err := svc.WithdrawRemainStorage("alice", &over); !errors.Is(err, ErrInsufficientStorageBalance) {
		t.Fatalf("over withdraw: %v", err)
	}
	if len(env.transfers) != 1 {
		t.Fatalf("rejected withdrawal issued a transfer")
	}
}

// The balance must already be reduced and the lock released by the time
// the outbound transfer runs, so a reentrant caller cannot take the same
// funds twice.
func TestWithdrawCommitsBeforeTransfer(t *testing.T) {
	svc, env := newTestService(t)
	fund(t, svc, "alice", 1000)

	var observed amount.Amount
	var second amount.Amount
	env.onTransfer = func(to string, amt amount.Amount) {
		bal, err := svc.GetStorageBalance(to)
		if err != nil {
			panic(err)
		}
		observed = bal
		// reentrant withdrawal attempt while the first is still settling
		env.onTransfer = nil
		taken, err := svc.WithdrawRemainStorage(to, nil)
		if err != nil {
			panic(err)
		}
		second = taken
	}

	taken, err := svc.WithdrawRemainStorage("alice", nil)
	if err != nil || taken.String() != "1000" {
		t.Fatalf("withdraw: %s, %v", taken.String(), err)
	}
	if !observed.IsZero() {
		t.Fatalf("transfer saw stale balance %s", observed.String())
	}
	if !second.IsZero() {
		t.Fatalf("reentrant withdrawal took %s", second.String())
	}
}

func TestWithdrawTransferFailureSurfaces(t *testing.T) {
	svc, env := newTestService(t)
	fund(t, svc, "alice", 1000)
	env.failWith = errors.New("host transfer refused")

	taken, err := svc.WithdrawRemainStorage("alice", nil)
	if err == nil {
		t.Fatalf("expected transfer failure to surface")
	}
	// the debit is already durable: the error carries the taken amount
	if taken.String() != "1000" {
		t.Fatalf("taken = %s", taken.String())
	}
	if bal, _ := svc.GetStorageBalance("alice"); !bal.IsZero() {
		t.Fatalf("balance restored after commit: %s", bal.String())
	}
}

func TestViewsAreReadOnly(t *testing.T) {
	svc, _ := newTestService(t)
	fund(t, svc, "alice", 1_000_000)
	if _, err := svc.AddMessage("alice", "hello"); err != nil {
		t.Fatalf("AddMessage: %v", err)
	}

	before, _ := svc.GetStorageBalance("alice")
	for i := 0; i < 3; i++ {
		svc.PreviewStorageCost("alice", "hello")
		svc.GetMinStorageCost()
		if _, err := svc.GetMessages(); err != nil {
			t.Fatalf("GetMessages: %v", err)
		}
		if _, err := svc.GetMessagesByUser("alice"); err != nil {
			t.Fatalf("GetMessagesByUser: %v", err)
		}
	}
	after, _ := svc.GetStorageBalance("alice")
	if before.Cmp(after) != 0 {
		t.Fatalf("views changed the balance: %s -> %s", before.String(), after.String())
	}
	if n, _ := svc.TotalMessages(); n != 1 {
		t.Fatalf("views changed the message count: %d", n)
	}
}

func TestGetMessage(t *testing.T) {
	svc, _ := newTestService(t)
	fund(t, svc, "alice", 1_000_000)
	stored, err := svc.AddMessage("alice", "hello")
	if err != nil {
		t.Fatalf("AddMessage: %v", err)
	}
	got, err := svc.GetMessage(stored.Seq)
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if got.Body != "hello" || got.Account != "alice" {
		t.Fatalf("wrong message: %v", got)
	}
	if _, err := svc.GetMessage(999); err == nil {
		t.Fatalf("missing seq should error")
	}
}

func TestStatsAndHealth(t *testing.T) {
	svc, _ := newTestService(t)
	fund(t, svc, "alice", 1_000_000)
	fund(t, svc, "bob", 1_000_000)
	_, _ = svc.AddMessage("alice", "one")
	_, _ = svc.AddMessage("alice", "two")
	_, _ = svc.AddMessage("bob", "three")

	if n, _ := svc.TotalMessages(); n != 3 {
		t.Fatalf("TotalMessages = %d", n)
	}
	if n, _ := svc.CountChatter(); n != 2 {
		t.Fatalf("CountChatter = %d", n)
	}
	h := svc.HealthCheck()
	if h.Status != "ok" || h.TotalMessages != 3 || h.Chatters != 2 {
		t.Fatalf("health: %+v", h)
	}
}
