// Package chat composes the cost model, the ledger, and the message store
// into the public operation surface. Every mutating operation runs as one
// atomic unit: all writes stage into a single store batch and commit
// together, or not at all. Mutations are serialized; operations that
// combine a balance mutation with an outbound transfer always commit the
// mutation first (mutate-then-transfer), so a reentrant call triggered by
// the transfer observes the already-reduced balance.
package chat

import (
	"fmt"
	"sync"

	"chatledger/pkg/amount"
	"chatledger/pkg/costmodel"
	"chatledger/pkg/ledger"
	"chatledger/pkg/logger"
	"chatledger/pkg/models"
	"chatledger/pkg/store"
	"chatledger/pkg/telemetry"
	"chatledger/pkg/validation"
)

// Service owns all mutable state. No package globals: callers hold the
// one Service for the process.
type Service struct {
	mu     sync.Mutex
	model  costmodel.Model
	ledger *ledger.Ledger
	store  *store.Store
	env    Env
}

// New builds a Service over the given store and host environment.
func New(s *store.Store, model costmodel.Model, env Env) *Service {
	return &Service{
		model:  model,
		ledger: ledger.New(s),
		store:  s,
		env:    env,
	}
}

// Ledger exposes the underlying ledger for the auditor.
func (s *Service) Ledger() *ledger.Ledger { return s.ledger }

// CostModel exposes the pricing model for the auditor.
func (s *Service) CostModel() costmodel.Model { return s.model }

// DepositStorage credits the caller's balance with the attached value.
// The credited amount equals exactly the value received; nothing is
// created or destroyed.
func (s *Service) DepositStorage(caller string, attached amount.Amount) error {
	if err := validation.ValidateAccount(caller); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if attached.IsZero() {
		telemetry.RejectedTotal.WithLabelValues("invalid_amount").Inc()
		return ErrInvalidAmount
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := s.store.NewBatch()
	if err != nil {
		return err
	}
	defer b.Close()
	if err := s.ledger.Deposit(b, caller, attached); err != nil {
		return err
	}
	if err := s.store.CommitBatch(b); err != nil {
		return err
	}
	telemetry.DepositsTotal.Inc()
	return nil
}

// AddMessage charges the caller the exact storage cost of the message and
// stores it. The debit and the append commit as one unit: there is no
// state where a message exists unpaid, nor a debit without its message.
func (s *Service) AddMessage(caller, body string) (models.Message, error) {
	if err := validation.ValidateAccount(caller); err != nil {
		return models.Message{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if err := validation.ValidateBody(body); err != nil {
		telemetry.RejectedTotal.WithLabelValues("invalid_message").Inc()
		return models.Message{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	cost := s.model.RequiredPayment(caller, body)

	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := s.store.NewBatch()
	if err != nil {
		return models.Message{}, err
	}
	defer b.Close()

	ok, err := s.ledger.TryDebit(b, caller, cost)
	if err != nil {
		return models.Message{}, err
	}
	if !ok {
		telemetry.RejectedTotal.WithLabelValues("insufficient_balance").Inc()
		return models.Message{}, ErrInsufficientStorageBalance
	}

	m := models.Message{
		Account:     caller,
		Body:        body,
		TS:          s.env.Now(),
		StoragePaid: cost,
	}
	seq, err := s.store.AppendMessage(b, m)
	if err != nil {
		return models.Message{}, err
	}
	if err := s.store.CommitBatch(b); err != nil {
		return models.Message{}, err
	}
	m.Seq = seq
	telemetry.MessagesTotal.Inc()
	logger.Info("message_stored", "account", caller, "seq", seq, "paid", cost.String())
	return m, nil
}

// WithdrawRemainStorage debits the caller's balance and then issues the
// external transfer. A nil requested amount withdraws everything. The
// balance decrement commits before Transfer runs and the mutex is
// released first, so a reentrant call cannot withdraw the same funds
// twice.
func (s *Service) WithdrawRemainStorage(caller string, requested *amount.Amount) (amount.Amount, error) {
	if err := validation.ValidateAccount(caller); err != nil {
		return amount.Zero(), fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	taken, err := s.withdrawCommitted(caller, requested)
	if err != nil {
		telemetry.RejectedTotal.WithLabelValues("withdraw_rejected").Inc()
		return amount.Zero(), err
	}
	if !taken.IsZero() {
		// The balance is already reduced; a transfer failure here is the
		// fatal host-side inconsistency the execution model rules out.
		if err := s.env.Transfer(caller, taken); err != nil {
			logger.Error("withdraw_transfer_failed", "account", caller, "amount", taken.String(), "error", err)
			return taken, fmt.Errorf("transfer after withdrawal of %s failed: %w", taken.String(), err)
		}
	}
	telemetry.WithdrawalsTotal.Inc()
	return taken, nil
}

// withdrawCommitted performs the balance mutation under the mutex and
// commits it durably before returning.
func (s *Service) withdrawCommitted(caller string, requested *amount.Amount) (amount.Amount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := s.store.NewBatch()
	if err != nil {
		return amount.Zero(), err
	}
	defer b.Close()
	taken, err := s.ledger.Withdraw(b, caller, requested)
	if err != nil {
		return amount.Zero(), err
	}
	if err := s.store.CommitBatch(b); err != nil {
		return amount.Zero(), err
	}
	return taken, nil
}

// GetMessages returns a most-recent-first window over all messages.
func (s *Service) GetMessages(limit ...int) ([]models.Message, error) {
	return s.store.RecentMessages(limit...)
}

// GetMessage returns the message stored at seq.
func (s *Service) GetMessage(seq uint64) (models.Message, error) {
	return s.store.GetMessage(seq)
}

// GetMessagesByUser returns a most-recent-first window over one author's
// messages.
func (s *Service) GetMessagesByUser(account string, limit ...int) ([]models.Message, error) {
	return s.store.MessagesByAccount(account, limit...)
}

// PreviewStorageCost prices a message without charging or storing
// anything.
func (s *Service) PreviewStorageCost(account, body string) amount.Amount {
	return s.model.RequiredPayment(account, body)
}

// GetStorageBalance returns the account's current balance; unknown
// accounts read as zero.
func (s *Service) GetStorageBalance(account string) (amount.Amount, error) {
	return s.ledger.BalanceOf(account)
}

// GetMinStorageCost returns the smallest possible message cost.
func (s *Service) GetMinStorageCost() amount.Amount {
	return s.model.MinPayment()
}

// TotalMessages returns the total stored message count.
func (s *Service) TotalMessages() (uint64, error) {
	return s.store.TotalMessages()
}

// CountChatter returns the number of distinct accounts that ever posted.
func (s *Service) CountChatter() (uint64, error) {
	return s.store.ChatterCount()
}

// IsChatter reports whether the account has posted at least once.
func (s *Service) IsChatter(account string) (bool, error) {
	return s.store.HasPosted(account)
}

// HealthCheck returns the summary status.
func (s *Service) HealthCheck() models.Health {
	h := models.Health{Status: "ok"}
	if !s.store.Ready() {
		h.Status = "store not ready"
		return h
	}
	if n, err := s.store.TotalMessages(); err == nil {
		h.TotalMessages = n
	} else {
		h.Status = "degraded"
	}
	if n, err := s.store.ChatterCount(); err == nil {
		h.Chatters = n
	} else {
		h.Status = "degraded"
	}
	return h
}
