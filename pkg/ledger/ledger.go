// Package ledger tracks per-account funded balances. Balances only move
// by delta: deposits credit, debits and withdrawals subtract, and no
// operation can drive a balance below zero. A ledger entry survives at
// zero balance, so "fully withdrawn" stays distinguishable from "never
// deposited".
package ledger

import (
	"errors"

	"github.com/cockroachdb/pebble"

	"chatledger/pkg/amount"
	"chatledger/pkg/logger"
	"chatledger/pkg/store"
)

var (
	// ErrInvalidAmount rejects non-positive deposit or withdrawal amounts.
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrInsufficientBalance rejects debits or withdrawals exceeding the
	// current balance.
	ErrInsufficientBalance = errors.New("insufficient storage balance")
)

// Ledger is the account -> balance mapping, persisted in the store.
type Ledger struct {
	s *store.Store
}

// New returns a Ledger over the given store.
func New(s *store.Store) *Ledger { return &Ledger{s: s} }

// BalanceOf returns the current balance; unknown accounts read as zero.
func (l *Ledger) BalanceOf(account string) (amount.Amount, error) {
	bal, _, err := l.s.GetBalance(account)
	return bal, err
}

// Deposit stages a credit of amt into b. The first deposit creates the
// ledger entry. amt must be positive.
func (l *Ledger) Deposit(b *pebble.Batch, account string, amt amount.Amount) error {
	if amt.IsZero() {
		return ErrInvalidAmount
	}
	bal, _, err := l.s.GetBalance(account)
	if err != nil {
		return err
	}
	next := bal.Add(amt)
	if err := l.s.SetBalanceBatch(b, account, next); err != nil {
		return err
	}
	logger.Info("ledger_deposit", "account", account, "amount", amt.String(), "balance", next.String())
	return nil
}

// TryDebit stages balance -= amt into b and returns true, or returns
// false without staging anything when amt exceeds the balance. The
// check and the staged mutation commit as one unit with the caller's
// other writes, so no intermediate state is ever observable.
func (l *Ledger) TryDebit(b *pebble.Batch, account string, amt amount.Amount) (bool, error) {
	bal, _, err := l.s.GetBalance(account)
	if err != nil {
		return false, err
	}
	if amt.Cmp(bal) > 0 {
		logger.Info("ledger_debit_rejected", "account", account, "amount", amt.String(), "balance", bal.String())
		return false, nil
	}
	next := bal.Sub(amt)
	if err := l.s.SetBalanceBatch(b, account, next); err != nil {
		return false, err
	}
	logger.Info("ledger_debit", "account", account, "amount", amt.String(), "balance", next.String())
	return true, nil
}

// Withdraw stages balance -= requested into b and returns the amount to
// transfer out. A nil requested withdraws the entire balance (possibly
// zero, which is not an error). The caller must commit b before issuing
// the external transfer: state before effect.
func (l *Ledger) Withdraw(b *pebble.Batch, account string, requested *amount.Amount) (amount.Amount, error) {
	bal, exists, err := l.s.GetBalance(account)
	if err != nil {
		return amount.Zero(), err
	}
	// a full withdrawal from an account that never deposited writes
	// nothing: no entry exists and none should appear
	if requested == nil && !exists {
		return amount.Zero(), nil
	}
	take := bal
	if requested != nil {
		if requested.IsZero() {
			return amount.Zero(), ErrInvalidAmount
		}
		if requested.Cmp(bal) > 0 {
			return amount.Zero(), ErrInsufficientBalance
		}
		take = *requested
	}
	next := bal.Sub(take)
	if err := l.s.SetBalanceBatch(b, account, next); err != nil {
		return amount.Zero(), err
	}
	logger.Info("ledger_withdraw", "account", account, "amount", take.String(), "balance", next.String())
	return take, nil
}

// TotalBalances sums every ledger entry. Auditor path.
func (l *Ledger) TotalBalances() (amount.Amount, error) {
	total := amount.Zero()
	err := l.s.ForEachBalance(func(_ string, a amount.Amount) error {
		total = total.Add(a)
		return nil
	})
	return total, err
}
