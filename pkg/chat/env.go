package chat

import (
	"time"

	"chatledger/pkg/amount"
	"chatledger/pkg/models"
	"chatledger/pkg/store"
)

// Env supplies the host capabilities the service does not own: the clock
// that stamps messages and the outbound value-transfer primitive. Tests
// inject fakes; production uses OutboxEnv.
type Env interface {
	// Now returns the current time in nanoseconds.
	Now() int64
	// Transfer makes amt available to the account outside the ledger. It
	// is invoked only after the matching balance mutation has committed.
	Transfer(to string, amt amount.Amount) error
}

// OutboxEnv is the production Env: wall clock plus a durable settlement
// outbox. Each transfer is recorded for external settlement rather than
// moved in-process.
type OutboxEnv struct {
	Store *store.Store
}

func (e OutboxEnv) Now() int64 { return time.Now().UTC().UnixNano() }

func (e OutboxEnv) Transfer(to string, amt amount.Amount) error {
	_, err := e.Store.AppendTransfer(models.TransferRecord{
		Account: to,
		Amount:  amt,
		TS:      e.Now(),
	})
	return err
}
