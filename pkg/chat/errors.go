package chat

import (
	"errors"

	"chatledger/pkg/ledger"
)

var (
	// ErrInvalidAmount rejects non-positive deposit/withdraw amounts.
	ErrInvalidAmount = ledger.ErrInvalidAmount
	// ErrInsufficientStorageBalance rejects a post or withdrawal the
	// caller's balance cannot cover.
	ErrInsufficientStorageBalance = ledger.ErrInsufficientBalance
	// ErrInvalidMessage rejects empty or over-length bodies.
	ErrInvalidMessage = errors.New("invalid message")
)
