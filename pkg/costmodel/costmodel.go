// Package costmodel computes the exact payment required to persist a
// message. The computation is pure and integer-only so the same inputs
// always price to the same amount, both for the real charge and for
// read-only previews.
package costmodel

import (
	"chatledger/pkg/amount"
)

const (
	// Fixed-width record fields: 8 bytes for the nanosecond timestamp and
	// 32 bytes for the storage_paid amount.
	MetadataBytes = 40
	// Serialization and container overhead per stored record.
	OverheadBytes = 50

	// Safety margin applied multiplicatively: 120/100 = +20%. The margin
	// covers indexing overhead and protocol price drift; rounding is
	// always ceiling so the margin is never under-charged.
	marginNum = 120
	marginDen = 100
)

// DefaultPerByte is the default storage price per byte in smallest native
// units (1e19).
var DefaultPerByte = amount.MustParse("10000000000000000000")

// Model prices message storage. The zero Model is not valid; use New.
type Model struct {
	perByte amount.Amount
}

// New returns a Model charging perByte per stored byte. A zero perByte is
// replaced with DefaultPerByte.
func New(perByte amount.Amount) Model {
	if perByte.IsZero() {
		perByte = DefaultPerByte
	}
	return Model{perByte: perByte}
}

// PerByte returns the configured per-byte price.
func (m Model) PerByte() amount.Amount { return m.perByte }

// RequiredPayment returns the payment required to store a message with the
// given author account id and body:
//
//	ceil((len(account) + len(body) + MetadataBytes + OverheadBytes) * perByte * 120 / 100)
//
// The byte count uses raw byte lengths, matching what is actually
// persisted.
func (m Model) RequiredPayment(account, body string) amount.Amount {
	totalBytes := uint64(len(account)) + uint64(len(body)) + MetadataBytes + OverheadBytes
	raw := m.perByte.MulUint64(totalBytes)
	return raw.MulUint64(marginNum).CeilDivUint64(marginDen)
}

// MinPayment returns the cost of the smallest legal message (one byte,
// empty account id). Because cost is non-decreasing in both account and
// body length this is a floor for every account; a balance below it can
// never afford a post.
func (m Model) MinPayment() amount.Amount {
	return m.RequiredPayment("", "x")
}
