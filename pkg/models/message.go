package models

import "chatledger/pkg/amount"

// Message is an immutable stored record. Seq is the position in the
// primary sequence, assigned at append time and never reused.
type Message struct {
	Seq     uint64 `json:"seq"`
	Account string `json:"account_id"`
	Body    string `json:"message"`
	// Creation time in nanoseconds, assigned by the host clock at write time.
	TS int64 `json:"timestamp"`
	// Exact payment debited for this record.
	StoragePaid amount.Amount `json:"storage_paid"`
}

// Stats is the derived-count view returned by the stats endpoint.
type Stats struct {
	TotalMessages uint64 `json:"total_messages"`
	Chatters      uint64 `json:"chatters"`
}

// Health is the health_check summary.
type Health struct {
	Status        string `json:"status"`
	TotalMessages uint64 `json:"total_messages"`
	Chatters      uint64 `json:"chatters"`
}

// TransferRecord is a settlement outbox entry: a value transfer owed to an
// account, written only after the corresponding balance mutation committed.
type TransferRecord struct {
	Seq     uint64        `json:"seq"`
	Account string        `json:"account_id"`
	Amount  amount.Amount `json:"amount"`
	TS      int64         `json:"timestamp"`
}
