package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Operation counters and audit gauges exported at /metrics.
var (
	DepositsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatledger_deposits_total",
		Help: "Completed storage deposits.",
	})
	MessagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatledger_messages_total",
		Help: "Messages successfully stored.",
	})
	WithdrawalsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatledger_withdrawals_total",
		Help: "Completed balance withdrawals.",
	})
	RejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatledger_rejected_total",
		Help: "Rejected mutating operations by reason.",
	}, []string{"reason"})

	AuditBytesRetained = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chatledger_audit_bytes_retained",
		Help: "Estimated message bytes retained at last audit.",
	})
	AuditFundsCommitted = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chatledger_audit_funds_committed",
		Help: "Sum of storage_paid across all messages at last audit, in native units (float view of a big integer).",
	})
	AuditFundsHeld = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chatledger_audit_funds_held",
		Help: "Sum of all ledger balances at last audit, in native units (float view of a big integer).",
	})
	AuditCoveredGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chatledger_audit_covered",
		Help: "1 when committed funds cover retained bytes at the configured price, else 0.",
	})
)
