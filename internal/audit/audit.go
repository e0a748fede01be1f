package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"github.com/adhocore/gronx"

	"chatledger/pkg/amount"
	"chatledger/pkg/chat"
	"chatledger/pkg/config"
	"chatledger/pkg/costmodel"
	"chatledger/pkg/logger"
	"chatledger/pkg/models"
	"chatledger/pkg/state"
	"chatledger/pkg/store"
	"chatledger/pkg/telemetry"
)

// Report is the result of one ledger audit pass. FundsCommitted is the sum
// of storage_paid across all messages; FundsHeld is the sum of live
// balances. Covered reports whether committed funds still cover the cost
// of the bytes retained at the current per-byte price.
type Report struct {
	Time           string        `json:"time"`
	TotalMessages  uint64        `json:"total_messages"`
	Chatters       uint64        `json:"chatters"`
	BytesRetained  uint64        `json:"bytes_retained"`
	FundsCommitted amount.Amount `json:"funds_committed"`
	FundsHeld      amount.Amount `json:"funds_held"`
	RequiredNow    amount.Amount `json:"required_now"`
	Covered        bool          `json:"covered"`
	DiskBytes      uint64        `json:"disk_bytes"`
	WALBytes       uint64        `json:"wal_bytes"`
}

var (
	boundSvc *chat.Service
	boundSt  *store.Store
)

// Bind registers the service and store audited by RunImmediate and the
// cron scheduler. Called once during app startup.
func Bind(svc *chat.Service, st *store.Store) {
	boundSvc = svc
	boundSt = st
}

// RunImmediate triggers a single audit pass using the bound service.
// Admin endpoints use this for on-demand runs.
func RunImmediate() (Report, error) {
	if boundSvc == nil || boundSt == nil {
		return Report{}, fmt.Errorf("no service bound for audit run")
	}
	if state.PathsVar.Audit == "" {
		return Report{}, fmt.Errorf("state paths not initialized")
	}
	return runOnce(context.Background(), state.PathsVar.Audit)
}

// Start starts the audit scheduler if enabled. Returns a cancel func.
func Start(ctx context.Context, cfg config.AuditConfig) (context.CancelFunc, error) {
	if !cfg.Enabled {
		logger.Info("audit_disabled")
		return func() {}, nil
	}

	auditPath := state.PathsVar.Audit
	if err := os.MkdirAll(auditPath, 0o700); err != nil {
		logger.Error("audit_path_create_failed", "path", auditPath, "error", err)
		return nil, err
	}

	// map empty cron to default daily @02:00
	cronExpr := cfg.Cron
	if cronExpr == "" {
		cronExpr = "0 2 * * *"
	}
	if !gronx.IsValid(cronExpr) {
		logger.Error("audit_invalid_cron", "cron", cfg.Cron)
		return nil, fmt.Errorf("invalid audit cron expression: %s", cfg.Cron)
	}

	logger.Info("audit_enabled", "cron", cronExpr, "path", auditPath)
	ctx2, cancel := context.WithCancel(ctx)
	go runScheduler(ctx2, auditPath, cronExpr)
	return cancel, nil
}

// runScheduler uses gronx to compute the next tick for the configured cron
// expression and sleeps until that time.
func runScheduler(ctx context.Context, auditPath, cronExpr string) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("audit_scheduler_stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("audit_nexttick_failed", "cron", cronExpr, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		wait := time.Until(next)
		if wait <= 0 {
			wait = time.Second
		}
		select {
		case <-time.After(wait):
			if _, err := runOnce(ctx, auditPath); err != nil {
				logger.Error("audit_run_error", "error", err)
			}
		case <-ctx.Done():
			logger.Info("audit_scheduler_stopping")
			return
		}
	}
}

// runOnce walks the full message log, recomputes retained bytes and
// required funding at the current price, compares against committed and
// held funds, and writes a JSON report artifact.
func runOnce(ctx context.Context, auditPath string) (Report, error) {
	started := time.Now()
	model := boundSvc.CostModel()

	rep := Report{Time: started.UTC().Format(time.RFC3339)}
	committed := amount.Zero()
	required := amount.Zero()
	err := boundSt.ForEachMessage(func(m models.Message) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		rep.TotalMessages++
		rep.BytesRetained += uint64(len(m.Account)+len(m.Body)) + costmodel.MetadataBytes + costmodel.OverheadBytes
		committed = committed.Add(m.StoragePaid)
		required = required.Add(model.RequiredPayment(m.Account, m.Body))
		return nil
	})
	if err != nil {
		return Report{}, err
	}
	rep.FundsCommitted = committed
	rep.RequiredNow = required
	rep.Covered = committed.Cmp(required) >= 0

	if n, err := boundSt.ChatterCount(); err == nil {
		rep.Chatters = n
	}
	held, err := boundSvc.Ledger().TotalBalances()
	if err != nil {
		return Report{}, err
	}
	rep.FundsHeld = held

	pm := boundSt.GetPebbleMetrics()
	rep.DiskBytes = pm.DiskBytes
	rep.WALBytes = pm.WALBytes

	telemetry.AuditBytesRetained.Set(float64(rep.BytesRetained))
	telemetry.AuditFundsCommitted.Set(amountFloat(rep.FundsCommitted))
	telemetry.AuditFundsHeld.Set(amountFloat(rep.FundsHeld))
	if rep.Covered {
		telemetry.AuditCoveredGauge.Set(1)
	} else {
		telemetry.AuditCoveredGauge.Set(0)
	}

	if err := writeReport(auditPath, rep); err != nil {
		logger.Error("audit_report_write_failed", "error", err)
	}

	auditLog := logger.Audit
	if auditLog == nil {
		auditLog = logger.Log
	}
	if auditLog != nil {
		auditLog.Info("ledger_audit",
			"messages", rep.TotalMessages,
			"bytes_retained", rep.BytesRetained,
			"funds_committed", rep.FundsCommitted.String(),
			"funds_held", rep.FundsHeld.String(),
			"covered", rep.Covered,
			"took", time.Since(started).String())
	}
	return rep, nil
}

// writeReport writes the report atomically into the audit dir.
func writeReport(dir string, rep Report) error {
	f, err := os.CreateTemp(dir, ".audit-*.tmp")
	if err != nil {
		return err
	}
	name := f.Name()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		f.Close()
		_ = os.Remove(name)
		return err
	}
	_ = f.Sync()
	f.Close()
	final := filepath.Join(dir, fmt.Sprintf("audit-%d.json", time.Now().UnixNano()))
	if err := os.Rename(name, final); err != nil {
		_ = os.Remove(name)
		return err
	}
	return os.Chmod(final, 0o600)
}

// amountFloat converts an amount to float64 for gauge export. Precision
// loss is acceptable for monitoring.
func amountFloat(a amount.Amount) float64 {
	f, _, err := big.ParseFloat(a.String(), 10, 64, big.ToNearestEven)
	if err != nil {
		return 0
	}
	v, _ := f.Float64()
	return v
}
