package progressor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"chatledger/pkg/logger"
	"chatledger/pkg/models"
	"chatledger/pkg/store"
)

const (
	systemVersionKey    = "system:version"
	systemInProgressKey = "system:migration_in_progress"
)

// Sync performs upgrade work between versions. The current migration
// rebuilds all derived state (per-account message index, chatter flags,
// aggregate counters) from the primary message log. It is idempotent and
// safe to run multiple times: the primary msg: records, balances, and the
// transfer outbox are never touched.
func Sync(ctx context.Context, st *store.Store, from, to string) error {
	logger.Info("progressor_sync_start", "from", from, "to", to)

	for _, prefix := range []string{"acct:", "chatter:"} {
		if err := st.DeleteRangeByPrefix(prefix); err != nil {
			logger.Error("progressor_clear_failed", "prefix", prefix, "error", err)
			return err
		}
	}
	// only the counters the rebuild regenerates; the transfer outbox
	// sequence must survive a migration
	if err := st.ClearDerivedCounters(); err != nil {
		logger.Error("progressor_clear_failed", "prefix", "meta:", "error", err)
		return err
	}

	var rebuilt uint64
	err := st.ForEachMessage(func(m models.Message) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := st.ReindexMessage(m); err != nil {
			return err
		}
		rebuilt++
		return nil
	})
	if err != nil {
		logger.Error("progressor_rebuild_failed", "error", err)
		return err
	}

	logger.Info("progressor_sync_done", "from", from, "to", to, "messages", rebuilt)
	return nil
}

// Run checks for a version change and runs Sync if needed.
// Returns (invoked, error): invoked is true if Sync ran.
func Run(ctx context.Context, st *store.Store, newVersion string) (bool, error) {
	stored, err := st.GetKey(systemVersionKey)
	if err != nil {
		logger.Error("progressor_read_version_failed", "error", err)
		return false, err
	}
	logger.Info("progressor_version_check", "stored", stored, "running", newVersion)

	// re-run an interrupted migration even when versions match
	inProgress, _ := st.GetKey(systemInProgressKey)
	if stored == newVersion && inProgress == "" {
		logger.Info("progressor_noop", "version", newVersion)
		return false, nil
	}

	marker := map[string]string{
		"from":       stored,
		"to":         newVersion,
		"started_at": time.Now().UTC().Format(time.RFC3339),
	}
	mb, _ := json.Marshal(marker)
	if err := st.SaveKey(systemInProgressKey, mb); err != nil {
		logger.Error("progressor_write_inprogress_failed", "error", err)
		return true, fmt.Errorf("failed to write in-progress marker: %w", err)
	}

	logger.Info("progressor_start_sync", "from", stored, "to", newVersion)
	if err := Sync(ctx, st, stored, newVersion); err != nil {
		logger.Error("progressor_sync_failed", "from", stored, "to", newVersion, "error", err)
		return true, err
	}
	logger.Info("progressor_sync_succeeded", "from", stored, "to", newVersion)

	if err := st.SaveKey(systemVersionKey, []byte(newVersion)); err != nil {
		logger.Error("progressor_persist_version_failed", "version", newVersion, "error", err)
		return true, fmt.Errorf("failed to persist new version: %w", err)
	}

	if err := st.DeleteKey(systemInProgressKey); err != nil {
		logger.Error("progressor_delete_inprogress_failed", "error", err)
	}

	logger.Info("progressor_version_persisted", "version", newVersion)
	return true, nil
}
