package progressor

import (
	"context"
	"testing"

	"chatledger/pkg/amount"
	"chatledger/pkg/models"
	"chatledger/pkg/store"
)

func seedStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	for _, c := range []struct{ who, body string }{
		{"alice", "one"}, {"bob", "two"}, {"alice", "three"},
	} {
		b, _ := s.NewBatch()
		if _, err := s.AppendMessage(b, models.Message{
			Account:     c.who,
			Body:        c.body,
			TS:          1,
			StoragePaid: amount.FromUint64(1),
		}); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
		if err := s.CommitBatch(b); err != nil {
			t.Fatalf("CommitBatch: %v", err)
		}
	}
	return s
}

func TestRunFirstBoot(t *testing.T) {
	s := seedStore(t)
	invoked, err := Run(context.Background(), s, "1.0.0")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !invoked {
		t.Fatalf("first boot should migrate")
	}
	if v, _ := s.GetKey("system:version"); v != "1.0.0" {
		t.Fatalf("version not persisted: %q", v)
	}
	if v, _ := s.GetKey("system:migration_in_progress"); v != "" {
		t.Fatalf("in-progress marker not cleared: %q", v)
	}
}

func TestRunNoopOnSameVersion(t *testing.T) {
	s := seedStore(t)
	if _, err := Run(context.Background(), s, "1.0.0"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	invoked, err := Run(context.Background(), s, "1.0.0")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if invoked {
		t.Fatalf("same version should be a noop")
	}
}

func TestRunResumesInterruptedMigration(t *testing.T) {
	s := seedStore(t)
	if _, err := Run(context.Background(), s, "1.0.0"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	// simulate a crash mid-migration: marker left behind, version matches
	if err := s.SaveKey("system:migration_in_progress", []byte(`{"from":"1.0.0","to":"1.0.0"}`)); err != nil {
		t.Fatalf("SaveKey: %v", err)
	}
	invoked, err := Run(context.Background(), s, "1.0.0")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !invoked {
		t.Fatalf("leftover marker should force a re-run")
	}
	if v, _ := s.GetKey("system:migration_in_progress"); v != "" {
		t.Fatalf("marker not cleared: %q", v)
	}
}

func TestSyncRebuildsDerivedState(t *testing.T) {
	s := seedStore(t)

	// corrupt the derived state the way an older on-disk layout would look
	for _, prefix := range []string{"acct:", "chatter:", "meta:"} {
		if err := s.DeleteRangeByPrefix(prefix); err != nil {
			t.Fatalf("DeleteRangeByPrefix: %v", err)
		}
	}

	if err := Sync(context.Background(), s, "0.9.0", "1.0.0"); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	if n, _ := s.TotalMessages(); n != 3 {
		t.Fatalf("TotalMessages = %d", n)
	}
	if n, _ := s.ChatterCount(); n != 2 {
		t.Fatalf("ChatterCount = %d", n)
	}
	if last, _ := s.LastSeq(); last != 3 {
		t.Fatalf("LastSeq = %d", last)
	}
	msgs, err := s.MessagesByAccount("alice")
	if err != nil || len(msgs) != 2 {
		t.Fatalf("alice index: %d messages, %v", len(msgs), err)
	}
	if n, _ := s.MessageCountFor("bob"); n != 1 {
		t.Fatalf("bob count = %d", n)
	}
}

func TestSyncIsIdempotent(t *testing.T) {
	s := seedStore(t)
	for i := 0; i < 2; i++ {
		if err := Sync(context.Background(), s, "1.0.0", "1.0.0"); err != nil {
			t.Fatalf("Sync pass %d: %v", i, err)
		}
	}
	if n, _ := s.TotalMessages(); n != 3 {
		t.Fatalf("counters drifted after repeated sync: %d", n)
	}
	if n, _ := s.ChatterCount(); n != 2 {
		t.Fatalf("chatter count drifted: %d", n)
	}
}

func TestMigrationPreservesTransferOutbox(t *testing.T) {
	s := seedStore(t)
	seq, err := s.AppendTransfer(models.TransferRecord{Account: "alice", Amount: amount.FromUint64(1000), TS: 1})
	if err != nil || seq != 1 {
		t.Fatalf("AppendTransfer: seq=%d, %v", seq, err)
	}

	if _, err := Run(context.Background(), s, "1.0.0"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// the outbox sequence survives the rebuild: the next settlement must
	// not renumber over an existing record
	seq, err = s.AppendTransfer(models.TransferRecord{Account: "bob", Amount: amount.FromUint64(5), TS: 2})
	if err != nil {
		t.Fatalf("AppendTransfer after migration: %v", err)
	}
	if seq != 2 {
		t.Fatalf("seq after migration = %d, want 2", seq)
	}

	ts, err := s.ListTransfers()
	if err != nil {
		t.Fatalf("ListTransfers: %v", err)
	}
	if len(ts) != 2 {
		t.Fatalf("outbox records = %d, want 2", len(ts))
	}
	if ts[1].Account != "alice" || ts[1].Amount.String() != "1000" {
		t.Fatalf("original record damaged: %+v", ts[1])
	}
}
