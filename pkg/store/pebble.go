// Package store persists the message ledger in a Pebble database.
//
// Keyspace:
//
//	msg:<seq20>                 primary message sequence (JSON)
//	acct:<account>:msg:<seq20>  per-author index referencing primary seqs
//	chatter:<account>           per-author message count (presence = known author)
//	balance:<account>           account balance, decimal string
//	transfer:<seq20>            settlement outbox (JSON)
//	meta:*                      derived counters
//	system:*                    version/migration bookkeeping
//
// All derived keys are written in the same batch as the primary record, so
// the secondary index and counters can never reference a message that does
// not exist.
package store

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"

	"chatledger/pkg/amount"
	"chatledger/pkg/logger"
	"chatledger/pkg/models"
)

const (
	// DefaultWindow is the page size used when a read does not specify a
	// limit; MaxWindow caps every read window. Larger requests clamp, they
	// never error.
	DefaultWindow = 100
	MaxWindow     = 100
)

const (
	metaLastSeqKey      = "meta:lastseq"
	metaMsgCountKey     = "meta:msgcount"
	metaChatterCountKey = "meta:chattercount"
	metaTransferSeqKey  = "meta:transferseq"
)

// ErrClosed is returned when the store is used before Open or after Close.
var ErrClosed = fmt.Errorf("store not opened; call store.Open first")

// Store owns a Pebble database handle. It is safe for concurrent reads;
// callers must serialize mutating batches (the service layer does).
type Store struct {
	db   *pebble.DB
	path string

	// serializes transfer outbox sequence allocation; settlement runs
	// outside the service mutex
	transferMu sync.Mutex
}

// Open opens (or creates) a Pebble database at the given path.
func Open(path string) (*Store, error) {
	logger.Info("opening_pebble_db", "path", path)
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return nil, err
	}
	logger.Info("pebble_opened", "path", path)
	return &Store{db: db, path: path}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return err
	}
	s.db = nil
	logger.Info("pebble_closed")
	return nil
}

// Ready reports whether the store is opened and usable.
func (s *Store) Ready() bool { return s != nil && s.db != nil }

// Path returns the database directory.
func (s *Store) Path() string { return s.path }

func msgKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("msg:%020d", seq))
}

func acctMsgKey(account string, seq uint64) []byte {
	return []byte(fmt.Sprintf("acct:%s:msg:%020d", account, seq))
}

func chatterKey(account string) []byte { return []byte("chatter:" + account) }

func balanceKey(account string) []byte { return []byte("balance:" + account) }

func transferKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("transfer:%020d", seq))
}

func encodeUint64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

// prefixUpperBound returns the smallest key greater than every key with
// the given prefix.
func prefixUpperBound(prefix []byte) []byte {
	ub := append([]byte(nil), prefix...)
	for i := len(ub) - 1; i >= 0; i-- {
		if ub[i] < 0xff {
			ub[i]++
			return ub[:i+1]
		}
	}
	return nil
}

func (s *Store) getUint64(key string) (uint64, error) {
	if !s.Ready() {
		return 0, ErrClosed
	}
	v, closer, err := s.db.Get([]byte(key))
	if err == pebble.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer closer.Close()
	if len(v) != 8 {
		return 0, fmt.Errorf("corrupt counter %s: %d bytes", key, len(v))
	}
	return binary.BigEndian.Uint64(v), nil
}

// NewBatch returns a write batch. Stage all mutations of one operation
// into a single batch and commit it with CommitBatch so readers never see
// a partial mutation.
func (s *Store) NewBatch() (*pebble.Batch, error) {
	if !s.Ready() {
		return nil, ErrClosed
	}
	return s.db.NewBatch(), nil
}

// CommitBatch durably applies a batch as one atomic unit.
func (s *Store) CommitBatch(b *pebble.Batch) error {
	if !s.Ready() {
		return ErrClosed
	}
	return b.Commit(pebble.Sync)
}

// AppendMessage stages a message append into b: primary record, author
// index entry, per-author count, and the derived counters. It assigns and
// returns the new sequence number. Nothing is visible until b commits.
func (s *Store) AppendMessage(b *pebble.Batch, m models.Message) (uint64, error) {
	if !s.Ready() {
		return 0, ErrClosed
	}
	last, err := s.getUint64(metaLastSeqKey)
	if err != nil {
		return 0, err
	}
	seq := last + 1
	m.Seq = seq

	data, err := json.Marshal(m)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal message: %w", err)
	}
	if err := b.Set(msgKey(seq), data, nil); err != nil {
		return 0, err
	}
	if err := b.Set(acctMsgKey(m.Account, seq), encodeUint64(seq), nil); err != nil {
		return 0, err
	}

	// per-author count; first post also grows the known-authors counter
	prior, err := s.getUint64(string(chatterKey(m.Account)))
	if err != nil {
		return 0, err
	}
	if err := b.Set(chatterKey(m.Account), encodeUint64(prior+1), nil); err != nil {
		return 0, err
	}
	if prior == 0 {
		chatters, err := s.getUint64(metaChatterCountKey)
		if err != nil {
			return 0, err
		}
		if err := b.Set([]byte(metaChatterCountKey), encodeUint64(chatters+1), nil); err != nil {
			return 0, err
		}
	}

	total, err := s.getUint64(metaMsgCountKey)
	if err != nil {
		return 0, err
	}
	if err := b.Set([]byte(metaMsgCountKey), encodeUint64(total+1), nil); err != nil {
		return 0, err
	}
	if err := b.Set([]byte(metaLastSeqKey), encodeUint64(seq), nil); err != nil {
		return 0, err
	}
	return seq, nil
}

// ReindexMessage restores the derived records for an existing primary
// message: author index entry, per-author count, and aggregate counters.
// The primary msg: record must already exist; progressor uses this when
// rebuilding state after clearing the derived keyspace.
func (s *Store) ReindexMessage(m models.Message) error {
	if !s.Ready() {
		return ErrClosed
	}
	b := s.db.NewBatch()
	if err := b.Set(acctMsgKey(m.Account, m.Seq), encodeUint64(m.Seq), nil); err != nil {
		return err
	}

	prior, err := s.getUint64(string(chatterKey(m.Account)))
	if err != nil {
		return err
	}
	if err := b.Set(chatterKey(m.Account), encodeUint64(prior+1), nil); err != nil {
		return err
	}
	if prior == 0 {
		chatters, err := s.getUint64(metaChatterCountKey)
		if err != nil {
			return err
		}
		if err := b.Set([]byte(metaChatterCountKey), encodeUint64(chatters+1), nil); err != nil {
			return err
		}
	}

	total, err := s.getUint64(metaMsgCountKey)
	if err != nil {
		return err
	}
	if err := b.Set([]byte(metaMsgCountKey), encodeUint64(total+1), nil); err != nil {
		return err
	}
	last, err := s.getUint64(metaLastSeqKey)
	if err != nil {
		return err
	}
	if m.Seq > last {
		if err := b.Set([]byte(metaLastSeqKey), encodeUint64(m.Seq), nil); err != nil {
			return err
		}
	}
	return b.Commit(pebble.Sync)
}

func clampWindow(limit []int) int {
	n := DefaultWindow
	if len(limit) > 0 {
		n = limit[0]
	}
	if n < 0 {
		n = 0
	}
	if n > MaxWindow {
		n = MaxWindow
	}
	return n
}

// RecentMessages returns up to min(limit, MaxWindow) messages, newest
// first. An omitted limit defaults to DefaultWindow; limit 0 returns an
// empty slice.
func (s *Store) RecentMessages(limit ...int) ([]models.Message, error) {
	if !s.Ready() {
		return nil, ErrClosed
	}
	n := clampWindow(limit)
	out := make([]models.Message, 0, n)
	if n == 0 {
		return out, nil
	}
	prefix := []byte("msg:")
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: prefixUpperBound(prefix)})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	for ok := iter.Last(); ok && len(out) < n; ok = iter.Prev() {
		var m models.Message
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			return nil, fmt.Errorf("corrupt message at %s: %w", iter.Key(), err)
		}
		out = append(out, m)
	}
	return out, iter.Error()
}

// MessagesByAccount returns up to min(limit, MaxWindow) of one author's
// messages, newest first, resolved through the author index.
func (s *Store) MessagesByAccount(account string, limit ...int) ([]models.Message, error) {
	if !s.Ready() {
		return nil, ErrClosed
	}
	n := clampWindow(limit)
	out := make([]models.Message, 0, n)
	if n == 0 {
		return out, nil
	}
	prefix := []byte("acct:" + account + ":msg:")
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: prefixUpperBound(prefix)})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	for ok := iter.Last(); ok && len(out) < n; ok = iter.Prev() {
		if len(iter.Value()) != 8 {
			return nil, fmt.Errorf("corrupt index entry at %s", iter.Key())
		}
		seq := binary.BigEndian.Uint64(iter.Value())
		m, err := s.GetMessage(seq)
		if err != nil {
			return nil, fmt.Errorf("index references missing message %d: %w", seq, err)
		}
		out = append(out, m)
	}
	return out, iter.Error()
}

// GetMessage fetches one message by sequence number.
func (s *Store) GetMessage(seq uint64) (models.Message, error) {
	if !s.Ready() {
		return models.Message{}, ErrClosed
	}
	v, closer, err := s.db.Get(msgKey(seq))
	if err != nil {
		return models.Message{}, err
	}
	defer closer.Close()
	var m models.Message
	if err := json.Unmarshal(v, &m); err != nil {
		return models.Message{}, fmt.Errorf("corrupt message %d: %w", seq, err)
	}
	return m, nil
}

// ForEachMessage visits every message in sequence order. Used by the
// auditor and the progressor; not a serving path.
func (s *Store) ForEachMessage(fn func(models.Message) error) error {
	if !s.Ready() {
		return ErrClosed
	}
	prefix := []byte("msg:")
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: prefixUpperBound(prefix)})
	if err != nil {
		return err
	}
	defer iter.Close()
	for ok := iter.First(); ok; ok = iter.Next() {
		var m models.Message
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			return fmt.Errorf("corrupt message at %s: %w", iter.Key(), err)
		}
		if err := fn(m); err != nil {
			return err
		}
	}
	return iter.Error()
}

// TotalMessages returns the message count (O(1) meta read).
func (s *Store) TotalMessages() (uint64, error) { return s.getUint64(metaMsgCountKey) }

// LastSeq returns the latest assigned sequence number.
func (s *Store) LastSeq() (uint64, error) { return s.getUint64(metaLastSeqKey) }

// ChatterCount returns the number of distinct authors that ever posted.
func (s *Store) ChatterCount() (uint64, error) { return s.getUint64(metaChatterCountKey) }

// HasPosted reports whether the account has at least one message.
func (s *Store) HasPosted(account string) (bool, error) {
	n, err := s.getUint64(string(chatterKey(account)))
	return n > 0, err
}

// MessageCountFor returns one author's message count.
func (s *Store) MessageCountFor(account string) (uint64, error) {
	return s.getUint64(string(chatterKey(account)))
}

// GetBalance returns an account's balance and whether a ledger entry
// exists. Unknown accounts read as zero.
func (s *Store) GetBalance(account string) (amount.Amount, bool, error) {
	if !s.Ready() {
		return amount.Zero(), false, ErrClosed
	}
	v, closer, err := s.db.Get(balanceKey(account))
	if err == pebble.ErrNotFound {
		return amount.Zero(), false, nil
	}
	if err != nil {
		return amount.Zero(), false, err
	}
	defer closer.Close()
	a, err := amount.Parse(string(v))
	if err != nil {
		return amount.Zero(), false, fmt.Errorf("corrupt balance for %s: %w", account, err)
	}
	return a, true, nil
}

// SetBalanceBatch stages a balance write into b.
func (s *Store) SetBalanceBatch(b *pebble.Batch, account string, a amount.Amount) error {
	return b.Set(balanceKey(account), []byte(a.String()), nil)
}

// ForEachBalance visits every ledger entry. Auditor path.
func (s *Store) ForEachBalance(fn func(account string, a amount.Amount) error) error {
	if !s.Ready() {
		return ErrClosed
	}
	prefix := []byte("balance:")
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: prefixUpperBound(prefix)})
	if err != nil {
		return err
	}
	defer iter.Close()
	for ok := iter.First(); ok; ok = iter.Next() {
		account := string(bytes.TrimPrefix(iter.Key(), prefix))
		a, err := amount.Parse(string(iter.Value()))
		if err != nil {
			return fmt.Errorf("corrupt balance for %s: %w", account, err)
		}
		if err := fn(account, a); err != nil {
			return err
		}
	}
	return iter.Error()
}

// AppendTransfer durably records a settlement outbox entry. Called only
// after the balance mutation it settles has committed.
func (s *Store) AppendTransfer(t models.TransferRecord) (uint64, error) {
	if !s.Ready() {
		return 0, ErrClosed
	}
	s.transferMu.Lock()
	defer s.transferMu.Unlock()
	last, err := s.getUint64(metaTransferSeqKey)
	if err != nil {
		return 0, err
	}
	seq := last + 1
	t.Seq = seq
	data, err := json.Marshal(t)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal transfer: %w", err)
	}
	b := s.db.NewBatch()
	if err := b.Set(transferKey(seq), data, nil); err != nil {
		return 0, err
	}
	if err := b.Set([]byte(metaTransferSeqKey), encodeUint64(seq), nil); err != nil {
		return 0, err
	}
	if err := b.Commit(pebble.Sync); err != nil {
		logger.Error("append_transfer_failed", "account", t.Account, "error", err)
		return 0, err
	}
	logger.Info("transfer_recorded", "account", t.Account, "amount", t.Amount.String(), "seq", seq)
	return seq, nil
}

// ListTransfers returns up to min(limit, MaxWindow) outbox entries,
// newest first.
func (s *Store) ListTransfers(limit ...int) ([]models.TransferRecord, error) {
	if !s.Ready() {
		return nil, ErrClosed
	}
	n := clampWindow(limit)
	out := make([]models.TransferRecord, 0, n)
	if n == 0 {
		return out, nil
	}
	prefix := []byte("transfer:")
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: prefixUpperBound(prefix)})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	for ok := iter.Last(); ok && len(out) < n; ok = iter.Prev() {
		var t models.TransferRecord
		if err := json.Unmarshal(iter.Value(), &t); err != nil {
			return nil, fmt.Errorf("corrupt transfer at %s: %w", iter.Key(), err)
		}
		out = append(out, t)
	}
	return out, iter.Error()
}

// GetKey returns the raw value stored under a system key, or "" when the
// key does not exist.
func (s *Store) GetKey(key string) (string, error) {
	if !s.Ready() {
		return "", ErrClosed
	}
	v, closer, err := s.db.Get([]byte(key))
	if err == pebble.ErrNotFound {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	defer closer.Close()
	return string(v), nil
}

// SaveKey stores a raw value under a system key.
func (s *Store) SaveKey(key string, val []byte) error {
	if !s.Ready() {
		return ErrClosed
	}
	return s.db.Set([]byte(key), val, pebble.Sync)
}

// DeleteKey removes a system key.
func (s *Store) DeleteKey(key string) error {
	if !s.Ready() {
		return ErrClosed
	}
	return s.db.Delete([]byte(key), pebble.Sync)
}

// ListKeys returns all keys matching the given prefix. An empty prefix
// lists the whole keyspace; intended for admin inspection only.
func (s *Store) ListKeys(prefix string) ([]string, error) {
	if !s.Ready() {
		return nil, ErrClosed
	}
	opts := &pebble.IterOptions{}
	if prefix != "" {
		p := []byte(prefix)
		opts.LowerBound = p
		opts.UpperBound = prefixUpperBound(p)
	}
	iter, err := s.db.NewIter(opts)
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []string
	for iter.First(); iter.Valid(); iter.Next() {
		out = append(out, string(iter.Key()))
	}
	return out, iter.Error()
}

// DeleteRangeByPrefix removes every key with the given prefix. Progressor
// uses this to rebuild derived state.
func (s *Store) DeleteRangeByPrefix(prefix string) error {
	if !s.Ready() {
		return ErrClosed
	}
	p := []byte(prefix)
	return s.db.DeleteRange(p, prefixUpperBound(p), pebble.Sync)
}

// ClearDerivedCounters deletes the counters the reindex pass rebuilds.
// The transfer outbox sequence is preserved: outbox records are not
// derived from messages and must never be renumbered.
func (s *Store) ClearDerivedCounters() error {
	if !s.Ready() {
		return ErrClosed
	}
	b := s.db.NewBatch()
	for _, k := range []string{metaLastSeqKey, metaMsgCountKey, metaChatterCountKey} {
		if err := b.Delete([]byte(k), nil); err != nil {
			return err
		}
	}
	return b.Commit(pebble.Sync)
}
