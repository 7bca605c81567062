package kv

import (
	"runtime"
	"sort"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/evalgo/themisgo/enginestatus"
)

// Transaction is a pessimistic-locking MVCC handle over the store.
// Reads observe a snapshot fixed at BeginTransaction; writes acquire a
// per-key lock immediately (failing the call on contention) and are held
// in-memory until Commit, which also re-checks that no written key was
// committed by anyone else since the snapshot was taken.
type Transaction struct {
	id    uint64
	store *Store

	snapshotSeq uint64
	snapshotTx  *bolt.Tx // long-lived read-only bbolt transaction

	mu             sync.Mutex
	pendingPuts    map[string][]byte
	pendingDeletes map[string]struct{}
	lockedKeys     map[string]struct{}
	active         bool
	startedAt      time.Time
}

// BeginTransaction opens a new MVCC transaction. The returned handle's
// reads are pinned to the state committed as of this call.
func (s *Store) BeginTransaction() (*Transaction, error) {
	snapTx, err := s.db.Begin(false)
	if err != nil {
		return nil, enginestatus.FromError(enginestatus.KindIO, err).Err()
	}

	t := &Transaction{
		id:             s.nextTxnID(),
		store:          s,
		snapshotSeq:    s.currentSeq(),
		snapshotTx:     snapTx,
		pendingPuts:    make(map[string][]byte),
		pendingDeletes: make(map[string]struct{}),
		lockedKeys:     make(map[string]struct{}),
		active:         true,
		startedAt:      time.Now(),
	}

	runtime.SetFinalizer(t, func(dropped *Transaction) {
		dropped.mu.Lock()
		wasActive := dropped.active
		dropped.mu.Unlock()
		if wasActive {
			dropped.store.log.WithField("txn_id", dropped.id).
				Warn("kv: transaction dropped without commit or rollback, rolling back")
			_ = dropped.Rollback()
		}
	})

	return t, nil
}

// ID returns the transaction's store-local identifier.
func (t *Transaction) ID() uint64 { return t.id }

// StartedAt returns when the transaction began.
func (t *Transaction) StartedAt() time.Time { return t.startedAt }

// IsActive reports whether the transaction has neither committed nor
// rolled back.
func (t *Transaction) IsActive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// Get reads through the transaction's own pending writes first, falling
// back to the snapshot taken at BeginTransaction.
func (t *Transaction) Get(key string) ([]byte, bool, error) {
	t.mu.Lock()
	if !t.active {
		t.mu.Unlock()
		return nil, false, enginestatus.Error(enginestatus.KindArgument, "kv: transaction %d is not active", t.id).Err()
	}
	if _, deleted := t.pendingDeletes[key]; deleted {
		t.mu.Unlock()
		return nil, false, nil
	}
	if v, ok := t.pendingPuts[key]; ok {
		t.mu.Unlock()
		return append([]byte(nil), v...), true, nil
	}
	t.mu.Unlock()

	b := t.snapshotTx.Bucket(dataBucket)
	v := b.Get([]byte(key))
	if v == nil {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

// Put stages a write. The key's lock is acquired immediately; if another
// active transaction already holds it, Put fails with a conflict status
// and the transaction's other keys remain usable.
func (t *Transaction) Put(key string, value []byte) error {
	return t.writeLocked(key, func() {
		t.pendingPuts[key] = append([]byte(nil), value...)
		delete(t.pendingDeletes, key)
	})
}

// Delete stages a delete, under the same locking rule as Put.
func (t *Transaction) Delete(key string) error {
	return t.writeLocked(key, func() {
		t.pendingDeletes[key] = struct{}{}
		delete(t.pendingPuts, key)
	})
}

func (t *Transaction) writeLocked(key string, apply func()) error {
	t.mu.Lock()
	if !t.active {
		t.mu.Unlock()
		return enginestatus.Error(enginestatus.KindArgument, "kv: transaction %d is not active", t.id).Err()
	}
	t.mu.Unlock()

	if !t.store.locks.tryAcquire(key, t.id) {
		return enginestatus.Error(enginestatus.KindConflict,
			"kv: key %q is locked by another in-flight transaction", key).Err()
	}

	t.mu.Lock()
	t.lockedKeys[key] = struct{}{}
	apply()
	t.mu.Unlock()
	return nil
}

// ScanPrefix visits entries under prefix as of this transaction's view:
// pending writes of this transaction overlay the snapshot, in
// lexicographic key order.
func (t *Transaction) ScanPrefix(prefix string, visit Visitor) error {
	t.mu.Lock()
	if !t.active {
		t.mu.Unlock()
		return enginestatus.Error(enginestatus.KindArgument, "kv: transaction %d is not active", t.id).Err()
	}
	overlay := make(map[string][]byte, len(t.pendingPuts))
	for k, v := range t.pendingPuts {
		overlay[k] = v
	}
	deleted := make(map[string]struct{}, len(t.pendingDeletes))
	for k := range t.pendingDeletes {
		deleted[k] = struct{}{}
	}
	t.mu.Unlock()

	merged := make(map[string][]byte)
	c := t.snapshotTx.Bucket(dataBucket).Cursor()
	p := []byte(prefix)
	for k, v := c.Seek(p); k != nil && hasPrefix(k, p); k, v = c.Next() {
		merged[string(k)] = append([]byte(nil), v...)
	}
	for k := range deleted {
		delete(merged, k)
	}
	for k, v := range overlay {
		if hasPrefix([]byte(k), p) {
			merged[k] = v
		}
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if !visit(k, merged[k]) {
			break
		}
	}
	return nil
}

// Commit validates that no key in the write set was committed by another
// transaction since the snapshot was taken, then applies the pending
// writes atomically and releases all held locks.
func (t *Transaction) Commit() error {
	t.mu.Lock()
	if !t.active {
		t.mu.Unlock()
		return enginestatus.Error(enginestatus.KindArgument, "kv: transaction %d is not active", t.id).Err()
	}

	writeKeys := make([]string, 0, len(t.pendingPuts)+len(t.pendingDeletes))
	for k := range t.pendingPuts {
		writeKeys = append(writeKeys, k)
	}
	for k := range t.pendingDeletes {
		writeKeys = append(writeKeys, k)
	}
	puts := t.pendingPuts
	deletes := t.pendingDeletes
	t.mu.Unlock()

	for _, k := range writeKeys {
		if t.store.versionAt(k) > t.snapshotSeq {
			t.abortLocked()
			return enginestatus.Error(enginestatus.KindConflict,
				"kv: transaction %d conflicts with a write committed since its snapshot (key %q)", t.id, k).Err()
		}
	}

	err := t.store.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(dataBucket)
		for k, v := range puts {
			if err := bucket.Put([]byte(k), v); err != nil {
				return err
			}
		}
		for k := range deletes {
			if err := bucket.Delete([]byte(k)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.abortLocked()
		return enginestatus.FromError(enginestatus.KindIO, err).Err()
	}

	t.store.bumpVersions(writeKeys)
	t.finish()
	return nil
}

// Rollback discards all pending writes and releases locks without
// touching the store.
func (t *Transaction) Rollback() error {
	t.mu.Lock()
	if !t.active {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()
	t.finish()
	return nil
}

// abortLocked is the failed-commit path: same cleanup as Rollback.
func (t *Transaction) abortLocked() {
	t.finish()
}

func (t *Transaction) finish() {
	t.mu.Lock()
	t.active = false
	locked := t.lockedKeys
	t.mu.Unlock()

	t.store.locks.release(locked, t.id)
	_ = t.snapshotTx.Rollback() // read-only bbolt tx: always "rollback" to release it
	runtime.SetFinalizer(t, nil)
}
