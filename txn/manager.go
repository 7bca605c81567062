package txn

import (
	"runtime"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/evalgo/themisgo/graph"
	"github.com/evalgo/themisgo/kv"
	"github.com/evalgo/themisgo/vector"
)

// completedRecord is a finished transaction's retained summary, kept for
// post-hoc statistics until swept by CleanupOldTransactions.
type completedRecord struct {
	id        uint64
	committed bool
	beginTime time.Time
	endTime   time.Time
}

// Manager owns transaction lifecycle: begin, lookup, commit, rollback, and
// timeout-based cleanup of the completed pool, plus lifetime statistics.
type Manager struct {
	store     *kv.Store
	graphIdx  *graph.Index
	vectorMgr *vector.Manager
	log       *logrus.Logger

	mu        sync.Mutex
	active    map[uint64]*Transaction
	completed map[uint64]*completedRecord

	stats statsTracker
}

// NewManager constructs a transaction manager over the given KV store,
// graph index, and vector manager — the same instances every caller shares
// outside a transaction, so transactional and non-transactional operations
// observe the same state.
func NewManager(store *kv.Store, graphIdx *graph.Index, vectorMgr *vector.Manager, log *logrus.Logger) *Manager {
	return &Manager{
		store:     store,
		graphIdx:  graphIdx,
		vectorMgr: vectorMgr,
		log:       log,
		active:    make(map[uint64]*Transaction),
		completed: make(map[uint64]*completedRecord),
	}
}

// Begin allocates a new transaction at the given isolation level, wrapping
// a fresh kv.Transaction and an empty SAGA ledger, and tracks it in the
// active table.
func (m *Manager) Begin(isolation IsolationLevel) (*Transaction, error) {
	kvTxn, err := m.store.BeginTransaction()
	if err != nil {
		return nil, err
	}

	t := &Transaction{
		id:        kvTxn.ID(),
		isolation: isolation,
		kvTxn:     kvTxn,
		saga:      NewSaga(m.log),
		graphIdx:  m.graphIdx,
		vectorMgr: m.vectorMgr,
		startedAt: time.Now(),
		log:       m.log,
	}

	runtime.SetFinalizer(t, func(dropped *Transaction) {
		if dropped.IsActive() {
			if m.log != nil {
				m.log.WithField("txn_id", dropped.id).
					Warn("txn: transaction dropped without commit or rollback, rolling back")
			}
			_ = m.Rollback(dropped.id)
		}
	})

	m.mu.Lock()
	m.active[t.id] = t
	m.mu.Unlock()

	m.stats.recordBegin()
	return t, nil
}

// Get looks up an active transaction by id.
func (m *Manager) Get(id uint64) (*Transaction, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.active[id]
	return t, ok
}

// Commit commits the transaction with the given id: on success the SAGA
// ledger clears; on a KV conflict, SAGA compensation runs and the
// transaction still moves to the completed pool as aborted. Either way the
// transaction leaves the active table.
func (m *Manager) Commit(id uint64) error {
	m.mu.Lock()
	t, ok := m.active[id]
	if ok {
		delete(m.active, id)
	}
	m.mu.Unlock()
	if !ok {
		return errTransactionNotFound(id)
	}

	err := t.Commit()
	now := time.Now()
	duration := now.Sub(t.startedAt)

	m.mu.Lock()
	m.completed[id] = &completedRecord{id: id, committed: err == nil, beginTime: t.startedAt, endTime: now}
	m.mu.Unlock()

	if err == nil {
		m.stats.recordCommit(duration)
	} else {
		m.stats.recordAbort(duration)
	}
	return err
}

// Rollback rolls back the transaction with the given id, running SAGA
// compensation unconditionally, and moves it to the completed pool.
func (m *Manager) Rollback(id uint64) error {
	m.mu.Lock()
	t, ok := m.active[id]
	if ok {
		delete(m.active, id)
	}
	m.mu.Unlock()
	if !ok {
		return errTransactionNotFound(id)
	}

	err := t.Rollback()
	now := time.Now()
	duration := now.Sub(t.startedAt)

	m.mu.Lock()
	m.completed[id] = &completedRecord{id: id, committed: false, beginTime: t.startedAt, endTime: now}
	m.mu.Unlock()

	m.stats.recordAbort(duration)
	return err
}

// CleanupOldTransactions evicts completed entries whose begin time is
// older than maxAge, returning the number evicted. It never touches the
// active table.
func (m *Manager) CleanupOldTransactions(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	m.mu.Lock()
	defer m.mu.Unlock()

	evicted := 0
	for id, rec := range m.completed {
		if rec.beginTime.Before(cutoff) {
			delete(m.completed, id)
			evicted++
		}
	}
	return evicted
}

// Stats returns a snapshot of lifetime counters and current pool sizes.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	active := len(m.active)
	completed := len(m.completed)
	m.mu.Unlock()
	return m.stats.snapshot(active, completed)
}

func errTransactionNotFound(id uint64) error {
	return &transactionNotFoundError{id: id}
}

type transactionNotFoundError struct {
	id uint64
}

func (e *transactionNotFoundError) Error() string {
	return "txn: transaction not found or already completed"
}
