package kv

import "sync"

// lockTable is the per-key pessimistic write lock used by transactions.
// A key may be held by at most one in-flight transaction at a time;
// acquisition never blocks — a contended key fails the caller immediately,
// per the store's pessimistic-locking failure model.
type lockTable struct {
	mu      sync.Mutex
	holders map[string]uint64 // key -> holding transaction id
}

func newLockTable() *lockTable {
	return &lockTable{holders: make(map[string]uint64)}
}

// tryAcquire attempts to lock key for txnID. Returns true if the lock was
// acquired or already held by txnID itself (re-entrant within the same
// transaction); false if another transaction holds it.
func (lt *lockTable) tryAcquire(key string, txnID uint64) bool {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	holder, held := lt.holders[key]
	if held && holder != txnID {
		return false
	}
	lt.holders[key] = txnID
	return true
}

// release drops every lock held by txnID among the given keys. Safe to
// call with a key the transaction never actually locked.
func (lt *lockTable) release(keys map[string]struct{}, txnID uint64) {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	for key := range keys {
		if lt.holders[key] == txnID {
			delete(lt.holders, key)
		}
	}
}
