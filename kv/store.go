// Package kv is the transactional substrate (C1): an ordered byte-keyed
// store layered over bbolt, offering point reads, prefix scans, write
// batches, and pessimistic-locking MVCC transactions with snapshot reads
// and commit-time write-conflict detection.
//
// The keyspace is intentionally flat — a single bbolt bucket holds every
// key produced by the keyschema package. bbolt's own bucket hierarchy is
// not used to shape the domain; prefixes alone do that, so prefix scans
// compose the same way regardless of which higher-level component wrote
// the key.
package kv

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"

	"github.com/evalgo/themisgo/common"
	"github.com/evalgo/themisgo/enginestatus"
)

// dataBucket is the sole bbolt bucket. Every engine key lives here.
var dataBucket = []byte("data")

// Store wraps a bbolt database and the bookkeeping needed to detect
// write-write conflicts across concurrently open transactions: a per-key
// lock table (enforced at Put/Delete time) and a per-key commit-sequence
// map (checked at commit time against the transaction's snapshot sequence).
type Store struct {
	db     *bolt.DB
	locks  *lockTable
	log    *logrus.Logger

	mu         sync.Mutex
	keyVersion map[string]uint64
	commitSeq  uint64

	txnCounter uint64
}

// Open opens or creates a bbolt-backed store at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("kv: open %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(dataBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("kv: create data bucket: %w", err)
	}

	return &Store{
		db:         db,
		locks:      newLockTable(),
		log:        common.Logger,
		keyVersion: make(map[string]uint64),
	}, nil
}

// Close releases the underlying bbolt file handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get performs a point read against the latest committed state.
func (s *Store) Get(key string) ([]byte, bool, error) {
	var value []byte
	var found bool

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(dataBucket)
		v := b.Get([]byte(key))
		if v != nil {
			value = append([]byte(nil), v...)
			found = true
		}
		return nil
	})
	if err != nil {
		return nil, false, enginestatus.FromError(enginestatus.KindIO, err).Err()
	}
	return value, found, nil
}

// Put writes a key unconditionally, outside any transaction.
func (s *Store) Put(key string, value []byte) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(dataBucket).Put([]byte(key), value)
	})
	if err != nil {
		return enginestatus.FromError(enginestatus.KindIO, err).Err()
	}
	s.bumpVersion(key)
	return nil
}

// Delete removes a key unconditionally, outside any transaction.
func (s *Store) Delete(key string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(dataBucket).Delete([]byte(key))
	})
	if err != nil {
		return enginestatus.FromError(enginestatus.KindIO, err).Err()
	}
	s.bumpVersion(key)
	return nil
}

// Visitor is called for each key/value pair visited by ScanPrefix, in
// lexicographic key order. Returning false stops the scan early.
type Visitor func(key string, value []byte) bool

// ScanPrefix visits every entry whose key starts with prefix, in
// lexicographic order, until the visitor returns false or entries are
// exhausted.
func (s *Store) ScanPrefix(prefix string, visit Visitor) error {
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(dataBucket).Cursor()
		p := []byte(prefix)
		for k, v := c.Seek(p); k != nil && hasPrefix(k, p); k, v = c.Next() {
			if !visit(string(k), append([]byte(nil), v...)) {
				break
			}
		}
		return nil
	})
	if err != nil {
		return enginestatus.FromError(enginestatus.KindIO, err).Err()
	}
	return nil
}

func hasPrefix(k, prefix []byte) bool {
	if len(k) < len(prefix) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}

// bumpVersion records that key was mutated at the current global commit
// sequence, advancing the sequence. Called for every durable mutation,
// whether issued directly or via a transaction commit, so that
// transactions begun afterward see a later snapshot sequence than any
// write that preceded them.
func (s *Store) bumpVersion(key string) {
	s.mu.Lock()
	s.commitSeq++
	s.keyVersion[key] = s.commitSeq
	s.mu.Unlock()
}

// bumpVersions is the multi-key form used by transaction commit and batch
// apply, so every key in one atomic write gets the same new sequence
// number.
func (s *Store) bumpVersions(keys []string) uint64 {
	s.mu.Lock()
	s.commitSeq++
	seq := s.commitSeq
	for _, k := range keys {
		s.keyVersion[k] = seq
	}
	s.mu.Unlock()
	return seq
}

// currentSeq returns the current global commit sequence, used as a
// transaction's snapshot sequence at BeginTransaction time.
func (s *Store) currentSeq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitSeq
}

// versionAt returns the commit sequence at which key was last mutated, or
// 0 if it has never been mutated under this store's lifetime.
func (s *Store) versionAt(key string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keyVersion[key]
}

func (s *Store) nextTxnID() uint64 {
	return atomic.AddUint64(&s.txnCounter, 1)
}
