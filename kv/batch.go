package kv

import bolt "go.etcd.io/bbolt"

type batchOp struct {
	key     string
	value   []byte
	isDelete bool
}

// Batch accumulates puts and deletes for a single atomic apply, bypassing
// the transaction machinery entirely — it carries no snapshot and no
// per-key locks, so it is only appropriate for writers that do not need
// conflict detection against concurrent transactions.
type Batch struct {
	store *Store
	ops   []batchOp
}

// NewBatch returns an empty write-batch accumulator bound to this store.
func (s *Store) NewBatch() *Batch {
	return &Batch{store: s}
}

// Put stages an unconditional write.
func (b *Batch) Put(key string, value []byte) {
	b.ops = append(b.ops, batchOp{key: key, value: value})
}

// Delete stages an unconditional delete.
func (b *Batch) Delete(key string) {
	b.ops = append(b.ops, batchOp{key: key, isDelete: true})
}

// Apply commits every staged operation atomically. An empty batch is a
// no-op.
func (b *Batch) Apply() error {
	if len(b.ops) == 0 {
		return nil
	}

	err := b.store.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(dataBucket)
		for _, op := range b.ops {
			if op.isDelete {
				if err := bucket.Delete([]byte(op.key)); err != nil {
					return err
				}
				continue
			}
			if err := bucket.Put([]byte(op.key), op.value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	keys := make([]string, len(b.ops))
	for i, op := range b.ops {
		keys[i] = op.key
	}
	b.store.bumpVersions(keys)
	return nil
}
