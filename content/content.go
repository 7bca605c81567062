// Package content stores the two opaque namespaces the (out-of-scope)
// ingestion pipeline writes through: content chunks and top-level content
// records. The engine has no opinion on their contents; it only stores,
// fetches, and deletes them transactionally using C2's entity codec and
// C3's key namespace.
package content

import (
	"github.com/evalgo/themisgo/entity"
	"github.com/evalgo/themisgo/keyschema"
	"github.com/evalgo/themisgo/kv"
)

// KV is the key-value surface content operations persist through;
// satisfied by both *kv.Store and *kv.Transaction.
type KV interface {
	Get(key string) ([]byte, bool, error)
	Put(key string, value []byte) error
	Delete(key string) error
	ScanPrefix(prefix string, visit kv.Visitor) error
}

// PutChunk writes a content chunk under chunk:documentPK:chunkID.
func PutChunk(kvHandle KV, documentPK, chunkID string, chunk *entity.Entity) error {
	data, err := entity.Serialize(chunk)
	if err != nil {
		return err
	}
	return kvHandle.Put(keyschema.Chunk(documentPK, chunkID), data)
}

// GetChunk reads a content chunk, reporting whether it exists.
func GetChunk(kvHandle KV, documentPK, chunkID string) (*entity.Entity, bool, error) {
	data, ok, err := kvHandle.Get(keyschema.Chunk(documentPK, chunkID))
	if err != nil || !ok {
		return nil, false, err
	}
	e, err := entity.Deserialize(chunkID, data)
	if err != nil {
		return nil, false, err
	}
	return e, true, nil
}

// DeleteChunksFor removes every chunk belonging to documentPK.
func DeleteChunksFor(kvHandle KV, documentPK string) error {
	var keys []string
	err := kvHandle.ScanPrefix(keyschema.ChunkPrefix(documentPK), func(key string, _ []byte) bool {
		keys = append(keys, key)
		return true
	})
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := kvHandle.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

// PutContent writes a top-level content record under content:pk.
func PutContent(kvHandle KV, pk string, rec *entity.Entity) error {
	data, err := entity.Serialize(rec)
	if err != nil {
		return err
	}
	return kvHandle.Put(keyschema.Content(pk), data)
}

// GetContent reads a top-level content record, reporting whether it exists.
func GetContent(kvHandle KV, pk string) (*entity.Entity, bool, error) {
	data, ok, err := kvHandle.Get(keyschema.Content(pk))
	if err != nil || !ok {
		return nil, false, err
	}
	e, err := entity.Deserialize(pk, data)
	if err != nil {
		return nil, false, err
	}
	return e, true, nil
}

// DeleteContent removes content:pk.
func DeleteContent(kvHandle KV, pk string) error {
	return kvHandle.Delete(keyschema.Content(pk))
}
