package txn

import (
	"runtime"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/evalgo/themisgo/entity"
	"github.com/evalgo/themisgo/enginestatus"
	"github.com/evalgo/themisgo/graph"
	"github.com/evalgo/themisgo/index"
	"github.com/evalgo/themisgo/keyschema"
	"github.com/evalgo/themisgo/kv"
	"github.com/evalgo/themisgo/vector"
)

// IsolationLevel selects a transaction's read semantics. The underlying
// kv.Transaction always provides snapshot isolation (see DESIGN.md); both
// levels are accepted so callers can express intent, but ReadCommitted is
// currently indistinguishable in behavior from Snapshot.
type IsolationLevel int

const (
	// IsolationSnapshot is the default: reads see the state committed as
	// of begin_transaction.
	IsolationSnapshot IsolationLevel = iota
	// IsolationReadCommitted is accepted for caller-facing symmetry with
	// the source specification; behaves as IsolationSnapshot.
	IsolationReadCommitted
)

// Transaction is one logical unit of work: a kv.Transaction (the write set
// and snapshot reads), a Saga ledger (compensation for the graph mirror and
// vector cache/ANN effects), and the shared index managers it enrolls
// mutations into.
type Transaction struct {
	id        uint64
	isolation IsolationLevel
	kvTxn     *kv.Transaction
	saga      *Saga
	graphIdx  *graph.Index
	vectorMgr *vector.Manager
	startedAt time.Time
	log       *logrus.Logger
}

// ID returns the transaction's identifier, shared with its underlying
// kv.Transaction.
func (t *Transaction) ID() uint64 { return t.id }

// IsolationLevel reports the level this transaction was begun with.
func (t *Transaction) IsolationLevel() IsolationLevel { return t.isolation }

// IsActive reports whether the transaction is still open.
func (t *Transaction) IsActive() bool { return t.kvTxn.IsActive() }

// StartedAt returns when the transaction began.
func (t *Transaction) StartedAt() time.Time { return t.startedAt }

// Get reads a raw key through the transaction's snapshot, overlaid with its
// own pending writes.
func (t *Transaction) Get(key string) ([]byte, bool, error) {
	return t.kvTxn.Get(key)
}

// PutEntity serializes e and writes it under table:pk, cascading secondary
// index updates first (per the index package's read-modify-write
// convention: Put must observe the pre-image before the row is
// overwritten).
func (t *Transaction) PutEntity(table string, e *entity.Entity) error {
	if err := index.Put(t.kvTxn, table, e); err != nil {
		return err
	}
	data, err := entity.Serialize(e)
	if err != nil {
		return err
	}
	return t.kvTxn.Put(keyschema.Entity(table, e.PK), data)
}

// EraseEntity removes table:pk and cascades its secondary index entries.
func (t *Transaction) EraseEntity(table, pk string) error {
	if err := index.Erase(t.kvTxn, table, pk); err != nil {
		return err
	}
	return t.kvTxn.Delete(keyschema.Entity(table, pk))
}

// AddEdge persists edge's own record under graph:edge:id and enrolls its
// adjacency-key and mirror update, registering a SAGA compensation step for
// the mirror.
func (t *Transaction) AddEdge(edge *entity.Entity) error {
	if !edge.IsEdge() {
		return enginestatus.Error(enginestatus.KindArgument,
			"txn: edge entity must have id, _from, and _to fields").Err()
	}
	data, err := entity.Serialize(edge)
	if err != nil {
		return err
	}
	if err := t.kvTxn.Put(keyschema.GraphEdge(edge.EdgeID()), data); err != nil {
		return err
	}
	return t.graphIdx.AddEdgeEnrolled(t.kvTxn, t.saga, edge)
}

// DeleteEdge removes edgeID's own record and enrolls the adjacency-key and
// mirror removal, registering a SAGA compensation step for the mirror.
func (t *Transaction) DeleteEdge(edgeID string) error {
	if err := t.graphIdx.DeleteEdgeEnrolled(t.kvTxn, t.saga, edgeID); err != nil {
		return err
	}
	return t.kvTxn.Delete(keyschema.GraphEdge(edgeID))
}

// AddVector persists e under the vector namespace ns and enrolls the
// cache/ANN insertion, registering a SAGA compensation step.
func (t *Transaction) AddVector(ns string, e *entity.Entity, vectorField string) error {
	return t.vectorMgr.AddEntityEnrolled(t.kvTxn, t.saga, ns, e, vectorField)
}

// UpdateVector replaces e's vector in namespace ns, capturing the pre-image
// for compensation.
func (t *Transaction) UpdateVector(ns string, e *entity.Entity, vectorField string) error {
	return t.vectorMgr.UpdateEntityEnrolled(t.kvTxn, t.saga, ns, e, vectorField)
}

// RemoveVector deletes pk from vector namespace ns, registering a SAGA
// compensation step that restores it on rollback.
func (t *Transaction) RemoveVector(ns, pk string) error {
	return t.vectorMgr.RemoveByPKEnrolled(t.kvTxn, t.saga, ns, pk)
}

// Commit attempts the underlying KV commit. On success the SAGA ledger is
// discarded; on failure, SAGA compensation runs in reverse registration
// order and the KV conflict is returned to the caller.
func (t *Transaction) Commit() error {
	if err := t.kvTxn.Commit(); err != nil {
		t.saga.Compensate()
		return err
	}
	t.saga.Clear()
	runtime.SetFinalizer(t, nil)
	return nil
}

// Rollback discards the KV write set and unconditionally runs SAGA
// compensation.
func (t *Transaction) Rollback() error {
	err := t.kvTxn.Rollback()
	t.saga.Compensate()
	runtime.SetFinalizer(t, nil)
	return err
}
