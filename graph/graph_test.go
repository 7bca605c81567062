package graph

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evalgo/themisgo/entity"
	"github.com/evalgo/themisgo/keyschema"
	"github.com/evalgo/themisgo/kv"
)

func newTestStore(t *testing.T) *kv.Store {
	t.Helper()
	s, err := kv.Open(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newEdge(id, from, to string) *entity.Entity {
	e := entity.New(id)
	e.Set(entity.FieldID, entity.String(id))
	e.Set(entity.FieldFrom, entity.String(from))
	e.Set(entity.FieldTo, entity.String(to))
	return e
}

func persistEdge(t *testing.T, s *kv.Store, e *entity.Entity) {
	t.Helper()
	data, err := entity.Serialize(e)
	require.NoError(t, err)
	require.NoError(t, s.Put(keyschema.GraphEdge(e.EdgeID()), data))
}

func TestAddEdge_RejectsMalformedEdge(t *testing.T) {
	s := newTestStore(t)
	idx := New()

	bad := entity.New("e1")
	bad.Set(entity.FieldFrom, entity.String("a"))
	err := idx.AddEdge(s, bad)
	assert.Error(t, err)
}

func TestAddEdge_DeleteEdge_MirrorUpdates(t *testing.T) {
	s := newTestStore(t)
	idx := New()

	e1 := newEdge("e1", "a", "b")
	require.NoError(t, idx.AddEdge(s, e1))
	persistEdge(t, s, e1)

	out, err := idx.OutNeighbors(s, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, out)

	in, err := idx.InNeighbors(s, "b")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, in)

	require.NoError(t, idx.DeleteEdge(s, "e1"))

	out, err = idx.OutNeighbors(s, "a")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestDeleteEdge_NotFound(t *testing.T) {
	s := newTestStore(t)
	idx := New()
	err := idx.DeleteEdge(s, "missing")
	assert.Error(t, err)
}

func TestRebuildTopology_MatchesLiveMirror(t *testing.T) {
	s := newTestStore(t)
	idx := New()

	e1 := newEdge("e1", "a", "b")
	e2 := newEdge("e2", "b", "c")
	require.NoError(t, idx.AddEdge(s, e1))
	persistEdge(t, s, e1)
	require.NoError(t, idx.AddEdge(s, e2))
	persistEdge(t, s, e2)

	fresh := New()
	require.NoError(t, fresh.RebuildTopology(s))

	out, err := fresh.OutNeighbors(s, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, out)

	assert.Equal(t, 2, fresh.EdgeCount())
	assert.Equal(t, 3, fresh.NodeCount())
}

func TestOutAdjacency_FallsBackToScanWhenUnloaded(t *testing.T) {
	s := newTestStore(t)
	idx := New()

	e1 := newEdge("e1", "a", "b")
	require.NoError(t, idx.AddEdge(s, e1))
	persistEdge(t, s, e1)

	// A fresh, never-rebuilt index has no mirror and must fall back to a
	// persistent scan.
	scanOnly := New()
	adjs, err := scanOnly.OutAdjacency(s, "a")
	require.NoError(t, err)
	require.Len(t, adjs, 1)
	assert.Equal(t, "b", adjs[0].PK)
	assert.Equal(t, "e1", adjs[0].EdgeID)
}

type fakeSaga struct {
	steps []func() error
}

func (f *fakeSaga) AddStep(name string, compensate func() error) {
	f.steps = append(f.steps, compensate)
}

func (f *fakeSaga) compensateAll() error {
	for i := len(f.steps) - 1; i >= 0; i-- {
		if err := f.steps[i](); err != nil {
			return err
		}
	}
	return nil
}

func TestAddEdgeEnrolled_CompensationRemovesFromMirror(t *testing.T) {
	s := newTestStore(t)
	idx := New()
	saga := &fakeSaga{}

	e1 := newEdge("e1", "a", "b")
	require.NoError(t, idx.AddEdgeEnrolled(s, saga, e1))
	persistEdge(t, s, e1)

	out, err := idx.OutNeighbors(s, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, out)

	require.NoError(t, saga.compensateAll())

	idx.mu.Lock()
	_, stillThere := func() (Adjacency, bool) {
		for _, a := range idx.out["a"] {
			if a.EdgeID == "e1" {
				return a, true
			}
		}
		return Adjacency{}, false
	}()
	idx.mu.Unlock()
	assert.False(t, stillThere, "compensation should remove the mirror entry added by AddEdgeEnrolled")
}

func TestDeleteEdgeEnrolled_CompensationRestoresMirror(t *testing.T) {
	s := newTestStore(t)
	idx := New()

	e1 := newEdge("e1", "a", "b")
	require.NoError(t, idx.AddEdge(s, e1))
	persistEdge(t, s, e1)

	saga := &fakeSaga{}
	require.NoError(t, idx.DeleteEdgeEnrolled(s, saga, "e1"))

	out, err := idx.OutNeighbors(s, "a")
	require.NoError(t, err)
	assert.Empty(t, out)

	require.NoError(t, saga.compensateAll())

	idx.mu.Lock()
	restored := len(idx.out["a"]) == 1 && idx.out["a"][0].EdgeID == "e1"
	idx.mu.Unlock()
	assert.True(t, restored, "compensation should restore the mirror entry removed by DeleteEdgeEnrolled")
}

func TestHasCycle(t *testing.T) {
	s := newTestStore(t)
	idx := New()

	e1 := newEdge("e1", "a", "b")
	e2 := newEdge("e2", "b", "c")
	require.NoError(t, idx.AddEdge(s, e1))
	persistEdge(t, s, e1)
	require.NoError(t, idx.AddEdge(s, e2))
	persistEdge(t, s, e2)

	cyclic, err := idx.HasCycle(s, []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.False(t, cyclic)

	e3 := newEdge("e3", "c", "a")
	require.NoError(t, idx.AddEdge(s, e3))
	persistEdge(t, s, e3)

	cyclic, err = idx.HasCycle(s, []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.True(t, cyclic)
}

func TestTopologicalOrder(t *testing.T) {
	s := newTestStore(t)
	idx := New()

	e1 := newEdge("e1", "a", "b")
	e2 := newEdge("e2", "a", "c")
	e3 := newEdge("e3", "b", "d")
	e4 := newEdge("e4", "c", "d")
	for _, e := range []*entity.Entity{e1, e2, e3, e4} {
		require.NoError(t, idx.AddEdge(s, e))
		persistEdge(t, s, e)
	}

	order, err := idx.TopologicalOrder(s, []string{"a", "b", "c", "d"})
	require.NoError(t, err)

	pos := make(map[string]int, len(order))
	for i, n := range order {
		pos[n] = i
	}
	assert.Less(t, pos["a"], pos["b"])
	assert.Less(t, pos["a"], pos["c"])
	assert.Less(t, pos["b"], pos["d"])
	assert.Less(t, pos["c"], pos["d"])
}

func TestTopologicalOrder_CycleIsError(t *testing.T) {
	s := newTestStore(t)
	idx := New()

	e1 := newEdge("e1", "a", "b")
	e2 := newEdge("e2", "b", "a")
	require.NoError(t, idx.AddEdge(s, e1))
	persistEdge(t, s, e1)
	require.NoError(t, idx.AddEdge(s, e2))
	persistEdge(t, s, e2)

	_, err := idx.TopologicalOrder(s, []string{"a", "b"})
	assert.Error(t, err)
}
