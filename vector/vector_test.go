package vector

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evalgo/themisgo/entity"
	"github.com/evalgo/themisgo/kv"
)

func newTestStore(t *testing.T) *kv.Store {
	t.Helper()
	s, err := kv.Open(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func vecEntity(pk string, vec []float32) *entity.Entity {
	e := entity.New(pk)
	e.Set("embedding", entity.Vector(vec))
	return e
}

func TestInit_IdempotentOnMatchingConfig(t *testing.T) {
	mgr := NewManager()
	cfg := DefaultConfig(3)
	require.NoError(t, mgr.Init("docs", cfg))
	require.NoError(t, mgr.Init("docs", cfg))
}

func TestInit_RejectsMismatchedReinit(t *testing.T) {
	mgr := NewManager()
	require.NoError(t, mgr.Init("docs", DefaultConfig(3)))
	err := mgr.Init("docs", DefaultConfig(4))
	assert.Error(t, err)
}

func TestAddEntity_RejectsDimensionMismatch(t *testing.T) {
	s := newTestStore(t)
	mgr := NewManager()
	require.NoError(t, mgr.Init("docs", DefaultConfig(3)))

	err := mgr.AddEntity(s, "docs", vecEntity("d1", []float32{1, 2}), "embedding")
	assert.Error(t, err)
}

func TestAddEntity_PersistsAndIndexesEntity(t *testing.T) {
	s := newTestStore(t)
	mgr := NewManager()
	require.NoError(t, mgr.Init("docs", DefaultConfig(2)))

	require.NoError(t, mgr.AddEntity(s, "docs", vecEntity("d1", []float32{0, 0}), "embedding"))
	require.NoError(t, mgr.AddEntity(s, "docs", vecEntity("d2", []float32{10, 10}), "embedding"))

	stats, err := mgr.Stats("docs")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Count)

	matches, err := mgr.SearchKNN("docs", []float32{0, 1}, 1, nil)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "d1", matches[0].PK)
}

func TestSearchKNN_KLargerThanPopulationReturnsAll(t *testing.T) {
	s := newTestStore(t)
	mgr := NewManager()
	require.NoError(t, mgr.Init("docs", DefaultConfig(1)))
	require.NoError(t, mgr.AddEntity(s, "docs", vecEntity("d1", []float32{1}), "embedding"))
	require.NoError(t, mgr.AddEntity(s, "docs", vecEntity("d2", []float32{2}), "embedding"))

	matches, err := mgr.SearchKNN("docs", []float32{0}, 10, nil)
	require.NoError(t, err)
	assert.Len(t, matches, 2)
	assert.Equal(t, "d1", matches[0].PK)
	assert.Equal(t, "d2", matches[1].PK)
}

func TestSearchKNN_WhitelistRestrictsToPKs(t *testing.T) {
	s := newTestStore(t)
	mgr := NewManager()
	require.NoError(t, mgr.Init("docs", DefaultConfig(1)))
	require.NoError(t, mgr.AddEntity(s, "docs", vecEntity("d1", []float32{1}), "embedding"))
	require.NoError(t, mgr.AddEntity(s, "docs", vecEntity("d2", []float32{2}), "embedding"))
	require.NoError(t, mgr.AddEntity(s, "docs", vecEntity("d3", []float32{3}), "embedding"))

	matches, err := mgr.SearchKNN("docs", []float32{0}, 10, []string{"d2", "d3"})
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "d2", matches[0].PK)
}

func TestSearchKNN_EmptyNamespaceReturnsEmpty(t *testing.T) {
	mgr := NewManager()
	require.NoError(t, mgr.Init("docs", DefaultConfig(1)))
	matches, err := mgr.SearchKNN("docs", []float32{0}, 5, nil)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestSearchKNN_ArgumentErrors(t *testing.T) {
	mgr := NewManager()
	require.NoError(t, mgr.Init("docs", DefaultConfig(2)))

	_, err := mgr.SearchKNN("docs", []float32{0, 0}, 0, nil)
	assert.Error(t, err)

	_, err = mgr.SearchKNN("docs", []float32{0}, 1, nil)
	assert.Error(t, err)
}

func TestUpdateEntity_ReplacesVector(t *testing.T) {
	s := newTestStore(t)
	mgr := NewManager()
	require.NoError(t, mgr.Init("docs", DefaultConfig(2)))
	require.NoError(t, mgr.AddEntity(s, "docs", vecEntity("d1", []float32{0, 0}), "embedding"))

	require.NoError(t, mgr.UpdateEntity(s, "docs", vecEntity("d1", []float32{100, 100}), "embedding"))

	matches, err := mgr.SearchKNN("docs", []float32{100, 100}, 1, nil)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "d1", matches[0].PK)
	assert.InDelta(t, 0, matches[0].Distance, 1e-6)
}

func TestUpdateEntity_NotFoundIsError(t *testing.T) {
	s := newTestStore(t)
	mgr := NewManager()
	require.NoError(t, mgr.Init("docs", DefaultConfig(2)))

	err := mgr.UpdateEntity(s, "docs", vecEntity("missing", []float32{0, 0}), "embedding")
	assert.Error(t, err)
}

func TestRemoveByPK_TombstonesAndExcludesFromFutureSearch(t *testing.T) {
	s := newTestStore(t)
	mgr := NewManager()
	require.NoError(t, mgr.Init("docs", DefaultConfig(1)))
	require.NoError(t, mgr.AddEntity(s, "docs", vecEntity("d1", []float32{1}), "embedding"))
	require.NoError(t, mgr.AddEntity(s, "docs", vecEntity("d2", []float32{2}), "embedding"))

	require.NoError(t, mgr.RemoveByPK(s, "docs", "d1"))

	matches, err := mgr.SearchKNN("docs", []float32{0}, 10, nil)
	require.NoError(t, err)
	for _, m := range matches {
		assert.NotEqual(t, "d1", m.PK)
	}

	stats, err := mgr.Stats("docs")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Count)
}

func TestRemoveByPK_NotFoundIsError(t *testing.T) {
	s := newTestStore(t)
	mgr := NewManager()
	require.NoError(t, mgr.Init("docs", DefaultConfig(1)))
	err := mgr.RemoveByPK(s, "docs", "missing")
	assert.Error(t, err)
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

func TestAddEntityEnrolled_CompensationRemoves(t *testing.T) {
	s := newTestStore(t)
	mgr := NewManager()
	saga := &fakeSaga{}
	require.NoError(t, mgr.Init("docs", DefaultConfig(1)))

	require.NoError(t, mgr.AddEntityEnrolled(s, saga, "docs", vecEntity("d1", []float32{1}), "embedding"))

	stats, err := mgr.Stats("docs")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Count)

	require.NoError(t, saga.compensateAll())

	stats, err = mgr.Stats("docs")
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Count)
}

func TestRemoveByPKEnrolled_CompensationRestores(t *testing.T) {
	s := newTestStore(t)
	mgr := NewManager()
	require.NoError(t, mgr.Init("docs", DefaultConfig(1)))
	require.NoError(t, mgr.AddEntity(s, "docs", vecEntity("d1", []float32{1}), "embedding"))

	saga := &fakeSaga{}
	require.NoError(t, mgr.RemoveByPKEnrolled(s, saga, "docs", "d1"))

	stats, err := mgr.Stats("docs")
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Count)

	require.NoError(t, saga.compensateAll())

	stats, err = mgr.Stats("docs")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Count)
}

func TestSaveIndex_LoadIndex_PreservesSearchResults(t *testing.T) {
	s := newTestStore(t)
	mgr := NewManager()
	require.NoError(t, mgr.Init("docs", DefaultConfig(2)))
	require.NoError(t, mgr.AddEntity(s, "docs", vecEntity("d1", []float32{0, 0}), "embedding"))
	require.NoError(t, mgr.AddEntity(s, "docs", vecEntity("d2", []float32{10, 10}), "embedding"))
	require.NoError(t, mgr.AddEntity(s, "docs", vecEntity("d3", []float32{20, 20}), "embedding"))

	before, err := mgr.SearchKNN("docs", []float32{1, 1}, 3, nil)
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, mgr.SaveIndex("docs", dir))

	fresh := NewManager()
	require.NoError(t, fresh.Init("docs", DefaultConfig(2)))
	require.NoError(t, fresh.LoadIndex("docs", dir))

	after, err := fresh.SearchKNN("docs", []float32{1, 1}, 3, nil)
	require.NoError(t, err)

	require.Equal(t, len(before), len(after))
	for i := range before {
		assert.Equal(t, before[i].PK, after[i].PK)
		assert.InDelta(t, before[i].Distance, after[i].Distance, 1e-9)
	}
}

func TestShutdown_SavesWhenAutoSaveEnabled(t *testing.T) {
	s := newTestStore(t)
	dir := t.TempDir()
	mgr := NewManager()
	cfg := DefaultConfig(1)
	cfg.PersistDir = dir
	cfg.AutoSave = true
	require.NoError(t, mgr.Init("docs", cfg))
	require.NoError(t, mgr.AddEntity(s, "docs", vecEntity("d1", []float32{1}), "embedding"))

	require.NoError(t, mgr.Shutdown("docs"))

	fresh := NewManager()
	require.NoError(t, fresh.Init("docs", cfg))
	require.NoError(t, fresh.LoadIndex("docs", dir))
	stats, err := fresh.Stats("docs")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Count)
}

func TestSetEfSearch_DoesNotError(t *testing.T) {
	mgr := NewManager()
	require.NoError(t, mgr.Init("docs", DefaultConfig(2)))
	assert.NoError(t, mgr.SetEfSearch("docs", 128))
}

func TestCompact_PreservesLiveEntriesOnly(t *testing.T) {
	s := newTestStore(t)
	mgr := NewManager()
	require.NoError(t, mgr.Init("docs", DefaultConfig(1)))
	require.NoError(t, mgr.AddEntity(s, "docs", vecEntity("d1", []float32{1}), "embedding"))
	require.NoError(t, mgr.AddEntity(s, "docs", vecEntity("d2", []float32{2}), "embedding"))
	require.NoError(t, mgr.RemoveByPK(s, "docs", "d1"))

	require.NoError(t, mgr.Compact("docs"))

	stats, err := mgr.Stats("docs")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Count)

	matches, err := mgr.SearchKNN("docs", []float32{2}, 5, nil)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "d2", matches[0].PK)
}
