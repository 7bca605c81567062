package kv

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engine.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_PutGetDelete(t *testing.T) {
	s := newTestStore(t)

	_, found, err := s.Get("users:u1")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.Put("users:u1", []byte("alice")))

	v, found, err := s.Get("users:u1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "alice", string(v))

	require.NoError(t, s.Delete("users:u1"))
	_, found, err = s.Get("users:u1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStore_ScanPrefix(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Put("users:a", []byte("1")))
	require.NoError(t, s.Put("users:b", []byte("2")))
	require.NoError(t, s.Put("orders:a", []byte("3")))

	var seen []string
	err := s.ScanPrefix("users:", func(key string, value []byte) bool {
		seen = append(seen, key)
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"users:a", "users:b"}, seen)
}

func TestStore_ScanPrefix_StopsEarly(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Put("users:a", []byte("1")))
	require.NoError(t, s.Put("users:b", []byte("2")))
	require.NoError(t, s.Put("users:c", []byte("3")))

	var seen []string
	err := s.ScanPrefix("users:", func(key string, value []byte) bool {
		seen = append(seen, key)
		return len(seen) < 2
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"users:a", "users:b"}, seen)
}

func TestBatch_Apply(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Put("users:a", []byte("old")))

	b := s.NewBatch()
	b.Put("users:a", []byte("new"))
	b.Put("users:b", []byte("created"))
	b.Delete("users:missing")
	require.NoError(t, b.Apply())

	v, found, err := s.Get("users:a")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "new", string(v))

	v, found, err = s.Get("users:b")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "created", string(v))
}

func TestBatch_EmptyApplyIsNoop(t *testing.T) {
	s := newTestStore(t)
	b := s.NewBatch()
	require.NoError(t, b.Apply())
}
