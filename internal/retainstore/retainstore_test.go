package retainstore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
)

func newMemLevelDBStore(t *testing.T) *LevelDBStore {
	t.Helper()
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	require.NoError(t, err)
	return &LevelDBStore{db: db}
}

func TestLevelDBStoreSaveLoadRoundTrip(t *testing.T) {
	s := newMemLevelDBStore(t)
	defer s.Close()

	require.NoError(t, s.Save(map[string][]byte{"a": {1}, "b": {2}}))
	got, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"a": {1}, "b": {2}}, got)

	require.NoError(t, s.Save(map[string][]byte{"a": {9}}))
	got, err = s.Load()
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"a": {9}}, got)
}

func TestFileStoreSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(filepath.Join(dir, "retain.dat"))

	values := map[string][]byte{"counter": {0x01, 0x02}, "setpoint": {0x03}}
	require.NoError(t, s.Save(values))

	got, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, values, got)
}

func TestFileStoreLoadMissingFileIsEmpty(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(filepath.Join(dir, "missing.dat"))
	got, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFileStoreSaveOverwritesRemovedKeys(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(filepath.Join(dir, "retain.dat"))

	require.NoError(t, s.Save(map[string][]byte{"a": {1}, "b": {2}}))
	require.NoError(t, s.Save(map[string][]byte{"a": {9}}))

	got, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"a": {9}}, got)
}

func TestManagerFlushesOnlyWhenDirtyAndIntervalElapsed(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(filepath.Join(dir, "retain.dat"))
	m := NewManager()

	start := time.Now()
	m.Configure(store, 10*time.Millisecond, start)

	calls := 0
	snap := func() (map[string][]byte, error) {
		calls++
		return map[string][]byte{"x": {byte(calls)}}, nil
	}

	require.NoError(t, m.Tick(start, snap))
	assert.Equal(t, 0, calls, "not dirty yet: no flush")

	m.MarkDirty()
	require.NoError(t, m.Tick(start, snap))
	assert.Equal(t, 0, calls, "interval not elapsed: no flush")

	require.NoError(t, m.Tick(start.Add(20*time.Millisecond), snap))
	assert.Equal(t, 1, calls)

	require.NoError(t, m.Tick(start.Add(30*time.Millisecond), snap))
	assert.Equal(t, 1, calls, "clean after flush: no further saves")
}

func TestManagerFlushIsUnconditional(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(filepath.Join(dir, "retain.dat"))
	m := NewManager()
	m.Configure(store, time.Hour, time.Now())

	called := false
	require.NoError(t, m.Flush(time.Now(), func() (map[string][]byte, error) {
		called = true
		return map[string][]byte{}, nil
	}))
	assert.True(t, called)
}

func TestManagerNilStoreIsNoop(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Tick(time.Now(), func() (map[string][]byte, error) {
		t.Fatal("snapshot should not be called with no store configured")
		return nil, nil
	}))
	require.NoError(t, m.Close())
}
