package kv

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	store, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestBoltStoreGetSetDelete(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get("/commissaire/hosts/10.0.0.1")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Set("/commissaire/hosts/10.0.0.1", []byte(`{"address":"10.0.0.1"}`)))

	value, err := store.Get("/commissaire/hosts/10.0.0.1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"address":"10.0.0.1"}`, string(value))

	require.NoError(t, store.Delete("/commissaire/hosts/10.0.0.1"))
	_, err = store.Get("/commissaire/hosts/10.0.0.1")
	assert.ErrorIs(t, err, ErrNotFound)

	err = store.Delete("/commissaire/hosts/10.0.0.1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBoltStoreGetDirMissing(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetDir("/commissaire/clusters/")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestBoltStoreGetDirLeavesOnly(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Set("/commissaire/hosts/10.0.0.1", []byte(`{"address":"10.0.0.1"}`)))
	require.NoError(t, store.Set("/commissaire/hosts/10.0.0.2", []byte(`{"address":"10.0.0.2"}`)))

	entries, err := store.GetDir("/commissaire/hosts")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, entry := range entries {
		assert.NotNil(t, entry.Value)
	}
}

func TestBoltStoreGetDirIntermediateEntries(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Set("/commissaire/cluster/dev/restart", []byte(`{"status":"finished"}`)))
	require.NoError(t, store.Set("/commissaire/cluster/prod/restart", []byte(`{"status":"finished"}`)))

	entries, err := store.GetDir("/commissaire/cluster/")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	names := []string{entries[0].Key, entries[1].Key}
	assert.Contains(t, names, "/commissaire/cluster/dev")
	assert.Contains(t, names, "/commissaire/cluster/prod")
	for _, entry := range entries {
		assert.Nil(t, entry.Value, "intermediate directory entries carry no value")
	}
}

func TestBoltStoreGetDirEmptiedAfterDelete(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Set("/commissaire/hosts/10.0.0.1", []byte(`{}`)))
	require.NoError(t, store.Delete("/commissaire/hosts/10.0.0.1"))

	_, err := store.GetDir("/commissaire/hosts/")
	assert.ErrorIs(t, err, ErrNotFound)
}
