package blobstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	data := []byte("tree")
	require.NoError(t, store.Put(ctx, "a/1", data))
	data[0] = 'X'

	got, err := ReadAll(ctx, store, "a/1")
	require.NoError(t, err)
	assert.Equal(t, "tree", string(got), "Put copies its input")

	w, err := store.Create(ctx, "a/2")
	require.NoError(t, err)
	_, err = w.Write([]byte("traits"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	require.NoError(t, store.Put(ctx, "b/1", nil))
	got, err = ReadAll(ctx, store, "b/1")
	require.NoError(t, err)
	assert.Empty(t, got)

	names, err := store.List(ctx, "a/")
	require.NoError(t, err)
	assert.Equal(t, []string{"a/1", "a/2"}, names)

	blob, err := store.Open(ctx, "a/2")
	require.NoError(t, err)
	buf := make([]byte, 3)
	n, err := blob.ReadAt(ctx, buf, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, "its", string(buf))

	require.NoError(t, store.Delete(ctx, "a/2"))
	_, err = store.Open(ctx, "a/2")
	assert.ErrorIs(t, err, ErrNotFound)
}
