package filestore

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocalStore(t *testing.T) *Local {
	t.Helper()
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestLocalPutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newLocalStore(t)

	content := []byte("contract bytes")
	key := ObjectKey("loan", "loan-1", "contract", FileID(mustHash(content)))

	require.NoError(t, store.Put(ctx, key, bytes.NewReader(content), "application/pdf"))

	got, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	exists, err := store.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestLocalGetMissingKey(t *testing.T) {
	ctx := context.Background()
	store := newLocalStore(t)

	_, err := store.Get(ctx, "loan/nope/contract/file/abc")
	assert.Equal(t, ErrNotFound, err)

	exists, err := store.Exists(ctx, "loan/nope/contract/file/abc")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestLocalDeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newLocalStore(t)

	key := "loan/loan-1/contract/file/abc"
	require.NoError(t, store.Put(ctx, key, bytes.NewReader([]byte("x")), "text/plain"))
	require.NoError(t, store.Delete(ctx, key))

	exists, err := store.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists)

	// deleting again is not an error
	require.NoError(t, store.Delete(ctx, key))
}

func TestLocalListByPrefix(t *testing.T) {
	ctx := context.Background()
	store := newLocalStore(t)

	keys := []string{
		"loan/loan-1/contract/file/aaa",
		"loan/loan-1/appraisal/file/bbb",
		"loan/loan-2/contract/file/ccc",
	}
	for _, key := range keys {
		require.NoError(t, store.Put(ctx, key, bytes.NewReader([]byte(key)), "text/plain"))
	}

	listed, err := store.List(ctx, "loan/loan-1/")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{keys[0], keys[1]}, listed)

	all, err := store.List(ctx, "loan/")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestLocalCopy(t *testing.T) {
	ctx := context.Background()
	store := newLocalStore(t)

	content := []byte("appraisal v1")
	from := "loan/loan-1/appraisal/file/abc"
	to := "loan/loan-1/appraisal/versions/abc.1"
	require.NoError(t, store.Put(ctx, from, bytes.NewReader(content), "application/pdf"))

	require.NoError(t, store.Copy(ctx, from, to))

	got, err := store.Get(ctx, to)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	// the source is untouched
	got, err = store.Get(ctx, from)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	err = store.Copy(ctx, "loan/nope/appraisal/file/abc", to)
	assert.Equal(t, ErrNotFound, err)
}

func TestLocalAbsPath(t *testing.T) {
	store := newLocalStore(t)

	abs, err := store.AbsPath("loan/loan-1/contract/file/aaa")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(abs))
	assert.Contains(t, abs, filepath.FromSlash("loan/loan-1/contract/file/aaa"))
}

func TestLocalRejectsTraversalKeys(t *testing.T) {
	ctx := context.Background()
	store := newLocalStore(t)

	err := store.Put(ctx, "../escape", bytes.NewReader([]byte("x")), "text/plain")
	assert.Error(t, err)

	_, err = store.Get(ctx, "/etc/passwd")
	assert.Error(t, err)
}

func mustHash(content []byte) string {
	hash256, _ := Digest(content)
	return hash256
}
