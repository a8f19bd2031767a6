package storage

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocal(t *testing.T, dir string) *LocalStorage {
	t.Helper()
	s, err := NewLocalStorage(LocalConfig{BasePath: dir}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return s
}

func TestLocalStorage_PutGetDelete(t *testing.T) {
	ctx := context.Background()
	s := newLocal(t, t.TempDir())

	require.NoError(t, s.Put(ctx, "drafts/a/b.json", []byte(`{"v":1}`), PutOptions{}))
	require.NoError(t, s.Put(ctx, "drafts/a/b.json", []byte(`{"v":2}`), PutOptions{}))

	data, err := s.Get(ctx, "drafts/a/b.json")
	require.NoError(t, err)
	assert.Equal(t, `{"v":2}`, string(data))

	ok, err := s.Exists(ctx, "drafts/a/b.json")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.Delete(ctx, "drafts/a/b.json"))
	require.NoError(t, s.Delete(ctx, "drafts/a/b.json"))

	_, err = s.Get(ctx, "drafts/a/b.json")
	assert.True(t, IsNotFound(err))
}

func TestLocalStorage_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	require.NoError(t, newLocal(t, dir).Put(ctx, "k.json", []byte("payload"), PutOptions{}))

	data, err := newLocal(t, dir).Get(ctx, "k.json")
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestLocalStorage_LeavesNoTempFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := newLocal(t, dir)

	require.NoError(t, s.Put(ctx, "x/y.json", []byte("1"), PutOptions{}))

	entries, err := os.ReadDir(filepath.Join(dir, "x"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "y.json", entries[0].Name())
}

func TestLocalStorage_RejectsBadKeys(t *testing.T) {
	ctx := context.Background()
	s := newLocal(t, t.TempDir())

	for _, key := range []string{"", "../escape", "a/../../b", "/etc/passwd"} {
		err := s.Put(ctx, key, []byte("x"), PutOptions{})
		assert.ErrorIs(t, err, ErrInvalidKey, "key %q", key)
	}
}

func TestLocalStorage_MaxSize(t *testing.T) {
	s := newLocal(t, t.TempDir())
	err := s.Put(context.Background(), "big.json", make([]byte, 11), PutOptions{MaxSize: 10})
	assert.ErrorIs(t, err, ErrTooLarge)
}
