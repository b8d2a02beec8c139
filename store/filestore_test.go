package store

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func newTestLocal(t *testing.T) *Local {
	t.Helper()

	s, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestLocal_WriteAndRead(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	s := newTestLocal(t)
	ctx := context.Background()

	require.NoError(t, writeFile(ctx, s, "a/b/file.txt", []byte("hello, storage")))

	got, err := readFile(ctx, s, "a/b/file.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello, storage", string(got))

	require.NoError(t, writeFile(ctx, s, "a/b/file.txt", []byte("short")))
	got, err = readFile(ctx, s, "a/b/file.txt")
	require.NoError(t, err)
	assert.Equal(t, "short", string(got))
}

func TestLocal_WriteIsAtomic(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	s := newTestLocal(t)
	ctx := context.Background()
	require.NoError(t, writeFile(ctx, s, "model", []byte("old")))

	w, err := s.Write(ctx, "model")
	require.NoError(t, err)
	_, err = io.WriteString(w, "new content")
	require.NoError(t, err)

	got, err := readFile(ctx, s, "model")
	require.NoError(t, err)
	assert.Equal(t, "old", string(got), "target must not change before Close")

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	got, err = readFile(ctx, s, "model")
	require.NoError(t, err)
	assert.Equal(t, "new content", string(got))

	entries, err := os.ReadDir(s.Root())
	require.NoError(t, err)
	require.Len(t, entries, 1, "temporary files must be renamed away")
}

func TestLocal_Abort(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	s := newTestLocal(t)
	ctx := context.Background()

	w, err := s.Write(ctx, "draft")
	require.NoError(t, err)
	_, err = io.WriteString(w, "partial")
	require.NoError(t, err)
	require.NoError(t, w.(interface{ Abort() error }).Abort())
	require.NoError(t, w.Close())

	ok, err := s.Exists(ctx, "draft")
	require.NoError(t, err)
	assert.False(t, ok)

	entries, err := os.ReadDir(s.Root())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLocal_ReadNotExist(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	s := newTestLocal(t)
	_, err := s.Read(context.Background(), "no-such-file")
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLocal_DeleteIdempotent(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	s := newTestLocal(t)
	ctx := context.Background()

	require.NoError(t, s.Delete(ctx, "ghost"))
	require.NoError(t, writeFile(ctx, s, "tmp", []byte("x")))

	ok, err := s.Exists(ctx, "tmp")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.Delete(ctx, "tmp"))
	ok, err = s.Exists(ctx, "tmp")
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, s.Delete(ctx, "tmp"))
}

func TestLocal_RejectsEscapingPaths(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	s := newTestLocal(t)
	ctx := context.Background()

	for _, p := range []string{"../outside", "/etc/passwd", "a/../../b", ""} {
		_, err := s.Read(ctx, p)
		assert.Errorf(t, err, "read %q", p)
		_, err = s.Write(ctx, p)
		assert.Errorf(t, err, "write %q", p)
	}
}

func TestNewLocal_CreatesDir(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	dir := filepath.Join(t.TempDir(), "nested", "dir")
	s, err := NewLocal(dir)
	require.NoError(t, err)

	info, err := os.Stat(s.Root())
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
