package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var memSeq atomic.Int64

func newMemBackend(t *testing.T) *AFS {
	t.Helper()
	return NewAFS(fmt.Sprintf("mem://localhost/sculpt-test-%d", memSeq.Add(1)))
}

func TestAFS_ReadWriteDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := newMemBackend(t)

	require.NoError(t, b.Write(ctx, "pkg/a.py", []byte("x = 1\n")))
	data, err := b.Read(ctx, "pkg/a.py")
	require.NoError(t, err)
	assert.Equal(t, "x = 1\n", string(data))

	ok, err := b.Exists(ctx, "pkg/a.py")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, b.Delete(ctx, "pkg/a.py"))
	ok, err = b.Exists(ctx, "pkg/a.py")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAFS_ListSkipsDirectories(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src", "pkg"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "node_modules", "dep"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.py"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "pkg", "b.ts"), []byte("b"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "node_modules", "dep", "c.js"), []byte("c"), 0o644))

	b := NewLocal(root)
	files, err := b.List(ctx, func(name string) bool { return name == "node_modules" })
	require.NoError(t, err)
	assert.Equal(t, []string{"a.py", "src/pkg/b.ts"}, files)
}

func TestAFS_LocalWriteCreatesParents(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	root := t.TempDir()
	b := NewLocal(root)
	require.NoError(t, b.Write(ctx, "deep/nested/m.py", []byte("pass\n")))

	data, err := os.ReadFile(filepath.Join(root, "deep", "nested", "m.py"))
	require.NoError(t, err)
	assert.Equal(t, "pass\n", string(data))
}

// failingBackend fails the write of one path.
type failingBackend struct {
	Backend
	failPath string
}

func (f *failingBackend) Write(ctx context.Context, path string, data []byte) error {
	if path == f.failPath {
		return errors.New("disk full")
	}
	return f.Backend.Write(ctx, path, data)
}

func TestFlush_AllSucceed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := newMemBackend(t)
	require.NoError(t, b.Write(ctx, "gone.py", []byte("old")))

	results, err := Flush(ctx, b, []Write{
		{Path: "a.py", Data: []byte("a")},
		{Path: "gone.py", Delete: true, Original: []byte("old"), Existed: true},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, Written, results[0].Status)
	assert.Equal(t, Deleted, results[1].Status)

	ok, err := b.Exists(ctx, "gone.py")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFlush_RollsBackOnFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mem := newMemBackend(t)
	require.NoError(t, mem.Write(ctx, "a.py", []byte("original a")))
	b := &failingBackend{Backend: mem, failPath: "c.py"}

	results, err := Flush(ctx, b, []Write{
		{Path: "a.py", Data: []byte("new a"), Original: []byte("original a"), Existed: true},
		{Path: "b.py", Data: []byte("created b")},
		{Path: "c.py", Data: []byte("new c"), Existed: true},
		{Path: "d.py", Data: []byte("new d"), Existed: true},
	})
	require.ErrorIs(t, err, ErrCommitIO)
	require.Len(t, results, 4)
	assert.Equal(t, RolledBack, results[0].Status)
	assert.Equal(t, RolledBack, results[1].Status)
	assert.Equal(t, Failed, results[2].Status)
	assert.Equal(t, Skipped, results[3].Status)

	data, err := mem.Read(ctx, "a.py")
	require.NoError(t, err)
	assert.Equal(t, "original a", string(data))

	ok, err := mem.Exists(ctx, "b.py")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHash(t *testing.T) {
	t.Parallel()

	h := Hash([]byte("def helper(): pass"))
	assert.Len(t, h, 16)
	assert.Equal(t, h, Hash([]byte("def helper(): pass")))
	assert.NotEqual(t, h, Hash([]byte("def helper(): return")))
}
