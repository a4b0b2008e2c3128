package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

// snapshot builds a file with one function and one import.
func snapshot(path, fn, importFrom string) FileSnapshot {
	snap := FileSnapshot{
		File: File{Path: path, Language: "python", Module: path[:len(path)-3], Hash: "h-" + path, Size: 10, LineCount: 2, LastIndexed: time.Now().Truncate(time.Second)},
		Symbols: []Symbol{
			{Name: fn, QualifiedName: fn, Kind: "function", Exported: true, StartByte: 0, EndByte: 10, StartLine: 1, EndLine: 1},
		},
	}
	if importFrom != "" {
		snap.Imports = []Import{{Module: importFrom[:len(importFrom)-3], ImportedName: "x", ResolvedPath: importFrom, Line: 1}}
	}
	return snap
}

// =============================================================================
// Schema & Lifecycle
// =============================================================================

func TestMigrate_AllTablesExist(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	for _, table := range []string{"files", "symbols", "imports", "edges", "commits", "metadata"} {
		var name string
		err := s.DB().QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CommitBatch(ctx, &Batch{Files: []FileSnapshot{snapshot("a.py", "f", "")}}))
	require.NoError(t, s.Migrate(ctx))

	files, err := s.Files(ctx)
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestMigrate_RebuildsOtherVersion(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CommitBatch(ctx, &Batch{Files: []FileSnapshot{snapshot("a.py", "f", "")}}))
	require.NoError(t, s.SetMeta(ctx, "schema_version", "0"))
	require.NoError(t, s.Migrate(ctx))

	files, err := s.Files(ctx)
	require.NoError(t, err)
	assert.Empty(t, files)
	v, err := s.Meta(ctx, "schema_version")
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, v)
}

func TestMeta_UnsetIsEmpty(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	v, err := s.Meta(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, v)
}

// =============================================================================
// Batches
// =============================================================================

func TestCommitBatch_InsertsFiles(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	err := s.CommitBatch(ctx, &Batch{
		Files: []FileSnapshot{snapshot("a.py", "helper", ""), snapshot("b.py", "main", "a.py")},
	})
	require.NoError(t, err)

	f, err := s.FileByPath(ctx, "b.py")
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, "python", f.Language)
	assert.Equal(t, "h-b.py", f.Hash)

	syms, err := s.SymbolsByFile(ctx, "a.py")
	require.NoError(t, err)
	require.Len(t, syms, 1)
	assert.Equal(t, "helper", syms[0].Name)
	assert.Equal(t, "a.py", syms[0].Path)

	imports, err := s.ImportsByFile(ctx, "b.py")
	require.NoError(t, err)
	require.Len(t, imports, 1)
	assert.Equal(t, "a.py", imports[0].ResolvedPath)

	importers, err := s.FilesImporting(ctx, "a.py")
	require.NoError(t, err)
	assert.Equal(t, []string{"b.py"}, importers)
}

func TestCommitBatch_ReplacesFile(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CommitBatch(ctx, &Batch{Files: []FileSnapshot{snapshot("a.py", "old", "")}}))
	require.NoError(t, s.CommitBatch(ctx, &Batch{Files: []FileSnapshot{snapshot("a.py", "new", "")}}))

	syms, err := s.SymbolsByFile(ctx, "a.py")
	require.NoError(t, err)
	require.Len(t, syms, 1)
	assert.Equal(t, "new", syms[0].Name)

	old, err := s.SymbolsByName(ctx, "old")
	require.NoError(t, err)
	assert.Empty(t, old)
}

func TestCommitBatch_RemovedCascades(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CommitBatch(ctx, &Batch{
		Files:       []FileSnapshot{snapshot("a.py", "helper", ""), snapshot("b.py", "main", "a.py")},
		EdgeSources: []string{"a.py", "b.py"},
		Edges: []Edge{
			{FromPath: "b.py", FromName: "main", ToPath: "a.py", ToName: "helper", Kind: "indirect", SiteStart: 30, SiteEnd: 36, Line: 3},
		},
	}))
	require.NoError(t, s.CommitBatch(ctx, &Batch{Removed: []string{"b.py"}}))

	f, err := s.FileByPath(ctx, "b.py")
	require.NoError(t, err)
	assert.Nil(t, f)

	var n int
	require.NoError(t, s.DB().QueryRow("SELECT COUNT(*) FROM imports").Scan(&n))
	assert.Zero(t, n)

	edges, err := s.CountEdges(ctx)
	require.NoError(t, err)
	assert.Zero(t, edges)
}

func TestCommitBatch_ReplacesEdgesOfSourcesOnly(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CommitBatch(ctx, &Batch{
		EdgeSources: []string{"a.py", "b.py"},
		Edges: []Edge{
			{FromPath: "a.py", FromName: "f", ToPath: "c.py", ToName: "g", Kind: "direct"},
			{FromPath: "b.py", FromName: "h", ToPath: "c.py", ToName: "g", Kind: "direct"},
		},
	}))
	require.NoError(t, s.CommitBatch(ctx, &Batch{
		EdgeSources: []string{"a.py"},
		Edges:       []Edge{{FromPath: "a.py", FromName: "f", ToPath: "c.py", ToName: "k", Kind: "chained", ViaName: "c"}},
	}))

	into, err := s.EdgesTo(ctx, "c.py", "g")
	require.NoError(t, err)
	require.Len(t, into, 1)
	assert.Equal(t, "b.py", into[0].FromPath)

	from, err := s.EdgesFrom(ctx, "a.py", "f")
	require.NoError(t, err)
	require.Len(t, from, 1)
	assert.Equal(t, "k", from[0].ToName)
	assert.Equal(t, "c", from[0].ViaName)
}

func TestFileHashes(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CommitBatch(ctx, &Batch{Files: []FileSnapshot{snapshot("a.py", "f", ""), snapshot("b.py", "g", "")}}))

	hashes, err := s.FileHashes(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a.py": "h-a.py", "b.py": "h-b.py"}, hashes)
}

// =============================================================================
// Commit journal
// =============================================================================

func TestRecordCommit(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	first := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, s.RecordCommit(ctx, &Commit{ID: "c1", CommittedAt: first, Files: 2, Relinked: 3, Paths: []string{"a.py", "b.py"}}))
	require.NoError(t, s.RecordCommit(ctx, &Commit{ID: "c2", CommittedAt: first.Add(time.Minute), Files: 1, Paths: []string{"a.py"}}))

	all, err := s.Commits(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "c2", all[0].ID)
	assert.Equal(t, []string{"a.py", "b.py"}, all[1].Paths)
	assert.Equal(t, 3, all[1].Relinked)

	latest, err := s.Commits(ctx, 1)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, "c2", latest[0].ID)
}

func TestRecordCommit_DuplicateID(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordCommit(ctx, &Commit{ID: "c1"}))
	assert.Error(t, s.RecordCommit(ctx, &Commit{ID: "c1"}))
}
