package sculpt

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jward/sculpt/internal/config"
)

// writeRepo lays files out under a fresh temp dir and returns it.
func writeRepo(t testing.TB, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for p, src := range files {
		full := filepath.Join(root, filepath.FromSlash(p))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(src), 0o644))
	}
	return root
}

// newTestCodebase opens a codebase over files with the default config, so
// a stray .sculpt directory never influences a test.
func newTestCodebase(t testing.TB, files map[string]string, opts ...Option) *Codebase {
	t.Helper()
	root := writeRepo(t, files)
	opts = append([]Option{WithConfig(config.DefaultConfig())}, opts...)
	cb, err := Open(context.Background(), root, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { cb.Close() })
	return cb
}

// readRepoFile returns the on-disk content of p.
func readRepoFile(t testing.TB, cb *Codebase, p string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(cb.Root(), filepath.FromSlash(p)))
	require.NoError(t, err)
	return string(data)
}

func mustSymbol(t testing.TB, cb *Codebase, p, name string) *Symbol {
	t.Helper()
	sym, err := cb.GetSymbol(p, name)
	require.NoError(t, err)
	return sym
}

func mustCommit(t testing.TB, cb *Codebase) *CommitResult {
	t.Helper()
	res, err := cb.Commit(context.Background())
	require.NoError(t, err)
	return res
}

// edgeFroms lists the qualified names edges come from.
func edgeFroms(edges []Edge) []string {
	out := make([]string, len(edges))
	for i, e := range edges {
		out[i] = e.From.QualifiedName()
	}
	return out
}

func edgeTos(edges []Edge) []string {
	out := make([]string, len(edges))
	for i, e := range edges {
		out[i] = e.To.QualifiedName()
	}
	return out
}
