package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileGivesDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_ReadsYAML(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, Dir), 0o755))
	yml := `languages: [python]
maxAliasHops: 4
index:
  enabled: true
python:
  sourceRoots: [src]
`
	require.NoError(t, os.WriteFile(Path(root), []byte(yml), 0o644))

	cfg, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"python"}, cfg.Languages)
	assert.Equal(t, 4, cfg.MaxAliasHops)
	assert.True(t, cfg.Index.Enabled)
	assert.Equal(t, DefaultIndexPath, cfg.Index.Path)
	assert.Equal(t, []string{"src"}, cfg.Python.SourceRoots)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoad_RejectsInvalid(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, Dir), 0o755))
	require.NoError(t, os.WriteFile(Path(root), []byte("maxAliasHops: 0\n"), 0o644))

	_, err := Load(root)
	var cfgErr *Error
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "maxAliasHops", cfgErr.Field)
}

func TestSaveRoundTrip(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	cfg := DefaultConfig()
	cfg.Languages = []string{"typescript"}
	cfg.Scripts.Dir = "codemods"
	require.NoError(t, cfg.Save(root))

	got, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestIndexPath(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	assert.Equal(t, filepath.Join("/repo", ".sculpt", "index.db"), cfg.IndexPath("/repo"))
	cfg.Index.Path = "/tmp/x.db"
	assert.Equal(t, "/tmp/x.db", cfg.IndexPath("/repo"))
}
