package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindRepoRoot_DirectGitDir(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))

	assert.Equal(t, root, findRepoRoot(root))
}

func TestFindRepoRoot_NestedSubdirectory(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))
	deep := filepath.Join(root, "sub", "deep")
	require.NoError(t, os.MkdirAll(deep, 0o755))

	assert.Equal(t, root, findRepoRoot(deep))
}

func TestFindRepoRoot_NoGitAncestor(t *testing.T) {
	t.Parallel()
	// TempDir has no .git directory anywhere in its ancestry
	// (unless /tmp itself is a repo, which would be unusual).
	dir := t.TempDir()

	assert.Equal(t, dir, findRepoRoot(dir))
}

func TestValidateFormat(t *testing.T) {
	t.Parallel()
	assert.NoError(t, validateFormat("json"))
	assert.NoError(t, validateFormat("text"))
	assert.Error(t, validateFormat("yaml"))
}

func TestParsePosition(t *testing.T) {
	t.Parallel()
	line, col, err := parsePosition("3", "7")
	require.NoError(t, err)
	assert.Equal(t, 3, line)
	assert.Equal(t, 7, col)

	_, _, err = parsePosition("0", "1")
	assert.Error(t, err)
	_, _, err = parsePosition("1", "x")
	assert.Error(t, err)
}

// --- Command tests ---

var cliRepo = map[string]string{
	"a.py": "def helper():\n    return 1\n\n\ndef main():\n    return helper()\n",
	"b.py": "from a import helper\n\nprint(helper())\n",
}

func writeCLIRepo(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, src := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(src), 0o644))
	}
	return root
}

// execute runs the CLI in-process against root and returns stdout and the
// command error.
func execute(t *testing.T, root string, args ...string) (string, error) {
	t.Helper()
	c := &cli{}
	cmd := c.rootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--root", root, "-q"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

// executeJSON runs the CLI and decodes the JSON envelope.
func executeJSON(t *testing.T, root string, args ...string) (map[string]any, error) {
	t.Helper()
	out, err := execute(t, root, args...)
	var result map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &result), "stdout: %s", out)
	return result, err
}

func readFile(t *testing.T, root, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, name))
	require.NoError(t, err)
	return string(data)
}

func TestIndexCommand(t *testing.T) {
	t.Parallel()
	root := writeCLIRepo(t, cliRepo)

	result, err := executeJSON(t, root, "index")
	require.NoError(t, err)
	assert.Equal(t, "index", result["command"])
	summary := result["results"].(map[string]any)
	assert.EqualValues(t, 2, summary["files"])
	assert.EqualValues(t, 0, summary["diagnostics"])
	assert.FileExists(t, filepath.Join(root, ".sculpt", "index.db"))

	// A second run reuses the database.
	_, err = executeJSON(t, root, "index", "--force")
	require.NoError(t, err)
}

func TestQuerySymbols(t *testing.T) {
	t.Parallel()
	root := writeCLIRepo(t, cliRepo)

	result, err := executeJSON(t, root, "query", "symbols", "--kind", "function", "--path", "a.py")
	require.NoError(t, err)
	assert.EqualValues(t, 2, result["total_count"])
	items := result["results"].([]any)
	require.Len(t, items, 2)
	first := items[0].(map[string]any)
	assert.Equal(t, "helper", first["name"])
	assert.EqualValues(t, 1, first["start_line"])
	assert.EqualValues(t, 5, first["start_col"])
}

func TestQuerySymbols_Pagination(t *testing.T) {
	t.Parallel()
	root := writeCLIRepo(t, cliRepo)

	result, err := executeJSON(t, root, "query", "symbols", "--kind", "function", "--limit", "1", "--sort", "name", "--order", "desc")
	require.NoError(t, err)
	assert.EqualValues(t, 2, result["total_count"])
	items := result["results"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "main", items[0].(map[string]any)["name"])
}

func TestQueryUsages(t *testing.T) {
	t.Parallel()
	root := writeCLIRepo(t, cliRepo)

	result, err := executeJSON(t, root, "query", "usages", "a.py", "helper", "--kinds", "indirect")
	require.NoError(t, err)
	edges := result["results"].([]any)
	require.Len(t, edges, 1)
	e := edges[0].(map[string]any)
	assert.Equal(t, "b.py", e["from_file"])
	assert.Equal(t, "indirect", e["kind"])
	assert.Equal(t, "helper", e["via"])
	site := e["sites"].([]any)[0].(map[string]any)
	assert.EqualValues(t, 3, site["start_line"])
	assert.EqualValues(t, 7, site["start_col"])
}

func TestQueryDeps_Transitive(t *testing.T) {
	t.Parallel()
	root := writeCLIRepo(t, cliRepo)

	result, err := executeJSON(t, root, "query", "deps", "a.py", "main", "--depth", "3")
	require.NoError(t, err)
	g := result["results"].(map[string]any)
	var names []string
	for _, n := range g["nodes"].([]any) {
		names = append(names, n.(map[string]any)["symbol"].(map[string]any)["name"].(string))
	}
	assert.Contains(t, names, "helper")
}

func TestQueryDefinition(t *testing.T) {
	t.Parallel()
	root := writeCLIRepo(t, cliRepo)

	// "helper" in `print(helper())` on line 3 of b.py.
	result, err := executeJSON(t, root, "query", "definition", "b.py", "3", "7")
	require.NoError(t, err)
	locs := result["results"].([]any)
	require.Len(t, locs, 1)
	loc := locs[0].(map[string]any)
	assert.Equal(t, "a.py", loc["file"])
	assert.EqualValues(t, 1, loc["start_line"])
}

func TestQueryFiles_TextFormat(t *testing.T) {
	t.Parallel()
	root := writeCLIRepo(t, cliRepo)

	out, err := execute(t, root, "--format", "text", "query", "files")
	require.NoError(t, err)
	assert.Contains(t, out, "PATH")
	assert.Contains(t, out, "a.py")
	assert.Contains(t, out, "b.py")
}

func TestMoveCommand_DryRun(t *testing.T) {
	t.Parallel()
	root := writeCLIRepo(t, cliRepo)

	result, err := executeJSON(t, root, "move", "a.py", "main", "c.py", "--dry-run")
	require.NoError(t, err)
	change := result["results"].(map[string]any)
	assert.Equal(t, true, change["dry_run"])
	assert.Equal(t, true, change["created"])
	pending := change["pending"].(map[string]any)
	assert.Contains(t, pending["c.py"], "def main():")
	assert.Contains(t, pending["c.py"], "from a import helper")

	// Nothing was written.
	assert.NoFileExists(t, filepath.Join(root, "c.py"))
	assert.Equal(t, cliRepo["a.py"], readFile(t, root, "a.py"))
}

func TestMoveCommand_Commit(t *testing.T) {
	t.Parallel()
	root := writeCLIRepo(t, cliRepo)

	result, err := executeJSON(t, root, "move", "a.py", "helper", "c.py")
	require.NoError(t, err)
	change := result["results"].(map[string]any)
	assert.NotEmpty(t, change["commit_id"])

	assert.Contains(t, readFile(t, root, "c.py"), "def helper():")
	assert.NotContains(t, readFile(t, root, "a.py"), "def helper():")
	b := readFile(t, root, "b.py")
	assert.Contains(t, b, "from c import helper")
	assert.NotContains(t, b, "from a import")
}

func TestMoveCommand_BadStrategy(t *testing.T) {
	t.Parallel()
	root := writeCLIRepo(t, cliRepo)

	result, err := executeJSON(t, root, "move", "a.py", "helper", "c.py", "--strategy", "teleport")
	require.Error(t, err)
	assert.Contains(t, result["error"], "teleport")
}

func TestRenameCommand(t *testing.T) {
	t.Parallel()
	root := writeCLIRepo(t, cliRepo)

	_, err := executeJSON(t, root, "rename", "a.py", "helper", "assist")
	require.NoError(t, err)
	assert.Equal(t, "def assist():\n    return 1\n\n\ndef main():\n    return assist()\n", readFile(t, root, "a.py"))
	assert.Equal(t, "from a import assist\n\nprint(assist())\n", readFile(t, root, "b.py"))
}

func TestErrorEnvelope(t *testing.T) {
	t.Parallel()
	root := writeCLIRepo(t, cliRepo)

	result, err := executeJSON(t, root, "query", "references", "a.py", "missing")
	require.Error(t, err)
	assert.Equal(t, "references", result["command"])
	assert.Equal(t, "NotFound", result["error_kind"])
	assert.NotEmpty(t, result["error"])
}

func TestRunCommand(t *testing.T) {
	t.Parallel()
	root := writeCLIRepo(t, cliRepo)
	script := filepath.Join(root, "tool.risor")
	require.NoError(t, os.WriteFile(script, []byte(`rename("a.py", "helper", "assist")`), 0o644))

	result, err := executeJSON(t, root, "run", script)
	require.NoError(t, err)
	change := result["results"].(map[string]any)
	assert.Equal(t, true, change["dry_run"])
	assert.Contains(t, change["pending"].(map[string]any)["b.py"], "from a import assist")
	assert.Equal(t, cliRepo["b.py"], readFile(t, root, "b.py"))

	_, err = executeJSON(t, root, "run", script, "--commit")
	require.NoError(t, err)
	assert.Equal(t, "from a import assist\n\nprint(assist())\n", readFile(t, root, "b.py"))
}

func TestExportSCIPCommand(t *testing.T) {
	t.Parallel()
	root := writeCLIRepo(t, cliRepo)
	out := filepath.Join(t.TempDir(), "out.scip")

	result, err := executeJSON(t, root, "export", "scip", "-o", out)
	require.NoError(t, err)
	export := result["results"].(map[string]any)
	assert.Equal(t, "scip", export["format"])
	info, err := os.Stat(out)
	require.NoError(t, err)
	assert.EqualValues(t, info.Size(), export["bytes"])
	assert.Positive(t, info.Size())
}

func TestConfigInit(t *testing.T) {
	t.Parallel()
	root := t.TempDir()

	_, err := executeJSON(t, root, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, readFile(t, root, ".sculpt/config.yaml"), "maxAliasHops")

	// A second init refuses to overwrite without --force.
	_, err = executeJSON(t, root, "config", "init")
	require.Error(t, err)
	_, err = executeJSON(t, root, "config", "init", "--force")
	require.NoError(t, err)
}

func TestDiagnosticsCommand(t *testing.T) {
	t.Parallel()
	root := writeCLIRepo(t, map[string]string{
		"a.py":   "x = 1\n",
		"bad.py": "x = 1\ndef broken(:\n    pass\n",
	})

	result, err := executeJSON(t, root, "diagnostics")
	require.NoError(t, err)
	diags := result["results"].([]any)
	require.NotEmpty(t, diags)
	d := diags[0].(map[string]any)
	assert.Equal(t, "bad.py", d["file"])
	assert.Equal(t, "ParseError", d["kind"])
	assert.Positive(t, d["line"])
}
