package sculpt

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/sculpt/internal/config"
)

func TestRunSource_MoveAndCommit(t *testing.T) {
	t.Parallel()
	cb := newTestCodebase(t, map[string]string{
		"a.py": "def helper(): pass\n\ndef main(): helper()",
		"b.py": "",
	})

	err := cb.RunSource(context.Background(), `
res := move("a.py", "helper", "b.py", {"strategy": "update-imports"})
if len(res["moved"]) != 1 {
	error("expected one moved symbol")
}
out := commit()
if out["files"]["b.py"] != "written" {
	error("b.py not written")
}
`)
	require.NoError(t, err)
	assert.Equal(t, "def helper(): pass", readRepoFile(t, cb, "b.py"))
	assert.Equal(t, "from b import helper\n\ndef main(): helper()", readRepoFile(t, cb, "a.py"))
}

func TestRunSource_QueriesAndPending(t *testing.T) {
	t.Parallel()
	cb := newTestCodebase(t, map[string]string{
		"a.py": "def helper():\n    return 1\n\n\ndef main():\n    return helper()\n",
	})

	err := cb.RunSource(context.Background(), `
users := usages("a.py", "helper", "direct")
if len(users) != 1 || users[0]["from"]["qualified_name"] != "main" {
	error("unexpected usages")
}
rename("a.py", "helper", "assist")
if !strings.contains(pending("a.py"), "return assist()") {
	error("rename not pending")
}
if source("a.py") != pending("a.py") {
	reset()
}
`)
	require.NoError(t, err)
	assert.Empty(t, cb.Dirty())
	assert.Contains(t, readRepoFile(t, cb, "a.py"), "def helper():")
}

func TestRunSource_ErrorsSurface(t *testing.T) {
	t.Parallel()
	cb := newTestCodebase(t, map[string]string{"a.py": "def helper(): pass\n"})

	err := cb.RunSource(context.Background(), `move("a.py", "helper", "a.py")`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid destination")

	err = cb.RunSource(context.Background(), `get_symbol("a.py", "missing")`)
	assert.Error(t, err)

	err = cb.RunSource(context.Background(), `move("a.py", "helper", "b.py", {"bogus": true})`)
	assert.Error(t, err)
	assert.Empty(t, cb.Dirty())
}

func TestRunScript_ScriptsDir(t *testing.T) {
	t.Parallel()
	cfg := config.DefaultConfig()
	cfg.Scripts.Dir = "codemods"
	cb := newTestCodebase(t, map[string]string{
		"a.py":               "DEBUG = True\n\nif DEBUG:\n    run()\nelse:\n    skip()\n",
		"codemods/lib.risor": "func first(xs) {\n  return xs[0]\n}\n",
		"codemods/strip.risor": `import lib
sym := lib.first(symbols("a.py"))
if sym["name"] != "DEBUG" {
	error("unexpected first symbol " + sym["name"])
}
reduce_condition("a.py", 14, 50, true)
commit()
`,
	}, WithConfig(cfg))

	require.NoError(t, cb.RunScript(context.Background(), "strip.risor"))
	assert.Equal(t, "DEBUG = True\n\nrun()\n", readRepoFile(t, cb, "a.py"))
}

func TestRunScript_AbsolutePath(t *testing.T) {
	t.Parallel()
	cb := newTestCodebase(t, map[string]string{"a.py": "x = 1\n"})

	script := filepath.Join(t.TempDir(), "create.risor")
	require.NoError(t, os.WriteFile(script, []byte(`
create_file("b.py")
edit_file("b.py", "y = 2\n")
`), 0o644))

	require.NoError(t, cb.RunScript(context.Background(), script))
	pending, err := cb.PendingSource("b.py")
	require.NoError(t, err)
	assert.Equal(t, "y = 2\n", pending)
	assert.Equal(t, []string{"b.py"}, cb.Dirty())
}

func TestRunScript_Missing(t *testing.T) {
	t.Parallel()
	cb := newTestCodebase(t, map[string]string{"a.py": "x = 1\n"})
	assert.Error(t, cb.RunScript(context.Background(), filepath.Join(t.TempDir(), "nope.risor")))
}

func TestRunSource_IndexGlobals(t *testing.T) {
	t.Parallel()
	cb := newTestCodebase(t, map[string]string{
		"a.py": "def helper():\n    return 1\n",
		"b.py": "from a import helper\n\nprint(helper())\n",
	}, WithIndexDB(filepath.Join(t.TempDir(), "index.db")))

	err := cb.RunSource(context.Background(), `
if len(edges_to("a.py", "helper")) == 0 {
	error("no indexed usages of helper")
}
rename("a.py", "helper", "assist")
out := commit()
history := commits(1)
if len(history) != 1 || history[0]["id"] != out["id"] {
	error("commit not journaled")
}
if len(symbols_by_file("a.py")) == 0 || symbols_by_file("a.py")[0]["name"] != "assist" {
	error("index not updated")
}
`)
	require.NoError(t, err)
}

func TestRunSource_QueryCommittedTreeThenReduce(t *testing.T) {
	t.Parallel()
	cb := newTestCodebase(t, map[string]string{
		"a.py": "DEBUG = False\n\n\ndef main():\n    if DEBUG:\n        trace()\n    return run()\n",
	})

	err := cb.RunSource(context.Background(), `
matches := query("(if_statement condition: (identifier) @cond) @stmt", tree("a.py"))
for _, m := range matches {
	if node_text(m["cond"]) == "DEBUG" {
		span := node_span(m["stmt"])
		reduce_condition("a.py", span["start"], span["end"], false)
	}
}
commit()
`)
	require.NoError(t, err)
	a := readRepoFile(t, cb, "a.py")
	assert.NotContains(t, a, "trace()")
	assert.Contains(t, a, "return run()")

	err = cb.RunSource(context.Background(), `
root := tree("a.py")
rename("a.py", "main", "entry")
commit()
node_text(root)
`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a.py was committed since its tree was read")
}
