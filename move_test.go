package sculpt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMoveSymbol_UpdateAllImports(t *testing.T) {
	t.Parallel()
	cb := newTestCodebase(t, map[string]string{
		"a.py": "def helper(): pass\n\ndef main(): helper()",
		"b.py": "",
	})

	res, err := cb.MoveSymbol(mustSymbol(t, cb, "a.py", "helper"), "b.py", MoveOptions{Strategy: UpdateAllImports})
	require.NoError(t, err)
	assert.Equal(t, []string{"helper"}, res.Moved)
	assert.False(t, res.Created)
	assert.False(t, res.OriginEmpty)
	assert.Equal(t, []string{"a.py", "b.py"}, res.Touched)

	mustCommit(t, cb)
	assert.Equal(t, "from b import helper\n\ndef main(): helper()", readRepoFile(t, cb, "a.py"))
	assert.Equal(t, "def helper(): pass", readRepoFile(t, cb, "b.py"))

	helper := mustSymbol(t, cb, "b.py", "helper")
	usages := helper.Usages(Indirect)
	require.Len(t, usages, 1)
	assert.Equal(t, "main", usages[0].From.QualifiedName())
	assert.Equal(t, "a.py", usages[0].From.Path())
	require.NotNil(t, usages[0].Via)
	assert.Equal(t, ImportKind, usages[0].Via.Kind())
}

func TestMoveSymbol_NothingWrittenBeforeCommit(t *testing.T) {
	t.Parallel()
	cb := newTestCodebase(t, map[string]string{
		"a.py": "def helper(): pass\n\ndef main(): helper()",
		"b.py": "",
	})

	_, err := cb.MoveSymbol(mustSymbol(t, cb, "a.py", "helper"), "b.py", MoveOptions{})
	require.NoError(t, err)

	pending, err := cb.PendingSource("b.py")
	require.NoError(t, err)
	assert.Equal(t, "def helper(): pass", pending)
	assert.Equal(t, "", readRepoFile(t, cb, "b.py"))
	assert.ElementsMatch(t, []string{"a.py", "b.py"}, cb.Dirty())

	reset := cb.Reset()
	assert.Len(t, reset.Files, 2)
	assert.Empty(t, cb.Dirty())
	pending, err = cb.PendingSource("a.py")
	require.NoError(t, err)
	assert.Equal(t, "def helper(): pass\n\ndef main(): helper()", pending)
}

func TestMoveSymbol_RewritesImporters(t *testing.T) {
	t.Parallel()
	cb := newTestCodebase(t, map[string]string{
		"a.py": "def helper():\n    return 1\n\n\ndef other():\n    return 2\n",
		"c.py": "from a import helper\n\nprint(helper())\n",
	})

	res, err := cb.MoveSymbol(mustSymbol(t, cb, "a.py", "helper"), "b.py", MoveOptions{})
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Contains(t, res.Touched, "c.py")

	mustCommit(t, cb)
	c := readRepoFile(t, cb, "c.py")
	assert.Contains(t, c, "from b import helper")
	assert.NotContains(t, c, "from a import")
	assert.NotContains(t, readRepoFile(t, cb, "a.py"), "helper")

	helper := mustSymbol(t, cb, "b.py", "helper")
	assert.Equal(t, []string{"c"}, edgeFroms(helper.Usages(Indirect)))
}

func TestMoveSymbol_AddBackEdge(t *testing.T) {
	t.Parallel()
	importer := "from a import helper\n\nhelper()\n"
	cb := newTestCodebase(t, map[string]string{
		"a.py": "def helper():\n    return 1\n",
		"c.py": importer,
	})

	res, err := cb.MoveSymbol(mustSymbol(t, cb, "a.py", "helper"), "b.py", MoveOptions{Strategy: AddBackEdge})
	require.NoError(t, err)
	assert.NotContains(t, res.Touched, "c.py")

	mustCommit(t, cb)
	assert.Equal(t, importer, readRepoFile(t, cb, "c.py"))
	assert.Contains(t, readRepoFile(t, cb, "a.py"), "from b import helper")
	assert.Contains(t, readRepoFile(t, cb, "b.py"), "def helper():")

	// c still reaches helper, now through the forwarding import in a.
	helper := mustSymbol(t, cb, "b.py", "helper")
	assert.Contains(t, edgeFroms(helper.Usages(Indirect)), "c")
}

func TestMoveSymbol_IncludeDependencies(t *testing.T) {
	t.Parallel()
	cb := newTestCodebase(t, map[string]string{
		"a.py": "import os\n\n\ndef util():\n    return os.sep\n\n\ndef helper():\n    return util()\n\n\ndef main():\n    helper()\n",
	})

	res, err := cb.MoveSymbol(mustSymbol(t, cb, "a.py", "helper"), "b.py", MoveOptions{IncludeDependencies: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"helper", "util"}, res.Moved)

	mustCommit(t, cb)
	b := readRepoFile(t, cb, "b.py")
	assert.Contains(t, b, "import os")
	assert.Contains(t, b, "def util():")
	assert.Contains(t, b, "def helper():")
	a := readRepoFile(t, cb, "a.py")
	assert.NotContains(t, a, "import os")
	assert.Contains(t, a, "from b import helper")

	util := mustSymbol(t, cb, "b.py", "util")
	assert.Equal(t, []string{"helper"}, edgeFroms(util.Usages(Direct)))
}

func TestMoveSymbol_IncludeDependencies_SharedStays(t *testing.T) {
	t.Parallel()
	cb := newTestCodebase(t, map[string]string{
		"a.py": "def util():\n    return 1\n\n\ndef helper():\n    return util()\n\n\ndef main():\n    return util() + helper()\n",
	})

	res, err := cb.MoveSymbol(mustSymbol(t, cb, "a.py", "helper"), "b.py", MoveOptions{IncludeDependencies: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"helper"}, res.Moved)

	mustCommit(t, cb)
	a := readRepoFile(t, cb, "a.py")
	assert.Contains(t, a, "def util():")
	assert.NotContains(t, a, "def helper():")
	assert.Contains(t, a, "from b import helper")
	b := readRepoFile(t, cb, "b.py")
	assert.Contains(t, b, "from a import util")
	assert.Contains(t, b, "def helper():")
	assert.NotContains(t, b, "def util():")
}

func TestMoveSymbol_IncludeDependencies_TransitiveShared(t *testing.T) {
	t.Parallel()
	// base is private to util, but util is shared with main, so neither moves.
	cb := newTestCodebase(t, map[string]string{
		"a.py": "def base():\n    return 1\n\n\ndef util():\n    return base()\n\n\ndef helper():\n    return util()\n\n\ndef main():\n    return util()\n",
	})

	res, err := cb.MoveSymbol(mustSymbol(t, cb, "a.py", "helper"), "b.py", MoveOptions{IncludeDependencies: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"helper"}, res.Moved)

	mustCommit(t, cb)
	a := readRepoFile(t, cb, "a.py")
	assert.Contains(t, a, "def base():")
	assert.Contains(t, a, "def util():")
	assert.NotContains(t, a, "from b import")
	assert.Contains(t, readRepoFile(t, cb, "b.py"), "from a import util")
}

func TestMoveSymbol_OriginEmpty(t *testing.T) {
	t.Parallel()
	cb := newTestCodebase(t, map[string]string{
		"a.py": "def helper():\n    return 1\n",
	})

	res, err := cb.MoveSymbol(mustSymbol(t, cb, "a.py", "helper"), "b.py", MoveOptions{})
	require.NoError(t, err)
	assert.True(t, res.OriginEmpty)
	assert.True(t, res.Created)
}

func TestMoveSymbol_TypeScript(t *testing.T) {
	t.Parallel()
	cb := newTestCodebase(t, map[string]string{
		"src/a.ts":   "export function helper(): number {\n  return 1;\n}\n\nexport function main() {\n  return helper();\n}\n",
		"src/app.ts": "import { helper } from './a';\n\nhelper();\n",
	})

	_, err := cb.MoveSymbol(mustSymbol(t, cb, "src/a.ts", "helper"), "src/b.ts", MoveOptions{})
	require.NoError(t, err)
	mustCommit(t, cb)

	assert.Contains(t, readRepoFile(t, cb, "src/b.ts"), "export function helper(): number")
	assert.Contains(t, readRepoFile(t, cb, "src/app.ts"), "'./b'")
	assert.Contains(t, readRepoFile(t, cb, "src/a.ts"), "'./b'")

	helper := mustSymbol(t, cb, "src/b.ts", "helper")
	assert.ElementsMatch(t, []string{"main", "src/app"}, edgeFroms(helper.Usages(Indirect)))
}

func TestMoveSymbol_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		sym  string
		dest string
		kind ErrorKind
	}{
		{"destination is origin", "helper", "a.py", KindInvalidDestination},
		{"outside root", "helper", "../b.py", KindInvalidDestination},
		{"absolute path", "helper", "/tmp/b.py", KindInvalidDestination},
		{"other language", "helper", "b.ts", KindInvalidDestination},
		{"unsupported extension", "helper", "b.txt", KindInvalidDestination},
		{"ignored directory", "helper", "node_modules/b.py", KindInvalidDestination},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cb := newTestCodebase(t, map[string]string{
				"a.py": "def helper(): pass\n",
			})
			_, err := cb.MoveSymbol(mustSymbol(t, cb, "a.py", tt.sym), tt.dest, MoveOptions{})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidDestination)
			assert.Equal(t, tt.kind, KindOf(err))
			assert.Empty(t, cb.Dirty())
		})
	}
}

func TestMoveSymbol_NotMovable(t *testing.T) {
	t.Parallel()
	cb := newTestCodebase(t, map[string]string{
		"a.py": "class Box:\n    def open(self):\n        pass\n",
	})

	_, err := cb.MoveSymbol(mustSymbol(t, cb, "a.py", "Box.open"), "b.py", MoveOptions{})
	assert.ErrorIs(t, err, ErrNotMovable)
}

func TestMoveSymbol_ExternalSymbol(t *testing.T) {
	t.Parallel()
	cb := newTestCodebase(t, map[string]string{
		"a.py": "import requests\n\nrequests.get('x')\n",
	})

	externals := cb.Symbols(ExternalKind)
	require.Len(t, externals, 1)
	ext := externals[0]
	assert.Equal(t, "requests", ext.Name())
	_, err := cb.MoveSymbol(ext, "b.py", MoveOptions{})
	assert.ErrorIs(t, err, ErrExternalSymbol)
	assert.Equal(t, KindExternalSymbol, KindOf(err))
}

func TestMoveSymbol_StaleSymbol(t *testing.T) {
	t.Parallel()
	cb := newTestCodebase(t, map[string]string{
		"a.py": "def helper(): pass\n",
	})
	helper := mustSymbol(t, cb, "a.py", "helper")

	f, err := cb.GetFile("a.py")
	require.NoError(t, err)
	require.NoError(t, f.Edit("def helper(): return 1\n"))
	mustCommit(t, cb)

	assert.False(t, helper.Alive())
	_, err = cb.MoveSymbol(helper, "b.py", MoveOptions{})
	assert.ErrorIs(t, err, ErrStaleNode)
	assert.Equal(t, KindStaleNode, KindOf(err))
}
