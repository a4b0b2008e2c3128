package sculpt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/sculpt/internal/graph"
	"github.com/jward/sculpt/internal/parse"
	"github.com/jward/sculpt/internal/storage"
)

func TestRemove_SoleImportedNameDropsStatement(t *testing.T) {
	t.Parallel()
	cb := newTestCodebase(t, map[string]string{
		"x.py": "def y(): pass\n",
		"a.py": "import os\nfrom x import y\n\nprint(os.sep)\n",
	})

	require.NoError(t, mustSymbol(t, cb, "a.py", "y").Remove())
	pending, err := cb.PendingSource("a.py")
	require.NoError(t, err)
	assert.Equal(t, "import os\nprint(os.sep)\n", pending)
	assert.NotContains(t, pending, "from x import")
}

func TestRemove_OneOfSeveralImportedNames(t *testing.T) {
	t.Parallel()
	cb := newTestCodebase(t, map[string]string{
		"x.py": "def y(): pass\n\ndef z(): pass\n",
		"a.py": "from x import y, z\n",
	})

	require.NoError(t, mustSymbol(t, cb, "a.py", "y").Remove())
	pending, err := cb.PendingSource("a.py")
	require.NoError(t, err)
	assert.Equal(t, "from x import z\n", pending)

	// Removing the last remaining name takes the statement with it.
	require.NoError(t, mustSymbol(t, cb, "a.py", "z").Remove())
	pending, err = cb.PendingSource("a.py")
	require.NoError(t, err)
	assert.Equal(t, "", pending)
}

func TestEditThenReset_RoundTrip(t *testing.T) {
	t.Parallel()
	src := "def helper(x):\n    return x\n\n\ndef main():\n    helper(1)\n"
	cb := newTestCodebase(t, map[string]string{"a.py": src})
	before := cb.Stats()
	gen := cb.txn.Generation("a.py")

	helper := mustSymbol(t, cb, "a.py", "helper")
	require.NoError(t, helper.Edit("def helper(x, y):\n    return x + y"))
	require.NoError(t, mustSymbol(t, cb, "a.py", "main").InsertAfter("\n\nVALUE = 1"))
	pending, err := cb.PendingSource("a.py")
	require.NoError(t, err)
	assert.NotEqual(t, src, pending)

	res := cb.Reset()
	require.Len(t, res.Files, 1)
	assert.Equal(t, Discarded, res.Files[0].Status)

	pending, err = cb.PendingSource("a.py")
	require.NoError(t, err)
	assert.Equal(t, src, pending)
	assert.Equal(t, src, readRepoFile(t, cb, "a.py"))
	assert.Equal(t, before, cb.Stats())
	assert.Equal(t, gen, cb.txn.Generation("a.py"))
	assert.True(t, helper.Alive())
}

func TestCommit_Empty(t *testing.T) {
	t.Parallel()
	src := "def helper(): pass\n"
	cb := newTestCodebase(t, map[string]string{"a.py": src})
	before := cb.Stats()
	gen := cb.txn.Generation("a.py")
	helper := mustSymbol(t, cb, "a.py", "helper")

	res := mustCommit(t, cb)
	assert.True(t, res.Empty())
	assert.NotEmpty(t, res.ID)
	assert.Equal(t, src, readRepoFile(t, cb, "a.py"))
	assert.Equal(t, before, cb.Stats())
	assert.Equal(t, gen, cb.txn.Generation("a.py"))
	assert.True(t, helper.Alive())
	require.NoError(t, helper.Edit("def helper(): return 1"))
}

func TestQueue_OverlappingEditRejected(t *testing.T) {
	t.Parallel()
	src := "def helper(): pass\n\ndef main(): helper()\n"
	cb := newTestCodebase(t, map[string]string{"a.py": src})

	require.NoError(t, cb.queue("a.py", len(src), 0, 10, "x"))
	err := cb.queue("a.py", len(src), 5, 15, "y")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOverlappingEdit)
	assert.Equal(t, KindOverlappingEdit, KindOf(err))
}

func TestEdit_OverlapThroughPublicSurface(t *testing.T) {
	t.Parallel()
	cb := newTestCodebase(t, map[string]string{
		"a.py": "def helper(x, y):\n    return x\n",
	})
	helper := mustSymbol(t, cb, "a.py", "helper")
	params := helper.Parameters()
	require.Len(t, params, 2)

	require.NoError(t, helper.Edit("def helper():\n    return 0"))
	err := params[1].Remove()
	assert.ErrorIs(t, err, ErrOverlappingEdit)

	// The rejected edit left the first one intact.
	pending, perr := cb.PendingSource("a.py")
	require.NoError(t, perr)
	assert.Equal(t, "def helper():\n    return 0\n", pending)
}

func TestCommit_AdvancesGenerationAndStalesNodes(t *testing.T) {
	t.Parallel()
	cb := newTestCodebase(t, map[string]string{
		"a.py": "def helper(): pass\n",
		"b.py": "X = 1\n",
	})
	helper := mustSymbol(t, cb, "a.py", "helper")
	x := mustSymbol(t, cb, "b.py", "X")
	gen := cb.txn.Generation("a.py")

	require.NoError(t, helper.Rename("assist"))
	res := mustCommit(t, cb)
	require.Len(t, res.Files, 1)
	assert.Equal(t, Written, res.Files[0].Status)
	assert.Equal(t, gen+1, cb.txn.Generation("a.py"))

	err := helper.Edit("def helper(): return 1")
	assert.ErrorIs(t, err, ErrStaleNode)
	assert.True(t, x.Alive())
	require.NoError(t, x.Edit("X = 2"))
}

func TestGraph_DependenciesAndUsagesAreInverse(t *testing.T) {
	t.Parallel()
	cb := newTestCodebase(t, map[string]string{
		"pkg/__init__.py": "",
		"pkg/util.py":     "import os\n\n\nclass Box:\n    def open(self):\n        return os.sep\n\n\ndef make():\n    return Box()\n",
		"pkg/app.py":      "from pkg import util\nfrom pkg.util import make as build\n\n\ndef run():\n    util.make().open()\n    return build()\n",
	})

	type pair struct{ from, to SymbolID }
	deps := make(map[pair]int)
	uses := make(map[pair]int)
	syms := cb.Symbols(FunctionKind, ClassKind, VariableKind, ImportKind, ExportKind, ModuleKind, ExternalKind)
	for _, s := range syms {
		for _, e := range s.Dependencies(AllEdges) {
			assert.Equal(t, s.ID(), e.From.ID())
			deps[pair{e.From.ID(), e.To.ID()}]++
		}
		for _, e := range s.Usages(AllEdges) {
			assert.Equal(t, s.ID(), e.To.ID())
			uses[pair{e.From.ID(), e.To.ID()}]++
		}
	}
	assert.NotEmpty(t, deps)
	assert.Equal(t, deps, uses)
}

func TestCommit_NoDanglingEdges(t *testing.T) {
	t.Parallel()
	cb := newTestCodebase(t, map[string]string{
		"a.py": "def helper(): pass\n\n\ndef main():\n    helper()\n",
		"b.py": "from a import helper\n\nhelper()\n",
	})
	helper := mustSymbol(t, cb, "a.py", "helper")
	gone := helper.ID()

	require.NoError(t, helper.Remove())
	mustCommit(t, cb)

	assert.Zero(t, cb.graph.DanglingEdges())
	cb.graph.Edges(func(e graph.Edge) bool {
		assert.NotEqual(t, gone, e.From)
		assert.NotEqual(t, gone, e.To)
		assert.True(t, cb.graph.Alive(e.From))
		assert.True(t, cb.graph.Alive(e.To))
		return true
	})
	_, err := cb.GetSymbol("a.py", "helper")
	assert.ErrorIs(t, err, ErrNotFound)
}

var memSeq atomic.Int64

// failingBackend rejects writes to one path.
type failingBackend struct {
	storage.Backend
	failPath string
}

func (f *failingBackend) Write(ctx context.Context, p string, data []byte) error {
	if p == f.failPath {
		return errors.New("disk full")
	}
	return f.Backend.Write(ctx, p, data)
}

func newMemCodebase(t *testing.T, files map[string]string, failPath string) (*Codebase, storage.Backend) {
	t.Helper()
	ctx := context.Background()
	mem := storage.NewAFS(fmt.Sprintf("mem://localhost/sculpt-root-%d", memSeq.Add(1)))
	for p, src := range files {
		require.NoError(t, mem.Write(ctx, p, []byte(src)))
	}
	cb, err := Open(ctx, "mem", WithBackend(&failingBackend{Backend: mem, failPath: failPath}))
	require.NoError(t, err)
	return cb, mem
}

func TestCommit_IOFailureLeavesGraphAndFiles(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	files := map[string]string{
		"a.py": "def helper(): pass\n\ndef main(): helper()",
		"b.py": "",
	}
	cb, mem := newMemCodebase(t, files, "b.py")
	before := cb.Stats()
	helper := mustSymbol(t, cb, "a.py", "helper")

	_, err := cb.MoveSymbol(helper, "b.py", MoveOptions{})
	require.NoError(t, err)

	res, err := cb.Commit(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCommitIO)
	assert.Equal(t, KindCommitIOFailure, KindOf(err))
	require.NotNil(t, res)
	statuses := make(map[string]FileStatus)
	for _, f := range res.Files {
		statuses[f.Path] = f.Status
	}
	assert.Equal(t, Failed, statuses["b.py"])

	for p, src := range files {
		data, rerr := mem.Read(ctx, p)
		require.NoError(t, rerr)
		assert.Equal(t, src, string(data), p)
	}
	assert.Equal(t, before, cb.Stats())
	assert.True(t, helper.Alive())
	assert.ElementsMatch(t, []string{"a.py", "b.py"}, cb.Dirty())

	cb.Reset()
	assert.Empty(t, cb.Dirty())
}

// hookedBackend calls afterWrite once each write has landed.
type hookedBackend struct {
	storage.Backend
	afterWrite func()
}

func (h *hookedBackend) Write(ctx context.Context, p string, data []byte) error {
	if err := h.Backend.Write(ctx, p, data); err != nil {
		return err
	}
	if h.afterWrite != nil {
		h.afterWrite()
	}
	return nil
}

func TestCommit_ReparseFailureAfterWrite(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mem := storage.NewAFS(fmt.Sprintf("mem://localhost/sculpt-root-%d", memSeq.Add(1)))
	require.NoError(t, mem.Write(ctx, "a.py", []byte("x = 1\n")))
	hb := &hookedBackend{Backend: mem}
	cb, err := Open(ctx, "mem", WithBackend(hb))
	require.NoError(t, err)
	t.Cleanup(func() { cb.Close() })

	// Python stops being a supported language once the write is on the
	// backend, so the written file cannot be reparsed.
	var once sync.Once
	hb.afterWrite = func() {
		once.Do(func() { cb.langs = map[parse.Language]bool{} })
	}

	f, err := cb.GetFile("a.py")
	require.NoError(t, err)
	require.NoError(t, f.InsertAfter("y = 2\n"))

	res, err := cb.Commit(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, parse.ErrUnsupportedLanguage)
	require.NotNil(t, res)

	data, err := mem.Read(ctx, "a.py")
	require.NoError(t, err)
	assert.Contains(t, string(data), "y = 2")
	assert.Empty(t, cb.Dirty())
	_, err = cb.GetSymbol("a.py", "x")
	assert.NoError(t, err)

	f, err = cb.GetFile("a.py")
	require.NoError(t, err)
	require.NoError(t, f.InsertAfter("z = 3\n"))
	_, err = cb.Commit(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, parse.ErrUnsupportedLanguage)
	data, err = mem.Read(ctx, "a.py")
	require.NoError(t, err)
	assert.NotContains(t, string(data), "z = 3")
}

func TestCommit_MemoryBackend(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cb, mem := newMemCodebase(t, map[string]string{
		"src/a.ts": "export const a = 1;\n",
	}, "")

	f, err := cb.CreateFile("src/b.ts")
	require.NoError(t, err)
	require.NoError(t, f.AddImport("src/a.ts", "a", ""))
	require.NoError(t, f.InsertAfter("export const b = a + 1;\n"))

	res := mustCommit(t, cb)
	require.Len(t, res.Files, 1)
	assert.Equal(t, Created, res.Files[0].Status)

	data, err := mem.Read(ctx, "src/b.ts")
	require.NoError(t, err)
	assert.Contains(t, string(data), "import { a } from './a';")
	assert.Contains(t, string(data), "export const b = a + 1;")

	a := mustSymbol(t, cb, "src/a.ts", "a")
	assert.Equal(t, []string{"src/b"}, edgeFroms(a.Usages(Indirect)))
}

func TestFile_CreateAndGet(t *testing.T) {
	t.Parallel()
	cb := newTestCodebase(t, map[string]string{"a.py": "x = 1\n"})

	_, err := cb.GetFile("missing.py")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, KindNotFound, KindOf(err))

	_, err = cb.CreateFile("a.py")
	assert.ErrorIs(t, err, ErrFileExists)

	f, err := cb.CreateFile("pkg/new.py")
	require.NoError(t, err)
	assert.Equal(t, Python, f.Language())
	got, err := cb.GetFile("./pkg/new.py")
	require.NoError(t, err)
	assert.Equal(t, "pkg/new.py", got.Path())

	cb.Reset()
	_, err = cb.GetFile("pkg/new.py")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReduceCondition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		path  string
		src   string
		typ   string
		value bool
		want  string
	}{
		{
			name: "python if true keeps body", path: "a.py", typ: "if_statement", value: true,
			src:  "if flag:\n    A()\nelse:\n    B()\n",
			want: "A()\n",
		},
		{
			name: "python if false keeps else", path: "a.py", typ: "if_statement", value: false,
			src:  "if flag:\n    A()\nelse:\n    B()\n",
			want: "B()\n",
		},
		{
			name: "nested python if keeps indentation", path: "a.py", typ: "if_statement", value: true,
			src:  "def f():\n    if flag:\n        A()\n    else:\n        B()\n",
			want: "def f():\n    A()\n",
		},
		{
			name: "python conditional expression", path: "a.py", typ: "conditional_expression", value: false,
			src:  "x = a if flag else b\n",
			want: "x = b\n",
		},
		{
			name: "typescript ternary", path: "a.ts", typ: "ternary_expression", value: true,
			src:  "const x = flag ? a : b;\n",
			want: "const x = a;\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cb := newTestCodebase(t, map[string]string{tt.path: tt.src})
			f, err := cb.GetFile(tt.path)
			require.NoError(t, err)
			nodes := f.FindNodes(tt.typ)
			require.NotEmpty(t, nodes)

			require.NoError(t, nodes[0].ReduceCondition(tt.value))
			got, err := cb.PendingSource(tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReduceCondition_Unsupported(t *testing.T) {
	t.Parallel()
	cb := newTestCodebase(t, map[string]string{"a.py": "x = 1\n"})
	f, err := cb.GetFile("a.py")
	require.NoError(t, err)
	stmts := f.Statements()
	require.Len(t, stmts, 1)
	assert.ErrorIs(t, stmts[0].ReduceCondition(true), ErrUnsupported)
}

func TestParameter_Remove(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		remove []int
		want   string
	}{
		{"middle", []int{1}, "def f(a, c):\n    return a\n"},
		{"last", []int{2}, "def f(a, b):\n    return a\n"},
		{"first and last", []int{0, 2}, "def f(b):\n    return a\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cb := newTestCodebase(t, map[string]string{"a.py": "def f(a, b, c):\n    return a\n"})
			params := mustSymbol(t, cb, "a.py", "f").Parameters()
			require.Len(t, params, 3)
			for _, i := range tt.remove {
				require.NoError(t, params[i].Remove())
			}
			got, err := cb.PendingSource("a.py")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSymbol_InsertAroundAndExtendedSource(t *testing.T) {
	t.Parallel()
	cb := newTestCodebase(t, map[string]string{"a.py": "@dec\ndef f():\n    pass\n"})

	f := mustSymbol(t, cb, "a.py", "f")
	assert.True(t, len(f.ExtendedSource()) >= len(f.Source()))
	assert.Contains(t, f.ExtendedSource(), "@dec")

	require.NoError(t, f.InsertAfter("\n\n\ndef g():\n    pass"))
	mustCommit(t, cb)
	assert.Equal(t, "@dec\ndef f():\n    pass\n\n\ndef g():\n    pass\n", readRepoFile(t, cb, "a.py"))
	mustSymbol(t, cb, "a.py", "g")
}

func TestSymbol_CallSites(t *testing.T) {
	t.Parallel()
	cb := newTestCodebase(t, map[string]string{
		"a.py": "def helper():\n    return 1\n\n\ndef main():\n    return helper()\n",
		"b.py": "from a import helper\n\nprint(helper())\n",
	})

	calls := mustSymbol(t, cb, "a.py", "helper").CallSites()
	require.Len(t, calls, 2)
	assert.Equal(t, "a.py", calls[0].Path())
	assert.Equal(t, "helper()", calls[0].Source())
	assert.Equal(t, "call", calls[0].Type())
	assert.Equal(t, "b.py", calls[1].Path())
	assert.Equal(t, "helper()", calls[1].Source())
}

func TestOpen_WithLanguages(t *testing.T) {
	t.Parallel()
	cb := newTestCodebase(t, map[string]string{
		"a.py": "x = 1\n",
		"b.ts": "export const y = 2;\n",
	}, WithLanguages("py"))

	assert.Equal(t, []string{"a.py"}, cb.Files())
	_, err := cb.GetFile("b.ts")
	assert.ErrorIs(t, err, ErrNotFound)
}
