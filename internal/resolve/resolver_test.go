package resolve

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/sculpt/internal/graph"
)

// load extracts files and links them into a fresh graph.
func load(t *testing.T, files map[string]string, opts ...Option) *Resolver {
	t.Helper()
	r := NewResolver(graph.New(), opts...)
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		r.AddFile(extract(t, p, files[p]))
	}
	r.LinkAll()
	return r
}

func nodeID(t *testing.T, r *Resolver, path, name string) graph.ID {
	t.Helper()
	u, ok := r.Unit(path)
	require.True(t, ok, path)
	for i := range u.Index.Decls {
		if u.Index.Decls[i].Name == name {
			return u.IDs[i]
		}
	}
	t.Fatalf("no %s in %s", name, path)
	return 0
}

func fromNames(t *testing.T, r *Resolver, edges []graph.Edge) []string {
	t.Helper()
	var out []string
	for _, e := range edges {
		n, ok := r.Graph().Node(e.From)
		require.True(t, ok)
		out = append(out, n.Name)
	}
	sort.Strings(out)
	return out
}

func TestResolver_ImportedFunctionUsage(t *testing.T) {
	t.Parallel()
	r := load(t, map[string]string{
		"a.py": "from b import helper\n\ndef main(): helper()",
		"b.py": "def helper(): pass",
	})
	g := r.Graph()
	helper := nodeID(t, r, "b.py", "helper")
	imp := nodeID(t, r, "a.py", "helper")
	main := nodeID(t, r, "a.py", "main")

	indirect := g.Usages(helper, graph.Indirect)
	require.Len(t, indirect, 1)
	assert.Equal(t, main, indirect[0].From)
	assert.Equal(t, imp, indirect[0].Via)

	direct := g.Usages(helper, 0)
	require.Len(t, direct, 1)
	assert.Equal(t, imp, direct[0].From)

	deps := g.Dependencies(main, graph.Direct)
	require.Len(t, deps, 1)
	assert.Equal(t, imp, deps[0].To)

	assert.Equal(t, []string{"a.py"}, r.Importers("b.py"))
	assert.Empty(t, r.Diagnostics())
}

func TestResolver_AliasedImport(t *testing.T) {
	t.Parallel()
	r := load(t, map[string]string{
		"a.py": "from b import helper as h\n\ndef main():\n    h()\n",
		"b.py": "def helper(): pass\n",
	})
	helper := nodeID(t, r, "b.py", "helper")
	aliased := r.Graph().Usages(helper, graph.Aliased)
	require.Len(t, aliased, 1)
	assert.Equal(t, []string{"main"}, fromNames(t, r, aliased))
	assert.Empty(t, r.Graph().Usages(helper, graph.Indirect))
}

func TestResolver_ReExportChain(t *testing.T) {
	t.Parallel()
	r := load(t, map[string]string{
		"app.py":          "from pkg import helper\n\nhelper()\n",
		"pkg/__init__.py": "from .impl import helper\n",
		"pkg/impl.py":     "def helper():\n    return 1\n",
	})
	helper := nodeID(t, r, "pkg/impl.py", "helper")
	u, _ := r.Unit("app.py")

	usages := r.Graph().Usages(helper, graph.Indirect)
	require.Len(t, usages, 1)
	assert.Equal(t, u.Module, usages[0].From)

	res, err := r.Resolve("app.py", 0)
	require.NoError(t, err)
	assert.Equal(t, helper, res.Root)
	assert.NotEqual(t, res.Immediate, res.Root)
	assert.Equal(t, 1, res.Hops)
}

func TestResolver_AliasCycle(t *testing.T) {
	t.Parallel()
	r := load(t, map[string]string{
		"a.py": "from b import x\n",
		"b.py": "from a import x\n",
	})
	diags := r.Diagnostics()
	require.Len(t, diags, 2)
	for _, d := range diags {
		assert.ErrorIs(t, d.Err, ErrUnresolvedAliasCycle)
	}
}

func TestResolver_HopBound(t *testing.T) {
	t.Parallel()
	files := map[string]string{
		"m0.py": "def target(): pass\n",
		"m1.py": "from m0 import target\n",
		"m2.py": "from m1 import target\n",
		"m3.py": "from m2 import target\n",
	}
	r := load(t, files, WithMaxHops(1))
	_, err := r.Resolve("m3.py", 0)
	require.ErrorIs(t, err, ErrUnresolvedAliasCycle)

	r = load(t, files)
	res, err := r.Resolve("m3.py", 0)
	require.NoError(t, err)
	assert.Equal(t, nodeID(t, r, "m0.py", "target"), res.Root)
}

func TestResolver_ExternalModule(t *testing.T) {
	t.Parallel()
	r := load(t, map[string]string{
		"a.py": "import os\nfrom typing import List\n\ndef f():\n    return os.getcwd()\n",
	})
	g := r.Graph()
	osImp := nodeID(t, r, "a.py", "os")
	deps := g.Dependencies(osImp, graph.Direct)
	require.Len(t, deps, 1)
	n, ok := g.Node(deps[0].To)
	require.True(t, ok)
	assert.Equal(t, graph.External, n.Kind)
	assert.Equal(t, "os", n.Name)

	list := nodeID(t, r, "a.py", "List")
	deps = g.Dependencies(list, graph.Direct)
	require.Len(t, deps, 1)
	n, _ = g.Node(deps[0].To)
	assert.Equal(t, "typing.List", n.Name)

	f := nodeID(t, r, "a.py", "f")
	assert.Len(t, g.Dependencies(f, graph.Indirect), 1)
}

func TestResolver_ModuleAttributeIsChained(t *testing.T) {
	t.Parallel()
	r := load(t, map[string]string{
		"a.py":        "import pkg.util\n\ndef run():\n    return pkg.util.compute(2)\n",
		"pkg/util.py": "def compute(n):\n    return n * 2\n",
	})
	compute := nodeID(t, r, "pkg/util.py", "compute")
	chained := r.Graph().Usages(compute, graph.Chained)
	require.Len(t, chained, 1)
	assert.Equal(t, []string{"run"}, fromNames(t, r, chained))

	s := chained[0].Sites[0]
	assert.Less(t, s.ExprStart, s.Start)
}

func TestResolver_ClassMemberIsChained(t *testing.T) {
	t.Parallel()
	r := load(t, map[string]string{
		"a.py": "from b import Box\n\ndef use():\n    return Box.make()\n",
		"b.py": "class Box:\n    @staticmethod\n    def make():\n        return Box()\n",
	})
	mk := nodeID(t, r, "b.py", "make")
	assert.Equal(t, []string{"use"}, fromNames(t, r, r.Graph().Usages(mk, graph.Chained)))
}

func TestResolver_TypeScriptNamedAndDefault(t *testing.T) {
	t.Parallel()
	r := load(t, map[string]string{
		"src/a.ts":     "import Widget, { helper as h } from './b';\nexport function main() { return h(new Widget()); }\n",
		"src/b.ts":     "export function helper(w: unknown) { return w; }\nexport default class Widget {}\n",
		"src/index.ts": "export { main } from './a';\nexport * from './b';\n",
		"src/c.ts":     "import { helper, main } from './index';\nhelper(main());\n",
	})
	g := r.Graph()
	helper := nodeID(t, r, "src/b.ts", "helper")
	widget := nodeID(t, r, "src/b.ts", "Widget")

	assert.Equal(t, []string{"main"}, fromNames(t, r, g.Usages(helper, graph.Aliased)))
	assert.Equal(t, []string{"main"}, fromNames(t, r, g.Usages(widget, graph.Indirect)))

	cu, _ := r.Unit("src/c.ts")
	indirect := g.Usages(helper, graph.Indirect)
	require.Len(t, indirect, 1)
	assert.Equal(t, cu.Module, indirect[0].From)

	main := nodeID(t, r, "src/a.ts", "main")
	assert.Len(t, g.Usages(main, graph.Indirect), 1)
	assert.Equal(t, []string{"src/index.ts"}, r.Importers("src/a.ts"))
	assert.Equal(t, []string{"src/c.ts"}, r.Importers("src/index.ts"))
	assert.Equal(t, []string{"src/a.ts", "src/index.ts"}, r.Importers("src/b.ts"))
}

func TestResolver_RemoveAndRelink(t *testing.T) {
	t.Parallel()
	r := load(t, map[string]string{
		"a.py": "from b import helper\n\ndef main(): helper()",
		"b.py": "def helper(): pass",
	})
	g := r.Graph()
	oldHelper := nodeID(t, r, "b.py", "helper")

	affected := r.Affected([]string{"b.py"}, false)
	assert.Equal(t, []string{"a.py", "b.py"}, affected)

	r.RemoveFile("b.py")
	assert.Empty(t, g.Usages(oldHelper, graph.AllKinds))
	r.AddFile(extract(t, "b.py", "def helper(): return 1\n"))
	r.Link(affected)
	g.Prune()
	assert.Zero(t, g.DanglingEdges())

	newHelper := nodeID(t, r, "b.py", "helper")
	assert.NotEqual(t, oldHelper, newHelper)
	assert.Equal(t, []string{"main"}, fromNames(t, r, g.Usages(newHelper, graph.Indirect)))
}

func TestResolver_MissingModuleBecomesExternalUntilCreated(t *testing.T) {
	t.Parallel()
	r := load(t, map[string]string{
		"a.py": "from b import helper\n\nhelper()\n",
	})
	assert.Equal(t, []string{"a.py"}, r.Affected(nil, true))

	r.AddFile(extract(t, "b.py", "def helper(): pass\n"))
	r.Link(r.Affected([]string{"b.py"}, true))
	helper := nodeID(t, r, "b.py", "helper")
	assert.Len(t, r.Graph().Usages(helper, graph.Indirect), 1)
}
