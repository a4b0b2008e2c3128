package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func site(file string, start int) Site {
	return Site{File: file, Start: start, End: start + 1, ExprStart: start}
}

// buildScenario builds b.py:helper, a.py:{import helper, main} with
// main -> import (direct), import -> helper (direct), main -> helper (indirect).
func buildScenario(t *testing.T) (*Graph, ID, ID, ID) {
	t.Helper()
	g := New()
	helper := g.AddNode(Node{Kind: Function, Name: "helper", File: "b.py"})
	imp := g.AddNode(Node{Kind: Import, Name: "helper", File: "a.py"})
	main := g.AddNode(Node{Kind: Function, Name: "main", File: "a.py"})

	require.True(t, g.AddEdge(imp, helper, 0, Direct, site("a.py", 14)))
	require.True(t, g.AddEdge(main, imp, 0, Direct, site("a.py", 34)))
	require.True(t, g.AddEdge(main, helper, imp, Indirect, site("a.py", 34)))
	return g, helper, imp, main
}

func TestEdgeKind_StringAndParse(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "direct", Direct.String())
	assert.Equal(t, "direct|indirect", (Direct | Indirect).String())
	assert.Equal(t, "none", EdgeKind(0).String())

	mask, err := ParseEdgeKinds("direct, aliased")
	require.NoError(t, err)
	assert.Equal(t, Direct|Aliased, mask)

	mask, err = ParseEdgeKinds("all")
	require.NoError(t, err)
	assert.Equal(t, AllKinds, mask)

	_, err = ParseEdgeKinds("sideways")
	require.Error(t, err)
}

func TestNodeKind_Parse(t *testing.T) {
	t.Parallel()

	k, ok := ParseNodeKind("class")
	require.True(t, ok)
	assert.Equal(t, Class, k)
	_, ok = ParseNodeKind("trait")
	assert.False(t, ok)
}

func TestGraph_MaskQueries(t *testing.T) {
	t.Parallel()
	g, helper, imp, main := buildScenario(t)

	// Default mask is Direct only.
	usages := g.Usages(helper, 0)
	require.Len(t, usages, 1)
	assert.Equal(t, imp, usages[0].From)

	indirect := g.Usages(helper, Indirect)
	require.Len(t, indirect, 1)
	assert.Equal(t, main, indirect[0].From)
	assert.Equal(t, imp, indirect[0].Via)

	assert.Len(t, g.Usages(helper, AllKinds), 2)
	assert.Len(t, g.Dependencies(main, Direct|Indirect), 2)
	assert.Empty(t, g.Dependencies(main, Chained|Aliased))
}

func TestGraph_InverseRelationship(t *testing.T) {
	t.Parallel()
	g, _, _, _ := buildScenario(t)

	g.Nodes(func(a Node) bool {
		for _, e := range g.Dependencies(a.ID, AllKinds) {
			found := false
			for _, u := range g.Usages(e.To, e.Kind) {
				if u.From == a.ID && u.Via == e.Via {
					found = true
				}
			}
			assert.True(t, found, "edge %d -> %d missing from usages", e.From, e.To)
		}
		return true
	})
}

func TestGraph_DuplicateEdgesAccumulateSites(t *testing.T) {
	t.Parallel()
	g := New()
	a := g.AddNode(Node{Kind: Function, Name: "a", File: "x.py"})
	b := g.AddNode(Node{Kind: Function, Name: "b", File: "x.py"})

	require.True(t, g.AddEdge(a, b, 0, Direct, site("x.py", 10)))
	require.True(t, g.AddEdge(a, b, 0, Direct, site("x.py", 20)))
	require.True(t, g.AddEdge(a, b, 0, Direct, site("x.py", 20)))

	deps := g.Dependencies(a, Direct)
	require.Len(t, deps, 1)
	assert.Len(t, deps[0].Sites, 2)
	assert.Equal(t, 1, g.Stats().Edges)
}

func TestGraph_RejectsInvalidEdges(t *testing.T) {
	t.Parallel()
	g := New()
	a := g.AddNode(Node{Kind: Function, Name: "a", File: "x.py"})
	b := g.AddNode(Node{Kind: Function, Name: "b", File: "x.py"})

	assert.False(t, g.AddEdge(a, b, 0, Direct|Chained, site("x.py", 0)))
	assert.False(t, g.AddEdge(a, 99, 0, Direct, site("x.py", 0)))
	g.Remove(b)
	assert.False(t, g.AddEdge(a, b, 0, Direct, site("x.py", 0)))
}

func TestGraph_TombstoneHidesEdgesAndPruneDrops(t *testing.T) {
	t.Parallel()
	g, helper, imp, main := buildScenario(t)

	removed := g.RemoveFile("b.py")
	assert.Equal(t, []ID{helper}, removed)
	_, ok := g.Node(helper)
	assert.False(t, ok)

	assert.Empty(t, g.Usages(helper, AllKinds))
	assert.Empty(t, g.Dependencies(imp, AllKinds))
	assert.Len(t, g.Dependencies(main, AllKinds), 1)
	assert.Equal(t, 2, g.DanglingEdges())

	assert.Equal(t, 2, g.Prune())
	assert.Zero(t, g.DanglingEdges())
	assert.Equal(t, 1, g.Stats().Edges)

	deps := g.Dependencies(main, Direct)
	require.Len(t, deps, 1)
	assert.Equal(t, imp, deps[0].To)
}

func TestGraph_ClearOutEdges(t *testing.T) {
	t.Parallel()
	g, helper, _, main := buildScenario(t)

	g.ClearOutEdges(main)
	assert.Empty(t, g.Dependencies(main, AllKinds))
	assert.Len(t, g.Usages(helper, AllKinds), 1)

	// Re-adding after a clear creates a fresh edge.
	require.True(t, g.AddEdge(main, helper, 0, Direct, site("a.py", 1)))
	assert.Len(t, g.Usages(helper, Direct), 2)

	g.Prune()
	assert.Len(t, g.Usages(helper, Direct), 2)
	assert.Empty(t, g.Usages(helper, Indirect))
}

func TestGraph_External(t *testing.T) {
	t.Parallel()
	g := New()

	os1 := g.External("os")
	os2 := g.External("os")
	assert.Equal(t, os1, os2)

	n, ok := g.Node(os1)
	require.True(t, ok)
	assert.Equal(t, External, n.Kind)
	assert.Equal(t, -1, n.Decl)
	assert.Empty(t, g.Files())
}

func TestGraph_NodesInFile(t *testing.T) {
	t.Parallel()
	g, _, imp, main := buildScenario(t)

	assert.Equal(t, []ID{imp, main}, g.NodesInFile("a.py"))
	assert.Equal(t, []string{"a.py", "b.py"}, g.Files())

	g.Remove(imp)
	assert.Equal(t, []ID{main}, g.NodesInFile("a.py"))
}
