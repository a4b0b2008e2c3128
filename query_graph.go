package sculpt

import (
	"fmt"
	"sort"

	"github.com/jward/sculpt/internal/graph"
)

// maxTraversalDepth caps transitive queries.
const maxTraversalDepth = 100

// UsageGraph is the subgraph reachable from a root symbol.
type UsageGraph struct {
	Root  SymbolID
	Nodes []UsageGraphNode
	Edges []Edge
	Depth int // actual max depth reached (may be < maxDepth if graph is shallow)
}

// UsageGraphNode is a symbol in the subgraph with its distance from the
// root.
type UsageGraphNode struct {
	Symbol *Symbol
	Depth  int // BFS depth from root (0 = root itself)
}

// TransitiveUsages walks usages of sym breadth-first up to maxDepth
// following edges in mask. maxDepth of 0 returns only the root; it is
// capped at 100. Negative returns an error.
func (cb *Codebase) TransitiveUsages(sym *Symbol, mask EdgeKind, maxDepth int) (*UsageGraph, error) {
	return cb.transitive(sym, mask, maxDepth, cb.graph.Usages, "transitive usages")
}

// TransitiveDependencies walks dependencies of sym breadth-first up to
// maxDepth following edges in mask.
func (cb *Codebase) TransitiveDependencies(sym *Symbol, mask EdgeKind, maxDepth int) (*UsageGraph, error) {
	return cb.transitive(sym, mask, maxDepth, cb.graph.Dependencies, "transitive dependencies")
}

func (cb *Codebase) transitive(sym *Symbol, mask EdgeKind, maxDepth int, next func(graph.ID, graph.EdgeKind) []graph.Edge, op string) (*UsageGraph, error) {
	if maxDepth < 0 {
		return nil, fmt.Errorf("sculpt: %s: maxDepth must be non-negative, got %d", op, maxDepth)
	}
	if !sym.Alive() {
		return nil, fmt.Errorf("sculpt: %s: %s: %w", op, sym.node.QualifiedName, ErrStaleNode)
	}
	maxDepth = min(maxDepth, maxTraversalDepth)

	root := sym.node.ID
	result := &UsageGraph{Root: root, Nodes: []UsageGraphNode{{Symbol: sym}}, Edges: []Edge{}}
	visited := map[graph.ID]int{root: 0}
	type bfsEntry struct {
		id    graph.ID
		depth int
	}
	queue := []bfsEntry{{id: root}}
	var edges []graph.Edge
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.depth >= maxDepth {
			continue
		}
		for _, e := range next(cur.id, mask) {
			edges = append(edges, e)
			other := e.From
			if other == cur.id {
				other = e.To
			}
			if _, seen := visited[other]; seen {
				continue
			}
			d := cur.depth + 1
			visited[other] = d
			result.Depth = max(result.Depth, d)
			queue = append(queue, bfsEntry{id: other, depth: d})
			if s := cb.symbol(other); s != nil {
				result.Nodes = append(result.Nodes, UsageGraphNode{Symbol: s, Depth: d})
			}
		}
	}
	result.Edges = append(result.Edges, cb.edges(edges)...)
	return result, nil
}

// UnusedSymbols returns declarations nothing refers to. Imports, exports,
// and methods named like dunder hooks are excluded, as are modules and
// externals.
func (cb *Codebase) UnusedSymbols(filter SymbolFilter, by Sort, page Pagination) *PagedResult[SymbolResult] {
	kinds := filter.Kinds
	if len(kinds) == 0 {
		kinds = []SymbolKind{graph.Function, graph.Class, graph.Variable}
	}
	var items []SymbolResult
	for _, s := range cb.Symbols(kinds...) {
		switch s.node.Kind {
		case graph.Import, graph.Export, graph.Module, graph.External:
			continue
		}
		if isDunder(s.node.Name) || !filter.match(cb, s) {
			continue
		}
		if len(cb.graph.Usages(s.node.ID, graph.AllKinds)) > 0 {
			continue
		}
		items = append(items, SymbolResult{Symbol: s})
	}
	sortSymbolResults(items, by)
	return paginate(items, page)
}

func isDunder(name string) bool {
	return len(name) > 4 && name[:2] == "__" && name[len(name)-2:] == "__"
}

// HotspotResult is a heavily used symbol with fan-in and fan-out.
type HotspotResult struct {
	SymbolResult
	FanIn  int // distinct symbols using it
	FanOut int // distinct symbols it uses directly
}

// Hotspots returns the topN most-referenced declarations, by references
// from other files. topN of 0 returns an empty list; negative returns an
// error.
func (cb *Codebase) Hotspots(topN int) ([]*HotspotResult, error) {
	if topN < 0 {
		return nil, fmt.Errorf("sculpt: hotspots: topN must be non-negative, got %d", topN)
	}
	out := []*HotspotResult{}
	if topN == 0 {
		return out, nil
	}
	for _, s := range cb.Symbols() {
		r := cb.refCounts(s)
		if r.RefCount == 0 {
			continue
		}
		h := &HotspotResult{SymbolResult: r}
		h.FanIn = distinct(cb.graph.Usages(s.node.ID, graph.AllKinds), func(e graph.Edge) graph.ID { return e.From })
		h.FanOut = distinct(cb.graph.Dependencies(s.node.ID, graph.Direct), func(e graph.Edge) graph.ID { return e.To })
		out = append(out, h)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ExternalRefCount != out[j].ExternalRefCount {
			return out[i].ExternalRefCount > out[j].ExternalRefCount
		}
		return out[i].RefCount > out[j].RefCount
	})
	if len(out) > topN {
		out = out[:topN]
	}
	return out, nil
}

func distinct(edges []graph.Edge, key func(graph.Edge) graph.ID) int {
	seen := make(map[graph.ID]bool, len(edges))
	for _, e := range edges {
		seen[key(e)] = true
	}
	return len(seen)
}
