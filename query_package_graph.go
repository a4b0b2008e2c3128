package sculpt

import (
	"sort"
)

// DependencyGraph is the file-to-file import graph. Imports of modules
// outside the repository are counted per file but have no edge.
type DependencyGraph struct {
	Files []FileNode
	Edges []DependencyEdge
}

// FileNode is one file in the dependency graph.
type FileNode struct {
	Path            string
	Module          string
	ExternalImports int
}

// DependencyEdge is an import dependency between two files with the number
// of import bindings that contribute to it.
type DependencyEdge struct {
	From  string
	To    string
	Count int
}

// DependencyGraph returns the file-to-file import graph of the committed
// state.
func (cb *Codebase) DependencyGraph() *DependencyGraph {
	g := &DependencyGraph{Files: []FileNode{}, Edges: []DependencyEdge{}}
	type pair struct{ from, to string }
	counts := make(map[pair]int)
	for _, p := range cb.Files() {
		fs := cb.files[p]
		node := FileNode{Path: p, Module: fs.index.Module}
		for i := range fs.index.Decls {
			d := &fs.index.Decls[i]
			if d.Import == nil || d.Import.Module == "" {
				continue
			}
			if target, ok := cb.resolver.ModuleFile(p, d.Import.Module); ok {
				counts[pair{p, target}]++
			} else {
				node.ExternalImports++
			}
		}
		g.Files = append(g.Files, node)
	}
	for k, n := range counts {
		g.Edges = append(g.Edges, DependencyEdge{From: k.from, To: k.to, Count: n})
	}
	sort.Slice(g.Edges, func(i, j int) bool {
		if g.Edges[i].From != g.Edges[j].From {
			return g.Edges[i].From < g.Edges[j].From
		}
		return g.Edges[i].To < g.Edges[j].To
	})
	return g
}

// CircularDependencies detects import cycles between files using Tarjan's
// strongly connected components algorithm. Each cycle lists its files with
// the first repeated at the end. Returns an empty list for acyclic graphs.
func (cb *Codebase) CircularDependencies() [][]string {
	dg := cb.DependencyGraph()

	adj := map[string][]string{}
	selfLoops := map[string]bool{}
	for _, edge := range dg.Edges {
		if edge.From == edge.To {
			selfLoops[edge.From] = true
		}
		adj[edge.From] = append(adj[edge.From], edge.To)
	}

	type nodeInfo struct {
		index   int
		lowlink int
		onStack bool
	}
	info := map[string]*nodeInfo{}
	index := 0
	var stack []string
	result := [][]string{}

	var strongconnect func(v string)
	strongconnect = func(v string) {
		ni := &nodeInfo{index: index, lowlink: index, onStack: true}
		info[v] = ni
		index++
		stack = append(stack, v)

		for _, w := range adj[v] {
			wInfo, visited := info[w]
			if !visited {
				strongconnect(w)
				ni.lowlink = min(ni.lowlink, info[w].lowlink)
			} else if wInfo.onStack {
				ni.lowlink = min(ni.lowlink, wInfo.index)
			}
		}

		if ni.lowlink != ni.index {
			return
		}
		var scc []string
		for {
			w := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			info[w].onStack = false
			scc = append(scc, w)
			if w == v {
				break
			}
		}
		if len(scc) > 1 || selfLoops[scc[0]] {
			// Tarjan pops in reverse.
			for i, j := 0, len(scc)-1; i < j; i, j = i+1, j-1 {
				scc[i], scc[j] = scc[j], scc[i]
			}
			result = append(result, append(scc, scc[0]))
		}
	}

	for _, f := range dg.Files {
		if _, visited := info[f.Path]; !visited {
			strongconnect(f.Path)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i][0] < result[j][0]
	})
	return result
}
