// Package graph is the dependency/usage graph: an arena of nodes keyed by
// stable integer IDs with typed edges indexed in both directions.
//
// Removing a node is a tombstone. Edges touching a tombstone are hidden from
// queries immediately and physically dropped by Prune.
package graph

import (
	"fmt"
	"math/bits"
	"sort"
	"strings"
)

// ID identifies a node. The zero ID is never assigned.
type ID uint32

// NodeKind is the closed set of node variants.
type NodeKind uint8

const (
	Function NodeKind = iota + 1
	Class
	Variable
	Import
	Export
	// Module is the per-file node that owns module-level code.
	Module
	// External is a placeholder for a module or symbol outside the repository.
	External
)

var nodeKindNames = map[NodeKind]string{
	Function: "function",
	Class:    "class",
	Variable: "variable",
	Import:   "import",
	Export:   "export",
	Module:   "module",
	External: "external",
}

func (k NodeKind) String() string {
	if s, ok := nodeKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("NodeKind(%d)", k)
}

// ParseNodeKind converts a name produced by String back to a NodeKind.
func ParseNodeKind(s string) (NodeKind, bool) {
	for k, name := range nodeKindNames {
		if name == s {
			return k, true
		}
	}
	return 0, false
}

// EdgeKind is a bit flag; combinations form a query mask.
type EdgeKind uint8

const (
	Direct EdgeKind = 1 << iota
	Chained
	Indirect
	Aliased

	AllKinds = Direct | Chained | Indirect | Aliased
)

const numKinds = 4

var edgeKindNames = [numKinds]string{"direct", "chained", "indirect", "aliased"}

func (k EdgeKind) String() string {
	var parts []string
	for i := 0; i < numKinds; i++ {
		if k&(1<<i) != 0 {
			parts = append(parts, edgeKindNames[i])
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// ParseEdgeKinds parses a comma or pipe separated list such as
// "direct,indirect". "all" selects every kind.
func ParseEdgeKinds(s string) (EdgeKind, error) {
	var mask EdgeKind
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '|' }) {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "all" {
			mask |= AllKinds
			continue
		}
		found := false
		for i, name := range edgeKindNames {
			if name == part {
				mask |= 1 << i
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("graph: unknown edge kind %q", part)
		}
	}
	return mask, nil
}

func kindIndex(k EdgeKind) int {
	return bits.TrailingZeros8(uint8(k))
}

// Site is a source location where an edge is observed. Start/End cover the
// name token that denotes the target; ExprStart is the start of the whole
// dotted expression for chained accesses and equals Start otherwise.
type Site struct {
	File      string
	Start     int
	End       int
	ExprStart int
}

// Node is one graph vertex.
type Node struct {
	ID            ID
	Kind          NodeKind
	Name          string
	QualifiedName string
	File          string
	// Decl indexes the declaration within its file's extraction result;
	// -1 for Module and External nodes.
	Decl   int
	Parent ID
}

// Edge is a typed usage from From to To. Via names the import an indirect,
// aliased or chained reference went through.
type Edge struct {
	From  ID
	To    ID
	Via   ID
	Kind  EdgeKind
	Sites []Site
}

type edgeKey struct {
	from, to, via ID
	kind          EdgeKind
}

type edgeRec struct {
	Edge
	dead bool
}

type adjacency struct {
	out [numKinds][]int32
	in  [numKinds][]int32
}

// Graph is the arena. It is not safe for concurrent mutation.
type Graph struct {
	nodes     []Node
	removed   []bool
	adj       []adjacency
	edges     []edgeRec
	index     map[edgeKey]int32
	byFile    map[string][]ID
	externals map[string]ID

	liveNodes int
	liveEdges int
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		index:     make(map[edgeKey]int32),
		byFile:    make(map[string][]ID),
		externals: make(map[string]ID),
	}
}

// AddNode inserts n and returns its assigned ID.
func (g *Graph) AddNode(n Node) ID {
	n.ID = ID(len(g.nodes) + 1)
	g.nodes = append(g.nodes, n)
	g.removed = append(g.removed, false)
	g.adj = append(g.adj, adjacency{})
	g.liveNodes++
	if n.File != "" {
		g.byFile[n.File] = append(g.byFile[n.File], n.ID)
	}
	if n.Kind == External {
		g.externals[n.Name] = n.ID
	}
	return n.ID
}

// External returns the placeholder node for name, creating it on first use.
func (g *Graph) External(name string) ID {
	if id, ok := g.externals[name]; ok && g.Alive(id) {
		return id
	}
	return g.AddNode(Node{Kind: External, Name: name, QualifiedName: name, Decl: -1})
}

// Alive reports whether id names a node that has not been removed.
func (g *Graph) Alive(id ID) bool {
	return id != 0 && int(id) <= len(g.nodes) && !g.removed[id-1]
}

// Node returns the node for id. ok is false for unknown or removed IDs.
func (g *Graph) Node(id ID) (Node, bool) {
	if !g.Alive(id) {
		return Node{}, false
	}
	return g.nodes[id-1], true
}

// Remove tombstones id. Its edges disappear from queries at once.
func (g *Graph) Remove(id ID) {
	if !g.Alive(id) {
		return
	}
	g.removed[id-1] = true
	g.liveNodes--
}

// RemoveFile tombstones every node of path and returns their IDs.
func (g *Graph) RemoveFile(path string) []ID {
	var out []ID
	for _, id := range g.byFile[path] {
		if g.Alive(id) {
			g.Remove(id)
			out = append(out, id)
		}
	}
	delete(g.byFile, path)
	return out
}

// NodesInFile returns the live nodes of path in insertion order.
func (g *Graph) NodesInFile(path string) []ID {
	var out []ID
	for _, id := range g.byFile[path] {
		if g.Alive(id) {
			out = append(out, id)
		}
	}
	return out
}

// Files returns the sorted paths that own live nodes.
func (g *Graph) Files() []string {
	out := make([]string, 0, len(g.byFile))
	for path := range g.byFile {
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}

// AddEdge records a usage. Repeated edges with the same endpoints, kind and
// via accumulate sites. Edges touching removed nodes are ignored and
// AddEdge returns false.
func (g *Graph) AddEdge(from, to, via ID, kind EdgeKind, site Site) bool {
	if !g.Alive(from) || !g.Alive(to) || bits.OnesCount8(uint8(kind)) != 1 || kind&AllKinds == 0 {
		return false
	}
	key := edgeKey{from: from, to: to, via: via, kind: kind}
	if idx, ok := g.index[key]; ok {
		e := &g.edges[idx]
		for _, s := range e.Sites {
			if s == site {
				return true
			}
		}
		e.Sites = append(e.Sites, site)
		return true
	}
	idx := int32(len(g.edges))
	g.edges = append(g.edges, edgeRec{Edge: Edge{From: from, To: to, Via: via, Kind: kind, Sites: []Site{site}}})
	g.index[key] = idx
	k := kindIndex(kind)
	g.adj[from-1].out[k] = append(g.adj[from-1].out[k], idx)
	g.adj[to-1].in[k] = append(g.adj[to-1].in[k], idx)
	g.liveEdges++
	return true
}

// ClearOutEdges drops every edge leaving id.
func (g *Graph) ClearOutEdges(id ID) {
	if id == 0 || int(id) > len(g.nodes) {
		return
	}
	a := &g.adj[id-1]
	for k := 0; k < numKinds; k++ {
		for _, idx := range a.out[k] {
			e := &g.edges[idx]
			if e.dead {
				continue
			}
			e.dead = true
			delete(g.index, edgeKey{from: e.From, to: e.To, via: e.Via, kind: e.Kind})
			g.liveEdges--
		}
		a.out[k] = nil
	}
}

func (g *Graph) visible(e *edgeRec) bool {
	return !e.dead && g.Alive(e.From) && g.Alive(e.To) && (e.Via == 0 || g.Alive(e.Via))
}

func (g *Graph) collect(lists *[numKinds][]int32, mask EdgeKind) []Edge {
	if mask == 0 {
		mask = Direct
	}
	var out []Edge
	for k := 0; k < numKinds; k++ {
		if mask&(1<<k) == 0 {
			continue
		}
		for _, idx := range lists[k] {
			e := &g.edges[idx]
			if !g.visible(e) {
				continue
			}
			cp := e.Edge
			cp.Sites = append([]Site(nil), e.Sites...)
			out = append(out, cp)
		}
	}
	return out
}

// Dependencies returns the visible edges leaving id whose kind is in mask.
// A zero mask means Direct only.
func (g *Graph) Dependencies(id ID, mask EdgeKind) []Edge {
	if !g.Alive(id) {
		return nil
	}
	return g.collect(&g.adj[id-1].out, mask)
}

// Usages returns the visible edges entering id whose kind is in mask.
// A zero mask means Direct only.
func (g *Graph) Usages(id ID, mask EdgeKind) []Edge {
	if !g.Alive(id) {
		return nil
	}
	return g.collect(&g.adj[id-1].in, mask)
}

// Prune drops dead edges and edges touching removed nodes from storage and
// rebuilds the adjacency index. It returns the number of edges dropped.
func (g *Graph) Prune() int {
	kept := make([]edgeRec, 0, g.liveEdges)
	dropped := 0
	for i := range g.edges {
		e := &g.edges[i]
		if !g.visible(e) {
			dropped++
			continue
		}
		kept = append(kept, *e)
	}

	for i := range g.adj {
		g.adj[i] = adjacency{}
	}
	g.index = make(map[edgeKey]int32, len(kept))
	for i := range kept {
		e := &kept[i]
		idx := int32(i)
		k := kindIndex(e.Kind)
		g.adj[e.From-1].out[k] = append(g.adj[e.From-1].out[k], idx)
		g.adj[e.To-1].in[k] = append(g.adj[e.To-1].in[k], idx)
		g.index[edgeKey{from: e.From, to: e.To, via: e.Via, kind: e.Kind}] = idx
	}
	g.edges = kept
	g.liveEdges = len(kept)
	return dropped
}

// DanglingEdges counts stored, non-cleared edges that touch a removed node.
// It is zero after Prune.
func (g *Graph) DanglingEdges() int {
	n := 0
	for i := range g.edges {
		e := &g.edges[i]
		if !e.dead && !g.visible(e) {
			n++
		}
	}
	return n
}

// Nodes calls fn for every live node in ID order until fn returns false.
func (g *Graph) Nodes(fn func(Node) bool) {
	for i := range g.nodes {
		if g.removed[i] {
			continue
		}
		if !fn(g.nodes[i]) {
			return
		}
	}
}

// Edges calls fn for every visible edge until fn returns false.
func (g *Graph) Edges(fn func(Edge) bool) {
	for i := range g.edges {
		e := &g.edges[i]
		if !g.visible(e) {
			continue
		}
		if !fn(e.Edge) {
			return
		}
	}
}

// Stats summarizes the graph.
type Stats struct {
	Nodes int
	Edges int
}

// Stats returns live node and edge counts. Edge counts include edges hidden
// by tombstones until the next Prune.
func (g *Graph) Stats() Stats {
	return Stats{Nodes: g.liveNodes, Edges: g.liveEdges}
}
