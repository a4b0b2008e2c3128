package sculpt

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/jward/sculpt/internal/graph"
)

// Location represents a source code position range. Lines and columns are
// 1-based; columns count bytes.
type Location struct {
	File      string
	StartLine int
	StartCol  int
	EndLine   int
	EndCol    int
}

func (l Location) String() string {
	return fmt.Sprintf("%s:%d:%d", l.File, l.StartLine, l.StartCol)
}

// Locate converts a byte range of p's committed content to a Location.
func (cb *Codebase) Locate(p string, s Span) Location {
	return cb.location(p, s)
}

func (cb *Codebase) location(p string, s Span) Location {
	src, _, _ := cb.content(p)
	sl, sc := lineCol(src, s.Start)
	el, ec := lineCol(src, s.End)
	return Location{File: p, StartLine: sl, StartCol: sc, EndLine: el, EndCol: ec}
}

func lineCol(src []byte, off int) (int, int) {
	off = min(max(off, 0), len(src))
	line := bytes.Count(src[:off], []byte("\n")) + 1
	return line, off - lineStart(src, off) + 1
}

// offset converts a 1-based line and column of p back to a byte offset.
func (cb *Codebase) offset(p string, line, col int) (int, bool) {
	src, _, ok := cb.content(p)
	if !ok || line < 1 || col < 1 {
		return 0, false
	}
	off := 0
	for l := 1; l < line; l++ {
		i := bytes.IndexByte(src[off:], '\n')
		if i < 0 {
			return 0, false
		}
		off += i + 1
	}
	off += col - 1
	if off > lineEnd(src, min(off, len(src))) || off > len(src) {
		return 0, false
	}
	return off, true
}

// Symbols returns every declaration of the codebase, by path and then in
// source order. With kinds, only those kinds are returned; module and
// external nodes are included only when asked for.
func (cb *Codebase) Symbols(kinds ...SymbolKind) []*Symbol {
	var nodes []graph.Node
	cb.graph.Nodes(func(n graph.Node) bool {
		if len(kinds) == 0 && (n.Kind == graph.Module || n.Kind == graph.External) {
			return true
		}
		if matchKind(n.Kind, kinds) {
			nodes = append(nodes, n)
		}
		return true
	})
	sortNodes(nodes)
	out := make([]*Symbol, len(nodes))
	for i, n := range nodes {
		out[i] = &Symbol{anchor: cb.anchor(n.File), node: n}
	}
	return out
}

// sortNodes orders by file, then declaration order. Externals have no
// file and sort first, by name.
func sortNodes(nodes []graph.Node) {
	sort.Slice(nodes, func(i, j int) bool {
		a, b := nodes[i], nodes[j]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Decl != b.Decl {
			return a.Decl < b.Decl
		}
		return a.QualifiedName < b.QualifiedName
	})
}

// Functions returns module-level functions of every file.
func (cb *Codebase) Functions() []*Symbol { return cb.topLevel((*File).Functions) }

// Classes returns module-level classes of every file.
func (cb *Codebase) Classes() []*Symbol { return cb.topLevel((*File).Classes) }

// Imports returns module-level import bindings of every file.
func (cb *Codebase) Imports() []*Symbol { return cb.topLevel((*File).Imports) }

func (cb *Codebase) topLevel(fn func(*File) []*Symbol) []*Symbol {
	var out []*Symbol
	for _, p := range cb.Files() {
		out = append(out, fn(cb.file(p))...)
	}
	return out
}

// GetSymbol returns the declaration name in the file at path. "Class.method"
// selects a member.
func (cb *Codebase) GetSymbol(p, name string) (*Symbol, error) {
	f, err := cb.GetFile(p)
	if err != nil {
		return nil, err
	}
	return f.GetSymbol(name)
}

// Lookup returns every symbol with the given qualified name. Module
// symbols are found by module name, externals by their dotted name.
func (cb *Codebase) Lookup(qname string) []*Symbol {
	var nodes []graph.Node
	cb.graph.Nodes(func(n graph.Node) bool {
		if n.QualifiedName == qname {
			nodes = append(nodes, n)
		}
		return true
	})
	sortNodes(nodes)
	out := make([]*Symbol, len(nodes))
	for i, n := range nodes {
		out[i] = &Symbol{anchor: cb.anchor(n.File), node: n}
	}
	return out
}

// SymbolAt returns the narrowest declaration of p whose span contains off,
// or nil.
func (cb *Codebase) SymbolAt(p string, off int) *Symbol {
	u, ok := cb.resolver.Unit(cleanPath(p))
	if !ok {
		return nil
	}
	best := -1
	for i := range u.Index.Decls {
		s := u.Index.Decls[i].Span
		if off < s.Start || off >= s.End {
			continue
		}
		if best < 0 || s.End-s.Start < u.Index.Decls[best].Span.End-u.Index.Decls[best].Span.Start {
			best = i
		}
	}
	if best < 0 {
		return nil
	}
	return cb.symbol(u.IDs[best])
}

// DefinitionAt finds the definitions of the name referenced at the given
// 1-based position. References through imports resolve to the root
// declaration rather than the import binding. Returns nil if nothing is
// referenced there.
func (cb *Codebase) DefinitionAt(p string, line, col int) []Location {
	p = cleanPath(p)
	off, ok := cb.offset(p, line, col)
	if !ok {
		return nil
	}
	var direct, rooted []graph.ID
	cb.graph.Edges(func(e graph.Edge) bool {
		for _, s := range e.Sites {
			if s.File != p || off < s.Start || off >= s.End {
				continue
			}
			if e.Kind == graph.Direct {
				direct = append(direct, e.To)
			} else {
				rooted = append(rooted, e.To)
			}
			break
		}
		return true
	})
	targets := rooted
	if len(targets) == 0 {
		targets = direct
	}
	seen := make(map[graph.ID]bool)
	var out []Location
	for _, id := range targets {
		if seen[id] {
			continue
		}
		seen[id] = true
		if loc, ok := cb.symbolLocation(id); ok {
			out = append(out, loc)
		}
	}
	sortLocations(out)
	return out
}

// symbolLocation returns the location of a symbol's name. Externals have
// none.
func (cb *Codebase) symbolLocation(id graph.ID) (Location, bool) {
	s := cb.symbol(id)
	if s == nil || s.IsExternal() {
		return Location{}, false
	}
	if d := s.decl(); d != nil {
		return cb.location(s.path, d.NameSpan), true
	}
	return cb.location(s.path, Span{}), true
}

// ReferencesTo returns every site that refers to sym, through any kind of
// edge, deduplicated and sorted.
func (cb *Codebase) ReferencesTo(sym *Symbol) []Location {
	type key struct {
		file       string
		start, end int
	}
	seen := make(map[key]bool)
	var out []Location
	for _, e := range cb.graph.Usages(sym.node.ID, graph.AllKinds) {
		for _, s := range e.Sites {
			k := key{s.File, s.Start, s.End}
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, cb.location(s.File, Span{Start: s.Start, End: s.End}))
		}
	}
	sortLocations(out)
	return out
}

func sortLocations(locs []Location) {
	sort.Slice(locs, func(i, j int) bool {
		a, b := locs[i], locs[j]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.StartLine != b.StartLine {
			return a.StartLine < b.StartLine
		}
		return a.StartCol < b.StartCol
	})
}
