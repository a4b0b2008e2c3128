package sculpt

import (
	"fmt"
	"sort"

	"github.com/jward/sculpt/internal/graph"
	"github.com/jward/sculpt/internal/parse"
	"github.com/jward/sculpt/internal/resolve"
)

// SymbolID is a symbol's arena ID. IDs are never reused; a symbol whose
// file was committed again gets a new one.
type SymbolID = graph.ID

// Symbol is a declaration, a module, or an external placeholder.
type Symbol struct {
	anchor
	node graph.Node
}

func (cb *Codebase) symbol(id graph.ID) *Symbol {
	if id == 0 {
		return nil
	}
	n, ok := cb.graph.Node(id)
	if !ok {
		return nil
	}
	return &Symbol{anchor: cb.anchor(n.File), node: n}
}

// decl returns the declaration behind s, or nil for modules, externals,
// and symbols whose file has been reindexed.
func (s *Symbol) decl() *resolve.Decl {
	if s.node.Decl < 0 || !s.cb.graph.Alive(s.node.ID) {
		return nil
	}
	u, ok := s.cb.resolver.Unit(s.node.File)
	if !ok || s.node.Decl >= len(u.IDs) || u.IDs[s.node.Decl] != s.node.ID {
		return nil
	}
	return &u.Index.Decls[s.node.Decl]
}

// editable returns the declaration a mutation targets.
func (s *Symbol) editable() (*resolve.Decl, error) {
	if s.node.Kind == graph.External {
		return nil, fmt.Errorf("sculpt: %s: %w", s.node.QualifiedName, ErrExternalSymbol)
	}
	if _, err := s.check(); err != nil {
		return nil, err
	}
	d := s.decl()
	if d == nil {
		return nil, fmt.Errorf("sculpt: %s in %s: %w", s.node.QualifiedName, s.path, ErrStaleNode)
	}
	return d, nil
}

func (s *Symbol) isModule() bool { return s.node.Kind == graph.Module }

// ID returns the arena ID.
func (s *Symbol) ID() SymbolID { return s.node.ID }

// Name returns the bound name. Modules use their module name; externals
// their dotted import path.
func (s *Symbol) Name() string { return s.node.Name }

// QualifiedName includes enclosing classes and functions.
func (s *Symbol) QualifiedName() string { return s.node.QualifiedName }

func (s *Symbol) Kind() SymbolKind { return s.node.Kind }

// Path returns the declaring file, "" for external symbols.
func (s *Symbol) Path() string { return s.node.File }

// File returns the declaring file, nil for external symbols.
func (s *Symbol) File() *File {
	if s.node.Kind == graph.External {
		return nil
	}
	return s.cb.file(s.node.File)
}

func (s *Symbol) IsExternal() bool { return s.node.Kind == graph.External }

// Alive reports whether the symbol still exists in the graph.
func (s *Symbol) Alive() bool { return s.cb.graph.Alive(s.node.ID) }

// Variant is the per-language subtype: "method", "interface", "enum",
// "type" or "arrow", empty otherwise.
func (s *Symbol) Variant() string {
	if d := s.decl(); d != nil {
		return d.Variant
	}
	return ""
}

// Exported reports whether an ECMAScript declaration is exported. Python
// module-level names are always importable.
func (s *Symbol) Exported() bool {
	d := s.decl()
	if d == nil {
		return s.isModule()
	}
	if _, lang, _ := s.cb.content(s.path); lang == parse.Python {
		return d.IsTopLevel()
	}
	return d.Exported
}

// Span returns the declaration's range in committed content.
func (s *Symbol) Span() Span {
	if d := s.decl(); d != nil {
		return d.Span
	}
	if s.isModule() {
		src, _, _ := s.cb.content(s.path)
		return Span{End: len(src)}
	}
	return Span{}
}

// Location returns where the symbol's name is declared. Externals have no
// location and return the zero value.
func (s *Symbol) Location() Location {
	loc, _ := s.cb.symbolLocation(s.node.ID)
	return loc
}

// Docstring returns the Python docstring literal or the JSDoc comment as
// written, or "".
func (s *Symbol) Docstring() string {
	if s.isModule() {
		if fi := s.cb.file(s.path).index(); fi != nil {
			return s.text(fi.DocSpan)
		}
		return ""
	}
	if d := s.decl(); d != nil {
		return s.text(d.DocSpan)
	}
	return ""
}

// ReturnType returns a function's return annotation, or "".
func (s *Symbol) ReturnType() string {
	if d := s.decl(); d != nil {
		return s.text(d.ReturnType)
	}
	return ""
}

// Type returns a variable's annotation, or "".
func (s *Symbol) Type() string {
	if d := s.decl(); d != nil {
		return s.text(d.TypeSpan)
	}
	return ""
}

// Parent returns the enclosing class or function, or the module for
// top-level declarations.
func (s *Symbol) Parent() *Symbol {
	if s.node.Parent == 0 {
		return nil
	}
	return s.cb.symbol(s.node.Parent)
}

// Children returns the declarations nested directly in s.
func (s *Symbol) Children() []*Symbol {
	u, ok := s.cb.resolver.Unit(s.node.File)
	if !ok || s.node.Kind == graph.External {
		return nil
	}
	var out []*Symbol
	for i := range u.Index.Decls {
		if u.Index.Decls[i].Parent == s.node.Decl {
			if c := s.cb.symbol(u.IDs[i]); c != nil {
				out = append(out, c)
			}
		}
	}
	return out
}

// Parameters returns a function's parameters, including bare separators
// such as `*` and `/`.
func (s *Symbol) Parameters() []*Parameter {
	d := s.decl()
	if d == nil || len(d.Params) == 0 {
		return nil
	}
	spans := make([]Span, len(d.Params))
	for i, p := range d.Params {
		spans[i] = p.Span
	}
	out := make([]*Parameter, len(d.Params))
	for i := range d.Params {
		out[i] = &Parameter{anchor: s.anchor, param: d.Params[i], index: i, list: spans}
	}
	return out
}

// Attributes returns the class attributes and fields as nodes.
func (s *Symbol) Attributes() []*Node {
	d := s.decl()
	if d == nil {
		return nil
	}
	out := make([]*Node, 0, len(d.Attrs))
	for _, a := range d.Attrs {
		out = append(out, s.cb.node(s.path, a.Span, "attribute"))
	}
	return out
}

// Source returns the declaration text without decorators or export
// keywords. For a module it is the whole file.
func (s *Symbol) Source() string {
	if s.isModule() {
		return s.cb.file(s.path).Source()
	}
	if d := s.decl(); d != nil {
		return s.text(d.Span)
	}
	return ""
}

// ExtendedSource adds leading comments, decorators and export keywords.
func (s *Symbol) ExtendedSource() string {
	if s.isModule() {
		return s.Source()
	}
	d := s.decl()
	if d == nil {
		return ""
	}
	if d.ExtSpan == (Span{}) {
		return s.text(d.Span)
	}
	return s.text(Span{Start: min(d.ExtSpan.Start, d.Span.Start), End: max(d.ExtSpan.End, d.Span.End)})
}

// Edit replaces the declaration text.
func (s *Symbol) Edit(text string) error {
	if s.isModule() {
		return s.File().Edit(text)
	}
	d, err := s.editable()
	if err != nil {
		return err
	}
	return s.queue(d.Span.Start, d.Span.End, text)
}

// InsertBefore inserts text ahead of the declaration and its comments.
func (s *Symbol) InsertBefore(text string) error {
	if s.isModule() {
		return s.File().InsertBefore(text)
	}
	d, err := s.editable()
	if err != nil {
		return err
	}
	return s.queue(extent(d).Start, extent(d).Start, text)
}

// InsertAfter inserts text after the declaration's statement.
func (s *Symbol) InsertAfter(text string) error {
	if s.isModule() {
		return s.File().InsertAfter(text)
	}
	d, err := s.editable()
	if err != nil {
		return err
	}
	return s.queue(extent(d).End, extent(d).End, text)
}

// Remove deletes the declaration. An import binding takes only its name
// unless it is the last one of its statement.
func (s *Symbol) Remove() error {
	if s.isModule() {
		return s.File().Remove()
	}
	d, err := s.editable()
	if err != nil {
		return err
	}
	return s.cb.removeDecl(s.path, d)
}

// Dependencies returns the edges leaving s whose kind is in mask. A zero
// mask means Direct.
func (s *Symbol) Dependencies(mask EdgeKind) []Edge {
	return s.cb.edges(s.cb.graph.Dependencies(s.node.ID, mask))
}

// Usages returns the edges entering s whose kind is in mask. A zero mask
// means Direct.
func (s *Symbol) Usages(mask EdgeKind) []Edge {
	return s.cb.edges(s.cb.graph.Usages(s.node.ID, mask))
}

func (cb *Codebase) edges(in []graph.Edge) []Edge {
	out := make([]Edge, 0, len(in))
	for _, e := range in {
		edge := Edge{
			From:  cb.symbol(e.From),
			To:    cb.symbol(e.To),
			Kind:  e.Kind,
			Sites: e.Sites,
		}
		if e.Via != 0 {
			edge.Via = cb.symbol(e.Via)
		}
		out = append(out, edge)
	}
	return out
}

// CallSites returns the call expressions whose callee resolves to s,
// across every file and import path.
func (s *Symbol) CallSites() []*Node {
	type key struct {
		file  string
		start int
	}
	seen := make(map[key]bool)
	var out []*Node
	for _, e := range s.cb.graph.Usages(s.node.ID, graph.AllKinds) {
		for _, site := range e.Sites {
			u, ok := s.cb.resolver.Unit(site.File)
			if !ok {
				continue
			}
			call, ok := u.Index.Calls[site.Start]
			if !ok || seen[key{site.File, call.Start}] {
				continue
			}
			seen[key{site.File, call.Start}] = true
			typ := "call_expression"
			if u.Index.Language == parse.Python {
				typ = "call"
			}
			out = append(out, s.cb.node(site.File, call, typ))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].path != out[j].path {
			return out[i].path < out[j].path
		}
		return out[i].span.Start < out[j].span.Start
	})
	return out
}

func (s *Symbol) String() string {
	if s.node.File == "" {
		return s.node.QualifiedName
	}
	return s.node.File + ":" + s.node.QualifiedName
}
