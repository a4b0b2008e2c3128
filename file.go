package sculpt

import (
	"fmt"
	"path"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/sculpt/internal/graph"
	"github.com/jward/sculpt/internal/parse"
	"github.com/jward/sculpt/internal/resolve"
)

// File is one source file of the codebase.
type File struct {
	anchor
}

func (cb *Codebase) file(p string) *File {
	return &File{anchor: cb.anchor(p)}
}

// Path returns the slash-separated path relative to the root.
func (f *File) Path() string { return f.path }

// Language returns the file's language.
func (f *File) Language() Language {
	_, lang, _ := f.cb.content(f.path)
	return lang
}

// Module returns the module name other files import this file by.
func (f *File) Module() string {
	if fs, ok := f.cb.files[f.path]; ok {
		return fs.index.Module
	}
	lang, _ := parse.LanguageForFile(f.path)
	if lang == parse.Python {
		return resolve.PythonModuleName(f.path, f.cb.resolver.SourceRoots())
	}
	return strings.TrimSuffix(f.path, path.Ext(f.path))
}

// Source returns the committed content.
func (f *File) Source() string {
	src, _, _ := f.cb.content(f.path)
	return string(src)
}

// ExtendedSource is the same as Source for files.
func (f *File) ExtendedSource() string { return f.Source() }

// PendingSource returns the content the file will have after Commit.
func (f *File) PendingSource() (string, error) {
	return f.cb.PendingSource(f.path)
}

// Edit replaces the whole content.
func (f *File) Edit(text string) error {
	src, err := f.check()
	if err != nil {
		return err
	}
	return f.queue(0, len(src), text)
}

// InsertBefore prepends text.
func (f *File) InsertBefore(text string) error {
	return f.queue(0, 0, text)
}

// InsertAfter appends text.
func (f *File) InsertAfter(text string) error {
	src, err := f.check()
	if err != nil {
		return err
	}
	return f.queue(len(src), len(src), text)
}

// Remove queues deletion of the file. Pending edits to it are dropped.
func (f *File) Remove() error {
	if _, err := f.check(); err != nil {
		return err
	}
	if _, ok := f.cb.created[f.path]; ok {
		delete(f.cb.created, f.path)
		f.cb.txn.Remove(f.path)
		return nil
	}
	f.cb.txn.Remove(f.path)
	return nil
}

// Dirty reports whether the file has pending edits.
func (f *File) Dirty() bool {
	_, ok := f.cb.txn.Pending(f.path)
	return ok
}

// HasErrors reports whether the file only parsed with error nodes.
func (f *File) HasErrors() bool {
	fs, ok := f.cb.files[f.path]
	return ok && len(fs.index.Errors) > 0
}

func (f *File) index() *resolve.FileIndex {
	if fs, ok := f.cb.files[f.path]; ok {
		return fs.index
	}
	return nil
}

func (f *File) unit() *resolve.Unit {
	u, _ := f.cb.resolver.Unit(f.path)
	return u
}

// Symbols returns the file's declarations in source order, methods after
// their class. With kinds, only those kinds are returned.
func (f *File) Symbols(kinds ...SymbolKind) []*Symbol {
	u := f.unit()
	if u == nil {
		return nil
	}
	var out []*Symbol
	for _, id := range u.IDs {
		if s := f.cb.symbol(id); s != nil && matchKind(s.node.Kind, kinds) {
			out = append(out, s)
		}
	}
	return out
}

func matchKind(k SymbolKind, kinds []SymbolKind) bool {
	if len(kinds) == 0 {
		return true
	}
	for _, want := range kinds {
		if k == want {
			return true
		}
	}
	return false
}

// TopLevel returns the module-level declarations.
func (f *File) TopLevel() []*Symbol {
	var out []*Symbol
	for _, s := range f.Symbols() {
		if s.decl() != nil && s.decl().IsTopLevel() {
			out = append(out, s)
		}
	}
	return out
}

// Functions returns module-level functions.
func (f *File) Functions() []*Symbol { return f.topLevel(graph.Function) }

// Classes returns module-level classes.
func (f *File) Classes() []*Symbol { return f.topLevel(graph.Class) }

// Imports returns module-level import bindings.
func (f *File) Imports() []*Symbol { return f.topLevel(graph.Import) }

// Exports returns export statements that are not declarations.
func (f *File) Exports() []*Symbol { return f.topLevel(graph.Export) }

// Variables returns module-level variables.
func (f *File) Variables() []*Symbol { return f.topLevel(graph.Variable) }

func (f *File) topLevel(kind SymbolKind) []*Symbol {
	var out []*Symbol
	for _, s := range f.TopLevel() {
		if s.node.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}

// GetSymbol returns a declaration by name. "Class.method" selects a
// member. Module-level bindings win over nested ones.
func (f *File) GetSymbol(name string) (*Symbol, error) {
	u := f.unit()
	if u == nil {
		return nil, fmt.Errorf("sculpt: %s has no symbols: %w", f.path, ErrNotFound)
	}
	fi := u.Index
	parts := strings.Split(name, ".")
	idx := -1
	if i, ok := fi.Lookup(parts[0]); ok {
		idx = i
	} else {
		for i := range fi.Decls {
			if fi.Decls[i].IsTopLevel() && fi.Decls[i].Name == parts[0] {
				idx = i
			}
		}
	}
	for _, part := range parts[1:] {
		if idx < 0 {
			break
		}
		next := -1
		for i := range fi.Decls {
			if fi.Decls[i].Parent == idx && fi.Decls[i].Name == part {
				next = i
				break
			}
		}
		idx = next
	}
	if idx < 0 {
		return nil, fmt.Errorf("sculpt: %s in %s: %w", name, f.path, ErrNotFound)
	}
	return f.cb.symbol(u.IDs[idx]), nil
}

// Statements returns the top-level statements.
func (f *File) Statements() []*Node {
	fi := f.index()
	if fi == nil {
		return nil
	}
	out := make([]*Node, 0, len(fi.Statements))
	for _, st := range fi.Statements {
		out = append(out, f.cb.node(f.path, st.Span, st.Type))
	}
	return out
}

// FindNodes returns every node of the given tree-sitter type, outermost
// first in source order.
func (f *File) FindNodes(typ string) []*Node {
	fs, ok := f.cb.files[f.path]
	if !ok {
		return nil
	}
	var out []*Node
	walkTree(fs.tree.Root(), func(n *sitter.Node) bool {
		if n.Type() == typ {
			out = append(out, f.cb.node(f.path, spanOfNode(n), typ))
		}
		return true
	})
	return out
}

// NodeAt returns the smallest named node covering [start, end).
func (f *File) NodeAt(start, end int) (*Node, error) {
	fs, ok := f.cb.files[f.path]
	if !ok || start < 0 || end > len(fs.src) || start > end {
		return nil, fmt.Errorf("sculpt: %s [%d,%d): %w", f.path, start, end, ErrNotFound)
	}
	n := fs.tree.Root().NamedDescendantForByteRange(uint32(start), uint32(end))
	if n == nil {
		return nil, fmt.Errorf("sculpt: %s [%d,%d): %w", f.path, start, end, ErrNotFound)
	}
	return f.cb.node(f.path, spanOfNode(n), n.Type()), nil
}

// Importers returns the files whose imports resolve to this file.
func (f *File) Importers() []string {
	return f.cb.resolver.Importers(f.path)
}

// AddImport queues an import statement. module is either a repository
// path ("pkg/util.py") or a module name as it would be written. An empty
// name imports the module itself; name "default" is an ECMAScript default
// import bound to alias.
func (f *File) AddImport(module, name, alias string) error {
	if _, err := f.check(); err != nil {
		return err
	}
	req := importReq{module: module, name: name, alias: alias}
	if _, _, ok := f.cb.content(cleanPath(module)); ok {
		req.module, req.target = "", cleanPath(module)
	}
	return f.cb.addImports(f.path, []importReq{req})
}
