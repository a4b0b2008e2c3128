// Package resolve turns syntax trees into declarations and references and
// links them into the usage graph, following imports across files.
package resolve

import (
	"bytes"
	"path"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/sculpt/internal/graph"
	"github.com/jward/sculpt/internal/parse"
)

// Span is a half-open byte range in committed file coordinates.
type Span = parse.Range

// ModuleScope is the Ref.Binding value for names resolved against the
// file's module scope at link time.
const ModuleScope = -2

// Decl is one declaration-shaped node.
type Decl struct {
	Kind          graph.NodeKind
	Name          string
	QualifiedName string

	// Span covers the declaration node; ExtSpan adds leading comments,
	// decorators and export keywords. Statement is the enclosing statement
	// removed when the declaration is deleted.
	Span      Span
	NameSpan  Span
	ExtSpan   Span
	DocSpan   Span
	Statement Span

	// Items lists the sibling declarators of a multi-declarator statement
	// (`const a = 1, b = 2`); Item is this declaration's index.
	Items []Span
	Item  int

	Parent   int
	Exported bool
	Default  bool
	// Variant is the per-language payload: "method", "interface", "enum",
	// "type", "arrow".
	Variant string

	Params     []Param
	Attrs      []Attr
	ReturnType Span
	TypeSpan   Span
	// TypeInsert and ReturnInsert are where a missing variable or return
	// annotation is inserted.
	TypeInsert   int
	ReturnInsert int

	Import *ImportSpec
}

// IsTopLevel reports whether d is declared at module level.
func (d *Decl) IsTopLevel() bool { return d.Parent < 0 }

// Param is one entry of a parameter list.
type Param struct {
	Name      string
	Span      Span
	NameSpan  Span
	TypeSpan  Span
	Default   Span
	Separator bool
	// TypeInsert is where a missing annotation goes.
	TypeInsert int
}

// Attr is a class attribute or field.
type Attr struct {
	Name     string
	Span     Span
	NameSpan Span
	TypeSpan Span
}

// ImportSpec describes one binding of an import or export statement.
type ImportSpec struct {
	// Module is the module as written, quotes stripped. It is empty for
	// export clauses that re-export a local name.
	Module     string
	ModuleSpan Span
	// Name is the imported name: "" for module bindings, "*" for
	// wildcards, "default" for ECMAScript default imports.
	Name     string
	NameSpan Span
	Alias    string
	IsModule bool
	ReExport bool
	TypeOnly bool

	Statement Span
	// Items are the comma-separated units of the statement; Group holds
	// the specifiers inside braces when this binding sits in one.
	Items     []Span
	Item      int
	Group     []Span
	GroupItem int
}

// LocalName returns the name the import binds in its file.
func (s *ImportSpec) LocalName() string {
	if s.Alias != "" {
		return s.Alias
	}
	return s.Name
}

// Ref is an identifier used in expression position that was not bound to
// a function-local name.
type Ref struct {
	Name       string
	Span       Span
	Chain      []string
	ChainSpans []Span
	// Owner is the innermost enclosing declaration, -1 for module code.
	Owner int
	// Binding is a declaration bound in an enclosing function or class
	// scope, or ModuleScope.
	Binding int
}

// Stmt is a top-level statement.
type Stmt struct {
	Span Span
	Type string
}

// FileIndex is the extraction result for one file.
type FileIndex struct {
	Path     string
	Language parse.Language
	Module   string

	Decls      []Decl
	Refs       []Ref
	Statements []Stmt
	Errors     []Span
	DocSpan    Span

	// Scope maps module-level names to the last declaration binding them.
	Scope map[string]int
	// Wildcards are the indices of `from m import *` / `export * from`.
	Wildcards []int
	// Calls maps the start of a callee's name token to the call expression.
	Calls map[int]Span
}

// Extract walks tree once and returns its declarations and references.
func Extract(tree *parse.Tree, filePath string) *FileIndex {
	fi := &FileIndex{
		Path:     filePath,
		Language: tree.Language,
		Module:   moduleLabel(filePath, tree.Language),
		Scope:    make(map[string]int),
		Calls:    make(map[int]Span),
		Errors:   tree.ErrorRanges(),
	}
	if tree.Language == parse.Python {
		newPyExtractor(tree.Source, fi).run(tree.Root())
	} else {
		newESExtractor(tree.Source, fi).run(tree.Root())
	}
	return fi
}

// TopLevel returns the indices of module-level declarations in order.
func (fi *FileIndex) TopLevel() []int {
	var out []int
	for i := range fi.Decls {
		if fi.Decls[i].Parent < 0 {
			out = append(out, i)
		}
	}
	return out
}

// Lookup returns the index of the module-level declaration bound to name.
func (fi *FileIndex) Lookup(name string) (int, bool) {
	i, ok := fi.Scope[name]
	return i, ok
}

// Imports returns the indices of import declarations at module level.
func (fi *FileIndex) Imports() []int {
	var out []int
	for i := range fi.Decls {
		d := &fi.Decls[i]
		if d.Kind == graph.Import && d.Parent < 0 {
			out = append(out, i)
		}
	}
	return out
}

func moduleLabel(filePath string, lang parse.Language) string {
	if lang == parse.Python {
		return PythonModuleName(filePath, nil)
	}
	return strings.TrimSuffix(filePath, path.Ext(filePath))
}

// --- shared tree helpers ---

func spanOf(n *sitter.Node) Span {
	return Span{Start: int(n.StartByte()), End: int(n.EndByte())}
}

func sameNode(a, b *sitter.Node) bool {
	return a != nil && b != nil &&
		a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte() && a.Type() == b.Type()
}

func namedChildren(n *sitter.Node) []*sitter.Node {
	if n == nil {
		return nil
	}
	out := make([]*sitter.Node, 0, n.NamedChildCount())
	for i := 0; i < int(n.NamedChildCount()); i++ {
		out = append(out, n.NamedChild(i))
	}
	return out
}

func childOfType(n *sitter.Node, types ...string) *sitter.Node {
	if n == nil {
		return nil
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		for _, t := range types {
			if c.Type() == t {
				return c
			}
		}
	}
	return nil
}

func lineStart(src []byte, off int) int {
	if i := bytes.LastIndexByte(src[:off], '\n'); i >= 0 {
		return i + 1
	}
	return 0
}

func isBlank(b []byte) bool {
	return len(bytes.TrimSpace(b)) == 0
}

// leadingComments extends n's start over comment siblings on the lines
// directly above it. A blank line or code before a comment stops the scan.
// doc is the nearest comment, or zero.
func leadingComments(src []byte, n *sitter.Node) (start int, nearest Span) {
	start = int(n.StartByte())
	for prev := n.PrevSibling(); prev != nil && prev.Type() == "comment"; prev = prev.PrevSibling() {
		between := src[prev.EndByte():start]
		if bytes.Count(between, []byte{'\n'}) != 1 || !isBlank(between) {
			break
		}
		if !isBlank(src[lineStart(src, int(prev.StartByte())):prev.StartByte()]) {
			break
		}
		if nearest == (Span{}) {
			nearest = spanOf(prev)
		}
		start = int(prev.StartByte())
	}
	return start, nearest
}

func unquote(s string) string {
	if len(s) >= 2 {
		switch s[0] {
		case '"', '\'', '`':
			if s[len(s)-1] == s[0] {
				return s[1 : len(s)-1]
			}
		}
	}
	return s
}

// scope is a lexical scope built during extraction.
type scope struct {
	parent int
	kind   scopeKind
	names  map[string]int
}

type scopeKind int

const (
	scopeModule scopeKind = iota
	scopeFunction
	scopeClass
)

const (
	localName  = -1
	globalName = -3
)

type scopes []scope

func (s *scopes) push(parent int, kind scopeKind, names map[string]int) int {
	if names == nil {
		names = make(map[string]int)
	}
	*s = append(*s, scope{parent: parent, kind: kind, names: names})
	return len(*s) - 1
}

// lookup resolves name from scope outward. Class scopes are only visible
// to code directly in the class body.
func (s scopes) lookup(from int, name string) int {
	for i := from; i >= 0; i = s[i].parent {
		sc := s[i]
		if sc.kind == scopeModule {
			return ModuleScope
		}
		if sc.kind == scopeClass && i != from {
			continue
		}
		if v, ok := sc.names[name]; ok {
			if v == globalName {
				return ModuleScope
			}
			return v
		}
	}
	return ModuleScope
}
