package sculpt

import (
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/sculpt/internal/resolve"
)

// Node is a syntax node of a committed file, addressed by its range and
// tree-sitter type.
type Node struct {
	anchor
	span Span
	typ  string
}

func (cb *Codebase) node(p string, span Span, typ string) *Node {
	return &Node{anchor: cb.anchor(p), span: span, typ: typ}
}

// Path returns the file holding the node.
func (n *Node) Path() string { return n.path }

// Type returns the tree-sitter node type, e.g. "if_statement".
func (n *Node) Type() string { return n.typ }

// Span returns the node's range in committed content.
func (n *Node) Span() Span { return n.span }

// syntax returns the tree-sitter node, or nil once the file is stale.
func (n *Node) syntax() *sitter.Node {
	if _, err := n.check(); err != nil {
		return nil
	}
	fs, ok := n.cb.files[n.path]
	if !ok {
		return nil
	}
	return fs.tree.NodeAt(n.span.Start, n.span.End, n.typ)
}

func (n *Node) Source() string { return n.text(n.span) }

// ExtendedSource is the same as Source for plain nodes.
func (n *Node) ExtendedSource() string { return n.Source() }

func (n *Node) Edit(text string) error {
	return n.queue(n.span.Start, n.span.End, text)
}

func (n *Node) InsertBefore(text string) error {
	return n.queue(n.span.Start, n.span.Start, text)
}

func (n *Node) InsertAfter(text string) error {
	return n.queue(n.span.End, n.span.End, text)
}

// Remove deletes the node. Statements take their lines; items of a comma
// list take one separator; anything else is cut exactly.
func (n *Node) Remove() error {
	if _, err := n.check(); err != nil {
		return err
	}
	sn := n.syntax()
	if sn == nil {
		return fmt.Errorf("sculpt: %s node at %d: %w", n.path, n.span.Start, ErrStaleNode)
	}
	target := sn
	if p := sn.Parent(); p != nil && p.Type() == "decorated_definition" {
		target = p
	}
	parent := target.Parent()
	if parent == nil {
		return n.cb.deleteRange(n.path, n.span.Start, n.span.End)
	}
	span := spanOfNode(target)
	switch {
	case statementContainers[parent.Type()]:
		return n.cb.deleteStatement(n.path, span, span)
	case listContainers[parent.Type()]:
		items := listItems(parent)
		for i, it := range items {
			if it == span {
				return n.cb.removeListItem(n.cb.list(n.path, items, Span{}, Span{}, nil, 0), i)
			}
		}
	}
	return n.cb.deleteRange(n.path, span.Start, span.End)
}

var statementContainers = map[string]bool{
	"module":          true,
	"block":           true,
	"program":         true,
	"statement_block": true,
	"class_body":      true,
}

var listContainers = map[string]bool{
	"argument_list":     true,
	"arguments":         true,
	"parameters":        true,
	"formal_parameters": true,
	"list":              true,
	"array":             true,
	"tuple":             true,
	"set":               true,
	"dictionary":        true,
	"object":            true,
	"named_imports":     true,
	"export_clause":     true,
	"expression_list":   true,
	"pattern_list":      true,
	"type_arguments":    true,
	"type_parameters":   true,
}

// listItems returns the comma-separated named children of n.
func listItems(n *sitter.Node) []Span {
	var out []Span
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c.Type() == "comment" {
			continue
		}
		out = append(out, spanOfNode(c))
	}
	return out
}

// Children returns the named child nodes.
func (n *Node) Children() []*Node {
	sn := n.syntax()
	if sn == nil {
		return nil
	}
	out := make([]*Node, 0, sn.NamedChildCount())
	for i := 0; i < int(sn.NamedChildCount()); i++ {
		c := sn.NamedChild(i)
		out = append(out, n.cb.node(n.path, spanOfNode(c), c.Type()))
	}
	return out
}

// Parent returns the enclosing node, or nil at the root.
func (n *Node) Parent() *Node {
	sn := n.syntax()
	if sn == nil || sn.Parent() == nil {
		return nil
	}
	p := sn.Parent()
	return n.cb.node(n.path, spanOfNode(p), p.Type())
}

// Field returns the child stored under a tree-sitter field name such as
// "condition" or "body".
func (n *Node) Field(name string) *Node {
	sn := n.syntax()
	if sn == nil {
		return nil
	}
	c := sn.ChildByFieldName(name)
	if c == nil {
		return nil
	}
	return n.cb.node(n.path, spanOfNode(c), c.Type())
}

// walkTree visits n and its descendants in preorder. Returning false from
// fn skips the node's children.
func walkTree(n *sitter.Node, fn func(*sitter.Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		walkTree(n.NamedChild(i), fn)
	}
}

func spanOfNode(n *sitter.Node) Span {
	return Span{Start: int(n.StartByte()), End: int(n.EndByte())}
}

// Parameter is one entry of a function's parameter list.
type Parameter struct {
	anchor
	param resolve.Param
	index int
	list  []Span
}

func (p *Parameter) Name() string { return p.param.Name }

// Index is the position in the parameter list.
func (p *Parameter) Index() int { return p.index }

// Type returns the annotation, or "".
func (p *Parameter) Type() string { return p.text(p.param.TypeSpan) }

// Default returns the default value expression, or "".
func (p *Parameter) Default() string { return p.text(p.param.Default) }

func (p *Parameter) Source() string { return p.text(p.param.Span) }

func (p *Parameter) ExtendedSource() string { return p.Source() }

func (p *Parameter) Edit(text string) error {
	return p.queue(p.param.Span.Start, p.param.Span.End, text)
}

func (p *Parameter) InsertBefore(text string) error {
	return p.queue(p.param.Span.Start, p.param.Span.Start, text)
}

func (p *Parameter) InsertAfter(text string) error {
	return p.queue(p.param.Span.End, p.param.Span.End, text)
}

// Remove deletes the parameter and one adjacent comma.
func (p *Parameter) Remove() error {
	if _, err := p.check(); err != nil {
		return err
	}
	return p.cb.removeListItem(p.cb.list(p.path, p.list, Span{}, Span{}, nil, 0), p.index)
}
