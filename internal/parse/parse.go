// Package parse wraps tree-sitter to produce concrete syntax trees for the
// supported languages. Trees are immutable once returned; Reparse builds a
// new tree from an edited copy of the old one.
package parse

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
)

var (
	// ErrParse marks a file whose tree contains error or missing nodes.
	// It is never returned by Parse; Diagnostics wrap it.
	ErrParse = errors.New("parse error")

	ErrUnsupportedLanguage = errors.New("unsupported language")
)

// Range is a half-open byte range [Start, End).
type Range struct {
	Start int
	End   int
}

// Len returns the number of bytes covered.
func (r Range) Len() int { return r.End - r.Start }

// Contains reports whether o lies within r.
func (r Range) Contains(o Range) bool { return r.Start <= o.Start && o.End <= r.End }

// Edit is a byte-range replacement expressed in the coordinates of the
// source the old tree was parsed from.
type Edit struct {
	Start int
	End   int
	Text  string
}

// Tree is a parsed file: the tree-sitter tree plus the exact bytes it was
// built from.
type Tree struct {
	Language Language
	Source   []byte
	tree     *sitter.Tree
}

// Root returns the root node of the tree.
func (t *Tree) Root() *sitter.Node {
	return t.tree.RootNode()
}

// HasErrors reports whether any part of the input failed to parse.
func (t *Tree) HasErrors() bool {
	return t.Root().HasError()
}

// ErrorRanges returns the byte ranges of ERROR and MISSING nodes. Callers
// skip these regions when extracting declarations.
func (t *Tree) ErrorRanges() []Range {
	var out []Range
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n == nil {
			return
		}
		if n.IsError() || n.IsMissing() {
			out = append(out, Range{Start: int(n.StartByte()), End: int(n.EndByte())})
			return
		}
		if !n.HasError() {
			return
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(t.Root())
	return out
}

// Text returns the source text covered by n.
func (t *Tree) Text(n *sitter.Node) string {
	return n.Content(t.Source)
}

// NodeAt returns the outermost node spanning exactly [start, end) with the
// given type, or nil. An empty typ matches any type.
func (t *Tree) NodeAt(start, end int, typ string) *sitter.Node {
	n := t.Root()
	for n != nil {
		if int(n.StartByte()) == start && int(n.EndByte()) == end && (typ == "" || n.Type() == typ) {
			return n
		}
		var next *sitter.Node
		for i := 0; i < int(n.ChildCount()); i++ {
			c := n.Child(i)
			if int(c.StartByte()) <= start && end <= int(c.EndByte()) {
				next = c
				break
			}
		}
		n = next
	}
	return nil
}

// Parse parses src as lang. Syntax errors do not fail the parse; they
// surface as error nodes (see HasErrors and ErrorRanges).
func Parse(ctx context.Context, src []byte, lang Language) (*Tree, error) {
	grammar, ok := Grammar(lang)
	if !ok {
		return nil, fmt.Errorf("parse: %w %q", ErrUnsupportedLanguage, lang)
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(grammar)

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parse: tree-sitter parse failed: %w", err)
	}
	return &Tree{Language: lang, Source: src, tree: tree}, nil
}

// Reparse incrementally parses newSrc, reusing old. edits must be sorted,
// non-overlapping and expressed in old.Source coordinates; applying them to
// old.Source must yield newSrc, otherwise Reparse falls back to a full parse.
// old must not be used after Reparse returns.
func Reparse(ctx context.Context, old *Tree, newSrc []byte, edits []Edit) (*Tree, error) {
	if old == nil || old.tree == nil {
		return nil, fmt.Errorf("parse: reparse without a previous tree")
	}
	grammar, ok := Grammar(old.Language)
	if !ok {
		return nil, fmt.Errorf("parse: %w %q", ErrUnsupportedLanguage, old.Language)
	}

	cur := old.Source
	delta := 0
	inputs := make([]sitter.EditInput, 0, len(edits))
	for _, e := range edits {
		start := e.Start + delta
		oldEnd := e.End + delta
		if start < 0 || oldEnd > len(cur) || start > oldEnd {
			return Parse(ctx, newSrc, old.Language)
		}
		newEnd := start + len(e.Text)

		in := sitter.EditInput{
			StartIndex:  uint32(start),
			OldEndIndex: uint32(oldEnd),
			NewEndIndex: uint32(newEnd),
			StartPoint:  PointAt(cur, start),
			OldEndPoint: PointAt(cur, oldEnd),
		}

		next := make([]byte, 0, len(cur)-(oldEnd-start)+len(e.Text))
		next = append(next, cur[:start]...)
		next = append(next, e.Text...)
		next = append(next, cur[oldEnd:]...)
		cur = next

		in.NewEndPoint = PointAt(cur, newEnd)
		inputs = append(inputs, in)
		delta += len(e.Text) - (e.End - e.Start)
	}
	if !bytes.Equal(cur, newSrc) {
		return Parse(ctx, newSrc, old.Language)
	}

	for _, in := range inputs {
		old.tree.Edit(in)
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(grammar)

	tree, err := parser.ParseCtx(ctx, old.tree, newSrc)
	if err != nil {
		return nil, fmt.Errorf("parse: incremental parse failed: %w", err)
	}
	return &Tree{Language: old.Language, Source: newSrc, tree: tree}, nil
}

// PointAt converts a byte offset into a tree-sitter row/column point.
func PointAt(src []byte, offset int) sitter.Point {
	if offset > len(src) {
		offset = len(src)
	}
	row := bytes.Count(src[:offset], []byte{'\n'})
	col := offset
	if i := bytes.LastIndexByte(src[:offset], '\n'); i >= 0 {
		col = offset - i - 1
	}
	return sitter.Point{Row: uint32(row), Column: uint32(col)}
}
