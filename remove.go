package sculpt

import (
	"bytes"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/sculpt/internal/parse"
	"github.com/jward/sculpt/internal/resolve"
)

// Removal policy, per container:
//
//   - a statement takes its whole lines and the blank lines after it; at the
//     end of a file it takes the blank lines before it instead
//   - the only statement of a Python block becomes `pass`
//   - a list item (import names, export specifiers, declarators,
//     parameters) takes one adjacent comma, see listRemovalOps
//   - the last item of an import or export list takes the statement

// deleteStatement removes whole, a statement range that may include
// leading comments. stmt is the statement node itself.
func (cb *Codebase) deleteStatement(p string, whole, stmt Span) error {
	fs, ok := cb.files[p]
	if !ok {
		return cb.deleteRange(p, whole.Start, whole.End)
	}
	if fs.lang == parse.Python && soleInBlock(fs.tree, stmt) {
		return cb.queue(p, len(fs.src), whole.Start, whole.End, "pass")
	}
	start, end := statementRange(fs.src, whole.Start, whole.End)
	return cb.deleteRange(p, start, end)
}

// statementRange widens [start, end) to the lines it occupies.
func statementRange(src []byte, start, end int) (int, int) {
	ls := lineStart(src, start)
	if isBlank(src[ls:start]) {
		start = ls
	}
	le := lineEnd(src, end)
	if !isBlank(src[end:le]) {
		return start, end
	}
	end = le
	if end < len(src) {
		end++
	}
	for end < len(src) {
		next := lineEnd(src, end)
		if !isBlank(src[end:next]) {
			break
		}
		if next == len(src) {
			end = next
			break
		}
		end = next + 1
	}
	if end == len(src) && start == ls {
		for start > 0 {
			prev := lineStart(src, start-1)
			if !isBlank(src[prev : start-1]) {
				break
			}
			start = prev
		}
	}
	return start, end
}

// soleInBlock reports whether stmt is the only statement of a block.
func soleInBlock(tree *parse.Tree, stmt Span) bool {
	if tree == nil {
		return false
	}
	n := tree.Root()
	for n != nil {
		var next *sitter.Node
		for i := 0; i < int(n.NamedChildCount()); i++ {
			c := n.NamedChild(i)
			if int(c.StartByte()) > stmt.Start || stmt.End > int(c.EndByte()) {
				continue
			}
			if n.Type() == "block" && int(c.StartByte()) == stmt.Start && int(c.EndByte()) == stmt.End {
				return statementCount(n) == 1
			}
			next = c
			break
		}
		n = next
	}
	return false
}

func statementCount(block *sitter.Node) int {
	count := 0
	for i := 0; i < int(block.NamedChildCount()); i++ {
		if block.NamedChild(i).Type() != "comment" {
			count++
		}
	}
	return count
}

// removeDecl queues the removal of declaration d of file p.
func (cb *Codebase) removeDecl(p string, d *resolve.Decl) error {
	whole := extent(d)
	if spec := d.Import; spec != nil {
		stmt := Span{Start: min(whole.Start, spec.Statement.Start), End: max(whole.End, spec.Statement.End)}
		switch {
		case len(spec.Group) > 0 && spec.GroupItem >= 0:
			parent := cb.list(p, spec.Items, stmt, spec.Statement, nil, 0)
			group := cb.list(p, spec.Group, Span{}, Span{}, parent, spec.Item)
			return cb.removeListItem(group, spec.GroupItem)
		case len(spec.Items) > 0:
			l := cb.list(p, spec.Items, stmt, spec.Statement, nil, 0)
			return cb.removeListItem(l, spec.Item)
		}
		return cb.deleteStatement(p, stmt, spec.Statement)
	}
	if len(d.Items) > 1 {
		l := cb.list(p, d.Items, d.Statement, d.Statement, nil, 0)
		return cb.removeListItem(l, d.Item)
	}
	return cb.deleteStatement(p, whole, d.Statement)
}

func lineStart(src []byte, off int) int {
	if i := bytes.LastIndexByte(src[:off], '\n'); i >= 0 {
		return i + 1
	}
	return 0
}

// lineEnd returns the offset of the newline ending the line holding off,
// or len(src).
func lineEnd(src []byte, off int) int {
	if i := bytes.IndexByte(src[off:], '\n'); i >= 0 {
		return off + i
	}
	return len(src)
}

func isBlank(b []byte) bool {
	return len(bytes.TrimSpace(b)) == 0
}

// indentOf returns the whitespace that starts the line holding off.
func indentOf(src []byte, off int) string {
	ls := lineStart(src, off)
	i := ls
	for i < len(src) && (src[i] == ' ' || src[i] == '\t') {
		i++
	}
	return string(src[ls:i])
}

// extent is the statement of d widened over its leading comments.
func extent(d *resolve.Decl) Span {
	whole := d.Statement
	if whole == (Span{}) {
		whole = d.Span
	}
	if d.ExtSpan != (Span{}) && d.ExtSpan.Start <= whole.Start && len(d.Items) <= 1 {
		whole.Start = d.ExtSpan.Start
		whole.End = max(whole.End, d.ExtSpan.End)
	}
	return whole
}
