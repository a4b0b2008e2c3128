package sculpt

import (
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/sculpt/internal/parse"
)

// ReduceCondition rewrites a conditional as if its condition always
// evaluated to value. The surviving branch replaces the whole statement at
// the statement's indentation; when no branch survives the statement is
// removed. Supported nodes are if statements and conditional expressions.
func (n *Node) ReduceCondition(value bool) error {
	src, err := n.check()
	if err != nil {
		return err
	}
	sn := n.syntax()
	if sn == nil {
		return fmt.Errorf("sculpt: %s node at %d: %w", n.path, n.span.Start, ErrStaleNode)
	}
	switch sn.Type() {
	case "if_statement":
		if _, lang, _ := n.cb.content(n.path); lang == parse.Python {
			return n.reducePythonIf(src, sn, value)
		}
		return n.reduceESIf(src, sn, value)
	case "conditional_expression":
		// a if cond else b
		keep := sn.NamedChild(0)
		if !value {
			keep = sn.NamedChild(2)
		}
		return n.replaceWith(src, sn, keep)
	case "ternary_expression":
		keep := sn.ChildByFieldName("consequence")
		if !value {
			keep = sn.ChildByFieldName("alternative")
		}
		return n.replaceWith(src, sn, keep)
	}
	return fmt.Errorf("sculpt: reduce %s: %w", sn.Type(), ErrUnsupported)
}

func (n *Node) replaceWith(src []byte, sn, keep *sitter.Node) error {
	if keep == nil {
		return fmt.Errorf("sculpt: reduce %s: missing branch: %w", sn.Type(), ErrUnsupported)
	}
	return n.queue(int(sn.StartByte()), int(sn.EndByte()), string(src[keep.StartByte():keep.EndByte()]))
}

func (n *Node) reducePythonIf(src []byte, sn *sitter.Node, value bool) error {
	if value {
		return n.hoist(src, sn, sn.ChildByFieldName("consequence"))
	}
	for i := 0; i < int(sn.NamedChildCount()); i++ {
		alt := sn.NamedChild(i)
		switch alt.Type() {
		case "elif_clause":
			// The first elif takes over as the if.
			return n.queue(int(sn.StartByte()), int(alt.StartByte())+len("elif"), "if")
		case "else_clause":
			return n.hoist(src, sn, alt.ChildByFieldName("body"))
		}
	}
	return n.removeStatement(sn)
}

func (n *Node) reduceESIf(src []byte, sn *sitter.Node, value bool) error {
	if value {
		return n.hoist(src, sn, sn.ChildByFieldName("consequence"))
	}
	alt := sn.ChildByFieldName("alternative")
	if alt == nil {
		return n.removeStatement(sn)
	}
	var body *sitter.Node
	for i := 0; i < int(alt.NamedChildCount()); i++ {
		if c := alt.NamedChild(i); c.Type() != "comment" {
			body = c
			break
		}
	}
	if body == nil {
		return n.removeStatement(sn)
	}
	if body.Type() == "if_statement" {
		// else if: the nested if takes over.
		return n.queue(int(sn.StartByte()), int(body.StartByte()), "")
	}
	return n.hoist(src, sn, body)
}

// hoist replaces stmt with the statements of body, reindented to stmt's
// indentation.
func (n *Node) hoist(src []byte, stmt, body *sitter.Node) error {
	if body == nil {
		return n.removeStatement(stmt)
	}
	start, end := int(body.StartByte()), int(body.EndByte())
	if body.Type() == "statement_block" {
		if body.NamedChildCount() == 0 {
			return n.removeStatement(stmt)
		}
		start = int(body.NamedChild(0).StartByte())
		end = int(body.NamedChild(int(body.NamedChildCount()) - 1).EndByte())
	}
	text := reindent(string(src[start:end]), indentOf(src, start), indentOf(src, int(stmt.StartByte())))
	return n.queue(int(stmt.StartByte()), int(stmt.EndByte()), text)
}

func (n *Node) removeStatement(sn *sitter.Node) error {
	span := spanOfNode(sn)
	return n.cb.deleteStatement(n.path, span, span)
}

// reindent swaps the leading indentation from for to on every line but
// the first, which starts mid-line.
func reindent(text, from, to string) string {
	if from == to {
		return text
	}
	lines := strings.Split(text, "\n")
	for i := 1; i < len(lines); i++ {
		if strings.HasPrefix(lines[i], from) {
			lines[i] = to + lines[i][len(from):]
		}
	}
	return strings.Join(lines, "\n")
}
