package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/risor-io/risor/object"
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/sculpt/internal/parse"
)

// Trees hands out the committed syntax tree of a repository file.
type Trees interface {
	Tree(path string) (*parse.Tree, bool)
}

// treeIndex maps root nodes back to the tree that owns them. Nodes are
// cached per tree, so walking Parent() from any node reaches the same
// root pointer that was registered.
type treeIndex struct {
	trees Trees

	mu    sync.RWMutex
	roots map[*sitter.Node]treeEntry
}

// treeEntry is a registered tree; path is set for committed trees.
type treeEntry struct {
	tree *parse.Tree
	path string
}

func newTreeIndex(trees Trees) *treeIndex {
	return &treeIndex{trees: trees, roots: make(map[*sitter.Node]treeEntry)}
}

// add registers t and returns its root.
func (ti *treeIndex) add(t *parse.Tree, path string) *sitter.Node {
	root := t.Root()
	ti.mu.Lock()
	ti.roots[root] = treeEntry{tree: t, path: path}
	ti.mu.Unlock()
	return root
}

// owner returns the registered tree n belongs to. A committed tree is
// edited in place when its file is committed again, after which its
// nodes no longer match any source.
func (ti *treeIndex) owner(n *sitter.Node) (*parse.Tree, error) {
	for p := n.Parent(); p != nil; p = n.Parent() {
		n = p
	}
	ti.mu.RLock()
	e, ok := ti.roots[n]
	ti.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("node does not belong to a tree from parse_src or tree")
	}
	if e.path != "" {
		if cur, ok := ti.trees.Tree(e.path); !ok || cur != e.tree {
			return nil, fmt.Errorf("%s was committed since its tree was read", e.path)
		}
	}
	return e.tree, nil
}

func nodeObject(name string, n *sitter.Node) object.Object {
	p, err := object.NewProxy(n)
	if err != nil {
		return object.Errorf("%s: %v", name, err)
	}
	return p
}

// nodeArg unwraps a proxied node argument and finds its tree.
func (ti *treeIndex) nodeArg(name string, arg object.Object) (*sitter.Node, *parse.Tree, *object.Error) {
	p, ok := arg.(*object.Proxy)
	if !ok {
		return nil, nil, object.Errorf("%s: expected a node, got %s", name, arg.Type())
	}
	n, ok := p.Interface().(*sitter.Node)
	if !ok || n == nil {
		return nil, nil, object.Errorf("%s: expected a node, got %T", name, p.Interface())
	}
	t, err := ti.owner(n)
	if err != nil {
		return nil, nil, object.Errorf("%s: %v", name, err)
	}
	return n, t, nil
}

// parse_src(source, language) → root node. language takes the names
// sculpt accepts elsewhere ("python", "py", "ts", "tsx", ...).
func makeParseSrcFn(ti *treeIndex) *object.Builtin {
	return object.NewBuiltin("parse_src", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("parse_src", 2, len(args))
		}
		src, err1 := toString(args[0])
		name, err2 := toString(args[1])
		if err1 != nil || err2 != nil {
			return object.Errorf("parse_src: expected (string, string)")
		}
		lang, ok := parse.ParseLanguage(name)
		if !ok {
			return object.Errorf("parse_src: unsupported language %q", name)
		}
		t, err := parse.Parse(ctx, []byte(src), lang)
		if err != nil {
			return object.Errorf("parse_src: %v", err)
		}
		return nodeObject("parse_src", ti.add(t, ""))
	})
}

// tree(path) → root node of the file's committed tree.
func makeTreeFn(ti *treeIndex) *object.Builtin {
	return object.NewBuiltin("tree", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("tree", 1, len(args))
		}
		path, err := toString(args[0])
		if err != nil {
			return object.Errorf("tree: %v", err)
		}
		t, ok := ti.trees.Tree(path)
		if !ok {
			return object.Errorf("tree: no committed file %q", path)
		}
		return nodeObject("tree", ti.add(t, path))
	})
}

// node_text(node) → string. Scripts cannot hand node.Content the []byte it
// wants, so the source comes from the owning tree.
func makeNodeTextFn(ti *treeIndex) *object.Builtin {
	return object.NewBuiltin("node_text", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("node_text", 1, len(args))
		}
		n, t, errObj := ti.nodeArg("node_text", args[0])
		if errObj != nil {
			return errObj
		}
		return object.NewString(t.Text(n))
	})
}

// node_span(node) → {start, end, line, column}. Offsets are bytes, end
// exclusive; line and column are 1-based.
func makeNodeSpanFn(ti *treeIndex) *object.Builtin {
	return object.NewBuiltin("node_span", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("node_span", 1, len(args))
		}
		n, _, errObj := ti.nodeArg("node_span", args[0])
		if errObj != nil {
			return errObj
		}
		pt := n.StartPoint()
		return object.NewMap(map[string]object.Object{
			"start":  object.NewInt(int64(n.StartByte())),
			"end":    object.NewInt(int64(n.EndByte())),
			"line":   object.NewInt(int64(pt.Row) + 1),
			"column": object.NewInt(int64(pt.Column) + 1),
		})
	})
}

// node_child(node, field) → node or nil. ChildByFieldName returns a nil
// pointer for absent fields, which would otherwise reach the script as a
// non-nil proxy.
func makeNodeChildFn(ti *treeIndex) *object.Builtin {
	return object.NewBuiltin("node_child", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("node_child", 2, len(args))
		}
		n, _, errObj := ti.nodeArg("node_child", args[0])
		if errObj != nil {
			return errObj
		}
		field, err := toString(args[1])
		if err != nil {
			return object.Errorf("node_child: %v", err)
		}
		child := n.ChildByFieldName(field)
		if child == nil {
			return object.Nil
		}
		return nodeObject("node_child", child)
	})
}

// query(pattern, node) → []map of capture name to node, one map per match
// in document order. Predicates such as #eq? are applied.
func makeQueryFn(ti *treeIndex) *object.Builtin {
	return object.NewBuiltin("query", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("query", 2, len(args))
		}
		pattern, err := toString(args[0])
		if err != nil {
			return object.Errorf("query: %v", err)
		}
		n, t, errObj := ti.nodeArg("query", args[1])
		if errObj != nil {
			return errObj
		}
		grammar, ok := parse.Grammar(t.Language)
		if !ok {
			return object.Errorf("query: no grammar for %s", t.Language)
		}
		q, err := sitter.NewQuery([]byte(pattern), grammar)
		if err != nil {
			return object.Errorf("query: invalid pattern: %v", err)
		}
		defer q.Close()

		cursor := sitter.NewQueryCursor()
		defer cursor.Close()
		cursor.Exec(q, n)

		matches := []object.Object{}
		for {
			m, ok := cursor.NextMatch()
			if !ok {
				break
			}
			m = cursor.FilterPredicates(m, t.Source)
			if len(m.Captures) == 0 {
				continue
			}
			captures := make(map[string]object.Object, len(m.Captures))
			for _, c := range m.Captures {
				captures[q.CaptureNameForId(c.Index)] = nodeObject("query", c.Node)
			}
			matches = append(matches, object.NewMap(captures))
		}
		return object.NewList(matches)
	})
}

// scriptLog backs the log global.
type scriptLog struct {
	log *slog.Logger
}

func (l *scriptLog) Info(msg string)  { l.log.Info(msg) }
func (l *scriptLog) Warn(msg string)  { l.log.Warn(msg) }
func (l *scriptLog) Error(msg string) { l.log.Error(msg) }
