package sculpt

import (
	"fmt"
	"maps"
	"slices"

	"github.com/jward/sculpt/internal/txn"
)

// Editable is the mutation surface shared by files, symbols, nodes and
// parameters. Mutations are queued and take effect on Commit; all offsets
// refer to the last committed content.
type Editable interface {
	// Source returns the exact text of the node.
	Source() string
	// ExtendedSource adds leading comments, decorators and export keywords.
	ExtendedSource() string
	Edit(text string) error
	InsertBefore(text string) error
	InsertAfter(text string) error
	// Remove deletes the node together with the delimiters and blank lines
	// it owns.
	Remove() error
}

var (
	_ Editable = (*File)(nil)
	_ Editable = (*Symbol)(nil)
	_ Editable = (*Node)(nil)
	_ Editable = (*Parameter)(nil)
)

// anchor ties a node to the file generation it was read from.
type anchor struct {
	cb   *Codebase
	path string
	gen  uint64
}

func (cb *Codebase) anchor(p string) anchor {
	return anchor{cb: cb, path: p, gen: cb.txn.Generation(p)}
}

// check fails with ErrStaleNode once the file has been committed again or
// removed.
func (a anchor) check() ([]byte, error) {
	if a.cb.txn.Generation(a.path) != a.gen {
		return nil, fmt.Errorf("sculpt: %s changed since the node was read: %w", a.path, ErrStaleNode)
	}
	src, _, ok := a.cb.content(a.path)
	if !ok {
		return nil, fmt.Errorf("sculpt: %s no longer exists: %w", a.path, ErrStaleNode)
	}
	return src, nil
}

func (a anchor) text(s Span) string {
	src, _, ok := a.cb.content(a.path)
	if !ok || s.Start < 0 || s.End > len(src) || s.Start > s.End {
		return ""
	}
	return string(src[s.Start:s.End])
}

func (a anchor) queue(start, end int, text string) error {
	src, err := a.check()
	if err != nil {
		return err
	}
	return a.cb.queue(a.path, len(src), start, end, text)
}

func (cb *Codebase) queue(p string, size, start, end int, text string) error {
	if err := cb.txn.Queue(p, size, txn.Op{Start: start, End: end, Text: text}); err != nil {
		return fmt.Errorf("sculpt: %w", err)
	}
	return nil
}

// deleteRange queues the deletion of [start, end). Deletions that overlap
// an earlier deletion in the same file are merged into one.
func (cb *Codebase) deleteRange(p string, start, end int) error {
	src, _, ok := cb.content(p)
	if !ok {
		return fmt.Errorf("sculpt: file %s: %w", p, ErrNotFound)
	}
	merged := txn.Op{Start: start, End: end}
	var keep, withdrawn []txn.Op
	for _, d := range cb.deletions[p] {
		if d.Start < merged.End && merged.Start < d.End {
			cb.txn.Withdraw(p, d)
			withdrawn = append(withdrawn, d)
			merged.Start = min(merged.Start, d.Start)
			merged.End = max(merged.End, d.End)
			continue
		}
		keep = append(keep, d)
	}
	if err := cb.queue(p, len(src), merged.Start, merged.End, ""); err != nil {
		for _, d := range withdrawn {
			_ = cb.txn.Queue(p, len(src), d)
		}
		return err
	}
	cb.deletions[p] = append(keep, merged)
	return nil
}

// listKey identifies a comma-separated list by the start of its first item.
type listKey struct {
	path  string
	start int
}

// listEdit tracks removals from one list so the remaining items keep
// valid separators. When every item is gone the list collapses: into its
// parent list slot, into the whole statement, or into an empty list.
type listEdit struct {
	path    string
	items   []Span
	removed []bool
	ops     []txn.Op

	parent *listEdit
	slot   int
	// whole is deleted when every item is removed; zero for lists that may
	// be left empty, such as parameters.
	whole Span
	stmt  Span
}

func (cb *Codebase) list(p string, items []Span, whole, stmt Span, parent *listEdit, slot int) *listEdit {
	key := listKey{path: p, start: items[0].Start}
	if l, ok := cb.lists[key]; ok {
		return l
	}
	l := &listEdit{
		path:    p,
		items:   items,
		removed: make([]bool, len(items)),
		parent:  parent,
		slot:    slot,
		whole:   whole,
		stmt:    stmt,
	}
	cb.lists[key] = l
	return l
}

func (cb *Codebase) removeListItem(l *listEdit, i int) error {
	if i < 0 || i >= len(l.items) || l.removed[i] {
		return nil
	}
	src, _, _ := cb.content(l.path)
	l.removed[i] = true

	all := true
	for _, r := range l.removed {
		all = all && r
	}

	old := l.ops
	for _, op := range old {
		cb.txn.Withdraw(l.path, op)
	}
	restore := func(queued []txn.Op) {
		for _, op := range queued {
			cb.txn.Withdraw(l.path, op)
		}
		for _, op := range old {
			_ = cb.txn.Queue(l.path, len(src), op)
		}
		l.removed[i] = false
	}

	if all {
		l.ops = nil
		var err error
		switch {
		case l.parent != nil:
			err = cb.removeListItem(l.parent, l.slot)
		case l.whole != (Span{}):
			err = cb.deleteStatement(l.path, l.whole, l.stmt)
		default:
			op := txn.Op{Start: l.items[0].Start, End: l.items[len(l.items)-1].End}
			if err = cb.queue(l.path, len(src), op.Start, op.End, ""); err == nil {
				l.ops = []txn.Op{op}
			}
		}
		if err != nil {
			restore(nil)
		}
		return err
	}

	ops := listRemovalOps(l.items, l.removed)
	var queued []txn.Op
	for _, op := range ops {
		if err := cb.queue(l.path, len(src), op.Start, op.End, ""); err != nil {
			restore(queued)
			return err
		}
		queued = append(queued, op)
	}
	l.ops = ops
	return nil
}

// listRemovalOps deletes each run of removed items with one separator. A
// run followed by a kept item takes the separator after it; a run at the
// end takes the separator before it.
func listRemovalOps(items []Span, removed []bool) []txn.Op {
	var ops []txn.Op
	n := len(items)
	for a := 0; a < n; {
		if !removed[a] {
			a++
			continue
		}
		b := a
		for b+1 < n && removed[b+1] {
			b++
		}
		if b+1 < n {
			ops = append(ops, txn.Op{Start: items[a].Start, End: items[b+1].Start})
		} else {
			ops = append(ops, txn.Op{Start: items[a-1].End, End: items[b].End})
		}
		a = b + 1
	}
	return ops
}

// resetEdits forgets removal bookkeeping after a commit or reset.
func (cb *Codebase) resetEdits() {
	cb.lists = make(map[listKey]*listEdit)
	cb.deletions = make(map[string][]txn.Op)
	cb.imports = make(map[string]map[string]bool)
}

// checkpoint captures the pending transaction and its bookkeeping. Calling
// the returned func puts both back.
func (cb *Codebase) checkpoint() func() {
	snap := cb.txn.Snapshot()
	created := maps.Clone(cb.created)
	deletions := make(map[string][]txn.Op, len(cb.deletions))
	for p, ops := range cb.deletions {
		deletions[p] = slices.Clone(ops)
	}
	imports := make(map[string]map[string]bool, len(cb.imports))
	for p, m := range cb.imports {
		imports[p] = maps.Clone(m)
	}
	lists := cloneLists(cb.lists)
	return func() {
		cb.txn.Restore(snap)
		cb.created = created
		cb.deletions = deletions
		cb.imports = imports
		cb.lists = lists
	}
}

func cloneLists(in map[listKey]*listEdit) map[listKey]*listEdit {
	copies := make(map[*listEdit]*listEdit, len(in))
	for _, l := range in {
		c := *l
		c.removed = slices.Clone(l.removed)
		c.ops = slices.Clone(l.ops)
		copies[l] = &c
	}
	out := make(map[listKey]*listEdit, len(in))
	for k, l := range in {
		c := copies[l]
		if l.parent != nil {
			if p, ok := copies[l.parent]; ok {
				c.parent = p
			}
		}
		out[k] = c
	}
	return out
}
