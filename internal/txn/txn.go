// Package txn buffers byte-range edits per file between commits.
//
// All offsets are expressed in the coordinates of the last committed
// content of a file. Pending operations on one file never overlap, so they
// can be applied in a single ascending pass at commit time.
package txn

import (
	"errors"
	"fmt"
	"sort"
)

// Edit errors
var (
	// ErrOverlappingEdit indicates that two queued edits on the same file intersect.
	ErrOverlappingEdit = errors.New("overlapping edit")

	// ErrOutOfRange indicates an edit outside the committed content of a file.
	ErrOutOfRange = errors.New("edit out of range")

	// ErrFileRemoved indicates an edit on a file already queued for removal.
	ErrFileRemoved = errors.New("file is queued for removal")
)

// State is the per-file transaction state.
type State int

const (
	Clean State = iota
	Dirty
)

func (s State) String() string {
	if s == Dirty {
		return "dirty"
	}
	return "clean"
}

// Op replaces the bytes [Start, End) with Text. Start == End is an insertion.
type Op struct {
	Start int
	End   int
	Text  string

	seq int
}

// IsInsert reports whether the op is a zero-width insertion.
func (o Op) IsInsert() bool { return o.Start == o.End }

// Overlaps reports whether o and p touch the same bytes. Two insertions
// never overlap; an insertion overlaps a range only strictly inside it.
func (o Op) Overlaps(p Op) bool {
	switch {
	case o.IsInsert() && p.IsInsert():
		return false
	case o.IsInsert():
		return p.Start < o.Start && o.Start < p.End
	case p.IsInsert():
		return o.Start < p.Start && p.Start < o.End
	}
	return o.Start < p.End && p.Start < o.End
}

func (o Op) same(p Op) bool {
	return o.Start == p.Start && o.End == p.End && o.Text == p.Text
}

// Pending is the queued work for one file.
type Pending struct {
	Path    string
	Created bool
	Removed bool

	ops []Op
}

// Ops returns the queued ops in application order: ascending start,
// insertions before ranges at the same offset, then queue order.
func (p *Pending) Ops() []Op {
	out := make([]Op, len(p.ops))
	copy(out, p.ops)
	sortOps(out)
	return out
}

// Len returns the number of queued ops.
func (p *Pending) Len() int { return len(p.ops) }

func sortOps(ops []Op) {
	sort.SliceStable(ops, func(i, j int) bool {
		a, b := ops[i], ops[j]
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		if a.IsInsert() != b.IsInsert() {
			return a.IsInsert()
		}
		return a.seq < b.seq
	})
}

// Manager tracks pending ops and a monotonic generation per file.
type Manager struct {
	pending map[string]*Pending
	gens    map[string]uint64
	seq     int
}

// NewManager returns an empty Manager.
func NewManager() *Manager {
	return &Manager{
		pending: make(map[string]*Pending),
		gens:    make(map[string]uint64),
	}
}

func (m *Manager) entry(path string) *Pending {
	p, ok := m.pending[path]
	if !ok {
		p = &Pending{Path: path}
		m.pending[path] = p
	}
	return p
}

// Queue adds op against a file whose committed content is size bytes long.
// It fails fast with ErrOverlappingEdit if op intersects an already queued
// op. Queuing an op identical to a pending one is a no-op.
func (m *Manager) Queue(path string, size int, op Op) error {
	if op.Start < 0 || op.End < op.Start || op.End > size {
		return fmt.Errorf("txn: %s [%d,%d) of %d bytes: %w", path, op.Start, op.End, size, ErrOutOfRange)
	}
	p := m.entry(path)
	if p.Removed {
		return fmt.Errorf("txn: %s: %w", path, ErrFileRemoved)
	}
	for _, q := range p.ops {
		if q.same(op) {
			return nil
		}
		if q.Overlaps(op) {
			return fmt.Errorf("txn: %s [%d,%d) intersects [%d,%d): %w",
				path, op.Start, op.End, q.Start, q.End, ErrOverlappingEdit)
		}
	}
	m.seq++
	op.seq = m.seq
	p.ops = append(p.ops, op)
	return nil
}

// Withdraw removes a queued op equal to op and reports whether one was
// found.
func (m *Manager) Withdraw(path string, op Op) bool {
	p, ok := m.pending[path]
	if !ok {
		return false
	}
	for i, q := range p.ops {
		if q.same(op) {
			p.ops = append(p.ops[:i], p.ops[i+1:]...)
			return true
		}
	}
	return false
}

// Create marks path as a file that will be created on commit.
func (m *Manager) Create(path string) {
	m.entry(path).Created = true
}

// Remove marks path for deletion on commit. Queued ops are dropped.
func (m *Manager) Remove(path string) {
	p := m.entry(path)
	p.Removed = true
	p.ops = nil
}

// State reports whether path has pending work.
func (m *Manager) State(path string) State {
	p, ok := m.pending[path]
	if !ok || (len(p.ops) == 0 && !p.Created && !p.Removed) {
		return Clean
	}
	return Dirty
}

// Pending returns the queued work for path.
func (m *Manager) Pending(path string) (*Pending, bool) {
	p, ok := m.pending[path]
	if !ok || m.State(path) == Clean {
		return nil, false
	}
	return p, true
}

// Dirty returns the sorted paths that have pending work.
func (m *Manager) Dirty() []string {
	var out []string
	for path := range m.pending {
		if m.State(path) == Dirty {
			out = append(out, path)
		}
	}
	sort.Strings(out)
	return out
}

// Generation returns the committed generation of path.
func (m *Manager) Generation(path string) uint64 {
	return m.gens[path]
}

// Settle finishes a successful commit of paths: pending work is cleared
// and each generation advances by one.
func (m *Manager) Settle(paths ...string) {
	for _, path := range paths {
		delete(m.pending, path)
		m.gens[path]++
	}
}

// Reset discards all pending work and returns the affected paths, sorted.
// Generations are untouched.
func (m *Manager) Reset() []string {
	out := m.Dirty()
	m.pending = make(map[string]*Pending)
	return out
}

// Snapshot is a copy of the pending work of a Manager.
type Snapshot struct {
	pending map[string]Pending
	seq     int
}

// Snapshot captures the pending work so a multi-step change can be undone
// with Restore. Generations are not part of it.
func (m *Manager) Snapshot() *Snapshot {
	s := &Snapshot{pending: make(map[string]Pending, len(m.pending)), seq: m.seq}
	for path, p := range m.pending {
		c := *p
		c.ops = append([]Op(nil), p.ops...)
		s.pending[path] = c
	}
	return s
}

// Restore replaces the pending work with s.
func (m *Manager) Restore(s *Snapshot) {
	m.pending = make(map[string]*Pending, len(s.pending))
	for path, p := range s.pending {
		c := p
		c.ops = append([]Op(nil), p.ops...)
		m.pending[path] = &c
	}
	m.seq = s.seq
}

// Apply produces the new content of src with ops applied in one ascending
// pass. ops must be in the order returned by Pending.Ops.
func Apply(src []byte, ops []Op) ([]byte, error) {
	size := len(src)
	for _, op := range ops {
		size += len(op.Text) - (op.End - op.Start)
	}
	out := make([]byte, 0, size)
	cursor := 0
	for _, op := range ops {
		if op.Start < cursor {
			return nil, fmt.Errorf("txn: apply [%d,%d) before offset %d: %w", op.Start, op.End, cursor, ErrOverlappingEdit)
		}
		if op.End > len(src) {
			return nil, fmt.Errorf("txn: apply [%d,%d) of %d bytes: %w", op.Start, op.End, len(src), ErrOutOfRange)
		}
		out = append(out, src[cursor:op.Start]...)
		out = append(out, op.Text...)
		cursor = op.End
	}
	out = append(out, src[cursor:]...)
	return out, nil
}
