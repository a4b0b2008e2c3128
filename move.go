package sculpt

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jward/sculpt/internal/graph"
	"github.com/jward/sculpt/internal/parse"
	"github.com/jward/sculpt/internal/resolve"
)

// move is the working state of one MoveSymbol call.
type move struct {
	cb     *Codebase
	opts   MoveOptions
	origin string
	dest   string
	lang   parse.Language
	u      *resolve.Unit
	seed   int

	// decls are the moved top-level declarations of origin in source
	// order. tops maps their IDs back to decls; nodes holds every ID
	// declared inside them as well.
	decls []int
	tops  map[graph.ID]int
	nodes map[graph.ID]bool

	usages  []graph.Edge
	touched map[string]bool
}

// MoveSymbol relocates a top-level declaration to dest, creating dest when
// it does not exist. With IncludeDependencies the origin declarations it
// uses privately move along with it; shared ones stay and are imported.
// Importers are repaired according to opts.Strategy. All edits are
// queued; on error none are.
func (cb *Codebase) MoveSymbol(sym *Symbol, dest string, opts MoveOptions) (*MoveResult, error) {
	if sym == nil {
		return nil, fmt.Errorf("sculpt: move: %w", ErrNotFound)
	}
	if sym.isModule() {
		return nil, fmt.Errorf("sculpt: move %s: modules are moved by path: %w", sym.node.Name, ErrNotMovable)
	}
	d, err := sym.editable()
	if err != nil {
		return nil, err
	}
	origin := sym.path
	u, _ := cb.resolver.Unit(origin)
	if err := movable(u.Index, sym.node.Decl); err != nil {
		return nil, fmt.Errorf("sculpt: move: %w", err)
	}

	dest = cleanPath(dest)
	lang, err := cb.validPath(dest)
	if err != nil {
		return nil, err
	}
	switch {
	case dest == origin:
		return nil, fmt.Errorf("sculpt: move %s: destination is the origin: %w", d.Name, ErrInvalidDestination)
	case lang.Family() != u.Index.Language.Family():
		return nil, fmt.Errorf("sculpt: move %s: %s is %s, not %s: %w", d.Name, dest, lang, u.Index.Language, ErrInvalidDestination)
	}
	if p, ok := cb.txn.Pending(dest); ok && p.Removed {
		return nil, fmt.Errorf("sculpt: move %s: %s is queued for removal: %w", d.Name, dest, ErrInvalidDestination)
	}

	m := &move{
		cb:      cb,
		opts:    opts,
		origin:  origin,
		dest:    dest,
		lang:    u.Index.Language,
		u:       u,
		seed:    sym.node.Decl,
		tops:    make(map[graph.ID]int),
		nodes:   make(map[graph.ID]bool),
		touched: make(map[string]bool),
	}
	m.collect()

	restore := cb.checkpoint()
	res, err := m.run()
	if err != nil {
		restore()
		return nil, err
	}
	cb.log.Info("symbol moved",
		"symbol", d.QualifiedName,
		"origin", origin,
		"dest", dest,
		"strategy", opts.Strategy,
		"moved", len(res.Moved),
		"touched", len(res.Touched))
	return res, nil
}

// movable checks that decl i of fi is a top-level declaration that owns
// its statement.
func movable(fi *resolve.FileIndex, i int) error {
	d := &fi.Decls[i]
	switch {
	case !d.IsTopLevel():
		return fmt.Errorf("%s is nested: %w", d.QualifiedName, ErrNotMovable)
	case d.Kind != graph.Function && d.Kind != graph.Class && d.Kind != graph.Variable:
		return fmt.Errorf("%s is %s: %w", d.Name, d.Kind, ErrNotMovable)
	case d.Default:
		return fmt.Errorf("%s is a default export: %w", d.Name, ErrNotMovable)
	case len(d.Items) > 1:
		return fmt.Errorf("%s shares a declaration list: %w", d.Name, ErrNotMovable)
	}
	for j := range fi.Decls {
		if j != i && fi.Decls[j].IsTopLevel() && fi.Decls[j].Statement == d.Statement {
			return fmt.Errorf("%s shares its statement with %s: %w", d.Name, fi.Decls[j].Name, ErrNotMovable)
		}
	}
	return nil
}

// collect gathers the moved declarations: the seed and, with
// IncludeDependencies, every movable origin declaration it reaches that
// nothing outside the moving set uses. A dependency rejected as shared
// stays in origin and dest imports it, so the closure is rebuilt until
// no member gains an outside user.
func (m *move) collect() {
	shared := make(map[int]bool)
	for {
		m.closure(shared)
		grew := false
		for _, i := range m.tops {
			if i != m.seed && m.sharedOutside(i) {
				shared[i] = true
				grew = true
			}
		}
		if !grew {
			break
		}
	}
	sort.Ints(m.decls)
	for id := range m.tops {
		m.usages = append(m.usages, m.cb.graph.Usages(id, graph.AllKinds)...)
	}
}

// closure rebuilds the moving set from the seed, leaving out the
// declarations in shared.
func (m *move) closure(shared map[int]bool) {
	m.decls = m.decls[:0]
	clear(m.tops)
	clear(m.nodes)
	queue := []int{m.seed}
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		if _, ok := m.tops[m.u.IDs[i]]; ok {
			continue
		}
		m.tops[m.u.IDs[i]] = i
		m.decls = append(m.decls, i)
		m.addSubtree(i)
		if !m.opts.IncludeDependencies {
			continue
		}
		locals, _ := m.deps()
		for _, dep := range locals {
			if _, ok := m.tops[m.u.IDs[dep]]; !ok && !shared[dep] && movable(m.u.Index, dep) == nil {
				queue = append(queue, dep)
			}
		}
	}
}

// sharedOutside reports whether anything outside the moving set uses
// decl i or a declaration nested in it.
func (m *move) sharedOutside(i int) bool {
	for j := range m.u.Index.Decls {
		if !within(m.u.Index, j, i) {
			continue
		}
		for _, e := range m.cb.graph.Usages(m.u.IDs[j], graph.AllKinds) {
			if !m.nodes[e.From] {
				return true
			}
		}
	}
	return false
}

func (m *move) addSubtree(i int) {
	for j := range m.u.Index.Decls {
		if within(m.u.Index, j, i) {
			m.nodes[m.u.IDs[j]] = true
		}
	}
}

// within reports whether decl j is decl i or nested in it.
func within(fi *resolve.FileIndex, j, i int) bool {
	for ; j >= 0; j = fi.Decls[j].Parent {
		if j == i {
			return true
		}
	}
	return false
}

// deps returns what the moved code references in origin and leaves
// behind: top-level declarations and import bindings.
func (m *move) deps() (locals, imports []int) {
	seen := make(map[int]bool)
	for id := range m.nodes {
		for _, e := range m.cb.graph.Dependencies(id, graph.Direct) {
			if m.nodes[e.To] {
				continue
			}
			n, ok := m.cb.graph.Node(e.To)
			if !ok || n.File != m.origin || n.Decl < 0 || seen[n.Decl] {
				continue
			}
			seen[n.Decl] = true
			d := &m.u.Index.Decls[n.Decl]
			switch {
			case d.Kind == graph.Import:
				imports = append(imports, n.Decl)
			case d.IsTopLevel() && d.Import == nil:
				locals = append(locals, n.Decl)
			}
		}
	}
	sort.Ints(locals)
	sort.Ints(imports)
	return locals, imports
}

func (m *move) run() (*MoveResult, error) {
	cb := m.cb
	res := &MoveResult{Origin: m.origin, Dest: m.dest}
	if _, ok := cb.files[m.dest]; !ok {
		if _, ok := cb.created[m.dest]; !ok {
			if _, err := cb.CreateFile(m.dest); err != nil {
				return nil, err
			}
			res.Created = true
		}
	}

	locals, imports := m.deps()
	bodies := m.bodies()

	for _, i := range m.decls {
		if err := cb.removeDecl(m.origin, &m.u.Index.Decls[i]); err != nil {
			return nil, err
		}
	}
	m.touched[m.origin] = true
	if err := m.dropOrphanImports(imports); err != nil {
		return nil, err
	}
	if err := m.exportLocals(locals); err != nil {
		return nil, err
	}
	preview, err := cb.PendingSource(m.origin)
	if err != nil {
		return nil, err
	}
	res.OriginEmpty = strings.TrimSpace(preview) == ""

	importers := cb.resolver.Importers(m.origin)
	if _, ok := cb.files[m.dest]; ok {
		importers = append(importers, m.dest)
	}
	sort.Strings(importers)
	for i, f := range importers {
		if i > 0 && importers[i-1] == f {
			continue
		}
		if f == m.origin || (m.opts.Strategy == AddBackEdge && f != m.dest) {
			continue
		}
		if err := m.repairImporter(f); err != nil {
			return nil, err
		}
	}

	if err := m.place(bodies, m.destImports(locals, imports)); err != nil {
		return nil, err
	}

	if m.opts.Strategy == AddBackEdge {
		err = m.addBackEdge()
	} else if m.originUsed() {
		err = cb.addImports(m.origin, m.bindings(false))
	}
	if err != nil {
		return nil, err
	}

	res.Moved = append(res.Moved, m.u.Index.Decls[m.seed].QualifiedName)
	for _, i := range m.decls {
		if i != m.seed {
			res.Moved = append(res.Moved, m.u.Index.Decls[i].QualifiedName)
		}
	}
	for p := range m.touched {
		res.Touched = append(res.Touched, p)
	}
	sort.Strings(res.Touched)
	return res, nil
}

// bodies returns the text of each moved declaration with its comments
// and decorators. ECMAScript declarations used from outside the moved
// set gain an export keyword.
func (m *move) bodies() []string {
	src, _, _ := m.cb.content(m.origin)
	out := make([]string, 0, len(m.decls))
	for _, i := range m.decls {
		d := &m.u.Index.Decls[i]
		ext := extent(d)
		text := string(src[ext.Start:ext.End])
		if m.lang != parse.Python && !d.Exported && m.usedOutside(m.u.IDs[i]) {
			off := d.Statement.Start - ext.Start
			text = text[:off] + "export " + text[off:]
		}
		out = append(out, text)
	}
	return out
}

func (m *move) usedOutside(id graph.ID) bool {
	for _, e := range m.usages {
		if e.To == id && !m.nodes[e.From] {
			return true
		}
	}
	return false
}

// originUsed reports whether code left in origin references a moved
// declaration.
func (m *move) originUsed() bool {
	for _, e := range m.usages {
		if n, ok := m.cb.graph.Node(e.From); ok && n.File == m.origin && !m.nodes[e.From] {
			return true
		}
	}
	return false
}

// dropOrphanImports removes the origin imports that only moved code used.
func (m *move) dropOrphanImports(imports []int) error {
	for _, i := range imports {
		users := m.cb.graph.Usages(m.u.IDs[i], graph.AllKinds)
		orphan := len(users) > 0
		for _, e := range users {
			orphan = orphan && m.nodes[e.From]
		}
		if !orphan {
			continue
		}
		if err := m.cb.removeDecl(m.origin, &m.u.Index.Decls[i]); err != nil {
			return err
		}
	}
	return nil
}

// exportLocals exports the ECMAScript declarations the moved code now
// imports from origin.
func (m *move) exportLocals(locals []int) error {
	if m.lang == parse.Python {
		return nil
	}
	src, _, _ := m.cb.content(m.origin)
	for _, i := range locals {
		d := &m.u.Index.Decls[i]
		if d.Exported || exportedByClause(m.u.Index, d.Name) {
			continue
		}
		at := d.Statement.Start
		if err := m.cb.queue(m.origin, len(src), at, at, "export "); err != nil {
			return err
		}
	}
	return nil
}

func exportedByClause(fi *resolve.FileIndex, name string) bool {
	for i := range fi.Decls {
		d := &fi.Decls[i]
		if d.Kind == graph.Export && d.Import != nil && d.Import.Module == "" && d.Import.Name == name {
			return true
		}
	}
	return false
}

// destImports is what dest needs for the moved code to keep resolving:
// the remaining origin declarations it uses and the origin imports,
// rewritten for dest.
func (m *move) destImports(locals, imports []int) []importReq {
	var reqs []importReq
	for _, i := range imports {
		d := &m.u.Index.Decls[i]
		spec := d.Import
		r := importReq{module: spec.Module, name: spec.Name, alias: spec.Alias, typeOnly: spec.TypeOnly}
		if spec.IsModule {
			r.name = ""
			if m.lang != parse.Python {
				r.alias = d.Name
			}
		}
		if spec.Name == "default" {
			r.alias = d.Name
		}
		f, ok := m.cb.resolver.ModuleFile(m.origin, spec.Module)
		if ok && f == m.dest {
			continue
		}
		if ok && strings.HasPrefix(spec.Module, ".") {
			r.target, r.relative = f, true
		}
		reqs = append(reqs, r)
	}
	for _, i := range locals {
		reqs = append(reqs, importReq{target: m.origin, name: m.u.Index.Decls[i].Name})
	}
	return reqs
}

// bindings requests every moved name from dest.
func (m *move) bindings(reExport bool) []importReq {
	reqs := make([]importReq, 0, len(m.decls))
	for _, i := range m.decls {
		reqs = append(reqs, importReq{target: m.dest, name: m.u.Index.Decls[i].Name, reExport: reExport})
	}
	return reqs
}

// place writes the moved code into dest. A blank dest receives the
// imports and bodies alone; otherwise the bodies are appended and the
// imports merged with the existing ones.
func (m *move) place(bodies []string, reqs []importReq) error {
	cb := m.cb
	m.touched[m.dest] = true
	src, _, _ := cb.content(m.dest)
	preview, err := cb.PendingSource(m.dest)
	if err != nil {
		return err
	}
	body := strings.Join(bodies, "\n\n")

	if strings.TrimSpace(preview) == "" {
		stmts, err := cb.renderImports(m.dest, reqs)
		if err != nil {
			return err
		}
		text := body
		if len(stmts) > 0 {
			text = strings.Join(stmts, "\n") + "\n\n" + body
		}
		return cb.queue(m.dest, len(src), 0, 0, text)
	}

	if err := cb.addImports(m.dest, reqs); err != nil {
		return err
	}
	var text string
	switch {
	case strings.HasSuffix(preview, "\n\n"):
		text = body + "\n"
	case strings.HasSuffix(preview, "\n"):
		text = "\n" + body + "\n"
	default:
		text = "\n\n" + body
	}
	return cb.queue(m.dest, len(src), len(src), len(src), text)
}

// repairImporter points f's imports of moved declarations at dest. In
// dest itself those imports are dropped.
func (m *move) repairImporter(f string) error {
	cb := m.cb
	u, ok := cb.resolver.Unit(f)
	if !ok {
		return nil
	}
	fi := u.Index
	src, _, _ := cb.content(f)

	// Group the bindings of moved declarations by statement. A statement
	// whose bindings all moved only needs its module rewritten.
	byStmt := make(map[Span][]int)
	whole := make(map[Span]bool)
	for i := range fi.Decls {
		d := &fi.Decls[i]
		if d.Import == nil || !d.IsTopLevel() || d.Import.Module == "" {
			continue
		}
		st := d.Import.Statement
		if _, ok := whole[st]; !ok {
			whole[st] = true
		}
		r, err := cb.resolver.Resolve(f, i)
		if _, moved := m.tops[r.Immediate]; err == nil && moved {
			byStmt[st] = append(byStmt[st], i)
			continue
		}
		whole[st] = false
	}
	stmts := make([]Span, 0, len(byStmt))
	for st := range byStmt {
		stmts = append(stmts, st)
	}
	sort.Slice(stmts, func(i, j int) bool { return stmts[i].Start < stmts[j].Start })

	var reqs []importReq
	for _, st := range stmts {
		idxs := byStmt[st]
		m.touched[f] = true
		spec := fi.Decls[idxs[0]].Import
		if f != m.dest && whole[st] && spec.ModuleSpan != (Span{}) {
			mod := cb.specifier(f, fi.Language, importReq{target: m.dest, relative: strings.HasPrefix(spec.Module, ".")})
			if err := cb.queue(f, len(src), spec.ModuleSpan.Start, spec.ModuleSpan.End, mod); err != nil {
				return err
			}
			continue
		}
		for _, i := range idxs {
			d := &fi.Decls[i]
			if err := cb.removeDecl(f, d); err != nil {
				return err
			}
			if f == m.dest {
				continue
			}
			r := importReq{
				target:   m.dest,
				name:     d.Import.Name,
				alias:    d.Import.Alias,
				reExport: d.Import.ReExport,
				typeOnly: d.Import.TypeOnly,
				relative: strings.HasPrefix(d.Import.Module, "."),
			}
			if r.name == "default" {
				r.alias = d.Name
			}
			reqs = append(reqs, r)
		}
	}

	// Uses through a module binding (`a.helper`) become bare names, and
	// uses through a wildcard get an explicit import.
	done := make(map[Span]bool)
	for _, e := range m.usages {
		from, ok := cb.graph.Node(e.From)
		if !ok || from.File != f || e.Via == 0 {
			continue
		}
		via, ok := cb.graph.Node(e.Via)
		if !ok || via.File != f || via.Decl < 0 || fi.Decls[via.Decl].Import == nil {
			continue
		}
		vspec := fi.Decls[via.Decl].Import
		name := m.u.Index.Decls[m.tops[e.To]].Name
		r := importReq{target: m.dest, name: name, relative: strings.HasPrefix(vspec.Module, ".")}
		switch {
		case e.Kind == graph.Chained:
			for _, s := range e.Sites {
				at := Span{Start: s.ExprStart, End: s.End}
				if s.File != f || done[at] {
					continue
				}
				done[at] = true
				if err := cb.queue(f, len(src), at.Start, at.End, name); err != nil {
					return err
				}
			}
		case vspec.Name == "*":
		default:
			continue
		}
		m.touched[f] = true
		if f != m.dest {
			reqs = append(reqs, r)
		}
	}
	if len(reqs) == 0 {
		return nil
	}
	return cb.addImports(f, reqs)
}

// addBackEdge makes origin forward the moved names so importers keep
// working unchanged.
func (m *move) addBackEdge() error {
	if m.lang == parse.Python {
		return m.cb.addImports(m.origin, m.bindings(false))
	}
	var reqs []importReq
	if m.originUsed() {
		reqs = append(reqs, m.bindings(false)...)
	}
	for _, i := range m.decls {
		if d := &m.u.Index.Decls[i]; d.Exported {
			reqs = append(reqs, importReq{target: m.dest, name: d.Name, reExport: true})
		}
	}
	return m.cb.addImports(m.origin, reqs)
}
