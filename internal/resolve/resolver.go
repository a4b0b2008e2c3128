package resolve

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"

	"github.com/jward/sculpt/internal/graph"
	"github.com/jward/sculpt/internal/parse"
)

// ErrUnresolvedAliasCycle is returned when an import chain loops or
// exceeds the hop bound.
var ErrUnresolvedAliasCycle = errors.New("unresolved alias cycle")

// DefaultMaxHops bounds alias-chain traversal.
const DefaultMaxHops = 32

// Unit is a file registered with the resolver: its extraction result and
// the graph IDs assigned to its declarations.
type Unit struct {
	Index  *FileIndex
	IDs    []graph.ID
	Module graph.ID
}

// Resolution is the outcome of following one import.
type Resolution struct {
	// Immediate is the node the import statement names directly; Root is
	// the end of the alias chain.
	Immediate graph.ID
	Root      graph.ID
	// File is the repository module the import resolved into, or "".
	File     string
	Module   bool
	External bool
	Aliased  bool
	Hops     int
}

// Diagnostic is a resolution problem attached to a declaration.
type Diagnostic struct {
	Path string
	Span Span
	Name string
	Err  error
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithMaxHops overrides DefaultMaxHops.
func WithMaxHops(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.maxHops = n
		}
	}
}

// WithSourceRoots sets extra directories Python absolute imports resolve
// against.
func WithSourceRoots(roots ...string) Option {
	return func(r *Resolver) { r.roots = append([]string(nil), roots...) }
}

// WithLogger sets the resolver's logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.log = l }
}

type declKey struct {
	path string
	decl int
}

type cached struct {
	res Resolution
	err error
}

// Resolver owns the per-file units and links them into a graph.
type Resolver struct {
	g       *graph.Graph
	log     *slog.Logger
	maxHops int
	roots   []string

	units map[string]*Unit
	cache map[declKey]cached

	importsInto   map[string]map[string]bool
	importers     map[string]map[string]bool
	externalUsers map[string]bool
	diags         map[string][]Diagnostic
}

// NewResolver returns a resolver that links into g.
func NewResolver(g *graph.Graph, opts ...Option) *Resolver {
	r := &Resolver{
		g:             g,
		log:           slog.New(slog.DiscardHandler),
		maxHops:       DefaultMaxHops,
		units:         make(map[string]*Unit),
		cache:         make(map[declKey]cached),
		importsInto:   make(map[string]map[string]bool),
		importers:     make(map[string]map[string]bool),
		externalUsers: make(map[string]bool),
		diags:         make(map[string][]Diagnostic),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Graph returns the graph the resolver links into.
func (r *Resolver) Graph() *graph.Graph { return r.g }

// SourceRoots returns the configured Python source roots.
func (r *Resolver) SourceRoots() []string { return r.roots }

// Unit returns the unit registered for path.
func (r *Resolver) Unit(path string) (*Unit, bool) {
	u, ok := r.units[path]
	return u, ok
}

// Paths returns every registered path, sorted.
func (r *Resolver) Paths() []string {
	out := make([]string, 0, len(r.units))
	for p := range r.units {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// AddFile creates graph nodes for fi. Edges are added by Link.
func (r *Resolver) AddFile(fi *FileIndex) *Unit {
	u := &Unit{Index: fi, IDs: make([]graph.ID, len(fi.Decls))}
	u.Module = r.g.AddNode(graph.Node{
		Kind:          graph.Module,
		Name:          fi.Module,
		QualifiedName: fi.Module,
		File:          fi.Path,
		Decl:          -1,
	})
	for i := range fi.Decls {
		d := &fi.Decls[i]
		parent := u.Module
		if d.Parent >= 0 {
			parent = u.IDs[d.Parent]
		}
		u.IDs[i] = r.g.AddNode(graph.Node{
			Kind:          d.Kind,
			Name:          d.Name,
			QualifiedName: d.QualifiedName,
			File:          fi.Path,
			Decl:          i,
			Parent:        parent,
		})
	}
	r.units[fi.Path] = u
	r.cache = make(map[declKey]cached)
	return u
}

// RemoveFile tombstones the nodes of path and forgets it. Files importing
// it keep their records so Affected can find them.
func (r *Resolver) RemoveFile(path string) []graph.ID {
	ids := r.g.RemoveFile(path)
	for m := range r.importsInto[path] {
		delete(r.importers[m], path)
	}
	delete(r.importsInto, path)
	delete(r.externalUsers, path)
	delete(r.diags, path)
	delete(r.units, path)
	r.cache = make(map[declKey]cached)
	return ids
}

// Affected returns the files whose edges may change when paths change:
// the paths, files holding edges into them, and the transitive importers.
func (r *Resolver) Affected(paths []string, fileSetChanged bool) []string {
	set := make(map[string]bool)
	var queue []string
	push := func(p string) {
		if !set[p] {
			set[p] = true
			queue = append(queue, p)
		}
	}
	for _, p := range paths {
		push(p)
		for _, id := range r.g.NodesInFile(p) {
			for _, e := range r.g.Usages(id, graph.AllKinds) {
				if n, ok := r.g.Node(e.From); ok {
					push(n.File)
				}
			}
		}
	}
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		for imp := range r.importers[p] {
			push(imp)
		}
	}
	if fileSetChanged {
		for p := range r.externalUsers {
			set[p] = true
		}
	}
	out := make([]string, 0, len(set))
	for p := range set {
		if _, ok := r.units[p]; ok {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

// FilesWithEdgesInto returns the files holding edges into any of ids.
func (r *Resolver) FilesWithEdgesInto(ids []graph.ID) []string {
	set := make(map[string]bool)
	for _, id := range ids {
		for _, e := range r.g.Usages(id, graph.AllKinds) {
			if n, ok := r.g.Node(e.From); ok {
				set[n.File] = true
			}
		}
	}
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Importers returns the files whose imports resolve into path.
func (r *Resolver) Importers(path string) []string {
	out := make([]string, 0, len(r.importers[path]))
	for p := range r.importers[path] {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Link recomputes the outgoing edges of every node in paths.
func (r *Resolver) Link(paths []string) {
	r.cache = make(map[declKey]cached)
	for _, p := range paths {
		if u, ok := r.units[p]; ok {
			r.linkFile(u)
		}
	}
}

// LinkAll links every registered file.
func (r *Resolver) LinkAll() {
	r.Link(r.Paths())
}

// Diagnostics returns resolution problems in path order.
func (r *Resolver) Diagnostics() []Diagnostic {
	var out []Diagnostic
	for _, p := range r.Paths() {
		out = append(out, r.diags[p]...)
	}
	return out
}

// Resolve follows the import declared at decl in path.
func (r *Resolver) Resolve(path string, decl int) (Resolution, error) {
	u, ok := r.units[path]
	if !ok || decl < 0 || decl >= len(u.Index.Decls) || u.Index.Decls[decl].Import == nil {
		return Resolution{}, fmt.Errorf("resolve: %s: declaration %d is not an import", path, decl)
	}
	return r.resolveDecl(u, decl, 0, make(map[declKey]bool))
}

// ModuleFile returns the repository file module names when imported from
// importer.
func (r *Resolver) ModuleFile(importer, module string) (string, bool) {
	u, ok := r.units[importer]
	if !ok {
		return "", false
	}
	return r.moduleFile(u.Index, module)
}

func (r *Resolver) moduleFile(fi *FileIndex, module string) (string, bool) {
	if module == "" {
		return "", false
	}
	for _, c := range candidates(fi.Language, fi.Path, module, r.roots) {
		if c == fi.Path {
			continue
		}
		if u, ok := r.units[c]; ok && u.Index.Language.Family() == fi.Language.Family() {
			return c, true
		}
	}
	return "", false
}

func (r *Resolver) linkFile(u *Unit) {
	fi := u.Index
	path := fi.Path
	for m := range r.importsInto[path] {
		delete(r.importers[m], path)
	}
	delete(r.importsInto, path)
	delete(r.externalUsers, path)
	delete(r.diags, path)

	r.g.ClearOutEdges(u.Module)
	for _, id := range u.IDs {
		r.g.ClearOutEdges(id)
	}

	for i := range fi.Decls {
		d := &fi.Decls[i]
		if d.Import == nil {
			continue
		}
		res, err := r.resolveDecl(u, i, 0, make(map[declKey]bool))
		if res.File != "" && res.File != path {
			r.recordImport(path, res.File)
		}
		if err != nil {
			r.diags[path] = append(r.diags[path], Diagnostic{Path: path, Span: d.Span, Name: d.Name, Err: err})
			r.log.Debug("import not resolved", "path", path, "name", d.Name, "err", err)
			continue
		}
		if res.External {
			r.externalUsers[path] = true
		}
		if res.Immediate != 0 {
			r.g.AddEdge(u.IDs[i], res.Immediate, 0, graph.Direct, importSite(path, d))
		}
	}
	for i := range fi.Refs {
		r.linkRef(u, &fi.Refs[i])
	}
}

func (r *Resolver) recordImport(importer, module string) {
	if r.importsInto[importer] == nil {
		r.importsInto[importer] = make(map[string]bool)
	}
	r.importsInto[importer][module] = true
	if r.importers[module] == nil {
		r.importers[module] = make(map[string]bool)
	}
	r.importers[module][importer] = true
}

func importSite(path string, d *Decl) graph.Site {
	s := d.Import.NameSpan
	if s == (Span{}) {
		s = d.Import.ModuleSpan
	}
	if s == (Span{}) {
		s = d.NameSpan
	}
	return graph.Site{File: path, Start: s.Start, End: s.End, ExprStart: s.Start}
}

func externalName(spec *ImportSpec) string {
	if spec.IsModule || spec.Name == "" || spec.Name == "*" {
		return spec.Module
	}
	return spec.Module + "." + spec.Name
}

func (r *Resolver) cycle(path string, d *Decl, hops int) error {
	return fmt.Errorf("resolve: %s: %s after %d hops: %w", path, d.Name, hops, ErrUnresolvedAliasCycle)
}

func (r *Resolver) resolveDecl(u *Unit, idx, hops int, visiting map[declKey]bool) (Resolution, error) {
	fi := u.Index
	d := &fi.Decls[idx]
	spec := d.Import
	key := declKey{fi.Path, idx}
	if c, ok := r.cache[key]; ok {
		if c.err == nil && hops+c.res.Hops > r.maxHops {
			return Resolution{}, r.cycle(fi.Path, d, hops+c.res.Hops)
		}
		return c.res, c.err
	}
	if hops > r.maxHops || visiting[key] {
		return Resolution{}, r.cycle(fi.Path, d, hops)
	}
	visiting[key] = true
	defer delete(visiting, key)

	res, err := r.resolveSpec(u, d, spec, hops, visiting)
	r.cache[key] = cached{res: res, err: err}
	return res, err
}

func (r *Resolver) resolveSpec(u *Unit, d *Decl, spec *ImportSpec, hops int, visiting map[declKey]bool) (Resolution, error) {
	fi := u.Index
	aliased := spec.Alias != "" && spec.Alias != spec.Name

	if spec.Module == "" {
		local, ok := fi.Scope[spec.Name]
		if !ok {
			return Resolution{}, nil
		}
		return r.follow(u, local, Resolution{Immediate: u.IDs[local], Root: u.IDs[local], Aliased: aliased}, hops, visiting)
	}

	modPath, ok := r.moduleFile(fi, spec.Module)
	if !ok {
		if fi.Language == parse.Python && !spec.IsModule && spec.Name != "*" {
			if sub, ok := r.moduleFile(fi, submodule(spec.Module, spec.Name)); ok {
				m := r.units[sub].Module
				return Resolution{Immediate: m, Root: m, File: sub, Module: true, Aliased: aliased}, nil
			}
		}
		ext := r.g.External(externalName(spec))
		return Resolution{Immediate: ext, Root: ext, Module: spec.IsModule, External: true, Aliased: aliased}, nil
	}
	mu := r.units[modPath]
	if spec.IsModule || spec.Name == "*" {
		return Resolution{Immediate: mu.Module, Root: mu.Module, File: modPath, Module: true, Aliased: aliased}, nil
	}

	tu, ti, found := r.exportLookup(mu, spec.Name, make(map[string]bool))
	if found {
		res := Resolution{Immediate: tu.IDs[ti], Root: tu.IDs[ti], File: modPath, Aliased: aliased}
		return r.follow(tu, ti, res, hops, visiting)
	}
	if fi.Language == parse.Python {
		if sub, ok := r.moduleFile(mu.Index, submodule(spec.Module, spec.Name)); ok {
			m := r.units[sub].Module
			return Resolution{Immediate: m, Root: m, File: sub, Module: true, Aliased: aliased}, nil
		}
	}
	ext := r.g.External(fmt.Sprintf("%s.%s", mu.Index.Module, spec.Name))
	return Resolution{Immediate: ext, Root: ext, File: modPath, External: true, Aliased: aliased}, nil
}

// follow continues through target when it is itself an import or export
// forwarding another binding.
func (r *Resolver) follow(tu *Unit, ti int, res Resolution, hops int, visiting map[declKey]bool) (Resolution, error) {
	td := &tu.Index.Decls[ti]
	if td.Import == nil {
		return res, nil
	}
	inner, err := r.resolveDecl(tu, ti, hops+1, visiting)
	if err != nil {
		return Resolution{}, err
	}
	if inner.Root == 0 {
		return res, nil
	}
	res.Root = inner.Root
	res.Module = inner.Module
	res.External = inner.External
	res.Aliased = res.Aliased || inner.Aliased
	res.Hops = inner.Hops + 1
	return res, nil
}

func submodule(module, name string) string {
	if module == "" || module[len(module)-1] == '.' {
		return module + name
	}
	return module + "." + name
}

// exportLookup finds the declaration mu exposes as name, searching
// wildcard re-exports when it has no direct binding.
func (r *Resolver) exportLookup(mu *Unit, name string, seen map[string]bool) (*Unit, int, bool) {
	fi := mu.Index
	if seen[fi.Path] {
		return nil, 0, false
	}
	seen[fi.Path] = true

	if fi.Language == parse.Python {
		if i, ok := fi.Scope[name]; ok {
			return mu, i, true
		}
	} else {
		for i := range fi.Decls {
			d := &fi.Decls[i]
			if d.Parent >= 0 || d.Kind == graph.Import {
				continue
			}
			if name == "default" && d.Default {
				return mu, i, true
			}
			if d.Name == name && (d.Exported || d.Kind == graph.Export) {
				return mu, i, true
			}
		}
	}

	for _, w := range fi.Wildcards {
		spec := fi.Decls[w].Import
		p, ok := r.moduleFile(fi, spec.Module)
		if !ok {
			continue
		}
		if tu, ti, ok := r.exportLookup(r.units[p], name, seen); ok {
			return tu, ti, true
		}
	}
	return nil, 0, false
}

func site(path string, s Span, exprStart int) graph.Site {
	return graph.Site{File: path, Start: s.Start, End: s.End, ExprStart: exprStart}
}

func (r *Resolver) linkRef(u *Unit, ref *Ref) {
	fi := u.Index
	owner := u.Module
	if ref.Owner >= 0 {
		owner = u.IDs[ref.Owner]
	}
	at := site(fi.Path, ref.Span, ref.Span.Start)

	declIdx := ref.Binding
	if declIdx < 0 {
		i, ok := fi.Scope[ref.Name]
		if !ok {
			r.linkWildcard(u, owner, ref)
			return
		}
		declIdx = i
	}
	d := &fi.Decls[declIdx]
	target := u.IDs[declIdx]
	r.g.AddEdge(owner, target, 0, graph.Direct, at)
	if d.Import == nil {
		r.linkMember(owner, target, 0, ref, 0, fi.Path)
		return
	}

	res, err := r.resolveDecl(u, declIdx, 0, make(map[declKey]bool))
	if err != nil || res.Root == 0 {
		return
	}
	r.linkResolved(owner, target, res, ref, at, d.Import)
}

// linkWildcard binds a module-scope name no declaration claims through
// the file's wildcard imports.
func (r *Resolver) linkWildcard(u *Unit, owner graph.ID, ref *Ref) {
	fi := u.Index
	for _, w := range fi.Wildcards {
		if fi.Decls[w].Kind != graph.Import {
			continue
		}
		res, err := r.resolveDecl(u, w, 0, make(map[declKey]bool))
		if err != nil || res.File == "" {
			continue
		}
		tu, ti, ok := r.exportLookup(r.units[res.File], ref.Name, make(map[string]bool))
		if !ok {
			continue
		}
		via := u.IDs[w]
		at := site(fi.Path, ref.Span, ref.Span.Start)
		r.g.AddEdge(owner, via, 0, graph.Direct, at)
		root, err := r.follow(tu, ti, Resolution{Immediate: tu.IDs[ti], Root: tu.IDs[ti]}, 0, make(map[declKey]bool))
		if err != nil {
			return
		}
		r.linkResolved(owner, via, root, ref, at, nil)
		return
	}
}

func (r *Resolver) linkResolved(owner, via graph.ID, res Resolution, ref *Ref, at graph.Site, spec *ImportSpec) {
	kind := graph.Indirect
	if res.Aliased {
		kind = graph.Aliased
	}
	if !res.Module || res.External {
		r.g.AddEdge(owner, res.Root, via, kind, at)
		r.linkMember(owner, res.Root, 0, ref, via, at.File)
		return
	}
	// `import a.b` binds a; a.b.name reaches into a/b.
	start := 0
	if spec != nil && spec.IsModule && spec.Alias == "" && strings.Contains(spec.Module, ".") {
		parts := strings.Split(spec.Module, ".")[1:]
		if len(ref.Chain) < len(parts) || !slices.Equal(ref.Chain[:len(parts)], parts) {
			return
		}
		start = len(parts)
	}
	if len(ref.Chain) == start {
		r.g.AddEdge(owner, res.Root, via, kind, at)
		return
	}
	r.linkModuleChain(owner, res, ref, start, via, at.File)
}

// linkModuleChain resolves m.name accesses through a module binding. Each
// resolved link is a Chained edge whose site is the accessed name.
func (r *Resolver) linkModuleChain(owner graph.ID, res Resolution, ref *Ref, at int, via graph.ID, file string) {
	if at >= len(ref.Chain) || res.File == "" {
		return
	}
	mu, ok := r.units[res.File]
	if !ok {
		return
	}
	name := ref.Chain[at]
	s := site(file, ref.ChainSpans[at], ref.Span.Start)

	if tu, ti, ok := r.exportLookup(mu, name, make(map[string]bool)); ok {
		next, err := r.follow(tu, ti, Resolution{Immediate: tu.IDs[ti], Root: tu.IDs[ti], File: tu.Index.Path}, 0, make(map[declKey]bool))
		if err != nil || next.Root == 0 {
			return
		}
		r.g.AddEdge(owner, next.Root, via, graph.Chained, s)
		if next.Module && !next.External {
			r.linkModuleChain(owner, next, ref, at+1, via, file)
			return
		}
		r.linkMember(owner, next.Root, at+1, ref, via, file)
		return
	}
	if mu.Index.Language == parse.Python {
		if sub, ok := r.moduleFile(mu.Index, submodule(mu.Index.Module, name)); ok {
			m := r.units[sub].Module
			r.g.AddEdge(owner, m, via, graph.Chained, s)
			r.linkModuleChain(owner, Resolution{Root: m, File: sub, Module: true}, ref, at+1, via, file)
		}
	}
}

// linkMember adds a Chained edge for Class.member when target is a class
// declaring the accessed member.
func (r *Resolver) linkMember(owner, target graph.ID, at int, ref *Ref, via graph.ID, file string) {
	if at >= len(ref.Chain) {
		return
	}
	n, ok := r.g.Node(target)
	if !ok || n.Kind != graph.Class || n.Decl < 0 {
		return
	}
	tu, ok := r.units[n.File]
	if !ok {
		return
	}
	for i := range tu.Index.Decls {
		if tu.Index.Decls[i].Parent == n.Decl && tu.Index.Decls[i].Name == ref.Chain[at] {
			s := site(file, ref.ChainSpans[at], ref.Span.Start)
			r.g.AddEdge(owner, tu.IDs[i], via, graph.Chained, s)
			return
		}
	}
}
