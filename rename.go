package sculpt

import (
	"fmt"
	"sort"

	"github.com/jward/sculpt/internal/graph"
)

// Rename changes the declared name of s and every reference to it,
// following imports and re-exports that keep the name. A binding that
// aliases the symbol keeps its alias; only the imported name changes.
func (s *Symbol) Rename(name string) error {
	if s.isModule() {
		return fmt.Errorf("sculpt: rename %s: modules are renamed by path: %w", s.node.Name, ErrUnsupported)
	}
	d, err := s.editable()
	if err != nil {
		return err
	}
	if d.Kind == graph.Import || d.Kind == graph.Export {
		return fmt.Errorf("sculpt: rename %s: rename the declaration it binds: %w", d.Name, ErrUnsupported)
	}
	if name == "" {
		return fmt.Errorf("sculpt: rename %s: empty name: %w", d.Name, ErrUnsupported)
	}
	old := d.Name
	if name == old {
		return nil
	}
	cb := s.cb

	type site struct {
		path  string
		start int
		end   int
	}
	sites := map[site]bool{{s.path, d.NameSpan.Start, d.NameSpan.End}: true}

	// Walk from the declaration through every forwarding binding that
	// re-exposes it under the same name.
	seen := map[graph.ID]bool{s.node.ID: true}
	queue := []graph.ID{s.node.ID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, e := range cb.graph.Usages(id, graph.AllKinds) {
			for _, st := range e.Sites {
				if cb.siteText(st) == old {
					sites[site{st.File, st.Start, st.End}] = true
				}
			}
			if e.Kind != graph.Direct || seen[e.From] {
				continue
			}
			if fwd := cb.symbol(e.From); fwd != nil && forwards(fwd, old) {
				seen[e.From] = true
				queue = append(queue, e.From)
			}
		}
	}

	ordered := make([]site, 0, len(sites))
	for st := range sites {
		ordered = append(ordered, st)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].path != ordered[j].path {
			return ordered[i].path < ordered[j].path
		}
		return ordered[i].start < ordered[j].start
	})

	restore := cb.checkpoint()
	for _, st := range ordered {
		src, _, ok := cb.content(st.path)
		if !ok {
			continue
		}
		if err := cb.queue(st.path, len(src), st.start, st.end, name); err != nil {
			restore()
			return err
		}
	}
	cb.log.Info("symbol renamed", "symbol", s.node.QualifiedName, "to", name, "sites", len(ordered))
	return nil
}

// forwards reports whether sym is an import or export binding that
// exposes its target under name.
func forwards(sym *Symbol, name string) bool {
	if sym.node.Kind != graph.Import && sym.node.Kind != graph.Export {
		return false
	}
	d := sym.decl()
	if d == nil || d.Import == nil {
		return false
	}
	return d.Import.Name == name && (d.Import.Alias == "" || d.Import.Alias == name)
}

func (cb *Codebase) siteText(s graph.Site) string {
	src, _, ok := cb.content(s.File)
	if !ok || s.Start < 0 || s.End > len(src) || s.Start > s.End {
		return ""
	}
	return string(src[s.Start:s.End])
}
