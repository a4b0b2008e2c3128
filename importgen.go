package sculpt

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jward/sculpt/internal/parse"
	"github.com/jward/sculpt/internal/resolve"
)

// importReq asks for one binding in a file. Either module (as written) or
// target (a repository path) names the source.
type importReq struct {
	module string
	target string
	name   string
	alias  string
	// relative selects `from .m import x` for Python targets.
	relative bool
	reExport bool
	typeOnly bool
}

func (r importReq) local() string {
	if r.alias != "" {
		return r.alias
	}
	return r.name
}

// esStyle is the quoting and termination an ECMAScript file already uses.
type esStyle struct {
	quote byte
	semi  string
}

func (cb *Codebase) esStyle(fi *resolve.FileIndex, src []byte) esStyle {
	st := esStyle{quote: '\'', semi: ";"}
	if fi == nil {
		return st
	}
	for _, i := range fi.Imports() {
		spec := fi.Decls[i].Import
		if spec.ModuleSpan.Start > 0 {
			if q := src[spec.ModuleSpan.Start-1]; q == '"' || q == '\'' {
				st.quote = q
			}
		}
		if end := spec.Statement.End; end > 0 && src[end-1] != ';' {
			st.semi = ""
		}
		break
	}
	return st
}

// specifier returns the module text importer writes for r.
func (cb *Codebase) specifier(importer string, lang parse.Language, r importReq) string {
	if r.target == "" {
		return r.module
	}
	if lang == parse.Python {
		return resolve.PythonImportPath(importer, r.target, cb.resolver.SourceRoots(), r.relative)
	}
	return resolve.RelativeSpecifier(importer, r.target)
}

// renderImports formats reqs as import statements for p, merging names
// from the same module. Bindings p already has, or that an earlier call in
// this transaction added, are skipped.
func (cb *Codebase) renderImports(p string, reqs []importReq) ([]string, error) {
	src, lang, ok := cb.content(p)
	if !ok {
		return nil, fmt.Errorf("sculpt: file %s: %w", p, ErrNotFound)
	}
	fi := cb.file(p).index()

	type group struct {
		module string
		kind   string
		names  []string
	}
	var order []string
	groups := make(map[string]*group)
	add := func(module, kind, name string) {
		key := kind + "\x00" + module
		g, ok := groups[key]
		if !ok {
			g = &group{module: module, kind: kind}
			groups[key] = g
			order = append(order, key)
		}
		for _, n := range g.names {
			if n == name {
				return
			}
		}
		g.names = append(g.names, name)
	}

	for _, r := range reqs {
		module := cb.specifier(p, lang, r)
		if cb.hasImport(p, fi, module, r) {
			continue
		}
		switch {
		case lang == parse.Python && r.name == "":
			add(module, "module", aliased(module, r.alias, " as "))
		case lang == parse.Python:
			add(module, "from", aliased(r.name, r.alias, " as "))
		case r.reExport:
			add(module, "reexport", aliased(r.name, r.alias, " as "))
		case r.name == "":
			add(module, "namespace", r.alias)
		case r.name == "default":
			add(module, "default", r.alias)
		case r.typeOnly:
			add(module, "type", aliased(r.name, r.alias, " as "))
		default:
			add(module, "named", aliased(r.name, r.alias, " as "))
		}
	}

	st := cb.esStyle(fi, src)
	quoted := func(m string) string { return string(st.quote) + m + string(st.quote) }
	var out []string
	for _, key := range order {
		g := groups[key]
		var stmts []string
		switch g.kind {
		case "module":
			for _, n := range g.names {
				stmts = append(stmts, "import "+n)
			}
		case "from":
			stmts = append(stmts, "from "+g.module+" import "+strings.Join(g.names, ", "))
		case "reexport":
			stmts = append(stmts, "export { "+strings.Join(g.names, ", ")+" } from "+quoted(g.module)+st.semi)
		case "namespace":
			for _, n := range g.names {
				if n == "" {
					stmts = append(stmts, "import "+quoted(g.module)+st.semi)
					continue
				}
				stmts = append(stmts, "import * as "+n+" from "+quoted(g.module)+st.semi)
			}
		case "default":
			for _, n := range g.names {
				stmts = append(stmts, "import "+n+" from "+quoted(g.module)+st.semi)
			}
		case "type":
			stmts = append(stmts, "import type { "+strings.Join(g.names, ", ")+" } from "+quoted(g.module)+st.semi)
		default:
			stmts = append(stmts, "import { "+strings.Join(g.names, ", ")+" } from "+quoted(g.module)+st.semi)
		}
		for _, s := range stmts {
			if cb.imports[p][s] {
				continue
			}
			if cb.imports[p] == nil {
				cb.imports[p] = make(map[string]bool)
			}
			cb.imports[p][s] = true
			out = append(out, s)
		}
	}
	return out, nil
}

func aliased(name, alias, sep string) string {
	if alias == "" || alias == name {
		return name
	}
	return name + sep + alias
}

// hasImport reports whether p already binds r and that import is not
// being edited in the pending transaction.
func (cb *Codebase) hasImport(p string, fi *resolve.FileIndex, module string, r importReq) bool {
	if fi == nil {
		return false
	}
	for _, i := range fi.Imports() {
		d := &fi.Decls[i]
		spec := d.Import
		if spec.ReExport != r.reExport || spec.Name == "*" {
			continue
		}
		if spec.Name != r.name || spec.LocalName() != r.local() {
			if !(r.name == "" && spec.IsModule && spec.LocalName() == r.local()) {
				continue
			}
		}
		same := spec.Module == module
		if !same && r.target != "" {
			if f, ok := cb.resolver.ModuleFile(p, spec.Module); ok && f == r.target {
				same = true
			}
		}
		if same && !cb.touched(p, spec.Statement) {
			return true
		}
	}
	return false
}

// touched reports whether a pending edit changes any part of s.
func (cb *Codebase) touched(p string, s Span) bool {
	pending, ok := cb.txn.Pending(p)
	if !ok {
		return false
	}
	for _, op := range pending.Ops() {
		if op.Start < s.End && s.Start < op.End {
			return true
		}
	}
	return false
}

// splits reports whether a pending range edit strictly contains off.
func (cb *Codebase) splits(p string, off int) bool {
	pending, ok := cb.txn.Pending(p)
	if !ok {
		return false
	}
	for _, op := range pending.Ops() {
		if op.Start < off && off < op.End {
			return true
		}
	}
	return false
}

// addImports queues reqs as new import statements in p: after the last
// module-level import, else after a Python module docstring, else at the
// top of the file.
func (cb *Codebase) addImports(p string, reqs []importReq) error {
	stmts, err := cb.renderImports(p, reqs)
	if err != nil || len(stmts) == 0 {
		return err
	}
	src, lang, _ := cb.content(p)
	text := strings.Join(stmts, "\n")
	at, prefix, suffix := cb.importAnchor(p, src, lang)
	return cb.queue(p, len(src), at, at, prefix+text+suffix)
}

// importAnchor picks where new imports go and the separators around them.
func (cb *Codebase) importAnchor(p string, src []byte, lang parse.Language) (int, string, string) {
	fi := cb.file(p).index()
	if fi != nil {
		var imports []Span
		for _, i := range fi.Imports() {
			imports = append(imports, fi.Decls[i].Import.Statement)
		}
		sort.Slice(imports, func(i, j int) bool { return imports[i].Start < imports[j].Start })
		if n := len(imports); n > 0 {
			if last := imports[n-1].End; !cb.splits(p, last) {
				return last, "\n", ""
			}
			if first := imports[0].Start; !cb.splits(p, first) {
				return first, "", "\n"
			}
		}
		if lang == parse.Python && fi.DocSpan != (Span{}) && !cb.splits(p, fi.DocSpan.End) {
			return fi.DocSpan.End, "\n\n", ""
		}
	}
	if len(strings.TrimSpace(string(src))) == 0 {
		return 0, "", "\n"
	}
	return 0, "", "\n\n"
}
