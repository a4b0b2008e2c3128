package sculpt

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/jward/sculpt/internal/graph"
)

// --- Common Types ---

// Pagination controls offset+limit paging on list/search results.
type Pagination struct {
	Offset int // skip this many results (default 0)
	Limit  int // max results to return (default 50, max 500)
}

const (
	defaultLimit = 50
	maxLimit     = 500
)

// normalize returns a Pagination with defaults applied and bounds enforced.
func (p Pagination) normalize() Pagination {
	if p.Offset < 0 {
		p.Offset = 0
	}
	if p.Limit <= 0 {
		p.Limit = defaultLimit
	}
	if p.Limit > maxLimit {
		p.Limit = maxLimit
	}
	return p
}

// SortField specifies how to order results.
type SortField string

const (
	SortByName             SortField = "name"
	SortByKind             SortField = "kind"
	SortByFile             SortField = "file"
	SortByRefCount         SortField = "ref_count"
	SortByExternalRefCount SortField = "external_ref_count"
)

// SortOrder specifies ascending or descending.
type SortOrder string

const (
	Asc  SortOrder = "asc"
	Desc SortOrder = "desc"
)

// Sort controls result ordering.
type Sort struct {
	Field SortField
	Order SortOrder
}

// SymbolResult extends Symbol with usage counts.
type SymbolResult struct {
	*Symbol
	RefCount         int // distinct sites referring to the symbol
	ExternalRefCount int // sites in other files
	InternalRefCount int // sites in the symbol's own file
}

// PagedResult wraps a page of results with total count for pagination.
type PagedResult[T any] struct {
	Items      []T
	TotalCount int // total matching results (before pagination)
}

// SymbolFilter specifies which symbols to include. The zero filter matches
// every declaration.
type SymbolFilter struct {
	Kinds      []SymbolKind // match any of these kinds
	Exported   *bool        // exact match
	Path       string       // restrict to a single file
	PathPrefix string       // restrict to files under this directory
	Parent     SymbolID     // restrict to direct children of this symbol
	Language   Language     // restrict to one language
}

// normalizePathPrefix ensures a path prefix ends with "/" so that
// "internal/store" does not match "internal/store_utils/".
func normalizePathPrefix(prefix string) string {
	if prefix == "" {
		return ""
	}
	if !strings.HasSuffix(prefix, "/") {
		return prefix + "/"
	}
	return prefix
}

func (f SymbolFilter) match(cb *Codebase, s *Symbol) bool {
	if f.Path != "" && s.node.File != cleanPath(f.Path) {
		return false
	}
	if prefix := normalizePathPrefix(f.PathPrefix); prefix != "" && !strings.HasPrefix(s.node.File, prefix) {
		return false
	}
	if f.Parent != 0 && s.node.Parent != f.Parent {
		return false
	}
	if f.Language != "" {
		if _, lang, _ := cb.content(s.node.File); lang != f.Language {
			return false
		}
	}
	if f.Exported != nil && s.Exported() != *f.Exported {
		return false
	}
	return true
}

// refCounts counts the distinct sites referring to s.
func (cb *Codebase) refCounts(s *Symbol) SymbolResult {
	r := SymbolResult{Symbol: s}
	type key struct {
		file  string
		start int
	}
	seen := make(map[key]bool)
	for _, e := range cb.graph.Usages(s.node.ID, graph.AllKinds) {
		for _, site := range e.Sites {
			k := key{site.File, site.Start}
			if seen[k] {
				continue
			}
			seen[k] = true
			r.RefCount++
			if site.File == s.node.File {
				r.InternalRefCount++
			} else {
				r.ExternalRefCount++
			}
		}
	}
	return r
}

func sortSymbolResults(items []SymbolResult, by Sort) {
	less := func(a, b SymbolResult) int {
		switch by.Field {
		case SortByKind:
			return strings.Compare(a.node.Kind.String(), b.node.Kind.String())
		case SortByFile:
			return strings.Compare(a.node.File, b.node.File)
		case SortByRefCount:
			return a.RefCount - b.RefCount
		case SortByExternalRefCount:
			return a.ExternalRefCount - b.ExternalRefCount
		}
		return strings.Compare(a.node.Name, b.node.Name)
	}
	sort.SliceStable(items, func(i, j int) bool {
		c := less(items[i], items[j])
		if by.Order == Desc {
			return c > 0
		}
		return c < 0
	})
}

func paginate[T any](items []T, page Pagination) *PagedResult[T] {
	page = page.normalize()
	out := &PagedResult[T]{Items: []T{}, TotalCount: len(items)}
	if page.Offset >= len(items) {
		return out
	}
	end := min(page.Offset+page.Limit, len(items))
	out.Items = append(out.Items, items[page.Offset:end]...)
	return out
}

// --- Enumeration Endpoints ---

// ListSymbols is the primary listing/filtering endpoint. All filter fields
// are optional.
func (cb *Codebase) ListSymbols(filter SymbolFilter, by Sort, page Pagination) *PagedResult[SymbolResult] {
	return cb.SearchSymbols("", filter, by, page)
}

// SearchSymbols performs glob-style search on symbol names, using
// path.Match syntax. An empty pattern or "*" matches everything.
func (cb *Codebase) SearchSymbols(pattern string, filter SymbolFilter, by Sort, page Pagination) *PagedResult[SymbolResult] {
	var items []SymbolResult
	for _, s := range cb.Symbols(filter.Kinds...) {
		if pattern != "" && pattern != "*" {
			if ok, err := path.Match(pattern, s.node.Name); err != nil || !ok {
				continue
			}
		}
		if !filter.match(cb, s) {
			continue
		}
		items = append(items, cb.refCounts(s))
	}
	sortSymbolResults(items, by)
	return paginate(items, page)
}

// FileInfo describes one indexed file.
type FileInfo struct {
	Path     string
	Language Language
	Module   string
	Hash     string
	Size     int
	Symbols  int
}

// ListFiles lists committed files under pathPrefix, optionally restricted
// to one language, ordered by path.
func (cb *Codebase) ListFiles(pathPrefix string, language Language, order SortOrder, page Pagination) *PagedResult[FileInfo] {
	prefix := normalizePathPrefix(pathPrefix)
	var items []FileInfo
	for _, p := range cb.Files() {
		fs := cb.files[p]
		if prefix != "" && !strings.HasPrefix(p, prefix) {
			continue
		}
		if language != "" && fs.lang != language {
			continue
		}
		items = append(items, FileInfo{
			Path:     p,
			Language: fs.lang,
			Module:   fs.index.Module,
			Hash:     fs.hash,
			Size:     len(fs.src),
			Symbols:  len(fs.index.Decls),
		})
	}
	if order == Desc {
		for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
			items[i], items[j] = items[j], items[i]
		}
	}
	return paginate(items, page)
}

// --- Digest Endpoints ---

// LanguageStats provides per-language breakdown for ProjectSummary.
type LanguageStats struct {
	Language    Language
	FileCount   int
	SymbolCount int
	KindCounts  map[string]int
}

// ProjectSummary provides a high-level overview of the indexed codebase.
type ProjectSummary struct {
	Languages   []LanguageStats
	ModuleCount int
	Externals   int
	Edges       int
	TopSymbols  []SymbolResult
}

// ProjectSummary returns a high-level overview of the codebase. TopSymbols
// holds the topN declarations with the most references from other files.
func (cb *Codebase) ProjectSummary(topN int) *ProjectSummary {
	summary := &ProjectSummary{Languages: []LanguageStats{}, TopSymbols: []SymbolResult{}}
	byLang := make(map[Language]*LanguageStats)
	for _, p := range cb.Files() {
		fs := cb.files[p]
		ls, ok := byLang[fs.lang]
		if !ok {
			ls = &LanguageStats{Language: fs.lang, KindCounts: make(map[string]int)}
			byLang[fs.lang] = ls
		}
		ls.FileCount++
		for i := range fs.index.Decls {
			ls.KindCounts[fs.index.Decls[i].Kind.String()]++
			ls.SymbolCount++
		}
	}
	for _, ls := range byLang {
		summary.Languages = append(summary.Languages, *ls)
	}
	sort.Slice(summary.Languages, func(i, j int) bool {
		return summary.Languages[i].Language < summary.Languages[j].Language
	})

	cb.graph.Nodes(func(n graph.Node) bool {
		switch n.Kind {
		case graph.Module:
			summary.ModuleCount++
		case graph.External:
			summary.Externals++
		}
		return true
	})
	summary.Edges = cb.graph.Stats().Edges

	if topN > 0 {
		var ranked []SymbolResult
		for _, s := range cb.Symbols() {
			if r := cb.refCounts(s); r.ExternalRefCount > 0 {
				ranked = append(ranked, r)
			}
		}
		sortSymbolResults(ranked, Sort{Field: SortByExternalRefCount, Order: Desc})
		if len(ranked) > topN {
			ranked = ranked[:topN]
		}
		summary.TopSymbols = append(summary.TopSymbols, ranked...)
	}
	return summary
}

// ModuleSummary provides a summary of a single file's module.
type ModuleSummary struct {
	Path         string
	Module       string
	Language     Language
	Exported     []SymbolResult
	KindCounts   map[string]int
	Dependencies []string // files this file imports
	Dependents   []string // files importing this file
}

// ModuleSummary returns a summary of the file at p.
func (cb *Codebase) ModuleSummary(p string) (*ModuleSummary, error) {
	p = cleanPath(p)
	fs, ok := cb.files[p]
	if !ok {
		return nil, fmt.Errorf("sculpt: module summary %s: %w", p, ErrNotFound)
	}
	sum := &ModuleSummary{
		Path:       p,
		Module:     fs.index.Module,
		Language:   fs.lang,
		Exported:   []SymbolResult{},
		KindCounts: make(map[string]int),
		Dependents: cb.resolver.Importers(p),
	}
	f := cb.file(p)
	for _, s := range f.Symbols() {
		sum.KindCounts[s.node.Kind.String()]++
	}
	for _, s := range f.TopLevel() {
		if s.Exported() && s.node.Kind != graph.Import {
			sum.Exported = append(sum.Exported, cb.refCounts(s))
		}
	}
	sum.Dependencies = cb.fileDependencies(p)
	if sum.Dependents == nil {
		sum.Dependents = []string{}
	}
	return sum, nil
}

// fileDependencies returns the repository files p's imports resolve into.
func (cb *Codebase) fileDependencies(p string) []string {
	fi := cb.file(p).index()
	if fi == nil {
		return []string{}
	}
	set := make(map[string]bool)
	for i := range fi.Decls {
		d := &fi.Decls[i]
		if d.Import == nil || d.Import.Module == "" {
			continue
		}
		if target, ok := cb.resolver.ModuleFile(p, d.Import.Module); ok && target != p {
			set[target] = true
		}
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
