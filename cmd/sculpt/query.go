package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jward/sculpt"
	"github.com/jward/sculpt/internal/graph"
	"github.com/jward/sculpt/internal/parse"
)

// queryFlags holds the pagination and sorting flags shared by list queries.
type queryFlags struct {
	limit  int
	offset int
	sort   string
	order  string
}

func (q *queryFlags) page() sculpt.Pagination {
	return sculpt.Pagination{Offset: q.offset, Limit: q.limit}
}

func (q *queryFlags) by() (sculpt.Sort, error) {
	var s sculpt.Sort
	switch sculpt.SortField(q.sort) {
	case "", sculpt.SortByName, sculpt.SortByKind, sculpt.SortByFile, sculpt.SortByRefCount, sculpt.SortByExternalRefCount:
		s.Field = sculpt.SortField(q.sort)
	default:
		return s, fmt.Errorf("invalid sort field %q", q.sort)
	}
	switch sculpt.SortOrder(q.order) {
	case "", sculpt.Asc, sculpt.Desc:
		s.Order = sculpt.SortOrder(q.order)
	default:
		return s, fmt.Errorf("invalid sort order %q: must be asc or desc", q.order)
	}
	return s, nil
}

func (c *cli) queryCmd() *cobra.Command {
	q := &queryFlags{}
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Query the usage graph",
		Long:  "Run queries against the usage graph of the repository. Line and column numbers are 1-based.",
	}
	cmd.PersistentFlags().IntVar(&q.limit, "limit", 50, "pagination limit (max 500)")
	cmd.PersistentFlags().IntVar(&q.offset, "offset", 0, "pagination offset")
	cmd.PersistentFlags().StringVar(&q.sort, "sort", "", "sort field: name|kind|file|ref_count|external_ref_count")
	cmd.PersistentFlags().StringVar(&q.order, "order", "asc", "sort order: asc|desc")

	cmd.AddCommand(c.symbolsCmd(q))
	cmd.AddCommand(c.filesCmd(q))
	cmd.AddCommand(c.edgesCmd("usages", "List the symbols using a symbol", (*sculpt.Codebase).TransitiveUsages, (*sculpt.Symbol).Usages))
	cmd.AddCommand(c.edgesCmd("deps", "List the symbols a symbol uses", (*sculpt.Codebase).TransitiveDependencies, (*sculpt.Symbol).Dependencies))
	cmd.AddCommand(c.definitionCmd())
	cmd.AddCommand(c.referencesCmd())
	cmd.AddCommand(c.detailCmd())
	cmd.AddCommand(c.summaryCmd())
	cmd.AddCommand(c.moduleCmd())
	cmd.AddCommand(c.unusedCmd(q))
	cmd.AddCommand(c.hotspotsCmd())
	cmd.AddCommand(c.graphCmd())
	cmd.AddCommand(c.cyclesCmd())
	return cmd
}

func (c *cli) symbolsCmd(q *queryFlags) *cobra.Command {
	var (
		kinds    []string
		file     string
		prefix   string
		search   string
		language string
		exported bool
	)
	cmd := &cobra.Command{
		Use:   "symbols",
		Short: "List symbols with optional filters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			const name = "symbols"
			by, err := q.by()
			if err != nil {
				return c.fail(cmd, name, err)
			}
			filter := sculpt.SymbolFilter{PathPrefix: prefix}
			for _, k := range kinds {
				kind, ok := graph.ParseNodeKind(k)
				if !ok {
					return c.fail(cmd, name, fmt.Errorf("unknown symbol kind %q", k))
				}
				filter.Kinds = append(filter.Kinds, kind)
			}
			if language != "" {
				lang, ok := parse.ParseLanguage(language)
				if !ok {
					return c.fail(cmd, name, fmt.Errorf("unknown language %q", language))
				}
				filter.Language = lang
			}
			if cmd.Flags().Changed("exported") {
				filter.Exported = &exported
			}

			cb, err := c.open(cmd)
			if err != nil {
				return c.fail(cmd, name, err)
			}
			defer cb.Close()
			if file != "" {
				if filter.Path, err = repoPath(cb.Root(), file); err != nil {
					return c.fail(cmd, name, err)
				}
			}

			res := cb.SearchSymbols(search, filter, by, q.page())
			total := res.TotalCount
			return c.output(cmd, CLIResult{
				Command:    name,
				Results:    symbolResultsToCLI(res.Items),
				TotalCount: &total,
			})
		},
	}
	cmd.Flags().StringSliceVar(&kinds, "kind", nil, "filter by kind: function|class|variable|import|export|module|external")
	cmd.Flags().StringVar(&file, "path", "", "restrict to one file")
	cmd.Flags().StringVar(&prefix, "prefix", "", "restrict to files under this directory")
	cmd.Flags().StringVar(&search, "search", "", "glob pattern on symbol names")
	cmd.Flags().StringVar(&language, "language", "", "restrict to one language")
	cmd.Flags().BoolVar(&exported, "exported", false, "only exported (or, with =false, unexported) symbols")
	return cmd
}

func (c *cli) filesCmd(q *queryFlags) *cobra.Command {
	var language string
	cmd := &cobra.Command{
		Use:   "files [prefix]",
		Short: "List indexed files",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			const name = "files"
			var lang sculpt.Language
			if language != "" {
				l, ok := parse.ParseLanguage(language)
				if !ok {
					return c.fail(cmd, name, fmt.Errorf("unknown language %q", language))
				}
				lang = l
			}
			cb, err := c.open(cmd)
			if err != nil {
				return c.fail(cmd, name, err)
			}
			defer cb.Close()

			prefix := ""
			if len(args) > 0 {
				prefix = args[0]
			}
			res := cb.ListFiles(prefix, lang, sculpt.SortOrder(q.order), q.page())
			out := make([]CLIFile, len(res.Items))
			for i, f := range res.Items {
				out[i] = CLIFile{
					Path:     f.Path,
					Language: string(f.Language),
					Module:   f.Module,
					Size:     f.Size,
					Symbols:  f.Symbols,
				}
			}
			total := res.TotalCount
			return c.output(cmd, CLIResult{Command: name, Results: out, TotalCount: &total})
		},
	}
	cmd.Flags().StringVar(&language, "language", "", "restrict to one language")
	return cmd
}

type transitiveFunc func(*sculpt.Codebase, *sculpt.Symbol, sculpt.EdgeKind, int) (*sculpt.UsageGraph, error)

type edgeFunc func(*sculpt.Symbol, sculpt.EdgeKind) []sculpt.Edge

// edgesCmd builds the usages and deps commands, which differ only in the
// direction they walk.
func (c *cli) edgesCmd(name, short string, transitive transitiveFunc, direct edgeFunc) *cobra.Command {
	var (
		kinds string
		depth int
	)
	cmd := &cobra.Command{
		Use:   name + " <file> <symbol>",
		Short: short,
		Long:  short + ". The symbol may be qualified, as in Class.method. With --depth the walk is transitive.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			mask, err := graph.ParseEdgeKinds(kinds)
			if err != nil {
				return c.fail(cmd, name, err)
			}
			cb, sym, err := c.openSymbol(cmd, args[0], args[1])
			if err != nil {
				return c.fail(cmd, name, err)
			}
			defer cb.Close()

			if depth > 0 {
				g, err := transitive(cb, sym, mask, depth)
				if err != nil {
					return c.fail(cmd, name, err)
				}
				out := CLIUsageGraph{Root: int64(g.Root), Depth: g.Depth, Nodes: []CLIUsageNode{}}
				for _, n := range g.Nodes {
					out.Nodes = append(out.Nodes, CLIUsageNode{Symbol: symbolToCLI(n.Symbol), Depth: n.Depth})
				}
				out.Edges = edgesToCLI(cb, g.Edges)
				return c.output(cmd, CLIResult{Command: name, Results: out})
			}
			return c.output(cmd, CLIResult{Command: name, Results: edgesToCLI(cb, direct(sym, mask))})
		},
	}
	cmd.Flags().StringVar(&kinds, "kinds", "all", "edge kinds: direct,chained,indirect,aliased or all")
	cmd.Flags().IntVar(&depth, "depth", 0, "walk transitively up to this depth (0 for one hop)")
	return cmd
}

func (c *cli) definitionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "definition <file> <line> <col>",
		Short: "Find the definition of the name at a position",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			const name = "definition"
			line, col, err := parsePosition(args[1], args[2])
			if err != nil {
				return c.fail(cmd, name, err)
			}
			cb, err := c.open(cmd)
			if err != nil {
				return c.fail(cmd, name, err)
			}
			defer cb.Close()
			p, err := repoPath(cb.Root(), args[0])
			if err != nil {
				return c.fail(cmd, name, err)
			}
			return c.output(cmd, CLIResult{Command: name, Results: locationsToCLI(cb.DefinitionAt(p, line, col))})
		},
	}
}

func (c *cli) referencesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "references <file> <symbol>",
		Short: "List every site referring to a symbol",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cb, sym, err := c.openSymbol(cmd, args[0], args[1])
			if err != nil {
				return c.fail(cmd, "references", err)
			}
			defer cb.Close()
			return c.output(cmd, CLIResult{Command: "references", Results: locationsToCLI(cb.ReferencesTo(sym))})
		},
	}
}

func (c *cli) detailCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "detail <file> <symbol>",
		Short: "Show a symbol with its parameters and members",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cb, sym, err := c.openSymbol(cmd, args[0], args[1])
			if err != nil {
				return c.fail(cmd, "detail", err)
			}
			defer cb.Close()
			d, err := cb.SymbolDetail(sym)
			if err != nil {
				return c.fail(cmd, "detail", err)
			}
			return c.output(cmd, CLIResult{Command: "detail", Results: detailToCLI(d)})
		},
	}
}

func (c *cli) summaryCmd() *cobra.Command {
	var top int
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Summarize the repository",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cb, err := c.open(cmd)
			if err != nil {
				return c.fail(cmd, "summary", err)
			}
			defer cb.Close()
			s := cb.ProjectSummary(top)
			out := CLIProjectSummary{
				ModuleCount: s.ModuleCount,
				Externals:   s.Externals,
				Edges:       s.Edges,
				Languages:   []CLILanguageStats{},
				TopSymbols:  symbolResultsToCLI(s.TopSymbols),
			}
			for _, l := range s.Languages {
				out.Languages = append(out.Languages, CLILanguageStats{
					Language:    string(l.Language),
					FileCount:   l.FileCount,
					SymbolCount: l.SymbolCount,
					KindCounts:  l.KindCounts,
				})
			}
			return c.output(cmd, CLIResult{Command: "summary", Results: out})
		},
	}
	cmd.Flags().IntVar(&top, "top", 10, "number of top symbols to include")
	return cmd
}

func (c *cli) moduleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "module <file>",
		Short: "Summarize one file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			const name = "module"
			cb, err := c.open(cmd)
			if err != nil {
				return c.fail(cmd, name, err)
			}
			defer cb.Close()
			p, err := repoPath(cb.Root(), args[0])
			if err != nil {
				return c.fail(cmd, name, err)
			}
			m, err := cb.ModuleSummary(p)
			if err != nil {
				return c.fail(cmd, name, err)
			}
			return c.output(cmd, CLIResult{Command: name, Results: CLIModuleSummary{
				Path:         m.Path,
				Module:       m.Module,
				Language:     string(m.Language),
				Exported:     symbolResultsToCLI(m.Exported),
				KindCounts:   m.KindCounts,
				Dependencies: nonNil(m.Dependencies),
				Dependents:   nonNil(m.Dependents),
			}})
		},
	}
}

func (c *cli) unusedCmd(q *queryFlags) *cobra.Command {
	var prefix string
	cmd := &cobra.Command{
		Use:   "unused",
		Short: "List declarations nothing refers to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			by, err := q.by()
			if err != nil {
				return c.fail(cmd, "unused", err)
			}
			cb, err := c.open(cmd)
			if err != nil {
				return c.fail(cmd, "unused", err)
			}
			defer cb.Close()
			res := cb.UnusedSymbols(sculpt.SymbolFilter{PathPrefix: prefix}, by, q.page())
			total := res.TotalCount
			return c.output(cmd, CLIResult{Command: "unused", Results: symbolResultsToCLI(res.Items), TotalCount: &total})
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", "", "restrict to files under this directory")
	return cmd
}

func (c *cli) hotspotsCmd() *cobra.Command {
	var top int
	cmd := &cobra.Command{
		Use:   "hotspots",
		Short: "List the most referenced declarations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cb, err := c.open(cmd)
			if err != nil {
				return c.fail(cmd, "hotspots", err)
			}
			defer cb.Close()
			hs, err := cb.Hotspots(top)
			if err != nil {
				return c.fail(cmd, "hotspots", err)
			}
			out := make([]CLIHotspot, len(hs))
			for i, h := range hs {
				out[i] = CLIHotspot{Symbol: symbolResultToCLI(h.SymbolResult), FanIn: h.FanIn, FanOut: h.FanOut}
			}
			return c.output(cmd, CLIResult{Command: "hotspots", Results: out})
		},
	}
	cmd.Flags().IntVar(&top, "top", 10, "number of symbols to return")
	return cmd
}

func (c *cli) graphCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "graph",
		Short: "List file-to-file import edges",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cb, err := c.open(cmd)
			if err != nil {
				return c.fail(cmd, "graph", err)
			}
			defer cb.Close()
			g := cb.DependencyGraph()
			out := make([]CLIDependencyEdge, len(g.Edges))
			for i, e := range g.Edges {
				out[i] = CLIDependencyEdge{From: e.From, To: e.To, Count: e.Count}
			}
			return c.output(cmd, CLIResult{Command: "graph", Results: out})
		},
	}
}

func (c *cli) cyclesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cycles",
		Short: "List circular file dependencies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cb, err := c.open(cmd)
			if err != nil {
				return c.fail(cmd, "cycles", err)
			}
			defer cb.Close()
			cycles := cb.CircularDependencies()
			if cycles == nil {
				cycles = [][]string{}
			}
			return c.output(cmd, CLIResult{Command: "cycles", Results: cycles})
		},
	}
}

// openSymbol opens the codebase and looks up name in file. The codebase is
// closed on error.
func (c *cli) openSymbol(cmd *cobra.Command, file, name string) (*sculpt.Codebase, *sculpt.Symbol, error) {
	cb, err := c.open(cmd)
	if err != nil {
		return nil, nil, err
	}
	p, err := repoPath(cb.Root(), file)
	if err != nil {
		cb.Close()
		return nil, nil, err
	}
	sym, err := cb.GetSymbol(p, name)
	if err != nil {
		cb.Close()
		return nil, nil, err
	}
	return cb, sym, nil
}

func parsePosition(lineArg, colArg string) (int, int, error) {
	line, err := strconv.Atoi(lineArg)
	if err != nil || line < 1 {
		return 0, 0, fmt.Errorf("invalid line %q: must be a positive integer", lineArg)
	}
	col, err := strconv.Atoi(colArg)
	if err != nil || col < 1 {
		return 0, 0, fmt.Errorf("invalid column %q: must be a positive integer", colArg)
	}
	return line, col, nil
}

// --- Conversions ---

func symbolToCLI(s *sculpt.Symbol) CLISymbol {
	out := CLISymbol{
		ID:            int64(s.ID()),
		Name:          s.Name(),
		QualifiedName: s.QualifiedName(),
		Kind:          s.Kind().String(),
		Variant:       s.Variant(),
		Exported:      s.Exported(),
		File:          s.Path(),
	}
	if loc := s.Location(); loc.File != "" {
		out.StartLine, out.StartCol = loc.StartLine, loc.StartCol
		out.EndLine, out.EndCol = loc.EndLine, loc.EndCol
	}
	return out
}

func symbolResultToCLI(r sculpt.SymbolResult) CLISymbol {
	out := symbolToCLI(r.Symbol)
	out.RefCount = r.RefCount
	out.ExternalRefCount = r.ExternalRefCount
	out.InternalRefCount = r.InternalRefCount
	return out
}

func symbolResultsToCLI(items []sculpt.SymbolResult) []CLISymbol {
	out := make([]CLISymbol, len(items))
	for i, r := range items {
		out[i] = symbolResultToCLI(r)
	}
	return out
}

func symbolsToCLI(syms []*sculpt.Symbol) []CLISymbol {
	out := make([]CLISymbol, len(syms))
	for i, s := range syms {
		out[i] = symbolToCLI(s)
	}
	return out
}

func locationToCLI(l sculpt.Location) CLILocation {
	return CLILocation{File: l.File, StartLine: l.StartLine, StartCol: l.StartCol, EndLine: l.EndLine, EndCol: l.EndCol}
}

func locationsToCLI(locs []sculpt.Location) []CLILocation {
	out := make([]CLILocation, len(locs))
	for i, l := range locs {
		out[i] = locationToCLI(l)
	}
	return out
}

func edgesToCLI(cb *sculpt.Codebase, edges []sculpt.Edge) []CLIEdge {
	out := make([]CLIEdge, len(edges))
	for i, e := range edges {
		ce := CLIEdge{
			From:     e.From.QualifiedName(),
			FromFile: e.From.Path(),
			To:       e.To.QualifiedName(),
			ToFile:   e.To.Path(),
			Kind:     e.Kind.String(),
			Sites:    make([]CLILocation, len(e.Sites)),
		}
		if e.Via != nil {
			ce.Via = e.Via.QualifiedName()
		}
		for j, s := range e.Sites {
			ce.Sites[j] = locationToCLI(cb.Locate(s.File, sculpt.Span{Start: s.Start, End: s.End}))
		}
		out[i] = ce
	}
	return out
}

func detailToCLI(d *sculpt.SymbolDetail) CLISymbolDetail {
	out := CLISymbolDetail{
		Symbol:     symbolResultToCLI(d.Symbol),
		Docstring:  d.Docstring,
		ReturnType: d.ReturnType,
		Type:       d.Type,
		Parameters: make([]CLIParam, len(d.Parameters)),
		Members:    symbolsToCLI(d.Members),
	}
	for i, p := range d.Parameters {
		out.Parameters[i] = CLIParam{Name: p.Name(), Ordinal: p.Index(), Type: p.Type(), Default: p.Default()}
	}
	if d.Target != nil {
		t := symbolToCLI(d.Target)
		out.Target = &t
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
