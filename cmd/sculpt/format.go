package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jward/sculpt"
)

// output writes result to the command's stdout in the selected format.
func (c *cli) output(cmd *cobra.Command, result CLIResult) error {
	w := cmd.OutOrStdout()
	if c.format == "text" {
		return outputResultText(w, result)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// fail writes an error in the selected format and returns it so RunE can
// propagate it to Cobra. In JSON mode the error is written to stdout as a
// CLIResult envelope. In text mode it goes to stderr.
func (c *cli) fail(cmd *cobra.Command, command string, err error) error {
	c.errorHandled = true
	if c.format == "text" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", err)
		return err
	}
	result := CLIResult{Command: command, Error: err.Error()}
	if kind := sculpt.KindOf(err); kind != sculpt.KindUnknown {
		result.Kind = kind.String()
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	_ = enc.Encode(result)
	return err
}

func formatLocationsText(w io.Writer, locs []CLILocation) {
	for _, loc := range locs {
		fmt.Fprintf(w, "%s:%d:%d\n", loc.File, loc.StartLine, loc.StartCol)
	}
}

// formatSymbolsText formats CLISymbol results as aligned columns.
func formatSymbolsText(w io.Writer, syms []CLISymbol) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tKIND\tFILE\tLINE\tREFS")
	for _, s := range syms {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%d\n",
			s.ID, s.QualifiedName, s.Kind, s.File, s.StartLine, s.RefCount)
	}
	tw.Flush()
}

func formatEdgesText(w io.Writer, edges []CLIEdge) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FROM\tTO\tKIND\tVIA\tSITE")
	for _, e := range edges {
		site := ""
		if len(e.Sites) > 0 {
			s := e.Sites[0]
			site = fmt.Sprintf("%s:%d:%d", s.File, s.StartLine, s.StartCol)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", qualify(e.FromFile, e.From), qualify(e.ToFile, e.To), e.Kind, e.Via, site)
	}
	tw.Flush()
}

func qualify(file, name string) string {
	if file == "" {
		return name
	}
	return file + ":" + name
}

// formatFilesText formats CLIFile results as aligned columns.
func formatFilesText(w io.Writer, files []CLIFile) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PATH\tLANGUAGE\tMODULE\tSYMBOLS")
	for _, f := range files {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", f.Path, f.Language, f.Module, f.Symbols)
	}
	tw.Flush()
}

// formatSummaryText formats CLIProjectSummary as readable text.
func formatSummaryText(w io.Writer, summary CLIProjectSummary) {
	fmt.Fprintln(w, "Project Summary")
	fmt.Fprintln(w, "===============")
	fmt.Fprintf(w, "Modules: %d\n", summary.ModuleCount)
	fmt.Fprintf(w, "Externals: %d\n", summary.Externals)
	fmt.Fprintf(w, "Edges: %d\n", summary.Edges)
	fmt.Fprintln(w)

	if len(summary.Languages) > 0 {
		fmt.Fprintln(w, "Languages:")
		for _, lang := range summary.Languages {
			fmt.Fprintf(w, "  %s: %d files, %d symbols\n",
				lang.Language, lang.FileCount, lang.SymbolCount)
		}
		fmt.Fprintln(w)
	}

	if len(summary.TopSymbols) > 0 {
		fmt.Fprintln(w, "Top Symbols by References:")
		for _, sym := range summary.TopSymbols {
			fmt.Fprintf(w, "  %s (%s) - %d refs\n",
				sym.QualifiedName, sym.Kind, sym.ExternalRefCount)
		}
	}
}

// formatModuleSummaryText formats CLIModuleSummary as readable text.
func formatModuleSummaryText(w io.Writer, mod CLIModuleSummary) {
	fmt.Fprintf(w, "Module: %s\n", mod.Module)
	fmt.Fprintf(w, "Path: %s\n", mod.Path)
	fmt.Fprintf(w, "Language: %s\n", mod.Language)
	fmt.Fprintln(w)

	if len(mod.KindCounts) > 0 {
		fmt.Fprintln(w, "Symbol Kinds:")
		kinds := make([]string, 0, len(mod.KindCounts))
		for kind := range mod.KindCounts {
			kinds = append(kinds, kind)
		}
		sort.Strings(kinds)
		for _, kind := range kinds {
			fmt.Fprintf(w, "  %s: %d\n", kind, mod.KindCounts[kind])
		}
		fmt.Fprintln(w)
	}

	if len(mod.Exported) > 0 {
		fmt.Fprintln(w, "Exported Symbols:")
		formatSymbolsText(w, mod.Exported)
		fmt.Fprintln(w)
	}
	formatList(w, "Dependencies:", mod.Dependencies)
	formatList(w, "Dependents:", mod.Dependents)
}

func formatList(w io.Writer, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintln(w, title)
	for _, item := range items {
		fmt.Fprintf(w, "  %s\n", item)
	}
}

func formatDetailText(w io.Writer, d CLISymbolDetail) {
	formatSymbolsText(w, []CLISymbol{d.Symbol})
	if d.Docstring != "" {
		fmt.Fprintf(w, "\n%s\n", d.Docstring)
	}
	if len(d.Parameters) > 0 {
		params := make([]string, len(d.Parameters))
		for i, p := range d.Parameters {
			params[i] = p.Name
			if p.Type != "" {
				params[i] += ": " + p.Type
			}
			if p.Default != "" {
				params[i] += " = " + p.Default
			}
		}
		fmt.Fprintf(w, "\nParameters: %s\n", strings.Join(params, ", "))
	}
	if d.ReturnType != "" {
		fmt.Fprintf(w, "Returns: %s\n", d.ReturnType)
	}
	if d.Type != "" {
		fmt.Fprintf(w, "Type: %s\n", d.Type)
	}
	if len(d.Members) > 0 {
		fmt.Fprintln(w, "\nMembers:")
		formatSymbolsText(w, d.Members)
	}
	if d.Target != nil {
		fmt.Fprintln(w, "\nTarget:")
		formatSymbolsText(w, []CLISymbol{*d.Target})
	}
}

func formatChangeText(w io.Writer, ch CLIChange) {
	if len(ch.Moved) > 0 {
		fmt.Fprintf(w, "Moved %s from %s to %s\n", strings.Join(ch.Moved, ", "), ch.Origin, ch.Dest)
	}
	if ch.DryRun {
		paths := make([]string, 0, len(ch.Pending))
		for p := range ch.Pending {
			paths = append(paths, p)
		}
		sort.Strings(paths)
		for _, p := range paths {
			fmt.Fprintf(w, "--- %s\n%s", p, ch.Pending[p])
			if !strings.HasSuffix(ch.Pending[p], "\n") {
				fmt.Fprintln(w)
			}
		}
		return
	}
	for _, f := range ch.Files {
		if f.Error != "" {
			fmt.Fprintf(w, "%s\t%s\t%s\n", f.Status, f.Path, f.Error)
			continue
		}
		fmt.Fprintf(w, "%s\t%s\n", f.Status, f.Path)
	}
}

// outputResultText dispatches to the appropriate text formatter based on
// the result type.
func outputResultText(w io.Writer, result CLIResult) error {
	switch v := result.Results.(type) {
	case []CLILocation:
		formatLocationsText(w, v)
	case []CLISymbol:
		formatSymbolsText(w, v)
	case CLISymbol:
		formatSymbolsText(w, []CLISymbol{v})
	case []CLIEdge:
		formatEdgesText(w, v)
	case CLIUsageGraph:
		nodes := make([]CLISymbol, len(v.Nodes))
		for i, n := range v.Nodes {
			nodes[i] = n.Symbol
		}
		formatSymbolsText(w, nodes)
		fmt.Fprintf(w, "\nDepth: %d\n", v.Depth)
	case []CLIHotspot:
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tFILE\tEXTERNAL_REFS\tFAN_IN\tFAN_OUT")
		for _, h := range v {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\n", h.Symbol.QualifiedName, h.Symbol.File, h.Symbol.ExternalRefCount, h.FanIn, h.FanOut)
		}
		tw.Flush()
	case []CLIFile:
		formatFilesText(w, v)
	case CLIProjectSummary:
		formatSummaryText(w, v)
	case CLIModuleSummary:
		formatModuleSummaryText(w, v)
	case CLISymbolDetail:
		formatDetailText(w, v)
	case []CLIDependencyEdge:
		for _, e := range v {
			fmt.Fprintf(w, "%s -> %s (%d)\n", e.From, e.To, e.Count)
		}
	case [][]string:
		for _, cycle := range v {
			fmt.Fprintln(w, strings.Join(cycle, " -> "))
		}
	case []CLIDiagnostic:
		for _, d := range v {
			fmt.Fprintf(w, "%s:%d:%d: %s: %s\n", d.File, d.Line, d.Col, d.Kind, d.Message)
		}
	case CLIIndexSummary:
		fmt.Fprintf(w, "Indexed %s in %dms: %d files, %d nodes, %d edges, %d diagnostics\n",
			v.Root, v.DurationMS, v.Files, v.Nodes, v.Edges, v.Diagnostics)
		fmt.Fprintf(w, "Database: %s\n", v.Database)
	case CLIChange:
		formatChangeText(w, v)
	case CLIExport:
		fmt.Fprintf(w, "Wrote %s index to %s (%d bytes)\n", v.Format, v.Output, v.Bytes)
	case CLIConfigInit:
		fmt.Fprintf(w, "Wrote %s\n", v.Path)
	case nil:
		// No output for nil results (e.g. definition with no match).
	default:
		return fmt.Errorf("unsupported result type for text format: %T", v)
	}

	// Pagination footer.
	if result.TotalCount != nil {
		count := *result.TotalCount
		shown := resultLen(result.Results)
		if shown < count {
			fmt.Fprintf(w, "\nShowing %d of %d results\n", shown, count)
		}
	}
	return nil
}

// resultLen returns the length of a result slice, or 1 for a single value.
func resultLen(v any) int {
	switch r := v.(type) {
	case []CLILocation:
		return len(r)
	case []CLISymbol:
		return len(r)
	case []CLIEdge:
		return len(r)
	case []CLIFile:
		return len(r)
	case nil:
		return 0
	default:
		return 1
	}
}

// validFormats lists accepted values for --format.
var validFormats = []string{"json", "text"}

// validateFormat checks that the --format flag value is recognized.
func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be %s", format, strings.Join(validFormats, " or "))
}
