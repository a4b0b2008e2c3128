package sculpt

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/sourcegraph/scip/bindings/go/scip"
	"google.golang.org/protobuf/proto"

	"github.com/jward/sculpt/internal/graph"
	"github.com/jward/sculpt/internal/parse"
)

const (
	scipScheme  = "sculpt"
	toolName    = "sculpt"
	toolVersion = "0.1.0"
)

var scipLanguages = map[parse.Language]scip.Language{
	parse.Python:     scip.Language_Python,
	parse.TypeScript: scip.Language_TypeScript,
	parse.TSX:        scip.Language_TypeScriptReact,
	parse.JavaScript: scip.Language_JavaScript,
}

// ExportSCIP writes the committed symbol graph to w as a binary SCIP index.
// Every declaration becomes a definition occurrence at its name; every
// edge site becomes a reference to the edge's target. Pending edits are
// not included.
func (cb *Codebase) ExportSCIP(w io.Writer) error {
	index := cb.scipIndex()
	data, err := proto.Marshal(index)
	if err != nil {
		return fmt.Errorf("sculpt: encoding scip index: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("sculpt: writing scip index: %w", err)
	}
	cb.log.Info("exported scip index", "documents", len(index.Documents), "bytes", len(data))
	return nil
}

func (cb *Codebase) scipIndex() *scip.Index {
	root := cb.root
	if !strings.Contains(root, "://") {
		root = "file://" + root
	}
	index := &scip.Index{
		Metadata: &scip.Metadata{
			Version:              scip.ProtocolVersion_UnspecifiedProtocolVersion,
			ToolInfo:             &scip.ToolInfo{Name: toolName, Version: toolVersion},
			ProjectRoot:          root,
			TextDocumentEncoding: scip.TextEncoding_UTF8,
		},
	}

	docs := make(map[string]*scip.Document)
	for _, p := range cb.Files() {
		fs := cb.files[p]
		doc := &scip.Document{
			RelativePath:     p,
			Language:         scipLanguages[fs.lang].String(),
			PositionEncoding: scip.PositionEncoding_UTF8CodeUnitOffsetFromLineStart,
		}
		docs[p] = doc
		index.Documents = append(index.Documents, doc)
	}

	externals := make(map[graph.ID]bool)
	cb.graph.Nodes(func(n graph.Node) bool {
		doc := docs[n.File]
		if doc == nil || n.Kind == graph.Module {
			return true
		}
		sym := cb.symbol(n.ID)
		d := sym.decl()
		if d == nil {
			return true
		}
		name := cb.scipSymbol(n)
		doc.Occurrences = append(doc.Occurrences, &scip.Occurrence{
			Range:          cb.scipRange(n.File, d.NameSpan),
			Symbol:         name,
			SymbolRoles:    int32(scip.SymbolRole_Definition),
			EnclosingRange: cb.scipRange(n.File, d.Span),
		})
		info := &scip.SymbolInformation{
			Symbol:      name,
			Kind:        scipKind(n, d.Variant),
			DisplayName: n.Name,
		}
		if ds := sym.Docstring(); ds != "" {
			info.Documentation = []string{ds}
		}
		if p, ok := cb.graph.Node(n.Parent); ok && p.Kind != graph.Module {
			info.EnclosingSymbol = cb.scipSymbol(p)
		}
		if d.Import != nil {
			if res, err := cb.resolver.Resolve(n.File, n.Decl); err == nil && res.Root != 0 {
				if target, ok := cb.graph.Node(res.Root); ok {
					info.Relationships = append(info.Relationships, &scip.Relationship{
						Symbol:      cb.scipSymbol(target),
						IsReference: true,
					})
					if target.Kind == graph.External {
						externals[target.ID] = true
					}
				}
			}
		}
		doc.Symbols = append(doc.Symbols, info)
		return true
	})

	cb.graph.Edges(func(e graph.Edge) bool {
		to, ok := cb.graph.Node(e.To)
		if !ok {
			return true
		}
		if to.Kind == graph.External {
			externals[to.ID] = true
		}
		name := cb.scipSymbol(to)
		for _, s := range e.Sites {
			doc := docs[s.File]
			if doc == nil {
				continue
			}
			doc.Occurrences = append(doc.Occurrences, &scip.Occurrence{
				Range:  cb.scipRange(s.File, Span{Start: s.Start, End: s.End}),
				Symbol: name,
			})
		}
		return true
	})

	for _, doc := range index.Documents {
		sortOccurrences(doc.Occurrences)
		sort.Slice(doc.Symbols, func(i, j int) bool { return doc.Symbols[i].Symbol < doc.Symbols[j].Symbol })
	}
	for id := range externals {
		n, _ := cb.graph.Node(id)
		index.ExternalSymbols = append(index.ExternalSymbols, &scip.SymbolInformation{
			Symbol:      cb.scipSymbol(n),
			Kind:        scip.SymbolInformation_Module,
			DisplayName: n.Name,
		})
	}
	sort.Slice(index.ExternalSymbols, func(i, j int) bool {
		return index.ExternalSymbols[i].Symbol < index.ExternalSymbols[j].Symbol
	})
	return index
}

// scipRange encodes a byte span as a zero-based SCIP range: three
// elements on a single line, four otherwise.
func (cb *Codebase) scipRange(p string, s Span) []int32 {
	loc := cb.location(p, s)
	sl, sc := int32(loc.StartLine-1), int32(loc.StartCol-1)
	el, ec := int32(loc.EndLine-1), int32(loc.EndCol-1)
	if sl == el {
		return []int32{sl, sc, ec}
	}
	return []int32{sl, sc, el, ec}
}

func sortOccurrences(occs []*scip.Occurrence) {
	sort.SliceStable(occs, func(i, j int) bool {
		a, b := occs[i].Range, occs[j].Range
		if a[0] != b[0] {
			return a[0] < b[0]
		}
		if a[1] != b[1] {
			return a[1] < b[1]
		}
		return occs[i].SymbolRoles > occs[j].SymbolRoles
	})
}

// scipSymbol formats n as a global SCIP symbol. Declarations live under a
// namespace named after their file; externals become a package of their
// own.
func (cb *Codebase) scipSymbol(n graph.Node) string {
	if n.Kind == graph.External {
		return fmt.Sprintf("%s . %s . %s/", scipScheme, scipPackage(n.Name), scipEscape(n.Name))
	}
	var descs []string
	for cur := n; cur.Kind != graph.Module; {
		descs = append(descs, scipDescriptor(cur))
		p, ok := cb.graph.Node(cur.Parent)
		if !ok {
			break
		}
		cur = p
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s . . . %s/", scipScheme, scipEscape(n.File))
	for i := len(descs) - 1; i >= 0; i-- {
		b.WriteString(descs[i])
	}
	return b.String()
}

func scipDescriptor(n graph.Node) string {
	name := scipEscape(n.Name)
	switch n.Kind {
	case graph.Class:
		return name + "#"
	case graph.Function:
		return name + "()."
	}
	return name + "."
}

// scipPackage doubles spaces, the package-name escape of the symbol grammar.
func scipPackage(s string) string {
	if s == "" {
		return "."
	}
	return strings.ReplaceAll(s, " ", "  ")
}

// scipEscape backticks names that are not simple identifiers.
func scipEscape(s string) string {
	simple := s != ""
	for _, r := range s {
		if !(r == '_' || r == '+' || r == '-' || r == '$' ||
			r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			simple = false
			break
		}
	}
	if simple {
		return s
	}
	return "`" + strings.ReplaceAll(s, "`", "``") + "`"
}

func scipKind(n graph.Node, variant string) scip.SymbolInformation_Kind {
	switch n.Kind {
	case graph.Class:
		switch variant {
		case "interface":
			return scip.SymbolInformation_Interface
		case "enum":
			return scip.SymbolInformation_Enum
		}
		return scip.SymbolInformation_Class
	case graph.Function:
		if variant == "method" {
			return scip.SymbolInformation_Method
		}
		return scip.SymbolInformation_Function
	case graph.Variable:
		return scip.SymbolInformation_Variable
	case graph.Import, graph.Export:
		return scip.SymbolInformation_Module
	}
	return scip.SymbolInformation_UnspecifiedKind
}
