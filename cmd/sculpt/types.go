package main

// CLIResult is the top-level JSON envelope for every command.
type CLIResult struct {
	Command    string `json:"command"`
	Results    any    `json:"results"`
	TotalCount *int   `json:"total_count,omitempty"`
	Error      string `json:"error,omitempty"`
	Kind       string `json:"error_kind,omitempty"`
}

// CLISymbol is a JSON-friendly symbol representation.
type CLISymbol struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	QualifiedName    string `json:"qualified_name"`
	Kind             string `json:"kind"`
	Variant          string `json:"variant,omitempty"`
	Exported         bool   `json:"exported"`
	File             string `json:"file,omitempty"`
	StartLine        int    `json:"start_line,omitempty"`
	StartCol         int    `json:"start_col,omitempty"`
	EndLine          int    `json:"end_line,omitempty"`
	EndCol           int    `json:"end_col,omitempty"`
	RefCount         int    `json:"ref_count"`
	ExternalRefCount int    `json:"external_ref_count"`
	InternalRefCount int    `json:"internal_ref_count"`
}

// CLILocation is a 1-based source range.
type CLILocation struct {
	File      string `json:"file"`
	StartLine int    `json:"start_line"`
	StartCol  int    `json:"start_col"`
	EndLine   int    `json:"end_line"`
	EndCol    int    `json:"end_col"`
}

// CLIEdge is one usage relationship.
type CLIEdge struct {
	From     string        `json:"from"`
	FromFile string        `json:"from_file,omitempty"`
	To       string        `json:"to"`
	ToFile   string        `json:"to_file,omitempty"`
	Kind     string        `json:"kind"`
	Via      string        `json:"via,omitempty"`
	Sites    []CLILocation `json:"sites"`
}

// CLIFile is a JSON-friendly file representation.
type CLIFile struct {
	Path     string `json:"path"`
	Language string `json:"language"`
	Module   string `json:"module"`
	Size     int    `json:"size"`
	Symbols  int    `json:"symbols"`
}

// CLILanguageStats is a JSON-friendly language stats representation.
type CLILanguageStats struct {
	Language    string         `json:"language"`
	FileCount   int            `json:"file_count"`
	SymbolCount int            `json:"symbol_count"`
	KindCounts  map[string]int `json:"kind_counts"`
}

// CLIProjectSummary is a JSON-friendly project summary.
type CLIProjectSummary struct {
	Languages   []CLILanguageStats `json:"languages"`
	ModuleCount int                `json:"module_count"`
	Externals   int                `json:"externals"`
	Edges       int                `json:"edges"`
	TopSymbols  []CLISymbol        `json:"top_symbols"`
}

// CLIModuleSummary is a JSON-friendly single-file summary.
type CLIModuleSummary struct {
	Path         string         `json:"path"`
	Module       string         `json:"module"`
	Language     string         `json:"language"`
	Exported     []CLISymbol    `json:"exported"`
	KindCounts   map[string]int `json:"kind_counts"`
	Dependencies []string       `json:"dependencies"`
	Dependents   []string       `json:"dependents"`
}

// CLIParam is a JSON-friendly function parameter.
type CLIParam struct {
	Name    string `json:"name"`
	Ordinal int    `json:"ordinal"`
	Type    string `json:"type,omitempty"`
	Default string `json:"default,omitempty"`
}

// CLISymbolDetail is a JSON-friendly symbol detail.
type CLISymbolDetail struct {
	Symbol     CLISymbol   `json:"symbol"`
	Docstring  string      `json:"docstring,omitempty"`
	ReturnType string      `json:"return_type,omitempty"`
	Type       string      `json:"type,omitempty"`
	Parameters []CLIParam  `json:"parameters"`
	Members    []CLISymbol `json:"members"`
	Target     *CLISymbol  `json:"target,omitempty"`
}

// CLIUsageNode is one symbol of a transitive walk.
type CLIUsageNode struct {
	Symbol CLISymbol `json:"symbol"`
	Depth  int       `json:"depth"`
}

// CLIUsageGraph is a JSON-friendly transitive walk.
type CLIUsageGraph struct {
	Root  int64          `json:"root"`
	Nodes []CLIUsageNode `json:"nodes"`
	Edges []CLIEdge      `json:"edges"`
	Depth int            `json:"depth"`
}

// CLIHotspot is a heavily used symbol.
type CLIHotspot struct {
	Symbol CLISymbol `json:"symbol"`
	FanIn  int       `json:"fan_in"`
	FanOut int       `json:"fan_out"`
}

// CLIDependencyEdge is one file-to-file import edge.
type CLIDependencyEdge struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Count int    `json:"count"`
}

// CLIDiagnostic is a non-fatal indexing problem.
type CLIDiagnostic struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	Col     int    `json:"col"`
	Name    string `json:"name,omitempty"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// CLIIndexSummary reports an index run.
type CLIIndexSummary struct {
	Root        string `json:"root"`
	Database    string `json:"database"`
	Files       int    `json:"files"`
	Nodes       int    `json:"nodes"`
	Edges       int    `json:"edges"`
	Diagnostics int    `json:"diagnostics"`
	DurationMS  int64  `json:"duration_ms"`
}

// CLIFileResult is the outcome for one file of a commit or reset.
type CLIFileResult struct {
	Path   string `json:"path"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// CLIChange reports a mutating command. Pending holds the would-be content
// of each touched file on a dry run; Files holds commit outcomes otherwise.
type CLIChange struct {
	Moved       []string          `json:"moved,omitempty"`
	Origin      string            `json:"origin,omitempty"`
	Dest        string            `json:"dest,omitempty"`
	Created     bool              `json:"created,omitempty"`
	OriginEmpty bool              `json:"origin_empty,omitempty"`
	Touched     []string          `json:"touched"`
	DryRun      bool              `json:"dry_run"`
	CommitID    string            `json:"commit_id,omitempty"`
	Files       []CLIFileResult   `json:"files,omitempty"`
	Pending     map[string]string `json:"pending,omitempty"`
}

// CLIExport reports a written export.
type CLIExport struct {
	Format string `json:"format"`
	Output string `json:"output"`
	Bytes  int64  `json:"bytes"`
}

// CLIConfigInit reports a written config file.
type CLIConfigInit struct {
	Path string `json:"path"`
}
