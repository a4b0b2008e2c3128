package sculpt

import (
	"fmt"

	"github.com/jward/sculpt/internal/graph"
	"github.com/jward/sculpt/internal/parse"
	"github.com/jward/sculpt/internal/resolve"
)

// Public aliases for internal types that appear in the API. They are
// identical to the internal types; no conversion is needed.

type Language = parse.Language
type SymbolKind = graph.NodeKind
type EdgeKind = graph.EdgeKind
type Site = graph.Site
type Span = resolve.Span

const (
	Python     = parse.Python
	TypeScript = parse.TypeScript
	TSX        = parse.TSX
	JavaScript = parse.JavaScript
)

const (
	FunctionKind = graph.Function
	ClassKind    = graph.Class
	VariableKind = graph.Variable
	ImportKind   = graph.Import
	ExportKind   = graph.Export
	ModuleKind   = graph.Module
	ExternalKind = graph.External
)

// Edge kinds combine into query masks. A zero mask means Direct.
const (
	Direct   = graph.Direct
	Chained  = graph.Chained
	Indirect = graph.Indirect
	Aliased  = graph.Aliased
	AllEdges = graph.AllKinds
)

// Edge is one usage relationship between two symbols.
type Edge struct {
	From  *Symbol
	To    *Symbol
	Via   *Symbol
	Kind  EdgeKind
	Sites []Site
}

// FileStatus is the outcome of a commit for one file.
type FileStatus int

const (
	Unchanged FileStatus = iota
	Written
	Created
	Deleted
	Failed
	RolledBack
	Discarded
)

var fileStatusNames = [...]string{"unchanged", "written", "created", "deleted", "failed", "rolled-back", "discarded"}

func (s FileStatus) String() string {
	if int(s) < len(fileStatusNames) {
		return fileStatusNames[s]
	}
	return "unknown"
}

// FileResult reports what happened to one file.
type FileResult struct {
	Path   string
	Status FileStatus
	Err    error
}

// CommitResult enumerates the files a commit touched.
type CommitResult struct {
	ID    string
	Files []FileResult
	// Relinked is the number of files whose edges were recomputed.
	Relinked int
}

// Empty reports whether the commit had nothing to do.
func (r *CommitResult) Empty() bool { return len(r.Files) == 0 }

// ResetResult lists the files whose pending edits were discarded.
type ResetResult struct {
	Files []FileResult
}

// Strategy selects how importers are repaired after a move.
type Strategy int

const (
	// UpdateAllImports rewrites every import of the moved symbol to point
	// at the destination.
	UpdateAllImports Strategy = iota
	// AddBackEdge leaves importers alone and forwards the symbol from its
	// old file.
	AddBackEdge
)

func (s Strategy) String() string {
	if s == AddBackEdge {
		return "back-edge"
	}
	return "update-imports"
}

// ParseStrategy accepts the names produced by String.
func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "update-imports", "":
		return UpdateAllImports, nil
	case "back-edge":
		return AddBackEdge, nil
	}
	return 0, fmt.Errorf("sculpt: unknown move strategy %q", s)
}

// MoveOptions configures MoveSymbol.
type MoveOptions struct {
	IncludeDependencies bool
	Strategy            Strategy
}

// MoveResult describes a queued move. Nothing is written until Commit.
type MoveResult struct {
	// Moved lists the qualified names relocated, the requested symbol first.
	Moved  []string
	Origin string
	Dest   string
	// Created is true when the destination file did not exist.
	Created bool
	// OriginEmpty is true when the origin holds no code after the move. The
	// file is kept; deleting it is up to the caller.
	OriginEmpty bool
	// Touched lists every file with queued edits from the move.
	Touched []string
}

// Diagnostic is a non-fatal problem found while indexing.
type Diagnostic struct {
	Path    string
	Span    Span
	Name    string
	Kind    ErrorKind
	Message string
}
