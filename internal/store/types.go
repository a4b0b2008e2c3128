package store

import "time"

type File struct {
	ID          int64
	Path        string
	Language    string
	Module      string
	Hash        string
	Size        int
	LineCount   int
	ParseErrors int
	LastIndexed time.Time
}

type Symbol struct {
	ID            int64
	FileID        int64
	Path          string
	Name          string
	QualifiedName string
	Kind          string
	Variant       string
	Exported      bool
	// Parent is the qualified name of the enclosing declaration, or "".
	Parent    string
	StartByte int
	EndByte   int
	StartLine int
	EndLine   int
}

type Import struct {
	ID           int64
	FileID       int64
	Module       string
	ImportedName string
	LocalAlias   string
	// ResolvedPath is the repository file the import resolves into, or ""
	// for external modules.
	ResolvedPath string
	IsModule     bool
	ReExport     bool
	Line         int
}

// Edge is one observed usage. Symbols are identified by path and
// qualified name; the module itself uses its module name and external
// symbols an empty path.
type Edge struct {
	ID        int64
	FromPath  string
	FromName  string
	ToPath    string
	ToName    string
	ViaName   string
	Kind      string
	SiteStart int
	SiteEnd   int
	Line      int
}

// Commit is one entry of the commit journal.
type Commit struct {
	ID          string
	CommittedAt time.Time
	Files       int
	Relinked    int
	Paths       []string
}

// FileSnapshot is everything stored for one file.
type FileSnapshot struct {
	File    File
	Symbols []Symbol
	Imports []Import
}

// Batch replaces the rows of a set of files in one transaction.
type Batch struct {
	// Files are upserted with their symbols and imports.
	Files []FileSnapshot
	// Removed paths lose every row, including outgoing edges.
	Removed []string
	// EdgeSources lists the paths whose outgoing edges are replaced by
	// Edges.
	EdgeSources []string
	Edges       []Edge
}
