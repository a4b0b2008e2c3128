package sculpt

import (
	"errors"

	"github.com/jward/sculpt/internal/parse"
	"github.com/jward/sculpt/internal/resolve"
	"github.com/jward/sculpt/internal/storage"
	"github.com/jward/sculpt/internal/txn"
)

// Errors returned by the engine. Use errors.Is to test for them; KindOf
// maps any of them, however wrapped, to its ErrorKind.
var (
	// ErrParse marks a file that only parsed with error nodes. It never
	// aborts a scan and only appears in Diagnostics.
	ErrParse = parse.ErrParse

	// ErrStaleNode is returned when a node is used after its file was
	// committed again or removed.
	ErrStaleNode = errors.New("stale node")

	// ErrOverlappingEdit is returned when a queued edit intersects one
	// already pending on the same file.
	ErrOverlappingEdit = txn.ErrOverlappingEdit

	// ErrExternalSymbol is returned when mutating a symbol outside the
	// repository.
	ErrExternalSymbol = errors.New("external symbol is read-only")

	// ErrUnresolvedAliasCycle is returned when an import chain loops or
	// exceeds the hop bound.
	ErrUnresolvedAliasCycle = resolve.ErrUnresolvedAliasCycle

	// ErrInvalidDestination is returned when a path is outside the scanned
	// root or cannot hold the symbol.
	ErrInvalidDestination = errors.New("invalid destination")

	// ErrCommitIO is returned when the backing store rejects a commit.
	ErrCommitIO = storage.ErrCommitIO

	ErrNotFound    = errors.New("not found")
	ErrFileExists  = errors.New("file already exists")
	ErrNotMovable  = errors.New("symbol cannot be moved")
	ErrUnsupported = errors.New("unsupported operation")
)

// ErrorKind classifies engine errors.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindParseError
	KindStaleNode
	KindOverlappingEdit
	KindExternalSymbol
	KindUnresolvedAliasCycle
	KindInvalidDestination
	KindCommitIOFailure
	KindNotFound
)

var kindNames = map[ErrorKind]string{
	KindUnknown:              "Unknown",
	KindParseError:           "ParseError",
	KindStaleNode:            "StaleNode",
	KindOverlappingEdit:      "OverlappingEdit",
	KindExternalSymbol:       "ExternalSymbol",
	KindUnresolvedAliasCycle: "UnresolvedAliasCycle",
	KindInvalidDestination:   "InvalidDestination",
	KindCommitIOFailure:      "CommitIOFailure",
	KindNotFound:             "NotFound",
}

func (k ErrorKind) String() string {
	return kindNames[k]
}

var kindErrors = []struct {
	err  error
	kind ErrorKind
}{
	{ErrCommitIO, KindCommitIOFailure},
	{ErrParse, KindParseError},
	{ErrStaleNode, KindStaleNode},
	{txn.ErrFileRemoved, KindStaleNode},
	{ErrOverlappingEdit, KindOverlappingEdit},
	{ErrExternalSymbol, KindExternalSymbol},
	{ErrUnresolvedAliasCycle, KindUnresolvedAliasCycle},
	{ErrInvalidDestination, KindInvalidDestination},
	{ErrNotFound, KindNotFound},
}

// KindOf returns the kind of err, or KindUnknown.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	for _, ke := range kindErrors {
		if errors.Is(err, ke.err) {
			return ke.kind
		}
	}
	return KindUnknown
}
