// Package sculpt indexes Python, TypeScript and JavaScript repositories
// into a usage graph and rewrites them through transactional edits. It is
// built on tree-sitter and keeps the graph current as edits are committed.
//
// # Model
//
// [Open] scans a root, parses every supported file and links declarations
// into a graph of [Symbol] nodes. Edges record how one symbol uses
// another:
//
//   - [Direct]: a name resolved within the same file.
//   - [Chained]: an attribute access through a module, such as util.load.
//   - [Indirect]: a use through one or more import bindings.
//   - [Aliased]: an indirect use where some binding renamed the symbol.
//
// Queries take a mask combining these kinds.
//
// # Editing
//
// Files, symbols, parameters and syntax nodes are editable. Edits are
// queued against the committed content and nothing is written until
// [Codebase.Commit], which applies every queued edit, writes the files and
// reparses them incrementally. [Codebase.Reset] discards the queue.
// Overlapping edits are rejected when queued.
//
//	cb, err := sculpt.Open(ctx, "path/to/repo")
//	if err != nil { ... }
//	defer cb.Close()
//
//	helper, err := cb.GetSymbol("a.py", "helper")
//	if err != nil { ... }
//	if _, err := cb.MoveSymbol(helper, "b.py", sculpt.MoveOptions{}); err != nil { ... }
//	res, err := cb.Commit(ctx)
//
// Higher level operations build on the same queue: [Codebase.MoveSymbol],
// [Symbol.Rename], [Symbol.SetReturnType], [Node.ReduceCondition] and
// [File.AddImport].
//
// # Scripts and export
//
// [Codebase.RunScript] runs a Risor codemod with the codebase exposed as
// globals. [Codebase.ExportSCIP] writes the committed graph as a SCIP
// index. [WithIndexDB] mirrors the graph into a sqlite database that is
// updated on every commit.
package sculpt
