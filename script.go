package sculpt

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/risor-io/risor/object"

	"github.com/jward/sculpt/internal/graph"
	"github.com/jward/sculpt/internal/parse"
	"github.com/jward/sculpt/internal/runtime"
)

// RunScript runs a Risor codemod against the codebase. Relative paths are
// resolved against scripts.dir when configured; the script's directory is
// searched for imported modules. Edits the script queues stay pending
// unless it calls commit().
func (cb *Codebase) RunScript(ctx context.Context, scriptPath string) error {
	dir := cb.cfg.Scripts.Dir
	if dir != "" && !filepath.IsAbs(dir) {
		dir = filepath.Join(cb.root, dir)
	}
	if dir == "" {
		abs, err := filepath.Abs(scriptPath)
		if err != nil {
			return fmt.Errorf("sculpt: script %s: %w", scriptPath, err)
		}
		scriptPath, dir = abs, filepath.Dir(abs)
	}
	rt := cb.scriptRuntime(dir)
	if err := rt.RunScript(ctx, scriptPath, cb.scriptGlobals()); err != nil {
		return fmt.Errorf("sculpt: %w", err)
	}
	return nil
}

// RunSource runs Risor source against the codebase.
func (cb *Codebase) RunSource(ctx context.Context, source string) error {
	if err := cb.scriptRuntime("").RunSource(ctx, source, cb.scriptGlobals()); err != nil {
		return fmt.Errorf("sculpt: %w", err)
	}
	return nil
}

func (cb *Codebase) scriptRuntime(dir string) *runtime.Runtime {
	opts := []runtime.RuntimeOption{
		runtime.WithLogger(cb.log.With("component", "script")),
		runtime.WithTrees(scriptTrees{cb}),
	}
	if cb.store != nil {
		opts = append(opts, runtime.WithStore(cb.store))
	}
	return runtime.NewRuntime(dir, opts...)
}

// scriptTrees serves the tree global from the committed files.
type scriptTrees struct{ cb *Codebase }

func (s scriptTrees) Tree(p string) (*parse.Tree, bool) {
	fs, ok := s.cb.files[cleanPath(p)]
	if !ok {
		return nil, false
	}
	return fs.tree, true
}

// scriptGlobals exposes the codebase to scripts. Symbols are addressed by
// (path, name) and returned as maps.
func (cb *Codebase) scriptGlobals() map[string]any {
	return map[string]any{
		"files":            cb.builtinFiles(),
		"source":           cb.builtinSource(),
		"pending":          cb.builtinPending(),
		"symbols":          cb.builtinSymbols(),
		"get_symbol":       cb.symbolBuiltin("get_symbol", 0, func(s *Symbol, _ []string) (object.Object, error) { return symbolObject(s), nil }),
		"usages":           cb.builtinEdges("usages", (*Symbol).Usages),
		"dependencies":     cb.builtinEdges("dependencies", (*Symbol).Dependencies),
		"rename":           cb.symbolBuiltin("rename", 1, func(s *Symbol, a []string) (object.Object, error) { return object.Nil, s.Rename(a[0]) }),
		"remove":           cb.symbolBuiltin("remove", 0, func(s *Symbol, _ []string) (object.Object, error) { return object.Nil, s.Remove() }),
		"edit":             cb.symbolBuiltin("edit", 1, func(s *Symbol, a []string) (object.Object, error) { return object.Nil, s.Edit(a[0]) }),
		"insert_before":    cb.symbolBuiltin("insert_before", 1, func(s *Symbol, a []string) (object.Object, error) { return object.Nil, s.InsertBefore(a[0]) }),
		"insert_after":     cb.symbolBuiltin("insert_after", 1, func(s *Symbol, a []string) (object.Object, error) { return object.Nil, s.InsertAfter(a[0]) }),
		"set_type":         cb.symbolBuiltin("set_type", 1, func(s *Symbol, a []string) (object.Object, error) { return object.Nil, s.SetType(a[0]) }),
		"set_return_type":  cb.symbolBuiltin("set_return_type", 1, func(s *Symbol, a []string) (object.Object, error) { return object.Nil, s.SetReturnType(a[0]) }),
		"move":             cb.builtinMove(),
		"create_file":      cb.builtinCreateFile(),
		"edit_file":        cb.builtinEditFile(),
		"add_import":       cb.builtinAddImport(),
		"reduce_condition": cb.builtinReduceCondition(),
		"commit":           cb.builtinCommit(),
		"reset":            cb.builtinReset(),
		"diagnostics":      cb.builtinDiagnostics(),
	}
}

// stringArgs checks that args are exactly n strings.
func stringArgs(name string, args []object.Object, n int) ([]string, object.Object) {
	if len(args) != n {
		return nil, object.NewArgsError(name, n, len(args))
	}
	out := make([]string, n)
	for i, a := range args {
		s, ok := a.(*object.String)
		if !ok {
			return nil, object.Errorf("%s: argument %d must be a string, got %s", name, i+1, a.Type())
		}
		out[i] = s.Value()
	}
	return out, nil
}

func stringList(values []string) object.Object {
	items := make([]object.Object, len(values))
	for i, v := range values {
		items[i] = object.NewString(v)
	}
	return object.NewList(items)
}

func symbolObject(s *Symbol) object.Object {
	if s == nil {
		return object.Nil
	}
	return object.NewMap(map[string]object.Object{
		"id":             object.NewInt(int64(s.ID())),
		"name":           object.NewString(s.Name()),
		"qualified_name": object.NewString(s.QualifiedName()),
		"kind":           object.NewString(s.Kind().String()),
		"path":           object.NewString(s.Path()),
		"exported":       object.NewBool(s.Exported()),
		"source":         object.NewString(s.Source()),
	})
}

func (cb *Codebase) edgeObject(e Edge) object.Object {
	sites := make([]object.Object, len(e.Sites))
	for i, s := range e.Sites {
		sites[i] = object.NewMap(map[string]object.Object{
			"path":  object.NewString(s.File),
			"start": object.NewInt(int64(s.Start)),
			"end":   object.NewInt(int64(s.End)),
			"line":  object.NewInt(int64(cb.lineAt(s.File, s.Start))),
		})
	}
	m := map[string]object.Object{
		"from":  symbolObject(e.From),
		"to":    symbolObject(e.To),
		"kind":  object.NewString(e.Kind.String()),
		"sites": object.NewList(sites),
		"via":   object.Nil,
	}
	if e.Via != nil {
		m["via"] = symbolObject(e.Via)
	}
	return object.NewMap(m)
}

// files() → [path]
func (cb *Codebase) builtinFiles() *object.Builtin {
	return object.NewBuiltin("files", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 0 {
			return object.NewArgsError("files", 0, len(args))
		}
		return stringList(cb.Files())
	})
}

// source(path) → committed content
func (cb *Codebase) builtinSource() *object.Builtin {
	return object.NewBuiltin("source", func(ctx context.Context, args ...object.Object) object.Object {
		a, errObj := stringArgs("source", args, 1)
		if errObj != nil {
			return errObj
		}
		f, err := cb.GetFile(a[0])
		if err != nil {
			return object.Errorf("source: %v", err)
		}
		return object.NewString(f.Source())
	})
}

// pending(path) → content after commit
func (cb *Codebase) builtinPending() *object.Builtin {
	return object.NewBuiltin("pending", func(ctx context.Context, args ...object.Object) object.Object {
		a, errObj := stringArgs("pending", args, 1)
		if errObj != nil {
			return errObj
		}
		src, err := cb.PendingSource(a[0])
		if err != nil {
			return object.Errorf("pending: %v", err)
		}
		return object.NewString(src)
	})
}

// symbols() or symbols(path) → [symbol]
func (cb *Codebase) builtinSymbols() *object.Builtin {
	return object.NewBuiltin("symbols", func(ctx context.Context, args ...object.Object) object.Object {
		var syms []*Symbol
		switch len(args) {
		case 0:
			syms = cb.Symbols()
		case 1:
			a, errObj := stringArgs("symbols", args, 1)
			if errObj != nil {
				return errObj
			}
			f, err := cb.GetFile(a[0])
			if err != nil {
				return object.Errorf("symbols: %v", err)
			}
			syms = f.Symbols()
		default:
			return object.NewArgsError("symbols", 1, len(args))
		}
		items := make([]object.Object, len(syms))
		for i, s := range syms {
			items[i] = symbolObject(s)
		}
		return object.NewList(items)
	})
}

// symbolBuiltin builds name(path, symbol, extra...) where extra holds n
// string arguments passed to fn.
func (cb *Codebase) symbolBuiltin(name string, n int, fn func(*Symbol, []string) (object.Object, error)) *object.Builtin {
	return object.NewBuiltin(name, func(ctx context.Context, args ...object.Object) object.Object {
		a, errObj := stringArgs(name, args, n+2)
		if errObj != nil {
			return errObj
		}
		sym, err := cb.GetSymbol(a[0], a[1])
		if err != nil {
			return object.Errorf("%s: %v", name, err)
		}
		out, err := fn(sym, a[2:])
		if err != nil {
			return object.Errorf("%s: %v", name, err)
		}
		return out
	})
}

// usages(path, symbol[, kinds]) → [edge]; kinds is "direct,indirect" or "all".
func (cb *Codebase) builtinEdges(name string, fn func(*Symbol, EdgeKind) []Edge) *object.Builtin {
	return object.NewBuiltin(name, func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) == 2 {
			args = append(args, object.NewString("direct"))
		}
		a, errObj := stringArgs(name, args, 3)
		if errObj != nil {
			return errObj
		}
		mask, err := graph.ParseEdgeKinds(a[2])
		if err != nil {
			return object.Errorf("%s: %v", name, err)
		}
		sym, err := cb.GetSymbol(a[0], a[1])
		if err != nil {
			return object.Errorf("%s: %v", name, err)
		}
		edges := fn(sym, mask)
		items := make([]object.Object, len(edges))
		for i, e := range edges {
			items[i] = cb.edgeObject(e)
		}
		return object.NewList(items)
	})
}

// move(path, symbol, dest[, {include_deps: bool, strategy: "back-edge"}]) → result
func (cb *Codebase) builtinMove() *object.Builtin {
	return object.NewBuiltin("move", func(ctx context.Context, args ...object.Object) object.Object {
		var opts MoveOptions
		if len(args) == 4 {
			m, ok := args[3].(*object.Map)
			if !ok {
				return object.Errorf("move: options must be a map, got %s", args[3].Type())
			}
			for k, v := range m.Value() {
				switch k {
				case "include_deps":
					b, ok := v.(*object.Bool)
					if !ok {
						return object.Errorf("move: include_deps must be a bool")
					}
					opts.IncludeDependencies = b.Value()
				case "strategy":
					s, ok := v.(*object.String)
					if !ok {
						return object.Errorf("move: strategy must be a string")
					}
					strategy, err := ParseStrategy(s.Value())
					if err != nil {
						return object.Errorf("move: %v", err)
					}
					opts.Strategy = strategy
				default:
					return object.Errorf("move: unknown option %q", k)
				}
			}
			args = args[:3]
		}
		a, errObj := stringArgs("move", args, 3)
		if errObj != nil {
			return errObj
		}
		sym, err := cb.GetSymbol(a[0], a[1])
		if err != nil {
			return object.Errorf("move: %v", err)
		}
		res, err := cb.MoveSymbol(sym, a[2], opts)
		if err != nil {
			return object.Errorf("move: %v", err)
		}
		return object.NewMap(map[string]object.Object{
			"moved":        stringList(res.Moved),
			"origin":       object.NewString(res.Origin),
			"dest":         object.NewString(res.Dest),
			"created":      object.NewBool(res.Created),
			"origin_empty": object.NewBool(res.OriginEmpty),
			"touched":      stringList(res.Touched),
		})
	})
}

// create_file(path)
func (cb *Codebase) builtinCreateFile() *object.Builtin {
	return object.NewBuiltin("create_file", func(ctx context.Context, args ...object.Object) object.Object {
		a, errObj := stringArgs("create_file", args, 1)
		if errObj != nil {
			return errObj
		}
		if _, err := cb.CreateFile(a[0]); err != nil {
			return object.Errorf("create_file: %v", err)
		}
		return object.Nil
	})
}

// edit_file(path, text) replaces the whole file.
func (cb *Codebase) builtinEditFile() *object.Builtin {
	return object.NewBuiltin("edit_file", func(ctx context.Context, args ...object.Object) object.Object {
		a, errObj := stringArgs("edit_file", args, 2)
		if errObj != nil {
			return errObj
		}
		f, err := cb.GetFile(a[0])
		if err == nil {
			err = f.Edit(a[1])
		}
		if err != nil {
			return object.Errorf("edit_file: %v", err)
		}
		return object.Nil
	})
}

// add_import(path, module, name, alias); name "" imports the module.
func (cb *Codebase) builtinAddImport() *object.Builtin {
	return object.NewBuiltin("add_import", func(ctx context.Context, args ...object.Object) object.Object {
		a, errObj := stringArgs("add_import", args, 4)
		if errObj != nil {
			return errObj
		}
		f, err := cb.GetFile(a[0])
		if err == nil {
			err = f.AddImport(a[1], a[2], a[3])
		}
		if err != nil {
			return object.Errorf("add_import: %v", err)
		}
		return object.Nil
	})
}

// reduce_condition(path, start, end, value) reduces the conditional
// spanning [start, end).
func (cb *Codebase) builtinReduceCondition() *object.Builtin {
	return object.NewBuiltin("reduce_condition", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 4 {
			return object.NewArgsError("reduce_condition", 4, len(args))
		}
		p, ok := args[0].(*object.String)
		start, ok1 := args[1].(*object.Int)
		end, ok2 := args[2].(*object.Int)
		value, ok3 := args[3].(*object.Bool)
		if !ok || !ok1 || !ok2 || !ok3 {
			return object.Errorf("reduce_condition: expected (string, int, int, bool)")
		}
		f, err := cb.GetFile(p.Value())
		if err != nil {
			return object.Errorf("reduce_condition: %v", err)
		}
		n, err := f.NodeAt(int(start.Value()), int(end.Value()))
		if err == nil {
			err = n.ReduceCondition(value.Value())
		}
		if err != nil {
			return object.Errorf("reduce_condition: %v", err)
		}
		return object.Nil
	})
}

// commit() → {id, files: {path: status}}
func (cb *Codebase) builtinCommit() *object.Builtin {
	return object.NewBuiltin("commit", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 0 {
			return object.NewArgsError("commit", 0, len(args))
		}
		res, err := cb.Commit(ctx)
		if err != nil {
			return object.Errorf("commit: %v", err)
		}
		return object.NewMap(map[string]object.Object{
			"id":    object.NewString(res.ID),
			"files": fileResults(res.Files),
		})
	})
}

// reset() → {path: status}
func (cb *Codebase) builtinReset() *object.Builtin {
	return object.NewBuiltin("reset", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 0 {
			return object.NewArgsError("reset", 0, len(args))
		}
		return fileResults(cb.Reset().Files)
	})
}

func fileResults(files []FileResult) object.Object {
	m := make(map[string]object.Object, len(files))
	for _, f := range files {
		m[f.Path] = object.NewString(f.Status.String())
	}
	return object.NewMap(m)
}

// diagnostics() → [{path, kind, message, start, end}]
func (cb *Codebase) builtinDiagnostics() *object.Builtin {
	return object.NewBuiltin("diagnostics", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 0 {
			return object.NewArgsError("diagnostics", 0, len(args))
		}
		diags := cb.Diagnostics()
		items := make([]object.Object, len(diags))
		for i, d := range diags {
			items[i] = object.NewMap(map[string]object.Object{
				"path":    object.NewString(d.Path),
				"kind":    object.NewString(d.Kind.String()),
				"name":    object.NewString(d.Name),
				"message": object.NewString(d.Message),
				"start":   object.NewInt(int64(d.Span.Start)),
				"end":     object.NewInt(int64(d.Span.End)),
			})
		}
		return object.NewList(items)
	})
}
