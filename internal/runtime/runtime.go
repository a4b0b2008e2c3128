// Package runtime embeds a Risor VM for codebase scripts. It provides
// syntax-tree host functions over parsed snippets and, with WithTrees, the
// repository's committed files; a logger; and read-only access to the
// persistent index. Callers add their own globals per run.
package runtime

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/importer"
	"github.com/risor-io/risor/object"

	"github.com/jward/sculpt/internal/logging"
	"github.com/jward/sculpt/internal/store"
)

// ScriptExt is the extension of importable script modules.
const ScriptExt = ".risor"

// Runtime runs Risor scripts.
type Runtime struct {
	store      *store.Store
	scriptsDir string
	fsys       fs.FS
	log        *slog.Logger
	trees      Trees
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*Runtime)

// WithRuntimeFS configures the Runtime to load scripts from an fs.FS
// instead of from disk. Also configures the Risor importer to use
// FSImporter for import statement resolution.
func WithRuntimeFS(fsys fs.FS) RuntimeOption {
	return func(r *Runtime) {
		r.fsys = fsys
	}
}

// WithStore exposes the index to scripts through db_query and friends.
func WithStore(s *store.Store) RuntimeOption {
	return func(r *Runtime) {
		r.store = s
	}
}

// WithTrees exposes committed syntax trees through the tree global.
func WithTrees(t Trees) RuntimeOption {
	return func(r *Runtime) {
		r.trees = t
	}
}

// WithLogger routes the log global to l.
func WithLogger(l *slog.Logger) RuntimeOption {
	return func(r *Runtime) {
		r.log = l
	}
}

// NewRuntime creates a Runtime loading relative script paths and imports
// from scriptsDir.
func NewRuntime(scriptsDir string, opts ...RuntimeOption) *Runtime {
	r := &Runtime{
		scriptsDir: scriptsDir,
		log:        logging.NewDiscardLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunScript loads and executes a Risor script with all standard globals
// plus any extra globals provided by the caller.
func (r *Runtime) RunScript(ctx context.Context, scriptPath string, extraGlobals map[string]any) error {
	src, err := r.LoadScript(scriptPath)
	if err != nil {
		return err
	}
	return r.eval(ctx, src, scriptPath, extraGlobals)
}

// RunSource executes Risor source code directly with all standard globals
// plus any extra globals.
func (r *Runtime) RunSource(ctx context.Context, source string, extraGlobals map[string]any) error {
	return r.eval(ctx, source, "<inline>", extraGlobals)
}

func (r *Runtime) eval(ctx context.Context, source, label string, extraGlobals map[string]any) error {
	globals := r.buildGlobals(label, extraGlobals)

	var opts []risor.Option
	for name, val := range globals {
		opts = append(opts, risor.WithGlobal(name, val))
	}

	// Wire importer so Risor import statements resolve correctly.
	if imp := r.buildImporter(globals); imp != nil {
		opts = append(opts, risor.WithImporter(imp))
	}

	r.log.Debug("running script", "script", label)
	if _, err := risor.Eval(ctx, source, opts...); err != nil {
		return fmt.Errorf("runtime: script %s: %w", label, err)
	}
	return nil
}

// buildImporter returns a Risor importer for the Runtime's script source,
// or nil if neither fs.FS nor scriptsDir is configured.
func (r *Runtime) buildImporter(globals map[string]any) importer.Importer {
	globalNames := make([]string, 0, len(globals))
	for name := range globals {
		globalNames = append(globalNames, name)
	}

	if r.fsys != nil {
		return importer.NewFSImporter(importer.FSImporterOptions{
			GlobalNames: globalNames,
			SourceFS:    r.fsys,
			Extensions:  []string{ScriptExt},
		})
	}
	if r.scriptsDir != "" {
		return importer.NewLocalImporter(importer.LocalImporterOptions{
			GlobalNames: globalNames,
			SourceDir:   r.scriptsDir,
			Extensions:  []string{ScriptExt},
		})
	}
	return nil
}

// LoadScript reads a script and returns its source code. With an fs.FS
// the path is relative to its root; otherwise relative paths are joined to
// scriptsDir.
func (r *Runtime) LoadScript(path string) (string, error) {
	if r.fsys != nil {
		fsPath := strings.TrimPrefix(filepath.ToSlash(path), "/")
		data, err := fs.ReadFile(r.fsys, fsPath)
		if err != nil {
			return "", fmt.Errorf("runtime: loading script %s from fs: %w", fsPath, err)
		}
		return string(data), nil
	}

	fullPath := path
	if !filepath.IsAbs(path) && r.scriptsDir != "" {
		fullPath = filepath.Join(r.scriptsDir, path)
	}

	data, err := os.ReadFile(fullPath)
	if err != nil {
		return "", fmt.Errorf("runtime: loading script %s: %w", fullPath, err)
	}
	return string(data), nil
}

// buildGlobals constructs the full set of globals exposed to scripts.
func (r *Runtime) buildGlobals(label string, extra map[string]any) map[string]any {
	// One tree index per run.
	ti := newTreeIndex(r.trees)
	globals := map[string]any{
		"parse_src":  makeParseSrcFn(ti),
		"node_text":  makeNodeTextFn(ti),
		"node_span":  makeNodeSpanFn(ti),
		"node_child": makeNodeChildFn(ti),
		"query":      makeQueryFn(ti),
		"log":        mustProxy(&scriptLog{log: r.log.With("script", label)}),
	}
	if r.trees != nil {
		globals["tree"] = makeTreeFn(ti)
	}

	if r.store != nil {
		globals["symbols_by_name"] = makeSymbolsByNameFn(r.store)
		globals["symbols_by_file"] = makeSymbolsByFileFn(r.store)
		globals["edges_to"] = makeEdgesToFn(r.store)
		globals["commits"] = makeCommitsFn(r.store)
		globals["db_query"] = makeDBQueryFn(r.store)
	}

	for k, v := range extra {
		globals[k] = v
	}
	return globals
}

func mustProxy(v any) object.Object {
	p, err := object.NewProxy(v)
	if err != nil {
		panic(fmt.Sprintf("runtime: proxy error: %v", err))
	}
	return p
}
