package sculpt

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jward/sculpt/internal/config"
	"github.com/jward/sculpt/internal/graph"
	"github.com/jward/sculpt/internal/logging"
	"github.com/jward/sculpt/internal/parse"
	"github.com/jward/sculpt/internal/resolve"
	"github.com/jward/sculpt/internal/storage"
	"github.com/jward/sculpt/internal/store"
	"github.com/jward/sculpt/internal/txn"
)

// fileState is the committed state of one file.
type fileState struct {
	path  string
	lang  parse.Language
	src   []byte
	hash  string
	tree  *parse.Tree
	index *resolve.FileIndex
}

// Codebase is an open repository: its parsed files, the usage graph, and
// the pending transaction. It is not safe for concurrent use; callers
// serialize transactions.
type Codebase struct {
	root    string
	backend storage.Backend
	cfg     *config.Config
	log     *slog.Logger
	langs   map[parse.Language]bool
	ignore  []string
	workers int

	graph    *graph.Graph
	resolver *resolve.Resolver
	txn      *txn.Manager
	files    map[string]*fileState
	created  map[string]parse.Language

	lists     map[listKey]*listEdit
	deletions map[string][]txn.Op
	// imports holds the import statements queued per file this transaction.
	imports map[string]map[string]bool

	store *store.Store

	// stale is set when a commit reached the backend but the graph could
	// not be rebuilt from it. Further commits are refused.
	stale error
}

// Open scans root, parses every supported file, and links the graph.
// Files that fail to parse cleanly are indexed best-effort and reported by
// Diagnostics.
func Open(ctx context.Context, root string, opts ...Option) (*Codebase, error) {
	var s settings
	for _, o := range opts {
		o(&s)
	}

	if s.backend == nil {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("sculpt: resolving %s: %w", root, err)
		}
		root = abs
	}
	cfg := s.cfg
	if cfg == nil {
		cfg = config.DefaultConfig()
		if s.backend == nil {
			loaded, err := config.Load(root)
			if err != nil {
				return nil, fmt.Errorf("sculpt: %w", err)
			}
			cfg = loaded
		}
	}

	cb := &Codebase{
		root:      root,
		backend:   s.backend,
		cfg:       cfg,
		log:       s.log,
		ignore:    cfg.Ignore,
		workers:   s.workers,
		graph:     graph.New(),
		txn:       txn.NewManager(),
		files:     make(map[string]*fileState),
		created:   make(map[string]parse.Language),
		lists:     make(map[listKey]*listEdit),
		deletions: make(map[string][]txn.Op),
		imports:   make(map[string]map[string]bool),
	}
	if cb.log == nil {
		cb.log = logging.NewDiscardLogger()
	}
	if cb.backend == nil {
		if cfg.Storage.URL != "" {
			cb.backend = storage.NewAFS(cfg.Storage.URL)
		} else {
			cb.backend = storage.NewLocal(root)
		}
	}
	if cb.workers <= 0 {
		cb.workers = cfg.Parallelism
	}
	if cb.workers <= 0 {
		cb.workers = runtime.NumCPU()
	}

	languages := s.languages
	if len(languages) == 0 {
		languages = cfg.Languages
	}
	if len(languages) > 0 {
		cb.langs = make(map[parse.Language]bool)
		for _, name := range languages {
			lang, ok := parse.ParseLanguage(name)
			if !ok {
				return nil, fmt.Errorf("sculpt: %w %q", parse.ErrUnsupportedLanguage, name)
			}
			cb.langs[lang] = true
		}
	}

	hops := s.maxHops
	if hops <= 0 {
		hops = cfg.MaxAliasHops
	}
	roots := s.roots
	if len(roots) == 0 {
		roots = cfg.Python.SourceRoots
	}
	cb.resolver = resolve.NewResolver(cb.graph,
		resolve.WithMaxHops(hops),
		resolve.WithSourceRoots(roots...),
		resolve.WithLogger(cb.log.With("component", "resolve")),
	)

	if err := cb.scan(ctx); err != nil {
		return nil, err
	}

	indexPath := s.indexPath
	if indexPath == "" && cfg.Index.Enabled && s.backend == nil {
		indexPath = cfg.IndexPath(root)
	}
	if indexPath != "" {
		if err := cb.openIndex(ctx, indexPath); err != nil {
			return nil, err
		}
	}
	return cb, nil
}

// Close releases the index database, if any.
func (cb *Codebase) Close() error {
	if cb.store == nil {
		return nil
	}
	return cb.store.Close()
}

// Root returns the repository root the codebase was opened at.
func (cb *Codebase) Root() string { return cb.root }

func (cb *Codebase) skipDir(name string) bool {
	if name == config.Dir {
		return true
	}
	for _, pat := range cb.ignore {
		if ok, _ := path.Match(pat, name); ok || pat == name {
			return true
		}
	}
	return false
}

func (cb *Codebase) ignored(p string) bool {
	for _, pat := range cb.ignore {
		if ok, _ := path.Match(pat, p); ok {
			return true
		}
		if ok, _ := path.Match(pat, path.Base(p)); ok {
			return true
		}
		if strings.HasPrefix(p, strings.TrimSuffix(pat, "/")+"/") {
			return true
		}
	}
	return false
}

func (cb *Codebase) language(p string) (parse.Language, bool) {
	lang, ok := parse.LanguageForFile(p)
	if !ok {
		return "", false
	}
	if cb.langs != nil && !cb.langs[lang] {
		return "", false
	}
	return lang, true
}

func (cb *Codebase) scan(ctx context.Context) error {
	start := time.Now()
	all, err := cb.backend.List(ctx, cb.skipDir)
	if err != nil {
		return fmt.Errorf("sculpt: %w", err)
	}
	var paths []string
	for _, p := range all {
		if _, ok := cb.language(p); ok && !cb.ignored(p) {
			paths = append(paths, p)
		}
	}

	loaded := make([]*fileState, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cb.workers)
	for i, p := range paths {
		g.Go(func() error {
			data, err := cb.backend.Read(gctx, p)
			if err != nil {
				return fmt.Errorf("sculpt: %w", err)
			}
			fs, err := cb.parseFile(gctx, p, data, nil, nil)
			if err != nil {
				return err
			}
			loaded[i] = fs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, fs := range loaded {
		cb.files[fs.path] = fs
		cb.resolver.AddFile(fs.index)
	}
	cb.resolver.LinkAll()

	st := cb.graph.Stats()
	cb.log.Info("indexed repository",
		"root", cb.root,
		"files", len(paths),
		"symbols", st.Nodes,
		"edges", st.Edges,
		"duration", time.Since(start))
	return nil
}

// parseFile parses data. When old is set the tree is reparsed
// incrementally with edits.
func (cb *Codebase) parseFile(ctx context.Context, p string, data []byte, old *parse.Tree, edits []parse.Edit) (*fileState, error) {
	lang, ok := cb.language(p)
	if !ok {
		return nil, fmt.Errorf("sculpt: %s: %w", p, parse.ErrUnsupportedLanguage)
	}
	var tree *parse.Tree
	var err error
	if old != nil && old.Language == lang {
		tree, err = parse.Reparse(ctx, old, data, edits)
	} else {
		tree, err = parse.Parse(ctx, data, lang)
	}
	if err != nil {
		return nil, fmt.Errorf("sculpt: %s: %w", p, err)
	}
	if tree.HasErrors() {
		cb.log.Debug("parsed with errors", "path", p, "regions", len(tree.ErrorRanges()))
	}
	return &fileState{
		path:  p,
		lang:  lang,
		src:   data,
		hash:  storage.Hash(data),
		tree:  tree,
		index: resolve.Extract(tree, p),
	}, nil
}

// Files returns the committed file paths, sorted.
func (cb *Codebase) Files() []string {
	out := make([]string, 0, len(cb.files))
	for p := range cb.files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// GetFile returns the file at path, including files created in the
// pending transaction.
func (cb *Codebase) GetFile(p string) (*File, error) {
	p = cleanPath(p)
	if _, ok := cb.files[p]; ok {
		return cb.file(p), nil
	}
	if _, ok := cb.created[p]; ok {
		return cb.file(p), nil
	}
	return nil, fmt.Errorf("sculpt: file %s: %w", p, ErrNotFound)
}

// CreateFile queues the creation of an empty file. Content added to it is
// written on Commit.
func (cb *Codebase) CreateFile(p string) (*File, error) {
	p = cleanPath(p)
	lang, err := cb.validPath(p)
	if err != nil {
		return nil, err
	}
	if _, ok := cb.files[p]; ok {
		return nil, fmt.Errorf("sculpt: %s: %w", p, ErrFileExists)
	}
	if _, ok := cb.created[p]; ok {
		return cb.file(p), nil
	}
	cb.txn.Create(p)
	cb.created[p] = lang
	cb.log.Debug("file created", "path", p)
	return cb.file(p), nil
}

// validPath checks that p can hold source in this codebase.
func (cb *Codebase) validPath(p string) (parse.Language, error) {
	if p == "" || p == "." || path.IsAbs(p) || p == ".." || strings.HasPrefix(p, "../") {
		return "", fmt.Errorf("sculpt: %q is outside the repository: %w", p, ErrInvalidDestination)
	}
	if cb.skipDir(strings.SplitN(p, "/", 2)[0]) || cb.ignored(p) {
		return "", fmt.Errorf("sculpt: %s is ignored: %w", p, ErrInvalidDestination)
	}
	lang, ok := cb.language(p)
	if !ok {
		return "", fmt.Errorf("sculpt: %s has no indexed language: %w", p, ErrInvalidDestination)
	}
	return lang, nil
}

func cleanPath(p string) string {
	p = filepath.ToSlash(p)
	if p == "" {
		return ""
	}
	return path.Clean(strings.TrimPrefix(p, "./"))
}

// Diagnostics returns parse errors and unresolved imports, by path.
func (cb *Codebase) Diagnostics() []Diagnostic {
	var out []Diagnostic
	for _, p := range cb.Files() {
		for _, r := range cb.files[p].index.Errors {
			out = append(out, Diagnostic{
				Path:    p,
				Span:    r,
				Kind:    KindParseError,
				Message: ErrParse.Error(),
			})
		}
	}
	for _, d := range cb.resolver.Diagnostics() {
		out = append(out, Diagnostic{
			Path:    d.Path,
			Span:    d.Span,
			Name:    d.Name,
			Kind:    KindOf(d.Err),
			Message: d.Err.Error(),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].Span.Start < out[j].Span.Start
	})
	return out
}

// content returns the committed bytes of p. Files created in the pending
// transaction are empty.
func (cb *Codebase) content(p string) ([]byte, parse.Language, bool) {
	if fs, ok := cb.files[p]; ok {
		return fs.src, fs.lang, true
	}
	if lang, ok := cb.created[p]; ok {
		return nil, lang, true
	}
	return nil, "", false
}

// PendingSource returns the content p will have after Commit.
func (cb *Codebase) PendingSource(p string) (string, error) {
	p = cleanPath(p)
	src, _, ok := cb.content(p)
	if !ok {
		return "", fmt.Errorf("sculpt: file %s: %w", p, ErrNotFound)
	}
	pending, ok := cb.txn.Pending(p)
	if !ok {
		return string(src), nil
	}
	if pending.Removed {
		return "", nil
	}
	out, err := txn.Apply(src, pending.Ops())
	if err != nil {
		return "", fmt.Errorf("sculpt: %w", err)
	}
	return string(out), nil
}

// Dirty returns the paths with pending edits.
func (cb *Codebase) Dirty() []string {
	return cb.txn.Dirty()
}

// Stats summarizes the graph.
func (cb *Codebase) Stats() graph.Stats {
	return cb.graph.Stats()
}
