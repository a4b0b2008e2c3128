package sculpt

import (
	"log/slog"

	"github.com/jward/sculpt/internal/config"
	"github.com/jward/sculpt/internal/storage"
)

// settings collects Option values before Open applies them over the
// repository config.
type settings struct {
	cfg       *config.Config
	backend   storage.Backend
	log       *slog.Logger
	languages []string
	indexPath string
	maxHops   int
	workers   int
	roots     []string
}

// Option configures Open.
type Option func(*settings)

// WithLanguages restricts which languages are indexed. Names are matched
// loosely: "py", "python", "ts", "tsx", "js".
func WithLanguages(languages ...string) Option {
	return func(s *settings) {
		s.languages = append([]string(nil), languages...)
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) { s.log = l }
}

// WithBackend reads and writes files through b instead of the local root.
// The repository config is not loaded from disk in that case.
func WithBackend(b storage.Backend) Option {
	return func(s *settings) { s.backend = b }
}

// WithConfig replaces the config otherwise loaded from .sculpt/config.yaml.
func WithConfig(cfg *config.Config) Option {
	return func(s *settings) { s.cfg = cfg }
}

// WithIndexDB persists the graph to a sqlite database at path, updated on
// every commit.
func WithIndexDB(path string) Option {
	return func(s *settings) { s.indexPath = path }
}

// WithMaxAliasHops bounds import alias chains.
func WithMaxAliasHops(n int) Option {
	return func(s *settings) { s.maxHops = n }
}

// WithParallelism caps the goroutines parsing files. Zero or less means
// one per CPU.
func WithParallelism(n int) Option {
	return func(s *settings) { s.workers = n }
}

// WithSourceRoots adds directories that Python absolute imports resolve
// against, relative to the repository root.
func WithSourceRoots(roots ...string) Option {
	return func(s *settings) { s.roots = append([]string(nil), roots...) }
}
