package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jward/sculpt"
	"github.com/jward/sculpt/internal/config"
	"github.com/jward/sculpt/internal/logging"
)

// cli holds the flag values shared by every command.
type cli struct {
	format  string
	root    string
	verbose int
	quiet   bool

	// errorHandled is set by fail so main doesn't double-print.
	errorHandled bool
}

func main() {
	c := &cli{}
	if err := c.rootCmd().Execute(); err != nil {
		if !c.errorHandled {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "sculpt",
		Short:         "Index and refactor Python and TypeScript repositories",
		Long:          "Sculpt builds a usage graph of Python, TypeScript and JavaScript sources with tree-sitter and applies refactorings such as moving and renaming symbols.",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return validateFormat(c.format)
		},
		// No Run; prints help by default.
	}
	root.PersistentFlags().StringVar(&c.format, "format", "json", "output format: json|text")
	root.PersistentFlags().StringVar(&c.root, "root", "", "repository root (default: nearest ancestor holding .git)")
	root.PersistentFlags().CountVarP(&c.verbose, "verbose", "v", "log more (repeat for debug)")
	root.PersistentFlags().BoolVarP(&c.quiet, "quiet", "q", false, "log nothing")

	root.AddCommand(c.indexCmd())
	root.AddCommand(c.queryCmd())
	root.AddCommand(c.moveCmd())
	root.AddCommand(c.renameCmd())
	root.AddCommand(c.runCmd())
	root.AddCommand(c.exportCmd())
	root.AddCommand(c.configCmd())
	root.AddCommand(c.diagnosticsCmd())
	return root
}

func (c *cli) indexCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "index [root]",
		Short: "Index a repository",
		Long:  "Parses every supported file under root, links the usage graph and writes it to the sqlite index configured in .sculpt/config.yaml.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			root, err := c.repoRoot(args)
			if err != nil {
				return c.fail(cmd, "index", err)
			}
			cfg, err := config.Load(root)
			if err != nil {
				return c.fail(cmd, "index", err)
			}
			dbPath := cfg.IndexPath(root)

			// --force rebuilds the index from scratch.
			if force {
				if err := os.Remove(dbPath); err != nil && !os.IsNotExist(err) {
					return c.fail(cmd, "index", fmt.Errorf("removing database for --force: %w", err))
				}
			}

			cb, err := c.openWith(cmd, root, cfg, sculpt.WithIndexDB(dbPath))
			if err != nil {
				return c.fail(cmd, "index", err)
			}
			defer cb.Close()

			stats := cb.Stats()
			return c.output(cmd, CLIResult{
				Command: "index",
				Results: CLIIndexSummary{
					Root:        root,
					Database:    dbPath,
					Files:       len(cb.Files()),
					Nodes:       stats.Nodes,
					Edges:       stats.Edges,
					Diagnostics: len(cb.Diagnostics()),
					DurationMS:  time.Since(start).Milliseconds(),
				},
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "delete the database and reindex from scratch")
	return cmd
}

func (c *cli) diagnosticsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diagnostics",
		Short: "List parse errors and unresolved imports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cb, err := c.open(cmd)
			if err != nil {
				return c.fail(cmd, "diagnostics", err)
			}
			defer cb.Close()

			diags := cb.Diagnostics()
			out := make([]CLIDiagnostic, 0, len(diags))
			for _, d := range diags {
				loc := cb.Locate(d.Path, d.Span)
				out = append(out, CLIDiagnostic{
					File:    d.Path,
					Line:    loc.StartLine,
					Col:     loc.StartCol,
					Name:    d.Name,
					Kind:    d.Kind.String(),
					Message: d.Message,
				})
			}
			return c.output(cmd, CLIResult{Command: "diagnostics", Results: out})
		},
	}
}

// repoRoot returns the root to operate on: the positional argument if one
// is given, then --root, then the nearest .git ancestor of the working
// directory.
func (c *cli) repoRoot(args []string) (string, error) {
	if len(args) > 0 {
		return resolveTargetDir(args[0])
	}
	if c.root != "" {
		return resolveTargetDir(c.root)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting cwd: %w", err)
	}
	return findRepoRoot(cwd), nil
}

// open loads the repository config and opens the codebase with a logger
// built from it.
func (c *cli) open(cmd *cobra.Command) (*sculpt.Codebase, error) {
	root, err := c.repoRoot(nil)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}
	return c.openWith(cmd, root, cfg)
}

func (c *cli) openWith(cmd *cobra.Command, root string, cfg *config.Config, opts ...sculpt.Option) (*sculpt.Codebase, error) {
	level := logging.LevelFromString(cfg.Logging.Level)
	if c.verbose > 0 || c.quiet {
		level = logging.LevelFromVerbosity(c.verbose, c.quiet)
	}
	log := logging.New(cmd.ErrOrStderr(), logging.Options{
		Level:     level,
		Format:    logging.FormatFromString(cfg.Logging.Format),
		Component: "cli",
	})
	opts = append([]sculpt.Option{sculpt.WithConfig(cfg), sculpt.WithLogger(log)}, opts...)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return sculpt.Open(ctx, root, opts...)
}

// resolveTargetDir returns the absolute path of an existing directory.
func resolveTargetDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving path %q: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("directory not found: %s", abs)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("not a directory: %s", abs)
	}
	return abs, nil
}

// findRepoRoot walks up from startDir looking for a .git directory.
// Returns the directory containing .git, or startDir if not found.
func findRepoRoot(startDir string) string {
	dir := startDir
	for {
		if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return startDir
		}
		dir = parent
	}
}

// repoPath converts a file argument to a slash-separated path relative to
// root. Relative arguments are taken from the working directory when it
// lies inside root, and from root otherwise.
func repoPath(root, file string) (string, error) {
	abs := file
	if !filepath.IsAbs(file) {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("getting cwd: %w", err)
		}
		abs = filepath.Join(cwd, file)
		if rel, err := filepath.Rel(root, cwd); err != nil || strings.HasPrefix(rel, "..") {
			abs = filepath.Join(root, file)
		}
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return "", fmt.Errorf("resolving file path %q: %w", file, err)
	}
	return filepath.ToSlash(rel), nil
}
