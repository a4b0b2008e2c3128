package main

import (
	"github.com/spf13/cobra"

	"github.com/jward/sculpt"
)

func (c *cli) moveCmd() *cobra.Command {
	var (
		includeDeps bool
		strategy    string
		dryRun      bool
	)
	cmd := &cobra.Command{
		Use:   "move <file> <symbol> <dest>",
		Short: "Move a top-level symbol to another file",
		Long: "Moves a top-level declaration from file to dest, creating dest if needed, and repairs every importer. " +
			"With --strategy back-edge the origin re-exports the symbol instead of importers being rewritten.",
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			const name = "move"
			st, err := sculpt.ParseStrategy(strategy)
			if err != nil {
				return c.fail(cmd, name, err)
			}
			cb, sym, err := c.openSymbol(cmd, args[0], args[1])
			if err != nil {
				return c.fail(cmd, name, err)
			}
			defer cb.Close()
			dest, err := repoPath(cb.Root(), args[2])
			if err != nil {
				return c.fail(cmd, name, err)
			}

			res, err := cb.MoveSymbol(sym, dest, sculpt.MoveOptions{IncludeDependencies: includeDeps, Strategy: st})
			if err != nil {
				return c.fail(cmd, name, err)
			}
			change := CLIChange{
				Moved:       res.Moved,
				Origin:      res.Origin,
				Dest:        res.Dest,
				Created:     res.Created,
				OriginEmpty: res.OriginEmpty,
				Touched:     res.Touched,
			}
			if err := c.finish(cmd, cb, &change, dryRun); err != nil {
				return c.fail(cmd, name, err)
			}
			return c.output(cmd, CLIResult{Command: name, Results: change})
		},
	}
	cmd.Flags().BoolVar(&includeDeps, "include-deps", false, "move the origin declarations the symbol uses along with it")
	cmd.Flags().StringVar(&strategy, "strategy", "update-imports", "importer repair: update-imports|back-edge")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the resulting files without writing them")
	return cmd
}

func (c *cli) renameCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "rename <file> <symbol> <new-name>",
		Short: "Rename a symbol and every reference to it",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			const name = "rename"
			cb, sym, err := c.openSymbol(cmd, args[0], args[1])
			if err != nil {
				return c.fail(cmd, name, err)
			}
			defer cb.Close()
			if err := sym.Rename(args[2]); err != nil {
				return c.fail(cmd, name, err)
			}
			change := CLIChange{Touched: cb.Dirty()}
			if err := c.finish(cmd, cb, &change, dryRun); err != nil {
				return c.fail(cmd, name, err)
			}
			return c.output(cmd, CLIResult{Command: name, Results: change})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the resulting files without writing them")
	return cmd
}

// finish either commits the queued edits or, on a dry run, records the
// pending content of each dirty file and discards the queue.
func (c *cli) finish(cmd *cobra.Command, cb *sculpt.Codebase, change *CLIChange, dryRun bool) error {
	if change.Touched == nil {
		change.Touched = []string{}
	}
	if dryRun {
		change.DryRun = true
		change.Pending = make(map[string]string)
		for _, p := range cb.Dirty() {
			src, err := cb.PendingSource(p)
			if err != nil {
				return err
			}
			change.Pending[p] = src
		}
		cb.Reset()
		return nil
	}
	res, err := cb.Commit(cmd.Context())
	if err != nil {
		return err
	}
	change.CommitID = res.ID
	change.Files = fileResultsToCLI(res.Files)
	return nil
}

func fileResultsToCLI(files []sculpt.FileResult) []CLIFileResult {
	out := make([]CLIFileResult, len(files))
	for i, f := range files {
		out[i] = CLIFileResult{Path: f.Path, Status: f.Status.String()}
		if f.Err != nil {
			out[i].Error = f.Err.Error()
		}
	}
	return out
}
