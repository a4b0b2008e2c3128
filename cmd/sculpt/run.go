package main

import (
	"github.com/spf13/cobra"
)

func (c *cli) runCmd() *cobra.Command {
	var commit bool
	cmd := &cobra.Command{
		Use:   "run <script.risor>",
		Short: "Run a Risor codemod against the repository",
		Long: "Runs a Risor script with the codebase exposed as globals. Relative paths are resolved under scripts.dir when it is configured. " +
			"Without --commit the edits the script leaves pending are printed and discarded.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			const name = "run"
			cb, err := c.open(cmd)
			if err != nil {
				return c.fail(cmd, name, err)
			}
			defer cb.Close()

			if err := cb.RunScript(cmd.Context(), args[0]); err != nil {
				cb.Reset()
				return c.fail(cmd, name, err)
			}
			change := CLIChange{Touched: cb.Dirty()}
			if err := c.finish(cmd, cb, &change, !commit); err != nil {
				return c.fail(cmd, name, err)
			}
			return c.output(cmd, CLIResult{Command: name, Results: change})
		},
	}
	cmd.Flags().BoolVar(&commit, "commit", false, "commit the edits the script leaves pending")
	return cmd
}
