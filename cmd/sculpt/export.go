package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

func (c *cli) exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the usage graph",
	}
	cmd.AddCommand(c.exportSCIPCmd())
	return cmd
}

func (c *cli) exportSCIPCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "scip",
		Short: "Write the usage graph as a SCIP index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			const name = "export"
			cb, err := c.open(cmd)
			if err != nil {
				return c.fail(cmd, name, err)
			}
			defer cb.Close()

			path, err := filepath.Abs(out)
			if err != nil {
				return c.fail(cmd, name, fmt.Errorf("resolving output path %q: %w", out, err))
			}
			f, err := os.Create(path)
			if err != nil {
				return c.fail(cmd, name, fmt.Errorf("creating %s: %w", path, err))
			}
			if err := cb.ExportSCIP(f); err != nil {
				f.Close()
				return c.fail(cmd, name, err)
			}
			if err := f.Close(); err != nil {
				return c.fail(cmd, name, fmt.Errorf("closing %s: %w", path, err))
			}
			info, err := os.Stat(path)
			if err != nil {
				return c.fail(cmd, name, err)
			}
			return c.output(cmd, CLIResult{Command: name, Results: CLIExport{Format: "scip", Output: path, Bytes: info.Size()}})
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "index.scip", "output file")
	return cmd
}
