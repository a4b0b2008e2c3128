package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jward/sculpt/internal/config"
)

func (c *cli) configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage .sculpt/config.yaml",
	}
	cmd.AddCommand(c.configInitCmd())
	return cmd
}

func (c *cli) configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			const name = "config init"
			root, err := c.repoRoot(nil)
			if err != nil {
				return c.fail(cmd, name, err)
			}
			path := config.Path(root)
			if _, err := os.Stat(path); err == nil && !force {
				return c.fail(cmd, name, fmt.Errorf("%s already exists (use --force to overwrite)", path))
			}
			if err := config.DefaultConfig().Save(root); err != nil {
				return c.fail(cmd, name, err)
			}
			return c.output(cmd, CLIResult{Command: name, Results: CLIConfigInit{Path: path}})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config")
	return cmd
}
