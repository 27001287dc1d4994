package main

import (
	"github.com/spf13/cobra"

	"github.com/requestping/requestping/internal/migration"
)

func newMigrateCmd(c *cli) *cobra.Command {
	var down bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if down {
				return migration.Down(c.cfg.DatabaseURL, c.logger)
			}
			return migration.Up(c.cfg.DatabaseURL, c.logger)
		},
	}

	cmd.Flags().BoolVar(&down, "down", false, "roll back every migration instead")
	return cmd
}
