package main

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/requestping/requestping/internal/app"
	"github.com/requestping/requestping/internal/config"
)

// cli carries state shared by subcommands once the root has loaded config.
type cli struct {
	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "requestpingctl",
		Short:         "Operator tools for RequestPing",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			c.cfg = cfg
			c.logger = newLogger(cmd.ErrOrStderr(), cfg.LogLevel)
			return nil
		},
	}

	root.AddCommand(
		newAPIKeyCmd(c),
		newRecordTypesCmd(c),
		newResubmitCmd(c),
		newMigrateCmd(c),
	)
	return root
}

// newLogger writes human-readable logs to w so stdout stays clean for
// command output.
func newLogger(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: app.ParseLogLevel(level)}))
}
