package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/requestping/requestping/internal/app"
)

func newResubmitCmd(c *cli) *cobra.Command {
	var batch int

	cmd := &cobra.Command{
		Use:   "resubmit",
		Short: "Run one resubmission sweep over pending and failed requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			if batch < 1 {
				return fmt.Errorf("--batch must be at least 1")
			}

			a, err := app.New(cmd.Context(), c.cfg, c.logger, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			worker := a.NewWorker()
			worker.SetBatchSize(batch)

			stats, err := worker.ProcessOnce(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "claimed=%d submitted=%d failed=%d skipped=%d\n",
				stats.Claimed, stats.Submitted, stats.Failed, stats.Skipped)
			return err
		},
	}

	cmd.Flags().IntVar(&batch, "batch", 20, "maximum requests to attempt")
	return cmd
}
