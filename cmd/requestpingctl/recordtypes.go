package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/requestping/requestping/internal/app"
)

func newRecordTypesCmd(c *cli) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "record-types",
		Short: "Print the record types requesters can choose from",
		Long: `Prints the record type choice list from the configured registry.
With REGISTRY_SOURCE=directory the directory is fetched live; no snapshot
is read from or written to Redis.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := app.NewRegistry(c.cfg, nil, c.logger, nil)
			options := reg.ListRecordTypes(cmd.Context())

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(options)
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "VALUE\tLABEL\tOFFICE")
			for _, o := range options {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", o.Value, o.Label, o.Office)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}
