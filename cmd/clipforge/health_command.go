package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"clipforge/internal/api"
)

func newHealthCommand(ctx *commandContext) *cobra.Command {
	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "Job health monitor controls",
	}

	var asJSON bool
	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run a health sweep now and print what it did",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				report, err := client.Sweep(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, report)
				}
				fmt.Fprint(cmd.OutOrStdout(), renderSweepReport(report))
				return nil
			})
		},
	}
	addJSONFlag(sweepCmd, &asJSON)
	healthCmd.AddCommand(sweepCmd)
	return healthCmd
}
