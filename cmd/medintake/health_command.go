package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"medintake/internal/api"
)

func newHealthCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Summarize registry state across all sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(func(service *api.Service) error {
				health, err := service.Health(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, health)
				}
				out := cmd.OutOrStdout()
				rows := [][]string{
					{"Files", fmt.Sprintf("%d", health.TotalFiles)},
					{"Pending", fmt.Sprintf("%d", health.Pending)},
					{"Processing", fmt.Sprintf("%d", health.Processing)},
					{"Review", fmt.Sprintf("%d", health.Review)},
					{"Completed", fmt.Sprintf("%d", health.Completed)},
					{"Failed", fmt.Sprintf("%d", health.Failed)},
					{"Patients", fmt.Sprintf("%d", health.Patients)},
					{"Documents", fmt.Sprintf("%d", health.Documents)},
				}
				fmt.Fprintln(out, renderTable(out, []string{"Metric", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of text")
	return cmd
}
