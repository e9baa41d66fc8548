package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"medintake/internal/api"
)

func newPatientCommand(ctx *commandContext) *cobra.Command {
	patientCmd := &cobra.Command{
		Use:   "patient",
		Short: "Look up patients in the identity registry",
	}

	patientCmd.AddCommand(newPatientSearchCommand(ctx))

	return patientCmd
}

func newPatientSearchCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "search <term>",
		Short: "Search patients by name or record number",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(func(service *api.Service) error {
				patients, err := service.SearchPatients(cmd.Context(), args[0], limit)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, patients)
				}
				out := cmd.OutOrStdout()
				if len(patients) == 0 {
					fmt.Fprintln(out, "No patients matched")
					return nil
				}
				rows := make([][]string, 0, len(patients))
				for _, patient := range patients {
					rows = append(rows, []string{
						patient.ID,
						patient.RecordNumber,
						patient.FullName,
						yesNo(patient.Provisional),
					})
				}
				fmt.Fprintln(out, renderTable(out,
					[]string{"ID", "Record", "Name", "Provisional"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum patients to list")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of text")
	return cmd
}
