package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"medintake/internal/api"
	"medintake/internal/review"
)

func newReviewCommand(ctx *commandContext) *cobra.Command {
	reviewCmd := &cobra.Command{
		Use:   "review",
		Short: "List review cases and apply admin decisions",
	}

	reviewCmd.AddCommand(newReviewListCommand(ctx))
	reviewCmd.AddCommand(newReviewDecideCommand(ctx))
	reviewCmd.AddCommand(newReviewBulkApproveCommand(ctx))

	return reviewCmd
}

func newReviewListCommand(ctx *commandContext) *cobra.Command {
	var sessionRef string
	var category string
	var priority string
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List files awaiting an admin decision",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(func(service *api.Service) error {
				cases, err := service.ListReviewCases(cmd.Context(), review.Filter{
					SessionRef: sessionRef,
					Category:   category,
					Priority:   priority,
					Limit:      limit,
				})
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, cases)
				}
				out := cmd.OutOrStdout()
				if len(cases) == 0 {
					fmt.Fprintln(out, "Review queue is empty")
					return nil
				}
				rows := make([][]string, 0, len(cases))
				for _, c := range cases {
					best := ""
					if c.Best != nil {
						best = fmt.Sprintf("%s (%s)", c.Best.DisplayName, formatConfidence(c.Best.Confidence))
					}
					rows = append(rows, []string{
						fmt.Sprintf("%d", c.FileID),
						c.OriginalName,
						c.Category,
						c.Priority,
						best,
						c.ErrorMessage,
					})
				}
				fmt.Fprintln(out, renderTable(out,
					[]string{"File ID", "File", "Category", "Priority", "Best Match", "Reason"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&sessionRef, "session", "s", "", "Limit to one session")
	cmd.Flags().StringVar(&category, "category", "", "Filter by category: parsing, matching, processing, other")
	cmd.Flags().StringVar(&priority, "priority", "", "Filter by priority: high, medium, low")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum cases to list")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of text")
	return cmd
}

func newReviewDecideCommand(ctx *commandContext) *cobra.Command {
	var patientID string
	var note string
	var decidedBy string
	var recordNumber string
	var secondaryNumber string
	var firstNames string
	var lastNames string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "decide <file-id> <kind>",
		Short: "Apply one decision to a review case",
		Long: "Apply one decision to a review case. Kinds: approve-match, reject-match,\n" +
			"manual-match (requires --patient), skip, retry, delete.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fileID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("file id %q is not a number", args[0])
			}
			req := api.DecisionRequest{
				FileID:    fileID,
				Kind:      args[1],
				PatientID: patientID,
				Note:      note,
				DecidedBy: decidedBy,
			}
			if recordNumber != "" || secondaryNumber != "" || firstNames != "" || lastNames != "" {
				req.NewPatient = &api.NewPatientData{
					RecordNumber:    recordNumber,
					SecondaryNumber: secondaryNumber,
					FirstNames:      firstNames,
					LastNames:       lastNames,
				}
			}
			return ctx.withService(func(service *api.Service) error {
				decision, err := service.ApplyDecision(cmd.Context(), req)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, decision)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "File %d: %s -> %s", decision.FileID, decision.Kind, decision.FileStatus)
				if decision.Message != "" {
					fmt.Fprintf(out, " (%s)", decision.Message)
				}
				fmt.Fprintln(out)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&patientID, "patient", "p", "", "Patient id for manual-match")
	cmd.Flags().StringVar(&note, "note", "", "Reviewer note recorded on the file")
	cmd.Flags().StringVar(&decidedBy, "by", "", "Reviewer identity")
	cmd.Flags().StringVar(&recordNumber, "record", "", "Record number for the new patient on reject-match")
	cmd.Flags().StringVar(&secondaryNumber, "secondary", "", "Secondary number for the new patient on reject-match")
	cmd.Flags().StringVar(&firstNames, "first-names", "", "Given names for the new patient on reject-match")
	cmd.Flags().StringVar(&lastNames, "last-names", "", "Surnames for the new patient on reject-match")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of text")
	return cmd
}

func newReviewBulkApproveCommand(ctx *commandContext) *cobra.Command {
	var threshold float64
	var decidedBy string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "bulk-approve <session>",
		Short: "Approve every ambiguous match at or above a confidence threshold",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(func(service *api.Service) error {
				result, err := service.BulkApprove(cmd.Context(), args[0], threshold, decidedBy)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, result)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Approved %d of %d eligible case(s) at threshold %.2f\n",
					result.Approved, result.Eligible, result.Threshold)
				for _, item := range result.Items {
					if item.Error != "" {
						fmt.Fprintf(out, "  failed: %s: %s\n", item.OriginalName, item.Error)
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().Float64VarP(&threshold, "threshold", "t", 0.9, "Minimum best-match confidence to approve")
	cmd.Flags().StringVar(&decidedBy, "by", "", "Reviewer identity")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of text")
	return cmd
}
