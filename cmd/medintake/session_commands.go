package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"medintake/internal/api"
)

func newSessionCommand(ctx *commandContext) *cobra.Command {
	sessionCmd := &cobra.Command{
		Use:   "session",
		Short: "Create and run intake sessions",
	}

	sessionCmd.AddCommand(newSessionCreateCommand(ctx))
	sessionCmd.AddCommand(newSessionUploadCommand(ctx))
	sessionCmd.AddCommand(newSessionProcessCommand(ctx))
	sessionCmd.AddCommand(newSessionStatusCommand(ctx))
	sessionCmd.AddCommand(newSessionListCommand(ctx))

	return sessionCmd
}

func newSessionCreateCommand(ctx *commandContext) *cobra.Command {
	var mode string
	var createdBy string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "create [label]",
		Short: "Create a new intake session",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			label := ""
			if len(args) > 0 {
				label = args[0]
			}
			return ctx.withService(func(service *api.Service) error {
				session, err := service.CreateSession(cmd.Context(), label, mode, createdBy)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, session)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created session %s (mode %s)\n", session.ID, session.Mode)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&mode, "mode", "m", "", "Session mode: archive or index (default archive)")
	cmd.Flags().StringVar(&createdBy, "by", "", "Operator creating the session")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of text")
	return cmd
}

func newSessionUploadCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "upload <session> <file>...",
		Short: "Stage files into a session",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(func(service *api.Service) error {
				report, err := service.UploadFiles(cmd.Context(), args[0], args[1:])
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, report)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Staged %d file(s), rejected %d\n", report.Staged, report.Rejected)
				if report.Staged > 0 {
					fmt.Fprintf(out, "Parse success rate %.0f%%", report.ParseSuccessRate*100)
					if report.ParseFailures > 0 {
						fmt.Fprintf(out, " (%d filename(s) need review)", report.ParseFailures)
					}
					fmt.Fprintln(out)
				}
				rows := make([][]string, 0, len(report.Files))
				for _, file := range report.Files {
					rows = append(rows, []string{
						file.OriginalName,
						uploadOutcomeLabel(file),
					})
				}
				fmt.Fprintln(out, renderTable(out, []string{"File", "Outcome"}, rows, []columnAlignment{alignLeft, alignLeft}))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of text")
	return cmd
}

func uploadOutcomeLabel(file api.UploadFileView) string {
	switch {
	case file.Error != "":
		return "rejected: " + file.Error
	case file.ParseError != "":
		return "staged, filename needs review: " + file.ParseError
	case file.Duplicate:
		return "staged, duplicate content"
	default:
		return "staged"
	}
}

func newSessionProcessCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "process <session>",
		Short: "Run a session through the pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(func(service *api.Service) error {
				report, err := service.ProcessSession(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, report)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Session %s finished %s in %.1fs\n", report.SessionID, report.Status, report.DurationSeconds)
				fmt.Fprintf(out, "  completed %d, review %d, failed %d, duplicates %d (of %d)\n",
					report.Counts.Completed, report.Counts.Review, report.Counts.Failed,
					report.Counts.Duplicates, report.Counts.Total)
				for _, failure := range report.Failures {
					fmt.Fprintf(out, "  failed: %s: %s\n", failure.Name, failure.Reason)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of text")
	return cmd
}

func newSessionStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status <session>",
		Short: "Show a session and its files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(func(service *api.Service) error {
				status, err := service.SessionStatus(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, status)
				}
				out := cmd.OutOrStdout()
				session := status.Session
				fmt.Fprintf(out, "Session %s (%s) status %s\n", session.ID, session.Label, session.Status)
				fmt.Fprintf(out, "  completed %d, review %d, failed %d, pending %d (of %d)\n",
					session.Counts.Completed, session.Counts.Review, session.Counts.Failed,
					session.Counts.Pending, session.Counts.Total)
				if len(status.Files) == 0 {
					fmt.Fprintln(out, "No files staged")
					return nil
				}
				rows := make([][]string, 0, len(status.Files))
				for _, file := range status.Files {
					rows = append(rows, []string{
						fmt.Sprintf("%d", file.ID),
						file.OriginalName,
						formatBytes(file.SizeBytes),
						file.Status,
						file.MatchStatus,
						formatConfidence(file.MatchConfidence),
						fileNoteLabel(file),
					})
				}
				fmt.Fprintln(out, renderTable(out,
					[]string{"ID", "File", "Size", "Status", "Match", "Confidence", "Note"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of text")
	return cmd
}

func fileNoteLabel(file api.FileView) string {
	switch {
	case file.NeedsReview:
		return "review: " + file.ReviewCategory
	case file.DuplicateOf != "":
		return "duplicate"
	case file.ErrorMessage != "":
		return file.ErrorMessage
	default:
		return ""
	}
}

func newSessionListCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(func(service *api.Service) error {
				sessions, err := service.ListSessions(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, sessions)
				}
				out := cmd.OutOrStdout()
				if len(sessions) == 0 {
					fmt.Fprintln(out, "No sessions")
					return nil
				}
				rows := make([][]string, 0, len(sessions))
				for _, session := range sessions {
					rows = append(rows, []string{
						session.ID,
						session.Label,
						session.Status,
						fmt.Sprintf("%d/%d", session.Counts.Completed, session.Counts.Total),
						fmt.Sprintf("%d", session.Counts.Review),
						strings.TrimSpace(session.CreatedAt),
					})
				}
				fmt.Fprintln(out, renderTable(out,
					[]string{"ID", "Label", "Status", "Completed", "Review", "Created"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum sessions to list")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of text")
	return cmd
}
