package api

import (
	"path/filepath"
	"time"

	"medintake/internal/filename"
	"medintake/internal/identity"
	"medintake/internal/pipeline"
	"medintake/internal/registry"
	"medintake/internal/review"
)

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

// FromSession converts a session and its file counts into a SessionView.
func FromSession(session *registry.Session, counts registry.SessionCounts) SessionView {
	return SessionView{
		ID:         session.ID,
		Label:      session.Label,
		Mode:       string(session.Mode),
		Status:     string(session.Status),
		CreatedBy:  session.CreatedBy,
		CreatedAt:  formatTime(session.CreatedAt),
		UpdatedAt:  formatTime(session.UpdatedAt),
		StartedAt:  formatTimePtr(session.StartedAt),
		FinishedAt: formatTimePtr(session.FinishedAt),
		Counts:     FromCounts(counts),
	}
}

// FromCounts converts registry file counts into their view form.
func FromCounts(counts registry.SessionCounts) SessionCountsView {
	return SessionCountsView{
		Total:      counts.Total,
		Pending:    counts.Pending,
		Processing: counts.Processing,
		Completed:  counts.Completed,
		Review:     counts.Review,
		Failed:     counts.Failed,
		Skipped:    counts.Skipped,
		Rejected:   counts.Rejected,
		Duplicates: counts.Duplicates,
	}
}

// FromFile converts one staged file into a FileView.
func FromFile(file *registry.FileState) FileView {
	return FileView{
		ID:              file.ID,
		SessionID:       file.SessionID,
		OriginalName:    file.OriginalName,
		SizeBytes:       file.SizeBytes,
		Status:          string(file.Status),
		MatchStatus:     string(file.MatchStatus),
		MatchConfidence: file.MatchConfidence,
		MatchTier:       file.MatchTier,
		PatientID:       file.PatientID,
		DocumentID:      file.DocumentID,
		DuplicateOf:     file.DuplicateOf,
		ErrorMessage:    file.ErrorMessage,
		NeedsReview:     file.ReviewRequired,
		ReviewCategory:  file.ReviewCategory,
		ReviewPriority:  file.ReviewPriority,
		DecidedBy:       file.DecidedBy,
		DecidedAt:       formatTimePtr(file.DecidedAt),
	}
}

// FromFiles converts a file slice, preserving order.
func FromFiles(files []*registry.FileState) []FileView {
	views := make([]FileView, 0, len(files))
	for _, file := range files {
		views = append(views, FromFile(file))
	}
	return views
}

// FromCandidate converts one scored match into its view form.
func FromCandidate(candidate identity.Candidate) CandidateView {
	return CandidateView{
		PatientID:    candidate.PatientID,
		DisplayName:  candidate.DisplayName,
		RecordNumber: candidate.RecordNumber,
		Similarity:   candidate.Similarity,
		Confidence:   candidate.Confidence,
		Tier:         string(candidate.Tier),
		Reasons:      candidate.Reasons,
	}
}

// FromCase converts one review case into a ReviewCaseView.
func FromCase(c review.Case) ReviewCaseView {
	view := ReviewCaseView{
		FileID:       c.FileID,
		SessionID:    c.SessionID,
		OriginalName: c.OriginalName,
		Category:     c.Category,
		Priority:     c.Priority,
		MatchStatus:  string(c.MatchStatus),
		Confidence:   c.Confidence,
		MatchTier:    c.MatchTier,
		ErrorMessage: c.ErrorMessage,
		FlaggedAt:    formatTime(c.FlaggedAt),
	}
	for _, candidate := range c.Candidates {
		view.Candidates = append(view.Candidates, FromCandidate(candidate))
	}
	if c.Best != nil {
		best := FromCandidate(*c.Best)
		view.Best = &best
	}
	return view
}

// FromCases converts a case slice, preserving queue order.
func FromCases(cases []review.Case) []ReviewCaseView {
	views := make([]ReviewCaseView, 0, len(cases))
	for _, c := range cases {
		views = append(views, FromCase(c))
	}
	return views
}

// FromPatient converts one patient into a PatientView.
func FromPatient(patient *registry.Patient) PatientView {
	return PatientView{
		ID:              patient.ID,
		RecordNumber:    patient.RecordNumber,
		SecondaryNumber: patient.SecondaryNumber,
		FullName:        patient.FullName,
		Provisional:     patient.Provisional,
		CreatedAt:       formatTime(patient.CreatedAt),
	}
}

func fromUploadResult(result *pipeline.UploadResult) UploadReport {
	report := UploadReport{
		SessionID:        result.Session.ID,
		Staged:           result.Staged,
		Rejected:         result.Rejected,
		ParseFailures:    result.Stats.Failed,
		ParseSuccessRate: result.Stats.SuccessRate,
		AvgConfidence:    result.Stats.AvgConfidence,
		TypeCounts:       fromTypeCounts(result.Stats.TypeCounts),
		Files:            make([]UploadFileView, 0, len(result.Outcomes)),
	}
	for _, outcome := range result.Outcomes {
		view := UploadFileView{
			Path:         outcome.Path,
			OriginalName: filepath.Base(outcome.Path),
			Parsed:       outcome.Parsed != nil,
			Duplicate:    outcome.Duplicate,
		}
		if outcome.File != nil {
			view.FileID = outcome.File.ID
		}
		if outcome.Failure != nil {
			view.ParseError = outcome.Failure.Reason
		}
		if outcome.Err != nil {
			view.Error = outcome.Err.Error()
		}
		report.Files = append(report.Files, view)
	}
	return report
}

func fromTypeCounts(counts map[filename.DocumentType]int) map[string]int {
	if len(counts) == 0 {
		return nil
	}
	out := make(map[string]int, len(counts))
	for docType, count := range counts {
		out[string(docType)] = count
	}
	return out
}

func fromProcessResult(result *pipeline.ProcessResult) ProcessReport {
	report := ProcessReport{
		SessionID:       result.SessionID,
		Status:          string(result.Status),
		Counts:          FromCounts(result.Counts),
		DurationSeconds: result.Duration.Seconds(),
	}
	for _, failure := range result.Failures {
		report.Failures = append(report.Failures, FailureView{
			FileID: failure.FileID,
			Name:   failure.Name,
			Reason: failure.Reason,
		})
	}
	return report
}

func fromOutcome(outcome review.Outcome) DecisionView {
	return DecisionView{
		FileID:      outcome.FileID,
		Kind:        string(outcome.Kind),
		FileStatus:  string(outcome.FileStatus),
		MatchStatus: string(outcome.MatchStatus),
		PatientID:   outcome.PatientID,
		DocumentID:  outcome.DocumentID,
		Message:     outcome.Message,
	}
}

func fromBulkResult(result *review.BulkResult) BulkApproveView {
	view := BulkApproveView{
		SessionID: result.SessionID,
		Threshold: result.Threshold,
		Eligible:  result.Eligible,
		Approved:  result.Approved,
		Failed:    result.Failed,
	}
	for _, item := range result.Items {
		view.Items = append(view.Items, BulkItemView{
			FileID:       item.FileID,
			OriginalName: item.OriginalName,
			Confidence:   item.Confidence,
			Approved:     item.Approved,
			Error:        item.Error,
		})
	}
	return view
}

func fromHealth(health registry.HealthSummary) HealthView {
	return HealthView{
		TotalFiles: health.Total,
		Pending:    health.Pending,
		Processing: health.Processing,
		Review:     health.Review,
		Completed:  health.Completed,
		Failed:     health.Failed,
		Patients:   health.Patients,
		Documents:  health.Documents,
	}
}
