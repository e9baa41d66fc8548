package registry

import (
	"strings"
	"time"
)

// SessionStatus represents the lifecycle of an intake session.
type SessionStatus string

const (
	SessionPending         SessionStatus = "pending"
	SessionProcessing      SessionStatus = "processing"
	SessionCompleted       SessionStatus = "completed"
	SessionPartiallyFailed SessionStatus = "partially_failed"
	SessionFailed          SessionStatus = "failed"
)

var allSessionStatuses = []SessionStatus{
	SessionPending,
	SessionProcessing,
	SessionCompleted,
	SessionPartiallyFailed,
	SessionFailed,
}

var sessionStatusSet = func() map[SessionStatus]struct{} {
	set := make(map[SessionStatus]struct{}, len(allSessionStatuses))
	for _, status := range allSessionStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// ParseSessionStatus converts a string into a known SessionStatus.
func ParseSessionStatus(value string) (SessionStatus, bool) {
	normalized := SessionStatus(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := sessionStatusSet[normalized]
	return normalized, ok
}

// SessionMode selects what happens to a stored document after linking.
type SessionMode string

const (
	// ModeArchive stores documents without pushing text to the content index.
	ModeArchive SessionMode = "archive"
	// ModeIndex additionally extracts text and pushes it to the content index.
	ModeIndex SessionMode = "index"
)

// ParseSessionMode converts a string into a known SessionMode.
func ParseSessionMode(value string) (SessionMode, bool) {
	switch SessionMode(strings.ToLower(strings.TrimSpace(value))) {
	case ModeArchive:
		return ModeArchive, true
	case ModeIndex:
		return ModeIndex, true
	default:
		return "", false
	}
}

// FileStatus represents the processing lifecycle of a staged file.
type FileStatus string

const (
	FilePending    FileStatus = "pending"
	FileProcessing FileStatus = "processing"
	FileCompleted  FileStatus = "completed"
	FileReview     FileStatus = "review"
	FileFailed     FileStatus = "failed"
	FileSkipped    FileStatus = "skipped"
	FileRejected   FileStatus = "rejected"
)

var allFileStatuses = []FileStatus{
	FilePending,
	FileProcessing,
	FileCompleted,
	FileReview,
	FileFailed,
	FileSkipped,
	FileRejected,
}

var fileStatusSet = func() map[FileStatus]struct{} {
	set := make(map[FileStatus]struct{}, len(allFileStatuses))
	for _, status := range allFileStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllFileStatuses returns the ordered list of known file statuses.
func AllFileStatuses() []FileStatus {
	cp := make([]FileStatus, len(allFileStatuses))
	copy(cp, allFileStatuses)
	return cp
}

// ParseFileStatus converts a string into a known FileStatus.
func ParseFileStatus(value string) (FileStatus, bool) {
	normalized := FileStatus(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := fileStatusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether a file status can no longer change without an
// admin decision.
func (s FileStatus) IsTerminal() bool {
	switch s {
	case FileCompleted, FileSkipped, FileRejected:
		return true
	default:
		return false
	}
}

// MatchStatus represents the identity resolution state of a staged file.
type MatchStatus string

const (
	MatchPending        MatchStatus = "pending"
	MatchParseFailed    MatchStatus = "parse_failed"
	MatchAutoLinked     MatchStatus = "auto_linked"
	MatchNewPatient     MatchStatus = "new_patient"
	MatchReviewRequired MatchStatus = "review_required"
	MatchManualLinked   MatchStatus = "manual_linked"
)

var matchStatusSet = map[MatchStatus]struct{}{
	MatchPending:        {},
	MatchParseFailed:    {},
	MatchAutoLinked:     {},
	MatchNewPatient:     {},
	MatchReviewRequired: {},
	MatchManualLinked:   {},
}

// ParseMatchStatus converts a string into a known MatchStatus.
func ParseMatchStatus(value string) (MatchStatus, bool) {
	normalized := MatchStatus(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := matchStatusSet[normalized]
	return normalized, ok
}

// IsLinked reports whether the match status carries a confirmed patient link.
func (s MatchStatus) IsLinked() bool {
	switch s {
	case MatchAutoLinked, MatchNewPatient, MatchManualLinked:
		return true
	default:
		return false
	}
}

// Review categories group review cases by what went wrong.
const (
	ReviewCategoryParsing    = "parsing"
	ReviewCategoryMatching   = "matching"
	ReviewCategoryProcessing = "processing"
	ReviewCategoryOther      = "other"
)

// Review priorities order the admin queue.
const (
	ReviewPriorityHigh   = "high"
	ReviewPriorityMedium = "medium"
	ReviewPriorityLow    = "low"
)

// PriorityForConfidence buckets a best-match confidence into a review
// priority. Parsing and processing failures are always high priority and do
// not route through this helper.
func PriorityForConfidence(confidence float64) string {
	if confidence < 0.7 {
		return ReviewPriorityMedium
	}
	return ReviewPriorityLow
}

// Session represents one intake batch.
type Session struct {
	ID         string
	Label      string
	Mode       SessionMode
	Status     SessionStatus
	CreatedBy  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time
}

// FileState represents a staged upload advancing through the pipeline.
type FileState struct {
	ID              int64
	SessionID       string
	OriginalName    string
	Extension       string
	SizeBytes       int64
	ContentHash     string
	Status          FileStatus
	MatchStatus     MatchStatus
	ParsedJSON      string
	CandidatesJSON  string
	MatchConfidence float64
	MatchTier       string
	PatientID       string
	DocumentID      string
	DuplicateOf     string
	ErrorMessage    string
	ReviewRequired  bool
	ReviewCategory  string
	ReviewPriority  string
	ReviewNote      string
	DecidedBy       string
	DecidedAt       *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
	StartedAt       *time.Time
	FinishedAt      *time.Time
}

// SetFailed marks the file as failed with the given error message and flags
// it for review so an admin can retry, skip, or delete it.
func (f *FileState) SetFailed(message string) {
	f.Status = FileFailed
	f.ErrorMessage = message
	f.ReviewRequired = true
	f.ReviewCategory = ReviewCategoryProcessing
	f.ReviewPriority = ReviewPriorityHigh
}

// SetReview flags the file for an admin decision without marking it failed.
func (f *FileState) SetReview(category, priority, note string) {
	f.Status = FileReview
	f.ReviewRequired = true
	f.ReviewCategory = category
	f.ReviewPriority = priority
	f.ReviewNote = note
}

// Patient represents one patient in the identity registry.
type Patient struct {
	ID              string
	RecordNumber    string
	SecondaryNumber string
	FirstNames      string
	LastNames       string
	FullName        string
	NormalizedName  string
	Provisional     bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Document represents one stored document in the content-addressed archive.
type Document struct {
	ID           string
	PatientID    string
	SessionID    string
	FileID       int64
	ContentHash  string
	StoragePath  string
	OriginalName string
	DocumentType string
	SizeBytes    int64
	Indexed      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SessionCounts aggregates per-status file totals for one session.
type SessionCounts struct {
	Total      int
	Pending    int
	Processing int
	Completed  int
	Review     int
	Failed     int
	Skipped    int
	Rejected   int
	Duplicates int
}

// Unresolved reports how many files have not reached a terminal state.
func (c SessionCounts) Unresolved() int {
	return c.Pending + c.Processing + c.Review + c.Failed
}

// DerivedStatus maps file counts to the session status they imply. Review
// files count against a clean completion but are not failures.
func (c SessionCounts) DerivedStatus() SessionStatus {
	switch {
	case c.Completed == c.Total:
		return SessionCompleted
	case c.Failed == c.Total:
		return SessionFailed
	default:
		return SessionPartiallyFailed
	}
}

// HealthSummary describes aggregated file counts across all sessions.
type HealthSummary struct {
	Total      int
	Pending    int
	Processing int
	Review     int
	Completed  int
	Failed     int
	Patients   int
	Documents  int
}

// DatabaseHealth describes diagnostic information about the registry database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	MissingTables    []string
	TotalFiles       int
	IntegrityCheck   bool
	Error            string
}
