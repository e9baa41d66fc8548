package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// SessionView describes an intake session in a transport-friendly format.
type SessionView struct {
	ID         string            `json:"id"`
	Label      string            `json:"label"`
	Mode       string            `json:"mode"`
	Status     string            `json:"status"`
	CreatedBy  string            `json:"createdBy,omitempty"`
	CreatedAt  string            `json:"createdAt,omitempty"`
	UpdatedAt  string            `json:"updatedAt,omitempty"`
	StartedAt  string            `json:"startedAt,omitempty"`
	FinishedAt string            `json:"finishedAt,omitempty"`
	Counts     SessionCountsView `json:"counts"`
}

// SessionCountsView aggregates per-status file totals for one session.
type SessionCountsView struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Review     int `json:"review"`
	Failed     int `json:"failed"`
	Skipped    int `json:"skipped"`
	Rejected   int `json:"rejected"`
	Duplicates int `json:"duplicates"`
}

// FileView describes one staged file and its processing outcome.
type FileView struct {
	ID              int64   `json:"id"`
	SessionID       string  `json:"sessionId"`
	OriginalName    string  `json:"originalName"`
	SizeBytes       int64   `json:"sizeBytes"`
	Status          string  `json:"status"`
	MatchStatus     string  `json:"matchStatus"`
	MatchConfidence float64 `json:"matchConfidence,omitempty"`
	MatchTier       string  `json:"matchTier,omitempty"`
	PatientID       string  `json:"patientId,omitempty"`
	DocumentID      string  `json:"documentId,omitempty"`
	DuplicateOf     string  `json:"duplicateOf,omitempty"`
	ErrorMessage    string  `json:"errorMessage,omitempty"`
	NeedsReview     bool    `json:"needsReview"`
	ReviewCategory  string  `json:"reviewCategory,omitempty"`
	ReviewPriority  string  `json:"reviewPriority,omitempty"`
	DecidedBy       string  `json:"decidedBy,omitempty"`
	DecidedAt       string  `json:"decidedAt,omitempty"`
}

// SessionStatusView is the payload of the get-session-status operation.
type SessionStatusView struct {
	Session SessionView `json:"session"`
	Files   []FileView  `json:"files"`
}

// UploadFileView reports the fate of one uploaded path.
type UploadFileView struct {
	Path         string `json:"path"`
	OriginalName string `json:"originalName,omitempty"`
	FileID       int64  `json:"fileId,omitempty"`
	Parsed       bool   `json:"parsed"`
	ParseError   string `json:"parseError,omitempty"`
	Duplicate    bool   `json:"duplicate"`
	Error        string `json:"error,omitempty"`
}

// UploadReport aggregates one upload-files call.
type UploadReport struct {
	SessionID        string           `json:"sessionId"`
	Staged           int              `json:"staged"`
	Rejected         int              `json:"rejected"`
	ParseFailures    int              `json:"parseFailures"`
	ParseSuccessRate float64          `json:"parseSuccessRate"`
	AvgConfidence    float64          `json:"avgConfidence"`
	TypeCounts       map[string]int   `json:"typeCounts,omitempty"`
	Files            []UploadFileView `json:"files"`
}

// FailureView names one file that ended a processing run failed.
type FailureView struct {
	FileID int64  `json:"fileId"`
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// ProcessReport aggregates one process-session call.
type ProcessReport struct {
	SessionID       string            `json:"sessionId"`
	Status          string            `json:"status"`
	Counts          SessionCountsView `json:"counts"`
	DurationSeconds float64           `json:"durationSeconds"`
	Failures        []FailureView     `json:"failures,omitempty"`
}

// CandidateView is one scored patient match inside a review case.
type CandidateView struct {
	PatientID    string   `json:"patientId"`
	DisplayName  string   `json:"displayName"`
	RecordNumber string   `json:"recordNumber,omitempty"`
	Similarity   float64  `json:"similarity"`
	Confidence   float64  `json:"confidence"`
	Tier         string   `json:"tier"`
	Reasons      []string `json:"reasons,omitempty"`
}

// ReviewCaseView describes one file awaiting an admin decision.
type ReviewCaseView struct {
	FileID       int64           `json:"fileId"`
	SessionID    string          `json:"sessionId"`
	OriginalName string          `json:"originalName"`
	Category     string          `json:"category"`
	Priority     string          `json:"priority"`
	MatchStatus  string          `json:"matchStatus"`
	Confidence   float64         `json:"confidence,omitempty"`
	MatchTier    string          `json:"matchTier,omitempty"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
	Best         *CandidateView  `json:"best,omitempty"`
	Candidates   []CandidateView `json:"candidates,omitempty"`
	FlaggedAt    string          `json:"flaggedAt,omitempty"`
}

// NewPatientData carries admin-supplied identity for a reject-match decision.
type NewPatientData struct {
	RecordNumber    string `json:"recordNumber,omitempty"`
	SecondaryNumber string `json:"secondaryNumber,omitempty"`
	FirstNames      string `json:"firstNames,omitempty"`
	LastNames       string `json:"lastNames,omitempty"`
}

// DecisionRequest is the input of the apply-admin-decision operation.
type DecisionRequest struct {
	FileID     int64           `json:"fileId"`
	Kind       string          `json:"kind"`
	PatientID  string          `json:"patientId,omitempty"`
	NewPatient *NewPatientData `json:"newPatient,omitempty"`
	Note       string          `json:"note,omitempty"`
	DecidedBy  string          `json:"decidedBy,omitempty"`
}

// DecisionView reports the applied decision.
type DecisionView struct {
	FileID      int64  `json:"fileId"`
	Kind        string `json:"kind"`
	FileStatus  string `json:"fileStatus"`
	MatchStatus string `json:"matchStatus"`
	PatientID   string `json:"patientId,omitempty"`
	DocumentID  string `json:"documentId,omitempty"`
	Message     string `json:"message,omitempty"`
}

// BulkItemView reports one file considered by a bulk approval.
type BulkItemView struct {
	FileID       int64   `json:"fileId"`
	OriginalName string  `json:"originalName"`
	Confidence   float64 `json:"confidence"`
	Approved     bool    `json:"approved"`
	Error        string  `json:"error,omitempty"`
}

// BulkApproveView aggregates one bulk-approve call.
type BulkApproveView struct {
	SessionID string         `json:"sessionId"`
	Threshold float64        `json:"threshold"`
	Eligible  int            `json:"eligible"`
	Approved  int            `json:"approved"`
	Failed    int            `json:"failed"`
	Items     []BulkItemView `json:"items,omitempty"`
}

// PatientView describes one patient in the identity registry.
type PatientView struct {
	ID              string `json:"id"`
	RecordNumber    string `json:"recordNumber,omitempty"`
	SecondaryNumber string `json:"secondaryNumber,omitempty"`
	FullName        string `json:"fullName"`
	Provisional     bool   `json:"provisional"`
	CreatedAt       string `json:"createdAt,omitempty"`
}

// HealthView summarizes registry state across all sessions.
type HealthView struct {
	TotalFiles int `json:"totalFiles"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Review     int `json:"review"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Patients   int `json:"patients"`
	Documents  int `json:"documents"`
}
