package review

import (
	"strings"

	"medintake/internal/registry"
)

// DecisionKind enumerates the admin decisions a review case accepts.
type DecisionKind string

const (
	DecisionApproveMatch DecisionKind = "approve_match"
	DecisionRejectMatch  DecisionKind = "reject_match"
	DecisionManualMatch  DecisionKind = "manual_match"
	DecisionSkip         DecisionKind = "skip"
	DecisionRetry        DecisionKind = "retry"
	DecisionDelete       DecisionKind = "delete"
)

var decisionKindSet = map[DecisionKind]struct{}{
	DecisionApproveMatch: {},
	DecisionRejectMatch:  {},
	DecisionManualMatch:  {},
	DecisionSkip:         {},
	DecisionRetry:        {},
	DecisionDelete:       {},
}

// AllDecisionKinds returns the closed decision set in display order.
func AllDecisionKinds() []DecisionKind {
	return []DecisionKind{
		DecisionApproveMatch,
		DecisionRejectMatch,
		DecisionManualMatch,
		DecisionSkip,
		DecisionRetry,
		DecisionDelete,
	}
}

// ParseDecisionKind converts a string into a known DecisionKind. Hyphenated
// spellings are accepted alongside the canonical snake_case form.
func ParseDecisionKind(value string) (DecisionKind, bool) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(value)), "-", "_")
	if normalized == "" {
		return "", false
	}
	kind := DecisionKind(normalized)
	_, ok := decisionKindSet[kind]
	return kind, ok
}

// NewPatientInput carries admin-supplied identity data for a reject_match
// decision. Blank fields fall back to the parsed filename identity.
type NewPatientInput struct {
	RecordNumber    string
	SecondaryNumber string
	FirstNames      string
	LastNames       string
}

// Decision is the transient input an admin submits against one review case.
// It is consumed to mutate a session file, never persisted on its own.
type Decision struct {
	Kind       DecisionKind
	PatientID  string           // manual_match target
	NewPatient *NewPatientInput // reject_match override data
	Note       string
	DecidedBy  string
}

// Outcome is the deterministic result of applying one decision.
type Outcome struct {
	FileID      int64
	Kind        DecisionKind
	FileStatus  registry.FileStatus
	MatchStatus registry.MatchStatus
	PatientID   string
	DocumentID  string
	Message     string
}
