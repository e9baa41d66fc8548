package review

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"medintake/internal/identity"
	"medintake/internal/logging"
	"medintake/internal/registry"
	"medintake/internal/services"
)

// Case is one file awaiting an admin decision. Category and priority are
// derived from the file's current state at listing time, never stored
// authority; the registry copy is a cache the pipeline writes for queries.
type Case struct {
	FileID       int64
	SessionID    string
	OriginalName string
	Category     string
	Priority     string
	MatchStatus  registry.MatchStatus
	Confidence   float64
	MatchTier    string
	ErrorMessage string
	Candidates   []identity.Candidate
	Best         *identity.Candidate
	FlaggedAt    time.Time
}

// Filter narrows a review case listing. Zero values mean no constraint.
type Filter struct {
	SessionRef string
	Category   string
	Priority   string
	Limit      int
}

// Classify derives the review category and priority from a file's current
// fields. Parsing and processing failures always rank high; ambiguous
// matches rank by how close the best candidate came. A review flag that
// matches none of those conditions lands in the other category.
func Classify(file *registry.FileState) (category, priority string) {
	switch {
	case file.MatchStatus == registry.MatchParseFailed:
		return registry.ReviewCategoryParsing, registry.ReviewPriorityHigh
	case file.Status == registry.FileFailed:
		return registry.ReviewCategoryProcessing, registry.ReviewPriorityHigh
	case file.MatchStatus == registry.MatchReviewRequired:
		return registry.ReviewCategoryMatching, registry.PriorityForConfidence(file.MatchConfidence)
	default:
		return registry.ReviewCategoryOther, registry.ReviewPriorityMedium
	}
}

// Queue lists review cases over the registry.
type Queue struct {
	store  *registry.Store
	logger *slog.Logger
}

// NewQueue constructs a review queue over the shared store.
func NewQueue(store *registry.Store, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Queue{store: store, logger: logging.NewComponentLogger(logger, "review")}
}

// List returns review cases matching the filter, highest priority first. An
// unknown session reference is a not-found error; unknown category or
// priority values are validation errors rather than silently empty listings.
func (q *Queue) List(ctx context.Context, filter Filter) ([]Case, error) {
	sessionID, err := q.resolveSessionFilter(ctx, filter.SessionRef)
	if err != nil {
		return nil, err
	}
	category, priority, err := normalizeFilter(filter)
	if err != nil {
		return nil, err
	}

	files, err := q.store.FilesAwaitingReview(ctx, sessionID, 0)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "review", "list", "load review files", err)
	}

	cases := make([]Case, 0, len(files))
	for _, file := range files {
		c := buildCase(file)
		if category != "" && c.Category != category {
			continue
		}
		if priority != "" && c.Priority != priority {
			continue
		}
		cases = append(cases, c)
		if filter.Limit > 0 && len(cases) >= filter.Limit {
			break
		}
	}
	return cases, nil
}

func (q *Queue) resolveSessionFilter(ctx context.Context, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", nil
	}
	session, err := q.store.ResolveSession(ctx, ref)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "review", "list", "resolve session reference", err)
	}
	if session == nil {
		return "", services.Wrap(services.ErrNotFound, "review", "list", fmt.Sprintf("session %q not found", ref), nil)
	}
	return session.ID, nil
}

func normalizeFilter(filter Filter) (category, priority string, err error) {
	category = strings.ToLower(strings.TrimSpace(filter.Category))
	switch category {
	case "", registry.ReviewCategoryParsing, registry.ReviewCategoryMatching, registry.ReviewCategoryProcessing, registry.ReviewCategoryOther:
	default:
		return "", "", services.Wrap(services.ErrValidation, "review", "list", fmt.Sprintf("unknown review category %q", filter.Category), nil)
	}
	priority = strings.ToLower(strings.TrimSpace(filter.Priority))
	switch priority {
	case "", registry.ReviewPriorityHigh, registry.ReviewPriorityMedium, registry.ReviewPriorityLow:
	default:
		return "", "", services.Wrap(services.ErrValidation, "review", "list", fmt.Sprintf("unknown review priority %q", filter.Priority), nil)
	}
	return category, priority, nil
}

func buildCase(file *registry.FileState) Case {
	category, priority := Classify(file)
	c := Case{
		FileID:       file.ID,
		SessionID:    file.SessionID,
		OriginalName: file.OriginalName,
		Category:     category,
		Priority:     priority,
		MatchStatus:  file.MatchStatus,
		Confidence:   file.MatchConfidence,
		MatchTier:    file.MatchTier,
		ErrorMessage: file.ErrorMessage,
		FlaggedAt:    file.UpdatedAt,
	}
	c.Candidates = decodeCandidates(file.CandidatesJSON)
	if len(c.Candidates) > 0 {
		c.Best = &c.Candidates[0]
	}
	return c
}

// decodeCandidates tolerates unreadable payloads: the case still surfaces,
// just without candidate detail.
func decodeCandidates(encoded string) []identity.Candidate {
	if strings.TrimSpace(encoded) == "" {
		return nil
	}
	var candidates []identity.Candidate
	if err := json.Unmarshal([]byte(encoded), &candidates); err != nil {
		return nil
	}
	return candidates
}
