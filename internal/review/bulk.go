package review

import (
	"context"
	"fmt"
	"strings"

	"medintake/internal/logging"
	"medintake/internal/registry"
	"medintake/internal/services"
)

// BulkItem reports the fate of one file considered by a bulk approval.
type BulkItem struct {
	FileID       int64
	OriginalName string
	Confidence   float64
	Approved     bool
	Error        string
}

// BulkResult aggregates one bulk approval pass over a session.
type BulkResult struct {
	SessionID string
	Threshold float64
	Eligible  int
	Approved  int
	Failed    int
	Items     []BulkItem
}

// BulkApprove applies approve_match to every review case in the session
// whose best-match confidence meets the threshold. Individual failures are
// recorded and the pass continues; only session resolution aborts the batch.
// Cases below the threshold, and cases without an ambiguous-match flag, stay
// in the queue untouched.
func (p *Processor) BulkApprove(ctx context.Context, sessionRef string, threshold float64, decidedBy string) (*BulkResult, error) {
	if threshold <= 0 || threshold > 1 {
		return nil, services.Wrap(services.ErrValidation, "review", "bulk-approve",
			fmt.Sprintf("threshold %.2f is outside (0, 1]", threshold), nil)
	}
	session, err := p.store.ResolveSession(ctx, sessionRef)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "review", "bulk-approve", "resolve session reference", err)
	}
	if session == nil {
		return nil, services.Wrap(services.ErrNotFound, "review", "bulk-approve", fmt.Sprintf("session %q not found", sessionRef), nil)
	}

	files, err := p.store.FilesAwaitingReview(ctx, session.ID, 0)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "review", "bulk-approve", "load review files", err)
	}

	ctx = services.WithSessionID(ctx, session.ID)
	logger := logging.WithContext(ctx, p.logger)

	result := &BulkResult{SessionID: session.ID, Threshold: threshold}
	decision := Decision{
		Kind:      DecisionApproveMatch,
		Note:      fmt.Sprintf("bulk approved at threshold %.2f", threshold),
		DecidedBy: strings.TrimSpace(decidedBy),
	}
	for _, file := range files {
		if file.MatchStatus != registry.MatchReviewRequired || file.MatchConfidence < threshold {
			continue
		}
		result.Eligible++
		item := BulkItem{FileID: file.ID, OriginalName: file.OriginalName, Confidence: file.MatchConfidence}
		if _, err := p.Apply(ctx, file.ID, decision); err != nil {
			item.Error = err.Error()
			result.Failed++
		} else {
			item.Approved = true
			result.Approved++
		}
		result.Items = append(result.Items, item)
	}

	logger.Info("bulk approval finished",
		logging.Float64("threshold", threshold),
		logging.Int("eligible", result.Eligible),
		logging.Int("approved", result.Approved),
		logging.Int("failed", result.Failed),
		logging.String(logging.FieldEventType, "bulk_approve"),
	)
	return result, nil
}
