package review

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"medintake/internal/blobstore"
	"medintake/internal/config"
	"medintake/internal/filename"
	"medintake/internal/identity"
	"medintake/internal/logging"
	"medintake/internal/registry"
	"medintake/internal/services"
)

// Reprocessor re-runs a single pending file through the processing pipeline.
// The orchestrator implements it; retry decisions re-enter through here.
type Reprocessor interface {
	ReprocessFile(ctx context.Context, fileID int64) (*registry.FileState, error)
}

// Processor applies admin decisions to review cases. Decisions on the same
// file are serialized; decisions on different files may run concurrently
// with each other and with an orchestrator pass over the session.
type Processor struct {
	cfg         *config.Config
	store       *registry.Store
	blobs       *blobstore.Store
	reprocessor Reprocessor
	logger      *slog.Logger
	locks       keyedLocks
}

// NewProcessor constructs a decision processor over the shared store and
// blob storage. reprocessor may be nil when retry decisions are not needed.
func NewProcessor(cfg *config.Config, store *registry.Store, blobs *blobstore.Store, reprocessor Reprocessor, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Processor{
		cfg:         cfg,
		store:       store,
		blobs:       blobs,
		reprocessor: reprocessor,
		logger:      logging.NewComponentLogger(logger, "review"),
	}
}

// Apply validates and executes one decision against one review case. All
// preconditions are checked before any mutation, so a failed decision leaves
// the file exactly as it was.
func (p *Processor) Apply(ctx context.Context, fileID int64, decision Decision) (Outcome, error) {
	if _, ok := decisionKindSet[decision.Kind]; !ok {
		return Outcome{}, services.Wrap(services.ErrValidation, "review", "decide", fmt.Sprintf("unknown decision kind %q", decision.Kind), nil)
	}

	unlock := p.locks.lock(fileID)
	defer unlock()

	file, err := p.store.GetFile(ctx, fileID)
	if err != nil {
		return Outcome{}, services.Wrap(services.ErrTransient, "review", "decide", "load file", err)
	}
	if file == nil {
		return Outcome{}, services.Wrap(services.ErrNotFound, "review", "decide", fmt.Sprintf("file %d not found", fileID), nil)
	}
	if !file.ReviewRequired {
		return Outcome{}, services.Wrap(services.ErrValidation, "review", "decide",
			fmt.Sprintf("file %d is not awaiting review (status %s)", fileID, file.Status), nil)
	}

	ctx = services.WithSessionID(ctx, file.SessionID)
	ctx = services.WithFileID(ctx, file.ID)
	logger := logging.WithContext(ctx, p.logger)

	var outcome Outcome
	switch decision.Kind {
	case DecisionApproveMatch:
		outcome, err = p.approveMatch(ctx, file, decision)
	case DecisionRejectMatch:
		outcome, err = p.rejectMatch(ctx, file, decision)
	case DecisionManualMatch:
		outcome, err = p.manualMatch(ctx, file, decision)
	case DecisionSkip:
		outcome, err = p.skip(ctx, file, decision)
	case DecisionRetry:
		outcome, err = p.retry(ctx, file, decision)
	case DecisionDelete:
		outcome, err = p.deleteFile(ctx, file, decision)
	}
	if err != nil {
		return Outcome{}, err
	}

	attrs := append(logging.DecisionAttrs(string(decision.Kind), string(outcome.FileStatus), outcome.Message),
		logging.String("file", file.OriginalName),
		logging.String("decided_by", decision.DecidedBy),
		logging.String(logging.FieldPatientID, outcome.PatientID),
		logging.String(logging.FieldEventType, "admin_decision"),
	)
	logger.Info("admin decision applied", logging.Args(attrs...)...)
	if err := p.refreshSessionStatus(ctx, logger, file.SessionID); err != nil {
		logger.Warn("session status refresh failed", logging.Error(err))
	}
	return outcome, nil
}

// approveMatch links the matcher's best candidate. The candidate list was
// persisted when the file was flagged; an empty list means there is nothing
// to approve and the admin must match manually instead.
func (p *Processor) approveMatch(ctx context.Context, file *registry.FileState, decision Decision) (Outcome, error) {
	best := bestCandidate(file)
	if best == nil {
		return Outcome{}, services.Wrap(services.ErrValidation, "review", "approve",
			fmt.Sprintf("file %d has no match candidate to approve", file.ID), nil)
	}
	patient, err := p.store.GetPatient(ctx, best.PatientID)
	if err != nil {
		return Outcome{}, services.Wrap(services.ErrTransient, "review", "approve", "load candidate patient", err)
	}
	if patient == nil {
		return Outcome{}, services.Wrap(services.ErrNotFound, "review", "approve",
			fmt.Sprintf("candidate patient %s no longer exists", best.PatientID), nil)
	}

	return p.completeAgainstPatient(ctx, file, decision, patient,
		fmt.Sprintf("approved %s at confidence %.2f", patient.FullName, best.Confidence))
}

// manualMatch links an admin-selected patient, which must already exist.
func (p *Processor) manualMatch(ctx context.Context, file *registry.FileState, decision Decision) (Outcome, error) {
	patientID := strings.TrimSpace(decision.PatientID)
	if patientID == "" {
		return Outcome{}, services.Wrap(services.ErrValidation, "review", "manual-match", "manual_match requires a patient id", nil)
	}
	patient, err := p.store.GetPatient(ctx, patientID)
	if err != nil {
		return Outcome{}, services.Wrap(services.ErrTransient, "review", "manual-match", "load selected patient", err)
	}
	if patient == nil {
		return Outcome{}, services.Wrap(services.ErrNotFound, "review", "manual-match",
			fmt.Sprintf("patient %s not found", patientID), nil)
	}

	return p.completeAgainstPatient(ctx, file, decision, patient,
		fmt.Sprintf("manually matched to %s", patient.FullName))
}

// rejectMatch discards the proposed candidates and registers a new patient,
// from admin-supplied data when given, otherwise from the parsed filename
// identity with placeholder defaults for everything a filename cannot carry.
func (p *Processor) rejectMatch(ctx context.Context, file *registry.FileState, decision Decision) (Outcome, error) {
	patient, err := p.buildRejectPatient(file, decision)
	if err != nil {
		return Outcome{}, err
	}

	if existing, err := p.archivedDocument(ctx, file); err != nil {
		return Outcome{}, err
	} else if existing != nil {
		return p.completeAsDuplicate(ctx, file, decision, existing)
	}

	stampDecision(file, decision)
	file.MatchStatus = registry.MatchNewPatient
	file.Status = registry.FileCompleted
	file.ErrorMessage = ""
	doc := p.buildDocument(file)
	if err := p.store.CompleteFileNewPatient(ctx, file, patient, doc); err != nil {
		return Outcome{}, services.Wrap(services.ErrTransient, "review", "reject", "persist new patient and document", err)
	}
	return outcomeFor(file, decision.Kind, fmt.Sprintf("created patient %s", patient.FullName)), nil
}

func (p *Processor) buildRejectPatient(file *registry.FileState, decision Decision) (*registry.Patient, error) {
	if input := decision.NewPatient; input != nil {
		first := strings.TrimSpace(input.FirstNames)
		last := strings.TrimSpace(input.LastNames)
		if first == "" && last == "" {
			return nil, services.Wrap(services.ErrValidation, "review", "reject", "new patient data has no name", nil)
		}
		full := strings.TrimSpace(first + " " + last)
		return &registry.Patient{
			RecordNumber:    strings.TrimSpace(input.RecordNumber),
			SecondaryNumber: strings.TrimSpace(input.SecondaryNumber),
			FirstNames:      first,
			LastNames:       last,
			FullName:        full,
			NormalizedName:  identity.NormalizeName(full),
		}, nil
	}

	parsed := parsedIdentity(file)
	if parsed == nil || strings.TrimSpace(parsed.FullName) == "" {
		return nil, services.Wrap(services.ErrValidation, "review", "reject",
			"filename identity is unavailable; supply patient data with the decision", nil)
	}
	return &registry.Patient{
		RecordNumber:    parsed.RecordNumber,
		SecondaryNumber: parsed.SecondaryNumber,
		FirstNames:      parsed.GivenNames,
		LastNames:       strings.TrimSpace(strings.Join(strings.Fields(parsed.PaternalSurname+" "+parsed.MaternalSurname), " ")),
		FullName:        parsed.FullName,
		NormalizedName:  identity.NormalizeName(parsed.FullName),
		Provisional:     true,
	}, nil
}

// skip abandons the file with an explanatory note. Nothing is created; the
// row stays for audit in the skipped state.
func (p *Processor) skip(ctx context.Context, file *registry.FileState, decision Decision) (Outcome, error) {
	stampDecision(file, decision)
	file.Status = registry.FileSkipped
	if strings.TrimSpace(decision.Note) != "" {
		file.ErrorMessage = strings.TrimSpace(decision.Note)
	}
	stampFinished(file)
	if err := p.store.UpdateFile(ctx, file); err != nil {
		return Outcome{}, services.Wrap(services.ErrTransient, "review", "skip", "persist skip", err)
	}
	return outcomeFor(file, decision.Kind, "file skipped"), nil
}

// retry clears the prior result and runs the file through the pipeline
// again. The reset only succeeds from the failed or review states, so a
// concurrent decision that already resolved the file turns retry into a
// validation error instead of double-processing.
func (p *Processor) retry(ctx context.Context, file *registry.FileState, decision Decision) (Outcome, error) {
	if p.reprocessor == nil {
		return Outcome{}, services.Wrap(services.ErrConfiguration, "review", "retry", "no reprocessor configured", nil)
	}
	reset, err := p.store.ResetFileForRetry(ctx, file.ID, decision.DecidedBy)
	if err != nil {
		return Outcome{}, services.Wrap(services.ErrTransient, "review", "retry", "reset file", err)
	}
	if !reset {
		return Outcome{}, services.Wrap(services.ErrValidation, "review", "retry",
			fmt.Sprintf("file %d is no longer retryable", file.ID), nil)
	}

	updated, err := p.reprocessor.ReprocessFile(ctx, file.ID)
	if err != nil {
		return Outcome{}, err
	}
	*file = *updated
	return outcomeFor(file, decision.Kind, fmt.Sprintf("reprocessed to %s", file.Status)), nil
}

// deleteFile removes the stored bytes when nothing else references them and
// marks the row rejected. The row itself is never deleted; audit needs it.
func (p *Processor) deleteFile(ctx context.Context, file *registry.FileState, decision Decision) (Outcome, error) {
	if file.ContentHash != "" {
		doc, err := p.archivedDocument(ctx, file)
		if err != nil {
			return Outcome{}, err
		}
		others, err := p.store.CountFilesWithHash(ctx, file.ContentHash, file.ID)
		if err != nil {
			return Outcome{}, services.Wrap(services.ErrTransient, "review", "delete", "count hash references", err)
		}
		if doc == nil && others == 0 {
			if err := p.blobs.Remove(p.blobs.PathFor(file.ContentHash, file.Extension)); err != nil {
				return Outcome{}, services.Wrap(services.ErrTransient, "review", "delete", "remove stored bytes", err)
			}
		}
	}

	stampDecision(file, decision)
	file.Status = registry.FileRejected
	stampFinished(file)
	if err := p.store.UpdateFile(ctx, file); err != nil {
		return Outcome{}, services.Wrap(services.ErrTransient, "review", "delete", "persist rejection", err)
	}
	return outcomeFor(file, decision.Kind, "stored bytes removed, row kept for audit"), nil
}

// completeAgainstPatient archives the file's document under the given
// patient and finalizes the file. Content that another document already
// archived resolves as a duplicate of that document instead.
func (p *Processor) completeAgainstPatient(ctx context.Context, file *registry.FileState, decision Decision, patient *registry.Patient, message string) (Outcome, error) {
	if existing, err := p.archivedDocument(ctx, file); err != nil {
		return Outcome{}, err
	} else if existing != nil {
		return p.completeAsDuplicate(ctx, file, decision, existing)
	}

	stampDecision(file, decision)
	file.MatchStatus = registry.MatchManualLinked
	file.Status = registry.FileCompleted
	file.ErrorMessage = ""
	doc := p.buildDocument(file)
	doc.PatientID = patient.ID
	if err := p.store.CompleteFileExistingPatient(ctx, file, doc); err != nil {
		return Outcome{}, services.Wrap(services.ErrTransient, "review", "link", "persist document", err)
	}
	return outcomeFor(file, decision.Kind, message), nil
}

// completeAsDuplicate finishes a reviewed file whose bytes are already
// archived. The existing document's patient link wins; identical content
// cannot belong to two patients.
func (p *Processor) completeAsDuplicate(ctx context.Context, file *registry.FileState, decision Decision, doc *registry.Document) (Outcome, error) {
	stampDecision(file, decision)
	file.Status = registry.FileCompleted
	file.MatchStatus = registry.MatchManualLinked
	file.PatientID = doc.PatientID
	file.DocumentID = doc.ID
	file.DuplicateOf = doc.ID
	file.ErrorMessage = ""
	stampFinished(file)
	if err := p.store.UpdateFile(ctx, file); err != nil {
		return Outcome{}, services.Wrap(services.ErrTransient, "review", "link", "persist duplicate result", err)
	}
	return outcomeFor(file, decision.Kind, fmt.Sprintf("content already archived as document %s", doc.ID)), nil
}

func (p *Processor) archivedDocument(ctx context.Context, file *registry.FileState) (*registry.Document, error) {
	if file.ContentHash == "" {
		return nil, nil
	}
	doc, err := p.store.FindDocumentByHash(ctx, file.ContentHash)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "review", "dedup", "look up content hash", err)
	}
	return doc, nil
}

func (p *Processor) buildDocument(file *registry.FileState) *registry.Document {
	docType := filename.TypeOther
	if parsed := parsedIdentity(file); parsed != nil {
		docType = parsed.DocumentType
	}
	return &registry.Document{
		ContentHash:  file.ContentHash,
		StoragePath:  p.blobs.PathFor(file.ContentHash, file.Extension),
		OriginalName: file.OriginalName,
		DocumentType: string(docType),
		SizeBytes:    file.SizeBytes,
	}
}

// refreshSessionStatus re-derives a finished session's status after a
// decision changed its file counts. Sessions still pending or mid-run are
// left alone; the orchestrator owns those transitions.
func (p *Processor) refreshSessionStatus(ctx context.Context, logger *slog.Logger, sessionID string) error {
	session, err := p.store.GetSession(ctx, sessionID)
	if err != nil || session == nil {
		return err
	}
	switch session.Status {
	case registry.SessionPending, registry.SessionProcessing:
		return nil
	}
	counts, err := p.store.SessionFileCounts(ctx, sessionID)
	if err != nil {
		return err
	}
	derived := counts.DerivedStatus()
	if derived == session.Status {
		return nil
	}
	if err := p.store.FinishSession(ctx, sessionID, derived); err != nil {
		return err
	}
	logger.Debug("session status refreshed",
		logging.String("status", string(derived)),
		logging.String(logging.FieldEventType, "session_refreshed"),
	)
	return nil
}

func bestCandidate(file *registry.FileState) *identity.Candidate {
	if strings.TrimSpace(file.CandidatesJSON) == "" {
		return nil
	}
	var candidates []identity.Candidate
	if err := json.Unmarshal([]byte(file.CandidatesJSON), &candidates); err != nil || len(candidates) == 0 {
		return nil
	}
	return &candidates[0]
}

func parsedIdentity(file *registry.FileState) *filename.ParsedIdentity {
	if strings.TrimSpace(file.ParsedJSON) == "" {
		return nil
	}
	var parsed filename.ParsedIdentity
	if err := json.Unmarshal([]byte(file.ParsedJSON), &parsed); err != nil {
		return nil
	}
	return &parsed
}

func stampDecision(file *registry.FileState, decision Decision) {
	now := time.Now().UTC()
	file.ReviewRequired = false
	file.ReviewCategory = ""
	file.ReviewPriority = ""
	file.ReviewNote = strings.TrimSpace(decision.Note)
	file.DecidedBy = strings.TrimSpace(decision.DecidedBy)
	file.DecidedAt = &now
}

func stampFinished(file *registry.FileState) {
	if file.FinishedAt == nil {
		now := time.Now().UTC()
		file.FinishedAt = &now
	}
}

func outcomeFor(file *registry.FileState, kind DecisionKind, message string) Outcome {
	return Outcome{
		FileID:      file.ID,
		Kind:        kind,
		FileStatus:  file.Status,
		MatchStatus: file.MatchStatus,
		PatientID:   file.PatientID,
		DocumentID:  file.DocumentID,
		Message:     message,
	}
}
