package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"medintake/internal/filename"
	"medintake/internal/identity"
	"medintake/internal/logging"
	"medintake/internal/registry"
	"medintake/internal/services"
	"medintake/internal/services/vectorindex"
)

// processFile claims one staged file and runs it to a terminal state. Every
// failure, panics included, is captured on the file row; nothing propagates
// to sibling files.
func (o *Orchestrator) processFile(ctx context.Context, logger *slog.Logger, session *registry.Session, file *registry.FileState) {
	ctx = services.WithFileID(ctx, file.ID)
	logger = logging.WithContext(ctx, logger)

	claimed, err := o.store.ClaimFile(ctx, file.ID)
	if err != nil {
		logger.Error("failed to claim file",
			logging.Error(err),
			logging.String("file", file.OriginalName),
			logging.String(logging.FieldEventType, "file_claim_failed"),
		)
		return
	}
	if !claimed {
		logger.Debug("file no longer pending; skipping", logging.String("file", file.OriginalName))
		return
	}
	file.Status = registry.FileProcessing
	started := time.Now().UTC()
	file.StartedAt = &started

	defer func() {
		if r := recover(); r != nil {
			file.SetFailed(fmt.Sprintf("panic: %v", r))
			stampFinished(file)
			if err := o.store.UpdateFile(ctx, file); err != nil {
				logger.Error("failed to persist panic failure", logging.Error(err))
			}
			logger.Error("file processing panicked",
				logging.String("file", file.OriginalName),
				logging.String("panic", fmt.Sprint(r)),
				logging.String("stack", string(debug.Stack())),
				logging.Alert("file_panic"),
				logging.String(logging.FieldEventType, "file_panic"),
			)
		}
	}()

	logger.Info("file processing started",
		logging.String("file", file.OriginalName),
		logging.String(logging.FieldEventType, "file_start"),
	)

	if err := o.runUnit(ctx, logger, session, file); err != nil {
		o.failFile(ctx, logger, file, err)
		return
	}

	logger.Info("file processing finished",
		logging.String("file", file.OriginalName),
		logging.String("status", string(file.Status)),
		logging.String("match_status", string(file.MatchStatus)),
		logging.Duration("file_duration", time.Since(started)),
		logging.String(logging.FieldEventType, "file_complete"),
	)
}

// runUnit is the per-file pipeline: duplicate detection, identity parsing,
// patient matching, routing, archival, and optional indexing. Domain
// outcomes (review flags, duplicates) persist state and return nil; only
// infrastructure faults return an error.
func (o *Orchestrator) runUnit(ctx context.Context, logger *slog.Logger, session *registry.Session, file *registry.FileState) error {
	if file.ContentHash != "" {
		existing, err := o.store.FindDocumentByHash(ctx, file.ContentHash)
		if err != nil {
			return services.Wrap(services.ErrTransient, "pipeline", "dedup", "look up content hash", err)
		}
		if existing != nil {
			return o.completeDuplicate(ctx, logger, session, file, existing)
		}
	}

	parsed, parseFailure, err := o.identityFor(file)
	if err != nil {
		return err
	}
	if parseFailure != nil {
		return o.flagParseFailure(ctx, logger, file, parseFailure)
	}

	patients, err := o.store.AllPatients(ctx)
	if err != nil {
		return services.Wrap(services.ErrTransient, "pipeline", "match", "load patient candidates", err)
	}
	candidates := make([]registry.Patient, len(patients))
	for idx, patient := range patients {
		candidates[idx] = *patient
	}
	match := o.matcher.Match(parsed, candidates)
	if err := applyMatch(file, match); err != nil {
		return err
	}

	best := match.Best
	switch {
	case best != nil && best.Confidence >= o.cfg.Matching.AutoLinkThreshold:
		return o.linkExisting(ctx, logger, session, file, parsed, best)
	case best != nil && best.Confidence >= o.cfg.Matching.ReviewThreshold:
		return o.flagForReview(ctx, logger, file, best)
	default:
		return o.createPatient(ctx, logger, session, file, parsed, best)
	}
}

// identityFor returns the identity parsed at upload time, reparsing the
// original name when the row predates staging or carries an unreadable
// payload.
func (o *Orchestrator) identityFor(file *registry.FileState) (*filename.ParsedIdentity, *filename.Failure, error) {
	if strings.TrimSpace(file.ParsedJSON) != "" {
		var parsed filename.ParsedIdentity
		if err := json.Unmarshal([]byte(file.ParsedJSON), &parsed); err == nil && parsed.FullName != "" {
			return &parsed, nil, nil
		}
	}
	result := o.parser.Parse(file.OriginalName)
	if !result.OK() {
		return nil, result.Failure, nil
	}
	encoded, err := json.Marshal(result.Identity)
	if err != nil {
		return nil, nil, services.Wrap(services.ErrTransient, "pipeline", "parse", "encode parsed identity", err)
	}
	file.ParsedJSON = string(encoded)
	return result.Identity, nil, nil
}

// applyMatch records the retained candidates and the best score on the file
// row so review decisions can show what the matcher saw.
func applyMatch(file *registry.FileState, match identity.Result) error {
	if len(match.Candidates) > 0 {
		encoded, err := json.Marshal(match.Candidates)
		if err != nil {
			return services.Wrap(services.ErrTransient, "pipeline", "match", "encode match candidates", err)
		}
		file.CandidatesJSON = string(encoded)
	}
	if match.Best != nil {
		file.MatchConfidence = match.Best.Confidence
		file.MatchTier = string(match.Best.Tier)
	}
	return nil
}

func (o *Orchestrator) flagParseFailure(ctx context.Context, logger *slog.Logger, file *registry.FileState, failure *filename.Failure) error {
	file.MatchStatus = registry.MatchParseFailed
	file.SetReview(registry.ReviewCategoryParsing, registry.ReviewPriorityHigh, "")
	file.ErrorMessage = failure.Reason
	if err := o.store.UpdateFile(ctx, file); err != nil {
		return services.Wrap(services.ErrTransient, "pipeline", "parse", "persist parse failure", err)
	}
	attrs := append(logging.DecisionAttrs("identity_parse", "review_required", failure.Reason),
		logging.String("file", file.OriginalName),
		logging.String(logging.FieldEventType, "parse_failed"),
	)
	logger.Info("filename did not parse; flagged for review", logging.Args(attrs...)...)
	return nil
}

func (o *Orchestrator) flagForReview(ctx context.Context, logger *slog.Logger, file *registry.FileState, best *identity.Candidate) error {
	file.MatchStatus = registry.MatchReviewRequired
	file.SetReview(registry.ReviewCategoryMatching, registry.PriorityForConfidence(best.Confidence), "")
	if err := o.store.UpdateFile(ctx, file); err != nil {
		return services.Wrap(services.ErrTransient, "pipeline", "match", "persist review flag", err)
	}
	attrs := append(logging.DecisionAttrs("identity_match", "review_required",
		fmt.Sprintf("best candidate %s scored %.2f, below the auto-link threshold", best.DisplayName, best.Confidence)),
		logging.String("file", file.OriginalName),
		logging.Float64(logging.FieldConfidence, best.Confidence),
		logging.String(logging.FieldMatchTier, string(best.Tier)),
		logging.String(logging.FieldPatientID, best.PatientID),
		logging.String(logging.FieldEventType, "match_review"),
	)
	logger.Info("match needs review", logging.Args(attrs...)...)
	return nil
}

// linkExisting archives the document against the matched patient. A hash
// conflict on insert means another worker archived identical content during
// this run; the file converts to a duplicate of that document.
func (o *Orchestrator) linkExisting(ctx context.Context, logger *slog.Logger, session *registry.Session, file *registry.FileState, parsed *filename.ParsedIdentity, best *identity.Candidate) error {
	patient, err := o.store.GetPatient(ctx, best.PatientID)
	if err != nil {
		return services.Wrap(services.ErrTransient, "pipeline", "link", "load matched patient", err)
	}
	if patient == nil {
		return services.Wrap(services.ErrNotFound, "pipeline", "link", fmt.Sprintf("matched patient %s no longer exists", best.PatientID), nil)
	}

	file.MatchStatus = registry.MatchAutoLinked
	file.MatchConfidence = best.Confidence
	file.MatchTier = string(best.Tier)
	file.Status = registry.FileCompleted
	file.ErrorMessage = ""
	doc := o.buildDocument(file, parsed, patient.ID)
	if err := o.store.CompleteFileExistingPatient(ctx, file, doc); err != nil {
		if registry.IsUniqueViolation(err) {
			return o.convertToDuplicate(ctx, logger, session, file)
		}
		return services.Wrap(services.ErrTransient, "pipeline", "archive", "persist document", err)
	}
	if err := o.indexIfRequested(ctx, logger, session, file, patient, doc); err != nil {
		return err
	}

	attrs := append(logging.DecisionAttrs("identity_match", "auto_linked",
		fmt.Sprintf("%s at %.2f", strings.Join(best.Reasons, "; "), best.Confidence)),
		logging.String("file", file.OriginalName),
		logging.String(logging.FieldPatientID, patient.ID),
		logging.String(logging.FieldDocumentID, doc.ID),
		logging.Float64(logging.FieldConfidence, best.Confidence),
		logging.String(logging.FieldMatchTier, string(best.Tier)),
		logging.String(logging.FieldEventType, "auto_linked"),
	)
	logger.Info("patient auto-linked", logging.Args(attrs...)...)
	return nil
}

// createPatient registers a provisional patient and archives the document
// against it. A sibling worker may have just registered the same person, so
// the record number gets one last look before minting a new row.
func (o *Orchestrator) createPatient(ctx context.Context, logger *slog.Logger, session *registry.Session, file *registry.FileState, parsed *filename.ParsedIdentity, best *identity.Candidate) error {
	if record := strings.TrimSpace(parsed.RecordNumber); record != "" {
		existing, err := o.store.FindPatientByRecordNumber(ctx, record)
		if err != nil {
			return services.Wrap(services.ErrTransient, "pipeline", "match", "look up record number", err)
		}
		if existing != nil {
			rematch := o.matcher.Match(parsed, []registry.Patient{*existing})
			if rematch.Best != nil && rematch.Best.Confidence >= o.cfg.Matching.AutoLinkThreshold {
				if err := applyMatch(file, rematch); err != nil {
					return err
				}
				return o.linkExisting(ctx, logger, session, file, parsed, rematch.Best)
			}
		}
	}

	patient := &registry.Patient{
		RecordNumber:    parsed.RecordNumber,
		SecondaryNumber: parsed.SecondaryNumber,
		FirstNames:      parsed.GivenNames,
		LastNames:       joinSurnames(parsed.PaternalSurname, parsed.MaternalSurname),
		FullName:        parsed.FullName,
		NormalizedName:  identity.NormalizeName(parsed.FullName),
		Provisional:     true,
	}
	file.MatchStatus = registry.MatchNewPatient
	file.Status = registry.FileCompleted
	file.ErrorMessage = ""
	doc := o.buildDocument(file, parsed, "")
	if err := o.store.CompleteFileNewPatient(ctx, file, patient, doc); err != nil {
		if registry.IsUniqueViolation(err) {
			return o.convertToDuplicate(ctx, logger, session, file)
		}
		return services.Wrap(services.ErrTransient, "pipeline", "archive", "persist patient and document", err)
	}
	if err := o.indexIfRequested(ctx, logger, session, file, patient, doc); err != nil {
		return err
	}

	reason := "no candidate reached the review threshold"
	if best != nil {
		reason = fmt.Sprintf("best candidate %s scored %.2f, below the review threshold", best.DisplayName, best.Confidence)
	}
	attrs := append(logging.DecisionAttrs("identity_match", "new_patient", reason),
		logging.String("file", file.OriginalName),
		logging.String(logging.FieldPatientID, patient.ID),
		logging.String(logging.FieldDocumentID, doc.ID),
		logging.String(logging.FieldRecordNumber, patient.RecordNumber),
		logging.String(logging.FieldEventType, "patient_created"),
	)
	logger.Info("provisional patient created", logging.Args(attrs...)...)
	return nil
}

// convertToDuplicate resolves a hash conflict by re-fetching the document
// that won the race and completing the file against it.
func (o *Orchestrator) convertToDuplicate(ctx context.Context, logger *slog.Logger, session *registry.Session, file *registry.FileState) error {
	existing, err := o.store.FindDocumentByHash(ctx, file.ContentHash)
	if err != nil {
		return services.Wrap(services.ErrTransient, "pipeline", "dedup", "look up content hash", err)
	}
	if existing == nil {
		return services.Wrap(services.ErrTransient, "pipeline", "dedup", "document conflict without an archived copy", nil)
	}
	return o.completeDuplicate(ctx, logger, session, file, existing)
}

// completeDuplicate finishes a file whose content is already archived. The
// file inherits the existing document's patient link; nothing new is
// stored. Indexing is retried first when a prior run left it undone, so a
// failure there leaves the file retryable.
func (o *Orchestrator) completeDuplicate(ctx context.Context, logger *slog.Logger, session *registry.Session, file *registry.FileState, doc *registry.Document) error {
	if session.Mode == registry.ModeIndex && !doc.Indexed {
		patient, err := o.store.GetPatient(ctx, doc.PatientID)
		if err != nil {
			return services.Wrap(services.ErrTransient, "pipeline", "dedup", "load archived patient", err)
		}
		if err := o.indexDocument(ctx, logger, file, patient, doc); err != nil {
			return err
		}
	}

	file.Status = registry.FileCompleted
	file.MatchStatus = registry.MatchAutoLinked
	file.PatientID = doc.PatientID
	file.DocumentID = doc.ID
	file.DuplicateOf = doc.ID
	file.ErrorMessage = ""
	file.ReviewRequired = false
	file.ReviewCategory = ""
	file.ReviewPriority = ""
	stampFinished(file)
	if err := o.store.UpdateFile(ctx, file); err != nil {
		return services.Wrap(services.ErrTransient, "pipeline", "dedup", "persist duplicate result", err)
	}

	logger.Info("duplicate content resolved against archived document",
		logging.String("file", file.OriginalName),
		logging.String(logging.FieldDocumentID, doc.ID),
		logging.String(logging.FieldPatientID, doc.PatientID),
		logging.String(logging.FieldEventType, "duplicate_content"),
	)
	return nil
}

func (o *Orchestrator) buildDocument(file *registry.FileState, parsed *filename.ParsedIdentity, patientID string) *registry.Document {
	return &registry.Document{
		PatientID:    patientID,
		ContentHash:  file.ContentHash,
		StoragePath:  o.blobs.PathFor(file.ContentHash, file.Extension),
		OriginalName: file.OriginalName,
		DocumentType: string(parsed.DocumentType),
		SizeBytes:    file.SizeBytes,
	}
}

func (o *Orchestrator) indexIfRequested(ctx context.Context, logger *slog.Logger, session *registry.Session, file *registry.FileState, patient *registry.Patient, doc *registry.Document) error {
	if session.Mode != registry.ModeIndex {
		return nil
	}
	return o.indexDocument(ctx, logger, file, patient, doc)
}

// indexDocument extracts document text, falls back to identity metadata for
// binary formats, and pushes the content to the index service. The document
// row is already committed, so an error here fails only the file; the retry
// path re-enters through duplicate detection and heals the index flag.
func (o *Orchestrator) indexDocument(ctx context.Context, logger *slog.Logger, file *registry.FileState, patient *registry.Patient, doc *registry.Document) error {
	content, err := o.extractor.Read(ctx, doc.StoragePath)
	if err != nil {
		return services.Wrap(services.ErrTransient, "extract", "read", "read document content", err)
	}
	text := strings.TrimSpace(content.Text)
	extracted := text != ""
	if !extracted {
		text = metadataText(patient, doc)
	}

	payload := vectorindex.Document{
		DocumentID:   doc.ID,
		PatientID:    doc.PatientID,
		SessionID:    file.SessionID,
		Title:        doc.OriginalName,
		DocumentType: doc.DocumentType,
		ContentHash:  doc.ContentHash,
		Content:      text,
	}
	if err := o.indexer.IndexDocument(ctx, payload); err != nil {
		return services.Wrap(services.ErrExternal, "vectorindex", "index", "push document content", err)
	}
	if err := o.store.MarkDocumentIndexed(ctx, doc.ID, true); err != nil {
		return services.Wrap(services.ErrTransient, "pipeline", "index", "record indexed flag", err)
	}
	doc.Indexed = true

	logger.Debug("document indexed",
		logging.String(logging.FieldDocumentID, doc.ID),
		logging.Bool("text_extracted", extracted),
		logging.String("mime", content.MIME),
	)
	return nil
}

// metadataText builds index content for formats the reader cannot extract
// text from.
func metadataText(patient *registry.Patient, doc *registry.Document) string {
	parts := make([]string, 0, 3)
	if patient != nil && strings.TrimSpace(patient.FullName) != "" {
		parts = append(parts, patient.FullName)
	}
	if doc.DocumentType != "" {
		parts = append(parts, strings.ReplaceAll(doc.DocumentType, "_", " "))
	}
	if doc.OriginalName != "" {
		parts = append(parts, doc.OriginalName)
	}
	return strings.Join(parts, "\n")
}

// failFile converts a unit error into terminal file state. Validation and
// not-found faults route to review; everything else marks the file failed
// so an admin can retry it.
func (o *Orchestrator) failFile(ctx context.Context, logger *slog.Logger, file *registry.FileState, unitErr error) {
	details := services.Details(unitErr)
	message := strings.TrimSpace(details.Message)
	if message == "" {
		message = strings.TrimSpace(unitErr.Error())
	}

	if services.FailureStatus(unitErr) == registry.FileReview {
		file.SetReview(registry.ReviewCategoryProcessing, registry.ReviewPriorityHigh, "")
		file.ErrorMessage = message
	} else {
		file.SetFailed(message)
	}
	stampFinished(file)

	attrs := []logging.Attr{
		logging.String("file", file.OriginalName),
		logging.String("resolved_status", string(file.Status)),
		logging.String("error_message", message),
		logging.Alert("file_failure"),
		logging.String(logging.FieldErrorKind, string(details.Kind)),
		logging.String(logging.FieldErrorOperation, details.Operation),
	}
	if details.Hint != "" {
		attrs = append(attrs, logging.String(logging.FieldErrorHint, details.Hint))
	}
	if details.Cause != nil {
		attrs = append(attrs, logging.Error(details.Cause))
	} else {
		attrs = append(attrs, logging.Error(unitErr))
	}
	attrs = append(attrs, logging.String(logging.FieldEventType, "file_failure"))
	logger.Error("file processing failed", logging.Args(attrs...)...)

	if err := o.store.UpdateFile(ctx, file); err != nil {
		logger.Error("failed to persist file failure", logging.Error(err))
	}
}

func joinSurnames(paternal, maternal string) string {
	return strings.TrimSpace(strings.Join(strings.Fields(paternal+" "+maternal), " "))
}

func stampFinished(file *registry.FileState) {
	now := time.Now().UTC()
	file.FinishedAt = &now
}
