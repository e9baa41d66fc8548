package api

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"medintake/internal/blobstore"
	"medintake/internal/config"
	"medintake/internal/logging"
	"medintake/internal/pipeline"
	"medintake/internal/registry"
	"medintake/internal/review"
	"medintake/internal/services"
)

// Service wires the full pipeline behind the public operations. One Service
// owns the registry connection and should be closed when done.
type Service struct {
	cfg       *config.Config
	store     *registry.Store
	blobs     *blobstore.Store
	ingestor  *pipeline.Ingestor
	orch      *pipeline.Orchestrator
	queue     *review.Queue
	processor *review.Processor
	logger    *slog.Logger
}

// New opens the registry and blob store described by cfg and wires every
// collaborator. The configured directories are created as a side effect.
func New(cfg *config.Config, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	store, err := registry.Open(cfg)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "api", "open", "open registry", err)
	}
	blobs, err := blobstore.New(cfg.Paths.StorageDir)
	if err != nil {
		store.Close()
		return nil, services.Wrap(services.ErrConfiguration, "api", "open", "open blob store", err)
	}
	orch, err := pipeline.NewOrchestrator(cfg, store, blobs, logger)
	if err != nil {
		store.Close()
		return nil, services.Wrap(services.ErrConfiguration, "api", "open", "build orchestrator", err)
	}
	return NewWithComponents(cfg, store, blobs, orch, logger), nil
}

// NewWithComponents wires a Service from pre-built collaborators. Tests use
// it to share a store across the service and direct registry assertions.
func NewWithComponents(cfg *config.Config, store *registry.Store, blobs *blobstore.Store, orch *pipeline.Orchestrator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{
		cfg:       cfg,
		store:     store,
		blobs:     blobs,
		ingestor:  pipeline.NewIngestor(cfg, store, blobs, logger),
		orch:      orch,
		queue:     review.NewQueue(store, logger),
		processor: review.NewProcessor(cfg, store, blobs, orch, logger),
		logger:    logging.NewComponentLogger(logger, "api"),
	}
}

// Close releases the registry connection.
func (s *Service) Close() error {
	return s.store.Close()
}

// CreateSession registers a new intake batch. Mode defaults to archive.
func (s *Service) CreateSession(ctx context.Context, label, mode, createdBy string) (SessionView, error) {
	sessionMode := registry.ModeArchive
	if trimmed := strings.TrimSpace(mode); trimmed != "" {
		parsed, ok := registry.ParseSessionMode(trimmed)
		if !ok {
			return SessionView{}, services.Wrap(services.ErrValidation, "api", "create-session",
				fmt.Sprintf("unknown session mode %q", mode), nil)
		}
		sessionMode = parsed
	}
	session, err := s.store.CreateSession(ctx, strings.TrimSpace(label), sessionMode, strings.TrimSpace(createdBy))
	if err != nil {
		return SessionView{}, services.Wrap(services.ErrTransient, "api", "create-session", "create session", err)
	}
	return FromSession(session, registry.SessionCounts{}), nil
}

// UploadFiles stages the given paths into a session.
func (s *Service) UploadFiles(ctx context.Context, sessionRef string, paths []string) (UploadReport, error) {
	if len(paths) == 0 {
		return UploadReport{}, services.Wrap(services.ErrValidation, "api", "upload-files", "no files given", nil)
	}
	result, err := s.ingestor.Upload(ctx, sessionRef, paths)
	if err != nil {
		return UploadReport{}, err
	}
	return fromUploadResult(result), nil
}

// ProcessSession runs every pending file in the session through the
// pipeline and returns the run summary.
func (s *Service) ProcessSession(ctx context.Context, sessionRef string) (ProcessReport, error) {
	result, err := s.orch.ProcessSession(ctx, sessionRef)
	if err != nil {
		return ProcessReport{}, err
	}
	return fromProcessResult(result), nil
}

// SessionStatus returns the session, its aggregate counts, and every file.
func (s *Service) SessionStatus(ctx context.Context, sessionRef string) (SessionStatusView, error) {
	session, err := s.resolveSession(ctx, "session-status", sessionRef)
	if err != nil {
		return SessionStatusView{}, err
	}
	counts, err := s.store.SessionFileCounts(ctx, session.ID)
	if err != nil {
		return SessionStatusView{}, services.Wrap(services.ErrTransient, "api", "session-status", "aggregate file counts", err)
	}
	files, err := s.store.FilesBySession(ctx, session.ID)
	if err != nil {
		return SessionStatusView{}, services.Wrap(services.ErrTransient, "api", "session-status", "load session files", err)
	}
	return SessionStatusView{
		Session: FromSession(session, counts),
		Files:   FromFiles(files),
	}, nil
}

// ListSessions returns recent sessions, newest first, with their counts.
func (s *Service) ListSessions(ctx context.Context, limit int) ([]SessionView, error) {
	sessions, err := s.store.ListSessions(ctx, limit)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "api", "list-sessions", "list sessions", err)
	}
	views := make([]SessionView, 0, len(sessions))
	for _, session := range sessions {
		counts, err := s.store.SessionFileCounts(ctx, session.ID)
		if err != nil {
			return nil, services.Wrap(services.ErrTransient, "api", "list-sessions", "aggregate file counts", err)
		}
		views = append(views, FromSession(session, counts))
	}
	return views, nil
}

// ListReviewCases returns review cases matching the filter, highest priority
// first.
func (s *Service) ListReviewCases(ctx context.Context, filter review.Filter) ([]ReviewCaseView, error) {
	cases, err := s.queue.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return FromCases(cases), nil
}

// ApplyDecision applies one admin decision to one review case.
func (s *Service) ApplyDecision(ctx context.Context, req DecisionRequest) (DecisionView, error) {
	kind, ok := review.ParseDecisionKind(req.Kind)
	if !ok {
		return DecisionView{}, services.Wrap(services.ErrValidation, "api", "apply-decision",
			fmt.Sprintf("unknown decision kind %q", req.Kind), nil)
	}
	decision := review.Decision{
		Kind:      kind,
		PatientID: req.PatientID,
		Note:      req.Note,
		DecidedBy: req.DecidedBy,
	}
	if req.NewPatient != nil {
		decision.NewPatient = &review.NewPatientInput{
			RecordNumber:    req.NewPatient.RecordNumber,
			SecondaryNumber: req.NewPatient.SecondaryNumber,
			FirstNames:      req.NewPatient.FirstNames,
			LastNames:       req.NewPatient.LastNames,
		}
	}
	outcome, err := s.processor.Apply(ctx, req.FileID, decision)
	if err != nil {
		return DecisionView{}, err
	}
	return fromOutcome(outcome), nil
}

// BulkApprove approves every ambiguous-match case in the session whose
// best-match confidence meets the threshold.
func (s *Service) BulkApprove(ctx context.Context, sessionRef string, threshold float64, decidedBy string) (BulkApproveView, error) {
	result, err := s.processor.BulkApprove(ctx, sessionRef, threshold, decidedBy)
	if err != nil {
		return BulkApproveView{}, err
	}
	return fromBulkResult(result), nil
}

// SearchPatients looks patients up by name or record number fragment.
func (s *Service) SearchPatients(ctx context.Context, term string, limit int) ([]PatientView, error) {
	if strings.TrimSpace(term) == "" {
		return nil, services.Wrap(services.ErrValidation, "api", "search-patients", "search term is empty", nil)
	}
	patients, err := s.store.SearchPatients(ctx, term, limit)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "api", "search-patients", "search patients", err)
	}
	views := make([]PatientView, 0, len(patients))
	for _, patient := range patients {
		views = append(views, FromPatient(patient))
	}
	return views, nil
}

// Health summarizes registry state across all sessions.
func (s *Service) Health(ctx context.Context) (HealthView, error) {
	health, err := s.store.Health(ctx)
	if err != nil {
		return HealthView{}, services.Wrap(services.ErrTransient, "api", "health", "aggregate registry health", err)
	}
	return fromHealth(health), nil
}

func (s *Service) resolveSession(ctx context.Context, operation, ref string) (*registry.Session, error) {
	session, err := s.store.ResolveSession(ctx, ref)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "api", operation, "resolve session reference", err)
	}
	if session == nil {
		return nil, services.Wrap(services.ErrNotFound, "api", operation, fmt.Sprintf("session %q not found", ref), nil)
	}
	return session, nil
}
