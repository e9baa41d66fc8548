package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"medintake/internal/blobstore"
	"medintake/internal/config"
	"medintake/internal/filename"
	"medintake/internal/identity"
	"medintake/internal/logging"
	"medintake/internal/notifications"
	"medintake/internal/registry"
	"medintake/internal/services"
	"medintake/internal/services/extract"
	"medintake/internal/services/vectorindex"
)

// Orchestrator runs staged sessions through identity matching, document
// archival, and optional content indexing under a bounded worker pool.
type Orchestrator struct {
	cfg       *config.Config
	store     *registry.Store
	blobs     *blobstore.Store
	parser    *filename.Parser
	matcher   *identity.Matcher
	extractor extract.Reader
	indexer   vectorindex.Client
	notifier  notifications.Service
	logger    *slog.Logger
	lock      *flock.Flock
}

// NewOrchestrator wires an orchestrator from configuration, building the
// matcher, content reader, index client, and notifier it depends on.
func NewOrchestrator(cfg *config.Config, store *registry.Store, blobs *blobstore.Store, logger *slog.Logger) (*Orchestrator, error) {
	indexer, err := vectorindex.FromConfig(cfg.Indexing)
	if err != nil {
		return nil, err
	}
	return NewOrchestratorWithServices(cfg, store, blobs, logger, notifications.NewService(cfg), extract.New(), indexer)
}

// NewOrchestratorWithServices wires an orchestrator with explicit service
// collaborators. Tests use it to substitute the notifier, content reader,
// and index client.
func NewOrchestratorWithServices(
	cfg *config.Config,
	store *registry.Store,
	blobs *blobstore.Store,
	logger *slog.Logger,
	notifier notifications.Service,
	extractor extract.Reader,
	indexer vectorindex.Client,
) (*Orchestrator, error) {
	strategy, err := identity.ParseStrategy(cfg.Matching.Strategy)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Orchestrator{
		cfg:       cfg,
		store:     store,
		blobs:     blobs,
		parser:    filename.New(),
		matcher:   identity.NewMatcher(strategy, cfg.Matching.MaxCandidates),
		extractor: extractor,
		indexer:   indexer,
		notifier:  notifier,
		logger:    logging.NewComponentLogger(logger, "pipeline"),
		lock:      flock.New(filepath.Join(cfg.Paths.DataDir, "processing.lock")),
	}, nil
}

// FileFailure describes one file that ended a run in the failed state.
type FileFailure struct {
	FileID int64
	Name   string
	Reason string
}

// ProcessResult summarizes one processing run over a session.
type ProcessResult struct {
	SessionID string
	Status    registry.SessionStatus
	Counts    registry.SessionCounts
	Duration  time.Duration
	Failures  []FileFailure
}

// ProcessSession claims the session, runs every pending file through the
// per-file unit, and finishes the session with a status derived from the
// file counts. Dispatched files always run to completion; canceling ctx
// stops new dispatch and leaves the remaining files pending for a later run.
func (o *Orchestrator) ProcessSession(ctx context.Context, sessionRef string) (*ProcessResult, error) {
	session, err := o.store.ResolveSession(ctx, sessionRef)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "pipeline", "resolve-session", "resolve session reference", err)
	}
	if session == nil {
		return nil, services.Wrap(services.ErrNotFound, "pipeline", "resolve-session", fmt.Sprintf("session %q not found", sessionRef), nil)
	}

	locked, err := o.lock.TryLock()
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "pipeline", "lock", "acquire processing lock", err)
	}
	if !locked {
		return nil, services.Wrap(services.ErrValidation, "pipeline", "lock", "another processing run holds the data directory", nil)
	}
	defer func() {
		if err := o.lock.Unlock(); err != nil {
			o.logger.Warn("failed to release processing lock", logging.Error(err))
		}
	}()

	ctx = services.WithSessionID(ctx, session.ID)
	runLogger, closeLog := o.sessionLogger(session.ID)
	defer closeLog()
	logger := logging.WithContext(ctx, runLogger)

	if err := o.claimSession(ctx, logger, session); err != nil {
		return nil, err
	}

	start := time.Now()
	logger.Info("session processing started",
		logging.String("mode", string(session.Mode)),
		logging.String(logging.FieldEventType, "session_start"),
	)

	o.reclaimOrphans(ctx, logger, session.ID)

	files, err := o.store.PendingFiles(ctx, session.ID)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "pipeline", "dispatch", "load pending files", err)
	}

	var tally runTally
	if len(files) > 0 {
		o.dispatch(ctx, logger, session, files, &tally)
	}

	counts, err := o.store.SessionFileCounts(ctx, session.ID)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "pipeline", "finish", "aggregate file counts", err)
	}
	status := counts.DerivedStatus()
	if err := o.store.FinishSession(ctx, session.ID, status); err != nil {
		return nil, services.Wrap(services.ErrTransient, "pipeline", "finish", "finish session", err)
	}

	duration := time.Since(start)
	logger.Info("session processing finished",
		logging.String("status", string(status)),
		logging.Int("total", counts.Total),
		logging.Int("completed", counts.Completed),
		logging.Int("review", counts.Review),
		logging.Int("failed", counts.Failed),
		logging.Int("duplicates", counts.Duplicates),
		logging.Duration("session_duration", duration),
		logging.String(logging.FieldEventType, "session_complete"),
	)

	o.notifyRun(ctx, logger, session.ID, counts, duration)
	o.pruneSessionLogs(session.ID)

	return &ProcessResult{
		SessionID: session.ID,
		Status:    status,
		Counts:    counts,
		Duration:  duration,
		Failures:  tally.failures,
	}, nil
}

// claimSession flips the session into processing. The processing lock is
// held, so a session already marked processing was orphaned by an
// interrupted run and gets reset before claiming again.
func (o *Orchestrator) claimSession(ctx context.Context, logger *slog.Logger, session *registry.Session) error {
	claimed, err := o.store.BeginSessionProcessing(ctx, session.ID)
	if err != nil {
		return services.Wrap(services.ErrTransient, "pipeline", "claim", "claim session", err)
	}
	if claimed {
		return nil
	}

	logger.Info("recovering session from an interrupted run",
		logging.String(logging.FieldEventType, "session_recovered"),
	)
	session.Status = registry.SessionPending
	if err := o.store.UpdateSession(ctx, session); err != nil {
		return services.Wrap(services.ErrTransient, "pipeline", "claim", "reset interrupted session", err)
	}
	claimed, err = o.store.BeginSessionProcessing(ctx, session.ID)
	if err != nil {
		return services.Wrap(services.ErrTransient, "pipeline", "claim", "claim session", err)
	}
	if !claimed {
		return services.Wrap(services.ErrTransient, "pipeline", "claim", "session could not be claimed after reset", nil)
	}
	return nil
}

// reclaimOrphans returns files stuck in processing to pending. The stale
// sweep covers every session because the lock guarantees no other run is
// active; the per-session reset covers the session being processed
// regardless of age.
func (o *Orchestrator) reclaimOrphans(ctx context.Context, logger *slog.Logger, sessionID string) {
	if minutes := o.cfg.Processing.StaleResetMinutes; minutes > 0 {
		cutoff := time.Now().UTC().Add(-time.Duration(minutes) * time.Minute)
		if n, err := o.store.ReclaimStaleProcessing(ctx, cutoff); err != nil {
			logger.Warn("stale file reclaim failed",
				logging.Error(err),
				logging.String(logging.FieldEventType, "stale_reclaim_failed"),
			)
		} else if n > 0 {
			logger.Info("stale processing files reclaimed",
				logging.Int64("files", n),
				logging.String(logging.FieldEventType, "stale_reclaimed"),
			)
		}
	}
	if n, err := o.store.ResetStuckProcessing(ctx, sessionID); err != nil {
		logger.Warn("stuck file reset failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "stuck_reset_failed"),
		)
	} else if n > 0 {
		logger.Info("stuck processing files reset to pending",
			logging.Int64("files", n),
			logging.String(logging.FieldEventType, "stuck_reset"),
		)
	}
}

// runTally collects per-file failures across workers.
type runTally struct {
	mu       sync.Mutex
	failures []FileFailure
}

func (t *runTally) record(file *registry.FileState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failures = append(t.failures, FileFailure{
		FileID: file.ID,
		Name:   file.OriginalName,
		Reason: file.ErrorMessage,
	})
}

// dispatch feeds pending files to a fixed worker pool. The feeder honors
// ctx cancellation; files already handed to a worker run on a detached
// context so a unit is never abandoned halfway through.
func (o *Orchestrator) dispatch(ctx context.Context, logger *slog.Logger, session *registry.Session, files []*registry.FileState, tally *runTally) {
	workers := o.cfg.Processing.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(files) {
		workers = len(files)
	}

	unitCtx := context.WithoutCancel(ctx)
	tasks := make(chan *registry.FileState)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for file := range tasks {
				o.processFile(unitCtx, logger, session, file)
				if file.Status == registry.FileFailed {
					tally.record(file)
				}
			}
		}()
	}

feed:
	for _, file := range files {
		select {
		case <-ctx.Done():
			logger.Warn("processing interrupted; remaining files stay pending",
				logging.Error(ctx.Err()),
				logging.String(logging.FieldEventType, "session_interrupted"),
			)
			break feed
		case tasks <- file:
		}
	}
	close(tasks)
	wg.Wait()
}

func (o *Orchestrator) notifyRun(ctx context.Context, logger *slog.Logger, sessionID string, counts registry.SessionCounts, duration time.Duration) {
	if o.notifier == nil {
		return
	}
	if err := o.notifier.NotifySessionCompleted(ctx, sessionID, counts.Completed, counts.Failed, duration); err != nil {
		logger.Warn("session completion notification failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "notification_failed"),
		)
	}
	if counts.Review > 0 {
		if err := o.notifier.NotifyReviewRequired(ctx, sessionID, counts.Review); err != nil {
			logger.Warn("review notification failed",
				logging.Error(err),
				logging.String(logging.FieldEventType, "notification_failed"),
			)
		}
	}
}

// sessionLogger tees the orchestrator's logger into a per-session JSON log
// so each run leaves a self-contained trace. Log file problems degrade to
// the base logger instead of blocking the run.
func (o *Orchestrator) sessionLogger(sessionID string) (*slog.Logger, func()) {
	dir := o.cfg.SessionLogDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		o.logger.Warn("session log directory unavailable", logging.Error(err), logging.String("dir", dir))
		return o.logger, func() {}
	}
	path := filepath.Join(dir, sessionID+".log")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		o.logger.Warn("session log file unavailable", logging.Error(err), logging.String("path", path))
		return o.logger, func() {}
	}
	handler, err := logging.NewSessionLogHandler(file, sessionID, slog.LevelDebug)
	if err != nil {
		o.logger.Warn("session log handler unavailable", logging.Error(err))
		file.Close()
		return o.logger, func() {}
	}
	return logging.TeeLogger(o.logger, handler), func() {
		if err := file.Close(); err != nil {
			o.logger.Warn("session log close failed", logging.Error(err), logging.String("path", path))
		}
	}
}

// pruneSessionLogs applies the retention policy to per-session logs, always
// sparing the log of the run that just finished.
func (o *Orchestrator) pruneSessionLogs(sessionID string) {
	dir := o.cfg.SessionLogDir()
	logging.CleanupOldLogs(o.logger, o.cfg.Logging.RetentionDays, logging.RetentionTarget{
		Dir:     dir,
		Pattern: "*.log",
		Exclude: []string{filepath.Join(dir, sessionID+".log")},
	})
}
