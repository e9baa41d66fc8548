package pipeline

import (
	"context"
	"fmt"

	"medintake/internal/logging"
	"medintake/internal/registry"
	"medintake/internal/services"
)

// ReprocessFile runs a single pending file through the per-file unit outside
// a full session pass. Review decisions use it to retry a file after its
// error state was cleared; the claim-by-status transition keeps it mutually
// exclusive with a concurrent orchestrator run over the same session.
func (o *Orchestrator) ReprocessFile(ctx context.Context, fileID int64) (*registry.FileState, error) {
	file, err := o.store.GetFile(ctx, fileID)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "pipeline", "reprocess", "load file", err)
	}
	if file == nil {
		return nil, services.Wrap(services.ErrNotFound, "pipeline", "reprocess", fmt.Sprintf("file %d not found", fileID), nil)
	}
	if file.Status != registry.FilePending {
		return nil, services.Wrap(services.ErrValidation, "pipeline", "reprocess",
			fmt.Sprintf("file %d is %s, not pending; reset it before reprocessing", fileID, file.Status), nil)
	}

	session, err := o.store.GetSession(ctx, file.SessionID)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "pipeline", "reprocess", "load session", err)
	}
	if session == nil {
		return nil, services.Wrap(services.ErrNotFound, "pipeline", "reprocess", fmt.Sprintf("session %s not found", file.SessionID), nil)
	}

	ctx = services.WithSessionID(ctx, session.ID)
	logger := logging.WithContext(ctx, o.logger)
	o.processFile(ctx, logger, session, file)

	updated, err := o.store.GetFile(ctx, fileID)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "pipeline", "reprocess", "reload file", err)
	}
	return updated, nil
}
