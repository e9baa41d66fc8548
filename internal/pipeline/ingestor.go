package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"medintake/internal/blobstore"
	"medintake/internal/config"
	"medintake/internal/filename"
	"medintake/internal/logging"
	"medintake/internal/registry"
	"medintake/internal/services"
)

// Ingestor stages raw uploads into a session: content-addressed storage,
// filename parsing, and one registry row per file.
type Ingestor struct {
	cfg    *config.Config
	store  *registry.Store
	blobs  *blobstore.Store
	parser *filename.Parser
	logger *slog.Logger
}

// NewIngestor constructs an ingestor over the shared store and blob storage.
func NewIngestor(cfg *config.Config, store *registry.Store, blobs *blobstore.Store, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Ingestor{
		cfg:    cfg,
		store:  store,
		blobs:  blobs,
		parser: filename.New(),
		logger: logging.NewComponentLogger(logger, "ingest"),
	}
}

// UploadOutcome reports the fate of one uploaded path.
type UploadOutcome struct {
	Path      string
	File      *registry.FileState      // nil when the path was rejected before staging
	Parsed    *filename.ParsedIdentity // nil when the filename did not parse
	Failure   *filename.Failure        // set when the filename did not parse
	Duplicate bool                     // content hash already archived as a document
	Err       error                    // set when the path was rejected before staging
}

// UploadResult aggregates one upload batch.
type UploadResult struct {
	Session  *registry.Session
	Outcomes []UploadOutcome
	Stats    filename.BatchStats
	Staged   int
	Rejected int
}

// Upload validates, stores, parses, and stages the given paths into a
// session. Individual path problems are captured per outcome; only session
// resolution and registry failures abort the batch.
func (i *Ingestor) Upload(ctx context.Context, sessionRef string, paths []string) (*UploadResult, error) {
	session, err := i.store.ResolveSession(ctx, sessionRef)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "ingest", "resolve-session", "resolve session reference", err)
	}
	if session == nil {
		return nil, services.Wrap(services.ErrNotFound, "ingest", "resolve-session", fmt.Sprintf("session %q not found", sessionRef), nil)
	}
	if session.Status == registry.SessionProcessing {
		return nil, services.Wrap(services.ErrValidation, "ingest", "resolve-session", "session is processing; wait for the run to finish before uploading", nil)
	}

	ctx = services.WithSessionID(ctx, session.ID)
	logger := logging.WithContext(ctx, i.logger)

	result := &UploadResult{Session: session, Outcomes: make([]UploadOutcome, 0, len(paths))}
	allowed := i.allowedExtensions()
	maxBytes := int64(i.cfg.Processing.MaxFileSizeMiB) * 1024 * 1024

	type staged struct {
		outcome int // index into result.Outcomes
		name    string
		blob    blobstore.Blob
	}
	var accepted []staged
	for _, p := range paths {
		outcome := UploadOutcome{Path: p}
		name := filepath.Base(p)
		ext := strings.ToLower(filepath.Ext(name))

		if rejectErr := i.validateUpload(p, ext, maxBytes, allowed); rejectErr != nil {
			outcome.Err = rejectErr
			result.Rejected++
			result.Outcomes = append(result.Outcomes, outcome)
			logger.Warn("upload rejected",
				logging.String("file", name),
				logging.Error(rejectErr),
				logging.String(logging.FieldEventType, "upload_rejected"),
			)
			continue
		}

		blob, err := i.blobs.Ingest(p)
		if err != nil {
			outcome.Err = services.Wrap(services.ErrTransient, "ingest", "store", fmt.Sprintf("store %s", name), err)
			result.Rejected++
			result.Outcomes = append(result.Outcomes, outcome)
			logger.Warn("upload storage failed",
				logging.String("file", name),
				logging.Error(err),
				logging.String(logging.FieldEventType, "upload_store_failed"),
			)
			continue
		}

		result.Outcomes = append(result.Outcomes, outcome)
		accepted = append(accepted, staged{outcome: len(result.Outcomes) - 1, name: name, blob: blob})
	}

	if len(accepted) == 0 {
		return result, nil
	}

	names := make([]string, len(accepted))
	for idx, entry := range accepted {
		names[idx] = entry.name
	}
	parseResults, stats := i.parser.ParseAll(names)
	result.Stats = stats

	rows := make([]registry.NewSessionFile, len(accepted))
	for idx, entry := range accepted {
		row := registry.NewSessionFile{
			OriginalName: entry.name,
			Extension:    strings.ToLower(filepath.Ext(entry.name)),
			SizeBytes:    entry.blob.Size,
			ContentHash:  entry.blob.Hash,
		}
		if parsed := parseResults[entry.name]; parsed.OK() {
			encoded, err := json.Marshal(parsed.Identity)
			if err != nil {
				return nil, services.Wrap(services.ErrTransient, "ingest", "stage", "encode parsed identity", err)
			}
			row.ParsedJSON = string(encoded)
		}
		rows[idx] = row
	}

	files, err := i.store.AddFiles(ctx, session.ID, rows)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "ingest", "stage", "stage session files", err)
	}
	result.Staged = len(files)

	for idx, entry := range accepted {
		outcome := &result.Outcomes[entry.outcome]
		outcome.File = files[idx]
		parse := parseResults[entry.name]
		outcome.Parsed = parse.Identity
		outcome.Failure = parse.Failure

		existing, err := i.store.FindDocumentByHash(ctx, entry.blob.Hash)
		if err != nil {
			return nil, services.Wrap(services.ErrTransient, "ingest", "stage", "probe duplicate content", err)
		}
		outcome.Duplicate = existing != nil

		logger.Info("upload staged",
			logging.Int64(logging.FieldFileID, files[idx].ID),
			logging.String("file", entry.name),
			logging.Int64("size_bytes", entry.blob.Size),
			logging.Bool("parsed", parse.OK()),
			logging.Bool("duplicate", outcome.Duplicate),
			logging.String(logging.FieldEventType, "upload_staged"),
		)
	}

	logger.Info("upload batch staged",
		logging.Int("staged", result.Staged),
		logging.Int("rejected", result.Rejected),
		logging.Int("parse_failures", stats.Failed),
		logging.Float64("parse_success_rate", stats.SuccessRate),
		logging.String(logging.FieldEventType, "upload_batch_staged"),
	)
	return result, nil
}

func (i *Ingestor) validateUpload(path, ext string, maxBytes int64, allowed map[string]struct{}) error {
	info, err := os.Stat(path)
	if err != nil {
		return services.Wrap(services.ErrValidation, "ingest", "validate", fmt.Sprintf("upload path %s is not readable", path), err)
	}
	if info.IsDir() {
		return services.Wrap(services.ErrValidation, "ingest", "validate", fmt.Sprintf("upload path %s is a directory", path), nil)
	}
	if ext == "" {
		return services.Wrap(services.ErrValidation, "ingest", "validate", "filename has no extension", nil)
	}
	if _, ok := allowed[ext]; !ok {
		return services.Wrap(services.ErrValidation, "ingest", "validate", fmt.Sprintf("extension %s is not allowed", ext), nil)
	}
	if maxBytes > 0 && info.Size() > maxBytes {
		return services.Wrap(services.ErrValidation, "ingest", "validate",
			fmt.Sprintf("file is %d bytes, limit is %d MiB", info.Size(), i.cfg.Processing.MaxFileSizeMiB), nil)
	}
	return nil
}

func (i *Ingestor) allowedExtensions() map[string]struct{} {
	allowed := make(map[string]struct{}, len(i.cfg.Processing.AllowedExtensions))
	for _, ext := range i.cfg.Processing.AllowedExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		allowed[ext] = struct{}{}
	}
	return allowed
}
