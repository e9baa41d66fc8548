package review_test

import (
	"context"
	"testing"

	"medintake/internal/blobstore"
	"medintake/internal/config"
	"medintake/internal/identity"
	"medintake/internal/pipeline"
	"medintake/internal/registry"
	"medintake/internal/review"
	"medintake/internal/testsupport"
)

type harness struct {
	cfg       *config.Config
	store     *registry.Store
	blobs     *blobstore.Store
	orch      *pipeline.Orchestrator
	ing       *pipeline.Ingestor
	queue     *review.Queue
	processor *review.Processor
	dir       string
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	store := testsupport.MustOpenStore(t, cfg)
	blobs, err := blobstore.New(cfg.Paths.StorageDir)
	if err != nil {
		t.Fatalf("blobstore.New: %v", err)
	}
	orch, err := pipeline.NewOrchestrator(cfg, store, blobs, nil)
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	return &harness{
		cfg:       cfg,
		store:     store,
		blobs:     blobs,
		orch:      orch,
		ing:       pipeline.NewIngestor(cfg, store, blobs, nil),
		queue:     review.NewQueue(store, nil),
		processor: review.NewProcessor(cfg, store, blobs, orch, nil),
		dir:       t.TempDir(),
	}
}

func (h *harness) seedPatient(t *testing.T, recordNumber, fullName string) *registry.Patient {
	t.Helper()
	patient := &registry.Patient{
		RecordNumber:   recordNumber,
		FullName:       fullName,
		NormalizedName: identity.NormalizeName(fullName),
	}
	if err := h.store.CreatePatient(context.Background(), patient); err != nil {
		t.Fatalf("CreatePatient: %v", err)
	}
	return patient
}

// stageAndProcess ingests the named uploads and runs the session, returning
// the session and its files in staging order.
func (h *harness) stageAndProcess(t *testing.T, label string, uploads map[string]string) (*registry.Session, []*registry.FileState) {
	t.Helper()
	ctx := context.Background()
	session := testsupport.NewSession(t, h.store, label)
	paths := make([]string, 0, len(uploads))
	for name, content := range uploads {
		paths = append(paths, testsupport.WriteUpload(t, h.dir, name, content))
	}
	if _, err := h.ing.Upload(ctx, session.ID, paths); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if _, err := h.orch.ProcessSession(ctx, session.ID); err != nil {
		t.Fatalf("ProcessSession: %v", err)
	}
	files, err := h.store.FilesBySession(ctx, session.ID)
	if err != nil {
		t.Fatalf("FilesBySession: %v", err)
	}
	return session, files
}

// reviewCase stages one ambiguous-match upload and returns its flagged file.
// The seeded patient shares the record number but only part of the name, so
// the matcher lands in the review band.
func (h *harness) reviewCase(t *testing.T, label, record string) (*registry.Session, *registry.FileState, *registry.Patient) {
	t.Helper()
	patient := h.seedPatient(t, record, "Ana Torres Diaz")
	session, files := h.stageAndProcess(t, label, map[string]string{
		record + "_TORRES DIAZ, ANA MARIA_7_LAB.txt": "laboratorio " + label,
	})
	if len(files) != 1 {
		t.Fatalf("expected 1 file, got %d", len(files))
	}
	file := files[0]
	if file.MatchStatus != registry.MatchReviewRequired || !file.ReviewRequired {
		t.Fatalf("expected a review case, got %s/%s", file.Status, file.MatchStatus)
	}
	return session, file, patient
}
