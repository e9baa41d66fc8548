package api_test

import (
	"context"
	"errors"
	"testing"

	"medintake/internal/api"
	"medintake/internal/blobstore"
	"medintake/internal/identity"
	"medintake/internal/pipeline"
	"medintake/internal/registry"
	"medintake/internal/review"
	"medintake/internal/services"
	"medintake/internal/testsupport"
)

type fixture struct {
	service *api.Service
	store   *registry.Store
	dir     string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	blobs, err := blobstore.New(cfg.Paths.StorageDir)
	if err != nil {
		t.Fatalf("blobstore.New: %v", err)
	}
	orch, err := pipeline.NewOrchestrator(cfg, store, blobs, nil)
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	return &fixture{
		service: api.NewWithComponents(cfg, store, blobs, orch, nil),
		store:   store,
		dir:     t.TempDir(),
	}
}

func TestCreateSessionValidatesMode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.service.CreateSession(ctx, "turno manana", "", "admin")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if session.Mode != string(registry.ModeArchive) {
		t.Fatalf("expected archive mode by default, got %s", session.Mode)
	}
	if session.Status != string(registry.SessionPending) {
		t.Fatalf("expected pending session, got %s", session.Status)
	}
	if session.ID == "" || session.CreatedAt == "" {
		t.Fatalf("incomplete view: %+v", session)
	}

	if _, err := f.service.CreateSession(ctx, "bad", "streaming", "admin"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for unknown mode, got %v", err)
	}
}

func TestUploadProcessStatusRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.service.CreateSession(ctx, "escaneo lote 4", "archive", "admin")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	paths := []string{
		testsupport.WriteUpload(t, f.dir, "0001234567_GARZA TIJERINA, MARIA ESTHER_2_CONS.txt", "consulta"),
		testsupport.WriteUpload(t, f.dir, "not_a_convention.txt", "sin convencion"),
	}
	upload, err := f.service.UploadFiles(ctx, session.ID, paths)
	if err != nil {
		t.Fatalf("UploadFiles: %v", err)
	}
	if upload.Staged != 2 || upload.Rejected != 0 {
		t.Fatalf("unexpected upload report: %+v", upload)
	}
	if upload.ParseFailures != 1 || upload.ParseSuccessRate != 0.5 {
		t.Fatalf("unexpected parse stats: %+v", upload)
	}
	if upload.TypeCounts["consultation"] != 1 {
		t.Fatalf("unexpected type counts: %v", upload.TypeCounts)
	}

	process, err := f.service.ProcessSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("ProcessSession: %v", err)
	}
	if process.Status != string(registry.SessionPartiallyFailed) {
		t.Fatalf("expected partially_failed with one review file, got %s", process.Status)
	}
	if process.Counts.Completed != 1 || process.Counts.Review != 1 {
		t.Fatalf("unexpected counts: %+v", process.Counts)
	}

	status, err := f.service.SessionStatus(ctx, session.ID)
	if err != nil {
		t.Fatalf("SessionStatus: %v", err)
	}
	if status.Session.ID != session.ID || len(status.Files) != 2 {
		t.Fatalf("unexpected status view: session %s, %d files", status.Session.ID, len(status.Files))
	}
	byName := make(map[string]api.FileView, len(status.Files))
	for _, file := range status.Files {
		byName[file.OriginalName] = file
	}
	completed := byName["0001234567_GARZA TIJERINA, MARIA ESTHER_2_CONS.txt"]
	if completed.Status != string(registry.FileCompleted) || completed.MatchStatus != string(registry.MatchNewPatient) {
		t.Fatalf("unexpected completed file view: %+v", completed)
	}
	if completed.PatientID == "" || completed.DocumentID == "" {
		t.Fatalf("completed file missing links: %+v", completed)
	}
	flagged := byName["not_a_convention.txt"]
	if !flagged.NeedsReview || flagged.ReviewCategory != registry.ReviewCategoryParsing {
		t.Fatalf("unexpected flagged file view: %+v", flagged)
	}

	sessions, err := f.service.ListSessions(ctx, 10)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].Counts.Total != 2 {
		t.Fatalf("unexpected session list: %+v", sessions)
	}

	health, err := f.service.Health(ctx)
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if health.TotalFiles != 2 || health.Patients != 1 || health.Documents != 1 {
		t.Fatalf("unexpected health view: %+v", health)
	}
}

func TestSessionStatusUnknownSession(t *testing.T) {
	f := newFixture(t)
	if _, err := f.service.SessionStatus(context.Background(), "missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestUploadFilesRequiresPaths(t *testing.T) {
	f := newFixture(t)
	if _, err := f.service.UploadFiles(context.Background(), "whatever", nil); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestReviewFlowThroughService(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// A patient sharing the record number but missing a middle name lands
	// the upload in the ambiguous-match band.
	patient := &registry.Patient{
		RecordNumber:   "0007778888",
		FullName:       "Ana Torres Diaz",
		NormalizedName: identity.NormalizeName("Ana Torres Diaz"),
	}
	if err := f.store.CreatePatient(ctx, patient); err != nil {
		t.Fatalf("CreatePatient: %v", err)
	}

	session, err := f.service.CreateSession(ctx, "revision", "archive", "admin")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	paths := []string{
		testsupport.WriteUpload(t, f.dir, "0007778888_TORRES DIAZ, ANA MARIA_7_LAB.txt", "laboratorio"),
	}
	if _, err := f.service.UploadFiles(ctx, session.ID, paths); err != nil {
		t.Fatalf("UploadFiles: %v", err)
	}
	if _, err := f.service.ProcessSession(ctx, session.ID); err != nil {
		t.Fatalf("ProcessSession: %v", err)
	}

	cases, err := f.service.ListReviewCases(ctx, review.Filter{SessionRef: session.ID})
	if err != nil {
		t.Fatalf("ListReviewCases: %v", err)
	}
	if len(cases) != 1 {
		t.Fatalf("expected 1 review case, got %d", len(cases))
	}
	c := cases[0]
	if c.Category != registry.ReviewCategoryMatching || c.Best == nil || c.Best.PatientID != patient.ID {
		t.Fatalf("unexpected case view: %+v", c)
	}

	if _, err := f.service.ApplyDecision(ctx, api.DecisionRequest{FileID: c.FileID, Kind: "banish"}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for unknown kind, got %v", err)
	}

	decision, err := f.service.ApplyDecision(ctx, api.DecisionRequest{
		FileID:    c.FileID,
		Kind:      "approve-match",
		Note:      "same person",
		DecidedBy: "dr.soto",
	})
	if err != nil {
		t.Fatalf("ApplyDecision: %v", err)
	}
	if decision.FileStatus != string(registry.FileCompleted) || decision.PatientID != patient.ID {
		t.Fatalf("unexpected decision view: %+v", decision)
	}

	status, err := f.service.SessionStatus(ctx, session.ID)
	if err != nil {
		t.Fatalf("SessionStatus: %v", err)
	}
	if status.Session.Status != string(registry.SessionCompleted) {
		t.Fatalf("expected session completed after decision, got %s", status.Session.Status)
	}
}

func TestBulkApproveThroughService(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	patient := &registry.Patient{
		RecordNumber:   "0001112222",
		FullName:       "Ana Maria Torres Dias",
		NormalizedName: identity.NormalizeName("Ana Maria Torres Dias"),
	}
	if err := f.store.CreatePatient(ctx, patient); err != nil {
		t.Fatalf("CreatePatient: %v", err)
	}

	session, err := f.service.CreateSession(ctx, "bulk", "archive", "admin")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	paths := []string{
		testsupport.WriteUpload(t, f.dir, "0001112222_TORRES DIAZ, ANA MARIA_7_LAB.txt", "laboratorio"),
	}
	if _, err := f.service.UploadFiles(ctx, session.ID, paths); err != nil {
		t.Fatalf("UploadFiles: %v", err)
	}
	if _, err := f.service.ProcessSession(ctx, session.ID); err != nil {
		t.Fatalf("ProcessSession: %v", err)
	}

	result, err := f.service.BulkApprove(ctx, session.ID, 0.9, "dr.soto")
	if err != nil {
		t.Fatalf("BulkApprove: %v", err)
	}
	if result.Approved != 1 || result.Failed != 0 {
		t.Fatalf("unexpected bulk view: %+v", result)
	}
	if len(result.Items) != 1 || !result.Items[0].Approved {
		t.Fatalf("unexpected bulk items: %+v", result.Items)
	}
}

func TestSearchPatients(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	patient := &registry.Patient{
		RecordNumber:   "0009990000",
		FullName:       "Hugo Rogelio Navarro Ponce",
		NormalizedName: identity.NormalizeName("Hugo Rogelio Navarro Ponce"),
	}
	if err := f.store.CreatePatient(ctx, patient); err != nil {
		t.Fatalf("CreatePatient: %v", err)
	}

	if _, err := f.service.SearchPatients(ctx, "   ", 10); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for empty term, got %v", err)
	}

	found, err := f.service.SearchPatients(ctx, "navarro", 10)
	if err != nil {
		t.Fatalf("SearchPatients: %v", err)
	}
	if len(found) != 1 || found[0].ID != patient.ID {
		t.Fatalf("unexpected search result: %+v", found)
	}
}
