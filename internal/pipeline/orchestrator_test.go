package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"medintake/internal/blobstore"
	"medintake/internal/config"
	"medintake/internal/identity"
	"medintake/internal/registry"
	"medintake/internal/services"
	"medintake/internal/services/extract"
	"medintake/internal/services/vectorindex"
	"medintake/internal/testsupport"
)

type harness struct {
	cfg   *config.Config
	store *registry.Store
	blobs *blobstore.Store
	orch  *Orchestrator
	ing   *Ingestor
	dir   string
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	store := testsupport.MustOpenStore(t, cfg)
	blobs, err := blobstore.New(cfg.Paths.StorageDir)
	if err != nil {
		t.Fatalf("blobstore.New: %v", err)
	}
	orch, err := NewOrchestrator(cfg, store, blobs, nil)
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	return &harness{
		cfg:   cfg,
		store: store,
		blobs: blobs,
		orch:  orch,
		ing:   NewIngestor(cfg, store, blobs, nil),
		dir:   t.TempDir(),
	}
}

type upload struct {
	name    string
	content string
}

func (h *harness) stage(t *testing.T, sessionID string, uploads ...upload) {
	t.Helper()
	paths := make([]string, len(uploads))
	for i, u := range uploads {
		paths[i] = testsupport.WriteUpload(t, h.dir, u.name, u.content)
	}
	result, err := h.ing.Upload(context.Background(), sessionID, paths)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if result.Staged != len(uploads) {
		t.Fatalf("expected %d staged files, got %d (rejected %d)", len(uploads), result.Staged, result.Rejected)
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

func (h *harness) singleFile(t *testing.T, sessionID string) *registry.FileState {
	t.Helper()
	files, err := h.store.FilesBySession(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("FilesBySession: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("expected 1 file in session, got %d", len(files))
	}
	return files[0]
}

func TestProcessSessionAutoLinksExactMatch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	patient := h.seedPatient(t, "0001234567", "Maria Lopez Garcia")
	session := testsupport.NewSession(t, h.store, "march batch")
	h.stage(t, session.ID, upload{"0001234567_LOPEZ GARCIA, MARIA_12345_LAB.txt", "resultado de laboratorio"})

	result, err := h.orch.ProcessSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("ProcessSession: %v", err)
	}
	if result.Status != registry.SessionCompleted {
		t.Fatalf("expected completed session, got %s", result.Status)
	}
	if result.Counts.Completed != 1 || result.Counts.Total != 1 {
		t.Fatalf("unexpected counts: %+v", result.Counts)
	}
	if len(result.Failures) != 0 {
		t.Fatalf("expected no failures, got %v", result.Failures)
	}

	file := h.singleFile(t, session.ID)
	if file.Status != registry.FileCompleted {
		t.Fatalf("expected completed file, got %s", file.Status)
	}
	if file.MatchStatus != registry.MatchAutoLinked {
		t.Fatalf("expected auto_linked, got %s", file.MatchStatus)
	}
	if file.PatientID != patient.ID {
		t.Fatalf("expected link to %s, got %s", patient.ID, file.PatientID)
	}
	if file.MatchTier != string(identity.TierExactName) {
		t.Fatalf("expected exact_name tier, got %q", file.MatchTier)
	}
	if file.MatchConfidence < 0.95 {
		t.Fatalf("expected auto-link confidence, got %f", file.MatchConfidence)
	}
	if file.FinishedAt == nil {
		t.Fatal("expected finished timestamp on completed file")
	}

	doc, err := h.store.GetDocument(ctx, file.DocumentID)
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if doc == nil || doc.PatientID != patient.ID {
		t.Fatalf("unexpected document: %#v", doc)
	}
	if doc.ContentHash != file.ContentHash {
		t.Fatalf("document hash %s does not match file hash %s", doc.ContentHash, file.ContentHash)
	}
	if _, err := os.Stat(doc.StoragePath); err != nil {
		t.Fatalf("stored blob missing: %v", err)
	}

	fetched, err := h.store.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if fetched.Status != registry.SessionCompleted || fetched.FinishedAt == nil {
		t.Fatalf("unexpected session state: %s finished=%v", fetched.Status, fetched.FinishedAt)
	}

	logPath := filepath.Join(h.cfg.SessionLogDir(), session.ID+".log")
	if _, err := os.Stat(logPath); err != nil {
		t.Fatalf("session log missing: %v", err)
	}
}

func TestProcessSessionCreatesProvisionalPatient(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	session := testsupport.NewSession(t, h.store, "new patients")
	h.stage(t, session.ID, upload{"0009876543_RAMIREZ SOTO, CARLOS_99_IMG.txt", "estudio de imagen"})

	result, err := h.orch.ProcessSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("ProcessSession: %v", err)
	}
	if result.Status != registry.SessionCompleted {
		t.Fatalf("expected completed session, got %s", result.Status)
	}

	file := h.singleFile(t, session.ID)
	if file.Status != registry.FileCompleted || file.MatchStatus != registry.MatchNewPatient {
		t.Fatalf("unexpected file state: %s/%s", file.Status, file.MatchStatus)
	}

	patient, err := h.store.FindPatientByRecordNumber(ctx, "0009876543")
	if err != nil {
		t.Fatalf("FindPatientByRecordNumber: %v", err)
	}
	if patient == nil {
		t.Fatal("expected a provisional patient to be created")
	}
	if !patient.Provisional {
		t.Fatal("expected new patient to be marked provisional")
	}
	if patient.FullName != "CARLOS RAMIREZ SOTO" {
		t.Fatalf("unexpected patient name: %q", patient.FullName)
	}
	if file.PatientID != patient.ID {
		t.Fatalf("file linked to %s, expected %s", file.PatientID, patient.ID)
	}
	if file.DocumentID == "" {
		t.Fatal("expected document to be archived")
	}
}

func TestProcessSessionRoutesUncertainMatchToReview(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedPatient(t, "0003333333", "Ana Torres Diaz")
	session := testsupport.NewSession(t, h.store, "uncertain")
	h.stage(t, session.ID, upload{"0003333333_TORRES DIAZ, ANA MARIA_7_LAB.txt", "laboratorio"})

	result, err := h.orch.ProcessSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("ProcessSession: %v", err)
	}
	if result.Status != registry.SessionPartiallyFailed {
		t.Fatalf("expected partially_failed session, got %s", result.Status)
	}
	if result.Counts.Review != 1 {
		t.Fatalf("expected 1 review file, got %+v", result.Counts)
	}

	file := h.singleFile(t, session.ID)
	if file.Status != registry.FileReview || file.MatchStatus != registry.MatchReviewRequired {
		t.Fatalf("unexpected file state: %s/%s", file.Status, file.MatchStatus)
	}
	if file.ReviewCategory != registry.ReviewCategoryMatching {
		t.Fatalf("expected matching review category, got %q", file.ReviewCategory)
	}
	if file.ReviewPriority != registry.ReviewPriorityLow {
		t.Fatalf("expected low priority, got %q", file.ReviewPriority)
	}
	if file.MatchConfidence < 0.8 || file.MatchConfidence >= 0.95 {
		t.Fatalf("confidence %f outside the review band", file.MatchConfidence)
	}
	if file.CandidatesJSON == "" {
		t.Fatal("expected retained candidates for the review decision")
	}
	if file.DocumentID != "" || file.PatientID != "" {
		t.Fatalf("review file should not be linked yet: patient=%q document=%q", file.PatientID, file.DocumentID)
	}

	existing, err := h.store.FindDocumentByHash(ctx, file.ContentHash)
	if err != nil {
		t.Fatalf("FindDocumentByHash: %v", err)
	}
	if existing != nil {
		t.Fatal("no document should be archived for a review file")
	}
}

func TestProcessSessionFlagsUnparseableFilename(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	session := testsupport.NewSession(t, h.store, "mixed")
	h.stage(t, session.ID,
		upload{"scan001.txt", "contenido sin convencion"},
		upload{"0001112223_VEGA LUNA, PEDRO_4_CONS.txt", "consulta"},
	)

	result, err := h.orch.ProcessSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("ProcessSession: %v", err)
	}
	if result.Status != registry.SessionPartiallyFailed {
		t.Fatalf("expected partially_failed session, got %s", result.Status)
	}
	if result.Counts.Completed != 1 || result.Counts.Review != 1 {
		t.Fatalf("unexpected counts: %+v", result.Counts)
	}

	files, err := h.store.FilesBySession(ctx, session.ID)
	if err != nil {
		t.Fatalf("FilesBySession: %v", err)
	}
	var flagged *registry.FileState
	for _, file := range files {
		if file.OriginalName == "scan001.txt" {
			flagged = file
		}
	}
	if flagged == nil {
		t.Fatal("staged file scan001.txt not found")
	}
	if flagged.Status != registry.FileReview || flagged.MatchStatus != registry.MatchParseFailed {
		t.Fatalf("unexpected state: %s/%s", flagged.Status, flagged.MatchStatus)
	}
	if flagged.ReviewCategory != registry.ReviewCategoryParsing {
		t.Fatalf("expected parsing review category, got %q", flagged.ReviewCategory)
	}
	if flagged.ReviewPriority != registry.ReviewPriorityHigh {
		t.Fatalf("expected high priority, got %q", flagged.ReviewPriority)
	}
	if flagged.ErrorMessage == "" {
		t.Fatal("expected the parse failure reason on the file")
	}
}

func TestProcessSessionCompletesDuplicateAgainstArchivedDocument(t *testing.T) {
	h := newHarness(t, testsupport.WithWorkers(1))
	ctx := context.Background()
	session := testsupport.NewSession(t, h.store, "duplicates")
	h.stage(t, session.ID,
		upload{"0005555555_PEREZ RUIZ, JUAN_1_LAB.txt", "mismo contenido"},
		upload{"0005555555_PEREZ RUIZ, JUAN_2_LAB.txt", "mismo contenido"},
	)

	result, err := h.orch.ProcessSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("ProcessSession: %v", err)
	}
	if result.Status != registry.SessionCompleted {
		t.Fatalf("expected completed session, got %s", result.Status)
	}
	if result.Counts.Completed != 2 || result.Counts.Duplicates != 1 {
		t.Fatalf("unexpected counts: %+v", result.Counts)
	}

	patients, err := h.store.AllPatients(ctx)
	if err != nil {
		t.Fatalf("AllPatients: %v", err)
	}
	if len(patients) != 1 {
		t.Fatalf("expected a single patient, got %d", len(patients))
	}

	files, err := h.store.FilesBySession(ctx, session.ID)
	if err != nil {
		t.Fatalf("FilesBySession: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(files))
	}
	original, duplicate := files[0], files[1]
	if original.DuplicateOf != "" {
		t.Fatalf("first file should own the document, got duplicate_of %q", original.DuplicateOf)
	}
	if duplicate.DuplicateOf != original.DocumentID {
		t.Fatalf("expected duplicate of %s, got %q", original.DocumentID, duplicate.DuplicateOf)
	}
	if duplicate.Status != registry.FileCompleted || duplicate.MatchStatus != registry.MatchAutoLinked {
		t.Fatalf("unexpected duplicate state: %s/%s", duplicate.Status, duplicate.MatchStatus)
	}
	if duplicate.PatientID != original.PatientID {
		t.Fatalf("duplicate linked to %s, expected %s", duplicate.PatientID, original.PatientID)
	}

	docs, err := h.store.DocumentsByPatient(ctx, patients[0].ID)
	if err != nil {
		t.Fatalf("DocumentsByPatient: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected one archived document, got %d", len(docs))
	}
}

type indexCapture struct {
	requests atomic.Int32
	failures int32
	lastBody atomic.Value
	lastPath atomic.Value
}

func newIndexServer(t *testing.T, capture *indexCapture) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := capture.requests.Add(1)
		body, _ := io.ReadAll(r.Body)
		capture.lastBody.Store(string(body))
		capture.lastPath.Store(r.URL.Path)
		if n <= capture.failures {
			http.Error(w, "index unavailable", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestProcessSessionIndexesDocumentContent(t *testing.T) {
	var capture indexCapture
	server := newIndexServer(t, &capture)
	h := newHarness(t, testsupport.WithIndexing(server.URL))
	ctx := context.Background()

	session, err := h.store.CreateSession(ctx, "index batch", registry.ModeIndex, "tester")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	h.stage(t, session.ID, upload{"0007777777_MORALES RIOS, LUCIA_3_LAB.txt", "HEMOGLOBINA 14.2 G/DL"})

	result, err := h.orch.ProcessSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("ProcessSession: %v", err)
	}
	if result.Status != registry.SessionCompleted {
		t.Fatalf("expected completed session, got %s", result.Status)
	}
	if got := capture.requests.Load(); got != 1 {
		t.Fatalf("expected 1 index request, got %d", got)
	}
	if path, _ := capture.lastPath.Load().(string); path != "/collections/medical_documents/documents" {
		t.Fatalf("unexpected index path %q", path)
	}

	file := h.singleFile(t, session.ID)
	var payload struct {
		DocumentID string `json:"document_id"`
		PatientID  string `json:"patient_id"`
		SessionID  string `json:"session_id"`
		Content    string `json:"content"`
	}
	body, _ := capture.lastBody.Load().(string)
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		t.Fatalf("decode index payload: %v", err)
	}
	if payload.DocumentID != file.DocumentID || payload.PatientID != file.PatientID {
		t.Fatalf("payload ids %s/%s do not match file %s/%s", payload.DocumentID, payload.PatientID, file.DocumentID, file.PatientID)
	}
	if payload.SessionID != session.ID {
		t.Fatalf("payload session %s, expected %s", payload.SessionID, session.ID)
	}
	if payload.Content != "HEMOGLOBINA 14.2 G/DL" {
		t.Fatalf("unexpected indexed content %q", payload.Content)
	}

	doc, err := h.store.GetDocument(ctx, file.DocumentID)
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if !doc.Indexed {
		t.Fatal("expected document to be marked indexed")
	}
}

func TestProcessSessionRetriesFailedIndexingViaDuplicatePath(t *testing.T) {
	capture := indexCapture{failures: 1}
	server := newIndexServer(t, &capture)
	h := newHarness(t, testsupport.WithIndexing(server.URL))
	ctx := context.Background()

	session, err := h.store.CreateSession(ctx, "index retry", registry.ModeIndex, "tester")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	h.stage(t, session.ID, upload{"0008888888_CRUZ VEGA, ELENA_6_LAB.txt", "GLUCOSA 92 MG/DL"})

	result, err := h.orch.ProcessSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("first ProcessSession: %v", err)
	}
	if result.Status != registry.SessionFailed {
		t.Fatalf("expected failed session, got %s", result.Status)
	}
	if len(result.Failures) != 1 {
		t.Fatalf("expected 1 failure, got %v", result.Failures)
	}

	file := h.singleFile(t, session.ID)
	if file.Status != registry.FileFailed {
		t.Fatalf("expected failed file, got %s", file.Status)
	}

	// The document commit precedes indexing, so the archive keeps the copy.
	doc, err := h.store.FindDocumentByHash(ctx, file.ContentHash)
	if err != nil {
		t.Fatalf("FindDocumentByHash: %v", err)
	}
	if doc == nil {
		t.Fatal("expected the document to survive the indexing failure")
	}
	if doc.Indexed {
		t.Fatal("document must not be marked indexed after a push failure")
	}

	reset, err := h.store.ResetFileForRetry(ctx, file.ID, "admin")
	if err != nil || !reset {
		t.Fatalf("ResetFileForRetry: reset=%v err=%v", reset, err)
	}

	result, err = h.orch.ProcessSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("second ProcessSession: %v", err)
	}
	if result.Status != registry.SessionCompleted {
		t.Fatalf("expected completed session after retry, got %s", result.Status)
	}

	file = h.singleFile(t, session.ID)
	if file.Status != registry.FileCompleted {
		t.Fatalf("expected completed file after retry, got %s", file.Status)
	}
	if file.DuplicateOf != doc.ID {
		t.Fatalf("retry should resolve against document %s, got %q", doc.ID, file.DuplicateOf)
	}

	doc, err = h.store.GetDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if !doc.Indexed {
		t.Fatal("expected retry to heal the index flag")
	}
}

// gaugeIndexer tracks how many index calls run at once. The sleep keeps
// each unit in flight long enough for the workers to overlap.
type gaugeIndexer struct {
	inflight atomic.Int32
	peak     atomic.Int32
	calls    atomic.Int32
}

func (g *gaugeIndexer) IndexDocument(ctx context.Context, doc vectorindex.Document) error {
	n := g.inflight.Add(1)
	for {
		peak := g.peak.Load()
		if n <= peak || g.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	time.Sleep(25 * time.Millisecond)
	g.inflight.Add(-1)
	g.calls.Add(1)
	return nil
}

func TestProcessSessionBoundsConcurrentUnits(t *testing.T) {
	h := newHarness(t, testsupport.WithWorkers(2))
	ctx := context.Background()

	indexer := &gaugeIndexer{}
	orch, err := NewOrchestratorWithServices(h.cfg, h.store, h.blobs, nil, nil, extract.New(), indexer)
	if err != nil {
		t.Fatalf("NewOrchestratorWithServices: %v", err)
	}

	session, err := h.store.CreateSession(ctx, "full pool", registry.ModeIndex, "tester")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	names := []string{
		"RIVAS OCHOA, TOMAS",
		"DURAN PENA, ALICIA",
		"CAMPOS REYNA, OMAR",
		"SOLIS BRAVO, IRMA",
		"NIETO CHAVEZ, RAUL",
		"MACIAS LEON, ELSA",
	}
	uploads := make([]upload, len(names))
	for i, name := range names {
		uploads[i] = upload{
			name:    fmt.Sprintf("000100000%d_%s_%d_LAB.txt", i, name, i),
			content: fmt.Sprintf("resultado %d", i),
		}
	}
	h.stage(t, session.ID, uploads...)

	result, err := orch.ProcessSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("ProcessSession: %v", err)
	}
	if result.Status != registry.SessionCompleted {
		t.Fatalf("expected completed session, got %s", result.Status)
	}
	if result.Counts.Completed != 6 {
		t.Fatalf("unexpected counts: %+v", result.Counts)
	}
	if got := indexer.calls.Load(); got != 6 {
		t.Fatalf("expected 6 index calls, got %d", got)
	}
	if peak := indexer.peak.Load(); peak > 2 {
		t.Fatalf("observed %d units in flight, worker cap is 2", peak)
	}
}

// panicIndexer blows up on one document and accepts the rest.
type panicIndexer struct {
	trigger string
}

func (p panicIndexer) IndexDocument(ctx context.Context, doc vectorindex.Document) error {
	if strings.Contains(doc.Title, p.trigger) {
		panic("index client corrupted state")
	}
	return nil
}

func TestProcessSessionIsolatesPanickingUnit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	orch, err := NewOrchestratorWithServices(h.cfg, h.store, h.blobs, nil, nil, extract.New(),
		panicIndexer{trigger: "ORTIZ CANO"})
	if err != nil {
		t.Fatalf("NewOrchestratorWithServices: %v", err)
	}

	session, err := h.store.CreateSession(ctx, "panic isolation", registry.ModeIndex, "tester")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	h.stage(t, session.ID,
		upload{"0001111111_ORTIZ CANO, LAURA_1_LAB.txt", "hemoglobina"},
		upload{"0002222222_MENDEZ RIOS, PABLO_2_LAB.txt", "glucosa"},
	)

	result, err := orch.ProcessSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("ProcessSession: %v", err)
	}
	if result.Status != registry.SessionPartiallyFailed {
		t.Fatalf("expected partially_failed session, got %s", result.Status)
	}
	if result.Counts.Completed != 1 || result.Counts.Failed != 1 {
		t.Fatalf("unexpected counts: %+v", result.Counts)
	}
	if len(result.Failures) != 1 || result.Failures[0].Name != "0001111111_ORTIZ CANO, LAURA_1_LAB.txt" {
		t.Fatalf("unexpected failures: %+v", result.Failures)
	}

	files, err := h.store.FilesBySession(ctx, session.ID)
	if err != nil {
		t.Fatalf("FilesBySession: %v", err)
	}
	for _, file := range files {
		switch file.OriginalName {
		case "0001111111_ORTIZ CANO, LAURA_1_LAB.txt":
			if file.Status != registry.FileFailed {
				t.Fatalf("expected panicking file failed, got %s", file.Status)
			}
			if !strings.Contains(file.ErrorMessage, "panic") {
				t.Fatalf("expected persisted panic message, got %q", file.ErrorMessage)
			}
			if file.ReviewCategory != registry.ReviewCategoryProcessing {
				t.Fatalf("expected processing review category, got %q", file.ReviewCategory)
			}
		case "0002222222_MENDEZ RIOS, PABLO_2_LAB.txt":
			if file.Status != registry.FileCompleted {
				t.Fatalf("expected sibling file to complete, got %s", file.Status)
			}
		}
	}
}

func TestProcessSessionRejectsConcurrentRun(t *testing.T) {
	h := newHarness(t)
	session := testsupport.NewSession(t, h.store, "locked")

	locked, err := h.orch.lock.TryLock()
	if err != nil || !locked {
		t.Fatalf("TryLock: locked=%v err=%v", locked, err)
	}
	defer h.orch.lock.Unlock()

	other, err := NewOrchestrator(h.cfg, h.store, h.blobs, nil)
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	_, err = other.ProcessSession(context.Background(), session.ID)
	if err == nil {
		t.Fatal("expected concurrent run to be rejected")
	}
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestProcessSessionRecoversInterruptedRun(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	session := testsupport.NewSession(t, h.store, "interrupted")
	h.stage(t, session.ID, upload{"0002224446_SILVA MORA, DIEGO_8_CONS.txt", "consulta general"})

	// Simulate a crash: session and file both left in processing.
	claimed, err := h.store.BeginSessionProcessing(ctx, session.ID)
	if err != nil || !claimed {
		t.Fatalf("BeginSessionProcessing: claimed=%v err=%v", claimed, err)
	}
	file := h.singleFile(t, session.ID)
	claimed, err = h.store.ClaimFile(ctx, file.ID)
	if err != nil || !claimed {
		t.Fatalf("ClaimFile: claimed=%v err=%v", claimed, err)
	}

	result, err := h.orch.ProcessSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("ProcessSession: %v", err)
	}
	if result.Status != registry.SessionCompleted {
		t.Fatalf("expected completed session after recovery, got %s", result.Status)
	}

	file = h.singleFile(t, session.ID)
	if file.Status != registry.FileCompleted {
		t.Fatalf("expected recovered file to complete, got %s", file.Status)
	}
}

func TestProcessSessionUnknownReference(t *testing.T) {
	h := newHarness(t)
	_, err := h.orch.ProcessSession(context.Background(), "no-such-session")
	if err == nil {
		t.Fatal("expected an error for an unknown session")
	}
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestDerivedSessionStatus(t *testing.T) {
	tests := []struct {
		name   string
		counts registry.SessionCounts
		want   registry.SessionStatus
	}{
		{"all completed", registry.SessionCounts{Total: 3, Completed: 3}, registry.SessionCompleted},
		{"empty session", registry.SessionCounts{}, registry.SessionCompleted},
		{"all failed", registry.SessionCounts{Total: 2, Failed: 2}, registry.SessionFailed},
		{"mixed outcome", registry.SessionCounts{Total: 3, Completed: 2, Failed: 1}, registry.SessionPartiallyFailed},
		{"review only", registry.SessionCounts{Total: 1, Review: 1}, registry.SessionPartiallyFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.counts.DerivedStatus(); got != tt.want {
				t.Fatalf("DerivedStatus(%+v) = %s, want %s", tt.counts, got, tt.want)
			}
		})
	}
}
