package review_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"medintake/internal/registry"
	"medintake/internal/review"
	"medintake/internal/services"
)

func TestApproveMatchLinksBestCandidate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	session, file, patient := h.reviewCase(t, "approve", "0003330001")

	outcome, err := h.processor.Apply(ctx, file.ID, review.Decision{
		Kind:      review.DecisionApproveMatch,
		Note:      "same person, middle name omitted in registry",
		DecidedBy: "dr.soto",
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if outcome.FileStatus != registry.FileCompleted || outcome.MatchStatus != registry.MatchManualLinked {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if outcome.PatientID != patient.ID {
		t.Fatalf("linked to %s, expected %s", outcome.PatientID, patient.ID)
	}

	updated, err := h.store.GetFile(ctx, file.ID)
	if err != nil {
		t.Fatalf("GetFile: %v", err)
	}
	if updated.ReviewRequired {
		t.Fatal("review flag should be cleared")
	}
	if updated.DecidedBy != "dr.soto" || updated.DecidedAt == nil {
		t.Fatalf("reviewer identity not recorded: %q/%v", updated.DecidedBy, updated.DecidedAt)
	}
	if updated.ReviewNote == "" {
		t.Fatal("expected the decision note on the file")
	}

	doc, err := h.store.GetDocument(ctx, updated.DocumentID)
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if doc == nil || doc.PatientID != patient.ID {
		t.Fatalf("document not archived under the approved patient: %#v", doc)
	}

	// The decision resolved the last open file, so the session aggregate
	// flips to completed.
	refreshed, err := h.store.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if refreshed.Status != registry.SessionCompleted {
		t.Fatalf("expected refreshed session status completed, got %s", refreshed.Status)
	}
}

func TestManualMatchValidatesPatient(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, file, _ := h.reviewCase(t, "manual", "0003330002")

	_, err := h.processor.Apply(ctx, file.ID, review.Decision{
		Kind:      review.DecisionManualMatch,
		PatientID: "no-such-patient",
		DecidedBy: "dr.soto",
	})
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not-found for unknown patient, got %v", err)
	}

	// The failed decision must leave the file untouched.
	untouched, err := h.store.GetFile(ctx, file.ID)
	if err != nil {
		t.Fatalf("GetFile: %v", err)
	}
	if !untouched.ReviewRequired || untouched.Status != registry.FileReview {
		t.Fatalf("file mutated by failed decision: %s review=%v", untouched.Status, untouched.ReviewRequired)
	}

	other := h.seedPatient(t, "0009990002", "Rosa Maldonado Ibarra")
	outcome, err := h.processor.Apply(ctx, file.ID, review.Decision{
		Kind:      review.DecisionManualMatch,
		PatientID: other.ID,
		DecidedBy: "dr.soto",
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if outcome.PatientID != other.ID || outcome.MatchStatus != registry.MatchManualLinked {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
}

func TestRejectMatchCreatesProvisionalPatientFromFilename(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, file, seeded := h.reviewCase(t, "reject", "0003330003")

	outcome, err := h.processor.Apply(ctx, file.ID, review.Decision{
		Kind:      review.DecisionRejectMatch,
		Note:      "different person despite shared record number",
		DecidedBy: "dr.soto",
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if outcome.MatchStatus != registry.MatchNewPatient || outcome.FileStatus != registry.FileCompleted {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if outcome.PatientID == seeded.ID {
		t.Fatal("reject must not link the rejected candidate")
	}

	created, err := h.store.GetPatient(ctx, outcome.PatientID)
	if err != nil {
		t.Fatalf("GetPatient: %v", err)
	}
	if created == nil || !created.Provisional {
		t.Fatalf("expected a provisional patient, got %#v", created)
	}
	if created.FullName != "ANA MARIA TORRES DIAZ" {
		t.Fatalf("unexpected patient name %q", created.FullName)
	}
}

func TestRejectMatchUsesAdminSuppliedIdentity(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, file, _ := h.reviewCase(t, "rejectdata", "0003330004")

	outcome, err := h.processor.Apply(ctx, file.ID, review.Decision{
		Kind: review.DecisionRejectMatch,
		NewPatient: &review.NewPatientInput{
			RecordNumber: "0007770004",
			FirstNames:   "Ana Maria",
			LastNames:    "Torres Diaz",
		},
		DecidedBy: "dr.soto",
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	created, err := h.store.GetPatient(ctx, outcome.PatientID)
	if err != nil {
		t.Fatalf("GetPatient: %v", err)
	}
	if created.Provisional {
		t.Fatal("admin-supplied identity should not be provisional")
	}
	if created.RecordNumber != "0007770004" {
		t.Fatalf("unexpected record number %q", created.RecordNumber)
	}
}

func TestSkipMarksFileSkippedWithNote(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	session, files := h.stageAndProcess(t, "skip", map[string]string{"not_a_convention.txt": "contenido"})

	outcome, err := h.processor.Apply(ctx, files[0].ID, review.Decision{
		Kind:      review.DecisionSkip,
		Note:      "not a patient document",
		DecidedBy: "dr.soto",
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if outcome.FileStatus != registry.FileSkipped {
		t.Fatalf("expected skipped, got %s", outcome.FileStatus)
	}

	updated, err := h.store.GetFile(ctx, files[0].ID)
	if err != nil {
		t.Fatalf("GetFile: %v", err)
	}
	if updated.ErrorMessage != "not a patient document" {
		t.Fatalf("unexpected note %q", updated.ErrorMessage)
	}
	if updated.PatientID != "" || updated.DocumentID != "" {
		t.Fatal("skip must not create patients or documents")
	}

	cases, err := h.queue.List(ctx, review.Filter{SessionRef: session.ID})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(cases) != 0 {
		t.Fatalf("expected empty queue after skip, got %d cases", len(cases))
	}
}

func TestRetryReprocessesFile(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, files := h.stageAndProcess(t, "retry", map[string]string{"0006660005_RIOS CAMPOS, MARTA_2_CONS.txt": "consulta"})
	file := files[0]
	if file.Status != registry.FileCompleted {
		t.Fatalf("precondition: expected completed file, got %s", file.Status)
	}

	// Simulate a downstream failure an admin wants to retry.
	file.SetFailed("index push failed")
	if err := h.store.UpdateFile(ctx, file); err != nil {
		t.Fatalf("UpdateFile: %v", err)
	}

	outcome, err := h.processor.Apply(ctx, file.ID, review.Decision{Kind: review.DecisionRetry, DecidedBy: "dr.soto"})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if outcome.FileStatus != registry.FileCompleted {
		t.Fatalf("expected retry to complete the file, got %s", outcome.FileStatus)
	}
	// The document already existed, so the retry resolves as a duplicate.
	if outcome.DocumentID == "" {
		t.Fatal("expected the retried file to reference a document")
	}
}

func TestDeleteRemovesBytesAndKeepsRow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, files := h.stageAndProcess(t, "delete", map[string]string{"unparseable_scan.txt": "bytes to remove"})
	file := files[0]
	blobPath := h.blobs.PathFor(file.ContentHash, file.Extension)
	if _, err := os.Stat(blobPath); err != nil {
		t.Fatalf("precondition: blob missing: %v", err)
	}

	outcome, err := h.processor.Apply(ctx, file.ID, review.Decision{Kind: review.DecisionDelete, DecidedBy: "dr.soto"})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if outcome.FileStatus != registry.FileRejected {
		t.Fatalf("expected rejected, got %s", outcome.FileStatus)
	}
	if _, err := os.Stat(blobPath); !os.IsNotExist(err) {
		t.Fatalf("expected blob to be removed, stat err %v", err)
	}

	kept, err := h.store.GetFile(ctx, file.ID)
	if err != nil {
		t.Fatalf("GetFile: %v", err)
	}
	if kept == nil {
		t.Fatal("audit row must survive delete")
	}
	if kept.Status != registry.FileRejected || kept.ReviewRequired {
		t.Fatalf("unexpected kept state: %s review=%v", kept.Status, kept.ReviewRequired)
	}
}

func TestDeleteKeepsSharedBytes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	// Two staged files share the same bytes; only one is under review.
	_, files := h.stageAndProcess(t, "shared", map[string]string{
		"0008880006_VILLA RE, SAUL_1_LAB.txt": "mismo contenido",
		"shared_scan.txt":                     "mismo contenido",
	})
	var flagged *registry.FileState
	for _, file := range files {
		if file.OriginalName == "shared_scan.txt" {
			flagged = file
		}
	}
	if flagged == nil || !flagged.ReviewRequired {
		t.Fatalf("expected shared_scan.txt to await review: %+v", flagged)
	}

	if _, err := h.processor.Apply(ctx, flagged.ID, review.Decision{Kind: review.DecisionDelete, DecidedBy: "dr.soto"}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	blobPath := h.blobs.PathFor(flagged.ContentHash, flagged.Extension)
	if _, err := os.Stat(blobPath); err != nil {
		t.Fatalf("blob referenced by the archived document must survive: %v", err)
	}
}

func TestDecisionPreconditions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.processor.Apply(ctx, 9999, review.Decision{Kind: review.DecisionSkip}); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not-found for unknown file, got %v", err)
	}

	_, files := h.stageAndProcess(t, "preconditions", map[string]string{"0001110007_LARA PAZ, INES_5_CONS.txt": "consulta"})
	if files[0].Status != registry.FileCompleted {
		t.Fatalf("precondition: expected completed file, got %s", files[0].Status)
	}
	if _, err := h.processor.Apply(ctx, files[0].ID, review.Decision{Kind: review.DecisionSkip}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for a non-review file, got %v", err)
	}
	if _, err := h.processor.Apply(ctx, files[0].ID, review.Decision{Kind: "banish"}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for unknown kind, got %v", err)
	}
}

func TestBulkApproveHonorsThreshold(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	// Matching record number and a one-letter surname variant: lands high
	// in the review band.
	h.seedPatient(t, "0003330008", "Ana Maria Torres Dias")
	// Matching record number but a missing middle name: lands low.
	h.seedPatient(t, "0002220008", "Ana Torres Diaz")
	session, files := h.stageAndProcess(t, "bulk", map[string]string{
		"0003330008_TORRES DIAZ, ANA MARIA_7_LAB.txt":  "laboratorio uno",
		"0002220008_TORRES DIAZ, ANA MARIA_6_CONS.txt": "consulta dos",
	})
	var high, low *registry.FileState
	for _, file := range files {
		switch file.OriginalName {
		case "0003330008_TORRES DIAZ, ANA MARIA_7_LAB.txt":
			high = file
		default:
			low = file
		}
	}
	if high == nil || low == nil {
		t.Fatal("staged files not found")
	}
	if !high.ReviewRequired || !low.ReviewRequired {
		t.Fatalf("both files should await review: %v/%v", high.ReviewRequired, low.ReviewRequired)
	}
	if high.MatchConfidence < 0.9 {
		t.Fatalf("high case confidence %f below bulk threshold", high.MatchConfidence)
	}
	if low.MatchConfidence >= 0.9 {
		t.Fatalf("low case confidence %f not below bulk threshold", low.MatchConfidence)
	}

	result, err := h.processor.BulkApprove(ctx, session.ID, 0.9, "dr.soto")
	if err != nil {
		t.Fatalf("BulkApprove: %v", err)
	}
	if result.Approved != 1 || result.Failed != 0 {
		t.Fatalf("unexpected bulk result: %+v", result)
	}

	remaining, err := h.queue.List(ctx, review.Filter{SessionRef: session.ID})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(remaining) != 1 || remaining[0].FileID != low.ID {
		t.Fatalf("expected only the low-confidence case to remain, got %+v", remaining)
	}
}

func TestBulkApproveUnknownSession(t *testing.T) {
	h := newHarness(t)
	if _, err := h.processor.BulkApprove(context.Background(), "missing", 0.9, "dr.soto"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not-found, got %v", err)
	}
	if _, err := h.processor.BulkApprove(context.Background(), "missing", 1.5, "dr.soto"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for bad threshold, got %v", err)
	}
}
