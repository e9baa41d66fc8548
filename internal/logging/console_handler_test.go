package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func newTestPrettyLogger(buf *bytes.Buffer, level slog.Level) *slog.Logger {
	lvl := new(slog.LevelVar)
	lvl.Set(level)
	return slog.New(newPrettyHandler(buf, lvl, false))
}

func TestComposeSubject(t *testing.T) {
	cases := []struct {
		name      string
		sessionID string
		fileID    string
		operation string
		want      string
	}{
		{"all parts", "0a1b2c3d-4e5f-6789", "12", "match", "Session 0a1b2c3d · File #12 (match)"},
		{"session only", "0a1b2c3d-4e5f-6789", "", "", "Session 0a1b2c3d"},
		{"file without operation", "", "7", "", "File #7"},
		{"operation only", "", "", "upload", "upload"},
		{"short session kept whole", "abc123", "", "", "Session abc123"},
		{"empty", "", "", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := composeSubject(tc.sessionID, tc.fileID, tc.operation); got != tc.want {
				t.Errorf("composeSubject(%q, %q, %q) = %q, want %q", tc.sessionID, tc.fileID, tc.operation, got, tc.want)
			}
		})
	}
}

func TestPrettyHandlerInfoLine(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestPrettyLogger(&buf, slog.LevelInfo)

	logger.Info("patient matched",
		String(FieldComponent, "matcher"),
		String(FieldSessionID, "0a1b2c3d-4e5f"),
		Int64(FieldFileID, 12),
		String(FieldOperation, "match"),
		String("patient_name", "GARCIA LOPEZ, MARIA"),
		Float64(FieldConfidence, 0.9134),
	)

	out := buf.String()
	if !strings.Contains(out, "INFO") {
		t.Errorf("expected level label in output, got: %s", out)
	}
	if !strings.Contains(out, "[matcher]") {
		t.Errorf("expected component tag in output, got: %s", out)
	}
	if !strings.Contains(out, "Session 0a1b2c3d · File #12 (match)") {
		t.Errorf("expected subject in output, got: %s", out)
	}
	if !strings.Contains(out, "patient matched") {
		t.Errorf("expected message in output, got: %s", out)
	}
	if !strings.Contains(out, "Patient: ") {
		t.Errorf("expected highlighted patient field, got: %s", out)
	}
	if !strings.Contains(out, "Confidence: 0.913") {
		t.Errorf("expected formatted confidence, got: %s", out)
	}
}

func TestPrettyHandlerHidesPlumbingAtInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestPrettyLogger(&buf, slog.LevelInfo)

	logger.Info("document stored",
		String(FieldComponent, "storage"),
		String("storage_path", "/var/lib/medintake/blobs/ab/abcd.pdf"),
		String("content_hash", "abcd1234"),
		String("document_type", "lab_results"),
	)

	out := buf.String()
	if strings.Contains(out, "storage_path") || strings.Contains(out, "/var/lib") {
		t.Errorf("expected path hidden at info level, got: %s", out)
	}
	if strings.Contains(out, "abcd1234") {
		t.Errorf("expected hash hidden at info level, got: %s", out)
	}
	if !strings.Contains(out, "Document Type: lab_results") {
		t.Errorf("expected document type shown, got: %s", out)
	}
}

func TestPrettyHandlerDebugShowsEverything(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestPrettyLogger(&buf, slog.LevelDebug)

	logger.Debug("blob written",
		String(FieldComponent, "storage"),
		String("storage_path", "/blobs/ab/abcd.pdf"),
		String("content_hash", "abcd1234"),
	)

	out := buf.String()
	if !strings.Contains(out, "DEBUG") {
		t.Errorf("expected DEBUG label, got: %s", out)
	}
	if !strings.Contains(out, "storage_path: /blobs/ab/abcd.pdf") {
		t.Errorf("expected raw path at debug level, got: %s", out)
	}
	if !strings.Contains(out, "content_hash: abcd1234") {
		t.Errorf("expected hash at debug level, got: %s", out)
	}
}

func TestPrettyHandlerSuppressesRepeatedInfoFields(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestPrettyLogger(&buf, slog.LevelInfo)

	attrs := Args(
		String(FieldComponent, "orchestrator"),
		String(FieldSessionID, "repeat-session"),
		Int64(FieldFileID, 3),
		String("document_type", "imaging"),
	)
	logger.Info("processing file", attrs...)
	first := buf.String()
	buf.Reset()
	logger.Info("processing file", attrs...)
	second := buf.String()

	if !strings.Contains(first, "Document Type: imaging") {
		t.Fatalf("expected document type on first emission, got: %s", first)
	}
	if strings.Contains(second, "Document Type: imaging") {
		t.Errorf("expected repeated field suppressed on second emission, got: %s", second)
	}
	if !strings.Contains(second, "processing file") {
		t.Errorf("expected message still rendered, got: %s", second)
	}
}

func TestPrettyHandlerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestPrettyLogger(&buf, slog.LevelWarn)

	logger.Info("quiet")
	if buf.Len() != 0 {
		t.Errorf("expected info suppressed below warn, got: %s", buf.String())
	}

	logger.Warn("loud")
	if !strings.Contains(buf.String(), "WARN") {
		t.Errorf("expected warn emitted, got: %s", buf.String())
	}
}

func TestPrettyHandlerFlattensGroups(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestPrettyLogger(&buf, slog.LevelDebug)

	logger.Debug("parsed",
		Group("parsed", String("surname", "GARCIA"), String("record", "12345")),
	)

	out := buf.String()
	if !strings.Contains(out, "parsed.surname: GARCIA") {
		t.Errorf("expected flattened group key, got: %s", out)
	}
	if !strings.Contains(out, "parsed.record: 12345") {
		t.Errorf("expected flattened group key, got: %s", out)
	}
}

func TestDedupeKVsByKeyKeepsLastValue(t *testing.T) {
	attrs := []kv{
		{key: "tier", value: slog.StringValue("exact_name")},
		{key: "count", value: slog.IntValue(1)},
		{key: "tier", value: slog.StringValue("strong_similarity")},
	}
	deduped := dedupeKVsByKey(attrs)
	if len(deduped) != 2 {
		t.Fatalf("expected 2 attrs after dedupe, got %d", len(deduped))
	}
	if got := deduped[0].value.String(); got != "strong_similarity" {
		t.Errorf("expected later value to win, got %q", got)
	}
}

func TestLevelLabel(t *testing.T) {
	cases := map[slog.Level]string{
		slog.LevelDebug: "DEBUG",
		slog.LevelInfo:  "INFO",
		slog.LevelWarn:  "WARN",
		slog.LevelError: "ERROR",
	}
	for level, want := range cases {
		if got := levelLabel(level); got != want {
			t.Errorf("levelLabel(%v) = %q, want %q", level, got, want)
		}
	}
}
