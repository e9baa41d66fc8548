package extract_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"medintake/internal/services/extract"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestReadPlainText(t *testing.T) {
	path := writeFile(t, "notes.txt", []byte("consultation summary for record 3000003799"))

	content, err := extract.New().Read(context.Background(), path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if content.Text != "consultation summary for record 3000003799" {
		t.Errorf("unexpected text: %q", content.Text)
	}
	if content.MIME != "text/plain" {
		t.Errorf("mime = %q, want text/plain", content.MIME)
	}
	if content.Truncated {
		t.Error("small file must not report truncation")
	}
}

func TestReadBinaryFormatsReturnNoText(t *testing.T) {
	path := writeFile(t, "scan.pdf", []byte("%PDF-1.4 not really parsed"))

	content, err := extract.New().Read(context.Background(), path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if content.Text != "" {
		t.Errorf("expected empty text for pdf, got %q", content.Text)
	}
	if content.MIME != "application/pdf" {
		t.Errorf("mime = %q, want application/pdf", content.MIME)
	}
}

func TestReadUnknownExtensionFallsBackToOctetStream(t *testing.T) {
	path := writeFile(t, "scan.xyz", []byte("binary"))

	content, err := extract.New().Read(context.Background(), path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if content.MIME != "application/octet-stream" {
		t.Errorf("mime = %q, want application/octet-stream", content.MIME)
	}
}

func TestReadTruncatesOversizedText(t *testing.T) {
	data := bytes.Repeat([]byte("a"), 1<<20+32)
	path := writeFile(t, "huge.txt", data)

	content, err := extract.New().Read(context.Background(), path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !content.Truncated {
		t.Error("expected truncation flag")
	}
	if len(content.Text) != 1<<20 {
		t.Errorf("text length = %d, want %d", len(content.Text), 1<<20)
	}
}

func TestReadScrubsInvalidUTF8(t *testing.T) {
	path := writeFile(t, "odd.txt", []byte{'o', 'k', 0xff, 0xfe, '!'})

	content, err := extract.New().Read(context.Background(), path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !strings.Contains(content.Text, "ok") || !strings.Contains(content.Text, "!") {
		t.Errorf("expected valid bytes kept, got %q", content.Text)
	}
	if strings.ContainsRune(content.Text, 0xfffd) {
		t.Errorf("expected invalid bytes dropped, got %q", content.Text)
	}
}

func TestReadMissingFile(t *testing.T) {
	if _, err := extract.New().Read(context.Background(), filepath.Join(t.TempDir(), "gone.txt")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestReadHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := extract.New().Read(ctx, "anything.txt"); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
