// Package extract is the pluggable boundary between stored document bytes
// and the text the indexing service consumes. The default reader returns
// plain-text formats verbatim and leaves Text empty for binary formats such
// as PDF scans; callers fall back to document metadata when no text comes
// back.
package extract

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Content is what a reader recovered from one stored document.
type Content struct {
	Text      string
	MIME      string
	Truncated bool
}

// Reader recovers indexable text from a stored document.
type Reader interface {
	Read(ctx context.Context, path string) (Content, error)
}

// maxTextBytes caps how much text a single document contributes to the
// index payload.
const maxTextBytes = 1 << 20

var textMIMETypes = map[string]string{
	".txt":  "text/plain",
	".text": "text/plain",
	".md":   "text/markdown",
	".csv":  "text/csv",
	".json": "application/json",
	".xml":  "application/xml",
}

var binaryMIMETypes = map[string]string{
	".pdf":  "application/pdf",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
}

type fileReader struct {
	limit int64
}

// New returns the default content reader.
func New() Reader {
	return &fileReader{limit: maxTextBytes}
}

func (r *fileReader) Read(ctx context.Context, path string) (Content, error) {
	if err := ctx.Err(); err != nil {
		return Content{}, err
	}
	ext := strings.ToLower(filepath.Ext(path))
	mimeType, textual := textMIMETypes[ext]
	if !textual {
		return Content{MIME: mimeFor(ext)}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return Content{}, fmt.Errorf("extract: open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, r.limit+1))
	if err != nil {
		return Content{}, fmt.Errorf("extract: read %s: %w", filepath.Base(path), err)
	}
	truncated := int64(len(data)) > r.limit
	if truncated {
		data = data[:r.limit]
	}
	return Content{
		Text:      strings.ToValidUTF8(string(data), ""),
		MIME:      mimeType,
		Truncated: truncated,
	}, nil
}

func mimeFor(ext string) string {
	if mimeType, ok := binaryMIMETypes[ext]; ok {
		return mimeType
	}
	return "application/octet-stream"
}
