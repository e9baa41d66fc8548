// Package blobstore stores document bytes at content-addressed paths.
//
// A blob lives at <root>/<hh>/<hash><ext> where hh is the first two hex
// characters of the SHA-256 content hash. The same bytes always land at the
// same path, so duplicate uploads collapse to a single stored file no matter
// which session they arrive through.
package blobstore

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Blob describes one stored file.
type Blob struct {
	Hash string
	Size int64
	Path string
}

// Store is a content-addressed file store rooted at a single directory.
type Store struct {
	root string
}

// New opens (creating if needed) a blob store rooted at dir.
func New(dir string) (*Store, error) {
	trimmed := strings.TrimSpace(dir)
	if trimmed == "" {
		return nil, errors.New("blob store root not configured")
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return nil, fmt.Errorf("resolve blob store root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create blob store root: %w", err)
	}
	return &Store{root: abs}, nil
}

// Root returns the absolute root directory of the store.
func (s *Store) Root() string {
	return s.root
}

// PathFor returns the storage path for a hash and extension without touching
// the filesystem.
func (s *Store) PathFor(hash, ext string) string {
	return filepath.Join(s.root, hash[:2], hash+normalizeExt(ext))
}

// Write streams r into the store and returns the resulting blob. Writing
// bytes that already exist is a no-op that returns the existing blob.
func (s *Store) Write(r io.Reader, ext string) (Blob, error) {
	tmp, err := os.CreateTemp(s.root, ".ingest-*")
	if err != nil {
		return Blob{}, fmt.Errorf("create staging file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	hasher := sha256.New()
	written, err := io.Copy(io.MultiWriter(tmp, hasher), r)
	if err != nil {
		cleanup()
		return Blob{}, fmt.Errorf("write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return Blob{}, fmt.Errorf("close staging file: %w", err)
	}

	hash := hex.EncodeToString(hasher.Sum(nil))
	final := s.PathFor(hash, ext)
	blob := Blob{Hash: hash, Size: written, Path: final}

	if info, err := os.Stat(final); err == nil {
		_ = os.Remove(tmpPath)
		if info.Size() != written {
			return Blob{}, fmt.Errorf("blob collision at %s: stored %d bytes, incoming %d bytes", final, info.Size(), written)
		}
		return blob, nil
	}

	if err := os.MkdirAll(filepath.Dir(final), 0o755); err != nil {
		_ = os.Remove(tmpPath)
		return Blob{}, fmt.Errorf("create blob directory: %w", err)
	}
	if err := os.Rename(tmpPath, final); err != nil {
		_ = os.Remove(tmpPath)
		return Blob{}, fmt.Errorf("finalize blob: %w", err)
	}
	return blob, nil
}

// Ingest copies the file at src into the store with size verification.
// The staged copy is discarded when the byte counts disagree.
func (s *Store) Ingest(src string) (Blob, error) {
	info, err := os.Stat(src)
	if err != nil {
		return Blob{}, fmt.Errorf("stat source: %w", err)
	}
	if info.IsDir() {
		return Blob{}, fmt.Errorf("source %s is a directory", src)
	}

	in, err := os.Open(src)
	if err != nil {
		return Blob{}, fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	blob, err := s.Write(in, filepath.Ext(src))
	if err != nil {
		return Blob{}, err
	}
	if blob.Size != info.Size() {
		_ = os.Remove(blob.Path)
		return Blob{}, fmt.Errorf("copy size mismatch: source %d bytes, copied %d bytes", info.Size(), blob.Size)
	}
	return blob, nil
}

// Open returns a reader for a previously stored blob path.
func (s *Store) Open(path string) (io.ReadCloser, error) {
	if err := s.ensureInside(path); err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open blob: %w", err)
	}
	return file, nil
}

// Remove deletes the blob at path. A missing blob is not an error; the
// caller only cares that the bytes are gone.
func (s *Store) Remove(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if err := s.ensureInside(path); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove blob: %w", err)
	}
	return nil
}

// ensureInside rejects paths that escape the store root. Storage paths come
// from the registry, but the registry is user-visible state.
func (s *Store) ensureInside(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve blob path: %w", err)
	}
	rel, err := filepath.Rel(s.root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path %s is outside the blob store", path)
	}
	return nil
}

// HashFile computes the SHA-256 content hash and size of an arbitrary file
// without storing it.
func HashFile(path string) (string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("open file: %w", err)
	}
	defer file.Close()

	hasher := sha256.New()
	size, err := io.Copy(hasher, file)
	if err != nil {
		return "", 0, fmt.Errorf("hash file: %w", err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), size, nil
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
