package testsupport

import (
	"context"
	"testing"

	"medintake/internal/config"
	"medintake/internal/registry"
)

// MustOpenStore opens a registry.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *registry.Store {
	t.Helper()

	store, err := registry.Open(cfg)
	if err != nil {
		t.Fatalf("registry.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewSession creates a pending session for tests using the provided store.
func NewSession(t testing.TB, store *registry.Store, label string) *registry.Session {
	t.Helper()

	session, err := store.CreateSession(context.Background(), label, registry.ModeArchive, "tester")
	if err != nil {
		t.Fatalf("store.CreateSession: %v", err)
	}
	return session
}

// StageFiles stages uploads into a session and returns the created rows.
func StageFiles(t testing.TB, store *registry.Store, sessionID string, files ...registry.NewSessionFile) []*registry.FileState {
	t.Helper()

	staged, err := store.AddFiles(context.Background(), sessionID, files)
	if err != nil {
		t.Fatalf("store.AddFiles: %v", err)
	}
	return staged
}
