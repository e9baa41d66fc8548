package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// Stats returns a count of session files grouped by status across all sessions.
func (s *Store) Stats(ctx context.Context) (map[FileStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM session_files GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("registry stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[FileStatus]int)
	for rows.Next() {
		var status FileStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates registry state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case FilePending:
			health.Pending += count
		case FileProcessing:
			health.Processing += count
		case FileReview:
			health.Review += count
		case FileCompleted:
			health.Completed += count
		case FileFailed:
			health.Failed += count
		}
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM patients`).Scan(&health.Patients); err != nil {
		return health, fmt.Errorf("count patients: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM documents`).Scan(&health.Documents); err != nil {
		return health, fmt.Errorf("count documents: %w", err)
	}
	return health, nil
}

// CheckHealth returns diagnostic information about the registry database.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{DBPath: s.path}

	if s.path == "" {
		return health, errors.New("registry database path is unknown")
	}

	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			health.DatabaseExists = false
			return health, nil
		}
		return health, fmt.Errorf("stat registry database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("registry database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	if s.db == nil {
		return health, errors.New("registry database connection unavailable")
	}

	connCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping registry database: %w", err)
	}
	health.DatabaseReadable = true

	expected := []string{"sessions", "session_files", "patients", "documents"}
	rows, err := s.db.QueryContext(connCtx, "SELECT name FROM sqlite_master WHERE type = 'table'")
	if err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("query table info: %w", err)
	}
	defer rows.Close()

	present := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("scan table info: %w", err)
		}
		present[name] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("iterate table info: %w", err)
	}
	for _, table := range expected {
		if _, ok := present[table]; !ok {
			health.MissingTables = append(health.MissingTables, table)
		}
	}

	if len(health.MissingTables) == 0 {
		row := s.db.QueryRowContext(connCtx, "SELECT COUNT(*) FROM session_files")
		if err := row.Scan(&health.TotalFiles); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("count session files: %w", err)
		}
	}

	row := s.db.QueryRowContext(connCtx, "PRAGMA integrity_check")
	var integrityResult string
	if err := row.Scan(&integrityResult); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityCheck = strings.EqualFold(integrityResult, "ok")

	return health, nil
}
