package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// NewSessionFile describes one upload staged into a session. ParsedJSON
// carries the filename parse result when the ingest step already has it.
type NewSessionFile struct {
	OriginalName string
	Extension    string
	SizeBytes    int64
	ContentHash  string
	ParsedJSON   string
}

// AddFiles stages uploads into a session within a single transaction.
func (s *Store) AddFiles(ctx context.Context, sessionID string, files []NewSessionFile) ([]*FileState, error) {
	if len(files) == 0 {
		return nil, nil
	}
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	ids := make([]int64, 0, len(files))

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, file := range files {
			res, err := tx.ExecContext(
				ctx,
				`INSERT INTO session_files (
                    session_id, original_name, extension, size_bytes, content_hash,
                    parsed_json, status, match_status, created_at, updated_at
                ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				sessionID,
				file.OriginalName,
				nullableString(file.Extension),
				file.SizeBytes,
				nullableString(file.ContentHash),
				nullableString(file.ParsedJSON),
				FilePending,
				MatchPending,
				timestamp,
				timestamp,
			)
			if err != nil {
				return fmt.Errorf("insert session file %q: %w", file.OriginalName, err)
			}
			id, err := res.LastInsertId()
			if err != nil {
				return fmt.Errorf("last insert id: %w", err)
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.filesByIDs(ctx, ids)
}

func (s *Store) filesByIDs(ctx context.Context, ids []int64) ([]*FileState, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := makePlaceholders(len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+fileColumns+` FROM session_files WHERE id IN (`+placeholders+`) ORDER BY id`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query files by id: %w", err)
	}
	defer rows.Close()

	var files []*FileState
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	return files, rows.Err()
}

// GetFile fetches a session file by identifier.
func (s *Store) GetFile(ctx context.Context, id int64) (*FileState, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM session_files WHERE id = ?`, id)
	file, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}
	return file, nil
}

// FilesBySession returns every file staged into a session ordered by insertion.
func (s *Store) FilesBySession(ctx context.Context, sessionID string) ([]*FileState, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+fileColumns+` FROM session_files WHERE session_id = ? ORDER BY id`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query session files: %w", err)
	}
	defer rows.Close()

	var files []*FileState
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	return files, rows.Err()
}

// PendingFiles returns files in a session still awaiting processing.
func (s *Store) PendingFiles(ctx context.Context, sessionID string) ([]*FileState, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+fileColumns+` FROM session_files WHERE session_id = ? AND status = ? ORDER BY id`,
		sessionID,
		FilePending,
	)
	if err != nil {
		return nil, fmt.Errorf("query pending files: %w", err)
	}
	defer rows.Close()

	var files []*FileState
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	return files, rows.Err()
}

// ClaimFile transitions a pending file to processing. It returns false when
// another worker already claimed the file.
func (s *Store) ClaimFile(ctx context.Context, id int64) (bool, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE session_files SET status = ?, started_at = ?, updated_at = ? WHERE id = ? AND status = ?`,
		FileProcessing,
		now,
		now,
		id,
		FilePending,
	)
	if err != nil {
		return false, fmt.Errorf("claim file: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// UpdateFile persists changes to an existing session file.
func (s *Store) UpdateFile(ctx context.Context, file *FileState) error {
	if file == nil {
		return errors.New("file is nil")
	}
	file.UpdatedAt = time.Now().UTC()
	if err := s.execWithoutResultRetry(ctx, updateFileQuery, updateFileArgs(file)...); err != nil {
		return fmt.Errorf("update file: %w", err)
	}
	return nil
}

const updateFileQuery = `UPDATE session_files
 SET status = ?, match_status = ?, content_hash = ?, parsed_json = ?, candidates_json = ?,
     match_confidence = ?, match_tier = ?, patient_id = ?, document_id = ?, duplicate_of = ?,
     error_message = ?, review_required = ?, review_category = ?, review_priority = ?,
     review_note = ?, decided_by = ?, decided_at = ?, updated_at = ?, started_at = ?, finished_at = ?
 WHERE id = ?`

func updateFileArgs(file *FileState) []any {
	return []any{
		file.Status,
		file.MatchStatus,
		nullableString(file.ContentHash),
		nullableString(file.ParsedJSON),
		nullableString(file.CandidatesJSON),
		file.MatchConfidence,
		nullableString(file.MatchTier),
		nullableString(file.PatientID),
		nullableString(file.DocumentID),
		nullableString(file.DuplicateOf),
		nullableString(file.ErrorMessage),
		boolToInt(file.ReviewRequired),
		nullableString(file.ReviewCategory),
		nullableString(file.ReviewPriority),
		nullableString(file.ReviewNote),
		nullableString(file.DecidedBy),
		nullableTime(file.DecidedAt),
		file.UpdatedAt.Format(time.RFC3339Nano),
		nullableTime(file.StartedAt),
		nullableTime(file.FinishedAt),
		file.ID,
	}
}

// ResetStuckProcessing returns a session's in-flight files to pending. Callers
// hold the session claim, so anything still marked processing is an orphan
// from an interrupted run.
func (s *Store) ResetStuckProcessing(ctx context.Context, sessionID string) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE session_files
         SET status = ?, started_at = NULL, updated_at = ?
         WHERE session_id = ? AND status = ?`,
		FilePending,
		time.Now().UTC().Format(time.RFC3339Nano),
		sessionID,
		FileProcessing,
	)
	if err != nil {
		return 0, fmt.Errorf("reset stuck files: %w", err)
	}
	return res.RowsAffected()
}

// ReclaimStaleProcessing returns files stuck in processing across all sessions
// back to pending once their last update predates the cutoff.
func (s *Store) ReclaimStaleProcessing(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE session_files
         SET status = ?, started_at = NULL, updated_at = ?
         WHERE status = ? AND updated_at < ?`,
		FilePending,
		time.Now().UTC().Format(time.RFC3339Nano),
		FileProcessing,
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale files: %w", err)
	}
	return res.RowsAffected()
}

// ResetFileForRetry clears pipeline results so a failed or reviewed file can
// run again. It returns false when the file is not in a retryable state.
func (s *Store) ResetFileForRetry(ctx context.Context, id int64, decidedBy string) (bool, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE session_files
         SET status = ?, match_status = ?, parsed_json = NULL, candidates_json = NULL,
             match_confidence = 0, match_tier = NULL, patient_id = NULL, document_id = NULL,
             duplicate_of = NULL, error_message = NULL, review_required = 0,
             review_category = NULL, review_priority = NULL, review_note = NULL,
             decided_by = ?, decided_at = ?, updated_at = ?, started_at = NULL, finished_at = NULL
         WHERE id = ? AND status IN (?, ?)`,
		FilePending,
		MatchPending,
		nullableString(decidedBy),
		now,
		now,
		id,
		FileFailed,
		FileReview,
	)
	if err != nil {
		return false, fmt.Errorf("reset file for retry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// FilesAwaitingReview returns files flagged for an admin decision, highest
// priority first. An empty session reference spans all sessions; a
// non-positive limit returns everything.
func (s *Store) FilesAwaitingReview(ctx context.Context, sessionID string, limit int) ([]*FileState, error) {
	query := `SELECT ` + fileColumns + ` FROM session_files WHERE review_required = 1`
	args := make([]any, 0, 2)
	if sessionID != "" {
		query += ` AND session_id = ?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY CASE review_priority WHEN ? THEN 0 WHEN ? THEN 1 ELSE 2 END, id`
	args = append(args, ReviewPriorityHigh, ReviewPriorityMedium)
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query review files: %w", err)
	}
	defer rows.Close()

	var files []*FileState
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	return files, rows.Err()
}

// CountFilesWithHash reports how many other session files reference the same
// content hash. Used before removing a blob from storage.
func (s *Store) CountFilesWithHash(ctx context.Context, hash string, excludeFileID int64) (int, error) {
	if hash == "" {
		return 0, nil
	}
	var count int
	err := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM session_files WHERE content_hash = ? AND id != ?`,
		hash,
		excludeFileID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count files with hash: %w", err)
	}
	return count, nil
}

// SessionFileCounts aggregates per-status totals for one session.
func (s *Store) SessionFileCounts(ctx context.Context, sessionID string) (SessionCounts, error) {
	var counts SessionCounts
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT status, COUNT(1), SUM(CASE WHEN duplicate_of IS NOT NULL THEN 1 ELSE 0 END)
         FROM session_files WHERE session_id = ? GROUP BY status`,
		sessionID,
	)
	if err != nil {
		return counts, fmt.Errorf("count session files: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			statusStr  string
			total      int
			duplicates int
		)
		if err := rows.Scan(&statusStr, &total, &duplicates); err != nil {
			return counts, err
		}
		counts.Total += total
		counts.Duplicates += duplicates
		switch FileStatus(statusStr) {
		case FilePending:
			counts.Pending += total
		case FileProcessing:
			counts.Processing += total
		case FileCompleted:
			counts.Completed += total
		case FileReview:
			counts.Review += total
		case FileFailed:
			counts.Failed += total
		case FileSkipped:
			counts.Skipped += total
		case FileRejected:
			counts.Rejected += total
		}
	}
	return counts, rows.Err()
}
