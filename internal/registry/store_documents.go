package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const insertDocumentQuery = `INSERT INTO documents (
    id, patient_id, session_id, file_id, content_hash, storage_path,
    original_name, document_type, size_bytes, indexed, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func insertDocumentArgs(doc *Document) []any {
	created := doc.CreatedAt.Format(time.RFC3339Nano)
	updated := doc.UpdatedAt.Format(time.RFC3339Nano)
	var fileID any
	if doc.FileID > 0 {
		fileID = doc.FileID
	}
	return []any{
		doc.ID,
		doc.PatientID,
		nullableString(doc.SessionID),
		fileID,
		doc.ContentHash,
		doc.StoragePath,
		doc.OriginalName,
		doc.DocumentType,
		doc.SizeBytes,
		boolToInt(doc.Indexed),
		created,
		updated,
	}
}

func prepareDocument(doc *Document) {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
}

func insertDocumentTx(ctx context.Context, tx *sql.Tx, doc *Document) error {
	prepareDocument(doc)
	if _, err := tx.ExecContext(ctx, insertDocumentQuery, insertDocumentArgs(doc)...); err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// GetDocument fetches a document by identifier.
func (s *Store) GetDocument(ctx context.Context, id string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

// FindDocumentByHash returns the archived document carrying a content hash.
func (s *Store) FindDocumentByHash(ctx context.Context, hash string) (*Document, error) {
	if hash == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE content_hash = ?`, hash)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find document by hash: %w", err)
	}
	return doc, nil
}

// DocumentsByPatient returns a patient's archived documents, newest first.
func (s *Store) DocumentsByPatient(ctx context.Context, patientID string) ([]*Document, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+documentColumns+` FROM documents WHERE patient_id = ? ORDER BY created_at DESC`,
		patientID,
	)
	if err != nil {
		return nil, fmt.Errorf("query patient documents: %w", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// DeleteDocument removes a document row, detaching any session files that
// reference it first.
func (s *Store) DeleteDocument(ctx context.Context, id string) (bool, error) {
	var deleted bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC().Format(time.RFC3339Nano)
		if _, err := tx.ExecContext(
			ctx,
			`UPDATE session_files SET document_id = NULL, updated_at = ? WHERE document_id = ?`,
			now,
			id,
		); err != nil {
			return fmt.Errorf("detach session files: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete document: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		deleted = affected > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}

// MarkDocumentIndexed records whether the document made it into the search index.
func (s *Store) MarkDocumentIndexed(ctx context.Context, id string, indexed bool) error {
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE documents SET indexed = ?, updated_at = ? WHERE id = ?`,
		boolToInt(indexed),
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	); err != nil {
		return fmt.Errorf("mark document indexed: %w", err)
	}
	return nil
}
