package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

func updateFileTx(ctx context.Context, tx *sql.Tx, file *FileState) error {
	file.UpdatedAt = time.Now().UTC()
	if _, err := tx.ExecContext(ctx, updateFileQuery, updateFileArgs(file)...); err != nil {
		return fmt.Errorf("update file: %w", err)
	}
	return nil
}

func stampFinished(file *FileState) {
	if file.FinishedAt == nil {
		now := time.Now().UTC()
		file.FinishedAt = &now
	}
}

// CompleteFileNewPatient atomically creates a patient, archives the document
// under them, and finalizes the session file. The caller sets the file's
// status and match fields beforehand.
func (s *Store) CompleteFileNewPatient(ctx context.Context, file *FileState, patient *Patient, doc *Document) error {
	if file == nil || patient == nil || doc == nil {
		return errors.New("file, patient, and document are required")
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := insertPatientTx(ctx, tx, patient); err != nil {
			return err
		}
		doc.PatientID = patient.ID
		doc.SessionID = file.SessionID
		doc.FileID = file.ID
		if err := insertDocumentTx(ctx, tx, doc); err != nil {
			return err
		}
		file.PatientID = patient.ID
		file.DocumentID = doc.ID
		stampFinished(file)
		return updateFileTx(ctx, tx, file)
	})
}

// CompleteFileExistingPatient atomically archives the document under an
// existing patient and finalizes the session file.
func (s *Store) CompleteFileExistingPatient(ctx context.Context, file *FileState, doc *Document) error {
	if file == nil || doc == nil {
		return errors.New("file and document are required")
	}
	if doc.PatientID == "" {
		return errors.New("document patient is required")
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		doc.SessionID = file.SessionID
		doc.FileID = file.ID
		if err := insertDocumentTx(ctx, tx, doc); err != nil {
			return err
		}
		file.PatientID = doc.PatientID
		file.DocumentID = doc.ID
		stampFinished(file)
		return updateFileTx(ctx, tx, file)
	})
}
