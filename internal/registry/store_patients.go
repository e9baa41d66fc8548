package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const insertPatientQuery = `INSERT INTO patients (
    id, record_number, secondary_number, first_names, last_names,
    full_name, normalized_name, provisional, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func insertPatientArgs(patient *Patient) []any {
	created := patient.CreatedAt.Format(time.RFC3339Nano)
	updated := patient.UpdatedAt.Format(time.RFC3339Nano)
	return []any{
		patient.ID,
		nullableString(patient.RecordNumber),
		nullableString(patient.SecondaryNumber),
		patient.FirstNames,
		patient.LastNames,
		patient.FullName,
		patient.NormalizedName,
		boolToInt(patient.Provisional),
		created,
		updated,
	}
}

func preparePatient(patient *Patient) {
	if patient.ID == "" {
		patient.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if patient.CreatedAt.IsZero() {
		patient.CreatedAt = now
	}
	patient.UpdatedAt = now
}

// CreatePatient inserts a new patient record, assigning an identifier when
// the caller left it empty.
func (s *Store) CreatePatient(ctx context.Context, patient *Patient) error {
	if patient == nil {
		return errors.New("patient is nil")
	}
	preparePatient(patient)
	if err := s.execWithoutResultRetry(ctx, insertPatientQuery, insertPatientArgs(patient)...); err != nil {
		return fmt.Errorf("insert patient: %w", err)
	}
	return nil
}

func insertPatientTx(ctx context.Context, tx *sql.Tx, patient *Patient) error {
	preparePatient(patient)
	if _, err := tx.ExecContext(ctx, insertPatientQuery, insertPatientArgs(patient)...); err != nil {
		return fmt.Errorf("insert patient: %w", err)
	}
	return nil
}

// GetPatient fetches a patient by identifier.
func (s *Store) GetPatient(ctx context.Context, id string) (*Patient, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+patientColumns+` FROM patients WHERE id = ?`, id)
	patient, err := scanPatient(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get patient: %w", err)
	}
	return patient, nil
}

// FindPatientByRecordNumber returns the patient holding a record number.
func (s *Store) FindPatientByRecordNumber(ctx context.Context, recordNumber string) (*Patient, error) {
	if recordNumber == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+patientColumns+` FROM patients WHERE record_number = ? ORDER BY created_at LIMIT 1`,
		recordNumber,
	)
	patient, err := scanPatient(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find patient by record number: %w", err)
	}
	return patient, nil
}

// AllPatients returns every patient ordered by normalized name. The matcher
// scores candidates in memory, so this is the candidate pool.
func (s *Store) AllPatients(ctx context.Context) ([]*Patient, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+patientColumns+` FROM patients ORDER BY normalized_name`)
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	defer rows.Close()

	var patients []*Patient
	for rows.Next() {
		patient, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		patients = append(patients, patient)
	}
	return patients, rows.Err()
}

// SearchPatients matches patients whose normalized name or record number
// contains the term. Callers normalize the term before searching.
func (s *Store) SearchPatients(ctx context.Context, term string, limit int) ([]*Patient, error) {
	if term == "" {
		return nil, nil
	}
	query := `SELECT ` + patientColumns + ` FROM patients
         WHERE normalized_name LIKE ? OR record_number LIKE ?
         ORDER BY normalized_name`
	pattern := "%" + term + "%"
	args := []any{pattern, pattern}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search patients: %w", err)
	}
	defer rows.Close()

	var patients []*Patient
	for rows.Next() {
		patient, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		patients = append(patients, patient)
	}
	return patients, rows.Err()
}

// UpdatePatient persists changes to an existing patient.
func (s *Store) UpdatePatient(ctx context.Context, patient *Patient) error {
	if patient == nil {
		return errors.New("patient is nil")
	}
	patient.UpdatedAt = time.Now().UTC()
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE patients
         SET record_number = ?, secondary_number = ?, first_names = ?, last_names = ?,
             full_name = ?, normalized_name = ?, provisional = ?, updated_at = ?
         WHERE id = ?`,
		nullableString(patient.RecordNumber),
		nullableString(patient.SecondaryNumber),
		patient.FirstNames,
		patient.LastNames,
		patient.FullName,
		patient.NormalizedName,
		boolToInt(patient.Provisional),
		patient.UpdatedAt.Format(time.RFC3339Nano),
		patient.ID,
	); err != nil {
		return fmt.Errorf("update patient: %w", err)
	}
	return nil
}
