package registry

import (
	"database/sql"
	"errors"
	"time"
)

const sessionColumns = "id, label, mode, status, created_by, created_at, updated_at, started_at, finished_at"

const fileColumns = "id, session_id, original_name, extension, size_bytes, content_hash, status, match_status, parsed_json, candidates_json, match_confidence, match_tier, patient_id, document_id, duplicate_of, error_message, review_required, review_category, review_priority, review_note, decided_by, decided_at, created_at, updated_at, started_at, finished_at"

const patientColumns = "id, record_number, secondary_number, first_names, last_names, full_name, normalized_name, provisional, created_at, updated_at"

const documentColumns = "id, patient_id, session_id, file_id, content_hash, storage_path, original_name, document_type, size_bytes, indexed, created_at, updated_at"

type rowScanner interface{ Scan(dest ...any) error }

func scanSession(scanner rowScanner) (*Session, error) {
	var (
		id          string
		label       sql.NullString
		modeStr     string
		statusStr   string
		createdBy   sql.NullString
		createdRaw  sql.NullString
		updatedRaw  sql.NullString
		startedRaw  sql.NullString
		finishedRaw sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&label,
		&modeStr,
		&statusStr,
		&createdBy,
		&createdRaw,
		&updatedRaw,
		&startedRaw,
		&finishedRaw,
	); err != nil {
		return nil, err
	}

	session := &Session{
		ID:        id,
		Label:     label.String,
		Mode:      SessionMode(modeStr),
		Status:    SessionStatus(statusStr),
		CreatedBy: createdBy.String,
	}

	if created, err := parseTimeString(createdRaw.String); err == nil {
		session.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		session.UpdatedAt = updated
	}
	if startedRaw.Valid {
		if started, err := parseTimeString(startedRaw.String); err == nil {
			session.StartedAt = &started
		}
	}
	if finishedRaw.Valid {
		if finished, err := parseTimeString(finishedRaw.String); err == nil {
			session.FinishedAt = &finished
		}
	}
	return session, nil
}

func scanFile(scanner rowScanner) (*FileState, error) {
	var (
		id             int64
		sessionID      string
		originalName   string
		extension      sql.NullString
		sizeBytes      sql.NullInt64
		contentHash    sql.NullString
		statusStr      string
		matchStatusStr string
		parsedJSON     sql.NullString
		candidatesJSON sql.NullString
		confidence     sql.NullFloat64
		matchTier      sql.NullString
		patientID      sql.NullString
		documentID     sql.NullString
		duplicateOf    sql.NullString
		errorMessage   sql.NullString
		reviewRequired sql.NullInt64
		reviewCategory sql.NullString
		reviewPriority sql.NullString
		reviewNote     sql.NullString
		decidedBy      sql.NullString
		decidedRaw     sql.NullString
		createdRaw     sql.NullString
		updatedRaw     sql.NullString
		startedRaw     sql.NullString
		finishedRaw    sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&sessionID,
		&originalName,
		&extension,
		&sizeBytes,
		&contentHash,
		&statusStr,
		&matchStatusStr,
		&parsedJSON,
		&candidatesJSON,
		&confidence,
		&matchTier,
		&patientID,
		&documentID,
		&duplicateOf,
		&errorMessage,
		&reviewRequired,
		&reviewCategory,
		&reviewPriority,
		&reviewNote,
		&decidedBy,
		&decidedRaw,
		&createdRaw,
		&updatedRaw,
		&startedRaw,
		&finishedRaw,
	); err != nil {
		return nil, err
	}

	file := &FileState{
		ID:              id,
		SessionID:       sessionID,
		OriginalName:    originalName,
		Extension:       extension.String,
		SizeBytes:       sizeBytes.Int64,
		ContentHash:     contentHash.String,
		Status:          FileStatus(statusStr),
		MatchStatus:     MatchStatus(matchStatusStr),
		ParsedJSON:      parsedJSON.String,
		CandidatesJSON:  candidatesJSON.String,
		MatchConfidence: confidence.Float64,
		MatchTier:       matchTier.String,
		PatientID:       patientID.String,
		DocumentID:      documentID.String,
		DuplicateOf:     duplicateOf.String,
		ErrorMessage:    errorMessage.String,
		ReviewCategory:  reviewCategory.String,
		ReviewPriority:  reviewPriority.String,
		ReviewNote:      reviewNote.String,
		DecidedBy:       decidedBy.String,
	}
	if reviewRequired.Valid {
		file.ReviewRequired = reviewRequired.Int64 != 0
	}

	if created, err := parseTimeString(createdRaw.String); err == nil {
		file.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		file.UpdatedAt = updated
	}
	if decidedRaw.Valid {
		if decided, err := parseTimeString(decidedRaw.String); err == nil {
			file.DecidedAt = &decided
		}
	}
	if startedRaw.Valid {
		if started, err := parseTimeString(startedRaw.String); err == nil {
			file.StartedAt = &started
		}
	}
	if finishedRaw.Valid {
		if finished, err := parseTimeString(finishedRaw.String); err == nil {
			file.FinishedAt = &finished
		}
	}
	return file, nil
}

func scanPatient(scanner rowScanner) (*Patient, error) {
	var (
		id              string
		recordNumber    sql.NullString
		secondaryNumber sql.NullString
		firstNames      sql.NullString
		lastNames       sql.NullString
		fullName        string
		normalizedName  string
		provisional     sql.NullInt64
		createdRaw      sql.NullString
		updatedRaw      sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&recordNumber,
		&secondaryNumber,
		&firstNames,
		&lastNames,
		&fullName,
		&normalizedName,
		&provisional,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	patient := &Patient{
		ID:              id,
		RecordNumber:    recordNumber.String,
		SecondaryNumber: secondaryNumber.String,
		FirstNames:      firstNames.String,
		LastNames:       lastNames.String,
		FullName:        fullName,
		NormalizedName:  normalizedName,
	}
	if provisional.Valid {
		patient.Provisional = provisional.Int64 != 0
	}

	if created, err := parseTimeString(createdRaw.String); err == nil {
		patient.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		patient.UpdatedAt = updated
	}
	return patient, nil
}

func scanDocument(scanner rowScanner) (*Document, error) {
	var (
		id           string
		patientID    string
		sessionID    sql.NullString
		fileID       sql.NullInt64
		contentHash  string
		storagePath  string
		originalName string
		documentType sql.NullString
		sizeBytes    sql.NullInt64
		indexed      sql.NullInt64
		createdRaw   sql.NullString
		updatedRaw   sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&patientID,
		&sessionID,
		&fileID,
		&contentHash,
		&storagePath,
		&originalName,
		&documentType,
		&sizeBytes,
		&indexed,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	doc := &Document{
		ID:           id,
		PatientID:    patientID,
		SessionID:    sessionID.String,
		FileID:       fileID.Int64,
		ContentHash:  contentHash,
		StoragePath:  storagePath,
		OriginalName: originalName,
		DocumentType: documentType.String,
		SizeBytes:    sizeBytes.Int64,
	}
	if indexed.Valid {
		doc.Indexed = indexed.Int64 != 0
	}

	if created, err := parseTimeString(createdRaw.String); err == nil {
		doc.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		doc.UpdatedAt = updated
	}
	return doc, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	v := value.UTC().Format(time.RFC3339Nano)
	return v
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
