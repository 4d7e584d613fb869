package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"documind/errors"

	"go.uber.org/zap"
)

// SessionInfo is the header row of a document session.
type SessionInfo struct {
	SessionID   string    `json:"session_id"`
	Author      string    `json:"author"`
	FilesCount  int       `json:"files_count"`
	CreatedAt   time.Time `json:"created_at"`
	LastUpdated time.Time `json:"last_updated"`
}

// AppendFiles upserts the session row and appends the given structured
// document records to its files array, bumping files_count by the same
// amount. Records are opaque JSON objects; each must at least carry
// source_id and file_hash.
func (s *PostgresStore) AppendFiles(ctx context.Context, sessionID, author string, records []json.RawMessage) error {
	if len(records) == 0 {
		return nil
	}
	batch, err := json.Marshal(records)
	if err != nil {
		return errors.WrapError(err, "marshal file records")
	}

	query := `
        INSERT INTO sessions (session_id, author, files, files_count, created_at, last_updated)
        VALUES ($1, $2, $3::jsonb, $4, NOW(), NOW())
        ON CONFLICT (session_id) DO UPDATE SET
            author = EXCLUDED.author,
            files = sessions.files || EXCLUDED.files,
            files_count = sessions.files_count + $4,
            last_updated = NOW()
    `
	if _, err := s.DB.ExecContext(ctx, query, sessionID, author, string(batch), len(records)); err != nil {
		return errors.WrapErrorf(errors.ErrStorageFailure, "append files to session %s: %v", sessionID, err)
	}
	s.logger.Info("Appended file records to session",
		zap.String("session_id", sessionID),
		zap.Int("count", len(records)))
	return nil
}

// PullFile removes the record whose source_id matches from the session's
// files array and decrements files_count. Returns ErrNotFound when no
// element matched.
func (s *PostgresStore) PullFile(ctx context.Context, sessionID, sourceID string) error {
	query := `
        UPDATE sessions
        SET files = COALESCE((
                SELECT jsonb_agg(f)
                FROM jsonb_array_elements(files) AS f
                WHERE f ->> 'source_id' IS DISTINCT FROM $2
            ), '[]'::jsonb),
            files_count = GREATEST(files_count - 1, 0),
            last_updated = NOW()
        WHERE session_id = $1
          AND files @> jsonb_build_array(jsonb_build_object('source_id', $2::text))
    `
	res, err := s.DB.ExecContext(ctx, query, sessionID, sourceID)
	if err != nil {
		return errors.WrapErrorf(errors.ErrStorageFailure, "pull file %s: %v", sourceID, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errors.WrapErrorf(errors.ErrNotFound, "file %s in session %s", sourceID, sessionID)
	}
	return nil
}

// DeleteSession removes the whole session row. Deleting a missing session
// is not an error; the end state is the same.
func (s *PostgresStore) DeleteSession(ctx context.Context, sessionID string) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = $1`, sessionID)
	if err != nil {
		return false, errors.WrapErrorf(errors.ErrStorageFailure, "delete session %s: %v", sessionID, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// GetSession returns the session header and its file records.
func (s *PostgresStore) GetSession(ctx context.Context, sessionID string) (*SessionInfo, []json.RawMessage, error) {
	var info SessionInfo
	var files []byte
	query := `
        SELECT session_id, author, files, files_count, created_at, last_updated
        FROM sessions WHERE session_id = $1
    `
	err := s.DB.QueryRowContext(ctx, query, sessionID).Scan(
		&info.SessionID, &info.Author, &files, &info.FilesCount, &info.CreatedAt, &info.LastUpdated)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, errors.WrapErrorf(errors.ErrNotFound, "session %s", sessionID)
		}
		return nil, nil, errors.WrapError(errors.ErrStorageFailure, err.Error())
	}
	var records []json.RawMessage
	if err := json.Unmarshal(files, &records); err != nil {
		return nil, nil, errors.WrapError(err, "decode session files")
	}
	return &info, records, nil
}

// FindDocumentByHash scans all sessions for a file record with the given
// content hash and returns the first matching record. Returns ErrNotFound
// when nothing matches.
func (s *PostgresStore) FindDocumentByHash(ctx context.Context, fileHash string) (json.RawMessage, error) {
	query := `
        SELECT f
        FROM sessions, jsonb_array_elements(files) AS f
        WHERE f ->> 'file_hash' = $1
        ORDER BY created_at ASC
        LIMIT 1
    `
	var record []byte
	err := s.DB.QueryRowContext(ctx, query, fileHash).Scan(&record)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.WrapErrorf(errors.ErrNotFound, "document with hash %s", fileHash)
		}
		return nil, errors.WrapError(errors.ErrStorageFailure, err.Error())
	}
	return json.RawMessage(record), nil
}
