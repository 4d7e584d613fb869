package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"documind/errors"
)

// ChatMessage is one turn of a stored conversation.
type ChatMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatSessionInfo summarizes a stored conversation.
type ChatSessionInfo struct {
	SessionID    string    `json:"session_id"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	LastUpdated  time.Time `json:"last_updated"`
}

// AppendMessage adds one message to the session's history, creating the
// session row on first write.
func (s *PostgresStore) AppendMessage(ctx context.Context, sessionID, role, content string) error {
	msg, err := json.Marshal(ChatMessage{Role: role, Content: content, Timestamp: time.Now().UTC()})
	if err != nil {
		return errors.WrapError(err, "marshal chat message")
	}
	query := `
        INSERT INTO chat_sessions (session_id, messages, message_count, created_at, last_updated)
        VALUES ($1, jsonb_build_array($2::jsonb), 1, NOW(), NOW())
        ON CONFLICT (session_id) DO UPDATE SET
            messages = chat_sessions.messages || $2::jsonb,
            message_count = chat_sessions.message_count + 1,
            last_updated = NOW()
    `
	if _, err := s.DB.ExecContext(ctx, query, sessionID, string(msg)); err != nil {
		return errors.WrapErrorf(errors.ErrStorageFailure, "append chat message: %v", err)
	}
	return nil
}

// GetMessages returns the last limit messages for a session, oldest first.
// A zero limit returns everything. A missing session reads as empty.
func (s *PostgresStore) GetMessages(ctx context.Context, sessionID string, limit int) ([]ChatMessage, error) {
	var raw []byte
	err := s.DB.QueryRowContext(ctx,
		`SELECT messages FROM chat_sessions WHERE session_id = $1`, sessionID).Scan(&raw)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errors.WrapError(errors.ErrStorageFailure, err.Error())
	}
	var messages []ChatMessage
	if err := json.Unmarshal(raw, &messages); err != nil {
		return nil, errors.WrapError(err, "decode chat messages")
	}
	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	return messages, nil
}

// ClearChat deletes the conversation for a session.
func (s *PostgresStore) ClearChat(ctx context.Context, sessionID string) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM chat_sessions WHERE session_id = $1`, sessionID)
	if err != nil {
		return false, errors.WrapErrorf(errors.ErrStorageFailure, "clear chat %s: %v", sessionID, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ListChatSessions returns headers of all stored conversations, most
// recently active first.
func (s *PostgresStore) ListChatSessions(ctx context.Context) ([]ChatSessionInfo, error) {
	rows, err := s.DB.QueryContext(ctx, `
        SELECT session_id, message_count, created_at, last_updated
        FROM chat_sessions ORDER BY last_updated DESC
    `)
	if err != nil {
		return nil, errors.WrapError(errors.ErrStorageFailure, err.Error())
	}
	defer rows.Close()

	var sessions []ChatSessionInfo
	for rows.Next() {
		var info ChatSessionInfo
		if err := rows.Scan(&info.SessionID, &info.MessageCount, &info.CreatedAt, &info.LastUpdated); err != nil {
			return nil, err
		}
		sessions = append(sessions, info)
	}
	return sessions, rows.Err()
}
