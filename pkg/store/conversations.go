package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pario-ai/warden/pkg/models"
)

// GetConversation returns the conversation with the given id, or nil when it
// does not exist.
func (s *Store) GetConversation(ctx context.Context, id string) (*models.ConversationRecord, error) {
	return scanConversation(s.db.QueryRowContext(ctx,
		`SELECT conversation_id, user_id, ip, messages, message_count, last_request_id, updated_at
		 FROM conversations WHERE conversation_id = ?`, id))
}

// LatestConversationForSubject returns the most recently updated conversation
// belonging to either the user or the ip, updated at or after since. Returns
// nil when no such conversation exists.
func (s *Store) LatestConversationForSubject(ctx context.Context, userID, ip string, since time.Time) (*models.ConversationRecord, error) {
	return scanConversation(s.db.QueryRowContext(ctx,
		`SELECT conversation_id, user_id, ip, messages, message_count, last_request_id, updated_at
		 FROM conversations
		 WHERE (user_id = ? OR ip = ?) AND updated_at >= ?
		 ORDER BY updated_at DESC LIMIT 1`,
		userID, ip, since))
}

// AppendConversationMessageTx records one message of rec's conversation
// within tx: a missing conversation row is created with the message as its
// first entry; an existing row gets the message appended, message_count
// incremented, last_request_id and updated_at refreshed.
func (s *Store) AppendConversationMessageTx(ctx context.Context, tx *sql.Tx, rec models.LogRecord) error {
	var messagesJSON string
	var count int
	err := tx.QueryRowContext(ctx,
		`SELECT messages, message_count FROM conversations WHERE conversation_id = ?`,
		rec.ConversationID,
	).Scan(&messagesJSON, &count)

	msg := models.ConversationMessage{Role: "user", Content: rec.Content}

	if errors.Is(err, sql.ErrNoRows) {
		data, err := json.Marshal([]models.ConversationMessage{msg})
		if err != nil {
			return fmt.Errorf("encode messages: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO conversations
			(conversation_id, user_id, ip, messages, message_count, last_request_id, updated_at)
			VALUES (?, ?, ?, ?, 1, ?, ?)`,
			rec.ConversationID, rec.UserID, rec.IP, string(data), rec.RequestID, rec.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("create conversation: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("read conversation: %w", err)
	}

	var messages []models.ConversationMessage
	if err := json.Unmarshal([]byte(messagesJSON), &messages); err != nil {
		return fmt.Errorf("decode messages: %w", err)
	}
	data, err := json.Marshal(append(messages, msg))
	if err != nil {
		return fmt.Errorf("encode messages: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE conversations
		 SET messages = ?, message_count = message_count + 1, last_request_id = ?, updated_at = ?
		 WHERE conversation_id = ?`,
		string(data), rec.RequestID, rec.Timestamp, rec.ConversationID,
	)
	if err != nil {
		return fmt.Errorf("update conversation: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*models.ConversationRecord, error) {
	var c models.ConversationRecord
	var messagesJSON string
	err := row.Scan(&c.ConversationID, &c.UserID, &c.IP, &messagesJSON,
		&c.MessageCount, &c.LastRequestID, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan conversation: %w", err)
	}
	if err := json.Unmarshal([]byte(messagesJSON), &c.Messages); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	return &c, nil
}
