package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pario-ai/warden/pkg/models"
)

// InsertRequestTx inserts one request log row within tx.
func (s *Store) InsertRequestTx(ctx context.Context, tx *sql.Tx, rec models.LogRecord) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO requests
		(request_id, user_id, ip, timestamp, model, token_prefix, token_suffix,
		 route, content, is_restricted, conversation_id, is_new_conversation)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RequestID, rec.UserID, rec.IP, rec.Timestamp, rec.Model,
		rec.TokenPrefix, rec.TokenSuffix, rec.Route, rec.Content,
		rec.IsRestricted, rec.ConversationID, rec.IsNewConversation,
	)
	if err != nil {
		return fmt.Errorf("insert request: %w", err)
	}
	return nil
}

// CountRequests returns the total number of persisted request rows.
func (s *Store) CountRequests(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM requests`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count requests: %w", err)
	}
	return n, nil
}

// RequestsForConversation returns the persisted log rows for one conversation
// in enqueue order.
func (s *Store) RequestsForConversation(ctx context.Context, conversationID string) ([]models.LogRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT request_id, user_id, ip, timestamp, model, token_prefix, token_suffix,
			route, content, is_restricted, conversation_id, is_new_conversation
		 FROM requests WHERE conversation_id = ? ORDER BY id ASC`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("query requests: %w", err)
	}
	defer rows.Close()

	var recs []models.LogRecord
	for rows.Next() {
		var r models.LogRecord
		var ts time.Time
		if err := rows.Scan(
			&r.RequestID, &r.UserID, &r.IP, &ts, &r.Model,
			&r.TokenPrefix, &r.TokenSuffix, &r.Route, &r.Content,
			&r.IsRestricted, &r.ConversationID, &r.IsNewConversation,
		); err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		r.Timestamp = ts
		recs = append(recs, r)
	}
	return recs, rows.Err()
}
