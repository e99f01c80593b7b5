package store

import (
	"context"
	"fmt"

	"github.com/pario-ai/warden/pkg/models"
)

// InsertModerationLog records one classifier round-trip for audit.
func (s *Store) InsertModerationLog(ctx context.Context, entry models.ModerationLogEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO moderation_log (content_hash, risk_level, raw_response, created_at)
		 VALUES (?, ?, ?, ?)`,
		entry.ContentHash, entry.RiskLevel, entry.RawResponse, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert moderation log: %w", err)
	}
	return nil
}

// ModerationLogByHash returns the audit rows for one content hash, oldest first.
func (s *Store) ModerationLogByHash(ctx context.Context, contentHash string) ([]models.ModerationLogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT content_hash, risk_level, raw_response, created_at
		 FROM moderation_log WHERE content_hash = ? ORDER BY id ASC`,
		contentHash,
	)
	if err != nil {
		return nil, fmt.Errorf("query moderation log: %w", err)
	}
	defer rows.Close()

	var entries []models.ModerationLogEntry
	for rows.Next() {
		var e models.ModerationLogEntry
		if err := rows.Scan(&e.ContentHash, &e.RiskLevel, &e.RawResponse, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan moderation log: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
