package store

import (
	"context"
	"database/sql"

	"github.com/pario-ai/warden/pkg/models"
)

// PersistBatch writes a batch of log records in one transaction: each
// record's request row plus, for records correlated to a conversation, the
// conversation-message row. The batch commits or rolls back as a whole.
func (s *Store) PersistBatch(ctx context.Context, recs []models.LogRecord) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		for _, rec := range recs {
			if err := s.InsertRequestTx(ctx, tx, rec); err != nil {
				return err
			}
			if rec.ConversationID != "" {
				if err := s.AppendConversationMessageTx(ctx, tx, rec); err != nil {
					return err
				}
			}
		}
		return nil
	})
}
