package store

import (
	"database/sql"
	"fmt"
)

// migration is one schema version. Statements must be idempotent so a
// partially applied database can be repaired by re-running.
type migration struct {
	version int
	name    string
	stmts   []string
}

// migrations is the ordered schema history. Append only; never edit an
// applied entry.
var migrations = []migration{
	{
		version: 1,
		name:    "requests and conversations",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS requests (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				request_id TEXT NOT NULL,
				user_id TEXT NOT NULL,
				ip TEXT NOT NULL,
				timestamp DATETIME NOT NULL,
				model TEXT NOT NULL,
				token_prefix TEXT NOT NULL,
				token_suffix TEXT NOT NULL,
				route TEXT NOT NULL,
				content TEXT,
				is_restricted INTEGER NOT NULL DEFAULT 0,
				conversation_id TEXT,
				is_new_conversation INTEGER NOT NULL DEFAULT 0
			)`,
			`CREATE INDEX IF NOT EXISTS idx_requests_user_time ON requests(user_id, timestamp)`,
			`CREATE INDEX IF NOT EXISTS idx_requests_conversation ON requests(conversation_id)`,
			`CREATE TABLE IF NOT EXISTS conversations (
				conversation_id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				ip TEXT NOT NULL,
				messages TEXT NOT NULL DEFAULT '[]',
				message_count INTEGER NOT NULL DEFAULT 0,
				last_request_id TEXT NOT NULL DEFAULT '',
				updated_at DATETIME NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations(user_id, updated_at)`,
			`CREATE INDEX IF NOT EXISTS idx_conversations_ip ON conversations(ip, updated_at)`,
		},
	},
	{
		version: 2,
		name:    "violation flags",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS violation_flags (
				subject_id TEXT NOT NULL,
				subject_kind TEXT NOT NULL,
				violation_count INTEGER NOT NULL DEFAULT 0,
				first_violation_at DATETIME NOT NULL,
				last_violation_at DATETIME NOT NULL,
				is_banned INTEGER NOT NULL DEFAULT 0,
				ban_until DATETIME,
				ban_reason TEXT NOT NULL DEFAULT '',
				PRIMARY KEY (subject_id, subject_kind)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_flags_banned ON violation_flags(is_banned, ban_until)`,
		},
	},
	{
		version: 3,
		name:    "moderation log",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS moderation_log (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				content_hash TEXT NOT NULL,
				risk_level TEXT NOT NULL,
				raw_response TEXT NOT NULL DEFAULT '',
				created_at DATETIME NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_moderation_hash ON moderation_log(content_hash)`,
		},
	},
}

// migrate applies all pending migrations in version order, each inside its
// own transaction and recorded in schema_migrations.
func migrate(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var current int
	if err := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.version, err)
		}
		for _, stmt := range m.stmts {
			if _, err := tx.Exec(stmt); err != nil {
				tx.Rollback()
				return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
			}
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations (version, name) VALUES (?, ?)`, m.version, m.name); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.version, err)
		}
	}
	return nil
}
