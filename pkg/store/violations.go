package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pario-ai/warden/pkg/models"
)

// IncrementViolationTx upsert-increments the violation counter for subject
// within tx and returns the flag as it stands after the increment.
func (s *Store) IncrementViolationTx(ctx context.Context, tx *sql.Tx, subject models.Subject, at time.Time) (models.ViolationFlag, error) {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO violation_flags (subject_id, subject_kind, violation_count, first_violation_at, last_violation_at)
		 VALUES (?, ?, 1, ?, ?)
		 ON CONFLICT(subject_id, subject_kind) DO UPDATE SET
			violation_count = violation_count + 1,
			last_violation_at = excluded.last_violation_at`,
		subject.ID, subject.Kind, at, at,
	)
	if err != nil {
		return models.ViolationFlag{}, fmt.Errorf("increment violation: %w", err)
	}

	flag, err := scanFlag(tx.QueryRowContext(ctx, flagQuery+` WHERE subject_id = ? AND subject_kind = ?`,
		subject.ID, subject.Kind))
	if err != nil {
		return models.ViolationFlag{}, err
	}
	if flag == nil {
		return models.ViolationFlag{}, fmt.Errorf("violation flag vanished for %s/%s", subject.Kind, subject.ID)
	}
	return *flag, nil
}

// ApplyBanTx marks subject banned within tx. The is_banned guard makes the
// update a no-op when the subject is already banned, so two transactions
// crossing the threshold concurrently cannot double-apply a ban.
func (s *Store) ApplyBanTx(ctx context.Context, tx *sql.Tx, subject models.Subject, until *time.Time, reason string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE violation_flags SET is_banned = 1, ban_until = ?, ban_reason = ?
		 WHERE subject_id = ? AND subject_kind = ? AND is_banned = 0`,
		nullableTime(until), reason, subject.ID, subject.Kind,
	)
	if err != nil {
		return fmt.Errorf("apply ban: %w", err)
	}
	return nil
}

// SetBan unconditionally bans subject, creating the flag row if the subject
// has no violation history. Used by the operator path; overwrites any
// existing ban terms.
func (s *Store) SetBan(ctx context.Context, subject models.Subject, until *time.Time, reason string) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO violation_flags
		 (subject_id, subject_kind, violation_count, first_violation_at, last_violation_at, is_banned, ban_until, ban_reason)
		 VALUES (?, ?, 0, ?, ?, 1, ?, ?)
		 ON CONFLICT(subject_id, subject_kind) DO UPDATE SET
			is_banned = 1, ban_until = excluded.ban_until, ban_reason = excluded.ban_reason`,
		subject.ID, subject.Kind, now, now, nullableTime(until), reason,
	)
	if err != nil {
		return fmt.Errorf("set ban: %w", err)
	}
	return nil
}

// LiftBan clears the ban on subject, keeping its violation history.
func (s *Store) LiftBan(ctx context.Context, subject models.Subject) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE violation_flags SET is_banned = 0, ban_until = NULL, ban_reason = ''
		 WHERE subject_id = ? AND subject_kind = ?`,
		subject.ID, subject.Kind,
	)
	if err != nil {
		return fmt.Errorf("lift ban: %w", err)
	}
	return nil
}

// FlagFor returns the violation flag for subject, or nil when none exists.
func (s *Store) FlagFor(ctx context.Context, subject models.Subject) (*models.ViolationFlag, error) {
	return scanFlag(s.db.QueryRowContext(ctx, flagQuery+` WHERE subject_id = ? AND subject_kind = ?`,
		subject.ID, subject.Kind))
}

// ActiveBan reports whether the user or the ip carries a ban that is either
// permanent (ban_until null) or not yet elapsed.
func (s *Store) ActiveBan(ctx context.Context, userID, ip string) (models.BanStatus, error) {
	row := s.db.QueryRowContext(ctx,
		flagQuery+` WHERE ((subject_kind = ? AND subject_id = ?) OR (subject_kind = ? AND subject_id = ?))
			AND is_banned = 1 AND (ban_until IS NULL OR ban_until > ?)
		 ORDER BY ban_until IS NULL DESC LIMIT 1`,
		models.SubjectUser, userID, models.SubjectIP, ip, time.Now().UTC(),
	)
	flag, err := scanFlag(row)
	if err != nil {
		return models.BanStatus{}, err
	}
	if flag == nil {
		return models.BanStatus{}, nil
	}
	return models.BanStatus{
		Banned:    true,
		Permanent: flag.BanUntil == nil,
		BanUntil:  flag.BanUntil,
		Reason:    flag.BanReason,
	}, nil
}

// FlagFilter narrows ListFlags results. Zero values mean no constraint.
type FlagFilter struct {
	Kind       models.SubjectKind
	MinCount   int
	BannedOnly bool
	Limit      int
}

// ListFlags returns violation flags matching the filter, most recent first.
// Filter values are always bound as query parameters.
func (s *Store) ListFlags(ctx context.Context, f FlagFilter) ([]models.ViolationFlag, error) {
	var conds []string
	var args []any

	if f.Kind != "" {
		conds = append(conds, "subject_kind = ?")
		args = append(args, f.Kind)
	}
	if f.MinCount > 0 {
		conds = append(conds, "violation_count >= ?")
		args = append(args, f.MinCount)
	}
	if f.BannedOnly {
		conds = append(conds, "is_banned = 1")
	}

	q := flagQuery
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY last_violation_at DESC"

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	q += " LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list flags: %w", err)
	}
	defer rows.Close()

	var flags []models.ViolationFlag
	for rows.Next() {
		flag, err := scanFlag(rows)
		if err != nil {
			return nil, err
		}
		flags = append(flags, *flag)
	}
	return flags, rows.Err()
}

const flagQuery = `SELECT subject_id, subject_kind, violation_count,
	first_violation_at, last_violation_at, is_banned, ban_until, ban_reason
	FROM violation_flags`

func scanFlag(row rowScanner) (*models.ViolationFlag, error) {
	var f models.ViolationFlag
	var banUntil sql.NullTime
	err := row.Scan(&f.Subject.ID, &f.Subject.Kind, &f.ViolationCount,
		&f.FirstViolationAt, &f.LastViolationAt, &f.IsBanned, &banUntil, &f.BanReason)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan violation flag: %w", err)
	}
	if banUntil.Valid {
		t := banUntil.Time
		f.BanUntil = &t
	}
	return &f, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
