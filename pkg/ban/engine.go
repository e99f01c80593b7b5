// Package ban escalates repeat moderation offenders. Violations are counted
// per subject dimension (user and ip independently); once a counter crosses
// the configured threshold the subject is banned automatically. Operators can
// ban and unban through the same storage shape, so automatic and manual bans
// are indistinguishable once applied.
package ban

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/pario-ai/warden/pkg/models"
	"github.com/pario-ai/warden/pkg/store"
)

// ConfigSource yields the current auto-ban settings. Implementations must
// fall back to defaults when unconfigured.
type ConfigSource interface {
	AutoBanConfig() models.AutoBanConfig
}

// Action is an operator ban operation.
type Action string

const (
	ActionBan   Action = "BAN"
	ActionUnban Action = "UNBAN"
)

// Engine applies violation counting and ban escalation against the store.
type Engine struct {
	store *store.Store
	cfg   ConfigSource
	now   func() time.Time // test hook
}

// New builds an Engine.
func New(s *store.Store, cfg ConfigSource) *Engine {
	return &Engine{store: s, cfg: cfg, now: time.Now}
}

// RecordViolation increments the violation counters for the request's
// subjects and applies automatic bans for any counter crossing the
// threshold, all inside one transaction. A PASS risk level is a no-op.
//
// Storage failures roll back and are dropped with a log line: violation
// accounting is best effort, unlike the log writer's retried delivery.
func (e *Engine) RecordViolation(ctx context.Context, userID, ip string, risk models.RiskLevel) error {
	if risk == models.RiskPass {
		return nil
	}

	var subjects []models.Subject
	if userID != "" {
		subjects = append(subjects, models.Subject{ID: userID, Kind: models.SubjectUser})
	}
	if ip != "" {
		subjects = append(subjects, models.Subject{ID: ip, Kind: models.SubjectIP})
	}
	if len(subjects) == 0 {
		return nil
	}

	cfg := e.cfg.AutoBanConfig()
	now := e.now().UTC()

	err := e.store.WithTx(ctx, func(tx *sql.Tx) error {
		for _, subject := range subjects {
			flag, err := e.store.IncrementViolationTx(ctx, tx, subject, now)
			if err != nil {
				return err
			}
			if !cfg.Enabled {
				continue
			}
			if flag.ViolationCount < cfg.ViolationThreshold || flag.IsBanned {
				continue
			}
			until := now.Add(cfg.BanDuration)
			reason := fmt.Sprintf("auto-ban: %d violations reached threshold %d",
				flag.ViolationCount, cfg.ViolationThreshold)
			if err := e.store.ApplyBanTx(ctx, tx, subject, &until, reason); err != nil {
				return err
			}
			log.Printf("ban: auto-banned %s %s until %s (%d violations)",
				subject.Kind, subject.ID, until.Format(time.RFC3339), flag.ViolationCount)
		}
		return nil
	})
	if err != nil {
		log.Printf("ban: violation for user=%q ip=%q dropped: %v", userID, ip, err)
		return fmt.Errorf("record violation: %w", err)
	}
	return nil
}

// CheckBanStatus reports whether the user or the ip is currently banned.
// Store failures fail open: an unreadable flag table never blocks traffic.
func (e *Engine) CheckBanStatus(ctx context.Context, userID, ip string) models.BanStatus {
	status, err := e.store.ActiveBan(ctx, userID, ip)
	if err != nil {
		log.Printf("ban: status check failed for user=%q ip=%q: %v", userID, ip, err)
		return models.BanStatus{}
	}
	return status
}

// ManageBan applies an operator-driven ban or unban. A nil duration bans
// permanently. The operator and reason are recorded on the flag row.
func (e *Engine) ManageBan(ctx context.Context, subject models.Subject, action Action, duration *time.Duration, reason, operator string) error {
	switch action {
	case ActionBan:
		var until *time.Time
		if duration != nil {
			t := e.now().UTC().Add(*duration)
			until = &t
		}
		full := fmt.Sprintf("manual ban by %s: %s", operator, reason)
		if err := e.store.SetBan(ctx, subject, until, full); err != nil {
			return fmt.Errorf("manage ban: %w", err)
		}
		return nil
	case ActionUnban:
		if err := e.store.LiftBan(ctx, subject); err != nil {
			return fmt.Errorf("manage unban: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("manage ban: unknown action %q", action)
	}
}

// FlagFor returns the violation flag for a subject, nil when none exists.
func (e *Engine) FlagFor(ctx context.Context, subject models.Subject) (*models.ViolationFlag, error) {
	return e.store.FlagFor(ctx, subject)
}
