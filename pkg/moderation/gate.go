// Package moderation gates request content through an external classifier,
// memoizing verdicts by content hash so repeated identical content never
// pays for a second classifier call.
package moderation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log"
	"time"

	"github.com/pario-ai/warden/pkg/cache"
	"github.com/pario-ai/warden/pkg/models"
)

// AuditStore persists moderation audit rows.
type AuditStore interface {
	InsertModerationLog(ctx context.Context, entry models.ModerationLogEntry) error
}

// Config parameterizes a Gate.
type Config struct {
	CacheSize     int           // default 4096
	CacheTTL      time.Duration // default 30m
	MaxContentLen int           // content is truncated to this many runes before hashing; default 4096
}

// Gate decides pass/block per request. Classifier failures fail open: an
// unreachable or unintelligible classifier admits the content. That is a
// deliberate availability-over-safety tradeoff.
type Gate struct {
	classifier    Classifier
	store         AuditStore
	results       *cache.Cache[models.ModerationResult]
	maxContentLen int
}

// New builds a Gate with its own dedicated result cache.
func New(classifier Classifier, store AuditStore, cfg Config) *Gate {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 4096
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 30 * time.Minute
	}
	if cfg.MaxContentLen <= 0 {
		cfg.MaxContentLen = 4096
	}
	return &Gate{
		classifier: classifier,
		store:      store,
		results: cache.New[models.ModerationResult](cache.Config{
			Name:          "moderation",
			MaxSize:       cfg.CacheSize,
			TTL:           cfg.CacheTTL,
			SweepInterval: time.Minute,
		}),
		maxContentLen: cfg.MaxContentLen,
	}
}

// Classify returns the moderation result for content. Verdicts, safe and
// unsafe alike, are cached by content hash; fail-open results are not, so a
// later identical request retries the classifier.
func (g *Gate) Classify(ctx context.Context, content string) models.ModerationResult {
	normalized := truncate(content, g.maxContentLen)
	hash := hashContent(normalized)

	if result, ok := g.results.Get(hash); ok {
		return result
	}

	verdict, err := g.classifier.Classify(ctx, normalized)
	if err != nil {
		reason := models.ReasonAPIError
		if errors.Is(err, ErrUnknownFormat) {
			reason = models.ReasonUnknownFormat
		}
		log.Printf("moderation: classifier failure, admitting content: %v", err)
		return models.ModerationResult{Safe: true, Reason: reason}
	}

	result := resultFor(verdict)
	g.results.Set(hash, result)

	if err := g.store.InsertModerationLog(ctx, models.ModerationLogEntry{
		ContentHash: hash,
		RiskLevel:   verdict.RiskLevel,
		RawResponse: verdict.Raw,
		CreatedAt:   time.Now().UTC(),
	}); err != nil {
		log.Printf("moderation: audit insert failed: %v", err)
	}

	return result
}

// CacheStats exposes the result cache counters.
func (g *Gate) CacheStats() cache.Stats {
	return g.results.Stats()
}

// Destroy stops the result cache's sweep goroutine.
func (g *Gate) Destroy() {
	g.results.Destroy()
}

func resultFor(v Verdict) models.ModerationResult {
	switch v.RiskLevel {
	case models.RiskPass:
		return models.ModerationResult{Safe: true, Reason: models.ReasonPass}
	case models.RiskReview:
		return models.ModerationResult{Safe: false, Reason: models.ReasonReview, RiskTypes: v.RiskTypes}
	default:
		return models.ModerationResult{Safe: false, Reason: models.ReasonReject, RiskTypes: v.RiskTypes}
	}
}

func hashContent(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func truncate(text string, maxRunes int) string {
	runes := []rune(text)
	if len(runes) <= maxRunes {
		return text
	}
	return string(runes[:maxRunes])
}
