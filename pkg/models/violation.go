package models

import "time"

// SubjectKind distinguishes the two independently counted violation dimensions.
type SubjectKind string

const (
	SubjectUser SubjectKind = "USER"
	SubjectIP   SubjectKind = "IP"
)

// Subject identifies one violation-counting dimension of a caller.
type Subject struct {
	ID   string      `json:"id"`
	Kind SubjectKind `json:"kind"`
}

// ViolationFlag tracks moderation violations for a subject. At most one flag
// exists per (SubjectID, Kind); a ban, automatic or manual, lives on the same row.
type ViolationFlag struct {
	Subject          Subject    `json:"subject"`
	ViolationCount   int        `json:"violation_count"`
	FirstViolationAt time.Time  `json:"first_violation_at"`
	LastViolationAt  time.Time  `json:"last_violation_at"`
	IsBanned         bool       `json:"is_banned"`
	BanUntil         *time.Time `json:"ban_until,omitempty"` // nil while banned means permanent
	BanReason        string     `json:"ban_reason,omitempty"`
}

// BanStatus is the admission layer's view of a caller's standing.
type BanStatus struct {
	Banned    bool       `json:"banned"`
	Permanent bool       `json:"permanent"`
	BanUntil  *time.Time `json:"ban_until,omitempty"`
	Reason    string     `json:"reason,omitempty"`
}

// AutoBanConfig controls the escalation engine.
type AutoBanConfig struct {
	Enabled            bool          `yaml:"enabled"`
	ViolationThreshold int           `yaml:"violation_threshold"`
	BanDuration        time.Duration `yaml:"ban_duration"`
}

// Default auto-ban settings applied when configuration is absent.
const (
	DefaultViolationThreshold = 5
	DefaultBanDuration        = 24 * time.Hour
)
