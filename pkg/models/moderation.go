package models

import "time"

// RiskLevel is the classifier's verdict for a piece of content.
type RiskLevel string

const (
	RiskPass   RiskLevel = "PASS"
	RiskReview RiskLevel = "REVIEW"
	RiskReject RiskLevel = "REJECT"
)

// ReasonCode explains how a moderation result was reached.
type ReasonCode string

const (
	ReasonPass          ReasonCode = "PASS"
	ReasonReview        ReasonCode = "REVIEW"
	ReasonReject        ReasonCode = "REJECT"
	ReasonAPIError      ReasonCode = "API_ERROR"
	ReasonUnknownFormat ReasonCode = "UNKNOWN_FORMAT"
)

// ModerationResult is the gate's decision for one piece of content.
// Results are immutable and cached by content hash.
type ModerationResult struct {
	Safe      bool       `json:"safe"`
	Reason    ReasonCode `json:"reason"`
	RiskTypes []string   `json:"risk_types,omitempty"`
}

// ModerationLogEntry is an audit row recording one classifier round-trip.
type ModerationLogEntry struct {
	ContentHash string    `json:"content_hash"`
	RiskLevel   RiskLevel `json:"risk_level"`
	RawResponse string    `json:"raw_response"`
	CreatedAt   time.Time `json:"created_at"`
}
