// Package conversation assigns requests to logical conversations, reusing a
// recent session for the same caller and minting a fresh identifier when the
// session has lapsed or been reset.
package conversation

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/pario-ai/warden/pkg/models"
)

// SessionStore reads conversation state.
type SessionStore interface {
	GetConversation(ctx context.Context, id string) (*models.ConversationRecord, error)
	LatestConversationForSubject(ctx context.Context, userID, ip string, since time.Time) (*models.ConversationRecord, error)
}

// Request carries the correlation inputs for one inbound request.
type Request struct {
	// ExplicitID is a caller-supplied conversation id. When set it is
	// trusted: a known id is reused, an unknown one adopted as new.
	ExplicitID string
	UserID     string
	IP         string
	// MessageCount is the caller's current message count; a count below the
	// stored one means the client cleared its history.
	MessageCount int
	// Reset forces a new session.
	Reset bool
}

// Resolution is the correlator's answer.
type Resolution struct {
	ConversationID string
	IsNew          bool
}

// Correlator groups requests into conversations using a session-timeout
// window.
type Correlator struct {
	store   SessionStore
	timeout time.Duration
	now     func() time.Time // test hook
}

// New builds a Correlator. A non-positive timeout falls back to 30 minutes.
func New(store SessionStore, timeout time.Duration) *Correlator {
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &Correlator{store: store, timeout: timeout, now: time.Now}
}

// Resolve assigns a conversation id for the request. Store failures never
// propagate: the correlator degrades to minting a new id so a lookup error
// cannot block or reject the request.
func (c *Correlator) Resolve(ctx context.Context, req Request) Resolution {
	if req.ExplicitID != "" {
		conv, err := c.store.GetConversation(ctx, req.ExplicitID)
		if err != nil {
			log.Printf("conversation: lookup %s failed, treating as new: %v", req.ExplicitID, err)
			return Resolution{ConversationID: req.ExplicitID, IsNew: true}
		}
		return Resolution{ConversationID: req.ExplicitID, IsNew: conv == nil}
	}

	now := c.now().UTC()
	conv, err := c.store.LatestConversationForSubject(ctx, req.UserID, req.IP, now.Add(-c.timeout))
	if err != nil {
		log.Printf("conversation: subject lookup failed, minting new session: %v", err)
		return c.mint()
	}
	if conv == nil {
		return c.mint()
	}

	switch {
	case now.Sub(conv.UpdatedAt) > c.timeout:
		return c.mint()
	case req.Reset:
		return c.mint()
	case req.MessageCount < conv.MessageCount:
		// Client-side history was cleared; continuing would splice
		// unrelated messages into one conversation.
		return c.mint()
	default:
		return Resolution{ConversationID: conv.ConversationID, IsNew: false}
	}
}

func (c *Correlator) mint() Resolution {
	return Resolution{ConversationID: uuid.NewString(), IsNew: true}
}
