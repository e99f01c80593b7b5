package conversation

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/pario-ai/warden/pkg/models"
	"github.com/pario-ai/warden/pkg/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedConversation(t *testing.T, s *store.Store, id, userID, ip string, messages int, updatedAt time.Time) {
	t.Helper()
	ctx := context.Background()
	for range messages {
		rec := models.LogRecord{
			RequestID: id + "-req", UserID: userID, IP: ip,
			Timestamp: updatedAt, ConversationID: id, Content: "msg",
		}
		err := s.WithTx(ctx, func(tx *sql.Tx) error {
			return s.AppendConversationMessageTx(ctx, tx, rec)
		})
		if err != nil {
			t.Fatal(err)
		}
	}
}

func TestResolveExplicitKnownID(t *testing.T) {
	s := newTestStore(t)
	seedConversation(t, s, "conv-1", "user-1", "10.0.0.1", 2, time.Now().UTC())

	c := New(s, 30*time.Minute)
	res := c.Resolve(context.Background(), Request{ExplicitID: "conv-1", UserID: "user-1", IP: "10.0.0.1"})
	if res.ConversationID != "conv-1" || res.IsNew {
		t.Fatalf("expected reuse of conv-1, got %+v", res)
	}
}

func TestResolveExplicitUnknownIDAdopted(t *testing.T) {
	s := newTestStore(t)
	c := New(s, 30*time.Minute)

	res := c.Resolve(context.Background(), Request{ExplicitID: "caller-chosen", UserID: "user-1", IP: "10.0.0.1"})
	if res.ConversationID != "caller-chosen" {
		t.Errorf("expected caller id to be adopted, got %s", res.ConversationID)
	}
	if !res.IsNew {
		t.Error("expected adopted id to be marked new")
	}
}

func TestResolveContinuesRecentSession(t *testing.T) {
	s := newTestStore(t)
	seedConversation(t, s, "conv-1", "user-1", "10.0.0.1", 2, time.Now().UTC().Add(-5*time.Minute))

	c := New(s, 30*time.Minute)
	res := c.Resolve(context.Background(), Request{UserID: "user-1", IP: "10.0.0.1", MessageCount: 3})
	if res.ConversationID != "conv-1" || res.IsNew {
		t.Fatalf("expected continuation of conv-1, got %+v", res)
	}

	// Same subject by ip only.
	res = c.Resolve(context.Background(), Request{UserID: "someone-else", IP: "10.0.0.1", MessageCount: 3})
	if res.ConversationID != "conv-1" {
		t.Errorf("expected ip match to continue conv-1, got %+v", res)
	}
}

func TestResolveNewAfterTimeout(t *testing.T) {
	s := newTestStore(t)
	seedConversation(t, s, "conv-1", "user-1", "10.0.0.1", 2, time.Now().UTC().Add(-45*time.Minute))

	c := New(s, 30*time.Minute)
	res := c.Resolve(context.Background(), Request{UserID: "user-1", IP: "10.0.0.1", MessageCount: 3})
	if res.ConversationID == "conv-1" || !res.IsNew {
		t.Fatalf("expected new session after timeout, got %+v", res)
	}
}

func TestResolveResetFlag(t *testing.T) {
	s := newTestStore(t)
	seedConversation(t, s, "conv-1", "user-1", "10.0.0.1", 2, time.Now().UTC())

	c := New(s, 30*time.Minute)
	res := c.Resolve(context.Background(), Request{UserID: "user-1", IP: "10.0.0.1", MessageCount: 3, Reset: true})
	if res.ConversationID == "conv-1" || !res.IsNew {
		t.Fatalf("expected reset to mint a new session, got %+v", res)
	}
}

func TestResolveClearedHistory(t *testing.T) {
	s := newTestStore(t)
	seedConversation(t, s, "conv-1", "user-1", "10.0.0.1", 5, time.Now().UTC())

	c := New(s, 30*time.Minute)
	// Caller reports fewer messages than stored: history was cleared client-side.
	res := c.Resolve(context.Background(), Request{UserID: "user-1", IP: "10.0.0.1", MessageCount: 2})
	if res.ConversationID == "conv-1" || !res.IsNew {
		t.Fatalf("expected cleared history to mint a new session, got %+v", res)
	}
}

func TestResolveNoPriorSession(t *testing.T) {
	s := newTestStore(t)
	c := New(s, 30*time.Minute)

	res := c.Resolve(context.Background(), Request{UserID: "user-1", IP: "10.0.0.1", MessageCount: 1})
	if res.ConversationID == "" || !res.IsNew {
		t.Fatalf("expected minted session, got %+v", res)
	}

	res2 := c.Resolve(context.Background(), Request{UserID: "user-2", IP: "10.0.0.2", MessageCount: 1})
	if res2.ConversationID == res.ConversationID {
		t.Error("expected distinct minted ids")
	}
}

// failingStore simulates a store outage.
type failingStore struct{}

func (failingStore) GetConversation(ctx context.Context, id string) (*models.ConversationRecord, error) {
	return nil, errors.New("store down")
}

func (failingStore) LatestConversationForSubject(ctx context.Context, userID, ip string, since time.Time) (*models.ConversationRecord, error) {
	return nil, errors.New("store down")
}

func TestResolveDegradesOnStoreFailure(t *testing.T) {
	c := New(failingStore{}, 30*time.Minute)

	res := c.Resolve(context.Background(), Request{UserID: "user-1", IP: "10.0.0.1"})
	if res.ConversationID == "" || !res.IsNew {
		t.Fatalf("expected minted session on store failure, got %+v", res)
	}

	// Explicit id survives the outage as an adopted identifier.
	res = c.Resolve(context.Background(), Request{ExplicitID: "conv-x", UserID: "user-1", IP: "10.0.0.1"})
	if res.ConversationID != "conv-x" || !res.IsNew {
		t.Fatalf("expected adopted explicit id on store failure, got %+v", res)
	}
}
