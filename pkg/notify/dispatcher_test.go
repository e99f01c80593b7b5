package notify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

type fakeSender struct {
	name string
	err  error
	sent atomic.Int64
}

func (f *fakeSender) Name() string { return f.name }

func (f *fakeSender) Send(ctx context.Context, ev Event) error {
	f.sent.Add(1)
	return f.err
}

func TestDispatchSettlesAll(t *testing.T) {
	ok := &fakeSender{name: "ok"}
	bad := &fakeSender{name: "bad", err: errors.New("channel down")}
	ok2 := &fakeSender{name: "ok2"}

	d := New(ok, bad, ok2)
	results := d.Dispatch(context.Background(), Event{Kind: "auto_ban", Subject: "user-1"})

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	// Every channel was attempted despite the middle one failing.
	for _, s := range []*fakeSender{ok, bad, ok2} {
		if s.sent.Load() != 1 {
			t.Errorf("expected %s to be attempted once, got %d", s.name, s.sent.Load())
		}
	}
	if results[0].Err != nil || results[2].Err != nil {
		t.Error("expected healthy channels to succeed")
	}
	if results[1].Err == nil {
		t.Error("expected failing channel to report its error")
	}
}

func TestWebhookSender(t *testing.T) {
	var received atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.Add(1)
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected json content type, got %q", ct)
		}
	}))
	defer srv.Close()

	s := NewWebhookSender(srv.URL, time.Second)
	err := s.Send(context.Background(), Event{Kind: "auto_ban", Subject: "10.0.0.1", At: time.Now()})
	if err != nil {
		t.Fatal(err)
	}
	if received.Load() != 1 {
		t.Errorf("expected 1 delivery, got %d", received.Load())
	}
}

func TestWebhookSenderErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	s := NewWebhookSender(srv.URL, time.Second)
	if err := s.Send(context.Background(), Event{Kind: "auto_ban"}); err == nil {
		t.Fatal("expected error for non-2xx status")
	}
}
