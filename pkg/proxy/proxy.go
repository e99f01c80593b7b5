// Package proxy is the admission-control surface: it checks ban status,
// gates content through moderation, correlates conversations, forwards
// admitted requests upstream, and hands each request to the durable log
// writer. Governance I/O stays off the response path.
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pario-ai/warden/pkg/ban"
	"github.com/pario-ai/warden/pkg/config"
	"github.com/pario-ai/warden/pkg/conversation"
	"github.com/pario-ai/warden/pkg/logwriter"
	"github.com/pario-ai/warden/pkg/moderation"
	"github.com/pario-ai/warden/pkg/models"
	"github.com/pario-ai/warden/pkg/notify"
)

// Server is the Warden admission proxy.
type Server struct {
	cfg        *config.Config
	gate       *moderation.Gate
	engine     *ban.Engine
	correlator *conversation.Correlator
	writer     *logwriter.Writer
	dispatcher *notify.Dispatcher
	mux        *http.ServeMux
}

// New creates a Server wired with the governance pipeline.
func New(cfg *config.Config, gate *moderation.Gate, engine *ban.Engine, correlator *conversation.Correlator, writer *logwriter.Writer, dispatcher *notify.Dispatcher) *Server {
	s := &Server{
		cfg:        cfg,
		gate:       gate,
		engine:     engine,
		correlator: correlator,
		writer:     writer,
		dispatcher: dispatcher,
		mux:        http.NewServeMux(),
	}
	s.mux.HandleFunc("/v1/chat/completions", s.handleChatCompletions)
	s.mux.HandleFunc("/healthz", s.handleHealthz)
	s.mux.HandleFunc("/", s.handlePassthrough)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe starts the proxy with graceful shutdown support. On
// shutdown the log writer is closed, which drains its queue with one forced
// flush.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.Listen,
		Handler: s,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("warden proxy listening on %s", s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(shutCtx)
		if werr := s.writer.Close(shutCtx); werr != nil {
			log.Printf("final flush failed: %v", werr)
		}
		return err
	case err := <-errCh:
		return err
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	clientKey := extractAPIKey(r)
	if clientKey == "" {
		writeJSONError(w, http.StatusUnauthorized, "missing API key")
		return
	}
	userID := r.Header.Get("X-Warden-User")
	ip := clientIP(r)

	// Admission: banned subjects are rejected before any other work.
	if status := s.engine.CheckBanStatus(r.Context(), userID, ip); status.Banned {
		msg := "subject is banned"
		if status.BanUntil != nil {
			msg = fmt.Sprintf("subject is banned until %s", status.BanUntil.Format(time.RFC3339))
		}
		writeJSONError(w, http.StatusForbidden, msg)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	r.Body.Close()

	var req chatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	content := latestUserMessage(req.Messages)
	result := s.gate.Classify(r.Context(), content)

	requestID := r.Header.Get("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	prefix, suffix := tokenAffixes(clientKey)
	rec := models.LogRecord{
		RequestID:    requestID,
		UserID:       userID,
		IP:           ip,
		Timestamp:    time.Now().UTC(),
		Model:        req.Model,
		TokenPrefix:  prefix,
		TokenSuffix:  suffix,
		Route:        r.URL.Path,
		Content:      content,
		IsRestricted: !result.Safe,
	}

	if !result.Safe {
		s.recordViolation(userID, ip, result)
		s.writer.Enqueue(rec)
		writeJSONError(w, http.StatusBadRequest, "content rejected by moderation")
		return
	}

	res := s.correlator.Resolve(r.Context(), conversation.Request{
		ExplicitID:   r.Header.Get("X-Warden-Conversation"),
		UserID:       userID,
		IP:           ip,
		MessageCount: len(req.Messages),
		Reset:        isTruthy(r.Header.Get("X-Warden-Reset")),
	})
	rec.ConversationID = res.ConversationID
	rec.IsNewConversation = res.IsNew
	w.Header().Set("X-Warden-Conversation", res.ConversationID)

	upstream, err := s.forwardUpstream(r.Context(), r.URL.Path, body)
	if err != nil {
		log.Printf("upstream %s failed: %v", s.cfg.Provider.Name, err)
		writeJSONError(w, http.StatusBadGateway, "upstream provider failed")
		return
	}

	s.writer.Enqueue(rec)

	for k, vals := range upstream.header {
		for _, v := range vals {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(upstream.statusCode)
	w.Write(upstream.body)
}

// recordViolation feeds the escalation engine and announces any ban the
// violation triggered. Both are best effort; the rejection response does not
// wait on notification delivery.
func (s *Server) recordViolation(userID, ip string, result models.ModerationResult) {
	risk := models.RiskReject
	if result.Reason == models.ReasonReview {
		risk = models.RiskReview
	}

	ctx := context.Background()
	if err := s.engine.RecordViolation(ctx, userID, ip, risk); err != nil {
		return
	}

	if s.dispatcher == nil {
		return
	}
	if status := s.engine.CheckBanStatus(ctx, userID, ip); status.Banned {
		go func() {
			for _, res := range s.dispatcher.Dispatch(ctx, notify.Event{
				Kind:    "auto_ban",
				Subject: subjectLabel(userID, ip),
				Message: status.Reason,
				At:      time.Now().UTC(),
			}) {
				if res.Err != nil {
					log.Printf("notify %s failed: %v", res.Sender, res.Err)
				}
			}
		}()
	}
}

type upstreamResult struct {
	statusCode int
	body       []byte
	header     http.Header
}

// forwardUpstream sends the admitted request to the configured provider with
// the provider credential.
func (s *Server) forwardUpstream(ctx context.Context, path string, body []byte) (*upstreamResult, error) {
	target, err := url.Parse(s.cfg.Provider.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid provider URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String()+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.cfg.Provider.APIKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	return &upstreamResult{
		statusCode: resp.StatusCode,
		body:       respBody,
		header:     resp.Header,
	}, nil
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, `{"status":"ok"}`)
}

func (s *Server) handlePassthrough(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Provider.URL == "" {
		writeJSONError(w, http.StatusServiceUnavailable, "no provider configured")
		return
	}

	target, err := url.Parse(s.cfg.Provider.URL)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "invalid provider URL")
		return
	}

	proxy := &httputil.ReverseProxy{
		Director: func(req *http.Request) {
			req.URL.Scheme = target.Scheme
			req.URL.Host = target.Host
			req.Host = target.Host
			req.Header.Set("Authorization", "Bearer "+s.cfg.Provider.APIKey)
		},
	}
	proxy.ServeHTTP(w, r)
}

func latestUserMessage(messages []chatMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content
		}
	}
	return ""
}

// tokenAffixes returns the loggable edges of an API key; the middle is never
// persisted.
func tokenAffixes(key string) (prefix, suffix string) {
	if len(key) <= 12 {
		return key, ""
	}
	return key[:8], key[len(key)-4:]
}

func subjectLabel(userID, ip string) string {
	if userID != "" {
		return fmt.Sprintf("user=%s ip=%s", userID, ip)
	}
	return "ip=" + ip
}

func isTruthy(v string) bool {
	return v == "1" || strings.EqualFold(v, "true")
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func extractAPIKey(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	if key := r.Header.Get("x-api-key"); key != "" {
		return key
	}
	return ""
}

func writeJSONError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"error":{"message":%q,"type":"warden_error","code":%d}}`, message, code)
}
