package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pario-ai/warden/pkg/models"
)

// ErrUnknownFormat marks a classifier response whose shape or risk level
// could not be interpreted.
var ErrUnknownFormat = errors.New("unrecognized classifier response")

// Verdict is one classifier answer.
type Verdict struct {
	RiskLevel models.RiskLevel
	RiskTypes []string
	Raw       string // raw response body, kept for the audit log
}

// Classifier decides the risk level of a piece of text.
type Classifier interface {
	Classify(ctx context.Context, text string) (Verdict, error)
}

// HTTPClassifier calls an external moderation endpoint with a bearer
// credential and a bounded timeout.
type HTTPClassifier struct {
	url    string
	token  string
	client *http.Client
}

// NewHTTPClassifier builds a classifier client. The timeout bounds the whole
// round-trip; a zero timeout falls back to 10 seconds.
func NewHTTPClassifier(url, token string, timeout time.Duration) *HTTPClassifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClassifier{
		url:    url,
		token:  token,
		client: &http.Client{Timeout: timeout},
	}
}

type classifyRequest struct {
	Content string `json:"content"`
}

type classifyResponse struct {
	RiskLevel string   `json:"riskLevel"`
	RiskTypes []string `json:"riskTypes"`
}

// Classify posts the text to the moderation endpoint.
func (c *HTTPClassifier) Classify(ctx context.Context, text string) (Verdict, error) {
	payload, err := json.Marshal(classifyRequest{Content: text})
	if err != nil {
		return Verdict{}, fmt.Errorf("encode classify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return Verdict{}, fmt.Errorf("create classify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return Verdict{}, fmt.Errorf("classify call: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Verdict{}, fmt.Errorf("read classify response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Verdict{}, fmt.Errorf("classify call: status %d", resp.StatusCode)
	}

	var parsed classifyResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Verdict{Raw: string(body)}, ErrUnknownFormat
	}

	switch models.RiskLevel(parsed.RiskLevel) {
	case models.RiskPass, models.RiskReview, models.RiskReject:
		return Verdict{
			RiskLevel: models.RiskLevel(parsed.RiskLevel),
			RiskTypes: parsed.RiskTypes,
			Raw:       string(body),
		}, nil
	default:
		return Verdict{Raw: string(body)}, ErrUnknownFormat
	}
}
