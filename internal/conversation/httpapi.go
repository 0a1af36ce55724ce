package conversation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/acme/voice-outreach/internal/config"
	"github.com/acme/voice-outreach/internal/domain"
)

// Client talks to the conversation backend over REST.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewClient constructs the conversation client.
func NewClient(cfg config.ConversationConfig) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// StartSession provisions a room and dispatches an agent.
func (c *Client) StartSession(ctx context.Context, params StartParams) (*Session, error) {
	payload := map[string]any{
		"provider_ref":  params.ProviderRef,
		"purpose":       params.Purpose,
		"business_name": params.BusinessName,
		"customer_name": params.CustomerName,
		"context":       params.Context,
	}

	var result struct {
		SessionID string `json:"session_id"`
		Room      string `json:"room"`
	}
	if err := c.post(ctx, "/v1/sessions", payload, &result); err != nil {
		return nil, fmt.Errorf("conversation: start session: %w", err)
	}
	if result.SessionID == "" {
		return nil, fmt.Errorf("conversation: start session: empty session id")
	}
	return &Session{ID: result.SessionID, Room: result.Room}, nil
}

// EndSession tears the session down and collects its transcript.
func (c *Client) EndSession(ctx context.Context, sessionID string) (*Result, error) {
	var result struct {
		Transcript string `json:"transcript"`
		Summary    string `json:"summary"`
		Outcome    string `json:"outcome"`
	}
	if err := c.post(ctx, "/v1/sessions/"+sessionID+"/end", map[string]any{}, &result); err != nil {
		return nil, fmt.Errorf("conversation: end session: %w", err)
	}
	return &Result{
		Transcript: result.Transcript,
		Summary:    result.Summary,
		Outcome:    domain.CallOutcome(result.Outcome),
	}, nil
}

// Classify maps a transcript onto the closed outcome enumeration.
func (c *Client) Classify(ctx context.Context, transcript string) (domain.CallOutcome, string, error) {
	payload := map[string]any{"transcript": transcript}

	var result struct {
		Outcome string `json:"outcome"`
		Summary string `json:"summary"`
	}
	if err := c.post(ctx, "/v1/classify", payload, &result); err != nil {
		return "", "", fmt.Errorf("conversation: classify: %w", err)
	}

	outcome := domain.CallOutcome(result.Outcome)
	switch outcome {
	case domain.CallOutcomeConfirmed, domain.CallOutcomeRescheduled, domain.CallOutcomeVoicemail,
		domain.CallOutcomeDeclined, domain.CallOutcomeNoAnswer, domain.CallOutcomeAnswered:
	default:
		// Unknown labels collapse to answered rather than poisoning the enum.
		outcome = domain.CallOutcomeAnswered
	}
	return outcome, result.Summary, nil
}

func (c *Client) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("backend returned %d: %s", resp.StatusCode, string(raw))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
