package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/acme/voice-outreach/internal/config"
	"github.com/acme/voice-outreach/internal/telephony"
)

// Provider drives a REST voice vendor. Lifecycle events for placed calls are
// delivered to the configured callback URL.
type Provider struct {
	baseURL      string
	apiKey       string
	callerID     string
	callbackBase string
	client       *http.Client
}

// NewProvider constructs the vendor adapter.
func NewProvider(cfg config.TelephonyConfig) *Provider {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Provider{
		baseURL:      cfg.BaseURL,
		apiKey:       cfg.APIKey,
		callerID:     cfg.CallerID,
		callbackBase: cfg.CallbackBase,
		client:       &http.Client{Timeout: timeout},
	}
}

// PlaceCall originates a call and returns the vendor's call ref.
func (p *Provider) PlaceCall(ctx context.Context, params telephony.PlaceCallParams) (string, error) {
	from := params.From
	if from == "" {
		from = p.callerID
	}

	payload := map[string]any{
		"to":                params.To,
		"from":              from,
		"machine_detection": params.MachineDetection,
		"callback_url":      p.callbackBase + "/webhooks/voice",
		"metadata":          params.Metadata,
	}

	var result struct {
		CallRef string `json:"call_ref"`
	}
	if err := p.post(ctx, "/v1/calls", payload, &result); err != nil {
		return "", fmt.Errorf("telephony: place call: %w", err)
	}
	if result.CallRef == "" {
		return "", fmt.Errorf("telephony: place call: vendor returned empty call ref")
	}
	return result.CallRef, nil
}

// Say synthesizes speech on the live leg.
func (p *Provider) Say(ctx context.Context, ref, text string) error {
	payload := map[string]any{"text": text}
	if err := p.post(ctx, "/v1/calls/"+ref+"/say", payload, nil); err != nil {
		return fmt.Errorf("telephony: say: %w", err)
	}
	return nil
}

// Gather speaks the prompt and begins DTMF collection.
func (p *Provider) Gather(ctx context.Context, ref, prompt string, numDigits int, timeout time.Duration) error {
	payload := map[string]any{
		"prompt":       prompt,
		"num_digits":   numDigits,
		"timeout_secs": int(timeout.Seconds()),
	}
	if err := p.post(ctx, "/v1/calls/"+ref+"/gather", payload, nil); err != nil {
		return fmt.Errorf("telephony: gather: %w", err)
	}
	return nil
}

// Hangup tears down the leg, optionally delayed.
func (p *Provider) Hangup(ctx context.Context, ref string, after time.Duration) error {
	payload := map[string]any{"delay_secs": int(after.Seconds())}
	if err := p.post(ctx, "/v1/calls/"+ref+"/hangup", payload, nil); err != nil {
		return fmt.Errorf("telephony: hangup: %w", err)
	}
	return nil
}

// Bridge attaches the call leg into a conversation room.
func (p *Provider) Bridge(ctx context.Context, ref, room string) error {
	payload := map[string]any{"room": room}
	if err := p.post(ctx, "/v1/calls/"+ref+"/bridge", payload, nil); err != nil {
		return fmt.Errorf("telephony: bridge: %w", err)
	}
	return nil
}

func (p *Provider) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("vendor returned %d: %s", resp.StatusCode, string(raw))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
