package handlers

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/acme/voice-outreach/internal/callflow"
	"github.com/acme/voice-outreach/internal/signature"
)

const (
	headerSignature = "X-Webhook-Signature"
	headerTimestamp = "X-Webhook-Timestamp"
)

// voiceEvent is the wire shape of a provider lifecycle callback.
type voiceEvent struct {
	Event         string `json:"event"`
	CallRef       string `json:"call_ref"`
	Digits        string `json:"digits"`
	MachineResult string `json:"machine_result"`
	DurationMs    int64  `json:"duration_ms"`
	Timestamp     int64  `json:"timestamp"`
}

// voiceWebhook receives call lifecycle callbacks from the voice provider.
// Every delivery must carry a fresh timestamp and a valid HMAC over it;
// verified signatures are additionally tracked in Redis so a captured
// request cannot be replayed inside the freshness window.
func (h *HandlerSet) voiceWebhook(ctx *fiber.Ctx) error {
	cfg := h.container.Config.Webhook

	sig := ctx.Get(headerSignature)
	tsRaw := ctx.Get(headerTimestamp)
	if sig == "" || tsRaw == "" {
		return fiber.NewError(fiber.StatusUnauthorized, "missing signature headers")
	}
	ts, err := strconv.ParseInt(tsRaw, 10, 64)
	if err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, "malformed timestamp")
	}

	tolerance := cfg.TimestampTolerance
	if tolerance <= 0 {
		tolerance = 5 * time.Minute
	}
	if drift := time.Since(time.Unix(ts, 0)); drift > tolerance || drift < -tolerance {
		return fiber.NewError(fiber.StatusUnauthorized, "stale timestamp")
	}

	body := ctx.Body()
	if !signature.Verify(cfg.AuthToken, ts, body, sig) {
		h.container.Logger.Warn("webhook signature mismatch",
			zap.String("remote", ctx.IP()))
		return fiber.NewError(fiber.StatusUnauthorized, "invalid signature")
	}

	first, err := h.guard.FirstSeen(ctx.Context(), sig)
	if err != nil {
		// Redis being down should not drop live call events; the HMAC
		// plus freshness check still stands on its own.
		h.container.Logger.Warn("replay guard unavailable", zap.Error(err))
	} else if !first {
		h.container.Logger.Warn("webhook replay dropped", zap.String("remote", ctx.IP()))
		return fiber.NewError(fiber.StatusConflict, "duplicate delivery")
	}

	var payload voiceEvent
	if err := json.Unmarshal(body, &payload); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed payload")
	}
	eventType, err := callflow.ParseEventType(payload.Event)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "unknown event type")
	}
	if payload.CallRef == "" {
		return fiber.NewError(fiber.StatusBadRequest, "missing call ref")
	}

	event := callflow.Event{
		Type:          eventType,
		ProviderRef:   payload.CallRef,
		Digits:        payload.Digits,
		MachineResult: payload.MachineResult,
		Duration:      time.Duration(payload.DurationMs) * time.Millisecond,
		OccurredAt:    time.Unix(ts, 0).UTC(),
	}
	if err := h.driver.HandleEvent(ctx.Context(), event); err != nil {
		return err
	}
	return ctx.SendStatus(fiber.StatusNoContent)
}
