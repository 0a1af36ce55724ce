package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/acme/voice-outreach/internal/app"
	"github.com/acme/voice-outreach/internal/callflow"
	"github.com/acme/voice-outreach/internal/service/replay"
)

// HandlerSet bundles all HTTP handlers.
type HandlerSet struct {
	container *app.Container
	driver    *callflow.Driver
	guard     *replay.Guard
}

// NewHandlerSet creates a new handler bundle.
func NewHandlerSet(container *app.Container) *HandlerSet {
	return &HandlerSet{
		container: container,
		driver:    container.Driver,
		guard:     container.Replay,
	}
}

// Register wires all routes onto the fiber app.
func (h *HandlerSet) Register(app *fiber.App) {
	app.Get("/healthz", h.health)

	app.Post("/webhooks/voice", h.voiceWebhook)

	internal := app.Group("/internal/v1", h.requireInternalSecret)
	internal.Post("/appointments", h.createAppointment)
	internal.Post("/appointments/:id/status", h.updateAppointmentStatus)
	internal.Post("/appointments/:id/reschedule", h.rescheduleAppointment)
	internal.Post("/calls/:ref/transcript", h.saveTranscript)
	internal.Post("/campaign-calls/:id/result", h.reportCampaignCallResult)

	v1 := app.Group("/api").Group("/v1")
	v1.Get("/businesses/:id/calls", h.listBusinessCalls)
}

// ErrorHandler provides centralized error responses.
func (h *HandlerSet) ErrorHandler(ctx *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := err.Error()

	if fiberErr, ok := err.(*fiber.Error); ok {
		code = fiberErr.Code
		message = fiberErr.Message
	}

	if code == fiber.StatusInternalServerError {
		h.container.Logger.Error("request failed", zap.Error(err))
	}

	return ctx.Status(code).JSON(fiber.Map{
		"error":    message,
		"trace_id": ctx.GetRespHeader("Trace-Id"),
	})
}

func (h *HandlerSet) health(ctx *fiber.Ctx) error {
	healthCtx, cancel := context.WithTimeout(ctx.Context(), 2*time.Second)
	defer cancel()

	errs := make(map[string]string)

	if err := h.container.Postgres.DB().PingContext(healthCtx); err != nil {
		errs["postgres"] = err.Error()
	}

	if err := h.container.Redis.Inner().Ping(healthCtx).Err(); err != nil {
		errs["redis"] = err.Error()
	}

	if err := h.container.Scylla.Session().Query("SELECT now() FROM system.local").WithContext(healthCtx).Exec(); err != nil {
		errs["scylla"] = err.Error()
	}

	status := fiber.StatusOK
	if len(errs) > 0 {
		status = fiber.StatusServiceUnavailable
	}

	return ctx.Status(status).JSON(fiber.Map{"status": "ok", "errors": errs})
}
