package handlers

import (
	"crypto/subtle"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/acme/voice-outreach/internal/domain"
	"github.com/acme/voice-outreach/internal/repository"
	"github.com/acme/voice-outreach/internal/validate"
)

const headerInternalSecret = "X-Internal-Secret"

// requireInternalSecret guards the callback surface used by the
// conversational agent. The comparison is constant time.
func (h *HandlerSet) requireInternalSecret(ctx *fiber.Ctx) error {
	secret := h.container.Config.Webhook.InternalSecret
	provided := ctx.Get(headerInternalSecret)
	if secret == "" || subtle.ConstantTimeCompare([]byte(secret), []byte(provided)) != 1 {
		return fiber.NewError(fiber.StatusUnauthorized, "invalid internal secret")
	}
	return ctx.Next()
}

type createAppointmentRequest struct {
	BusinessID            uuid.UUID `json:"business_id" validate:"required"`
	CustomerID            uuid.UUID `json:"customer_id" validate:"required"`
	ScheduledAt           time.Time `json:"scheduled_at" validate:"required"`
	ReminderMinutesBefore *int      `json:"reminder_minutes_before" validate:"omitempty,min=0"`
}

// createAppointment books an appointment on behalf of the conversational
// agent when a call converts.
func (h *HandlerSet) createAppointment(ctx *fiber.Ctx) error {
	var req createAppointmentRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed payload")
	}
	if err := validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	appointment := &domain.Appointment{
		ID:                    uuid.New(),
		BusinessID:            req.BusinessID,
		CustomerID:            req.CustomerID,
		ScheduledAt:           req.ScheduledAt.UTC(),
		ReminderMinutesBefore: req.ReminderMinutesBefore,
		Status:                domain.AppointmentStatusScheduled,
	}
	if err := h.container.Appointments.Create(ctx.Context(), appointment); err != nil {
		return translateError(err)
	}
	return ctx.Status(fiber.StatusCreated).JSON(fiber.Map{"id": appointment.ID})
}

type updateAppointmentStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=confirmed rescheduled canceled completed no_show"`
}

func (h *HandlerSet) updateAppointmentStatus(ctx *fiber.Ctx) error {
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed appointment id")
	}
	var req updateAppointmentStatusRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed payload")
	}
	if err := validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	if err := h.container.Appointments.UpdateStatus(ctx.Context(), id, domain.AppointmentStatus(req.Status)); err != nil {
		return translateError(err)
	}
	return ctx.SendStatus(fiber.StatusNoContent)
}

type rescheduleAppointmentRequest struct {
	ScheduledAt time.Time `json:"scheduled_at" validate:"required"`
}

// rescheduleAppointment marks the existing appointment rescheduled and
// books a replacement at the requested time, inheriting the reminder lead.
func (h *HandlerSet) rescheduleAppointment(ctx *fiber.Ctx) error {
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed appointment id")
	}
	var req rescheduleAppointmentRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed payload")
	}
	if err := validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	existing, err := h.container.Appointments.Get(ctx.Context(), id)
	if err != nil {
		return translateError(err)
	}
	if err := h.container.Appointments.UpdateStatus(ctx.Context(), id, domain.AppointmentStatusRescheduled); err != nil {
		return translateError(err)
	}
	replacement := &domain.Appointment{
		ID:                    uuid.New(),
		BusinessID:            existing.BusinessID,
		CustomerID:            existing.CustomerID,
		ScheduledAt:           req.ScheduledAt.UTC(),
		ReminderMinutesBefore: existing.ReminderMinutesBefore,
		Status:                domain.AppointmentStatusScheduled,
	}
	if err := h.container.Appointments.Create(ctx.Context(), replacement); err != nil {
		return translateError(err)
	}
	return ctx.Status(fiber.StatusCreated).JSON(fiber.Map{"id": replacement.ID})
}

type saveTranscriptRequest struct {
	Transcript string `json:"transcript" validate:"required"`
	Summary    string `json:"summary"`
	Outcome    string `json:"outcome" validate:"omitempty,oneof=answered confirmed rescheduled voicemail no_answer declined failed"`
}

// saveTranscript attaches a transcript to a call log, optionally revising
// the recorded outcome with the agent's assessment.
func (h *HandlerSet) saveTranscript(ctx *fiber.Ctx) error {
	ref := ctx.Params("ref")
	var req saveTranscriptRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed payload")
	}
	if err := validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	if err := h.container.CallLogs.SaveTranscript(ctx.Context(), ref, req.Transcript, req.Summary); err != nil {
		return translateError(err)
	}
	if req.Outcome != "" {
		log, err := h.container.CallLogs.GetByProviderRef(ctx.Context(), ref)
		if err != nil {
			return translateError(err)
		}
		if err := h.container.CallLogs.UpdateOutcome(ctx.Context(), ref, domain.CallOutcome(req.Outcome), log.Duration); err != nil {
			return translateError(err)
		}
	}
	return ctx.SendStatus(fiber.StatusNoContent)
}

type campaignCallResultRequest struct {
	Status string         `json:"status" validate:"required,oneof=completed failed skipped"`
	Result map[string]any `json:"result"`
}

func (h *HandlerSet) reportCampaignCallResult(ctx *fiber.Ctx) error {
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed campaign call id")
	}
	var req campaignCallResultRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed payload")
	}
	if err := validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	status := domain.CampaignCallStatus(req.Status)
	if err := h.container.CampaignCalls.SetStatus(ctx.Context(), id, status, req.Result); err != nil {
		return translateError(err)
	}
	return ctx.SendStatus(fiber.StatusNoContent)
}

// listBusinessCalls returns the call history of a business for one day.
func (h *HandlerSet) listBusinessCalls(ctx *fiber.Ctx) error {
	businessID, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed business id")
	}

	day := time.Now().UTC()
	if raw := ctx.Query("day"); raw != "" {
		day, err = time.Parse("2006-01-02", raw)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "day must be YYYY-MM-DD")
		}
	}
	limit := ctx.QueryInt("limit", 50)
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	logs, err := h.container.CallLogs.ListByBusiness(ctx.Context(), businessID, day, limit)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return translateError(err)
	}

	items := make([]fiber.Map, 0, len(logs))
	for _, log := range logs {
		items = append(items, fiber.Map{
			"id":           log.ID,
			"provider_ref": log.ProviderRef,
			"kind":         log.Kind,
			"customer_id":  log.CustomerID,
			"phone_number": log.PhoneNumber,
			"outcome":      log.Outcome,
			"duration_ms":  log.Duration.Milliseconds(),
			"summary":      log.Summary,
			"created_at":   log.CreatedAt,
		})
	}
	return ctx.JSON(fiber.Map{"calls": items})
}
