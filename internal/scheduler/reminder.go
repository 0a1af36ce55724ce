package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/acme/voice-outreach/internal/config"
	"github.com/acme/voice-outreach/internal/domain"
	"github.com/acme/voice-outreach/internal/repository"
	"github.com/acme/voice-outreach/internal/telephony"
	"github.com/acme/voice-outreach/internal/validate"
	"github.com/acme/voice-outreach/pkg/logger"
)

// ReminderLoop periodically scans for due appointment reminders, claims them
// and places the calls. Multiple replicas may run the loop concurrently; the
// database claim is the only cross-replica coordination.
type ReminderLoop struct {
	cfg          config.ReminderConfig
	appointments repository.AppointmentRepository
	customers    repository.CustomerRepository
	businesses   repository.BusinessRepository
	callLogs     repository.CallLogStore
	provider     telephony.Provider
	logger       *logger.Logger

	// running only prevents re-entrant overlap within this process; it is
	// not a correctness mechanism.
	running atomic.Bool
}

// NewReminderLoop constructs the loop.
func NewReminderLoop(
	cfg config.ReminderConfig,
	appointments repository.AppointmentRepository,
	customers repository.CustomerRepository,
	businesses repository.BusinessRepository,
	callLogs repository.CallLogStore,
	provider telephony.Provider,
	lg *logger.Logger,
) *ReminderLoop {
	return &ReminderLoop{
		cfg:          cfg,
		appointments: appointments,
		customers:    customers,
		businesses:   businesses,
		callLogs:     callLogs,
		provider:     provider,
		logger:       lg,
	}
}

// Run executes the reminder loop until cancelled.
func (l *ReminderLoop) Run(ctx context.Context) error {
	interval := l.cfg.TickInterval
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := l.Tick(ctx, time.Now().UTC()); err != nil && ctx.Err() == nil {
			l.logger.Error("reminder loop: tick failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick runs one scan-claim-dispatch pass. Exported so a tick can be driven
// directly in tests and one-shot tooling.
func (l *ReminderLoop) Tick(ctx context.Context, now time.Time) error {
	if !l.running.CompareAndSwap(false, true) {
		l.logger.Debug("reminder loop: previous tick still running")
		return nil
	}
	defer l.running.Store(false)

	tracer := otel.Tracer("outreach.reminder")
	sctx, span := tracer.Start(ctx, "reminder.tick")
	defer span.End()

	lookBehind := l.cfg.LookBehind
	if lookBehind <= 0 {
		lookBehind = 6 * time.Hour
	}
	lookAhead := l.cfg.LookAhead
	if lookAhead <= 0 {
		lookAhead = 24 * time.Hour
	}

	candidates, err := l.appointments.ListReminderCandidates(sctx, now.Add(-lookBehind), now.Add(lookAhead), l.cfg.MaxBatchSize)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("reminder loop: list candidates: %w", err)
	}
	span.SetAttributes(attribute.Int("candidates.count", len(candidates)))

	for _, appointment := range candidates {
		if !ShouldTrigger(appointment, now) {
			continue
		}
		l.process(sctx, tracer, appointment, now)
	}

	return nil
}

// process handles a single due appointment. Failures are isolated: they are
// logged and never abort the batch.
func (l *ReminderLoop) process(ctx context.Context, tracer trace.Tracer, appointment *domain.Appointment, now time.Time) {
	actx, span := tracer.Start(ctx, "reminder.dispatch", trace.WithAttributes(
		attribute.String("appointment.id", appointment.ID.String()),
	))
	defer span.End()

	customer, err := l.customers.Get(actx, appointment.CustomerID)
	if err != nil {
		span.RecordError(err)
		l.logger.Error("reminder loop: load customer", zap.Error(err), zap.String("appointment_id", appointment.ID.String()))
		return
	}

	if !validate.Phone(customer.Phone) {
		l.logger.Warn("reminder loop: invalid phone, leaving appointment unclaimed",
			zap.String("appointment_id", appointment.ID.String()),
			zap.String("customer_id", customer.ID.String()))
		return
	}

	claimed, err := l.appointments.ClaimForReminder(actx, appointment.ID)
	if err != nil {
		span.RecordError(err)
		l.logger.Error("reminder loop: claim", zap.Error(err), zap.String("appointment_id", appointment.ID.String()))
		return
	}
	if !claimed {
		// Another replica won the row.
		l.logger.Debug("reminder loop: already claimed", zap.String("appointment_id", appointment.ID.String()))
		return
	}

	if err := l.dispatch(actx, appointment, customer, now); err != nil {
		span.RecordError(err)
		l.logger.Error("reminder loop: dispatch failed, reverting claim",
			zap.Error(err), zap.String("appointment_id", appointment.ID.String()))
		if revertErr := l.appointments.UpdateStatus(actx, appointment.ID, domain.AppointmentStatusScheduled); revertErr != nil {
			l.logger.Error("reminder loop: revert claim", zap.Error(revertErr), zap.String("appointment_id", appointment.ID.String()))
		}
		return
	}

	l.logger.Info("reminder loop: call placed",
		zap.String("appointment_id", appointment.ID.String()),
		zap.String("customer_id", customer.ID.String()))
}

func (l *ReminderLoop) dispatch(ctx context.Context, appointment *domain.Appointment, customer *domain.Customer, now time.Time) error {
	business, err := l.businesses.Get(ctx, appointment.BusinessID)
	if err != nil {
		return fmt.Errorf("load business: %w", err)
	}

	ref, err := l.provider.PlaceCall(ctx, telephony.PlaceCallParams{
		To:               customer.Phone,
		From:             business.Phone,
		MachineDetection: true,
		Metadata: map[string]string{
			"kind":           string(domain.CallKindReminder),
			"appointment_id": appointment.ID.String(),
		},
	})
	if err != nil {
		return fmt.Errorf("place call: %w", err)
	}

	appointmentID := appointment.ID
	log := &domain.CallLog{
		ID:            uuid.New(),
		ProviderRef:   ref,
		Kind:          domain.CallKindReminder,
		BusinessID:    business.ID,
		CustomerID:    customer.ID,
		AppointmentID: &appointmentID,
		PhoneNumber:   customer.Phone,
		Outcome:       domain.CallOutcomeInitiated,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := l.callLogs.Create(ctx, log); err != nil {
		return fmt.Errorf("write call log: %w", err)
	}

	return nil
}
