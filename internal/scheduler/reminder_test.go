package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/acme/voice-outreach/internal/config"
	"github.com/acme/voice-outreach/internal/domain"
	"github.com/acme/voice-outreach/internal/telephony/mock"
)

func reminderFixture(phone string, scheduledAt, createdAt time.Time) (*domain.Business, *domain.Customer, *domain.Appointment) {
	business := &domain.Business{
		ID:       uuid.New(),
		Name:     "Bright Smiles",
		Category: "dental",
		TimeZone: "UTC",
		Phone:    "+15550100001",
	}
	customer := &domain.Customer{
		ID:         uuid.New(),
		BusinessID: business.ID,
		Name:       "Dana",
		Phone:      phone,
	}
	appointment := &domain.Appointment{
		ID:          uuid.New(),
		BusinessID:  business.ID,
		CustomerID:  customer.ID,
		ScheduledAt: scheduledAt,
		CreatedAt:   createdAt,
		Status:      domain.AppointmentStatusScheduled,
	}
	return business, customer, appointment
}

func TestReminderTickPlacesDueCall(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 30, 0, 0, time.UTC)
	business, customer, appointment := reminderFixture("+15550100002", now.Add(30*time.Minute), now.Add(-24*time.Hour))

	appointments := newFakeAppointments(appointment)
	callLogs := newFakeCallLogs()
	provider := mock.NewProvider()

	loop := NewReminderLoop(config.ReminderConfig{}, appointments,
		newFakeCustomers(customer), newFakeBusinesses(business), callLogs, provider, testLogger())

	if err := loop.Tick(context.Background(), now); err != nil {
		t.Fatalf("tick: %v", err)
	}

	actions := provider.Actions()
	if len(actions) != 1 || actions[0].Kind != "place" {
		t.Fatalf("expected one placed call, got %+v", actions)
	}
	if appointment.Status != domain.AppointmentStatusReminded {
		t.Fatalf("expected appointment claimed as reminded, got %s", appointment.Status)
	}

	log, err := callLogs.GetByProviderRef(context.Background(), actions[0].Ref)
	if err != nil {
		t.Fatalf("expected call log for ref %s: %v", actions[0].Ref, err)
	}
	if log.Kind != domain.CallKindReminder || log.Outcome != domain.CallOutcomeInitiated {
		t.Fatalf("unexpected call log %+v", log)
	}
	if log.AppointmentID == nil || *log.AppointmentID != appointment.ID {
		t.Fatalf("call log not linked to appointment")
	}
}

func TestReminderTickIsIdempotentAcrossTicks(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 30, 0, 0, time.UTC)
	business, customer, appointment := reminderFixture("+15550100002", now.Add(30*time.Minute), now.Add(-24*time.Hour))

	appointments := newFakeAppointments(appointment)
	provider := mock.NewProvider()
	loop := NewReminderLoop(config.ReminderConfig{}, appointments,
		newFakeCustomers(customer), newFakeBusinesses(business), newFakeCallLogs(), provider, testLogger())

	for i := 0; i < 3; i++ {
		if err := loop.Tick(context.Background(), now); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
	}

	if got := len(provider.Actions()); got != 1 {
		t.Fatalf("expected exactly one placed call across ticks, got %d", got)
	}
}

func TestReminderClaimHasOneWinnerAcrossReplicas(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 30, 0, 0, time.UTC)
	business, customer, appointment := reminderFixture("+15550100002", now.Add(30*time.Minute), now.Add(-24*time.Hour))

	appointments := newFakeAppointments(appointment)
	customers := newFakeCustomers(customer)
	businesses := newFakeBusinesses(business)
	callLogs := newFakeCallLogs()
	provider := mock.NewProvider()

	// Each replica runs its own loop against the shared stores; the
	// conditional claim is the only coordination between them.
	const replicas = 8
	var wg sync.WaitGroup
	for i := 0; i < replicas; i++ {
		loop := NewReminderLoop(config.ReminderConfig{}, appointments,
			customers, businesses, callLogs, provider, testLogger())
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := loop.Tick(context.Background(), now); err != nil {
				t.Errorf("tick: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := len(provider.Actions()); got != 1 {
		t.Fatalf("expected exactly one placed call across %d replicas, got %d", replicas, got)
	}
	if appointment.Status != domain.AppointmentStatusReminded {
		t.Fatalf("appointment status = %s, want reminded", appointment.Status)
	}
}

func TestReminderTickSkipsNotYetDue(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	business, customer, appointment := reminderFixture("+15550100002", now.Add(2*time.Hour), now.Add(-24*time.Hour))

	provider := mock.NewProvider()
	loop := NewReminderLoop(config.ReminderConfig{}, newFakeAppointments(appointment),
		newFakeCustomers(customer), newFakeBusinesses(business), newFakeCallLogs(), provider, testLogger())

	if err := loop.Tick(context.Background(), now); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if len(provider.Actions()) != 0 {
		t.Fatalf("expected no calls for a reminder two hours out")
	}
	if appointment.Status != domain.AppointmentStatusScheduled {
		t.Fatalf("appointment should remain unclaimed, got %s", appointment.Status)
	}
}

func TestReminderTickLeavesInvalidPhoneUnclaimed(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 30, 0, 0, time.UTC)
	business, customer, appointment := reminderFixture("not-a-number", now.Add(30*time.Minute), now.Add(-24*time.Hour))

	provider := mock.NewProvider()
	loop := NewReminderLoop(config.ReminderConfig{}, newFakeAppointments(appointment),
		newFakeCustomers(customer), newFakeBusinesses(business), newFakeCallLogs(), provider, testLogger())

	if err := loop.Tick(context.Background(), now); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if len(provider.Actions()) != 0 {
		t.Fatalf("expected no call for an undialable number")
	}
	if appointment.Status != domain.AppointmentStatusScheduled {
		t.Fatalf("invalid phone must not consume the claim, got %s", appointment.Status)
	}
}

func TestReminderTickRevertsClaimOnDispatchFailure(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 30, 0, 0, time.UTC)
	business, customer, appointment := reminderFixture("+15550100002", now.Add(30*time.Minute), now.Add(-24*time.Hour))

	provider := mock.NewProvider()
	provider.PlaceErr = errors.New("vendor down")

	loop := NewReminderLoop(config.ReminderConfig{}, newFakeAppointments(appointment),
		newFakeCustomers(customer), newFakeBusinesses(business), newFakeCallLogs(), provider, testLogger())

	if err := loop.Tick(context.Background(), now); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if appointment.Status != domain.AppointmentStatusScheduled {
		t.Fatalf("failed dispatch must revert the claim, got %s", appointment.Status)
	}

	// The vendor recovers; the next tick picks the appointment up again.
	provider.PlaceErr = nil
	if err := loop.Tick(context.Background(), now); err != nil {
		t.Fatalf("second tick: %v", err)
	}
	if appointment.Status != domain.AppointmentStatusReminded {
		t.Fatalf("expected retry after recovery, got %s", appointment.Status)
	}
}

func TestReminderTickIsolatesPerAppointmentFailures(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 30, 0, 0, time.UTC)
	business, badCustomer, badAppointment := reminderFixture("bogus", now.Add(30*time.Minute), now.Add(-24*time.Hour))

	goodCustomer := &domain.Customer{
		ID:         uuid.New(),
		BusinessID: business.ID,
		Name:       "Eli",
		Phone:      "+15550100003",
	}
	goodAppointment := &domain.Appointment{
		ID:          uuid.New(),
		BusinessID:  business.ID,
		CustomerID:  goodCustomer.ID,
		ScheduledAt: now.Add(30 * time.Minute),
		CreatedAt:   now.Add(-24 * time.Hour),
		Status:      domain.AppointmentStatusScheduled,
	}

	provider := mock.NewProvider()
	loop := NewReminderLoop(config.ReminderConfig{},
		newFakeAppointments(badAppointment, goodAppointment),
		newFakeCustomers(badCustomer, goodCustomer),
		newFakeBusinesses(business), newFakeCallLogs(), provider, testLogger())

	if err := loop.Tick(context.Background(), now); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if goodAppointment.Status != domain.AppointmentStatusReminded {
		t.Fatalf("healthy appointment should still be processed, got %s", goodAppointment.Status)
	}
	if len(provider.Actions()) != 1 {
		t.Fatalf("expected one call, got %d", len(provider.Actions()))
	}
}
