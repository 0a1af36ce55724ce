package scheduler

import (
	"time"

	"github.com/acme/voice-outreach/internal/domain"
)

// ShouldTrigger decides whether an appointment's reminder is due at the
// given instant. Pure and timezone-agnostic: all comparisons are between
// absolute instants.
//
// A zero lead means "call at the appointment time" and bypasses the
// creation-time check. For any other lead, an appointment booked after its
// own reminder window opened never fires; booking exactly at the window
// boundary still does.
func ShouldTrigger(appointment *domain.Appointment, now time.Time) bool {
	lead := appointment.ReminderLead()
	if lead == 0 {
		return !now.Before(appointment.ScheduledAt)
	}

	reminderTime := appointment.ScheduledAt.Add(-lead)
	if appointment.CreatedAt.After(reminderTime) {
		return false
	}
	return !now.Before(reminderTime)
}
