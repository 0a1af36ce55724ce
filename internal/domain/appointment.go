package domain

import (
	"time"

	"github.com/google/uuid"
)

// AppointmentStatus enumerates lifecycle states of an appointment.
type AppointmentStatus string

const (
	AppointmentStatusScheduled   AppointmentStatus = "scheduled"
	AppointmentStatusReminded    AppointmentStatus = "reminded"
	AppointmentStatusConfirmed   AppointmentStatus = "confirmed"
	AppointmentStatusRescheduled AppointmentStatus = "rescheduled"
	AppointmentStatusCanceled    AppointmentStatus = "canceled"
	AppointmentStatusCompleted   AppointmentStatus = "completed"
	AppointmentStatusNoShow      AppointmentStatus = "no_show"
)

// DefaultReminderLeadMinutes applies when an appointment carries no explicit lead.
const DefaultReminderLeadMinutes = 30

// Appointment is a scheduled visit owned by a business and a customer.
type Appointment struct {
	ID                    uuid.UUID
	BusinessID            uuid.UUID
	CustomerID            uuid.UUID
	ScheduledAt           time.Time
	ReminderMinutesBefore *int
	Status                AppointmentStatus
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// ReminderLead returns the configured lead time, defaulting when unset.
func (a *Appointment) ReminderLead() time.Duration {
	minutes := DefaultReminderLeadMinutes
	if a.ReminderMinutesBefore != nil {
		minutes = *a.ReminderMinutesBefore
	}
	return time.Duration(minutes) * time.Minute
}

// ReminderTime is the instant at which the reminder window opens.
func (a *Appointment) ReminderTime() time.Time {
	return a.ScheduledAt.Add(-a.ReminderLead())
}

// Customer is a contact identity under one business.
type Customer struct {
	ID         uuid.UUID
	BusinessID uuid.UUID
	Name       string
	Phone      string
	TimeZone   string
	CreatedAt  time.Time
}

// Business owns customers, appointments and campaigns. Category selects
// the script template family; TimeZone drives call-window gating and
// spoken time formatting.
type Business struct {
	ID        uuid.UUID
	Name      string
	Category  string
	TimeZone  string
	Phone     string
	CreatedAt time.Time
}

// Location resolves the business timezone, falling back to UTC.
func (b *Business) Location() *time.Location {
	loc, err := time.LoadLocation(b.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}
