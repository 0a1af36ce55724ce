package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/acme/voice-outreach/internal/domain"
	"github.com/acme/voice-outreach/internal/repository"
)

// AppointmentRepository implements repository.AppointmentRepository using PostgreSQL.
type AppointmentRepository struct {
	db *sqlx.DB
}

// NewAppointmentRepository constructs a new repository.
func NewAppointmentRepository(db *sqlx.DB) *AppointmentRepository {
	return &AppointmentRepository{db: db}
}

// Create inserts a new appointment.
func (r *AppointmentRepository) Create(ctx context.Context, appointment *domain.Appointment) error {
	q := `INSERT INTO appointments (
		id, business_id, customer_id, scheduled_at, reminder_minutes_before, status, created_at, updated_at
	) VALUES (
		:id, :business_id, :customer_id, :scheduled_at, :reminder_minutes_before, :status, :created_at, :updated_at
	)`

	params := map[string]any{
		"id":                      appointment.ID,
		"business_id":             appointment.BusinessID,
		"customer_id":             appointment.CustomerID,
		"scheduled_at":            appointment.ScheduledAt,
		"reminder_minutes_before": appointment.ReminderMinutesBefore,
		"status":                  appointment.Status,
		"created_at":              appointment.CreatedAt,
		"updated_at":              appointment.UpdatedAt,
	}

	if _, err := r.db.NamedExecContext(ctx, q, params); err != nil {
		return fmt.Errorf("appointment repo: insert: %w", err)
	}

	return nil
}

// Get fetches an appointment by id.
func (r *AppointmentRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Appointment, error) {
	row := r.db.QueryRowxContext(ctx, selectAppointment+` WHERE id = $1`, id)
	var record appointmentRecord
	if err := row.StructScan(&record); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("appointment repo: get: %w", err)
	}

	appointment := record.toDomain()
	return &appointment, nil
}

// ListReminderCandidates returns scheduled appointments whose reminder window
// opens within [from, until]. The lower bound on scheduled_at keeps the scan
// bounded; the upper bound is applied to the reminder due time so that long
// lead times still surface once their window is near.
func (r *AppointmentRepository) ListReminderCandidates(ctx context.Context, from, until time.Time, limit int) ([]*domain.Appointment, error) {
	if limit <= 0 {
		limit = 200
	}

	rows, err := r.db.QueryxContext(ctx, selectAppointment+`
		WHERE status = $1
		  AND scheduled_at >= $2
		  AND scheduled_at - make_interval(mins => COALESCE(reminder_minutes_before, $3)) <= $4
		ORDER BY scheduled_at ASC
		LIMIT $5`,
		domain.AppointmentStatusScheduled, from, domain.DefaultReminderLeadMinutes, until, limit)
	if err != nil {
		return nil, fmt.Errorf("appointment repo: list candidates: %w", err)
	}
	defer rows.Close()

	var results []*domain.Appointment
	for rows.Next() {
		var record appointmentRecord
		if err := rows.StructScan(&record); err != nil {
			return nil, fmt.Errorf("appointment repo: scan: %w", err)
		}
		appointment := record.toDomain()
		results = append(results, &appointment)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("appointment repo: rows err: %w", err)
	}

	return results, nil
}

// ClaimForReminder performs the atomic scheduled -> reminded transition.
// Zero rows affected means another replica won the claim.
func (r *AppointmentRepository) ClaimForReminder(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE appointments SET status = $1, updated_at = now() WHERE id = $2 AND status = $3`,
		domain.AppointmentStatusReminded, id, domain.AppointmentStatusScheduled)
	if err != nil {
		return false, fmt.Errorf("appointment repo: claim: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("appointment repo: rows affected: %w", err)
	}
	return n == 1, nil
}

// UpdateStatus sets the appointment lifecycle status unconditionally.
func (r *AppointmentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.AppointmentStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE appointments SET status = $1, updated_at = now() WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("appointment repo: update status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("appointment repo: rows affected: %w", err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// LatestByCustomer returns the most recent appointment by scheduled time.
func (r *AppointmentRepository) LatestByCustomer(ctx context.Context, customerID uuid.UUID) (*domain.Appointment, error) {
	row := r.db.QueryRowxContext(ctx, selectAppointment+`
		WHERE customer_id = $1 ORDER BY scheduled_at DESC LIMIT 1`, customerID)
	var record appointmentRecord
	if err := row.StructScan(&record); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("appointment repo: latest by customer: %w", err)
	}

	appointment := record.toDomain()
	return &appointment, nil
}

// HasUpcoming reports whether the customer has a future scheduled or confirmed appointment.
func (r *AppointmentRepository) HasUpcoming(ctx context.Context, customerID uuid.UUID, now time.Time) (bool, error) {
	var exists bool
	err := r.db.QueryRowxContext(ctx, `SELECT EXISTS (
		SELECT 1 FROM appointments
		WHERE customer_id = $1 AND scheduled_at > $2 AND status IN ($3, $4)
	)`, customerID, now, domain.AppointmentStatusScheduled, domain.AppointmentStatusConfirmed).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("appointment repo: has upcoming: %w", err)
	}
	return exists, nil
}

const selectAppointment = `SELECT id, business_id, customer_id, scheduled_at, reminder_minutes_before, status, created_at, updated_at
	FROM appointments`

type appointmentRecord struct {
	ID                    uuid.UUID     `db:"id"`
	BusinessID            uuid.UUID     `db:"business_id"`
	CustomerID            uuid.UUID     `db:"customer_id"`
	ScheduledAt           time.Time     `db:"scheduled_at"`
	ReminderMinutesBefore sql.NullInt64 `db:"reminder_minutes_before"`
	Status                string        `db:"status"`
	CreatedAt             time.Time     `db:"created_at"`
	UpdatedAt             time.Time     `db:"updated_at"`
}

func (r appointmentRecord) toDomain() domain.Appointment {
	appointment := domain.Appointment{
		ID:          r.ID,
		BusinessID:  r.BusinessID,
		CustomerID:  r.CustomerID,
		ScheduledAt: r.ScheduledAt,
		Status:      domain.AppointmentStatus(r.Status),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.ReminderMinutesBefore.Valid {
		lead := int(r.ReminderMinutesBefore.Int64)
		appointment.ReminderMinutesBefore = &lead
	}
	return appointment
}
