package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/acme/voice-outreach/internal/domain"
	apperrors "github.com/acme/voice-outreach/pkg/errors"
)

var (
	// ErrNotFound indicates the entity was not located.
	ErrNotFound = apperrors.ErrNotFound
	// ErrConflict indicates a unique constraint violation.
	ErrConflict = apperrors.ErrConflict
)

// BusinessRepository reads business records.
type BusinessRepository interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Business, error)
}

// CustomerRepository reads customer records.
type CustomerRepository interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Customer, error)
	ListByBusiness(ctx context.Context, businessID uuid.UUID) ([]*domain.Customer, error)
}

// AppointmentRepository manages appointment persistence. ClaimForReminder is
// the sole cross-replica concurrency primitive for the reminder path: a
// conditional update that succeeds for exactly one concurrent caller.
type AppointmentRepository interface {
	Create(ctx context.Context, appointment *domain.Appointment) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Appointment, error)
	// ListReminderCandidates returns scheduled appointments whose reminder
	// window falls inside [from, until].
	ListReminderCandidates(ctx context.Context, from, until time.Time, limit int) ([]*domain.Appointment, error)
	// ClaimForReminder transitions scheduled -> reminded. A false return with
	// nil error means another replica already claimed the row.
	ClaimForReminder(ctx context.Context, id uuid.UUID) (bool, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.AppointmentStatus) error
	// LatestByCustomer returns the customer's most recent appointment by
	// scheduled time, or ErrNotFound when none exists.
	LatestByCustomer(ctx context.Context, customerID uuid.UUID) (*domain.Appointment, error)
	// HasUpcoming reports whether the customer holds a future scheduled or
	// confirmed appointment.
	HasUpcoming(ctx context.Context, customerID uuid.UUID, now time.Time) (bool, error)
}

// CampaignRepository manages campaign definitions. Create returns ErrConflict
// when a campaign already exists for the (business, type) pair.
type CampaignRepository interface {
	Create(ctx context.Context, campaign *domain.Campaign) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Campaign, error)
	ListEnabled(ctx context.Context, limit int) ([]*domain.Campaign, error)
	// UpdateRunWindow advances the self-scheduling timestamps after an
	// evaluation pass, regardless of how many candidates it produced.
	UpdateRunWindow(ctx context.Context, id uuid.UUID, lastRun, nextRun time.Time) error
}

// CampaignCallRepository stores units of outreach work. Claim is the sole
// cross-replica concurrency primitive for the campaign path.
type CampaignCallRepository interface {
	Insert(ctx context.Context, calls []*domain.CampaignCall) error
	Get(ctx context.Context, id uuid.UUID) (*domain.CampaignCall, error)
	// ListQueuedDue returns queued calls with scheduled_for <= now, earliest first.
	ListQueuedDue(ctx context.Context, campaignID uuid.UUID, now time.Time, limit int) ([]*domain.CampaignCall, error)
	CountInProgress(ctx context.Context, campaignID uuid.UUID) (int, error)
	// LastActivityAt returns the most recent dispatch or completion instant for
	// the campaign, or nil when it has never placed a call.
	LastActivityAt(ctx context.Context, campaignID uuid.UUID) (*time.Time, error)
	// Claim transitions queued -> in_progress. False with nil error means
	// another replica already took the row.
	Claim(ctx context.Context, id uuid.UUID) (bool, error)
	SetStatus(ctx context.Context, id uuid.UUID, status domain.CampaignCallStatus, result map[string]any) error
	// ContactedCustomerIDs returns customers with any call under this campaign
	// created at or after the given instant.
	ContactedCustomerIDs(ctx context.Context, campaignID uuid.UUID, since time.Time) (map[uuid.UUID]struct{}, error)
}

// CallLogStore persists placed-call records.
type CallLogStore interface {
	Create(ctx context.Context, log *domain.CallLog) error
	GetByProviderRef(ctx context.Context, ref string) (*domain.CallLog, error)
	UpdateOutcome(ctx context.Context, ref string, outcome domain.CallOutcome, duration time.Duration) error
	SaveTranscript(ctx context.Context, ref string, transcript, summary string) error
	ListByBusiness(ctx context.Context, businessID uuid.UUID, day time.Time, limit int) ([]domain.CallLog, error)
}
