package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"

	"github.com/acme/voice-outreach/internal/domain"
	"github.com/acme/voice-outreach/internal/repository"
)

// CallLogStore persists call logs in Scylla. Logs are written twice: once
// keyed by the provider correlation ref (webhook lookups) and once into a
// per-business daily bucket (operational listing).
type CallLogStore struct {
	session *gocql.Session
}

// NewCallLogStore creates a new call log store.
func NewCallLogStore(session *gocql.Session) *CallLogStore {
	return &CallLogStore{session: session}
}

// Create inserts a call log record.
func (s *CallLogStore) Create(ctx context.Context, log *domain.CallLog) error {
	if err := s.session.Query(`INSERT INTO call_logs_by_ref (provider_ref, log_id, kind, business_id, customer_id, appointment_id, campaign_call_id, phone_number, outcome, duration_ms, transcript, summary, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ProviderRef, log.ID.String(), string(log.Kind), log.BusinessID.String(), log.CustomerID.String(),
		uuidPtrString(log.AppointmentID), uuidPtrString(log.CampaignCallID), log.PhoneNumber,
		string(log.Outcome), log.Duration.Milliseconds(), log.Transcript, log.Summary, log.CreatedAt, log.UpdatedAt,
	).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("call log store: insert call_logs_by_ref: %w", err)
	}

	bucket := bucketDate(log.CreatedAt)
	if err := s.session.Query(`INSERT INTO call_logs_by_business (business_id, bucket, log_id, provider_ref, kind, customer_id, phone_number, outcome, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		log.BusinessID.String(), bucket, log.ID.String(), log.ProviderRef, string(log.Kind),
		log.CustomerID.String(), log.PhoneNumber, string(log.Outcome), log.CreatedAt,
	).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("call log store: insert call_logs_by_business: %w", err)
	}

	return nil
}

// GetByProviderRef retrieves a call log by its provider correlation handle.
func (s *CallLogStore) GetByProviderRef(ctx context.Context, ref string) (*domain.CallLog, error) {
	var (
		logIDStr       string
		kind           string
		businessIDStr  string
		customerIDStr  string
		appointmentID  string
		campaignCallID string
		phone          string
		outcome        string
		durationMs     int64
		transcript     string
		summary        string
		created        time.Time
		updated        time.Time
	)

	err := s.session.Query(`SELECT log_id, kind, business_id, customer_id, appointment_id, campaign_call_id, phone_number, outcome, duration_ms, transcript, summary, created_at, updated_at
		FROM call_logs_by_ref WHERE provider_ref = ?`, ref).WithContext(ctx).Scan(
		&logIDStr, &kind, &businessIDStr, &customerIDStr, &appointmentID, &campaignCallID,
		&phone, &outcome, &durationMs, &transcript, &summary, &created, &updated)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("call log store: get by ref: %w", err)
	}

	logID, err := uuid.Parse(logIDStr)
	if err != nil {
		return nil, fmt.Errorf("call log store: parse log_id: %w", err)
	}
	businessID, err := uuid.Parse(businessIDStr)
	if err != nil {
		return nil, fmt.Errorf("call log store: parse business_id: %w", err)
	}
	customerID, err := uuid.Parse(customerIDStr)
	if err != nil {
		return nil, fmt.Errorf("call log store: parse customer_id: %w", err)
	}

	log := &domain.CallLog{
		ID:          logID,
		ProviderRef: ref,
		Kind:        domain.CallKind(kind),
		BusinessID:  businessID,
		CustomerID:  customerID,
		PhoneNumber: phone,
		Outcome:     domain.CallOutcome(outcome),
		Duration:    time.Duration(durationMs) * time.Millisecond,
		Transcript:  transcript,
		Summary:     summary,
		CreatedAt:   created,
		UpdatedAt:   updated,
	}
	if id, err := uuid.Parse(appointmentID); err == nil && id != uuid.Nil {
		log.AppointmentID = &id
	}
	if id, err := uuid.Parse(campaignCallID); err == nil && id != uuid.Nil {
		log.CampaignCallID = &id
	}

	return log, nil
}

// UpdateOutcome records the call outcome and duration.
func (s *CallLogStore) UpdateOutcome(ctx context.Context, ref string, outcome domain.CallOutcome, duration time.Duration) error {
	if err := s.session.Query(`UPDATE call_logs_by_ref SET outcome = ?, duration_ms = ?, updated_at = ? WHERE provider_ref = ?`,
		string(outcome), duration.Milliseconds(), time.Now().UTC(), ref,
	).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("call log store: update outcome: %w", err)
	}
	return nil
}

// SaveTranscript records the conversation transcript and summary.
func (s *CallLogStore) SaveTranscript(ctx context.Context, ref string, transcript, summary string) error {
	if err := s.session.Query(`UPDATE call_logs_by_ref SET transcript = ?, summary = ?, updated_at = ? WHERE provider_ref = ?`,
		transcript, summary, time.Now().UTC(), ref,
	).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("call log store: save transcript: %w", err)
	}
	return nil
}

// ListByBusiness returns call logs for a business on the given day bucket.
func (s *CallLogStore) ListByBusiness(ctx context.Context, businessID uuid.UUID, day time.Time, limit int) ([]domain.CallLog, error) {
	if limit <= 0 {
		limit = 100
	}

	iter := s.session.Query(`SELECT log_id, provider_ref, kind, customer_id, phone_number, outcome, created_at
		FROM call_logs_by_business WHERE business_id = ? AND bucket = ? LIMIT ?`,
		businessID.String(), bucketDate(day), limit).WithContext(ctx).Iter()

	var results []domain.CallLog
	var (
		logIDStr      string
		ref           string
		kind          string
		customerIDStr string
		phone         string
		outcome       string
		created       time.Time
	)
	for iter.Scan(&logIDStr, &ref, &kind, &customerIDStr, &phone, &outcome, &created) {
		logID, err := uuid.Parse(logIDStr)
		if err != nil {
			continue
		}
		customerID, _ := uuid.Parse(customerIDStr)
		results = append(results, domain.CallLog{
			ID:          logID,
			ProviderRef: ref,
			Kind:        domain.CallKind(kind),
			BusinessID:  businessID,
			CustomerID:  customerID,
			PhoneNumber: phone,
			Outcome:     domain.CallOutcome(outcome),
			CreatedAt:   created,
		})
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("call log store: list by business: %w", err)
	}

	return results, nil
}

func uuidPtrString(id *uuid.UUID) string {
	if id == nil {
		return uuid.Nil.String()
	}
	return id.String()
}

func bucketDate(t time.Time) time.Time {
	return time.Date(t.UTC().Year(), t.UTC().Month(), t.UTC().Day(), 0, 0, 0, 0, time.UTC)
}
