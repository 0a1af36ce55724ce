package callflow

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/acme/voice-outreach/internal/domain"
	"github.com/acme/voice-outreach/internal/repository"
	"github.com/acme/voice-outreach/pkg/logger"
)

func testLogger() *logger.Logger {
	return &logger.Logger{Logger: zap.NewNop()}
}

type memStore struct {
	mu            sync.Mutex
	businesses    map[uuid.UUID]*domain.Business
	customers     map[uuid.UUID]*domain.Customer
	appointments  map[uuid.UUID]*domain.Appointment
	campaigns     map[uuid.UUID]*domain.Campaign
	campaignCalls map[uuid.UUID]*domain.CampaignCall
	callLogs      map[string]*domain.CallLog
}

func newMemStore() *memStore {
	return &memStore{
		businesses:    make(map[uuid.UUID]*domain.Business),
		customers:     make(map[uuid.UUID]*domain.Customer),
		appointments:  make(map[uuid.UUID]*domain.Appointment),
		campaigns:     make(map[uuid.UUID]*domain.Campaign),
		campaignCalls: make(map[uuid.UUID]*domain.CampaignCall),
		callLogs:      make(map[string]*domain.CallLog),
	}
}

type memBusinesses struct{ s *memStore }

func (m memBusinesses) Get(_ context.Context, id uuid.UUID) (*domain.Business, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	b, ok := m.s.businesses[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return b, nil
}

type memCustomers struct{ s *memStore }

func (m memCustomers) Get(_ context.Context, id uuid.UUID) (*domain.Customer, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	c, ok := m.s.customers[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return c, nil
}

func (m memCustomers) ListByBusiness(_ context.Context, businessID uuid.UUID) ([]*domain.Customer, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []*domain.Customer
	for _, c := range m.s.customers {
		if c.BusinessID == businessID {
			out = append(out, c)
		}
	}
	return out, nil
}

type memAppointments struct{ s *memStore }

func (m memAppointments) Create(_ context.Context, a *domain.Appointment) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.appointments[a.ID] = a
	return nil
}

func (m memAppointments) Get(_ context.Context, id uuid.UUID) (*domain.Appointment, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	a, ok := m.s.appointments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return a, nil
}

func (m memAppointments) ListReminderCandidates(_ context.Context, _, _ time.Time, _ int) ([]*domain.Appointment, error) {
	return nil, nil
}

func (m memAppointments) ClaimForReminder(_ context.Context, _ uuid.UUID) (bool, error) {
	return false, nil
}

func (m memAppointments) UpdateStatus(_ context.Context, id uuid.UUID, status domain.AppointmentStatus) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	a, ok := m.s.appointments[id]
	if !ok {
		return repository.ErrNotFound
	}
	a.Status = status
	return nil
}

func (m memAppointments) LatestByCustomer(_ context.Context, _ uuid.UUID) (*domain.Appointment, error) {
	return nil, repository.ErrNotFound
}

func (m memAppointments) HasUpcoming(_ context.Context, _ uuid.UUID, _ time.Time) (bool, error) {
	return false, nil
}

type memCampaigns struct{ s *memStore }

func (m memCampaigns) Create(_ context.Context, c *domain.Campaign) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.campaigns[c.ID] = c
	return nil
}

func (m memCampaigns) Get(_ context.Context, id uuid.UUID) (*domain.Campaign, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	c, ok := m.s.campaigns[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return c, nil
}

func (m memCampaigns) ListEnabled(_ context.Context, _ int) ([]*domain.Campaign, error) {
	return nil, nil
}

func (m memCampaigns) UpdateRunWindow(_ context.Context, _ uuid.UUID, _, _ time.Time) error {
	return nil
}

type memCampaignCalls struct{ s *memStore }

func (m memCampaignCalls) Insert(_ context.Context, calls []*domain.CampaignCall) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, c := range calls {
		m.s.campaignCalls[c.ID] = c
	}
	return nil
}

func (m memCampaignCalls) Get(_ context.Context, id uuid.UUID) (*domain.CampaignCall, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	c, ok := m.s.campaignCalls[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return c, nil
}

func (m memCampaignCalls) ListQueuedDue(_ context.Context, _ uuid.UUID, _ time.Time, _ int) ([]*domain.CampaignCall, error) {
	return nil, nil
}

func (m memCampaignCalls) CountInProgress(_ context.Context, _ uuid.UUID) (int, error) {
	return 0, nil
}

func (m memCampaignCalls) LastActivityAt(_ context.Context, _ uuid.UUID) (*time.Time, error) {
	return nil, nil
}

func (m memCampaignCalls) Claim(_ context.Context, _ uuid.UUID) (bool, error) {
	return false, nil
}

func (m memCampaignCalls) SetStatus(_ context.Context, id uuid.UUID, status domain.CampaignCallStatus, result map[string]any) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	c, ok := m.s.campaignCalls[id]
	if !ok {
		return repository.ErrNotFound
	}
	c.Status = status
	if result != nil {
		if c.Result == nil {
			c.Result = make(map[string]any)
		}
		for k, v := range result {
			c.Result[k] = v
		}
	}
	return nil
}

func (m memCampaignCalls) ContactedCustomerIDs(_ context.Context, _ uuid.UUID, _ time.Time) (map[uuid.UUID]struct{}, error) {
	return map[uuid.UUID]struct{}{}, nil
}

type memCallLogs struct{ s *memStore }

func (m memCallLogs) Create(_ context.Context, log *domain.CallLog) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.callLogs[log.ProviderRef] = log
	return nil
}

func (m memCallLogs) GetByProviderRef(_ context.Context, ref string) (*domain.CallLog, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	log, ok := m.s.callLogs[ref]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return log, nil
}

func (m memCallLogs) UpdateOutcome(_ context.Context, ref string, outcome domain.CallOutcome, duration time.Duration) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	log, ok := m.s.callLogs[ref]
	if !ok {
		return repository.ErrNotFound
	}
	log.Outcome = outcome
	if duration > 0 {
		log.Duration = duration
	}
	return nil
}

func (m memCallLogs) SaveTranscript(_ context.Context, ref, transcript, summary string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	log, ok := m.s.callLogs[ref]
	if !ok {
		return repository.ErrNotFound
	}
	log.Transcript = transcript
	log.Summary = summary
	return nil
}

func (m memCallLogs) ListByBusiness(_ context.Context, _ uuid.UUID, _ time.Time, _ int) ([]domain.CallLog, error) {
	return nil, nil
}
