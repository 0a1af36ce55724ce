package scheduler

import (
	"context"
	"sort"
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

type fakeAppointments struct {
	mu    sync.Mutex
	items map[uuid.UUID]*domain.Appointment
}

func newFakeAppointments(appointments ...*domain.Appointment) *fakeAppointments {
	f := &fakeAppointments{items: make(map[uuid.UUID]*domain.Appointment)}
	for _, a := range appointments {
		f.items[a.ID] = a
	}
	return f
}

func (f *fakeAppointments) Create(_ context.Context, appointment *domain.Appointment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[appointment.ID] = appointment
	return nil
}

func (f *fakeAppointments) Get(_ context.Context, id uuid.UUID) (*domain.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return a, nil
}

func (f *fakeAppointments) ListReminderCandidates(_ context.Context, from, until time.Time, limit int) ([]*domain.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Appointment
	for _, a := range f.items {
		if a.Status != domain.AppointmentStatusScheduled {
			continue
		}
		if a.ScheduledAt.Before(from) || a.ReminderTime().After(until) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeAppointments) ClaimForReminder(_ context.Context, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.items[id]
	if !ok || a.Status != domain.AppointmentStatusScheduled {
		return false, nil
	}
	a.Status = domain.AppointmentStatusReminded
	return true, nil
}

func (f *fakeAppointments) UpdateStatus(_ context.Context, id uuid.UUID, status domain.AppointmentStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.items[id]
	if !ok {
		return repository.ErrNotFound
	}
	a.Status = status
	return nil
}

func (f *fakeAppointments) LatestByCustomer(_ context.Context, customerID uuid.UUID) (*domain.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *domain.Appointment
	for _, a := range f.items {
		if a.CustomerID != customerID {
			continue
		}
		if latest == nil || a.ScheduledAt.After(latest.ScheduledAt) {
			latest = a
		}
	}
	if latest == nil {
		return nil, repository.ErrNotFound
	}
	return latest, nil
}

func (f *fakeAppointments) HasUpcoming(_ context.Context, customerID uuid.UUID, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.items {
		if a.CustomerID != customerID {
			continue
		}
		if !a.ScheduledAt.After(now) {
			continue
		}
		if a.Status == domain.AppointmentStatusScheduled || a.Status == domain.AppointmentStatusConfirmed {
			return true, nil
		}
	}
	return false, nil
}

type fakeCustomers struct {
	items map[uuid.UUID]*domain.Customer
}

func newFakeCustomers(customers ...*domain.Customer) *fakeCustomers {
	f := &fakeCustomers{items: make(map[uuid.UUID]*domain.Customer)}
	for _, c := range customers {
		f.items[c.ID] = c
	}
	return f
}

func (f *fakeCustomers) Get(_ context.Context, id uuid.UUID) (*domain.Customer, error) {
	c, ok := f.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return c, nil
}

func (f *fakeCustomers) ListByBusiness(_ context.Context, businessID uuid.UUID) ([]*domain.Customer, error) {
	var out []*domain.Customer
	for _, c := range f.items {
		if c.BusinessID == businessID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

type fakeBusinesses struct {
	items map[uuid.UUID]*domain.Business
}

func newFakeBusinesses(businesses ...*domain.Business) *fakeBusinesses {
	f := &fakeBusinesses{items: make(map[uuid.UUID]*domain.Business)}
	for _, b := range businesses {
		f.items[b.ID] = b
	}
	return f
}

func (f *fakeBusinesses) Get(_ context.Context, id uuid.UUID) (*domain.Business, error) {
	b, ok := f.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return b, nil
}

type fakeCampaigns struct {
	mu    sync.Mutex
	items map[uuid.UUID]*domain.Campaign
}

func newFakeCampaigns(campaigns ...*domain.Campaign) *fakeCampaigns {
	f := &fakeCampaigns{items: make(map[uuid.UUID]*domain.Campaign)}
	for _, c := range campaigns {
		f.items[c.ID] = c
	}
	return f
}

func (f *fakeCampaigns) Create(_ context.Context, campaign *domain.Campaign) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.items {
		if existing.BusinessID == campaign.BusinessID && existing.Type == campaign.Type {
			return repository.ErrConflict
		}
	}
	f.items[campaign.ID] = campaign
	return nil
}

func (f *fakeCampaigns) Get(_ context.Context, id uuid.UUID) (*domain.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return c, nil
}

func (f *fakeCampaigns) ListEnabled(_ context.Context, limit int) ([]*domain.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Campaign
	for _, c := range f.items {
		if c.Enabled {
			out = append(out, c)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeCampaigns) UpdateRunWindow(_ context.Context, id uuid.UUID, lastRun, nextRun time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.items[id]
	if !ok {
		return repository.ErrNotFound
	}
	c.LastRunAt = &lastRun
	c.NextRunAt = &nextRun
	return nil
}

type fakeCampaignCalls struct {
	mu           sync.Mutex
	items        map[uuid.UUID]*domain.CampaignCall
	lastActivity *time.Time
}

func newFakeCampaignCalls(calls ...*domain.CampaignCall) *fakeCampaignCalls {
	f := &fakeCampaignCalls{items: make(map[uuid.UUID]*domain.CampaignCall)}
	for _, c := range calls {
		f.items[c.ID] = c
	}
	return f
}

func (f *fakeCampaignCalls) Insert(_ context.Context, calls []*domain.CampaignCall) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range calls {
		f.items[c.ID] = c
	}
	return nil
}

func (f *fakeCampaignCalls) Get(_ context.Context, id uuid.UUID) (*domain.CampaignCall, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return c, nil
}

func (f *fakeCampaignCalls) ListQueuedDue(_ context.Context, campaignID uuid.UUID, now time.Time, limit int) ([]*domain.CampaignCall, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.CampaignCall
	for _, c := range f.items {
		if c.CampaignID != campaignID || c.Status != domain.CampaignCallStatusQueued {
			continue
		}
		if c.ScheduledFor.After(now) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledFor.Before(out[j].ScheduledFor) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeCampaignCalls) CountInProgress(_ context.Context, campaignID uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, c := range f.items {
		if c.CampaignID == campaignID && c.Status == domain.CampaignCallStatusInProgress {
			count++
		}
	}
	return count, nil
}

func (f *fakeCampaignCalls) LastActivityAt(_ context.Context, _ uuid.UUID) (*time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastActivity, nil
}

func (f *fakeCampaignCalls) Claim(_ context.Context, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.items[id]
	if !ok || c.Status != domain.CampaignCallStatusQueued {
		return false, nil
	}
	c.Status = domain.CampaignCallStatusInProgress
	return true, nil
}

func (f *fakeCampaignCalls) SetStatus(_ context.Context, id uuid.UUID, status domain.CampaignCallStatus, result map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.items[id]
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

func (f *fakeCampaignCalls) ContactedCustomerIDs(_ context.Context, campaignID uuid.UUID, since time.Time) (map[uuid.UUID]struct{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[uuid.UUID]struct{})
	for _, c := range f.items {
		if c.CampaignID == campaignID && !c.CreatedAt.Before(since) {
			out[c.CustomerID] = struct{}{}
		}
	}
	return out, nil
}

type fakeCallLogs struct {
	mu        sync.Mutex
	byRef     map[string]*domain.CallLog
	createErr error
}

func newFakeCallLogs() *fakeCallLogs {
	return &fakeCallLogs{byRef: make(map[string]*domain.CallLog)}
}

func (f *fakeCallLogs) Create(_ context.Context, log *domain.CallLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.byRef[log.ProviderRef] = log
	return nil
}

func (f *fakeCallLogs) GetByProviderRef(_ context.Context, ref string) (*domain.CallLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	log, ok := f.byRef[ref]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return log, nil
}

func (f *fakeCallLogs) UpdateOutcome(_ context.Context, ref string, outcome domain.CallOutcome, duration time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	log, ok := f.byRef[ref]
	if !ok {
		return repository.ErrNotFound
	}
	log.Outcome = outcome
	if duration > 0 {
		log.Duration = duration
	}
	return nil
}

func (f *fakeCallLogs) SaveTranscript(_ context.Context, ref, transcript, summary string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	log, ok := f.byRef[ref]
	if !ok {
		return repository.ErrNotFound
	}
	log.Transcript = transcript
	log.Summary = summary
	return nil
}

func (f *fakeCallLogs) ListByBusiness(_ context.Context, businessID uuid.UUID, _ time.Time, limit int) ([]domain.CallLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.CallLog
	for _, log := range f.byRef {
		if log.BusinessID == businessID {
			out = append(out, *log)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
