package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/acme/voice-outreach/internal/domain"
	"github.com/acme/voice-outreach/internal/repository"
	"github.com/acme/voice-outreach/internal/validate"
	"github.com/acme/voice-outreach/pkg/logger"
)

// Candidate pairs an eligible customer with the instant their call should be
// attempted.
type Candidate struct {
	Customer     *domain.Customer
	ScheduledFor time.Time
}

// Generator produces outreach candidates for one campaign type.
type Generator interface {
	Type() domain.CampaignType
	Generate(ctx context.Context, business *domain.Business, campaign *domain.Campaign, now time.Time) ([]Candidate, error)
}

// Evaluator runs the periodic candidate-generation phase. It is the only
// producer of new campaign work; the dispatch loop consumes what it queues.
type Evaluator struct {
	campaigns     repository.CampaignRepository
	campaignCalls repository.CampaignCallRepository
	generators    map[domain.CampaignType]Generator
	logger        *logger.Logger
}

// NewEvaluator constructs the evaluator with the given generators.
func NewEvaluator(
	campaigns repository.CampaignRepository,
	campaignCalls repository.CampaignCallRepository,
	lg *logger.Logger,
	generators ...Generator,
) *Evaluator {
	byType := make(map[domain.CampaignType]Generator, len(generators))
	for _, g := range generators {
		byType[g.Type()] = g
	}
	return &Evaluator{
		campaigns:     campaigns,
		campaignCalls: campaignCalls,
		generators:    byType,
		logger:        lg,
	}
}

// Due reports whether the campaign's evaluation cycle has come around. A
// campaign that has never run is immediately due.
func (e *Evaluator) Due(campaign *domain.Campaign, now time.Time) bool {
	return campaign.NextRunAt == nil || !campaign.NextRunAt.After(now)
}

// Run generates candidates, queues one campaign call per candidate and
// advances the self-scheduling run window. The window advance happens even
// when zero candidates were found; it is what makes the phase periodic
// without any external trigger.
func (e *Evaluator) Run(ctx context.Context, business *domain.Business, campaign *domain.Campaign, now time.Time) error {
	gen, ok := e.generators[campaign.Type]
	if !ok {
		e.logger.Warn("evaluator: no generator for campaign type",
			zap.String("campaign_id", campaign.ID.String()),
			zap.String("campaign_type", string(campaign.Type)))
		return e.advance(ctx, campaign, now)
	}

	candidates, err := gen.Generate(ctx, business, campaign, now)
	if err != nil {
		return fmt.Errorf("evaluator: generate %s: %w", campaign.Type, err)
	}

	if len(candidates) > 0 {
		calls := make([]*domain.CampaignCall, 0, len(candidates))
		for _, c := range candidates {
			calls = append(calls, &domain.CampaignCall{
				ID:           uuid.New(),
				CampaignID:   campaign.ID,
				CustomerID:   c.Customer.ID,
				Status:       domain.CampaignCallStatusQueued,
				ScheduledFor: c.ScheduledFor,
				CreatedAt:    now,
				UpdatedAt:    now,
			})
		}
		if err := e.campaignCalls.Insert(ctx, calls); err != nil {
			return fmt.Errorf("evaluator: queue calls: %w", err)
		}
	}

	e.logger.Info("evaluator: cycle complete",
		zap.String("campaign_id", campaign.ID.String()),
		zap.String("campaign_type", string(campaign.Type)),
		zap.Int("candidates", len(candidates)))

	return e.advance(ctx, campaign, now)
}

func (e *Evaluator) advance(ctx context.Context, campaign *domain.Campaign, now time.Time) error {
	nextRun := now.Add(campaign.CycleFrequency())
	if err := e.campaigns.UpdateRunWindow(ctx, campaign.ID, now, nextRun); err != nil {
		return fmt.Errorf("evaluator: advance run window: %w", err)
	}
	return nil
}

// StaggerSchedule spreads count calls across the campaign's call window
// starting at now, never packing two closer than the minimum spacing. Once
// a day's window capacity is exhausted the overflow rolls into subsequent
// allowed days: day index is the total offset divided by window duration.
func StaggerSchedule(campaign *domain.Campaign, loc *time.Location, now time.Time, count int) []time.Time {
	if count <= 0 {
		return nil
	}
	if loc == nil {
		loc = time.UTC
	}

	windowDur := campaign.WindowDuration()
	if windowDur <= 0 {
		windowDur = 8 * time.Hour
	}

	spacing := campaign.MinCallSpacing
	if even := windowDur / time.Duration(count); even > spacing {
		spacing = even
	}
	if spacing <= 0 {
		spacing = time.Minute
	}

	times := make([]time.Time, 0, count)
	for i := 0; i < count; i++ {
		offset := time.Duration(i) * spacing
		dayShift := int(offset / windowDur)
		within := offset - time.Duration(dayShift)*windowDur

		if dayShift == 0 {
			times = append(times, now.Add(within).UTC())
			continue
		}

		day := nthAllowedDayAfter(campaign, loc, now, dayShift)
		start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc).
			Add(time.Duration(campaign.WindowStartMinutes) * time.Minute)
		times = append(times, start.Add(within).UTC())
	}
	return times
}

// nthAllowedDayAfter walks forward from the local day of now, counting only
// weekdays the campaign allows.
func nthAllowedDayAfter(campaign *domain.Campaign, loc *time.Location, now time.Time, n int) time.Time {
	day := now.In(loc)
	remaining := n
	for i := 0; i < 14*n+14 && remaining > 0; i++ {
		day = day.AddDate(0, 0, 1)
		if campaign.AllowsWeekday(day.Weekday()) {
			remaining--
		}
	}
	return day
}

// ReengagementGenerator finds customers who have drifted away: no recent
// appointment, nothing upcoming, not contacted by this campaign in the
// current cycle.
type ReengagementGenerator struct {
	customers     repository.CustomerRepository
	appointments  repository.AppointmentRepository
	campaignCalls repository.CampaignCallRepository
}

// NewReengagementGenerator constructs the generator.
func NewReengagementGenerator(
	customers repository.CustomerRepository,
	appointments repository.AppointmentRepository,
	campaignCalls repository.CampaignCallRepository,
) *ReengagementGenerator {
	return &ReengagementGenerator{customers: customers, appointments: appointments, campaignCalls: campaignCalls}
}

// Type identifies the campaign type this generator serves.
func (g *ReengagementGenerator) Type() domain.CampaignType { return domain.CampaignTypeReengagement }

// Generate enumerates the business's customers and applies the eligibility
// exclusions, then staggers the survivors across the call window.
func (g *ReengagementGenerator) Generate(ctx context.Context, business *domain.Business, campaign *domain.Campaign, now time.Time) ([]Candidate, error) {
	customers, err := g.customers.ListByBusiness(ctx, business.ID)
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}

	contacted, err := g.campaignCalls.ContactedCustomerIDs(ctx, campaign.ID, now.Add(-campaign.CycleFrequency()))
	if err != nil {
		return nil, fmt.Errorf("contacted customers: %w", err)
	}

	cutoff := now.Add(-settingDays(campaign.Settings, "inactivity_cutoff_days", 90))

	var eligible []*domain.Customer
	for _, customer := range customers {
		if !validate.Phone(customer.Phone) {
			continue
		}
		if _, ok := contacted[customer.ID]; ok {
			continue
		}

		latest, err := g.appointments.LatestByCustomer(ctx, customer.ID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			// Never visited; still worth reaching out to.
		case err != nil:
			return nil, fmt.Errorf("latest appointment: %w", err)
		case latest.ScheduledAt.After(cutoff):
			continue
		}

		upcoming, err := g.appointments.HasUpcoming(ctx, customer.ID, now)
		if err != nil {
			return nil, fmt.Errorf("upcoming appointment: %w", err)
		}
		if upcoming {
			continue
		}

		eligible = append(eligible, customer)
	}

	return zipCandidates(eligible, StaggerSchedule(campaign, business.Location(), now, len(eligible))), nil
}

// ReviewCollectionGenerator targets customers whose latest appointment
// completed recently, asking for a review.
type ReviewCollectionGenerator struct {
	customers     repository.CustomerRepository
	appointments  repository.AppointmentRepository
	campaignCalls repository.CampaignCallRepository
}

// NewReviewCollectionGenerator constructs the generator.
func NewReviewCollectionGenerator(
	customers repository.CustomerRepository,
	appointments repository.AppointmentRepository,
	campaignCalls repository.CampaignCallRepository,
) *ReviewCollectionGenerator {
	return &ReviewCollectionGenerator{customers: customers, appointments: appointments, campaignCalls: campaignCalls}
}

// Type identifies the campaign type this generator serves.
func (g *ReviewCollectionGenerator) Type() domain.CampaignType {
	return domain.CampaignTypeReviewCollection
}

// Generate picks customers with a recently completed visit who were not yet
// contacted this cycle.
func (g *ReviewCollectionGenerator) Generate(ctx context.Context, business *domain.Business, campaign *domain.Campaign, now time.Time) ([]Candidate, error) {
	eligible, err := latestAppointmentMatches(ctx, g.customers, g.appointments, g.campaignCalls,
		business, campaign, now, domain.AppointmentStatusCompleted,
		settingDays(campaign.Settings, "lookback_days", 14))
	if err != nil {
		return nil, err
	}
	return zipCandidates(eligible, StaggerSchedule(campaign, business.Location(), now, len(eligible))), nil
}

// NoShowFollowUpGenerator reaches out to customers who missed their latest
// appointment, offering to rebook.
type NoShowFollowUpGenerator struct {
	customers     repository.CustomerRepository
	appointments  repository.AppointmentRepository
	campaignCalls repository.CampaignCallRepository
}

// NewNoShowFollowUpGenerator constructs the generator.
func NewNoShowFollowUpGenerator(
	customers repository.CustomerRepository,
	appointments repository.AppointmentRepository,
	campaignCalls repository.CampaignCallRepository,
) *NoShowFollowUpGenerator {
	return &NoShowFollowUpGenerator{customers: customers, appointments: appointments, campaignCalls: campaignCalls}
}

// Type identifies the campaign type this generator serves.
func (g *NoShowFollowUpGenerator) Type() domain.CampaignType {
	return domain.CampaignTypeNoShowFollowUp
}

// Generate picks customers whose latest appointment was a recent no-show.
func (g *NoShowFollowUpGenerator) Generate(ctx context.Context, business *domain.Business, campaign *domain.Campaign, now time.Time) ([]Candidate, error) {
	eligible, err := latestAppointmentMatches(ctx, g.customers, g.appointments, g.campaignCalls,
		business, campaign, now, domain.AppointmentStatusNoShow,
		settingDays(campaign.Settings, "lookback_days", 14))
	if err != nil {
		return nil, err
	}
	return zipCandidates(eligible, StaggerSchedule(campaign, business.Location(), now, len(eligible))), nil
}

func latestAppointmentMatches(
	ctx context.Context,
	customers repository.CustomerRepository,
	appointments repository.AppointmentRepository,
	campaignCalls repository.CampaignCallRepository,
	business *domain.Business,
	campaign *domain.Campaign,
	now time.Time,
	status domain.AppointmentStatus,
	lookback time.Duration,
) ([]*domain.Customer, error) {
	all, err := customers.ListByBusiness(ctx, business.ID)
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}

	contacted, err := campaignCalls.ContactedCustomerIDs(ctx, campaign.ID, now.Add(-campaign.CycleFrequency()))
	if err != nil {
		return nil, fmt.Errorf("contacted customers: %w", err)
	}

	horizon := now.Add(-lookback)

	var eligible []*domain.Customer
	for _, customer := range all {
		if !validate.Phone(customer.Phone) {
			continue
		}
		if _, ok := contacted[customer.ID]; ok {
			continue
		}

		latest, err := appointments.LatestByCustomer(ctx, customer.ID)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("latest appointment: %w", err)
		}
		if latest.Status != status || latest.ScheduledAt.Before(horizon) {
			continue
		}

		eligible = append(eligible, customer)
	}
	return eligible, nil
}

func zipCandidates(customers []*domain.Customer, times []time.Time) []Candidate {
	candidates := make([]Candidate, 0, len(customers))
	for i, customer := range customers {
		candidates = append(candidates, Candidate{Customer: customer, ScheduledFor: times[i]})
	}
	return candidates
}

func settingDays(settings map[string]any, key string, fallback int) time.Duration {
	days := fallback
	if settings != nil {
		switch v := settings[key].(type) {
		case float64:
			if v > 0 {
				days = int(v)
			}
		case int:
			if v > 0 {
				days = v
			}
		}
	}
	return time.Duration(days) * 24 * time.Hour
}
