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
	"github.com/acme/voice-outreach/internal/service/concurrency"
	"github.com/acme/voice-outreach/internal/telephony"
	"github.com/acme/voice-outreach/internal/validate"
	"github.com/acme/voice-outreach/pkg/logger"
)

// CampaignLoop drains queued campaign work under call-window, spacing and
// concurrency constraints, and triggers the evaluation phase when a
// campaign's cycle comes due.
type CampaignLoop struct {
	cfg           config.OutreachConfig
	campaigns     repository.CampaignRepository
	campaignCalls repository.CampaignCallRepository
	customers     repository.CustomerRepository
	businesses    repository.BusinessRepository
	callLogs      repository.CallLogStore
	provider      telephony.Provider
	evaluator     *Evaluator
	slots         *concurrency.Limiter
	logger        *logger.Logger

	// running only prevents re-entrant overlap within this process.
	running atomic.Bool
}

// NewCampaignLoop constructs the loop. slots may be nil; the DB in-progress
// count is then the only concurrency control.
func NewCampaignLoop(
	cfg config.OutreachConfig,
	campaigns repository.CampaignRepository,
	campaignCalls repository.CampaignCallRepository,
	customers repository.CustomerRepository,
	businesses repository.BusinessRepository,
	callLogs repository.CallLogStore,
	provider telephony.Provider,
	evaluator *Evaluator,
	slots *concurrency.Limiter,
	lg *logger.Logger,
) *CampaignLoop {
	return &CampaignLoop{
		cfg:           cfg,
		campaigns:     campaigns,
		campaignCalls: campaignCalls,
		customers:     customers,
		businesses:    businesses,
		callLogs:      callLogs,
		provider:      provider,
		evaluator:     evaluator,
		slots:         slots,
		logger:        lg,
	}
}

// Run executes the campaign loop until cancelled.
func (l *CampaignLoop) Run(ctx context.Context) error {
	interval := l.cfg.TickInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := l.Tick(ctx, time.Now().UTC()); err != nil && ctx.Err() == nil {
			l.logger.Error("campaign loop: tick failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick runs one pass over all enabled campaigns.
func (l *CampaignLoop) Tick(ctx context.Context, now time.Time) error {
	if !l.running.CompareAndSwap(false, true) {
		l.logger.Debug("campaign loop: previous tick still running")
		return nil
	}
	defer l.running.Store(false)

	tracer := otel.Tracer("outreach.campaign")
	sctx, span := tracer.Start(ctx, "campaign.tick")
	defer span.End()

	campaigns, err := l.campaigns.ListEnabled(sctx, 0)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("campaign loop: list enabled: %w", err)
	}
	span.SetAttributes(attribute.Int("campaign.count", len(campaigns)))

	for _, campaign := range campaigns {
		cctx, cspan := tracer.Start(sctx, "campaign.process", trace.WithAttributes(
			attribute.String("campaign.id", campaign.ID.String()),
			attribute.String("campaign.type", string(campaign.Type)),
		))

		business, err := l.businesses.Get(cctx, campaign.BusinessID)
		if err != nil {
			cspan.RecordError(err)
			l.logger.Error("campaign loop: load business", zap.Error(err), zap.String("campaign_id", campaign.ID.String()))
			cspan.End()
			continue
		}

		// One gate decision covers both evaluation and dispatch this tick.
		if !WithinCallWindow(campaign, business.Location(), now) {
			l.logger.Debug("campaign loop: outside call window", zap.String("campaign_id", campaign.ID.String()))
			cspan.End()
			continue
		}

		if l.evaluator != nil && l.evaluator.Due(campaign, now) {
			if err := l.evaluator.Run(cctx, business, campaign, now); err != nil {
				cspan.RecordError(err)
				l.logger.Error("campaign loop: evaluation", zap.Error(err), zap.String("campaign_id", campaign.ID.String()))
			}
		}

		if err := l.dispatchCampaign(cctx, business, campaign, now); err != nil {
			cspan.RecordError(err)
			l.logger.Error("campaign loop: dispatch", zap.Error(err), zap.String("campaign_id", campaign.ID.String()))
		}
		cspan.End()
	}

	return nil
}

// dispatchCampaign drains due queued calls for one campaign up to its
// concurrency cap. Per-item failures never abort the walk.
func (l *CampaignLoop) dispatchCampaign(ctx context.Context, business *domain.Business, campaign *domain.Campaign, now time.Time) error {
	queued, err := l.campaignCalls.ListQueuedDue(ctx, campaign.ID, now, l.cfg.MaxBatchSize)
	if err != nil {
		return fmt.Errorf("list queued: %w", err)
	}
	if len(queued) == 0 {
		return nil
	}

	inProgress, err := l.campaignCalls.CountInProgress(ctx, campaign.ID)
	if err != nil {
		return fmt.Errorf("count in progress: %w", err)
	}

	lastActivity, err := l.campaignCalls.LastActivityAt(ctx, campaign.ID)
	if err != nil {
		return fmt.Errorf("last activity: %w", err)
	}
	if lastActivity != nil && campaign.MinCallSpacing > 0 && now.Sub(*lastActivity) < campaign.MinCallSpacing {
		// Coarse per-campaign rate limiter: sit this tick out entirely.
		l.logger.Debug("campaign loop: within minimum spacing, skipping campaign",
			zap.String("campaign_id", campaign.ID.String()),
			zap.Time("last_activity", *lastActivity))
		return nil
	}

	capacity := campaign.MaxConcurrentCalls - inProgress
	for _, call := range queued {
		if capacity <= 0 {
			break
		}

		customer, err := l.customers.Get(ctx, call.CustomerID)
		if err != nil {
			l.logger.Error("campaign loop: load customer", zap.Error(err), zap.String("campaign_call_id", call.ID.String()))
			continue
		}

		if !validate.Phone(customer.Phone) {
			// Terminal: a malformed number cannot heal by retrying.
			if err := l.campaignCalls.SetStatus(ctx, call.ID, domain.CampaignCallStatusSkipped,
				map[string]any{"reason": "invalid_phone"}); err != nil {
				l.logger.Error("campaign loop: mark skipped", zap.Error(err), zap.String("campaign_call_id", call.ID.String()))
			}
			continue
		}

		claimed, err := l.campaignCalls.Claim(ctx, call.ID)
		if err != nil {
			l.logger.Error("campaign loop: claim", zap.Error(err), zap.String("campaign_call_id", call.ID.String()))
			continue
		}
		if !claimed {
			l.logger.Debug("campaign loop: already claimed", zap.String("campaign_call_id", call.ID.String()))
			continue
		}

		if !l.acquireSlot(ctx, campaign) {
			// Cross-replica soft cap is saturated; hand the row back and stop
			// walking this campaign for the tick.
			if err := l.campaignCalls.SetStatus(ctx, call.ID, domain.CampaignCallStatusQueued, nil); err != nil {
				l.logger.Error("campaign loop: release claim", zap.Error(err), zap.String("campaign_call_id", call.ID.String()))
			}
			break
		}

		if err := l.dispatch(ctx, business, campaign, call, customer, now); err != nil {
			l.logger.Error("campaign loop: dispatch failed, requeueing",
				zap.Error(err), zap.String("campaign_call_id", call.ID.String()))
			if revertErr := l.campaignCalls.SetStatus(ctx, call.ID, domain.CampaignCallStatusQueued, nil); revertErr != nil {
				l.logger.Error("campaign loop: revert claim", zap.Error(revertErr), zap.String("campaign_call_id", call.ID.String()))
			}
			l.releaseSlot(campaign)
			continue
		}

		capacity--
	}

	return nil
}

func (l *CampaignLoop) dispatch(ctx context.Context, business *domain.Business, campaign *domain.Campaign, call *domain.CampaignCall, customer *domain.Customer, now time.Time) error {
	ref, err := l.provider.PlaceCall(ctx, telephony.PlaceCallParams{
		To:               customer.Phone,
		From:             business.Phone,
		MachineDetection: true,
		Metadata: map[string]string{
			"kind":             string(domain.CallKindCampaign),
			"campaign_call_id": call.ID.String(),
		},
	})
	if err != nil {
		return fmt.Errorf("place call: %w", err)
	}

	callID := call.ID
	log := &domain.CallLog{
		ID:             uuid.New(),
		ProviderRef:    ref,
		Kind:           domain.CallKindCampaign,
		BusinessID:     business.ID,
		CustomerID:     customer.ID,
		CampaignCallID: &callID,
		PhoneNumber:    customer.Phone,
		Outcome:        domain.CallOutcomeInitiated,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := l.callLogs.Create(ctx, log); err != nil {
		return fmt.Errorf("write call log: %w", err)
	}

	l.logger.Info("campaign loop: call placed",
		zap.String("campaign_id", campaign.ID.String()),
		zap.String("campaign_call_id", call.ID.String()),
		zap.String("provider_ref", ref))
	return nil
}

func (l *CampaignLoop) acquireSlot(ctx context.Context, campaign *domain.Campaign) bool {
	if l.slots == nil {
		return true
	}
	acquired, err := l.slots.Acquire(ctx, campaign.ID, campaign.MaxConcurrentCalls)
	if err != nil {
		// The Redis cap is advisory; the DB count already bounded this walk.
		l.logger.Warn("campaign loop: slot acquire", zap.Error(err), zap.String("campaign_id", campaign.ID.String()))
		return true
	}
	return acquired
}

func (l *CampaignLoop) releaseSlot(campaign *domain.Campaign) {
	if l.slots == nil {
		return
	}
	if err := l.slots.Release(context.Background(), campaign.ID); err != nil {
		l.logger.Warn("campaign loop: slot release", zap.Error(err), zap.String("campaign_id", campaign.ID.String()))
	}
}
