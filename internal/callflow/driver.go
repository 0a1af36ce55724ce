package callflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/acme/voice-outreach/internal/conversation"
	"github.com/acme/voice-outreach/internal/domain"
	"github.com/acme/voice-outreach/internal/queue"
	"github.com/acme/voice-outreach/internal/repository"
	"github.com/acme/voice-outreach/internal/scripts"
	"github.com/acme/voice-outreach/internal/service/concurrency"
	"github.com/acme/voice-outreach/internal/telephony"
	"github.com/acme/voice-outreach/pkg/logger"
)

// spokenTimeLayout formats appointment times for speech synthesis.
const spokenTimeLayout = "Monday, January 2 at 3:04 PM"

// Driver consumes verified call events, advances the per-call session and
// executes the resulting effects against the provider, storage and the
// outcome topic. It is safe for concurrent use.
type Driver struct {
	sessions      *Arena
	provider      telephony.Provider
	convo         conversation.Service
	appointments  repository.AppointmentRepository
	campaigns     repository.CampaignRepository
	campaignCalls repository.CampaignCallRepository
	customers     repository.CustomerRepository
	businesses    repository.BusinessRepository
	callLogs      repository.CallLogStore
	outcomes      *queue.OutcomePublisher
	slots         *concurrency.Limiter
	logger        *logger.Logger
}

// NewDriver constructs the driver. convo, outcomes and slots may be nil:
// calls then run the basic path, outcome publishing is skipped and dial
// slots are left to expire.
func NewDriver(
	sessions *Arena,
	provider telephony.Provider,
	convo conversation.Service,
	appointments repository.AppointmentRepository,
	campaigns repository.CampaignRepository,
	campaignCalls repository.CampaignCallRepository,
	customers repository.CustomerRepository,
	businesses repository.BusinessRepository,
	callLogs repository.CallLogStore,
	outcomes *queue.OutcomePublisher,
	slots *concurrency.Limiter,
	lg *logger.Logger,
) *Driver {
	return &Driver{
		sessions:      sessions,
		provider:      provider,
		convo:         convo,
		appointments:  appointments,
		campaigns:     campaigns,
		campaignCalls: campaignCalls,
		customers:     customers,
		businesses:    businesses,
		callLogs:      callLogs,
		outcomes:      outcomes,
		slots:         slots,
		logger:        lg,
	}
}

// HandleEvent routes one provider callback through the state machine.
// Events for unknown refs are dropped: either the call predates a process
// restart or a duplicate terminal callback arrived after teardown.
func (d *Driver) HandleEvent(ctx context.Context, ev Event) error {
	tracer := otel.Tracer("outreach.callflow")
	ctx, span := tracer.Start(ctx, "callflow.event", trace.WithAttributes(
		attribute.String("event.type", string(ev.Type)),
		attribute.String("provider.ref", ev.ProviderRef),
	))
	defer span.End()

	if ev.Type == EventInitiated {
		// The call log was written with the initiated outcome at dispatch;
		// nothing to advance yet.
		d.logger.Debug("call initiated", zap.String("ref", ev.ProviderRef))
		return nil
	}

	// Provider callbacks for one call can arrive on overlapping requests;
	// the transition and its effects must not interleave.
	unlock := d.sessions.LockRef(ev.ProviderRef)
	defer unlock()

	sess := d.sessions.Get(ev.ProviderRef)
	if sess == nil {
		if ev.Type != EventAnswered {
			d.logger.Debug("dropping event for unknown call",
				zap.String("ref", ev.ProviderRef),
				zap.String("event", string(ev.Type)))
			return nil
		}
		var err error
		sess, err = d.openSession(ctx, ev)
		if err != nil {
			return err
		}
		if sess == nil {
			return nil
		}
	}

	state, effects := Transition(sess, ev)
	sess.State = state
	return d.apply(ctx, sess, effects)
}

// openSession reconstructs call context from the call log written at
// dispatch and registers a live session. Returns (nil, nil) for refs this
// system never placed.
func (d *Driver) openSession(ctx context.Context, ev Event) (*Session, error) {
	log, err := d.callLogs.GetByProviderRef(ctx, ev.ProviderRef)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			d.logger.Debug("answered event for unknown ref", zap.String("ref", ev.ProviderRef))
			return nil, nil
		}
		return nil, fmt.Errorf("callflow: load call log: %w", err)
	}

	business, err := d.businesses.Get(ctx, log.BusinessID)
	if err != nil {
		return nil, fmt.Errorf("callflow: load business: %w", err)
	}
	customer, err := d.customers.Get(ctx, log.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("callflow: load customer: %w", err)
	}

	sess := &Session{
		Ref:            ev.ProviderRef,
		Kind:           log.Kind,
		Mode:           ModeBasic,
		Outcome:        log.Outcome,
		BusinessID:     log.BusinessID,
		CustomerID:     log.CustomerID,
		AppointmentID:  log.AppointmentID,
		CampaignCallID: log.CampaignCallID,
		AnsweredAt:     ev.OccurredAt,
		BusinessName:   business.Name,
		CustomerName:   customer.Name,
		Facts:          map[string]string{},
	}
	if d.convo != nil {
		sess.Mode = ModeConversational
	}

	data := scripts.CallData{
		BusinessName: business.Name,
		CustomerName: customer.Name,
	}

	switch log.Kind {
	case domain.CallKindReminder:
		if log.AppointmentID == nil {
			return nil, fmt.Errorf("callflow: reminder call %s has no appointment", ev.ProviderRef)
		}
		appointment, err := d.appointments.Get(ctx, *log.AppointmentID)
		if err != nil {
			return nil, fmt.Errorf("callflow: load appointment: %w", err)
		}
		data.AppointmentTime = appointment.ScheduledAt.In(business.Location()).Format(spokenTimeLayout)
		sess.Facts["appointment_time"] = data.AppointmentTime
		sess.Lines, err = renderReminder(scripts.ForReminder(business.Category), data)
		if err != nil {
			return nil, err
		}

	case domain.CallKindCampaign:
		if log.CampaignCallID == nil {
			return nil, fmt.Errorf("callflow: campaign call %s has no work item", ev.ProviderRef)
		}
		call, err := d.campaignCalls.Get(ctx, *log.CampaignCallID)
		if err != nil {
			return nil, fmt.Errorf("callflow: load campaign call: %w", err)
		}
		sess.CampaignID = &call.CampaignID
		campaign, err := d.campaigns.Get(ctx, call.CampaignID)
		if err != nil {
			return nil, fmt.Errorf("callflow: load campaign: %w", err)
		}
		sess.Facts["campaign_type"] = string(campaign.Type)
		sess.Lines, err = renderOutreach(scripts.ForOutreach(campaign.Type, business.Category), data)
		if err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("callflow: unknown call kind %q", log.Kind)
	}

	d.sessions.Put(sess)
	return sess, nil
}

func (d *Driver) apply(ctx context.Context, sess *Session, effects []Effect) error {
	for _, effect := range effects {
		var err error
		switch e := effect.(type) {
		case Say:
			err = d.provider.Say(ctx, sess.Ref, e.Text)
		case Gather:
			err = d.provider.Gather(ctx, sess.Ref, e.Prompt, e.NumDigits, e.Timeout)
		case Hangup:
			err = d.provider.Hangup(ctx, sess.Ref, e.After)
		case SetOutcome:
			sess.Outcome = e.Outcome
			err = d.callLogs.UpdateOutcome(ctx, sess.Ref, e.Outcome, 0)
		case UpdateAppointment:
			err = d.updateAppointment(ctx, sess, e.Status)
		case OpenConversation:
			d.openConversation(ctx, sess)
		case EndCall:
			err = d.endCall(ctx, sess, e.Duration)
		}
		if err != nil {
			return fmt.Errorf("callflow: apply %T for %s: %w", effect, sess.Ref, err)
		}
	}
	return nil
}

func (d *Driver) updateAppointment(ctx context.Context, sess *Session, status domain.AppointmentStatus) error {
	if sess.AppointmentID == nil {
		return nil
	}
	return d.appointments.UpdateStatus(ctx, *sess.AppointmentID, status)
}

// openConversation starts an AI session and bridges the call into its
// room. Any failure downgrades the call to the basic scripted path rather
// than dropping a live customer.
func (d *Driver) openConversation(ctx context.Context, sess *Session) {
	convoSess, err := d.convo.StartSession(ctx, conversation.StartParams{
		ProviderRef:  sess.Ref,
		Purpose:      string(sess.Kind),
		BusinessName: sess.BusinessName,
		CustomerName: sess.CustomerName,
		Context:      sess.Facts,
	})
	if err == nil {
		bridgeErr := d.provider.Bridge(ctx, sess.Ref, convoSess.Room)
		if bridgeErr == nil {
			sess.ConversationID = convoSess.ID
			return
		}
		err = bridgeErr
		if _, endErr := d.convo.EndSession(ctx, convoSess.ID); endErr != nil {
			d.logger.Warn("end conversation after bridge failure",
				zap.String("ref", sess.Ref), zap.Error(endErr))
		}
	}

	d.logger.Warn("conversation unavailable, falling back to scripted call",
		zap.String("ref", sess.Ref), zap.Error(err))
	sess.Mode = ModeBasic
	sess.State = StateSpeaking
	if sayErr := d.provider.Say(ctx, sess.Ref, sess.Lines.Greeting); sayErr != nil {
		d.logger.Error("speak fallback greeting",
			zap.String("ref", sess.Ref), zap.Error(sayErr))
	}
}

// endCall settles the terminal outcome, persists it, reports campaign
// bookkeeping and always tears the session down.
func (d *Driver) endCall(ctx context.Context, sess *Session, duration time.Duration) error {
	defer d.sessions.Remove(sess.Ref)

	var transcript, summary string
	if sess.ConversationID != "" {
		result, err := d.convo.EndSession(ctx, sess.ConversationID)
		if err != nil {
			d.logger.Warn("end conversation session",
				zap.String("ref", sess.Ref), zap.Error(err))
		} else {
			transcript = result.Transcript
			summary = result.Summary
			if result.Outcome != "" {
				sess.Outcome = result.Outcome
			}
			outcome, classSummary, err := d.convo.Classify(ctx, transcript)
			if err != nil {
				d.logger.Warn("classify transcript",
					zap.String("ref", sess.Ref), zap.Error(err))
			} else {
				// Classification supersedes the session's own assessment.
				sess.Outcome = outcome
				if classSummary != "" {
					summary = classSummary
				}
			}
		}
		if !sess.Outcome.Decisive() && sess.Outcome != domain.CallOutcomeAnswered {
			sess.Outcome = domain.CallOutcomeNoAnswer
		}
	}

	if err := d.callLogs.UpdateOutcome(ctx, sess.Ref, sess.Outcome, duration); err != nil {
		return fmt.Errorf("persist outcome: %w", err)
	}
	if transcript != "" || summary != "" {
		if err := d.callLogs.SaveTranscript(ctx, sess.Ref, transcript, summary); err != nil {
			d.logger.Error("save transcript", zap.String("ref", sess.Ref), zap.Error(err))
		}
	}

	if sess.CampaignCallID != nil {
		status := domain.CampaignCallStatusCompleted
		if sess.Outcome == domain.CallOutcomeFailed {
			status = domain.CampaignCallStatusFailed
		}
		result := map[string]any{"outcome": string(sess.Outcome)}
		if err := d.campaignCalls.SetStatus(ctx, *sess.CampaignCallID, status, result); err != nil {
			d.logger.Error("settle campaign call",
				zap.String("campaign_call_id", sess.CampaignCallID.String()), zap.Error(err))
		}
		if d.slots != nil && sess.CampaignID != nil {
			if err := d.slots.Release(ctx, *sess.CampaignID); err != nil {
				d.logger.Warn("release dial slot",
					zap.String("campaign_id", sess.CampaignID.String()), zap.Error(err))
			}
		}
	}

	d.publishOutcome(ctx, sess, duration, summary)

	d.logger.Info("call completed",
		zap.String("ref", sess.Ref),
		zap.String("kind", string(sess.Kind)),
		zap.String("outcome", string(sess.Outcome)),
		zap.Duration("duration", duration))
	return nil
}

func (d *Driver) publishOutcome(ctx context.Context, sess *Session, duration time.Duration, summary string) {
	if d.outcomes == nil {
		return
	}
	log, err := d.callLogs.GetByProviderRef(ctx, sess.Ref)
	if err != nil {
		d.logger.Warn("load call log for outcome event",
			zap.String("ref", sess.Ref), zap.Error(err))
		return
	}
	msg := queue.OutcomeMessage{
		CallLogID:      log.ID,
		ProviderRef:    sess.Ref,
		Kind:           string(sess.Kind),
		BusinessID:     sess.BusinessID,
		CustomerID:     sess.CustomerID,
		AppointmentID:  sess.AppointmentID,
		CampaignCallID: sess.CampaignCallID,
		Outcome:        string(sess.Outcome),
		DurationMs:     duration.Milliseconds(),
		Summary:        summary,
		OccurredAt:     time.Now().UTC(),
	}
	if err := d.outcomes.PublishOutcome(ctx, msg); err != nil {
		d.logger.Error("publish outcome event", zap.String("ref", sess.Ref), zap.Error(err))
	}
}

func renderReminder(script scripts.ReminderScript, data scripts.CallData) (Lines, error) {
	var (
		lines Lines
		err   error
	)
	if lines.Greeting, err = scripts.Render(script.Greeting, data); err != nil {
		return Lines{}, err
	}
	if lines.Confirmed, err = scripts.Render(script.Confirmed, data); err != nil {
		return Lines{}, err
	}
	if lines.Reschedule, err = scripts.Render(script.Reschedule, data); err != nil {
		return Lines{}, err
	}
	if lines.Closing, err = scripts.Render(script.Closing, data); err != nil {
		return Lines{}, err
	}
	if lines.Voicemail, err = scripts.Render(script.Voicemail, data); err != nil {
		return Lines{}, err
	}
	return lines, nil
}

func renderOutreach(script scripts.OutreachScript, data scripts.CallData) (Lines, error) {
	var (
		lines Lines
		err   error
	)
	if lines.Greeting, err = scripts.Render(script.Greeting, data); err != nil {
		return Lines{}, err
	}
	if lines.Closing, err = scripts.Render(script.Closing, data); err != nil {
		return Lines{}, err
	}
	if lines.Voicemail, err = scripts.Render(script.Voicemail, data); err != nil {
		return Lines{}, err
	}
	return lines, nil
}
