package callflow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/acme/voice-outreach/internal/conversation"
	convoMock "github.com/acme/voice-outreach/internal/conversation/mock"
	"github.com/acme/voice-outreach/internal/domain"
	"github.com/acme/voice-outreach/internal/telephony/mock"
)

type driverFixture struct {
	store    *memStore
	provider *mock.Provider
	arena    *Arena
	driver   *Driver

	business    *domain.Business
	customer    *domain.Customer
	appointment *domain.Appointment
}

func newDriverFixture(t *testing.T, convo conversation.Service) *driverFixture {
	t.Helper()
	store := newMemStore()

	business := &domain.Business{
		ID:       uuid.New(),
		Name:     "Bright Smiles",
		Category: "dental",
		TimeZone: "UTC",
		Phone:    "+15550100001",
	}
	customer := &domain.Customer{
		ID:         uuid.New(),
		BusinessID: business.ID,
		Name:       "Dana",
		Phone:      "+15550100002",
	}
	appointment := &domain.Appointment{
		ID:          uuid.New(),
		BusinessID:  business.ID,
		CustomerID:  customer.ID,
		ScheduledAt: time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC),
		Status:      domain.AppointmentStatusReminded,
	}
	store.businesses[business.ID] = business
	store.customers[customer.ID] = customer
	store.appointments[appointment.ID] = appointment

	provider := mock.NewProvider()
	arena := NewArena()
	driver := NewDriver(arena, provider, convo,
		memAppointments{store}, memCampaigns{store}, memCampaignCalls{store},
		memCustomers{store}, memBusinesses{store}, memCallLogs{store},
		nil, nil, testLogger())

	return &driverFixture{
		store:       store,
		provider:    provider,
		arena:       arena,
		driver:      driver,
		business:    business,
		customer:    customer,
		appointment: appointment,
	}
}

func (f *driverFixture) seedReminderLog(ref string) {
	appointmentID := f.appointment.ID
	f.store.callLogs[ref] = &domain.CallLog{
		ID:            uuid.New(),
		ProviderRef:   ref,
		Kind:          domain.CallKindReminder,
		BusinessID:    f.business.ID,
		CustomerID:    f.customer.ID,
		AppointmentID: &appointmentID,
		PhoneNumber:   f.customer.Phone,
		Outcome:       domain.CallOutcomeInitiated,
	}
}

func (f *driverFixture) seedCampaignLog(ref string) *domain.CampaignCall {
	campaign := &domain.Campaign{
		ID:         uuid.New(),
		BusinessID: f.business.ID,
		Type:       domain.CampaignTypeReengagement,
	}
	call := &domain.CampaignCall{
		ID:         uuid.New(),
		CampaignID: campaign.ID,
		CustomerID: f.customer.ID,
		Status:     domain.CampaignCallStatusInProgress,
	}
	f.store.campaigns[campaign.ID] = campaign
	f.store.campaignCalls[call.ID] = call

	callID := call.ID
	f.store.callLogs[ref] = &domain.CallLog{
		ID:             uuid.New(),
		ProviderRef:    ref,
		Kind:           domain.CallKindCampaign,
		BusinessID:     f.business.ID,
		CustomerID:     f.customer.ID,
		CampaignCallID: &callID,
		PhoneNumber:    f.customer.Phone,
		Outcome:        domain.CallOutcomeInitiated,
	}
	return call
}

func drive(t *testing.T, d *Driver, events ...Event) {
	t.Helper()
	for _, ev := range events {
		if err := d.HandleEvent(context.Background(), ev); err != nil {
			t.Fatalf("handle %s: %v", ev.Type, err)
		}
	}
}

func TestDriverReminderConfirmFlow(t *testing.T) {
	f := newDriverFixture(t, nil)
	f.seedReminderLog("call-1")

	drive(t, f.driver,
		Event{Type: EventAnswered, ProviderRef: "call-1"},
		Event{Type: EventSpeechEnded, ProviderRef: "call-1"},
		Event{Type: EventDigitsGathered, ProviderRef: "call-1", Digits: "1"},
		Event{Type: EventHangup, ProviderRef: "call-1", Duration: 40 * time.Second},
	)

	actions := f.provider.Actions()
	if len(actions) == 0 || actions[0].Kind != "say" {
		t.Fatalf("expected the greeting to be spoken first, got %+v", actions)
	}
	if !strings.Contains(actions[0].Text, "Dana") || !strings.Contains(actions[0].Text, "Bright Smiles") {
		t.Fatalf("greeting not personalized: %q", actions[0].Text)
	}

	var kinds []string
	for _, a := range actions {
		kinds = append(kinds, a.Kind)
	}
	want := []string{"say", "gather", "say", "hangup"}
	if strings.Join(kinds, ",") != strings.Join(want, ",") {
		t.Fatalf("action sequence = %v, want %v", kinds, want)
	}

	if f.appointment.Status != domain.AppointmentStatusConfirmed {
		t.Fatalf("appointment status = %s, want confirmed", f.appointment.Status)
	}
	log := f.store.callLogs["call-1"]
	if log.Outcome != domain.CallOutcomeConfirmed {
		t.Fatalf("call log outcome = %s, want confirmed", log.Outcome)
	}
	if log.Duration != 40*time.Second {
		t.Fatalf("call log duration = %v", log.Duration)
	}
	if f.arena.Len() != 0 {
		t.Fatalf("session must be torn down after hangup")
	}
}

func TestDriverDropsOrphanEvents(t *testing.T) {
	f := newDriverFixture(t, nil)

	// No call log seeded: the ref was never placed by this system.
	drive(t, f.driver,
		Event{Type: EventAnswered, ProviderRef: "ghost"},
		Event{Type: EventDigitsGathered, ProviderRef: "ghost", Digits: "1"},
		Event{Type: EventHangup, ProviderRef: "ghost"},
	)

	if len(f.provider.Actions()) != 0 {
		t.Fatalf("orphan events must not drive the provider")
	}
	if f.arena.Len() != 0 {
		t.Fatalf("orphan events must not create sessions")
	}
}

func TestDriverVoicemailFlow(t *testing.T) {
	f := newDriverFixture(t, nil)
	f.seedReminderLog("call-1")

	drive(t, f.driver,
		Event{Type: EventAnswered, ProviderRef: "call-1"},
		Event{Type: EventMachineDetectionEnded, ProviderRef: "call-1", MachineResult: MachineResultMachine},
		Event{Type: EventHangup, ProviderRef: "call-1", Duration: 25 * time.Second},
	)

	log := f.store.callLogs["call-1"]
	if log.Outcome != domain.CallOutcomeVoicemail {
		t.Fatalf("call log outcome = %s, want voicemail", log.Outcome)
	}
	// Voicemail never confirms anything on the appointment.
	if f.appointment.Status != domain.AppointmentStatusReminded {
		t.Fatalf("appointment status = %s, want reminded", f.appointment.Status)
	}
}

func TestDriverCampaignTerminalSettlement(t *testing.T) {
	f := newDriverFixture(t, nil)
	call := f.seedCampaignLog("call-9")

	drive(t, f.driver,
		Event{Type: EventAnswered, ProviderRef: "call-9"},
		Event{Type: EventSpeechEnded, ProviderRef: "call-9"},
		Event{Type: EventHangup, ProviderRef: "call-9", Duration: 31 * time.Second},
	)

	if call.Status != domain.CampaignCallStatusCompleted {
		t.Fatalf("campaign call status = %s, want completed", call.Status)
	}
	outcome, _ := call.Result["outcome"].(string)
	if outcome != string(domain.CallOutcomeNoAnswer) {
		t.Fatalf("campaign call result outcome = %q", outcome)
	}
	if f.arena.Len() != 0 {
		t.Fatalf("session must be torn down after settlement")
	}
}

func TestDriverSerializesConcurrentEventsForOneRef(t *testing.T) {
	f := newDriverFixture(t, nil)
	f.seedReminderLog("call-1")

	drive(t, f.driver, Event{Type: EventAnswered, ProviderRef: "call-1"})

	// A speech-ended callback racing the hangup must not interleave a
	// transition with its effects. Whichever lands second either runs
	// against the settled session or is dropped as an orphan.
	var wg sync.WaitGroup
	for _, ev := range []Event{
		{Type: EventSpeechEnded, ProviderRef: "call-1"},
		{Type: EventHangup, ProviderRef: "call-1", Duration: 12 * time.Second},
	} {
		wg.Add(1)
		go func(ev Event) {
			defer wg.Done()
			if err := f.driver.HandleEvent(context.Background(), ev); err != nil {
				t.Errorf("handle %s: %v", ev.Type, err)
			}
		}(ev)
	}
	wg.Wait()

	if f.arena.Len() != 0 {
		t.Fatalf("session must be torn down exactly once")
	}
	log := f.store.callLogs["call-1"]
	if log.Outcome != domain.CallOutcomeNoAnswer {
		t.Fatalf("call log outcome = %s, want no_answer", log.Outcome)
	}
	if log.Duration != 12*time.Second {
		t.Fatalf("call log duration = %v", log.Duration)
	}
}

func TestDriverConversationalFlow(t *testing.T) {
	convo := convoMock.NewService()
	convo.ClassifyOutcome = domain.CallOutcomeConfirmed
	convo.SessionResult = conversation.Result{
		Transcript: "customer: yes I'll be there",
		Summary:    "customer confirmed",
		Outcome:    domain.CallOutcomeAnswered,
	}

	f := newDriverFixture(t, convo)
	f.seedReminderLog("call-1")

	drive(t, f.driver,
		Event{Type: EventAnswered, ProviderRef: "call-1"},
		Event{Type: EventHangup, ProviderRef: "call-1", Duration: 90 * time.Second},
	)

	actions := f.provider.Actions()
	if len(actions) != 1 || actions[0].Kind != "bridge" {
		t.Fatalf("expected only a bridge action, got %+v", actions)
	}
	if len(convo.Ended()) != 1 {
		t.Fatalf("conversation session must be ended on hangup")
	}

	log := f.store.callLogs["call-1"]
	if log.Outcome != domain.CallOutcomeConfirmed {
		t.Fatalf("classification must supersede the session outcome, got %s", log.Outcome)
	}
	if log.Transcript == "" {
		t.Fatalf("transcript must be persisted")
	}
}

func TestDriverFallsBackWhenConversationUnavailable(t *testing.T) {
	convo := convoMock.NewService()
	convo.StartErr = errors.New("no agents available")

	f := newDriverFixture(t, convo)
	f.seedReminderLog("call-1")

	drive(t, f.driver, Event{Type: EventAnswered, ProviderRef: "call-1"})

	actions := f.provider.Actions()
	if len(actions) != 1 || actions[0].Kind != "say" {
		t.Fatalf("expected fallback to the scripted greeting, got %+v", actions)
	}

	sess := f.arena.Get("call-1")
	if sess == nil || sess.Mode != ModeBasic {
		t.Fatalf("session must downgrade to the basic path")
	}

	// The scripted flow proceeds normally from here.
	drive(t, f.driver,
		Event{Type: EventSpeechEnded, ProviderRef: "call-1"},
		Event{Type: EventDigitsGathered, ProviderRef: "call-1", Digits: "1"},
	)
	if f.appointment.Status != domain.AppointmentStatusConfirmed {
		t.Fatalf("fallback flow must still confirm, got %s", f.appointment.Status)
	}
}
