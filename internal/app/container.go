package app

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/acme/voice-outreach/internal/callflow"
	"github.com/acme/voice-outreach/internal/config"
	"github.com/acme/voice-outreach/internal/conversation"
	conversationMock "github.com/acme/voice-outreach/internal/conversation/mock"
	"github.com/acme/voice-outreach/internal/infra/db"
	"github.com/acme/voice-outreach/internal/infra/redis"
	"github.com/acme/voice-outreach/internal/queue"
	"github.com/acme/voice-outreach/internal/repository"
	pgrepo "github.com/acme/voice-outreach/internal/repository/postgres"
	scyllarepo "github.com/acme/voice-outreach/internal/repository/scylla"
	"github.com/acme/voice-outreach/internal/scheduler"
	"github.com/acme/voice-outreach/internal/service/concurrency"
	"github.com/acme/voice-outreach/internal/service/replay"
	"github.com/acme/voice-outreach/internal/telephony"
	telephonyHTTP "github.com/acme/voice-outreach/internal/telephony/httpapi"
	telephonyMock "github.com/acme/voice-outreach/internal/telephony/mock"
	"github.com/acme/voice-outreach/pkg/logger"
)

// Container wires infrastructure, repositories and the call machinery
// together. Both binaries build one and pick the pieces they run.
type Container struct {
	Config *config.Config
	Logger *logger.Logger

	Postgres *db.Postgres
	Scylla   *db.Scylla
	Redis    *redis.Client
	Kafka    *queue.Kafka

	Businesses    repository.BusinessRepository
	Customers     repository.CustomerRepository
	Appointments  repository.AppointmentRepository
	Campaigns     repository.CampaignRepository
	CampaignCalls repository.CampaignCallRepository
	CallLogs      repository.CallLogStore

	Provider telephony.Provider
	Convo    conversation.Service

	Outcomes *queue.OutcomePublisher
	Slots    *concurrency.Limiter
	Replay   *replay.Guard

	Sessions *callflow.Arena
	Driver   *callflow.Driver

	Reminders    *scheduler.ReminderLoop
	CampaignLoop *scheduler.CampaignLoop
}

// Build constructs a container for the given configuration path.
func Build(ctx context.Context, configPath string) (*Container, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	lg, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, err
	}

	postgres, err := db.NewPostgres(ctx, cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("container: postgres: %w", err)
	}
	scylla, err := db.NewScylla(cfg.Scylla)
	if err != nil {
		return nil, fmt.Errorf("container: scylla: %w", err)
	}
	redisClient, err := redis.NewClient(cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("container: redis: %w", err)
	}
	kafka, err := queue.NewKafka(cfg.Kafka)
	if err != nil {
		return nil, fmt.Errorf("container: kafka: %w", err)
	}

	c := &Container{
		Config:   cfg,
		Logger:   lg,
		Postgres: postgres,
		Scylla:   scylla,
		Redis:    redisClient,
		Kafka:    kafka,
	}

	sqlDB := postgres.DB()
	c.Businesses = pgrepo.NewBusinessRepository(sqlDB)
	c.Customers = pgrepo.NewCustomerRepository(sqlDB)
	c.Appointments = pgrepo.NewAppointmentRepository(sqlDB)
	c.Campaigns = pgrepo.NewCampaignRepository(sqlDB)
	c.CampaignCalls = pgrepo.NewCampaignCallRepository(sqlDB)
	c.CallLogs = scyllarepo.NewCallLogStore(scylla.Session())

	c.Provider, err = buildProvider(cfg.Telephony)
	if err != nil {
		return nil, err
	}
	if cfg.Conversation.Enabled {
		c.Convo = buildConversation(cfg.Conversation)
	}

	c.Outcomes = queue.NewOutcomePublisher(kafka, cfg.Kafka.OutcomeTopic)
	c.Slots = concurrency.NewLimiter(redisClient.Inner(), 0, cfg.Outreach.SlotTTL)
	c.Replay = replay.NewGuard(redisClient.Inner(), cfg.Webhook.ReplayGuardTTL)

	c.Sessions = callflow.NewArena()
	c.Driver = callflow.NewDriver(
		c.Sessions,
		c.Provider,
		c.Convo,
		c.Appointments,
		c.Campaigns,
		c.CampaignCalls,
		c.Customers,
		c.Businesses,
		c.CallLogs,
		c.Outcomes,
		c.Slots,
		lg,
	)

	c.Reminders = scheduler.NewReminderLoop(
		cfg.Reminder,
		c.Appointments,
		c.Customers,
		c.Businesses,
		c.CallLogs,
		c.Provider,
		lg,
	)

	evaluator := scheduler.NewEvaluator(
		c.Campaigns,
		c.CampaignCalls,
		lg,
		scheduler.NewReengagementGenerator(c.Customers, c.Appointments, c.CampaignCalls),
		scheduler.NewReviewCollectionGenerator(c.Customers, c.Appointments, c.CampaignCalls),
		scheduler.NewNoShowFollowUpGenerator(c.Customers, c.Appointments, c.CampaignCalls),
	)
	c.CampaignLoop = scheduler.NewCampaignLoop(
		cfg.Outreach,
		c.Campaigns,
		c.CampaignCalls,
		c.Customers,
		c.Businesses,
		c.CallLogs,
		c.Provider,
		evaluator,
		c.Slots,
		lg,
	)

	return c, nil
}

func buildProvider(cfg config.TelephonyConfig) (telephony.Provider, error) {
	switch strings.ToLower(cfg.ProviderName) {
	case "", "mock":
		return telephonyMock.NewProvider(), nil
	case "http":
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("container: telephony base_url required for http provider")
		}
		return telephonyHTTP.NewProvider(cfg), nil
	default:
		return nil, fmt.Errorf("container: unknown telephony provider %q", cfg.ProviderName)
	}
}

func buildConversation(cfg config.ConversationConfig) conversation.Service {
	if cfg.BaseURL == "" {
		return conversationMock.NewService()
	}
	return conversation.NewClient(cfg)
}

// EnsureTopics creates the Kafka topics this service publishes to.
func (c *Container) EnsureTopics(ctx context.Context) error {
	return c.Kafka.EnsureTopics(ctx, []string{c.Config.Kafka.OutcomeTopic}, 3, 1)
}

// Close releases all infrastructure handles.
func (c *Container) Close(ctx context.Context) {
	if err := c.Outcomes.Close(); err != nil {
		c.Logger.Warn("close outcome publisher", zap.Error(err))
	}
	if err := c.Kafka.Close(); err != nil {
		c.Logger.Warn("close kafka", zap.Error(err))
	}
	if err := c.Redis.Close(); err != nil {
		c.Logger.Warn("close redis", zap.Error(err))
	}
	if err := c.Scylla.Close(); err != nil {
		c.Logger.Warn("close scylla", zap.Error(err))
	}
	if err := c.Postgres.Close(ctx); err != nil {
		c.Logger.Warn("close postgres", zap.Error(err))
	}
	c.Logger.Sync()
}
