package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures the full configuration surface for the application.
type Config struct {
	App          AppConfig          `mapstructure:"app"`
	HTTP         HTTPConfig         `mapstructure:"http"`
	Postgres     PostgresConfig     `mapstructure:"postgres"`
	Scylla       ScyllaConfig       `mapstructure:"scylla"`
	Kafka        KafkaConfig        `mapstructure:"kafka"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Telemetry    TelemetryConfig    `mapstructure:"telemetry"`
	Reminder     ReminderConfig     `mapstructure:"reminder"`
	Outreach     OutreachConfig     `mapstructure:"outreach"`
	Webhook      WebhookConfig      `mapstructure:"webhook"`
	Telephony    TelephonyConfig    `mapstructure:"telephony"`
	Conversation ConversationConfig `mapstructure:"conversation"`
}

type AppConfig struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`
	Version string `mapstructure:"version"`
}

type HTTPConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type PostgresConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

type ScyllaConfig struct {
	Hosts       []string      `mapstructure:"hosts"`
	Port        int           `mapstructure:"port"`
	Keyspace    string        `mapstructure:"keyspace"`
	Consistency string        `mapstructure:"consistency"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type KafkaConfig struct {
	Brokers      []string `mapstructure:"brokers"`
	ClientID     string   `mapstructure:"client_id"`
	OutcomeTopic string   `mapstructure:"outcome_topic"`
}

type RedisConfig struct {
	Address      string        `mapstructure:"address"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	MaxRetries   int           `mapstructure:"max_retries"`
}

type TelemetryConfig struct {
	Endpoint        string        `mapstructure:"endpoint"`
	SampleRatio     float64       `mapstructure:"sample_ratio"`
	TracingEnabled  bool          `mapstructure:"tracing_enabled"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// ReminderConfig tunes the one-off appointment reminder loop.
type ReminderConfig struct {
	TickInterval time.Duration `mapstructure:"tick_interval"`
	LookBehind   time.Duration `mapstructure:"look_behind"`
	LookAhead    time.Duration `mapstructure:"look_ahead"`
	MaxBatchSize int           `mapstructure:"max_batch_size"`
}

// OutreachConfig tunes the recurring campaign loop.
type OutreachConfig struct {
	TickInterval time.Duration `mapstructure:"tick_interval"`
	MaxBatchSize int           `mapstructure:"max_batch_size"`
	SlotTTL      time.Duration `mapstructure:"slot_ttl"`
}

// WebhookConfig governs provider callback verification.
type WebhookConfig struct {
	AuthToken          string        `mapstructure:"auth_token"`
	TimestampTolerance time.Duration `mapstructure:"timestamp_tolerance"`
	ReplayGuardTTL     time.Duration `mapstructure:"replay_guard_ttl"`
	InternalSecret     string        `mapstructure:"internal_secret"`
}

type TelephonyConfig struct {
	ProviderName   string        `mapstructure:"provider_name"`
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	CallerID       string        `mapstructure:"caller_id"`
	CallbackBase   string        `mapstructure:"callback_base"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type ConversationConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// Load reads configuration from file and environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvPrefix("OUTREACH")
	v.SetEnvKeyReplacer(NewEnvReplacer())

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: failed to read config file: %w", err)
	}

	cfg := new(Config)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// NewEnvReplacer standardizes environment variable names.
func NewEnvReplacer() *strings.Replacer {
	return strings.NewReplacer(".", "_", "-", "_")
}
