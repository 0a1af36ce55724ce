package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"

	"github.com/acme/voice-outreach/internal/domain"
	"github.com/acme/voice-outreach/internal/repository"
)

// CampaignRepository implements repository.CampaignRepository using PostgreSQL.
type CampaignRepository struct {
	db *sqlx.DB
}

// NewCampaignRepository constructs a new repository.
func NewCampaignRepository(db *sqlx.DB) *CampaignRepository {
	return &CampaignRepository{db: db}
}

// Create inserts a new campaign. The unique index on (business_id, campaign_type)
// surfaces as ErrConflict.
func (r *CampaignRepository) Create(ctx context.Context, campaign *domain.Campaign) error {
	q := `INSERT INTO campaigns (
		id, business_id, campaign_type, enabled, window_start_minutes, window_end_minutes,
		allowed_weekdays, max_concurrent_calls, min_call_spacing_seconds, cycle_frequency_days,
		last_run_at, next_run_at, settings, created_at, updated_at
	) VALUES (
		:id, :business_id, :campaign_type, :enabled, :window_start_minutes, :window_end_minutes,
		:allowed_weekdays, :max_concurrent_calls, :min_call_spacing_seconds, :cycle_frequency_days,
		:last_run_at, :next_run_at, :settings, :created_at, :updated_at
	)`

	settings, err := json.Marshal(campaign.Settings)
	if err != nil {
		return fmt.Errorf("campaign repo: marshal settings: %w", err)
	}

	params := map[string]any{
		"id":                       campaign.ID,
		"business_id":              campaign.BusinessID,
		"campaign_type":            campaign.Type,
		"enabled":                  campaign.Enabled,
		"window_start_minutes":     campaign.WindowStartMinutes,
		"window_end_minutes":       campaign.WindowEndMinutes,
		"allowed_weekdays":         encodeWeekdays(campaign.AllowedWeekdays),
		"max_concurrent_calls":     campaign.MaxConcurrentCalls,
		"min_call_spacing_seconds": int64(campaign.MinCallSpacing.Seconds()),
		"cycle_frequency_days":     campaign.CycleFrequencyDays,
		"last_run_at":              campaign.LastRunAt,
		"next_run_at":              campaign.NextRunAt,
		"settings":                 settings,
		"created_at":               campaign.CreatedAt,
		"updated_at":               campaign.UpdatedAt,
	}

	if _, err := r.db.NamedExecContext(ctx, q, params); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return repository.ErrConflict
		}
		return fmt.Errorf("campaign repo: insert: %w", err)
	}

	return nil
}

// Get fetches a campaign by id.
func (r *CampaignRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Campaign, error) {
	row := r.db.QueryRowxContext(ctx, selectCampaign+` WHERE id = $1`, id)
	var record campaignRecord
	if err := row.StructScan(&record); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("campaign repo: get: %w", err)
	}

	campaign := record.toDomain()
	return &campaign, nil
}

// ListEnabled returns campaigns eligible for dispatch and evaluation.
func (r *CampaignRepository) ListEnabled(ctx context.Context, limit int) ([]*domain.Campaign, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryxContext(ctx, selectCampaign+`
		WHERE enabled = true ORDER BY updated_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("campaign repo: list enabled: %w", err)
	}
	defer rows.Close()

	var results []*domain.Campaign
	for rows.Next() {
		var record campaignRecord
		if err := rows.StructScan(&record); err != nil {
			return nil, fmt.Errorf("campaign repo: scan: %w", err)
		}
		campaign := record.toDomain()
		results = append(results, &campaign)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("campaign repo: rows err: %w", err)
	}

	return results, nil
}

// UpdateRunWindow advances the self-scheduling timestamps.
func (r *CampaignRepository) UpdateRunWindow(ctx context.Context, id uuid.UUID, lastRun, nextRun time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE campaigns SET last_run_at = $1, next_run_at = $2, updated_at = now() WHERE id = $3`,
		lastRun, nextRun, id)
	if err != nil {
		return fmt.Errorf("campaign repo: update run window: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("campaign repo: rows affected: %w", err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

const selectCampaign = `SELECT id, business_id, campaign_type, enabled, window_start_minutes, window_end_minutes,
	allowed_weekdays, max_concurrent_calls, min_call_spacing_seconds, cycle_frequency_days,
	last_run_at, next_run_at, settings, created_at, updated_at
	FROM campaigns`

type campaignRecord struct {
	ID                    uuid.UUID    `db:"id"`
	BusinessID            uuid.UUID    `db:"business_id"`
	CampaignType          string       `db:"campaign_type"`
	Enabled               bool         `db:"enabled"`
	WindowStartMinutes    int          `db:"window_start_minutes"`
	WindowEndMinutes      int          `db:"window_end_minutes"`
	AllowedWeekdays       []byte       `db:"allowed_weekdays"`
	MaxConcurrentCalls    int          `db:"max_concurrent_calls"`
	MinCallSpacingSeconds int64        `db:"min_call_spacing_seconds"`
	CycleFrequencyDays    int          `db:"cycle_frequency_days"`
	LastRunAt             sql.NullTime `db:"last_run_at"`
	NextRunAt             sql.NullTime `db:"next_run_at"`
	Settings              []byte       `db:"settings"`
	CreatedAt             time.Time    `db:"created_at"`
	UpdatedAt             time.Time    `db:"updated_at"`
}

func (r campaignRecord) toDomain() domain.Campaign {
	var settings map[string]any
	_ = json.Unmarshal(r.Settings, &settings)

	campaign := domain.Campaign{
		ID:                 r.ID,
		BusinessID:         r.BusinessID,
		Type:               domain.CampaignType(r.CampaignType),
		Enabled:            r.Enabled,
		WindowStartMinutes: r.WindowStartMinutes,
		WindowEndMinutes:   r.WindowEndMinutes,
		AllowedWeekdays:    decodeWeekdays(r.AllowedWeekdays),
		MaxConcurrentCalls: r.MaxConcurrentCalls,
		MinCallSpacing:     time.Duration(r.MinCallSpacingSeconds) * time.Second,
		CycleFrequencyDays: r.CycleFrequencyDays,
		Settings:           settings,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
	if r.LastRunAt.Valid {
		t := r.LastRunAt.Time
		campaign.LastRunAt = &t
	}
	if r.NextRunAt.Valid {
		t := r.NextRunAt.Time
		campaign.NextRunAt = &t
	}
	return campaign
}

func encodeWeekdays(days []time.Weekday) []byte {
	ints := make([]int, 0, len(days))
	for _, d := range days {
		ints = append(ints, int(d))
	}
	raw, _ := json.Marshal(ints)
	return raw
}

func decodeWeekdays(raw []byte) []time.Weekday {
	var ints []int
	_ = json.Unmarshal(raw, &ints)
	days := make([]time.Weekday, 0, len(ints))
	for _, d := range ints {
		days = append(days, time.Weekday(d))
	}
	return days
}
