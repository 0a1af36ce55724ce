package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/acme/voice-outreach/internal/domain"
	"github.com/acme/voice-outreach/internal/repository"
)

// CampaignCallRepository implements repository.CampaignCallRepository using PostgreSQL.
type CampaignCallRepository struct {
	db *sqlx.DB
}

// NewCampaignCallRepository constructs the repository.
func NewCampaignCallRepository(db *sqlx.DB) *CampaignCallRepository {
	return &CampaignCallRepository{db: db}
}

// Insert writes a batch of campaign calls atomically.
func (r *CampaignCallRepository) Insert(ctx context.Context, calls []*domain.CampaignCall) error {
	if len(calls) == 0 {
		return nil
	}

	query := `INSERT INTO campaign_calls (
		id, campaign_id, customer_id, status, scheduled_for, result, created_at, updated_at
	) VALUES (:id, :campaign_id, :customer_id, :status, :scheduled_for, :result, :created_at, :updated_at)
	ON CONFLICT (id) DO NOTHING`

	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		for _, c := range calls {
			result, err := json.Marshal(c.Result)
			if err != nil {
				return fmt.Errorf("campaign calls: marshal result: %w", err)
			}
			params := map[string]any{
				"id":            c.ID,
				"campaign_id":   c.CampaignID,
				"customer_id":   c.CustomerID,
				"status":        c.Status,
				"scheduled_for": c.ScheduledFor,
				"result":        result,
				"created_at":    c.CreatedAt,
				"updated_at":    c.UpdatedAt,
			}
			if _, err := tx.NamedExecContext(ctx, query, params); err != nil {
				return fmt.Errorf("campaign calls: insert: %w", err)
			}
		}
		return nil
	})
}

// Get fetches a campaign call by id.
func (r *CampaignCallRepository) Get(ctx context.Context, id uuid.UUID) (*domain.CampaignCall, error) {
	row := r.db.QueryRowxContext(ctx, selectCampaignCall+` WHERE id = $1`, id)
	var record campaignCallRecord
	if err := row.StructScan(&record); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("campaign calls: get: %w", err)
	}

	call := record.toDomain()
	return &call, nil
}

// ListQueuedDue returns queued calls due for dispatch, earliest first.
func (r *CampaignCallRepository) ListQueuedDue(ctx context.Context, campaignID uuid.UUID, now time.Time, limit int) ([]*domain.CampaignCall, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryxContext(ctx, selectCampaignCall+`
		WHERE campaign_id = $1 AND status = $2 AND scheduled_for <= $3
		ORDER BY scheduled_for ASC
		LIMIT $4`, campaignID, domain.CampaignCallStatusQueued, now, limit)
	if err != nil {
		return nil, fmt.Errorf("campaign calls: list queued: %w", err)
	}
	defer rows.Close()

	var results []*domain.CampaignCall
	for rows.Next() {
		var record campaignCallRecord
		if err := rows.StructScan(&record); err != nil {
			return nil, fmt.Errorf("campaign calls: scan: %w", err)
		}
		call := record.toDomain()
		results = append(results, &call)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("campaign calls: rows err: %w", err)
	}

	return results, nil
}

// CountInProgress counts currently dispatched calls for the campaign.
func (r *CampaignCallRepository) CountInProgress(ctx context.Context, campaignID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRowxContext(ctx,
		`SELECT COUNT(*) FROM campaign_calls WHERE campaign_id = $1 AND status = $2`,
		campaignID, domain.CampaignCallStatusInProgress).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("campaign calls: count in progress: %w", err)
	}
	return count, nil
}

// LastActivityAt finds the most recent dispatch or completion instant.
func (r *CampaignCallRepository) LastActivityAt(ctx context.Context, campaignID uuid.UUID) (*time.Time, error) {
	var last sql.NullTime
	err := r.db.QueryRowxContext(ctx,
		`SELECT MAX(updated_at) FROM campaign_calls WHERE campaign_id = $1 AND status IN ($2, $3, $4)`,
		campaignID, domain.CampaignCallStatusInProgress, domain.CampaignCallStatusCompleted, domain.CampaignCallStatusFailed).Scan(&last)
	if err != nil {
		return nil, fmt.Errorf("campaign calls: last activity: %w", err)
	}
	if !last.Valid {
		return nil, nil
	}
	t := last.Time
	return &t, nil
}

// Claim performs the atomic queued -> in_progress transition. Zero rows
// affected means another replica won the claim.
func (r *CampaignCallRepository) Claim(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE campaign_calls SET status = $1, updated_at = now() WHERE id = $2 AND status = $3`,
		domain.CampaignCallStatusInProgress, id, domain.CampaignCallStatusQueued)
	if err != nil {
		return false, fmt.Errorf("campaign calls: claim: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("campaign calls: rows affected: %w", err)
	}
	return n == 1, nil
}

// SetStatus updates call status and merges result data when provided.
func (r *CampaignCallRepository) SetStatus(ctx context.Context, id uuid.UUID, status domain.CampaignCallStatus, result map[string]any) error {
	var res sql.Result
	var err error
	if result != nil {
		raw, merr := json.Marshal(result)
		if merr != nil {
			return fmt.Errorf("campaign calls: marshal result: %w", merr)
		}
		res, err = r.db.ExecContext(ctx,
			`UPDATE campaign_calls SET status = $1, result = COALESCE(result, '{}'::jsonb) || $2::jsonb, updated_at = now() WHERE id = $3`,
			status, raw, id)
	} else {
		res, err = r.db.ExecContext(ctx,
			`UPDATE campaign_calls SET status = $1, updated_at = now() WHERE id = $2`, status, id)
	}
	if err != nil {
		return fmt.Errorf("campaign calls: set status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("campaign calls: rows affected: %w", err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ContactedCustomerIDs returns customers touched by this campaign since the given instant.
func (r *CampaignCallRepository) ContactedCustomerIDs(ctx context.Context, campaignID uuid.UUID, since time.Time) (map[uuid.UUID]struct{}, error) {
	rows, err := r.db.QueryxContext(ctx,
		`SELECT DISTINCT customer_id FROM campaign_calls WHERE campaign_id = $1 AND created_at >= $2`,
		campaignID, since)
	if err != nil {
		return nil, fmt.Errorf("campaign calls: contacted customers: %w", err)
	}
	defer rows.Close()

	contacted := make(map[uuid.UUID]struct{})
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("campaign calls: scan customer id: %w", err)
		}
		contacted[id] = struct{}{}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("campaign calls: rows err: %w", err)
	}

	return contacted, nil
}

const selectCampaignCall = `SELECT id, campaign_id, customer_id, status, scheduled_for, result, created_at, updated_at
	FROM campaign_calls`

type campaignCallRecord struct {
	ID           uuid.UUID `db:"id"`
	CampaignID   uuid.UUID `db:"campaign_id"`
	CustomerID   uuid.UUID `db:"customer_id"`
	Status       string    `db:"status"`
	ScheduledFor time.Time `db:"scheduled_for"`
	Result       []byte    `db:"result"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (r campaignCallRecord) toDomain() domain.CampaignCall {
	var result map[string]any
	_ = json.Unmarshal(r.Result, &result)

	return domain.CampaignCall{
		ID:           r.ID,
		CampaignID:   r.CampaignID,
		CustomerID:   r.CustomerID,
		Status:       domain.CampaignCallStatus(r.Status),
		ScheduledFor: r.ScheduledFor,
		Result:       result,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}
