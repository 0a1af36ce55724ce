package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/acme/voice-outreach/internal/domain"
	"github.com/acme/voice-outreach/internal/repository"
)

// BusinessRepository implements repository.BusinessRepository using PostgreSQL.
type BusinessRepository struct {
	db *sqlx.DB
}

// NewBusinessRepository constructs a new repository.
func NewBusinessRepository(db *sqlx.DB) *BusinessRepository {
	return &BusinessRepository{db: db}
}

// Get fetches a business by id.
func (r *BusinessRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Business, error) {
	q := `SELECT id, name, category, time_zone, phone, created_at FROM businesses WHERE id = $1`

	row := r.db.QueryRowxContext(ctx, q, id)
	var record businessRecord
	if err := row.StructScan(&record); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("business repo: get: %w", err)
	}

	business := record.toDomain()
	return &business, nil
}

type businessRecord struct {
	ID        uuid.UUID      `db:"id"`
	Name      string         `db:"name"`
	Category  sql.NullString `db:"category"`
	TimeZone  string         `db:"time_zone"`
	Phone     sql.NullString `db:"phone"`
	CreatedAt time.Time      `db:"created_at"`
}

func (r businessRecord) toDomain() domain.Business {
	return domain.Business{
		ID:        r.ID,
		Name:      r.Name,
		Category:  r.Category.String,
		TimeZone:  r.TimeZone,
		Phone:     r.Phone.String,
		CreatedAt: r.CreatedAt,
	}
}
