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

// CustomerRepository implements repository.CustomerRepository using PostgreSQL.
type CustomerRepository struct {
	db *sqlx.DB
}

// NewCustomerRepository constructs a new repository.
func NewCustomerRepository(db *sqlx.DB) *CustomerRepository {
	return &CustomerRepository{db: db}
}

// Get fetches a customer by id.
func (r *CustomerRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Customer, error) {
	q := `SELECT id, business_id, name, phone, time_zone, created_at FROM customers WHERE id = $1`

	row := r.db.QueryRowxContext(ctx, q, id)
	var record customerRecord
	if err := row.StructScan(&record); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("customer repo: get: %w", err)
	}

	customer := record.toDomain()
	return &customer, nil
}

// ListByBusiness returns all customers under a business.
func (r *CustomerRepository) ListByBusiness(ctx context.Context, businessID uuid.UUID) ([]*domain.Customer, error) {
	rows, err := r.db.QueryxContext(ctx, `SELECT id, business_id, name, phone, time_zone, created_at
		FROM customers WHERE business_id = $1 ORDER BY created_at ASC`, businessID)
	if err != nil {
		return nil, fmt.Errorf("customer repo: list: %w", err)
	}
	defer rows.Close()

	var results []*domain.Customer
	for rows.Next() {
		var record customerRecord
		if err := rows.StructScan(&record); err != nil {
			return nil, fmt.Errorf("customer repo: scan: %w", err)
		}
		customer := record.toDomain()
		results = append(results, &customer)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("customer repo: rows err: %w", err)
	}

	return results, nil
}

type customerRecord struct {
	ID         uuid.UUID      `db:"id"`
	BusinessID uuid.UUID      `db:"business_id"`
	Name       string         `db:"name"`
	Phone      string         `db:"phone"`
	TimeZone   sql.NullString `db:"time_zone"`
	CreatedAt  time.Time      `db:"created_at"`
}

func (r customerRecord) toDomain() domain.Customer {
	return domain.Customer{
		ID:         r.ID,
		BusinessID: r.BusinessID,
		Name:       r.Name,
		Phone:      r.Phone,
		TimeZone:   r.TimeZone.String,
		CreatedAt:  r.CreatedAt,
	}
}
