package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/channelport/channelport-api/internal/models"
)

type CustomerRepository interface {
	// Upsert inserts or updates by (tenant_id, email). Returns true when
	// a new row was created.
	Upsert(ctx context.Context, customer models.Customer) (models.Customer, bool, error)
}

type customerRepository struct {
	db *sql.DB
}

func NewCustomerRepository(db *sql.DB) CustomerRepository {
	return &customerRepository{db: db}
}

func (r *customerRepository) Upsert(ctx context.Context, customer models.Customer) (models.Customer, bool, error) {
	customer.Email = strings.ToLower(strings.TrimSpace(customer.Email))

	const query = `
		INSERT INTO tenant.customers (tenant_id, email, first_name, last_name, phone)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id, email) DO UPDATE
		SET first_name = EXCLUDED.first_name,
		    last_name = EXCLUDED.last_name,
		    phone = EXCLUDED.phone,
		    updated_at = NOW()
		RETURNING id, created_at, updated_at, (xmax = 0) AS inserted
	`
	var inserted bool
	err := r.db.QueryRowContext(ctx, query,
		customer.TenantID, customer.Email, customer.FirstName, customer.LastName, customer.Phone,
	).Scan(&customer.ID, &customer.CreatedAt, &customer.UpdatedAt, &inserted)
	if err != nil {
		return models.Customer{}, false, err
	}
	return customer, inserted, nil
}
