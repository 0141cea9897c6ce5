package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/channelport/channelport-api/internal/models"
)

type OrderRepository interface {
	// Upsert inserts or updates an imported order by
	// (integration_id, external_id). Re-imports are idempotent. Returns
	// true when a new row was created.
	Upsert(ctx context.Context, tenantID, integrationID string, order models.ExternalOrder) (bool, error)
	// LatestPlacedAt returns the most recent placed_at among an
	// integration's imported orders, for incremental sync checkpoints.
	LatestPlacedAt(ctx context.Context, tenantID, integrationID string) (*time.Time, error)
}

type orderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) OrderRepository {
	return &orderRepository{db: db}
}

func (r *orderRepository) Upsert(ctx context.Context, tenantID, integrationID string, order models.ExternalOrder) (bool, error) {
	lines, err := json.Marshal(order.Lines)
	if err != nil {
		return false, fmt.Errorf("marshal order lines: %w", err)
	}

	const query = `
		INSERT INTO tenant.orders (
			tenant_id, integration_id, external_id, reference, status, payment_status,
			raw_status, raw_payment_status, currency, total_amount, total_paid,
			customer_email, customer_name, lines, placed_at, raw_data
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (integration_id, external_id) DO UPDATE
		SET reference = EXCLUDED.reference,
		    status = EXCLUDED.status,
		    payment_status = EXCLUDED.payment_status,
		    raw_status = EXCLUDED.raw_status,
		    raw_payment_status = EXCLUDED.raw_payment_status,
		    total_amount = EXCLUDED.total_amount,
		    total_paid = EXCLUDED.total_paid,
		    customer_email = EXCLUDED.customer_email,
		    customer_name = EXCLUDED.customer_name,
		    lines = EXCLUDED.lines,
		    raw_data = EXCLUDED.raw_data,
		    updated_at = NOW()
		RETURNING (xmax = 0) AS inserted
	`
	var rawData interface{}
	if len(order.RawData) > 0 {
		rawData = []byte(order.RawData)
	}

	var inserted bool
	err = r.db.QueryRowContext(ctx, query,
		tenantID, integrationID, order.ExternalID, order.Reference,
		order.Status, order.PaymentStatus, order.RawStatus, order.RawPaymentStatus,
		order.Currency, order.TotalAmount, order.TotalPaid,
		order.CustomerEmail, order.CustomerName, lines, order.PlacedAt, rawData,
	).Scan(&inserted)
	if err != nil {
		return false, err
	}
	return inserted, nil
}

func (r *orderRepository) LatestPlacedAt(ctx context.Context, tenantID, integrationID string) (*time.Time, error) {
	const query = `
		SELECT MAX(placed_at)
		FROM tenant.orders
		WHERE tenant_id = $1 AND integration_id = $2
	`
	var latest sql.NullTime
	if err := r.db.QueryRowContext(ctx, query, tenantID, integrationID).Scan(&latest); err != nil {
		return nil, err
	}
	if !latest.Valid {
		return nil, nil
	}
	t := latest.Time
	return &t, nil
}
