package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/channelport/channelport-api/internal/models"
)

type StatusMappingRepository interface {
	// ListByClass satisfies the status mapper's source interface.
	ListByClass(ctx context.Context, tenantID string, class models.StatusClass) ([]models.OrderStatus, error)
	List(ctx context.Context, tenantID string) ([]models.OrderStatus, error)
	Get(ctx context.Context, tenantID, id string) (models.OrderStatus, error)
	Create(ctx context.Context, status models.OrderStatus) (models.OrderStatus, error)
	Update(ctx context.Context, status models.OrderStatus) (models.OrderStatus, error)
	Delete(ctx context.Context, tenantID, id string) error
	// SeedDefaults provisions the built-in status set for a new tenant.
	// Idempotent: existing keys are left untouched.
	SeedDefaults(ctx context.Context, tenantID string) error
}

type statusMappingRepository struct {
	db *sql.DB
}

func NewStatusMappingRepository(db *sql.DB) StatusMappingRepository {
	return &statusMappingRepository{db: db}
}

const statusColumns = `id, tenant_id, type, key, name, color, is_active, is_default, is_final, sort_order, created_at, updated_at`

func (r *statusMappingRepository) ListByClass(ctx context.Context, tenantID string, class models.StatusClass) ([]models.OrderStatus, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM tenant.order_statuses
		WHERE tenant_id = $1 AND type = $2
		ORDER BY sort_order, key
	`, statusColumns)
	return r.query(ctx, query, tenantID, class)
}

func (r *statusMappingRepository) List(ctx context.Context, tenantID string) ([]models.OrderStatus, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM tenant.order_statuses
		WHERE tenant_id = $1
		ORDER BY type, sort_order, key
	`, statusColumns)
	return r.query(ctx, query, tenantID)
}

func (r *statusMappingRepository) query(ctx context.Context, query string, args ...interface{}) ([]models.OrderStatus, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var statuses []models.OrderStatus
	for rows.Next() {
		var s models.OrderStatus
		if err := rows.Scan(
			&s.ID, &s.TenantID, &s.Type, &s.Key, &s.Name, &s.Color,
			&s.IsActive, &s.IsDefault, &s.IsFinal, &s.SortOrder,
			&s.CreatedAt, &s.UpdatedAt,
		); err != nil {
			return nil, err
		}
		statuses = append(statuses, s)
	}
	return statuses, rows.Err()
}

func (r *statusMappingRepository) Get(ctx context.Context, tenantID, id string) (models.OrderStatus, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM tenant.order_statuses
		WHERE id = $1 AND tenant_id = $2
	`, statusColumns)

	var s models.OrderStatus
	err := r.db.QueryRowContext(ctx, query, id, tenantID).Scan(
		&s.ID, &s.TenantID, &s.Type, &s.Key, &s.Name, &s.Color,
		&s.IsActive, &s.IsDefault, &s.IsFinal, &s.SortOrder,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return models.OrderStatus{}, ErrNotFound
	}
	return s, err
}

func (r *statusMappingRepository) Create(ctx context.Context, status models.OrderStatus) (models.OrderStatus, error) {
	const query = `
		INSERT INTO tenant.order_statuses (tenant_id, type, key, name, color, is_active, is_default, is_final, sort_order)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		status.TenantID, status.Type, status.Key, status.Name, status.Color,
		status.IsActive, status.IsDefault, status.IsFinal, status.SortOrder,
	).Scan(&status.ID, &status.CreatedAt, &status.UpdatedAt)
	if err != nil {
		return models.OrderStatus{}, err
	}
	return status, nil
}

func (r *statusMappingRepository) Update(ctx context.Context, status models.OrderStatus) (models.OrderStatus, error) {
	const query = `
		UPDATE tenant.order_statuses
		SET name = $1, color = $2, is_active = $3, is_default = $4, is_final = $5, sort_order = $6, updated_at = NOW()
		WHERE id = $7 AND tenant_id = $8
		RETURNING updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		status.Name, status.Color, status.IsActive, status.IsDefault,
		status.IsFinal, status.SortOrder, status.ID, status.TenantID,
	).Scan(&status.UpdatedAt)
	if err == sql.ErrNoRows {
		return models.OrderStatus{}, ErrNotFound
	}
	if err != nil {
		return models.OrderStatus{}, err
	}
	return status, nil
}

func (r *statusMappingRepository) Delete(ctx context.Context, tenantID, id string) error {
	// Default statuses are the mapper's fallback target and must not be
	// removable.
	const query = `
		DELETE FROM tenant.order_statuses
		WHERE id = $1 AND tenant_id = $2 AND is_default = FALSE
	`
	res, err := r.db.ExecContext(ctx, query, id, tenantID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// defaultStatusSeed is the status set every new tenant starts with. The
// payment rows cover the full classifier output range so payment mapping
// never falls through.
var defaultStatusSeed = []models.OrderStatus{
	{Type: models.StatusClassOrder, Key: "new", Name: "New", Color: "#2196f3", IsActive: true, IsDefault: true, SortOrder: 10},
	{Type: models.StatusClassOrder, Key: "processing", Name: "Processing", Color: "#ff9800", IsActive: true, SortOrder: 20},
	{Type: models.StatusClassOrder, Key: "shipped", Name: "Shipped", Color: "#9c27b0", IsActive: true, SortOrder: 30},
	{Type: models.StatusClassOrder, Key: "delivered", Name: "Delivered", Color: "#4caf50", IsActive: true, IsFinal: true, SortOrder: 40},
	{Type: models.StatusClassOrder, Key: "cancelled", Name: "Cancelled", Color: "#f44336", IsActive: true, IsFinal: true, SortOrder: 50},
	{Type: models.StatusClassPayment, Key: models.PaymentStatusPending, Name: "Pending", Color: "#9e9e9e", IsActive: true, IsDefault: true, SortOrder: 10},
	{Type: models.StatusClassPayment, Key: models.PaymentStatusPaid, Name: "Paid", Color: "#4caf50", IsActive: true, IsFinal: true, SortOrder: 20},
	{Type: models.StatusClassPayment, Key: models.PaymentStatusPartiallyPaid, Name: "Partially paid", Color: "#8bc34a", IsActive: true, SortOrder: 30},
	{Type: models.StatusClassPayment, Key: models.PaymentStatusRefunded, Name: "Refunded", Color: "#607d8b", IsActive: true, IsFinal: true, SortOrder: 40},
	{Type: models.StatusClassPayment, Key: models.PaymentStatusPartiallyRefunded, Name: "Partially refunded", Color: "#795548", IsActive: true, SortOrder: 50},
	{Type: models.StatusClassPayment, Key: models.PaymentStatusError, Name: "Payment error", Color: "#f44336", IsActive: true, SortOrder: 60},
}

func (r *statusMappingRepository) SeedDefaults(ctx context.Context, tenantID string) error {
	const query = `
		INSERT INTO tenant.order_statuses (tenant_id, type, key, name, color, is_active, is_default, is_final, sort_order)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (tenant_id, type, key) DO NOTHING
	`
	for _, s := range defaultStatusSeed {
		if _, err := r.db.ExecContext(ctx, query,
			tenantID, s.Type, s.Key, s.Name, s.Color,
			s.IsActive, s.IsDefault, s.IsFinal, s.SortOrder,
		); err != nil {
			return fmt.Errorf("seed status %s/%s: %w", s.Type, s.Key, err)
		}
	}
	return nil
}
