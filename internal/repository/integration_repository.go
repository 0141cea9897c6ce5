package repository

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/channelport/channelport-api/internal/models"
)

// ErrNotFound is returned when a row does not exist for the tenant or was
// soft-deleted.
var ErrNotFound = errors.New("not found")

type IntegrationRepository interface {
	List(tenantID string) ([]models.Integration, error)
	Get(tenantID, id string) (models.Integration, error)
	Create(integ models.Integration) (models.Integration, error)
	Update(integ models.Integration) (models.Integration, error)
	Delete(tenantID, id string) error
	SetStatus(tenantID, id string, status models.IntegrationStatus) error
	MarkSynced(tenantID, id string, at time.Time) error
	UpdateMetadata(tenantID, id string, metadata map[string]interface{}) error
}

type integrationRepository struct {
	db *sql.DB
}

func NewIntegrationRepository(db *sql.DB) IntegrationRepository {
	return &integrationRepository{db: db}
}

const integrationColumns = `id, tenant_id, COALESCE(user_id::TEXT, '') AS user_id, name, type, status, config, metadata, last_synced_at, created_at, updated_at`

func (r *integrationRepository) List(tenantID string) ([]models.Integration, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM tenant.integrations
		WHERE tenant_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC
	`, integrationColumns)

	rows, err := r.db.Query(query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var integrations []models.Integration
	for rows.Next() {
		integ, err := scanIntegration(rows)
		if err != nil {
			return nil, err
		}
		integrations = append(integrations, integ)
	}
	return integrations, rows.Err()
}

func (r *integrationRepository) Get(tenantID, id string) (models.Integration, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM tenant.integrations
		WHERE id = $1 AND tenant_id = $2 AND deleted_at IS NULL
	`, integrationColumns)

	integ, err := scanIntegration(r.db.QueryRow(query, id, tenantID))
	if err == sql.ErrNoRows {
		return models.Integration{}, ErrNotFound
	}
	return integ, err
}

func (r *integrationRepository) Create(integ models.Integration) (models.Integration, error) {
	config, metadata, err := marshalIntegrationBlobs(integ)
	if err != nil {
		return models.Integration{}, err
	}

	const query = `
		INSERT INTO tenant.integrations (tenant_id, user_id, name, type, status, config, metadata)
		VALUES ($1, NULLIF($2, '')::uuid, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`
	err = r.db.QueryRow(query,
		integ.TenantID, integ.UserID, integ.Name, integ.Type, integ.Status, config, metadata,
	).Scan(&integ.ID, &integ.CreatedAt, &integ.UpdatedAt)
	if err != nil {
		return models.Integration{}, err
	}
	return integ, nil
}

func (r *integrationRepository) Update(integ models.Integration) (models.Integration, error) {
	config, metadata, err := marshalIntegrationBlobs(integ)
	if err != nil {
		return models.Integration{}, err
	}

	const query = `
		UPDATE tenant.integrations
		SET name = $1, status = $2, config = $3, metadata = $4, updated_at = NOW()
		WHERE id = $5 AND tenant_id = $6 AND deleted_at IS NULL
		RETURNING updated_at
	`
	err = r.db.QueryRow(query,
		integ.Name, integ.Status, config, metadata, integ.ID, integ.TenantID,
	).Scan(&integ.UpdatedAt)
	if err == sql.ErrNoRows {
		return models.Integration{}, ErrNotFound
	}
	if err != nil {
		return models.Integration{}, err
	}
	return integ, nil
}

// Delete soft-deletes the integration and every task under it in one
// transaction. Runs stay as history but follow their task out of every
// listing, and run creation rejects deleted tasks.
func (r *integrationRepository) Delete(tenantID, id string) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const query = `
		UPDATE tenant.integrations
		SET deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2 AND deleted_at IS NULL
	`
	res, err := tx.Exec(query, id, tenantID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}

	const cascade = `
		UPDATE tenant.tasks
		SET deleted_at = NOW(), updated_at = NOW()
		WHERE integration_id = $1 AND tenant_id = $2 AND deleted_at IS NULL
	`
	if _, err := tx.Exec(cascade, id, tenantID); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *integrationRepository) SetStatus(tenantID, id string, status models.IntegrationStatus) error {
	const query = `
		UPDATE tenant.integrations
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND tenant_id = $3 AND deleted_at IS NULL
	`
	res, err := r.db.Exec(query, status, id, tenantID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *integrationRepository) MarkSynced(tenantID, id string, at time.Time) error {
	const query = `
		UPDATE tenant.integrations
		SET last_synced_at = $1, updated_at = NOW()
		WHERE id = $2 AND tenant_id = $3 AND deleted_at IS NULL
	`
	res, err := r.db.Exec(query, at, id, tenantID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *integrationRepository) UpdateMetadata(tenantID, id string, metadata map[string]interface{}) error {
	raw, err := json.Marshal(metadata)
	if err != nil {
		return err
	}
	const query = `
		UPDATE tenant.integrations
		SET metadata = $1, updated_at = NOW()
		WHERE id = $2 AND tenant_id = $3 AND deleted_at IS NULL
	`
	res, err := r.db.Exec(query, raw, id, tenantID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func marshalIntegrationBlobs(integ models.Integration) ([]byte, []byte, error) {
	config, err := json.Marshal(integ.Config)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal config: %w", err)
	}
	if integ.Metadata == nil {
		integ.Metadata = map[string]interface{}{}
	}
	metadata, err := json.Marshal(integ.Metadata)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return config, metadata, nil
}

func scanIntegration(scanner interface {
	Scan(dest ...interface{}) error
}) (models.Integration, error) {
	var (
		integ        models.Integration
		configRaw    []byte
		metadataRaw  []byte
		lastSyncedAt sql.NullTime
	)
	if err := scanner.Scan(
		&integ.ID,
		&integ.TenantID,
		&integ.UserID,
		&integ.Name,
		&integ.Type,
		&integ.Status,
		&configRaw,
		&metadataRaw,
		&lastSyncedAt,
		&integ.CreatedAt,
		&integ.UpdatedAt,
	); err != nil {
		return models.Integration{}, err
	}

	if len(configRaw) > 0 {
		if err := json.Unmarshal(configRaw, &integ.Config); err != nil {
			return models.Integration{}, fmt.Errorf("unmarshal config: %w", err)
		}
	}
	if len(metadataRaw) > 0 {
		if err := json.Unmarshal(metadataRaw, &integ.Metadata); err != nil {
			return models.Integration{}, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	if lastSyncedAt.Valid {
		t := lastSyncedAt.Time
		integ.LastSyncedAt = &t
	}
	return integ, nil
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
