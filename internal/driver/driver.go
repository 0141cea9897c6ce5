package driver

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/channelport/channelport-api/internal/models"
	"github.com/channelport/channelport-api/internal/statusmap"
)

var (
	ErrUnknownDriver          = errors.New("driver: no driver registered for integration type")
	ErrInvalidDriver          = errors.New("driver: registered driver does not satisfy the contract")
	ErrOrderImportUnsupported = errors.New("driver: order import not supported by this integration type")
)

// Rules declares per-field validation constraints for a driver's config
// payload, as validator tag expressions keyed by config field. Rules may
// differ between create and update (secrets required only on create).
type Rules map[string]string

// Driver is the contract every integration platform implements. One
// implementation exists per IntegrationType; the task/run pipeline never
// branches on the type itself.
type Driver interface {
	// Type identifies which integration type this driver serves.
	Type() models.IntegrationType

	// ValidationRules returns the config constraints. existing is nil on
	// create; on update secrets already stored become optional.
	ValidationRules(existing *models.Integration) Rules

	// DefaultConfig returns the seed structure for new integrations.
	DefaultConfig() map[string]interface{}

	// SanitizeConfig normalizes the payload and strips unknown keys.
	// Idempotent: sanitize(sanitize(x)) == sanitize(x).
	SanitizeConfig(cfg map[string]interface{}) map[string]interface{}

	// TestConnection performs a lightweight reachability/auth check using
	// decrypted config. A nil error means the platform is reachable.
	TestConnection(ctx context.Context, cfg map[string]interface{}) error
}

// OrderImporter is the optional extended capability for platforms that
// support pulling orders. Status vocabulary and payment rules are exposed
// for the status mapper; the driver itself never touches tenant status rows.
type OrderImporter interface {
	Driver

	FetchOrders(ctx context.Context, cfg map[string]interface{}, opts models.OrderFetchOptions) (*models.OrderPage, error)
	FetchOrderDetails(ctx context.Context, cfg map[string]interface{}, externalID string) (*models.ExternalOrder, error)

	// Translation returns the platform's status translation table,
	// including any per-integration overrides carried in cfg.
	Translation(cfg map[string]interface{}) statusmap.Translation
	// PaymentRules returns the platform's payment classification rules.
	PaymentRules(cfg map[string]interface{}) statusmap.PaymentRules
}

// LastSyncDate reads the incremental-import checkpoint off an integration.
func LastSyncDate(integration *models.Integration) *time.Time {
	raw, ok := integration.Metadata["last_sync_date"].(string)
	if !ok || raw == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil
	}
	return &t
}

// SetLastSyncDate stores the incremental-import checkpoint on an integration.
func SetLastSyncDate(integration *models.Integration, t time.Time) {
	if integration.Metadata == nil {
		integration.Metadata = make(map[string]interface{}, 1)
	}
	integration.Metadata["last_sync_date"] = t.UTC().Format(time.RFC3339)
}

var validate = validator.New()

// ValidateConfig evaluates a config payload against a driver's rules.
// Violations are collected into a single error listing every failing field.
func ValidateConfig(rules Rules, cfg map[string]interface{}) error {
	var failed []string
	for field, tag := range rules {
		if tag == "" {
			continue
		}
		if err := validate.Var(cfg[field], tag); err != nil {
			failed = append(failed, field)
		}
	}
	if len(failed) > 0 {
		return errors.Errorf("invalid configuration fields: %s", strings.Join(failed, ", "))
	}
	return nil
}

// sanitizeString trims a string-valued config field.
func sanitizeString(cfg map[string]interface{}, key string) (string, bool) {
	raw, ok := cfg[key]
	if !ok {
		return "", false
	}
	s, ok := raw.(string)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(s), true
}
