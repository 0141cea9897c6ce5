package models

import (
	"time"
)

type IntegrationType string

const (
	IntegrationTypePrestashopAPI IntegrationType = "prestashop_api"
	IntegrationTypePrestashopDB  IntegrationType = "prestashop_db"
	IntegrationTypeFileFeed      IntegrationType = "csv_xml_feed"
)

func (t IntegrationType) IsValid() bool {
	switch t {
	case IntegrationTypePrestashopAPI, IntegrationTypePrestashopDB, IntegrationTypeFileFeed:
		return true
	default:
		return false
	}
}

func (t IntegrationType) String() string { return string(t) }

type IntegrationStatus string

const (
	IntegrationStatusInactive IntegrationStatus = "inactive"
	IntegrationStatusActive   IntegrationStatus = "active"
	IntegrationStatusError    IntegrationStatus = "error"
)

// Integration is a tenant-owned connection to an external platform.
// Config is driver-specific; secret fields inside it are stored encrypted
// by the vault and never returned in API responses.
type Integration struct {
	ID           string                 `json:"id" db:"id"`
	TenantID     string                 `json:"tenant_id" db:"tenant_id"`
	UserID       string                 `json:"user_id" db:"user_id"`
	Name         string                 `json:"name" db:"name"`
	Type         IntegrationType        `json:"type" db:"type"`
	Status       IntegrationStatus      `json:"status" db:"status"`
	Config       map[string]interface{} `json:"config" db:"config"`
	Metadata     map[string]interface{} `json:"metadata,omitempty" db:"metadata"`
	LastSyncedAt *time.Time             `json:"last_synced_at,omitempty" db:"last_synced_at"`
	CreatedAt    time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at" db:"updated_at"`
}

// RedactedConfig returns a copy of the config safe for API responses:
// encrypted secret values are replaced with a placeholder.
func (i *Integration) RedactedConfig(secretKeys []string) map[string]interface{} {
	out := make(map[string]interface{}, len(i.Config))
	for k, v := range i.Config {
		out[k] = v
	}
	for _, key := range secretKeys {
		if _, ok := out[key]; ok {
			out[key] = "********"
		}
	}
	return out
}
