package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/channelport/channelport-api/internal/authz"
	"github.com/channelport/channelport-api/internal/driver"
	"github.com/channelport/channelport-api/internal/models"
	"github.com/channelport/channelport-api/internal/notification"
	"github.com/channelport/channelport-api/internal/repository"
	"github.com/channelport/channelport-api/internal/scheduler"
	"github.com/channelport/channelport-api/internal/vault"
)

type IntegrationHandler struct {
	repo          repository.IntegrationRepository
	registry      *driver.Registry
	vault         *vault.Vault
	notifications notification.Service
	scheduler     *scheduler.Scheduler
	logger        zerolog.Logger
}

func NewIntegrationHandler(repo repository.IntegrationRepository, registry *driver.Registry, v *vault.Vault, notifications notification.Service, sched *scheduler.Scheduler, logger zerolog.Logger) *IntegrationHandler {
	return &IntegrationHandler{
		repo:          repo,
		registry:      registry,
		vault:         v,
		notifications: notifications,
		scheduler:     sched,
		logger:        logger.With().Str("handler", "integration").Logger(),
	}
}

type integrationPayload struct {
	Name   string                 `json:"name"`
	Type   string                 `json:"type"`
	Config map[string]interface{} `json:"config"`
}

// integrationResponse is an Integration with secret config values masked.
type integrationResponse struct {
	models.Integration
	Config map[string]interface{} `json:"config"`
}

func redactIntegration(integ models.Integration) integrationResponse {
	return integrationResponse{
		Integration: integ,
		Config:      integ.RedactedConfig(vault.SecretKeys),
	}
}

// ListTypes describes the available integration types with their default
// config shape, so clients can render connection forms.
func (h *IntegrationHandler) ListTypes(w http.ResponseWriter, r *http.Request) {
	types := h.registry.Types()
	out := make([]map[string]interface{}, 0, len(types))
	for _, t := range types {
		d, err := h.registry.Make(t)
		if err != nil {
			continue
		}
		out = append(out, map[string]interface{}{
			"type":           t,
			"default_config": d.DefaultConfig(),
			"rules":          d.ValidationRules(nil),
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"types": out})
}

func (h *IntegrationHandler) List(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := authz.TenantIDFromRequest(r)
	if !ok {
		http.Error(w, "Missing tenant context", http.StatusUnauthorized)
		return
	}

	integrations, err := h.repo.List(tenantID)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list integrations")
		http.Error(w, "Failed to list integrations", http.StatusInternalServerError)
		return
	}

	out := make([]integrationResponse, 0, len(integrations))
	for _, integ := range integrations {
		out = append(out, redactIntegration(integ))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"integrations": out})
}

func (h *IntegrationHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := authz.TenantIDFromRequest(r)
	if !ok {
		http.Error(w, "Missing tenant context", http.StatusUnauthorized)
		return
	}

	integ, err := h.repo.Get(tenantID, mux.Vars(r)["integrationID"])
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			http.Error(w, "Integration not found", http.StatusNotFound)
			return
		}
		h.logger.Error().Err(err).Msg("failed to get integration")
		http.Error(w, "Failed to get integration", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, redactIntegration(integ))
}

func (h *IntegrationHandler) Create(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := authz.TenantIDFromRequest(r)
	if !ok {
		http.Error(w, "Missing tenant context", http.StatusUnauthorized)
		return
	}
	userID, _ := authz.UserIDFromRequest(r)

	var payload integrationPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}

	payload.Name = strings.TrimSpace(payload.Name)
	if payload.Name == "" {
		http.Error(w, "Integration name is required", http.StatusBadRequest)
		return
	}
	integType := models.IntegrationType(strings.TrimSpace(payload.Type))
	d, err := h.registry.Make(integType)
	if err != nil {
		http.Error(w, "Unknown integration type: "+payload.Type, http.StatusBadRequest)
		return
	}

	// Driver defaults fill in whatever the payload omitted.
	merged := d.DefaultConfig()
	for k, v := range d.SanitizeConfig(payload.Config) {
		merged[k] = v
	}
	if err := driver.ValidateConfig(d.ValidationRules(nil), merged); err != nil {
		http.Error(w, "Invalid configuration: "+err.Error(), http.StatusBadRequest)
		return
	}
	stored, err := h.vault.Prepare(merged, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to encrypt integration secrets")
		http.Error(w, "Failed to store integration", http.StatusInternalServerError)
		return
	}

	created, err := h.repo.Create(models.Integration{
		TenantID: tenantID,
		UserID:   userID,
		Name:     payload.Name,
		Type:     integType,
		Status:   models.IntegrationStatusInactive,
		Config:   stored,
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to create integration")
		http.Error(w, "Failed to create integration", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, redactIntegration(created))
}

func (h *IntegrationHandler) Update(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := authz.TenantIDFromRequest(r)
	if !ok {
		http.Error(w, "Missing tenant context", http.StatusUnauthorized)
		return
	}

	existing, err := h.repo.Get(tenantID, mux.Vars(r)["integrationID"])
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			http.Error(w, "Integration not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to load integration", http.StatusInternalServerError)
		return
	}

	var payload integrationPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}

	if name := strings.TrimSpace(payload.Name); name != "" {
		existing.Name = name
	}

	d, err := h.registry.Make(existing.Type)
	if err != nil {
		http.Error(w, "Unknown integration type", http.StatusInternalServerError)
		return
	}

	if payload.Config != nil {
		sanitized := d.SanitizeConfig(payload.Config)
		if err := driver.ValidateConfig(d.ValidationRules(&existing), sanitized); err != nil {
			http.Error(w, "Invalid configuration: "+err.Error(), http.StatusBadRequest)
			return
		}
		stored, err := h.vault.Prepare(sanitized, existing.Config)
		if err != nil {
			h.logger.Error().Err(err).Msg("failed to encrypt integration secrets")
			http.Error(w, "Failed to store integration", http.StatusInternalServerError)
			return
		}
		existing.Config = stored
	}

	updated, err := h.repo.Update(existing)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to update integration")
		http.Error(w, "Failed to update integration", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, redactIntegration(updated))
}

func (h *IntegrationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := authz.TenantIDFromRequest(r)
	if !ok {
		http.Error(w, "Missing tenant context", http.StatusUnauthorized)
		return
	}

	if err := h.repo.Delete(tenantID, mux.Vars(r)["integrationID"]); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			http.Error(w, "Integration not found", http.StatusNotFound)
			return
		}
		h.logger.Error().Err(err).Msg("failed to delete integration")
		http.Error(w, "Failed to delete integration", http.StatusInternalServerError)
		return
	}

	// Deleting an integration cascades to its tasks; drop them from the
	// in-memory schedule too.
	if h.scheduler != nil {
		if err := h.scheduler.Reload(); err != nil {
			h.logger.Error().Err(err).Msg("failed to reload schedules")
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// Test runs the driver's connection check against decrypted credentials
// and records the outcome on the integration's status.
func (h *IntegrationHandler) Test(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := authz.TenantIDFromRequest(r)
	if !ok {
		http.Error(w, "Missing tenant context", http.StatusUnauthorized)
		return
	}

	integ, err := h.repo.Get(tenantID, mux.Vars(r)["integrationID"])
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			http.Error(w, "Integration not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to load integration", http.StatusInternalServerError)
		return
	}

	d, err := h.registry.Make(integ.Type)
	if err != nil {
		http.Error(w, "Unknown integration type", http.StatusInternalServerError)
		return
	}
	revealed, err := h.vault.Reveal(integ.Config)
	if err != nil {
		h.logger.Error().Err(err).Str("integration_id", integ.ID).Msg("failed to decrypt integration config")
		http.Error(w, "Failed to decrypt integration credentials", http.StatusInternalServerError)
		return
	}

	testErr := d.TestConnection(r.Context(), revealed)
	if testErr != nil {
		if err := h.repo.SetStatus(tenantID, integ.ID, models.IntegrationStatusError); err != nil {
			h.logger.Error().Err(err).Msg("failed to record integration status")
		}
		h.notifications.NotifyConnectionTested(r.Context(), tenantID, integ.Name, false, testErr.Error())
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"status": "error",
			"error":  testErr.Error(),
		})
		return
	}

	if err := h.repo.SetStatus(tenantID, integ.ID, models.IntegrationStatusActive); err != nil {
		h.logger.Error().Err(err).Msg("failed to record integration status")
	}
	if err := h.repo.MarkSynced(tenantID, integ.ID, time.Now().UTC()); err != nil {
		h.logger.Error().Err(err).Msg("failed to record integration sync time")
	}
	h.notifications.NotifyConnectionTested(r.Context(), tenantID, integ.Name, true, "")

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
