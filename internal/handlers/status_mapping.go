package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/channelport/channelport-api/internal/authz"
	"github.com/channelport/channelport-api/internal/models"
	"github.com/channelport/channelport-api/internal/repository"
)

type StatusMappingHandler struct {
	repo   repository.StatusMappingRepository
	logger zerolog.Logger
}

func NewStatusMappingHandler(repo repository.StatusMappingRepository, logger zerolog.Logger) *StatusMappingHandler {
	return &StatusMappingHandler{
		repo:   repo,
		logger: logger.With().Str("handler", "status_mapping").Logger(),
	}
}

func (h *StatusMappingHandler) List(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := authz.TenantIDFromRequest(r)
	if !ok {
		http.Error(w, "Missing tenant context", http.StatusUnauthorized)
		return
	}

	statuses, err := h.repo.List(r.Context(), tenantID)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list statuses")
		http.Error(w, "Failed to list statuses", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"statuses": statuses})
}

func (h *StatusMappingHandler) Create(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := authz.TenantIDFromRequest(r)
	if !ok {
		http.Error(w, "Missing tenant context", http.StatusUnauthorized)
		return
	}

	var status models.OrderStatus
	if err := json.NewDecoder(r.Body).Decode(&status); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	status.TenantID = tenantID
	status.Key = strings.ToLower(strings.TrimSpace(status.Key))
	status.Name = strings.TrimSpace(status.Name)

	if !status.Type.IsValid() {
		http.Error(w, "Status type must be order or payment", http.StatusBadRequest)
		return
	}
	if status.Key == "" || status.Name == "" {
		http.Error(w, "Status key and name are required", http.StatusBadRequest)
		return
	}

	created, err := h.repo.Create(r.Context(), status)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate") {
			http.Error(w, "Status key already exists", http.StatusConflict)
			return
		}
		h.logger.Error().Err(err).Msg("failed to create status")
		http.Error(w, "Failed to create status", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *StatusMappingHandler) Update(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := authz.TenantIDFromRequest(r)
	if !ok {
		http.Error(w, "Missing tenant context", http.StatusUnauthorized)
		return
	}

	existing, err := h.repo.Get(r.Context(), tenantID, mux.Vars(r)["statusID"])
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			http.Error(w, "Status not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to load status", http.StatusInternalServerError)
		return
	}

	var status models.OrderStatus
	if err := json.NewDecoder(r.Body).Decode(&status); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	// Type and key are immutable; imports may already reference them.
	status.ID = existing.ID
	status.TenantID = tenantID
	status.Type = existing.Type
	status.Key = existing.Key
	status.Name = strings.TrimSpace(status.Name)
	if status.Name == "" {
		http.Error(w, "Status name is required", http.StatusBadRequest)
		return
	}
	if existing.IsDefault && !status.IsDefault {
		http.Error(w, "Default status cannot be demoted", http.StatusConflict)
		return
	}

	updated, err := h.repo.Update(r.Context(), status)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			http.Error(w, "Status not found", http.StatusNotFound)
			return
		}
		h.logger.Error().Err(err).Msg("failed to update status")
		http.Error(w, "Failed to update status", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *StatusMappingHandler) Delete(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := authz.TenantIDFromRequest(r)
	if !ok {
		http.Error(w, "Missing tenant context", http.StatusUnauthorized)
		return
	}

	statusID := mux.Vars(r)["statusID"]
	err := h.repo.Delete(r.Context(), tenantID, statusID)
	if err == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if errors.Is(err, repository.ErrNotFound) {
		// The delete skips default rows; check whether that's why.
		if existing, getErr := h.repo.Get(r.Context(), tenantID, statusID); getErr == nil && existing.IsDefault {
			http.Error(w, "Default status cannot be deleted", http.StatusConflict)
			return
		}
		http.Error(w, "Status not found", http.StatusNotFound)
		return
	}
	h.logger.Error().Err(err).Msg("failed to delete status")
	http.Error(w, "Failed to delete status", http.StatusInternalServerError)
}
