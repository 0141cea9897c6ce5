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

type CatalogHandler struct {
	repo   repository.CatalogRepository
	logger zerolog.Logger
}

func NewCatalogHandler(repo repository.CatalogRepository, logger zerolog.Logger) *CatalogHandler {
	return &CatalogHandler{
		repo:   repo,
		logger: logger.With().Str("handler", "catalog").Logger(),
	}
}

func (h *CatalogHandler) List(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := authz.TenantIDFromRequest(r)
	if !ok {
		http.Error(w, "Missing tenant context", http.StatusUnauthorized)
		return
	}

	catalogs, err := h.repo.ListCatalogs(r.Context(), tenantID)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list catalogs")
		http.Error(w, "Failed to list catalogs", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"catalogs": catalogs})
}

func (h *CatalogHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := authz.TenantIDFromRequest(r)
	if !ok {
		http.Error(w, "Missing tenant context", http.StatusUnauthorized)
		return
	}

	catalog, err := h.repo.GetCatalog(r.Context(), tenantID, mux.Vars(r)["catalogID"])
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			http.Error(w, "Catalog not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to get catalog", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, catalog)
}

func (h *CatalogHandler) Create(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := authz.TenantIDFromRequest(r)
	if !ok {
		http.Error(w, "Missing tenant context", http.StatusUnauthorized)
		return
	}
	userID, _ := authz.UserIDFromRequest(r)

	var payload struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	payload.Name = strings.TrimSpace(payload.Name)
	if payload.Name == "" {
		http.Error(w, "Catalog name is required", http.StatusBadRequest)
		return
	}

	created, err := h.repo.CreateCatalog(r.Context(), models.Catalog{
		TenantID: tenantID,
		UserID:   userID,
		Name:     payload.Name,
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to create catalog")
		http.Error(w, "Failed to create catalog", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}
