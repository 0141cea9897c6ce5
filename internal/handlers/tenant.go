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

type TenantHandler struct {
	tenants  repository.TenantRepository
	users    repository.UserRepository
	statuses repository.StatusMappingRepository
	logger   zerolog.Logger
}

func NewTenantHandler(tenants repository.TenantRepository, users repository.UserRepository, statuses repository.StatusMappingRepository, logger zerolog.Logger) *TenantHandler {
	return &TenantHandler{
		tenants:  tenants,
		users:    users,
		statuses: statuses,
		logger:   logger.With().Str("handler", "tenant").Logger(),
	}
}

func (h *TenantHandler) CreateTenant(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	payload.Name = strings.TrimSpace(payload.Name)
	if payload.Name == "" {
		http.Error(w, "Tenant name is required", http.StatusBadRequest)
		return
	}

	tenant, err := h.tenants.CreateTenant(payload.Name)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate") {
			http.Error(w, "Tenant name already exists", http.StatusConflict)
			return
		}
		http.Error(w, "Failed to create tenant: "+err.Error(), http.StatusInternalServerError)
		return
	}

	// New tenants get the built-in order and payment status set so imports
	// can map statuses immediately.
	if err := h.statuses.SeedDefaults(r.Context(), tenant.ID); err != nil {
		h.logger.Error().Err(err).Str("tenant_id", tenant.ID).Msg("failed to seed default statuses")
	}

	writeJSON(w, http.StatusCreated, tenant)
}

func (h *TenantHandler) AddUser(w http.ResponseWriter, r *http.Request) {
	requesterRoles, _ := authz.RolesFromRequest(r)
	isSuperAdmin := models.HasAtLeast(requesterRoles, models.RoleSuperAdmin)

	tenantID := mux.Vars(r)["tenantID"]
	if tenantID == "" {
		http.Error(w, "Tenant ID is required", http.StatusBadRequest)
		return
	}

	if !isSuperAdmin {
		if tid, ok := authz.TenantIDFromRequest(r); !ok || tid != tenantID {
			http.Error(w, "insufficient permissions for tenant", http.StatusForbidden)
			return
		}
	}

	if _, err := h.tenants.GetTenantByID(tenantID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			http.Error(w, "Tenant not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to load tenant: "+err.Error(), http.StatusInternalServerError)
		return
	}

	var payload struct {
		Email     string   `json:"email"`
		Password  string   `json:"password"`
		FirstName string   `json:"first_name"`
		LastName  string   `json:"last_name"`
		Role      string   `json:"role"`
		Roles     []string `json:"roles"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}

	payload.Email = strings.TrimSpace(payload.Email)
	if payload.Email == "" || payload.Password == "" {
		http.Error(w, "Email and password are required", http.StatusBadRequest)
		return
	}

	var roles []models.UserRole
	if len(payload.Roles) > 0 {
		for _, roleStr := range payload.Roles {
			roles = append(roles, models.UserRole(strings.ToLower(strings.TrimSpace(roleStr))))
		}
	} else if payload.Role != "" {
		roles = []models.UserRole{models.UserRole(strings.ToLower(strings.TrimSpace(payload.Role)))}
	} else {
		roles = []models.UserRole{models.RoleViewer}
	}
	roles = models.NormalizeRoles(roles)
	if !models.IsValidRoleList(roles) {
		http.Error(w, "Invalid roles", http.StatusBadRequest)
		return
	}
	if !isSuperAdmin && models.HasAtLeast(roles, models.RoleSuperAdmin) {
		http.Error(w, "insufficient permissions to assign role", http.StatusForbidden)
		return
	}

	user, err := h.users.CreateUser(tenantID, payload.Email, payload.Password, strings.TrimSpace(payload.FirstName), strings.TrimSpace(payload.LastName), roles)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate") {
			http.Error(w, "User already exists", http.StatusConflict)
			return
		}
		http.Error(w, "Failed to create user: "+err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, struct {
		ID       string            `json:"id"`
		TenantID string            `json:"tenant_id"`
		Email    string            `json:"email"`
		IsActive bool              `json:"is_active"`
		Roles    []models.UserRole `json:"roles"`
	}{
		ID:       user.ID,
		TenantID: user.TenantID,
		Email:    user.Email,
		IsActive: user.IsActive,
		Roles:    user.Roles,
	})
}
