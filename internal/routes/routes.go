package routes

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/channelport/channelport-api/internal/authz"
	"github.com/channelport/channelport-api/internal/handlers"
	"github.com/channelport/channelport-api/internal/models"
)

// NewRouter sets up the API routes.
func NewRouter(
	auth *handlers.AuthHandler,
	integrations *handlers.IntegrationHandler,
	tasks *handlers.TaskHandler,
	runs *handlers.RunHandler,
	statuses *handlers.StatusMappingHandler,
	catalogs *handlers.CatalogHandler,
	tenants *handlers.TenantHandler,
	notifications *handlers.NotificationHandler,
) *mux.Router {
	router := mux.NewRouter()

	// Health check route
	router.HandleFunc("/health", handlers.HealthCheck).Methods(http.MethodGet)

	// Public auth endpoints
	router.HandleFunc("/api/signup", auth.SignUp).Methods(http.MethodPost)
	router.HandleFunc("/api/login", auth.Login).Methods(http.MethodPost)

	// Everything below requires a valid token.
	api := router.PathPrefix("/api").Subrouter()
	api.Use(auth.JWTMiddleware)

	edit := authz.RequireRole(models.RoleEditor)
	admin := authz.RequireRole(models.RoleAdmin)

	// Integrations
	api.HandleFunc("/integrations/types", integrations.ListTypes).Methods(http.MethodGet)
	api.HandleFunc("/integrations", integrations.List).Methods(http.MethodGet)
	api.Handle("/integrations", edit(http.HandlerFunc(integrations.Create))).Methods(http.MethodPost)
	api.HandleFunc("/integrations/{integrationID}", integrations.Get).Methods(http.MethodGet)
	api.Handle("/integrations/{integrationID}", edit(http.HandlerFunc(integrations.Update))).Methods(http.MethodPut)
	api.Handle("/integrations/{integrationID}", admin(http.HandlerFunc(integrations.Delete))).Methods(http.MethodDelete)
	api.Handle("/integrations/{integrationID}/test", edit(http.HandlerFunc(integrations.Test))).Methods(http.MethodPost)

	// Tasks
	api.HandleFunc("/tasks", tasks.List).Methods(http.MethodGet)
	api.Handle("/tasks", edit(http.HandlerFunc(tasks.Create))).Methods(http.MethodPost)
	api.HandleFunc("/tasks/{taskID}", tasks.Get).Methods(http.MethodGet)
	api.Handle("/tasks/{taskID}", edit(http.HandlerFunc(tasks.Update))).Methods(http.MethodPut)
	api.Handle("/tasks/{taskID}", admin(http.HandlerFunc(tasks.Delete))).Methods(http.MethodDelete)
	api.Handle("/tasks/{taskID}/headers", edit(http.HandlerFunc(tasks.RefreshHeaders))).Methods(http.MethodPost)
	api.Handle("/tasks/{taskID}/run", edit(http.HandlerFunc(tasks.Run))).Methods(http.MethodPost)

	// Runs
	api.HandleFunc("/runs", runs.List).Methods(http.MethodGet)
	api.HandleFunc("/runs/stats", runs.Stats).Methods(http.MethodGet)
	api.HandleFunc("/runs/{runID}", runs.Get).Methods(http.MethodGet)
	api.Handle("/runs/{runID}/cancel", edit(http.HandlerFunc(runs.Cancel))).Methods(http.MethodPost)

	// Order and payment statuses
	api.HandleFunc("/statuses", statuses.List).Methods(http.MethodGet)
	api.Handle("/statuses", edit(http.HandlerFunc(statuses.Create))).Methods(http.MethodPost)
	api.Handle("/statuses/{statusID}", edit(http.HandlerFunc(statuses.Update))).Methods(http.MethodPut)
	api.Handle("/statuses/{statusID}", admin(http.HandlerFunc(statuses.Delete))).Methods(http.MethodDelete)

	// Catalogs
	api.HandleFunc("/catalogs", catalogs.List).Methods(http.MethodGet)
	api.Handle("/catalogs", edit(http.HandlerFunc(catalogs.Create))).Methods(http.MethodPost)
	api.HandleFunc("/catalogs/{catalogID}", catalogs.Get).Methods(http.MethodGet)

	// Tenants
	api.Handle("/tenants", authz.RequireRoleHandler(models.RoleSuperAdmin, http.HandlerFunc(tenants.CreateTenant))).Methods(http.MethodPost)
	api.Handle("/tenants/{tenantID}/users", admin(http.HandlerFunc(tenants.AddUser))).Methods(http.MethodPost)

	// Notifications
	api.HandleFunc("/notifications", notifications.List).Methods(http.MethodGet)
	api.HandleFunc("/notifications/{notificationID}/read", notifications.MarkRead).Methods(http.MethodPost)

	return router
}
