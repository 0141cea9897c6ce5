package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/channelport/channelport-api/internal/authz"
	"github.com/channelport/channelport-api/internal/importer"
	"github.com/channelport/channelport-api/internal/launcher"
	"github.com/channelport/channelport-api/internal/models"
	"github.com/channelport/channelport-api/internal/repository"
	"github.com/channelport/channelport-api/internal/scheduler"
)

type TaskHandler struct {
	tasks     repository.TaskRepository
	resolver  *importer.Resolver
	launcher  *launcher.Launcher
	scheduler *scheduler.Scheduler
	logger    zerolog.Logger
}

func NewTaskHandler(tasks repository.TaskRepository, resolver *importer.Resolver, l *launcher.Launcher, sched *scheduler.Scheduler, logger zerolog.Logger) *TaskHandler {
	return &TaskHandler{
		tasks:     tasks,
		resolver:  resolver,
		launcher:  l,
		scheduler: sched,
		logger:    logger.With().Str("handler", "task").Logger(),
	}
}

func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := authz.TenantIDFromRequest(r)
	if !ok {
		http.Error(w, "Missing tenant context", http.StatusUnauthorized)
		return
	}

	stats, err := h.tasks.ListWithStats(tenantID)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list tasks")
		http.Error(w, "Failed to list tasks", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tasks": stats})
}

func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := authz.TenantIDFromRequest(r)
	if !ok {
		http.Error(w, "Missing tenant context", http.StatusUnauthorized)
		return
	}

	task, err := h.tasks.Get(tenantID, mux.Vars(r)["taskID"])
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			http.Error(w, "Task not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to get task", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := authz.TenantIDFromRequest(r)
	if !ok {
		http.Error(w, "Missing tenant context", http.StatusUnauthorized)
		return
	}

	var task models.Task
	if err := json.NewDecoder(r.Body).Decode(&task); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	task.TenantID = tenantID
	task.NormalizeMappings()

	if err := validateTask(&task); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	created, err := h.tasks.Create(task)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			http.Error(w, "Integration not found", http.StatusBadRequest)
			return
		}
		h.logger.Error().Err(err).Msg("failed to create task")
		http.Error(w, "Failed to create task", http.StatusInternalServerError)
		return
	}
	h.reloadSchedules()
	writeJSON(w, http.StatusCreated, created)
}

func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := authz.TenantIDFromRequest(r)
	if !ok {
		http.Error(w, "Missing tenant context", http.StatusUnauthorized)
		return
	}

	existing, err := h.tasks.Get(tenantID, mux.Vars(r)["taskID"])
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			http.Error(w, "Task not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to load task", http.StatusInternalServerError)
		return
	}

	var task models.Task
	if err := json.NewDecoder(r.Body).Decode(&task); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	task.ID = existing.ID
	task.TenantID = tenantID
	task.IntegrationID = existing.IntegrationID
	task.NormalizeMappings()

	if err := validateTask(&task); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	updated, err := h.tasks.Update(task)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			http.Error(w, "Task not found", http.StatusNotFound)
			return
		}
		h.logger.Error().Err(err).Msg("failed to update task")
		http.Error(w, "Failed to update task", http.StatusInternalServerError)
		return
	}
	h.reloadSchedules()
	writeJSON(w, http.StatusOK, updated)
}

func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := authz.TenantIDFromRequest(r)
	if !ok {
		http.Error(w, "Missing tenant context", http.StatusUnauthorized)
		return
	}

	if err := h.tasks.Delete(tenantID, mux.Vars(r)["taskID"]); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			http.Error(w, "Task not found", http.StatusNotFound)
			return
		}
		h.logger.Error().Err(err).Msg("failed to delete task")
		http.Error(w, "Failed to delete task", http.StatusInternalServerError)
		return
	}
	h.reloadSchedules()
	w.WriteHeader(http.StatusNoContent)
}

// RefreshHeaders re-reads the task's source and stores the field names it
// currently exposes, so clients can offer up-to-date mapping choices.
func (h *TaskHandler) RefreshHeaders(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := authz.TenantIDFromRequest(r)
	if !ok {
		http.Error(w, "Missing tenant context", http.StatusUnauthorized)
		return
	}

	task, err := h.tasks.Get(tenantID, mux.Vars(r)["taskID"])
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			http.Error(w, "Task not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to load task", http.StatusInternalServerError)
		return
	}
	if task.SourceType == models.SourceTypeAPI {
		http.Error(w, "Header detection is not available for API sources", http.StatusBadRequest)
		return
	}

	path, temporary, err := h.resolver.Resolve(r.Context(), task.SourceType, task.SourceLocation)
	if err != nil {
		if errors.Is(err, importer.ErrSourceUnavailable) {
			http.Error(w, "Source unavailable: "+err.Error(), http.StatusBadGateway)
			return
		}
		http.Error(w, "Failed to resolve source: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer h.resolver.Cleanup(path, temporary)

	parser, err := importer.ParserFor(task.Format)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	headers, err := parser.DetectHeaders(path, importer.Options{
		Delimiter:  task.DelimiterRune(),
		HasHeader:  task.HasHeader,
		RecordPath: task.RecordPath(),
	})
	if err != nil {
		http.Error(w, "Failed to detect headers: "+err.Error(), http.StatusBadRequest)
		return
	}

	fetchedAt := time.Now().UTC()
	if err := h.tasks.SetHeaders(tenantID, task.ID, headers, fetchedAt); err != nil {
		h.logger.Error().Err(err).Msg("failed to store detected headers")
		http.Error(w, "Failed to store headers", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"headers":    headers,
		"fetched_at": fetchedAt,
	})
}

// Run triggers an immediate import for the task. The run is created in
// pending state and handed to the workflow engine; progress is available
// through the runs endpoints.
func (h *TaskHandler) Run(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := authz.TenantIDFromRequest(r)
	if !ok {
		http.Error(w, "Missing tenant context", http.StatusUnauthorized)
		return
	}

	taskID := mux.Vars(r)["taskID"]
	if _, err := h.tasks.Get(tenantID, taskID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			http.Error(w, "Task not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to load task", http.StatusInternalServerError)
		return
	}

	run, err := h.launcher.Launch(r.Context(), tenantID, taskID)
	if err != nil {
		h.logger.Error().Err(err).Str("task_id", taskID).Msg("failed to launch run")
		http.Error(w, "Failed to start run: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusAccepted, run)
}

func (h *TaskHandler) reloadSchedules() {
	if h.scheduler == nil {
		return
	}
	if err := h.scheduler.Reload(); err != nil {
		h.logger.Error().Err(err).Msg("failed to reload schedules")
	}
}

func validateTask(task *models.Task) error {
	task.Name = strings.TrimSpace(task.Name)
	if task.Name == "" {
		return fmt.Errorf("task name is required")
	}
	if task.IntegrationID == "" {
		return fmt.Errorf("integration_id is required")
	}
	if task.TaskType == "" {
		task.TaskType = models.TaskTypeImport
	}
	if task.TaskType != models.TaskTypeImport && task.TaskType != models.TaskTypeExport {
		return fmt.Errorf("unsupported task type %q", task.TaskType)
	}

	switch task.ResourceType {
	case models.ResourceTypeProducts, models.ResourceTypeOrders, models.ResourceTypeCustomers,
		models.ResourceTypeCategories, models.ResourceTypeStock:
	default:
		return fmt.Errorf("unsupported resource type %q", task.ResourceType)
	}

	switch task.SourceType {
	case models.SourceTypeURL, models.SourceTypeFile, models.SourceTypeAPI:
	default:
		return fmt.Errorf("unsupported source type %q", task.SourceType)
	}
	if task.SourceType != models.SourceTypeAPI {
		if strings.TrimSpace(task.SourceLocation) == "" {
			return fmt.Errorf("source_location is required")
		}
		switch task.Format {
		case models.SourceFormatCSV, models.SourceFormatXML, models.SourceFormatJSON:
		default:
			return fmt.Errorf("unsupported source format %q", task.Format)
		}
	}

	switch task.FetchMode {
	case "", models.FetchModeManual:
		task.FetchMode = models.FetchModeManual
	case models.FetchModeInterval:
		if task.FetchIntervalMinutes < 5 || task.FetchIntervalMinutes > 1440 {
			return fmt.Errorf("fetch_interval_minutes must be between 5 and 1440")
		}
	case models.FetchModeDaily:
		if _, _, err := scheduler.ParseDailyAt(task.FetchDailyAt); err != nil {
			return fmt.Errorf("fetch_daily_at must be HH:MM: %v", err)
		}
	case models.FetchModeCron:
		if len(task.CronExpression) > 120 {
			return fmt.Errorf("cron_expression is too long")
		}
		if err := scheduler.ValidateCronExpression(task.CronExpression); err != nil {
			return fmt.Errorf("invalid cron_expression: %v", err)
		}
	default:
		return fmt.Errorf("unsupported fetch mode %q", task.FetchMode)
	}

	return nil
}
