package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/channelport/channelport-api/internal/authz"
	"github.com/channelport/channelport-api/internal/launcher"
	"github.com/channelport/channelport-api/internal/models"
	"github.com/channelport/channelport-api/internal/repository"
	"github.com/channelport/channelport-api/internal/runs"
)

type RunHandler struct {
	repo     repository.RunRepository
	tracker  *runs.Tracker
	launcher *launcher.Launcher
	logger   zerolog.Logger
}

func NewRunHandler(repo repository.RunRepository, tracker *runs.Tracker, l *launcher.Launcher, logger zerolog.Logger) *RunHandler {
	return &RunHandler{
		repo:     repo,
		tracker:  tracker,
		launcher: l,
		logger:   logger.With().Str("handler", "run").Logger(),
	}
}

func (h *RunHandler) List(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := authz.TenantIDFromRequest(r)
	if !ok {
		http.Error(w, "Missing tenant context", http.StatusUnauthorized)
		return
	}

	limit := queryInt(r, "limit", 20)
	offset := queryInt(r, "offset", 0)

	var (
		list []models.TaskRun
		err  error
	)
	if taskID := strings.TrimSpace(r.URL.Query().Get("task_id")); taskID != "" {
		list, err = h.repo.ListByTask(tenantID, taskID, limit, offset)
	} else {
		list, err = h.repo.List(tenantID, limit, offset)
	}
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list runs")
		http.Error(w, "Failed to list runs", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"runs": list})
}

func (h *RunHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := authz.TenantIDFromRequest(r)
	if !ok {
		http.Error(w, "Missing tenant context", http.StatusUnauthorized)
		return
	}

	run, err := h.repo.Get(tenantID, mux.Vars(r)["runID"])
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			http.Error(w, "Run not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to get run", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// Cancel marks a non-terminal run failed with a cancellation message and
// asks the workflow engine to cancel the run's workflow so queued chunks
// stop. Late results from chunks already in flight are rejected once the
// run is terminal.
func (h *RunHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := authz.TenantIDFromRequest(r)
	if !ok {
		http.Error(w, "Missing tenant context", http.StatusUnauthorized)
		return
	}

	runID := mux.Vars(r)["runID"]
	run, err := h.tracker.Cancel(r.Context(), tenantID, runID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			http.Error(w, "Run not found", http.StatusNotFound)
			return
		}
		if errors.Is(err, repository.ErrRunTerminal) {
			http.Error(w, "Run already finished", http.StatusConflict)
			return
		}
		h.logger.Error().Err(err).Msg("failed to cancel run")
		http.Error(w, "Failed to cancel run", http.StatusInternalServerError)
		return
	}

	// The run is already terminal; workflow cancellation only frees
	// worker slots, so a failure here is logged and swallowed.
	if h.launcher != nil {
		if err := h.launcher.CancelWorkflow(r.Context(), runID); err != nil {
			h.logger.Warn().Err(err).Str("run_id", runID).Msg("failed to cancel run workflow")
		}
	}
	writeJSON(w, http.StatusOK, run)
}

func (h *RunHandler) Stats(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := authz.TenantIDFromRequest(r)
	if !ok {
		http.Error(w, "Missing tenant context", http.StatusUnauthorized)
		return
	}

	days := queryInt(r, "days", 31)
	stats, err := h.repo.Stats(tenantID, days)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to load run stats")
		http.Error(w, "Failed to load run stats", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
