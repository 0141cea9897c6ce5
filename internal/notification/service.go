package notification

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/channelport/channelport-api/internal/models"
	"github.com/channelport/channelport-api/internal/repository"
)

type Event struct {
	TenantID string
	UserID   string
	Event    models.NotificationEvent
	Severity models.NotificationSeverity
	Title    string
	Message  string
	Metadata map[string]interface{}
}

// Service persists notifications and fans them out to the configured
// channels. The run notification methods are fire-and-forget: delivery
// problems are logged, never propagated into the import pipeline.
type Service interface {
	Publish(ctx context.Context, evt Event) (models.Notification, error)
	NotifyRunStarted(ctx context.Context, run models.TaskRun, taskName string)
	NotifyRunCompleted(ctx context.Context, run models.TaskRun)
	NotifyRunFailed(ctx context.Context, run models.TaskRun)
	NotifyConnectionTested(ctx context.Context, tenantID, integrationName string, ok bool, detail string)
	ListRecent(ctx context.Context, tenantID string, limit int) ([]models.Notification, error)
	MarkRead(ctx context.Context, tenantID, notificationID string) (models.Notification, error)
}

type service struct {
	repo      repository.NotificationRepository
	logger    zerolog.Logger
	notifiers []Notifier
}

func NewService(repo repository.NotificationRepository, logger zerolog.Logger, notifiers ...Notifier) Service {
	active := make([]Notifier, 0, len(notifiers))
	for _, notifier := range notifiers {
		if notifier != nil {
			active = append(active, notifier)
		}
	}
	return &service{
		repo:      repo,
		logger:    logger.With().Str("component", "notification_service").Logger(),
		notifiers: active,
	}
}

func (s *service) Publish(ctx context.Context, evt Event) (models.Notification, error) {
	if evt.Event == "" {
		return models.Notification{}, fmt.Errorf("event type is required")
	}
	if evt.Severity == "" {
		evt.Severity = models.NotificationSeverityInfo
	}
	title := strings.TrimSpace(evt.Title)
	if title == "" {
		title = string(evt.Event)
	}
	params := repository.CreateNotificationParams{
		Event:    evt.Event,
		Severity: evt.Severity,
		Title:    title,
		Message:  strings.TrimSpace(evt.Message),
		Metadata: evt.Metadata,
	}
	if tid := strings.TrimSpace(evt.TenantID); tid != "" {
		params.TenantID = &tid
	}
	if uid := strings.TrimSpace(evt.UserID); uid != "" {
		params.UserID = &uid
	}

	notif, err := s.repo.Create(ctx, params)
	if err != nil {
		s.logger.Error().Err(err).Str("event_type", string(evt.Event)).Msg("failed to persist notification")
		return models.Notification{}, err
	}
	for _, notifier := range s.notifiers {
		if err := notifier.Notify(ctx, notif); err != nil {
			logNotifyError(s.logger, err, notifierChannelName(notifier), notif)
		}
	}
	return notif, nil
}

func (s *service) NotifyRunStarted(ctx context.Context, run models.TaskRun, taskName string) {
	name := fallbackName(taskName, run.TaskID)
	s.publishRunEvent(ctx, Event{
		TenantID: run.TenantID,
		Event:    models.NotificationEventRunStarted,
		Severity: models.NotificationSeverityInfo,
		Title:    fmt.Sprintf("Import started: %s", name),
		Message:  fmt.Sprintf("Task %s run %s has started.", name, run.ID),
		Metadata: runMetadata(run),
	})
}

func (s *service) NotifyRunCompleted(ctx context.Context, run models.TaskRun) {
	severity := models.NotificationSeverityInfo
	message := fmt.Sprintf("Run %s completed: %d records processed, %d succeeded.", run.ID, run.ProcessedCount, run.SuccessCount)
	if run.FailureCount > 0 {
		severity = models.NotificationSeverityWarning
		message = fmt.Sprintf("Run %s completed with failures: %d records processed, %d succeeded, %d failed.",
			run.ID, run.ProcessedCount, run.SuccessCount, run.FailureCount)
	}
	s.publishRunEvent(ctx, Event{
		TenantID: run.TenantID,
		Event:    models.NotificationEventRunCompleted,
		Severity: severity,
		Title:    "Import completed",
		Message:  message,
		Metadata: runMetadata(run),
	})
}

func (s *service) NotifyRunFailed(ctx context.Context, run models.TaskRun) {
	reason := "unknown error"
	if run.Message != nil && strings.TrimSpace(*run.Message) != "" {
		reason = strings.TrimSpace(*run.Message)
	}
	s.publishRunEvent(ctx, Event{
		TenantID: run.TenantID,
		Event:    models.NotificationEventRunFailed,
		Severity: models.NotificationSeverityError,
		Title:    "Import failed",
		Message:  fmt.Sprintf("Run %s failed: %s", run.ID, reason),
		Metadata: runMetadata(run),
	})
}

func (s *service) NotifyConnectionTested(ctx context.Context, tenantID, integrationName string, ok bool, detail string) {
	severity := models.NotificationSeverityInfo
	message := fmt.Sprintf("Connection test for %q succeeded.", integrationName)
	if !ok {
		severity = models.NotificationSeverityError
		message = fmt.Sprintf("Connection test for %q failed: %s", integrationName, detail)
	}
	s.publishRunEvent(ctx, Event{
		TenantID: tenantID,
		Event:    models.NotificationEventConnectionTested,
		Severity: severity,
		Title:    "Connection tested",
		Message:  message,
		Metadata: map[string]interface{}{"integration": integrationName, "ok": ok},
	})
}

func (s *service) publishRunEvent(ctx context.Context, evt Event) {
	if strings.TrimSpace(evt.TenantID) == "" {
		s.logger.Warn().Str("event_type", string(evt.Event)).Msg("dropping notification without tenant")
		return
	}
	if _, err := s.Publish(ctx, evt); err != nil {
		s.logger.Warn().Err(err).Str("event_type", string(evt.Event)).Msg("failed to publish run notification")
	}
}

func (s *service) ListRecent(ctx context.Context, tenantID string, limit int) ([]models.Notification, error) {
	return s.repo.ListRecent(ctx, tenantID, limit)
}

func (s *service) MarkRead(ctx context.Context, tenantID, notificationID string) (models.Notification, error) {
	return s.repo.MarkRead(ctx, tenantID, notificationID)
}

func runMetadata(run models.TaskRun) map[string]interface{} {
	md := map[string]interface{}{
		"run_id":          run.ID,
		"task_id":         run.TaskID,
		"status":          run.Status,
		"total_count":     run.TotalCount,
		"processed_count": run.ProcessedCount,
		"success_count":   run.SuccessCount,
		"failure_count":   run.FailureCount,
		"skipped_count":   run.SkippedCount,
		"meta":            run.Meta,
	}
	if run.Message != nil {
		md["message"] = *run.Message
	}
	if run.FinishedAt != nil {
		md["finished_at"] = run.FinishedAt.UTC().Format(time.RFC3339)
	}
	return md
}

func fallbackName(name, fallback string) string {
	if trimmed := strings.TrimSpace(name); trimmed != "" {
		return trimmed
	}
	return fallback
}

func notifierChannelName(n Notifier) string {
	type named interface {
		String() string
	}
	if v, ok := n.(named); ok {
		return v.String()
	}
	return fmt.Sprintf("%T", n)
}
