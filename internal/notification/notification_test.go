package notification

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/channelport/channelport-api/internal/config"
	"github.com/channelport/channelport-api/internal/models"
	"github.com/channelport/channelport-api/internal/repository"
)

type fakeNotificationRepo struct {
	mu      sync.Mutex
	created []models.Notification
}

func (f *fakeNotificationRepo) Create(_ context.Context, params repository.CreateNotificationParams) (models.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	meta, _ := json.Marshal(params.Metadata)
	notif := models.Notification{
		ID:        uuid.NewString(),
		TenantID:  params.TenantID,
		UserID:    params.UserID,
		EventType: params.Event,
		Severity:  params.Severity,
		Title:     params.Title,
		Message:   params.Message,
		Metadata:  meta,
		CreatedAt: time.Now().UTC(),
	}
	f.created = append(f.created, notif)
	return notif, nil
}

func (f *fakeNotificationRepo) ListRecent(_ context.Context, tenantID string, limit int) ([]models.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []models.Notification
	for i := len(f.created) - 1; i >= 0 && len(out) < limit; i-- {
		if f.created[i].TenantID != nil && *f.created[i].TenantID == tenantID {
			out = append(out, f.created[i])
		}
	}
	return out, nil
}

func (f *fakeNotificationRepo) MarkRead(_ context.Context, tenantID, notificationID string) (models.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range f.created {
		if f.created[i].ID == notificationID {
			now := time.Now().UTC()
			f.created[i].ReadAt = &now
			return f.created[i], nil
		}
	}
	return models.Notification{}, repository.ErrNotFound
}

func TestNotifyRunCompletedWithFailuresIsWarning(t *testing.T) {
	repo := &fakeNotificationRepo{}
	svc := NewService(repo, zerolog.Nop())

	run := models.TaskRun{
		ID:             uuid.NewString(),
		TenantID:       uuid.NewString(),
		TaskID:         uuid.NewString(),
		Status:         models.RunStatusCompleted,
		TotalCount:     100,
		ProcessedCount: 100,
		SuccessCount:   96,
		FailureCount:   4,
	}
	svc.NotifyRunCompleted(context.Background(), run)

	require.Len(t, repo.created, 1)
	notif := repo.created[0]
	assert.Equal(t, models.NotificationEventRunCompleted, notif.EventType)
	assert.Equal(t, models.NotificationSeverityWarning, notif.Severity)
	require.NotNil(t, notif.TenantID)
	assert.Equal(t, run.TenantID, *notif.TenantID)

	var meta map[string]interface{}
	require.NoError(t, json.Unmarshal(notif.Metadata, &meta))
	assert.Equal(t, run.ID, meta["run_id"])
	assert.Equal(t, float64(4), meta["failure_count"])
}

func TestRunMetadataCarriesOutcome(t *testing.T) {
	repo := &fakeNotificationRepo{}
	svc := NewService(repo, zerolog.Nop())

	message := "processed 10 records (8 succeeded, 2 failed, 0 skipped)"
	finished := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	run := models.TaskRun{
		ID:             uuid.NewString(),
		TenantID:       uuid.NewString(),
		TaskID:         uuid.NewString(),
		Status:         models.RunStatusCompleted,
		ProcessedCount: 10,
		SuccessCount:   8,
		FailureCount:   2,
		Message:        &message,
		Meta: models.RunMeta{
			Errors: []string{"order 7: bad total", "order 9: bad total"},
		},
		FinishedAt: &finished,
	}
	svc.NotifyRunCompleted(context.Background(), run)

	require.Len(t, repo.created, 1)
	var meta map[string]interface{}
	require.NoError(t, json.Unmarshal(repo.created[0].Metadata, &meta))

	// Channels render the outcome without re-fetching the run.
	assert.Equal(t, "completed", meta["status"])
	assert.Equal(t, message, meta["message"])
	assert.Equal(t, "2026-03-01T12:30:00Z", meta["finished_at"])

	inner, ok := meta["meta"].(map[string]interface{})
	require.True(t, ok)
	errs, ok := inner["errors"].([]interface{})
	require.True(t, ok)
	assert.Len(t, errs, 2)
}

func TestNotifyRunFailedCarriesReason(t *testing.T) {
	repo := &fakeNotificationRepo{}
	svc := NewService(repo, zerolog.Nop())

	reason := "driver authentication failed"
	run := models.TaskRun{
		ID:       uuid.NewString(),
		TenantID: uuid.NewString(),
		TaskID:   uuid.NewString(),
		Status:   models.RunStatusFailed,
		Message:  &reason,
	}
	svc.NotifyRunFailed(context.Background(), run)

	require.Len(t, repo.created, 1)
	assert.Equal(t, models.NotificationSeverityError, repo.created[0].Severity)
	assert.Contains(t, repo.created[0].Message, reason)
}

func TestPublishSkipsWithoutTenant(t *testing.T) {
	repo := &fakeNotificationRepo{}
	svc := NewService(repo, zerolog.Nop())

	svc.NotifyRunCompleted(context.Background(), models.TaskRun{ID: uuid.NewString()})
	assert.Empty(t, repo.created)
}

func TestWebhookNotifierSignsBody(t *testing.T) {
	const secret = "topsecret"

	var (
		gotSignature string
		gotEvent     string
		gotBody      []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSignature = r.Header.Get("X-Channelport-Signature")
		gotEvent = r.Header.Get("X-Channelport-Event")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	notifier, err := NewWebhookNotifier(config.WebhookConfig{URL: srv.URL, Secret: secret}, zerolog.Nop())
	require.NoError(t, err)

	notif := models.Notification{
		ID:        uuid.NewString(),
		EventType: models.NotificationEventRunFailed,
		Severity:  models.NotificationSeverityError,
		Title:     "Import failed",
	}
	require.NoError(t, notifier.Notify(context.Background(), notif))

	assert.Equal(t, string(models.NotificationEventRunFailed), gotEvent)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(gotBody)
	assert.Equal(t, "sha256="+hex.EncodeToString(mac.Sum(nil)), gotSignature)
}

func TestWebhookNotifierRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	notifier, err := NewWebhookNotifier(config.WebhookConfig{URL: srv.URL}, zerolog.Nop())
	require.NoError(t, err)

	err = notifier.Notify(context.Background(), models.Notification{ID: uuid.NewString()})
	assert.ErrorContains(t, err, "502")
}

func TestEmailNotifierRequiresHost(t *testing.T) {
	_, err := NewEmailNotifier(config.EmailConfig{From: "alerts@example.com"}, zerolog.Nop())
	assert.ErrorContains(t, err, "smtp_host")
}
