package notification

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/channelport/channelport-api/internal/config"
	"github.com/channelport/channelport-api/internal/models"
)

// WebhookNotifier POSTs each notification as JSON to a configured
// endpoint. When a secret is set, the request carries an HMAC-SHA256
// signature of the body so the receiver can verify the sender.
type WebhookNotifier struct {
	url    string
	secret []byte
	client *http.Client
	logger zerolog.Logger
}

func NewWebhookNotifier(cfg config.WebhookConfig, logger zerolog.Logger) (*WebhookNotifier, error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return nil, fmt.Errorf("url is required for webhook notifier")
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	var secret []byte
	if s := strings.TrimSpace(cfg.Secret); s != "" {
		secret = []byte(s)
	}

	return &WebhookNotifier{
		url:    url,
		secret: secret,
		client: &http.Client{Timeout: timeout},
		logger: logger.With().Str("notifier", "webhook").Logger(),
	}, nil
}

func (n *WebhookNotifier) Notify(ctx context.Context, notif models.Notification) error {
	body, err := json.Marshal(notif)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Channelport-Event", string(notif.EventType))
	if len(n.secret) > 0 {
		req.Header.Set("X-Channelport-Signature", n.sign(body))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver webhook: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook endpoint returned status %d", resp.StatusCode)
	}

	n.logger.Info().
		Str("notification_id", notif.ID).
		Str("event_type", string(notif.EventType)).
		Int("status", resp.StatusCode).
		Msg("webhook notification delivered")
	return nil
}

func (n *WebhookNotifier) sign(body []byte) string {
	mac := hmac.New(sha256.New, n.secret)
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func (n *WebhookNotifier) String() string {
	return "WebhookNotifier"
}
