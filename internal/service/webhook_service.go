package service

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/request-tracker/internal/config"
	"github.com/spec-kit/request-tracker/internal/domain"
	"github.com/spec-kit/request-tracker/internal/events"
)

// WebhookNotifier sends a best-effort notification to a single configured
// endpoint when a request is created. Delivery happens on a detached
// goroutine; the creation operation never waits on or learns about it.
type WebhookNotifier struct {
	client *http.Client
	cfg    config.NotificationConfig
	logger *zap.Logger
}

// NewWebhookNotifier creates the notifier.
func NewWebhookNotifier(cfg config.NotificationConfig, logger *zap.Logger) *WebhookNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookNotifier{
		client: &http.Client{Timeout: cfg.WebhookTimeout()},
		cfg:    cfg,
		logger: logger,
	}
}

// RegisterHandlers subscribes to lifecycle events.
func (n *WebhookNotifier) RegisterHandlers(dispatcher events.Dispatcher) {
	if dispatcher == nil {
		return
	}
	dispatcher.Subscribe(events.EventRequestCreated, n.handleRequestCreated)
}

func (n *WebhookNotifier) handleRequestCreated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.RequestCreatedPayload)
	if !ok {
		n.logger.Warn("unexpected payload for request_created event", zap.String("event_id", event.ID))
		return nil
	}
	// Launched and abandoned; the caller's context may be canceled before
	// delivery finishes, so the call detaches from it.
	go n.NotifyCreated(context.WithoutCancel(ctx), event.RequestID, payload)
	return nil
}

type webhookBody struct {
	RequestID   string                 `json:"request_id"`
	Title       string                 `json:"title"`
	Description string                 `json:"description"`
	Type        domain.RequestType     `json:"type"`
	Priority    domain.RequestPriority `json:"priority"`
	CreatedBy   string                 `json:"created_by"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// NotifyCreated performs a single POST to the configured endpoint. Failures
// are logged and swallowed; there is no retry and no queue.
func (n *WebhookNotifier) NotifyCreated(ctx context.Context, requestID string, payload events.RequestCreatedPayload) {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		n.logger.Debug("webhook url not configured; skipping notification",
			zap.String("request_id", requestID))
		return
	}

	raw, err := json.Marshal(webhookBody{
		RequestID:   requestID,
		Title:       payload.Title,
		Description: payload.Description,
		Type:        payload.Type,
		Priority:    payload.Priority,
		CreatedBy:   payload.CreatedBy,
		CreatedAt:   payload.CreatedAt,
		UpdatedAt:   payload.UpdatedAt,
	})
	if err != nil {
		n.logger.Warn("webhook payload encode failed", zap.String("request_id", requestID), zap.Error(err))
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.WebhookURL, bytes.NewReader(raw))
	if err != nil {
		n.logger.Warn("webhook request build failed", zap.String("request_id", requestID), zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		n.logger.Warn("webhook delivery failed", zap.String("request_id", requestID), zap.Error(err))
		return
	}
	defer resp.Body.Close()

	// The response body is never consumed.
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		n.logger.Warn("webhook returned non-success status",
			zap.String("request_id", requestID),
			zap.Int("status", resp.StatusCode))
	}
}
