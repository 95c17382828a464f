package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dreschagin/views-collector/internal/application/port"
	"github.com/dreschagin/views-collector/pkg/logger"
)

const DefaultTimeout = 5 * time.Second

// WebhookNotifier posts operator messages to a Slack incoming webhook.
type WebhookNotifier struct {
	webhookURL string
	client     *http.Client
	timeout    time.Duration
	logger     *logger.Logger
}

var _ port.Notifier = (*WebhookNotifier)(nil)

func NewWebhookNotifier(webhookURL string, timeout time.Duration, log *logger.Logger) (*WebhookNotifier, error) {
	webhookURL = strings.TrimSpace(webhookURL)
	if webhookURL == "" {
		return nil, errors.New("slack webhook url is required")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &WebhookNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: timeout},
		timeout:    timeout,
		logger:     log,
	}, nil
}

type webhookPayload struct {
	Text string `json:"text"`
}

func (n *WebhookNotifier) Notify(ctx context.Context, message string) error {
	payload, err := json.Marshal(webhookPayload{Text: message})
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		// the webhook URL is a credential
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			return fmt.Errorf("post slack message: %w", urlErr.Err)
		}
		return errors.New("post slack message: transport failure")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("slack webhook returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if n.logger != nil {
		n.logger.Debug("Slack notification sent", "length", len(message))
	}
	return nil
}
