package sender

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/opsportal/notifier/internal/domain"
)

const (
	webhookConfigURL     = "url"
	webhookConfigMethod  = "method"
	webhookConfigHeaders = "headers"
)

type webhookEnvelope struct {
	NotificationID string         `json:"notificationId"`
	EventType      string         `json:"eventType"`
	Payload        map[string]any `json:"payload"`
	Timestamp      time.Time      `json:"timestamp"`
}

// WebhookSender issues a call to an operator-specified endpoint with the
// method and headers taken from the transport config.
type WebhookSender struct {
	client *resty.Client
	now    func() time.Time
}

func NewWebhookSender(client *resty.Client) (*WebhookSender, error) {
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}
	return &WebhookSender{client: client, now: time.Now}, nil
}

func (s *WebhookSender) Channel() domain.Channel { return domain.ChannelWebhook }

func (s *WebhookSender) ValidateConfig(config map[string]any) error {
	if _, err := requireConfigURL(config, webhookConfigURL); err != nil {
		return err
	}
	if method := configString(config, webhookConfigMethod); method != "" {
		switch strings.ToUpper(method) {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
		default:
			return ConfigErrorf("config field %q must be POST, PUT, or PATCH", webhookConfigMethod)
		}
	}
	if _, err := configStringMap(config, webhookConfigHeaders); err != nil {
		return err
	}
	return nil
}

func (s *WebhookSender) Send(ctx context.Context, transport domain.Transport, notification domain.Notification) (*Outcome, error) {
	endpoint, err := requireConfigURL(transport.Config, webhookConfigURL)
	if err != nil {
		return nil, err
	}
	headers, err := configStringMap(transport.Config, webhookConfigHeaders)
	if err != nil {
		return nil, err
	}

	method := configString(transport.Config, webhookConfigMethod)
	if method == "" {
		method = http.MethodPost
	}

	envelope := webhookEnvelope{
		NotificationID: notification.ID,
		EventType:      notification.EventType,
		Payload:        notification.Payload,
		Timestamp:      s.now().UTC(),
	}

	return executeJSON(ctx, s.client, method, endpoint, headers, envelope)
}
