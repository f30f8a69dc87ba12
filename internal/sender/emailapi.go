package sender

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
	"github.com/opsportal/notifier/internal/domain"
)

const (
	emailAPIConfigEndpoint      = "endpoint"
	emailAPIConfigAPIKey        = "apiKey"
	emailAPIConfigFrom          = "from"
	emailAPIConfigTo            = "to"
	emailAPIConfigSubjectPrefix = "subjectPrefix"
)

type emailAPIRequest struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// EmailAPISender delivers mail through a transactional-email provider's
// HTTP API, authenticated with a bearer key from the transport config.
type EmailAPISender struct {
	client *resty.Client
}

func NewEmailAPISender(client *resty.Client) (*EmailAPISender, error) {
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}
	return &EmailAPISender{client: client}, nil
}

func (s *EmailAPISender) Channel() domain.Channel { return domain.ChannelEmailAPI }

func (s *EmailAPISender) ValidateConfig(config map[string]any) error {
	if _, err := requireConfigURL(config, emailAPIConfigEndpoint); err != nil {
		return err
	}
	for _, key := range []string{emailAPIConfigAPIKey, emailAPIConfigFrom, emailAPIConfigTo} {
		if _, err := requireConfigString(config, key); err != nil {
			return err
		}
	}
	return nil
}

func (s *EmailAPISender) Send(ctx context.Context, transport domain.Transport, notification domain.Notification) (*Outcome, error) {
	endpoint, err := requireConfigURL(transport.Config, emailAPIConfigEndpoint)
	if err != nil {
		return nil, err
	}
	apiKey, err := requireConfigString(transport.Config, emailAPIConfigAPIKey)
	if err != nil {
		return nil, err
	}
	from, err := requireConfigString(transport.Config, emailAPIConfigFrom)
	if err != nil {
		return nil, err
	}
	to, err := requireConfigString(transport.Config, emailAPIConfigTo)
	if err != nil {
		return nil, err
	}

	subject, body := messageText(notification)
	if prefix := configString(transport.Config, emailAPIConfigSubjectPrefix); prefix != "" {
		subject = fmt.Sprintf("%s %s", prefix, subject)
	}

	req := emailAPIRequest{
		From:    from,
		To:      to,
		Subject: subject,
		Body:    body,
	}
	headers := map[string]string{
		"Authorization": "Bearer " + apiKey,
	}

	return executeJSON(ctx, s.client, "POST", endpoint, headers, req)
}
