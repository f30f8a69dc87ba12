package sender

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
	"github.com/opsportal/notifier/internal/domain"
)

const slackConfigWebhookURL = "webhookUrl"

type slackBlock struct {
	Type string     `json:"type"`
	Text *slackText `json:"text,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type slackMessage struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks,omitempty"`
}

// SlackSender posts a block message to an incoming-webhook URL.
type SlackSender struct {
	client *resty.Client
}

func NewSlackSender(client *resty.Client) (*SlackSender, error) {
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}
	return &SlackSender{client: client}, nil
}

func (s *SlackSender) Channel() domain.Channel { return domain.ChannelSlack }

func (s *SlackSender) ValidateConfig(config map[string]any) error {
	_, err := requireConfigURL(config, slackConfigWebhookURL)
	return err
}

func (s *SlackSender) Send(ctx context.Context, transport domain.Transport, notification domain.Notification) (*Outcome, error) {
	webhookURL, err := requireConfigURL(transport.Config, slackConfigWebhookURL)
	if err != nil {
		return nil, err
	}

	title, body := messageText(notification)
	msg := slackMessage{
		Text: title,
		Blocks: []slackBlock{
			{
				Type: "header",
				Text: &slackText{Type: "plain_text", Text: title},
			},
		},
	}
	if body != "" {
		msg.Blocks = append(msg.Blocks, slackBlock{
			Type: "section",
			Text: &slackText{Type: "mrkdwn", Text: body},
		})
	}
	msg.Blocks = append(msg.Blocks, slackBlock{
		Type: "section",
		Text: &slackText{Type: "mrkdwn", Text: fmt.Sprintf("_Event: %s_", notification.EventType)},
	})

	return executeJSON(ctx, s.client, "POST", webhookURL, nil, msg)
}
