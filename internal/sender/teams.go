package sender

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
	"github.com/opsportal/notifier/internal/domain"
)

const teamsConfigWebhookURL = "webhookUrl"

type teamsCard struct {
	Type       string `json:"@type"`
	Context    string `json:"@context"`
	Summary    string `json:"summary"`
	Title      string `json:"title"`
	Text       string `json:"text,omitempty"`
	ThemeColor string `json:"themeColor,omitempty"`
}

// TeamsSender posts a MessageCard to a Teams incoming-webhook URL.
type TeamsSender struct {
	client *resty.Client
}

func NewTeamsSender(client *resty.Client) (*TeamsSender, error) {
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}
	return &TeamsSender{client: client}, nil
}

func (s *TeamsSender) Channel() domain.Channel { return domain.ChannelTeams }

func (s *TeamsSender) ValidateConfig(config map[string]any) error {
	_, err := requireConfigURL(config, teamsConfigWebhookURL)
	return err
}

func (s *TeamsSender) Send(ctx context.Context, transport domain.Transport, notification domain.Notification) (*Outcome, error) {
	webhookURL, err := requireConfigURL(transport.Config, teamsConfigWebhookURL)
	if err != nil {
		return nil, err
	}

	title, body := messageText(notification)
	card := teamsCard{
		Type:       "MessageCard",
		Context:    "https://schema.org/extensions",
		Summary:    title,
		Title:      title,
		Text:       body,
		ThemeColor: "0076D7",
	}

	return executeJSON(ctx, s.client, "POST", webhookURL, nil, card)
}
