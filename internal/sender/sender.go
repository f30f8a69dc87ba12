package sender

import (
	"context"
	"fmt"
	"strings"

	"github.com/opsportal/notifier/internal/domain"
)

// Outcome stores delivery call metadata for audit and persistence.
type Outcome struct {
	StatusCode int
	Body       string
	MessageID  string
}

// Sender delivers one notification through a configured transport of a
// single channel kind.
type Sender interface {
	Channel() domain.Channel
	// ValidateConfig checks that the transport config is structurally
	// complete for this channel. It must not perform network calls.
	ValidateConfig(config map[string]any) error
	Send(ctx context.Context, transport domain.Transport, notification domain.Notification) (*Outcome, error)
}

// Registry resolves the sender for a transport's channel kind and enforces
// config validation before any outbound call. The dispatcher never branches
// on channel kind itself.
type Registry struct {
	senders map[domain.Channel]Sender
}

func NewRegistry(senders ...Sender) (*Registry, error) {
	byChannel := make(map[domain.Channel]Sender, len(senders))
	for _, s := range senders {
		if s == nil {
			return nil, fmt.Errorf("nil sender")
		}
		channel := s.Channel()
		if !channel.IsValid() {
			return nil, fmt.Errorf("sender has invalid channel %q", channel)
		}
		if _, exists := byChannel[channel]; exists {
			return nil, fmt.Errorf("duplicate sender for channel %s", channel)
		}
		byChannel[channel] = s
	}

	return &Registry{senders: byChannel}, nil
}

func (r *Registry) Send(ctx context.Context, transport domain.Transport, notification domain.Notification) (*Outcome, error) {
	if r == nil {
		return nil, fmt.Errorf("registry is not initialized")
	}

	s, ok := r.senders[transport.Channel]
	if !ok {
		return nil, ConfigErrorf("no sender registered for channel %s", transport.Channel)
	}

	if err := s.ValidateConfig(transport.Config); err != nil {
		if sendErr, ok := err.(*SendError); ok {
			return nil, sendErr
		}
		return nil, &SendError{Kind: KindConfig, Message: "invalid transport config", Cause: err}
	}

	return s.Send(ctx, transport, notification)
}

// payloadString reads an optional string field from a notification payload.
func payloadString(payload map[string]any, key string) string {
	if payload == nil {
		return ""
	}
	value, ok := payload[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(value)
}

// messageText derives a subject/body pair from the payload, falling back to
// the event type when the producer supplied no title.
func messageText(n domain.Notification) (title string, body string) {
	title = payloadString(n.Payload, "title")
	if title == "" {
		title = n.EventType
	}
	body = payloadString(n.Payload, "description")
	if status := payloadString(n.Payload, "status"); status != "" {
		if body != "" {
			body += "\n"
		}
		body += fmt.Sprintf("Status: %s", status)
	}
	return title, body
}
