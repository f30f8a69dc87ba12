package domain

import (
	"fmt"
	"strings"
	"time"
)

// Channel represents the kind of external delivery mechanism.
type Channel string

const (
	ChannelSMTP     Channel = "SMTP"
	ChannelEmailAPI Channel = "EMAIL_API"
	ChannelSlack    Channel = "SLACK"
	ChannelTeams    Channel = "TEAMS"
	ChannelWebhook  Channel = "WEBHOOK"
)

func (c Channel) String() string { return string(c) }

func (c Channel) IsValid() bool {
	switch c {
	case ChannelSMTP, ChannelEmailAPI, ChannelSlack, ChannelTeams, ChannelWebhook:
		return true
	}
	return false
}

func ParseChannelFromString(s string) (Channel, error) {
	ch := Channel(strings.ToUpper(strings.TrimSpace(s)))
	if !ch.IsValid() {
		return "", fmt.Errorf("%w: invalid channel %q", ErrValidation, s)
	}
	return ch, nil
}

// Transport is a tenant-scoped, configured delivery endpoint. It is created
// and edited by the configuration UI; the dispatch engine only reads it.
type Transport struct {
	ID        string
	TenantID  string
	Channel   Channel
	Scope     string
	Config    map[string]any
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (t *Transport) Validate() error {
	if t == nil {
		return fmt.Errorf("%w: transport is required", ErrValidation)
	}
	if strings.TrimSpace(t.TenantID) == "" {
		return fmt.Errorf("%w: tenant id is required", ErrValidation)
	}
	if !t.Channel.IsValid() {
		return fmt.Errorf("%w: invalid channel %q", ErrValidation, t.Channel)
	}
	return nil
}
