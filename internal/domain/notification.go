package domain

import (
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle state of a notification.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusSending Status = "SENDING"
	StatusSent    Status = "SENT"
	StatusFailed  Status = "FAILED"
)

func (s Status) String() string { return string(s) }

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusSending, StatusSent, StatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether the dispatcher will not touch the record again
// without an explicit requeue.
func (s Status) IsTerminal() bool {
	return s == StatusSent || s == StatusFailed
}

func ParseStatusFromString(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid status %q", ErrValidation, s)
	}
	return st, nil
}

// EventTypeTest tags notifications synthesized to verify a transport
// configuration.
const EventTypeTest = "test"

// Notification is one queued or completed delivery attempt. Payload and
// event type are write-once; after creation the dispatcher mutates only
// status, sent_at, error_message, remote_message_id, and attempt_count.
type Notification struct {
	ID              string
	TenantID        string
	TransportID     string
	EventType       string
	Payload         map[string]any
	Status          Status
	RemoteMessageID *string
	ErrorMessage    *string
	AttemptCount    int
	SentAt          *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (n *Notification) Validate() error {
	if n == nil {
		return fmt.Errorf("%w: notification is required", ErrValidation)
	}
	if strings.TrimSpace(n.TenantID) == "" {
		return fmt.Errorf("%w: tenant id is required", ErrValidation)
	}
	if strings.TrimSpace(n.TransportID) == "" {
		return fmt.Errorf("%w: transport id is required", ErrValidation)
	}
	if strings.TrimSpace(n.EventType) == "" {
		return fmt.Errorf("%w: event type is required", ErrValidation)
	}
	if !n.Status.IsValid() {
		return fmt.Errorf("%w: invalid status %q", ErrValidation, n.Status)
	}
	return nil
}
