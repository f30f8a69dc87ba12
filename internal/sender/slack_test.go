package sender

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/opsportal/notifier/internal/domain"
)

func TestSlackSenderSendSuccess(t *testing.T) {
	t.Parallel()

	var gotBody slackMessage

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}

		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("failed to decode request body: %v", err)
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	s, err := NewSlackSender(NewHTTPClient(0))
	if err != nil {
		t.Fatalf("NewSlackSender() error = %v", err)
	}

	transport := domain.Transport{
		Channel: domain.ChannelSlack,
		Config:  map[string]any{"webhookUrl": server.URL},
	}
	notification := domain.Notification{
		EventType: "change_request.created",
		Payload: map[string]any{
			"title":       "Upgrade DB",
			"description": "Postgres 15 to 16",
			"status":      "pending_approval",
		},
	}

	outcome, err := s.Send(context.Background(), transport, notification)
	if err != nil {
		t.Fatalf("Send() unexpected error: %v", err)
	}
	if outcome.StatusCode != http.StatusOK {
		t.Fatalf("StatusCode = %d, want 200", outcome.StatusCode)
	}

	if gotBody.Text != "Upgrade DB" {
		t.Fatalf("text = %q, want %q", gotBody.Text, "Upgrade DB")
	}
	if len(gotBody.Blocks) == 0 {
		t.Fatal("expected at least one block")
	}
	if gotBody.Blocks[0].Type != "header" {
		t.Fatalf("first block type = %q, want header", gotBody.Blocks[0].Type)
	}
}

func TestSlackSenderServerErrorIsTransient(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	s, err := NewSlackSender(NewHTTPClient(0))
	if err != nil {
		t.Fatalf("NewSlackSender() error = %v", err)
	}

	transport := domain.Transport{
		Channel: domain.ChannelSlack,
		Config:  map[string]any{"webhookUrl": server.URL},
	}

	_, err = s.Send(context.Background(), transport, domain.Notification{EventType: "test"})

	var sendErr *SendError
	if !errors.As(err, &sendErr) {
		t.Fatalf("Send() error = %v, want SendError", err)
	}
	if sendErr.Kind != KindTransient {
		t.Fatalf("kind = %s, want %s", sendErr.Kind, KindTransient)
	}
	if sendErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", sendErr.StatusCode)
	}
}

func TestSlackSenderRejectionIsPermanent(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("invalid_token"))
	}))
	defer server.Close()

	s, err := NewSlackSender(NewHTTPClient(0))
	if err != nil {
		t.Fatalf("NewSlackSender() error = %v", err)
	}

	transport := domain.Transport{
		Channel: domain.ChannelSlack,
		Config:  map[string]any{"webhookUrl": server.URL},
	}

	_, err = s.Send(context.Background(), transport, domain.Notification{EventType: "test"})

	var sendErr *SendError
	if !errors.As(err, &sendErr) || sendErr.Kind != KindPermanent {
		t.Fatalf("Send() error = %v, want permanent SendError", err)
	}
}

func TestSlackSenderConnectionRefusedIsTransient(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	endpoint := server.URL
	server.Close()

	s, err := NewSlackSender(NewHTTPClient(0))
	if err != nil {
		t.Fatalf("NewSlackSender() error = %v", err)
	}

	transport := domain.Transport{
		Channel: domain.ChannelSlack,
		Config:  map[string]any{"webhookUrl": endpoint},
	}

	_, err = s.Send(context.Background(), transport, domain.Notification{EventType: "test"})

	var sendErr *SendError
	if !errors.As(err, &sendErr) || sendErr.Kind != KindTransient {
		t.Fatalf("Send() error = %v, want transient SendError", err)
	}
}

func TestSlackSenderValidateConfig(t *testing.T) {
	t.Parallel()

	s, err := NewSlackSender(NewHTTPClient(0))
	if err != nil {
		t.Fatalf("NewSlackSender() error = %v", err)
	}

	if err := s.ValidateConfig(map[string]any{"webhookUrl": "https://hooks.example/T1"}); err != nil {
		t.Fatalf("ValidateConfig() unexpected error = %v", err)
	}

	var sendErr *SendError
	if err := s.ValidateConfig(map[string]any{}); !errors.As(err, &sendErr) || sendErr.Kind != KindConfig {
		t.Fatalf("ValidateConfig() error = %v, want config SendError", err)
	}
	if err := s.ValidateConfig(map[string]any{"webhookUrl": "not a url"}); !errors.As(err, &sendErr) || sendErr.Kind != KindConfig {
		t.Fatalf("ValidateConfig() error = %v, want config SendError", err)
	}
}
