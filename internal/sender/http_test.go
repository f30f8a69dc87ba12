package sender

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestExecuteJSONCanceledContextIsTransient(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := executeJSON(ctx, NewHTTPClient(0), "POST", server.URL, nil, map[string]any{})

	var sendErr *SendError
	if !errors.As(err, &sendErr) {
		t.Fatalf("executeJSON() error = %v, want SendError", err)
	}
	if sendErr.Kind != KindTransient {
		t.Fatalf("kind = %s, want %s", sendErr.Kind, KindTransient)
	}
	if got := KindOf(context.Canceled); got != sendErr.Kind {
		t.Fatalf("KindOf(Canceled) = %s, disagrees with SendError kind %s", got, sendErr.Kind)
	}
}
