package sender

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultHTTPTimeout = 10 * time.Second

// NewHTTPClient builds the shared outbound client used by the HTTP channel
// senders. Retries stay off: the dispatcher owns retry semantics.
func NewHTTPClient(timeout time.Duration) *resty.Client {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}

	client := resty.New()
	client.SetTimeout(timeout)
	client.SetRetryCount(0)
	return client
}

// executeJSON performs a single JSON HTTP call and normalizes the result.
func executeJSON(
	ctx context.Context,
	client *resty.Client,
	method string,
	endpoint string,
	headers map[string]string,
	body any,
) (*Outcome, error) {
	if client == nil {
		return nil, errors.New("http client is required")
	}

	req := client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body)
	for key, value := range headers {
		req.SetHeader(key, value)
	}

	response, err := req.Execute(strings.ToUpper(method), endpoint)
	if err != nil {
		// Failures before a response, cancellation included, classify as
		// transient, matching KindOf.
		return nil, &SendError{
			Kind:    KindTransient,
			Message: "request failed",
			Cause:   err,
		}
	}
	if response == nil {
		return nil, &SendError{
			Kind:    KindTransient,
			Message: "empty response",
		}
	}

	statusCode := response.StatusCode()
	responseBody := strings.TrimSpace(response.String())

	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return &Outcome{
			StatusCode: statusCode,
			Body:       responseBody,
			MessageID:  responseMessageID(response),
		}, nil
	}

	return nil, &SendError{
		Kind:       kindForHTTPStatus(statusCode),
		StatusCode: statusCode,
		Message:    httpStatusErrorMessage(statusCode, responseBody),
	}
}

func responseMessageID(response *resty.Response) string {
	if response == nil {
		return ""
	}

	for _, key := range []string{"X-Message-ID", "X-Message-Id", "X-Request-ID", "X-Request-Id"} {
		if value := strings.TrimSpace(response.Header().Get(key)); value != "" {
			return value
		}
	}

	return ""
}
