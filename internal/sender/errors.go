package sender

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ErrorKind classifies a delivery failure for operators and metrics.
type ErrorKind string

const (
	// KindConfig means the transport is unusable as configured. No network
	// call was made.
	KindConfig ErrorKind = "CONFIG"
	// KindTransient means the call failed in a way a later retry may fix.
	KindTransient ErrorKind = "TRANSIENT"
	// KindPermanent means the remote end rejected the request explicitly.
	KindPermanent ErrorKind = "PERMANENT"
)

func (k ErrorKind) String() string { return string(k) }

// SendError is the single failure type crossing the sender boundary.
type SendError struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	Cause      error
}

func (e *SendError) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 4)
	parts = append(parts, fmt.Sprintf("send error (%s)", e.Kind))

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *SendError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// ConfigErrorf builds a SendError for a transport misconfiguration.
func ConfigErrorf(format string, args ...any) *SendError {
	return &SendError{
		Kind:    KindConfig,
		Message: fmt.Sprintf(format, args...),
	}
}

// KindOf extracts the error kind from a sender failure. Unknown errors are
// classified the way the network would: timeouts and cancellations are
// transient failures of the call, everything else permanent.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}

	var sendErr *SendError
	if errors.As(err, &sendErr) {
		return sendErr.Kind
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTransient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransient
	}

	return KindPermanent
}

// kindForHTTPStatus maps a non-2xx provider status to an error kind.
// Rate limiting and server-side failures are worth retrying; everything
// else is an explicit rejection.
func kindForHTTPStatus(statusCode int) ErrorKind {
	if statusCode == http.StatusTooManyRequests || (statusCode >= http.StatusInternalServerError && statusCode <= 599) {
		return KindTransient
	}
	return KindPermanent
}

func httpStatusErrorMessage(statusCode int, body string) string {
	base := fmt.Sprintf("endpoint returned status %d", statusCode)
	if body == "" {
		return base
	}
	return fmt.Sprintf("%s: %s", base, body)
}
