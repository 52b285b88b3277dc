package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// Error classifies a provider call failure. Permanent failures skip
// the retry ladder; everything else consumes a retry slot.
type Error struct {
	StatusCode int
	Message    string
	Permanent  bool
	Cause      error
}

func (e *Error) Error() string {
	parts := make([]string, 0, 3)
	parts = append(parts, "provider error")
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

func (e *Error) Unwrap() error {
	return e.Cause
}

// IsPermanent reports whether an error should short-circuit straight
// to FAILED instead of being retried.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	var provErr *Error
	if errors.As(err, &provErr) {
		return provErr.Permanent
	}
	return false
}

// IsTimeout reports whether the failure was a bounded-send timeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

// isPermanentHTTPStatus treats client errors other than 408 and 429 as
// permanent: the payload itself is refused and resending cannot help.
func isPermanentHTTPStatus(statusCode int) bool {
	if statusCode == http.StatusRequestTimeout || statusCode == http.StatusTooManyRequests {
		return false
	}
	return statusCode >= 400 && statusCode < 500
}

func statusError(statusCode int, body string) *Error {
	msg := fmt.Sprintf("gateway returned status %d", statusCode)
	if body != "" {
		msg = fmt.Sprintf("%s: %s", msg, body)
	}
	return &Error{
		StatusCode: statusCode,
		Message:    msg,
		Permanent:  isPermanentHTTPStatus(statusCode),
	}
}
