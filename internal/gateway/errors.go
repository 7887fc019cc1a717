package gateway

import (
	"errors"
	"fmt"
)

// ErrGatewayUnavailable indicates a transient network or provider fault
// (timeouts, connection errors, 5xx). Callers may retry with backoff; the
// failed call never moved any state.
var ErrGatewayUnavailable = errors.New("payment gateway unavailable")

// RejectedError indicates the provider judged the request invalid (4xx,
// validation failures). Not retryable; surfaced to the caller.
type RejectedError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *RejectedError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("payment gateway rejected request (%d %s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("payment gateway rejected request (%d): %s", e.StatusCode, e.Message)
}

// IsRejected reports whether err is a provider rejection
func IsRejected(err error) bool {
	var rejected *RejectedError
	return errors.As(err, &rejected)
}
