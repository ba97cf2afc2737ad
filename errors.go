package gatewire

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced by the client.
var (
	// ErrRetryExhausted is returned by the dispatcher after a request
	// failed with 429 or 5xx on every attempt up to the retry budget.
	ErrRetryExhausted = errors.New("retry budget exhausted")

	// ErrAuthenticationFailed is a fatal credential rejection. The
	// affected shard halts and performs no further reconnect attempts.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrAlreadyOpen is returned when opening a session, manager or
	// client that is already running.
	ErrAlreadyOpen = errors.New("already open")

	// ErrClosed is returned when an operation is attempted on a closed
	// dispatcher or client.
	ErrClosed = errors.New("closed")

	// ErrInvalidShardCount is returned when a shard index does not fit
	// the configured total.
	ErrInvalidShardCount = errors.New("invalid shard count")
)

// APIError is a non-retryable API response (4xx other than 429). It is
// surfaced immediately with the response status and body, without retry.
type APIError struct {
	Status  int
	Method  string
	Route   string
	Body    []byte
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error: %s %s: %d: %s", e.Method, e.Route, e.Status, e.Message)
	}
	return fmt.Sprintf("api error: %s %s: %d", e.Method, e.Route, e.Status)
}

// CloseError is a gateway connection close with its transport close code.
type CloseError struct {
	Code int
	Text string
}

func (e *CloseError) Error() string {
	if e.Text == "" {
		return fmt.Sprintf("gateway closed: code %d", e.Code)
	}
	return fmt.Sprintf("gateway closed: code %d: %s", e.Code, e.Text)
}
