package llm

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrMaxToolCalls is returned when a tool round would push the running
	// total of executed calls past the per-call cap.
	ErrMaxToolCalls = errors.New("max tool calls exceeded")

	// ErrEmptyResponse is returned when the provider produces a terminal
	// response with no text content.
	ErrEmptyResponse = errors.New("empty response from provider")

	// ErrMalformedFragment is returned when a streamed fragment is missing
	// the shape the reassembler requires.
	ErrMalformedFragment = errors.New("malformed response fragment")
)

// RateLimitError signals that the provider rejected a request for rate
// reasons. RetryAfter carries the provider's wait hint when one was given.
type RateLimitError struct {
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited: %s (retry after %s)", e.Message, e.RetryAfter)
	}
	return fmt.Sprintf("rate limited: %s", e.Message)
}
