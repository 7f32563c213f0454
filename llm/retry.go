package llm

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"
)

const (
	// DefaultRetryDelay is the fixed wait between rate-limited attempts.
	DefaultRetryDelay = 15 * time.Second

	// DefaultRetryAttempts counts the initial attempt plus retries.
	DefaultRetryAttempts = 5
)

// RetryPolicy controls the rate-limit retry wrapper. The delay is fixed,
// not exponential; providers that send a retry-after hint override it per
// attempt.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultRetryAttempts
	}
	if p.Delay <= 0 {
		p.Delay = DefaultRetryDelay
	}
	return p
}

type retryProvider struct {
	inner  Provider
	policy RetryPolicy
}

// NewRetryProvider wraps a provider so that rate-limited requests are
// retried after a fixed delay. Non-rate-limit errors pass through
// unchanged. Streaming retries only cover stream establishment and events
// seen before any payload was forwarded; a stream that already delivered
// output fails through to the caller.
func NewRetryProvider(inner Provider, policy RetryPolicy) Provider {
	return &retryProvider{inner: inner, policy: policy.withDefaults()}
}

func (r *retryProvider) Name() string { return r.inner.Name() }

func (r *retryProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	var lastErr error
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		resp, err := r.inner.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		if !isRateLimited(err) {
			return nil, err
		}
		lastErr = err
		if attempt == r.policy.MaxAttempts {
			break
		}
		if err := r.wait(ctx, retryDelay(r.policy, err)); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func (r *retryProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	return newEventStream(ctx, func(ctx context.Context, events chan<- Event) error {
		var lastErr error
		for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
			delivered, err := r.streamAttempt(ctx, req, events)
			if err == nil {
				return nil
			}
			if delivered || !isRateLimited(err) {
				return err
			}
			lastErr = err
			if attempt == r.policy.MaxAttempts {
				break
			}
			wait := retryDelay(r.policy, err)
			ev := Event{Type: EventRetry, RetryAttempt: attempt, RetryWait: wait}
			if err := emit(ctx, events, ev); err != nil {
				return err
			}
			if err := r.wait(ctx, wait); err != nil {
				return err
			}
		}
		return lastErr
	}), nil
}

// streamAttempt opens one inner stream and forwards its events. delivered
// reports whether any event reached the caller, which disqualifies the
// attempt from being retried.
func (r *retryProvider) streamAttempt(ctx context.Context, req Request, events chan<- Event) (delivered bool, err error) {
	inner, err := r.inner.Stream(ctx, req)
	if err != nil {
		return false, err
	}
	defer inner.Close()

	for {
		ev, err := inner.Recv()
		if errors.Is(err, io.EOF) {
			return delivered, nil
		}
		if err != nil {
			return delivered, err
		}
		if err := emit(ctx, events, ev); err != nil {
			return delivered, err
		}
		delivered = true
	}
}

func (r *retryProvider) wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func retryDelay(policy RetryPolicy, err error) time.Duration {
	var rl *RateLimitError
	if errors.As(err, &rl) && rl.RetryAfter > 0 {
		return rl.RetryAfter
	}
	return policy.Delay
}

// isRateLimited matches both the typed error from our own transports and
// the loosely formatted messages third-party SDKs surface.
func isRateLimited(err error) bool {
	if err == nil {
		return false
	}
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "rate_limit") ||
		strings.Contains(msg, "429") ||
		strings.Contains(msg, "too many requests") ||
		strings.Contains(msg, "overloaded")
}
