package llm

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// RetryPolicy bounds retries of transient embedding failures.
type RetryPolicy struct {
	// MaxAttempts is the total number of calls, including the first. Values below 1 mean 1.
	MaxAttempts int
	// BaseDelay is the backoff unit; attempt n waits a random duration in [0, BaseDelay*2^n).
	BaseDelay time.Duration
	// MaxDelay caps a single wait.
	MaxDelay time.Duration
}

// DefaultRetryPolicy is used when a zero policy is supplied.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 4, BaseDelay: 200 * time.Millisecond, MaxDelay: 5 * time.Second}

// delay returns the full-jitter backoff before retry number attempt (0-based).
func (p RetryPolicy) delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	ceiling := p.BaseDelay << attempt
	if ceiling <= 0 || (p.MaxDelay > 0 && ceiling > p.MaxDelay) {
		ceiling = p.MaxDelay
	}
	if ceiling <= 0 {
		return 0
	}
	return rand.N(ceiling)
}

// RetryingEmbedder retries transient failures of the wrapped Embedder.
type RetryingEmbedder struct {
	next   Embedder
	policy RetryPolicy
	// OnRetry, when set, is called before each wait with the failed attempt number (1-based).
	OnRetry func(attempt int, err error)
}

// NewRetryingEmbedder wraps next with policy. A zero policy selects DefaultRetryPolicy.
func NewRetryingEmbedder(next Embedder, policy RetryPolicy) *RetryingEmbedder {
	if policy == (RetryPolicy{}) {
		policy = DefaultRetryPolicy
	}
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &RetryingEmbedder{next: next, policy: policy}
}

// EmbedTexts calls the wrapped embedder, retrying transient errors with exponential
// backoff and full jitter until the attempt budget is spent or ctx is done.
func (r *RetryingEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt < r.policy.MaxAttempts; attempt++ {
		vecs, err := r.next.EmbedTexts(ctx, texts)
		if err == nil {
			return vecs, nil
		}
		lastErr = err
		if !IsTransient(err) || attempt == r.policy.MaxAttempts-1 {
			break
		}

		if r.OnRetry != nil {
			r.OnRetry(attempt+1, err)
		}

		wait := r.policy.delay(attempt)
		var se *StatusError
		if errors.As(err, &se) && se.RetryAfter > wait {
			wait = se.RetryAfter
			if r.policy.MaxDelay > 0 && wait > r.policy.MaxDelay {
				wait = r.policy.MaxDelay
			}
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, errors.Join(lastErr, ctx.Err())
		case <-timer.C:
		}
	}
	return nil, lastErr
}
