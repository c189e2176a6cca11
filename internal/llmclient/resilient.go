// internal/llmclient/resilient.go
package llmclient

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/mobilepilot/api/schemas"
)

// Resilient wraps a Decider with request pacing, a per-attempt deadline and a
// bounded retry of transient failures.
type Resilient struct {
	next       schemas.Decider
	limiter    *rate.Limiter
	timeout    time.Duration
	maxRetries int
	logger     *zap.Logger

	// backoffFactory allows tests to swap in a faster schedule.
	backoffFactory func() backoff.BackOff
}

var _ schemas.Decider = (*Resilient)(nil)

// NewResilient decorates next. requestsPerMinute <= 0 disables pacing and
// timeout <= 0 disables the per-attempt deadline.
func NewResilient(next schemas.Decider, requestsPerMinute float64, timeout time.Duration, maxRetries int, logger *zap.Logger) *Resilient {
	limit := rate.Inf
	if requestsPerMinute > 0 {
		limit = rate.Every(time.Duration(float64(time.Minute) / requestsPerMinute))
	}
	return &Resilient{
		next:       next,
		limiter:    rate.NewLimiter(limit, 1),
		timeout:    timeout,
		maxRetries: max(maxRetries, 0),
		logger:     logger.Named("llm_client.resilient"),
		backoffFactory: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 2 * time.Second
			b.MaxInterval = 30 * time.Second
			return b
		},
	}
}

// Name reports the wrapped decider's name.
func (r *Resilient) Name() string { return r.next.Name() }

// Decide forwards req, retrying retryable failures up to maxRetries times.
func (r *Resilient) Decide(ctx context.Context, req schemas.DecisionRequest) (string, error) {
	var reply string
	attempt := 0

	operation := func() error {
		attempt++
		if err := r.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(&DecisionError{Provider: r.Name(), Err: err})
		}

		attemptCtx, cancel := r.attemptContext(ctx)
		defer cancel()

		out, err := r.next.Decide(attemptCtx, req)
		if err == nil {
			reply = out
			return nil
		}

		// A deadline on the parent context is not ours to retry.
		if ctx.Err() != nil {
			return backoff.Permanent(classify(r.Name(), ctx.Err()))
		}
		de := classify(r.Name(), err)
		if !de.Retryable {
			return backoff.Permanent(de)
		}
		r.logger.Warn("Decision request failed, will retry if attempts remain.",
			zap.String("decider", r.Name()),
			zap.Int("attempt", attempt),
			zap.Error(err))
		return de
	}

	b := backoff.WithContext(backoff.WithMaxRetries(r.backoffFactory(), uint64(r.maxRetries)), ctx)
	if err := backoff.Retry(operation, b); err != nil {
		r.logger.Error("Decision request failed.",
			zap.String("decider", r.Name()),
			zap.Int("attempts", attempt),
			zap.Error(err))
		var de *DecisionError
		if errors.As(err, &de) {
			return "", de
		}
		return "", classify(r.Name(), err)
	}
	return reply, nil
}

func (r *Resilient) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}
