package prediction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// ResilientConfig bounds every provider call.
type ResilientConfig struct {
	// Timeout applies to each attempt separately.
	Timeout time.Duration
	// Retries is the number of extra attempts after a transient failure.
	Retries int
	// Backoff is the pause before a retry.
	Backoff time.Duration
}

// Resilient wraps a Provider with a per-attempt timeout and a bounded retry
// on transient failures. Non-transient errors are returned immediately.
type Resilient struct {
	next   Provider
	cfg    ResilientConfig
	logger zerolog.Logger
}

func NewResilient(next Provider, cfg ResilientConfig, logger zerolog.Logger) *Resilient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 200 * time.Millisecond
	}
	return &Resilient{next: next, cfg: cfg, logger: logger}
}

func (r *Resilient) PredictFeatures(ctx context.Context, features map[string]float64, model ModelType) (Result, error) {
	return r.call(ctx, "features", func(ctx context.Context) (Result, error) {
		return r.next.PredictFeatures(ctx, features, model)
	})
}

func (r *Resilient) PredictImage(ctx context.Context, image []byte) (Result, error) {
	return r.call(ctx, "image", func(ctx context.Context) (Result, error) {
		return r.next.PredictImage(ctx, image)
	})
}

func (r *Resilient) call(ctx context.Context, mode string, fn func(ctx context.Context) (Result, error)) (Result, error) {
	attempts := 1 + r.cfg.Retries
	var lastErr error

	for i := 1; i <= attempts; i++ {
		attemptCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
		res, err := fn(attemptCtx)
		cancel()

		if err == nil {
			if verr := res.Validate(); verr != nil {
				return Result{}, verr
			}
			return res, nil
		}
		if ctx.Err() != nil {
			return Result{}, fmt.Errorf("%w: %w", ErrUnavailable, ctx.Err())
		}
		if !isTransient(err) {
			return Result{}, err
		}

		lastErr = err
		r.logger.Warn().Err(err).
			Str("mode", mode).
			Int("attempt", i).
			Int("max_attempts", attempts).
			Msg("prediction attempt failed")

		if i < attempts {
			select {
			case <-time.After(r.cfg.Backoff):
			case <-ctx.Done():
				return Result{}, fmt.Errorf("%w: %w", ErrUnavailable, ctx.Err())
			}
		}
	}

	return Result{}, fmt.Errorf("%w after %d attempts: %w", ErrUnavailable, attempts, lastErr)
}

func isTransient(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, context.DeadlineExceeded)
}
