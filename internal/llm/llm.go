// Package llm talks to the language model that turns resume text into a
// structured evaluation.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dharsanguruparan/ResumeVault/internal/logger"
)

// ErrEmptyResponse is returned when the provider answered without text.
var ErrEmptyResponse = errors.New("llm returned empty response")

// Completer sends one system/user prompt pair and returns the raw reply.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// permanentError marks failures that retrying cannot fix.
type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent wraps err so Retrying gives up immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

func isPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

var sleep = func(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// retry calls fn up to attempts times with a linear backoff.
func retry[T any](ctx context.Context, attempts int, backoff time.Duration, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	if attempts < 1 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err
		if isPermanent(err) || i == attempts-1 {
			break
		}
		if err := sleep(ctx, backoff*time.Duration(i+1)); err != nil {
			return zero, err
		}
	}
	return zero, fmt.Errorf("after %d attempts: %w", attempts, lastErr)
}

// Retrying decorates a Completer with bounded retries on transient errors.
type Retrying struct {
	next     Completer
	attempts int
	backoff  time.Duration
	logger   *zap.Logger
}

// WithRetry wraps next. attempts below 1 disables retrying.
func WithRetry(next Completer, attempts int, backoff time.Duration, log *zap.Logger) *Retrying {
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	return &Retrying{next: next, attempts: attempts, backoff: backoff, logger: logger.OrNop(log)}
}

// Complete implements Completer.
func (r *Retrying) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	attempt := 0
	return retry(ctx, r.attempts, r.backoff, func() (string, error) {
		attempt++
		out, err := r.next.Complete(ctx, systemPrompt, userPrompt)
		if err != nil && !isPermanent(err) {
			r.logger.Warn("llm call failed", zap.Int("attempt", attempt), zap.Error(err))
		}
		return out, err
	})
}
