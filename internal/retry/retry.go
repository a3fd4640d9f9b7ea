// Package retry holds the single backoff policy shared by every
// collaborator wrapper. One Policy value is built from config at
// process start and injected wherever an external call needs bounded
// retries.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"scholarag/internal/config"
)

type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64

	log *logrus.Entry
}

func FromConfig(cfg config.Config, log *logrus.Entry) *Policy {
	return &Policy{
		MaxAttempts: cfg.RetryMaxAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
		MaxDelay:    cfg.RetryMaxDelay,
		Jitter:      cfg.RetryJitter,
		log:         log,
	}
}

// temporary matches errors that declare their own retryability, the
// net.Error convention. Provider errors implement it.
type temporary interface{ Temporary() bool }

// Retryable reports whether err is worth another attempt. Errors that
// classify themselves win; unclassified errors are assumed transient.
func Retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var t temporary
	if errors.As(err, &t) {
		return t.Temporary()
	}
	return true
}

// Do runs fn up to MaxAttempts times with exponential backoff between
// failures. Permanent errors and context cancellation return
// immediately; exhausting the budget wraps the last error.
func (p *Policy) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !Retryable(lastErr) {
			return lastErr
		}
		if attempt == p.MaxAttempts-1 {
			break
		}

		delay := p.backoff(attempt)
		if p.log != nil {
			p.log.WithFields(logrus.Fields{
				"op":      op,
				"attempt": attempt + 1,
				"delay":   delay.String(),
				"error":   lastErr.Error(),
			}).Warn("retrying operation")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", op, p.MaxAttempts, lastErr)
}

func (p *Policy) backoff(attempt int) time.Duration {
	d := time.Duration(float64(p.BaseDelay) * math.Pow(2, float64(attempt)))
	if d > p.MaxDelay {
		d = p.MaxDelay
	}
	if p.Jitter > 0 {
		span := float64(d) * p.Jitter
		d = time.Duration(float64(d) - span/2 + rand.Float64()*span)
	}
	return d
}
