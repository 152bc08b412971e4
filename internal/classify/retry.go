package classify

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RetryOptions tunes the transport retry middleware.
type RetryOptions struct {
	// MaxAttempts bounds total tries, including the first.
	MaxAttempts int
	// BaseDelay is the first backoff; it doubles per attempt.
	BaseDelay time.Duration
}

func (o RetryOptions) withDefaults() RetryOptions {
	if o.MaxAttempts < 1 {
		o.MaxAttempts = 3
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = 300 * time.Millisecond
	}
	return o
}

type retryClassifier struct {
	inner  Classifier
	opts   RetryOptions
	logger *slog.Logger
}

// WithRetry wraps a classifier with exponential backoff on batch-level
// failures. Permanent errors and context cancellation stop the loop
// immediately; per-symbol failures inside a successful batch are not
// retried here (the scheduler's retry queue owns those).
func WithRetry(inner Classifier, opts RetryOptions, logger *slog.Logger) Classifier {
	return &retryClassifier{inner: inner, opts: opts.withDefaults(), logger: logger}
}

func (r *retryClassifier) Classify(ctx context.Context, batch []SymbolContext, aspects []string) ([]Result, error) {
	var lastErr error
	for attempt := 0; attempt < r.opts.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := r.opts.BaseDelay * (1 << (attempt - 1))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		results, err := r.inner.Classify(ctx, batch, aspects)
		if err == nil {
			return results, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if IsPermanent(err) {
			return nil, err
		}
		if r.logger != nil {
			r.logger.Warn("classification attempt failed",
				"attempt", attempt+1, "maxAttempts", r.opts.MaxAttempts, "error", err)
		}
	}
	return nil, fmt.Errorf("classification failed after %d attempts: %w", r.opts.MaxAttempts, lastErr)
}
