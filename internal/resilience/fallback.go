package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrAllFailed is returned when every entry of a [FallbackGroup] failed or was
// skipped because its breaker was open.
var ErrAllFailed = errors.New("all providers failed")

// FallbackConfig configures a [FallbackGroup].
type FallbackConfig struct {
	// CircuitBreaker is the template for each entry's breaker. Name is
	// overwritten with the entry name.
	CircuitBreaker CircuitBreakerConfig

	// Retries is the number of extra attempts against the same entry before
	// moving to the next one. Zero disables retrying.
	Retries int

	// RetryInterval is the initial backoff between attempts. Default: 500ms.
	RetryInterval time.Duration

	// Retryable decides whether an error is worth another attempt against the
	// same entry. Default: every error except context errors.
	Retryable func(error) bool

	// Logger receives failover logs. Default: slog.Default().
	Logger *slog.Logger
}

type fallbackEntry[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// EntryStatus reports the breaker state of one entry.
type EntryStatus struct {
	Name  string
	State State
}

// FallbackGroup holds a primary and zero or more fallbacks of the same type.
// Entries are tried in registration order; an entry whose breaker is open is
// skipped.
//
// Entries must be registered before the group is shared between goroutines.
type FallbackGroup[T any] struct {
	entries []fallbackEntry[T]
	cfg     FallbackConfig
	log     *slog.Logger
}

// NewFallbackGroup creates a [FallbackGroup] with primary as its first entry.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 500 * time.Millisecond
	}
	if cfg.Retryable == nil {
		cfg.Retryable = countsAsFailure
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.CircuitBreaker.Logger == nil {
		cfg.CircuitBreaker.Logger = cfg.Logger
	}
	fg := &FallbackGroup[T]{cfg: cfg, log: cfg.Logger}
	fg.AddFallback(primaryName, primary)
	return fg
}

// AddFallback appends an entry. Fallbacks are tried after the primary in the
// order they were added.
func (fg *FallbackGroup[T]) AddFallback(name string, fallback T) {
	cbCfg := fg.cfg.CircuitBreaker
	cbCfg.Name = name
	fg.entries = append(fg.entries, fallbackEntry[T]{
		name:    name,
		value:   fallback,
		breaker: NewCircuitBreaker(cbCfg),
	})
}

// Len returns the number of entries including the primary.
func (fg *FallbackGroup[T]) Len() int { return len(fg.entries) }

// Status returns the breaker state of every entry in order.
func (fg *FallbackGroup[T]) Status() []EntryStatus {
	out := make([]EntryStatus, len(fg.entries))
	for i := range fg.entries {
		out[i] = EntryStatus{Name: fg.entries[i].name, State: fg.entries[i].breaker.State()}
	}
	return out
}

// Execute runs fn against each entry until one succeeds. See
// [ExecuteWithResult].
func (fg *FallbackGroup[T]) Execute(ctx context.Context, fn func(context.Context, T) error) error {
	_, _, err := ExecuteWithResult(ctx, fg, func(ctx context.Context, v T) (struct{}, error) {
		return struct{}{}, fn(ctx, v)
	})
	return err
}

// ExecuteWithResult runs fn against each entry in order until one succeeds and
// returns its result together with the name of the entry that produced it.
// Within one entry, retryable errors are retried with exponential backoff; the
// whole retry sequence counts as a single breaker call.
//
// A cancelled ctx stops the walk immediately and its error is returned as is.
// When every entry fails the error wraps [ErrAllFailed] and each entry's error.
func ExecuteWithResult[T, R any](ctx context.Context, fg *FallbackGroup[T], fn func(context.Context, T) (R, error)) (R, string, error) {
	var (
		zero R
		errs []error
	)
	for i := range fg.entries {
		if err := ctx.Err(); err != nil {
			return zero, "", err
		}
		entry := &fg.entries[i]

		var result R
		err := entry.breaker.Execute(func() error {
			return fg.attempt(ctx, entry.name, func() error {
				var innerErr error
				result, innerErr = fn(ctx, entry.value)
				return innerErr
			})
		})
		if err == nil {
			if i > 0 {
				fg.log.Info("served by fallback provider", "provider", entry.name)
			}
			return result, entry.name, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, "", ctxErr
		}
		if errors.Is(err, ErrCircuitOpen) {
			fg.log.Debug("skipping provider, circuit open", "provider", entry.name)
		} else {
			fg.log.Warn("provider failed, trying next", "provider", entry.name, "err", err)
		}
		errs = append(errs, fmt.Errorf("%s: %w", entry.name, err))
	}
	return zero, "", fmt.Errorf("%w: %w", ErrAllFailed, errors.Join(errs...))
}

// attempt runs op once, or with backoff when retries are configured.
func (fg *FallbackGroup[T]) attempt(ctx context.Context, name string, op func() error) error {
	if fg.cfg.Retries <= 0 {
		return op()
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = fg.cfg.RetryInterval
	eb.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(fg.cfg.Retries)), ctx)

	try := 0
	return backoff.Retry(func() error {
		try++
		err := op()
		if err == nil {
			return nil
		}
		if !fg.cfg.Retryable(err) {
			return backoff.Permanent(err)
		}
		if try <= fg.cfg.Retries {
			fg.log.Debug("provider attempt failed, retrying", "provider", name, "attempt", try, "err", err)
		}
		return err
	}, b)
}
