package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

type ErrorClassification struct {
	Retryable     bool
	RecordFailure bool
}

type ErrorClassifier func(err error) ErrorClassification

// StateListener is notified whenever a breaker changes state.
type StateListener func(operation string, from, to gobreaker.State)

// Executor runs outbound calls with bounded retries and one circuit breaker
// per operation name. Operations are shared across requests, so an embedding
// outage trips one breaker for the whole process.
type Executor struct {
	cfg      Config
	logger   *slog.Logger
	listener StateListener
	jitter   func() float64

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[struct{}]
}

func NewExecutor(cfg Config, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		cfg:      cfg.normalize(),
		logger:   logger,
		jitter:   rand.Float64,
		breakers: make(map[string]*gobreaker.CircuitBreaker[struct{}]),
	}
}

// OnStateChange must be set before the first Execute.
func (e *Executor) OnStateChange(listener StateListener) {
	e.listener = listener
}

func (e *Executor) Execute(ctx context.Context, operation string, fn func(context.Context) error, classifier ErrorClassifier) error {
	if fn == nil {
		return fmt.Errorf("resilience: operation callback is nil")
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}
	if classifier == nil {
		classifier = defaultClassifier
	}

	if !e.cfg.BreakerEnabled {
		return e.retry(ctx, op, fn, classifier)
	}
	_, err := e.breaker(op).Execute(func() (struct{}, error) {
		err := e.retry(ctx, op, fn, classifier)
		if err != nil && !classifier(err).RecordFailure {
			return struct{}{}, unrecordedError{err: err}
		}
		return struct{}{}, err
	})
	var unrecorded unrecordedError
	if errors.As(err, &unrecorded) {
		return unrecorded.err
	}
	return err
}

// unrecordedError marks a failure the breaker must not count. The
// classification belongs to the call, not to the breaker, so callers sharing
// an operation name may classify differently.
type unrecordedError struct {
	err error
}

func (e unrecordedError) Error() string { return e.err.Error() }
func (e unrecordedError) Unwrap() error { return e.err }

// Call runs fn through the executor and returns its value. A nil executor
// calls fn directly.
func Call[T any](ctx context.Context, e *Executor, operation string, fn func(context.Context) (T, error), classifier ErrorClassifier) (T, error) {
	if e == nil {
		return fn(ctx)
	}
	var out T
	err := e.Execute(ctx, operation, func(callCtx context.Context) error {
		value, err := fn(callCtx)
		if err != nil {
			return err
		}
		out = value
		return nil
	}, classifier)
	return out, err
}

// retry gives up early when the next wait would outlive the caller's
// deadline; the stage timeout is then reported as the original failure.
func (e *Executor) retry(ctx context.Context, operation string, fn func(context.Context) error, classifier ErrorClassifier) error {
	var lastErr error
	for attempt := 1; attempt <= e.cfg.RetryMaxAttempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if lastErr != nil {
				return lastErr
			}
			return ctxErr
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == e.cfg.RetryMaxAttempts || !classifier(lastErr).Retryable {
			return lastErr
		}

		wait := e.delay(attempt)
		if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) <= wait {
			e.logger.Debug("retry_skipped_deadline", "operation", operation, "attempt", attempt, "error", lastErr)
			return lastErr
		}
		e.logger.Warn("retry_scheduled",
			"operation", operation,
			"attempt", attempt,
			"max_attempts", e.cfg.RetryMaxAttempts,
			"backoff_ms", float64(wait.Microseconds())/1000.0,
			"error", lastErr,
		)
		if !sleep(ctx, wait) {
			return lastErr
		}
	}
	return lastErr
}

// delay is the exponential backoff before retry number attempt+1, capped at
// RetryMaxBackoff and shortened by up to RetryJitter of its length.
func (e *Executor) delay(attempt int) time.Duration {
	wait := float64(e.cfg.RetryInitialBackoff)
	for i := 1; i < attempt; i++ {
		wait *= e.cfg.RetryMultiplier
		if wait >= float64(e.cfg.RetryMaxBackoff) {
			break
		}
	}
	wait = min(wait, float64(e.cfg.RetryMaxBackoff))
	if e.cfg.RetryJitter > 0 {
		wait -= wait * e.cfg.RetryJitter * e.jitter()
	}
	return time.Duration(wait)
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (e *Executor) breaker(operation string) *gobreaker.CircuitBreaker[struct{}] {
	e.mu.Lock()
	defer e.mu.Unlock()

	if cb, ok := e.breakers[operation]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        operation,
		MaxRequests: e.cfg.BreakerHalfOpenMaxCalls,
		Timeout:     e.cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < e.cfg.BreakerMinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= e.cfg.BreakerFailureRatio
		},
		// Cancellations and caller errors do not count against the breaker.
		IsSuccessful: func(err error) bool {
			var unrecorded unrecordedError
			return err == nil || errors.As(err, &unrecorded)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			e.logger.Warn("circuit_breaker_state_change", "operation", name, "from", from.String(), "to", to.String())
			if e.listener != nil {
				e.listener(name, from, to)
			}
		},
	})
	e.breakers[operation] = cb
	return cb
}

func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func defaultClassifier(error) ErrorClassification {
	return ErrorClassification{RecordFailure: true}
}
