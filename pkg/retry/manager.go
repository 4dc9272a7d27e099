package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// Classifier reports whether an error is worth another attempt.
type Classifier func(err error) bool

// Manager manages retry logic for failed operations
type Manager struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	retryable   Classifier
}

// NewManager creates a Manager allowing maxAttempts attempts in total.
// A nil classifier retries everything except Permanent errors and context
// cancellation.
func NewManager(maxAttempts int, baseDelay time.Duration, retryable Classifier) *Manager {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if retryable == nil {
		retryable = DefaultClassifier
	}
	return &Manager{
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		maxDelay:    baseDelay * 16, // Maximum 16x base delay
		retryable:   retryable,
	}
}

func (m *Manager) MaxAttempts() int {
	return m.maxAttempts
}

// ShouldRetry decides whether another attempt follows the given number of
// attempts already made, and how long to wait before it.
func (m *Manager) ShouldRetry(attempts int, err error) (bool, time.Duration) {
	if err == nil || attempts >= m.maxAttempts {
		return false, 0
	}
	if !m.retryable(err) {
		return false, 0
	}
	return true, m.Backoff(attempts)
}

// Do runs fn until it succeeds, fails with a non-retryable error or the
// attempts run out. The last error is returned.
func (m *Manager) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	for attempt := 1; ; attempt++ {
		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}

		retry, delay := m.ShouldRetry(attempt, err)
		if !retry {
			return err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}

// Backoff calculates exponential backoff delay with jitter
func (m *Manager) Backoff(attempt int) time.Duration {
	if m.baseDelay <= 0 {
		return 0
	}
	if attempt <= 0 {
		return m.baseDelay
	}

	// Exponential backoff: base * 2^(attempt-1)
	backoff := m.baseDelay * time.Duration(1<<(attempt-1))
	if backoff > m.maxDelay || backoff <= 0 {
		backoff = m.maxDelay
	}

	// Apply jitter (±25%)
	if quarter := int64(backoff / 4); quarter > 0 {
		jitter := time.Duration(rand.Int63n(quarter))
		if rand.Intn(2) == 0 {
			backoff += jitter
		} else {
			backoff -= jitter
		}
	}

	return backoff
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err so DefaultClassifier never retries it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

func DefaultClassifier(err error) bool {
	if err == nil || IsPermanent(err) {
		return false
	}
	return !errors.Is(err, context.Canceled)
}
