package service

import (
	"context"
	"time"

	"github.com/hlachaal/24hkids-platform/internal/database/repository"
	"github.com/hlachaal/24hkids-platform/internal/entity"
	"github.com/hlachaal/24hkids-platform/pkg/retry"

	"github.com/sirupsen/logrus"
)

// Options tune how the services talk to the store.
type Options struct {
	MaxAttempts int
	BaseDelay   time.Duration
	// TxTimeout bounds a single attempt, lock waits included.
	TxTimeout time.Duration
}

func DefaultOptions() Options {
	return Options{
		MaxAttempts: 3,
		BaseDelay:   20 * time.Millisecond,
		TxTimeout:   5 * time.Second,
	}
}

// txRunner runs closures inside the store's locking units and retries them
// while the store reports a transient conflict.
type txRunner struct {
	store   repository.Store
	retry   *retry.Manager
	timeout time.Duration
}

func newTxRunner(store repository.Store, opts Options) *txRunner {
	if opts.TxTimeout <= 0 {
		opts.TxTimeout = DefaultOptions().TxTimeout
	}
	return &txRunner{
		store:   store,
		retry:   retry.NewManager(opts.MaxAttempts, opts.BaseDelay, entity.IsTransient),
		timeout: opts.TxTimeout,
	}
}

// run executes fn atomically under eventID's lock. fn may be invoked more
// than once and must reset anything it captures at the start of each call.
// The ctx handed to fn carries the per-attempt deadline.
func (r *txRunner) run(ctx context.Context, eventID int64, fn func(ctx context.Context, tx repository.EventTx) error) error {
	return r.attempt(ctx, logrus.Fields{"event_id": eventID}, func(ctx context.Context) error {
		return r.store.InEventTx(ctx, eventID, func(tx repository.EventTx) error {
			return fn(ctx, tx)
		})
	})
}

// runChild is run for the child-scoped unit.
func (r *txRunner) runChild(ctx context.Context, childID int64, fn func(ctx context.Context, tx repository.ChildTx) error) error {
	return r.attempt(ctx, logrus.Fields{"child_id": childID}, func(ctx context.Context) error {
		return r.store.InChildTx(ctx, childID, func(tx repository.ChildTx) error {
			return fn(ctx, tx)
		})
	})
}

func (r *txRunner) attempt(ctx context.Context, fields logrus.Fields, unit func(ctx context.Context) error) error {
	return r.retry.Do(ctx, func(ctx context.Context, attempt int) error {
		attemptCtx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()

		err := unit(attemptCtx)
		if err != nil && entity.IsTransient(err) {
			logrus.WithFields(fields).WithFields(logrus.Fields{
				"attempt": attempt,
				"max":     r.retry.MaxAttempts(),
			}).WithError(err).Warn("Transient store conflict")
		}
		return err
	})
}
