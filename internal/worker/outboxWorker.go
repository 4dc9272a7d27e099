package worker

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// PendingDispatcher delivers outbox messages left undelivered after commit.
type PendingDispatcher interface {
	DispatchPending(ctx context.Context, limit int) (int, error)
}

// OutboxRelayWorker retries outbox delivery on an interval, giving the
// notifications at-least-once semantics across crashes and outages.
type OutboxRelayWorker struct {
	dispatcher PendingDispatcher
	interval   time.Duration
	batchSize  int
}

func NewOutboxRelayWorker(dispatcher PendingDispatcher, interval time.Duration, batchSize int) *OutboxRelayWorker {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &OutboxRelayWorker{
		dispatcher: dispatcher,
		interval:   interval,
		batchSize:  batchSize,
	}
}

func (w *OutboxRelayWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	logrus.WithField("interval", w.interval.String()).Info("Outbox relay worker started")

	for {
		select {
		case <-ctx.Done():
			logrus.Info("Outbox relay worker stopped")
			return
		case <-ticker.C:
			w.relay(ctx)
		}
	}
}

// relay drains the backlog in batches until a batch comes back short.
func (w *OutboxRelayWorker) relay(ctx context.Context) {
	total := 0
	for ctx.Err() == nil {
		n, err := w.dispatcher.DispatchPending(ctx, w.batchSize)
		if err != nil {
			logrus.WithError(err).Error("Outbox relay failed")
			return
		}
		total += n
		if n < w.batchSize {
			break
		}
	}

	if total > 0 {
		logrus.WithField("delivered", total).Info("Outbox relay delivered pending messages")
	}
}
