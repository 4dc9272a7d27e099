package scheduler

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// StatusReconciler re-derives event statuses and reports how many changed.
type StatusReconciler interface {
	ReconcileStatuses(ctx context.Context) (int, error)
}

type Scheduler struct {
	reconciler StatusReconciler
	interval   time.Duration
}

func NewScheduler(reconciler StatusReconciler, interval time.Duration) *Scheduler {
	return &Scheduler{
		reconciler: reconciler,
		interval:   interval,
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.RunOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) RunOnce(ctx context.Context) {
	repaired, err := s.reconciler.ReconcileStatuses(ctx)
	if err != nil {
		logrus.WithError(err).Error("Error reconciling event statuses")
		return
	}
	if repaired > 0 {
		logrus.WithField("repaired", repaired).Warn("Event statuses reconciled")
	}
}
