package service

import (
	"context"
	"strconv"
	"sync"

	"github.com/hlachaal/24hkids-platform/internal/clock"
	"github.com/hlachaal/24hkids-platform/internal/entity"
	"github.com/hlachaal/24hkids-platform/pkg/kafka"

	"github.com/sirupsen/logrus"
)

// AuditWriter persists one audit entry. repository.AuditRepository satisfies it.
type AuditWriter interface {
	Create(ctx context.Context, entry *entity.AuditEntry) error
}

// AsyncAuditSink buffers audit entries and writes them from a background
// goroutine. A full buffer drops the entry with a warning; the caller is
// never slowed down or failed by auditing.
type AsyncAuditSink struct {
	entries chan *entity.AuditEntry
	writers []AuditWriter
	clock   clock.Clock

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewAsyncAuditSink(clk clock.Clock, buffer int, writers ...AuditWriter) *AsyncAuditSink {
	if buffer <= 0 {
		buffer = 256
	}
	s := &AsyncAuditSink{
		entries: make(chan *entity.AuditEntry, buffer),
		writers: writers,
		clock:   clk,
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *AsyncAuditSink) Record(ctx context.Context, action entity.AuditAction, actor string, targetID int64, details map[string]interface{}) {
	if actor == "" {
		actor = entity.SystemActor
	}
	entry := &entity.AuditEntry{
		Action:    action,
		Actor:     actor,
		TargetID:  targetID,
		Details:   details,
		CreatedAt: s.clock.Now(),
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		logrus.WithField("action", action).Warn("Audit sink closed, entry dropped")
		return
	}

	select {
	case s.entries <- entry:
	default:
		logrus.WithFields(logrus.Fields{
			"action":    action,
			"target_id": targetID,
		}).Warn("Audit buffer full, entry dropped")
	}
}

// Close stops accepting entries and waits until the buffered ones are written.
func (s *AsyncAuditSink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.entries)
	s.mu.Unlock()

	<-s.done
}

func (s *AsyncAuditSink) run() {
	defer close(s.done)
	for entry := range s.entries {
		for _, w := range s.writers {
			if err := w.Create(context.Background(), entry); err != nil {
				logrus.WithError(err).WithFields(logrus.Fields{
					"action":    entry.Action,
					"target_id": entry.TargetID,
				}).Error("Failed to write audit entry")
			}
		}
	}
}

// StreamAuditWriter publishes audit entries to Kafka keyed by target id.
type StreamAuditWriter struct {
	producer kafka.Producer
}

func NewStreamAuditWriter(producer kafka.Producer) *StreamAuditWriter {
	return &StreamAuditWriter{producer: producer}
}

func (w *StreamAuditWriter) Create(ctx context.Context, entry *entity.AuditEntry) error {
	return w.producer.SendMessage(ctx, strconv.FormatInt(entry.TargetID, 10), entry)
}

// NopAuditSink discards every entry.
type NopAuditSink struct{}

func (NopAuditSink) Record(context.Context, entity.AuditAction, string, int64, map[string]interface{}) {
}
