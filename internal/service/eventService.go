package service

import (
	"context"
	"fmt"
	"time"

	"github.com/hlachaal/24hkids-platform/internal/clock"
	"github.com/hlachaal/24hkids-platform/internal/database/repository"
	"github.com/hlachaal/24hkids-platform/internal/entity"

	"github.com/sirupsen/logrus"
)

type eventService struct {
	store      repository.Store
	runner     *txRunner
	clock      clock.Clock
	dispatcher *Dispatcher
	audit      AuditSink
}

func NewEventService(
	store repository.Store,
	clk clock.Clock,
	dispatcher *Dispatcher,
	audit AuditSink,
	opts Options,
) EventService {
	if audit == nil {
		audit = NopAuditSink{}
	}
	return &eventService{
		store:      store,
		runner:     newTxRunner(store, opts),
		clock:      clk,
		dispatcher: dispatcher,
		audit:      audit,
	}
}

func (s *eventService) CreateEvent(ctx context.Context, req *CreateEventRequest) (*entity.Event, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	event := &entity.Event{
		Title:       req.Title,
		Description: req.Description,
		StartsAt:    req.StartsAt,
		EndsAt:      req.EndsAt,
		MinAge:      req.MinAge,
		MaxAge:      req.MaxAge,
		Capacity:    req.Capacity,
		Status:      entity.EventStatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.store.Events().Create(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to create event: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"event_id": event.ID,
		"capacity": event.Capacity,
	}).Info("Event created")

	s.audit.Record(ctx, entity.AuditWorkshopCreated, req.Actor, event.ID, map[string]interface{}{
		"title":    event.Title,
		"capacity": event.Capacity,
		"min_age":  event.MinAge,
		"max_age":  event.MaxAge,
	})
	return event, nil
}

func (s *eventService) GetEvent(ctx context.Context, id int64) (*entity.Event, error) {
	return s.store.Events().GetByID(ctx, id)
}

func (s *eventService) GetAllEvents(ctx context.Context) ([]*entity.Event, error) {
	events, err := s.store.Events().GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	return events, nil
}

// UpdateCapacity changes the number of seats. It cannot drop below the
// current confirmed count; new seats go to the waitlist in FIFO order.
func (s *eventService) UpdateCapacity(ctx context.Context, req *UpdateCapacityRequest) (*EventChangeResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var (
		result   *EventChangeResult
		messages []*entity.OutboxMessage
		previous int
	)
	err := s.runner.run(ctx, req.EventID, func(ctx context.Context, tx repository.EventTx) error {
		result, messages = nil, nil
		now := s.clock.Now()
		event := tx.Event()
		previous = event.Capacity

		confirmed, err := tx.CountByStatus(ctx, entity.BookingStatusConfirmed)
		if err != nil {
			return err
		}
		if req.Capacity < confirmed {
			return fmt.Errorf("%w: event %d already has %d confirmed bookings, capacity %d is too small",
				entity.ErrValidation, event.ID, confirmed, req.Capacity)
		}

		if err := tx.UpdateEvent(ctx, req.Capacity, event.Status, now); err != nil {
			return err
		}
		promoted, msgs, err := s.fillSeats(ctx, tx, now)
		if err != nil {
			return err
		}

		result = &EventChangeResult{Event: tx.Event(), Promoted: promoted}
		messages = msgs
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update capacity of event %d: %w", req.EventID, err)
	}

	s.dispatch(ctx, messages)

	logrus.WithFields(logrus.Fields{
		"event_id": req.EventID,
		"from":     previous,
		"to":       req.Capacity,
		"promoted": len(result.Promoted),
	}).Info("Event capacity updated")

	s.audit.Record(ctx, entity.AuditWorkshopUpdated, req.Actor, req.EventID, map[string]interface{}{
		"field":    "capacity",
		"from":     previous,
		"to":       req.Capacity,
		"promoted": bookingIDs(result.Promoted),
	})
	return result, nil
}

// SetStatus cancels, disables or reopens an event. Reopening derives
// ACTIVE or FULL from the confirmed count and fills any free seats.
func (s *eventService) SetStatus(ctx context.Context, req *SetEventStatusRequest) (*EventChangeResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var (
		result   *EventChangeResult
		messages []*entity.OutboxMessage
		previous entity.EventStatus
	)
	err := s.runner.run(ctx, req.EventID, func(ctx context.Context, tx repository.EventTx) error {
		result, messages = nil, nil
		now := s.clock.Now()
		event := tx.Event()
		previous = event.Status

		if req.Status.Sticky() {
			if err := tx.UpdateEvent(ctx, event.Capacity, req.Status, now); err != nil {
				return err
			}
			result = &EventChangeResult{Event: tx.Event()}
			return nil
		}

		// Clear the sticky status, then let the counts decide.
		if err := tx.UpdateEvent(ctx, event.Capacity, entity.EventStatusActive, now); err != nil {
			return err
		}
		promoted, msgs, err := s.fillSeats(ctx, tx, now)
		if err != nil {
			return err
		}
		result = &EventChangeResult{Event: tx.Event(), Promoted: promoted}
		messages = msgs
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set status of event %d: %w", req.EventID, err)
	}

	s.dispatch(ctx, messages)

	logrus.WithFields(logrus.Fields{
		"event_id": req.EventID,
		"from":     previous,
		"to":       result.Event.Status,
	}).Info("Event status set")

	s.audit.Record(ctx, entity.AuditWorkshopUpdated, req.Actor, req.EventID, map[string]interface{}{
		"field":    "status",
		"from":     string(previous),
		"to":       string(result.Event.Status),
		"promoted": bookingIDs(result.Promoted),
	})
	return result, nil
}

// UpdateDetails rewrites the descriptive fields, schedule and age range of an
// event. Every confirmed booking is re-checked against the new values first;
// afterwards the status is re-derived and free seats go to waitlisted
// children that now fit.
func (s *eventService) UpdateDetails(ctx context.Context, req *UpdateEventRequest) (*EventChangeResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var (
		result   *EventChangeResult
		messages []*entity.OutboxMessage
		previous entity.Event
	)
	err := s.runner.run(ctx, req.EventID, func(ctx context.Context, tx repository.EventTx) error {
		result, messages = nil, nil
		now := s.clock.Now()
		previous = *tx.Event()

		updated := previous
		updated.Title = req.Title
		updated.Description = req.Description
		updated.StartsAt = req.StartsAt
		updated.EndsAt = req.EndsAt
		updated.MinAge = req.MinAge
		updated.MaxAge = req.MaxAge

		confirmed, err := tx.Confirmed(ctx)
		if err != nil {
			return err
		}
		for _, b := range confirmed {
			child, err := tx.LockChild(ctx, b.ChildID)
			if err != nil {
				return err
			}
			if err := checkChildFits(ctx, tx, child, &updated); err != nil {
				return fmt.Errorf("confirmed booking %d would no longer fit: %w", b.ID, err)
			}
		}

		if err := tx.UpdateDetails(ctx, &updated, now); err != nil {
			return err
		}
		promoted, msgs, err := s.fillSeats(ctx, tx, now)
		if err != nil {
			return err
		}
		result = &EventChangeResult{Event: tx.Event(), Promoted: promoted}
		messages = msgs
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update event %d: %w", req.EventID, err)
	}

	s.dispatch(ctx, messages)

	logrus.WithFields(logrus.Fields{
		"event_id": req.EventID,
		"promoted": len(result.Promoted),
	}).Info("Event details updated")

	s.audit.Record(ctx, entity.AuditWorkshopUpdated, req.Actor, req.EventID, map[string]interface{}{
		"field":     "details",
		"starts_at": map[string]interface{}{"from": previous.StartsAt, "to": req.StartsAt},
		"ends_at":   map[string]interface{}{"from": previous.EndsAt, "to": req.EndsAt},
		"age_range": map[string]interface{}{
			"from": []int{previous.MinAge, previous.MaxAge},
			"to":   []int{req.MinAge, req.MaxAge},
		},
		"promoted": bookingIDs(result.Promoted),
	})
	return result, nil
}

func (s *eventService) DeleteEvent(ctx context.Context, id int64, actor string) error {
	var title string
	err := s.runner.run(ctx, id, func(ctx context.Context, tx repository.EventTx) error {
		title = tx.Event().Title
		for _, status := range []entity.BookingStatus{entity.BookingStatusConfirmed, entity.BookingStatusWaitlist} {
			n, err := tx.CountByStatus(ctx, status)
			if err != nil {
				return err
			}
			if n > 0 {
				return fmt.Errorf("%w: event %d still has %d %s bookings", entity.ErrValidation, id, n, status)
			}
		}
		return tx.DeleteEvent(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to delete event %d: %w", id, err)
	}

	logrus.WithField("event_id", id).Info("Event deleted")
	s.audit.Record(ctx, entity.AuditWorkshopDeleted, actor, id, map[string]interface{}{
		"title": title,
	})
	return nil
}

// fillSeats derives the status and promotes waitlisted bookings into every
// free seat.
func (s *eventService) fillSeats(ctx context.Context, tx repository.EventTx, now time.Time) ([]*entity.Booking, []*entity.OutboxMessage, error) {
	status, err := syncEventStatus(ctx, tx, now)
	if err != nil {
		return nil, nil, err
	}
	if !status.Bookable() {
		return nil, nil, nil
	}

	confirmed, err := tx.CountByStatus(ctx, entity.BookingStatusConfirmed)
	if err != nil {
		return nil, nil, err
	}
	promoted, err := promote(ctx, tx, tx.Event().Capacity-confirmed, nil, now)
	if err != nil {
		return nil, nil, err
	}
	if _, err := syncEventStatus(ctx, tx, now); err != nil {
		return nil, nil, err
	}

	msgs := make([]*entity.OutboxMessage, 0, len(promoted))
	for _, p := range promoted {
		msgs = append(msgs, newOutboxMessage(entity.OutboxBookingPromoted, p, "", now))
	}
	if err := addOutbox(ctx, tx, msgs...); err != nil {
		return nil, nil, err
	}
	return promoted, msgs, nil
}

func (s *eventService) GetAvailability(ctx context.Context, id int64) (*entity.EventAvailability, error) {
	event, err := s.store.Events().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	confirmed, err := s.store.Bookings().CountByEventAndStatus(ctx, id, entity.BookingStatusConfirmed)
	if err != nil {
		return nil, fmt.Errorf("failed to count confirmed bookings: %w", err)
	}
	waitlisted, err := s.store.Bookings().CountByEventAndStatus(ctx, id, entity.BookingStatusWaitlist)
	if err != nil {
		return nil, fmt.Errorf("failed to count waitlisted bookings: %w", err)
	}

	return entity.NewEventAvailability(event, confirmed, waitlisted), nil
}

// ReconcileStatuses re-derives every non-sticky event status under its lock.
// A repair means a write path skipped the status machine and is logged.
func (s *eventService) ReconcileStatuses(ctx context.Context) (int, error) {
	events, err := s.store.Events().GetAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list events: %w", err)
	}

	repaired := 0
	for _, e := range events {
		if e.Status.Sticky() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return repaired, err
		}

		var changed bool
		var status entity.EventStatus
		err := s.runner.run(ctx, e.ID, func(ctx context.Context, tx repository.EventTx) error {
			before := tx.Event().Status
			next, err := syncEventStatus(ctx, tx, s.clock.Now())
			if err != nil {
				return err
			}
			changed, status = next != before, next
			return nil
		})
		if err != nil {
			logrus.WithError(err).WithField("event_id", e.ID).Error("Failed to reconcile event status")
			continue
		}
		if changed {
			repaired++
			logrus.WithFields(logrus.Fields{
				"event_id": e.ID,
				"status":   status,
			}).Warn("Event status was out of sync and has been repaired")
		}
	}
	return repaired, nil
}

func (s *eventService) dispatch(ctx context.Context, msgs []*entity.OutboxMessage) {
	if s.dispatcher == nil || len(msgs) == 0 {
		return
	}
	s.dispatcher.Dispatch(ctx, msgs)
}
