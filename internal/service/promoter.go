package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hlachaal/24hkids-platform/internal/database/repository"
	"github.com/hlachaal/24hkids-platform/internal/entity"

	"github.com/sirupsen/logrus"
)

// promote moves up to seats WAITLIST bookings to CONFIRMED in FIFO order.
// It never confirms past capacity. Entries that no longer pass the age or
// schedule checks are skipped and stay on the waitlist. Bookings listed in
// exclude are not considered.
func promote(ctx context.Context, tx repository.EventTx, seats int, exclude map[int64]bool, now time.Time) ([]*entity.Booking, error) {
	event := tx.Event()
	if !event.Status.Bookable() {
		return nil, fmt.Errorf("%w: cannot promote into event %d, it is %s",
			entity.ErrEventNotBookable, event.ID, event.Status)
	}
	if seats <= 0 {
		return nil, nil
	}

	confirmed, err := tx.CountByStatus(ctx, entity.BookingStatusConfirmed)
	if err != nil {
		return nil, err
	}

	waitlist, err := tx.Waitlist(ctx)
	if err != nil {
		return nil, err
	}

	log := logrus.WithField("event_id", event.ID)
	var promoted []*entity.Booking
	for _, candidate := range waitlist {
		if len(promoted) == seats || confirmed >= event.Capacity {
			break
		}
		if exclude[candidate.ID] {
			continue
		}

		child, err := tx.LockChild(ctx, candidate.ChildID)
		if errors.Is(err, entity.ErrNotFound) {
			log.WithField("booking_id", candidate.ID).Warn("Waitlisted booking references a missing child, skipping")
			continue
		}
		if err != nil {
			return nil, err
		}

		if err := checkChildFits(ctx, tx, child, event); err != nil {
			if !isEligibilityFailure(err) {
				return nil, err
			}
			log.WithFields(logrus.Fields{
				"booking_id": candidate.ID,
				"child_id":   candidate.ChildID,
			}).WithError(err).Warn("Waitlisted booking no longer eligible, left on waitlist")
			continue
		}

		if err := tx.UpdateBookingStatus(ctx, candidate.ID, entity.BookingStatusConfirmed, now); err != nil {
			return nil, err
		}
		candidate.Status = entity.BookingStatusConfirmed
		candidate.UpdatedAt = now
		promoted = append(promoted, candidate)
		confirmed++

		log.WithFields(logrus.Fields{
			"booking_id": candidate.ID,
			"child_id":   candidate.ChildID,
		}).Info("Booking promoted from waitlist")
	}

	return promoted, nil
}

func isEligibilityFailure(err error) bool {
	return errors.Is(err, entity.ErrIneligibleAge) ||
		errors.Is(err, entity.ErrScheduleConflict) ||
		errors.Is(err, entity.ErrValidation)
}

// syncEventStatus re-derives the event status from its confirmed count and
// persists it when it changed. The resulting status is returned.
func syncEventStatus(ctx context.Context, tx repository.EventTx, now time.Time) (entity.EventStatus, error) {
	event := tx.Event()
	confirmed, err := tx.CountByStatus(ctx, entity.BookingStatusConfirmed)
	if err != nil {
		return "", err
	}

	prev := event.Status
	next := entity.DeriveStatus(event.Capacity, confirmed, prev)
	if next == prev {
		return next, nil
	}
	if err := tx.UpdateEvent(ctx, event.Capacity, next, now); err != nil {
		return "", err
	}

	logrus.WithFields(logrus.Fields{
		"event_id":  event.ID,
		"from":      prev,
		"to":        next,
		"confirmed": confirmed,
		"capacity":  event.Capacity,
	}).Debug("Event status changed")
	return next, nil
}
