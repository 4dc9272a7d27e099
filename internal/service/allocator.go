package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hlachaal/24hkids-platform/internal/database/repository"
	"github.com/hlachaal/24hkids-platform/internal/entity"
)

// allocate decides the status of a new booking and writes it. It must run
// inside the event's atomic unit: the confirmed count it reads is only
// stable while the event lock is held.
//
// An empty requested status lets capacity decide. CONFIRMED is refused with
// ErrCapacityExceeded when no seat is left; WAITLIST is always honoured.
func allocate(ctx context.Context, tx repository.EventTx, childID int64, requested entity.BookingStatus, now time.Time) (*entity.Booking, error) {
	event := tx.Event()
	if !event.Status.Bookable() {
		return nil, fmt.Errorf("%w: event %d is %s", entity.ErrEventNotBookable, event.ID, event.Status)
	}

	child, err := tx.LockChild(ctx, childID)
	if err != nil {
		return nil, err
	}

	existing, err := tx.GetBookingForChild(ctx, childID)
	switch {
	case err == nil:
		return nil, fmt.Errorf("%w: child %d already holds booking %d (%s)",
			entity.ErrDuplicateBooking, childID, existing.ID, existing.Status)
	case !errors.Is(err, entity.ErrNotFound):
		return nil, err
	}

	if err := checkChildFits(ctx, tx, child, event); err != nil {
		return nil, err
	}

	confirmed, err := tx.CountByStatus(ctx, entity.BookingStatusConfirmed)
	if err != nil {
		return nil, err
	}

	status := entity.BookingStatusWaitlist
	if confirmed < event.Capacity {
		status = entity.BookingStatusConfirmed
	}
	switch requested {
	case entity.BookingStatusConfirmed:
		if confirmed >= event.Capacity {
			return nil, fmt.Errorf("%w: event %d has %d of %d seats taken",
				entity.ErrCapacityExceeded, event.ID, confirmed, event.Capacity)
		}
		status = entity.BookingStatusConfirmed
	case entity.BookingStatusWaitlist:
		status = entity.BookingStatusWaitlist
	}

	booking := &entity.Booking{
		ChildID:   childID,
		EventID:   event.ID,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.CreateBooking(ctx, booking); err != nil {
		return nil, err
	}
	return booking, nil
}

// checkChildFits runs the age and schedule checks for child against event.
// The schedule check is made against the child's CONFIRMED bookings only.
func checkChildFits(ctx context.Context, tx repository.EventTx, child *entity.Child, event *entity.Event) error {
	ok, err := entity.IsEligible(child.BirthDate.Time, event.StartsAt, event.MinAge, event.MaxAge)
	if err != nil {
		return err
	}
	if !ok {
		age, _ := entity.AgeAt(child.BirthDate.Time, event.StartsAt)
		return fmt.Errorf("%w: child %d is %d on %s, event %d accepts %d-%d",
			entity.ErrIneligibleAge, child.ID, age, event.StartsAt.UTC().Format("2006-01-02"), event.ID, event.MinAge, event.MaxAge)
	}

	windows, err := tx.ConfirmedWindows(ctx, child.ID)
	if err != nil {
		return err
	}
	if entity.HasOverlap(event.Window(), windows) {
		return fmt.Errorf("%w: child %d is already confirmed during %s - %s",
			entity.ErrScheduleConflict, child.ID, event.StartsAt.Format(time.RFC3339), event.EndsAt.Format(time.RFC3339))
	}
	return nil
}
