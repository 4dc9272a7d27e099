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

type bookingService struct {
	store      repository.Store
	runner     *txRunner
	clock      clock.Clock
	dispatcher *Dispatcher
	audit      AuditSink
}

// NewBookingService returns the booking lifecycle orchestrator. dispatcher
// and audit may be nil.
func NewBookingService(
	store repository.Store,
	clk clock.Clock,
	dispatcher *Dispatcher,
	audit AuditSink,
	opts Options,
) BookingService {
	if audit == nil {
		audit = NopAuditSink{}
	}
	return &bookingService{
		store:      store,
		runner:     newTxRunner(store, opts),
		clock:      clk,
		dispatcher: dispatcher,
		audit:      audit,
	}
}

// Create books a child into an event. The booking is CONFIRMED while seats
// remain and WAITLIST otherwise, unless req overrides the status.
func (s *bookingService) Create(ctx context.Context, req *CreateBookingRequest) (*entity.Booking, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var booking *entity.Booking
	err := s.runner.run(ctx, req.EventID, func(ctx context.Context, tx repository.EventTx) error {
		now := s.clock.Now()
		b, err := allocate(ctx, tx, req.ChildID, req.RequestedStatus, now)
		if err != nil {
			return err
		}
		if _, err := syncEventStatus(ctx, tx, now); err != nil {
			return err
		}
		booking = b
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create booking: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"child_id":   booking.ChildID,
		"event_id":   booking.EventID,
		"status":     booking.Status,
	}).Info("Booking created")

	s.audit.Record(ctx, entity.AuditReservationCreated, req.Actor, booking.ID, map[string]interface{}{
		"child_id": booking.ChildID,
		"event_id": booking.EventID,
		"status":   string(booking.Status),
	})
	return booking, nil
}

// Delete removes a booking. When it held a seat, the oldest eligible
// waitlisted booking takes it in the same atomic unit.
func (s *bookingService) Delete(ctx context.Context, req *DeleteBookingRequest) (*DeleteResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	existing, err := s.store.Bookings().GetByID(ctx, req.BookingID)
	if err != nil {
		return nil, err
	}

	var (
		result   *DeleteResult
		messages []*entity.OutboxMessage
	)
	err = s.runner.run(ctx, existing.EventID, func(ctx context.Context, tx repository.EventTx) error {
		result, messages = nil, nil
		now := s.clock.Now()

		booking, err := tx.GetBooking(ctx, req.BookingID)
		if err != nil {
			return err
		}
		if err := tx.DeleteBooking(ctx, booking.ID); err != nil {
			return err
		}

		res := &DeleteResult{
			Deleted:     booking,
			StatusTrail: []entity.EventStatus{tx.Event().Status},
		}
		msgs := []*entity.OutboxMessage{newOutboxMessage(entity.OutboxBookingDeleted, booking, req.Reason, now)}

		if booking.Status == entity.BookingStatusConfirmed {
			status, err := syncEventStatus(ctx, tx, now)
			if err != nil {
				return err
			}
			res.StatusTrail = append(res.StatusTrail, status)

			if status.Bookable() {
				promoted, err := promote(ctx, tx, 1, nil, now)
				if err != nil {
					return err
				}
				if len(promoted) > 0 {
					if status, err = syncEventStatus(ctx, tx, now); err != nil {
						return err
					}
					res.StatusTrail = append(res.StatusTrail, status)
				}
				res.Promoted = promoted
				for _, p := range promoted {
					msgs = append(msgs, newOutboxMessage(entity.OutboxBookingPromoted, p, "", now))
				}
			}
		}

		if err := addOutbox(ctx, tx, msgs...); err != nil {
			return err
		}
		result, messages = res, msgs
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to delete booking %d: %w", req.BookingID, err)
	}

	s.dispatch(ctx, messages)

	logrus.WithFields(logrus.Fields{
		"booking_id": result.Deleted.ID,
		"event_id":   result.Deleted.EventID,
		"status":     result.Deleted.Status,
		"promoted":   len(result.Promoted),
	}).Info("Booking deleted")

	s.audit.Record(ctx, entity.AuditReservationDeleted, req.Actor, result.Deleted.ID, map[string]interface{}{
		"child_id": result.Deleted.ChildID,
		"event_id": result.Deleted.EventID,
		"status":   string(result.Deleted.Status),
		"reason":   req.Reason,
		"promoted": bookingIDs(result.Promoted),
	})
	return result, nil
}

// ConfirmFromWaitlist confirms one waitlisted booking out of FIFO order.
func (s *bookingService) ConfirmFromWaitlist(ctx context.Context, bookingID int64, actor string) (*entity.Booking, error) {
	res, err := s.UpdateStatus(ctx, &UpdateBookingStatusRequest{
		BookingID: bookingID,
		Status:    entity.BookingStatusConfirmed,
		Actor:     actor,
	})
	if err != nil {
		return nil, err
	}
	if res.Previous != entity.BookingStatusWaitlist {
		return nil, fmt.Errorf("%w: booking %d is %s, only WAITLIST bookings can be confirmed",
			entity.ErrValidation, bookingID, res.Previous)
	}
	return res.Booking, nil
}

// UpdateStatus moves a booking between CONFIRMED and WAITLIST. A demoted
// booking frees its seat for the waitlist but is not itself considered for
// that seat.
func (s *bookingService) UpdateStatus(ctx context.Context, req *UpdateBookingStatusRequest) (*StatusChangeResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	existing, err := s.store.Bookings().GetByID(ctx, req.BookingID)
	if err != nil {
		return nil, err
	}

	var (
		result   *StatusChangeResult
		messages []*entity.OutboxMessage
	)
	err = s.runner.run(ctx, existing.EventID, func(ctx context.Context, tx repository.EventTx) error {
		result, messages = nil, nil
		now := s.clock.Now()

		booking, err := tx.GetBooking(ctx, req.BookingID)
		if err != nil {
			return err
		}
		res := &StatusChangeResult{Booking: booking, Previous: booking.Status}

		switch {
		case booking.Status == req.Status:
			result = res
			return nil
		case req.Status == entity.BookingStatusConfirmed:
			if err := confirmWaitlisted(ctx, tx, booking, now); err != nil {
				return err
			}
		default:
			if err := tx.UpdateBookingStatus(ctx, booking.ID, entity.BookingStatusWaitlist, now); err != nil {
				return err
			}
			booking.Status = entity.BookingStatusWaitlist
			booking.UpdatedAt = now

			status, err := syncEventStatus(ctx, tx, now)
			if err != nil {
				return err
			}
			if status.Bookable() {
				promoted, err := promote(ctx, tx, 1, map[int64]bool{booking.ID: true}, now)
				if err != nil {
					return err
				}
				res.Promoted = promoted
			}
		}

		if _, err := syncEventStatus(ctx, tx, now); err != nil {
			return err
		}

		var msgs []*entity.OutboxMessage
		if booking.Status == entity.BookingStatusConfirmed {
			msgs = append(msgs, newOutboxMessage(entity.OutboxBookingPromoted, booking, "", now))
		}
		for _, p := range res.Promoted {
			msgs = append(msgs, newOutboxMessage(entity.OutboxBookingPromoted, p, "", now))
		}
		if err := addOutbox(ctx, tx, msgs...); err != nil {
			return err
		}
		result, messages = res, msgs
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update booking %d: %w", req.BookingID, err)
	}
	if result.Previous == result.Booking.Status {
		return result, nil
	}

	s.dispatch(ctx, messages)

	logrus.WithFields(logrus.Fields{
		"booking_id": result.Booking.ID,
		"from":       result.Previous,
		"to":         result.Booking.Status,
		"promoted":   len(result.Promoted),
	}).Info("Booking status changed")

	s.audit.Record(ctx, entity.AuditReservationStatusChanged, req.Actor, result.Booking.ID, map[string]interface{}{
		"event_id": result.Booking.EventID,
		"from":     string(result.Previous),
		"to":       string(result.Booking.Status),
		"promoted": bookingIDs(result.Promoted),
	})
	return result, nil
}

// confirmWaitlisted takes a free seat for a WAITLIST booking after re-running
// the eligibility checks. It fails instead of skipping.
func confirmWaitlisted(ctx context.Context, tx repository.EventTx, booking *entity.Booking, now time.Time) error {
	if booking.Status != entity.BookingStatusWaitlist {
		return fmt.Errorf("%w: booking %d is %s, only WAITLIST bookings can be confirmed",
			entity.ErrValidation, booking.ID, booking.Status)
	}

	event := tx.Event()
	if !event.Status.Bookable() {
		return fmt.Errorf("%w: event %d is %s", entity.ErrEventNotBookable, event.ID, event.Status)
	}

	confirmed, err := tx.CountByStatus(ctx, entity.BookingStatusConfirmed)
	if err != nil {
		return err
	}
	if confirmed >= event.Capacity {
		return fmt.Errorf("%w: event %d has %d of %d seats taken",
			entity.ErrCapacityExceeded, event.ID, confirmed, event.Capacity)
	}

	child, err := tx.LockChild(ctx, booking.ChildID)
	if err != nil {
		return err
	}
	if err := checkChildFits(ctx, tx, child, event); err != nil {
		return err
	}

	if err := tx.UpdateBookingStatus(ctx, booking.ID, entity.BookingStatusConfirmed, now); err != nil {
		return err
	}
	booking.Status = entity.BookingStatusConfirmed
	booking.UpdatedAt = now
	return nil
}

func (s *bookingService) GetBooking(ctx context.Context, id int64) (*entity.Booking, error) {
	return s.store.Bookings().GetByID(ctx, id)
}

func (s *bookingService) GetEventBookings(ctx context.Context, eventID int64) ([]*entity.Booking, error) {
	if _, err := s.store.Events().GetByID(ctx, eventID); err != nil {
		return nil, err
	}
	return s.store.Bookings().GetByEventID(ctx, eventID)
}

func (s *bookingService) GetChildBookings(ctx context.Context, childID int64) ([]*entity.Booking, error) {
	if _, err := s.store.Children().GetByID(ctx, childID); err != nil {
		return nil, err
	}
	return s.store.Bookings().GetByChildID(ctx, childID)
}

func (s *bookingService) dispatch(ctx context.Context, msgs []*entity.OutboxMessage) {
	if s.dispatcher == nil || len(msgs) == 0 {
		return
	}
	s.dispatcher.Dispatch(ctx, msgs)
}

func bookingIDs(bookings []*entity.Booking) []int64 {
	ids := make([]int64, 0, len(bookings))
	for _, b := range bookings {
		ids = append(ids, b.ID)
	}
	return ids
}
