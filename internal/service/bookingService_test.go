package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hlachaal/24hkids-platform/internal/database/memory"
	"github.com/hlachaal/24hkids-platform/internal/database/repository"
	"github.com/hlachaal/24hkids-platform/internal/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreate_FillsSeatsThenWaitlist(t *testing.T) {
	h := newHarness(t)
	event := h.event(t, eventSpec{capacity: 2})

	var got []entity.BookingStatus
	for i := 0; i < 3; i++ {
		got = append(got, h.book(t, h.child(t, 8), event).Status)
	}

	assert.Equal(t, []entity.BookingStatus{
		entity.BookingStatusConfirmed,
		entity.BookingStatusConfirmed,
		entity.BookingStatusWaitlist,
	}, got)
	assert.Equal(t, entity.EventStatusFull, h.eventStatus(t, event.ID))
	assert.Contains(t, h.audit.actions(), entity.AuditReservationCreated)
}

func TestCreate_Rejections(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	event := h.event(t, eventSpec{capacity: 5})
	overlapping := h.event(t, eventSpec{offset: time.Hour, capacity: 5})
	cancelled := h.event(t, eventSpec{offset: 48 * time.Hour, capacity: 5})
	_, err := h.events.SetStatus(ctx, &SetEventStatusRequest{EventID: cancelled.ID, Status: entity.EventStatusCancelled})
	require.NoError(t, err)

	booked := h.child(t, 8)
	h.book(t, booked, event)

	tests := []struct {
		name    string
		childID int64
		eventID int64
		status  entity.BookingStatus
		wantErr error
	}{
		{name: "too young", childID: h.child(t, 5).ID, eventID: event.ID, wantErr: entity.ErrIneligibleAge},
		{name: "too old", childID: h.child(t, 13).ID, eventID: event.ID, wantErr: entity.ErrIneligibleAge},
		{name: "duplicate", childID: booked.ID, eventID: event.ID, wantErr: entity.ErrDuplicateBooking},
		{name: "overlap with confirmed booking", childID: booked.ID, eventID: overlapping.ID, wantErr: entity.ErrScheduleConflict},
		{name: "overlap blocks waitlist too", childID: booked.ID, eventID: overlapping.ID, status: entity.BookingStatusWaitlist, wantErr: entity.ErrScheduleConflict},
		{name: "cancelled event", childID: h.child(t, 8).ID, eventID: cancelled.ID, wantErr: entity.ErrEventNotBookable},
		{name: "unknown event", childID: booked.ID, eventID: 999, wantErr: entity.ErrNotFound},
		{name: "unknown child", childID: 999, eventID: event.ID, wantErr: entity.ErrNotFound},
		{name: "invalid request", childID: 0, eventID: event.ID, wantErr: entity.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.bookings.Create(ctx, &CreateBookingRequest{ChildID: tt.childID, EventID: tt.eventID, RequestedStatus: tt.status})
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	confirmed, err := h.store.Bookings().CountByEventAndStatus(ctx, event.ID, entity.BookingStatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, 1, confirmed)
}

func TestCreate_AdjacentEventsDoNotOverlap(t *testing.T) {
	h := newHarness(t)
	morning := h.event(t, eventSpec{duration: 2 * time.Hour, capacity: 1})
	afternoon := h.event(t, eventSpec{offset: 2 * time.Hour, capacity: 1})
	child := h.child(t, 9)

	h.book(t, child, morning)
	assert.Equal(t, entity.BookingStatusConfirmed, h.book(t, child, afternoon).Status)
}

func TestCreate_WaitlistedBookingDoesNotBlockSchedule(t *testing.T) {
	h := newHarness(t)
	full := h.event(t, eventSpec{capacity: 1})
	overlapping := h.event(t, eventSpec{offset: time.Hour, capacity: 1})
	h.book(t, h.child(t, 8), full)

	child := h.child(t, 9)
	assert.Equal(t, entity.BookingStatusWaitlist, h.book(t, child, full).Status)
	assert.Equal(t, entity.BookingStatusConfirmed, h.book(t, child, overlapping).Status)
}

func TestCreate_RequestedStatus(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	event := h.event(t, eventSpec{capacity: 1})

	waitlisted, err := h.bookings.Create(ctx, &CreateBookingRequest{
		ChildID: h.child(t, 8).ID, EventID: event.ID, RequestedStatus: entity.BookingStatusWaitlist,
	})
	require.NoError(t, err)
	assert.Equal(t, entity.BookingStatusWaitlist, waitlisted.Status)

	h.book(t, h.child(t, 8), event)

	_, err = h.bookings.Create(ctx, &CreateBookingRequest{
		ChildID: h.child(t, 8).ID, EventID: event.ID, RequestedStatus: entity.BookingStatusConfirmed,
	})
	assert.ErrorIs(t, err, entity.ErrCapacityExceeded)
}

func TestCreate_ConcurrentRequestsNeverOverbook(t *testing.T) {
	tests := []struct {
		name     string
		store    func(t *testing.T) repository.Store
		children int
		capacity int
	}{
		{name: "memory", store: func(t *testing.T) repository.Store { return memory.NewStore() }, children: 40, capacity: 7},
		{name: "sqlite", store: openSQLiteStore, children: 24, capacity: 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarnessWithStore(t, tt.store(t))
			event := h.event(t, eventSpec{capacity: tt.capacity})

			ids := make([]int64, tt.children)
			for i := range ids {
				ids[i] = h.child(t, 8).ID
			}

			var wg sync.WaitGroup
			errs := make(chan error, tt.children)
			for _, id := range ids {
				wg.Add(1)
				go func(childID int64) {
					defer wg.Done()
					_, err := h.bookings.Create(context.Background(), &CreateBookingRequest{ChildID: childID, EventID: event.ID})
					errs <- err
				}(id)
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				require.NoError(t, err)
			}

			ctx := context.Background()
			confirmed, err := h.store.Bookings().CountByEventAndStatus(ctx, event.ID, entity.BookingStatusConfirmed)
			require.NoError(t, err)
			waitlisted, err := h.store.Bookings().CountByEventAndStatus(ctx, event.ID, entity.BookingStatusWaitlist)
			require.NoError(t, err)

			assert.Equal(t, tt.capacity, confirmed)
			assert.Equal(t, tt.children-tt.capacity, waitlisted)
			assert.Equal(t, entity.EventStatusFull, h.eventStatus(t, event.ID))
		})
	}
}

func TestDelete_PromotesOldestWaitlisted(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	event := h.event(t, eventSpec{capacity: 1})

	confirmed := h.book(t, h.child(t, 8), event)
	first := h.book(t, h.child(t, 8), event)
	second := h.book(t, h.child(t, 8), event)

	result, err := h.bookings.Delete(ctx, &DeleteBookingRequest{BookingID: confirmed.ID, Reason: "sick", Actor: "admin"})
	require.NoError(t, err)

	assert.Equal(t, confirmed.ID, result.Deleted.ID)
	require.Len(t, result.Promoted, 1)
	assert.Equal(t, first.ID, result.Promoted[0].ID)
	assert.Equal(t, []entity.EventStatus{entity.EventStatusFull, entity.EventStatusActive, entity.EventStatusFull}, result.StatusTrail)

	assert.Equal(t, entity.BookingStatusConfirmed, h.bookingStatus(t, first.ID))
	assert.Equal(t, entity.BookingStatusWaitlist, h.bookingStatus(t, second.ID))
	assert.Equal(t, entity.EventStatusFull, h.eventStatus(t, event.ID))

	assert.Equal(t, []notification{
		{kind: entity.OutboxBookingDeleted, bookingID: confirmed.ID, reason: "sick"},
		{kind: entity.OutboxBookingPromoted, bookingID: first.ID},
	}, h.notifier.notifications())

	pending, err := h.store.Outbox().GetPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	_, err = h.store.Bookings().GetByID(ctx, confirmed.ID)
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestDelete_WithEmptyWaitlistReopensEvent(t *testing.T) {
	h := newHarness(t)
	event := h.event(t, eventSpec{capacity: 1})
	booking := h.book(t, h.child(t, 8), event)

	result, err := h.bookings.Delete(context.Background(), &DeleteBookingRequest{BookingID: booking.ID})
	require.NoError(t, err)

	assert.Empty(t, result.Promoted)
	assert.Equal(t, []entity.EventStatus{entity.EventStatusFull, entity.EventStatusActive}, result.StatusTrail)
	assert.Equal(t, entity.EventStatusActive, h.eventStatus(t, event.ID))
}

func TestDelete_WaitlistedBookingFreesNoSeat(t *testing.T) {
	h := newHarness(t)
	event := h.event(t, eventSpec{capacity: 1})
	h.book(t, h.child(t, 8), event)
	waitlisted := h.book(t, h.child(t, 8), event)
	other := h.book(t, h.child(t, 8), event)

	result, err := h.bookings.Delete(context.Background(), &DeleteBookingRequest{BookingID: waitlisted.ID})
	require.NoError(t, err)

	assert.Empty(t, result.Promoted)
	assert.Equal(t, []entity.EventStatus{entity.EventStatusFull}, result.StatusTrail)
	assert.Equal(t, entity.BookingStatusWaitlist, h.bookingStatus(t, other.ID))
}

func TestDelete_SkipsIneligibleWaitlistEntries(t *testing.T) {
	h := newHarness(t)
	event := h.event(t, eventSpec{capacity: 1})
	clash := h.event(t, eventSpec{offset: time.Hour, capacity: 5})

	confirmed := h.book(t, h.child(t, 8), event)
	busy := h.child(t, 8)
	skipped := h.book(t, busy, event)
	next := h.book(t, h.child(t, 8), event)

	// busy gets a confirmed seat in an overlapping event while waiting.
	h.book(t, busy, clash)

	result, err := h.bookings.Delete(context.Background(), &DeleteBookingRequest{BookingID: confirmed.ID})
	require.NoError(t, err)

	require.Len(t, result.Promoted, 1)
	assert.Equal(t, next.ID, result.Promoted[0].ID)
	assert.Equal(t, entity.BookingStatusWaitlist, h.bookingStatus(t, skipped.ID))
}

func TestDelete_OnCancelledEventDoesNotPromote(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	event := h.event(t, eventSpec{capacity: 1})
	confirmed := h.book(t, h.child(t, 8), event)
	waitlisted := h.book(t, h.child(t, 8), event)

	_, err := h.events.SetStatus(ctx, &SetEventStatusRequest{EventID: event.ID, Status: entity.EventStatusCancelled})
	require.NoError(t, err)

	result, err := h.bookings.Delete(ctx, &DeleteBookingRequest{BookingID: confirmed.ID})
	require.NoError(t, err)

	assert.Empty(t, result.Promoted)
	assert.Equal(t, []entity.EventStatus{entity.EventStatusCancelled, entity.EventStatusCancelled}, result.StatusTrail)
	assert.Equal(t, entity.BookingStatusWaitlist, h.bookingStatus(t, waitlisted.ID))
}

func TestDelete_UnknownBooking(t *testing.T) {
	h := newHarness(t)
	_, err := h.bookings.Delete(context.Background(), &DeleteBookingRequest{BookingID: 42})
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestConfirmFromWaitlist(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	event := h.event(t, eventSpec{capacity: 2})

	confirmed := h.book(t, h.child(t, 8), event)
	manual, err := h.bookings.Create(ctx, &CreateBookingRequest{
		ChildID: h.child(t, 8).ID, EventID: event.ID, RequestedStatus: entity.BookingStatusWaitlist,
	})
	require.NoError(t, err)

	_, err = h.bookings.ConfirmFromWaitlist(ctx, confirmed.ID, "admin")
	assert.ErrorIs(t, err, entity.ErrValidation)

	booking, err := h.bookings.ConfirmFromWaitlist(ctx, manual.ID, "admin")
	require.NoError(t, err)
	assert.Equal(t, entity.BookingStatusConfirmed, booking.Status)
	assert.Equal(t, entity.EventStatusFull, h.eventStatus(t, event.ID))
	assert.Contains(t, h.audit.actions(), entity.AuditReservationStatusChanged)

	late := h.book(t, h.child(t, 8), event)
	_, err = h.bookings.ConfirmFromWaitlist(ctx, late.ID, "admin")
	assert.ErrorIs(t, err, entity.ErrCapacityExceeded)
}

func TestUpdateStatus_DemotionPromotesNextInLine(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	event := h.event(t, eventSpec{capacity: 1})
	demoted := h.book(t, h.child(t, 8), event)
	waiting := h.book(t, h.child(t, 8), event)

	result, err := h.bookings.UpdateStatus(ctx, &UpdateBookingStatusRequest{BookingID: demoted.ID, Status: entity.BookingStatusWaitlist})
	require.NoError(t, err)

	assert.Equal(t, entity.BookingStatusConfirmed, result.Previous)
	assert.Equal(t, entity.BookingStatusWaitlist, result.Booking.Status)
	require.Len(t, result.Promoted, 1)
	assert.Equal(t, waiting.ID, result.Promoted[0].ID)
	assert.Equal(t, entity.EventStatusFull, h.eventStatus(t, event.ID))
}

func TestUpdateStatus_DemotedBookingIsNotRepromoted(t *testing.T) {
	h := newHarness(t)
	event := h.event(t, eventSpec{capacity: 1})
	demoted := h.book(t, h.child(t, 8), event)

	result, err := h.bookings.UpdateStatus(context.Background(), &UpdateBookingStatusRequest{BookingID: demoted.ID, Status: entity.BookingStatusWaitlist})
	require.NoError(t, err)

	assert.Empty(t, result.Promoted)
	assert.Equal(t, entity.BookingStatusWaitlist, h.bookingStatus(t, demoted.ID))
	assert.Equal(t, entity.EventStatusActive, h.eventStatus(t, event.ID))
}

func TestUpdateStatus_SameStatusIsNoop(t *testing.T) {
	h := newHarness(t)
	event := h.event(t, eventSpec{capacity: 1})
	booking := h.book(t, h.child(t, 8), event)
	before := len(h.audit.actions())

	result, err := h.bookings.UpdateStatus(context.Background(), &UpdateBookingStatusRequest{BookingID: booking.ID, Status: entity.BookingStatusConfirmed})
	require.NoError(t, err)
	assert.Equal(t, result.Previous, result.Booking.Status)
	assert.Len(t, h.audit.actions(), before)
}

func TestGetters(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	event := h.event(t, eventSpec{capacity: 1})
	child := h.child(t, 8)
	waitChild := h.child(t, 8)
	h.book(t, waitChild, event)
	booking := h.book(t, child, event)

	got, err := h.bookings.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.ID, got.ID)

	list, err := h.bookings.GetEventBookings(ctx, event.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, entity.BookingStatusConfirmed, list[0].Status)

	list, err = h.bookings.GetChildBookings(ctx, child.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = h.bookings.GetEventBookings(ctx, 999)
	assert.ErrorIs(t, err, entity.ErrNotFound)
	_, err = h.bookings.GetChildBookings(ctx, 999)
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

// flakyStore fails the first failures InEventTx calls with a transient conflict.
type flakyStore struct {
	repository.Store

	mu       sync.Mutex
	failures int
	calls    int
}

func (s *flakyStore) InEventTx(ctx context.Context, eventID int64, fn func(tx repository.EventTx) error) error {
	s.mu.Lock()
	s.calls++
	fail := s.calls <= s.failures
	s.mu.Unlock()

	if fail {
		return entity.ErrTransientStoreConflict
	}
	return s.Store.InEventTx(ctx, eventID, fn)
}

func TestCreate_RetriesTransientConflicts(t *testing.T) {
	tests := []struct {
		name      string
		failures  int
		wantErr   bool
		wantCalls int
	}{
		{name: "succeeds after retries", failures: 2, wantErr: false, wantCalls: 3},
		{name: "gives up after max attempts", failures: 10, wantErr: true, wantCalls: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			event := h.event(t, eventSpec{capacity: 1})
			child := h.child(t, 8)

			flaky := &flakyStore{Store: h.store, failures: tt.failures}
			h.wire(flaky)

			_, err := h.bookings.Create(context.Background(), &CreateBookingRequest{ChildID: child.ID, EventID: event.ID})
			if tt.wantErr {
				assert.True(t, entity.IsTransient(err))
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantCalls, flaky.calls)
		})
	}
}
