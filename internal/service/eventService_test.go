package service

import (
	"context"
	"testing"
	"time"

	"github.com/hlachaal/24hkids-platform/internal/database/repository"
	"github.com/hlachaal/24hkids-platform/internal/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateEvent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	event := h.event(t, eventSpec{capacity: 3})
	assert.Equal(t, entity.EventStatusActive, event.Status)
	assert.Contains(t, h.audit.actions(), entity.AuditWorkshopCreated)

	tests := []struct {
		name string
		req  CreateEventRequest
	}{
		{name: "missing title", req: CreateEventRequest{StartsAt: eventStart, EndsAt: eventStart.Add(time.Hour), MaxAge: 10, Capacity: 1}},
		{name: "ends before start", req: CreateEventRequest{Title: "x", StartsAt: eventStart, EndsAt: eventStart.Add(-time.Hour), MaxAge: 10, Capacity: 1}},
		{name: "empty age range", req: CreateEventRequest{Title: "x", StartsAt: eventStart, EndsAt: eventStart.Add(time.Hour), MinAge: 8, MaxAge: 8, Capacity: 1}},
		{name: "no seats", req: CreateEventRequest{Title: "x", StartsAt: eventStart, EndsAt: eventStart.Add(time.Hour), MaxAge: 10, Capacity: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.events.CreateEvent(ctx, &tt.req)
			assert.ErrorIs(t, err, entity.ErrValidation)
		})
	}
}

func TestUpdateCapacity(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	event := h.event(t, eventSpec{capacity: 2})

	h.book(t, h.child(t, 8), event)
	h.book(t, h.child(t, 8), event)
	first := h.book(t, h.child(t, 8), event)
	second := h.book(t, h.child(t, 8), event)
	third := h.book(t, h.child(t, 8), event)

	_, err := h.events.UpdateCapacity(ctx, &UpdateCapacityRequest{EventID: event.ID, Capacity: 1})
	assert.ErrorIs(t, err, entity.ErrValidation)

	result, err := h.events.UpdateCapacity(ctx, &UpdateCapacityRequest{EventID: event.ID, Capacity: 4})
	require.NoError(t, err)

	require.Len(t, result.Promoted, 2)
	assert.Equal(t, first.ID, result.Promoted[0].ID)
	assert.Equal(t, second.ID, result.Promoted[1].ID)
	assert.Equal(t, 4, result.Event.Capacity)
	assert.Equal(t, entity.EventStatusFull, result.Event.Status)
	assert.Equal(t, entity.BookingStatusWaitlist, h.bookingStatus(t, third.ID))

	result, err = h.events.UpdateCapacity(ctx, &UpdateCapacityRequest{EventID: event.ID, Capacity: 10})
	require.NoError(t, err)
	assert.Len(t, result.Promoted, 1)
	assert.Equal(t, entity.EventStatusActive, result.Event.Status)

	availability, err := h.events.GetAvailability(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, &entity.EventAvailability{
		EventID:    event.ID,
		Capacity:   10,
		Confirmed:  5,
		Waitlisted: 0,
		Remaining:  5,
		Status:     entity.EventStatusActive,
	}, availability)
}

func TestSetStatus(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	event := h.event(t, eventSpec{capacity: 1})
	confirmed := h.book(t, h.child(t, 8), event)
	waiting := h.book(t, h.child(t, 8), event)

	result, err := h.events.SetStatus(ctx, &SetEventStatusRequest{EventID: event.ID, Status: entity.EventStatusDisabled})
	require.NoError(t, err)
	assert.Equal(t, entity.EventStatusDisabled, result.Event.Status)

	availability, err := h.events.GetAvailability(ctx, event.ID)
	require.NoError(t, err)
	assert.Zero(t, availability.Remaining)

	// A seat freed while disabled stays empty until the event reopens.
	_, err = h.bookings.Delete(ctx, &DeleteBookingRequest{BookingID: confirmed.ID})
	require.NoError(t, err)
	assert.Equal(t, entity.BookingStatusWaitlist, h.bookingStatus(t, waiting.ID))

	result, err = h.events.SetStatus(ctx, &SetEventStatusRequest{EventID: event.ID, Status: entity.EventStatusActive})
	require.NoError(t, err)
	require.Len(t, result.Promoted, 1)
	assert.Equal(t, waiting.ID, result.Promoted[0].ID)
	assert.Equal(t, entity.EventStatusFull, result.Event.Status)

	_, err = h.events.SetStatus(ctx, &SetEventStatusRequest{EventID: event.ID, Status: entity.EventStatusFull})
	assert.ErrorIs(t, err, entity.ErrValidation)

	_, err = h.events.SetStatus(ctx, &SetEventStatusRequest{EventID: 999, Status: entity.EventStatusCancelled})
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestReconcileStatuses(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	drifted := h.event(t, eventSpec{capacity: 2})
	healthy := h.event(t, eventSpec{offset: 24 * time.Hour, capacity: 1})
	cancelled := h.event(t, eventSpec{offset: 48 * time.Hour, capacity: 1})
	h.book(t, h.child(t, 8), healthy)

	_, err := h.events.SetStatus(ctx, &SetEventStatusRequest{EventID: cancelled.ID, Status: entity.EventStatusCancelled})
	require.NoError(t, err)

	// Simulate a write that bypassed the status machine.
	require.NoError(t, h.store.InEventTx(ctx, drifted.ID, func(tx repository.EventTx) error {
		return tx.UpdateEvent(ctx, 2, entity.EventStatusFull, today)
	}))

	repaired, err := h.events.ReconcileStatuses(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, repaired)

	assert.Equal(t, entity.EventStatusActive, h.eventStatus(t, drifted.ID))
	assert.Equal(t, entity.EventStatusFull, h.eventStatus(t, healthy.ID))
	assert.Equal(t, entity.EventStatusCancelled, h.eventStatus(t, cancelled.ID))

	repaired, err = h.events.ReconcileStatuses(ctx)
	require.NoError(t, err)
	assert.Zero(t, repaired)
}

func TestGetAllEvents(t *testing.T) {
	h := newHarness(t)
	later := h.event(t, eventSpec{offset: 24 * time.Hour, capacity: 1})
	sooner := h.event(t, eventSpec{capacity: 1})

	events, err := h.events.GetAllEvents(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, sooner.ID, events[0].ID)
	assert.Equal(t, later.ID, events[1].ID)
}

func TestUpdateDetails(t *testing.T) {
	ctx := context.Background()

	details := func(event *entity.Event) UpdateEventRequest {
		return UpdateEventRequest{
			EventID:  event.ID,
			Title:    "Robotics",
			StartsAt: event.StartsAt,
			EndsAt:   event.EndsAt,
			MinAge:   event.MinAge,
			MaxAge:   event.MaxAge,
			Actor:    "admin",
		}
	}

	t.Run("moves the event when confirmed children still fit", func(t *testing.T) {
		h := newHarness(t)
		event := h.event(t, eventSpec{capacity: 2})
		h.book(t, h.child(t, 8), event)

		req := details(event)
		req.StartsAt = eventStart.Add(24 * time.Hour)
		req.EndsAt = req.StartsAt.Add(3 * time.Hour)
		result, err := h.events.UpdateDetails(ctx, &req)
		require.NoError(t, err)
		assert.Equal(t, "Robotics", result.Event.Title)
		assert.True(t, req.StartsAt.Equal(result.Event.StartsAt))
		assert.Equal(t, 2, result.Event.Capacity)
		assert.Equal(t, entity.EventStatusActive, result.Event.Status)
		assert.Contains(t, h.audit.actions(), entity.AuditWorkshopUpdated)
	})

	t.Run("refuses an age range that drops a confirmed child", func(t *testing.T) {
		h := newHarness(t)
		event := h.event(t, eventSpec{capacity: 2, minAge: 6, maxAge: 12})
		h.book(t, h.child(t, 7), event)

		req := details(event)
		req.MinAge = 8
		_, err := h.events.UpdateDetails(ctx, &req)
		assert.ErrorIs(t, err, entity.ErrIneligibleAge)

		stored, err := h.events.GetEvent(ctx, event.ID)
		require.NoError(t, err)
		assert.Equal(t, 6, stored.MinAge)
		assert.Equal(t, "Workshop", stored.Title)
	})

	t.Run("refuses a move onto another confirmed event of the same child", func(t *testing.T) {
		h := newHarness(t)
		morning := h.event(t, eventSpec{capacity: 1})
		afternoon := h.event(t, eventSpec{capacity: 1, offset: 4 * time.Hour})
		child := h.child(t, 8)
		h.book(t, child, morning)
		h.book(t, child, afternoon)

		req := details(afternoon)
		req.StartsAt = eventStart.Add(time.Hour)
		req.EndsAt = eventStart.Add(3 * time.Hour)
		_, err := h.events.UpdateDetails(ctx, &req)
		assert.ErrorIs(t, err, entity.ErrScheduleConflict)
	})

	t.Run("widening the age range fills free seats from the waitlist", func(t *testing.T) {
		h := newHarness(t)
		event := h.event(t, eventSpec{capacity: 1, minAge: 6, maxAge: 12})
		first := h.book(t, h.child(t, 8), event)
		waiting := h.book(t, h.child(t, 7), event)

		narrow := details(event)
		narrow.MinAge = 8
		_, err := h.events.UpdateDetails(ctx, &narrow)
		require.NoError(t, err)

		_, err = h.bookings.Delete(ctx, &DeleteBookingRequest{BookingID: first.ID})
		require.NoError(t, err)
		assert.Equal(t, entity.BookingStatusWaitlist, h.bookingStatus(t, waiting.ID))
		assert.Equal(t, entity.EventStatusActive, h.eventStatus(t, event.ID))

		wide := details(event)
		result, err := h.events.UpdateDetails(ctx, &wide)
		require.NoError(t, err)
		require.Len(t, result.Promoted, 1)
		assert.Equal(t, waiting.ID, result.Promoted[0].ID)
		assert.Equal(t, entity.BookingStatusConfirmed, h.bookingStatus(t, waiting.ID))
		assert.Equal(t, entity.EventStatusFull, h.eventStatus(t, event.ID))
	})

	t.Run("rejections", func(t *testing.T) {
		h := newHarness(t)
		event := h.event(t, eventSpec{capacity: 1})

		bad := details(event)
		bad.EndsAt = bad.StartsAt
		_, err := h.events.UpdateDetails(ctx, &bad)
		assert.ErrorIs(t, err, entity.ErrValidation)

		missing := details(event)
		missing.EventID = 999
		_, err = h.events.UpdateDetails(ctx, &missing)
		assert.ErrorIs(t, err, entity.ErrNotFound)
	})
}

func TestDeleteEvent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	event := h.event(t, eventSpec{capacity: 1})
	child := h.child(t, 8)
	booking := h.book(t, child, event)

	err := h.events.DeleteEvent(ctx, event.ID, "admin")
	assert.ErrorIs(t, err, entity.ErrValidation)
	_, err = h.events.GetEvent(ctx, event.ID)
	require.NoError(t, err)

	_, err = h.bookings.Delete(ctx, &DeleteBookingRequest{BookingID: booking.ID})
	require.NoError(t, err)
	require.NoError(t, h.events.DeleteEvent(ctx, event.ID, "admin"))

	_, err = h.events.GetEvent(ctx, event.ID)
	assert.ErrorIs(t, err, entity.ErrNotFound)
	assert.ErrorIs(t, h.events.DeleteEvent(ctx, event.ID, "admin"), entity.ErrNotFound)
	assert.Contains(t, h.audit.actions(), entity.AuditWorkshopDeleted)
}
