package entity

import (
	"time"
)

type EventStatus string

const (
	EventStatusActive    EventStatus = "ACTIVE"
	EventStatusFull      EventStatus = "FULL"
	EventStatusCancelled EventStatus = "CANCELLED"
	EventStatusDisabled  EventStatus = "DISABLED"
)

func (s EventStatus) Valid() bool {
	switch s {
	case EventStatusActive, EventStatusFull, EventStatusCancelled, EventStatusDisabled:
		return true
	}
	return false
}

// Bookable reports whether new bookings or promotions may be written.
// FULL events still accept waitlist joins.
func (s EventStatus) Bookable() bool {
	return s == EventStatusActive || s == EventStatusFull
}

// Sticky statuses are set by an administrator and never derived from counts.
func (s EventStatus) Sticky() bool {
	return s == EventStatusCancelled || s == EventStatusDisabled
}

type Event struct {
	ID          int64       `json:"id" db:"id"`
	Title       string      `json:"title" db:"title"`
	Description string      `json:"description" db:"description"`
	StartsAt    time.Time   `json:"starts_at" db:"starts_at"`
	EndsAt      time.Time   `json:"ends_at" db:"ends_at"`
	MinAge      int         `json:"min_age" db:"min_age"`
	MaxAge      int         `json:"max_age" db:"max_age"`
	Capacity    int         `json:"capacity" db:"capacity"`
	Status      EventStatus `json:"status" db:"status"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at" db:"updated_at"`
}

func (e *Event) Window() Window {
	return Window{Start: e.StartsAt, End: e.EndsAt}
}

// EventAvailability is the seat summary of one event.
type EventAvailability struct {
	EventID    int64       `json:"event_id"`
	Capacity   int         `json:"capacity"`
	Confirmed  int         `json:"confirmed"`
	Waitlisted int         `json:"waitlisted"`
	Remaining  int         `json:"remaining"`
	Status     EventStatus `json:"status"`
}

func NewEventAvailability(event *Event, confirmed, waitlisted int) *EventAvailability {
	remaining := event.Capacity - confirmed
	if remaining < 0 || event.Status.Sticky() {
		remaining = 0
	}
	return &EventAvailability{
		EventID:    event.ID,
		Capacity:   event.Capacity,
		Confirmed:  confirmed,
		Waitlisted: waitlisted,
		Remaining:  remaining,
		Status:     event.Status,
	}
}
