package entity

import (
	"time"
)

type BookingStatus string

const (
	BookingStatusConfirmed BookingStatus = "CONFIRMED"
	BookingStatusWaitlist  BookingStatus = "WAITLIST"
)

func (s BookingStatus) Valid() bool {
	return s == BookingStatusConfirmed || s == BookingStatusWaitlist
}

type Booking struct {
	ID        int64         `json:"id" db:"id"`
	ChildID   int64         `json:"child_id" db:"child_id"`
	EventID   int64         `json:"event_id" db:"event_id"`
	Status    BookingStatus `json:"status" db:"status"`
	CreatedAt time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt time.Time     `json:"updated_at" db:"updated_at"`
}

// WaitlistBefore orders waitlist entries for promotion: oldest first, lowest id on ties.
func (b *Booking) WaitlistBefore(other *Booking) bool {
	if !b.CreatedAt.Equal(other.CreatedAt) {
		return b.CreatedAt.Before(other.CreatedAt)
	}
	return b.ID < other.ID
}
