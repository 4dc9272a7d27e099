package entity

import "time"

type OutboxKind string

const (
	OutboxBookingDeleted  OutboxKind = "booking_deleted"
	OutboxBookingPromoted OutboxKind = "booking_promoted"
)

// OutboxMessage is a notification obligation written in the same transaction
// as the booking change and delivered after commit, at least once.
type OutboxMessage struct {
	ID          string     `json:"id" db:"id"`
	Kind        OutboxKind `json:"kind" db:"kind"`
	Booking     Booking    `json:"booking" db:"booking"`
	Reason      string     `json:"reason,omitempty" db:"reason"`
	Attempts    int        `json:"attempts" db:"attempts"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty" db:"delivered_at"`
}
