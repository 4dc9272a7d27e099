package repository

import (
	"context"
	"time"

	"github.com/hlachaal/24hkids-platform/internal/entity"
)

// Store is the persistence boundary of the booking core.
type Store interface {
	// InEventTx runs fn in one atomic unit that holds the exclusive lock of
	// eventID. Every write that depends on the event's confirmed count must go
	// through it. A non-nil error from fn rolls the unit back.
	InEventTx(ctx context.Context, eventID int64, fn func(tx EventTx) error) error
	// InChildTx runs fn in one atomic unit holding childID's lock, the same
	// lock EventTx.LockChild takes.
	InChildTx(ctx context.Context, childID int64, fn func(tx ChildTx) error) error

	Guardians() GuardianRepository
	Children() ChildRepository
	Events() EventRepository
	Bookings() BookingRepository
	Outbox() OutboxRepository
	Audit() AuditRepository

	Close() error
}

// EventTx is the view of a single locked event inside InEventTx.
type EventTx interface {
	// Event returns the locked event as of the latest write in this unit.
	Event() *entity.Event

	// LockChild loads the child and locks it against concurrent bookings of
	// the same child in other events.
	LockChild(ctx context.Context, childID int64) (*entity.Child, error)

	GetBooking(ctx context.Context, id int64) (*entity.Booking, error)
	GetBookingForChild(ctx context.Context, childID int64) (*entity.Booking, error)
	CountByStatus(ctx context.Context, status entity.BookingStatus) (int, error)
	// ConfirmedWindows returns the time windows of the child's CONFIRMED
	// bookings in every other event.
	ConfirmedWindows(ctx context.Context, childID int64) ([]entity.Window, error)
	// Waitlist returns WAITLIST bookings oldest first, lowest id on ties.
	Waitlist(ctx context.Context) ([]*entity.Booking, error)
	// Confirmed returns CONFIRMED bookings oldest first.
	Confirmed(ctx context.Context) ([]*entity.Booking, error)

	CreateBooking(ctx context.Context, booking *entity.Booking) error
	UpdateBookingStatus(ctx context.Context, id int64, status entity.BookingStatus, at time.Time) error
	DeleteBooking(ctx context.Context, id int64) error

	UpdateEvent(ctx context.Context, capacity int, status entity.EventStatus, at time.Time) error
	// UpdateDetails writes title, description, window and age range from
	// details. Capacity and status are left alone.
	UpdateDetails(ctx context.Context, details *entity.Event, at time.Time) error
	// DeleteEvent removes the locked event. It fails with ErrValidation while
	// bookings reference it.
	DeleteEvent(ctx context.Context) error
	AddOutbox(ctx context.Context, msg *entity.OutboxMessage) error
}

// ChildTx is the view of a single locked child inside InChildTx.
type ChildTx interface {
	Child() *entity.Child
	// ConfirmedEvents returns the events the child holds a CONFIRMED booking in.
	ConfirmedEvents(ctx context.Context) ([]*entity.Event, error)
	UpdateChild(ctx context.Context, child *entity.Child) error
	// DeleteChild removes the child together with its remaining bookings.
	DeleteChild(ctx context.Context) error
}

type GuardianRepository interface {
	Create(ctx context.Context, guardian *entity.Guardian) error
	GetByID(ctx context.Context, id int64) (*entity.Guardian, error)
	Update(ctx context.Context, guardian *entity.Guardian) error
	// Delete fails with ErrValidation while the guardian still has children.
	Delete(ctx context.Context, id int64) error
}

type ChildRepository interface {
	Create(ctx context.Context, child *entity.Child) error
	GetByID(ctx context.Context, id int64) (*entity.Child, error)
}

type EventRepository interface {
	Create(ctx context.Context, event *entity.Event) error
	GetByID(ctx context.Context, id int64) (*entity.Event, error)
	GetAll(ctx context.Context) ([]*entity.Event, error)
}

type BookingRepository interface {
	GetByID(ctx context.Context, id int64) (*entity.Booking, error)
	// GetByEventID orders CONFIRMED before WAITLIST, then by creation.
	GetByEventID(ctx context.Context, eventID int64) ([]*entity.Booking, error)
	GetByChildID(ctx context.Context, childID int64) ([]*entity.Booking, error)
	CountByEventAndStatus(ctx context.Context, eventID int64, status entity.BookingStatus) (int, error)
}

type OutboxRepository interface {
	GetPending(ctx context.Context, limit int) ([]*entity.OutboxMessage, error)
	MarkDelivered(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id string) error
}

type AuditRepository interface {
	Create(ctx context.Context, entry *entity.AuditEntry) error
	GetByTarget(ctx context.Context, targetID int64) ([]*entity.AuditEntry, error)
	// List returns matching entries newest first.
	List(ctx context.Context, filter AuditFilter) ([]*entity.AuditEntry, error)
}

// AuditFilter narrows an audit listing. Zero fields match everything. Actor
// matches as a case-insensitive substring; From is inclusive, To exclusive.
type AuditFilter struct {
	Action entity.AuditAction
	Actor  string
	From   time.Time
	To     time.Time
	Limit  int
	Offset int
}
