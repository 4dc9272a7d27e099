package service

import (
	"context"

	"github.com/hlachaal/24hkids-platform/internal/entity"
)

// BookingService owns every write that changes a booking's status.
type BookingService interface {
	Create(ctx context.Context, req *CreateBookingRequest) (*entity.Booking, error)
	Delete(ctx context.Context, req *DeleteBookingRequest) (*DeleteResult, error)
	ConfirmFromWaitlist(ctx context.Context, bookingID int64, actor string) (*entity.Booking, error)
	UpdateStatus(ctx context.Context, req *UpdateBookingStatusRequest) (*StatusChangeResult, error)

	GetBooking(ctx context.Context, id int64) (*entity.Booking, error)
	GetEventBookings(ctx context.Context, eventID int64) ([]*entity.Booking, error)
	GetChildBookings(ctx context.Context, childID int64) ([]*entity.Booking, error)
}

type EventService interface {
	CreateEvent(ctx context.Context, req *CreateEventRequest) (*entity.Event, error)
	GetEvent(ctx context.Context, id int64) (*entity.Event, error)
	GetAllEvents(ctx context.Context) ([]*entity.Event, error)
	UpdateCapacity(ctx context.Context, req *UpdateCapacityRequest) (*EventChangeResult, error)
	SetStatus(ctx context.Context, req *SetEventStatusRequest) (*EventChangeResult, error)
	// UpdateDetails edits the title, description, schedule and age range. It
	// is refused while a confirmed booking would stop fitting the event.
	UpdateDetails(ctx context.Context, req *UpdateEventRequest) (*EventChangeResult, error)
	// DeleteEvent removes an event nobody is booked on.
	DeleteEvent(ctx context.Context, id int64, actor string) error
	GetAvailability(ctx context.Context, id int64) (*entity.EventAvailability, error)

	// ReconcileStatuses re-derives the status of every event and returns how
	// many needed a repair.
	ReconcileStatuses(ctx context.Context) (int, error)
}

type FamilyService interface {
	RegisterGuardian(ctx context.Context, req *RegisterGuardianRequest) (*entity.Guardian, error)
	GetGuardian(ctx context.Context, id int64) (*entity.Guardian, error)
	UpdateGuardian(ctx context.Context, req *UpdateGuardianRequest) (*entity.Guardian, error)
	DeleteGuardian(ctx context.Context, id int64, actor string) error

	CreateChild(ctx context.Context, req *CreateChildRequest) (*entity.Child, error)
	GetChild(ctx context.Context, id int64) (*entity.Child, error)
	UpdateChild(ctx context.Context, req *UpdateChildRequest) (*entity.Child, error)
	// DeleteChild is refused while the child holds a CONFIRMED booking.
	// Waitlist entries go with the child.
	DeleteChild(ctx context.Context, id int64, actor string) error
}

// Notifier delivers booking notifications to guardians. Errors are logged by
// the caller and never undo a committed change.
type Notifier interface {
	NotifyDeleted(ctx context.Context, booking *entity.Booking, reason string) error
	NotifyPromoted(ctx context.Context, booking *entity.Booking) error
}

// AuditSink records administrative actions. Record must not block and has
// no failure mode visible to the caller.
type AuditSink interface {
	Record(ctx context.Context, action entity.AuditAction, actor string, targetID int64, details map[string]interface{})
}
