package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hlachaal/24hkids-platform/internal/entity"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

type CreateBookingRequest struct {
	ChildID int64 `json:"child_id" binding:"required"`
	EventID int64 `json:"event_id" binding:"required"`
	// RequestedStatus is an administrative override of the CONFIRMED/WAITLIST decision.
	RequestedStatus entity.BookingStatus `json:"status,omitempty"`
	Actor           string               `json:"-"`
}

func (r *CreateBookingRequest) Validate() error {
	return wrapValidation(validation.ValidateStruct(r,
		validation.Field(&r.ChildID, validation.Required, validation.Min(int64(1))),
		validation.Field(&r.EventID, validation.Required, validation.Min(int64(1))),
		validation.Field(&r.RequestedStatus, validation.In(entity.BookingStatusConfirmed, entity.BookingStatusWaitlist)),
	))
}

type DeleteBookingRequest struct {
	BookingID int64  `json:"-"`
	Reason    string `json:"reason,omitempty"`
	Actor     string `json:"-"`
}

func (r *DeleteBookingRequest) Validate() error {
	return wrapValidation(validation.ValidateStruct(r,
		validation.Field(&r.BookingID, validation.Required, validation.Min(int64(1))),
		validation.Field(&r.Reason, validation.Length(0, 500)),
	))
}

type UpdateBookingStatusRequest struct {
	BookingID int64                `json:"-"`
	Status    entity.BookingStatus `json:"status" binding:"required"`
	Actor     string               `json:"-"`
}

func (r *UpdateBookingStatusRequest) Validate() error {
	return wrapValidation(validation.ValidateStruct(r,
		validation.Field(&r.BookingID, validation.Required, validation.Min(int64(1))),
		validation.Field(&r.Status, validation.Required, validation.In(entity.BookingStatusConfirmed, entity.BookingStatusWaitlist)),
	))
}

// DeleteResult describes what a deletion changed. StatusTrail lists the
// event status before the deletion and after each step that changed the
// confirmed count.
type DeleteResult struct {
	Deleted     *entity.Booking      `json:"deleted"`
	Promoted    []*entity.Booking    `json:"promoted"`
	StatusTrail []entity.EventStatus `json:"status_trail"`
}

type StatusChangeResult struct {
	Booking  *entity.Booking      `json:"booking"`
	Previous entity.BookingStatus `json:"previous_status"`
	Promoted []*entity.Booking    `json:"promoted"`
}

type CreateEventRequest struct {
	Title       string    `json:"title" binding:"required"`
	Description string    `json:"description"`
	StartsAt    time.Time `json:"starts_at"`
	EndsAt      time.Time `json:"ends_at"`
	MinAge      int       `json:"min_age"`
	MaxAge      int       `json:"max_age" binding:"required"`
	Capacity    int       `json:"capacity" binding:"required"`
	Actor       string    `json:"-"`
}

func (r *CreateEventRequest) Validate() error {
	err := validation.ValidateStruct(r,
		validation.Field(&r.Title, validation.Required, validation.Length(1, 255)),
		validation.Field(&r.Description, validation.Length(0, 2000)),
		validation.Field(&r.StartsAt, validation.Required),
		validation.Field(&r.EndsAt, validation.Required, validation.Min(r.StartsAt.Add(time.Nanosecond)).Error("must be after starts_at")),
		validation.Field(&r.MinAge, validation.Min(0)),
		validation.Field(&r.MaxAge, validation.Required, validation.Min(r.MinAge+1).Error("must be greater than min_age")),
		validation.Field(&r.Capacity, validation.Required, validation.Min(1)),
	)
	return wrapValidation(err)
}

// UpdateEventRequest replaces the descriptive fields and the schedule of an
// event. Capacity and status have their own requests.
type UpdateEventRequest struct {
	EventID     int64     `json:"-"`
	Title       string    `json:"title" binding:"required"`
	Description string    `json:"description"`
	StartsAt    time.Time `json:"starts_at"`
	EndsAt      time.Time `json:"ends_at"`
	MinAge      int       `json:"min_age"`
	MaxAge      int       `json:"max_age" binding:"required"`
	Actor       string    `json:"-"`
}

func (r *UpdateEventRequest) Validate() error {
	return wrapValidation(validation.ValidateStruct(r,
		validation.Field(&r.EventID, validation.Required, validation.Min(int64(1))),
		validation.Field(&r.Title, validation.Required, validation.Length(1, 255)),
		validation.Field(&r.Description, validation.Length(0, 2000)),
		validation.Field(&r.StartsAt, validation.Required),
		validation.Field(&r.EndsAt, validation.Required, validation.Min(r.StartsAt.Add(time.Nanosecond)).Error("must be after starts_at")),
		validation.Field(&r.MinAge, validation.Min(0)),
		validation.Field(&r.MaxAge, validation.Required, validation.Min(r.MinAge+1).Error("must be greater than min_age")),
	))
}

type UpdateCapacityRequest struct {
	EventID  int64  `json:"-"`
	Capacity int    `json:"capacity" binding:"required"`
	Actor    string `json:"-"`
}

func (r *UpdateCapacityRequest) Validate() error {
	return wrapValidation(validation.ValidateStruct(r,
		validation.Field(&r.EventID, validation.Required, validation.Min(int64(1))),
		validation.Field(&r.Capacity, validation.Required, validation.Min(1)),
	))
}

type SetEventStatusRequest struct {
	EventID int64              `json:"-"`
	Status  entity.EventStatus `json:"status" binding:"required"`
	Actor   string             `json:"-"`
}

func (r *SetEventStatusRequest) Validate() error {
	return wrapValidation(validation.ValidateStruct(r,
		validation.Field(&r.EventID, validation.Required, validation.Min(int64(1))),
		validation.Field(&r.Status, validation.Required,
			validation.In(entity.EventStatusActive, entity.EventStatusCancelled, entity.EventStatusDisabled).
				Error("must be ACTIVE, CANCELLED or DISABLED")),
	))
}

type EventChangeResult struct {
	Event    *entity.Event     `json:"event"`
	Promoted []*entity.Booking `json:"promoted"`
}

type RegisterGuardianRequest struct {
	Email      string `json:"email" binding:"required"`
	Name       string `json:"name" binding:"required"`
	TelegramID string `json:"telegram_id"`
	Actor      string `json:"-"`
}

func (r *RegisterGuardianRequest) Validate() error {
	r.Email = strings.TrimSpace(r.Email)
	return wrapValidation(validation.ValidateStruct(r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Name, validation.Required, validation.Length(2, 255)),
		validation.Field(&r.TelegramID, validation.Length(0, 100)),
	))
}

type UpdateGuardianRequest struct {
	GuardianID int64  `json:"-"`
	Email      string `json:"email" binding:"required"`
	Name       string `json:"name" binding:"required"`
	TelegramID string `json:"telegram_id"`
	Actor      string `json:"-"`
}

func (r *UpdateGuardianRequest) Validate() error {
	r.Email = strings.TrimSpace(r.Email)
	return wrapValidation(validation.ValidateStruct(r,
		validation.Field(&r.GuardianID, validation.Required, validation.Min(int64(1))),
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Name, validation.Required, validation.Length(2, 255)),
		validation.Field(&r.TelegramID, validation.Length(0, 100)),
	))
}

type CreateChildRequest struct {
	GuardianID int64       `json:"guardian_id" binding:"required"`
	FirstName  string      `json:"first_name" binding:"required"`
	LastName   string      `json:"last_name" binding:"required"`
	BirthDate  entity.Date `json:"birth_date"`
	Actor      string      `json:"-"`
}

func (r *CreateChildRequest) Validate(today time.Time) error {
	return wrapValidation(validation.ValidateStruct(r,
		validation.Field(&r.GuardianID, validation.Required, validation.Min(int64(1))),
		validation.Field(&r.FirstName, validation.Required, validation.Length(1, 255)),
		validation.Field(&r.LastName, validation.Required, validation.Length(1, 255)),
		validation.Field(&r.BirthDate, birthDateRule(today)),
	))
}

// UpdateChildRequest replaces every field of a child. A new birth date must
// keep the child inside the age range of each event it is confirmed for.
type UpdateChildRequest struct {
	ChildID    int64       `json:"-"`
	GuardianID int64       `json:"guardian_id" binding:"required"`
	FirstName  string      `json:"first_name" binding:"required"`
	LastName   string      `json:"last_name" binding:"required"`
	BirthDate  entity.Date `json:"birth_date"`
	Actor      string      `json:"-"`
}

func (r *UpdateChildRequest) Validate(today time.Time) error {
	return wrapValidation(validation.ValidateStruct(r,
		validation.Field(&r.ChildID, validation.Required, validation.Min(int64(1))),
		validation.Field(&r.GuardianID, validation.Required, validation.Min(int64(1))),
		validation.Field(&r.FirstName, validation.Required, validation.Length(1, 255)),
		validation.Field(&r.LastName, validation.Required, validation.Length(1, 255)),
		validation.Field(&r.BirthDate, birthDateRule(today)),
	))
}

func birthDateRule(today time.Time) validation.Rule {
	return validation.By(func(value interface{}) error {
		d, _ := value.(entity.Date)
		if d.IsZero() {
			return errors.New("is required")
		}
		if d.After(today) {
			return errors.New("cannot be in the future")
		}
		return nil
	})
}

// wrapValidation tags ozzo errors with entity.ErrValidation.
func wrapValidation(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s", entity.ErrValidation, err.Error())
}
