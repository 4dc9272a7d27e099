package entity

import "errors"

// Error kinds returned by the booking core. Call sites wrap them with
// fmt.Errorf("...: %w", kind) and callers match with errors.Is.
var (
	ErrNotFound               = errors.New("not found")
	ErrValidation             = errors.New("validation failed")
	ErrIneligibleAge          = errors.New("child age outside event range")
	ErrScheduleConflict       = errors.New("schedule conflict with a confirmed booking")
	ErrDuplicateBooking       = errors.New("booking already exists for child and event")
	ErrEventNotBookable       = errors.New("event is not bookable")
	ErrCapacityExceeded       = errors.New("event capacity exceeded")
	ErrTransientStoreConflict = errors.New("transient store conflict")
)

// IsTransient reports whether err may succeed when the operation is retried.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransientStoreConflict)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
