package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hlachaal/24hkids-platform/internal/entity"
)

const bookingColumns = `id, child_id, event_id, status, created_at, updated_at`

type bookingRepository struct {
	db *sql.DB
}

func NewBookingRepository(db *sql.DB) BookingRepository {
	return &bookingRepository{db: db}
}

// GetByID retrieves a booking by its ID
func (r *bookingRepository) GetByID(ctx context.Context, id int64) (*entity.Booking, error) {
	return getBooking(ctx, r.db, id)
}

func (r *bookingRepository) GetByEventID(ctx context.Context, eventID int64) ([]*entity.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE event_id = $1
		ORDER BY CASE status WHEN 'CONFIRMED' THEN 0 ELSE 1 END, created_at, id
	`
	return queryBookings(ctx, r.db, query, eventID)
}

func (r *bookingRepository) GetByChildID(ctx context.Context, childID int64) ([]*entity.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE child_id = $1
		ORDER BY created_at, id
	`
	return queryBookings(ctx, r.db, query, childID)
}

func (r *bookingRepository) CountByEventAndStatus(ctx context.Context, eventID int64, status entity.BookingStatus) (int, error) {
	return countByEventAndStatus(ctx, r.db, eventID, status)
}

func (t *sqlEventTx) GetBooking(ctx context.Context, id int64) (*entity.Booking, error) {
	booking, err := getBooking(ctx, t.tx, id)
	if err != nil {
		return nil, err
	}
	if booking.EventID != t.event.ID {
		return nil, fmt.Errorf("%w: booking %d in event %d", entity.ErrNotFound, id, t.event.ID)
	}
	return booking, nil
}

func (t *sqlEventTx) GetBookingForChild(ctx context.Context, childID int64) (*entity.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE event_id = $1 AND child_id = $2`

	booking, err := scanBooking(t.tx.QueryRowContext(ctx, query, t.event.ID, childID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: booking for child %d in event %d", entity.ErrNotFound, childID, t.event.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking for child %d: %w", childID, classify(err))
	}
	return booking, nil
}

func (t *sqlEventTx) CountByStatus(ctx context.Context, status entity.BookingStatus) (int, error) {
	return countByEventAndStatus(ctx, t.tx, t.event.ID, status)
}

func (t *sqlEventTx) ConfirmedWindows(ctx context.Context, childID int64) ([]entity.Window, error) {
	query := `
		SELECT e.starts_at, e.ends_at
		FROM bookings b
		JOIN events e ON e.id = b.event_id
		WHERE b.child_id = $1 AND b.status = $2 AND b.event_id <> $3
		ORDER BY e.starts_at
	`

	rows, err := t.tx.QueryContext(ctx, query, childID, string(entity.BookingStatusConfirmed), t.event.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get confirmed windows for child %d: %w", childID, classify(err))
	}
	defer rows.Close()

	var windows []entity.Window
	for rows.Next() {
		var w entity.Window
		if err := rows.Scan(&w.Start, &w.End); err != nil {
			return nil, fmt.Errorf("failed to scan window: %w", err)
		}
		windows = append(windows, w)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating windows: %w", err)
	}
	return windows, nil
}

func (t *sqlEventTx) Waitlist(ctx context.Context) ([]*entity.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE event_id = $1 AND status = $2
		ORDER BY created_at, id
	`
	return queryBookings(ctx, t.tx, query, t.event.ID, string(entity.BookingStatusWaitlist))
}

func (t *sqlEventTx) Confirmed(ctx context.Context) ([]*entity.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE event_id = $1 AND status = $2
		ORDER BY created_at, id
	`
	return queryBookings(ctx, t.tx, query, t.event.ID, string(entity.BookingStatusConfirmed))
}

func (t *sqlEventTx) CreateBooking(ctx context.Context, booking *entity.Booking) error {
	query := `
		INSERT INTO bookings (child_id, event_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	err := t.tx.QueryRowContext(ctx, query,
		booking.ChildID,
		t.event.ID,
		string(booking.Status),
		booking.CreatedAt,
		booking.UpdatedAt,
	).Scan(&booking.ID)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: child %d in event %d", entity.ErrDuplicateBooking, booking.ChildID, t.event.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", classify(err))
	}
	booking.EventID = t.event.ID
	return nil
}

func (t *sqlEventTx) UpdateBookingStatus(ctx context.Context, id int64, status entity.BookingStatus, at time.Time) error {
	query := `UPDATE bookings SET status = $1, updated_at = $2 WHERE id = $3 AND event_id = $4`

	res, err := t.tx.ExecContext(ctx, query, string(status), at, id, t.event.ID)
	if err != nil {
		return fmt.Errorf("failed to update booking %d: %w", id, classify(err))
	}
	return expectOneRow(res, "booking", id)
}

func (t *sqlEventTx) DeleteBooking(ctx context.Context, id int64) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM bookings WHERE id = $1 AND event_id = $2`, id, t.event.ID)
	if err != nil {
		return fmt.Errorf("failed to delete booking %d: %w", id, classify(err))
	}
	return expectOneRow(res, "booking", id)
}

func getBooking(ctx context.Context, q queryer, id int64) (*entity.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`

	booking, err := scanBooking(q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: booking %d", entity.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking %d: %w", id, classify(err))
	}
	return booking, nil
}

func countByEventAndStatus(ctx context.Context, q queryer, eventID int64, status entity.BookingStatus) (int, error) {
	query := `SELECT COUNT(*) FROM bookings WHERE event_id = $1 AND status = $2`

	var count int
	if err := q.QueryRowContext(ctx, query, eventID, string(status)).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count %s bookings: %w", status, classify(err))
	}
	return count, nil
}

func queryBookings(ctx context.Context, q queryer, query string, args ...interface{}) ([]*entity.Booking, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bookings: %w", classify(err))
	}
	defer rows.Close()

	var bookings []*entity.Booking
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, booking)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bookings: %w", err)
	}
	return bookings, nil
}

func scanBooking(row scanner) (*entity.Booking, error) {
	var (
		booking entity.Booking
		status  string
	)
	err := row.Scan(
		&booking.ID,
		&booking.ChildID,
		&booking.EventID,
		&status,
		&booking.CreatedAt,
		&booking.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	booking.Status = entity.BookingStatus(status)
	return &booking, nil
}

func expectOneRow(res sql.Result, what string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %d", entity.ErrNotFound, what, id)
	}
	return nil
}
