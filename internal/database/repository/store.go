package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hlachaal/24hkids-platform/internal/entity"

	"github.com/jackc/pgerrcode"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// Dialect selects the SQL flavour of a store.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type scanner interface {
	Scan(dest ...interface{}) error
}

type sqlStore struct {
	db          *sql.DB
	dialect     Dialect
	lockTimeout time.Duration
}

// NewSQLStore wraps an opened and migrated database. lockTimeout bounds how
// long a transaction waits for a row lock on PostgreSQL.
func NewSQLStore(db *sql.DB, dialect Dialect, lockTimeout time.Duration) Store {
	return &sqlStore{db: db, dialect: dialect, lockTimeout: lockTimeout}
}

func (s *sqlStore) Guardians() GuardianRepository { return &guardianRepository{db: s.db} }
func (s *sqlStore) Children() ChildRepository     { return &childRepository{db: s.db} }
func (s *sqlStore) Events() EventRepository       { return &eventRepository{db: s.db} }
func (s *sqlStore) Bookings() BookingRepository   { return &bookingRepository{db: s.db} }
func (s *sqlStore) Outbox() OutboxRepository      { return &outboxRepository{db: s.db} }
func (s *sqlStore) Audit() AuditRepository        { return &auditRepository{db: s.db} }

func (s *sqlStore) Close() error {
	return s.db.Close()
}

func (s *sqlStore) InEventTx(ctx context.Context, eventID int64, fn func(tx EventTx) error) error {
	// The event row lock serializes writers on PostgreSQL, so READ COMMITTED
	// is enough. SQLite runs on a single connection and takes its own level.
	return s.inTx(ctx, func(tx *sql.Tx) error {
		event, err := getEvent(ctx, tx, eventID, s.lockClause())
		if err != nil {
			return err
		}
		return fn(&sqlEventTx{tx: tx, event: event, lock: s.lockClause()})
	})
}

func (s *sqlStore) InChildTx(ctx context.Context, childID int64, fn func(tx ChildTx) error) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		child, err := getChild(ctx, tx, childID, s.lockClause())
		if err != nil {
			return err
		}
		return fn(&sqlChildTx{tx: tx, child: child})
	})
}

// inTx runs fn in a transaction configured like InEventTx.
func (s *sqlStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	opts := &sql.TxOptions{Isolation: sql.LevelReadCommitted}
	if s.dialect == DialectSQLite {
		opts = nil
	}

	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", classify(err))
	}
	defer tx.Rollback()

	if s.dialect == DialectPostgres && s.lockTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to set lock timeout: %w", classify(err))
		}
	}

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", classify(err))
	}
	return nil
}

func (s *sqlStore) lockClause() string {
	if s.dialect == DialectPostgres {
		return " FOR UPDATE"
	}
	return ""
}

// sqlEventTx implements EventTx on top of one database transaction.
type sqlEventTx struct {
	tx    *sql.Tx
	event *entity.Event
	lock  string
}

func (t *sqlEventTx) Event() *entity.Event {
	event := *t.event
	return &event
}

func (t *sqlEventTx) LockChild(ctx context.Context, childID int64) (*entity.Child, error) {
	return getChild(ctx, t.tx, childID, t.lock)
}

func (t *sqlEventTx) UpdateEvent(ctx context.Context, capacity int, status entity.EventStatus, at time.Time) error {
	query := `UPDATE events SET capacity = $1, status = $2, updated_at = $3 WHERE id = $4`
	if _, err := t.tx.ExecContext(ctx, query, capacity, string(status), at, t.event.ID); err != nil {
		return fmt.Errorf("failed to update event %d: %w", t.event.ID, classify(err))
	}
	t.event.Capacity = capacity
	t.event.Status = status
	t.event.UpdatedAt = at
	return nil
}

func (t *sqlEventTx) UpdateDetails(ctx context.Context, details *entity.Event, at time.Time) error {
	query := `
		UPDATE events
		SET title = $1, description = $2, starts_at = $3, ends_at = $4, min_age = $5, max_age = $6, updated_at = $7
		WHERE id = $8
	`
	_, err := t.tx.ExecContext(ctx, query,
		details.Title,
		details.Description,
		details.StartsAt,
		details.EndsAt,
		details.MinAge,
		details.MaxAge,
		at,
		t.event.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update event %d: %w", t.event.ID, classify(err))
	}
	t.event.Title = details.Title
	t.event.Description = details.Description
	t.event.StartsAt = details.StartsAt
	t.event.EndsAt = details.EndsAt
	t.event.MinAge = details.MinAge
	t.event.MaxAge = details.MaxAge
	t.event.UpdatedAt = at
	return nil
}

func (t *sqlEventTx) DeleteEvent(ctx context.Context) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM events WHERE id = $1`, t.event.ID)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("%w: event %d still has bookings", entity.ErrValidation, t.event.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to delete event %d: %w", t.event.ID, classify(err))
	}
	return nil
}

// sqlChildTx implements ChildTx on top of one database transaction.
type sqlChildTx struct {
	tx    *sql.Tx
	child *entity.Child
}

func (t *sqlChildTx) Child() *entity.Child {
	child := *t.child
	return &child
}

func (t *sqlChildTx) ConfirmedEvents(ctx context.Context) ([]*entity.Event, error) {
	query := `
		SELECT e.id, e.title, e.description, e.starts_at, e.ends_at, e.min_age, e.max_age, e.capacity, e.status, e.created_at, e.updated_at
		FROM events e
		JOIN bookings b ON b.event_id = e.id
		WHERE b.child_id = $1 AND b.status = $2
		ORDER BY e.starts_at, e.id
	`

	rows, err := t.tx.QueryContext(ctx, query, t.child.ID, string(entity.BookingStatusConfirmed))
	if err != nil {
		return nil, fmt.Errorf("failed to get confirmed events of child %d: %w", t.child.ID, classify(err))
	}
	defer rows.Close()

	var events []*entity.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	return events, nil
}

func (t *sqlChildTx) UpdateChild(ctx context.Context, child *entity.Child) error {
	query := `
		UPDATE children
		SET guardian_id = $1, first_name = $2, last_name = $3, birth_date = $4
		WHERE id = $5
	`
	_, err := t.tx.ExecContext(ctx, query,
		child.GuardianID,
		child.FirstName,
		child.LastName,
		child.BirthDate,
		t.child.ID,
	)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("%w: guardian %d", entity.ErrNotFound, child.GuardianID)
	}
	if err != nil {
		return fmt.Errorf("failed to update child %d: %w", t.child.ID, classify(err))
	}

	child.ID = t.child.ID
	child.CreatedAt = t.child.CreatedAt
	c := *child
	t.child = &c
	return nil
}

func (t *sqlChildTx) DeleteChild(ctx context.Context) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM bookings WHERE child_id = $1`, t.child.ID); err != nil {
		return fmt.Errorf("failed to delete bookings of child %d: %w", t.child.ID, classify(err))
	}
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM children WHERE id = $1`, t.child.ID); err != nil {
		return fmt.Errorf("failed to delete child %d: %w", t.child.ID, classify(err))
	}
	return nil
}

// classify maps driver errors that are worth retrying onto
// entity.ErrTransientStoreConflict and leaves everything else untouched.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", entity.ErrTransientStoreConflict, err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pgerrcode.SerializationFailure,
			pgerrcode.DeadlockDetected,
			pgerrcode.LockNotAvailable,
			pgerrcode.QueryCanceled:
			return fmt.Errorf("%w: %w", entity.ErrTransientStoreConflict, err)
		}
		return err
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		if liteErr.Code == sqlite3.ErrBusy || liteErr.Code == sqlite3.ErrLocked {
			return fmt.Errorf("%w: %w", entity.ErrTransientStoreConflict, err)
		}
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pgerrcode.UniqueViolation
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pgerrcode.ForeignKeyViolation
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
	}
	return false
}
