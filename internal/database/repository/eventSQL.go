package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hlachaal/24hkids-platform/internal/entity"
)

const eventColumns = `id, title, description, starts_at, ends_at, min_age, max_age, capacity, status, created_at, updated_at`

type eventRepository struct {
	db *sql.DB
}

func NewEventRepository(db *sql.DB) EventRepository {
	return &eventRepository{db: db}
}

func (r *eventRepository) Create(ctx context.Context, event *entity.Event) error {
	query := `
		INSERT INTO events (title, description, starts_at, ends_at, min_age, max_age, capacity, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`

	err := r.db.QueryRowContext(ctx, query,
		event.Title,
		event.Description,
		event.StartsAt,
		event.EndsAt,
		event.MinAge,
		event.MaxAge,
		event.Capacity,
		string(event.Status),
		event.CreatedAt,
		event.UpdatedAt,
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to create event: %w", classify(err))
	}
	return nil
}

func (r *eventRepository) GetByID(ctx context.Context, id int64) (*entity.Event, error) {
	return getEvent(ctx, r.db, id, "")
}

func (r *eventRepository) GetAll(ctx context.Context) ([]*entity.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events ORDER BY starts_at, id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", classify(err))
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

func getEvent(ctx context.Context, q queryer, id int64, lock string) (*entity.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = $1` + lock

	event, err := scanEvent(q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: event %d", entity.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event %d: %w", id, classify(err))
	}
	return event, nil
}

func scanEvent(row scanner) (*entity.Event, error) {
	var (
		event  entity.Event
		status string
	)
	err := row.Scan(
		&event.ID,
		&event.Title,
		&event.Description,
		&event.StartsAt,
		&event.EndsAt,
		&event.MinAge,
		&event.MaxAge,
		&event.Capacity,
		&status,
		&event.CreatedAt,
		&event.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	event.Status = entity.EventStatus(status)
	return &event, nil
}
