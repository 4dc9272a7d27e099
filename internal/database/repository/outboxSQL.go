package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hlachaal/24hkids-platform/internal/entity"
)

type outboxRepository struct {
	db *sql.DB
}

func NewOutboxRepository(db *sql.DB) OutboxRepository {
	return &outboxRepository{db: db}
}

func (t *sqlEventTx) AddOutbox(ctx context.Context, msg *entity.OutboxMessage) error {
	payload, err := json.Marshal(msg.Booking)
	if err != nil {
		return fmt.Errorf("failed to marshal outbox payload: %w", err)
	}

	query := `
		INSERT INTO outbox (id, kind, payload, reason, attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = t.tx.ExecContext(ctx, query,
		msg.ID,
		string(msg.Kind),
		string(payload),
		msg.Reason,
		msg.Attempts,
		msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to add outbox message: %w", classify(err))
	}
	return nil
}

// GetPending returns undelivered messages, oldest first.
func (r *outboxRepository) GetPending(ctx context.Context, limit int) ([]*entity.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, kind, payload, reason, attempts, created_at
		FROM outbox
		WHERE delivered_at IS NULL
		ORDER BY created_at, id
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending outbox messages: %w", classify(err))
	}
	defer rows.Close()

	var messages []*entity.OutboxMessage
	for rows.Next() {
		var (
			msg     entity.OutboxMessage
			kind    string
			payload string
		)
		if err := rows.Scan(&msg.ID, &kind, &payload, &msg.Reason, &msg.Attempts, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan outbox message: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &msg.Booking); err != nil {
			return nil, fmt.Errorf("failed to decode outbox message %s: %w", msg.ID, err)
		}
		msg.Kind = entity.OutboxKind(kind)
		messages = append(messages, &msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outbox messages: %w", err)
	}
	return messages, nil
}

func (r *outboxRepository) MarkDelivered(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE outbox SET delivered_at = $1, attempts = attempts + 1 WHERE id = $2 AND delivered_at IS NULL`, at, id)
	if err != nil {
		return fmt.Errorf("failed to mark outbox message %s delivered: %w", id, classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: pending outbox message %s", entity.ErrNotFound, id)
	}
	return nil
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE outbox SET attempts = attempts + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to record outbox attempt for %s: %w", id, classify(err))
	}
	return nil
}
