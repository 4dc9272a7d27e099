package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/hlachaal/24hkids-platform/internal/entity"
)

type auditRepository struct {
	db *sql.DB
}

func NewAuditRepository(db *sql.DB) AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Create(ctx context.Context, entry *entity.AuditEntry) error {
	details, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("failed to marshal audit details: %w", err)
	}

	query := `
		INSERT INTO audit_logs (action, actor, target_id, details, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	err = r.db.QueryRowContext(ctx, query,
		string(entry.Action),
		entry.Actor,
		entry.TargetID,
		string(details),
		entry.CreatedAt.UTC(),
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("failed to create audit entry: %w", classify(err))
	}
	return nil
}

func (r *auditRepository) GetByTarget(ctx context.Context, targetID int64) ([]*entity.AuditEntry, error) {
	query := `
		SELECT id, action, actor, target_id, details, created_at
		FROM audit_logs
		WHERE target_id = $1
		ORDER BY created_at, id
	`

	return r.query(ctx, query, targetID)
}

func (r *auditRepository) List(ctx context.Context, filter AuditFilter) ([]*entity.AuditEntry, error) {
	var (
		conds []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Action != "" {
		conds = append(conds, "action = "+arg(string(filter.Action)))
	}
	if filter.Actor != "" {
		conds = append(conds, "LOWER(actor) LIKE "+arg("%"+escapeLike(strings.ToLower(filter.Actor))+"%")+` ESCAPE '\'`)
	}
	if !filter.From.IsZero() {
		conds = append(conds, "created_at >= "+arg(filter.From.UTC()))
	}
	if !filter.To.IsZero() {
		conds = append(conds, "created_at < "+arg(filter.To.UTC()))
	}

	query := `SELECT id, action, actor, target_id, details, created_at FROM audit_logs`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	// SQLite only accepts OFFSET after a LIMIT.
	limit := filter.Limit
	if limit <= 0 && filter.Offset > 0 {
		limit = math.MaxInt32
	}
	if limit > 0 {
		query += " LIMIT " + arg(limit)
		if filter.Offset > 0 {
			query += " OFFSET " + arg(filter.Offset)
		}
	}

	return r.query(ctx, query, args...)
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(s)
}

func (r *auditRepository) query(ctx context.Context, query string, args ...interface{}) ([]*entity.AuditEntry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get audit entries: %w", classify(err))
	}
	defer rows.Close()

	var entries []*entity.AuditEntry
	for rows.Next() {
		var (
			entry   entity.AuditEntry
			action  string
			details []byte
		)
		if err := rows.Scan(&entry.ID, &action, &entry.Actor, &entry.TargetID, &details, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &entry.Details); err != nil {
				return nil, fmt.Errorf("failed to decode audit details %d: %w", entry.ID, err)
			}
		}
		entry.Action = entity.AuditAction(action)
		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit entries: %w", err)
	}
	return entries, nil
}
