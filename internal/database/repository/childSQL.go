package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hlachaal/24hkids-platform/internal/entity"
)

type guardianRepository struct {
	db *sql.DB
}

func NewGuardianRepository(db *sql.DB) GuardianRepository {
	return &guardianRepository{db: db}
}

func (r *guardianRepository) Create(ctx context.Context, guardian *entity.Guardian) error {
	query := `
		INSERT INTO guardians (email, name, telegram_id, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`

	err := r.db.QueryRowContext(ctx, query,
		guardian.Email,
		guardian.Name,
		guardian.TelegramID,
		guardian.CreatedAt,
	).Scan(&guardian.ID)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: guardian email %q already registered", entity.ErrValidation, guardian.Email)
	}
	if err != nil {
		return fmt.Errorf("failed to create guardian: %w", classify(err))
	}
	return nil
}

func (r *guardianRepository) GetByID(ctx context.Context, id int64) (*entity.Guardian, error) {
	query := `
		SELECT id, email, name, telegram_id, created_at
		FROM guardians
		WHERE id = $1
	`

	var guardian entity.Guardian
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&guardian.ID,
		&guardian.Email,
		&guardian.Name,
		&guardian.TelegramID,
		&guardian.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: guardian %d", entity.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get guardian %d: %w", id, classify(err))
	}
	return &guardian, nil
}

func (r *guardianRepository) Update(ctx context.Context, guardian *entity.Guardian) error {
	query := `
		UPDATE guardians
		SET email = $1, name = $2, telegram_id = $3
		WHERE id = $4
	`

	res, err := r.db.ExecContext(ctx, query, guardian.Email, guardian.Name, guardian.TelegramID, guardian.ID)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: guardian email %q already registered", entity.ErrValidation, guardian.Email)
	}
	if err != nil {
		return fmt.Errorf("failed to update guardian %d: %w", guardian.ID, classify(err))
	}
	return expectAffected(res, "guardian", guardian.ID)
}

func (r *guardianRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM guardians WHERE id = $1`, id)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("%w: guardian %d still has children", entity.ErrValidation, id)
	}
	if err != nil {
		return fmt.Errorf("failed to delete guardian %d: %w", id, classify(err))
	}
	return expectAffected(res, "guardian", id)
}

func expectAffected(res sql.Result, what string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %d", entity.ErrNotFound, what, id)
	}
	return nil
}

type childRepository struct {
	db *sql.DB
}

func NewChildRepository(db *sql.DB) ChildRepository {
	return &childRepository{db: db}
}

func (r *childRepository) Create(ctx context.Context, child *entity.Child) error {
	query := `
		INSERT INTO children (guardian_id, first_name, last_name, birth_date, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	err := r.db.QueryRowContext(ctx, query,
		child.GuardianID,
		child.FirstName,
		child.LastName,
		child.BirthDate,
		child.CreatedAt,
	).Scan(&child.ID)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("%w: guardian %d", entity.ErrNotFound, child.GuardianID)
	}
	if err != nil {
		return fmt.Errorf("failed to create child: %w", classify(err))
	}
	return nil
}

func (r *childRepository) GetByID(ctx context.Context, id int64) (*entity.Child, error) {
	return getChild(ctx, r.db, id, "")
}

func getChild(ctx context.Context, q queryer, id int64, lock string) (*entity.Child, error) {
	query := `
		SELECT id, guardian_id, first_name, last_name, birth_date, created_at
		FROM children
		WHERE id = $1` + lock

	var child entity.Child
	err := q.QueryRowContext(ctx, query, id).Scan(
		&child.ID,
		&child.GuardianID,
		&child.FirstName,
		&child.LastName,
		&child.BirthDate,
		&child.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: child %d", entity.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get child %d: %w", id, classify(err))
	}
	return &child, nil
}
