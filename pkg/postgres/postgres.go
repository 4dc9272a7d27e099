package postgres

import (
	"database/sql"
	"fmt"

	"github.com/hlachaal/24hkids-platform/config"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

func NewPostgresDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)
	return Open(connStr, cfg)
}

// Open connects using a ready DSN and applies the pool settings from cfg.
func Open(connStr string, cfg *config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg != nil {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logrus.Info("Successfully connected to PostgreSQL")
	return db, nil
}

func RunMigrations(db *sql.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS guardians (
			id BIGSERIAL PRIMARY KEY,
			email VARCHAR(255) UNIQUE NOT NULL,
			name VARCHAR(255) NOT NULL,
			telegram_id VARCHAR(100) NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS children (
			id BIGSERIAL PRIMARY KEY,
			guardian_id BIGINT NOT NULL REFERENCES guardians(id),
			first_name VARCHAR(255) NOT NULL,
			last_name VARCHAR(255) NOT NULL,
			birth_date DATE NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS events (
			id BIGSERIAL PRIMARY KEY,
			title VARCHAR(255) NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			starts_at TIMESTAMPTZ NOT NULL,
			ends_at TIMESTAMPTZ NOT NULL,
			min_age INTEGER NOT NULL,
			max_age INTEGER NOT NULL,
			capacity INTEGER NOT NULL CHECK (capacity > 0),
			status VARCHAR(20) NOT NULL DEFAULT 'ACTIVE',
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CHECK (starts_at < ends_at),
			CHECK (min_age < max_age)
		)`,

		`CREATE TABLE IF NOT EXISTS bookings (
			id BIGSERIAL PRIMARY KEY,
			child_id BIGINT NOT NULL REFERENCES children(id),
			event_id BIGINT NOT NULL REFERENCES events(id),
			status VARCHAR(20) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			UNIQUE (child_id, event_id)
		)`,

		`CREATE TABLE IF NOT EXISTS outbox (
			id VARCHAR(36) PRIMARY KEY,
			kind VARCHAR(50) NOT NULL,
			payload TEXT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			attempts INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL,
			delivered_at TIMESTAMPTZ
		)`,

		`CREATE TABLE IF NOT EXISTS audit_logs (
			id BIGSERIAL PRIMARY KEY,
			action VARCHAR(50) NOT NULL,
			actor VARCHAR(255) NOT NULL,
			target_id BIGINT NOT NULL,
			details JSONB,
			created_at TIMESTAMPTZ NOT NULL
		)`,

		// Indexes
		`CREATE INDEX IF NOT EXISTS idx_bookings_event_status ON bookings(event_id, status, created_at, id)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_child_status ON bookings(child_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_outbox_pending ON outbox(created_at) WHERE delivered_at IS NULL`,
		`CREATE INDEX IF NOT EXISTS idx_audit_logs_target ON audit_logs(target_id)`,
	}

	for _, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}

	logrus.Info("Database migrations completed successfully")
	return nil
}
