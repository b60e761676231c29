package persistence

import (
	"context"
	"fmt"
	"time"

	"mailbrief/core/domain"
	"mailbrief/core/port/out"

	"github.com/jmoiron/sqlx"
)

// usageSchema is valid for both SQLite and PostgreSQL.
const usageSchema = `
	CREATE TABLE IF NOT EXISTS usage_logs (
		id                 TEXT PRIMARY KEY,
		user_email         TEXT NOT NULL DEFAULT '',
		emails_processed   INTEGER NOT NULL,
		time_saved_minutes DOUBLE PRECISION NOT NULL,
		date               TIMESTAMP NOT NULL
	)`

const usageDateIndex = `CREATE INDEX IF NOT EXISTS idx_usage_logs_date ON usage_logs (date)`

// UsageAdapter implements out.UsageRepository with sqlx.
// Queries are written with ? placeholders and rebound per driver.
type UsageAdapter struct {
	db *sqlx.DB
}

// NewUsageAdapter creates a new UsageAdapter.
func NewUsageAdapter(db *sqlx.DB) *UsageAdapter {
	return &UsageAdapter{db: db}
}

// Migrate creates the usage table if needed.
func (a *UsageAdapter) Migrate(ctx context.Context) error {
	for _, stmt := range []string{usageSchema, usageDateIndex} {
		if _, err := a.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate usage_logs: %w", err)
		}
	}
	return nil
}

func (a *UsageAdapter) Insert(ctx context.Context, log *domain.UsageLog) error {
	if log == nil || log.ID == "" {
		return ErrInvalidInput
	}

	query := a.db.Rebind(`
		INSERT INTO usage_logs (id, user_email, emails_processed, time_saved_minutes, date)
		VALUES (?, ?, ?, ?, ?)
	`)
	_, err := a.db.ExecContext(ctx, query,
		log.ID, log.UserEmail, log.EmailsProcessed, log.TimeSavedMinutes, log.Date.UTC())
	return err
}

func (a *UsageAdapter) Totals(ctx context.Context) (int, float64, error) {
	var row struct {
		Emails  int64   `db:"emails"`
		Minutes float64 `db:"minutes"`
	}
	const query = `
		SELECT COALESCE(SUM(emails_processed), 0) AS emails,
		       COALESCE(SUM(time_saved_minutes), 0) AS minutes
		FROM usage_logs
	`
	if err := a.db.GetContext(ctx, &row, query); err != nil {
		return 0, 0, err
	}
	return int(row.Emails), row.Minutes, nil
}

func (a *UsageAdapter) ListSince(ctx context.Context, since time.Time) ([]*domain.UsageLog, error) {
	query := a.db.Rebind(`
		SELECT id, user_email, emails_processed, time_saved_minutes, date
		FROM usage_logs
		WHERE date >= ?
		ORDER BY date ASC
	`)

	var logs []*domain.UsageLog
	if err := a.db.SelectContext(ctx, &logs, query, since.UTC()); err != nil {
		return nil, err
	}
	return logs, nil
}

var _ out.UsageRepository = (*UsageAdapter)(nil)
