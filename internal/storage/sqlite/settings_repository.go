package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/netdout/relay/internal/settings"
	"github.com/netdout/relay/internal/storage"
)

// SettingsRepository implements settings.Store on top of the settings table.
type SettingsRepository struct {
	db  *sql.DB
	now func() time.Time
}

var _ settings.Store = (*SettingsRepository)(nil)

func NewSettingsRepository(dbConn *sql.DB) *SettingsRepository {
	return &SettingsRepository{db: dbConn, now: time.Now}
}

func (r *SettingsRepository) Get(ctx context.Context, key string) (string, bool, error) {
	var value string

	err := r.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}

	if err != nil {
		return "", false, err
	}

	return value, true, nil
}

// Set upserts the value. Writing the same value twice only refreshes updated_at.
func (r *SettingsRepository) Set(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, key, value, r.now().UTC().Format(time.RFC3339))

	return err
}

// List returns every persisted setting ordered by key.
func (r *SettingsRepository) List(ctx context.Context) ([]storage.SettingRecord, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key, value, updated_at FROM settings ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []storage.SettingRecord

	for rows.Next() {
		var (
			record    storage.SettingRecord
			updatedAt string
		)

		if err := rows.Scan(&record.Key, &record.Value, &updatedAt); err != nil {
			return nil, err
		}

		// Unparseable timestamps are left zero.
		record.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

		records = append(records, record)
	}

	return records, rows.Err()
}
