package sqlite

import (
	"context"
	"database/sql"

	"github.com/netdout/relay/internal/settings"
	"github.com/netdout/relay/internal/storage"
	"github.com/netdout/relay/internal/telemetry"
)

// InstrumentedSettingsRepository wraps SettingsRepository with telemetry.
type InstrumentedSettingsRepository struct {
	repo      *SettingsRepository
	telemetry *telemetry.Telemetry
}

var _ settings.Store = (*InstrumentedSettingsRepository)(nil)

// NewInstrumentedSettingsRepository creates a new instrumented settings repository.
func NewInstrumentedSettingsRepository(dbConn *sql.DB, tel *telemetry.Telemetry) *InstrumentedSettingsRepository {
	return &InstrumentedSettingsRepository{
		repo:      NewSettingsRepository(dbConn),
		telemetry: tel,
	}
}

// Get reads a setting with telemetry.
func (r *InstrumentedSettingsRepository) Get(ctx context.Context, key string) (string, bool, error) {
	var (
		value string
		found bool
		err   error
	)

	instrumentedErr := r.telemetry.InstrumentDBOperation(ctx, "get_setting", func(ctx context.Context) error {
		value, found, err = r.repo.Get(ctx, key)

		return err
	})

	if instrumentedErr != nil {
		return "", false, instrumentedErr
	}

	return value, found, nil
}

// Set writes a setting with telemetry.
func (r *InstrumentedSettingsRepository) Set(ctx context.Context, key, value string) error {
	return r.telemetry.InstrumentDBOperation(ctx, "set_setting", func(ctx context.Context) error {
		return r.repo.Set(ctx, key, value)
	})
}

// List returns all settings with telemetry.
func (r *InstrumentedSettingsRepository) List(ctx context.Context) ([]storage.SettingRecord, error) {
	var (
		result []storage.SettingRecord
		err    error
	)

	instrumentedErr := r.telemetry.InstrumentDBOperation(ctx, "list_settings", func(ctx context.Context) error {
		result, err = r.repo.List(ctx)

		return err
	})

	if instrumentedErr != nil {
		return nil, instrumentedErr
	}

	return result, nil
}
