package storage

import "time"

// SettingRecord is one persisted relay setting.
type SettingRecord struct {
	Key       string
	Value     string
	UpdatedAt time.Time
}
