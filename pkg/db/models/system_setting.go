package models

import "time"

// SystemSetting is one key/value row of operator-tunable configuration.
// Consumers must fall back to documented defaults when a row is absent or
// malformed.
type SystemSetting struct {
	Key       string    `gorm:"column:key;primaryKey"`
	Value     string    `gorm:"column:value;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName pins the plural table name.
func (SystemSetting) TableName() string {
	return "system_settings"
}
