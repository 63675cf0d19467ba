// Package settings loads the operator-tunable windows and rates consumed by
// the booking core. Every value has a documented default; a missing row or a
// malformed value falls back silently so a bad setting can never stall a
// webhook or a sweep.
package settings

import (
	"context"
	"strconv"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/rentavacation/escrow-backend/pkg/db/models"
	"github.com/rentavacation/escrow-backend/pkg/logger"
)

// Setting keys as stored in system_settings.
const (
	KeyOwnerWindowMinutes   = "owner_confirmation_window_minutes"
	KeyExtensionMinutes     = "extension_minutes"
	KeyMaxExtensions        = "max_extensions"
	KeyHoldPeriodDays       = "hold_period_days"
	KeyCommissionRate       = "commission_rate"
	KeyGuaranteeReserveRate = "guarantee_reserve_rate"
)

// Defaults applied when a setting row is absent or unparseable.
const (
	DefaultOwnerWindowMinutes = 60
	DefaultExtensionMinutes   = 30
	DefaultMaxExtensions      = 2
	DefaultHoldPeriodDays     = 5
)

var (
	defaultCommissionRate       = decimal.NewFromFloat(0.15)
	defaultGuaranteeReserveRate = decimal.NewFromFloat(0.03)
)

// Settings is the full option set, loaded once per unit of work.
type Settings struct {
	OwnerWindowMinutes   int
	ExtensionMinutes     int
	MaxExtensions        int
	HoldPeriodDays       int
	CommissionRate       decimal.Decimal
	GuaranteeReserveRate decimal.Decimal
}

// Defaults returns the option set with every value at its documented default.
func Defaults() Settings {
	return Settings{
		OwnerWindowMinutes:   DefaultOwnerWindowMinutes,
		ExtensionMinutes:     DefaultExtensionMinutes,
		MaxExtensions:        DefaultMaxExtensions,
		HoldPeriodDays:       DefaultHoldPeriodDays,
		CommissionRate:       defaultCommissionRate,
		GuaranteeReserveRate: defaultGuaranteeReserveRate,
	}
}

// Loader reads the settings table.
type Loader interface {
	Load(ctx context.Context) Settings
}

type loader struct {
	db   *gorm.DB
	logg *logger.Logger
}

// NewLoader builds a Loader backed by the provided GORM connection.
func NewLoader(db *gorm.DB, logg *logger.Logger) Loader {
	return &loader{db: db, logg: logg}
}

// Load fetches all known settings in one query. Read failures return the
// defaults; individual malformed values keep their default too.
func (l *loader) Load(ctx context.Context) Settings {
	out := Defaults()

	var rows []models.SystemSetting
	err := l.db.WithContext(ctx).
		Where("key IN ?", []string{
			KeyOwnerWindowMinutes,
			KeyExtensionMinutes,
			KeyMaxExtensions,
			KeyHoldPeriodDays,
			KeyCommissionRate,
			KeyGuaranteeReserveRate,
		}).
		Find(&rows).Error
	if err != nil {
		if l.logg != nil {
			l.logg.Warn(ctx, "settings load failed, using defaults: "+err.Error())
		}
		return out
	}

	for _, row := range rows {
		switch row.Key {
		case KeyOwnerWindowMinutes:
			applyPositiveInt(&out.OwnerWindowMinutes, row.Value)
		case KeyExtensionMinutes:
			applyPositiveInt(&out.ExtensionMinutes, row.Value)
		case KeyMaxExtensions:
			applyNonNegativeInt(&out.MaxExtensions, row.Value)
		case KeyHoldPeriodDays:
			applyNonNegativeInt(&out.HoldPeriodDays, row.Value)
		case KeyCommissionRate:
			applyRate(&out.CommissionRate, row.Value)
		case KeyGuaranteeReserveRate:
			applyRate(&out.GuaranteeReserveRate, row.Value)
		}
	}
	return out
}

func applyPositiveInt(dst *int, raw string) {
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return
	}
	*dst = v
}

func applyNonNegativeInt(dst *int, raw string) {
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return
	}
	*dst = v
}

func applyRate(dst *decimal.Decimal, raw string) {
	v, err := decimal.NewFromString(raw)
	if err != nil || v.IsNegative() || v.GreaterThan(decimal.NewFromInt(1)) {
		return
	}
	*dst = v
}
