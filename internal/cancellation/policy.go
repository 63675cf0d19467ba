// Package cancellation applies the listing's refund schedule when a renter or
// owner cancels a booking.
package cancellation

import (
	"time"

	"github.com/rentavacation/escrow-backend/pkg/enums"
)

// RefundPercent returns the renter refund percentage under policy with
// daysUntilCheckin full days remaining.
func RefundPercent(policy enums.CancellationPolicy, daysUntilCheckin int) int {
	switch policy {
	case enums.CancellationPolicyFlexible:
		// Full refund up to 24 hours before check-in.
		if daysUntilCheckin >= 1 {
			return 100
		}
		return 0
	case enums.CancellationPolicyModerate:
		if daysUntilCheckin >= 5 {
			return 100
		}
		if daysUntilCheckin >= 1 {
			return 50
		}
		return 0
	case enums.CancellationPolicyStrict:
		if daysUntilCheckin >= 7 {
			return 50
		}
		return 0
	case enums.CancellationPolicySuperStrict:
		return 0
	default:
		return 0
	}
}

// DaysUntilCheckin counts the days remaining before checkIn at now, rounding
// partial days up and clamping past dates to zero.
func DaysUntilCheckin(checkIn, now time.Time) int {
	remaining := checkIn.Sub(now)
	if remaining <= 0 {
		return 0
	}
	days := int(remaining / (24 * time.Hour))
	if remaining%(24*time.Hour) > 0 {
		days++
	}
	return days
}
