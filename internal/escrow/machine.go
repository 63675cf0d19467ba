package escrow

import (
	"time"

	"github.com/rentavacation/escrow-backend/pkg/db/models"
	"github.com/rentavacation/escrow-backend/pkg/enums"
)

// allowedTransitions is the closed transition table for escrow status. Any
// move not listed here is rejected at a single point instead of scattered
// status checks.
var allowedTransitions = map[enums.EscrowStatus][]enums.EscrowStatus{
	enums.EscrowStatusPendingConfirmation: {
		enums.EscrowStatusConfirmationSubmitted,
		enums.EscrowStatusRefunded,
		enums.EscrowStatusDisputed,
	},
	enums.EscrowStatusConfirmationSubmitted: {
		enums.EscrowStatusVerified,
		enums.EscrowStatusRefunded,
		enums.EscrowStatusDisputed,
	},
	enums.EscrowStatusVerified: {
		enums.EscrowStatusReleased,
		enums.EscrowStatusRefunded,
		enums.EscrowStatusDisputed,
	},
	// Dispute resolution settles one way or the other.
	enums.EscrowStatusDisputed: {
		enums.EscrowStatusReleased,
		enums.EscrowStatusRefunded,
	},
	enums.EscrowStatusReleased: {},
	enums.EscrowStatusRefunded: {},
}

// CanTransition reports whether the escrow status graph allows from -> to.
func CanTransition(from, to enums.EscrowStatus) bool {
	for _, candidate := range allowedTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// CanRelease is the single release-eligibility predicate shared by the manual
// release path and the auto-release sweep. Pure: same inputs, same answer,
// regardless of call site.
func CanRelease(e *models.Escrow, checkOutDate time.Time, holdPeriodDays int, now time.Time) bool {
	if e == nil {
		return false
	}
	if e.Status != enums.EscrowStatusVerified {
		return false
	}
	if e.PayoutHeld {
		return false
	}
	return !now.Before(checkOutDate.AddDate(0, 0, holdPeriodDays))
}
