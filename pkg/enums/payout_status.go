package enums

import "fmt"

// PayoutStatus tracks the owner payout leg of a booking.
type PayoutStatus string

const (
	PayoutStatusNone       PayoutStatus = "none"
	PayoutStatusPending    PayoutStatus = "pending"
	PayoutStatusProcessing PayoutStatus = "processing"
	PayoutStatusPaid       PayoutStatus = "paid"
	PayoutStatusFailed     PayoutStatus = "failed"
)

var validPayoutStatuses = []PayoutStatus{
	PayoutStatusNone,
	PayoutStatusPending,
	PayoutStatusProcessing,
	PayoutStatusPaid,
	PayoutStatusFailed,
}

// String implements fmt.Stringer.
func (p PayoutStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PayoutStatus.
func (p PayoutStatus) IsValid() bool {
	for _, candidate := range validPayoutStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// CanTransitionTo reports whether moving to next follows the allowed graph:
// none -> pending -> processing -> {paid, failed}. A failed payout may be
// retried back to pending by an operator, never automatically.
func (p PayoutStatus) CanTransitionTo(next PayoutStatus) bool {
	if p == next {
		return false
	}
	switch p {
	case PayoutStatusNone:
		return next == PayoutStatusPending
	case PayoutStatusPending:
		return next == PayoutStatusProcessing || next == PayoutStatusPaid || next == PayoutStatusFailed
	case PayoutStatusProcessing:
		return next == PayoutStatusPaid || next == PayoutStatusFailed
	case PayoutStatusFailed:
		return next == PayoutStatusPending
	default:
		return false
	}
}

// ParsePayoutStatus converts raw input into a PayoutStatus.
func ParsePayoutStatus(value string) (PayoutStatus, error) {
	for _, candidate := range validPayoutStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payout status %q", value)
}
