package enums

import "fmt"

// EscrowStatus tracks held booking funds from payment capture to settlement.
type EscrowStatus string

const (
	EscrowStatusPendingConfirmation   EscrowStatus = "pending_confirmation"
	EscrowStatusConfirmationSubmitted EscrowStatus = "confirmation_submitted"
	EscrowStatusVerified              EscrowStatus = "verified"
	EscrowStatusReleased              EscrowStatus = "released"
	EscrowStatusRefunded              EscrowStatus = "refunded"
	EscrowStatusDisputed              EscrowStatus = "disputed"
)

var validEscrowStatuses = []EscrowStatus{
	EscrowStatusPendingConfirmation,
	EscrowStatusConfirmationSubmitted,
	EscrowStatusVerified,
	EscrowStatusReleased,
	EscrowStatusRefunded,
	EscrowStatusDisputed,
}

// String implements fmt.Stringer.
func (e EscrowStatus) String() string {
	return string(e)
}

// IsValid reports whether the value is a known EscrowStatus.
func (e EscrowStatus) IsValid() bool {
	for _, candidate := range validEscrowStatuses {
		if candidate == e {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the escrow has settled one way or the other.
func (e EscrowStatus) IsTerminal() bool {
	return e == EscrowStatusReleased || e == EscrowStatusRefunded
}

// ParseEscrowStatus converts raw input into an EscrowStatus.
func ParseEscrowStatus(value string) (EscrowStatus, error) {
	for _, candidate := range validEscrowStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid escrow status %q", value)
}
