package enums

import "fmt"

// OwnerConfirmationStatus tracks the owner acceptance window on an escrow.
type OwnerConfirmationStatus string

const (
	OwnerConfirmationPending  OwnerConfirmationStatus = "pending_owner"
	OwnerConfirmationAccepted OwnerConfirmationStatus = "owner_confirmed"
	OwnerConfirmationTimedOut OwnerConfirmationStatus = "owner_timed_out"
	OwnerConfirmationDeclined OwnerConfirmationStatus = "owner_declined"
)

var validOwnerConfirmationStatuses = []OwnerConfirmationStatus{
	OwnerConfirmationPending,
	OwnerConfirmationAccepted,
	OwnerConfirmationTimedOut,
	OwnerConfirmationDeclined,
}

// String implements fmt.Stringer.
func (o OwnerConfirmationStatus) String() string {
	return string(o)
}

// IsValid reports whether the value is a known OwnerConfirmationStatus.
func (o OwnerConfirmationStatus) IsValid() bool {
	for _, candidate := range validOwnerConfirmationStatuses {
		if candidate == o {
			return true
		}
	}
	return false
}

// ParseOwnerConfirmationStatus converts raw input into an OwnerConfirmationStatus.
func ParseOwnerConfirmationStatus(value string) (OwnerConfirmationStatus, error) {
	for _, candidate := range validOwnerConfirmationStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid owner confirmation status %q", value)
}
