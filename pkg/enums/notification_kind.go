package enums

import "fmt"

// NotificationKind names the email templates dispatched by the notify gateway.
type NotificationKind string

const (
	NotificationBookingConfirmed     NotificationKind = "booking_confirmed"
	NotificationNewBooking           NotificationKind = "new_booking"
	NotificationConfirmationReminder NotificationKind = "confirmation_reminder"
	NotificationConfirmationUrgent   NotificationKind = "confirmation_urgent"
	NotificationCheckinReminder      NotificationKind = "checkin_reminder"
	NotificationBookingCancelled     NotificationKind = "booking_cancelled"
	NotificationPayoutInitiated      NotificationKind = "payout_initiated"
	NotificationManualPayoutNeeded   NotificationKind = "manual_payout_needed"
)

var validNotificationKinds = []NotificationKind{
	NotificationBookingConfirmed,
	NotificationNewBooking,
	NotificationConfirmationReminder,
	NotificationConfirmationUrgent,
	NotificationCheckinReminder,
	NotificationBookingCancelled,
	NotificationPayoutInitiated,
	NotificationManualPayoutNeeded,
}

// IsValid checks whether the given kind matches the canonical enum.
func (n NotificationKind) IsValid() bool {
	for _, candidate := range validNotificationKinds {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationKind converts raw strings into NotificationKind.
func ParseNotificationKind(value string) (NotificationKind, error) {
	for _, candidate := range validNotificationKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification kind %q", value)
}
