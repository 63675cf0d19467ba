package notify

import (
	"fmt"

	"github.com/rentavacation/escrow-backend/pkg/enums"
	"github.com/shopspring/decimal"
)

type template struct {
	subject func(Payload) string
	text    func(Payload) string
}

func formatAmount(cents int64) string {
	return "$" + decimal.NewFromInt(cents).Shift(-2).StringFixed(2)
}

var templates = map[enums.NotificationKind]template{
	enums.NotificationBookingConfirmed: {
		subject: func(p Payload) string {
			return "Your booking is confirmed"
		},
		text: func(p Payload) string {
			return fmt.Sprintf("Your booking of %s for %s is confirmed. Booking reference: %s.",
				p.ListingName, formatAmount(p.AmountCents), p.BookingID)
		},
	},
	enums.NotificationNewBooking: {
		subject: func(p Payload) string {
			return "New booking: confirmation required"
		},
		text: func(p Payload) string {
			return fmt.Sprintf("You have a new booking of %s. Please confirm with the resort before %s.",
				p.ListingName, p.Deadline)
		},
	},
	enums.NotificationConfirmationReminder: {
		subject: func(p Payload) string {
			return "Reminder: resort confirmation needed"
		},
		text: func(p Payload) string {
			return fmt.Sprintf("The booking of %s still needs a resort confirmation number. Deadline: %s.",
				p.ListingName, p.Deadline)
		},
	},
	enums.NotificationConfirmationUrgent: {
		subject: func(p Payload) string {
			return "Urgent: confirmation deadline approaching"
		},
		text: func(p Payload) string {
			return fmt.Sprintf("Final reminder: the booking of %s will be cancelled and refunded unless confirmed by %s.",
				p.ListingName, p.Deadline)
		},
	},
	enums.NotificationCheckinReminder: {
		subject: func(p Payload) string {
			return "Check-in is coming up"
		},
		text: func(p Payload) string {
			return fmt.Sprintf("Your stay at %s starts soon. Please confirm your arrival once you check in.",
				p.ListingName)
		},
	},
	enums.NotificationBookingCancelled: {
		subject: func(p Payload) string {
			return "Booking cancelled"
		},
		text: func(p Payload) string {
			msg := fmt.Sprintf("The booking of %s has been cancelled.", p.ListingName)
			if p.Note != "" {
				msg += " " + p.Note
			}
			return msg
		},
	},
	enums.NotificationPayoutInitiated: {
		subject: func(p Payload) string {
			return "Your payout is on the way"
		},
		text: func(p Payload) string {
			return fmt.Sprintf("A payout of %s for the booking of %s has been initiated.",
				formatAmount(p.AmountCents), p.ListingName)
		},
	},
	enums.NotificationManualPayoutNeeded: {
		subject: func(p Payload) string {
			return "Action needed to receive your payout"
		},
		text: func(p Payload) string {
			msg := fmt.Sprintf("A payout of %s for the booking of %s is waiting.",
				formatAmount(p.AmountCents), p.ListingName)
			if p.Note != "" {
				msg += " " + p.Note
			}
			return msg
		},
	},
}

// Render returns the subject and body for a notification kind.
func Render(kind enums.NotificationKind, data Payload) (subject, text string, ok bool) {
	tpl, found := templates[kind]
	if !found {
		return "", "", false
	}
	return tpl.subject(data), tpl.text(data), true
}
