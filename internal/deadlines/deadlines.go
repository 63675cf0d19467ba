// Package deadlines holds the pure deadline arithmetic for the three timer
// families on a booking: the short extensible owner window, the fixed 48h
// resort confirmation window, and the fixed 24h traveler check-in window.
// Nothing here touches storage or the clock; callers pass now explicitly.
package deadlines

import "time"

const (
	// ResortConfirmationWindow is fixed and not extensible.
	ResortConfirmationWindow = 48 * time.Hour

	// CheckinWindow runs from the listing's check-in date.
	CheckinWindow = 24 * time.Hour

	// StandardReminderLead and UrgentReminderLead classify how close a
	// resort confirmation deadline is.
	StandardReminderLead = 12 * time.Hour
	UrgentReminderLead   = 6 * time.Hour

	// CheckinReminderSpread brackets the check-in date for the arrival
	// reminder.
	CheckinReminderSpread = 2 * time.Hour
)

// OwnerDeadline returns the owner confirmation deadline for a booking
// confirmed at base.
func OwnerDeadline(base time.Time, windowMinutes int) time.Time {
	return base.Add(time.Duration(windowMinutes) * time.Minute)
}

// ExtendOwnerDeadline adds one extension grant to the current deadline.
func ExtendOwnerDeadline(current time.Time, extensionMinutes int) time.Time {
	return current.Add(time.Duration(extensionMinutes) * time.Minute)
}

// ResortDeadline returns the resort confirmation deadline for a booking
// confirmed at base.
func ResortDeadline(base time.Time) time.Time {
	return base.Add(ResortConfirmationWindow)
}

// CheckinDeadline returns the traveler confirmation deadline for a stay
// starting at checkInDate.
func CheckinDeadline(checkInDate time.Time) time.Time {
	return checkInDate.Add(CheckinWindow)
}

// Expired reports whether deadline has passed at now.
func Expired(deadline, now time.Time) bool {
	return !now.Before(deadline)
}

// ReminderLevel classifies how urgently a deadline needs a nudge.
type ReminderLevel int

const (
	ReminderNone ReminderLevel = iota
	ReminderStandard
	ReminderUrgent
)

// String implements fmt.Stringer.
func (r ReminderLevel) String() string {
	switch r {
	case ReminderStandard:
		return "standard"
	case ReminderUrgent:
		return "urgent"
	default:
		return "none"
	}
}

// ClassifyReminder returns the reminder level for a pending deadline at now.
// Past deadlines are the timeout path's business, not a reminder.
func ClassifyReminder(deadline, now time.Time) ReminderLevel {
	if Expired(deadline, now) {
		return ReminderNone
	}
	remaining := deadline.Sub(now)
	switch {
	case remaining <= UrgentReminderLead:
		return ReminderUrgent
	case remaining <= StandardReminderLead:
		return ReminderStandard
	default:
		return ReminderNone
	}
}

// CheckinReminderDue reports whether now falls inside the reminder bracket
// around the check-in date.
func CheckinReminderDue(checkInDate, now time.Time) bool {
	return !now.Before(checkInDate.Add(-CheckinReminderSpread)) &&
		!now.After(checkInDate.Add(CheckinReminderSpread))
}
