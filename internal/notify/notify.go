// Package notify is the notification gateway boundary: a single dispatch
// surface invoked after state mutations commit. Delivery failures are logged
// and contained; they never surface into a transition's result.
package notify

import (
	"context"

	"github.com/rentavacation/escrow-backend/pkg/enums"
	"github.com/rentavacation/escrow-backend/pkg/logger"
)

// Recipient identifies one email target.
type Recipient struct {
	Email string
	Name  string
}

// Payload carries the template variables for one notification.
type Payload struct {
	BookingID   string
	ListingName string
	AmountCents int64
	Deadline    string
	Note        string
}

// Sender delivers one notification. Implementations must be safe for
// concurrent use.
type Sender interface {
	Send(ctx context.Context, to Recipient, kind enums.NotificationKind, data Payload) error
}

// Dispatcher wraps a Sender with the fire-and-forget failure policy.
type Dispatcher struct {
	sender Sender
	logg   *logger.Logger
}

// NewDispatcher builds the containment wrapper around sender.
func NewDispatcher(sender Sender, logg *logger.Logger) *Dispatcher {
	return &Dispatcher{sender: sender, logg: logg}
}

// Dispatch sends best-effort. Errors are logged and swallowed; a nil sender
// is a silent no-op so tests and the sweep worker can run without a mailer.
func (d *Dispatcher) Dispatch(ctx context.Context, to Recipient, kind enums.NotificationKind, data Payload) {
	if d == nil || d.sender == nil {
		return
	}
	if to.Email == "" {
		return
	}
	if err := d.sender.Send(ctx, to, kind, data); err != nil && d.logg != nil {
		fields := map[string]any{"kind": string(kind), "recipient": to.Email}
		d.logg.Warn(d.logg.WithFields(ctx, fields), "notification delivery failed: "+err.Error())
	}
}
