package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/rentavacation/escrow-backend/internal/deadlines"
	"github.com/rentavacation/escrow-backend/internal/notify"
	"github.com/rentavacation/escrow-backend/pkg/db/models"
	"github.com/rentavacation/escrow-backend/pkg/enums"
	pkgerrors "github.com/rentavacation/escrow-backend/pkg/errors"
	"github.com/rentavacation/escrow-backend/pkg/logger"
)

type escrowDeadlineStore interface {
	ListAwaitingConfirmation(ctx context.Context) ([]models.Escrow, error)
	ListOwnerWindowExpired(ctx context.Context, now time.Time) ([]models.Escrow, error)
	ListResortWindowExpired(ctx context.Context, now time.Time) ([]models.Escrow, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
}

type checkinReminderStore interface {
	ListReminderDue(ctx context.Context, windowStart, windowEnd time.Time) ([]models.CheckinConfirmation, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
}

type escrowTimeouts interface {
	TimeoutOwnerWindow(ctx context.Context, escrowID uuid.UUID) error
	TimeoutResortWindow(ctx context.Context, escrowID uuid.UUID) error
}

type bookingReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Booking, error)
}

type listingReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Listing, error)
}

type profileReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Profile, error)
}

// DeadlineReminderJobParams configure the deadline sweep: confirmation
// reminders, check-in reminders, and the two timeout paths.
type DeadlineReminderJobParams struct {
	Logger   *logger.Logger
	Escrows  escrowDeadlineStore
	Checkins checkinReminderStore
	Timeouts escrowTimeouts
	Bookings bookingReader
	Listings listingReader
	Profiles profileReader
	Notifier *notify.Dispatcher
	Now      func() time.Time
}

// NewDeadlineReminderJob builds the job that nudges owners ahead of the
// resort confirmation deadline, reminds travelers around check-in, and
// expires the escrows whose windows have lapsed.
func NewDeadlineReminderJob(params DeadlineReminderJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Escrows == nil {
		return nil, fmt.Errorf("escrow store required")
	}
	if params.Checkins == nil {
		return nil, fmt.Errorf("checkin store required")
	}
	if params.Timeouts == nil {
		return nil, fmt.Errorf("escrow timeout service required")
	}
	if params.Bookings == nil {
		return nil, fmt.Errorf("booking reader required")
	}
	if params.Listings == nil {
		return nil, fmt.Errorf("listing reader required")
	}
	if params.Profiles == nil {
		return nil, fmt.Errorf("profile reader required")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &deadlineReminderJob{
		logg:     params.Logger,
		escrows:  params.Escrows,
		checkins: params.Checkins,
		timeouts: params.Timeouts,
		bookings: params.Bookings,
		listings: params.Listings,
		profiles: params.Profiles,
		notifier: params.Notifier,
		now:      now,
	}, nil
}

type deadlineReminderJob struct {
	logg     *logger.Logger
	escrows  escrowDeadlineStore
	checkins checkinReminderStore
	timeouts escrowTimeouts
	bookings bookingReader
	listings listingReader
	profiles profileReader
	notifier *notify.Dispatcher
	now      func() time.Time
}

func (j *deadlineReminderJob) Name() string { return "deadline-reminders" }

func (j *deadlineReminderJob) Run(ctx context.Context) error {
	var errs []error
	if err := j.confirmationReminders(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := j.checkinReminders(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := j.ownerTimeouts(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := j.resortTimeouts(ctx); err != nil {
		errs = append(errs, err)
	}
	return multierr.Combine(errs...)
}

func (j *deadlineReminderJob) confirmationReminders(ctx context.Context) error {
	pending, err := j.escrows.ListAwaitingConfirmation(ctx)
	if err != nil {
		return fmt.Errorf("query escrows awaiting confirmation: %w", err)
	}
	now := j.now()
	var errs error
	count := 0
	for i := range pending {
		sent, err := j.remindOwner(ctx, &pending[i], now)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("remind %s: %w", pending[i].ID, err))
			continue
		}
		if sent {
			count++
		}
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{"count": count})
	j.logg.Info(logCtx, "confirmation reminder loop complete")
	return errs
}

// remindOwner sends at most one reminder per level per escrow. An urgent
// reminder marks both flags so the standard one never fires afterwards.
func (j *deadlineReminderJob) remindOwner(ctx context.Context, esc *models.Escrow, now time.Time) (bool, error) {
	var (
		kind    enums.NotificationKind
		updates map[string]any
	)
	switch deadlines.ClassifyReminder(esc.ConfirmationDeadline, now) {
	case deadlines.ReminderUrgent:
		if esc.UrgentReminderSent {
			return false, nil
		}
		kind = enums.NotificationConfirmationUrgent
		updates = map[string]any{"urgent_reminder_sent": true, "standard_reminder_sent": true}
	case deadlines.ReminderStandard:
		if esc.StandardReminderSent {
			return false, nil
		}
		kind = enums.NotificationConfirmationReminder
		updates = map[string]any{"standard_reminder_sent": true}
	default:
		return false, nil
	}

	if err := j.escrows.Update(ctx, esc.ID, updates); err != nil {
		return false, err
	}

	booking, err := j.bookings.FindByID(ctx, esc.BookingID)
	if err != nil {
		return false, err
	}
	owner, err := j.profiles.FindByID(ctx, esc.OwnerID)
	if err != nil {
		return false, err
	}
	payload := notify.Payload{
		BookingID:   booking.ID.String(),
		AmountCents: esc.AmountCents,
		Deadline:    esc.ConfirmationDeadline.Format(time.RFC1123),
	}
	if listing, err := j.listings.FindByID(ctx, booking.ListingID); err == nil {
		payload.ListingName = listing.Title
	}
	j.notifier.Dispatch(ctx, notify.Recipient{Email: owner.Email, Name: owner.FullName}, kind, payload)
	return true, nil
}

func (j *deadlineReminderJob) checkinReminders(ctx context.Context) error {
	// The stored deadline is check-in plus the confirmation window, so the
	// bracket around check-in shifts forward by that window.
	now := j.now()
	windowStart := now.Add(deadlines.CheckinWindow - deadlines.CheckinReminderSpread)
	windowEnd := now.Add(deadlines.CheckinWindow + deadlines.CheckinReminderSpread)
	due, err := j.checkins.ListReminderDue(ctx, windowStart, windowEnd)
	if err != nil {
		return fmt.Errorf("query check-ins due a reminder: %w", err)
	}
	var errs error
	count := 0
	for i := range due {
		if err := j.remindTraveler(ctx, &due[i]); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("check-in reminder %s: %w", due[i].ID, err))
			continue
		}
		count++
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{"count": count})
	j.logg.Info(logCtx, "check-in reminder loop complete")
	return errs
}

func (j *deadlineReminderJob) remindTraveler(ctx context.Context, confirmation *models.CheckinConfirmation) error {
	if err := j.checkins.Update(ctx, confirmation.ID, map[string]any{"reminder_sent": true}); err != nil {
		return err
	}
	booking, err := j.bookings.FindByID(ctx, confirmation.BookingID)
	if err != nil {
		return err
	}
	traveler, err := j.profiles.FindByID(ctx, confirmation.TravelerID)
	if err != nil {
		return err
	}
	payload := notify.Payload{
		BookingID: booking.ID.String(),
		Deadline:  confirmation.ConfirmationDeadline.Format(time.RFC1123),
	}
	if listing, err := j.listings.FindByID(ctx, booking.ListingID); err == nil {
		payload.ListingName = listing.Title
	}
	j.notifier.Dispatch(ctx, notify.Recipient{Email: traveler.Email, Name: traveler.FullName},
		enums.NotificationCheckinReminder, payload)
	return nil
}

func (j *deadlineReminderJob) ownerTimeouts(ctx context.Context) error {
	expired, err := j.escrows.ListOwnerWindowExpired(ctx, j.now())
	if err != nil {
		return fmt.Errorf("query expired owner windows: %w", err)
	}
	var errs error
	count := 0
	for _, esc := range expired {
		err := j.timeouts.TimeoutOwnerWindow(ctx, esc.ID)
		switch {
		case err == nil:
			count++
		case pkgerrors.As(err).Code() == pkgerrors.CodeStateConflict:
			// Lost the race to a concurrent submit or refund.
		default:
			errs = multierr.Append(errs, fmt.Errorf("owner timeout %s: %w", esc.ID, err))
		}
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{"count": count})
	j.logg.Info(logCtx, "owner window timeout loop complete")
	return errs
}

func (j *deadlineReminderJob) resortTimeouts(ctx context.Context) error {
	expired, err := j.escrows.ListResortWindowExpired(ctx, j.now())
	if err != nil {
		return fmt.Errorf("query expired resort windows: %w", err)
	}
	var errs error
	count := 0
	for _, esc := range expired {
		err := j.timeouts.TimeoutResortWindow(ctx, esc.ID)
		switch {
		case err == nil:
			count++
		case pkgerrors.As(err).Code() == pkgerrors.CodeStateConflict:
		default:
			errs = multierr.Append(errs, fmt.Errorf("resort timeout %s: %w", esc.ID, err))
		}
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{"count": count})
	j.logg.Info(logCtx, "resort window timeout loop complete")
	return errs
}
