package payouts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	stripe "github.com/stripe/stripe-go/v84"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/rentavacation/escrow-backend/internal/bookings"
	"github.com/rentavacation/escrow-backend/internal/escrow"
	"github.com/rentavacation/escrow-backend/internal/listings"
	"github.com/rentavacation/escrow-backend/internal/profiles"
	"github.com/rentavacation/escrow-backend/internal/settings"
	"github.com/rentavacation/escrow-backend/pkg/db/models"
	"github.com/rentavacation/escrow-backend/pkg/enums"
	pkgerrors "github.com/rentavacation/escrow-backend/pkg/errors"
	"github.com/rentavacation/escrow-backend/pkg/stripegateway"
)

func setupPayoutsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	schema := `
CREATE TABLE IF NOT EXISTS booking_confirmations (
  id TEXT PRIMARY KEY,
  booking_id TEXT NOT NULL UNIQUE,
  owner_id TEXT NOT NULL,
  amount_cents INTEGER NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending_confirmation',
  confirmation_deadline DATETIME NOT NULL,
  owner_confirmation_status TEXT NOT NULL DEFAULT 'pending_owner',
  owner_confirmation_deadline DATETIME NOT NULL,
  extensions_used INTEGER NOT NULL DEFAULT 0,
  resort_confirmation_number TEXT,
  resort_contact_info TEXT,
  verified_by TEXT,
  verified_at DATETIME,
  verification_notes TEXT,
  payout_held INTEGER NOT NULL DEFAULT 0,
  payout_held_reason TEXT,
  auto_released INTEGER NOT NULL DEFAULT 0,
  released_at DATETIME,
  refunded_at DATETIME,
  refund_notes TEXT,
  transfer_id TEXT,
  standard_reminder_sent INTEGER NOT NULL DEFAULT 0,
  urgent_reminder_sent INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);
CREATE TABLE IF NOT EXISTS bookings (
  id TEXT PRIMARY KEY,
  listing_id TEXT NOT NULL,
  renter_id TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  check_in_date DATETIME NOT NULL,
  check_out_date DATETIME NOT NULL,
  total_amount_cents INTEGER NOT NULL,
  commission_cents INTEGER NOT NULL DEFAULT 0,
  owner_payout_cents INTEGER NOT NULL DEFAULT 0,
  currency TEXT NOT NULL DEFAULT 'usd',
  payment_reference TEXT,
  paid_at DATETIME,
  refunded_cents INTEGER NOT NULL DEFAULT 0,
  payout_status TEXT NOT NULL DEFAULT 'none',
  payout_reference TEXT,
  payout_date DATETIME,
  payout_note TEXT,
  cancellation_note TEXT,
  created_at DATETIME,
  updated_at DATETIME
);
CREATE TABLE IF NOT EXISTS listings (
  id TEXT PRIMARY KEY,
  owner_id TEXT NOT NULL,
  title TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'active',
  check_in_date DATETIME NOT NULL,
  check_out_date DATETIME NOT NULL,
  cancellation_policy TEXT NOT NULL DEFAULT 'moderate',
  created_at DATETIME,
  updated_at DATETIME
);
CREATE TABLE IF NOT EXISTS profiles (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL UNIQUE,
  full_name TEXT NOT NULL,
  role TEXT NOT NULL DEFAULT 'traveler',
  stripe_account_id TEXT,
  payouts_enabled INTEGER NOT NULL DEFAULT 0,
  charges_enabled INTEGER NOT NULL DEFAULT 0,
  onboarding_complete INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(schema).Error)
	return db
}

type fakeSettings struct {
	opts settings.Settings
}

func (f fakeSettings) Load(context.Context) settings.Settings { return f.opts }

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type fakeGateway struct {
	transfers   []stripegateway.TransferRequest
	transferErr error
}

func (f *fakeGateway) CreateTransfer(_ context.Context, req stripegateway.TransferRequest) (*stripe.Transfer, error) {
	if f.transferErr != nil {
		return nil, f.transferErr
	}
	f.transfers = append(f.transfers, req)
	return &stripe.Transfer{ID: "tr_test_1"}, nil
}

func (f *fakeGateway) RetrieveCheckoutSession(context.Context, string) (*stripe.CheckoutSession, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeGateway) CreateRefund(context.Context, stripegateway.RefundRequest) (*stripe.Refund, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeGateway) RetrieveAccount(context.Context, string) (*stripe.Account, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeGateway) VerifyWebhook([]byte, string) (stripe.Event, error) {
	return stripe.Event{}, errors.New("not implemented")
}

type sweepFixture struct {
	db      *gorm.DB
	svc     Service
	gateway *fakeGateway
	escrows escrow.Repository
	now     time.Time
}

func newSweepFixture(t *testing.T) *sweepFixture {
	t.Helper()

	db := setupPayoutsTestDB(t)
	now := time.Date(2026, 4, 1, 3, 0, 0, 0, time.UTC)
	gw := &fakeGateway{}

	svc, err := NewService(ServiceParams{
		Escrows:  escrow.NewRepository(db),
		Bookings: bookings.NewRepository(db),
		Listings: listings.NewRepository(db),
		Profiles: profiles.NewRepository(db),
		Settings: fakeSettings{opts: settings.Defaults()},
		Gateway:  gw,
		Tx:       gormTxRunner{db: db},
		Now:      func() time.Time { return now },
	})
	require.NoError(t, err)

	return &sweepFixture{db: db, svc: svc, gateway: gw, escrows: escrow.NewRepository(db), now: now}
}

type seedOpts struct {
	checkOut        time.Time
	status          enums.EscrowStatus
	held            bool
	stripeAccountID string
	payoutsEnabled  bool
}

func (f *sweepFixture) seed(t *testing.T, opts seedOpts) (*models.Escrow, *models.Booking) {
	t.Helper()

	owner := &models.Profile{
		ID:             uuid.New(),
		Email:          uuid.New().String() + "@example.com",
		FullName:       "Olive Owner",
		Role:           enums.UserRoleOwner,
		PayoutsEnabled: opts.payoutsEnabled,
	}
	if opts.stripeAccountID != "" {
		owner.StripeAccountID = &opts.stripeAccountID
	}
	require.NoError(t, f.db.Create(owner).Error)

	listing := &models.Listing{
		ID:           uuid.New(),
		OwnerID:      owner.ID,
		Title:        "Lakeside Week 30",
		Status:       enums.ListingStatusBooked,
		CheckInDate:  opts.checkOut.AddDate(0, 0, -7),
		CheckOutDate: opts.checkOut,
	}
	require.NoError(t, f.db.Create(listing).Error)

	booking := &models.Booking{
		ID:               uuid.New(),
		ListingID:        listing.ID,
		RenterID:         uuid.New(),
		Status:           enums.BookingStatusConfirmed,
		CheckInDate:      listing.CheckInDate,
		CheckOutDate:     listing.CheckOutDate,
		TotalAmountCents: 200000,
		CommissionCents:  30000,
		OwnerPayoutCents: 170000,
		Currency:         "usd",
		PayoutStatus:     enums.PayoutStatusNone,
	}
	require.NoError(t, f.db.Create(booking).Error)

	esc := &models.Escrow{
		ID:                        uuid.New(),
		BookingID:                 booking.ID,
		OwnerID:                   owner.ID,
		AmountCents:               200000,
		Status:                    opts.status,
		ConfirmationDeadline:      opts.checkOut.AddDate(0, 0, -9),
		OwnerConfirmationStatus:   enums.OwnerConfirmationAccepted,
		OwnerConfirmationDeadline: opts.checkOut.AddDate(0, 0, -9),
		PayoutHeld:                opts.held,
	}
	require.NoError(t, f.db.Create(esc).Error)
	return esc, booking
}

func TestSweep_ReleasesAfterHoldPeriod(t *testing.T) {
	f := newSweepFixture(t)
	ctx := context.Background()

	// Checked out five days ago: eligible today.
	esc, booking := f.seed(t, seedOpts{
		checkOut:        f.now.AddDate(0, 0, -5),
		status:          enums.EscrowStatusVerified,
		stripeAccountID: "acct_owner_1",
		payoutsEnabled:  true,
	})

	summary, err := f.svc.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Released)
	require.Equal(t, 1, summary.PayoutsInitiated)
	require.Zero(t, summary.Skipped)
	require.Empty(t, summary.Errors)

	got, err := f.escrows.FindByID(ctx, esc.ID)
	require.NoError(t, err)
	require.Equal(t, enums.EscrowStatusReleased, got.Status)
	require.True(t, got.AutoReleased)
	require.NotNil(t, got.TransferID)

	updated, err := bookings.NewRepository(f.db).FindByID(ctx, booking.ID)
	require.NoError(t, err)
	require.Equal(t, enums.PayoutStatusProcessing, updated.PayoutStatus)
	require.NotNil(t, updated.PayoutReference)
	require.Equal(t, "tr_test_1", *updated.PayoutReference)

	require.Len(t, f.gateway.transfers, 1)
	require.Equal(t, "acct_owner_1", f.gateway.transfers[0].Destination)
	require.Equal(t, int64(170000), f.gateway.transfers[0].AmountCents)
	require.Equal(t, booking.ID.String(), f.gateway.transfers[0].Metadata["booking_id"])
}

func TestSweep_SkipsInsideHoldPeriod(t *testing.T) {
	f := newSweepFixture(t)

	// Checked out four days ago: one day short of the five day hold.
	esc, _ := f.seed(t, seedOpts{
		checkOut:        f.now.AddDate(0, 0, -4),
		status:          enums.EscrowStatusVerified,
		stripeAccountID: "acct_owner_1",
		payoutsEnabled:  true,
	})

	summary, err := f.svc.Sweep(context.Background())
	require.NoError(t, err)
	require.Zero(t, summary.Released)
	require.Equal(t, 1, summary.Skipped)

	got, err := f.escrows.FindByID(context.Background(), esc.ID)
	require.NoError(t, err)
	require.Equal(t, enums.EscrowStatusVerified, got.Status)
}

func TestSweep_HeldEscrowNeverSelected(t *testing.T) {
	f := newSweepFixture(t)

	f.seed(t, seedOpts{
		checkOut:        f.now.AddDate(0, 0, -10),
		status:          enums.EscrowStatusVerified,
		held:            true,
		stripeAccountID: "acct_owner_1",
		payoutsEnabled:  true,
	})

	summary, err := f.svc.Sweep(context.Background())
	require.NoError(t, err)
	require.Zero(t, summary.Released)
	require.Zero(t, summary.Skipped)
	require.Empty(t, f.gateway.transfers)
}

func TestSweep_ManualPayoutWhenNoConnectAccount(t *testing.T) {
	f := newSweepFixture(t)
	ctx := context.Background()

	esc, booking := f.seed(t, seedOpts{
		checkOut: f.now.AddDate(0, 0, -6),
		status:   enums.EscrowStatusVerified,
	})

	summary, err := f.svc.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Released)
	require.Zero(t, summary.PayoutsInitiated)
	require.Empty(t, summary.Errors)
	require.Empty(t, f.gateway.transfers)

	got, err := f.escrows.FindByID(ctx, esc.ID)
	require.NoError(t, err)
	require.Equal(t, enums.EscrowStatusReleased, got.Status)

	updated, err := bookings.NewRepository(f.db).FindByID(ctx, booking.ID)
	require.NoError(t, err)
	require.Equal(t, enums.PayoutStatusPending, updated.PayoutStatus)
	require.NotNil(t, updated.PayoutNote)
	require.Equal(t, noteNoConnectAccount, *updated.PayoutNote)
}

func TestSweep_ManualPayoutWhenPayoutsDisabled(t *testing.T) {
	f := newSweepFixture(t)
	ctx := context.Background()

	_, booking := f.seed(t, seedOpts{
		checkOut:        f.now.AddDate(0, 0, -6),
		status:          enums.EscrowStatusVerified,
		stripeAccountID: "acct_owner_1",
		payoutsEnabled:  false,
	})

	summary, err := f.svc.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Released)
	require.Zero(t, summary.PayoutsInitiated)

	updated, err := bookings.NewRepository(f.db).FindByID(ctx, booking.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.PayoutNote)
	require.Equal(t, notePayoutsDisabled, *updated.PayoutNote)
}

func TestSweep_TransferFailureIsolatedPerItem(t *testing.T) {
	f := newSweepFixture(t)
	f.gateway.transferErr = errors.New("stripe: insufficient platform balance")
	ctx := context.Background()

	esc, booking := f.seed(t, seedOpts{
		checkOut:        f.now.AddDate(0, 0, -6),
		status:          enums.EscrowStatusVerified,
		stripeAccountID: "acct_owner_1",
		payoutsEnabled:  true,
	})

	summary, err := f.svc.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Released)
	require.Zero(t, summary.PayoutsInitiated)
	require.Len(t, summary.Errors, 1)
	require.Contains(t, summary.Errors[0], "insufficient platform balance")

	// The release stands; only the transfer leg failed.
	got, err := f.escrows.FindByID(ctx, esc.ID)
	require.NoError(t, err)
	require.Equal(t, enums.EscrowStatusReleased, got.Status)

	updated, err := bookings.NewRepository(f.db).FindByID(ctx, booking.ID)
	require.NoError(t, err)
	require.Equal(t, enums.PayoutStatusFailed, updated.PayoutStatus)
	require.NotNil(t, updated.PayoutNote)
	require.Contains(t, *updated.PayoutNote, "insufficient platform balance")
}

func TestReleaseOne_AppliesSweepPredicate(t *testing.T) {
	f := newSweepFixture(t)
	ctx := context.Background()

	esc, _ := f.seed(t, seedOpts{
		checkOut:        f.now.AddDate(0, 0, -4),
		status:          enums.EscrowStatusVerified,
		stripeAccountID: "acct_owner_1",
		payoutsEnabled:  true,
	})

	err := f.svc.ReleaseOne(ctx, esc.ID)
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())
}

func TestReleaseOne_ManualReleaseNotFlaggedAuto(t *testing.T) {
	f := newSweepFixture(t)
	ctx := context.Background()

	esc, _ := f.seed(t, seedOpts{
		checkOut:        f.now.AddDate(0, 0, -5),
		status:          enums.EscrowStatusVerified,
		stripeAccountID: "acct_owner_1",
		payoutsEnabled:  true,
	})

	require.NoError(t, f.svc.ReleaseOne(ctx, esc.ID))

	got, err := f.escrows.FindByID(ctx, esc.ID)
	require.NoError(t, err)
	require.Equal(t, enums.EscrowStatusReleased, got.Status)
	require.False(t, got.AutoReleased)
}
