package disputes

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
	"github.com/rentavacation/escrow-backend/internal/payouts"
	"github.com/rentavacation/escrow-backend/internal/profiles"
	"github.com/rentavacation/escrow-backend/internal/settings"
	"github.com/rentavacation/escrow-backend/pkg/db/models"
	"github.com/rentavacation/escrow-backend/pkg/enums"
	pkgerrors "github.com/rentavacation/escrow-backend/pkg/errors"
	"github.com/rentavacation/escrow-backend/pkg/stripegateway"
)

func setupDisputesTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	schema := `
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
);
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
CREATE TABLE IF NOT EXISTS disputes (
  id TEXT PRIMARY KEY,
  booking_id TEXT NOT NULL,
  opened_by TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'open',
  reason TEXT NOT NULL,
  resolution_note TEXT,
  refund_cents INTEGER NOT NULL DEFAULT 0,
  resolved_by TEXT,
  resolved_at DATETIME,
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
	refunds   []stripegateway.RefundRequest
	transfers []stripegateway.TransferRequest
}

func (f *fakeGateway) CreateTransfer(_ context.Context, req stripegateway.TransferRequest) (*stripe.Transfer, error) {
	f.transfers = append(f.transfers, req)
	return &stripe.Transfer{ID: "tr_dispute_1"}, nil
}

func (f *fakeGateway) RetrieveCheckoutSession(context.Context, string) (*stripe.CheckoutSession, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeGateway) CreateRefund(_ context.Context, req stripegateway.RefundRequest) (*stripe.Refund, error) {
	f.refunds = append(f.refunds, req)
	return &stripe.Refund{ID: "re_dispute_1"}, nil
}

func (f *fakeGateway) RetrieveAccount(context.Context, string) (*stripe.Account, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeGateway) VerifyWebhook([]byte, string) (stripe.Event, error) {
	return stripe.Event{}, errors.New("not implemented")
}

type disputeFixture struct {
	db      *gorm.DB
	svc     Service
	gateway *fakeGateway
	owner   *models.Profile
	renter  *models.Profile
	booking *models.Booking
	escrow  *models.Escrow
}

func newDisputeFixture(t *testing.T) *disputeFixture {
	t.Helper()

	db := setupDisputesTestDB(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	gw := &fakeGateway{}

	accountID := "acct_owner_1"
	owner := &models.Profile{
		ID: uuid.New(), Email: "owner@example.com", FullName: "Olive Owner",
		Role: enums.UserRoleOwner, StripeAccountID: &accountID, PayoutsEnabled: true,
	}
	renter := &models.Profile{ID: uuid.New(), Email: "renter@example.com", FullName: "Riley Renter", Role: enums.UserRoleTraveler}
	require.NoError(t, db.Create(owner).Error)
	require.NoError(t, db.Create(renter).Error)

	listing := &models.Listing{
		ID:           uuid.New(),
		OwnerID:      owner.ID,
		Title:        "Harbor View Week 18",
		Status:       enums.ListingStatusBooked,
		CheckInDate:  now.AddDate(0, 0, -10),
		CheckOutDate: now.AddDate(0, 0, -3),
	}
	require.NoError(t, db.Create(listing).Error)

	ref := "pi_dispute_1"
	booking := &models.Booking{
		ID:               uuid.New(),
		ListingID:        listing.ID,
		RenterID:         renter.ID,
		Status:           enums.BookingStatusConfirmed,
		CheckInDate:      listing.CheckInDate,
		CheckOutDate:     listing.CheckOutDate,
		TotalAmountCents: 200000,
		CommissionCents:  30000,
		OwnerPayoutCents: 170000,
		Currency:         "usd",
		PaymentReference: &ref,
		PayoutStatus:     enums.PayoutStatusNone,
	}
	require.NoError(t, db.Create(booking).Error)

	esc := &models.Escrow{
		ID:                        uuid.New(),
		BookingID:                 booking.ID,
		OwnerID:                   owner.ID,
		AmountCents:               200000,
		Status:                    enums.EscrowStatusVerified,
		ConfirmationDeadline:      now.AddDate(0, 0, -9),
		OwnerConfirmationStatus:   enums.OwnerConfirmationAccepted,
		OwnerConfirmationDeadline: now.AddDate(0, 0, -9),
	}
	require.NoError(t, db.Create(esc).Error)

	payoutSvc, err := payouts.NewService(payouts.ServiceParams{
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

	svc, err := NewService(ServiceParams{
		Repo:     NewRepository(db),
		Bookings: bookings.NewRepository(db),
		Listings: listings.NewRepository(db),
		Escrows:  escrow.NewRepository(db),
		Payouts:  payoutSvc,
		Gateway:  gw,
		Tx:       gormTxRunner{db: db},
		Now:      func() time.Time { return now },
	})
	require.NoError(t, err)

	return &disputeFixture{db: db, svc: svc, gateway: gw, owner: owner, renter: renter, booking: booking, escrow: esc}
}

func TestOpen_FreezesEscrow(t *testing.T) {
	f := newDisputeFixture(t)
	ctx := context.Background()

	dispute, err := f.svc.Open(ctx, OpenInput{
		BookingID: f.booking.ID,
		OpenedBy:  f.renter.ID,
		Reason:    "resort had no record of the reservation",
	})
	require.NoError(t, err)
	require.Equal(t, enums.DisputeStatusOpen, dispute.Status)

	esc, err := escrow.NewRepository(f.db).FindByID(ctx, f.escrow.ID)
	require.NoError(t, err)
	require.Equal(t, enums.EscrowStatusDisputed, esc.Status)

	// One open dispute per booking.
	_, err = f.svc.Open(ctx, OpenInput{BookingID: f.booking.ID, OpenedBy: f.renter.ID, Reason: "again"})
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeConflict, pkgerrors.As(err).Code())
}

func TestOpen_RejectsThirdParty(t *testing.T) {
	f := newDisputeFixture(t)

	_, err := f.svc.Open(context.Background(), OpenInput{
		BookingID: f.booking.ID,
		OpenedBy:  uuid.New(),
		Reason:    "not my booking",
	})
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeForbidden, pkgerrors.As(err).Code())
}

func TestResolve_FullRefundCancelsBooking(t *testing.T) {
	f := newDisputeFixture(t)
	ctx := context.Background()

	dispute, err := f.svc.Open(ctx, OpenInput{BookingID: f.booking.ID, OpenedBy: f.renter.ID, Reason: "denied check-in"})
	require.NoError(t, err)

	adminID := uuid.New()
	resolved, err := f.svc.Resolve(ctx, ResolveInput{
		DisputeID:   dispute.ID,
		AdminID:     adminID,
		Status:      enums.DisputeStatusResolved,
		RefundCents: 200000,
		Note:        "resort confirmed the denial",
	})
	require.NoError(t, err)
	require.Equal(t, enums.DisputeStatusResolved, resolved.Status)
	require.Equal(t, int64(200000), resolved.RefundCents)
	require.NotNil(t, resolved.ResolvedBy)
	require.Equal(t, adminID, *resolved.ResolvedBy)

	booking, err := bookings.NewRepository(f.db).FindByID(ctx, f.booking.ID)
	require.NoError(t, err)
	require.Equal(t, enums.BookingStatusCancelled, booking.Status)

	esc, err := escrow.NewRepository(f.db).FindByID(ctx, f.escrow.ID)
	require.NoError(t, err)
	require.Equal(t, enums.EscrowStatusRefunded, esc.Status)

	require.Len(t, f.gateway.refunds, 1)
	require.Equal(t, int64(200000), f.gateway.refunds[0].AmountCents)
}

func TestResolve_PartialRefundKeepsBooking(t *testing.T) {
	f := newDisputeFixture(t)
	ctx := context.Background()

	dispute, err := f.svc.Open(ctx, OpenInput{BookingID: f.booking.ID, OpenedBy: f.renter.ID, Reason: "unit mismatch"})
	require.NoError(t, err)

	_, err = f.svc.Resolve(ctx, ResolveInput{
		DisputeID:   dispute.ID,
		AdminID:     uuid.New(),
		Status:      enums.DisputeStatusResolved,
		RefundCents: 50000,
	})
	require.NoError(t, err)

	booking, err := bookings.NewRepository(f.db).FindByID(ctx, f.booking.ID)
	require.NoError(t, err)
	require.Equal(t, enums.BookingStatusConfirmed, booking.Status)

	esc, err := escrow.NewRepository(f.db).FindByID(ctx, f.escrow.ID)
	require.NoError(t, err)
	require.Equal(t, enums.EscrowStatusRefunded, esc.Status)
}

func TestResolve_OwnerFavorReleasesAndPaysOut(t *testing.T) {
	f := newDisputeFixture(t)
	ctx := context.Background()

	dispute, err := f.svc.Open(ctx, OpenInput{BookingID: f.booking.ID, OpenedBy: f.renter.ID, Reason: "never arrived"})
	require.NoError(t, err)

	resolved, err := f.svc.Resolve(ctx, ResolveInput{
		DisputeID: dispute.ID,
		AdminID:   uuid.New(),
		Status:    enums.DisputeStatusRejected,
	})
	require.NoError(t, err)
	require.Equal(t, enums.DisputeStatusRejected, resolved.Status)

	esc, err := escrow.NewRepository(f.db).FindByID(ctx, f.escrow.ID)
	require.NoError(t, err)
	require.Equal(t, enums.EscrowStatusReleased, esc.Status)
	require.False(t, esc.AutoReleased)

	booking, err := bookings.NewRepository(f.db).FindByID(ctx, f.booking.ID)
	require.NoError(t, err)
	require.Equal(t, enums.PayoutStatusProcessing, booking.PayoutStatus)
	require.Len(t, f.gateway.transfers, 1)
	require.Equal(t, int64(170000), f.gateway.transfers[0].AmountCents)

	// The dispute is settled; a second resolution conflicts.
	_, err = f.svc.Resolve(ctx, ResolveInput{DisputeID: dispute.ID, AdminID: uuid.New(), Status: enums.DisputeStatusResolved})
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())
}
