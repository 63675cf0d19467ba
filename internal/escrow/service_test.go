package escrow

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
	"github.com/rentavacation/escrow-backend/internal/listings"
	"github.com/rentavacation/escrow-backend/internal/profiles"
	"github.com/rentavacation/escrow-backend/internal/settings"
	"github.com/rentavacation/escrow-backend/pkg/db/models"
	"github.com/rentavacation/escrow-backend/pkg/enums"
	pkgerrors "github.com/rentavacation/escrow-backend/pkg/errors"
	"github.com/rentavacation/escrow-backend/pkg/stripegateway"
)

func setupEscrowTestDB(t *testing.T) *gorm.DB {
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
	refunds    []stripegateway.RefundRequest
	refundErr  error
	transfers  []stripegateway.TransferRequest
	transferID string
}

func (f *fakeGateway) CreateTransfer(_ context.Context, req stripegateway.TransferRequest) (*stripe.Transfer, error) {
	f.transfers = append(f.transfers, req)
	id := f.transferID
	if id == "" {
		id = "tr_test"
	}
	return &stripe.Transfer{ID: id}, nil
}

func (f *fakeGateway) RetrieveCheckoutSession(context.Context, string) (*stripe.CheckoutSession, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeGateway) CreateRefund(_ context.Context, req stripegateway.RefundRequest) (*stripe.Refund, error) {
	if f.refundErr != nil {
		return nil, f.refundErr
	}
	f.refunds = append(f.refunds, req)
	return &stripe.Refund{ID: "re_test"}, nil
}

func (f *fakeGateway) RetrieveAccount(context.Context, string) (*stripe.Account, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeGateway) VerifyWebhook([]byte, string) (stripe.Event, error) {
	return stripe.Event{}, errors.New("not implemented")
}

type escrowFixture struct {
	db      *gorm.DB
	svc     Service
	gateway *fakeGateway
	repo    Repository
	escrow  *models.Escrow
	booking *models.Booking
	listing *models.Listing
	owner   *models.Profile
	renter  *models.Profile
	now     time.Time
}

func newEscrowFixture(t *testing.T, opts settings.Settings) *escrowFixture {
	t.Helper()

	db := setupEscrowTestDB(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	owner := &models.Profile{ID: uuid.New(), Email: "owner@example.com", FullName: "Olive Owner", Role: enums.UserRoleOwner}
	renter := &models.Profile{ID: uuid.New(), Email: "renter@example.com", FullName: "Riley Renter", Role: enums.UserRoleTraveler}
	require.NoError(t, db.Create(owner).Error)
	require.NoError(t, db.Create(renter).Error)

	listing := &models.Listing{
		ID:           uuid.New(),
		OwnerID:      owner.ID,
		Title:        "Oceanfront Week 12",
		Status:       enums.ListingStatusBooked,
		CheckInDate:  now.AddDate(0, 0, 14),
		CheckOutDate: now.AddDate(0, 0, 21),
	}
	require.NoError(t, db.Create(listing).Error)

	ref := "pi_test_123"
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

	escrow := &models.Escrow{
		ID:                        uuid.New(),
		BookingID:                 booking.ID,
		OwnerID:                   owner.ID,
		AmountCents:               200000,
		Status:                    enums.EscrowStatusPendingConfirmation,
		ConfirmationDeadline:      now.Add(48 * time.Hour),
		OwnerConfirmationStatus:   enums.OwnerConfirmationPending,
		OwnerConfirmationDeadline: now.Add(60 * time.Minute),
	}
	require.NoError(t, db.Create(escrow).Error)

	gw := &fakeGateway{}
	repo := NewRepository(db)
	svc, err := NewService(ServiceParams{
		Repo:     repo,
		Bookings: bookings.NewRepository(db),
		Listings: listings.NewRepository(db),
		Profiles: profiles.NewRepository(db),
		Settings: fakeSettings{opts: opts},
		Gateway:  gw,
		Tx:       gormTxRunner{db: db},
		Now:      func() time.Time { return now },
	})
	require.NoError(t, err)

	return &escrowFixture{
		db: db, svc: svc, gateway: gw, repo: repo,
		escrow: escrow, booking: booking, listing: listing,
		owner: owner, renter: renter, now: now,
	}
}

func TestSubmit_RecordsConfirmationAndSettlesOwnerLeg(t *testing.T) {
	f := newEscrowFixture(t, settings.Defaults())
	ctx := context.Background()

	got, err := f.svc.Submit(ctx, SubmitInput{
		EscrowID:           f.escrow.ID,
		OwnerID:            f.owner.ID,
		ConfirmationNumber: "RES-4471",
		ContactInfo:        "front desk, +1 555 0100",
	})
	require.NoError(t, err)
	require.Equal(t, enums.EscrowStatusConfirmationSubmitted, got.Status)
	require.Equal(t, enums.OwnerConfirmationAccepted, got.OwnerConfirmationStatus)
	require.NotNil(t, got.ResortConfirmationNumber)
	require.Equal(t, "RES-4471", *got.ResortConfirmationNumber)
}

func TestSubmit_RejectsWrongOwner(t *testing.T) {
	f := newEscrowFixture(t, settings.Defaults())

	_, err := f.svc.Submit(context.Background(), SubmitInput{
		EscrowID:           f.escrow.ID,
		OwnerID:            uuid.New(),
		ConfirmationNumber: "RES-4471",
	})
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeForbidden, pkgerrors.As(err).Code())
}

func TestSubmit_SecondSubmissionConflicts(t *testing.T) {
	f := newEscrowFixture(t, settings.Defaults())
	ctx := context.Background()

	input := SubmitInput{EscrowID: f.escrow.ID, OwnerID: f.owner.ID, ConfirmationNumber: "RES-1"}
	_, err := f.svc.Submit(ctx, input)
	require.NoError(t, err)

	_, err = f.svc.Submit(ctx, input)
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())
}

func TestVerify_RecordsVerifier(t *testing.T) {
	f := newEscrowFixture(t, settings.Defaults())
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, SubmitInput{EscrowID: f.escrow.ID, OwnerID: f.owner.ID, ConfirmationNumber: "RES-1"})
	require.NoError(t, err)

	adminID := uuid.New()
	got, err := f.svc.Verify(ctx, VerifyInput{EscrowID: f.escrow.ID, AdminID: adminID, Notes: "called the resort"})
	require.NoError(t, err)
	require.Equal(t, enums.EscrowStatusVerified, got.Status)
	require.NotNil(t, got.VerifiedBy)
	require.Equal(t, adminID, *got.VerifiedBy)
	require.NotNil(t, got.VerifiedAt)
}

func TestVerify_RejectsUnsubmitted(t *testing.T) {
	f := newEscrowFixture(t, settings.Defaults())

	_, err := f.svc.Verify(context.Background(), VerifyInput{EscrowID: f.escrow.ID, AdminID: uuid.New()})
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())
}

func TestRefund_SettlesEscrowBookingAndListing(t *testing.T) {
	f := newEscrowFixture(t, settings.Defaults())
	ctx := context.Background()

	got, err := f.svc.Refund(ctx, RefundInput{EscrowID: f.escrow.ID, AdminID: uuid.New(), Notes: "resort unreachable"})
	require.NoError(t, err)
	require.Equal(t, enums.EscrowStatusRefunded, got.Status)
	require.NotNil(t, got.RefundedAt)

	booking, err := bookings.NewRepository(f.db).FindByID(ctx, f.booking.ID)
	require.NoError(t, err)
	require.Equal(t, enums.BookingStatusCancelled, booking.Status)

	listing, err := listings.NewRepository(f.db).FindByID(ctx, f.listing.ID)
	require.NoError(t, err)
	require.Equal(t, enums.ListingStatusActive, listing.Status)

	require.Len(t, f.gateway.refunds, 1)
	require.Equal(t, "pi_test_123", f.gateway.refunds[0].PaymentIntentID)
	require.Zero(t, f.gateway.refunds[0].AmountCents)
}

func TestRefund_GatewayFailureKeepsSettledState(t *testing.T) {
	f := newEscrowFixture(t, settings.Defaults())
	f.gateway.refundErr = errors.New("stripe: charge already refunded")
	ctx := context.Background()

	_, err := f.svc.Refund(ctx, RefundInput{EscrowID: f.escrow.ID, AdminID: uuid.New()})
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeDependency, pkgerrors.As(err).Code())

	// The transition stuck; a retry must not re-run it.
	got, err := f.repo.FindByID(ctx, f.escrow.ID)
	require.NoError(t, err)
	require.Equal(t, enums.EscrowStatusRefunded, got.Status)
	require.NotNil(t, got.RefundNotes)
	require.Contains(t, *got.RefundNotes, "gateway refund failed")
}

func TestRefund_SecondRefundConflicts(t *testing.T) {
	f := newEscrowFixture(t, settings.Defaults())
	ctx := context.Background()

	_, err := f.svc.Refund(ctx, RefundInput{EscrowID: f.escrow.ID, AdminID: uuid.New()})
	require.NoError(t, err)

	_, err = f.svc.Refund(ctx, RefundInput{EscrowID: f.escrow.ID, AdminID: uuid.New()})
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())
	require.Len(t, f.gateway.refunds, 1)
}

func TestOwnerDecline_RunsRefundPath(t *testing.T) {
	f := newEscrowFixture(t, settings.Defaults())
	ctx := context.Background()

	require.NoError(t, f.svc.OwnerDecline(ctx, f.escrow.ID, f.owner.ID, "dates no longer available"))

	got, err := f.repo.FindByID(ctx, f.escrow.ID)
	require.NoError(t, err)
	require.Equal(t, enums.EscrowStatusRefunded, got.Status)
	require.Equal(t, enums.OwnerConfirmationDeclined, got.OwnerConfirmationStatus)
	require.Len(t, f.gateway.refunds, 1)
}

func TestRequestExtension_GrantsUntilExhausted(t *testing.T) {
	opts := settings.Defaults()
	f := newEscrowFixture(t, opts)
	ctx := context.Background()
	baseDeadline := f.escrow.OwnerConfirmationDeadline

	got, err := f.svc.RequestExtension(ctx, f.escrow.ID, f.owner.ID)
	require.NoError(t, err)
	require.Equal(t, 1, got.ExtensionsUsed)
	require.Equal(t,
		baseDeadline.Add(time.Duration(opts.ExtensionMinutes)*time.Minute).Unix(),
		got.OwnerConfirmationDeadline.Unix())

	got, err = f.svc.RequestExtension(ctx, f.escrow.ID, f.owner.ID)
	require.NoError(t, err)
	require.Equal(t, 2, got.ExtensionsUsed)

	_, err = f.svc.RequestExtension(ctx, f.escrow.ID, f.owner.ID)
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeExtensionsExhausted, pkgerrors.As(err).Code())

	// Deadline unchanged by the rejected request.
	after, err := f.repo.FindByID(ctx, f.escrow.ID)
	require.NoError(t, err)
	require.Equal(t, got.OwnerConfirmationDeadline.Unix(), after.OwnerConfirmationDeadline.Unix())
}

func TestRequestExtension_RejectedAfterOwnerSettled(t *testing.T) {
	f := newEscrowFixture(t, settings.Defaults())
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, SubmitInput{EscrowID: f.escrow.ID, OwnerID: f.owner.ID, ConfirmationNumber: "RES-1"})
	require.NoError(t, err)

	_, err = f.svc.RequestExtension(ctx, f.escrow.ID, f.owner.ID)
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())
}

func TestHoldAndUnhold(t *testing.T) {
	f := newEscrowFixture(t, settings.Defaults())
	ctx := context.Background()

	require.NoError(t, f.svc.Hold(ctx, f.escrow.ID, "chargeback inquiry open"))
	got, err := f.repo.FindByID(ctx, f.escrow.ID)
	require.NoError(t, err)
	require.True(t, got.PayoutHeld)
	require.NotNil(t, got.PayoutHeldReason)

	require.NoError(t, f.svc.Unhold(ctx, f.escrow.ID))
	got, err = f.repo.FindByID(ctx, f.escrow.ID)
	require.NoError(t, err)
	require.False(t, got.PayoutHeld)
	require.Nil(t, got.PayoutHeldReason)
}

func TestTimeoutOwnerWindow(t *testing.T) {
	f := newEscrowFixture(t, settings.Defaults())
	ctx := context.Background()

	// Window still open at the fixture clock.
	err := f.svc.TimeoutOwnerWindow(ctx, f.escrow.ID)
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())

	require.NoError(t, f.repo.Update(ctx, f.escrow.ID,
		map[string]any{"owner_confirmation_deadline": f.now.Add(-time.Minute)}))

	require.NoError(t, f.svc.TimeoutOwnerWindow(ctx, f.escrow.ID))
	got, err := f.repo.FindByID(ctx, f.escrow.ID)
	require.NoError(t, err)
	require.Equal(t, enums.EscrowStatusRefunded, got.Status)
	require.Equal(t, enums.OwnerConfirmationTimedOut, got.OwnerConfirmationStatus)
	require.Len(t, f.gateway.refunds, 1)
}

func TestTimeoutResortWindow(t *testing.T) {
	f := newEscrowFixture(t, settings.Defaults())
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, SubmitInput{EscrowID: f.escrow.ID, OwnerID: f.owner.ID, ConfirmationNumber: "RES-1"})
	require.NoError(t, err)

	require.NoError(t, f.repo.Update(ctx, f.escrow.ID,
		map[string]any{"confirmation_deadline": f.now.Add(-time.Hour)}))

	require.NoError(t, f.svc.TimeoutResortWindow(ctx, f.escrow.ID))
	got, err := f.repo.FindByID(ctx, f.escrow.ID)
	require.NoError(t, err)
	require.Equal(t, enums.EscrowStatusRefunded, got.Status)
}

func TestMarkDisputed_FreezesNonTerminal(t *testing.T) {
	f := newEscrowFixture(t, settings.Defaults())
	ctx := context.Background()

	require.NoError(t, f.svc.MarkDisputed(ctx, f.escrow.ID, "renter opened a dispute"))
	got, err := f.repo.FindByID(ctx, f.escrow.ID)
	require.NoError(t, err)
	require.Equal(t, enums.EscrowStatusDisputed, got.Status)

	// Settled escrows cannot be disputed.
	f2 := newEscrowFixture(t, settings.Defaults())
	_, err = f2.svc.Refund(ctx, RefundInput{EscrowID: f2.escrow.ID, AdminID: uuid.New()})
	require.NoError(t, err)
	err = f2.svc.MarkDisputed(ctx, f2.escrow.ID, "too late")
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())
}
