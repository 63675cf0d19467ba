package checkin

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	pkgerrors "github.com/rentavacation/escrow-backend/pkg/errors"
)

func setupCheckinTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	schema := `
CREATE TABLE IF NOT EXISTS checkin_confirmations (
  id TEXT PRIMARY KEY,
  booking_id TEXT NOT NULL UNIQUE,
  traveler_id TEXT NOT NULL,
  confirmed_arrival INTEGER,
  confirmed_at DATETIME,
  confirmation_deadline DATETIME NOT NULL,
  issue_reported INTEGER NOT NULL DEFAULT 0,
  issue_type TEXT,
  issue_description TEXT,
  resolved INTEGER NOT NULL DEFAULT 0,
  reminder_sent INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(schema).Error)
	return db
}

func newCheckinService(t *testing.T, db *gorm.DB, now time.Time) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Repo: NewRepository(db),
		Now:  func() time.Time { return now },
	})
	require.NoError(t, err)
	return svc
}

func TestConfirmArrival_OncePerBooking(t *testing.T) {
	db := setupCheckinTestDB(t)
	now := time.Date(2026, 3, 15, 16, 0, 0, 0, time.UTC)
	svc := newCheckinService(t, db, now)
	ctx := context.Background()

	travelerID := uuid.New()
	row, err := svc.CreateForBooking(ctx, uuid.New(), travelerID, now)
	require.NoError(t, err)
	require.Equal(t, now.Add(24*time.Hour).Unix(), row.ConfirmationDeadline.Unix())

	got, err := svc.ConfirmArrival(ctx, row.ID, travelerID)
	require.NoError(t, err)
	require.NotNil(t, got.ConfirmedArrival)
	require.True(t, *got.ConfirmedArrival)
	require.NotNil(t, got.ConfirmedAt)

	// The answer is immutable; a second attempt conflicts.
	_, err = svc.ConfirmArrival(ctx, row.ID, travelerID)
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())

	_, err = svc.ReportIssue(ctx, ReportIssueInput{
		CheckinID:  row.ID,
		TravelerID: travelerID,
		IssueType:  IssueNoReservation,
	})
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())
}

func TestReportIssue_RecordsTypeAndDescription(t *testing.T) {
	db := setupCheckinTestDB(t)
	now := time.Date(2026, 3, 15, 16, 0, 0, 0, time.UTC)
	svc := newCheckinService(t, db, now)
	ctx := context.Background()

	travelerID := uuid.New()
	row, err := svc.CreateForBooking(ctx, uuid.New(), travelerID, now)
	require.NoError(t, err)

	got, err := svc.ReportIssue(ctx, ReportIssueInput{
		CheckinID:   row.ID,
		TravelerID:  travelerID,
		IssueType:   IssueDeniedCheckin,
		Description: "front desk had no record of the reservation",
	})
	require.NoError(t, err)
	require.NotNil(t, got.ConfirmedArrival)
	require.False(t, *got.ConfirmedArrival)
	require.True(t, got.IssueReported)
	require.NotNil(t, got.IssueType)
	require.Equal(t, IssueDeniedCheckin, *got.IssueType)

	require.NoError(t, svc.Resolve(ctx, row.ID))
}

func TestReportIssue_RejectsUnknownType(t *testing.T) {
	db := setupCheckinTestDB(t)
	svc := newCheckinService(t, db, time.Now().UTC())

	_, err := svc.ReportIssue(context.Background(), ReportIssueInput{
		CheckinID:  uuid.New(),
		TravelerID: uuid.New(),
		IssueType:  "vibes",
	})
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}

func TestConfirmArrival_RejectsWrongTraveler(t *testing.T) {
	db := setupCheckinTestDB(t)
	now := time.Now().UTC()
	svc := newCheckinService(t, db, now)
	ctx := context.Background()

	row, err := svc.CreateForBooking(ctx, uuid.New(), uuid.New(), now)
	require.NoError(t, err)

	_, err = svc.ConfirmArrival(ctx, row.ID, uuid.New())
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeForbidden, pkgerrors.As(err).Code())
}

func TestResolve_RequiresReportedIssue(t *testing.T) {
	db := setupCheckinTestDB(t)
	svc := newCheckinService(t, db, time.Now().UTC())
	ctx := context.Background()

	row, err := svc.CreateForBooking(ctx, uuid.New(), uuid.New(), time.Now().UTC())
	require.NoError(t, err)

	err = svc.Resolve(ctx, row.ID)
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())
}
