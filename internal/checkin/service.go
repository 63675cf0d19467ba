package checkin

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rentavacation/escrow-backend/internal/deadlines"
	"github.com/rentavacation/escrow-backend/pkg/db/models"
	pkgerrors "github.com/rentavacation/escrow-backend/pkg/errors"
)

// Issue types a traveler can report instead of confirming arrival.
const (
	IssueNoReservation = "no_reservation"
	IssueWrongUnit     = "wrong_unit"
	IssueDeniedCheckin = "denied_checkin"
	IssueOther         = "other"
)

var validIssueTypes = []string{IssueNoReservation, IssueWrongUnit, IssueDeniedCheckin, IssueOther}

// Service owns the traveler arrival window: one answer per booking, immutable
// once given.
type Service interface {
	CreateForBooking(ctx context.Context, bookingID, travelerID uuid.UUID, checkInDate time.Time) (*models.CheckinConfirmation, error)
	ConfirmArrival(ctx context.Context, id, travelerID uuid.UUID) (*models.CheckinConfirmation, error)
	ReportIssue(ctx context.Context, input ReportIssueInput) (*models.CheckinConfirmation, error)
	Resolve(ctx context.Context, id uuid.UUID) error
}

// ServiceParams collects the dependencies for NewService.
type ServiceParams struct {
	Repo Repository
	Now  func() time.Time
}

type service struct {
	repo Repository
	now  func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("checkin repository is required")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{repo: params.Repo, now: now}, nil
}

// CreateForBooking opens the arrival window when payment is captured.
func (s *service) CreateForBooking(ctx context.Context, bookingID, travelerID uuid.UUID, checkInDate time.Time) (*models.CheckinConfirmation, error) {
	return s.repo.Create(ctx, &models.CheckinConfirmation{
		ID:                   uuid.New(),
		BookingID:            bookingID,
		TravelerID:           travelerID,
		ConfirmationDeadline: deadlines.CheckinDeadline(checkInDate),
	})
}

func (s *service) ConfirmArrival(ctx context.Context, id, travelerID uuid.UUID) (*models.CheckinConfirmation, error) {
	row, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if row.TravelerID != travelerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "check-in belongs to a different traveler")
	}

	ok, err := s.repo.SetOutcome(ctx, id, map[string]any{
		"confirmed_arrival": true,
		"confirmed_at":      s.now(),
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "arrival outcome already recorded")
	}
	return s.repo.FindByID(ctx, id)
}

// ReportIssueInput carries a traveler's failed-arrival report.
type ReportIssueInput struct {
	CheckinID   uuid.UUID
	TravelerID  uuid.UUID
	IssueType   string
	Description string
}

func (s *service) ReportIssue(ctx context.Context, input ReportIssueInput) (*models.CheckinConfirmation, error) {
	if !isValidIssueType(input.IssueType) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown issue type "+input.IssueType)
	}

	row, err := s.repo.FindByID(ctx, input.CheckinID)
	if err != nil {
		return nil, err
	}
	if row.TravelerID != input.TravelerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "check-in belongs to a different traveler")
	}

	updates := map[string]any{
		"confirmed_arrival": false,
		"confirmed_at":      s.now(),
		"issue_reported":    true,
		"issue_type":        input.IssueType,
	}
	if input.Description != "" {
		updates["issue_description"] = input.Description
	}
	ok, err := s.repo.SetOutcome(ctx, input.CheckinID, updates)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "arrival outcome already recorded")
	}
	return s.repo.FindByID(ctx, input.CheckinID)
}

// Resolve closes a reported issue after an operator handled it.
func (s *service) Resolve(ctx context.Context, id uuid.UUID) error {
	row, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if !row.IssueReported {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "no issue reported on this check-in")
	}
	return s.repo.Update(ctx, id, map[string]any{"resolved": true})
}

func isValidIssueType(value string) bool {
	for _, candidate := range validIssueTypes {
		if candidate == value {
			return true
		}
	}
	return false
}
