package controllers

import (
	"net/http"

	"github.com/rentavacation/escrow-backend/api/responses"
	"github.com/rentavacation/escrow-backend/api/validators"
	"github.com/rentavacation/escrow-backend/internal/checkin"
	pkgerrors "github.com/rentavacation/escrow-backend/pkg/errors"
	"github.com/rentavacation/escrow-backend/pkg/logger"
)

// CheckinConfirmArrival records the traveler's successful arrival.
func CheckinConfirmArrival(svc checkin.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkin service unavailable"))
			return
		}
		checkinID, err := validators.ParseUUIDParam(r, "checkinId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		traveler, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		confirmation, err := svc.ConfirmArrival(r.Context(), checkinID, traveler)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, confirmation)
	}
}

type reportIssueRequest struct {
	IssueType   string `json:"issue_type" validate:"required"`
	Description string `json:"description" validate:"max=2048"`
}

// CheckinReportIssue records an arrival problem instead of a confirmation.
func CheckinReportIssue(svc checkin.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkin service unavailable"))
			return
		}
		checkinID, err := validators.ParseUUIDParam(r, "checkinId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		traveler, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req reportIssueRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		confirmation, err := svc.ReportIssue(r.Context(), checkin.ReportIssueInput{
			CheckinID:   checkinID,
			TravelerID:  traveler,
			IssueType:   req.IssueType,
			Description: req.Description,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, confirmation)
	}
}

// AdminCheckinResolve closes a reported arrival issue.
func AdminCheckinResolve(svc checkin.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkin service unavailable"))
			return
		}
		checkinID, err := validators.ParseUUIDParam(r, "checkinId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Resolve(r.Context(), checkinID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, nil)
	}
}
