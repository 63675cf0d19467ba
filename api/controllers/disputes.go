package controllers

import (
	"net/http"

	"github.com/rentavacation/escrow-backend/api/responses"
	"github.com/rentavacation/escrow-backend/api/validators"
	"github.com/rentavacation/escrow-backend/internal/disputes"
	"github.com/rentavacation/escrow-backend/pkg/enums"
	pkgerrors "github.com/rentavacation/escrow-backend/pkg/errors"
	"github.com/rentavacation/escrow-backend/pkg/logger"
)

type openDisputeRequest struct {
	Reason string `json:"reason" validate:"required,min=4,max=2048"`
}

// DisputeOpen files a dispute on a booking and freezes its escrow.
func DisputeOpen(svc disputes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "dispute service unavailable"))
			return
		}
		bookingID, err := validators.ParseUUIDParam(r, "bookingId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		actor, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req openDisputeRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		dispute, err := svc.Open(r.Context(), disputes.OpenInput{
			BookingID: bookingID,
			OpenedBy:  actor,
			Reason:    req.Reason,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, dispute)
	}
}

type resolveDisputeRequest struct {
	Status      string `json:"status" validate:"required,oneof=resolved rejected"`
	RefundCents int64  `json:"refund_cents" validate:"min=0"`
	Note        string `json:"note" validate:"max=2048"`
}

// AdminDisputeResolve settles a dispute toward the renter (refund) or the
// owner (release).
func AdminDisputeResolve(svc disputes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "dispute service unavailable"))
			return
		}
		disputeID, err := validators.ParseUUIDParam(r, "disputeId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		admin, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req resolveDisputeRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		dispute, err := svc.Resolve(r.Context(), disputes.ResolveInput{
			DisputeID:   disputeID,
			AdminID:     admin,
			Status:      enums.DisputeStatus(req.Status),
			RefundCents: req.RefundCents,
			Note:        req.Note,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dispute)
	}
}
