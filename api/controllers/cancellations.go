package controllers

import (
	"net/http"
	"time"

	"github.com/rentavacation/escrow-backend/api/middleware"
	"github.com/rentavacation/escrow-backend/api/responses"
	"github.com/rentavacation/escrow-backend/api/validators"
	"github.com/rentavacation/escrow-backend/internal/cancellation"
	"github.com/rentavacation/escrow-backend/pkg/enums"
	pkgerrors "github.com/rentavacation/escrow-backend/pkg/errors"
	"github.com/rentavacation/escrow-backend/pkg/logger"
)

type cancelRequest struct {
	Reason string `json:"reason" validate:"max=1024"`
}

// BookingCancel cancels a booking for the calling traveler or owner, applying
// the listing's refund schedule.
func BookingCancel(svc cancellation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cancellation service unavailable"))
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
		role, err := enums.ParseUserRole(middleware.RoleFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeForbidden, err, "unknown role"))
			return
		}
		var req cancelRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		request, err := svc.Cancel(r.Context(), cancellation.CancelInput{
			BookingID:   bookingID,
			RequestedBy: actor,
			Role:        role,
			Reason:      req.Reason,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, request)
	}
}

// BookingCancelPreview returns the refund the schedule would grant right now.
func BookingCancelPreview(svc cancellation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cancellation service unavailable"))
			return
		}
		bookingID, err := validators.ParseUUIDParam(r, "bookingId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		percent, refundCents, err := svc.Preview(r.Context(), bookingID, time.Now().UTC())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"refund_percent": percent,
			"refund_cents":   refundCents,
		})
	}
}
