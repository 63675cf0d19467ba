package controllers

import (
	"net/http"

	"github.com/rentavacation/escrow-backend/api/responses"
	"github.com/rentavacation/escrow-backend/api/validators"
	"github.com/rentavacation/escrow-backend/internal/reconciler"
	pkgerrors "github.com/rentavacation/escrow-backend/pkg/errors"
	"github.com/rentavacation/escrow-backend/pkg/logger"
)

// BookingVerifyPayment is the traveler fallback when the payment webhook is
// delayed: ask the provider directly and confirm the booking if it is paid.
func BookingVerifyPayment(svc reconciler.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reconciler unavailable"))
			return
		}
		bookingID, err := validators.ParseUUIDParam(r, "bookingId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		booking, err := svc.VerifyPayment(r.Context(), bookingID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, booking)
	}
}
