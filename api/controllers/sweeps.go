package controllers

import (
	"net/http"

	"github.com/rentavacation/escrow-backend/api/responses"
	"github.com/rentavacation/escrow-backend/internal/payouts"
	pkgerrors "github.com/rentavacation/escrow-backend/pkg/errors"
	"github.com/rentavacation/escrow-backend/pkg/logger"
)

// AdminSweepRun triggers one release pass outside the scheduler cadence and
// returns its summary.
func AdminSweepRun(svc payouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payout service unavailable"))
			return
		}

		summary, err := svc.Sweep(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}
