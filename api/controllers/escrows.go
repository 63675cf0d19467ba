package controllers

import (
	"net/http"

	"github.com/rentavacation/escrow-backend/api/middleware"
	"github.com/rentavacation/escrow-backend/api/responses"
	"github.com/rentavacation/escrow-backend/api/validators"
	"github.com/rentavacation/escrow-backend/internal/escrow"
	"github.com/rentavacation/escrow-backend/internal/payouts"
	"github.com/rentavacation/escrow-backend/pkg/enums"
	pkgerrors "github.com/rentavacation/escrow-backend/pkg/errors"
	"github.com/rentavacation/escrow-backend/pkg/logger"
)

type submitConfirmationRequest struct {
	ConfirmationNumber string `json:"confirmation_number" validate:"required,min=2,max=128"`
	ContactInfo        string `json:"contact_info" validate:"max=512"`
}

// EscrowSubmitConfirmation records the owner's resort confirmation number.
func EscrowSubmitConfirmation(svc escrow.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "escrow service unavailable"))
			return
		}
		escrowID, err := validators.ParseUUIDParam(r, "escrowId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		owner, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req submitConfirmationRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		esc, err := svc.Submit(r.Context(), escrow.SubmitInput{
			EscrowID:           escrowID,
			OwnerID:            owner,
			ConfirmationNumber: req.ConfirmationNumber,
			ContactInfo:        req.ContactInfo,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, esc)
	}
}

// EscrowRequestExtension grants the owner another acceptance window slice.
func EscrowRequestExtension(svc escrow.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "escrow service unavailable"))
			return
		}
		escrowID, err := validators.ParseUUIDParam(r, "escrowId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		owner, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		esc, err := svc.RequestExtension(r.Context(), escrowID, owner)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, esc)
	}
}

type declineRequest struct {
	Reason string `json:"reason" validate:"max=512"`
}

// EscrowDecline lets the owner reject the booking, refunding the traveler.
func EscrowDecline(svc escrow.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "escrow service unavailable"))
			return
		}
		escrowID, err := validators.ParseUUIDParam(r, "escrowId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		owner, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req declineRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.OwnerDecline(r.Context(), escrowID, owner, req.Reason); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, nil)
	}
}

type verifyRequest struct {
	Notes string `json:"notes" validate:"max=1024"`
}

// AdminEscrowVerify approves a submitted resort confirmation.
func AdminEscrowVerify(svc escrow.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "escrow service unavailable"))
			return
		}
		escrowID, err := validators.ParseUUIDParam(r, "escrowId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		admin, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req verifyRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		esc, err := svc.Verify(r.Context(), escrow.VerifyInput{
			EscrowID: escrowID,
			AdminID:  admin,
			Notes:    req.Notes,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, esc)
	}
}

type refundRequest struct {
	Notes string `json:"notes" validate:"max=1024"`
}

// AdminEscrowRefund settles a non-terminal escrow back to the traveler.
func AdminEscrowRefund(svc escrow.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "escrow service unavailable"))
			return
		}
		escrowID, err := validators.ParseUUIDParam(r, "escrowId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		admin, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req refundRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		esc, err := svc.Refund(r.Context(), escrow.RefundInput{
			EscrowID: escrowID,
			AdminID:  admin,
			Notes:    req.Notes,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, esc)
	}
}

type holdRequest struct {
	Reason string `json:"reason" validate:"required,max=512"`
}

// AdminEscrowHold freezes payout dispatch for an escrow.
func AdminEscrowHold(svc escrow.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "escrow service unavailable"))
			return
		}
		escrowID, err := validators.ParseUUIDParam(r, "escrowId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req holdRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Hold(r.Context(), escrowID, req.Reason); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, nil)
	}
}

// AdminEscrowUnhold lifts a payout hold.
func AdminEscrowUnhold(svc escrow.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "escrow service unavailable"))
			return
		}
		escrowID, err := validators.ParseUUIDParam(r, "escrowId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Unhold(r.Context(), escrowID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, nil)
	}
}

// AdminEscrowRelease runs the manual release path for one escrow, applying
// the same eligibility predicate as the sweep.
func AdminEscrowRelease(svc payouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payout service unavailable"))
			return
		}
		escrowID, err := validators.ParseUUIDParam(r, "escrowId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.ReleaseOne(r.Context(), escrowID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, nil)
	}
}

// EscrowDetail returns one escrow. Owners see only their own; admins see any.
func EscrowDetail(repo escrow.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "escrow repository unavailable"))
			return
		}
		escrowID, err := validators.ParseUUIDParam(r, "escrowId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		actor, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		esc, err := repo.FindByID(r.Context(), escrowID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if middleware.RoleFromContext(r.Context()) != string(enums.UserRoleAdmin) && esc.OwnerID != actor {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "escrow belongs to a different owner"))
			return
		}
		responses.WriteSuccess(w, esc)
	}
}
