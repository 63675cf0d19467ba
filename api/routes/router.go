package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rentavacation/escrow-backend/api/controllers"
	webhookcontrollers "github.com/rentavacation/escrow-backend/api/controllers/webhooks"
	"github.com/rentavacation/escrow-backend/api/middleware"
	"github.com/rentavacation/escrow-backend/internal/cancellation"
	"github.com/rentavacation/escrow-backend/internal/checkin"
	"github.com/rentavacation/escrow-backend/internal/disputes"
	"github.com/rentavacation/escrow-backend/internal/escrow"
	"github.com/rentavacation/escrow-backend/internal/payouts"
	"github.com/rentavacation/escrow-backend/internal/reconciler"
	"github.com/rentavacation/escrow-backend/pkg/config"
	"github.com/rentavacation/escrow-backend/pkg/db"
	"github.com/rentavacation/escrow-backend/pkg/enums"
	"github.com/rentavacation/escrow-backend/pkg/logger"
	"github.com/rentavacation/escrow-backend/pkg/redis"
	"github.com/rentavacation/escrow-backend/pkg/stripegateway"
)

// Deps bundles everything the router mounts.
type Deps struct {
	Config       *config.Config
	Logger       *logger.Logger
	DB           db.Pinger
	Redis        redis.Pinger
	Gateway      stripegateway.PaymentGateway
	WebhookGuard *reconciler.IdempotencyGuard
	Reconciler   reconciler.Service
	Escrows      escrow.Service
	EscrowRepo   escrow.Repository
	Payouts      payouts.Service
	Checkins     checkin.Service
	Cancellation cancellation.Service
	Disputes     disputes.Service
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DB, deps.Redis))
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(deps.Reconciler, deps.Gateway, deps.WebhookGuard, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Get("/escrows/{escrowId}", controllers.EscrowDetail(deps.EscrowRepo, logg))

		r.Route("/owner/escrows/{escrowId}", func(r chi.Router) {
			r.Use(middleware.RequireRole(string(enums.UserRoleOwner), logg))
			r.Post("/confirmation", controllers.EscrowSubmitConfirmation(deps.Escrows, logg))
			r.Post("/extension", controllers.EscrowRequestExtension(deps.Escrows, logg))
			r.Post("/decline", controllers.EscrowDecline(deps.Escrows, logg))
		})

		r.Route("/bookings/{bookingId}", func(r chi.Router) {
			r.Post("/cancel", controllers.BookingCancel(deps.Cancellation, logg))
			r.Get("/cancel-preview", controllers.BookingCancelPreview(deps.Cancellation, logg))
			r.Post("/verify-payment", controllers.BookingVerifyPayment(deps.Reconciler, logg))
			r.Post("/disputes", controllers.DisputeOpen(deps.Disputes, logg))
		})

		r.Route("/checkins/{checkinId}", func(r chi.Router) {
			r.Use(middleware.RequireRole(string(enums.UserRoleTraveler), logg))
			r.Post("/confirm", controllers.CheckinConfirmArrival(deps.Checkins, logg))
			r.Post("/issues", controllers.CheckinReportIssue(deps.Checkins, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(string(enums.UserRoleAdmin), logg))

		r.Route("/escrows/{escrowId}", func(r chi.Router) {
			r.Post("/verify", controllers.AdminEscrowVerify(deps.Escrows, logg))
			r.Post("/refund", controllers.AdminEscrowRefund(deps.Escrows, logg))
			r.Post("/hold", controllers.AdminEscrowHold(deps.Escrows, logg))
			r.Post("/unhold", controllers.AdminEscrowUnhold(deps.Escrows, logg))
			r.Post("/release", controllers.AdminEscrowRelease(deps.Payouts, logg))
		})
		r.Post("/checkins/{checkinId}/resolve", controllers.AdminCheckinResolve(deps.Checkins, logg))
		r.Post("/disputes/{disputeId}/resolve", controllers.AdminDisputeResolve(deps.Disputes, logg))
		r.Post("/sweeps/run", controllers.AdminSweepRun(deps.Payouts, logg))
	})

	return r
}
