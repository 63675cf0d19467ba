package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/rentavacation/escrow-backend/api/routes"
	"github.com/rentavacation/escrow-backend/internal/bookings"
	"github.com/rentavacation/escrow-backend/internal/cancellation"
	"github.com/rentavacation/escrow-backend/internal/checkin"
	"github.com/rentavacation/escrow-backend/internal/disputes"
	"github.com/rentavacation/escrow-backend/internal/escrow"
	"github.com/rentavacation/escrow-backend/internal/guaranteefund"
	"github.com/rentavacation/escrow-backend/internal/listings"
	"github.com/rentavacation/escrow-backend/internal/notify"
	"github.com/rentavacation/escrow-backend/internal/payouts"
	"github.com/rentavacation/escrow-backend/internal/profiles"
	"github.com/rentavacation/escrow-backend/internal/reconciler"
	"github.com/rentavacation/escrow-backend/internal/settings"
	"github.com/rentavacation/escrow-backend/pkg/config"
	"github.com/rentavacation/escrow-backend/pkg/db"
	"github.com/rentavacation/escrow-backend/pkg/logger"
	"github.com/rentavacation/escrow-backend/pkg/migrate"
	"github.com/rentavacation/escrow-backend/pkg/redis"
	"github.com/rentavacation/escrow-backend/pkg/stripegateway"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	stripeClient, err := stripegateway.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe client", err)
		os.Exit(1)
	}
	gateway := stripegateway.NewGateway(stripeClient)

	notifier := notify.NewDispatcher(notify.NewMailerSendSender(cfg.Mailer), logg)
	settingsLoader := settings.NewLoader(dbClient.DB(), logg)

	bookingsRepo := bookings.NewRepository(dbClient.DB())
	listingsRepo := listings.NewRepository(dbClient.DB())
	profilesRepo := profiles.NewRepository(dbClient.DB())
	escrowRepo := escrow.NewRepository(dbClient.DB())
	checkinRepo := checkin.NewRepository(dbClient.DB())
	fundRepo := guaranteefund.NewRepository(dbClient.DB())
	disputesRepo := disputes.NewRepository(dbClient.DB())
	requestsRepo := cancellation.NewRepository(dbClient.DB())

	escrowService, err := escrow.NewService(escrow.ServiceParams{
		Repo:     escrowRepo,
		Bookings: bookingsRepo,
		Listings: listingsRepo,
		Profiles: profilesRepo,
		Settings: settingsLoader,
		Gateway:  gateway,
		Tx:       dbClient,
		Notifier: notifier,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create escrow service", err)
		os.Exit(1)
	}

	payoutsService, err := payouts.NewService(payouts.ServiceParams{
		Escrows:  escrowRepo,
		Bookings: bookingsRepo,
		Listings: listingsRepo,
		Profiles: profilesRepo,
		Settings: settingsLoader,
		Gateway:  gateway,
		Tx:       dbClient,
		Notifier: notifier,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payouts service", err)
		os.Exit(1)
	}

	reconcilerService, err := reconciler.NewService(reconciler.ServiceParams{
		Bookings: bookingsRepo,
		Listings: listingsRepo,
		Profiles: profilesRepo,
		Escrows:  escrowRepo,
		Checkins: checkinRepo,
		Fund:     fundRepo,
		Settings: settingsLoader,
		Gateway:  gateway,
		Tx:       dbClient,
		Notifier: notifier,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reconciler service", err)
		os.Exit(1)
	}

	checkinService, err := checkin.NewService(checkin.ServiceParams{Repo: checkinRepo})
	if err != nil {
		logg.Error(context.Background(), "failed to create checkin service", err)
		os.Exit(1)
	}

	cancellationService, err := cancellation.NewService(cancellation.ServiceParams{
		Bookings: bookingsRepo,
		Listings: listingsRepo,
		Profiles: profilesRepo,
		Escrows:  escrowRepo,
		Gateway:  gateway,
		Requests: requestsRepo,
		Tx:       dbClient,
		Notifier: notifier,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cancellation service", err)
		os.Exit(1)
	}

	disputesService, err := disputes.NewService(disputes.ServiceParams{
		Repo:     disputesRepo,
		Bookings: bookingsRepo,
		Listings: listingsRepo,
		Escrows:  escrowRepo,
		Payouts:  payoutsService,
		Gateway:  gateway,
		Tx:       dbClient,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create disputes service", err)
		os.Exit(1)
	}

	webhookGuard, err := reconciler.NewIdempotencyGuard(redisClient, cfg.Sweep.WebhookIdemTTL, cfg.Sweep.WebhookIdemScope)
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook guard", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:       cfg,
			Logger:       logg,
			DB:           dbClient,
			Redis:        redisClient,
			Gateway:      gateway,
			WebhookGuard: webhookGuard,
			Reconciler:   reconcilerService,
			Escrows:      escrowService,
			EscrowRepo:   escrowRepo,
			Payouts:      payoutsService,
			Checkins:     checkinService,
			Cancellation: cancellationService,
			Disputes:     disputesService,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
