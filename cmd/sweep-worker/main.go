package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rentavacation/escrow-backend/internal/bookings"
	"github.com/rentavacation/escrow-backend/internal/checkin"
	"github.com/rentavacation/escrow-backend/internal/cron"
	"github.com/rentavacation/escrow-backend/internal/escrow"
	"github.com/rentavacation/escrow-backend/internal/listings"
	"github.com/rentavacation/escrow-backend/internal/notify"
	"github.com/rentavacation/escrow-backend/internal/payouts"
	"github.com/rentavacation/escrow-backend/internal/profiles"
	"github.com/rentavacation/escrow-backend/internal/settings"
	"github.com/rentavacation/escrow-backend/pkg/config"
	"github.com/rentavacation/escrow-backend/pkg/db"
	"github.com/rentavacation/escrow-backend/pkg/logger"
	"github.com/rentavacation/escrow-backend/pkg/metrics"
	"github.com/rentavacation/escrow-backend/pkg/migrate"
	"github.com/rentavacation/escrow-backend/pkg/redis"
	"github.com/rentavacation/escrow-backend/pkg/stripegateway"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "sweep-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "sweep-worker"

	logg = logger.New(logger.Options{
		ServiceName: "sweep-worker",
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

	sweepMetrics := metrics.NewSweepMetrics(prometheus.DefaultRegisterer)
	cronMetrics := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)

	releaseJob, err := cron.NewEscrowReleaseJob(cron.EscrowReleaseJobParams{
		Logger:  logg,
		Payouts: payoutsService,
		Metrics: sweepMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create escrow release job", err)
		os.Exit(1)
	}

	reminderJob, err := cron.NewDeadlineReminderJob(cron.DeadlineReminderJobParams{
		Logger:   logg,
		Escrows:  escrowRepo,
		Checkins: checkinRepo,
		Timeouts: escrowService,
		Bookings: bookingsRepo,
		Listings: listingsRepo,
		Profiles: profilesRepo,
		Notifier: notifier,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create deadline reminder job", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("sweep"), cfg.Sweep.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create sweep lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(releaseJob, reminderJob),
		Lock:     lock,
		Metrics:  cronMetrics,
		Interval: cfg.Sweep.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create sweep service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting sweep worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "sweep worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "sweep worker shutting down gracefully")
}
