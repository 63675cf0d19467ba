package cron

import (
	"context"
	"fmt"

	"github.com/rentavacation/escrow-backend/internal/payouts"
	"github.com/rentavacation/escrow-backend/pkg/logger"
	"github.com/rentavacation/escrow-backend/pkg/metrics"
)

// EscrowReleaseJobParams configure the escrow auto-release job.
type EscrowReleaseJobParams struct {
	Logger  *logger.Logger
	Payouts payouts.Service
	Metrics *metrics.SweepMetrics
}

// NewEscrowReleaseJob builds the job that releases verified escrows past
// their hold period and dispatches owner payouts.
func NewEscrowReleaseJob(params EscrowReleaseJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Payouts == nil {
		return nil, fmt.Errorf("payout service required")
	}
	return &escrowReleaseJob{
		logg:    params.Logger,
		payouts: params.Payouts,
		metrics: params.Metrics,
	}, nil
}

type escrowReleaseJob struct {
	logg    *logger.Logger
	payouts payouts.Service
	metrics *metrics.SweepMetrics
}

func (j *escrowReleaseJob) Name() string { return "escrow-release" }

func (j *escrowReleaseJob) Run(ctx context.Context) error {
	summary, err := j.payouts.Sweep(ctx)
	if err != nil {
		return fmt.Errorf("escrow release sweep: %w", err)
	}
	if j.metrics != nil {
		j.metrics.Record(summary.Released, summary.PayoutsInitiated, summary.Skipped, len(summary.Errors))
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"released":          summary.Released,
		"payouts_initiated": summary.PayoutsInitiated,
		"skipped":           summary.Skipped,
		"item_errors":       len(summary.Errors),
	})
	j.logg.Info(logCtx, "escrow release pass complete")
	return nil
}
