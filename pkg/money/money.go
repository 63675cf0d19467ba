// Package money holds the pure monetary arithmetic for the booking core.
// Amounts are integer cents; rates are decimals in [0,1]. Rounding is
// half-up to the cent, and the payout side of a split is derived by
// subtraction so the conservation invariant holds exactly.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Split is the commission/payout breakdown of a booking total.
type Split struct {
	CommissionCents  int64
	OwnerPayoutCents int64
}

// ComputeSplit divides totalCents between platform commission and owner
// payout. CommissionCents + OwnerPayoutCents always equals totalCents.
func ComputeSplit(totalCents int64, commissionRate decimal.Decimal) (Split, error) {
	if totalCents < 0 {
		return Split{}, fmt.Errorf("total amount must not be negative, got %d", totalCents)
	}
	if err := validateRate(commissionRate, "commission rate"); err != nil {
		return Split{}, err
	}

	commission := decimal.NewFromInt(totalCents).
		Mul(commissionRate).
		Round(0).
		IntPart()

	return Split{
		CommissionCents:  commission,
		OwnerPayoutCents: totalCents - commission,
	}, nil
}

// ComputeGuaranteeContribution returns the guarantee-fund reserve taken from
// the platform commission.
func ComputeGuaranteeContribution(commissionCents int64, reserveRate decimal.Decimal) (int64, error) {
	if commissionCents < 0 {
		return 0, fmt.Errorf("commission must not be negative, got %d", commissionCents)
	}
	if err := validateRate(reserveRate, "reserve rate"); err != nil {
		return 0, err
	}

	return decimal.NewFromInt(commissionCents).
		Mul(reserveRate).
		Round(0).
		IntPart(), nil
}

// ApplyPercent returns percent% of amountCents, rounded half-up. Used for
// policy-based partial refunds.
func ApplyPercent(amountCents int64, percent int) (int64, error) {
	if percent < 0 || percent > 100 {
		return 0, fmt.Errorf("percent must be within [0,100], got %d", percent)
	}
	return decimal.NewFromInt(amountCents).
		Mul(decimal.NewFromInt(int64(percent))).
		Div(decimal.NewFromInt(100)).
		Round(0).
		IntPart(), nil
}

func validateRate(rate decimal.Decimal, name string) error {
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%s must be within [0,1], got %s", name, rate)
	}
	return nil
}
