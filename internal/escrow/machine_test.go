package escrow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rentavacation/escrow-backend/pkg/db/models"
	"github.com/rentavacation/escrow-backend/pkg/enums"
)

func TestCanTransition_Graph(t *testing.T) {
	cases := []struct {
		from    enums.EscrowStatus
		to      enums.EscrowStatus
		allowed bool
	}{
		{enums.EscrowStatusPendingConfirmation, enums.EscrowStatusConfirmationSubmitted, true},
		{enums.EscrowStatusPendingConfirmation, enums.EscrowStatusRefunded, true},
		{enums.EscrowStatusPendingConfirmation, enums.EscrowStatusDisputed, true},
		{enums.EscrowStatusPendingConfirmation, enums.EscrowStatusVerified, false},
		{enums.EscrowStatusPendingConfirmation, enums.EscrowStatusReleased, false},
		{enums.EscrowStatusConfirmationSubmitted, enums.EscrowStatusVerified, true},
		{enums.EscrowStatusConfirmationSubmitted, enums.EscrowStatusRefunded, true},
		{enums.EscrowStatusConfirmationSubmitted, enums.EscrowStatusReleased, false},
		{enums.EscrowStatusConfirmationSubmitted, enums.EscrowStatusPendingConfirmation, false},
		{enums.EscrowStatusVerified, enums.EscrowStatusReleased, true},
		{enums.EscrowStatusVerified, enums.EscrowStatusRefunded, true},
		{enums.EscrowStatusVerified, enums.EscrowStatusDisputed, true},
		{enums.EscrowStatusDisputed, enums.EscrowStatusReleased, true},
		{enums.EscrowStatusDisputed, enums.EscrowStatusRefunded, true},
		{enums.EscrowStatusDisputed, enums.EscrowStatusVerified, false},
		{enums.EscrowStatusReleased, enums.EscrowStatusRefunded, false},
		{enums.EscrowStatusRefunded, enums.EscrowStatusReleased, false},
		{enums.EscrowStatusReleased, enums.EscrowStatusDisputed, false},
	}
	for _, tc := range cases {
		got := CanTransition(tc.from, tc.to)
		require.Equalf(t, tc.allowed, got, "%s -> %s", tc.from, tc.to)
	}
}

func TestCanRelease_HoldPeriod(t *testing.T) {
	checkOut := time.Date(2026, 3, 10, 11, 0, 0, 0, time.UTC)
	esc := &models.Escrow{Status: enums.EscrowStatusVerified}

	// Day four after checkout: still inside the five day hold.
	now := checkOut.AddDate(0, 0, 4)
	require.False(t, CanRelease(esc, checkOut, 5, now))

	// Day five exactly: eligible.
	now = checkOut.AddDate(0, 0, 5)
	require.True(t, CanRelease(esc, checkOut, 5, now))
}

func TestCanRelease_RequiresVerifiedAndUnheld(t *testing.T) {
	checkOut := time.Date(2026, 3, 10, 11, 0, 0, 0, time.UTC)
	now := checkOut.AddDate(0, 0, 10)

	held := &models.Escrow{Status: enums.EscrowStatusVerified, PayoutHeld: true}
	require.False(t, CanRelease(held, checkOut, 5, now))

	submitted := &models.Escrow{Status: enums.EscrowStatusConfirmationSubmitted}
	require.False(t, CanRelease(submitted, checkOut, 5, now))

	disputed := &models.Escrow{Status: enums.EscrowStatusDisputed}
	require.False(t, CanRelease(disputed, checkOut, 5, now))
}
