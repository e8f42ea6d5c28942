package commission

import (
	"testing"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestOverrideAmount(t *testing.T) {
	base := money.New(100000, money.USD) // $1,000.00

	fivePct := OverrideAmount(base, decimal.RequireFromString("0.05"))
	require.Equal(t, int64(5000), fivePct.Amount()) // $50.00

	twoPct := OverrideAmount(base, decimal.RequireFromString("0.02"))
	require.Equal(t, int64(2000), twoPct.Amount()) // $20.00
}

func TestOverrideAmount_RoundsHalfUpOnMinorUnit(t *testing.T) {
	base := money.New(333, money.USD) // $3.33
	got := OverrideAmount(base, decimal.RequireFromString("0.05"))
	// 333 * 0.05 = 16.65 -> 17 minor units
	require.Equal(t, int64(17), got.Amount())
}

func TestOverrideAmount_IsDeterministic(t *testing.T) {
	base := money.New(98765, money.USD)
	rate := decimal.RequireFromString("0.0375")
	first := OverrideAmount(base, rate)
	for i := 0; i < 10; i++ {
		require.Equal(t, first.Amount(), OverrideAmount(base, rate).Amount())
	}
}

func TestCanTransition(t *testing.T) {
	require.True(t, CanTransition(StatusPending, StatusEarned))
	require.True(t, CanTransition(StatusPending, StatusPaid))
	require.True(t, CanTransition(StatusPending, StatusChargedback))
	require.True(t, CanTransition(StatusEarned, StatusPaid))
	require.True(t, CanTransition(StatusEarned, StatusChargedback))

	require.False(t, CanTransition(StatusPaid, StatusChargedback))
	require.False(t, CanTransition(StatusPaid, StatusEarned))
	require.False(t, CanTransition(StatusChargedback, StatusEarned))
	require.False(t, CanTransition(StatusEarned, StatusPending))
}
