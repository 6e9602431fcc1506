package commission

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyToDrawsOldestFirst(t *testing.T) {
	jan := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	feb := jan.AddDate(0, 1, 0)
	draws := []OutstandingDraw{
		{ID: "feb", RemainingBalance: d("1500"), IssuedAt: feb},
		{ID: "jan", RemainingBalance: d("1000"), IssuedAt: jan},
	}

	s := ApplyToDraws(d("1800"), draws)
	require.Len(t, s.Applications, 2)
	assert.Equal(t, "jan", s.Applications[0].DrawID)
	assert.Equal(t, "1000.00", s.Applications[0].Amount.StringFixed(2))
	assert.True(t, s.Applications[0].RemainingBalance.IsZero())
	assert.Equal(t, "feb", s.Applications[1].DrawID)
	assert.Equal(t, "800.00", s.Applications[1].Amount.StringFixed(2))
	assert.Equal(t, "700.00", s.Applications[1].RemainingBalance.StringFixed(2))
	assert.Equal(t, "1800.00", s.TotalApplied.StringFixed(2))
	assert.True(t, s.NetPayout.IsZero())

	// caller's slice order is untouched
	assert.Equal(t, "feb", draws[0].ID)
}

func TestApplyToDrawsNeverOverdraws(t *testing.T) {
	draws := []OutstandingDraw{
		{ID: "a", RemainingBalance: d("300")},
		{ID: "settled", RemainingBalance: d("0")},
	}
	s := ApplyToDraws(d("1000"), draws)
	require.Len(t, s.Applications, 1)
	assert.Equal(t, "300.00", s.TotalApplied.StringFixed(2))
	assert.Equal(t, "700.00", s.NetPayout.StringFixed(2))
	for _, a := range s.Applications {
		assert.False(t, a.RemainingBalance.IsNegative())
	}
}

func TestApplyToDrawsNegativeCommission(t *testing.T) {
	s := ApplyToDraws(d("-50"), []OutstandingDraw{{ID: "a", RemainingBalance: d("300")}})
	assert.Empty(t, s.Applications)
	assert.True(t, s.TotalApplied.IsZero())
	assert.True(t, s.NetPayout.IsZero())
}

func TestOutstandingBalance(t *testing.T) {
	total := OutstandingBalance([]OutstandingDraw{
		{RemainingBalance: d("100.10")},
		{RemainingBalance: d("0")},
		{RemainingBalance: d("49.905")},
	})
	assert.Equal(t, "150.01", total.StringFixed(2))
}
