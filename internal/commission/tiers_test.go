package commission

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTierDrops(t *testing.T) {
	cases := []struct {
		margin, minimum string
		want            int
	}{
		{"35", "30", 0},
		{"30", "30", 0},
		{"28", "30", 0},
		{"25", "30", 1},
		{"24.99", "30", 1},
		{"20", "30", 2},
		{"14.5", "30", 3},
		{"-10", "30", 8},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, TierDrops(d(tc.margin), d(tc.minimum)), "margin %s min %s", tc.margin, tc.minimum)
	}
}

func TestNormalizePercents(t *testing.T) {
	got, err := NormalizePercents([]decimal.Decimal{d("15"), d("0.10"), d("0.15"), d("20"), d("1")})
	require.NoError(t, err)
	var s []string
	for _, v := range got {
		s = append(s, v.StringFixed(2))
	}
	assert.Equal(t, []string{"0.10", "0.15", "0.20", "1.00"}, s)

	_, err = NormalizePercents(nil)
	assert.ErrorIs(t, err, ErrEmptyPercents)
	_, err = NormalizePercents([]decimal.Decimal{d("0")})
	assert.ErrorIs(t, err, ErrInvalidPercent)
	_, err = NormalizePercents([]decimal.Decimal{d("150")})
	assert.ErrorIs(t, err, ErrInvalidPercent)
}

func sampleTiers() []Tier {
	return []Tier{
		{ID: "gold", Name: "Gold", Level: 3, OPPercents: []decimal.Decimal{d("0.10"), d("0.15")}, ProfitSplits: []decimal.Decimal{d("0.5")}, MinMarginPercent: d("30")},
		{ID: "bronze", Name: "Bronze", Level: 1, OPPercents: []decimal.Decimal{d("0.10")}, ProfitSplits: []decimal.Decimal{d("0.4")}, MinMarginPercent: d("30")},
		{ID: "silver", Name: "Silver", Level: 2, OPPercents: []decimal.Decimal{d("0.10")}, ProfitSplits: []decimal.Decimal{d("0.45")}, MinMarginPercent: d("30")},
	}
}

func TestResolveTier(t *testing.T) {
	tiers := sampleTiers()

	got, err := ResolveTier(tiers, 3, 0)
	require.NoError(t, err)
	assert.Equal(t, "gold", got.ID)

	got, err = ResolveTier(tiers, 3, 1)
	require.NoError(t, err)
	assert.Equal(t, "silver", got.ID)

	got, err = ResolveTier(tiers, 2, 5)
	require.NoError(t, err)
	assert.Equal(t, "bronze", got.ID)

	_, err = ResolveTier(tiers, 9, 0)
	assert.ErrorIs(t, err, ErrTierNotFound)
	_, err = ResolveTier(nil, 1, 0)
	assert.ErrorIs(t, err, ErrTierNotFound)
}

func TestValidateRates(t *testing.T) {
	gold := sampleTiers()[0]
	assert.NoError(t, ValidateRates(gold, d("0.15"), d("0.50")))
	assert.ErrorIs(t, ValidateRates(gold, d("0.20"), d("0.5")), ErrRateNotAllowed)
	assert.ErrorIs(t, ValidateRates(gold, d("0.10"), d("0.45")), ErrRateNotAllowed)
}
