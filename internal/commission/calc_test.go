package commission

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCalculateReferenceJob(t *testing.T) {
	totals, err := Calculate(Input{
		GrossContractTotal: d("10000"),
		OPPercent:          d("0.10"),
		Expenses:           LineItems{Materials: d("2000"), Labor: d("1000")},
		CommissionRate:     d("0.5"),
	})
	require.NoError(t, err)

	assert.Equal(t, "1000.00", totals.OPAmount.StringFixed(2))
	assert.Equal(t, "9000.00", totals.NetContractTotal.StringFixed(2))
	assert.Equal(t, "3000.00", totals.TotalExpenses.StringFixed(2))
	assert.Equal(t, "6000.00", totals.NetProfit.StringFixed(2))
	assert.Equal(t, "3000.00", totals.RepCommission.StringFixed(2))
	assert.Equal(t, "3000.00", totals.CompanyProfit.StringFixed(2))
	assert.Equal(t, "3000.00", totals.BalanceDueRep.StringFixed(2))
	assert.Equal(t, "60.00", totals.MarginPercent.StringFixed(2))
}

func TestCalculateWithAdvanceAndAllLineItems(t *testing.T) {
	totals, err := Calculate(Input{
		GrossContractTotal: d("18450.75"),
		OPPercent:          d("0.15"),
		Expenses: LineItems{
			Materials:   d("5210.40"),
			Labor:       d("3800"),
			Permits:     d("225"),
			Dumpster:    d("480"),
			Supplements: d("0"),
			Other:       d("99.99"),
		},
		CommissionRate: d("0.45"),
		AdvanceTotal:   d("500"),
	})
	require.NoError(t, err)

	// op = 2767.6125 -> net contract 15683.1375
	assert.Equal(t, "2767.61", totals.OPAmount.StringFixed(2))
	assert.Equal(t, "15683.14", totals.NetContractTotal.StringFixed(2))
	assert.Equal(t, "9815.39", totals.TotalExpenses.StringFixed(2))
	// net profit 5867.7475, commission 2640.486375
	assert.Equal(t, "5867.75", totals.NetProfit.StringFixed(2))
	assert.Equal(t, "2640.49", totals.RepCommission.StringFixed(2))
	assert.Equal(t, "3227.26", totals.CompanyProfit.StringFixed(2))
	assert.Equal(t, "2140.49", totals.BalanceDueRep.StringFixed(2))
}

func TestCalculateCountsSupplements(t *testing.T) {
	totals, err := Calculate(Input{
		GrossContractTotal: d("10000"),
		OPPercent:          d("0.10"),
		Expenses: LineItems{
			Materials:   d("2000"),
			Labor:       d("1000"),
			Permits:     d("150"),
			Dumpster:    d("350"),
			Supplements: d("500"),
			Other:       d("100"),
		},
		CommissionRate: d("0.5"),
	})
	require.NoError(t, err)
	assert.Equal(t, "4100.00", totals.TotalExpenses.StringFixed(2))
	assert.Equal(t, "4900.00", totals.NetProfit.StringFixed(2))
	assert.Equal(t, "2450.00", totals.RepCommission.StringFixed(2))

	_, err = Calculate(Input{Expenses: LineItems{Supplements: d("-1")}})
	assert.ErrorIs(t, err, ErrNegativeAmount)
	assert.ErrorContains(t, err, "supplements")
}

func TestCalculateBlankInputsAreZero(t *testing.T) {
	totals, err := Calculate(Input{})
	require.NoError(t, err)
	assert.True(t, totals.NetProfit.IsZero())
	assert.True(t, totals.RepCommission.IsZero())
	assert.True(t, totals.MarginPercent.IsZero())
}

func TestCalculateLossPaysNoCommission(t *testing.T) {
	totals, err := Calculate(Input{
		GrossContractTotal: d("8000"),
		OPPercent:          d("0.10"),
		Expenses:           LineItems{Materials: d("6000"), Labor: d("2500")},
		CommissionRate:     d("0.5"),
		AdvanceTotal:       d("250"),
	})
	require.NoError(t, err)
	assert.Equal(t, "-1300.00", totals.NetProfit.StringFixed(2))
	assert.True(t, totals.RepCommission.IsZero())
	assert.Equal(t, "-1300.00", totals.CompanyProfit.StringFixed(2))
	assert.Equal(t, "-250.00", totals.BalanceDueRep.StringFixed(2))
}

func TestCalculateIsDeterministic(t *testing.T) {
	in := Input{
		GrossContractTotal: d("12345.67"),
		OPPercent:          d("0.2"),
		Expenses:           LineItems{Materials: d("3333.33"), Labor: d("2222.22")},
		CommissionRate:     d("0.4"),
	}
	first, err := Calculate(in)
	require.NoError(t, err)
	second, err := Calculate(in)
	require.NoError(t, err)
	assert.True(t, first.RepCommission.Equal(second.RepCommission))
	assert.True(t, first.CompanyProfit.Equal(second.CompanyProfit))
	assert.True(t, first.NetProfit.Equal(second.NetProfit))
}

func TestCalculateRejectsBadInput(t *testing.T) {
	cases := []struct {
		name string
		in   Input
		want error
	}{
		{"negative gross", Input{GrossContractTotal: d("-1")}, ErrNegativeAmount},
		{"negative labor", Input{Expenses: LineItems{Labor: d("-5")}}, ErrNegativeAmount},
		{"negative advance", Input{AdvanceTotal: d("-5")}, ErrNegativeAmount},
		{"whole percent o&p", Input{OPPercent: d("10")}, ErrPercentOutOfRange},
		{"rate above one", Input{CommissionRate: d("1.5")}, ErrPercentOutOfRange},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Calculate(tc.in)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}
