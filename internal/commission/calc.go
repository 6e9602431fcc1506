// Package commission holds the arithmetic and workflow rules behind
// commission documents, submissions, tiers and draws. It does no I/O.
package commission

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrNegativeAmount    = errors.New("amount must not be negative")
	ErrPercentOutOfRange = errors.New("percentage must be a decimal between 0 and 1")
)

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

// LineItems are the job costs deducted from the net contract total.
type LineItems struct {
	Materials   decimal.Decimal `json:"materials"`
	Labor       decimal.Decimal `json:"labor"`
	Permits     decimal.Decimal `json:"permits"`
	Dumpster    decimal.Decimal `json:"dumpster"`
	Supplements decimal.Decimal `json:"supplements"`
	Other       decimal.Decimal `json:"other"`
}

func (l LineItems) Total() decimal.Decimal {
	return l.Materials.Add(l.Labor).Add(l.Permits).Add(l.Dumpster).Add(l.Supplements).Add(l.Other)
}

func (l LineItems) validate() error {
	for name, v := range map[string]decimal.Decimal{
		"materials":   l.Materials,
		"labor":       l.Labor,
		"permits":     l.Permits,
		"dumpster":    l.Dumpster,
		"supplements": l.Supplements,
		"other":       l.Other,
	} {
		if v.IsNegative() {
			return fmt.Errorf("%s: %w", name, ErrNegativeAmount)
		}
	}
	return nil
}

// Input carries the fields a rep enters on a commission document. Zero
// values stand in for anything left blank.
type Input struct {
	GrossContractTotal decimal.Decimal `json:"gross_contract_total"`
	OPPercent          decimal.Decimal `json:"op_percent"`
	Expenses           LineItems       `json:"expenses"`
	CommissionRate     decimal.Decimal `json:"commission_rate"`
	AdvanceTotal       decimal.Decimal `json:"advance_total"`
}

// Totals are the derived document figures, rounded to cents. MarginPercent
// is a whole-number percentage of the gross contract.
type Totals struct {
	OPAmount         decimal.Decimal `json:"op_amount"`
	NetContractTotal decimal.Decimal `json:"net_contract_total"`
	TotalExpenses    decimal.Decimal `json:"total_expenses"`
	NetProfit        decimal.Decimal `json:"net_profit"`
	RepCommission    decimal.Decimal `json:"rep_commission"`
	CompanyProfit    decimal.Decimal `json:"company_profit"`
	BalanceDueRep    decimal.Decimal `json:"balance_due_rep"`
	MarginPercent    decimal.Decimal `json:"margin_percent"`
}

func (in Input) Validate() error {
	if in.GrossContractTotal.IsNegative() {
		return fmt.Errorf("gross contract total: %w", ErrNegativeAmount)
	}
	if in.AdvanceTotal.IsNegative() {
		return fmt.Errorf("advance total: %w", ErrNegativeAmount)
	}
	if err := in.Expenses.validate(); err != nil {
		return err
	}
	if !inUnitRange(in.OPPercent) {
		return fmt.Errorf("op percent %s: %w", in.OPPercent, ErrPercentOutOfRange)
	}
	if !inUnitRange(in.CommissionRate) {
		return fmt.Errorf("commission rate %s: %w", in.CommissionRate, ErrPercentOutOfRange)
	}
	return nil
}

// Calculate derives the document totals. The same input always yields the
// same totals.
func Calculate(in Input) (Totals, error) {
	if err := in.Validate(); err != nil {
		return Totals{}, err
	}

	opAmount := in.GrossContractTotal.Mul(in.OPPercent)
	netContract := in.GrossContractTotal.Sub(opAmount)
	expenses := in.Expenses.Total()
	netProfit := netContract.Sub(expenses)

	// A job that lost money pays no commission.
	repCommission := decimal.Max(netProfit, decimal.Zero).Mul(in.CommissionRate)
	companyProfit := netProfit.Sub(repCommission)
	balanceDue := repCommission.Sub(in.AdvanceTotal)

	margin := decimal.Zero
	if !in.GrossContractTotal.IsZero() {
		margin = netProfit.Div(in.GrossContractTotal).Mul(hundred)
	}

	return Totals{
		OPAmount:         Cents(opAmount),
		NetContractTotal: Cents(netContract),
		TotalExpenses:    Cents(expenses),
		NetProfit:        Cents(netProfit),
		RepCommission:    Cents(repCommission),
		CompanyProfit:    Cents(companyProfit),
		BalanceDueRep:    Cents(balanceDue),
		MarginPercent:    Cents(margin),
	}, nil
}

// Cents rounds half away from zero to two places.
func Cents(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

func inUnitRange(d decimal.Decimal) bool {
	return !d.IsNegative() && d.LessThanOrEqual(one)
}
