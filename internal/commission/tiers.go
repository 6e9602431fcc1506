package commission

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

var (
	ErrTierNotFound   = errors.New("commission tier not found")
	ErrRateNotAllowed = errors.New("rate is not allowed by the commission tier")
	ErrInvalidPercent = errors.New("percentage must be greater than 0 and at most 100")
	ErrEmptyPercents  = errors.New("at least one percentage is required")
)

var marginStep = decimal.NewFromInt(5)

// Tier is the rule-relevant view of a commission tier.
type Tier struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	Level            int               `json:"level"`
	OPPercents       []decimal.Decimal `json:"op_percents"`
	ProfitSplits     []decimal.Decimal `json:"profit_splits"`
	MinMarginPercent decimal.Decimal   `json:"min_margin_percent"`
}

// TierDrops counts the tiers a job falls by: one per full five points of
// margin below the minimum.
func TierDrops(marginPercent, minMarginPercent decimal.Decimal) int {
	if marginPercent.GreaterThanOrEqual(minMarginPercent) {
		return 0
	}
	shortfall := minMarginPercent.Sub(marginPercent)
	return int(shortfall.Div(marginStep).Floor().IntPart())
}

// NormalizePercents turns user-entered percentages into sorted, distinct
// decimals. Values above 1 are read as whole percents.
func NormalizePercents(values []decimal.Decimal) ([]decimal.Decimal, error) {
	if len(values) == 0 {
		return nil, ErrEmptyPercents
	}
	out := make([]decimal.Decimal, 0, len(values))
	for _, v := range values {
		if !v.IsPositive() || v.GreaterThan(hundred) {
			return nil, fmt.Errorf("%s: %w", v, ErrInvalidPercent)
		}
		if v.GreaterThan(one) {
			v = v.Div(hundred)
		}
		v = v.Round(4)
		if !containsDecimal(out, v) {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LessThan(out[j]) })
	return out, nil
}

// ResolveTier returns the tier drops levels under the assigned level,
// floored at the lowest tier.
func ResolveTier(tiers []Tier, assignedLevel int, drops int) (Tier, error) {
	if len(tiers) == 0 {
		return Tier{}, ErrTierNotFound
	}
	sorted := make([]Tier, len(tiers))
	copy(sorted, tiers)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Level < sorted[j].Level })

	idx := -1
	for i, t := range sorted {
		if t.Level == assignedLevel {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Tier{}, fmt.Errorf("level %d: %w", assignedLevel, ErrTierNotFound)
	}
	if drops < 0 {
		drops = 0
	}
	idx -= drops
	if idx < 0 {
		idx = 0
	}
	return sorted[idx], nil
}

// ValidateRates checks the O&P percent and commission rate against the
// tier's allowed sets.
func ValidateRates(t Tier, opPercent, commissionRate decimal.Decimal) error {
	if !containsDecimal(t.OPPercents, opPercent) {
		return fmt.Errorf("o&p %s not in tier %q: %w", opPercent, t.Name, ErrRateNotAllowed)
	}
	if !containsDecimal(t.ProfitSplits, commissionRate) {
		return fmt.Errorf("profit split %s not in tier %q: %w", commissionRate, t.Name, ErrRateNotAllowed)
	}
	return nil
}

func containsDecimal(set []decimal.Decimal, v decimal.Decimal) bool {
	for _, s := range set {
		if s.Equal(v) {
			return true
		}
	}
	return false
}
