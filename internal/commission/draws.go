package commission

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// OutstandingDraw is a draw that still has a balance to recover.
type OutstandingDraw struct {
	ID               string          `json:"id"`
	RemainingBalance decimal.Decimal `json:"remaining_balance"`
	IssuedAt         time.Time       `json:"issued_at"`
}

// DrawApplication records how much of a commission went against one draw.
type DrawApplication struct {
	DrawID           string          `json:"draw_id"`
	Amount           decimal.Decimal `json:"amount"`
	RemainingBalance decimal.Decimal `json:"remaining_balance"`
}

// Settlement is the result of recovering draws from a commission payout.
type Settlement struct {
	Applications []DrawApplication `json:"applications"`
	TotalApplied decimal.Decimal   `json:"total_applied"`
	NetPayout    decimal.Decimal   `json:"net_payout"`
}

// ApplyToDraws recovers outstanding draws from a commission, oldest first.
// No draw balance ever goes below zero or grows.
func ApplyToDraws(commission decimal.Decimal, draws []OutstandingDraw) Settlement {
	left := decimal.Max(commission, decimal.Zero)

	ordered := make([]OutstandingDraw, len(draws))
	copy(ordered, draws)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].IssuedAt.Before(ordered[j].IssuedAt) })

	settlement := Settlement{TotalApplied: decimal.Zero}
	for _, d := range ordered {
		if !left.IsPositive() {
			break
		}
		if !d.RemainingBalance.IsPositive() {
			continue
		}
		amount := decimal.Min(left, d.RemainingBalance)
		left = left.Sub(amount)
		settlement.TotalApplied = settlement.TotalApplied.Add(amount)
		settlement.Applications = append(settlement.Applications, DrawApplication{
			DrawID:           d.ID,
			Amount:           Cents(amount),
			RemainingBalance: Cents(d.RemainingBalance.Sub(amount)),
		})
	}
	settlement.TotalApplied = Cents(settlement.TotalApplied)
	settlement.NetPayout = Cents(left)
	return settlement
}

// OutstandingBalance sums the remaining balances of draws.
func OutstandingBalance(draws []OutstandingDraw) decimal.Decimal {
	total := decimal.Zero
	for _, d := range draws {
		if d.RemainingBalance.IsPositive() {
			total = total.Add(d.RemainingBalance)
		}
	}
	return Cents(total)
}
