package pricing

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"practicespace/internal/model"
)

// Allowance reports how many free hours a user still has for the period
// containing at.
type Allowance interface {
	RemainingFreeHours(ctx context.Context, userID int64, at time.Time) (decimal.Decimal, error)
}

// Cost is the price breakdown of one interval.
type Cost struct {
	TotalHours    decimal.Decimal `json:"total_hours"`
	FreeHoursUsed decimal.Decimal `json:"free_hours_used"`
	PaidHours     decimal.Decimal `json:"paid_hours"`
	CostCents     int64           `json:"cost_cents"`
}

// IsFree reports whether nothing is owed.
func (c Cost) IsFree() bool {
	return c.CostCents == 0
}

type Config struct {
	HourlyRateCents int64
}

// Engine prices reservations.
type Engine struct {
	allowance Allowance
	rate      decimal.Decimal
}

func NewEngine(allowance Allowance, cfg Config) *Engine {
	rate := cfg.HourlyRateCents
	if rate < 0 {
		rate = 0
	}
	return &Engine{allowance: allowance, rate: decimal.NewFromInt(rate)}
}

// CalculateCost splits [start, end) into free and paid hours for userID.
// A nil allowance means no free hours.
func (e *Engine) CalculateCost(ctx context.Context, userID int64, start, end time.Time) (Cost, error) {
	if !end.After(start) {
		return Cost{}, model.Invalid("reserved_until", "must be after reserved_at")
	}

	total := model.HoursBetween(start, end)
	remaining := decimal.Zero
	if e.allowance != nil {
		var err error
		remaining, err = e.allowance.RemainingFreeHours(ctx, userID, start)
		if err != nil {
			return Cost{}, fmt.Errorf("remaining free hours: %w", err)
		}
	}
	return e.split(total, remaining), nil
}

func (e *Engine) split(total, remaining decimal.Decimal) Cost {
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	free := decimal.Min(total, remaining)
	paid := total.Sub(free)
	cents := paid.Mul(e.rate).Round(0).IntPart()
	if cents < 0 {
		cents = 0
	}
	return Cost{TotalHours: total, FreeHoursUsed: free, PaidHours: paid, CostCents: cents}
}
