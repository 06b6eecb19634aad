package pricing

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TierSource resolves a user's membership tier.
type TierSource interface {
	MembershipTier(ctx context.Context, userID int64) (string, error)
}

// UsageStore sums the free hours recorded on a user's live reservations.
type UsageStore interface {
	FreeHoursUsed(ctx context.Context, userID int64, from, to time.Time) (decimal.Decimal, error)
}

// Ledger derives the monthly free-hour balance from the tier allowance and
// the free hours recorded on non-cancelled reservations. Cancelling a
// reservation therefore restores its hours.
type Ledger struct {
	tiers      TierSource
	usage      UsageStore
	allowances map[string]decimal.Decimal
	loc        func() *time.Location
}

// NewLedger builds a ledger whose billing months follow the zone loc reports.
func NewLedger(tiers TierSource, usage UsageStore, allowances map[string]decimal.Decimal, loc func() *time.Location) *Ledger {
	if loc == nil {
		loc = func() *time.Location { return time.UTC }
	}
	return &Ledger{tiers: tiers, usage: usage, allowances: allowances, loc: loc}
}

// PeriodBounds returns the calendar month containing at in loc.
func PeriodBounds(at time.Time, loc *time.Location) (time.Time, time.Time) {
	local := at.In(loc)
	from := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
	return from, from.AddDate(0, 1, 0)
}

// MonthlyAllowance returns the free hours granted to the user's tier.
func (l *Ledger) MonthlyAllowance(ctx context.Context, userID int64) (decimal.Decimal, error) {
	tier, err := l.tiers.MembershipTier(ctx, userID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("membership tier of user %d: %w", userID, err)
	}
	return l.allowances[tier], nil
}

// UsedFreeHoursThisPeriod sums free hours on live reservations in the period of at.
func (l *Ledger) UsedFreeHoursThisPeriod(ctx context.Context, userID int64, at time.Time) (decimal.Decimal, error) {
	from, to := PeriodBounds(at, l.loc())
	return l.usage.FreeHoursUsed(ctx, userID, from, to)
}

// RemainingFreeHours never returns a negative balance.
func (l *Ledger) RemainingFreeHours(ctx context.Context, userID int64, at time.Time) (decimal.Decimal, error) {
	allowance, err := l.MonthlyAllowance(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	if !allowance.IsPositive() {
		return decimal.Zero, nil
	}
	used, err := l.UsedFreeHoursThisPeriod(ctx, userID, at)
	if err != nil {
		return decimal.Zero, err
	}
	remaining := allowance.Sub(used)
	if remaining.IsNegative() {
		return decimal.Zero, nil
	}
	return remaining, nil
}

// StaticTiers maps users to tiers from configuration.
type StaticTiers struct {
	Default string
	Members map[int64]string
}

func (s StaticTiers) MembershipTier(_ context.Context, userID int64) (string, error) {
	if tier, ok := s.Members[userID]; ok {
		return tier, nil
	}
	return s.Default, nil
}
