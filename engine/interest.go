/*
interest.go - Arrears interest accrual

PURPOSE:
  Computes how much interest an overdue quota has accrued as of a
  reference date, under the interest configurations of its payment
  concept. Interest is simple (non-compounding) and accrues on the
  quota's current outstanding principal only.

ACCRUAL RULES:
  - A concept with applies_interest off accrues nothing, configurations
    or not.
  - No active configuration means zero interest. Not an error.
  - Nothing accrues while asOf <= dueDate + gracePeriodDays.
  - Simple interest: principal * rate * elapsedPeriods, where the period
    unit (daily/monthly/annual) comes from the configuration and uses a
    30-day month / 365-day year convention.
  - When the active configuration changes mid-accrual, interest is
    computed piecewise: one segment per validity window overlapping the
    accrual interval, summed. Each segment honors its own grace days.
  - fixed_amount configurations charge their flat fee once per window in
    which the quota is past grace.
  - Zero outstanding principal accrues nothing.

The result is rounded to the principal's currency minor units at the end,
after summing segments, so a piecewise computation equals the equivalent
single-window one.
*/
package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// InterestCalculator computes accrued arrears interest for quotas.
type InterestCalculator struct {
	Concepts ConceptStore
	Configs  ConfigStore
}

func NewInterestCalculator(store Store) *InterestCalculator {
	return &InterestCalculator{Concepts: store, Configs: store}
}

// AccruedInterest returns the interest accrued on the outstanding
// principal of a quota due on dueDate, as of asOf.
func (ic *InterestCalculator) AccruedInterest(ctx context.Context, conceptID ConceptID, dueDate Date, outstandingPrincipal Money, asOf Date) (Money, error) {
	zero := Zero(outstandingPrincipal.Currency)

	if !outstandingPrincipal.IsPositive() {
		return zero, nil
	}
	if asOf.BeforeOrEqual(dueDate) {
		return zero, nil
	}

	// The concept decides whether interest applies at all; configurations
	// attached to a non-interest concept are inert.
	concept, err := ic.Concepts.GetConcept(ctx, conceptID)
	if err != nil {
		return zero, fmt.Errorf("load concept %s: %w", conceptID, err)
	}
	if concept == nil || !concept.AppliesInterest {
		return zero, nil
	}

	configs, err := ic.Configs.ConfigsByConcept(ctx, conceptID)
	if err != nil {
		return zero, fmt.Errorf("interest configs for %s: %w", conceptID, err)
	}
	if len(configs) == 0 {
		return zero, nil
	}

	sort.Slice(configs, func(i, j int) bool {
		return configs[i].EffectiveFrom.Before(configs[j].EffectiveFrom)
	})

	total := decimal.Zero
	for _, cfg := range configs {
		segment, err := ic.accrueSegment(cfg, dueDate, outstandingPrincipal, asOf)
		if err != nil {
			return zero, err
		}
		total = total.Add(segment)
	}

	return Money{Amount: total, Currency: outstandingPrincipal.Currency}.Round(), nil
}

// accrueSegment computes the interest contributed by one configuration
// window, clipped to the quota's accrual interval.
func (ic *InterestCalculator) accrueSegment(cfg InterestConfiguration, dueDate Date, principal Money, asOf Date) (decimal.Decimal, error) {
	graceEnd := dueDate.AddDays(cfg.GraceDays)

	start := cfg.EffectiveFrom.Max(graceEnd)
	end := asOf
	if cfg.EffectiveTo != nil {
		end = end.Min(*cfg.EffectiveTo)
	}

	elapsed := DaysBetween(start, end)
	if elapsed <= 0 {
		return decimal.Zero, nil
	}

	switch cfg.Type {
	case InterestSimple:
		periods := decimal.NewFromInt(int64(elapsed)).
			Div(decimal.NewFromInt(int64(cfg.Period.Days())))
		return principal.Amount.Mul(cfg.Rate).Mul(periods), nil
	case InterestFixedAmount:
		return cfg.FixedAmount.Amount, nil
	default:
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnsupportedInterestType, cfg.Type)
	}
}

// ValidateConfiguration checks a new configuration against the ones
// already recorded for its concept. Windows for the same concept must
// not overlap: at most one configuration may be active on any date.
func ValidateConfiguration(cfg InterestConfiguration, existing []InterestConfiguration) error {
	switch cfg.Type {
	case InterestSimple, InterestFixedAmount:
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedInterestType, cfg.Type)
	}

	for _, other := range existing {
		if other.ID == cfg.ID || other.ConceptID != cfg.ConceptID {
			continue
		}
		if windowsOverlap(cfg, other) {
			return fmt.Errorf("%w: %q and %q", ErrConfigOverlap, cfg.Name, other.Name)
		}
	}
	return nil
}

// windowsOverlap treats windows as half-open: [from, to).
func windowsOverlap(a, b InterestConfiguration) bool {
	aOpenEnded := a.EffectiveTo == nil
	bOpenEnded := b.EffectiveTo == nil

	if !aOpenEnded && a.EffectiveTo.BeforeOrEqual(b.EffectiveFrom) {
		return false
	}
	if !bOpenEnded && b.EffectiveTo.BeforeOrEqual(a.EffectiveFrom) {
		return false
	}
	return true
}
