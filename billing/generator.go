/*
Package billing turns payment concepts into concrete quotas and keeps
quota statuses honest over time.

generator.go - Periodic quota generation

PURPOSE:
  For a billing period (year + month), materialize one quota per
  unit x applicable concept. Generation is idempotent: a period that was
  already generated (wholly or partially) only fills in the gaps, so the
  scheduler can run it every day without double-billing anyone.

RECURRENCE:
  A concept bills in the months of its cycle anchored at January:
  monthly bills every month, quarterly in Jan/Apr/Jul/Oct, semi-annual
  in Jan/Jul, annual in January only.
*/
package billing

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/condoflow/quota-engine/engine"
)

// Generator creates the quotas owed for a billing period.
type Generator struct {
	Store engine.Store

	now func() time.Time
}

func NewGenerator(store engine.Store) *Generator {
	return &Generator{Store: store, now: func() time.Time { return time.Now().UTC() }}
}

// GenerateResult summarizes one generation run.
type GenerateResult struct {
	PeriodYear  int
	PeriodMonth int
	Created     int
	Skipped     int // already existed
}

// GenerateForPeriod creates the missing quotas for every unit and every
// concept that bills in the given period. Safe to re-run.
func (g *Generator) GenerateForPeriod(ctx context.Context, year, month int) (GenerateResult, error) {
	result := GenerateResult{PeriodYear: year, PeriodMonth: month}
	if month < 1 || month > 12 {
		return result, fmt.Errorf("invalid period month %d", month)
	}

	units, err := g.Store.ListUnits(ctx)
	if err != nil {
		return result, fmt.Errorf("list units: %w", err)
	}
	concepts, err := g.Store.ListConcepts(ctx)
	if err != nil {
		return result, fmt.Errorf("list concepts: %w", err)
	}

	for _, concept := range concepts {
		if !billsInMonth(concept.Recurrence, month) {
			continue
		}
		dueDate := dueDateFor(year, month, concept.DueDay)

		for _, unit := range units {
			// Quotas are denominated in the unit's base currency; a concept
			// billing in another currency is a configuration error, surfaced
			// here rather than as a broken allocation later.
			if concept.Amount.Currency != unit.BaseCurrency {
				return result, fmt.Errorf("%w: concept %s bills in %s, unit %s accounts in %s",
					engine.ErrCurrencyMismatch, concept.ID, concept.Amount.Currency, unit.ID, unit.BaseCurrency)
			}

			exists, err := g.Store.QuotaExistsForPeriod(ctx, unit.ID, concept.ID, year, month)
			if err != nil {
				return result, fmt.Errorf("check period %d-%02d unit %s: %w", year, month, unit.ID, err)
			}
			if exists {
				result.Skipped++
				continue
			}

			quota := engine.Quota{
				ID:          engine.QuotaID(uuid.NewString()),
				UnitID:      unit.ID,
				ConceptID:   concept.ID,
				PeriodYear:  year,
				PeriodMonth: month,
				DueDate:     dueDate,
				BaseAmount:  concept.Amount,
				Status:      engine.QuotaPending,
				CreatedAt:   g.now(),
			}
			if err := g.Store.InsertQuota(ctx, quota); err != nil {
				return result, fmt.Errorf("insert quota for unit %s concept %s: %w", unit.ID, concept.ID, err)
			}
			result.Created++
		}
	}

	log.Printf("[BILLING] generated period %d-%02d: %d created, %d skipped",
		year, month, result.Created, result.Skipped)
	return result, nil
}

// CatchUp generates every period from the last materialized one through
// the given period. A scheduler that was down across one or more month
// boundaries backfills the months it missed; with nothing materialized
// yet, only the given period is generated.
func (g *Generator) CatchUp(ctx context.Context, year, month int) ([]GenerateResult, error) {
	if month < 1 || month > 12 {
		return nil, fmt.Errorf("invalid period month %d", month)
	}

	startYear, startMonth := year, month
	latestYear, latestMonth, ok, err := g.Store.LatestQuotaPeriod(ctx)
	if err != nil {
		return nil, fmt.Errorf("latest materialized period: %w", err)
	}
	if ok && (latestYear < year || (latestYear == year && latestMonth < month)) {
		startYear, startMonth = latestYear, latestMonth
	}

	var results []GenerateResult
	for y, m := startYear, startMonth; y < year || (y == year && m <= month); {
		res, err := g.GenerateForPeriod(ctx, y, m)
		if err != nil {
			return results, err
		}
		results = append(results, res)
		m++
		if m > 12 {
			m, y = 1, y+1
		}
	}
	return results, nil
}

// billsInMonth reports whether a concept with the given recurrence
// produces a quota in the given calendar month (cycle anchored at
// January).
func billsInMonth(r engine.Recurrence, month int) bool {
	return (month-1)%r.Months() == 0
}

// dueDateFor resolves the concept's due day within the period, clamping
// to the month's last day (due day 31 in February means Feb 28/29).
func dueDateFor(year, month, dueDay int) engine.Date {
	if dueDay < 1 {
		dueDay = 1
	}
	lastDay := engine.NewDate(year, time.Month(month), 1).AddMonths(1).AddDays(-1)
	if dueDay > lastDay.Time.Day() {
		return lastDay
	}
	return engine.NewDate(year, time.Month(month), dueDay)
}
