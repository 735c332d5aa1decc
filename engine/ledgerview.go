/*
ledgerview.go - Read-only projection of a unit's settleable balances

PURPOSE:
  Aggregates each outstanding quota's principal, adjustments, prior
  applications and accrued interest into one settleable balance. This is
  the snapshot the allocation algorithm consumes.

KEY INSIGHT:
  Balances are projections. The outstanding principal is re-derived on
  every read from the quota's base amount, its adjustment log and its
  application log. There is no stored running total to drift out of sync
  with the ledger.

ORDERING:
  Oldest due date first, quota ID as tiebreak. This mirrors standard
  arrears-collection practice and keeps allocation reproducible; it is a
  policy, not an accident of the query.
*/
package engine

import (
	"context"
	"fmt"
)

// QuotaBalance is one quota's settleable position as of a date.
type QuotaBalance struct {
	Quota                Quota
	OutstandingPrincipal Money
	AccruedInterest      Money
	TotalDue             Money
}

// Settled reports whether nothing remains due on the quota.
func (b QuotaBalance) Settled() bool { return !b.TotalDue.IsPositive() }

// LedgerView computes outstanding balances for a unit.
type LedgerView struct {
	Quotas       QuotaStore
	Adjustments  AdjustmentStore
	Applications ApplicationStore
	Interest     *InterestCalculator
}

func NewLedgerView(store Store) *LedgerView {
	return &LedgerView{
		Quotas:       store,
		Adjustments:  store,
		Applications: store,
		Interest:     NewInterestCalculator(store),
	}
}

// OutstandingQuotas returns the unit's open quotas with their balances
// as of asOf, ordered oldest due date first (quota ID tiebreak).
func (v *LedgerView) OutstandingQuotas(ctx context.Context, unitID UnitID, asOf Date) ([]QuotaBalance, error) {
	quotas, err := v.Quotas.OutstandingByUnit(ctx, unitID)
	if err != nil {
		return nil, fmt.Errorf("outstanding quotas for %s: %w", unitID, err)
	}

	balances := make([]QuotaBalance, 0, len(quotas))
	for _, q := range quotas {
		b, err := v.BalanceOf(ctx, q, asOf)
		if err != nil {
			return nil, err
		}
		balances = append(balances, b)
	}
	return balances, nil
}

// BalanceOf projects a single quota's balance as of asOf.
func (v *LedgerView) BalanceOf(ctx context.Context, q Quota, asOf Date) (QuotaBalance, error) {
	principal, err := v.effectivePrincipal(ctx, q, asOf)
	if err != nil {
		return QuotaBalance{}, err
	}

	applied, err := v.appliedToPrincipal(ctx, q)
	if err != nil {
		return QuotaBalance{}, err
	}

	outstanding := principal.Sub(applied)
	if outstanding.IsNegative() {
		// More principal applied than the quota is worth: the adjustment
		// and application logs contradict each other.
		return QuotaBalance{}, &ConservationError{
			Expected: principal,
			Applied:  applied,
		}
	}

	interest, err := v.Interest.AccruedInterest(ctx, q.ConceptID, q.DueDate, outstanding, asOf)
	if err != nil {
		return QuotaBalance{}, err
	}

	return QuotaBalance{
		Quota:                q,
		OutstandingPrincipal: outstanding,
		AccruedInterest:      interest,
		TotalDue:             outstanding.Add(interest),
	}, nil
}

// effectivePrincipal is the base amount plus every adjustment recorded
// on or before asOf.
func (v *LedgerView) effectivePrincipal(ctx context.Context, q Quota, asOf Date) (Money, error) {
	adjustments, err := v.Adjustments.AdjustmentsByQuota(ctx, q.ID)
	if err != nil {
		return Money{}, fmt.Errorf("adjustments for %s: %w", q.ID, err)
	}

	principal := q.BaseAmount
	for _, a := range adjustments {
		if DateOf(a.CreatedAt).BeforeOrEqual(asOf) {
			principal = principal.Add(a.Delta())
		}
	}
	return principal, nil
}

func (v *LedgerView) appliedToPrincipal(ctx context.Context, q Quota) (Money, error) {
	apps, err := v.Applications.ApplicationsByQuota(ctx, q.ID)
	if err != nil {
		return Money{}, fmt.Errorf("applications for %s: %w", q.ID, err)
	}

	total := Zero(q.BaseAmount.Currency)
	for _, app := range apps {
		total = total.Add(app.AppliedToPrincipal)
	}
	return total, nil
}
