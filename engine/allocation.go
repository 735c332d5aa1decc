/*
allocation.go - The payment allocation algorithm

PURPOSE:
  Splits a converted payment across a unit's outstanding quotas. This is
  pure computation: no I/O, no clock, no ID generation. Given the same
  payment and the same balance snapshot it always produces the same
  allocation, so a failed commit can simply re-run it.

ALGORITHM:
  Walk the balances oldest-first. Within a quota, settle accrued interest
  before principal (standard arrears priority). Never advance past a
  quota that still has a balance: allocation stops there only because the
  payment is exhausted. Whatever remains after every quota is settled is
  the surplus, handled per the overpayment policy.

CONSERVATION:
  sum(appliedAmount) + remainder == converted payment amount, always.
  The recorder re-asserts this before committing.
*/
package engine

// OverpaymentPolicy decides what happens to a surplus.
type OverpaymentPolicy string

const (
	// OverpaymentCredit records the surplus as a pending credit on the
	// unit, resolvable later by an operator. The default: the intake
	// side keeps the money and the resident's next quota absorbs it.
	OverpaymentCredit OverpaymentPolicy = "credit"

	// OverpaymentReject refuses the allocation outright.
	OverpaymentReject OverpaymentPolicy = "reject"
)

// QuotaStatusChange is the status transition a committed allocation
// applies to one quota.
type QuotaStatusChange struct {
	QuotaID QuotaID
	Status  QuotaStatus
}

// Allocation is the full outcome of allocating one payment: the
// application rows to persist, the status transitions they imply, and
// the unapplied remainder (zero unless the payment overshot).
type Allocation struct {
	PaymentID     PaymentID
	Applications  []PaymentApplication
	StatusChanges []QuotaStatusChange
	Remainder     Money
	Rate          *ExchangeRate // rate used to convert the payment, nil if none
}

// Allocate distributes the converted payment amount across the ordered
// balance snapshot. Balances must already be in due-date order (see
// LedgerView.OutstandingQuotas); applications come out in that order.
//
// Application rows are emitted without IDs or timestamps; the recorder
// assigns those at commit so Allocate stays deterministic.
func Allocate(payment Payment, converted Conversion, balances []QuotaBalance, policy OverpaymentPolicy) (Allocation, error) {
	remaining := converted.Money

	alloc := Allocation{
		PaymentID: payment.ID,
		Rate:      converted.Rate,
		Remainder: Zero(remaining.Currency),
	}

	for _, b := range balances {
		if !remaining.IsPositive() {
			break
		}

		interestPortion := remaining.Min(b.AccruedInterest)
		remaining = remaining.Sub(interestPortion)

		principalPortion := remaining.Min(b.OutstandingPrincipal)
		remaining = remaining.Sub(principalPortion)

		applied := interestPortion.Add(principalPortion)
		if !applied.IsPositive() {
			continue
		}

		alloc.Applications = append(alloc.Applications, PaymentApplication{
			PaymentID:          payment.ID,
			QuotaID:            b.Quota.ID,
			AppliedAmount:      applied,
			AppliedToPrincipal: principalPortion,
			AppliedToInterest:  interestPortion,
			RateUsed:           converted.Rate,
		})

		settled := principalPortion.Equal(b.OutstandingPrincipal) &&
			interestPortion.Equal(b.AccruedInterest)
		status := QuotaPartiallyPaid
		if settled {
			status = QuotaPaid
		}
		alloc.StatusChanges = append(alloc.StatusChanges, QuotaStatusChange{
			QuotaID: b.Quota.ID,
			Status:  status,
		})
	}

	if remaining.IsPositive() {
		if policy == OverpaymentReject {
			return Allocation{}, &OverpaymentError{PaymentID: payment.ID, Surplus: remaining}
		}
		alloc.Remainder = remaining
	}

	return alloc, nil
}

// AppliedTotal sums the applied amounts across all applications.
func (a Allocation) AppliedTotal() Money {
	total := Zero(a.Remainder.Currency)
	for _, app := range a.Applications {
		total = total.Add(app.AppliedAmount)
	}
	return total
}
