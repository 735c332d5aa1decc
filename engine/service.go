/*
service.go - Inbound entry points for the allocation engine

PURPOSE:
  Wires the pieces together for callers (HTTP layer, webhook handlers,
  the retry scheduler): load the payment, normalize it to the unit's
  base currency, snapshot the outstanding quotas, allocate, commit.
  The whole operation is retry-safe end to end.

FAILURE SEMANTICS:
  A missing exchange rate aborts before anything is written and surfaces
  as a retryable error. A payment with no outstanding quotas is not an
  error: the full amount follows the overpayment policy. The only
  user-visible failure mode is "payment not yet allocated, will retry" -
  never a partially-applied payment.
*/
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AllocationService is the engine's inbound surface.
type AllocationService struct {
	Store     TxStore
	Converter *Converter
	Ledger    *LedgerView
	Recorder  *Recorder
	Policy    OverpaymentPolicy

	now func() time.Time
}

func NewAllocationService(store TxStore) *AllocationService {
	return &AllocationService{
		Store:     store,
		Converter: NewConverter(store),
		Ledger:    NewLedgerView(store),
		Recorder:  NewRecorder(store),
		Policy:    OverpaymentCredit,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// RegisterCompletedPayment allocates a verified payment across the
// unit's outstanding quotas and commits the result. Invoked once per
// payment when it is verified; invoking it again returns the prior
// result unchanged.
func (svc *AllocationService) RegisterCompletedPayment(ctx context.Context, paymentID PaymentID) (CommitResult, error) {
	payment, err := svc.Store.GetPayment(ctx, paymentID)
	if err != nil {
		return CommitResult{}, fmt.Errorf("load payment %s: %w", paymentID, err)
	}
	if payment == nil {
		return CommitResult{}, fmt.Errorf("%w: %s", ErrPaymentNotFound, paymentID)
	}
	if !payment.Status.Allocatable() {
		return CommitResult{}, fmt.Errorf("%w: %s is %s", ErrPaymentNotAllocatable, paymentID, payment.Status)
	}

	// A payment that was already committed replays its prior result
	// without re-entering allocation. Checking here (not only inside the
	// commit transaction) matters under the reject policy: the quotas the
	// first call settled are gone from the snapshot, so a re-run would
	// see the whole amount as surplus and reject instead of replaying.
	if prior, found, err := svc.Recorder.priorResult(ctx, svc.Store, *payment); err != nil {
		return CommitResult{}, err
	} else if found {
		return prior, nil
	}

	unit, err := svc.Store.GetUnit(ctx, payment.UnitID)
	if err != nil {
		return CommitResult{}, fmt.Errorf("load unit %s: %w", payment.UnitID, err)
	}
	if unit == nil {
		return CommitResult{}, fmt.Errorf("%w: %s", ErrUnitNotFound, payment.UnitID)
	}

	converted, err := svc.Converter.Convert(ctx, payment.Amount, unit.BaseCurrency, payment.Date)
	if err != nil {
		return CommitResult{}, err
	}

	// Hold the unit's lock across snapshot, allocation and commit: two
	// concurrent payments for the same unit must not allocate against
	// the same outstanding balances. Unrelated units never contend.
	lock := svc.Recorder.units.forUnit(payment.UnitID)
	lock.Lock()
	defer lock.Unlock()

	balances, err := svc.Ledger.OutstandingQuotas(ctx, payment.UnitID, payment.Date)
	if err != nil {
		return CommitResult{}, err
	}
	for _, b := range balances {
		if b.Quota.BaseAmount.Currency != unit.BaseCurrency {
			return CommitResult{}, fmt.Errorf("%w: quota %s is %s, unit %s accounts in %s",
				ErrCurrencyMismatch, b.Quota.ID, b.Quota.BaseAmount.Currency, unit.ID, unit.BaseCurrency)
		}
	}

	alloc, err := Allocate(*payment, converted, balances, svc.Policy)
	if err != nil {
		return CommitResult{}, err
	}

	return svc.Recorder.commitLocked(ctx, *payment, alloc)
}

// ApplyCreditToQuota resolves a pending overpayment credit against one
// open quota: the credit amount flows through the same allocation path
// (interest before principal) restricted to that quota, and the credit
// is marked allocated.
func (svc *AllocationService) ApplyCreditToQuota(ctx context.Context, creditID CreditID, quotaID QuotaID, actor, notes string) (CommitResult, error) {
	credit, err := svc.Store.GetCredit(ctx, creditID)
	if err != nil {
		return CommitResult{}, fmt.Errorf("load credit %s: %w", creditID, err)
	}
	if credit == nil {
		return CommitResult{}, fmt.Errorf("%w: %s", ErrCreditNotFound, creditID)
	}
	if credit.Resolved() {
		return CommitResult{}, fmt.Errorf("%w: %s is %s", ErrCreditResolved, creditID, credit.Status)
	}

	quota, err := svc.Store.GetQuota(ctx, quotaID)
	if err != nil {
		return CommitResult{}, fmt.Errorf("load quota %s: %w", quotaID, err)
	}
	if quota == nil {
		return CommitResult{}, fmt.Errorf("%w: %s", ErrQuotaNotFound, quotaID)
	}
	if !quota.Status.Open() {
		return CommitResult{}, fmt.Errorf("%w: %s is %s", ErrQuotaClosed, quotaID, quota.Status)
	}
	if quota.BaseAmount.Currency != credit.Amount.Currency {
		return CommitResult{}, fmt.Errorf("%w: quota %s is %s, credit %s holds %s",
			ErrCurrencyMismatch, quotaID, quota.BaseAmount.Currency, creditID, credit.Amount.Currency)
	}

	// Same per-unit critical section as a payment commit; the balance
	// snapshot below must not race another allocation for this unit.
	lock := svc.Recorder.units.forUnit(credit.UnitID)
	lock.Lock()
	defer lock.Unlock()

	asOf := DateOf(svc.now())
	balance, err := svc.Ledger.BalanceOf(ctx, *quota, asOf)
	if err != nil {
		return CommitResult{}, err
	}

	remaining := credit.Amount
	interestPortion := remaining.Min(balance.AccruedInterest)
	remaining = remaining.Sub(interestPortion)
	principalPortion := remaining.Min(balance.OutstandingPrincipal)
	remaining = remaining.Sub(principalPortion)

	applied := interestPortion.Add(principalPortion)

	now := svc.now()
	var result CommitResult
	err = svc.Store.WithTx(ctx, func(s Store) error {
		app := PaymentApplication{
			ID:                 ApplicationID(uuid.NewString()),
			PaymentID:          credit.PaymentID,
			QuotaID:            quota.ID,
			AppliedAmount:      applied,
			AppliedToPrincipal: principalPortion,
			AppliedToInterest:  interestPortion,
			CreatedAt:          now,
		}
		if applied.IsPositive() {
			if err := s.InsertApplications(ctx, []PaymentApplication{app}); err != nil {
				return fmt.Errorf("insert application: %w", err)
			}

			status := QuotaPartiallyPaid
			if principalPortion.Equal(balance.OutstandingPrincipal) &&
				interestPortion.Equal(balance.AccruedInterest) {
				status = QuotaPaid
			}
			if err := s.UpdateQuotaStatus(ctx, quota.ID, status); err != nil {
				return fmt.Errorf("quota %s -> %s: %w", quota.ID, status, err)
			}
		}

		resolved := *credit
		resolved.Status = CreditAllocated
		resolved.AllocatedQuotaID = &quota.ID
		resolved.AllocatedBy = actor
		resolved.AllocatedAt = &now
		resolved.ResolutionNotes = notes
		if err := s.ResolveCredit(ctx, credit.ID, resolved); err != nil {
			return fmt.Errorf("resolve credit: %w", err)
		}

		// A credit larger than the target quota rolls its remainder into
		// a fresh pending credit so no cent goes untracked.
		if remaining.IsPositive() {
			leftover := PaymentCredit{
				ID:        CreditID(uuid.NewString()),
				UnitID:    credit.UnitID,
				PaymentID: credit.PaymentID,
				Amount:    remaining,
				Status:    CreditPending,
				CreatedAt: now,
			}
			if err := s.InsertCredit(ctx, leftover); err != nil {
				return fmt.Errorf("insert leftover credit: %w", err)
			}
			result.Credit = &leftover
		}

		if applied.IsPositive() {
			result.Applications = []PaymentApplication{app}
		}
		result.PaymentID = credit.PaymentID
		return nil
	})
	if err != nil {
		return CommitResult{}, err
	}
	return result, nil
}
