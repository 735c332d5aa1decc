/*
recorder.go - Atomic, idempotent persistence of an allocation

PURPOSE:
  Commits the outcome of Allocate in one transaction: application rows,
  quota status transitions, the payment's transition to completed, and
  the overpayment credit if any. On any failure the whole transaction
  rolls back; no quota ever shows partial application state.

IDEMPOTENCY:
  A payment that already has application rows (or an overpayment credit,
  or is already completed) is not re-applied. The recorder returns the
  previously committed result instead. This guards against duplicate
  webhook deliveries and retried requests.

SERIALIZATION:
  Two payments arriving concurrently for the same unit must not allocate
  against the same balance snapshot. The commit critical section runs
  under a per-unit mutex (lock striping keyed by unit ID) on top of the
  store transaction, so unrelated units never contend. The read path
  stays lock-free.

  The lock registry lives inside the Recorder: every writer to a store
  must go through the same Recorder (in practice, the one
  AllocationService shared by the HTTP handlers and the scheduler). The
  sqlite store additionally enforces one application per (payment,
  quota) pair, so duplicates cannot commit even across processes.
*/
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// CommitResult is what a (possibly prior) commit produced.
type CommitResult struct {
	PaymentID    PaymentID
	Applications []PaymentApplication
	Credit       *PaymentCredit

	// AlreadyApplied is true when this call found an earlier commit and
	// returned its result instead of re-applying.
	AlreadyApplied bool
}

// unitLocks is a lightweight mutex map keyed by unit ID.
type unitLocks struct {
	mu    sync.Mutex
	locks map[UnitID]*sync.Mutex
}

func (ul *unitLocks) forUnit(id UnitID) *sync.Mutex {
	ul.mu.Lock()
	defer ul.mu.Unlock()
	if ul.locks == nil {
		ul.locks = make(map[UnitID]*sync.Mutex)
	}
	if _, ok := ul.locks[id]; !ok {
		ul.locks[id] = &sync.Mutex{}
	}
	return ul.locks[id]
}

// Recorder persists allocations.
type Recorder struct {
	Store TxStore

	units unitLocks
	now   func() time.Time
}

func NewRecorder(store TxStore) *Recorder {
	return &Recorder{Store: store, now: func() time.Time { return time.Now().UTC() }}
}

// Commit persists the allocation atomically. Safe to retry in full: a
// repeat commit for the same payment is a no-op returning the prior
// result.
//
// Callers that computed the allocation from a fresh balance snapshot
// should instead hold the unit lock across snapshot and commit (see
// AllocationService), which calls commitLocked directly.
func (r *Recorder) Commit(ctx context.Context, payment Payment, alloc Allocation) (CommitResult, error) {
	lock := r.units.forUnit(payment.UnitID)
	lock.Lock()
	defer lock.Unlock()

	return r.commitLocked(ctx, payment, alloc)
}

func (r *Recorder) commitLocked(ctx context.Context, payment Payment, alloc Allocation) (CommitResult, error) {
	if err := r.checkConservation(payment, alloc); err != nil {
		return CommitResult{}, err
	}

	var result CommitResult
	err := r.Store.WithTx(ctx, func(s Store) error {
		prior, found, err := r.priorResult(ctx, s, payment)
		if err != nil {
			return err
		}
		if found {
			result = prior
			return nil
		}

		now := r.now()

		apps := make([]PaymentApplication, len(alloc.Applications))
		for i, app := range alloc.Applications {
			app.ID = ApplicationID(uuid.NewString())
			app.CreatedAt = now
			apps[i] = app
		}
		if len(apps) > 0 {
			if err := s.InsertApplications(ctx, apps); err != nil {
				return fmt.Errorf("insert applications: %w", err)
			}
		}

		for _, change := range alloc.StatusChanges {
			if err := s.UpdateQuotaStatus(ctx, change.QuotaID, change.Status); err != nil {
				return fmt.Errorf("quota %s -> %s: %w", change.QuotaID, change.Status, err)
			}
		}

		var credit *PaymentCredit
		if alloc.Remainder.IsPositive() {
			credit = &PaymentCredit{
				ID:        CreditID(uuid.NewString()),
				UnitID:    payment.UnitID,
				PaymentID: payment.ID,
				Amount:    alloc.Remainder,
				Status:    CreditPending,
				CreatedAt: now,
			}
			if err := s.InsertCredit(ctx, *credit); err != nil {
				return fmt.Errorf("insert credit: %w", err)
			}
		}

		if err := s.UpdatePaymentStatus(ctx, payment.ID, PaymentCompleted); err != nil {
			return fmt.Errorf("payment %s -> completed: %w", payment.ID, err)
		}

		result = CommitResult{PaymentID: payment.ID, Applications: apps, Credit: credit}
		return nil
	})
	if err != nil {
		return CommitResult{}, err
	}
	return result, nil
}

// priorResult detects an earlier commit for the payment and reloads its
// outcome. Detection: existing application rows, an existing credit, or
// a payment already marked completed (the zero-quota, zero-surplus case).
func (r *Recorder) priorResult(ctx context.Context, s Store, payment Payment) (CommitResult, bool, error) {
	apps, err := s.ApplicationsByPayment(ctx, payment.ID)
	if err != nil {
		return CommitResult{}, false, fmt.Errorf("prior applications: %w", err)
	}
	credit, err := s.CreditByPayment(ctx, payment.ID)
	if err != nil {
		return CommitResult{}, false, fmt.Errorf("prior credit: %w", err)
	}

	if len(apps) == 0 && credit == nil && payment.Status != PaymentCompleted {
		return CommitResult{}, false, nil
	}

	return CommitResult{
		PaymentID:      payment.ID,
		Applications:   apps,
		Credit:         credit,
		AlreadyApplied: true,
	}, true, nil
}

// checkConservation asserts money in == money recorded out. A violation
// is a programming error in the allocator, never clamped.
func (r *Recorder) checkConservation(payment Payment, alloc Allocation) error {
	applied := alloc.AppliedTotal()
	expected := applied.Add(alloc.Remainder)

	converted := payment.Amount
	if alloc.Rate != nil {
		converted = Money{
			Amount:   payment.Amount.Amount.Mul(alloc.Rate.Rate),
			Currency: alloc.Rate.To,
		}.Round()
	}

	if !expected.Equal(converted) {
		return &ConservationError{
			PaymentID: payment.ID,
			Expected:  converted,
			Applied:   expected,
		}
	}
	return nil
}
