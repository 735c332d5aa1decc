package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/condoflow/quota-engine/engine"
	"github.com/condoflow/quota-engine/engine/store"
)

func seedQuota(t *testing.T, mem *store.Memory, q engine.Quota) {
	t.Helper()
	if err := mem.InsertQuota(context.Background(), q); err != nil {
		t.Fatalf("insert quota: %v", err)
	}
}

func pendingQuota(id string, due engine.Date, amount string) engine.Quota {
	return engine.Quota{
		ID:         engine.QuotaID(id),
		UnitID:     "unit-1",
		ConceptID:  "c1",
		DueDate:    due,
		BaseAmount: engine.MustMoney(amount, engine.USD),
		Status:     engine.QuotaPending,
	}
}

func TestBalanceOf_BaseAmountOnly(t *testing.T) {
	mem := store.NewMemory()
	q := pendingQuota("q1", date(2024, time.January, 1), "150")
	seedQuota(t, mem, q)

	view := engine.NewLedgerView(mem)
	b, err := view.BalanceOf(context.Background(), q, date(2024, time.January, 1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if want := engine.MustMoney("150", engine.USD); !b.OutstandingPrincipal.Equal(want) {
		t.Errorf("expected principal %s, got %s", want, b.OutstandingPrincipal)
	}
	if !b.AccruedInterest.IsZero() {
		t.Errorf("no configuration: interest must be zero, got %s", b.AccruedInterest)
	}
}

func TestBalanceOf_AdjustmentsShiftPrincipal(t *testing.T) {
	// GIVEN: a 150 quota discounted to 120, then corrected to 130
	// WHEN: projecting the balance
	// THEN: effective principal is 130 (base + sum of deltas)

	mem := store.NewMemory()
	q := pendingQuota("q1", date(2024, time.January, 1), "150")
	seedQuota(t, mem, q)

	ctx := context.Background()
	mem.InsertAdjustment(ctx, engine.QuotaAdjustment{
		ID: "a1", QuotaID: "q1", Type: engine.AdjustDiscount,
		PreviousAmount: engine.MustMoney("150", engine.USD),
		NewAmount:      engine.MustMoney("120", engine.USD),
		CreatedAt:      time.Date(2024, time.January, 5, 10, 0, 0, 0, time.UTC),
	})
	mem.InsertAdjustment(ctx, engine.QuotaAdjustment{
		ID: "a2", QuotaID: "q1", Type: engine.AdjustCorrection,
		PreviousAmount: engine.MustMoney("120", engine.USD),
		NewAmount:      engine.MustMoney("130", engine.USD),
		CreatedAt:      time.Date(2024, time.January, 8, 10, 0, 0, 0, time.UTC),
	})

	view := engine.NewLedgerView(mem)
	b, err := view.BalanceOf(ctx, q, date(2024, time.February, 1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := engine.MustMoney("130", engine.USD); !b.OutstandingPrincipal.Equal(want) {
		t.Errorf("expected principal %s, got %s", want, b.OutstandingPrincipal)
	}

	// As of a date before the correction, only the discount applies.
	earlier, err := view.BalanceOf(ctx, q, date(2024, time.January, 6))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := engine.MustMoney("120", engine.USD); !earlier.OutstandingPrincipal.Equal(want) {
		t.Errorf("expected principal %s as of Jan 6, got %s", want, earlier.OutstandingPrincipal)
	}
}

func TestBalanceOf_ApplicationsReducePrincipal(t *testing.T) {
	mem := store.NewMemory()
	q := pendingQuota("q1", date(2024, time.January, 1), "100")
	seedQuota(t, mem, q)

	ctx := context.Background()
	mem.InsertApplications(ctx, []engine.PaymentApplication{{
		ID: "app1", PaymentID: "p1", QuotaID: "q1",
		AppliedAmount:      engine.MustMoney("30", engine.USD),
		AppliedToPrincipal: engine.MustMoney("30", engine.USD),
		AppliedToInterest:  engine.Zero(engine.USD),
	}})

	view := engine.NewLedgerView(mem)
	b, err := view.BalanceOf(ctx, q, date(2024, time.January, 1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := engine.MustMoney("70", engine.USD); !b.OutstandingPrincipal.Equal(want) {
		t.Errorf("expected principal %s, got %s", want, b.OutstandingPrincipal)
	}
}

func TestBalanceOf_OverappliedPrincipal_ConservationError(t *testing.T) {
	// The logs contradict each other: more principal applied than the
	// quota is worth. The projection refuses to produce a negative.
	mem := store.NewMemory()
	q := pendingQuota("q1", date(2024, time.January, 1), "100")
	seedQuota(t, mem, q)

	ctx := context.Background()
	mem.InsertApplications(ctx, []engine.PaymentApplication{{
		ID: "app1", PaymentID: "p1", QuotaID: "q1",
		AppliedAmount:      engine.MustMoney("120", engine.USD),
		AppliedToPrincipal: engine.MustMoney("120", engine.USD),
		AppliedToInterest:  engine.Zero(engine.USD),
	}})

	view := engine.NewLedgerView(mem)
	_, err := view.BalanceOf(ctx, q, date(2024, time.January, 1))
	if !errors.Is(err, engine.ErrConservation) {
		t.Fatalf("expected ErrConservation, got %v", err)
	}
}

func TestOutstandingQuotas_OrderedOldestFirst(t *testing.T) {
	mem := store.NewMemory()
	seedQuota(t, mem, pendingQuota("q-mar", date(2024, time.March, 1), "100"))
	seedQuota(t, mem, pendingQuota("q-jan", date(2024, time.January, 1), "100"))
	seedQuota(t, mem, pendingQuota("q-feb", date(2024, time.February, 1), "100"))

	// Paid quotas are excluded from the snapshot.
	paid := pendingQuota("q-paid", date(2023, time.December, 1), "100")
	paid.Status = engine.QuotaPaid
	seedQuota(t, mem, paid)

	view := engine.NewLedgerView(mem)
	balances, err := view.OutstandingQuotas(context.Background(), "unit-1", date(2024, time.April, 1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []engine.QuotaID{"q-jan", "q-feb", "q-mar"}
	if len(balances) != len(want) {
		t.Fatalf("expected %d balances, got %d", len(want), len(balances))
	}
	for i, id := range want {
		if balances[i].Quota.ID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, balances[i].Quota.ID)
		}
	}
}
