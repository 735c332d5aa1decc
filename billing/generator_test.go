package billing_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/condoflow/quota-engine/billing"
	"github.com/condoflow/quota-engine/engine"
	"github.com/condoflow/quota-engine/engine/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func seedCondo(t *testing.T, mem *store.Memory, units int, concept engine.PaymentConcept) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < units; i++ {
		unit := engine.Unit{
			ID:           engine.UnitID(string(rune('a' + i))),
			Condominium:  "Torre Este",
			Label:        "apt",
			BaseCurrency: engine.USD,
		}
		if err := mem.InsertUnit(ctx, unit); err != nil {
			t.Fatalf("insert unit: %v", err)
		}
	}
	if err := mem.InsertConcept(ctx, concept); err != nil {
		t.Fatalf("insert concept: %v", err)
	}
}

func monthlyConcept(id string, amount string, dueDay int) engine.PaymentConcept {
	return engine.PaymentConcept{
		ID:         engine.ConceptID(id),
		Name:       "maintenance",
		Type:       engine.ConceptMaintenance,
		Recurrence: engine.RecurMonthly,
		Amount:     engine.MustMoney(amount, engine.USD),
		DueDay:     dueDay,
	}
}

// =============================================================================
// GENERATION
// =============================================================================

func TestGenerate_OneQuotaPerUnitAndIdempotent(t *testing.T) {
	// GIVEN: 3 units and a monthly concept
	// WHEN: generating March twice
	// THEN: 3 quotas the first time, 0 new ones the second

	mem := store.NewMemory()
	seedCondo(t, mem, 3, monthlyConcept("c1", "50", 5))
	gen := billing.NewGenerator(mem)

	first, err := gen.GenerateForPeriod(context.Background(), 2024, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Created != 3 || first.Skipped != 0 {
		t.Errorf("first run: expected 3 created, got %+v", first)
	}

	second, err := gen.GenerateForPeriod(context.Background(), 2024, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.Created != 0 || second.Skipped != 3 {
		t.Errorf("second run: expected 3 skipped, got %+v", second)
	}

	quotas, err := mem.QuotasByUnit(context.Background(), "a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(quotas) != 1 {
		t.Fatalf("expected 1 quota for unit a, got %d", len(quotas))
	}
	q := quotas[0]
	if q.Status != engine.QuotaPending {
		t.Errorf("expected pending, got %s", q.Status)
	}
	if !q.DueDate.Equal(engine.NewDate(2024, time.March, 5)) {
		t.Errorf("expected due 2024-03-05, got %s", q.DueDate)
	}
	if !q.BaseAmount.Equal(engine.MustMoney("50", engine.USD)) {
		t.Errorf("expected base 50, got %s", q.BaseAmount)
	}
}

func TestGenerate_RecurrenceAnchoredAtJanuary(t *testing.T) {
	// Quarterly concepts bill in Jan/Apr/Jul/Oct only.
	mem := store.NewMemory()
	concept := monthlyConcept("c-q", "300", 1)
	concept.Recurrence = engine.RecurQuarterly
	seedCondo(t, mem, 1, concept)
	gen := billing.NewGenerator(mem)

	for month, wantCreated := range map[int]int{1: 1, 2: 0, 3: 0, 4: 1, 7: 1, 10: 1, 12: 0} {
		got, err := gen.GenerateForPeriod(context.Background(), 2024, month)
		if err != nil {
			t.Fatalf("month %d: unexpected error: %v", month, err)
		}
		if got.Created != wantCreated {
			t.Errorf("month %d: expected %d created, got %d", month, wantCreated, got.Created)
		}
	}
}

func TestGenerate_DueDayClampedToMonthEnd(t *testing.T) {
	// Due day 31 in February lands on the last day of February.
	mem := store.NewMemory()
	seedCondo(t, mem, 1, monthlyConcept("c1", "50", 31))
	gen := billing.NewGenerator(mem)

	if _, err := gen.GenerateForPeriod(context.Background(), 2024, 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	quotas, err := mem.QuotasByUnit(context.Background(), "a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !quotas[0].DueDate.Equal(engine.NewDate(2024, time.February, 29)) {
		t.Errorf("expected due 2024-02-29 (leap year), got %s", quotas[0].DueDate)
	}
}

func TestGenerate_InvalidMonth(t *testing.T) {
	gen := billing.NewGenerator(store.NewMemory())
	if _, err := gen.GenerateForPeriod(context.Background(), 2024, 13); err == nil {
		t.Fatal("expected error for month 13")
	}
}

func TestGenerate_RejectsConceptCurrencyMismatch(t *testing.T) {
	// GIVEN: USD units and a concept billing in VES
	// WHEN: generating a period
	// THEN: an error naming the mismatch, and no quota created

	mem := store.NewMemory()
	concept := monthlyConcept("c-ves", "400", 5)
	concept.Amount = engine.MustMoney("400", engine.VES)
	seedCondo(t, mem, 1, concept)
	gen := billing.NewGenerator(mem)

	_, err := gen.GenerateForPeriod(context.Background(), 2024, 3)
	if !errors.Is(err, engine.ErrCurrencyMismatch) {
		t.Fatalf("expected ErrCurrencyMismatch, got %v", err)
	}

	quotas, err := mem.QuotasByUnit(context.Background(), "a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(quotas) != 0 {
		t.Errorf("expected no quotas, got %d", len(quotas))
	}
}

// =============================================================================
// CATCH-UP AFTER DOWNTIME
// =============================================================================

func TestCatchUp_BackfillsSkippedPeriods(t *testing.T) {
	// GIVEN: January was the last period materialized
	// WHEN: catching up to March (the scheduler was down through February)
	// THEN: February and March are generated, January stays untouched

	mem := store.NewMemory()
	seedCondo(t, mem, 1, monthlyConcept("c1", "50", 5))
	gen := billing.NewGenerator(mem)

	if _, err := gen.GenerateForPeriod(context.Background(), 2024, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	results, err := gen.CatchUp(context.Background(), 2024, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected runs for Jan..Mar, got %d", len(results))
	}
	if results[0].Created != 0 || results[0].Skipped != 1 {
		t.Errorf("January should be a no-op, got %+v", results[0])
	}
	for _, r := range results[1:] {
		if r.Created != 1 {
			t.Errorf("period %d-%02d: expected 1 created, got %d", r.PeriodYear, r.PeriodMonth, r.Created)
		}
	}

	quotas, err := mem.QuotasByUnit(context.Background(), "a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(quotas) != 3 {
		t.Fatalf("expected 3 quotas, got %d", len(quotas))
	}
}

func TestCatchUp_EmptyStore_GeneratesOnlyGivenPeriod(t *testing.T) {
	mem := store.NewMemory()
	seedCondo(t, mem, 1, monthlyConcept("c1", "50", 5))
	gen := billing.NewGenerator(mem)

	results, err := gen.CatchUp(context.Background(), 2024, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || results[0].PeriodMonth != 3 || results[0].Created != 1 {
		t.Fatalf("expected a single March run, got %+v", results)
	}
}

// =============================================================================
// OVERDUE SWEEP
// =============================================================================

func TestOverdueSweep_MarksOnlyPastDuePending(t *testing.T) {
	// GIVEN: a past-due pending quota, a future pending quota, and a
	//        past-due partially_paid quota
	// WHEN: sweeping as of Feb 15
	// THEN: only the past-due pending quota transitions to overdue

	mem := store.NewMemory()
	ctx := context.Background()

	insert := func(id string, due engine.Date, status engine.QuotaStatus) {
		err := mem.InsertQuota(ctx, engine.Quota{
			ID: engine.QuotaID(id), UnitID: "u1", ConceptID: "c1",
			DueDate:    due,
			BaseAmount: engine.MustMoney("50", engine.USD),
			Status:     status,
		})
		if err != nil {
			t.Fatalf("insert quota: %v", err)
		}
	}
	insert("q-past", engine.NewDate(2024, time.January, 5), engine.QuotaPending)
	insert("q-future", engine.NewDate(2024, time.March, 5), engine.QuotaPending)
	insert("q-partial", engine.NewDate(2024, time.January, 5), engine.QuotaPartiallyPaid)

	sweep := billing.NewOverdueSweep(mem)
	marked, err := sweep.Run(ctx, engine.NewDate(2024, time.February, 15))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if marked != 1 {
		t.Errorf("expected 1 marked, got %d", marked)
	}

	wantStatus := map[engine.QuotaID]engine.QuotaStatus{
		"q-past":    engine.QuotaOverdue,
		"q-future":  engine.QuotaPending,
		"q-partial": engine.QuotaPartiallyPaid,
	}
	for id, want := range wantStatus {
		q, err := mem.GetQuota(ctx, id)
		if err != nil {
			t.Fatalf("get quota: %v", err)
		}
		if q.Status != want {
			t.Errorf("%s: expected %s, got %s", id, want, q.Status)
		}
	}

	// Re-running is a no-op.
	again, err := sweep.Run(ctx, engine.NewDate(2024, time.February, 15))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again != 0 {
		t.Errorf("second sweep should mark nothing, got %d", again)
	}
}
