package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/condoflow/quota-engine/engine"
	"github.com/condoflow/quota-engine/engine/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func date(y int, m time.Month, d int) engine.Date { return engine.NewDate(y, m, d) }

func rate(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func simpleMonthly(conceptID engine.ConceptID, r string, grace int, from engine.Date, to *engine.Date) engine.InterestConfiguration {
	return engine.InterestConfiguration{
		ID:            engine.ConfigID("cfg-" + r + "-" + from.String()),
		ConceptID:     conceptID,
		Name:          "simple " + r,
		Type:          engine.InterestSimple,
		Rate:          rate(r),
		Period:        engine.PerMonth,
		GraceDays:     grace,
		EffectiveFrom: from,
		EffectiveTo:   to,
	}
}

func interestConcept(id engine.ConceptID, applies bool) engine.PaymentConcept {
	return engine.PaymentConcept{
		ID:              id,
		Name:            "maintenance",
		Type:            engine.ConceptMaintenance,
		Recurrence:      engine.RecurMonthly,
		Amount:          engine.MustMoney("50", engine.USD),
		DueDay:          1,
		AppliesInterest: applies,
	}
}

func newCalculator(t *testing.T, configs ...engine.InterestConfiguration) *engine.InterestCalculator {
	t.Helper()
	mem := store.NewMemory()
	seeded := make(map[engine.ConceptID]bool)
	for _, c := range configs {
		if !seeded[c.ConceptID] {
			seeded[c.ConceptID] = true
			if err := mem.InsertConcept(context.Background(), interestConcept(c.ConceptID, true)); err != nil {
				t.Fatalf("insert concept: %v", err)
			}
		}
		if err := mem.InsertConfig(context.Background(), c); err != nil {
			t.Fatalf("insert config: %v", err)
		}
	}
	return engine.NewInterestCalculator(mem)
}

// =============================================================================
// ZERO-INTEREST CASES
// =============================================================================

func TestInterest_NoConfiguration_IsZeroNotError(t *testing.T) {
	// GIVEN: a concept with no interest configuration
	// WHEN: computing accrued interest well past the due date
	// THEN: zero, and no error

	calc := newCalculator(t)
	got, err := calc.AccruedInterest(context.Background(), "c1",
		date(2024, time.January, 1), engine.MustMoney("100", engine.USD), date(2024, time.June, 1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.IsZero() {
		t.Errorf("expected zero interest, got %s", got)
	}
}

func TestInterest_OnOrBeforeDueDate_IsZero(t *testing.T) {
	calc := newCalculator(t, simpleMonthly("c1", "0.03", 0, date(2023, time.January, 1), nil))

	due := date(2024, time.January, 15)
	for _, asOf := range []engine.Date{date(2024, time.January, 1), due} {
		got, err := calc.AccruedInterest(context.Background(), "c1", due,
			engine.MustMoney("100", engine.USD), asOf)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !got.IsZero() {
			t.Errorf("asOf %s: expected zero, got %s", asOf, got)
		}
	}
}

func TestInterest_ConceptWithoutInterestFlag_IsZero(t *testing.T) {
	// GIVEN: a concept with applies_interest off, but a configuration on
	//        record anyway
	// WHEN: computing accrued interest well past the due date
	// THEN: zero - the concept's flag wins over the configuration

	mem := store.NewMemory()
	ctx := context.Background()
	if err := mem.InsertConcept(ctx, interestConcept("c-flat", false)); err != nil {
		t.Fatalf("insert concept: %v", err)
	}
	if err := mem.InsertConfig(ctx, simpleMonthly("c-flat", "0.03", 0, date(2023, time.January, 1), nil)); err != nil {
		t.Fatalf("insert config: %v", err)
	}

	calc := engine.NewInterestCalculator(mem)
	got, err := calc.AccruedInterest(ctx, "c-flat",
		date(2024, time.January, 1), engine.MustMoney("100", engine.USD), date(2024, time.June, 1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.IsZero() {
		t.Errorf("expected zero interest, got %s", got)
	}
}

func TestInterest_ZeroPrincipal_IsZero(t *testing.T) {
	calc := newCalculator(t, simpleMonthly("c1", "0.03", 0, date(2023, time.January, 1), nil))

	got, err := calc.AccruedInterest(context.Background(), "c1",
		date(2024, time.January, 1), engine.Zero(engine.USD), date(2024, time.June, 1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.IsZero() {
		t.Errorf("expected zero, got %s", got)
	}
}

// =============================================================================
// GRACE PERIOD
// =============================================================================

func TestInterest_GracePeriod_Boundary(t *testing.T) {
	// GIVEN: due 2024-01-01 with 5 grace days, 3%/month simple
	// WHEN: asOf is within grace, at grace end, and 4 days past grace
	// THEN: zero, zero, then 4 days of accrual

	calc := newCalculator(t, simpleMonthly("c1", "0.03", 5, date(2023, time.January, 1), nil))
	due := date(2024, time.January, 1)
	principal := engine.MustMoney("100", engine.USD)

	within, err := calc.AccruedInterest(context.Background(), "c1", due, principal, date(2024, time.January, 5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !within.IsZero() {
		t.Errorf("within grace: expected zero, got %s", within)
	}

	atEnd, err := calc.AccruedInterest(context.Background(), "c1", due, principal, date(2024, time.January, 6))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !atEnd.IsZero() {
		t.Errorf("at grace end: expected zero, got %s", atEnd)
	}

	// 4 days past grace end: 100 * 0.03 * 4/30 = 0.40
	past, err := calc.AccruedInterest(context.Background(), "c1", due, principal, date(2024, time.January, 10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := engine.MustMoney("0.40", engine.USD); !past.Equal(want) {
		t.Errorf("past grace: expected %s, got %s", want, past)
	}
}

// =============================================================================
// SIMPLE ACCRUAL AND DAY-COUNT CONVENTION
// =============================================================================

func TestInterest_SimpleMonthly_ThirtyDayConvention(t *testing.T) {
	// 30 days late at 3%/month on 200.00 = exactly one period = 6.00
	calc := newCalculator(t, simpleMonthly("c1", "0.03", 0, date(2023, time.January, 1), nil))

	got, err := calc.AccruedInterest(context.Background(), "c1",
		date(2024, time.March, 1), engine.MustMoney("200", engine.USD), date(2024, time.March, 31))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := engine.MustMoney("6.00", engine.USD); !got.Equal(want) {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestInterest_PiecewiseAcrossConfigChange(t *testing.T) {
	// GIVEN: 3%/month until 2024-02-01, then 6%/month open-ended
	// WHEN: quota due 2024-01-01 is still unpaid on 2024-03-02
	// THEN: 31 days at 3% (3.10) plus 30 days at 6% (6.00) = 9.10

	feb1 := date(2024, time.February, 1)
	calc := newCalculator(t,
		simpleMonthly("c1", "0.03", 0, date(2024, time.January, 1), &feb1),
		simpleMonthly("c1", "0.06", 0, feb1, nil),
	)

	got, err := calc.AccruedInterest(context.Background(), "c1",
		date(2024, time.January, 1), engine.MustMoney("100", engine.USD), date(2024, time.March, 2))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := engine.MustMoney("9.10", engine.USD); !got.Equal(want) {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestInterest_FixedAmount_FlatFeePastGrace(t *testing.T) {
	calc := newCalculator(t, engine.InterestConfiguration{
		ID:            "cfg-late-fee",
		ConceptID:     "c1",
		Name:          "flat late fee",
		Type:          engine.InterestFixedAmount,
		FixedAmount:   engine.MustMoney("15", engine.USD),
		Period:        engine.PerMonth,
		GraceDays:     3,
		EffectiveFrom: date(2023, time.January, 1),
	})
	due := date(2024, time.January, 1)
	principal := engine.MustMoney("100", engine.USD)

	within, err := calc.AccruedInterest(context.Background(), "c1", due, principal, date(2024, time.January, 3))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !within.IsZero() {
		t.Errorf("within grace: expected zero, got %s", within)
	}

	// The fee does not grow with lateness.
	for _, asOf := range []engine.Date{date(2024, time.January, 10), date(2024, time.June, 1)} {
		got, err := calc.AccruedInterest(context.Background(), "c1", due, principal, asOf)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if want := engine.MustMoney("15.00", engine.USD); !got.Equal(want) {
			t.Errorf("asOf %s: expected %s, got %s", asOf, want, got)
		}
	}
}

// =============================================================================
// CONFIGURATION VALIDATION
// =============================================================================

func TestValidateConfiguration_RejectsOverlap(t *testing.T) {
	feb1 := date(2024, time.February, 1)
	existing := []engine.InterestConfiguration{
		simpleMonthly("c1", "0.03", 0, date(2024, time.January, 1), &feb1),
	}

	overlapping := simpleMonthly("c1", "0.05", 0, date(2024, time.January, 15), nil)
	err := engine.ValidateConfiguration(overlapping, existing)
	if !errors.Is(err, engine.ErrConfigOverlap) {
		t.Errorf("expected ErrConfigOverlap, got %v", err)
	}

	// Adjacent half-open windows do not overlap.
	adjacent := simpleMonthly("c1", "0.05", 0, feb1, nil)
	if err := engine.ValidateConfiguration(adjacent, existing); err != nil {
		t.Errorf("adjacent windows should validate, got %v", err)
	}
}

func TestValidateConfiguration_RejectsCompound(t *testing.T) {
	cfg := engine.InterestConfiguration{
		ID:            "cfg-compound",
		ConceptID:     "c1",
		Type:          engine.InterestType("compound"),
		EffectiveFrom: date(2024, time.January, 1),
	}
	err := engine.ValidateConfiguration(cfg, nil)
	if !errors.Is(err, engine.ErrUnsupportedInterestType) {
		t.Errorf("expected ErrUnsupportedInterestType, got %v", err)
	}
}
