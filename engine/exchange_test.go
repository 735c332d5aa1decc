package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/condoflow/quota-engine/engine"
	"github.com/condoflow/quota-engine/engine/store"
)

func newConverter(t *testing.T, rates ...engine.ExchangeRate) *engine.Converter {
	t.Helper()
	mem := store.NewMemory()
	for _, r := range rates {
		if err := mem.InsertRate(context.Background(), r); err != nil {
			t.Fatalf("insert rate: %v", err)
		}
	}
	return engine.NewConverter(mem)
}

func usdVes(id string, r string, effective engine.Date) engine.ExchangeRate {
	return engine.ExchangeRate{
		ID:            engine.RateID(id),
		From:          engine.USD,
		To:            engine.VES,
		Rate:          rate(r),
		EffectiveDate: effective,
		Source:        "BCV",
	}
}

func TestConvert_SameCurrency_Identity(t *testing.T) {
	// Same-currency conversion never consults the rate store and never
	// rounds: "36.505 USD" stays exact.
	conv := newConverter(t)

	m := engine.MustMoney("36.505", engine.USD)
	got, err := conv.Convert(context.Background(), m, engine.USD, date(2024, time.March, 1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Money.Equal(m) {
		t.Errorf("expected identity, got %s", got.Money)
	}
	if got.Rate != nil {
		t.Errorf("identity conversion must not reference a rate")
	}
}

func TestConvert_PicksLatestRateOnOrBeforeDate(t *testing.T) {
	// GIVEN: rates effective Jan 1 (36.0) and Mar 1 (40.0)
	// WHEN: converting with value date Feb 15
	// THEN: the Jan 1 rate applies, and travels with the result

	conv := newConverter(t,
		usdVes("r1", "36.0", date(2024, time.January, 1)),
		usdVes("r2", "40.0", date(2024, time.March, 1)),
	)

	got, err := conv.Convert(context.Background(),
		engine.MustMoney("10", engine.USD), engine.VES, date(2024, time.February, 15))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := engine.MustMoney("360", engine.VES); !got.Money.Equal(want) {
		t.Errorf("expected %s, got %s", want, got.Money)
	}
	if got.Rate == nil || got.Rate.ID != "r1" {
		t.Errorf("expected rate r1 to be recorded, got %+v", got.Rate)
	}
}

func TestConvert_Deterministic(t *testing.T) {
	conv := newConverter(t, usdVes("r1", "36.18", date(2024, time.January, 1)))

	first, err := conv.Convert(context.Background(),
		engine.MustMoney("123.45", engine.USD), engine.VES, date(2024, time.June, 1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := conv.Convert(context.Background(),
		engine.MustMoney("123.45", engine.USD), engine.VES, date(2024, time.June, 1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !first.Money.Equal(second.Money) || first.Rate.ID != second.Rate.ID {
		t.Errorf("conversion is not deterministic: %s vs %s", first.Money, second.Money)
	}
}

func TestConvert_NoRate_RetryableError(t *testing.T) {
	// A rate effective only after the value date does not apply.
	conv := newConverter(t, usdVes("r1", "36.0", date(2024, time.March, 1)))

	_, err := conv.Convert(context.Background(),
		engine.MustMoney("10", engine.USD), engine.VES, date(2024, time.February, 1))

	if !errors.Is(err, engine.ErrNoRateAvailable) {
		t.Fatalf("expected ErrNoRateAvailable, got %v", err)
	}
	if !engine.IsRetryable(err) {
		t.Errorf("missing rate must be retryable")
	}
	var nre *engine.NoRateError
	if !errors.As(err, &nre) {
		t.Fatalf("expected NoRateError, got %T", err)
	}
	if nre.From != engine.USD || nre.To != engine.VES {
		t.Errorf("error should carry the pair, got %+v", nre)
	}
}
