/*
exchange.go - Currency conversion at a value date

PURPOSE:
  Normalizes an incoming payment to the unit's base currency using the
  exchange rate effective on the payment's value date. The rate actually
  used travels with the conversion result so allocation records can store
  it for audit.

RATE SELECTION:
  For a (from, to, date) triple the applicable rate is the one with the
  greatest effectiveDate <= date. No such rate means conversion fails
  with ErrNoRateAvailable; rates are backfilled out of band (e.g. the BCV
  sync) and the caller retries.

ROUNDING:
  Results round to the target currency's minor units, half-even.
  Converting the same nominal amount on the same date always yields the
  same result and the same stored rate reference.
*/
package engine

import (
	"context"
	"fmt"
)

// Conversion is the outcome of converting an amount: the rounded result
// plus the rate that produced it (nil for same-currency identity).
type Conversion struct {
	Money Money
	Rate  *ExchangeRate
}

// Converter converts Money between currencies using dated rates.
type Converter struct {
	Rates RateStore
}

func NewConverter(rates RateStore) *Converter {
	return &Converter{Rates: rates}
}

// Convert converts m to the target currency as of the given date.
// Same-currency conversion is an identity: no rate lookup, no rounding.
func (c *Converter) Convert(ctx context.Context, m Money, to Currency, asOf Date) (Conversion, error) {
	if m.Currency == to {
		return Conversion{Money: m}, nil
	}

	rate, err := c.Rates.LatestRate(ctx, m.Currency, to, asOf)
	if err != nil {
		return Conversion{}, fmt.Errorf("rate lookup %s->%s: %w", m.Currency, to, err)
	}
	if rate == nil {
		return Conversion{}, &NoRateError{From: m.Currency, To: to, AsOf: asOf}
	}

	converted := Money{Amount: m.Amount.Mul(rate.Rate), Currency: to}.Round()
	return Conversion{Money: converted, Rate: rate}, nil
}
