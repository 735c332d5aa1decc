/*
money.go - Exact decimal money with a currency tag

PURPOSE:
  Every monetary value in the engine is a Money: a decimal amount plus a
  currency code. Amounts of different currencies can never be combined
  without an explicit conversion; mixing them is a programming error and
  panics rather than producing a silently wrong balance.

ROUNDING:
  Interest accrual and currency conversion round to the currency's
  minor-unit precision using round-half-even, so repeated conversions of
  the same nominal amount are deterministic.

SEE ALSO:
  - exchange.go: conversion between currencies
*/
package engine

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// RateDecimal is an exchange or interest rate. Not a Money: rates are
// dimensionless multipliers and carry no currency.
type RateDecimal = decimal.Decimal

// =============================================================================
// CURRENCY
// =============================================================================

// Currency is an ISO 4217 code, e.g. "USD", "VES".
type Currency string

const (
	USD Currency = "USD"
	EUR Currency = "EUR"
	VES Currency = "VES"
)

// minorUnits maps currencies to decimal places. Anything unlisted uses 2.
var minorUnits = map[Currency]int32{
	"JPY": 0,
	"CLP": 0,
	"BHD": 3,
	"KWD": 3,
}

// MinorUnits returns the number of decimal places for the currency.
func (c Currency) MinorUnits() int32 {
	if d, ok := minorUnits[c]; ok {
		return d
	}
	return 2
}

// =============================================================================
// MONEY
// =============================================================================

type Money struct {
	Amount   decimal.Decimal
	Currency Currency
}

func NewMoney(amount decimal.Decimal, currency Currency) Money {
	return Money{Amount: amount, Currency: currency}
}

func NewMoneyFromString(amount string, currency Currency) (Money, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	return Money{Amount: d, Currency: currency}, nil
}

// MustMoney parses a decimal string, panicking on malformed input.
// For constants and tests.
func MustMoney(amount string, currency Currency) Money {
	m, err := NewMoneyFromString(amount, currency)
	if err != nil {
		panic(err)
	}
	return m
}

func Zero(currency Currency) Money {
	return Money{Amount: decimal.Zero, Currency: currency}
}

// assertSameCurrency panics on a currency mismatch. Arithmetic across
// currencies without conversion is an invariant violation, never a
// recoverable runtime condition.
func (m Money) assertSameCurrency(other Money) {
	if m.Currency != other.Currency {
		panic(fmt.Sprintf("money: currency mismatch %s vs %s", m.Currency, other.Currency))
	}
}

func (m Money) Add(other Money) Money {
	m.assertSameCurrency(other)
	return Money{Amount: m.Amount.Add(other.Amount), Currency: m.Currency}
}

func (m Money) Sub(other Money) Money {
	m.assertSameCurrency(other)
	return Money{Amount: m.Amount.Sub(other.Amount), Currency: m.Currency}
}

func (m Money) Mul(rate decimal.Decimal) Money {
	return Money{Amount: m.Amount.Mul(rate), Currency: m.Currency}
}

func (m Money) Neg() Money { return Money{Amount: m.Amount.Neg(), Currency: m.Currency} }

func (m Money) IsZero() bool     { return m.Amount.IsZero() }
func (m Money) IsNegative() bool { return m.Amount.IsNegative() }
func (m Money) IsPositive() bool { return m.Amount.IsPositive() }

func (m Money) Equal(other Money) bool {
	m.assertSameCurrency(other)
	return m.Amount.Equal(other.Amount)
}

func (m Money) GreaterThan(other Money) bool {
	m.assertSameCurrency(other)
	return m.Amount.GreaterThan(other.Amount)
}

func (m Money) LessThan(other Money) bool {
	m.assertSameCurrency(other)
	return m.Amount.LessThan(other.Amount)
}

func (m Money) Min(other Money) Money {
	if m.LessThan(other) {
		return m
	}
	return other
}

// Round returns the amount rounded to the currency's minor units using
// round-half-even (banker's rounding).
func (m Money) Round() Money {
	return Money{Amount: m.Amount.RoundBank(m.Currency.MinorUnits()), Currency: m.Currency}
}

// String renders the exact stored amount, e.g. "150.00 USD".
func (m Money) String() string {
	return m.Amount.StringFixed(m.Currency.MinorUnits()) + " " + string(m.Currency)
}
