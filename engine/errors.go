/*
errors.go - Centralized error types for the allocation engine

ERROR CATEGORIES:
  1. Configuration errors - a missing exchange rate aborts allocation and
     is retried later once rates are backfilled; a missing interest
     configuration is NOT an error (it is a defined zero-interest outcome)
  2. Conflict errors - duplicate allocation attempts, resolved by
     returning the prior result, never by re-running allocation
  3. Consistency violations - conservation breaches; fatal, never clamped
  4. Client errors - bad references, closed quotas, resolved credits

USAGE:
  if engine.IsRetryable(err) {
      // requeue: rates are eventually backfilled
  }
*/
package engine

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNoRateAvailable is returned when no exchange rate with
	// effectiveDate <= the requested date exists for a currency pair.
	// Allocation aborts entirely; the caller retries once rates arrive.
	ErrNoRateAvailable = errors.New("no exchange rate available")

	// ErrAlreadyAllocated marks a commit attempt for a payment that
	// already has applications recorded. The recorder resolves this by
	// returning the prior result.
	ErrAlreadyAllocated = errors.New("payment already allocated")

	// ErrConservation signals that the sum of applications plus remainder
	// diverged from the converted payment amount. This is an invariant
	// violation: the transaction is aborted, nothing is clamped.
	ErrConservation = errors.New("allocation conservation violated")

	// ErrOverpayment is returned under the reject policy when a payment
	// exceeds the unit's total outstanding balance.
	ErrOverpayment = errors.New("payment exceeds outstanding balance")

	ErrPaymentNotFound = errors.New("payment not found")
	ErrQuotaNotFound   = errors.New("quota not found")
	ErrUnitNotFound    = errors.New("unit not found")
	ErrCreditNotFound  = errors.New("credit not found")

	// ErrPaymentNotAllocatable is returned when a payment's status does
	// not admit allocation (failed, refunded, rejected).
	ErrPaymentNotAllocatable = errors.New("payment status does not allow allocation")

	// ErrQuotaClosed is returned when targeting a paid or cancelled quota.
	ErrQuotaClosed = errors.New("quota is not open")

	// ErrCreditResolved is returned when re-resolving an already
	// allocated or refunded credit.
	ErrCreditResolved = errors.New("credit already resolved")

	// ErrConfigOverlap is returned when an interest configuration's
	// validity window overlaps an existing one for the same concept.
	ErrConfigOverlap = errors.New("interest configuration windows overlap")

	// ErrUnsupportedInterestType is returned for configuration types the
	// calculator does not implement (e.g. compound).
	ErrUnsupportedInterestType = errors.New("unsupported interest type")

	// ErrInterestDisabled is returned when attaching an interest
	// configuration to a concept whose applies_interest flag is off.
	ErrInterestDisabled = errors.New("concept does not apply interest")

	// ErrCurrencyMismatch is returned when a quota is denominated in a
	// currency other than its unit's base currency. The engine refuses
	// to mix currencies inside an allocation rather than guess a
	// conversion.
	ErrCurrencyMismatch = errors.New("quota currency differs from unit base currency")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// NoRateError carries the currency pair and date that had no rate.
type NoRateError struct {
	From Currency
	To   Currency
	AsOf Date
}

func (e *NoRateError) Error() string {
	return fmt.Sprintf("no exchange rate %s->%s effective on or before %s", e.From, e.To, e.AsOf)
}

func (e *NoRateError) Unwrap() error { return ErrNoRateAvailable }

// OverpaymentError carries the surplus under the reject policy.
type OverpaymentError struct {
	PaymentID PaymentID
	Surplus   Money
}

func (e *OverpaymentError) Error() string {
	return fmt.Sprintf("payment %s exceeds outstanding balance by %s", e.PaymentID, e.Surplus)
}

func (e *OverpaymentError) Unwrap() error { return ErrOverpayment }

// ConservationError reports the exact divergence for the alert.
type ConservationError struct {
	PaymentID PaymentID
	Expected  Money
	Applied   Money
}

func (e *ConservationError) Error() string {
	return fmt.Sprintf("payment %s: applied %s does not reconcile with %s", e.PaymentID, e.Applied, e.Expected)
}

func (e *ConservationError) Unwrap() error { return ErrConservation }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the operation may succeed on a later retry
// without operator intervention.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrNoRateAvailable)
}

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrPaymentNotAllocatable) ||
		errors.Is(err, ErrQuotaClosed) ||
		errors.Is(err, ErrCreditResolved) ||
		errors.Is(err, ErrConfigOverlap) ||
		errors.Is(err, ErrUnsupportedInterestType) ||
		errors.Is(err, ErrInterestDisabled) ||
		errors.Is(err, ErrCurrencyMismatch) ||
		errors.Is(err, ErrOverpayment)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPaymentNotFound) ||
		errors.Is(err, ErrQuotaNotFound) ||
		errors.Is(err, ErrUnitNotFound) ||
		errors.Is(err, ErrCreditNotFound)
}
