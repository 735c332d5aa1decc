/*
Package engine provides the core quota and payment allocation engine.

PURPOSE:
  This package contains the domain types and algorithms for managing
  recurring condominium fees ("quotas"), payments against them, interest
  on arrears, and manual balance corrections. The central subsystem is
  the allocation path: take a completed payment, convert it to the unit's
  base currency, determine how much interest each outstanding quota has
  accrued, and split the payment across quotas and between principal and
  interest, exactly and idempotently.

KEY CONCEPTS IN THIS FILE (types.go):
  - Date: a calendar day (all billing math is day-granular)
  - Unit / PaymentConcept: who owes, and what kind of fee
  - Quota: one billing obligation for a unit in a period
  - QuotaAdjustment: an immutable correction to a quota's amount
  - InterestConfiguration: a time-windowed arrears-interest policy
  - ExchangeRate: dated conversion factor between currencies
  - Payment / PaymentApplication: money in, and how it was applied
  - PaymentCredit: an unapplied surplus held for a unit

DESIGN PRINCIPLES:
  1. Immutability: adjustments and applications are never edited, only
     offset by new records
  2. Precision: decimal.Decimal for every monetary value, never float64
  3. Projection: balances are always computed from the ledger, never
     stored as a separately-mutated running total

SEE ALSO:
  - money.go: Money and Currency
  - ledgerview.go: outstanding-balance projection
  - allocation.go: the allocation algorithm
*/
package engine

import (
	"time"
)

// =============================================================================
// DATE - Calendar day (all due dates, effective dates, value dates)
// =============================================================================

// Date is a day-granular point in time, normalized to UTC midnight.
type Date struct {
	Time time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

func Today() Date { return DateOf(time.Now().UTC()) }

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, err
	}
	return DateOf(t), nil
}

func (d Date) normalize() time.Time {
	return time.Date(d.Time.Year(), d.Time.Month(), d.Time.Day(), 0, 0, 0, 0, time.UTC)
}

func (d Date) Before(other Date) bool        { return d.normalize().Before(other.normalize()) }
func (d Date) After(other Date) bool         { return d.normalize().After(other.normalize()) }
func (d Date) Equal(other Date) bool         { return d.normalize().Equal(other.normalize()) }
func (d Date) BeforeOrEqual(other Date) bool { return d.Before(other) || d.Equal(other) }
func (d Date) AfterOrEqual(other Date) bool  { return d.After(other) || d.Equal(other) }
func (d Date) IsZero() bool                  { return d.Time.IsZero() }

func (d Date) AddDays(n int) Date   { return DateOf(d.Time.AddDate(0, 0, n)) }
func (d Date) AddMonths(n int) Date { return DateOf(d.Time.AddDate(0, n, 0)) }

func (d Date) Min(other Date) Date {
	if other.Before(d) {
		return other
	}
	return d
}

func (d Date) Max(other Date) Date {
	if other.After(d) {
		return other
	}
	return d
}

func (d Date) String() string { return d.normalize().Format("2006-01-02") }

// DaysBetween returns the whole days from 'from' to 'to' (negative if to < from).
func DaysBetween(from, to Date) int {
	return int(to.normalize().Sub(from.normalize()).Hours() / 24)
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type UnitID string
type ConceptID string
type QuotaID string
type PaymentID string
type ApplicationID string
type AdjustmentID string
type ConfigID string
type RateID string
type CreditID string

// =============================================================================
// UNIT - The obligor: one apartment/office in the condominium
// =============================================================================

type Unit struct {
	ID           UnitID
	Condominium  string
	Label        string // e.g. "Tower A / 4-B"
	BaseCurrency Currency
	CreatedAt    time.Time
}

// =============================================================================
// PAYMENT CONCEPT - The recurring fee type quotas are generated from
// =============================================================================

type ConceptType string

const (
	ConceptMaintenance    ConceptType = "maintenance"
	ConceptCondominiumFee ConceptType = "condominium_fee"
	ConceptExtraordinary  ConceptType = "extraordinary"
	ConceptFine           ConceptType = "fine"
)

type Recurrence string

const (
	RecurMonthly    Recurrence = "monthly"
	RecurQuarterly  Recurrence = "quarterly"
	RecurSemiAnnual Recurrence = "semi_annual"
	RecurAnnual     Recurrence = "annual"
)

// Months returns the length of one recurrence period in months.
func (r Recurrence) Months() int {
	switch r {
	case RecurQuarterly:
		return 3
	case RecurSemiAnnual:
		return 6
	case RecurAnnual:
		return 12
	default:
		return 1
	}
}

type PaymentConcept struct {
	ID              ConceptID
	Name            string
	Type            ConceptType
	Recurrence      Recurrence
	Amount          Money // fixed formula amount per period
	DueDay          int   // day of month the quota falls due
	AppliesInterest bool
	CreatedAt       time.Time
}

// =============================================================================
// QUOTA - One billing obligation for a unit in a given period
// =============================================================================

type QuotaStatus string

const (
	QuotaPending       QuotaStatus = "pending"
	QuotaPartiallyPaid QuotaStatus = "partially_paid"
	QuotaPaid          QuotaStatus = "paid"
	QuotaOverdue       QuotaStatus = "overdue"
	QuotaCancelled     QuotaStatus = "cancelled"
)

// Open reports whether the quota can still receive allocations.
func (s QuotaStatus) Open() bool {
	return s == QuotaPending || s == QuotaPartiallyPaid || s == QuotaOverdue
}

// Terminal reports whether the status admits no further transitions.
func (s QuotaStatus) Terminal() bool {
	return s == QuotaPaid || s == QuotaCancelled
}

type Quota struct {
	ID          QuotaID
	UnitID      UnitID
	ConceptID   ConceptID
	PeriodYear  int
	PeriodMonth int
	DueDate     Date
	BaseAmount  Money // original principal, before adjustments
	Status      QuotaStatus
	Notes       string
	CreatedAt   time.Time
}

// =============================================================================
// QUOTA ADJUSTMENT - Append-only correction to a quota's amount
// =============================================================================

type AdjustmentType string

const (
	AdjustDiscount   AdjustmentType = "discount"
	AdjustIncrease   AdjustmentType = "increase"
	AdjustCorrection AdjustmentType = "correction"
	AdjustWaiver     AdjustmentType = "waiver"
)

// QuotaAdjustment records a change to a quota's effective principal.
// Adjustments are never edited or deleted; a wrong adjustment is offset
// by another adjustment.
type QuotaAdjustment struct {
	ID             AdjustmentID
	QuotaID        QuotaID
	Type           AdjustmentType
	PreviousAmount Money
	NewAmount      Money
	Reason         string
	CreatedBy      string
	CreatedAt      time.Time
}

// Delta is the signed change this adjustment applies to the principal.
func (a QuotaAdjustment) Delta() Money {
	return a.NewAmount.Sub(a.PreviousAmount)
}

// =============================================================================
// INTEREST CONFIGURATION - Time-windowed arrears policy per concept
// =============================================================================

type InterestType string

const (
	InterestSimple InterestType = "simple"
	// InterestFixedAmount is a flat late fee applied once the grace
	// period has elapsed, independent of how late the payment is.
	InterestFixedAmount InterestType = "fixed_amount"
)

type RatePeriod string

const (
	PerDay   RatePeriod = "daily"
	PerMonth RatePeriod = "monthly"
	PerYear  RatePeriod = "annual"
)

// Days returns the day-count convention for one rate period.
func (p RatePeriod) Days() int {
	switch p {
	case PerMonth:
		return 30
	case PerYear:
		return 365
	default:
		return 1
	}
}

// InterestConfiguration is an interest policy valid for a window of time.
// At most one configuration may be active per concept on any given date.
type InterestConfiguration struct {
	ID            ConfigID
	ConceptID     ConceptID
	Name          string
	Type          InterestType
	Rate          RateDecimal // e.g. 0.01 for 1% per Period (simple)
	FixedAmount   Money       // for fixed_amount type
	Period        RatePeriod
	GraceDays     int
	EffectiveFrom Date
	EffectiveTo   *Date // nil = open-ended
	CreatedAt     time.Time
}

// ActiveOn reports whether the configuration covers the given date
// (effectiveFrom <= date < effectiveTo).
func (c InterestConfiguration) ActiveOn(date Date) bool {
	if date.Before(c.EffectiveFrom) {
		return false
	}
	return c.EffectiveTo == nil || date.Before(*c.EffectiveTo)
}

// =============================================================================
// EXCHANGE RATE - Dated conversion factor between two currencies
// =============================================================================

type ExchangeRate struct {
	ID            RateID
	From          Currency
	To            Currency
	Rate          RateDecimal
	EffectiveDate Date
	Source        string // e.g. "BCV", "manual"
	CreatedAt     time.Time
}

// =============================================================================
// PAYMENT - A single money movement from a payer for a unit
// =============================================================================

type PaymentMethod string

const (
	MethodTransfer PaymentMethod = "transfer"
	MethodCash     PaymentMethod = "cash"
	MethodCard     PaymentMethod = "card"
	MethodGateway  PaymentMethod = "gateway"
)

type PaymentStatus string

const (
	PaymentPending             PaymentStatus = "pending"
	PaymentPendingVerification PaymentStatus = "pending_verification"
	PaymentCompleted           PaymentStatus = "completed"
	PaymentFailed              PaymentStatus = "failed"
	PaymentRefunded            PaymentStatus = "refunded"
	PaymentRejected            PaymentStatus = "rejected"
)

// Allocatable reports whether a payment in this status may enter the
// allocation path. Completed is included so a retried registration of an
// already-committed payment resolves idempotently rather than failing.
func (s PaymentStatus) Allocatable() bool {
	return s == PaymentPending || s == PaymentPendingVerification || s == PaymentCompleted
}

type Payment struct {
	ID        PaymentID
	UnitID    UnitID
	PayerID   string
	Amount    Money
	Method    PaymentMethod
	Reference string // bank reference / gateway id
	Date      Date   // value date used for conversion and interest
	Status    PaymentStatus
	CreatedAt time.Time
}

// =============================================================================
// PAYMENT APPLICATION - The atomic join record payment -> quota
// =============================================================================

// PaymentApplication records how much of a payment settled one quota,
// split between principal and interest. Append-only: once written it is
// never mutated or deleted.
type PaymentApplication struct {
	ID                 ApplicationID
	PaymentID          PaymentID
	QuotaID            QuotaID
	AppliedAmount      Money
	AppliedToPrincipal Money
	AppliedToInterest  Money
	RateUsed           *ExchangeRate // rate applied to the payment, nil if none
	CreatedAt          time.Time
}

// =============================================================================
// PAYMENT CREDIT - Unapplied surplus held for a unit
// =============================================================================

type CreditStatus string

const (
	CreditPending   CreditStatus = "pending"
	CreditAllocated CreditStatus = "allocated"
	CreditRefunded  CreditStatus = "refunded"
)

// PaymentCredit is the overpayment outcome: the part of a completed
// payment that exceeded the unit's total outstanding balance. It stays
// pending until an operator allocates it to a later quota or refunds it.
type PaymentCredit struct {
	ID               CreditID
	UnitID           UnitID
	PaymentID        PaymentID
	Amount           Money
	Status           CreditStatus
	ResolutionNotes  string
	AllocatedQuotaID *QuotaID
	AllocatedBy      string
	AllocatedAt      *time.Time
	CreatedAt        time.Time
}

// Resolved reports whether the credit has already been consumed.
func (c PaymentCredit) Resolved() bool { return c.Status != CreditPending }
