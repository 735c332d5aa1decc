/*
store.go - Persistence interfaces between the engine and the database

PURPOSE:
  The engine is written against these read/write contracts, not a
  concrete store, so it can be backed by any relational database.
  Implementations: store/sqlite (production), engine/store (in-memory,
  for tests and dev).

APPEND-ONLY CONTRACT:
  quota_adjustments and payment_applications are logs: the interfaces
  expose Insert and read methods only. There is no Update or Delete for
  either. Corrections are made by inserting offsetting records.

TRANSACTIONS:
  TxStore.WithTx runs a function against a transactional view of the
  whole store. The allocation commit executes inside one WithTx call so
  application rows, quota status transitions and the payment status all
  land atomically, or not at all.
*/
package engine

import "context"

// =============================================================================
// READ/WRITE CONTRACTS, ONE PER AGGREGATE
// =============================================================================

type UnitStore interface {
	InsertUnit(ctx context.Context, u Unit) error
	GetUnit(ctx context.Context, id UnitID) (*Unit, error)
	ListUnits(ctx context.Context) ([]Unit, error)
}

type ConceptStore interface {
	InsertConcept(ctx context.Context, c PaymentConcept) error
	GetConcept(ctx context.Context, id ConceptID) (*PaymentConcept, error)
	ListConcepts(ctx context.Context) ([]PaymentConcept, error)
}

type QuotaStore interface {
	InsertQuota(ctx context.Context, q Quota) error
	GetQuota(ctx context.Context, id QuotaID) (*Quota, error)
	QuotasByUnit(ctx context.Context, unitID UnitID) ([]Quota, error)

	// OutstandingByUnit returns quotas with status pending,
	// partially_paid or overdue, ordered by due date ascending with the
	// quota ID as tiebreak. The ordering is a policy decision (oldest
	// obligation first) and implementations must preserve it.
	OutstandingByUnit(ctx context.Context, unitID UnitID) ([]Quota, error)

	// PendingDueBefore returns pending quotas whose due date is strictly
	// before the given date (the overdue sweep input).
	PendingDueBefore(ctx context.Context, date Date) ([]Quota, error)

	// QuotaExistsForPeriod reports whether a quota already exists for
	// unit+concept+period. Used by the generator for idempotent runs.
	QuotaExistsForPeriod(ctx context.Context, unitID UnitID, conceptID ConceptID, year, month int) (bool, error)

	// LatestQuotaPeriod returns the most recent (year, month) any quota
	// was generated for; ok is false when no quotas exist. The generator
	// backfills from here after downtime.
	LatestQuotaPeriod(ctx context.Context) (year, month int, ok bool, err error)

	UpdateQuotaStatus(ctx context.Context, id QuotaID, status QuotaStatus) error
}

type AdjustmentStore interface {
	// InsertAdjustment appends a correction. Append-only.
	InsertAdjustment(ctx context.Context, a QuotaAdjustment) error
	AdjustmentsByQuota(ctx context.Context, quotaID QuotaID) ([]QuotaAdjustment, error)
}

type ConfigStore interface {
	InsertConfig(ctx context.Context, c InterestConfiguration) error
	ConfigsByConcept(ctx context.Context, conceptID ConceptID) ([]InterestConfiguration, error)
}

type RateStore interface {
	InsertRate(ctx context.Context, r ExchangeRate) error

	// LatestRate returns the rate for the pair with the greatest
	// effectiveDate <= asOf, or nil when none exists.
	LatestRate(ctx context.Context, from, to Currency, asOf Date) (*ExchangeRate, error)
}

type PaymentStore interface {
	InsertPayment(ctx context.Context, p Payment) error
	GetPayment(ctx context.Context, id PaymentID) (*Payment, error)
	PaymentsByUnit(ctx context.Context, unitID UnitID) ([]Payment, error)
	UpdatePaymentStatus(ctx context.Context, id PaymentID, status PaymentStatus) error

	// UnallocatedCompleted returns payments in status pending: verified
	// but not yet allocated (typically the rate was missing at the
	// time). The scheduler retries these.
	UnallocatedCompleted(ctx context.Context) ([]Payment, error)
}

type ApplicationStore interface {
	// InsertApplications appends application rows. Append-only; rows are
	// never mutated or deleted once written.
	InsertApplications(ctx context.Context, apps []PaymentApplication) error
	ApplicationsByPayment(ctx context.Context, paymentID PaymentID) ([]PaymentApplication, error)
	ApplicationsByQuota(ctx context.Context, quotaID QuotaID) ([]PaymentApplication, error)
}

type CreditStore interface {
	InsertCredit(ctx context.Context, c PaymentCredit) error
	GetCredit(ctx context.Context, id CreditID) (*PaymentCredit, error)
	CreditsByUnit(ctx context.Context, unitID UnitID) ([]PaymentCredit, error)
	CreditByPayment(ctx context.Context, paymentID PaymentID) (*PaymentCredit, error)

	// ResolveCredit marks a pending credit allocated or refunded. The
	// credit amount itself is immutable.
	ResolveCredit(ctx context.Context, id CreditID, resolved PaymentCredit) error
}

// =============================================================================
// AGGREGATE STORE
// =============================================================================

// Store is the full persistence surface the engine depends on.
type Store interface {
	UnitStore
	ConceptStore
	QuotaStore
	AdjustmentStore
	ConfigStore
	RateStore
	PaymentStore
	ApplicationStore
	CreditStore
}

// TxStore extends Store with atomic multi-write support.
type TxStore interface {
	Store

	// WithTx executes fn against a transactional view. If fn returns an
	// error the transaction rolls back entirely; no partial allocation
	// state is ever visible.
	WithTx(ctx context.Context, fn func(Store) error) error
}
