/*
Package sqlite provides the SQLite-backed implementation of the engine's
storage interfaces.

PURPOSE:
  Implements engine.TxStore using SQLite. In production the same patterns
  apply to PostgreSQL - only minor SQL dialect differences.

APPEND-ONLY ENFORCEMENT:
  quota_adjustments and payment_applications carry no UPDATE or DELETE
  statements anywhere in this package. Corrections happen by inserting
  offsetting rows.

REPRESENTATION:
  - Monetary amounts and rates are stored as TEXT holding the decimal's
    canonical string. SQLite REAL would lose precision.
  - Calendar dates are TEXT in YYYY-MM-DD; timestamps are RFC3339 TEXT.
  - Booleans are INTEGER 0/1.

TRANSACTIONS:
  Every query method is written once against a queryable (satisfied by
  both *sql.DB and *sql.Tx). WithTx hands callers a view bound to the
  transaction, so reads inside the transaction see its own writes and
  there is no connection-level re-entrancy to worry about.

WAL MODE:
  The database is opened with WAL journaling and foreign keys on:
  readers don't block the writer and partial commits can't survive a
  crash.

MIGRATION:
  Schema is auto-migrated on New(). For production, use a versioned
  migration tool.

SEE ALSO:
  - engine/store.go: interface contracts this package implements
  - engine/store/memory.go: in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/condoflow/quota-engine/engine"
)

// queryable is the subset of database/sql shared by *sql.DB and *sql.Tx.
type queryable interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries holds every store method, bound to either the raw database or
// an open transaction.
type queries struct {
	q queryable
}

// Store implements engine.TxStore on SQLite.
type Store struct {
	queries
	db *sql.DB
}

// New opens (or creates) the database at dbPath and migrates the schema.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	store := &Store{queries: queries{q: db}, db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return store, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// txStore is the transactional view handed to WithTx callbacks.
type txStore struct {
	queries
}

// WithTx runs fn inside one SQLite transaction. Any error rolls the
// whole transaction back.
func (s *Store) WithTx(ctx context.Context, fn func(engine.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(&txStore{queries{q: tx}}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback after %v: %w", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS units (
		id TEXT PRIMARY KEY,
		condominium TEXT NOT NULL,
		label TEXT NOT NULL,
		base_currency TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS payment_concepts (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		type TEXT NOT NULL,
		recurrence TEXT NOT NULL,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		due_day INTEGER NOT NULL,
		applies_interest INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS quotas (
		id TEXT PRIMARY KEY,
		unit_id TEXT NOT NULL REFERENCES units(id),
		concept_id TEXT NOT NULL REFERENCES payment_concepts(id),
		period_year INTEGER NOT NULL,
		period_month INTEGER NOT NULL,
		due_date TEXT NOT NULL,
		base_amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	-- One quota per unit+concept+period: makes generation idempotent at
	-- the database level too, not only in the generator's check.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_quotas_unique_period
		ON quotas(unit_id, concept_id, period_year, period_month);

	-- Allocation hot path: outstanding quotas ordered by due date.
	CREATE INDEX IF NOT EXISTS idx_quotas_unit_status_due
		ON quotas(unit_id, status, due_date);

	CREATE INDEX IF NOT EXISTS idx_quotas_status_due
		ON quotas(status, due_date);

	-- Append-only corrections log
	CREATE TABLE IF NOT EXISTS quota_adjustments (
		id TEXT PRIMARY KEY,
		quota_id TEXT NOT NULL REFERENCES quotas(id),
		type TEXT NOT NULL,
		previous_amount TEXT NOT NULL,
		new_amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		created_by TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_adjustments_quota
		ON quota_adjustments(quota_id);

	CREATE TABLE IF NOT EXISTS interest_configurations (
		id TEXT PRIMARY KEY,
		concept_id TEXT NOT NULL REFERENCES payment_concepts(id),
		name TEXT NOT NULL,
		type TEXT NOT NULL,
		rate TEXT NOT NULL,
		fixed_amount TEXT NOT NULL DEFAULT '0',
		fixed_currency TEXT NOT NULL DEFAULT '',
		period TEXT NOT NULL,
		grace_days INTEGER NOT NULL DEFAULT 0,
		effective_from TEXT NOT NULL,
		effective_to TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_configs_concept
		ON interest_configurations(concept_id, effective_from);

	CREATE TABLE IF NOT EXISTS exchange_rates (
		id TEXT PRIMARY KEY,
		from_currency TEXT NOT NULL,
		to_currency TEXT NOT NULL,
		rate TEXT NOT NULL,
		effective_date TEXT NOT NULL,
		source TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	-- Latest-rate lookup: pair scan ordered by effective date.
	CREATE INDEX IF NOT EXISTS idx_rates_pair_date
		ON exchange_rates(from_currency, to_currency, effective_date DESC);

	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		unit_id TEXT NOT NULL REFERENCES units(id),
		payer_id TEXT NOT NULL DEFAULT '',
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		method TEXT NOT NULL,
		reference TEXT NOT NULL DEFAULT '',
		date TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_payments_unit
		ON payments(unit_id);
	CREATE INDEX IF NOT EXISTS idx_payments_status
		ON payments(status);

	-- Append-only: how each payment settled each quota. The rate columns
	-- denormalize the exchange rate in force at allocation time so the
	-- row stays self-explanatory even if the rates table is amended.
	CREATE TABLE IF NOT EXISTS payment_applications (
		id TEXT PRIMARY KEY,
		payment_id TEXT NOT NULL REFERENCES payments(id),
		quota_id TEXT NOT NULL REFERENCES quotas(id),
		applied_amount TEXT NOT NULL,
		applied_to_principal TEXT NOT NULL,
		applied_to_interest TEXT NOT NULL,
		currency TEXT NOT NULL,
		rate_id TEXT,
		rate_from TEXT,
		rate_to TEXT,
		rate_value TEXT,
		rate_date TEXT,
		rate_source TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_applications_payment
		ON payment_applications(payment_id);
	CREATE INDEX IF NOT EXISTS idx_applications_quota
		ON payment_applications(quota_id);

	-- A payment applies to a quota at most once. Backstops the
	-- duplicate-allocation check at the database level, so idempotency
	-- holds even across processes sharing the file.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_applications_payment_quota
		ON payment_applications(payment_id, quota_id);

	CREATE TABLE IF NOT EXISTS payment_credits (
		id TEXT PRIMARY KEY,
		unit_id TEXT NOT NULL REFERENCES units(id),
		payment_id TEXT NOT NULL REFERENCES payments(id),
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		resolution_notes TEXT NOT NULL DEFAULT '',
		allocated_quota_id TEXT,
		allocated_by TEXT NOT NULL DEFAULT '',
		allocated_at TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_credits_unit
		ON payment_credits(unit_id, status);
	CREATE INDEX IF NOT EXISTS idx_credits_payment
		ON payment_credits(payment_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// SCAN/FORMAT HELPERS
// =============================================================================

func fmtTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func parseDec(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse decimal %q: %w", s, err)
	}
	return d, nil
}

func parseMoney(amount, currency string) (engine.Money, error) {
	d, err := parseDec(amount)
	if err != nil {
		return engine.Money{}, err
	}
	return engine.Money{Amount: d, Currency: engine.Currency(currency)}, nil
}

func parseDate(s string) (engine.Date, error) {
	d, err := engine.ParseDate(s)
	if err != nil {
		return engine.Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return d, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// =============================================================================
// UNITS
// =============================================================================

func (s *queries) InsertUnit(ctx context.Context, u engine.Unit) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO units (id, condominium, label, base_currency, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		string(u.ID), u.Condominium, u.Label, string(u.BaseCurrency), fmtTime(u.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert unit: %w", err)
	}
	return nil
}

func (s *queries) GetUnit(ctx context.Context, id engine.UnitID) (*engine.Unit, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT id, condominium, label, base_currency, created_at
		FROM units WHERE id = ?`, string(id))
	u, err := scanUnit(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get unit: %w", err)
	}
	return u, nil
}

func (s *queries) ListUnits(ctx context.Context) ([]engine.Unit, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, condominium, label, base_currency, created_at
		FROM units ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list units: %w", err)
	}
	defer rows.Close()

	var units []engine.Unit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan unit: %w", err)
		}
		units = append(units, *u)
	}
	return units, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUnit(row rowScanner) (*engine.Unit, error) {
	var u engine.Unit
	var createdAt string
	if err := row.Scan(&u.ID, &u.Condominium, &u.Label, &u.BaseCurrency, &createdAt); err != nil {
		return nil, err
	}
	t, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	u.CreatedAt = t
	return &u, nil
}

// =============================================================================
// PAYMENT CONCEPTS
// =============================================================================

func (s *queries) InsertConcept(ctx context.Context, c engine.PaymentConcept) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO payment_concepts
			(id, name, type, recurrence, amount, currency, due_day, applies_interest, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(c.ID), c.Name, string(c.Type), string(c.Recurrence),
		c.Amount.Amount.String(), string(c.Amount.Currency),
		c.DueDay, boolToInt(c.AppliesInterest), fmtTime(c.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert concept: %w", err)
	}
	return nil
}

func (s *queries) GetConcept(ctx context.Context, id engine.ConceptID) (*engine.PaymentConcept, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT id, name, type, recurrence, amount, currency, due_day, applies_interest, created_at
		FROM payment_concepts WHERE id = ?`, string(id))
	c, err := scanConcept(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get concept: %w", err)
	}
	return c, nil
}

func (s *queries) ListConcepts(ctx context.Context) ([]engine.PaymentConcept, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, name, type, recurrence, amount, currency, due_day, applies_interest, created_at
		FROM payment_concepts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list concepts: %w", err)
	}
	defer rows.Close()

	var concepts []engine.PaymentConcept
	for rows.Next() {
		c, err := scanConcept(rows)
		if err != nil {
			return nil, fmt.Errorf("scan concept: %w", err)
		}
		concepts = append(concepts, *c)
	}
	return concepts, rows.Err()
}

func scanConcept(row rowScanner) (*engine.PaymentConcept, error) {
	var c engine.PaymentConcept
	var amount, currency, createdAt string
	var appliesInterest int
	if err := row.Scan(&c.ID, &c.Name, &c.Type, &c.Recurrence,
		&amount, &currency, &c.DueDay, &appliesInterest, &createdAt); err != nil {
		return nil, err
	}
	m, err := parseMoney(amount, currency)
	if err != nil {
		return nil, err
	}
	t, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	c.Amount = m
	c.AppliesInterest = appliesInterest != 0
	c.CreatedAt = t
	return &c, nil
}

// =============================================================================
// QUOTAS
// =============================================================================

const quotaColumns = `id, unit_id, concept_id, period_year, period_month,
	due_date, base_amount, currency, status, notes, created_at`

func (s *queries) InsertQuota(ctx context.Context, q engine.Quota) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO quotas
			(id, unit_id, concept_id, period_year, period_month,
			 due_date, base_amount, currency, status, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(q.ID), string(q.UnitID), string(q.ConceptID),
		q.PeriodYear, q.PeriodMonth, q.DueDate.String(),
		q.BaseAmount.Amount.String(), string(q.BaseAmount.Currency),
		string(q.Status), q.Notes, fmtTime(q.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert quota: %w", err)
	}
	return nil
}

func (s *queries) GetQuota(ctx context.Context, id engine.QuotaID) (*engine.Quota, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+quotaColumns+` FROM quotas WHERE id = ?`, string(id))
	q, err := scanQuota(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get quota: %w", err)
	}
	return q, nil
}

func (s *queries) QuotasByUnit(ctx context.Context, unitID engine.UnitID) ([]engine.Quota, error) {
	return s.queryQuotas(ctx,
		`SELECT `+quotaColumns+` FROM quotas
		 WHERE unit_id = ? ORDER BY due_date, id`, string(unitID))
}

func (s *queries) OutstandingByUnit(ctx context.Context, unitID engine.UnitID) ([]engine.Quota, error) {
	return s.queryQuotas(ctx,
		`SELECT `+quotaColumns+` FROM quotas
		 WHERE unit_id = ? AND status IN ('pending', 'partially_paid', 'overdue')
		 ORDER BY due_date, id`, string(unitID))
}

func (s *queries) PendingDueBefore(ctx context.Context, date engine.Date) ([]engine.Quota, error) {
	return s.queryQuotas(ctx,
		`SELECT `+quotaColumns+` FROM quotas
		 WHERE status = 'pending' AND due_date < ?
		 ORDER BY id`, date.String())
}

func (s *queries) QuotaExistsForPeriod(ctx context.Context, unitID engine.UnitID, conceptID engine.ConceptID, year, month int) (bool, error) {
	var n int
	err := s.q.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM quotas
		WHERE unit_id = ? AND concept_id = ? AND period_year = ? AND period_month = ?`,
		string(unitID), string(conceptID), year, month).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check quota period: %w", err)
	}
	return n > 0, nil
}

func (s *queries) LatestQuotaPeriod(ctx context.Context) (int, int, bool, error) {
	var year, month int
	err := s.q.QueryRowContext(ctx, `
		SELECT period_year, period_month FROM quotas
		ORDER BY period_year DESC, period_month DESC LIMIT 1`).Scan(&year, &month)
	if err == sql.ErrNoRows {
		return 0, 0, false, nil
	}
	if err != nil {
		return 0, 0, false, fmt.Errorf("latest quota period: %w", err)
	}
	return year, month, true, nil
}

func (s *queries) UpdateQuotaStatus(ctx context.Context, id engine.QuotaID, status engine.QuotaStatus) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE quotas SET status = ? WHERE id = ?`, string(status), string(id))
	if err != nil {
		return fmt.Errorf("update quota status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", engine.ErrQuotaNotFound, id)
	}
	return nil
}

func (s *queries) queryQuotas(ctx context.Context, query string, args ...any) ([]engine.Quota, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query quotas: %w", err)
	}
	defer rows.Close()

	var quotas []engine.Quota
	for rows.Next() {
		q, err := scanQuota(rows)
		if err != nil {
			return nil, fmt.Errorf("scan quota: %w", err)
		}
		quotas = append(quotas, *q)
	}
	return quotas, rows.Err()
}

func scanQuota(row rowScanner) (*engine.Quota, error) {
	var q engine.Quota
	var dueDate, amount, currency, createdAt string
	if err := row.Scan(&q.ID, &q.UnitID, &q.ConceptID, &q.PeriodYear, &q.PeriodMonth,
		&dueDate, &amount, &currency, &q.Status, &q.Notes, &createdAt); err != nil {
		return nil, err
	}
	d, err := parseDate(dueDate)
	if err != nil {
		return nil, err
	}
	m, err := parseMoney(amount, currency)
	if err != nil {
		return nil, err
	}
	t, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	q.DueDate = d
	q.BaseAmount = m
	q.CreatedAt = t
	return &q, nil
}

// =============================================================================
// QUOTA ADJUSTMENTS (append-only)
// =============================================================================

func (s *queries) InsertAdjustment(ctx context.Context, a engine.QuotaAdjustment) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO quota_adjustments
			(id, quota_id, type, previous_amount, new_amount, currency, reason, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(a.ID), string(a.QuotaID), string(a.Type),
		a.PreviousAmount.Amount.String(), a.NewAmount.Amount.String(),
		string(a.NewAmount.Currency), a.Reason, a.CreatedBy, fmtTime(a.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert adjustment: %w", err)
	}
	return nil
}

func (s *queries) AdjustmentsByQuota(ctx context.Context, quotaID engine.QuotaID) ([]engine.QuotaAdjustment, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, quota_id, type, previous_amount, new_amount, currency, reason, created_by, created_at
		FROM quota_adjustments WHERE quota_id = ? ORDER BY created_at, id`, string(quotaID))
	if err != nil {
		return nil, fmt.Errorf("query adjustments: %w", err)
	}
	defer rows.Close()

	var adjustments []engine.QuotaAdjustment
	for rows.Next() {
		var a engine.QuotaAdjustment
		var prev, next, currency, createdAt string
		if err := rows.Scan(&a.ID, &a.QuotaID, &a.Type, &prev, &next,
			&currency, &a.Reason, &a.CreatedBy, &createdAt); err != nil {
			return nil, fmt.Errorf("scan adjustment: %w", err)
		}
		pm, err := parseMoney(prev, currency)
		if err != nil {
			return nil, err
		}
		nm, err := parseMoney(next, currency)
		if err != nil {
			return nil, err
		}
		t, err := parseTime(createdAt)
		if err != nil {
			return nil, err
		}
		a.PreviousAmount = pm
		a.NewAmount = nm
		a.CreatedAt = t
		adjustments = append(adjustments, a)
	}
	return adjustments, rows.Err()
}

// =============================================================================
// INTEREST CONFIGURATIONS
// =============================================================================

func (s *queries) InsertConfig(ctx context.Context, c engine.InterestConfiguration) error {
	var effectiveTo any
	if c.EffectiveTo != nil {
		effectiveTo = c.EffectiveTo.String()
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO interest_configurations
			(id, concept_id, name, type, rate, fixed_amount, fixed_currency,
			 period, grace_days, effective_from, effective_to, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(c.ID), string(c.ConceptID), c.Name, string(c.Type),
		c.Rate.String(), c.FixedAmount.Amount.String(), string(c.FixedAmount.Currency),
		string(c.Period), c.GraceDays, c.EffectiveFrom.String(), effectiveTo, fmtTime(c.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert interest configuration: %w", err)
	}
	return nil
}

func (s *queries) ConfigsByConcept(ctx context.Context, conceptID engine.ConceptID) ([]engine.InterestConfiguration, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, concept_id, name, type, rate, fixed_amount, fixed_currency,
		       period, grace_days, effective_from, effective_to, created_at
		FROM interest_configurations
		WHERE concept_id = ? ORDER BY effective_from`, string(conceptID))
	if err != nil {
		return nil, fmt.Errorf("query interest configurations: %w", err)
	}
	defer rows.Close()

	var configs []engine.InterestConfiguration
	for rows.Next() {
		var c engine.InterestConfiguration
		var rate, fixedAmount, fixedCurrency, effectiveFrom, createdAt string
		var effectiveTo sql.NullString
		if err := rows.Scan(&c.ID, &c.ConceptID, &c.Name, &c.Type, &rate,
			&fixedAmount, &fixedCurrency, &c.Period, &c.GraceDays,
			&effectiveFrom, &effectiveTo, &createdAt); err != nil {
			return nil, fmt.Errorf("scan interest configuration: %w", err)
		}
		r, err := parseDec(rate)
		if err != nil {
			return nil, err
		}
		fm, err := parseMoney(fixedAmount, fixedCurrency)
		if err != nil {
			return nil, err
		}
		from, err := parseDate(effectiveFrom)
		if err != nil {
			return nil, err
		}
		if effectiveTo.Valid {
			to, err := parseDate(effectiveTo.String)
			if err != nil {
				return nil, err
			}
			c.EffectiveTo = &to
		}
		t, err := parseTime(createdAt)
		if err != nil {
			return nil, err
		}
		c.Rate = r
		c.FixedAmount = fm
		c.EffectiveFrom = from
		c.CreatedAt = t
		configs = append(configs, c)
	}
	return configs, rows.Err()
}

// =============================================================================
// EXCHANGE RATES
// =============================================================================

func (s *queries) InsertRate(ctx context.Context, r engine.ExchangeRate) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO exchange_rates
			(id, from_currency, to_currency, rate, effective_date, source, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(r.ID), string(r.From), string(r.To), r.Rate.String(),
		r.EffectiveDate.String(), r.Source, fmtTime(r.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert exchange rate: %w", err)
	}
	return nil
}

func (s *queries) LatestRate(ctx context.Context, from, to engine.Currency, asOf engine.Date) (*engine.ExchangeRate, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT id, from_currency, to_currency, rate, effective_date, source, created_at
		FROM exchange_rates
		WHERE from_currency = ? AND to_currency = ? AND effective_date <= ?
		ORDER BY effective_date DESC, created_at DESC
		LIMIT 1`, string(from), string(to), asOf.String())

	var r engine.ExchangeRate
	var rate, effectiveDate, createdAt string
	err := row.Scan(&r.ID, &r.From, &r.To, &rate, &effectiveDate, &r.Source, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query latest rate: %w", err)
	}
	d, err := parseDec(rate)
	if err != nil {
		return nil, err
	}
	eff, err := parseDate(effectiveDate)
	if err != nil {
		return nil, err
	}
	t, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	r.Rate = d
	r.EffectiveDate = eff
	r.CreatedAt = t
	return &r, nil
}

// =============================================================================
// PAYMENTS
// =============================================================================

const paymentColumns = `id, unit_id, payer_id, amount, currency, method, reference, date, status, created_at`

func (s *queries) InsertPayment(ctx context.Context, p engine.Payment) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO payments
			(id, unit_id, payer_id, amount, currency, method, reference, date, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(p.ID), string(p.UnitID), p.PayerID,
		p.Amount.Amount.String(), string(p.Amount.Currency),
		string(p.Method), p.Reference, p.Date.String(), string(p.Status), fmtTime(p.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (s *queries) GetPayment(ctx context.Context, id engine.PaymentID) (*engine.Payment, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = ?`, string(id))
	p, err := scanPayment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get payment: %w", err)
	}
	return p, nil
}

func (s *queries) PaymentsByUnit(ctx context.Context, unitID engine.UnitID) ([]engine.Payment, error) {
	return s.queryPayments(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE unit_id = ? ORDER BY date, id`,
		string(unitID))
}

func (s *queries) UpdatePaymentStatus(ctx context.Context, id engine.PaymentID, status engine.PaymentStatus) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE payments SET status = ? WHERE id = ?`, string(status), string(id))
	if err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", engine.ErrPaymentNotFound, id)
	}
	return nil
}

func (s *queries) UnallocatedCompleted(ctx context.Context) ([]engine.Payment, error) {
	return s.queryPayments(ctx,
		`SELECT `+paymentColumns+` FROM payments
		 WHERE status = 'pending'
		 ORDER BY date, id`)
}

func (s *queries) queryPayments(ctx context.Context, query string, args ...any) ([]engine.Payment, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query payments: %w", err)
	}
	defer rows.Close()

	var payments []engine.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		payments = append(payments, *p)
	}
	return payments, rows.Err()
}

func scanPayment(row rowScanner) (*engine.Payment, error) {
	var p engine.Payment
	var amount, currency, date, createdAt string
	if err := row.Scan(&p.ID, &p.UnitID, &p.PayerID, &amount, &currency,
		&p.Method, &p.Reference, &date, &p.Status, &createdAt); err != nil {
		return nil, err
	}
	m, err := parseMoney(amount, currency)
	if err != nil {
		return nil, err
	}
	d, err := parseDate(date)
	if err != nil {
		return nil, err
	}
	t, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	p.Amount = m
	p.Date = d
	p.CreatedAt = t
	return &p, nil
}

// =============================================================================
// PAYMENT APPLICATIONS (append-only)
// =============================================================================

func (s *queries) InsertApplications(ctx context.Context, apps []engine.PaymentApplication) error {
	for _, a := range apps {
		var rateID, rateFrom, rateTo, rateValue, rateDate, rateSource any
		if a.RateUsed != nil {
			rateID = string(a.RateUsed.ID)
			rateFrom = string(a.RateUsed.From)
			rateTo = string(a.RateUsed.To)
			rateValue = a.RateUsed.Rate.String()
			rateDate = a.RateUsed.EffectiveDate.String()
			rateSource = a.RateUsed.Source
		}
		_, err := s.q.ExecContext(ctx, `
			INSERT INTO payment_applications
				(id, payment_id, quota_id, applied_amount, applied_to_principal,
				 applied_to_interest, currency, rate_id, rate_from, rate_to,
				 rate_value, rate_date, rate_source, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			string(a.ID), string(a.PaymentID), string(a.QuotaID),
			a.AppliedAmount.Amount.String(), a.AppliedToPrincipal.Amount.String(),
			a.AppliedToInterest.Amount.String(), string(a.AppliedAmount.Currency),
			rateID, rateFrom, rateTo, rateValue, rateDate, rateSource,
			fmtTime(a.CreatedAt))
		if err != nil {
			return fmt.Errorf("insert application %s: %w", a.ID, err)
		}
	}
	return nil
}

func (s *queries) ApplicationsByPayment(ctx context.Context, paymentID engine.PaymentID) ([]engine.PaymentApplication, error) {
	return s.queryApplications(ctx, `payment_id = ?`, string(paymentID))
}

func (s *queries) ApplicationsByQuota(ctx context.Context, quotaID engine.QuotaID) ([]engine.PaymentApplication, error) {
	return s.queryApplications(ctx, `quota_id = ?`, string(quotaID))
}

func (s *queries) queryApplications(ctx context.Context, where string, args ...any) ([]engine.PaymentApplication, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, payment_id, quota_id, applied_amount, applied_to_principal,
		       applied_to_interest, currency, rate_id, rate_from, rate_to,
		       rate_value, rate_date, rate_source, created_at
		FROM payment_applications WHERE `+where+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("query applications: %w", err)
	}
	defer rows.Close()

	var apps []engine.PaymentApplication
	for rows.Next() {
		var a engine.PaymentApplication
		var applied, principal, interest, currency, createdAt string
		var rateID, rateFrom, rateTo, rateValue, rateDate, rateSource sql.NullString
		if err := rows.Scan(&a.ID, &a.PaymentID, &a.QuotaID, &applied, &principal,
			&interest, &currency, &rateID, &rateFrom, &rateTo,
			&rateValue, &rateDate, &rateSource, &createdAt); err != nil {
			return nil, fmt.Errorf("scan application: %w", err)
		}
		am, err := parseMoney(applied, currency)
		if err != nil {
			return nil, err
		}
		pm, err := parseMoney(principal, currency)
		if err != nil {
			return nil, err
		}
		im, err := parseMoney(interest, currency)
		if err != nil {
			return nil, err
		}
		t, err := parseTime(createdAt)
		if err != nil {
			return nil, err
		}
		if rateValue.Valid {
			rv, err := parseDec(rateValue.String)
			if err != nil {
				return nil, err
			}
			rd, err := parseDate(rateDate.String)
			if err != nil {
				return nil, err
			}
			a.RateUsed = &engine.ExchangeRate{
				ID:            engine.RateID(rateID.String),
				From:          engine.Currency(rateFrom.String),
				To:            engine.Currency(rateTo.String),
				Rate:          rv,
				EffectiveDate: rd,
				Source:        rateSource.String,
			}
		}
		a.AppliedAmount = am
		a.AppliedToPrincipal = pm
		a.AppliedToInterest = im
		a.CreatedAt = t
		apps = append(apps, a)
	}
	return apps, rows.Err()
}

// =============================================================================
// PAYMENT CREDITS
// =============================================================================

const creditColumns = `id, unit_id, payment_id, amount, currency, status,
	resolution_notes, allocated_quota_id, allocated_by, allocated_at, created_at`

func (s *queries) InsertCredit(ctx context.Context, c engine.PaymentCredit) error {
	var allocatedQuota, allocatedAt any
	if c.AllocatedQuotaID != nil {
		allocatedQuota = string(*c.AllocatedQuotaID)
	}
	if c.AllocatedAt != nil {
		allocatedAt = fmtTime(*c.AllocatedAt)
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO payment_credits
			(id, unit_id, payment_id, amount, currency, status,
			 resolution_notes, allocated_quota_id, allocated_by, allocated_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(c.ID), string(c.UnitID), string(c.PaymentID),
		c.Amount.Amount.String(), string(c.Amount.Currency), string(c.Status),
		c.ResolutionNotes, allocatedQuota, c.AllocatedBy, allocatedAt, fmtTime(c.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert credit: %w", err)
	}
	return nil
}

func (s *queries) GetCredit(ctx context.Context, id engine.CreditID) (*engine.PaymentCredit, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+creditColumns+` FROM payment_credits WHERE id = ?`, string(id))
	c, err := scanCredit(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get credit: %w", err)
	}
	return c, nil
}

func (s *queries) CreditsByUnit(ctx context.Context, unitID engine.UnitID) ([]engine.PaymentCredit, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+creditColumns+` FROM payment_credits WHERE unit_id = ? ORDER BY created_at, id`,
		string(unitID))
	if err != nil {
		return nil, fmt.Errorf("query credits: %w", err)
	}
	defer rows.Close()

	var credits []engine.PaymentCredit
	for rows.Next() {
		c, err := scanCredit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan credit: %w", err)
		}
		credits = append(credits, *c)
	}
	return credits, rows.Err()
}

func (s *queries) CreditByPayment(ctx context.Context, paymentID engine.PaymentID) (*engine.PaymentCredit, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+creditColumns+` FROM payment_credits
		 WHERE payment_id = ? ORDER BY created_at, id LIMIT 1`, string(paymentID))
	c, err := scanCredit(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("credit by payment: %w", err)
	}
	return c, nil
}

func (s *queries) ResolveCredit(ctx context.Context, id engine.CreditID, resolved engine.PaymentCredit) error {
	var allocatedQuota, allocatedAt any
	if resolved.AllocatedQuotaID != nil {
		allocatedQuota = string(*resolved.AllocatedQuotaID)
	}
	if resolved.AllocatedAt != nil {
		allocatedAt = fmtTime(*resolved.AllocatedAt)
	}
	res, err := s.q.ExecContext(ctx, `
		UPDATE payment_credits
		SET status = ?, resolution_notes = ?, allocated_quota_id = ?,
		    allocated_by = ?, allocated_at = ?
		WHERE id = ?`,
		string(resolved.Status), resolved.ResolutionNotes, allocatedQuota,
		resolved.AllocatedBy, allocatedAt, string(id))
	if err != nil {
		return fmt.Errorf("resolve credit: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", engine.ErrCreditNotFound, id)
	}
	return nil
}

func scanCredit(row rowScanner) (*engine.PaymentCredit, error) {
	var c engine.PaymentCredit
	var amount, currency, createdAt string
	var allocatedQuota, allocatedAt sql.NullString
	if err := row.Scan(&c.ID, &c.UnitID, &c.PaymentID, &amount, &currency,
		&c.Status, &c.ResolutionNotes, &allocatedQuota, &c.AllocatedBy,
		&allocatedAt, &createdAt); err != nil {
		return nil, err
	}
	m, err := parseMoney(amount, currency)
	if err != nil {
		return nil, err
	}
	t, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	if allocatedQuota.Valid {
		id := engine.QuotaID(allocatedQuota.String)
		c.AllocatedQuotaID = &id
	}
	if allocatedAt.Valid {
		at, err := parseTime(allocatedAt.String)
		if err != nil {
			return nil, err
		}
		c.AllocatedAt = &at
	}
	c.Amount = m
	c.CreatedAt = t
	return &c, nil
}
