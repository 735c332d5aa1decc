// Package store provides an in-memory engine.TxStore for tests and dev.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/condoflow/quota-engine/engine"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu sync.RWMutex

	units        map[engine.UnitID]engine.Unit
	concepts     map[engine.ConceptID]engine.PaymentConcept
	quotas       map[engine.QuotaID]engine.Quota
	adjustments  map[engine.QuotaID][]engine.QuotaAdjustment
	configs      map[engine.ConceptID][]engine.InterestConfiguration
	rates        []engine.ExchangeRate
	payments     map[engine.PaymentID]engine.Payment
	applications []engine.PaymentApplication
	credits      map[engine.CreditID]engine.PaymentCredit
}

func NewMemory() *Memory {
	return &Memory{
		units:       make(map[engine.UnitID]engine.Unit),
		concepts:    make(map[engine.ConceptID]engine.PaymentConcept),
		quotas:      make(map[engine.QuotaID]engine.Quota),
		adjustments: make(map[engine.QuotaID][]engine.QuotaAdjustment),
		configs:     make(map[engine.ConceptID][]engine.InterestConfiguration),
		payments:    make(map[engine.PaymentID]engine.Payment),
		credits:     make(map[engine.CreditID]engine.PaymentCredit),
	}
}

// =============================================================================
// UNITS / CONCEPTS
// =============================================================================

func (m *Memory) InsertUnit(_ context.Context, u engine.Unit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.units[u.ID] = u
	return nil
}

func (m *Memory) GetUnit(_ context.Context, id engine.UnitID) (*engine.Unit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if u, ok := m.units[id]; ok {
		return &u, nil
	}
	return nil, nil
}

func (m *Memory) ListUnits(_ context.Context) ([]engine.Unit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]engine.Unit, 0, len(m.units))
	for _, u := range m.units {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) InsertConcept(_ context.Context, c engine.PaymentConcept) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.concepts[c.ID] = c
	return nil
}

func (m *Memory) GetConcept(_ context.Context, id engine.ConceptID) (*engine.PaymentConcept, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.concepts[id]; ok {
		return &c, nil
	}
	return nil, nil
}

func (m *Memory) ListConcepts(_ context.Context) ([]engine.PaymentConcept, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]engine.PaymentConcept, 0, len(m.concepts))
	for _, c := range m.concepts {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// =============================================================================
// QUOTAS
// =============================================================================

func (m *Memory) InsertQuota(_ context.Context, q engine.Quota) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quotas[q.ID] = q
	return nil
}

func (m *Memory) GetQuota(_ context.Context, id engine.QuotaID) (*engine.Quota, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if q, ok := m.quotas[id]; ok {
		return &q, nil
	}
	return nil, nil
}

func (m *Memory) QuotasByUnit(_ context.Context, unitID engine.UnitID) ([]engine.Quota, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.quotasByUnitLocked(unitID, func(engine.Quota) bool { return true }), nil
}

func (m *Memory) OutstandingByUnit(_ context.Context, unitID engine.UnitID) ([]engine.Quota, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.quotasByUnitLocked(unitID, func(q engine.Quota) bool { return q.Status.Open() }), nil
}

// quotasByUnitLocked returns matching quotas ordered by due date with
// the quota ID as tiebreak.
func (m *Memory) quotasByUnitLocked(unitID engine.UnitID, keep func(engine.Quota) bool) []engine.Quota {
	var out []engine.Quota
	for _, q := range m.quotas {
		if q.UnitID == unitID && keep(q) {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DueDate.Equal(out[j].DueDate) {
			return out[i].DueDate.Before(out[j].DueDate)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m *Memory) PendingDueBefore(_ context.Context, date engine.Date) ([]engine.Quota, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []engine.Quota
	for _, q := range m.quotas {
		if q.Status == engine.QuotaPending && q.DueDate.Before(date) {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) QuotaExistsForPeriod(_ context.Context, unitID engine.UnitID, conceptID engine.ConceptID, year, month int) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, q := range m.quotas {
		if q.UnitID == unitID && q.ConceptID == conceptID && q.PeriodYear == year && q.PeriodMonth == month {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) LatestQuotaPeriod(_ context.Context) (int, int, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var year, month int
	var found bool
	for _, q := range m.quotas {
		if !found || q.PeriodYear > year || (q.PeriodYear == year && q.PeriodMonth > month) {
			year, month, found = q.PeriodYear, q.PeriodMonth, true
		}
	}
	return year, month, found, nil
}

func (m *Memory) UpdateQuotaStatus(_ context.Context, id engine.QuotaID, status engine.QuotaStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quotas[id]
	if !ok {
		return engine.ErrQuotaNotFound
	}
	q.Status = status
	m.quotas[id] = q
	return nil
}

// =============================================================================
// ADJUSTMENTS (append-only)
// =============================================================================

func (m *Memory) InsertAdjustment(_ context.Context, a engine.QuotaAdjustment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.adjustments[a.QuotaID] = append(m.adjustments[a.QuotaID], a)
	return nil
}

func (m *Memory) AdjustmentsByQuota(_ context.Context, quotaID engine.QuotaID) ([]engine.QuotaAdjustment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]engine.QuotaAdjustment, len(m.adjustments[quotaID]))
	copy(out, m.adjustments[quotaID])
	return out, nil
}

// =============================================================================
// INTEREST CONFIGURATIONS
// =============================================================================

func (m *Memory) InsertConfig(_ context.Context, c engine.InterestConfiguration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configs[c.ConceptID] = append(m.configs[c.ConceptID], c)
	return nil
}

func (m *Memory) ConfigsByConcept(_ context.Context, conceptID engine.ConceptID) ([]engine.InterestConfiguration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]engine.InterestConfiguration, len(m.configs[conceptID]))
	copy(out, m.configs[conceptID])
	return out, nil
}

// =============================================================================
// EXCHANGE RATES
// =============================================================================

func (m *Memory) InsertRate(_ context.Context, r engine.ExchangeRate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rates = append(m.rates, r)
	return nil
}

func (m *Memory) LatestRate(_ context.Context, from, to engine.Currency, asOf engine.Date) (*engine.ExchangeRate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var best *engine.ExchangeRate
	for i := range m.rates {
		r := m.rates[i]
		if r.From != from || r.To != to || r.EffectiveDate.After(asOf) {
			continue
		}
		if best == nil || best.EffectiveDate.Before(r.EffectiveDate) {
			best = &m.rates[i]
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

// =============================================================================
// PAYMENTS
// =============================================================================

func (m *Memory) InsertPayment(_ context.Context, p engine.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments[p.ID] = p
	return nil
}

func (m *Memory) GetPayment(_ context.Context, id engine.PaymentID) (*engine.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.payments[id]; ok {
		return &p, nil
	}
	return nil, nil
}

func (m *Memory) PaymentsByUnit(_ context.Context, unitID engine.UnitID) ([]engine.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []engine.Payment
	for _, p := range m.payments {
		if p.UnitID == unitID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) UpdatePaymentStatus(_ context.Context, id engine.PaymentID, status engine.PaymentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return engine.ErrPaymentNotFound
	}
	p.Status = status
	m.payments[id] = p
	return nil
}

func (m *Memory) UnallocatedCompleted(_ context.Context) ([]engine.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []engine.Payment
	for _, p := range m.payments {
		if p.Status == engine.PaymentPending {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// =============================================================================
// PAYMENT APPLICATIONS (append-only)
// =============================================================================

func (m *Memory) InsertApplications(_ context.Context, apps []engine.PaymentApplication) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applications = append(m.applications, apps...)
	return nil
}

func (m *Memory) ApplicationsByPayment(_ context.Context, paymentID engine.PaymentID) ([]engine.PaymentApplication, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []engine.PaymentApplication
	for _, a := range m.applications {
		if a.PaymentID == paymentID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *Memory) ApplicationsByQuota(_ context.Context, quotaID engine.QuotaID) ([]engine.PaymentApplication, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []engine.PaymentApplication
	for _, a := range m.applications {
		if a.QuotaID == quotaID {
			out = append(out, a)
		}
	}
	return out, nil
}

// =============================================================================
// CREDITS
// =============================================================================

func (m *Memory) InsertCredit(_ context.Context, c engine.PaymentCredit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.credits[c.ID] = c
	return nil
}

func (m *Memory) GetCredit(_ context.Context, id engine.CreditID) (*engine.PaymentCredit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.credits[id]; ok {
		return &c, nil
	}
	return nil, nil
}

func (m *Memory) CreditsByUnit(_ context.Context, unitID engine.UnitID) ([]engine.PaymentCredit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []engine.PaymentCredit
	for _, c := range m.credits {
		if c.UnitID == unitID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) CreditByPayment(_ context.Context, paymentID engine.PaymentID) (*engine.PaymentCredit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var found *engine.PaymentCredit
	for id := range m.credits {
		c := m.credits[id]
		if c.PaymentID == paymentID {
			if found == nil || c.CreatedAt.Before(found.CreatedAt) {
				cp := c
				found = &cp
			}
		}
	}
	return found, nil
}

func (m *Memory) ResolveCredit(_ context.Context, id engine.CreditID, resolved engine.PaymentCredit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.credits[id]; !ok {
		return engine.ErrCreditNotFound
	}
	resolved.ID = id
	m.credits[id] = resolved
	return nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support, simulated with a
// snapshot taken before fn and restored on error.
type TxMemory struct {
	*Memory
	txMu sync.Mutex
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

func (tm *TxMemory) WithTx(ctx context.Context, fn func(engine.Store) error) error {
	tm.txMu.Lock()
	defer tm.txMu.Unlock()

	snapshot := tm.snapshot()
	if err := fn(tm.Memory); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	units        map[engine.UnitID]engine.Unit
	concepts     map[engine.ConceptID]engine.PaymentConcept
	quotas       map[engine.QuotaID]engine.Quota
	adjustments  map[engine.QuotaID][]engine.QuotaAdjustment
	configs      map[engine.ConceptID][]engine.InterestConfiguration
	rates        []engine.ExchangeRate
	payments     map[engine.PaymentID]engine.Payment
	applications []engine.PaymentApplication
	credits      map[engine.CreditID]engine.PaymentCredit
}

func (tm *TxMemory) snapshot() memorySnapshot {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	s := memorySnapshot{
		units:        make(map[engine.UnitID]engine.Unit, len(tm.units)),
		concepts:     make(map[engine.ConceptID]engine.PaymentConcept, len(tm.concepts)),
		quotas:       make(map[engine.QuotaID]engine.Quota, len(tm.quotas)),
		adjustments:  make(map[engine.QuotaID][]engine.QuotaAdjustment, len(tm.adjustments)),
		configs:      make(map[engine.ConceptID][]engine.InterestConfiguration, len(tm.configs)),
		rates:        append([]engine.ExchangeRate{}, tm.rates...),
		payments:     make(map[engine.PaymentID]engine.Payment, len(tm.payments)),
		applications: append([]engine.PaymentApplication{}, tm.applications...),
		credits:      make(map[engine.CreditID]engine.PaymentCredit, len(tm.credits)),
	}
	for k, v := range tm.units {
		s.units[k] = v
	}
	for k, v := range tm.concepts {
		s.concepts[k] = v
	}
	for k, v := range tm.quotas {
		s.quotas[k] = v
	}
	for k, v := range tm.adjustments {
		s.adjustments[k] = append([]engine.QuotaAdjustment{}, v...)
	}
	for k, v := range tm.configs {
		s.configs[k] = append([]engine.InterestConfiguration{}, v...)
	}
	for k, v := range tm.payments {
		s.payments[k] = v
	}
	for k, v := range tm.credits {
		s.credits[k] = v
	}
	return s
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	tm.units = s.units
	tm.concepts = s.concepts
	tm.quotas = s.quotas
	tm.adjustments = s.adjustments
	tm.configs = s.configs
	tm.rates = s.rates
	tm.payments = s.payments
	tm.applications = s.applications
	tm.credits = s.credits
}
