/*
handlers.go - HTTP API handlers for the quota engine

PURPOSE:
  Exposes the quota and allocation engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Units:
    GET    /api/units                   List units
    POST   /api/units                   Create unit
    GET    /api/units/{id}              Get unit
    GET    /api/units/{id}/quotas       Outstanding balances (ledger view)
    GET    /api/units/{id}/payments     Payment history
    GET    /api/units/{id}/credits      Overpayment credits

  Concepts:
    GET    /api/concepts                List payment concepts
    POST   /api/concepts                Create concept
    GET    /api/concepts/{id}/interest-configs  List interest windows
    POST   /api/interest-configs        Create interest window

  Quotas:
    GET    /api/quotas/{id}             Quota with projected balance
    POST   /api/quotas/{id}/adjustments Append a correction
    GET    /api/quotas/{id}/applications Settlement history

  Payments:
    POST   /api/payments                Register a payment
    GET    /api/payments/{id}           Get payment
    POST   /api/payments/{id}/allocate  Allocate a verified payment
    GET    /api/payments/{id}/applications How it was applied

  Credits:
    POST   /api/credits/{id}/apply      Apply a credit to a quota

  Rates:
    POST   /api/rates                   Record an exchange rate
    GET    /api/rates/latest            Latest rate for a pair

  Admin:
    POST   /api/admin/generate-quotas   Generate a billing period
    POST   /api/admin/overdue-sweep     Mark past-due quotas overdue

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Conflict (closed quota, resolved credit, overpayment reject)
  - 503: Retryable (no exchange rate yet; client should retry later)
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - engine/service.go: The allocation entry points these wrap
*/
package api

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/condoflow/quota-engine/billing"
	"github.com/condoflow/quota-engine/engine"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     engine.TxStore
	Service   *engine.AllocationService
	Ledger    *engine.LedgerView
	Generator *billing.Generator
	Sweep     *billing.OverdueSweep
}

// NewHandler wires the full handler stack on top of one store.
func NewHandler(store engine.TxStore) *Handler {
	svc := engine.NewAllocationService(store)
	return &Handler{
		Store:     store,
		Service:   svc,
		Ledger:    svc.Ledger,
		Generator: billing.NewGenerator(store),
		Sweep:     billing.NewOverdueSweep(store),
	}
}

// =============================================================================
// UNIT HANDLERS
// =============================================================================

func (h *Handler) ListUnits(w http.ResponseWriter, r *http.Request) {
	units, err := h.Store.ListUnits(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list units", err)
		return
	}

	dtos := make([]UnitDTO, len(units))
	for i, u := range units {
		dtos[i] = toUnitDTO(u)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateUnit(w http.ResponseWriter, r *http.Request) {
	var req CreateUnitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Label == "" || req.BaseCurrency == "" {
		writeError(w, http.StatusBadRequest, "label and base_currency are required", nil)
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	unit := engine.Unit{
		ID:           engine.UnitID(req.ID),
		Condominium:  req.Condominium,
		Label:        req.Label,
		BaseCurrency: engine.Currency(req.BaseCurrency),
		CreatedAt:    time.Now().UTC(),
	}
	if err := h.Store.InsertUnit(r.Context(), unit); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create unit", err)
		return
	}
	writeJSON(w, http.StatusCreated, toUnitDTO(unit))
}

func (h *Handler) GetUnit(w http.ResponseWriter, r *http.Request) {
	id := engine.UnitID(chi.URLParam(r, "id"))

	unit, err := h.Store.GetUnit(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get unit", err)
		return
	}
	if unit == nil {
		writeError(w, http.StatusNotFound, "Unit not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toUnitDTO(*unit))
}

// GetUnitQuotas returns the unit's outstanding quotas with projected
// balances. Optional ?as_of=YYYY-MM-DD, defaults to today.
func (h *Handler) GetUnitQuotas(w http.ResponseWriter, r *http.Request) {
	id := engine.UnitID(chi.URLParam(r, "id"))

	asOf := engine.Today()
	if s := r.URL.Query().Get("as_of"); s != "" {
		d, err := engine.ParseDate(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid as_of date (use YYYY-MM-DD)", err)
			return
		}
		asOf = d
	}

	balances, err := h.Ledger.OutstandingQuotas(r.Context(), id, asOf)
	if err != nil {
		writeDomainError(w, "Failed to compute balances", err)
		return
	}

	dtos := make([]QuotaBalanceDTO, len(balances))
	for i, b := range balances {
		dtos[i] = toQuotaBalanceDTO(b, asOf)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetUnitPayments(w http.ResponseWriter, r *http.Request) {
	id := engine.UnitID(chi.URLParam(r, "id"))

	payments, err := h.Store.PaymentsByUnit(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list payments", err)
		return
	}

	dtos := make([]PaymentDTO, len(payments))
	for i, p := range payments {
		dtos[i] = toPaymentDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetUnitCredits(w http.ResponseWriter, r *http.Request) {
	id := engine.UnitID(chi.URLParam(r, "id"))

	credits, err := h.Store.CreditsByUnit(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list credits", err)
		return
	}

	dtos := make([]CreditDTO, len(credits))
	for i, c := range credits {
		dtos[i] = toCreditDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// CONCEPT HANDLERS
// =============================================================================

func (h *Handler) ListConcepts(w http.ResponseWriter, r *http.Request) {
	concepts, err := h.Store.ListConcepts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list concepts", err)
		return
	}

	dtos := make([]ConceptDTO, len(concepts))
	for i, c := range concepts {
		dtos[i] = toConceptDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateConcept(w http.ResponseWriter, r *http.Request) {
	var req CreateConceptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	amount, err := engine.NewMoneyFromString(req.Amount, engine.Currency(req.Currency))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}
	if req.DueDay < 1 || req.DueDay > 31 {
		writeError(w, http.StatusBadRequest, "due_day must be between 1 and 31", nil)
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	concept := engine.PaymentConcept{
		ID:              engine.ConceptID(req.ID),
		Name:            req.Name,
		Type:            engine.ConceptType(req.Type),
		Recurrence:      engine.Recurrence(req.Recurrence),
		Amount:          amount,
		DueDay:          req.DueDay,
		AppliesInterest: req.AppliesInterest,
		CreatedAt:       time.Now().UTC(),
	}
	if err := h.Store.InsertConcept(r.Context(), concept); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create concept", err)
		return
	}
	writeJSON(w, http.StatusCreated, toConceptDTO(concept))
}

// =============================================================================
// QUOTA HANDLERS
// =============================================================================

// GetQuota returns a single quota with its projected balance as of today.
func (h *Handler) GetQuota(w http.ResponseWriter, r *http.Request) {
	id := engine.QuotaID(chi.URLParam(r, "id"))

	quota, err := h.Store.GetQuota(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get quota", err)
		return
	}
	if quota == nil {
		writeError(w, http.StatusNotFound, "Quota not found", nil)
		return
	}

	asOf := engine.Today()
	balance, err := h.Ledger.BalanceOf(r.Context(), *quota, asOf)
	if err != nil {
		writeDomainError(w, "Failed to compute balance", err)
		return
	}
	writeJSON(w, http.StatusOK, toQuotaBalanceDTO(balance, asOf))
}

// CreateAdjustment appends a correction to the quota's amount history.
func (h *Handler) CreateAdjustment(w http.ResponseWriter, r *http.Request) {
	quotaID := engine.QuotaID(chi.URLParam(r, "id"))

	var req CreateAdjustmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	quota, err := h.Store.GetQuota(r.Context(), quotaID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get quota", err)
		return
	}
	if quota == nil {
		writeError(w, http.StatusNotFound, "Quota not found", nil)
		return
	}
	if quota.Status.Terminal() {
		writeError(w, http.StatusConflict, "Quota is closed", engine.ErrQuotaClosed)
		return
	}

	newAmount, err := engine.NewMoneyFromString(req.NewAmount, quota.BaseAmount.Currency)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid new_amount", err)
		return
	}
	if newAmount.IsNegative() {
		writeError(w, http.StatusBadRequest, "new_amount cannot be negative", nil)
		return
	}

	// The previous amount is the current effective principal, so the
	// adjustment log forms a chain: each entry's previous is the prior
	// entry's new.
	adjustments, err := h.Store.AdjustmentsByQuota(r.Context(), quotaID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load adjustments", err)
		return
	}
	previous := quota.BaseAmount
	for _, a := range adjustments {
		previous = previous.Add(a.Delta())
	}

	adjustment := engine.QuotaAdjustment{
		ID:             engine.AdjustmentID(uuid.NewString()),
		QuotaID:        quotaID,
		Type:           engine.AdjustmentType(req.Type),
		PreviousAmount: previous,
		NewAmount:      newAmount,
		Reason:         req.Reason,
		CreatedBy:      req.CreatedBy,
		CreatedAt:      time.Now().UTC(),
	}
	if err := h.Store.InsertAdjustment(r.Context(), adjustment); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to record adjustment", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAdjustmentDTO(adjustment))
}

func (h *Handler) GetQuotaApplications(w http.ResponseWriter, r *http.Request) {
	id := engine.QuotaID(chi.URLParam(r, "id"))

	apps, err := h.Store.ApplicationsByQuota(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list applications", err)
		return
	}

	dtos := make([]ApplicationDTO, len(apps))
	for i, a := range apps {
		dtos[i] = toApplicationDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// INTEREST CONFIGURATION HANDLERS
// =============================================================================

func (h *Handler) ListInterestConfigs(w http.ResponseWriter, r *http.Request) {
	conceptID := engine.ConceptID(chi.URLParam(r, "id"))

	configs, err := h.Store.ConfigsByConcept(r.Context(), conceptID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list interest configurations", err)
		return
	}

	dtos := make([]InterestConfigDTO, len(configs))
	for i, c := range configs {
		dtos[i] = toInterestConfigDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateInterestConfig(w http.ResponseWriter, r *http.Request) {
	var req CreateInterestConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	effectiveFrom, err := engine.ParseDate(req.EffectiveFrom)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid effective_from (use YYYY-MM-DD)", err)
		return
	}
	var effectiveTo *engine.Date
	if req.EffectiveTo != nil {
		d, err := engine.ParseDate(*req.EffectiveTo)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid effective_to (use YYYY-MM-DD)", err)
			return
		}
		effectiveTo = &d
	}

	rate := decimal.Zero
	if req.Rate != "" {
		rate, err = decimal.NewFromString(req.Rate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid rate", err)
			return
		}
	}
	fixed := engine.Zero(engine.Currency(req.Currency))
	if req.FixedAmount != "" {
		fixed, err = engine.NewMoneyFromString(req.FixedAmount, engine.Currency(req.Currency))
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid fixed_amount", err)
			return
		}
	}

	config := engine.InterestConfiguration{
		ID:            engine.ConfigID(uuid.NewString()),
		ConceptID:     engine.ConceptID(req.ConceptID),
		Name:          req.Name,
		Type:          engine.InterestType(req.Type),
		Rate:          rate,
		FixedAmount:   fixed,
		Period:        engine.RatePeriod(req.Period),
		GraceDays:     req.GraceDays,
		EffectiveFrom: effectiveFrom,
		EffectiveTo:   effectiveTo,
		CreatedAt:     time.Now().UTC(),
	}

	concept, err := h.Store.GetConcept(r.Context(), config.ConceptID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get concept", err)
		return
	}
	if concept == nil {
		writeError(w, http.StatusNotFound, "Concept not found", nil)
		return
	}
	if !concept.AppliesInterest {
		writeDomainError(w, "Concept does not apply interest", engine.ErrInterestDisabled)
		return
	}

	existing, err := h.Store.ConfigsByConcept(r.Context(), config.ConceptID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load existing configurations", err)
		return
	}
	if err := engine.ValidateConfiguration(config, existing); err != nil {
		writeDomainError(w, "Invalid interest configuration", err)
		return
	}

	if err := h.Store.InsertConfig(r.Context(), config); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create interest configuration", err)
		return
	}
	writeJSON(w, http.StatusCreated, toInterestConfigDTO(config))
}

// =============================================================================
// EXCHANGE RATE HANDLERS
// =============================================================================

func (h *Handler) CreateRate(w http.ResponseWriter, r *http.Request) {
	var req CreateRateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	rate, err := decimal.NewFromString(req.Rate)
	if err != nil || !rate.IsPositive() {
		writeError(w, http.StatusBadRequest, "rate must be a positive decimal string", err)
		return
	}
	effectiveDate, err := engine.ParseDate(req.EffectiveDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid effective_date (use YYYY-MM-DD)", err)
		return
	}
	if req.From == "" || req.To == "" || req.From == req.To {
		writeError(w, http.StatusBadRequest, "from and to must be distinct currencies", nil)
		return
	}

	record := engine.ExchangeRate{
		ID:            engine.RateID(uuid.NewString()),
		From:          engine.Currency(req.From),
		To:            engine.Currency(req.To),
		Rate:          rate,
		EffectiveDate: effectiveDate,
		Source:        req.Source,
		CreatedAt:     time.Now().UTC(),
	}
	if err := h.Store.InsertRate(r.Context(), record); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to record rate", err)
		return
	}
	writeJSON(w, http.StatusCreated, toRateDTO(record))
}

// GetLatestRate returns the rate in force for ?from=&to=&as_of=.
func (h *Handler) GetLatestRate(w http.ResponseWriter, r *http.Request) {
	from := engine.Currency(r.URL.Query().Get("from"))
	to := engine.Currency(r.URL.Query().Get("to"))
	if from == "" || to == "" {
		writeError(w, http.StatusBadRequest, "from and to query parameters are required", nil)
		return
	}

	asOf := engine.Today()
	if s := r.URL.Query().Get("as_of"); s != "" {
		d, err := engine.ParseDate(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid as_of date (use YYYY-MM-DD)", err)
			return
		}
		asOf = d
	}

	rate, err := h.Store.LatestRate(r.Context(), from, to, asOf)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to query rate", err)
		return
	}
	if rate == nil {
		writeError(w, http.StatusNotFound, "No rate for pair on or before date", nil)
		return
	}
	writeJSON(w, http.StatusOK, toRateDTO(*rate))
}

// =============================================================================
// PAYMENT HANDLERS
// =============================================================================

// CreatePayment records an incoming payment in pending_verification.
// Allocation happens separately, once the payment is verified.
func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req CreatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	amount, err := engine.NewMoneyFromString(req.Amount, engine.Currency(req.Currency))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}
	if !amount.IsPositive() {
		writeError(w, http.StatusBadRequest, "amount must be positive", nil)
		return
	}
	date, err := engine.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date (use YYYY-MM-DD)", err)
		return
	}

	unit, err := h.Store.GetUnit(r.Context(), engine.UnitID(req.UnitID))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get unit", err)
		return
	}
	if unit == nil {
		writeError(w, http.StatusNotFound, "Unit not found", nil)
		return
	}

	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	payment := engine.Payment{
		ID:        engine.PaymentID(req.ID),
		UnitID:    unit.ID,
		PayerID:   req.PayerID,
		Amount:    amount,
		Method:    engine.PaymentMethod(req.Method),
		Reference: req.Reference,
		Date:      date,
		Status:    engine.PaymentPendingVerification,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.Store.InsertPayment(r.Context(), payment); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to record payment", err)
		return
	}
	writeJSON(w, http.StatusCreated, toPaymentDTO(payment))
}

func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	id := engine.PaymentID(chi.URLParam(r, "id"))

	payment, err := h.Store.GetPayment(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get payment", err)
		return
	}
	if payment == nil {
		writeError(w, http.StatusNotFound, "Payment not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTO(*payment))
}

// AllocatePayment runs the verified payment through the allocation
// engine. Idempotent: repeating the call returns the prior result.
func (h *Handler) AllocatePayment(w http.ResponseWriter, r *http.Request) {
	id := engine.PaymentID(chi.URLParam(r, "id"))

	result, err := h.Service.RegisterCompletedPayment(r.Context(), id)
	if err != nil {
		if engine.IsRetryable(err) {
			// The payment is verified but cannot be allocated until the
			// rate arrives. Park it in pending so the scheduler picks it
			// up; best effort, the 503 already tells the client to retry.
			if uerr := h.Store.UpdatePaymentStatus(r.Context(), id, engine.PaymentPending); uerr != nil {
				log.Printf("[API] parking payment %s for retry: %v", id, uerr)
			}
		}
		writeDomainError(w, "Failed to allocate payment", err)
		return
	}

	status := http.StatusCreated
	if result.AlreadyApplied {
		status = http.StatusOK
	}
	writeJSON(w, status, toAllocationResultDTO(result))
}

func (h *Handler) GetPaymentApplications(w http.ResponseWriter, r *http.Request) {
	id := engine.PaymentID(chi.URLParam(r, "id"))

	apps, err := h.Store.ApplicationsByPayment(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list applications", err)
		return
	}

	dtos := make([]ApplicationDTO, len(apps))
	for i, a := range apps {
		dtos[i] = toApplicationDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// CREDIT HANDLERS
// =============================================================================

// ApplyCredit resolves a pending overpayment credit against a quota.
func (h *Handler) ApplyCredit(w http.ResponseWriter, r *http.Request) {
	id := engine.CreditID(chi.URLParam(r, "id"))

	var req ApplyCreditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.QuotaID == "" {
		writeError(w, http.StatusBadRequest, "quota_id is required", nil)
		return
	}

	result, err := h.Service.ApplyCreditToQuota(r.Context(), id, engine.QuotaID(req.QuotaID), req.Actor, req.Notes)
	if err != nil {
		writeDomainError(w, "Failed to apply credit", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAllocationResultDTO(result))
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// GenerateQuotas materializes the quotas for one billing period.
func (h *Handler) GenerateQuotas(w http.ResponseWriter, r *http.Request) {
	var req GenerateQuotasRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	result, err := h.Generator.GenerateForPeriod(r.Context(), req.Year, req.Month)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to generate quotas", err)
		return
	}
	writeJSON(w, http.StatusOK, GenerateQuotasResponse{
		Year:    result.PeriodYear,
		Month:   result.PeriodMonth,
		Created: result.Created,
		Skipped: result.Skipped,
	})
}

// RunOverdueSweep marks past-due pending quotas overdue.
func (h *Handler) RunOverdueSweep(w http.ResponseWriter, r *http.Request) {
	asOf := engine.Today()
	marked, err := h.Sweep.Run(r.Context(), asOf)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Overdue sweep failed", err)
		return
	}
	writeJSON(w, http.StatusOK, OverdueSweepResponse{AsOf: asOf.String(), Marked: marked})
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps engine error categories to HTTP status codes.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case engine.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case engine.IsRetryable(err):
		// The rate will be backfilled; the client (or the scheduler)
		// retries the same call later.
		w.Header().Set("Retry-After", "3600")
		writeError(w, http.StatusServiceUnavailable, message, err)
	case engine.IsClientError(err):
		writeError(w, http.StatusConflict, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
