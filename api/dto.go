/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY ON THE WIRE:
  Amounts travel as decimal strings, never JSON numbers. A JSON number
  round-trips through float64 and corrupts the cents.

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data
  carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - engine/types.go: The domain model these project
*/
package api

import (
	"time"

	"github.com/condoflow/quota-engine/engine"
)

// =============================================================================
// SHARED
// =============================================================================

// MoneyDTO carries an amount as a decimal string plus its currency.
type MoneyDTO struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

func toMoneyDTO(m engine.Money) MoneyDTO {
	return MoneyDTO{Amount: m.Amount.String(), Currency: string(m.Currency)}
}

// ErrorResponse is the uniform error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// UNITS
// =============================================================================

type UnitDTO struct {
	ID           string `json:"id"`
	Condominium  string `json:"condominium"`
	Label        string `json:"label"`
	BaseCurrency string `json:"base_currency"`
	CreatedAt    string `json:"created_at,omitempty"`
}

func toUnitDTO(u engine.Unit) UnitDTO {
	return UnitDTO{
		ID:           string(u.ID),
		Condominium:  u.Condominium,
		Label:        u.Label,
		BaseCurrency: string(u.BaseCurrency),
		CreatedAt:    u.CreatedAt.Format(time.RFC3339),
	}
}

type CreateUnitRequest struct {
	ID           string `json:"id,omitempty"`
	Condominium  string `json:"condominium"`
	Label        string `json:"label"`
	BaseCurrency string `json:"base_currency"`
}

// =============================================================================
// PAYMENT CONCEPTS
// =============================================================================

type ConceptDTO struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Type            string   `json:"type"`
	Recurrence      string   `json:"recurrence"`
	Amount          MoneyDTO `json:"amount"`
	DueDay          int      `json:"due_day"`
	AppliesInterest bool     `json:"applies_interest"`
	CreatedAt       string   `json:"created_at,omitempty"`
}

func toConceptDTO(c engine.PaymentConcept) ConceptDTO {
	return ConceptDTO{
		ID:              string(c.ID),
		Name:            c.Name,
		Type:            string(c.Type),
		Recurrence:      string(c.Recurrence),
		Amount:          toMoneyDTO(c.Amount),
		DueDay:          c.DueDay,
		AppliesInterest: c.AppliesInterest,
		CreatedAt:       c.CreatedAt.Format(time.RFC3339),
	}
}

type CreateConceptRequest struct {
	ID              string `json:"id,omitempty"`
	Name            string `json:"name"`
	Type            string `json:"type"`
	Recurrence      string `json:"recurrence"`
	Amount          string `json:"amount"`
	Currency        string `json:"currency"`
	DueDay          int    `json:"due_day"`
	AppliesInterest bool   `json:"applies_interest"`
}

// =============================================================================
// QUOTAS AND BALANCES
// =============================================================================

type QuotaDTO struct {
	ID          string   `json:"id"`
	UnitID      string   `json:"unit_id"`
	ConceptID   string   `json:"concept_id"`
	PeriodYear  int      `json:"period_year"`
	PeriodMonth int      `json:"period_month"`
	DueDate     string   `json:"due_date"`
	BaseAmount  MoneyDTO `json:"base_amount"`
	Status      string   `json:"status"`
	Notes       string   `json:"notes,omitempty"`
	CreatedAt   string   `json:"created_at,omitempty"`
}

func toQuotaDTO(q engine.Quota) QuotaDTO {
	return QuotaDTO{
		ID:          string(q.ID),
		UnitID:      string(q.UnitID),
		ConceptID:   string(q.ConceptID),
		PeriodYear:  q.PeriodYear,
		PeriodMonth: q.PeriodMonth,
		DueDate:     q.DueDate.String(),
		BaseAmount:  toMoneyDTO(q.BaseAmount),
		Status:      string(q.Status),
		Notes:       q.Notes,
		CreatedAt:   q.CreatedAt.Format(time.RFC3339),
	}
}

// QuotaBalanceDTO is a quota plus its projected balance as of a date.
type QuotaBalanceDTO struct {
	Quota                QuotaDTO `json:"quota"`
	OutstandingPrincipal MoneyDTO `json:"outstanding_principal"`
	AccruedInterest      MoneyDTO `json:"accrued_interest"`
	TotalDue             MoneyDTO `json:"total_due"`
	AsOf                 string   `json:"as_of"`
}

func toQuotaBalanceDTO(b engine.QuotaBalance, asOf engine.Date) QuotaBalanceDTO {
	return QuotaBalanceDTO{
		Quota:                toQuotaDTO(b.Quota),
		OutstandingPrincipal: toMoneyDTO(b.OutstandingPrincipal),
		AccruedInterest:      toMoneyDTO(b.AccruedInterest),
		TotalDue:             toMoneyDTO(b.TotalDue),
		AsOf:                 asOf.String(),
	}
}

// =============================================================================
// ADJUSTMENTS
// =============================================================================

type AdjustmentDTO struct {
	ID             string   `json:"id"`
	QuotaID        string   `json:"quota_id"`
	Type           string   `json:"type"`
	PreviousAmount MoneyDTO `json:"previous_amount"`
	NewAmount      MoneyDTO `json:"new_amount"`
	Reason         string   `json:"reason,omitempty"`
	CreatedBy      string   `json:"created_by,omitempty"`
	CreatedAt      string   `json:"created_at,omitempty"`
}

func toAdjustmentDTO(a engine.QuotaAdjustment) AdjustmentDTO {
	return AdjustmentDTO{
		ID:             string(a.ID),
		QuotaID:        string(a.QuotaID),
		Type:           string(a.Type),
		PreviousAmount: toMoneyDTO(a.PreviousAmount),
		NewAmount:      toMoneyDTO(a.NewAmount),
		Reason:         a.Reason,
		CreatedBy:      a.CreatedBy,
		CreatedAt:      a.CreatedAt.Format(time.RFC3339),
	}
}

type CreateAdjustmentRequest struct {
	Type      string `json:"type"`
	NewAmount string `json:"new_amount"`
	Reason    string `json:"reason"`
	CreatedBy string `json:"created_by"`
}

// =============================================================================
// INTEREST CONFIGURATIONS
// =============================================================================

type InterestConfigDTO struct {
	ID            string   `json:"id"`
	ConceptID     string   `json:"concept_id"`
	Name          string   `json:"name"`
	Type          string   `json:"type"`
	Rate          string   `json:"rate"`
	FixedAmount   MoneyDTO `json:"fixed_amount"`
	Period        string   `json:"period"`
	GraceDays     int      `json:"grace_days"`
	EffectiveFrom string   `json:"effective_from"`
	EffectiveTo   *string  `json:"effective_to,omitempty"`
	CreatedAt     string   `json:"created_at,omitempty"`
}

func toInterestConfigDTO(c engine.InterestConfiguration) InterestConfigDTO {
	dto := InterestConfigDTO{
		ID:            string(c.ID),
		ConceptID:     string(c.ConceptID),
		Name:          c.Name,
		Type:          string(c.Type),
		Rate:          c.Rate.String(),
		FixedAmount:   toMoneyDTO(c.FixedAmount),
		Period:        string(c.Period),
		GraceDays:     c.GraceDays,
		EffectiveFrom: c.EffectiveFrom.String(),
		CreatedAt:     c.CreatedAt.Format(time.RFC3339),
	}
	if c.EffectiveTo != nil {
		s := c.EffectiveTo.String()
		dto.EffectiveTo = &s
	}
	return dto
}

type CreateInterestConfigRequest struct {
	ConceptID     string  `json:"concept_id"`
	Name          string  `json:"name"`
	Type          string  `json:"type"`
	Rate          string  `json:"rate,omitempty"`
	FixedAmount   string  `json:"fixed_amount,omitempty"`
	Currency      string  `json:"currency,omitempty"`
	Period        string  `json:"period"`
	GraceDays     int     `json:"grace_days"`
	EffectiveFrom string  `json:"effective_from"`
	EffectiveTo   *string `json:"effective_to,omitempty"`
}

// =============================================================================
// EXCHANGE RATES
// =============================================================================

type RateDTO struct {
	ID            string `json:"id"`
	From          string `json:"from"`
	To            string `json:"to"`
	Rate          string `json:"rate"`
	EffectiveDate string `json:"effective_date"`
	Source        string `json:"source,omitempty"`
	CreatedAt     string `json:"created_at,omitempty"`
}

func toRateDTO(r engine.ExchangeRate) RateDTO {
	return RateDTO{
		ID:            string(r.ID),
		From:          string(r.From),
		To:            string(r.To),
		Rate:          r.Rate.String(),
		EffectiveDate: r.EffectiveDate.String(),
		Source:        r.Source,
		CreatedAt:     r.CreatedAt.Format(time.RFC3339),
	}
}

type CreateRateRequest struct {
	From          string `json:"from"`
	To            string `json:"to"`
	Rate          string `json:"rate"`
	EffectiveDate string `json:"effective_date"`
	Source        string `json:"source,omitempty"`
}

// =============================================================================
// PAYMENTS, APPLICATIONS, CREDITS
// =============================================================================

type PaymentDTO struct {
	ID        string   `json:"id"`
	UnitID    string   `json:"unit_id"`
	PayerID   string   `json:"payer_id,omitempty"`
	Amount    MoneyDTO `json:"amount"`
	Method    string   `json:"method"`
	Reference string   `json:"reference,omitempty"`
	Date      string   `json:"date"`
	Status    string   `json:"status"`
	CreatedAt string   `json:"created_at,omitempty"`
}

func toPaymentDTO(p engine.Payment) PaymentDTO {
	return PaymentDTO{
		ID:        string(p.ID),
		UnitID:    string(p.UnitID),
		PayerID:   p.PayerID,
		Amount:    toMoneyDTO(p.Amount),
		Method:    string(p.Method),
		Reference: p.Reference,
		Date:      p.Date.String(),
		Status:    string(p.Status),
		CreatedAt: p.CreatedAt.Format(time.RFC3339),
	}
}

type CreatePaymentRequest struct {
	ID        string `json:"id,omitempty"`
	UnitID    string `json:"unit_id"`
	PayerID   string `json:"payer_id,omitempty"`
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
	Method    string `json:"method"`
	Reference string `json:"reference,omitempty"`
	Date      string `json:"date"`
}

type ApplicationDTO struct {
	ID                 string   `json:"id"`
	PaymentID          string   `json:"payment_id"`
	QuotaID            string   `json:"quota_id"`
	AppliedAmount      MoneyDTO `json:"applied_amount"`
	AppliedToPrincipal MoneyDTO `json:"applied_to_principal"`
	AppliedToInterest  MoneyDTO `json:"applied_to_interest"`
	RateUsed           *RateDTO `json:"rate_used,omitempty"`
	CreatedAt          string   `json:"created_at,omitempty"`
}

func toApplicationDTO(a engine.PaymentApplication) ApplicationDTO {
	dto := ApplicationDTO{
		ID:                 string(a.ID),
		PaymentID:          string(a.PaymentID),
		QuotaID:            string(a.QuotaID),
		AppliedAmount:      toMoneyDTO(a.AppliedAmount),
		AppliedToPrincipal: toMoneyDTO(a.AppliedToPrincipal),
		AppliedToInterest:  toMoneyDTO(a.AppliedToInterest),
		CreatedAt:          a.CreatedAt.Format(time.RFC3339),
	}
	if a.RateUsed != nil {
		r := toRateDTO(*a.RateUsed)
		dto.RateUsed = &r
	}
	return dto
}

type CreditDTO struct {
	ID               string   `json:"id"`
	UnitID           string   `json:"unit_id"`
	PaymentID        string   `json:"payment_id"`
	Amount           MoneyDTO `json:"amount"`
	Status           string   `json:"status"`
	ResolutionNotes  string   `json:"resolution_notes,omitempty"`
	AllocatedQuotaID *string  `json:"allocated_quota_id,omitempty"`
	AllocatedBy      string   `json:"allocated_by,omitempty"`
	AllocatedAt      *string  `json:"allocated_at,omitempty"`
	CreatedAt        string   `json:"created_at,omitempty"`
}

func toCreditDTO(c engine.PaymentCredit) CreditDTO {
	dto := CreditDTO{
		ID:              string(c.ID),
		UnitID:          string(c.UnitID),
		PaymentID:       string(c.PaymentID),
		Amount:          toMoneyDTO(c.Amount),
		Status:          string(c.Status),
		ResolutionNotes: c.ResolutionNotes,
		AllocatedBy:     c.AllocatedBy,
		CreatedAt:       c.CreatedAt.Format(time.RFC3339),
	}
	if c.AllocatedQuotaID != nil {
		s := string(*c.AllocatedQuotaID)
		dto.AllocatedQuotaID = &s
	}
	if c.AllocatedAt != nil {
		s := c.AllocatedAt.Format(time.RFC3339)
		dto.AllocatedAt = &s
	}
	return dto
}

type ApplyCreditRequest struct {
	QuotaID string `json:"quota_id"`
	Actor   string `json:"actor"`
	Notes   string `json:"notes,omitempty"`
}

// AllocationResultDTO is the outcome of registering a payment or
// applying a credit.
type AllocationResultDTO struct {
	PaymentID      string           `json:"payment_id"`
	Applications   []ApplicationDTO `json:"applications"`
	Credit         *CreditDTO       `json:"credit,omitempty"`
	AlreadyApplied bool             `json:"already_applied"`
}

func toAllocationResultDTO(r engine.CommitResult) AllocationResultDTO {
	dto := AllocationResultDTO{
		PaymentID:      string(r.PaymentID),
		Applications:   make([]ApplicationDTO, len(r.Applications)),
		AlreadyApplied: r.AlreadyApplied,
	}
	for i, a := range r.Applications {
		dto.Applications[i] = toApplicationDTO(a)
	}
	if r.Credit != nil {
		c := toCreditDTO(*r.Credit)
		dto.Credit = &c
	}
	return dto
}

// =============================================================================
// ADMIN
// =============================================================================

type GenerateQuotasRequest struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

type GenerateQuotasResponse struct {
	Year    int `json:"year"`
	Month   int `json:"month"`
	Created int `json:"created"`
	Skipped int `json:"skipped"`
}

type OverdueSweepResponse struct {
	AsOf   string `json:"as_of"`
	Marked int    `json:"marked"`
}
