/*
handlers_test.go - HTTP-level tests for the quota engine API

Exercises the full request path (router, handlers, engine, in-memory
store): unit and concept intake, quota generation, payment allocation,
idempotent retries, overpayment credits, and the no-rate retry contract.
*/
package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/condoflow/quota-engine/api"
	"github.com/condoflow/quota-engine/engine/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	handler := api.NewHandler(store.NewTxMemory())
	srv := httptest.NewServer(api.NewRouter(handler))
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body any, out any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

// seedCondo creates a unit, a monthly 50.00 USD concept and the March
// 2024 quota through the public API, returning the quota ID.
func seedCondo(t *testing.T, base string) (unitID, quotaID string) {
	t.Helper()

	var unit api.UnitDTO
	resp := doJSON(t, http.MethodPost, base+"/api/units", map[string]any{
		"condominium":   "Torre Este",
		"label":         "4-B",
		"base_currency": "USD",
	}, &unit)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var concept api.ConceptDTO
	resp = doJSON(t, http.MethodPost, base+"/api/concepts", map[string]any{
		"name":       "maintenance",
		"type":       "maintenance",
		"recurrence": "monthly",
		"amount":     "50",
		"currency":   "USD",
		"due_day":    5,
	}, &concept)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var gen api.GenerateQuotasResponse
	resp = doJSON(t, http.MethodPost, base+"/api/admin/generate-quotas",
		api.GenerateQuotasRequest{Year: 2024, Month: 3}, &gen)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 1, gen.Created)

	var balances []api.QuotaBalanceDTO
	resp = doJSON(t, http.MethodGet, base+"/api/units/"+unit.ID+"/quotas", nil, &balances)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, balances, 1)

	return unit.ID, balances[0].Quota.ID
}

func registerPayment(t *testing.T, base, unitID, amount, currency string) api.PaymentDTO {
	t.Helper()
	var payment api.PaymentDTO
	resp := doJSON(t, http.MethodPost, base+"/api/payments", map[string]any{
		"unit_id":  unitID,
		"amount":   amount,
		"currency": currency,
		"method":   "transfer",
		"date":     "2024-03-10",
	}, &payment)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, "pending_verification", payment.Status)
	return payment
}

// =============================================================================
// ALLOCATION FLOW
// =============================================================================

func TestAPI_PaymentAllocation_PartialThenSettled(t *testing.T) {
	srv := newTestServer(t)
	unitID, quotaID := seedCondo(t, srv.URL)

	// 30.00 against the 50.00 quota.
	p1 := registerPayment(t, srv.URL, unitID, "30", "USD")

	var result api.AllocationResultDTO
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/payments/"+p1.ID+"/allocate", nil, &result)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Len(t, result.Applications, 1)
	assert.Equal(t, "30", result.Applications[0].AppliedToPrincipal.Amount)
	assert.False(t, result.AlreadyApplied)

	var balance api.QuotaBalanceDTO
	resp = doJSON(t, http.MethodGet, srv.URL+"/api/quotas/"+quotaID, nil, &balance)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "partially_paid", balance.Quota.Status)
	assert.Equal(t, "20", balance.OutstandingPrincipal.Amount)

	// 20.00 settles it.
	p2 := registerPayment(t, srv.URL, unitID, "20", "USD")
	resp = doJSON(t, http.MethodPost, srv.URL+"/api/payments/"+p2.ID+"/allocate", nil, &result)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/quotas/"+quotaID, nil, &balance)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "paid", balance.Quota.Status)
	assert.Equal(t, "0", balance.OutstandingPrincipal.Amount)
}

func TestAPI_AllocateTwice_SecondIsIdempotent(t *testing.T) {
	srv := newTestServer(t)
	unitID, _ := seedCondo(t, srv.URL)
	p := registerPayment(t, srv.URL, unitID, "50", "USD")

	var first api.AllocationResultDTO
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/payments/"+p.ID+"/allocate", nil, &first)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var second api.AllocationResultDTO
	resp = doJSON(t, http.MethodPost, srv.URL+"/api/payments/"+p.ID+"/allocate", nil, &second)
	require.Equal(t, http.StatusOK, resp.StatusCode, "replay returns 200, not 201")
	assert.True(t, second.AlreadyApplied)
	require.Len(t, second.Applications, 1)
	assert.Equal(t, first.Applications[0].ID, second.Applications[0].ID)
}

func TestAPI_Overpayment_CreditAndApply(t *testing.T) {
	srv := newTestServer(t)
	unitID, quotaID := seedCondo(t, srv.URL)
	p := registerPayment(t, srv.URL, unitID, "80", "USD")

	var result api.AllocationResultDTO
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/payments/"+p.ID+"/allocate", nil, &result)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NotNil(t, result.Credit)
	assert.Equal(t, "30", result.Credit.Amount.Amount)
	assert.Equal(t, "pending", result.Credit.Status)

	var credits []api.CreditDTO
	resp = doJSON(t, http.MethodGet, srv.URL+"/api/units/"+unitID+"/credits", nil, &credits)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, credits, 1)

	// April arrives; the operator applies the credit to the new quota.
	var gen api.GenerateQuotasResponse
	resp = doJSON(t, http.MethodPost, srv.URL+"/api/admin/generate-quotas",
		api.GenerateQuotasRequest{Year: 2024, Month: 4}, &gen)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 1, gen.Created)

	var balances []api.QuotaBalanceDTO
	resp = doJSON(t, http.MethodGet, srv.URL+"/api/units/"+unitID+"/quotas", nil, &balances)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var aprilQuota string
	for _, b := range balances {
		if b.Quota.ID != quotaID {
			aprilQuota = b.Quota.ID
		}
	}
	require.NotEmpty(t, aprilQuota)

	var applied api.AllocationResultDTO
	resp = doJSON(t, http.MethodPost, srv.URL+"/api/credits/"+credits[0].ID+"/apply",
		api.ApplyCreditRequest{QuotaID: aprilQuota, Actor: "admin@condo"}, &applied)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Len(t, applied.Applications, 1)
	assert.Equal(t, "30", applied.Applications[0].AppliedToPrincipal.Amount)

	// Applying the same credit again conflicts.
	resp = doJSON(t, http.MethodPost, srv.URL+"/api/credits/"+credits[0].ID+"/apply",
		api.ApplyCreditRequest{QuotaID: aprilQuota, Actor: "admin@condo"}, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAPI_MissingRate_Returns503AndParksPayment(t *testing.T) {
	srv := newTestServer(t)
	unitID, _ := seedCondo(t, srv.URL)

	// USD unit, VES payment, no rate recorded.
	p := registerPayment(t, srv.URL, unitID, "1000", "VES")

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/payments/"+p.ID+"/allocate", nil, nil)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))

	var payment api.PaymentDTO
	resp = doJSON(t, http.MethodGet, srv.URL+"/api/payments/"+p.ID, nil, &payment)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "pending", payment.Status, "parked for the scheduler")

	// Backfill the rate; the retry succeeds.
	resp = doJSON(t, http.MethodPost, srv.URL+"/api/rates", api.CreateRateRequest{
		From: "VES", To: "USD", Rate: "0.027", EffectiveDate: "2024-03-01", Source: "BCV",
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var result api.AllocationResultDTO
	resp = doJSON(t, http.MethodPost, srv.URL+"/api/payments/"+p.ID+"/allocate", nil, &result)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Len(t, result.Applications, 1)
	assert.Equal(t, "27", result.Applications[0].AppliedAmount.Amount)
}

// =============================================================================
// ADJUSTMENTS AND RATES
// =============================================================================

func TestAPI_AdjustmentChangesOutstanding(t *testing.T) {
	srv := newTestServer(t)
	_, quotaID := seedCondo(t, srv.URL)

	var adj api.AdjustmentDTO
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/quotas/"+quotaID+"/adjustments",
		api.CreateAdjustmentRequest{
			Type: "discount", NewAmount: "40", Reason: "board resolution", CreatedBy: "admin@condo",
		}, &adj)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "50", adj.PreviousAmount.Amount)
	assert.Equal(t, "40", adj.NewAmount.Amount)

	var balance api.QuotaBalanceDTO
	resp = doJSON(t, http.MethodGet, srv.URL+"/api/quotas/"+quotaID, nil, &balance)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "40", balance.OutstandingPrincipal.Amount)
}

func TestAPI_LatestRateLookup(t *testing.T) {
	srv := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/rates", api.CreateRateRequest{
		From: "USD", To: "VES", Rate: "36.18", EffectiveDate: "2024-03-01", Source: "BCV",
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var got api.RateDTO
	url := fmt.Sprintf("%s/api/rates/latest?from=USD&to=VES&as_of=2024-03-15", srv.URL)
	resp = doJSON(t, http.MethodGet, url, nil, &got)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "36.18", got.Rate)

	url = fmt.Sprintf("%s/api/rates/latest?from=USD&to=VES&as_of=2024-02-01", srv.URL)
	resp = doJSON(t, http.MethodGet, url, nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_InterestConfigOverlapRejected(t *testing.T) {
	srv := newTestServer(t)

	var concept api.ConceptDTO
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/concepts", map[string]any{
		"name": "maintenance", "type": "maintenance", "recurrence": "monthly",
		"amount": "50", "currency": "USD", "due_day": 5, "applies_interest": true,
	}, &concept)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	first := api.CreateInterestConfigRequest{
		ConceptID: concept.ID, Name: "3% monthly", Type: "simple",
		Rate: "0.03", Currency: "USD", Period: "monthly",
		GraceDays: 5, EffectiveFrom: "2024-01-01",
	}
	resp = doJSON(t, http.MethodPost, srv.URL+"/api/interest-configs", first, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	overlapping := first
	overlapping.Name = "5% monthly"
	overlapping.Rate = "0.05"
	overlapping.EffectiveFrom = "2024-06-01"
	resp = doJSON(t, http.MethodPost, srv.URL+"/api/interest-configs", overlapping, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAPI_InterestConfigRejectedWhenConceptDisablesInterest(t *testing.T) {
	srv := newTestServer(t)

	var concept api.ConceptDTO
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/concepts", map[string]any{
		"name": "parking", "type": "maintenance", "recurrence": "monthly",
		"amount": "20", "currency": "USD", "due_day": 5, "applies_interest": false,
	}, &concept)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/interest-configs", api.CreateInterestConfigRequest{
		ConceptID: concept.ID, Name: "3% monthly", Type: "simple",
		Rate: "0.03", Currency: "USD", Period: "monthly",
		GraceDays: 5, EffectiveFrom: "2024-01-01",
	}, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

// =============================================================================
// NOT FOUND
// =============================================================================

func TestAPI_NotFound(t *testing.T) {
	srv := newTestServer(t)

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/units/missing", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/payments/missing/allocate", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
