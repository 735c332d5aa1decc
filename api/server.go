/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the admin frontend

ROUTE GROUPS:
  /api/units/*            Units and their ledger views
  /api/concepts/*         Fee concepts and interest windows
  /api/quotas/*           Quotas, adjustments, settlement history
  /api/payments/*         Payment intake and allocation
  /api/credits/*          Overpayment credit resolution
  /api/rates/*            Exchange rates
  /api/admin/*            Billing generation and sweeps

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/units", func(r chi.Router) {
			r.Get("/", h.ListUnits)
			r.Post("/", h.CreateUnit)
			r.Get("/{id}", h.GetUnit)
			r.Get("/{id}/quotas", h.GetUnitQuotas)
			r.Get("/{id}/payments", h.GetUnitPayments)
			r.Get("/{id}/credits", h.GetUnitCredits)
		})

		r.Route("/concepts", func(r chi.Router) {
			r.Get("/", h.ListConcepts)
			r.Post("/", h.CreateConcept)
			r.Get("/{id}/interest-configs", h.ListInterestConfigs)
		})

		r.Route("/quotas", func(r chi.Router) {
			r.Get("/{id}", h.GetQuota)
			r.Post("/{id}/adjustments", h.CreateAdjustment)
			r.Get("/{id}/applications", h.GetQuotaApplications)
		})

		r.Route("/interest-configs", func(r chi.Router) {
			r.Post("/", h.CreateInterestConfig)
		})

		r.Route("/rates", func(r chi.Router) {
			r.Post("/", h.CreateRate)
			r.Get("/latest", h.GetLatestRate)
		})

		r.Route("/payments", func(r chi.Router) {
			r.Post("/", h.CreatePayment)
			r.Get("/{id}", h.GetPayment)
			r.Post("/{id}/allocate", h.AllocatePayment)
			r.Get("/{id}/applications", h.GetPaymentApplications)
		})

		r.Route("/credits", func(r chi.Router) {
			r.Post("/{id}/apply", h.ApplyCredit)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/generate-quotas", h.GenerateQuotas)
			r.Post("/overdue-sweep", h.RunOverdueSweep)
		})
	})

	return r
}
