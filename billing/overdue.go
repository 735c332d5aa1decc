/*
overdue.go - The overdue sweep

PURPOSE:
  Marks pending quotas whose due date has passed as overdue. The status
  is informational for reporting and collection workflows; interest
  accrual derives from due dates and grace periods directly and does not
  depend on this transition having run.

IDEMPOTENCY:
  The sweep only selects quotas still in pending, so running it twice on
  the same day is a no-op the second time. Partially-paid quotas keep
  their status; the arrears they carry is visible through the ledger
  view regardless.
*/
package billing

import (
	"context"
	"fmt"
	"log"

	"github.com/condoflow/quota-engine/engine"
)

// OverdueSweep transitions past-due pending quotas to overdue.
type OverdueSweep struct {
	Store engine.Store
}

func NewOverdueSweep(store engine.Store) *OverdueSweep {
	return &OverdueSweep{Store: store}
}

// Run marks every pending quota due strictly before asOf as overdue and
// returns how many it transitioned.
func (s *OverdueSweep) Run(ctx context.Context, asOf engine.Date) (int, error) {
	due, err := s.Store.PendingDueBefore(ctx, asOf)
	if err != nil {
		return 0, fmt.Errorf("pending due before %s: %w", asOf, err)
	}

	marked := 0
	for _, q := range due {
		if err := s.Store.UpdateQuotaStatus(ctx, q.ID, engine.QuotaOverdue); err != nil {
			return marked, fmt.Errorf("quota %s -> overdue: %w", q.ID, err)
		}
		marked++
	}

	if marked > 0 {
		log.Printf("[BILLING] overdue sweep as of %s: %d quota(s) marked", asOf, marked)
	}
	return marked, nil
}
