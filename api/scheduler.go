/*
scheduler.go - Background billing and allocation-retry scheduler

PURPOSE:
  Runs the periodic housekeeping the engine needs but no request
  triggers:
  1. Generate the current billing period's quotas.
  2. Mark past-due pending quotas as overdue.
  3. Retry allocation of payments stuck waiting on an exchange rate.

DESIGN:
  - One background goroutine, configurable check interval
  - Every task is idempotent, so overlapping or repeated runs are safe
  - Retryable allocation failures are logged and left for the next tick;
    anything else on the retry path is logged loudly because it needs an
    operator

USAGE:
  scheduler := NewScheduler(handler)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - billing/generator.go, billing/overdue.go: the tasks
  - engine/service.go: RegisterCompletedPayment (the retried call)
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/condoflow/quota-engine/billing"
	"github.com/condoflow/quota-engine/engine"
)

// Scheduler drives periodic quota generation, the overdue sweep and
// allocation retries.
type Scheduler struct {
	Store         engine.TxStore
	Service       *engine.AllocationService
	Generator     *billing.Generator
	Sweep         *billing.OverdueSweep
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewScheduler creates a scheduler with a one-hour check interval. It
// shares the handler's allocation service so a scheduler retry and an
// HTTP allocation for the same unit serialize on the same per-unit
// locks; building a second service over the same store would give each
// its own lock registry and let two commits race.
func NewScheduler(h *Handler) *Scheduler {
	return &Scheduler{
		Store:         h.Store,
		Service:       h.Service,
		Generator:     h.Generator,
		Sweep:         h.Sweep,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		stop:          make(chan bool),
	}
}

// Start begins the scheduler.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		log.Println("[Scheduler] Disabled, not starting")
		return
	}

	s.ticker = time.NewTicker(s.CheckInterval)
	s.wg.Add(1)

	go s.run()

	log.Printf("[Scheduler] Started with check interval: %v", s.CheckInterval)
}

// Stop stops the scheduler.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		log.Println("[Scheduler] Stopped")
	}
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	// Run immediately on start
	s.tick()

	for {
		select {
		case <-s.ticker.C:
			s.tick()
		case <-s.stop:
			return
		}
	}
}

func (s *Scheduler) tick() {
	ctx := context.Background()
	now := time.Now().UTC()
	today := engine.DateOf(now)

	// CatchUp rather than a single period: a restart after downtime that
	// crossed a month boundary backfills the periods in between.
	if _, err := s.Generator.CatchUp(ctx, now.Year(), int(now.Month())); err != nil {
		log.Printf("[Scheduler] Quota generation failed: %v", err)
	}

	if _, err := s.Sweep.Run(ctx, today); err != nil {
		log.Printf("[Scheduler] Overdue sweep failed: %v", err)
	}

	s.retryAllocations(ctx)
}

// retryAllocations re-runs allocation for payments that were verified
// but could not be allocated at the time (typically a missing rate).
func (s *Scheduler) retryAllocations(ctx context.Context) {
	payments, err := s.Store.UnallocatedCompleted(ctx)
	if err != nil {
		log.Printf("[Scheduler] Listing unallocated payments failed: %v", err)
		return
	}

	allocated := 0
	waiting := 0
	for _, p := range payments {
		if _, err := s.Service.RegisterCompletedPayment(ctx, p.ID); err != nil {
			if engine.IsRetryable(err) {
				waiting++
				continue
			}
			log.Printf("[Scheduler] Allocation of payment %s failed: %v", p.ID, err)
			continue
		}
		allocated++
	}

	if allocated > 0 || waiting > 0 {
		log.Printf("[Scheduler] Allocation retry: %d allocated, %d still waiting on rates", allocated, waiting)
	}
}

// RunNow triggers an immediate tick (for testing/admin).
func (s *Scheduler) RunNow() {
	s.tick()
}
