/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the condominium quota engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Initialize SQLite store
  3. Create API handler with dependencies
  4. Start the background scheduler (billing + allocation retries)
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port       HTTP server port (default: 8080)
  -db         SQLite database path (default: quotas.db)
              Use ":memory:" for an in-memory database
  -scheduler  Enable the background scheduler (default: true)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the scheduler
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/quotas.db"

  # Run with in-memory database, no scheduler
  ./server -db=":memory:" -scheduler=false

SEE ALSO:
  - api/server.go: Router configuration
  - api/scheduler.go: Background housekeeping
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/condoflow/quota-engine/api"
	"github.com/condoflow/quota-engine/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "quotas.db", "SQLite database path")
	schedulerOn := flag.Bool("scheduler", true, "run the background billing scheduler")
	flag.Parse()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Initialize handler and router
	handler := api.NewHandler(store)
	router := api.NewRouter(handler)

	// Background scheduler: quota generation, overdue sweep, allocation
	// retries for payments waiting on exchange rates. Shares the
	// handler's allocation service so retries and HTTP allocations
	// serialize per unit.
	scheduler := api.NewScheduler(handler)
	scheduler.Enabled = *schedulerOn
	scheduler.Start()
	defer scheduler.Stop()

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server starting on http://localhost:%d", *port)
		log.Printf("API available at http://localhost:%d/api", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
