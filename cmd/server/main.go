/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the expense report engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Build the logger
  3. Open the aggregate store (sqlite, bolt, or memory)
  4. Start the notification dispatcher
  5. Wire the lifecycle controller and router
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port     HTTP server port (default: 8080)
  -driver   Store driver: sqlite | bolt | memory (default: sqlite)
  -db       Database path (default: expense.db)
            For sqlite, ":memory:" gives an in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Drain the notification dispatcher
  4. Close the store

EXAMPLES:
  # Run with the SQLite store
  ./server -db="./data/expense.db"

  # Run with bbolt
  ./server -driver=bolt -db="./data/expense.bolt"

  # Ephemeral dev server
  ./server -driver=memory

SEE ALSO:
  - api/server.go: Router configuration
  - report/service.go: The lifecycle controller
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

	"go.uber.org/zap"

	"github.com/warp/expense-engine/api"
	"github.com/warp/expense-engine/notify"
	"github.com/warp/expense-engine/report"
	memstore "github.com/warp/expense-engine/report/store"
	"github.com/warp/expense-engine/store/bolt"
	"github.com/warp/expense-engine/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	driver := flag.String("driver", "sqlite", "store driver: sqlite | bolt | memory")
	dbPath := flag.String("db", "expense.db", "database path")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	// Initialize store
	store, closeStore, err := openStore(*driver, *dbPath)
	if err != nil {
		logger.Fatal("failed to open store", zap.String("driver", *driver), zap.Error(err))
	}
	defer closeStore()

	// Notification dispatcher
	dispatcher := notify.NewDispatcher(logger, notify.LogSink(logger))
	defer dispatcher.Close()

	// Wire the controller, handlers, router
	service := report.NewService(store, dispatcher, logger)
	handler := api.NewHandler(service, logger)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server starting",
			zap.Int("port", *port),
			zap.String("driver", *driver))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}

// openStore selects the store implementation for the -driver flag.
func openStore(driver, dbPath string) (report.Store, func() error, error) {
	switch driver {
	case "sqlite":
		s, err := sqlite.New(dbPath)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case "bolt":
		s, err := bolt.New(dbPath)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case "memory":
		return memstore.NewMemory(), func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", driver)
	}
}
