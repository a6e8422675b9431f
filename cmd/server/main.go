/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the tontine engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (flags, TONTINE_* env, defaults)
  2. Open the entity store (sqlite, badger, or memory)
  3. Create the engine with the Prometheus observer
  4. Create the API handler and round scheduler
  5. Configure HTTP router
  6. Start server with graceful shutdown

FLAGS (env: TONTINE_<FLAG> with dashes as underscores):
  --port                HTTP server port (default: 8080)
  --db-type             sqlite | badger | memory (default: sqlite)
  --db-path             SQLite file or Badger directory (default: tontine.db)
  --log-level           logrus level (default: info)
  --address-prefix      Accepted address prefix (default: addr_safro)
  --advance-policy      manual | on-distribution (default: manual)
  --cors-origins        Allowed CORS origins
  --scheduler-enabled   Distribute rounds automatically (default: false)
  --scheduler-interval  Scheduler check interval (default: 1m)
  --scheduler-operator  Admin or arbitrator address used by the scheduler

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close the store
  5. Exit

EXAMPLES:
  # Run with file database
  ./server --db-path=./data/tontine.db

  # Run on badger with automatic distribution
  ./server --db-type=badger --db-path=./data/badger \
      --scheduler-enabled --scheduler-operator=addr_safro1...

  # Run in memory on a different port
  TONTINE_DB_TYPE=memory TONTINE_PORT=3000 ./server

SEE ALSO:
  - config/config.go: Configuration keys
  - api/server.go: Router configuration
  - api/scheduler.go: Round scheduler
*/
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
	"github.com/warp/tontine-engine/api"
	"github.com/warp/tontine-engine/config"
	"github.com/warp/tontine-engine/generic"
	memstore "github.com/warp/tontine-engine/generic/store"
	"github.com/warp/tontine-engine/metrics"
	badgerdb "github.com/warp/tontine-engine/store/badger"
	"github.com/warp/tontine-engine/store/sqlite"
	"github.com/warp/tontine-engine/tontine"
)

func main() {
	cfg, err := config.LoadConfig(os.Args[1:])
	if err != nil {
		log.WithError(err).Fatal("invalid config")
	}
	log.SetLevel(cfg.LogLevel)

	// Initialize store
	store, closeStore, err := openStore(cfg)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize store")
	}
	defer closeStore()

	engine := tontine.NewEngine(store, tontine.Options{
		AddressPrefix: cfg.AddressPrefix,
		AdvancePolicy: cfg.AdvancePolicy,
		Observer:      metrics.NewCollector(),
	})

	clock := clockwork.NewRealClock()
	handler := api.NewHandler(store, engine, clock)

	scheduler := api.NewRoundScheduler(engine, handler.Reader, clock, cfg.SchedulerOperator)
	scheduler.Enabled = cfg.SchedulerEnabled
	scheduler.CheckInterval = cfg.SchedulerInterval
	scheduler.Start()

	// Create router
	router := api.NewRouter(handler, cfg.CORSOrigins...)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.WithFields(log.Fields{
			"port":           cfg.Port,
			"db_type":        cfg.DbType,
			"advance_policy": cfg.AdvancePolicy,
		}).Info("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")
	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Error("server forced to shutdown")
	}

	log.Info("server stopped")
}

func openStore(cfg *config.Config) (generic.TxStore, func(), error) {
	switch cfg.DbType {
	case "badger":
		s, err := badgerdb.New(cfg.DbPath)
		if err != nil {
			return nil, nil, err
		}
		return s, closer("badger", s.Close), nil
	case "memory":
		return memstore.NewTxMemory(), func() {}, nil
	default:
		s, err := sqlite.New(cfg.DbPath)
		if err != nil {
			return nil, nil, err
		}
		return s, closer("sqlite", s.Close), nil
	}
}

func closer(name string, fn func() error) func() {
	return func() {
		if err := fn(); err != nil {
			log.WithError(err).WithField("store", name).Warn("failed to close store")
		}
	}
}
