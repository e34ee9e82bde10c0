/*
main.go - Application entry point.

STARTUP SEQUENCE (spec §4.5, folded with this file's own wiring order):
  1. Load config/.env, build logger
  2. Open the SQLite store (applies the schema; validation runs in step 4)
  3. Wire every component (catalog/txn/fiscal/storno/layout/search/importer)
  4. Run recovery.Bootstrap (admin user, pending fiscal ops, stale active
     transactions, printer config) before accepting any websocket traffic
  5. Start the HTTP/websocket server
  6. On SIGINT/SIGTERM, stop accepting new connections, let in-flight
     commands finish (30s), then close the store

Grounded on the teacher's cmd/server/main.go graceful-shutdown shape
(signal.Notify -> Shutdown(ctx) with a bounded timeout), generalized from
one REST mux to the dispatcher's websocket hub.
*/
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/fiskpoint/posengine/dispatcher"
	"github.com/fiskpoint/posengine/fiscal"
	"github.com/fiskpoint/posengine/importer"
	"github.com/fiskpoint/posengine/layout"
	"github.com/fiskpoint/posengine/recovery"
	"github.com/fiskpoint/posengine/search"
	"github.com/fiskpoint/posengine/storno"
	"github.com/fiskpoint/posengine/store/sqlite"
	"github.com/fiskpoint/posengine/txn"
)

func main() {
	cfg := LoadConfig()
	log := newLogger(cfg)

	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open sqlite store")
	}
	store.SetLogger(log)
	defer store.Close()

	catalogRepo := sqlite.NewCatalogRepo(store)
	txnRepo := sqlite.NewTxnRepo(store)
	fiscalRepo := sqlite.NewFiscalRepo(store)
	stornoRepo := sqlite.NewStornoRepo(store)
	layoutRepo := sqlite.NewLayoutRepo(store)
	searchRepo := sqlite.NewSearchRepo(store)

	registry := prometheus.NewRegistry()
	signer := fiscal.NewRetryingSigner(&fiscal.NullSigner{}, 5*time.Second)
	fiscalService := fiscal.NewService(fiscalRepo, signer, log, registry)

	taxTable, err := txn.LoadTaxTable(cfg.TaxTablePath, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load tax table")
	}
	defer taxTable.Close()

	txnEngine := txn.NewEngine(txnRepo, catalogRepo, fiscalService, taxTable, log, txn.LoggingPrinter{Log: log})
	stornoEngine := storno.NewEngine(stornoRepo, catalogRepo, txnRepo, fiscalService, log)
	layoutService := layout.NewService(layoutRepo)

	embedder := search.NullEmbedder{}
	searchService := search.NewService(searchRepo, embedder, log)
	importerService := importer.NewService(catalogRepo, searchRepo, embedder, log)
	_ = importerService // wired for importFromOopMdf; invoked by an operator tool outside the websocket command set (spec §4.8)

	bootstrap := &recovery.Bootstrap{
		Schema:  store,
		Catalog: catalogRepo,
		Txn:     txnRepo,
		Fiscal:  fiscalService,
		Printer: recovery.EnvPrinterConfigLoader{},
		Log:     log,
	}
	bootCtx, bootCancel := context.WithTimeout(context.Background(), 30*time.Second)
	result, err := bootstrap.Run(bootCtx)
	bootCancel()
	if err != nil {
		log.Fatal().Err(err).Msg("recovery bootstrap failed")
	}
	log.Info().
		Bool("admin_created", result.AdminCreated).
		Int("fiscal_committed", result.FiscalCommitted).
		Int("fiscal_needs_review", result.FiscalNeedsReview).
		Int("stale_marked_pending", result.StaleMarkedPending).
		Bool("printer_config_loaded", result.PrinterConfigLoaded).
		Msg("recovery: startup sequence complete")

	dedup := newDedupStore(cfg, log)

	hub := dispatcher.NewHub(nil, dedup, log)
	hub.Router = dispatcher.NewRouterWithRoutes(dispatcher.Routes{
		Catalog: catalogRepo,
		Txn:     txnEngine,
		Storno:  stornoEngine,
		Search:  searchService,
		Layout:  layoutService,
		Hub:     hub,
	})

	mux := hub.NewRouterMux(cfg.CORSOrigins)
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("server: listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server: listen failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info().Msg("server: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("server: graceful shutdown failed")
	}
}

// newDedupStore backs the operation-ID dedup window with Redis when
// REDIS_URL is configured, else the single-process in-memory fallback
// (spec §4.6).
func newDedupStore(cfg *Config, log zerolog.Logger) dispatcher.DedupStore {
	if cfg.RedisURL == "" {
		return dispatcher.NewInMemoryDedupStore(16)
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Warn().Err(err).Str("redis_url", cfg.RedisURL).Msg("dispatcher: invalid REDIS_URL, falling back to in-memory dedup")
		return dispatcher.NewInMemoryDedupStore(16)
	}
	return dispatcher.NewRedisDedupStore(redis.NewClient(opts))
}
