package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"reconciler-server/internal/config"
	"reconciler-server/internal/handler"
	"reconciler-server/internal/logging"
	"reconciler-server/internal/middleware"
	"reconciler-server/internal/repository"
	"reconciler-server/internal/service"
	"reconciler-server/internal/store"
	"reconciler-server/internal/websocket"

	_ "github.com/go-kivik/kivik/v4/couchdb"
	_ "github.com/mattn/go-sqlite3"

	"github.com/go-kivik/kivik/v4"
	"github.com/gorilla/mux"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging.Level, cfg.Logging.Pretty)

	primaryDB, err := sql.Open("sqlite3", cfg.PrimaryDB.Path)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open primary store")
	}
	defer primaryDB.Close()

	ledgerDB, err := sql.Open("sqlite3", cfg.Ledger.Path)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open ledger database")
	}
	defer ledgerDB.Close()

	couchURL := fmt.Sprintf("http://%s:%s@%s:%s",
		cfg.Secondary.User,
		cfg.Secondary.Password,
		cfg.Secondary.Host,
		cfg.Secondary.Port,
	)

	client, err := kivik.New("couch", couchURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to CouchDB")
	}

	exists, err := client.DBExists(context.Background(), cfg.Secondary.Name)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to check database existence")
	}
	if !exists {
		if err := client.CreateDB(context.Background(), cfg.Secondary.Name); err != nil {
			logger.Fatal().Err(err).Msg("failed to create database")
		}
		logger.Info().Str("db", cfg.Secondary.Name).Msg("created secondary database")
	}

	primaryStore := store.NewSQLitePrimary(primaryDB)
	secondaryStore := store.NewCouchSecondary(client, cfg.Secondary.Name)

	ledger, err := repository.NewSQLiteLedger(ledgerDB)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize conflict ledger")
	}
	ruleRepo := repository.NewRuleRepository(client, cfg.Secondary.Name, logger)

	registry := service.NewRuleRegistry(ruleRepo, logger)
	if err := registry.Reload(context.Background()); err != nil {
		// The engine still classifies with default behaviour; resolution
		// defaults to manual until rules load.
		logger.Warn().Err(err).Msg("failed to load detection rules at startup")
	}

	wsManager := websocket.NewManager(
		cfg.WebSocket.MaxClients,
		cfg.WebSocket.WriteWait,
		cfg.WebSocket.PongWait,
		cfg.WebSocket.PingPeriod,
		logger,
	)
	go wsManager.Run()

	snapshots := service.NewSnapshotReader(primaryStore, secondaryStore)
	classifier := service.NewClassifier(registry, cfg.Engine.TimestampField, cfg.Engine.SkewTolerance)
	executor := service.NewResolutionExecutor(ledger, snapshots, primaryStore, secondaryStore, cfg.Engine.TimestampField, logger)
	metrics := service.NewMetricsAggregator()

	conflictService := service.NewConflictService(
		ledger, snapshots, classifier, executor, registry, metrics,
		wsManager, cfg.Engine.ResolveTimeout, logger,
	)

	if err := conflictService.RebuildMetrics(context.Background()); err != nil {
		logger.Warn().Err(err).Msg("failed to rebuild metrics from ledger")
	}

	conflictHandler := handler.NewConflictHandler(conflictService)
	wsHandler := handler.NewWebSocketHandler(wsManager, logger)

	r := mux.NewRouter()

	r.Use(middleware.LoggerMiddleware(logger))
	r.Use(middleware.CORSMiddleware(
		cfg.CORS.AllowedOrigins,
		cfg.CORS.AllowedMethods,
		cfg.CORS.AllowedHeaders,
	))

	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/conflicts/detect", conflictHandler.Detect).Methods("POST", "OPTIONS")
	api.HandleFunc("/conflicts", conflictHandler.List).Methods("GET", "OPTIONS")
	api.HandleFunc("/conflicts/{id}", conflictHandler.Get).Methods("GET", "OPTIONS")
	api.HandleFunc("/conflicts/{id}/resolve", conflictHandler.Resolve).Methods("POST", "OPTIONS")
	api.HandleFunc("/conflicts/{id}/auto-resolve", conflictHandler.AutoResolve).Methods("POST", "OPTIONS")
	api.HandleFunc("/metrics", conflictHandler.Metrics).Methods("GET", "OPTIONS")
	api.HandleFunc("/rules/reload", conflictHandler.ReloadRules).Methods("POST", "OPTIONS")

	r.HandleFunc("/ws", wsHandler.HandleConnection)
	r.HandleFunc("/health", healthHandler).Methods("GET")

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)

	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("addr", addr).
			Str("env", cfg.Server.Env).
			Str("couch", cfg.Secondary.Host+":"+cfg.Secondary.Port).
			Msg("starting reconciler server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped gracefully")
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy","service":"reconciler-server"}`))
}
