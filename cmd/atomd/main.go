// Package main — atomd is the ATOM reputation engine daemon: it wires
// config, logging/metrics, persistence, the registry, the ingest poller,
// and the HTTP/websocket surface together and runs until signalled to stop.
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/atomreputation/atom/internal/api"
	"github.com/atomreputation/atom/internal/config"
	"github.com/atomreputation/atom/internal/ingest"
	"github.com/atomreputation/atom/internal/obs"
	"github.com/atomreputation/atom/internal/registry"
	"github.com/atomreputation/atom/internal/store"
	"github.com/atomreputation/atom/pkg/atom"
)

func main() {
	configPath := flag.String("config", "/etc/atomd/config.yaml", "Path to config.yaml")
	flag.Parse()

	// ── Step 1: Load config ──────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: config load failed: %v\n", err)
		os.Exit(1)
	}

	// ── Step 2: Logging + metrics ─────────────────────────────────────────
	log, err := obs.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	metrics := obs.NewMetrics()

	log.Info("atomd starting", zap.String("node_id", cfg.NodeID), zap.String("config", *configPath))

	// ── Step 3: Persistence ───────────────────────────────────────────────
	var dbStore *store.PostgresStore
	if cfg.Postgres.DSN != "" {
		dbStore, err = store.Connect(cfg.Postgres.DSN)
		if err != nil {
			log.Warn("failed to connect to PostgreSQL, continuing with in-memory state only", zap.Error(err))
		} else {
			defer dbStore.Close()
			if err := dbStore.InitSchema(); err != nil {
				log.Warn("schema init failed", zap.Error(err))
			}
		}
	} else {
		log.Warn("postgres.dsn is empty — running with no persistence, state is lost on restart")
	}

	// ── Step 4: Engine + registry ──────────────────────────────────────────
	var authority atom.AgentID
	authorityBytes, err := hex.DecodeString(cfg.Authority)
	if err != nil || len(authorityBytes) != len(authority) {
		log.Fatal("invalid authority in config", zap.Error(err))
	}
	copy(authority[:], authorityBytes)

	engine := atom.NewEngine(atom.NoopSink{})
	if err := engine.InitConfig(authority, atom.DefaultConfig(authority)); err != nil {
		log.Fatal("engine config init failed", zap.Error(err))
	}

	var loader registry.Loader
	if dbStore != nil {
		loader = dbStore
	}
	reg := registry.New(engine, loader)

	// ── Step 5: Ingest queue + poller ───────────────────────────────────────
	queue := ingest.NewQueue(cfg.Ingest.QueueCapacity)

	wsHub := api.NewHub(log)
	go wsHub.Run()

	var persister ingest.Persister
	if dbStore != nil {
		persister = dbStore
	}
	poller := ingest.NewPoller(queue, reg, persister, wsHub, metrics, log)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go poller.Run(ctx)

	// ── Step 6: HTTP surface ────────────────────────────────────────────────
	router := api.SetupRouter(cfg.HTTP, cfg.RateLimit, reg, queue, dbStore, engine, wsHub, metrics, log)
	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("http server listening", zap.String("addr", cfg.HTTP.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("http server failed", zap.Error(err))
		}
	}()

	// ── Step 7: Block until signalled, then shut down in reverse order ──────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("shutdown signal received", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown error", zap.Error(err))
	}

	cancel() // stops the ingest poller
	log.Info("atomd stopped")
}
