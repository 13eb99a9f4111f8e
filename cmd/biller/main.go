// Package main is the entry point for the recurring billing runner.
//
// The runner periodically sweeps subscriptions whose billing or retry date
// is due and processes one renewal cycle for each, then trims the webhook
// idempotency ledger to its retention window. All lifecycle decisions
// (fallback, retries, grace, downgrade) live in the billing state machine;
// this process is only the periodic trigger.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lumenfund/lumenfund/internal/billing"
	"github.com/lumenfund/lumenfund/internal/config"
	"github.com/lumenfund/lumenfund/internal/db"
	"github.com/lumenfund/lumenfund/internal/gateway"
	"github.com/lumenfund/lumenfund/internal/jobs"
	"github.com/lumenfund/lumenfund/internal/middleware"
	"github.com/lumenfund/lumenfund/internal/webhook"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (optional)")
	once := flag.Bool("once", false, "run a single sweep and exit")
	help := flag.Bool("help", false, "display help message")
	flag.Parse()

	if *help {
		fmt.Println("Lumenfund Billing Runner")
		fmt.Println()
		fmt.Println("Usage: biller [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configPath)
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintln(os.Stderr, "config:", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	registry := prometheus.NewRegistry()
	billingMetrics := billing.NewMetrics()
	if err := billingMetrics.Register(registry); err != nil {
		logger.Error("failed to register billing metrics", "error", err)
		os.Exit(1)
	}
	jobMetrics := jobs.NewMetrics()
	if err := jobMetrics.Register(registry); err != nil {
		logger.Error("failed to register job metrics", "error", err)
		os.Exit(1)
	}

	plans := billing.NewInMemoryPlanRepository(billing.DefaultPlans()...)
	subscriptions := billing.NewPostgresSubscriptionRepository(pool)
	gatewayClient := gateway.NewHTTPClient(cfg.GatewayBaseURL, cfg.GatewayAPIKey, cfg.GatewayTimeout, logger)
	machine := billing.NewStateMachine(billing.NewPostgresStore(pool, plans), gatewayClient, billingMetrics, logger)

	sweeper := jobs.NewSweeper(machine, subscriptions, cfg.BillingBatchSize, jobMetrics, logger)
	purger := jobs.NewPurger(webhook.NewPostgresLedger(pool), cfg.LedgerRetention, jobMetrics, logger)

	if *once {
		sweeper.Run(ctx)
		purger.Run(ctx)
		return
	}

	// Metrics and liveness for the long-running process
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	})
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	go func() {
		logger.Info("starting biller", "port", cfg.Port, "interval", cfg.BillingInterval.String())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
			os.Exit(1)
		}
	}()

	ticker := time.NewTicker(cfg.BillingInterval)
	defer ticker.Stop()

	sweeper.Run(ctx)
	purger.Run(ctx)
	for {
		select {
		case <-ticker.C:
			sweeper.Run(ctx)
			purger.Run(ctx)
		case <-ctx.Done():
			logger.Info("shutting down biller...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Error("metrics server forced to shutdown", "error", err)
			}
			logger.Info("biller stopped")
			return
		}
	}
}
