// Package main is the entry point for the API server.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/lumenfund/lumenfund/internal/api"
	"github.com/lumenfund/lumenfund/internal/audit"
	"github.com/lumenfund/lumenfund/internal/auth"
	"github.com/lumenfund/lumenfund/internal/billing"
	"github.com/lumenfund/lumenfund/internal/config"
	"github.com/lumenfund/lumenfund/internal/db"
	"github.com/lumenfund/lumenfund/internal/gateway"
	"github.com/lumenfund/lumenfund/internal/health"
	"github.com/lumenfund/lumenfund/internal/merchant"
	"github.com/lumenfund/lumenfund/internal/middleware"
	"github.com/lumenfund/lumenfund/internal/org"
	"github.com/lumenfund/lumenfund/internal/tracing"
	"github.com/lumenfund/lumenfund/internal/webhook"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (optional)")
	help := flag.Bool("help", false, "display help message")
	flag.Parse()

	if *help {
		fmt.Println("Lumenfund API Server")
		fmt.Println()
		fmt.Println("Usage: api [options]")
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
	logger.Info("configuration loaded", "config", cfg.LogSummary())

	ctx := context.Background()

	// Database and repositories
	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	orgs := org.NewPostgresRepository(pool)
	apps := merchant.NewPostgresApplicationRepository(pool)
	instruments := billing.NewPostgresInstrumentRepository(pool)
	subscriptions := billing.NewPostgresSubscriptionRepository(pool)
	plans := billing.NewInMemoryPlanRepository(billing.DefaultPlans()...)

	// Metrics
	registry := prometheus.NewRegistry()
	httpMetrics := middleware.NewMetrics()
	if err := httpMetrics.Register(registry); err != nil {
		logger.Error("failed to register http metrics", "error", err)
		os.Exit(1)
	}
	webhookMetrics := webhook.NewMetrics()
	if err := webhookMetrics.Register(registry); err != nil {
		logger.Error("failed to register webhook metrics", "error", err)
		os.Exit(1)
	}
	billingMetrics := billing.NewMetrics()
	if err := billingMetrics.Register(registry); err != nil {
		logger.Error("failed to register billing metrics", "error", err)
		os.Exit(1)
	}

	// Tracing (enabled only when an OTLP endpoint is configured)
	otlpEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	tracerProvider, err := tracing.NewProvider(tracing.Config{
		ServiceName:  "lumenfund-api",
		Enabled:      otlpEndpoint != "",
		Environment:  cfg.Env,
		ExporterType: "otlp-http",
		OTLPEndpoint: otlpEndpoint,
		SamplingRate: 0.1,
		InsecureMode: cfg.Env != "production",
	})
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	// Redis (rate limiting + readiness), optional
	var redisClient *redis.Client
	var rateLimitStore middleware.RateLimitStore = middleware.NewInMemoryRateLimitStore()
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("invalid redis url", "error", err)
			os.Exit(1)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
		rateLimitStore = middleware.NewRedisRateLimitStore(redisClient, httpMetrics, logger)
	}

	// Webhook payload archive, optional
	var archiver webhook.Archiver
	if cfg.ArchiveEnabled() {
		archiver, err = webhook.NewS3Archiver(webhook.S3ArchiverConfig{
			BucketName:      cfg.ArchiveBucketName,
			AccessKeyID:     cfg.ArchiveAccessKeyID,
			SecretAccessKey: cfg.ArchiveSecretAccessKey,
			Endpoint:        cfg.ArchiveEndpoint,
			KeyPrefix:       cfg.ArchiveKeyPrefix,
		})
		if err != nil {
			logger.Error("failed to initialize webhook archive", "error", err)
			os.Exit(1)
		}
	}

	// Domain services
	gatewayClient := gateway.NewHTTPClient(cfg.GatewayBaseURL, cfg.GatewayAPIKey, cfg.GatewayTimeout, logger)
	merchantService := merchant.NewService(apps, gatewayClient, logger)
	processor := webhook.NewProcessor(webhook.NewPostgresStore(pool), archiver, webhookMetrics, logger)
	billingMachine := billing.NewStateMachine(billing.NewPostgresStore(pool, plans), gatewayClient, billingMetrics, logger)
	jwtService := auth.NewJWTService(cfg.JWTSecret)
	auditRepo := audit.NewPostgresRepository(pool)

	// HTTP handlers
	healthHandlers := api.NewHealthHandlers(healthConfig(pool, redisClient))
	orgHandlers := api.NewOrgHandlers(orgs, instruments)
	merchantHandlers := api.NewMerchantHandlers(merchantService, apps, orgs)
	webhookHandlers := api.NewWebhookHandlers(cfg.GatewayWebhookSecret, processor, webhookMetrics)
	billingHandlers := api.NewBillingHandlers(billingMachine, subscriptions, jwtService, auditRepo)

	webhookLimiter := middleware.RateLimiter(rateLimitStore, middleware.DefaultWebhookLimit(), middleware.IPKeyFunc())
	adminLimiter := middleware.RateLimiter(rateLimitStore, middleware.DefaultAdminLimit(), middleware.IPKeyFunc())

	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandlers.Health)
	mux.HandleFunc("/ready", healthHandlers.Ready)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	mux.HandleFunc("/organizations", orgHandlers.CreateOrganization)
	mux.HandleFunc("/organizations/", orgHandlers.HandleOrganizationByID)
	mux.HandleFunc("/merchant/applications", merchantHandlers.StartOnboarding)
	mux.HandleFunc("/merchant/applications/", merchantHandlers.HandleApplicationByID)
	mux.Handle("/internal/webhooks/gateway", webhookLimiter(http.HandlerFunc(webhookHandlers.HandleGatewayWebhook)))
	mux.Handle("/admin/billing/run", adminLimiter(http.HandlerFunc(billingHandlers.RunBilling)))
	mux.Handle("/admin/subscriptions/", adminLimiter(http.HandlerFunc(billingHandlers.BillSubscription)))

	// Root endpoint
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		// Only handle exact root path, everything else returns 404
		if r.URL.Path != "/" {
			ctx := middleware.SetErrorCode(r.Context(), api.ErrCodeNotFound)
			api.WriteError(w, ctx, http.StatusNotFound, api.ErrCodeNotFound, "The requested resource was not found")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(`{"service":"lumenfund-api","version":"0.1.0"}`)); err != nil {
			slog.Error("failed to write response", "error", err)
		}
	})

	// Apply middleware: RequestID -> Tracing -> Logging -> HTTPMetrics -> CORS -> Profiling
	var handler http.Handler = mux
	handler = middleware.Profiling(middleware.ProfilingConfig{
		Enabled:     cfg.Env == "development",
		Environment: cfg.Env,
	})(handler)
	if origins := os.Getenv("LUMEN_CORS_ORIGINS"); origins != "" {
		handler = middleware.CORS(middleware.CORSConfig{
			AllowedOrigins:   strings.Split(origins, ","),
			AllowCredentials: true,
			MaxAge:           300,
		})(handler)
	}
	handler = middleware.HTTPMetrics(httpMetrics)(handler)
	handler = middleware.Logging(logger)(handler)
	handler = middleware.Tracing("lumenfund-api")(handler)
	handler = middleware.RequestID(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting server", "port", cfg.Port, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Create context with timeout for shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shut down tracer provider", "error", err)
	}

	logger.Info("server stopped")
}

func healthConfig(pool *sql.DB, redisClient *redis.Client) api.HealthHandlersConfig {
	cfg := api.HealthHandlersConfig{
		DBChecker:      health.NewDBChecker(pool),
		MetricsEnabled: true,
	}
	if redisClient != nil {
		cfg.RedisChecker = health.NewRedisChecker(redisClient)
	}
	return cfg
}
