// Package main is the entry point for the vault API server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	gocache "github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/omnivault/omnivault/internal/api"
	"github.com/omnivault/omnivault/internal/audit"
	"github.com/omnivault/omnivault/internal/auth"
	"github.com/omnivault/omnivault/internal/compute"
	"github.com/omnivault/omnivault/internal/config"
	"github.com/omnivault/omnivault/internal/db"
	"github.com/omnivault/omnivault/internal/health"
	"github.com/omnivault/omnivault/internal/idempotency"
	"github.com/omnivault/omnivault/internal/index"
	"github.com/omnivault/omnivault/internal/jobs"
	"github.com/omnivault/omnivault/internal/ledger"
	"github.com/omnivault/omnivault/internal/middleware"
	"github.com/omnivault/omnivault/internal/pipeline"
	"github.com/omnivault/omnivault/internal/scan"
	"github.com/omnivault/omnivault/internal/storage"
	"github.com/omnivault/omnivault/internal/tracing"
)

// idempotencyKeyExpiry is how long purchase idempotency keys stay replayable.
const idempotencyKeyExpiry = 24 * time.Hour

// noLedger stands in when no RPC endpoint is configured. Sealing still
// works; the notarization stage fails with a resumable receipt, and the
// marketplace reports the ledger as unavailable.
type noLedger struct{}

func (noLedger) Notarize(ctx context.Context, contentHash, storageKey string, priceWei *big.Int) (string, error) {
	return "", ledger.ErrWalletUnavailable
}

func (noLedger) Purchase(ctx context.Context, contentHash string, priceWei *big.Int) (string, error) {
	return "", ledger.ErrWalletUnavailable
}

func (noLedger) CheckAccess(ctx context.Context, contentHash, account string) (bool, error) {
	return false, ledger.ErrWalletUnavailable
}

func (noLedger) GetListing(ctx context.Context, contentHash string) (*ledger.Listing, error) {
	return nil, ledger.ErrWalletUnavailable
}

func main() {
	help := flag.Bool("help", false, "display help message")
	configFile := flag.String("config", "", "path to a YAML config file (env vars take precedence)")
	flag.Parse()

	if *help {
		fmt.Println("OmniVault API Server")
		fmt.Println()
		fmt.Println("Usage: api [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configFile)
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)
	logger.Info("configuration loaded", "config", cfg.LogSummary())

	ctx := context.Background()

	// Tracing is opt-in via the standard OTLP endpoint variable.
	otlpEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	tracerProvider, err := tracing.NewProvider(tracing.Config{
		ServiceName:  "omnivault-api",
		Enabled:      otlpEndpoint != "",
		Environment:  cfg.Env,
		ExporterType: "otlp-http",
		OTLPEndpoint: otlpEndpoint,
		SamplingRate: 1.0,
		InsecureMode: cfg.Env == "development",
	})
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	// Audit trail database.
	auditDB, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open audit database", "error", err)
		os.Exit(1)
	}
	defer auditDB.Close()
	auditRepo := audit.NewPostgresRepository(auditDB)

	// Redis backs rate limiting when configured; in-memory otherwise.
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
	}

	// Object storage presigner and uploader.
	storageService, err := storage.NewService(storage.Config{
		Bucket:          cfg.StorageBucket,
		Region:          cfg.StorageRegion,
		AccessKeyID:     cfg.StorageAccessKeyID,
		SecretAccessKey: cfg.StorageSecretAccessKey,
		MaxSizeMB:       cfg.StorageMaxUploadSizeMB,
	})
	if err != nil {
		logger.Error("failed to initialize storage", "error", err)
		os.Exit(1)
	}
	transfer := storage.NewTransfer(nil)

	// Notarization ledger. Optional; without it sealing still produces
	// resumable receipts.
	var ledgerClient *ledger.Client
	var pipelineLedger pipeline.Ledger = noLedger{}
	var marketLedger api.LedgerClient = noLedger{}
	if cfg.LedgerRPCURL != "" {
		ledgerClient, err = ledger.Dial(ctx, ledger.Config{
			RPCURL:          cfg.LedgerRPCURL,
			ContractAddress: cfg.LedgerContract,
			ChainID:         cfg.LedgerChainID,
			PrivateKeyHex:   cfg.LedgerPrivateKey,
		})
		if err != nil {
			logger.Error("failed to connect to ledger", "error", err)
			os.Exit(1)
		}
		pipelineLedger = ledgerClient
		marketLedger = ledgerClient
	} else {
		logger.Warn("ledger not configured, notarization and purchases disabled")
	}

	// Identity index.
	dynamoClient := dynamodb.New(dynamodb.Options{
		Region: cfg.StorageRegion,
		Credentials: aws.NewCredentialsCache(
			credentials.NewStaticCredentialsProvider(cfg.StorageAccessKeyID, cfg.StorageSecretAccessKey, ""),
		),
	})
	indexRepo := index.NewDynamoRepository(dynamoClient, cfg.IndexTable)

	// PII detector, with the sector model when a bundle is configured.
	var modelProvider *scan.SectorModelProvider
	if cfg.ScanModelPath != "" {
		modelProvider = scan.NewSectorModelProvider(cfg.ScanModelPath)
	}
	detector := scan.NewDetector(modelProvider)

	// Metrics.
	registry := prometheus.NewRegistry()
	httpMetrics := middleware.NewMetrics()
	pipelineMetrics := pipeline.NewMetrics()
	jobMetrics := jobs.NewMetrics()
	for _, m := range []interface {
		Register(prometheus.Registerer) error
	}{httpMetrics, pipelineMetrics, jobMetrics} {
		if err := m.Register(registry); err != nil {
			logger.Error("failed to register metrics", "error", err)
			os.Exit(1)
		}
	}

	sealPipeline := pipeline.New(detector, storageService, transfer, pipelineLedger, indexRepo, pipelineMetrics)

	// Clean-room training.
	trainer := compute.New(compute.Config{
		Region:          cfg.StorageRegion,
		AccessKeyID:     cfg.StorageAccessKeyID,
		SecretAccessKey: cfg.StorageSecretAccessKey,
		FunctionName:    cfg.TrainingFunction,
		Bucket:          cfg.StorageBucket,
	})

	currentSecret, previousSecret := cfg.GetJWTSecrets()
	var jwtService *auth.JWTService
	if previousSecret != "" {
		jwtService = auth.NewJWTServiceWithRotation(currentSecret, previousSecret)
	} else {
		jwtService = auth.NewJWTService(currentSecret)
	}
	marketplaceCache := gocache.New(api.MarketplaceCacheTTL, time.Minute)

	// Handlers.
	authHandlers := api.NewAuthHandlers(jwtService)
	sealHandlers := api.NewSealHandlers(sealPipeline, detector, auditRepo, cfg.MaskByDefault)
	marketHandlers := api.NewMarketplaceHandlers(indexRepo, marketLedger, marketplaceCache, auditRepo)
	storageHandlers := api.NewStorageHandlers(storageService, auditRepo, cfg.StorageMaxUploadSizeMB)
	trainingHandlers := api.NewTrainingHandlers(trainer, auditRepo)
	auditHandlers := api.NewAuditHandlers(auditRepo)

	var redisChecker api.HealthChecker
	if redisClient != nil {
		redisChecker = health.NewRedisChecker(redisClient)
	}
	var ledgerChecker api.HealthChecker
	if ledgerClient != nil {
		ledgerChecker = health.NewLedgerChecker(ledgerClient)
	}
	healthHandlers := api.NewHealthHandlers(api.HealthHandlersConfig{
		DBChecker:      health.NewDBChecker(auditDB),
		RedisChecker:   redisChecker,
		LedgerChecker:  ledgerChecker,
		MetricsEnabled: true,
	})

	// Rate limiting: a global limit on everything, stricter limits on the
	// sealing and training routes.
	var rateLimitStore middleware.RateLimitStore = middleware.NewInMemoryRateLimitStore()
	if redisClient != nil {
		rateLimitStore = middleware.NewRedisRateLimitStore(redisClient, httpMetrics)
	}
	globalLimit := middleware.RateLimiter(rateLimitStore, middleware.DefaultGlobalLimit(), middleware.IPKeyFunc(), httpMetrics)
	sealLimit := middleware.RateLimiter(rateLimitStore, middleware.DefaultSealLimit(), middleware.IdentityKeyFunc(), httpMetrics)
	trainingLimit := middleware.RateLimiter(rateLimitStore, middleware.DefaultTrainingLimit(), middleware.IdentityKeyFunc(), httpMetrics)

	authed := middleware.Auth(jwtService)

	// Replay records share the audit database so purchases stay
	// replay-protected across restarts.
	idempotencyRepo := idempotency.NewPostgresRepository(auditDB)
	idempotent := middleware.IdempotencyMiddleware(idempotencyRepo, map[string]bool{
		"/purchases": true,
	})

	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(`{"service":"omnivault-api","version":"0.1.0"}`)); err != nil {
			slog.Error("failed to write response", "error", err)
		}
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		ctx := middleware.SetErrorCode(r.Context(), api.ErrCodeNotFound)
		api.WriteError(w, ctx, http.StatusNotFound, api.ErrCodeNotFound, "The requested resource was not found")
	})

	mux.HandleFunc("GET /health", healthHandlers.Health)
	mux.HandleFunc("GET /ready", healthHandlers.Ready)
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	mux.HandleFunc("POST /auth/token", authHandlers.IssueToken)
	mux.HandleFunc("POST /auth/refresh", authHandlers.RefreshToken)

	// Public storefront reads.
	mux.HandleFunc("GET /marketplace", marketHandlers.Marketplace)
	mux.HandleFunc("GET /listings/{hash}", marketHandlers.Listing)

	// Everything below requires a Bearer access token.
	mux.Handle("POST /scan", authed(http.HandlerFunc(sealHandlers.Scan)))
	mux.Handle("POST /seal", authed(sealLimit(http.HandlerFunc(sealHandlers.Seal))))
	mux.Handle("POST /seal/resume", authed(sealLimit(http.HandlerFunc(sealHandlers.Resume))))
	mux.Handle("GET /assets", authed(http.HandlerFunc(marketHandlers.Assets)))
	mux.Handle("POST /purchases", authed(idempotent(http.HandlerFunc(marketHandlers.Purchase))))
	mux.Handle("GET /access/{hash}", authed(http.HandlerFunc(marketHandlers.Access)))
	mux.Handle("POST /uploads/sign", authed(http.HandlerFunc(storageHandlers.SignUpload)))
	mux.Handle("GET /downloads/sign", authed(http.HandlerFunc(storageHandlers.SignDownload)))
	mux.Handle("POST /training", authed(trainingLimit(http.HandlerFunc(trainingHandlers.Train))))
	mux.Handle("GET /weights", authed(http.HandlerFunc(trainingHandlers.Weights)))
	mux.Handle("GET /audit/export", authed(http.HandlerFunc(auditHandlers.Export)))

	// Outermost first: RequestID -> Tracing -> Logging -> Metrics -> CORS ->
	// global rate limit -> profiling -> routes.
	var handler http.Handler = mux
	handler = middleware.Profiling(middleware.ProfilingConfig{
		Enabled:     os.Getenv("ENABLE_PROFILING") == "true",
		Environment: cfg.Env,
	})(handler)
	handler = globalLimit(handler)
	handler = middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:   splitOrigins(os.Getenv("CORS_ALLOWED_ORIGINS")),
		AllowCredentials: true,
		MaxAge:           300,
	})(handler)
	handler = middleware.HTTPMetrics(httpMetrics)(handler)
	handler = middleware.Logging(logger)(handler)
	handler = middleware.Tracing("omnivault-api")(handler)
	handler = middleware.RequestID(handler)

	// Background jobs.
	cleanupJob := jobs.NewPeriodic(jobs.Config{
		Type:     jobs.JobTypeIdempotencyCleanup,
		Interval: time.Hour,
		Logger:   logger,
		Metrics:  jobMetrics,
	}, func(ctx context.Context) (int, error) {
		n, err := idempotency.CleanupOldKeys(idempotencyRepo, idempotencyKeyExpiry)
		return int(n), err
	})
	cleanupJob.Start(ctx)
	defer cleanupJob.Stop()

	anonymizeJob := jobs.NewPeriodic(jobs.Config{
		Type:     jobs.JobTypeAuditAnonymize,
		Interval: 24 * time.Hour,
		Timeout:  5 * time.Minute,
		Logger:   logger,
		Metrics:  jobMetrics,
	}, audit.NewAnonymizationJob(audit.AnonymizationJobConfig{
		DB:        auditDB,
		Logger:    logger,
		BatchSize: 1000,
	}).Run)
	anonymizeJob.Start(ctx)
	defer anonymizeJob.Stop()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", "port", cfg.Port, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shut down tracing", "error", err)
	}

	logger.Info("server stopped")
}

// splitOrigins parses a comma-separated origin list. Empty disables CORS.
func splitOrigins(s string) []string {
	if s == "" {
		return nil
	}
	var origins []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
