// Package app wires the eight components — Credential Store, Quota
// Ledger, Pressure Sensor, Admission Controller, Job Store, Extraction
// Client, Queue Engine, Cleanup Orchestrator — into the two runtime
// modes: the API process that accepts résumé submissions, and the
// worker process that drains the job queue.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/wisbric/resumeforge/internal/admission"
	appconfig "github.com/wisbric/resumeforge/internal/config"
	"github.com/wisbric/resumeforge/internal/cleanup"
	"github.com/wisbric/resumeforge/internal/credential"
	"github.com/wisbric/resumeforge/internal/extraction"
	"github.com/wisbric/resumeforge/internal/httpserver"
	"github.com/wisbric/resumeforge/internal/jobstore"
	"github.com/wisbric/resumeforge/internal/payload"
	"github.com/wisbric/resumeforge/internal/platform"
	"github.com/wisbric/resumeforge/internal/pressure"
	"github.com/wisbric/resumeforge/internal/quota"
	"github.com/wisbric/resumeforge/internal/queueengine"
	"github.com/wisbric/resumeforge/internal/telemetry"
)

const apiKindExtraction = "extraction"

// Run is the application entry point: it connects infrastructure, builds
// every component, and starts whichever mode cfg.Mode names.
func Run(ctx context.Context, cfg *appconfig.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting resumeforge", "mode", cfg.Mode, "listen", cfg.ListenAddr())

	db, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("closing redis", "error", err)
		}
	}()

	if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("migrations applied")

	metricsReg := telemetry.NewMetricsRegistry(telemetry.All()...)

	switch cfg.Mode {
	case "api":
		return runAPI(ctx, cfg, logger, db, rdb, metricsReg)
	case "worker":
		return runWorker(ctx, cfg, logger, db, rdb)
	default:
		return fmt.Errorf("unknown mode: %s", cfg.Mode)
	}
}

// durations parses every config duration field this process needs,
// failing fast on a malformed value rather than letting a zero duration
// silently reach a ticker.
type durations struct {
	sessionTTL              time.Duration
	revocationTTL           time.Duration
	windowSize              time.Duration
	queuePollInterval       time.Duration
	engineDeadline          time.Duration
	cleanupInterval         time.Duration
	credentialSweepInterval time.Duration
	llmDeadline             time.Duration
	payloadCacheTTL         time.Duration
}

func parseDurations(cfg *appconfig.Config) (durations, error) {
	var d durations
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"SESSION_TTL", cfg.SessionTTL, &d.sessionTTL},
		{"REVOCATION_TTL", cfg.RevocationTTL, &d.revocationTTL},
		{"WINDOW_SIZE", cfg.WindowSize, &d.windowSize},
		{"QUEUE_POLL_INTERVAL", cfg.QueuePollInterval, &d.queuePollInterval},
		{"ENGINE_DEADLINE", cfg.EngineDeadline, &d.engineDeadline},
		{"CLEANUP_INTERVAL", cfg.CleanupInterval, &d.cleanupInterval},
		{"CREDENTIAL_SWEEP_INTERVAL", cfg.CredentialSweepInterval, &d.credentialSweepInterval},
		{"LLM_DEADLINE", cfg.LLMDeadline, &d.llmDeadline},
		{"PAYLOAD_CACHE_TTL", cfg.PayloadCacheTTL, &d.payloadCacheTTL},
	}
	for _, f := range fields {
		parsed, err := time.ParseDuration(f.raw)
		if err != nil {
			return durations{}, fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = parsed
	}
	return d, nil
}

// buildExtractionProvider constructs the configured Provider variant.
// This is the only place the two LLM backends are chosen between.
func buildExtractionProvider(ctx context.Context, cfg *appconfig.Config) (extraction.Provider, error) {
	switch cfg.LLMProvider {
	case "bedrock":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.BedrockRegion))
		if err != nil {
			return nil, fmt.Errorf("loading AWS config: %w", err)
		}
		return extraction.NewBedrockProvider(awsCfg, cfg.BedrockModelID), nil
	case "anthropic":
		return extraction.NewAnthropicProvider(cfg.AnthropicAPIKey, cfg.AnthropicModel), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s", cfg.LLMProvider)
	}
}

func runAPI(ctx context.Context, cfg *appconfig.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client, metricsReg *prometheus.Registry) error {
	d, err := parseDurations(cfg)
	if err != nil {
		return err
	}

	// A — Credential Store.
	sessionSecret := cfg.SessionSecret
	if sessionSecret == "" {
		sessionSecret = credential.GenerateDevSecret()
		logger.Info("credential: using auto-generated dev secret (set RESUMEFORGE_SESSION_SECRET in production)")
	}
	tokenIssuer, err := credential.NewTokenIssuer(sessionSecret, d.sessionTTL)
	if err != nil {
		return fmt.Errorf("creating token issuer: %w", err)
	}
	credStore := credential.NewStore(db, cfg.MaxSessionsPerPrincipal, d.revocationTTL)
	authenticator := credential.NewAuthenticator(tokenIssuer, credStore)

	// B — Quota Ledger.
	quotaStore := quota.NewStore(db, quota.Policy{
		DailyRequests: cfg.LLMDailyRequestsPerPrincipal,
		MonthlyTokens: cfg.LLMMonthlyTokensPerPrincipal,
	})
	windowLimiter := quota.NewWindowLimiter(rdb, d.windowSize)

	// C — Pressure Sensor.
	sensor := pressure.NewSensor(cfg.MemoryHighMarkMB, cfg.MemoryLowMarkRatio, pressure.NewProcessSampler())
	go samplePressure(ctx, sensor, logger)

	// D — Admission Controller, consuming B and C.
	admitter := admission.New(sensor, windowLimiter, quotaStore, admission.WindowCaps{
		Default:  cfg.WindowCapDefault,
		LLM:      cfg.WindowCapLLM,
		Identity: cfg.WindowCapIdentity,
	})

	// E — Job Store.
	jobs := jobstore.NewStore(db)

	api := httpserver.NewAPI(jobs, admitter, authenticator, apiKindExtraction)

	srv := httpserver.NewServer(cfg, logger, db, rdb, metricsReg, sensor, api)

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func runWorker(ctx context.Context, cfg *appconfig.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client) error {
	d, err := parseDurations(cfg)
	if err != nil {
		return err
	}

	// A — Credential Store (housekeeping sweeps only in this mode).
	credStore := credential.NewStore(db, cfg.MaxSessionsPerPrincipal, d.revocationTTL)

	// B — Quota Ledger.
	quotaStore := quota.NewStore(db, quota.Policy{
		DailyRequests: cfg.LLMDailyRequestsPerPrincipal,
		MonthlyTokens: cfg.LLMMonthlyTokensPerPrincipal,
	})

	// C — Pressure Sensor, feeding the Cleanup Orchestrator's emergency sweep.
	sensor := pressure.NewSensor(cfg.MemoryHighMarkMB, cfg.MemoryLowMarkRatio, pressure.NewProcessSampler())
	go samplePressure(ctx, sensor, logger)

	// E — Job Store.
	jobs := jobstore.NewStore(db)

	// Payload cache + resolver, backing F.
	cache := payload.NewCache(cfg.PayloadCacheSize, d.payloadCacheTTL)
	docs := payload.NewDocumentRecordStore(db)
	resolver := payload.NewResolver(cache, docs)

	// F — Extraction Client, consuming B.
	provider, err := buildExtractionProvider(ctx, cfg)
	if err != nil {
		return fmt.Errorf("building extraction provider: %w", err)
	}
	extractClient := extraction.New(provider, quotaStore, apiKindExtraction, extraction.WithDeadline(d.llmDeadline))

	// G — Queue Engine, consuming E and F plus the payload resolver.
	engine := queueengine.New(jobs, resolver, extractClient, logger,
		queueengine.WithPollInterval(d.queuePollInterval),
		queueengine.WithJobDeadline(d.engineDeadline),
	)

	// H — Cleanup Orchestrator, consuming A, E, B, the payload cache, and C's onset signal.
	orchestrator := cleanup.New(jobs, credStore, quotaStore, cache, sensor, logger,
		cleanup.WithRoutineInterval(d.cleanupInterval),
		cleanup.WithHousekeepingInterval(d.credentialSweepInterval),
	)
	go orchestrator.Run(ctx)

	logger.Info("worker started")
	return engine.Run(ctx)
}

// samplePressure polls the Pressure Sensor every 5 seconds until ctx is
// cancelled, driving its hysteresis state machine and onset signal.
func samplePressure(ctx context.Context, sensor *pressure.Sensor, logger *slog.Logger) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := sensor.Sample(ctx); err != nil {
				logger.Error("sampling memory pressure", "error", err)
				continue
			}
			if sensor.IsUnderPressure() {
				telemetry.PressureState.Set(1)
			} else {
				telemetry.PressureState.Set(0)
			}
		}
	}
}
