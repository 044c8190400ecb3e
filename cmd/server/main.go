// Command server starts the VeriHuman HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"github.com/verihuman/verihuman-api/internal/adapter/ai/openaichat"
	"github.com/verihuman/verihuman-api/internal/adapter/ai/tokencount"
	rediscache "github.com/verihuman/verihuman-api/internal/adapter/cache/redis"
	"github.com/verihuman/verihuman-api/internal/adapter/detector/gptzero"
	httpserver "github.com/verihuman/verihuman-api/internal/adapter/httpserver"
	"github.com/verihuman/verihuman-api/internal/adapter/humanizer"
	"github.com/verihuman/verihuman-api/internal/adapter/observability"
	"github.com/verihuman/verihuman-api/internal/adapter/repo/postgres"
	"github.com/verihuman/verihuman-api/internal/app"
	"github.com/verihuman/verihuman-api/internal/config"
	"github.com/verihuman/verihuman-api/internal/domain"
	"github.com/verihuman/verihuman-api/internal/service/ratelimiter"
	"github.com/verihuman/verihuman-api/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Optional Postgres history store
	var (
		pool     *pgxpool.Pool
		recorder usecase.HistoryRecorder
		history  usecase.HistoryService
	)
	if cfg.HistoryEnabled() {
		pool, err = postgres.NewPool(ctx, cfg.DBURL, cfg.DBMaxConns)
		if err != nil {
			slog.Error("db connect failed", slog.Any("error", err))
			os.Exit(1)
		}
		defer pool.Close()
		repo := postgres.NewHistoryRepo(pool)
		if err := repo.Migrate(ctx); err != nil {
			slog.Error("history migration failed", slog.Any("error", err))
			os.Exit(1)
		}
		recorder = usecase.HistoryRecorder{Repo: repo}
		history = usecase.NewHistoryService(repo)

		cleanupSvc := postgres.NewCleanupService(repo, cfg.HistoryRetentionDays)
		go cleanupSvc.RunPeriodic(ctx, cfg.HistoryCleanupInterval)
		slog.Info("history enabled",
			slog.Int("retention_days", cfg.HistoryRetentionDays),
			slog.Duration("cleanup_interval", cfg.HistoryCleanupInterval))
	}

	// Optional Redis for the detection cache and upstream quotas
	var rdb *goredis.Client
	if cfg.RedisURL != "" {
		opts, err := goredis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", slog.Any("error", err))
			os.Exit(1)
		}
		rdb = goredis.NewClient(opts)
		defer func() { _ = rdb.Close() }()
	}

	// Upstream clients
	humanizerBreaker := observability.NewCircuitBreaker("humanizer", cfg.BreakerMaxFailures, cfg.BreakerCooldown)
	detectorBreaker := observability.NewCircuitBreaker("gptzero", cfg.BreakerMaxFailures, cfg.BreakerCooldown)

	var (
		hum  domain.Humanizer  = humanizer.New(cfg.HumanizerURL, cfg.HumanizerAPIKey, cfg.HumanizerTimeout, humanizerBreaker)
		det  domain.Detector   = gptzero.New(cfg, detectorBreaker)
		chat domain.ChatClient = openaichat.New(openaichat.Config{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Timeout: cfg.OpenAITimeout,
		})
	)

	if cfg.QuotasEnabled() {
		buckets := map[string]ratelimiter.BucketConfig{}
		for key, rpm := range map[string]int{
			ratelimiter.KeyDetector:  cfg.GPTZeroRPM,
			ratelimiter.KeyHumanizer: cfg.HumanizerRPM,
			ratelimiter.KeyChat:      cfg.OpenAIRPM,
		} {
			if rpm > 0 {
				buckets[key] = ratelimiter.NewBucketConfigFromPerMinute(rpm)
			}
		}
		limiter := ratelimiter.NewRedisLuaLimiter(rdb, buckets)
		hum = ratelimiter.Humanizer{Next: hum, Limiter: limiter}
		det = ratelimiter.Detector{Next: det, Limiter: limiter}
		chat = ratelimiter.ChatClient{Next: chat, Limiter: limiter}
		slog.Info("upstream quotas enabled",
			slog.Int("gptzero_rpm", cfg.GPTZeroRPM),
			slog.Int("humanizer_rpm", cfg.HumanizerRPM),
			slog.Int("openai_rpm", cfg.OpenAIRPM))
	}

	var cache domain.DetectionCache
	if cfg.CacheEnabled() {
		cache = rediscache.NewDetectCache(rdb, cfg.DetectCacheTTL)
	}

	// Usecases
	chatSvc := usecase.ChatService{
		Client:          chat,
		Model:           cfg.OpenAIChatModel,
		VerifyModel:     cfg.OpenAIModel,
		APIKeySet:       cfg.OpenAIAPIKey != "",
		MaxPromptTokens: cfg.ChatMaxPromptTokens,
		Tokens:          tokencount.DefaultCounter,
		History:         recorder,
	}
	detectSvc := usecase.NewDetectService(det, cache, recorder)
	humanizeSvc := usecase.NewHumanizeService(hum,
		usecase.NewSimilarityJudge(cfg.SimilarityMinLengthDelta),
		usecase.NewLocalRewriter(nil),
		cfg.HumanizerTimeout,
		recorder)

	var dbPinger app.Pinger
	if pool != nil {
		dbPinger = pool
	}
	dbCheck, redisCheck := app.BuildReadinessChecks(dbPinger, app.NewRedisPinger(rdb))

	srv := httpserver.NewServer(cfg, chatSvc, detectSvc, humanizeSvc, history, dbCheck, redisCheck)
	handler := app.BuildRouter(cfg, srv)

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port), slog.String("env", cfg.AppEnv))
		errCh <- srvHTTP.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	if err := srvHTTP.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", slog.Any("error", err))
	}
}
