package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"adlign-personalization-layer/internal/application"
	"adlign-personalization-layer/internal/application/webhook_handlers"
	"adlign-personalization-layer/internal/config"
	"adlign-personalization-layer/internal/infrastructure/api"
	"adlign-personalization-layer/internal/infrastructure/encryption"
	"adlign-personalization-layer/internal/infrastructure/llm"
	"adlign-personalization-layer/internal/infrastructure/metrics"
	"adlign-personalization-layer/internal/infrastructure/middleware"
	"adlign-personalization-layer/internal/infrastructure/pubsub"
	"adlign-personalization-layer/internal/infrastructure/repository"
	shopifyinfra "adlign-personalization-layer/internal/infrastructure/shopify"
	"adlign-personalization-layer/internal/ports"
	"adlign-personalization-layer/internal/scanner"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const redisPrefix = "adlign"

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load(logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid configuration")
	}
	logger = logger.Level(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	kv, redisClient, err := openStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.StorageDriver).Msg("Failed to open storage")
	}
	logger.Info().Str("driver", cfg.StorageDriver).Msg("Storage ready")

	shops := repository.NewShopRepository(kv)
	sessions := repository.NewSessionRepository(kv)
	mappings := repository.NewMappingRepository(kv)
	landings := repository.NewLandingRepository(kv)
	jobRepo := repository.NewScanJobRepository(kv)

	encryptionService, err := encryption.NewService(cfg.EncryptionKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize encryption service")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.New(registry)

	rateLimiter := shopifyinfra.NewRateLimiterWithLimits(cfg.ShopifyRPS, cfg.ShopifyBurst, logger)
	shopifyClient := shopifyinfra.NewClientWithOptions(
		cfg.ShopifyAPIKey,
		cfg.ShopifyAPISecret,
		rateLimiter,
		shopifyinfra.DefaultRetryConfig(),
		collector,
		logger,
	)
	tokenManager := shopifyinfra.NewTokenManager(encryptionService, shopifyClient, logger)
	verifier := shopifyinfra.NewVerifier(cfg.ShopifyAPISecret)

	shopifyService := application.NewShopifyService(shops, sessions, shopifyClient, tokenManager, verifier, application.OAuthConfig{
		APIKey: cfg.ShopifyAPIKey,
		Scopes: cfg.ShopifyScopes,
		AppURL: cfg.AppURL,
	}, logger)

	languageModel, err := openLLM(ctx, cfg)
	if err != nil {
		logger.Warn().Err(err).Msg("AI enhancement disabled")
	} else if languageModel != nil {
		logger.Info().Str("provider", languageModel.Name()).Msg("AI enhancement enabled")
	}
	enhancer := application.NewAIEnhancer(languageModel, logger)

	scanService := application.NewScanService(shopifyService, shopifyClient, scanner.New(), enhancer, mappings, logger)

	events := pubsub.NewScanJobPubSub(logger)
	jobs := application.NewScanJobManager(scanService, jobRepo, application.JobPublishers{events, collector}, logger)

	webhookService := application.NewWebhookService(verifier, logger,
		webhook_handlers.NewAppUninstalledHandler(logger, shopifyService),
		webhook_handlers.NewThemePublishHandler(logger, jobs),
	)

	windowStore, err := rateLimitStore(ctx, cfg, redisClient)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.RateLimitDriver).Msg("Failed to open rate limit store")
	}

	router := api.NewRouter(api.Deps{
		Shopify:         shopifyService,
		Scans:           scanService,
		Jobs:            jobs,
		Events:          events,
		Mappings:        application.NewMappingService(mappings, logger),
		Landings:        application.NewLandingService(landings, mappings, logger),
		Personalization: application.NewPersonalizationService(shopifyService, shopifyClient, landings, mappings, logger),
		Analytics:       application.NewAnalyticsService(shops, landings, mappings, logger),
		Webhooks:        webhookService,
		Metrics:         collector,
		MetricsHandler:  promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
		RateLimit: middleware.RateLimitConfig{
			Store:     windowStore,
			Limit:     cfg.RateLimitMax,
			Window:    cfg.RateLimitWindow,
			OnLimited: collector.RateLimited,
		},
		CORSOrigins: cfg.CORSOrigins,
		Logger:      logger,
	})

	// no WriteTimeout: scan job events are streamed
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("app_url", cfg.AppURL).
			Msg("Starting API server")
		logger.Info().Msg("Swagger documentation available at " + cfg.AppURL + "/swagger/index.html")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("Shutdown signal received, draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	drain(shutdownCtx, logger, jobs, server, kv)
	logger.Info().Msg("Server stopped")
}

type stopper interface {
	Shutdown(ctx context.Context) error
}

// drain stops scan jobs before the HTTP server. Shutdown waits on open
// event streams, which only end once their job reaches a terminal state.
func drain(ctx context.Context, logger zerolog.Logger, jobs, server stopper, kv ports.KVStore) {
	if err := jobs.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Failed to stop scan jobs")
	}
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Graceful shutdown failed")
	}
	if err := kv.Close(ctx); err != nil {
		logger.Error().Err(err).Msg("Failed to close storage")
	}
}

// openStore returns the configured KV backend. The redis client is
// returned for reuse by the rate limiter when the redis driver is used.
func openStore(ctx context.Context, cfg *config.Config) (ports.KVStore, *redis.Client, error) {
	switch cfg.StorageDriver {
	case "memory":
		return repository.NewMemoryStore(), nil, nil
	case "file":
		store, err := repository.NewFileStore(cfg.DataDir)
		return store, nil, err
	case "redis":
		store, err := repository.NewRedisStoreFromURL(ctx, cfg.RedisURL, redisPrefix)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Client(), nil
	case "mongo":
		store, err := repository.ConnectMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase)
		return store, nil, err
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}

func openLLM(ctx context.Context, cfg *config.Config) (ports.LLMClient, error) {
	switch cfg.ResolvedAIProvider() {
	case "anthropic":
		anthropicCfg := llm.DefaultAnthropicConfig(cfg.AnthropicKey)
		if cfg.AnthropicModel != "" {
			anthropicCfg.Model = cfg.AnthropicModel
		}
		return llm.NewAnthropicClient(anthropicCfg), nil
	case "gemini":
		client, err := llm.NewGeminiClient(ctx, cfg.GeminiKey, cfg.GeminiModel)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, nil
	}
}

func rateLimitStore(ctx context.Context, cfg *config.Config, shared *redis.Client) (middleware.WindowStore, error) {
	if cfg.RateLimitDriver != "redis" {
		return middleware.NewMemoryWindowStore(), nil
	}
	client := shared
	if client == nil {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse redis url: %w", err)
		}
		client = redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to ping redis: %w", err)
		}
	}
	return middleware.NewRedisWindowStore(client, redisPrefix+":ratelimit"), nil
}
