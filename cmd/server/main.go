package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"papertalk.app/relay/common/id"
	"papertalk.app/relay/common/llm"
	"papertalk.app/relay/common/logger"
	"papertalk.app/relay/common/otel"
	"papertalk.app/relay/core/config"
	"papertalk.app/relay/internal/http/middleware"
	httprouter "papertalk.app/relay/internal/http/router"
	"papertalk.app/relay/internal/source"
)

const maxRequestBody = 50 << 20 // LaTeX source travels inside the first turn

func main() {
	fmt.Printf("%s\n", banner)
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeServer)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	// OTel must init before logger (logger uses OTel provider in production)
	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		// Can't use slog yet — OTel failed before logger setup
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	if telemetry != nil {
		slog.InfoContext(ctx, "otel initialized", "endpoint", cfg.OTel.Endpoint)
	} else {
		slog.InfoContext(ctx, "otel disabled (no endpoint configured)")
	}

	slog.InfoContext(ctx, "relay starting", "env", cfg.Env, "service", cfg.OTel.ServiceName)
	if err := id.Init(1); err != nil {
		slog.ErrorContext(ctx, "failed to initialize snowflake id generator", "error", err)
		os.Exit(1)
	}

	llmClient, err := llm.New(llm.Config{
		Provider: cfg.LLM.Provider,
		APIKey:   cfg.LLM.APIKey,
		BaseURL:  cfg.LLM.BaseURL,
		Model:    cfg.LLM.Model,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create llm client", "error", err)
		os.Exit(1)
	}
	slog.InfoContext(ctx, "llm client ready", "provider", cfg.LLM.Provider, "model", llmClient.Model())

	fetcher := setupFetcher(ctx, cfg)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := setupRouter(cfg, llmClient, fetcher)
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		// No WriteTimeout: streaming responses stay open for the duration of
		// an upstream completion.
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		slog.InfoContext(ctx, "http server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.ErrorContext(ctx, "http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(shutdownCtx, "shutdown complete")
}

// setupFetcher wraps the source command in a cache: redis when configured,
// in-process otherwise. A redis connection failure degrades to the in-process
// cache rather than refusing to start.
func setupFetcher(ctx context.Context, cfg config.Config) source.Fetcher {
	fetcher := source.NewCommandFetcher(cfg.Source.Command, cfg.Source.Timeout)

	if cfg.Cache.RedisEnabled() {
		redisOpts, err := redis.ParseURL(cfg.Cache.RedisURL)
		if err != nil {
			slog.WarnContext(ctx, "invalid redis url, using in-process source cache", "error", err)
		} else {
			redisClient := redis.NewClient(redisOpts)
			if err := redisClient.Ping(ctx).Err(); err != nil {
				slog.WarnContext(ctx, "redis unreachable, using in-process source cache", "error", err)
			} else {
				slog.InfoContext(ctx, "redis source cache enabled", "ttl", cfg.Cache.TTL)
				return source.NewCachedFetcher(fetcher, source.NewRedisCache(redisClient, cfg.Cache.TTL))
			}
		}
	}

	return source.NewCachedFetcher(fetcher, source.NewMemoryCache(cfg.Cache.TTL))
}

func setupRouter(cfg config.Config, llmClient llm.Client, fetcher source.Fetcher) *gin.Engine {
	router := gin.New()

	// Order matters: OTel creates span → Recovery catches panics → Logger logs with trace context
	if cfg.OTel.Enabled() {
		router.Use(otelgin.Middleware(cfg.OTel.ServiceName))
	}
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.BodyLimit(maxRequestBody))

	httprouter.SetupRoutes(router, llmClient, fetcher, httprouter.RouterConfig{
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
	})

	return router
}

const banner = `
██████╗  █████╗ ██████╗ ███████╗██████╗ ████████╗ █████╗ ██╗     ██╗  ██╗
██╔══██╗██╔══██╗██╔══██╗██╔════╝██╔══██╗╚══██╔══╝██╔══██╗██║     ██║ ██╔╝
██████╔╝███████║██████╔╝█████╗  ██████╔╝   ██║   ███████║██║     █████╔╝
██╔═══╝ ██╔══██║██╔═══╝ ██╔══╝  ██╔══██╗   ██║   ██╔══██║██║     ██╔═██╗
██║     ██║  ██║██║     ███████╗██║  ██║   ██║   ██║  ██║███████╗██║  ██╗
╚═╝     ╚═╝  ╚═╝╚═╝     ╚══════╝╚═╝  ╚═╝   ╚═╝   ╚═╝  ╚═╝╚══════╝╚═╝  ╚═╝
`
