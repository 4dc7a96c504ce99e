package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tabletalk/tabletalk/internal/agent"
	"github.com/tabletalk/tabletalk/internal/api"
	"github.com/tabletalk/tabletalk/internal/api/uistatic"
	"github.com/tabletalk/tabletalk/internal/auth"
	"github.com/tabletalk/tabletalk/internal/config"
	"github.com/tabletalk/tabletalk/internal/ingest"
	"github.com/tabletalk/tabletalk/internal/llm"
	"github.com/tabletalk/tabletalk/internal/memory"
	"github.com/tabletalk/tabletalk/internal/observability"
	"github.com/tabletalk/tabletalk/internal/store"
)

func main() {
	cfg, err := config.LoadFromEnv("tabletalk-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)

	primary, err := store.Open(cfg.Store.Path)
	if err != nil {
		logger.Error("failed to open primary store", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = primary.Close() }()

	mem, err := memory.Open(cfg.Memory.Path)
	if err != nil {
		logger.Error("failed to open memory store", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = mem.Close() }()

	client, err := llm.NewOpenAIClient(llm.OpenAIConfig{
		BaseURL:          cfg.AI.BaseURL,
		APIKey:           cfg.AI.APIKey,
		Model:            cfg.AI.Model,
		Temperature:      cfg.AI.Temperature,
		Timeout:          cfg.AI.Timeout,
		SummaryMaxTokens: cfg.AI.SummaryMaxTokens,
		AnswerMaxTokens:  cfg.AI.AnswerMaxTokens,
	})
	if err != nil {
		logger.Error("failed to initialize model client", slog.Any("error", err))
		os.Exit(1)
	}

	responder, err := agent.New(primary, mem, client, logger, agent.Config{
		QueryTimeout: cfg.Store.QueryTimeout,
	})
	if err != nil {
		logger.Error("failed to initialize agent", slog.Any("error", err))
		os.Exit(1)
	}

	var s3Fetcher ingest.Fetcher
	if cfg.Ingest.S3.Endpoint != "" {
		fetcher, err := ingest.NewS3Fetcher(ingest.S3Config{
			Endpoint:        cfg.Ingest.S3.Endpoint,
			Region:          cfg.Ingest.S3.Region,
			AccessKeyID:     cfg.Ingest.S3.AccessKeyID,
			SecretAccessKey: cfg.Ingest.S3.SecretAccessKey,
			UseSSL:          cfg.Ingest.S3.UseSSL,
		})
		if err != nil {
			logger.Error("failed to initialize object store fetcher", slog.Any("error", err))
			os.Exit(1)
		}
		s3Fetcher = fetcher
	}

	loader, err := ingest.NewLoader(primary, ingest.NewHTTPFetcher(cfg.Ingest.HTTPTimeout), s3Fetcher, logger)
	if err != nil {
		logger.Error("failed to initialize loader", slog.Any("error", err))
		os.Exit(1)
	}

	deps := api.Dependencies{
		Logger:  logger,
		Agent:   responder,
		Loader:  loader,
		History: mem,
		UI:      uistatic.Handler(),
		Readiness: api.CombineReadinessChecks(
			primary.Ping,
		),
		DependencyTimout: time.Second,
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}
