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

	"github.com/joho/godotenv"

	"github.com/cleanslate/cleanslate/internal/api"
	"github.com/cleanslate/cleanslate/internal/archive"
	"github.com/cleanslate/cleanslate/internal/codegen"
	"github.com/cleanslate/cleanslate/internal/config"
	"github.com/cleanslate/cleanslate/internal/observability"
	"github.com/cleanslate/cleanslate/internal/pipeline"
	"github.com/cleanslate/cleanslate/internal/session"
)

func main() {
	// Missing .env is fine; real deployments configure the environment
	// directly.
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv("cleanslate-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)

	var archiver session.Archiver
	if cfg.Archive.Enabled {
		s3, err := archive.NewS3(context.Background(), archive.S3Config{
			Endpoint:         cfg.Archive.Endpoint,
			Region:           cfg.Archive.Region,
			Bucket:           cfg.Archive.Bucket,
			AccessKeyID:      cfg.Archive.AccessKeyID,
			SecretAccessKey:  cfg.Archive.SecretAccessKey,
			UseSSL:           cfg.Archive.UseSSL,
			Prefix:           cfg.Archive.Prefix,
			AutoCreateBucket: cfg.Archive.AutoCreateBucket,
		})
		if err != nil {
			logger.Error("failed to initialize snapshot archive", slog.Any("error", err))
			os.Exit(1)
		}
		archiver = s3
	}

	store := session.NewStore(session.Options{
		MaxHistory: cfg.Sessions.MaxHistory,
		TTL:        cfg.Sessions.TTL,
		Archiver:   archiver,
		Logger:     logger,
	})

	generator, err := codegen.NewOpenAIGenerator(codegen.OpenAIConfig{
		BaseURL:     cfg.AI.BaseURL,
		APIKey:      cfg.AI.APIKey,
		Model:       cfg.AI.Model,
		Temperature: cfg.AI.Temperature,
		Timeout:     cfg.AI.Timeout,
	})
	if err != nil {
		logger.Error("failed to initialize code generator", slog.Any("error", err))
		os.Exit(1)
	}

	commands := pipeline.New(store, generator, pipeline.Options{
		ExecTimeout: cfg.Exec.Timeout,
		SampleRows:  cfg.Preview.Rows,
		Logger:      logger,
	})

	if !generator.Configured() {
		logger.Warn("ai api key is not set, process requests will fail until configured")
	}

	deps := api.Dependencies{
		Logger:            logger,
		Store:             store,
		Pipeline:          commands,
		Readiness:         generatorReadiness(generator),
		DependencyTimeout: time.Second,
		PreviewRows:       cfg.Preview.Rows,
		MaxUploadBytes:    int64(cfg.HTTP.MaxUploadMB) << 20,
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

	store.StartJanitor(ctx, cfg.Sessions.JanitorInterval)

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

func generatorReadiness(generator *codegen.OpenAIGenerator) api.ReadinessCheck {
	return func(context.Context) error {
		if !generator.Configured() {
			return errors.New("ai api key is not configured")
		}
		return nil
	}
}
