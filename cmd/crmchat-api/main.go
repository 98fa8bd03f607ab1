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

	"github.com/crmchat/crmchat/internal/api"
	"github.com/crmchat/crmchat/internal/auth"
	"github.com/crmchat/crmchat/internal/config"
	"github.com/crmchat/crmchat/internal/observability"
	"github.com/crmchat/crmchat/internal/pipeline"
	"github.com/crmchat/crmchat/internal/salesforce"
	"github.com/crmchat/crmchat/internal/transcript"
	transcriptpostgres "github.com/crmchat/crmchat/internal/transcript/postgres"
	"github.com/crmchat/crmchat/internal/translate"
)

func main() {
	cfg, err := config.LoadFromEnv("crmchat-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)

	translator, err := translate.NewOllamaTranslator(translate.OllamaConfig{
		BaseURL: cfg.Model.BaseURL,
		Model:   cfg.Model.Model,
		Timeout: cfg.Model.Timeout,
	})
	if err != nil {
		logger.Error("failed to initialize translator", slog.Any("error", err))
		os.Exit(1)
	}

	authClient, err := salesforce.NewAuthClient(salesforce.AuthConfig{
		LoginURL:     cfg.Salesforce.LoginURL,
		ClientID:     cfg.Salesforce.ClientID,
		ClientSecret: cfg.Salesforce.ClientSecret,
		Timeout:      cfg.Salesforce.Timeout,
	})
	if err != nil {
		logger.Error("failed to initialize salesforce auth", slog.Any("error", err))
		os.Exit(1)
	}
	var tokens salesforce.TokenProvider = salesforce.NewDirectTokenProvider(authClient)
	if cfg.Salesforce.TokenCache {
		tokens = salesforce.NewCachingTokenProvider(authClient, 30*time.Minute)
	}

	dispatcher, err := salesforce.NewDispatcher(tokens, salesforce.DispatcherConfig{
		APIVersion: cfg.Salesforce.APIVersion,
		Timeout:    cfg.Salesforce.Timeout,
	}, logger)
	if err != nil {
		logger.Error("failed to initialize dispatcher", slog.Any("error", err))
		os.Exit(1)
	}

	chat, err := pipeline.NewService(translator, dispatcher, logger)
	if err != nil {
		logger.Error("failed to initialize pipeline", slog.Any("error", err))
		os.Exit(1)
	}

	var store transcript.Store
	if cfg.Transcript.Enabled {
		transcriptDB, err := transcriptpostgres.Open(context.Background(), transcriptpostgres.DBConfig{
			DSN:             cfg.Transcript.DSN,
			MaxOpenConns:    cfg.Transcript.MaxOpenConns,
			MaxIdleConns:    cfg.Transcript.MaxIdleConns,
			ConnMaxIdleTime: cfg.Transcript.ConnMaxIdleTime,
			ConnMaxLifetime: cfg.Transcript.ConnMaxLifetime,
		})
		if err != nil {
			logger.Error("failed to open transcript db", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() { _ = transcriptDB.Close() }()
		store = transcriptpostgres.NewRepository(transcriptDB)
	}

	deps := api.Dependencies{
		Logger:     logger,
		Chat:       chat,
		Dispatcher: dispatcher,
		Transcript: store,
		Readiness: api.CombineReadinessChecks(
			api.CheckSalesforceConfig(cfg),
			api.CheckModelConfig(cfg),
			api.CheckTranscriptStore(store),
		),
		DependencyTimeout: time.Second,
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
