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

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/wolfman30/teams-agent-bridge/internal/api/router"
	"github.com/wolfman30/teams-agent-bridge/internal/app/bootstrap"
	appconfig "github.com/wolfman30/teams-agent-bridge/internal/config"
	"github.com/wolfman30/teams-agent-bridge/internal/conversation"
	"github.com/wolfman30/teams-agent-bridge/internal/http/handlers"
	"github.com/wolfman30/teams-agent-bridge/internal/notify"
	"github.com/wolfman30/teams-agent-bridge/internal/observability/metrics"
	"github.com/wolfman30/teams-agent-bridge/internal/session"
	"github.com/wolfman30/teams-agent-bridge/pkg/logging"
)

func main() {
	// .env is optional outside local development
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting teams-agent-bridge",
		"env", cfg.Env,
		"port", cfg.Port,
		"version", cfg.Version,
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("relay exited with error", "error", err)
		os.Exit(1)
	}
	fmt.Println("Server exited gracefully")
}

func run(cfg *appconfig.Config, logger *logging.Logger) error {
	ctx := context.Background()

	metricsHandler, relayMetrics := setupRelayMetrics()

	agentClient, err := bootstrap.BuildAgentClient(cfg, logger)
	if err != nil {
		return err
	}
	verifier, err := bootstrap.BuildVerifier(cfg, logger)
	if err != nil {
		return err
	}
	store, closeStore := bootstrap.BuildSessionStore(ctx, cfg, logger.Component("session"))
	defer func() {
		if err := closeStore(); err != nil {
			logger.Warn("session store close failed", "error", err)
		}
	}()
	processor := conversation.NewProcessor(agentClient, store, logger.Component("processor"),
		conversation.WithMetrics(relayMetrics),
		conversation.WithTimeoutText(cfg.ReplyTimeoutText),
	)
	botHandler, messenger := bootstrap.BuildBot(cfg, processor, relayMetrics, logger)
	var notifyOpts []notify.ServiceOption
	if messenger != nil {
		notifyOpts = append(notifyOpts, notify.WithConversations(messenger))
	}
	notifier, err := bootstrap.BuildNotifier(cfg, relayMetrics, logger, notifyOpts...)
	if err != nil {
		return err
	}

	webhook := handlers.NewTeamsWebhookHandler(handlers.TeamsWebhookConfig{
		Verifier:    verifier,
		Processor:   processor,
		Logger:      logger.Component("teams"),
		Metrics:     relayMetrics,
		Deadline:    cfg.TeamsResponseDeadline,
		TimeoutText: cfg.ReplyTimeoutText,
		DevMode:     cfg.DevMode(),
	})
	health := handlers.NewHealthHandler(handlers.HealthConfig{
		Version:     cfg.Version,
		Environment: cfg.Env,
		AgentURL:    agentClient.BaseURL(),
		Agent:       agentClient,
		Sessions:    store,
		HMACEnabled: webhook.HMACEnabled(),
	})
	if cfg.AdminJWTSecret == "" {
		logger.Warn("session admin api disabled", "reason", "ADMIN_JWT_SECRET not configured")
	}

	r := router.New(&router.Config{
		Logger:             logger,
		TeamsWebhook:       webhook,
		Bot:                botHandler,
		Health:             health,
		SessionAdmin:       session.NewHandler(store, logger.Component("session")),
		Notify:             notify.NewHandler(notifier, cfg.NotifierAPIKey, logger.Component("notify")),
		MetricsHandler:     metricsHandler,
		AdminAuthSecret:    cfg.AdminJWTSecret,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimitRPS:       cfg.RateLimitRPS,
		RateLimitBurst:     cfg.RateLimitBurst,
		DevMode:            cfg.DevMode(),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           otelhttp.NewHandler(r, "teams-agent-bridge"),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	processor.Wait()
	logger.Info("server stopped")
	return nil
}

func setupRelayMetrics() (http.Handler, *metrics.RelayMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	relayMetrics := metrics.NewRelayMetrics(reg)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), relayMetrics
}
