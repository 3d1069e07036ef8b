package bootstrap

import (
	"fmt"

	"github.com/wolfman30/teams-agent-bridge/internal/agent"
	"github.com/wolfman30/teams-agent-bridge/internal/bot"
	appconfig "github.com/wolfman30/teams-agent-bridge/internal/config"
	"github.com/wolfman30/teams-agent-bridge/internal/notify"
	"github.com/wolfman30/teams-agent-bridge/internal/observability/metrics"
	"github.com/wolfman30/teams-agent-bridge/internal/teams"
	"github.com/wolfman30/teams-agent-bridge/pkg/logging"
)

// BuildAgentClient wires the backend agent client from config.
func BuildAgentClient(cfg *appconfig.Config, logger *logging.Logger) (*agent.Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	client, err := agent.New(agent.Config{
		BaseURL:    cfg.AgentAPIURL,
		APIKey:     cfg.AgentAPIKey,
		APIPrefix:  cfg.AgentAPIPrefix,
		Timeout:    cfg.AgentTimeout,
		MaxRetries: cfg.AgentMaxRetries,
		Backoff:    cfg.AgentRetryBackoff,
		Logger:     logger.Component("agent").Logger,
		UserAgent:  "teams-agent-bridge/" + cfg.Version,
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrap: agent client: %w", err)
	}
	return client, nil
}

// BuildVerifier returns nil when inbound signatures are not configured.
func BuildVerifier(cfg *appconfig.Config, logger *logging.Logger) (*teams.Verifier, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	verifier, err := teams.NewVerifierFromConfig(cfg.TeamsHMACSecret)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: teams verifier: %w", err)
	}
	if verifier.IsConfigured() && logger != nil {
		logger.Info("teams hmac verification enabled")
	}
	return verifier, nil
}

// BuildNotifier wires the channel registry, webhook sender and service.
func BuildNotifier(cfg *appconfig.Config, m *metrics.RelayMetrics, logger *logging.Logger, opts ...notify.ServiceOption) (*notify.Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	log := logger.Component("notify")
	registry := notify.NewRegistryFromConfig(cfg, log)
	if cfg.NotifyChannelsFile != "" {
		n, err := registry.LoadFile(cfg.NotifyChannelsFile)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: %w", err)
		}
		log.Info("notification channels file loaded", "path", cfg.NotifyChannelsFile, "count", n)
	}
	sender := notify.NewWebhookSender(notify.WebhookSenderConfig{
		Timeout:    cfg.SenderTimeout,
		MaxRetries: cfg.SenderMaxRetries,
		RetryDelay: cfg.SenderRetryDelay,
		Logger:     log,
	})
	enabled := registry.Enabled()
	names := make([]string, 0, len(enabled))
	for _, ch := range enabled {
		names = append(names, ch.Name)
	}
	log.Info("notification channels loaded", "enabled", names)
	opts = append([]notify.ServiceOption{
		notify.WithServiceMetrics(m),
		notify.WithDefaultChannel(cfg.NotifyDefaultName),
	}, opts...)
	return notify.NewService(registry, sender, log, opts...), nil
}

// BuildBot wires the Bot Framework endpoint and its proactive messenger.
// Both are nil unless the bot's app credentials are configured.
func BuildBot(cfg *appconfig.Config, processor bot.TurnProcessor, m *metrics.RelayMetrics, logger *logging.Logger) (*bot.Handler, *bot.Messenger) {
	if cfg == nil || !cfg.BotEnabled() {
		return nil, nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	log := logger.Component("bot")
	refs := bot.NewReferences()
	connector := bot.NewConnector(bot.ConnectorConfig{
		AppID:       cfg.BotAppID,
		AppPassword: cfg.BotAppPassword,
		TenantID:    cfg.BotTenantID,
	}, log)
	handler := bot.NewHandler(bot.HandlerConfig{
		Processor:   processor,
		Replier:     connector,
		References:  refs,
		Auth:        bot.NewTokenValidator(cfg.BotAppID, cfg.BotKeysURL, nil),
		Logger:      log,
		Metrics:     m,
		WelcomeText: cfg.BotWelcomeText,
	})
	log.Info("bot framework endpoint enabled", "app_id", cfg.BotAppID)
	return handler, bot.NewMessenger(refs, connector, log)
}
