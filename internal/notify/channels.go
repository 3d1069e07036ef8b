package notify

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/wolfman30/teams-agent-bridge/internal/config"
	"github.com/wolfman30/teams-agent-bridge/pkg/logging"
)

// Channel is a named Teams incoming webhook.
type Channel struct {
	Name        string `json:"name"`
	WebhookURL  string `json:"-"`
	Enabled     bool   `json:"enabled"`
	Description string `json:"description,omitempty"`
}

// Registry holds the known channels. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]Channel
	logger   *logging.Logger
}

func NewRegistry(logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.Default()
	}
	return &Registry{channels: make(map[string]Channel), logger: logger}
}

// NewRegistryFromConfig registers the alerts, reports, general and default
// channels. A channel without a URL is registered disabled.
func NewRegistryFromConfig(cfg *config.Config, logger *logging.Logger) *Registry {
	r := NewRegistry(logger)
	r.Register("alerts", cfg.WebhookAlerts, "Alert notifications")
	r.Register("reports", cfg.WebhookReports, "Report notifications")
	r.Register("general", cfg.WebhookGeneral, "General notifications")
	r.Register("default", cfg.WebhookDefault, "Default channel")
	return r
}

// Register adds or replaces a channel. Suspicious URLs are logged, not rejected.
func (r *Registry) Register(name, webhookURL, description string) {
	name = strings.ToLower(strings.TrimSpace(name))
	webhookURL = strings.TrimSpace(webhookURL)
	if webhookURL != "" {
		if !strings.HasPrefix(webhookURL, "https://") {
			r.logger.Warn("notify: channel webhook is not https", "channel", name)
		}
		if !strings.Contains(strings.ToLower(webhookURL), "webhook") {
			r.logger.Warn("notify: channel url does not look like a Teams webhook", "channel", name)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels[name] = Channel{
		Name:        name,
		WebhookURL:  webhookURL,
		Enabled:     webhookURL != "",
		Description: description,
	}
}

// Get returns an enabled channel by name.
func (r *Registry) Get(name string) (Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[strings.ToLower(strings.TrimSpace(name))]
	if !ok || !ch.Enabled {
		return Channel{}, false
	}
	return ch, true
}

// All returns every registered channel sorted by name.
func (r *Registry) All() []Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Channel, 0, len(r.channels))
	for _, ch := range r.channels {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Enabled returns the channels that have a webhook URL.
func (r *Registry) Enabled() []Channel {
	all := r.All()
	out := all[:0]
	for _, ch := range all {
		if ch.Enabled {
			out = append(out, ch)
		}
	}
	return out
}

type channelFile struct {
	Channels []struct {
		Name        string `yaml:"name"`
		WebhookURL  string `yaml:"webhook_url"`
		Description string `yaml:"description"`
		Disabled    bool   `yaml:"disabled"`
	} `yaml:"channels"`
}

// LoadFile registers channels from a YAML document of the form
//
//	channels:
//	  - name: ops
//	    webhook_url: https://example.webhook.office.com/...
//	    description: Ops room
//
// Entries override channels of the same name. It returns the number loaded.
func (r *Registry) LoadFile(path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("notify: read channels file: %w", err)
	}
	var doc channelFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return 0, fmt.Errorf("notify: parse channels file: %w", err)
	}
	for i, ch := range doc.Channels {
		if strings.TrimSpace(ch.Name) == "" {
			return i, fmt.Errorf("notify: channels file entry %d has no name", i)
		}
		url := ch.WebhookURL
		if ch.Disabled {
			url = ""
		}
		r.Register(ch.Name, url, ch.Description)
	}
	return len(doc.Channels), nil
}
