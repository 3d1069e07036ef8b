package notify

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/teams-agent-bridge/internal/config"
)

func TestRegistryFromConfig(t *testing.T) {
	cfg := &config.Config{
		WebhookAlerts:  "https://example.webhook.office.com/alerts",
		WebhookGeneral: "https://example.webhook.office.com/general",
	}
	r := NewRegistryFromConfig(cfg, nil)

	assert.Len(t, r.All(), 4)
	enabled := r.Enabled()
	require.Len(t, enabled, 2)
	assert.Equal(t, "alerts", enabled[0].Name)
	assert.Equal(t, "general", enabled[1].Name)

	ch, ok := r.Get("ALERTS")
	require.True(t, ok)
	assert.Equal(t, "Alert notifications", ch.Description)

	_, ok = r.Get("reports")
	assert.False(t, ok, "disabled channel should not resolve")
	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestRegistryRegisterReplaces(t *testing.T) {
	r := NewRegistry(nil)
	r.Register("ops", "", "")
	_, ok := r.Get("ops")
	assert.False(t, ok)

	r.Register("ops", "http://plain.example.com/hook", "ops")
	ch, ok := r.Get("ops")
	require.True(t, ok)
	assert.True(t, ch.Enabled)
	assert.Len(t, r.All(), 1)
}

func TestRegistryLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "channels.yaml")
	doc := `channels:
  - name: Ops
    webhook_url: https://example.webhook.office.com/ops
    description: Ops room
  - name: alerts
    webhook_url: https://example.webhook.office.com/other
    disabled: true
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	r := NewRegistry(nil)
	r.Register("alerts", "https://example.webhook.office.com/alerts", "Alert notifications")
	n, err := r.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	ch, ok := r.Get("ops")
	require.True(t, ok)
	assert.Equal(t, "Ops room", ch.Description)
	_, ok = r.Get("alerts")
	assert.False(t, ok, "file entry disables the channel")
}

func TestRegistryLoadFileErrors(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("channels:\n  - webhook_url: https://x\n"), 0o600))
	_, err = r.LoadFile(path)
	require.Error(t, err)
}
