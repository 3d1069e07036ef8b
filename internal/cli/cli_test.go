package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fatih/color"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/wolfman30/teams-agent-bridge/internal/config"
	"github.com/wolfman30/teams-agent-bridge/internal/session"
	"github.com/wolfman30/teams-agent-bridge/internal/teams"
)

const testSecret = "c2VjcmV0LWtleQ=="

func runCLI(t *testing.T, cfg *appconfig.Config, stdin string, args ...string) (string, error) {
	t.Helper()
	color.NoColor = true
	prev := loadConfig
	loadConfig = func() *appconfig.Config { return cfg }
	t.Cleanup(func() {
		loadConfig = prev
		signSecret, signFile, signVerify = "", "", ""
		notifyChannel, notifyTitle, notifyPriority, notifyCard, notifyAll = "", "", "medium", "", false
		sessionsConfirm = false
	})

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := runCLI(t, nil, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "teamsctl "+version)
}

func TestSignMatchesVerifier(t *testing.T) {
	body := `{"type":"message","text":"hi"}`
	out, err := runCLI(t, nil, body, "sign", "--secret", testSecret)
	require.NoError(t, err)

	header := strings.TrimSpace(out)
	v, err := teams.NewVerifier(testSecret)
	require.NoError(t, err)
	assert.NoError(t, v.Verify(header, []byte(body)))

	out, err = runCLI(t, nil, body, "sign", "--secret", testSecret, "--verify", header)
	require.NoError(t, err)
	assert.Contains(t, out, "signature ok")

	_, err = runCLI(t, nil, body+" ", "sign", "--secret", testSecret, "--verify", header)
	assert.Error(t, err)
}

func TestSignRejectsBadSecret(t *testing.T) {
	t.Setenv("TEAMS_HMAC_SECRET", "")
	_, err := runCLI(t, nil, "{}", "sign")
	require.Error(t, err)
}

func TestChannelsList(t *testing.T) {
	cfg := &appconfig.Config{WebhookGeneral: "https://example.webhook.office.com/general"}
	out, err := runCLI(t, cfg, "", "channels")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ general")
	assert.Contains(t, out, "✗ alerts")
}

func TestNotifySendsToChannel(t *testing.T) {
	var got map[string]string
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := &appconfig.Config{WebhookAlerts: srv.URL + "/webhook"}
	out, err := runCLI(t, cfg, "", "notify", "-c", "alerts", "-t", "Deploy", "-p", "low", "v2 shipped")
	require.NoError(t, err)
	assert.Contains(t, out, "to alerts")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, "ℹ️ **Deploy**\n\nv2 shipped", got["text"])
}

func TestNotifyUnknownChannel(t *testing.T) {
	_, err := runCLI(t, &appconfig.Config{}, "", "notify", "-c", "nope", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "teamsctl channels")
}

func TestSessionsCommands(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &appconfig.Config{SessionStore: "redis", SessionTTLHours: 24, RedisAddr: mr.Addr()}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	seed := session.NewRedisStore(client, 24*time.Hour)
	require.NoError(t, seed.Set(context.Background(), "aad-1", "conv-1", "sess-1"))

	out, err := runCLI(t, cfg, "", "sessions", "stats")
	require.NoError(t, err)
	var stats map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, "redis", stats["type"])
	assert.EqualValues(t, 1, stats["active_sessions"])

	out, err = runCLI(t, cfg, "", "sessions", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "LAST ACTIVITY")
	assert.Contains(t, out, "sess-1")

	_, err = runCLI(t, cfg, "", "sessions", "clear")
	require.Error(t, err)

	out, err = runCLI(t, cfg, "", "sessions", "clear", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "cleared 1 session(s)")
}

func TestSessionsCommandsRejectMemoryStore(t *testing.T) {
	cfg := &appconfig.Config{SessionStore: "memory", SessionTTLHours: 24}
	for _, sub := range []string{"stats", "list"} {
		_, err := runCLI(t, cfg, "", "sessions", sub)
		require.ErrorIs(t, err, errMemoryStore, sub)
	}
}

func TestSessionsCommandsUnreachableRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	cfg := &appconfig.Config{SessionStore: "redis", SessionTTLHours: 24, RedisAddr: addr}
	_, err := runCLI(t, cfg, "", "sessions", "stats")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreachable")
}
