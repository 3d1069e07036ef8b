// Package main runs a smoke test against a deployed relay.
//
// It checks health, signs a Teams outgoing-webhook message with the shared
// secret, confirms a forged signature is rejected, and optionally exercises
// the session admin and notify APIs.
//
// Usage:
//
//	go run ./scripts/smoke --api=URL [--hmac=BASE64] [--admin-secret=S] [--notify-key=K] [--channel=NAME]
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/teams-agent-bridge/internal/teams"
)

// ---------------------------------------------------------------------------
// Flags
// ---------------------------------------------------------------------------

var (
	flagAPI         string
	flagHMAC        string
	flagAdminSecret string
	flagNotifyKey   string
	flagChannel     string
	flagText        string
)

func init() {
	flag.StringVar(&flagAPI, "api", "http://localhost:8080", "Relay base URL")
	flag.StringVar(&flagHMAC, "hmac", os.Getenv("TEAMS_HMAC_SECRET"), "Teams outgoing webhook secret (base64)")
	flag.StringVar(&flagAdminSecret, "admin-secret", os.Getenv("ADMIN_JWT_SECRET"), "Admin JWT secret")
	flag.StringVar(&flagNotifyKey, "notify-key", os.Getenv("NOTIFIER_API_KEY"), "Notify API key")
	flag.StringVar(&flagChannel, "channel", "", "Send a test notification to this channel")
	flag.StringVar(&flagText, "text", "/status", "Message text sent through the webhook")
}

// ---------------------------------------------------------------------------
// Checks
// ---------------------------------------------------------------------------

type check struct {
	name string
	run  func() error
}

var httpClient = &http.Client{Timeout: 15 * time.Second}

func main() {
	flag.Parse()
	flagAPI = strings.TrimRight(flagAPI, "/")

	verifier, err := teams.NewVerifierFromConfig(flagHMAC)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid --hmac: %v\n", err)
		os.Exit(2)
	}

	checks := []check{
		{"health", checkHealth},
		{"webhook ready", checkReady},
		{"webhook message", func() error { return checkMessage(verifier) }},
	}
	if verifier.IsConfigured() {
		checks = append(checks, check{"forged signature rejected", checkForged})
	}
	if flagAdminSecret != "" {
		checks = append(checks, check{"session stats", checkSessionStats})
	}
	if flagNotifyKey != "" || flagChannel != "" {
		checks = append(checks, check{"notify channels", checkChannels})
	}
	if flagChannel != "" {
		checks = append(checks, check{"notify send", checkNotify})
	}

	failed := 0
	for _, c := range checks {
		start := time.Now()
		err := c.run()
		elapsed := time.Since(start).Round(time.Millisecond)
		if err != nil {
			failed++
			fmt.Printf("FAIL  %-28s %8s  %v\n", c.name, elapsed, err)
			continue
		}
		fmt.Printf("PASS  %-28s %8s\n", c.name, elapsed)
	}
	fmt.Printf("\n%d/%d checks passed\n", len(checks)-failed, len(checks))
	if failed > 0 {
		os.Exit(1)
	}
}

func checkHealth() error {
	var body struct {
		Status string `json:"status"`
		Agent  struct {
			Status string `json:"status"`
		} `json:"agent"`
	}
	if err := doJSON(http.MethodGet, "/health", nil, nil, http.StatusOK, &body); err != nil {
		return err
	}
	if body.Status != "healthy" {
		return fmt.Errorf("relay %s, agent %s", body.Status, body.Agent.Status)
	}
	return nil
}

func checkReady() error {
	return doJSON(http.MethodGet, "/api/teams/webhook", nil, nil, http.StatusOK, nil)
}

func checkMessage(verifier *teams.Verifier) error {
	body := activity(flagText)
	headers := map[string]string{}
	if verifier.IsConfigured() {
		headers["Authorization"] = "HMAC " + verifier.Sign(body)
	}
	var reply teams.Reply
	if err := doJSON(http.MethodPost, "/api/teams/webhook", body, headers, http.StatusOK, &reply); err != nil {
		return err
	}
	if strings.TrimSpace(reply.Text) == "" {
		return fmt.Errorf("empty reply")
	}
	fmt.Printf("      reply: %s\n", firstLine(reply.Text))
	return nil
}

func checkForged() error {
	headers := map[string]string{"Authorization": "HMAC AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA="}
	return doJSON(http.MethodPost, "/api/teams/webhook", activity("forged"), headers, http.StatusUnauthorized, nil)
}

func checkSessionStats() error {
	token, err := adminToken()
	if err != nil {
		return err
	}
	headers := map[string]string{"Authorization": "Bearer " + token}
	return doJSON(http.MethodGet, "/admin/sessions/stats", nil, headers, http.StatusOK, nil)
}

func checkChannels() error {
	var body struct {
		Enabled []string `json:"enabled"`
	}
	if err := doJSON(http.MethodGet, "/api/v1/channels", nil, notifyHeaders(), http.StatusOK, &body); err != nil {
		return err
	}
	fmt.Printf("      enabled: %s\n", strings.Join(body.Enabled, ", "))
	return nil
}

func checkNotify() error {
	payload, _ := json.Marshal(map[string]any{
		"channel":  flagChannel,
		"title":    "Smoke test",
		"message":  "Relay smoke test at " + time.Now().UTC().Format(time.RFC3339),
		"priority": "low",
	})
	return doJSON(http.MethodPost, "/api/v1/notify", payload, notifyHeaders(), http.StatusOK, nil)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func activity(text string) []byte {
	payload, _ := json.Marshal(map[string]any{
		"type":         "message",
		"id":           "smoke-" + uuid.NewString(),
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
		"text":         "<at>Agent</at> " + text,
		"from":         map[string]string{"id": "smoke-user", "name": "Smoke Test"},
		"conversation": map[string]string{"id": "smoke-conversation"},
		"channelId":    "msteams",
	})
	return payload
}

func adminToken() (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   "smoke",
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(5 * time.Minute)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(flagAdminSecret))
}

func notifyHeaders() map[string]string {
	if flagNotifyKey == "" {
		return nil
	}
	return map[string]string{"X-API-Key": flagNotifyKey}
}

func doJSON(method, path string, body []byte, headers map[string]string, wantStatus int, out any) error {
	req, err := http.NewRequest(method, flagAPI+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode != wantStatus {
		return fmt.Errorf("%s %s: got %d, want %d: %s", method, path, resp.StatusCode, wantStatus, firstLine(string(raw)))
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
	}
	return nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 120 {
		s = s[:120] + "..."
	}
	return s
}
