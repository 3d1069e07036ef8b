package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/wolfman30/teams-agent-bridge/internal/app/bootstrap"
	"github.com/wolfman30/teams-agent-bridge/internal/session"
)

var sessionsConfirm bool

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect the configured session store",
}

var sessionsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print session store statistics as JSON",
	RunE: withStore(func(cmd *cobra.Command, store session.Store) error {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(store.Stats(cmd.Context()))
	}),
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active sessions, most recent first",
	RunE: withStore(func(cmd *cobra.Command, store session.Store) error {
		sessions, err := store.ListAll(cmd.Context())
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "USER\tCONVERSATION\tSESSION\tMESSAGES\tLAST ACTIVITY")
		for _, s := range sessions {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", s.UserID, s.ConversationID, s.SessionID, s.MessageCount, s.LastActivity.Format("2006-01-02 15:04:05"))
		}
		return tw.Flush()
	}),
}

var sessionsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every session",
	RunE: withStore(func(cmd *cobra.Command, store session.Store) error {
		if !sessionsConfirm {
			return errors.New("refusing to clear sessions without --yes")
		}
		n, err := store.ClearAll(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "cleared %d session(s)\n", n)
		return nil
	}),
}

func init() {
	sessionsClearCmd.Flags().BoolVar(&sessionsConfirm, "yes", false, "Confirm deleting all sessions")
	sessionsCmd.AddCommand(sessionsStatsCmd, sessionsListCmd, sessionsClearCmd)
}

// errMemoryStore explains why the CLI cannot see an in-memory store.
var errMemoryStore = errors.New("sessions commands need SESSION_STORE=redis; an in-memory store lives inside the relay process, use GET /admin/sessions instead")

// withStore opens the shared redis store. It never falls back to memory,
// since a fresh in-process store would always look empty.
func withStore(fn func(cmd *cobra.Command, store session.Store) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		if cfg == nil || !strings.EqualFold(strings.TrimSpace(cfg.SessionStore), "redis") {
			return errMemoryStore
		}
		client := bootstrap.BuildRedisClient(cmd.Context(), cfg, cliLogger(cmd), true)
		if client == nil {
			return fmt.Errorf("redis at %s is unreachable", cfg.RedisAddr)
		}
		defer client.Close()
		return fn(cmd, session.NewRedisStore(client, cfg.SessionTTL()))
	}
}
