package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wolfman30/teams-agent-bridge/internal/app/bootstrap"
	"github.com/wolfman30/teams-agent-bridge/internal/notify"
)

var (
	notifyChannel  string
	notifyTitle    string
	notifyPriority string
	notifyCard     string
	notifyAll      bool
)

var channelsCmd = &cobra.Command{
	Use:   "channels",
	Short: "List configured notification channels",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := bootstrap.BuildNotifier(loadConfig(), nil, cliLogger(cmd))
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		printHeader(out, "Notification channels")
		for _, ch := range svc.Registry().All() {
			fmt.Fprintf(out, "%s %-10s %s\n", mark(ch.Enabled), ch.Name, ch.Description)
		}
		return nil
	},
}

var notifyCmd = &cobra.Command{
	Use:   "notify MESSAGE",
	Short: "Send a notification to a Teams channel",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := bootstrap.BuildNotifier(loadConfig(), nil, cliLogger(cmd))
		if err != nil {
			return err
		}
		req := notify.Request{
			Channel:  notifyChannel,
			Message:  args[0],
			Title:    notifyTitle,
			Priority: notifyPriority,
			CardType: notify.CardKind(notifyCard),
		}
		out := cmd.OutOrStdout()
		if notifyAll {
			failed := 0
			for _, n := range svc.NotifyAll(cmd.Context(), req) {
				fmt.Fprintf(out, "%s %-10s %s\n", mark(n.Status == notify.StatusSent), n.Channel, n.ID)
				if n.Status != notify.StatusSent {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d channel(s) failed", failed)
			}
			return nil
		}

		n, err := svc.Notify(cmd.Context(), req)
		if errors.Is(err, notify.ErrUnknownChannel) {
			return fmt.Errorf("%w (run 'teamsctl channels' to list them)", err)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s sent %s to %s\n", mark(true), n.ID, n.Channel)
		return nil
	},
}

func init() {
	notifyCmd.Flags().StringVarP(&notifyChannel, "channel", "c", "", "Channel name (default NOTIFY_DEFAULT_CHANNEL)")
	notifyCmd.Flags().StringVarP(&notifyTitle, "title", "t", "", "Title")
	notifyCmd.Flags().StringVarP(&notifyPriority, "priority", "p", "medium", "low, medium, high or critical")
	notifyCmd.Flags().StringVar(&notifyCard, "card", "", "Send an Adaptive Card: alert, info or report")
	notifyCmd.Flags().BoolVar(&notifyAll, "all", false, "Send to every enabled channel")
}
