package cli

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	appconfig "github.com/wolfman30/teams-agent-bridge/internal/config"
	"github.com/wolfman30/teams-agent-bridge/pkg/logging"
)

// version can be overridden at build time via:
// go build -ldflags "-X github.com/wolfman30/teams-agent-bridge/internal/cli.version=1.2.3"
var version = "0.1.0"

// loadConfig is swapped in tests.
var loadConfig = func() *appconfig.Config {
	_ = godotenv.Load()
	return appconfig.Load()
}

var rootCmd = &cobra.Command{
	Use:           "teamsctl",
	Short:         "Operator tooling for the Teams agent relay",
	SilenceUsage:  true,
	SilenceErrors: true,
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "teamsctl %s\n", version)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(signCmd)
	rootCmd.AddCommand(channelsCmd)
	rootCmd.AddCommand(notifyCmd)
	rootCmd.AddCommand(sessionsCmd)
}

// cliLogger keeps library logs off stdout so command output stays parseable.
func cliLogger(cmd *cobra.Command) *logging.Logger {
	return logging.NewWithWriter("warn", cmd.ErrOrStderr())
}

func printHeader(w io.Writer, title string) {
	fmt.Fprintln(w, color.New(color.Bold, color.FgCyan).Sprint(title))
}

func mark(ok bool) string {
	if ok {
		return color.GreenString("✓")
	}
	return color.RedString("✗")
}
