package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/wolfman30/teams-agent-bridge/internal/teams"
)

var (
	signSecret string
	signFile   string
	signVerify string
)

var signCmd = &cobra.Command{
	Use:   "sign",
	Short: "Compute the Teams HMAC Authorization header for a request body",
	Long: "Reads the body from --file or stdin and prints the Authorization header\n" +
		"Teams would send for it. With --verify, checks a header instead.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if signSecret == "" {
			signSecret = os.Getenv("TEAMS_HMAC_SECRET")
		}
		verifier, err := teams.NewVerifier(signSecret)
		if err != nil {
			return err
		}
		body, err := readBody(cmd, signFile)
		if err != nil {
			return err
		}
		if signVerify != "" {
			if err := verifier.Verify(signVerify, body); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "signature ok")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "HMAC %s\n", verifier.Sign(body))
		return nil
	},
}

func init() {
	signCmd.Flags().StringVar(&signSecret, "secret", "", "Base64 webhook secret (default $TEAMS_HMAC_SECRET)")
	signCmd.Flags().StringVar(&signFile, "file", "", "Read the body from this file instead of stdin")
	signCmd.Flags().StringVar(&signVerify, "verify", "", "Authorization header to check against the body")
}

func readBody(cmd *cobra.Command, path string) ([]byte, error) {
	if path != "" {
		return os.ReadFile(path)
	}
	return io.ReadAll(cmd.InOrStdin())
}
