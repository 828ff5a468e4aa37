package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"keywarden/internal/refresher"
)

var flagTokenThreshold float64

var tokenCmd = &cobra.Command{
	Use:   "token <key>",
	Short: "Print a valid access token for a key, refreshing it if needed",
	Long: `token fetches the stored token for the given credential key and
prints its access token. When the token is past the refresh threshold or
expired, it is refreshed first; concurrent invocations sharing the same
storage coordinate so only one refresh call reaches the server.`,
	Args: cobra.ExactArgs(1),
	RunE: runToken,
}

func init() {
	tokenCmd.Flags().Float64Var(&flagTokenThreshold, "threshold", 1.0,
		"refresh once this fraction of the token lifetime has elapsed (0..1)")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	token, err := refresher.New(client).GetValidTokenWithThreshold(cmd.Context(), args[0], flagTokenThreshold)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), token.AccessToken)
	return nil
}
