package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"keywarden/internal/refresher"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh <key>",
	Short: "Force a refresh of the stored token for a key",
	Long: `refresh performs an unconditional coordinated refresh for the given
credential key. Use it when a downstream service already rejected the
current access token.`,
	Args: cobra.ExactArgs(1),
	RunE: runRefresh,
}

func init() {
	rootCmd.AddCommand(refreshCmd)
}

func runRefresh(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	token, err := refresher.New(client).RefreshTokenForKey(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Refreshed token for key %q", args[0])
	if !token.ExpiresAt.IsZero() {
		fmt.Fprintf(cmd.OutOrStdout(), " (expires in %ds)", token.ExpiresIn)
	}
	fmt.Fprintln(cmd.OutOrStdout())
	return nil
}
