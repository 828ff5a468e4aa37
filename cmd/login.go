package cmd

import (
	"context"
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"keywarden/internal/callback"
)

var flagLoginKey string

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Run the authorization flow and store the resulting token",
	Long: `login starts an authorization-code-with-PKCE flow against the
configured authorization server, prints the URL to open in a browser, waits
for the redirect on a local callback server, exchanges the code, and stores
the token under the given key.`,
	RunE: runLogin,
}

func init() {
	loginCmd.Flags().StringVar(&flagLoginKey, "key", "", "credential key to store the token under (default: token endpoint host)")
	rootCmd.AddCommand(loginCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	srv := callback.NewServer(cfg.CallbackPort)
	redirectURI, err := srv.Start(ctx)
	if err != nil {
		return err
	}
	defer srv.Stop()

	// The callback server owns the redirect URI unless one is configured.
	if cfg.OAuth.RedirectURI == "" {
		cfg.OAuth.RedirectURI = redirectURI
	}

	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	flow, err := client.StartAuthFlow(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Open the following URL in your browser to authorize:")
	fmt.Fprintln(cmd.OutOrStdout())
	fmt.Fprintln(cmd.OutOrStdout(), "  "+flow.URL)
	fmt.Fprintln(cmd.OutOrStdout())

	waitCtx, cancel := context.WithTimeout(ctx, callback.DefaultWaitTimeout)
	defer cancel()

	result, err := srv.Wait(waitCtx)
	if err != nil {
		return fmt.Errorf("waiting for authorization callback: %w", err)
	}
	if result.IsError() {
		if result.ErrorDescription != "" {
			return fmt.Errorf("authorization failed: %s - %s", result.Error, result.ErrorDescription)
		}
		return fmt.Errorf("authorization failed: %s", result.Error)
	}

	key := flagLoginKey
	if key == "" {
		key = defaultKey(cfg.OAuth.TokenEndpoint)
	}

	token, err := client.ExchangeCode(ctx, result.State, result.Code, key)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Stored token under key %q", key)
	if !token.ExpiresAt.IsZero() {
		fmt.Fprintf(cmd.OutOrStdout(), " (expires in %ds)", token.ExpiresIn)
	}
	fmt.Fprintln(cmd.OutOrStdout())
	return nil
}

// defaultKey derives a credential key from the token endpoint host. A key
// identifies a remote service and outlives any single flow.
func defaultKey(tokenEndpoint string) string {
	u, err := url.Parse(tokenEndpoint)
	if err != nil || u.Host == "" {
		return "default"
	}
	return u.Host
}
