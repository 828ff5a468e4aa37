package cmd

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"keywarden/pkg/logging"
	"keywarden/pkg/oauth"
)

// Exit codes for CLI commands. These follow common conventions so scripts
// can branch on the outcome.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error.
	ExitCodeError = 1
	// ExitCodeAuthRequired indicates no usable credential is stored.
	ExitCodeAuthRequired = 2
	// ExitCodeAuthFailed indicates the OAuth flow or refresh failed.
	ExitCodeAuthFailed = 3
)

var (
	flagConfigPath string
	flagDebug      bool
)

// rootCmd is the base command for the keywarden CLI.
var rootCmd = &cobra.Command{
	Use:   "keywarden",
	Short: "Manage OAuth2 credentials with coordinated refresh",
	Long: `keywarden manages client-side OAuth2 credentials: it runs
authorization-code-with-PKCE login flows, persists tokens, and refreshes
them automatically while making sure concurrent callers and cooperating
processes never issue duplicate refresh calls.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := logging.LevelInfo
		if flagDebug {
			level = logging.LevelDebug
		}
		logging.Init(level, os.Stderr)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config directory (default ~/.config/keywarden)")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
}

// SetVersion sets the version for the root command. Called from main to
// inject the build version.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute is the entry point for the CLI. It runs the root command and exits
// with a semantic exit code.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "keywarden version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode maps error classes to exit codes.
func getExitCode(err error) int {
	switch {
	case errors.Is(err, oauth.ErrTokenNotFound),
		errors.Is(err, oauth.ErrNoRefreshToken):
		return ExitCodeAuthRequired
	}

	var endpointErr *oauth.TokenEndpointError
	if errors.As(err, &endpointErr) {
		return ExitCodeAuthFailed
	}
	var transportErr *oauth.TransportError
	if errors.As(err, &transportErr) {
		return ExitCodeAuthFailed
	}

	return ExitCodeError
}
