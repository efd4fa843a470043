package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/outpost-sec/cli/internal/keychain"
	"github.com/outpost-sec/cli/internal/session"
)

var (
	// Persistent identity flags, with OUTPOST_* env fallbacks for CI
	profileName string
	accountID   string
	handle      string
	hq          string
	idToken     string

	version = "1.0.0" // This will be set during build
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "outpost",
	Short: "Outpost CLI - Continuously test your security controls",
	Long: `Outpost CLI is a command-line client for the Outpost API. It manages named
identity profiles, exchanges credentials for bearer tokens, and runs the
partner, detect, and build workflows against your account.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the CLI version",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("Outpost CLI v%s\n", version)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&profileName, "profile", envOr("OUTPOST_PROFILE", keychain.DefaultProfile), "keychain profile to use")
	rootCmd.PersistentFlags().StringVar(&accountID, "account", os.Getenv("OUTPOST_ACCOUNT"), "account ID (bypasses the keychain)")
	rootCmd.PersistentFlags().StringVar(&handle, "handle", os.Getenv("OUTPOST_HANDLE"), "user handle (email)")
	rootCmd.PersistentFlags().StringVar(&hq, "hq", envOr("OUTPOST_API", session.DefaultHQ), "Outpost API host")
	rootCmd.PersistentFlags().StringVar(&idToken, "token", os.Getenv("OUTPOST_TOKEN"), "ID token; must also provide account, handle, and hq")

	rootCmd.AddCommand(versionCmd)
}

// resolveSession builds the session for this invocation: an out-of-band
// token wins, explicit identity flags come next, and the keychain profile
// is the default path.
func resolveSession() (*session.Session, error) {
	if idToken != "" {
		if accountID == "" || handle == "" {
			return nil, fmt.Errorf("--token requires --account and --handle")
		}
		return session.FromToken(accountID, handle, hq, idToken)
	}
	if accountID != "" || handle != "" {
		return session.FromParams(accountID, handle, hq)
	}
	kc, err := keychain.New()
	if err != nil {
		return nil, err
	}
	return session.FromKeychain(kc, profileName)
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
