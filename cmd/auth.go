package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/outpost-sec/cli/internal/session"
)

var authPassword string

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage Outpost authentication",
	Long: `Manage the token lifecycle for the active profile.

Examples:
  # Interactive login (prompts for password)
  outpost auth login

  # Non-interactive login
  outpost auth login --password SECRET

  # Exchange the stored refresh token for a new bearer token
  outpost auth refresh

  # Check auth status
  outpost auth status`,
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Exchange your password for a bearer token",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAuthLogin()
	},
}

var authRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Exchange the stored refresh token for a new bearer token",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := resolveSession()
		if err != nil {
			return err
		}
		if err := withSpinner("Refreshing token", s.Refresh); err != nil {
			if errors.Is(err, session.ErrNoRefreshToken) {
				return fmt.Errorf("%w\nRun 'outpost auth login' to authenticate", err)
			}
			return err
		}
		fmt.Println("Token refreshed")
		return nil
	},
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current authentication state",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := resolveSession()
		if err != nil {
			return err
		}
		fmt.Printf("Profile: %s\n", profileOrExplicit(s))
		fmt.Printf("  Account: %s\n", s.Account)
		fmt.Printf("  Handle:  %s\n", s.Handle)
		fmt.Printf("  HQ:      %s\n", s.HQ)

		token, err := s.Token()
		switch {
		case errors.Is(err, session.ErrNotAuthenticated):
			fmt.Println("  Status:  not authenticated")
		case errors.Is(err, session.ErrTokenExpired):
			fmt.Println("  Status:  token expired (run 'outpost auth refresh' or 'outpost auth login')")
		case err != nil:
			return err
		default:
			masked := token
			if len(masked) > 8 {
				masked = masked[:4] + "..." + masked[len(masked)-4:]
			}
			fmt.Printf("  Status:  authenticated (token %s)\n", masked)
		}
		return nil
	},
}

func runAuthLogin() error {
	s, err := resolveSession()
	if err != nil {
		return err
	}

	password := authPassword
	if password == "" {
		if !isInteractive() {
			return fmt.Errorf("--password is required in non-interactive mode")
		}
		fmt.Printf("Password for %s: ", s.Handle)
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		password = string(raw)
	}
	if password == "" {
		return fmt.Errorf("password cannot be empty")
	}

	if err := withSpinner("Logging in", func() error {
		return s.PasswordLogin(password)
	}); err != nil {
		return err
	}
	fmt.Printf("Logged in as %s\n", s.Handle)
	return nil
}

func profileOrExplicit(s *session.Session) string {
	if s.Profile != "" {
		return s.Profile
	}
	return "(explicit)"
}

func init() {
	authLoginCmd.Flags().StringVar(&authPassword, "password", "", "Password (omit to be prompted)")

	authCmd.AddCommand(authLoginCmd, authRefreshCmd, authStatusCmd)
	rootCmd.AddCommand(authCmd)
}
