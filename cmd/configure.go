package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/outpost-sec/cli/internal/keychain"
	"github.com/outpost-sec/cli/internal/session"
)

var (
	configureAccount string
	configureHandle  string
	configureHQ      string
)

// configureCmd writes an identity profile into the keychain
var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Configure a keychain profile",
	Long: `Write an identity profile into the keychain. The profile name comes from
the global --profile flag.

Examples:
  # Interactive
  outpost configure

  # Non-interactive
  outpost configure --account UUID --handle you@example.com

  # A second profile against a different region
  outpost --profile eu configure --account UUID --handle you@example.com --hq https://api.eu1.outpost-sec.com`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConfigure()
	},
}

// profilesCmd lists every profile in the keychain
var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List keychain profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		kc, err := keychain.New()
		if err != nil {
			return err
		}
		profiles, err := kc.ReadProfiles()
		if err != nil {
			return err
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Profile", "Account", "Handle", "HQ"})
		for _, p := range profiles {
			t.AppendRow(table.Row{p.Name, p.Account, p.Handle, p.HQ})
		}
		t.Render()
		return nil
	},
}

func runConfigure() error {
	account := configureAccount
	userHandle := configureHandle

	if account == "" || userHandle == "" {
		if !isInteractive() {
			return fmt.Errorf("--account and --handle are required in non-interactive mode")
		}
		var err error
		account, userHandle, err = promptIdentity(account, userHandle)
		if err != nil {
			return err
		}
	}

	if _, err := uuid.Parse(account); err != nil {
		return fmt.Errorf("--account must be a valid UUID, got: %s", account)
	}

	kc, err := keychain.New()
	if err != nil {
		return err
	}
	if err := kc.WriteProfile(keychain.Profile{
		Name:    profileName,
		Account: account,
		Handle:  userHandle,
		HQ:      configureHQ,
	}); err != nil {
		return err
	}

	fmt.Printf("Profile %q saved to %s\n", profileName, kc.Location)
	return nil
}

func promptIdentity(account, userHandle string) (string, string, error) {
	reader := bufio.NewReader(os.Stdin)

	if account == "" {
		fmt.Print("Account ID (UUID): ")
		line, _ := reader.ReadString('\n')
		account = strings.TrimSpace(line)
	}
	if userHandle == "" {
		fmt.Print("Handle (email): ")
		line, _ := reader.ReadString('\n')
		userHandle = strings.TrimSpace(line)
	}
	if account == "" || userHandle == "" {
		return "", "", fmt.Errorf("account and handle cannot be empty")
	}
	return account, userHandle, nil
}

func isInteractive() bool {
	fi, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

func init() {
	configureCmd.Flags().StringVar(&configureAccount, "account", "", "Account ID (UUID)")
	configureCmd.Flags().StringVar(&configureHandle, "handle", "", "User handle (email)")
	configureCmd.Flags().StringVar(&configureHQ, "hq", session.DefaultHQ, "Outpost API host")

	rootCmd.AddCommand(configureCmd, profilesCmd)
}
