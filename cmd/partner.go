package cmd

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/outpost-sec/cli/internal/api"
)

var (
	partnerAPI      string
	partnerUser     string
	partnerSecret   string
	partnerPlatform string
	partnerHostname string
	partnerOffset   int
	partnerCount    int
	partnerHostIDs  []string
)

var partnerCmd = &cobra.Command{
	Use:   "partner",
	Short: "Partner system commands",
}

var partnerAttachCmd = &cobra.Command{
	Use:   "attach PARTNER",
	Short: "Attach an EDR to your account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := partnerController()
		if err != nil {
			return err
		}
		var result map[string]any
		err = withSpinner("Attaching partner", func() error {
			result, err = p.Attach(args[0], partnerAPI, partnerUser, partnerSecret)
			return err
		})
		if err != nil {
			return err
		}
		return printResult(result)
	},
}

var partnerDetachCmd = &cobra.Command{
	Use:   "detach PARTNER",
	Short: "Detach an existing partner from your account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !confirm(fmt.Sprintf("Detach %s?", args[0])) {
			return nil
		}
		p, err := partnerController()
		if err != nil {
			return err
		}
		if err := withSpinner("Detaching partner", func() error {
			return p.Detach(args[0])
		}); err != nil {
			return err
		}
		fmt.Printf("Detached %s\n", args[0])
		return nil
	},
}

var partnerBlockCmd = &cobra.Command{
	Use:   "block PARTNER TEST_ID",
	Short: "Report to a partner to block a test",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := partnerController()
		if err != nil {
			return err
		}
		var result map[string]any
		err = withSpinner("Reporting block", func() error {
			result, err = p.Block(args[0], args[1])
			return err
		})
		if err != nil {
			return err
		}
		return printResult(result)
	},
}

var partnerEndpointsCmd = &cobra.Command{
	Use:   "endpoints PARTNER",
	Short: "Get a list of endpoints from a partner",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := partnerController()
		if err != nil {
			return err
		}
		var endpoints []api.PartnerEndpoint
		err = withSpinner("Fetching endpoints from partner", func() error {
			endpoints, err = p.Endpoints(args[0], partnerPlatform, partnerHostname, partnerOffset, partnerCount)
			return err
		})
		if err != nil {
			return err
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"ID", "Hostname", "Platform", "Version"})
		for _, e := range endpoints {
			t.AppendRow(table.Row{e.ID, e.Hostname, e.Platform, e.Version})
		}
		t.Render()
		return nil
	},
}

var partnerWebhookCmd = &cobra.Command{
	Use:   "webhook PARTNER",
	Short: "Generate webhook credentials so an EDR can forward alerts for suppression",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := partnerController()
		if err != nil {
			return err
		}
		var result map[string]any
		err = withSpinner("Generating webhook", func() error {
			result, err = p.GenerateWebhook(args[0])
			return err
		})
		if err != nil {
			return err
		}
		return printResult(result)
	},
}

var partnerDeployCmd = &cobra.Command{
	Use:   "deploy PARTNER",
	Short: "Deploy probes to hosts associated to a partner",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !confirm(fmt.Sprintf("Deploy probes through %s?", args[0])) {
			return nil
		}
		p, err := partnerController()
		if err != nil {
			return err
		}
		var result map[string]any
		err = withSpinner("Deploying probes to hosts", func() error {
			result, err = p.Deploy(args[0], partnerHostIDs)
			return err
		})
		if err != nil {
			return err
		}
		return printResult(result)
	},
}

func partnerController() (*api.Partner, error) {
	s, err := resolveSession()
	if err != nil {
		return nil, err
	}
	return api.NewPartner(api.NewClient(s)), nil
}

func init() {
	partnerAttachCmd.Flags().StringVar(&partnerAPI, "api", "", "API endpoint of the partner")
	partnerAttachCmd.Flags().StringVar(&partnerUser, "user", "", "user identifier")
	partnerAttachCmd.Flags().StringVar(&partnerSecret, "secret", "", "secret for OAUTH use cases")
	partnerAttachCmd.MarkFlagRequired("api")

	partnerEndpointsCmd.Flags().StringVar(&partnerPlatform, "platform", "", "platform name (e.g. \"windows\")")
	partnerEndpointsCmd.Flags().StringVar(&partnerHostname, "hostname", "", "hostname pattern")
	partnerEndpointsCmd.Flags().IntVar(&partnerOffset, "offset", 0, "API pagination offset")
	partnerEndpointsCmd.Flags().IntVar(&partnerCount, "count", 100, "API pagination count")
	partnerEndpointsCmd.MarkFlagRequired("platform")

	partnerDeployCmd.Flags().StringSliceVar(&partnerHostIDs, "host-ids", nil, "host IDs to deploy to")
	partnerDeployCmd.MarkFlagRequired("host-ids")

	partnerCmd.AddCommand(partnerAttachCmd, partnerDetachCmd, partnerBlockCmd, partnerEndpointsCmd, partnerWebhookCmd, partnerDeployCmd)
	rootCmd.AddCommand(partnerCmd)
}
