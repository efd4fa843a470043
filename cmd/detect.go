package cmd

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/outpost-sec/cli/internal/api"
)

var (
	detectTags        string
	detectRunCode     string
	detectDays        int
	observeValue      int
	statsDays         int
	activityDays      int
	activityView      string
	activityTests     string
	activityEndpoints string
	activityStatus    string
)

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Continuously test your endpoints",
}

var detectCreateEndpointCmd = &cobra.Command{
	Use:   "create-endpoint NAME",
	Short: "Register a new endpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := detectController()
		if err != nil {
			return err
		}
		var token string
		err = withSpinner("Registering endpoint", func() error {
			token, err = d.RegisterEndpoint(args[0], detectTags)
			return err
		})
		if err != nil {
			return err
		}
		fmt.Printf("Endpoint token: %s\n", token)
		return nil
	},
}

var detectDeleteEndpointCmd = &cobra.Command{
	Use:   "delete-endpoint ENDPOINT_ID",
	Short: "Delete a probe/endpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !confirm(fmt.Sprintf("Delete %s?", args[0])) {
			return nil
		}
		d, err := detectController()
		if err != nil {
			return err
		}
		if err := withSpinner("Deleting endpoint", func() error {
			return d.DeleteEndpoint(args[0])
		}); err != nil {
			return err
		}
		fmt.Printf("Deleted %s\n", args[0])
		return nil
	},
}

var detectEnableTestCmd = &cobra.Command{
	Use:   "enable-test TEST",
	Short: "Add TEST to your queue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		switch detectRunCode {
		case api.RunDaily, api.RunWeekly, api.RunMonthly, api.RunOnce, api.RunDebug:
		default:
			return fmt.Errorf("invalid run code %q", detectRunCode)
		}
		var tags []string
		if detectTags != "" {
			tags = strings.Split(detectTags, ",")
		}
		d, err := detectController()
		if err != nil {
			return err
		}
		return withSpinner("Enabling test", func() error {
			return d.EnableTest(args[0], detectRunCode, tags)
		})
	},
}

var detectDisableTestCmd = &cobra.Command{
	Use:   "disable-test TEST",
	Short: "Remove TEST from your queue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !confirm(fmt.Sprintf("Disable %s?", args[0])) {
			return nil
		}
		d, err := detectController()
		if err != nil {
			return err
		}
		if err := withSpinner("Disabling test", func() error {
			return d.DisableTest(args[0])
		}); err != nil {
			return err
		}
		fmt.Printf("Disabled %s\n", args[0])
		return nil
	},
}

var detectQueueCmd = &cobra.Command{
	Use:   "queue",
	Short: "List all tests in your active queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := detectController()
		if err != nil {
			return err
		}
		var queue []api.QueueEntry
		err = withSpinner("Fetching queue", func() error {
			queue, err = d.Queue()
			return err
		})
		if err != nil {
			return err
		}
		return printResult(queue)
	},
}

var detectProbesCmd = &cobra.Command{
	Use:   "probes",
	Short: "List all endpoint probes",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := detectController()
		if err != nil {
			return err
		}
		var probes []api.Probe
		err = withSpinner("Fetching probes", func() error {
			probes, err = d.Probes(detectDays)
			return err
		})
		if err != nil {
			return err
		}
		return printResult(probes)
	},
}

var detectSocialStatsCmd = &cobra.Command{
	Use:   "social-stats TEST",
	Short: "Pull social statistics for a specific test",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := detectController()
		if err != nil {
			return err
		}
		var stats map[string]map[string]int
		err = withSpinner("Fetching statistics", func() error {
			stats, err = d.SocialStats(args[0], statsDays)
			return err
		})
		if err != nil {
			return err
		}
		return printResult(stats)
	},
}

var detectSearchCmd = &cobra.Command{
	Use:   "search CVE",
	Short: "Search the NVD for a specific CVE identifier",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := detectController()
		if err != nil {
			return err
		}
		var result any
		err = withSpinner("Searching", func() error {
			result, err = d.Search(args[0])
			return err
		})
		if err != nil {
			return err
		}
		fmt.Println("This product uses the NVD API but is not endorsed or certified by the NVD.")
		fmt.Println()
		return printResult(result)
	},
}

var detectRulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Print all verified security rules",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := detectController()
		if err != nil {
			return err
		}
		var rules any
		err = withSpinner("Fetching rules", func() error {
			rules, err = d.Rules()
			return err
		})
		if err != nil {
			return err
		}
		return printResult(rules)
	},
}

var detectActivityCmd = &cobra.Command{
	Use:   "activity",
	Short: "View your detect results",
	RunE: func(cmd *cobra.Command, args []string) error {
		switch activityView {
		case api.ViewLogs, api.ViewDays, api.ViewProbes, api.ViewInsights:
		default:
			return fmt.Errorf("invalid view %q", activityView)
		}

		s, err := resolveSession()
		if err != nil {
			return err
		}
		client := api.NewClient(s)
		d := api.NewDetect(client)

		filter := api.ActivityFilter{
			Days:      activityDays,
			Tests:     splitList(activityTests),
			Endpoints: splitList(activityEndpoints),
			Statuses:  splitList(activityStatus),
		}

		switch activityView {
		case api.ViewLogs:
			return runActivityLogs(d, api.NewBuild(client), filter)
		case api.ViewProbes:
			return runActivityProbes(d, filter)
		default:
			var raw any
			err = withSpinner("Fetching results", func() error {
				raw, err = d.Activity(activityView, filter)
				return err
			})
			if err != nil {
				return err
			}
			return printResult(raw)
		}
	},
}

func runActivityLogs(d *api.Detect, b *api.Build, filter api.ActivityFilter) error {
	var records []api.ActivityRecord
	var tests []api.Test
	err := withSpinner("Fetching results", func() error {
		var err error
		if records, err = d.ActivityLogs(filter); err != nil {
			return err
		}
		tests, err = b.ListTests()
		return err
	})
	if err != nil {
		return err
	}

	names := map[string]string{}
	for _, test := range tests {
		names[test.ID] = test.Name
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Timestamp", "Result ID", "Name", "Test", "Endpoint", "Code", "Observed"})
	for _, record := range records {
		observed := "-"
		if record.Observed {
			observed = "yes"
		}
		t.AppendRow(table.Row{
			record.Date,
			record.ID,
			names[record.Test],
			record.Test,
			record.EndpointID,
			record.Status,
			observed,
		})
	}
	t.Render()
	return nil
}

func runActivityProbes(d *api.Detect, filter api.ActivityFilter) error {
	var grouped map[string][]api.ActivityRecord
	err := withSpinner("Fetching results", func() error {
		var err error
		grouped, err = d.ActivityProbes(filter)
		return err
	})
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Endpoint", "Results", "Codes"})
	for endpoint, records := range grouped {
		counts := map[int]int{}
		for _, record := range records {
			counts[record.Status]++
		}
		var codes []string
		for code, n := range counts {
			codes = append(codes, fmt.Sprintf("%d x%d", code, n))
		}
		sort.Strings(codes)
		t.AppendRow(table.Row{endpoint, len(records), strings.Join(codes, ", ")})
	}
	t.SortBy([]table.SortBy{{Name: "Endpoint", Mode: table.Asc}})
	t.Render()
	return nil
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	return strings.Split(raw, ",")
}

var detectObserveCmd = &cobra.Command{
	Use:   "observe RESULT",
	Short: "Mark a result as observed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := detectController()
		if err != nil {
			return err
		}
		return withSpinner("Recording observation", func() error {
			return d.Observe(args[0], observeValue)
		})
	},
}

func detectController() (*api.Detect, error) {
	s, err := resolveSession()
	if err != nil {
		return nil, err
	}
	return api.NewDetect(api.NewClient(s)), nil
}

func init() {
	detectCreateEndpointCmd.Flags().StringVar(&detectTags, "tags", "", "a comma-separated list of tags for this endpoint")
	detectEnableTestCmd.Flags().StringVar(&detectTags, "tags", "", "only enable for these tags")
	detectEnableTestCmd.Flags().StringVar(&detectRunCode, "run-code", api.RunDaily, "run code: daily, weekly, monthly, once, debug")
	detectProbesCmd.Flags().IntVar(&detectDays, "days", 7, "days to look back")
	detectObserveCmd.Flags().IntVar(&observeValue, "value", 1, "mark 1 for observed")
	detectSocialStatsCmd.Flags().IntVar(&statsDays, "days", 30, "days to look back")
	detectActivityCmd.Flags().IntVar(&activityDays, "days", 7, "days to look back")
	detectActivityCmd.Flags().StringVar(&activityView, "view", api.ViewLogs, "result view: logs, days, probes, insights")
	detectActivityCmd.Flags().StringVar(&activityTests, "tests", "", "a comma-separated list of test IDs to filter on")
	detectActivityCmd.Flags().StringVar(&activityEndpoints, "endpoint-ids", "", "a comma-separated list of endpoint IDs to filter on")
	detectActivityCmd.Flags().StringVar(&activityStatus, "status", "", "a comma-separated list of statuses to filter on")

	detectCmd.AddCommand(
		detectCreateEndpointCmd,
		detectDeleteEndpointCmd,
		detectEnableTestCmd,
		detectDisableTestCmd,
		detectQueueCmd,
		detectProbesCmd,
		detectSocialStatsCmd,
		detectSearchCmd,
		detectRulesCmd,
		detectActivityCmd,
		detectObserveCmd,
	)
	rootCmd.AddCommand(detectCmd)
}
