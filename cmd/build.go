package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/outpost-sec/cli/internal/api"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Author and manage security tests",
}

var buildTestsCmd = &cobra.Command{
	Use:   "tests",
	Short: "List your account's test catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := buildController()
		if err != nil {
			return err
		}
		var tests []api.Test
		err = withSpinner("Fetching tests", func() error {
			tests, err = b.ListTests()
			return err
		})
		if err != nil {
			return err
		}
		return printResult(tests)
	},
}

var buildUploadCmd = &cobra.Command{
	Use:   "upload TEST_ID FILE",
	Short: "Attach a source file to a test",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := buildController()
		if err != nil {
			return err
		}
		if err := withSpinner("Uploading", func() error {
			return b.Upload(args[0], args[1])
		}); err != nil {
			return err
		}
		fmt.Printf("Uploaded %s to %s\n", filepath.Base(args[1]), args[0])
		return nil
	},
}

var buildDownloadCmd = &cobra.Command{
	Use:   "download TEST_ID FILE",
	Short: "Download a test attachment to the current directory",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := buildController()
		if err != nil {
			return err
		}
		var data []byte
		err = withSpinner("Downloading", func() error {
			data, err = b.Download(args[0], args[1])
			return err
		})
		if err != nil {
			return err
		}
		target := filepath.Base(args[1])
		if err := os.WriteFile(target, data, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", target, err)
		}
		fmt.Printf("Saved %s\n", target)
		return nil
	},
}

func buildController() (*api.Build, error) {
	s, err := resolveSession()
	if err != nil {
		return nil, err
	}
	return api.NewBuild(api.NewClient(s)), nil
}

func init() {
	buildCmd.AddCommand(buildTestsCmd, buildUploadCmd, buildDownloadCmd)
	rootCmd.AddCommand(buildCmd)
}
