package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

// outputFormat selects how command results are rendered
var outputFormat string

// withSpinner runs fn behind a terminal spinner. Non-interactive runs
// (pipes, CI) skip the spinner entirely.
func withSpinner(description string, fn func() error) error {
	if !term.IsTerminal(int(os.Stderr.Fd())) {
		return fn()
	}
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	s.Suffix = " " + description + "..."
	s.Start()
	defer s.Stop()
	return fn()
}

// printResult renders a command result as JSON (default) or YAML.
func printResult(result any) error {
	switch outputFormat {
	case "yaml":
		data, err := yaml.Marshal(result)
		if err != nil {
			return fmt.Errorf("failed to render result: %w", err)
		}
		fmt.Print(string(data))
	default:
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to render result: %w", err)
		}
		fmt.Println(string(data))
	}
	return nil
}

// confirm asks for a y/N answer on stdin. Non-interactive runs proceed
// without asking so piped usage doesn't hang.
func confirm(question string) bool {
	if !isInteractive() {
		return true
	}
	fmt.Printf("%s [y/N]: ", question)
	var answer string
	fmt.Scanln(&answer)
	return answer == "y" || answer == "Y" || answer == "yes"
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "json", "output format: json, yaml")
}
