package cmd

import (
	"bytes"
	"io"
	"os"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outpost-sec/cli/internal/testutils"
)

// executeCommand executes a cobra command and captures its output.
func executeCommand(t *testing.T, cmd *cobra.Command, args ...string) (output string, err error) {
	t.Helper()

	oldStdout := os.Stdout
	oldStderr := os.Stderr
	r, w, _ := os.Pipe()
	os.Stdout = w
	os.Stderr = w

	outC := make(chan string)
	go func() {
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, r)
		outC <- buf.String()
	}()

	defer func() {
		w.Close()
		os.Stdout = oldStdout
		os.Stderr = oldStderr
		output = <-outC
	}()

	cmd.SetArgs(args)
	err = cmd.Execute()
	return output, err
}

// resetFlags clears the persistent identity globals between runs.
func resetFlags() {
	profileName = "default"
	accountID = ""
	handle = ""
	idToken = ""
	configureAccount = ""
	configureHandle = ""
	outputFormat = "json"
}

func TestVersionCommand(t *testing.T) {
	resetFlags()
	output, err := executeCommand(t, rootCmd, "version")
	require.NoError(t, err)
	assert.Contains(t, output, "Outpost CLI v")
}

func TestConfigureNonInteractiveRequiresFlags(t *testing.T) {
	resetFlags()
	t.Setenv("HOME", t.TempDir())

	_, err := executeCommand(t, rootCmd, "configure")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-interactive")
}

func TestConfigureRejectsBadAccountID(t *testing.T) {
	resetFlags()
	t.Setenv("HOME", t.TempDir())

	_, err := executeCommand(t, rootCmd, "configure", "--account", "not-a-uuid", "--handle", "u@x.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "valid UUID")
}

func TestConfigureThenProfiles(t *testing.T) {
	resetFlags()
	t.Setenv("HOME", t.TempDir())

	output, err := executeCommand(t, rootCmd, "configure",
		"--account", "8b61a747-8e74-4f86-9e4d-5a1c7a0d4a2b",
		"--handle", "u@x.com")
	require.NoError(t, err)
	assert.Contains(t, output, `Profile "default" saved`)

	output, err = executeCommand(t, rootCmd, "profiles")
	require.NoError(t, err)
	assert.Contains(t, output, "u@x.com")
	assert.Contains(t, output, "8b61a747-8e74-4f86-9e4d-5a1c7a0d4a2b")
}

func TestAuthStatusUnauthenticated(t *testing.T) {
	resetFlags()
	t.Setenv("HOME", t.TempDir())

	output, err := executeCommand(t, rootCmd, "auth", "status")
	require.NoError(t, err)
	assert.Contains(t, output, "not authenticated")
}

func TestResolveSessionExplicitToken(t *testing.T) {
	resetFlags()
	t.Setenv("HOME", t.TempDir())

	idToken = "CI-TOKEN"
	accountID = "A1"
	handle = "u@x.com"

	s, err := resolveSession()
	require.NoError(t, err)
	token, err := s.Token()
	require.NoError(t, err)
	assert.Equal(t, "CI-TOKEN", token)
}

func TestResolveSessionTokenRequiresIdentity(t *testing.T) {
	resetFlags()
	idToken = "CI-TOKEN"

	_, err := resolveSession()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--token requires")
}

func TestEnvOr(t *testing.T) {
	cleanup := testutils.SetEnv(t, map[string]string{"OUTPOST_API": "https://api.eu1.outpost-sec.com"})
	defer cleanup()

	assert.Equal(t, "https://api.eu1.outpost-sec.com", envOr("OUTPOST_API", "fallback"))
	assert.Equal(t, "fallback", envOr("OUTPOST_UNSET_VAR", "fallback"))
}
