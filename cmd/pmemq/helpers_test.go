package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

// runCommand executes a freshly built command with args and stdin, returning
// what it wrote to stdout and stderr.
func runCommand(t *testing.T, newCmd func() *cobra.Command, stdin string, args ...string) (string, string, error) {
	t.Helper()
	settings = defaultSettings()

	cmd := newCmd()
	var out, errOut bytes.Buffer
	cmd.SetArgs(args)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

// newTestPool creates a small queue pool and returns its path.
func newTestPool(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "queue.pool")
	_, _, err := runCommand(t, newCreateCmd, "", path, "--size", "16384", "--log-size", "8192")
	require.NoError(t, err)
	return path
}

// assertContains checks that output contains all expected strings
func assertContains(t *testing.T, output string, expected ...string) {
	t.Helper()
	for _, want := range expected {
		require.Contains(t, output, want)
	}
}
