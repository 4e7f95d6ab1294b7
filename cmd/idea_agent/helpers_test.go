package main

import (
	"bytes"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/idea-forge/internal/artifacts"
	"github.com/jonathan/idea-forge/internal/config"
)

const (
	analysisText = "# Solar kiosk\n\nA kiosk that rents charged batteries at weekend markets.\n"
	approveJSON  = `{"recommendation":"approve","summary":"solid","critical_issues":[],"improvements":[],"minor_suggestions":[],"strengths":["clear market"]}`
)

// resetGlobals restores the package-level flag variables after a test.
func resetGlobals(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		flags = globalFlags{}
		runDescription, runIdeaFile, runJSON = "", "", false
		batchAdd, batchList, batchDescription = nil, false, ""
		validateWrite, validateSchema = false, false
		servePort, tokenHours = 0, 0
	})
}

// writeAgent returns a command agent config that writes content to the
// requested output path.
func writeAgent(content string) config.AgentConfig {
	return config.AgentConfig{
		Provider: config.ProviderCommand,
		Command:  []string{"sh", "-c", `printf '%s' "$1" > "$IDEA_FORGE_OUTPUT_PATH"`, "sh", content},
		Timeout:  "30s",
	}
}

func failingAgent(message string) config.AgentConfig {
	return config.AgentConfig{
		Provider: config.ProviderCommand,
		Command:  []string{"sh", "-c", fmt.Sprintf("echo %q >&2; exit 3", message)},
	}
}

// setupWorkspace writes a config file using command agents and points the
// global --config flag at it. It returns the output directory.
func setupWorkspace(t *testing.T, mutate func(*config.Config)) string {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	resetGlobals(t)
	t.Setenv(envDatabaseURL, "")
	t.Setenv(envJWTSecret, "")

	root := t.TempDir()
	cfg := config.Config{
		OutputDir:     filepath.Join(root, "analyses"),
		Mode:          "review",
		MaxIterations: 2,
		LogLevel:      "error",
		Agents: config.AgentsConfig{
			Analyst:     writeAgent(analysisText),
			Reviewer:    writeAgent(approveJSON),
			FactChecker: writeAgent(`{}`),
		},
	}
	if mutate != nil {
		mutate(&cfg)
	}

	path := filepath.Join(root, "config.json")
	require.NoError(t, artifacts.WriteJSON(path, cfg))
	flags.configPath = path
	return cfg.OutputDir
}

// newTestCommand returns a command with no flags of its own, so only the
// config file and globals apply.
func newTestCommand() (*cobra.Command, *bytes.Buffer) {
	cmd := &cobra.Command{}
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	return cmd, out
}
