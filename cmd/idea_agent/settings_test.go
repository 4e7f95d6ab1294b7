package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/idea-forge/internal/config"
)

func TestLoadSettings_DefaultsAndEnvFallbacks(t *testing.T) {
	resetGlobals(t)
	t.Setenv(envAPIKey, "env-key")
	t.Setenv(envDatabaseURL, "")
	t.Setenv(envJWTSecret, "env-secret-0123456789")

	cfg, err := loadSettings(&cobra.Command{})
	require.NoError(t, err)

	assert.Equal(t, config.DefaultOutputDir, cfg.OutputDir)
	assert.Equal(t, cfg.OutputDir, cfg.LedgerDir, "ledger dir defaults to the output dir")
	assert.Equal(t, "factcheck", cfg.Mode)
	assert.Equal(t, config.DefaultMaxIterations, cfg.MaxIterations)
	assert.Equal(t, "env-key", cfg.APIKey)
	assert.Equal(t, "env-secret-0123456789", cfg.Server.JWTSecret)
}

func TestLoadSettings_ConfigFileWinsOverEnv(t *testing.T) {
	resetGlobals(t)
	t.Setenv(envAPIKey, "env-key")
	t.Setenv(envDatabaseURL, "")

	path := filepath.Join(t.TempDir(), "idea-forge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
output_dir: out
ledger_dir: ideas
mode: review
max_iterations: 5
api_key: file-key
`), 0o644))
	flags.configPath = path

	cfg, err := loadSettings(&cobra.Command{})
	require.NoError(t, err)

	assert.Equal(t, "out", cfg.OutputDir)
	assert.Equal(t, "ideas", cfg.LedgerDir)
	assert.Equal(t, "review", cfg.Mode)
	assert.Equal(t, 5, cfg.MaxIterations)
	assert.Equal(t, "file-key", cfg.APIKey)
}

func TestLoadSettings_InvalidConfig(t *testing.T) {
	resetGlobals(t)

	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "bad mode",
			content: `{"mode": "judge"}`,
			wantErr: "'mode'",
		},
		{
			name:    "iterations over limit",
			content: `{"max_iterations": 20, "max_iterations_limit": 10}`,
			wantErr: "max_iterations_limit",
		},
		{
			name:    "malformed json",
			content: `{"mode": `,
			wantErr: "failed to load config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))
			flags.configPath = path

			_, err := loadSettings(&cobra.Command{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestApplyFlagOverrides_OnlyChangedFlags(t *testing.T) {
	resetGlobals(t)

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.StringVar(&flags.outputDir, "output-dir", "", "")
	fs.StringVar(&flags.mode, "mode", "", "")
	fs.IntVar(&flags.maxIterations, "max-iterations", 0, "")
	fs.BoolVar(&flags.verbose, "verbose", false, "")
	require.NoError(t, fs.Parse([]string{"--mode", "analyze", "--verbose"}))

	cfg := config.Config{OutputDir: "from-file", Mode: "review", MaxIterations: 4, LogLevel: "warn"}
	applyFlagOverrides(fs, &cfg)

	assert.Equal(t, "from-file", cfg.OutputDir)
	assert.Equal(t, "analyze", cfg.Mode)
	assert.Equal(t, 4, cfg.MaxIterations)
	assert.Equal(t, "debug", cfg.LogLevel)
}
