package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/jonathan/idea-forge/internal/config"
)

// Environment fallbacks, consulted only when neither a flag nor the config
// file sets the value.
const (
	envAPIKey      = "GEMINI_API_KEY"
	envDatabaseURL = "DATABASE_URL"
	envJWTSecret   = "IDEA_FORGE_JWT_SECRET"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath    string
	outputDir     string
	ledgerDir     string
	templatesDir  string
	promptsDir    string
	runType       string
	mode          string
	maxIterations int
	maxConcurrent int
	apiKey        string
	databaseURL   string
	sqlitePath    string
	logLevel      string
	logFormat     string
	verbose       bool
}

var flags globalFlags

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "Path to a JSON or YAML config file (values can be overridden by other flags)")
	pf.StringVarP(&flags.outputDir, "output-dir", "o", "", "Root directory of per-idea working directories (default \"analyses\")")
	pf.StringVar(&flags.ledgerDir, "ledger-dir", "", "Directory holding pending.md, completed.md and failed.md (default: output dir)")
	pf.StringVar(&flags.templatesDir, "templates-dir", "", "Directory overriding the embedded reviewer/fact-checker templates")
	pf.StringVar(&flags.promptsDir, "prompts-dir", "", "Directory overriding the embedded agent prompts")
	pf.StringVar(&flags.runType, "run-type", "", "Run type for archive retention: test or production (default \"test\")")
	pf.StringVarP(&flags.mode, "mode", "m", "", "analyze, review or factcheck (default \"factcheck\")")
	pf.IntVarP(&flags.maxIterations, "max-iterations", "n", 0, "Maximum analyst iterations per idea (default 3)")
	pf.IntVar(&flags.maxConcurrent, "max-concurrent", 0, "Maximum ideas processed at once in a batch (default 3)")
	// API key can be passed as a flag, or read from env var GEMINI_API_KEY
	pf.StringVar(&flags.apiKey, "api-key", "", "Gemini API key (optional, defaults to GEMINI_API_KEY env var)")
	pf.StringVar(&flags.databaseURL, "db-url", "", "PostgreSQL URL for the run index (optional, defaults to DATABASE_URL env var)")
	pf.StringVar(&flags.sqlitePath, "sqlite-path", "", "SQLite file for the run index when no PostgreSQL URL is set")
	pf.StringVar(&flags.logLevel, "log-level", "", "debug, info, warn or error (default \"info\")")
	pf.StringVar(&flags.logFormat, "log-format", "", "text or json (default \"text\")")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "Shorthand for --log-level debug")
}

// loadSettings resolves the configuration: config file, then explicitly set
// flags, then defaults, then environment fallbacks.
func loadSettings(cmd *cobra.Command) (config.Config, error) {
	var cfg config.Config
	if flags.configPath != "" {
		loaded, err := config.LoadConfig(flags.configPath)
		if err != nil {
			return cfg, fmt.Errorf("failed to load config: %w", err)
		}
		if err := loaded.Validate(); err != nil {
			return cfg, err
		}
		cfg = *loaded
	}

	applyFlagOverrides(cmd.Flags(), &cfg)
	cfg = cfg.MergeWithDefaults(config.Defaults())
	if cfg.LedgerDir == "" {
		cfg.LedgerDir = cfg.OutputDir
	}

	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv(envAPIKey)
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv(envDatabaseURL)
	}
	if cfg.Server.JWTSecret == "" {
		cfg.Server.JWTSecret = os.Getenv(envJWTSecret)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyFlagOverrides copies only the flags that were explicitly set.
func applyFlagOverrides(fs *pflag.FlagSet, cfg *config.Config) {
	if fs.Changed("output-dir") {
		cfg.OutputDir = flags.outputDir
	}
	if fs.Changed("ledger-dir") {
		cfg.LedgerDir = flags.ledgerDir
	}
	if fs.Changed("templates-dir") {
		cfg.TemplatesDir = flags.templatesDir
	}
	if fs.Changed("prompts-dir") {
		cfg.PromptsDir = flags.promptsDir
	}
	if fs.Changed("run-type") {
		cfg.RunType = flags.runType
	}
	if fs.Changed("mode") {
		cfg.Mode = flags.mode
	}
	if fs.Changed("max-iterations") {
		cfg.MaxIterations = flags.maxIterations
	}
	if fs.Changed("max-concurrent") {
		cfg.MaxConcurrent = flags.maxConcurrent
	}
	if fs.Changed("api-key") {
		cfg.APIKey = flags.apiKey
	}
	if fs.Changed("db-url") {
		cfg.DatabaseURL = flags.databaseURL
	}
	if fs.Changed("sqlite-path") {
		cfg.SQLitePath = flags.sqlitePath
	}
	if fs.Changed("log-level") {
		cfg.LogLevel = flags.logLevel
	}
	if fs.Changed("log-format") {
		cfg.LogFormat = flags.logFormat
	}
	if fs.Changed("verbose") && flags.verbose {
		cfg.LogLevel = "debug"
	}
}

// commandContext returns the command's context, which is nil when a command
// runs outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
