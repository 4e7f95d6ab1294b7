// Package config provides configuration loading and validation for the CLI.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/jonathan/idea-forge/internal/types"
)

// Agent providers.
const (
	ProviderGemini  = "gemini"
	ProviderCommand = "command"
)

// Defaults applied by Defaults and MergeWithDefaults.
const (
	DefaultOutputDir          = "analyses"
	DefaultMaxIterations      = 3
	DefaultMaxIterationsLimit = 10
	DefaultMaxConcurrent      = 3
	DefaultRetention          = 5
	DefaultAgentTimeout       = "10m"
	DefaultPort               = 8080
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "text"
)

// AgentConfig selects how one role is executed.
type AgentConfig struct {
	Provider string   `json:"provider,omitempty" yaml:"provider,omitempty" validate:"omitempty,oneof=gemini command"`
	Model    string   `json:"model,omitempty" yaml:"model,omitempty"`
	Tier     string   `json:"tier,omitempty" yaml:"tier,omitempty" validate:"omitempty,oneof=lite standard advanced"`
	Command  []string `json:"command,omitempty" yaml:"command,omitempty"`
	Timeout  string   `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// TimeoutDuration parses Timeout. An empty value means no timeout.
func (a AgentConfig) TimeoutDuration() (time.Duration, error) {
	if a.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(a.Timeout)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", a.Timeout)
	}
	return d, nil
}

// AgentsConfig holds the three pipeline roles.
type AgentsConfig struct {
	Analyst     AgentConfig `json:"analyst" yaml:"analyst"`
	Reviewer    AgentConfig `json:"reviewer" yaml:"reviewer"`
	FactChecker AgentConfig `json:"fact_checker" yaml:"fact_checker"`
}

// RetentionConfig caps the archives kept per run type.
type RetentionConfig struct {
	Test       int `json:"test,omitempty" yaml:"test,omitempty" validate:"min=0"`
	Production int `json:"production,omitempty" yaml:"production,omitempty" validate:"min=0"`
}

// Map returns the caps keyed by run type.
func (r RetentionConfig) Map() map[types.RunType]int {
	return map[types.RunType]int{
		types.RunTypeTest:       r.Test,
		types.RunTypeProduction: r.Production,
	}
}

// ServerConfig configures the status API.
type ServerConfig struct {
	Port               int    `json:"port,omitempty" yaml:"port,omitempty" validate:"omitempty,min=1,max=65535"`
	JWTSecret          string `json:"jwt_secret,omitempty" yaml:"jwt_secret,omitempty"`
	JWTExpirationHours int    `json:"jwt_expiration_hours,omitempty" yaml:"jwt_expiration_hours,omitempty" validate:"min=0"`
	// Rate limits per client IP. Zero keeps the default, -1 lifts the limit.
	RequestsPerMinute int `json:"requests_per_minute,omitempty" yaml:"requests_per_minute,omitempty" validate:"min=-1"`
	BatchesPerHour    int `json:"batches_per_hour,omitempty" yaml:"batches_per_hour,omitempty" validate:"min=-1"`
}

// Config represents the CLI configuration that can be loaded from a JSON or
// YAML file. All fields are optional; missing values use defaults or are
// provided via CLI flags.
type Config struct {
	// Paths
	OutputDir    string `json:"output_dir,omitempty" yaml:"output_dir,omitempty"`
	LedgerDir    string `json:"ledger_dir,omitempty" yaml:"ledger_dir,omitempty"`
	TemplatesDir string `json:"templates_dir,omitempty" yaml:"templates_dir,omitempty"`
	PromptsDir   string `json:"prompts_dir,omitempty" yaml:"prompts_dir,omitempty"`

	// Run behavior
	RunType            string          `json:"run_type,omitempty" yaml:"run_type,omitempty" validate:"omitempty,oneof=test production"`
	Mode               string          `json:"mode,omitempty" yaml:"mode,omitempty"`
	MaxIterations      int             `json:"max_iterations,omitempty" yaml:"max_iterations,omitempty" validate:"min=0"`
	MaxIterationsLimit int             `json:"max_iterations_limit,omitempty" yaml:"max_iterations_limit,omitempty" validate:"min=0,max=100"`
	MaxConcurrent      int             `json:"max_concurrent,omitempty" yaml:"max_concurrent,omitempty" validate:"min=0,max=64"`
	ArchiveRetention   RetentionConfig `json:"archive_retention" yaml:"archive_retention"`
	Agents             AgentsConfig    `json:"agents" yaml:"agents"`

	// Backends
	APIKey      string `json:"api_key,omitempty" yaml:"api_key,omitempty"`           // Gemini API key
	DatabaseURL string `json:"database_url,omitempty" yaml:"database_url,omitempty"` // PostgreSQL connection URL
	SQLitePath  string `json:"sqlite_path,omitempty" yaml:"sqlite_path,omitempty"`

	// Logging
	LogLevel  string `json:"log_level,omitempty" yaml:"log_level,omitempty" validate:"omitempty,oneof=debug info warn error"`
	LogFormat string `json:"log_format,omitempty" yaml:"log_format,omitempty" validate:"omitempty,oneof=text json"`

	Server ServerConfig `json:"server" yaml:"server"`
}

// Defaults returns the configuration used when nothing else is set.
func Defaults() Config {
	return Config{
		OutputDir:          DefaultOutputDir,
		RunType:            string(types.RunTypeTest),
		Mode:               string(types.ModeFactCheck),
		MaxIterations:      DefaultMaxIterations,
		MaxIterationsLimit: DefaultMaxIterationsLimit,
		MaxConcurrent:      DefaultMaxConcurrent,
		ArchiveRetention:   RetentionConfig{Test: DefaultRetention, Production: DefaultRetention},
		Agents: AgentsConfig{
			Analyst:     AgentConfig{Provider: ProviderGemini, Tier: "advanced", Timeout: DefaultAgentTimeout},
			Reviewer:    AgentConfig{Provider: ProviderGemini, Tier: "standard", Timeout: DefaultAgentTimeout},
			FactChecker: AgentConfig{Provider: ProviderGemini, Tier: "standard", Timeout: DefaultAgentTimeout},
		},
		LogLevel:  DefaultLogLevel,
		LogFormat: DefaultLogFormat,
		Server:    ServerConfig{Port: DefaultPort, JWTExpirationHours: DefaultJWTExpirationHours},
	}
}

// LoadConfig loads configuration from a JSON file, or a YAML file when the
// extension is .yaml or .yml.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	}

	return &cfg, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report fields by their file key rather than the Go name.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// Validate checks that the configuration has valid values.
// Note: zero values are accepted since MergeWithDefaults fills them.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("config error: %s", describe(verrs[0]))
		}
		return fmt.Errorf("config error: %w", err)
	}

	if c.Mode != "" {
		if _, err := types.ParseMode(c.Mode); err != nil {
			return fmt.Errorf("config error: 'mode' %v", err)
		}
	}

	if c.MaxIterations > 0 && c.MaxIterationsLimit > 0 && c.MaxIterations > c.MaxIterationsLimit {
		return fmt.Errorf("config error: 'max_iterations' (%d) exceeds 'max_iterations_limit' (%d)",
			c.MaxIterations, c.MaxIterationsLimit)
	}

	for _, role := range []struct {
		name string
		cfg  AgentConfig
	}{
		{"analyst", c.Agents.Analyst},
		{"reviewer", c.Agents.Reviewer},
		{"fact_checker", c.Agents.FactChecker},
	} {
		if role.cfg.Provider == ProviderCommand && len(role.cfg.Command) == 0 {
			return fmt.Errorf("config error: 'agents.%s.command' is required for the command provider", role.name)
		}
		if _, err := role.cfg.TimeoutDuration(); err != nil {
			return fmt.Errorf("config error: 'agents.%s.timeout' is invalid: %v", role.name, err)
		}
	}

	if c.DatabaseURL != "" && !strings.HasPrefix(c.DatabaseURL, "postgres://") && !strings.HasPrefix(c.DatabaseURL, "postgresql://") {
		return fmt.Errorf("config error: 'database_url' must be a postgres:// URL")
	}

	return nil
}

func describe(fe validator.FieldError) string {
	// Drop the root struct name from the namespace.
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "oneof":
		return fmt.Sprintf("'%s' must be one of [%s], got %q", field, fe.Param(), fmt.Sprint(fe.Value()))
	case "min":
		return fmt.Sprintf("'%s' must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("'%s' must be at most %s", field, fe.Param())
	default:
		return fmt.Sprintf("'%s' failed the %s check", field, fe.Tag())
	}
}

// MergeWithDefaults returns a new Config with zero fields filled from defaults.
// This is used to apply config file values as defaults for CLI flags.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	// String fields: use default if empty
	mergeString(&result.OutputDir, defaults.OutputDir)
	mergeString(&result.LedgerDir, defaults.LedgerDir)
	mergeString(&result.TemplatesDir, defaults.TemplatesDir)
	mergeString(&result.PromptsDir, defaults.PromptsDir)
	mergeString(&result.RunType, defaults.RunType)
	mergeString(&result.Mode, defaults.Mode)
	mergeString(&result.APIKey, defaults.APIKey)
	mergeString(&result.DatabaseURL, defaults.DatabaseURL)
	mergeString(&result.SQLitePath, defaults.SQLitePath)
	mergeString(&result.LogLevel, defaults.LogLevel)
	mergeString(&result.LogFormat, defaults.LogFormat)
	mergeString(&result.Server.JWTSecret, defaults.Server.JWTSecret)

	// Int fields: use default if zero
	mergeInt(&result.MaxIterations, defaults.MaxIterations)
	mergeInt(&result.MaxIterationsLimit, defaults.MaxIterationsLimit)
	mergeInt(&result.MaxConcurrent, defaults.MaxConcurrent)
	mergeInt(&result.ArchiveRetention.Test, defaults.ArchiveRetention.Test)
	mergeInt(&result.ArchiveRetention.Production, defaults.ArchiveRetention.Production)
	mergeInt(&result.Server.Port, defaults.Server.Port)
	mergeInt(&result.Server.JWTExpirationHours, defaults.Server.JWTExpirationHours)

	result.Agents.Analyst = mergeAgent(result.Agents.Analyst, defaults.Agents.Analyst)
	result.Agents.Reviewer = mergeAgent(result.Agents.Reviewer, defaults.Agents.Reviewer)
	result.Agents.FactChecker = mergeAgent(result.Agents.FactChecker, defaults.Agents.FactChecker)

	return result
}

func mergeAgent(a, defaults AgentConfig) AgentConfig {
	mergeString(&a.Provider, defaults.Provider)
	mergeString(&a.Model, defaults.Model)
	mergeString(&a.Tier, defaults.Tier)
	mergeString(&a.Timeout, defaults.Timeout)
	if len(a.Command) == 0 {
		a.Command = defaults.Command
	}
	return a
}

func mergeString(dst *string, def string) {
	if *dst == "" {
		*dst = def
	}
}

func mergeInt(dst *int, def int) {
	if *dst == 0 {
		*dst = def
	}
}
