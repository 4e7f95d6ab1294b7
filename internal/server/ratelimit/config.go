package ratelimit

import (
	"strings"
	"time"
)

// Default budgets.
const (
	DefaultRequestsPerMinute       = 600
	DefaultBatchesPerHour          = 10
	DefaultStreamConnectsPerMinute = 120
)

// Rule budgets one method and path. A path ending in "/" covers every path
// below it, and all of them draw from one bucket.
type Rule struct {
	Method string
	Path   string
	// Rate requests are granted per Per.
	Rate int
	Per  time.Duration
	// Burst is the bucket size; Rate when zero.
	Burst int
}

func (r Rule) active() bool {
	return r.Rate > 0 && r.Per > 0
}

func (r Rule) capacity() int {
	if r.Burst > 0 {
		return r.Burst
	}
	return r.Rate
}

func (r Rule) refillPerSecond() float64 {
	return float64(r.Rate) / r.Per.Seconds()
}

// Config holds rate limiting configuration.
type Config struct {
	Enabled bool
	// Default applies to requests no rule matches. A zero Rate leaves them unlimited.
	Default Rule
	Rules   []Rule
	// Exempt paths are never limited.
	Exempt []string
	// IdleTTL evicts buckets unused for that long; zero keeps them forever.
	IdleTTL time.Duration
}

// DefaultConfig budgets batch submissions tightly and everything else loosely.
func DefaultConfig() *Config {
	return ForBudgets(DefaultRequestsPerMinute, DefaultBatchesPerHour)
}

// ForBudgets builds the server's rules from two numbers: requests per minute
// for reads and batch submissions per hour. Zero picks the default, a negative
// value lifts that limit.
func ForBudgets(requestsPerMinute, batchesPerHour int) *Config {
	if requestsPerMinute == 0 {
		requestsPerMinute = DefaultRequestsPerMinute
	}
	if batchesPerHour == 0 {
		batchesPerHour = DefaultBatchesPerHour
	}

	cfg := &Config{
		Enabled: true,
		Default: Rule{Rate: max(requestsPerMinute, 0), Per: time.Minute},
		Exempt:  []string{"/health"},
		IdleTTL: time.Hour,
	}
	if batchesPerHour > 0 {
		// Starting a batch spends model budget.
		cfg.Rules = append(cfg.Rules, Rule{
			Method: "POST", Path: "/batches",
			Rate: batchesPerHour, Per: time.Hour, Burst: min(3, batchesPerHour),
		})
	}
	cfg.Rules = append(cfg.Rules, Rule{
		Method: "GET", Path: "/batches/",
		Rate: DefaultStreamConnectsPerMinute, Per: time.Minute, Burst: 20,
	})
	return cfg
}

// match returns the rule for a request: an exact rule first, then the
// first prefix rule, then the default.
func (c *Config) match(method, path string) Rule {
	for _, r := range c.Rules {
		if r.Method == method && r.Path == path {
			return r
		}
	}
	for _, r := range c.Rules {
		if r.Method == method && strings.HasSuffix(r.Path, "/") && strings.HasPrefix(path, r.Path) {
			return r
		}
	}
	def := c.Default
	def.Path = path
	return def
}

func (c *Config) exempt(path string) bool {
	for _, p := range c.Exempt {
		if p == path {
			return true
		}
	}
	return false
}
