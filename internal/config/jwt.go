package config

import (
	"fmt"
	"time"
)

// DefaultJWTExpirationHours is the token lifetime when none is configured.
const DefaultJWTExpirationHours = 24

// JWTConfig holds configuration for API token generation and validation.
type JWTConfig struct {
	Secret          string
	ExpirationHours int
}

// JWT returns the token configuration of the status API, or nil when no
// secret is set and the API runs without authentication.
func (s ServerConfig) JWT() (*JWTConfig, error) {
	if s.JWTSecret == "" {
		return nil, nil
	}

	hours := s.JWTExpirationHours
	if hours == 0 {
		hours = DefaultJWTExpirationHours
	}

	config := &JWTConfig{
		Secret:          s.JWTSecret,
		ExpirationHours: hours,
	}

	if err := config.normalize(); err != nil {
		return nil, err
	}

	return config, nil
}

// Expiration returns the token lifetime.
func (c *JWTConfig) Expiration() time.Duration {
	return time.Duration(c.ExpirationHours) * time.Hour
}

// normalize validates the configuration.
func (c *JWTConfig) normalize() error {
	if len(c.Secret) < 16 {
		return fmt.Errorf("jwt_secret must be at least 16 characters")
	}
	if c.ExpirationHours < 1 {
		return fmt.Errorf("jwt_expiration_hours must be at least 1 hour, got: %d", c.ExpirationHours)
	}
	return nil
}
