package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerConfigJWT_NoSecretDisablesAuth(t *testing.T) {
	cfg, err := ServerConfig{Port: 8080}.JWT()
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestServerConfigJWT(t *testing.T) {
	tests := []struct {
		name          string
		server        ServerConfig
		expectedHours int
		wantErr       string
	}{
		{
			name:          "default expiration",
			server:        ServerConfig{JWTSecret: "0123456789abcdef"},
			expectedHours: 24,
		},
		{
			name:          "custom expiration",
			server:        ServerConfig{JWTSecret: "0123456789abcdef", JWTExpirationHours: 2},
			expectedHours: 2,
		},
		{
			name:    "short secret",
			server:  ServerConfig{JWTSecret: "short"},
			wantErr: "at least 16 characters",
		},
		{
			name:    "negative expiration",
			server:  ServerConfig{JWTSecret: "0123456789abcdef", JWTExpirationHours: -1},
			wantErr: "at least 1 hour",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := tt.server.JWT()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Nil(t, cfg)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, cfg)
			assert.Equal(t, tt.expectedHours, cfg.ExpirationHours)
			assert.Equal(t, time.Duration(tt.expectedHours)*time.Hour, cfg.Expiration())
		})
	}
}
