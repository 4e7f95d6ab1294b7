package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/idea-forge/internal/config"
	"github.com/jonathan/idea-forge/internal/server"
)

func TestTokenCommand(t *testing.T) {
	resetGlobals(t)
	t.Setenv(envDatabaseURL, "")
	t.Setenv(envJWTSecret, "token-secret-0123456789")

	cmd, out := newTestCommand()
	require.NoError(t, runTokenCmd(cmd, []string{"ops"}))

	token := strings.TrimSpace(out.String())
	svc := server.NewJWTService(&config.JWTConfig{Secret: "token-secret-0123456789", ExpirationHours: 1})
	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Subject)
}

func TestTokenCommand_RequiresSecret(t *testing.T) {
	resetGlobals(t)
	t.Setenv(envDatabaseURL, "")
	t.Setenv(envJWTSecret, "")

	cmd, _ := newTestCommand()
	err := runTokenCmd(cmd, []string{"ops"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), envJWTSecret)
}
