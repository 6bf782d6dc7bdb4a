package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_FileAndDefaults(t *testing.T) {
	t.Setenv("PORTAL_JWT_SECRET", "")
	path := writeConfig(t, `
server:
  port: 9090
jwt:
  secret: file-secret
invitation:
  base_url: https://sante.example.ga/claim
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "file-secret", cfg.JWT.Secret)
	assert.Equal(t, "https://sante.example.ga/claim", cfg.Invitation.BaseURL)
	assert.Equal(t, 7*24*time.Hour, cfg.Invitation.TTL)
	assert.Equal(t, "file-secret", cfg.WorkContext.Secret, "context secret falls back to the jwt secret")
	assert.Equal(t, 100, cfg.Outbox.BatchSize)
}

func TestLoadConfig_EnvironmentSecretsWin(t *testing.T) {
	path := writeConfig(t, `
jwt:
  secret: file-secret
database:
  password: from-file
`)
	t.Setenv("PORTAL_JWT_SECRET", "env-secret")
	t.Setenv("PORTAL_DB_PASSWORD", "env-password")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "env-secret", cfg.JWT.Secret)
	assert.Equal(t, "env-password", cfg.Database.Password)
	assert.Contains(t, cfg.Database.DSN(), "password=env-password")
}

func TestLoadConfig_RequiresJWTSecret(t *testing.T) {
	t.Setenv("PORTAL_JWT_SECRET", "")
	path := writeConfig(t, "server:\n  port: 8080\n")

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfig_RejectsNonPositiveIntervals(t *testing.T) {
	t.Setenv("PORTAL_JWT_SECRET", "secret")

	for _, body := range []string{
		"monitor:\n  interval: 0s\n",
		"outbox:\n  poll_interval: 0s\n",
		"claim:\n  reconcile_grace: -5m\n",
	} {
		_, err := LoadConfig(writeConfig(t, body))
		assert.Error(t, err, body)
	}
}
