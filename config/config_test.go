package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_DefaultsFillGaps(t *testing.T) {
	path := writeConfig(t, `
storage:
  driver: memory
refund:
  delay_qualifies: true
gateway:
  partner_code: AIRTICKET
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.True(t, cfg.Refund.DelayQualifies)
	assert.Equal(t, "AIRTICKET", cfg.Gateway.PartnerCode)
	assert.Equal(t, "VND", cfg.Gateway.Currency)
	assert.Equal(t, ":8080", cfg.HTTP.Address)
	assert.Equal(t, 5, cfg.Booking.ReferenceAttempts)
	assert.Equal(t, "@every 5m", cfg.Worker.ReconcileSchedule)
}

func TestLoadConfig_EnvOverridesSecrets(t *testing.T) {
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("GATEWAY_SECRET_KEY", "gw-secret")
	t.Setenv("DATABASE_PASSWORD", "pw")

	cfg, err := LoadConfig(writeConfig(t, "auth:\n  jwt_secret: from-file\n"))
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.Equal(t, "gw-secret", cfg.Gateway.SecretKey)
	assert.Contains(t, cfg.Database.DSN(), "password=pw")
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config")

	_, err = LoadConfig(writeConfig(t, "http: [unclosed"))
	assert.ErrorContains(t, err, "failed to parse config")
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", Name: "n", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=n sslmode=disable", d.DSN())

	d.MaxConns = 8
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=n sslmode=disable pool_max_conns=8", d.DSN())
}
