package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DB_DRIVER", "")
	t.Setenv("AI_TIMEOUT_SEC", "")
	t.Setenv("DOCUSIGN_ENABLED", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, 30*time.Second, cfg.Workflow.AITimeout)
	assert.Equal(t, "gpt-4o", cfg.OpenAI.Model)
	assert.False(t, cfg.ESign.Enabled)
	assert.Equal(t, int64(10<<20), cfg.Server.MaxUploadBytes())
	assert.Equal(t, int32(10), cfg.Database.MaxConns)
}

func TestLoadHonorsEnv(t *testing.T) {
	t.Setenv("DB_DRIVER", "MONGO")
	t.Setenv("AI_TIMEOUT_SEC", "5")
	t.Setenv("STORAGE_TIMEOUT_SEC", "not-a-number")
	t.Setenv("REDIS_ADDR", "localhost:6380")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverMongo, cfg.Database.Driver)
	assert.Equal(t, 5*time.Second, cfg.Workflow.AITimeout)
	assert.Equal(t, 15*time.Second, cfg.Workflow.StorageTimeout)
	assert.Equal(t, "localhost:6380", cfg.Redis.Addr)
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRequiresDocuSignCredentialsWhenEnabled(t *testing.T) {
	t.Setenv("DB_DRIVER", "")
	t.Setenv("DOCUSIGN_ENABLED", "true")
	t.Setenv("DOCUSIGN_ACCOUNT_ID", "")
	_, err := Load()
	assert.Error(t, err)
}

func TestDSNPrefersURL(t *testing.T) {
	c := DatabaseConfig{URL: "postgres://x/y"}
	assert.Equal(t, "postgres://x/y", c.DSN())

	c = DatabaseConfig{User: "u", Password: "p", Host: "h", Port: "1", DBName: "d", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@h:1/d?sslmode=disable", c.DSN())
}
