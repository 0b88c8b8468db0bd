package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(env(map[string]string{
		"DB_URL":             "postgres://localhost/access",
		"WEBHOOK_CREDENTIAL": "s3cret",
	}))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.Equal(t, 3, cfg.ReconcileMaxAttempts)
	assert.Equal(t, "America/New_York", cfg.Location.String())
	assert.Empty(t, cfg.APIKeys, "no dev key outside debug mode")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
db_driver: sqlite
sqlite_path: /tmp/from-file.db
webhook_credential: from-file
api_keys: "alice:k1, bob:k2"
redis_addr: localhost:6379
redis_db: 2
ticket_timezone: UTC
`), 0o600))

	cfg, err := load(env(map[string]string{
		"CONFIG_FILE":        path,
		"WEBHOOK_CREDENTIAL": "from-env",
		"LOG_FORMAT":         "console",
	}))
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, "/tmp/from-file.db", cfg.SQLitePath)
	assert.Equal(t, "from-env", cfg.WebhookCredential)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.Equal(t, 2, cfg.RedisDB)
	assert.Equal(t, map[string]string{"k1": "alice", "k2": "bob"}, cfg.APIKeys)
	assert.Equal(t, "UTC", cfg.Location.String())
}

func TestLoad_DebugFallbackKey(t *testing.T) {
	cfg, err := load(env(map[string]string{
		"DB_DRIVER":          "memory",
		"WEBHOOK_CREDENTIAL": "s3cret",
		"DEBUG":              "true",
	}))
	require.NoError(t, err)
	assert.Equal(t, "operator1", cfg.APIKeys["operator-key-123"])
}

func TestLoad_Errors(t *testing.T) {
	cases := map[string]map[string]string{
		"missing db url":      {"WEBHOOK_CREDENTIAL": "x"},
		"missing credential":  {"DB_DRIVER": "memory"},
		"bad driver":          {"DB_DRIVER": "mysql", "WEBHOOK_CREDENTIAL": "x"},
		"bad api keys":        {"DB_DRIVER": "memory", "WEBHOOK_CREDENTIAL": "x", "API_KEYS": "nocolon"},
		"bad timezone":        {"DB_DRIVER": "memory", "WEBHOOK_CREDENTIAL": "x", "TICKET_TIMEZONE": "Mars/Olympus"},
		"bad attempts":        {"DB_DRIVER": "memory", "WEBHOOK_CREDENTIAL": "x", "RECONCILE_MAX_ATTEMPTS": "0"},
		"non-numeric redisdb": {"DB_DRIVER": "memory", "WEBHOOK_CREDENTIAL": "x", "REDIS_DB": "two"},
		"missing file":        {"CONFIG_FILE": "/nonexistent/config.yaml"},
	}
	for name, vars := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := load(env(vars))
			require.Error(t, err)
		})
	}
}

func TestLoad_FromProcessEnv(t *testing.T) {
	t.Setenv("DB_DRIVER", "memory")
	t.Setenv("WEBHOOK_CREDENTIAL", "s3cret")
	t.Setenv("CONFIG_FILE", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.DBDriver)
}
