package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, dir, name string, data map[string]any) string {
	t.Helper()
	if dir == "" {
		dir = t.TempDir()
	}
	if name == "" {
		name = "cfg.json"
	}
	path := filepath.Join(dir, name)
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func Test_parseJson(t *testing.T) {
	t.Setenv("NW_CONFIG", "")
	dir := t.TempDir()
	path := writeTempJSON(t, dir, "full.json", map[string]any{
		"backend_url":            "https://json.example",
		"auth_timeout":           "5s",
		"profile_fetch_attempts": 4,
		"profile_retry_delay":    "50ms",
		"log_backend":            "logrus",
		"storage": map[string]any{
			"bucket":      "reports",
			"endpoint":    "http://minio:9000",
			"presign_ttl": "1h",
		},
	})

	t.Run("loads known fields", func(t *testing.T) {
		cfg := &Config{}
		cfg.LoadDefaults()
		parseJson(cfg, []string{"-config", path})

		assert.Equal(t, "https://json.example", cfg.BackendURL)
		assert.Equal(t, DefaultBackendKey, cfg.BackendKey, "absent fields keep defaults")
		assert.Equal(t, 5*time.Second, cfg.AuthTimeout)
		assert.Equal(t, 4, cfg.ProfileFetchAttempts)
		assert.Equal(t, 50*time.Millisecond, cfg.ProfileRetryDelay)
		assert.Equal(t, "logrus", cfg.LogBackend)
		assert.Equal(t, "reports", cfg.Storage.Bucket)
		assert.Equal(t, "http://minio:9000", cfg.Storage.Endpoint)
		assert.Equal(t, "us-east-1", cfg.Storage.Region)
		assert.Equal(t, time.Hour, cfg.Storage.PresignTTL)
	})

	t.Run("env var selects the file", func(t *testing.T) {
		t.Setenv("NW_CONFIG", path)
		cfg := &Config{}
		parseJson(cfg, nil)
		assert.Equal(t, "https://json.example", cfg.BackendURL)
	})

	t.Run("no path leaves config untouched", func(t *testing.T) {
		cfg := &Config{BackendURL: "keep"}
		parseJson(cfg, []string{"-u", "other"})
		assert.Equal(t, "keep", cfg.BackendURL)
	})

	t.Run("invalid JSON panics", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte(`{ not json`), 0o600))
		require.Panics(t, func() { parseJson(&Config{}, []string{"-c", bad}) })
	})

	t.Run("missing file panics", func(t *testing.T) {
		require.Panics(t, func() { parseJson(&Config{}, []string{"-c", filepath.Join(dir, "nope.json")}) })
	})
}
