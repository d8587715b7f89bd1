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

func Test_parseJson_SourcesAndPrecedence(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })
	t.Setenv("ZB_CONFIG_PATH", "")

	dir := t.TempDir()
	pathFlag := writeTempJSON(t, dir, "flag.json", map[string]any{
		"http_addr":              "www.example:9000",
		"database_dsn":           "zoneboard.db",
		"session_secret":         "s1",
		"certificate_secret":     "c1",
		"access_token_ttl":       "1m",
		"login_token_ttl":        int64(3 * time.Minute),
		"refresh_token_ttl_days": 7,
		"purge_interval":         "30m",
		"allowed_product_ids":    []string{"p1"},
		"s3_bucket":              "receipts",
	})

	t.Run("loads from json", func(t *testing.T) {
		os.Args = []string{"testbin", "-config", pathFlag}

		cfg := &Config{}
		cfg.LoadDefaults()
		parseJson(cfg)

		assert.Equal(t, "www.example:9000", cfg.HTTPAddr)
		assert.Equal(t, "zoneboard.db", cfg.DatabaseDSN)
		assert.Equal(t, "s1", cfg.SessionSecret)
		assert.Equal(t, "c1", cfg.CertificateSecret)
		assert.Equal(t, 1*time.Minute, cfg.AccessTokenTTL)
		assert.Equal(t, 3*time.Minute, cfg.LoginTokenTTL)
		assert.Equal(t, 7, cfg.RefreshTokenTTLDays)
		assert.Equal(t, 30*time.Minute, cfg.PurgeInterval)
		assert.Equal(t, []string{"p1"}, cfg.AllowedProductIDs)
		assert.Equal(t, "receipts", cfg.S3Bucket)

		assert.Equal(t, ":50051", cfg.GRPCAddr, "absent keys keep defaults")
		assert.Equal(t, 30, cfg.CertificateTTLDays)
	})

	t.Run("env var names the file", func(t *testing.T) {
		os.Args = []string{"testbin"}
		t.Setenv("ZB_CONFIG_PATH", pathFlag)

		cfg := &Config{}
		parseJson(cfg)
		assert.Equal(t, "www.example:9000", cfg.HTTPAddr)
	})

	t.Run("no CONFIG and no flags → no changes", func(t *testing.T) {
		os.Args = []string{"testbin"}

		cfg := &Config{
			HTTPAddr:       "defaults:1234",
			DatabaseDSN:    "zoneboard.db",
			SessionSecret:  "key",
			AccessTokenTTL: 2 * time.Minute,
		}
		parseJson(cfg)

		assert.Equal(t, "defaults:1234", cfg.HTTPAddr)
		assert.Equal(t, "zoneboard.db", cfg.DatabaseDSN)
		assert.Equal(t, "key", cfg.SessionSecret)
		assert.Equal(t, 2*time.Minute, cfg.AccessTokenTTL)
	})

	t.Run("invalid JSON → panics", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte(`{ this is not valid json`), 0o600))

		os.Args = []string{"testbin", "-config", bad}

		cfg := &Config{}
		require.Panics(t, func() { parseJson(cfg) })
	})

	t.Run("missing file → panics", func(t *testing.T) {
		os.Args = []string{"testbin", "-c", filepath.Join(dir, "absent.json")}

		cfg := &Config{}
		require.Panics(t, func() { parseJson(cfg) })
	})
}
