package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadCredentials(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"client_id":"abc","client_secret":"xyz"}`), 0644))

	creds, err := LoadCredentials(path)
	require.NoError(t, err)
	require.Equal(t, "abc", creds.ClientID)
	require.Equal(t, "xyz", creds.ClientSecret)
}

func TestLoadCredentialsRejectsMissingFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"client_id":"abc"}`), 0644))

	_, err := LoadCredentials(path)
	require.Error(t, err)
}

func TestLoadCredentialsMissingFile(t *testing.T) {
	_, err := LoadCredentials(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
}

func TestApplyEnvOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("CACHE_ADDR=redis.internal:6380\nCACHE_DB=2\nCSV_PATH=/tmp/out.csv\nHTTP_TIMEOUT_SECONDS=30\n"), 0644))

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(path))

	require.Equal(t, "redis.internal:6380", cfg.CacheAddr)
	require.Equal(t, 2, cfg.CacheDB)
	require.Equal(t, "/tmp/out.csv", cfg.CSVPath)
	require.Equal(t, int64(30), cfg.HTTPTimeout.Nanoseconds()/1e9)
}

func TestApplyEnvMissingFileIsNotAnError(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(filepath.Join(t.TempDir(), "missing.env")))
	require.Equal(t, Default(), cfg)
}
