// Package config resolves the crawler's configuration from defaults, an
// optional .env file, and CLI flags, in that precedence order (spec §4.9).
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/kirbs-btw/spotify-artist-harvester/internal/spotify"
)

// Config is the immutable set of values every other component is built
// from.
type Config struct {
	MaxNumArtists int
	NumWorkers    int
	Fresh         bool
	Debug         bool

	CredsPath string
	CSVPath   string

	CacheAddr string
	CacheDB   int

	HTTPTimeout time.Duration
}

// Default matches spec §6's CLI defaults plus this expansion's ambient
// operational defaults (§3 "Operational config").
func Default() Config {
	return Config{
		MaxNumArtists: 12_000_000,
		NumWorkers:    20,
		Fresh:         false,
		Debug:         false,
		CredsPath:     "key.json",
		CSVPath:       "artists.csv",
		CacheAddr:     "localhost:6379",
		CacheDB:       0,
		HTTPTimeout:   60 * time.Second,
	}
}

// ApplyEnv overlays .env overrides onto cfg, if envPath exists. A missing
// .env is not an error — only the credentials JSON is mandatory (spec §4.9).
func (cfg *Config) ApplyEnv(envPath string) error {
	if _, err := os.Stat(envPath); os.IsNotExist(err) {
		return nil
	}

	vars, err := godotenv.Read(envPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", envPath, err)
	}

	if v, ok := vars["CACHE_ADDR"]; ok && v != "" {
		cfg.CacheAddr = v
	}
	if v, ok := vars["CACHE_DB"]; ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CACHE_DB must be an integer: %w", err)
		}
		cfg.CacheDB = n
	}
	if v, ok := vars["CSV_PATH"]; ok && v != "" {
		cfg.CSVPath = v
	}
	if v, ok := vars["HTTP_TIMEOUT_SECONDS"]; ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("HTTP_TIMEOUT_SECONDS must be an integer: %w", err)
		}
		cfg.HTTPTimeout = time.Duration(n) * time.Second
	}
	return nil
}

// LoadCredentials reads the client_id/client_secret JSON document (spec §6
// "Credentials"). A missing or malformed file is a fatal init error.
func LoadCredentials(path string) (spotify.Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return spotify.Credentials{}, fmt.Errorf("read credentials %s: %w", path, err)
	}

	var creds spotify.Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return spotify.Credentials{}, fmt.Errorf("decode credentials %s: %w", path, err)
	}
	if creds.ClientID == "" || creds.ClientSecret == "" {
		return spotify.Credentials{}, fmt.Errorf("credentials %s missing client_id/client_secret", path)
	}
	return creds, nil
}
