// Package config loads application settings. Defaults come from the embedded
// example file, an optional TOML file overrides them and environment
// variables override both.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the full application configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Spotify  SpotifyConfig  `toml:"spotify"`
	Database DatabaseConfig `toml:"database"`
	Session  SessionConfig  `toml:"session"`
	Search   SearchConfig   `toml:"search"`
	Log      LogConfig      `toml:"log"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Addr          string `toml:"addr"`
	SecureCookies bool   `toml:"secure_cookies"`
}

// SpotifyConfig contains Spotify API credentials and request pacing.
type SpotifyConfig struct {
	ClientID          string  `toml:"client_id"`
	ClientSecret      string  `toml:"client_secret"`
	RedirectURL       string  `toml:"redirect_url"`
	Market            string  `toml:"market"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// DatabaseConfig contains the SQLite location.
type DatabaseConfig struct {
	Path string `toml:"path"`
}

// SessionConfig contains the key used to sign cookies.
type SessionConfig struct {
	SigningKey string `toml:"signing_key"`
}

// SearchConfig tunes the artist autocomplete.
type SearchConfig struct {
	DebounceMS int `toml:"debounce_ms"`
	Limit      int `toml:"limit"`
}

// Debounce returns the quiet window as a duration.
func (s SearchConfig) Debounce() time.Duration {
	return time.Duration(s.DebounceMS) * time.Millisecond
}

// LogConfig selects the log level and formatter.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Default returns the configuration described by the embedded example file.
func Default() *Config {
	var c Config
	if err := toml.Unmarshal(exampleConf, &c); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &c
}

// Load reads path on top of the defaults. An empty path or a missing file
// leaves the defaults in place; environment overrides are applied last.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := toml.Unmarshal(data, c); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}
	c.ApplyEnv(os.Getenv)
	return c, nil
}

// ApplyEnv overrides fields from the environment using getenv. Unset or
// empty variables are ignored.
func (c *Config) ApplyEnv(getenv func(string) string) {
	for name, dst := range map[string]*string{
		"SPOTIFY_CLIENT_ID":     &c.Spotify.ClientID,
		"SPOTIFY_CLIENT_SECRET": &c.Spotify.ClientSecret,
		"SPOTIFY_REDIRECT_URL":  &c.Spotify.RedirectURL,
		"SIGNING_KEY":           &c.Session.SigningKey,
		"DATABASE_PATH":         &c.Database.Path,
		"LISTEN_ADDR":           &c.Server.Addr,
		"LOG_LEVEL":             &c.Log.Level,
	} {
		if v := strings.TrimSpace(getenv(name)); v != "" {
			*dst = v
		}
	}
}

// Validate reports the first missing or out-of-range setting.
func (c *Config) Validate() error {
	required := []struct {
		name, value string
	}{
		{"spotify.client_id", c.Spotify.ClientID},
		{"spotify.client_secret", c.Spotify.ClientSecret},
		{"spotify.redirect_url", c.Spotify.RedirectURL},
		{"session.signing_key", c.Session.SigningKey},
		{"database.path", c.Database.Path},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%w: %s must be set", ErrInvalidConfig, r.name)
		}
	}
	if c.Search.DebounceMS <= 0 {
		return fmt.Errorf("%w: search.debounce_ms must be positive", ErrInvalidConfig)
	}
	if c.Search.Limit <= 0 || c.Search.Limit > 50 {
		return fmt.Errorf("%w: search.limit must be between 1 and 50", ErrInvalidConfig)
	}
	return nil
}

// ValidateCredentials checks only what the app-credentials flow needs.
func (c *Config) ValidateCredentials() error {
	if c.Spotify.ClientID == "" || c.Spotify.ClientSecret == "" {
		return fmt.Errorf("%w: spotify.client_id and spotify.client_secret must be set", ErrInvalidConfig)
	}
	return nil
}
