// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Provider defaults for the Bavarian vaccination portal.
const (
	defaultPortalURL = "https://impfzentren.bayern/citizen/"
	defaultAuthURL   = "https://ciam.impfzentren.bayern/auth/realms/C19V-Citizen/protocol/openid-connect/auth"
	defaultTokenURL  = "https://ciam.impfzentren.bayern/auth/realms/C19V-Citizen/protocol/openid-connect/token"
	defaultAPIURL    = "https://impfzentren.bayern/api/v1"
	defaultClientID  = "c19v-frontend"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	Username  string
	Password  string
	CitizenID string

	PortalURL string
	AuthURL   string
	TokenURL  string
	APIURL    string
	ClientID  string

	NtfyServer string
	NtfyTopic  string

	DBPath          string
	PollInterval    time.Duration
	RefreshInterval time.Duration
}

// HasCredentials returns true when the login credentials and citizen id are
// all present. The polling commands require them; the history command does not.
func (c *Config) HasCredentials() bool {
	return c.Username != "" && c.Password != "" && c.CitizenID != ""
}

// Load reads configuration from the environment, after loading a local .env
// file when one exists. Credentials (IMPFWATCH_USERNAME, IMPFWATCH_PASSWORD,
// IMPFWATCH_CITIZEN_ID) are validated by the commands that need them.
// Optional variables with defaults: IMPFWATCH_POLL_INTERVAL (0, single
// attempt), IMPFWATCH_REFRESH_INTERVAL (270s), IMPFWATCH_DB_PATH
// (impfwatch.db), IMPFWATCH_NTFY_SERVER, IMPFWATCH_NTFY_TOPIC, and the
// provider URLs.
func Load() (*Config, error) {
	// Development convenience; a missing .env file is not an error.
	_ = godotenv.Load()

	cfg := &Config{
		Username:   os.Getenv("IMPFWATCH_USERNAME"),
		Password:   os.Getenv("IMPFWATCH_PASSWORD"),
		CitizenID:  os.Getenv("IMPFWATCH_CITIZEN_ID"),
		PortalURL:  envOr("IMPFWATCH_PORTAL_URL", defaultPortalURL),
		AuthURL:    envOr("IMPFWATCH_AUTH_URL", defaultAuthURL),
		TokenURL:   envOr("IMPFWATCH_TOKEN_URL", defaultTokenURL),
		APIURL:     envOr("IMPFWATCH_API_URL", defaultAPIURL),
		ClientID:   envOr("IMPFWATCH_CLIENT_ID", defaultClientID),
		NtfyServer: os.Getenv("IMPFWATCH_NTFY_SERVER"),
		NtfyTopic:  os.Getenv("IMPFWATCH_NTFY_TOPIC"),
		DBPath:     envOr("IMPFWATCH_DB_PATH", "impfwatch.db"),
	}

	pollInterval, err := durationEnv("IMPFWATCH_POLL_INTERVAL", 0)
	if err != nil {
		return nil, err
	}
	cfg.PollInterval = pollInterval

	refreshInterval, err := durationEnv("IMPFWATCH_REFRESH_INTERVAL", 270*time.Second)
	if err != nil {
		return nil, err
	}
	cfg.RefreshInterval = refreshInterval

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}

	parsed, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid duration %q: %w", key, v, err)
	}
	return parsed, nil
}
