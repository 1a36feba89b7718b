package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Server          ServerConfig
	Database        DatabaseConfig
	Sync            SyncConfig
	Retry           RetryConfig
	Log             LogConfig
	InsightVM       InsightVMConfig
	InsightCloudSec InsightCloudSecConfig
	Cloudflare      CloudflareConfig
	Shodan          ShodanConfig
	Tailscale       TailscaleConfig

	// Pairings come from the pairings file, or from the legacy variables when
	// the file does not exist.
	Pairings []Pairing
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host     string `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Port     int    `env:"SERVER_PORT" envDefault:"8080"`
	APIToken string `env:"API_TOKEN"` // Static bearer token for /api/v1; empty disables auth
}

// DatabaseConfig holds database configuration. An empty DSN disables the
// database; sqlstore pairings and run history then are unavailable.
type DatabaseConfig struct {
	Driver string `env:"DB_DRIVER" envDefault:"sqlite3"`
	DSN    string `env:"DB_DSN"`
}

// Enabled reports whether a database is configured.
func (c *DatabaseConfig) Enabled() bool {
	return c.DSN != ""
}

// SyncConfig holds sync behavior configuration.
type SyncConfig struct {
	ConfigPath         string        `env:"SYNC_CONFIG" envDefault:"ipsync.yaml"`
	Concurrency        int           `env:"SYNC_CONCURRENCY" envDefault:"4"`
	PairingConcurrency int           `env:"SYNC_PAIRING_CONCURRENCY" envDefault:"2"`
	Interval           time.Duration `env:"SYNC_INTERVAL" envDefault:"0s"` // 0 disables periodic runs in serve mode
	Debounce           time.Duration `env:"SYNC_DEBOUNCE" envDefault:"5s"`
	DryRun             bool          `env:"SYNC_DRY_RUN" envDefault:"false"`
	MaxAddresses       int           `env:"SYNC_MAX_ADDRESSES" envDefault:"0"` // 0 disables the inventory size limit
	FilePath           string        `env:"SYNC_FILE_PATH" envDefault:"ipsync-addresses.json"` // Backing file of the "file" provider
}

// RetryConfig holds the backoff policy of provider calls.
type RetryConfig struct {
	Base       time.Duration `env:"RETRY_BASE" envDefault:"1s"`
	Cap        time.Duration `env:"RETRY_CAP" envDefault:"60s"`
	MaxRetries int           `env:"RETRY_MAX" envDefault:"5"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

// InsightVMConfig holds InsightVM console configuration.
type InsightVMConfig struct {
	BaseURL  string `env:"INSIGHTVM_BASE_URL"`
	Username string `env:"INSIGHTVM_USERNAME"`
	Password string `env:"INSIGHTVM_PASSWORD"`
	Insecure bool   `env:"INSIGHTVM_INSECURE" envDefault:"true"` // Consoles usually run self-signed certificates
	SiteID   string `env:"INSIGHTVM_SITE_ID"`

	LegacySiteID string `env:"INSIGHTVM_AZURE_AWS_SITE_ID"`
}

// InsightCloudSecConfig holds InsightCloudSec API configuration.
type InsightCloudSecConfig struct {
	BaseURL string `env:"INSIGHTCLOUDSEC_BASE_URL"`
	APIKey  string `env:"INSIGHTCLOUDSEC_API_KEY"`
}

// CloudflareConfig holds Cloudflare API configuration.
type CloudflareConfig struct {
	BaseURL string `env:"CLOUDFLARE_BASE_URL" envDefault:"https://api.cloudflare.com/client/v4"`
	APIKey  string `env:"CLOUDFLARE_API_KEY"`
}

// ShodanConfig holds Shodan API configuration.
type ShodanConfig struct {
	BaseURL string `env:"SHODAN_BASE_URL" envDefault:"https://api.shodan.io"`
	APIKey  string `env:"SHODAN_API_KEY"`
	Net     string `env:"SHODAN_NET"`

	LegacyNet string `env:"SHODAN_AZURE_AWS_NET"`
}

// TailscaleConfig holds Tailscale API configuration.
type TailscaleConfig struct {
	Tailnet           string `env:"TAILSCALE_TAILNET"`
	APIKey            string `env:"TAILSCALE_API_KEY"`
	OAuthClientID     string `env:"TAILSCALE_OAUTH_CLIENT_ID"`
	OAuthClientSecret string `env:"TAILSCALE_OAUTH_CLIENT_SECRET"`
}

// Load loads configuration from environment variables, after applying the
// dotenv file at envFile when it exists. Variables already set in the
// environment win over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}
	return LoadFrom(env.Options{})
}

// LoadFrom parses configuration with the given env options. Tests pass an
// explicit Environment map.
func LoadFrom(opts env.Options) (*Config, error) {
	cfg := &Config{}

	targets := []struct {
		name string
		v    any
	}{
		{"server", &cfg.Server},
		{"database", &cfg.Database},
		{"sync", &cfg.Sync},
		{"retry", &cfg.Retry},
		{"log", &cfg.Log},
		{"insightvm", &cfg.InsightVM},
		{"insightcloudsec", &cfg.InsightCloudSec},
		{"cloudflare", &cfg.Cloudflare},
		{"shodan", &cfg.Shodan},
		{"tailscale", &cfg.Tailscale},
	}
	for _, t := range targets {
		if err := env.ParseWithOptions(t.v, opts); err != nil {
			return nil, fmt.Errorf("parsing %s config: %w", t.name, err)
		}
	}

	pairings, err := loadPairings(cfg)
	if err != nil {
		return nil, err
	}
	cfg.Pairings = pairings

	return cfg, nil
}

func loadPairings(cfg *Config) ([]Pairing, error) {
	if cfg.Sync.ConfigPath != "" {
		data, err := os.ReadFile(cfg.Sync.ConfigPath)
		switch {
		case err == nil:
			file, err := ParsePairings(data)
			if err != nil {
				return nil, fmt.Errorf("parsing %s: %w", cfg.Sync.ConfigPath, err)
			}
			return file.Pairings, nil
		case !errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("reading %s: %w", cfg.Sync.ConfigPath, err)
		}
	}
	return cfg.LegacyPairings(), nil
}

// Addr returns the server address in host:port format.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
