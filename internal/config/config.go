package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "SKYREADER"

// Config holds all configuration for the application.
type Config struct {
	// Port is the HTTP server port.
	Port int

	// PDS is the personal data server used for sign-in and authenticated calls.
	PDS string

	// PublicAppView serves anonymous reads when no account is configured.
	PublicAppView string

	// Handle and AppPassword sign in on startup when both are set.
	Handle      string
	AppPassword string

	// DBPath is the SQLite file holding sessions and the firehose cursor.
	DBPath string

	// FirehoseURL is the Jetstream WebSocket endpoint.
	FirehoseURL     string
	FirehoseEnabled bool

	LogLevel  string
	LogFormat string

	// RateLimit caps outgoing API requests per second.
	RateLimit float64

	// GroupReposts enables sub-feed grouping by default.
	GroupReposts bool

	// SessionRefresh is how often the access token is refreshed.
	SessionRefresh time.Duration
}

// Authenticated reports whether credentials are configured.
func (c *Config) Authenticated() bool {
	return c.Handle != "" && c.AppPassword != ""
}

// Load reads configuration from the file named by SKYREADER_CONFIG (if any),
// then environment variables, with sensible defaults.
func Load() (*Config, error) {
	return LoadFile(os.Getenv(envPrefix + "_CONFIG"))
}

// LoadFile is Load with an explicit config file path. An empty path skips the
// file.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// PORT is the platform convention and wins over the prefixed variable.
	if err := v.BindEnv("port", "PORT", envPrefix+"_PORT"); err != nil {
		return nil, fmt.Errorf("bind PORT: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{
		Port:            v.GetInt("port"),
		PDS:             strings.TrimRight(v.GetString("pds"), "/"),
		PublicAppView:   strings.TrimRight(v.GetString("public_appview"), "/"),
		Handle:          v.GetString("handle"),
		AppPassword:     v.GetString("app_password"),
		DBPath:          v.GetString("db_path"),
		FirehoseURL:     v.GetString("firehose.url"),
		FirehoseEnabled: v.GetBool("firehose.enabled"),
		LogLevel:        v.GetString("log.level"),
		LogFormat:       v.GetString("log.format"),
		RateLimit:       v.GetFloat64("rate_limit"),
		GroupReposts:    v.GetBool("group_reposts"),
		SessionRefresh:  v.GetDuration("session_refresh"),
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 3000)
	v.SetDefault("pds", "https://bsky.social")
	v.SetDefault("public_appview", "https://public.api.bsky.app")
	v.SetDefault("handle", "")
	v.SetDefault("app_password", "")
	v.SetDefault("db_path", "skyreader.db")
	v.SetDefault("firehose.url", "wss://jetstream1.us-east.bsky.network/subscribe")
	v.SetDefault("firehose.enabled", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("rate_limit", 10)
	v.SetDefault("group_reposts", false)
	v.SetDefault("session_refresh", 30*time.Minute)
}

func (c *Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.RateLimit <= 0 {
		return fmt.Errorf("rate_limit must be positive, got %v", c.RateLimit)
	}
	if c.SessionRefresh <= 0 {
		return fmt.Errorf("session_refresh must be positive, got %s", c.SessionRefresh)
	}
	if (c.Handle == "") != (c.AppPassword == "") {
		return errors.New("handle and app_password must be set together")
	}
	return nil
}
