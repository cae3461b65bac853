package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/viper"
)

// CacheType selects the backing store for the in-process API response cache.
type CacheType string

const (
	CacheTypeMemory CacheType = "memory"
	CacheTypeRedis  CacheType = "redis"
)

// Config holds the configuration for tidyarr and the services it talks to.
type Config struct {
	// LogLevel is the log level (debug, info, warn, error).
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`
	// DryRun logs intended renames without calling any mutating endpoint.
	DryRun bool `yaml:"dry_run" mapstructure:"dry_run"`
	// WorkLimit caps the number of rename requests issued per run. 0 means unlimited.
	WorkLimit int `yaml:"work_limit" mapstructure:"work_limit"`
	// PollInterval is the delay between rename status polls.
	PollInterval time.Duration `yaml:"poll_interval" mapstructure:"poll_interval"`
	// PollAttempts is the maximum number of rename status polls before the item is marked failed.
	PollAttempts int `yaml:"poll_attempts" mapstructure:"poll_attempts"`
	// VerifyAttempts is the maximum number of post-rename file checks.
	VerifyAttempts int `yaml:"verify_attempts" mapstructure:"verify_attempts"`
	// Schedule is the cron schedule used by the daemon command.
	Schedule string `yaml:"schedule" mapstructure:"schedule"`

	// Database holds the rename record store configuration.
	Database *DatabaseConfig `yaml:"database" mapstructure:"database"`
	// Cache holds the API response cache configuration.
	Cache *CacheConfig `yaml:"cache" mapstructure:"cache"`

	// Radarr holds the configuration for the Radarr server.
	Radarr *ArrConfig `yaml:"radarr" mapstructure:"radarr"`
	// Sonarr holds the configuration for the Sonarr server.
	Sonarr *ArrConfig `yaml:"sonarr" mapstructure:"sonarr"`
	// Jellyfin holds the configuration for the Jellyfin server.
	Jellyfin *JellyfinConfig `yaml:"jellyfin" mapstructure:"jellyfin"`
}

// DatabaseConfig holds the rename record store configuration.
type DatabaseConfig struct {
	// Path is the directory the sqlite database lives in.
	Path string `yaml:"path" mapstructure:"path"`
}

// CacheConfig holds the API response cache configuration.
type CacheConfig struct {
	// Type is the cache backend, either "memory" or "redis".
	Type CacheType `yaml:"type" mapstructure:"type"`
	// RedisURL is the address of the redis server when Type is "redis".
	RedisURL string `yaml:"redis_url" mapstructure:"redis_url"`
	// TTL is how long cached API responses stay valid.
	TTL time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

// ArrConfig holds the configuration for a Radarr or Sonarr server.
type ArrConfig struct {
	// Enabled indicates whether this service is processed during a run.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	// URL is the base URL of the server.
	URL string `yaml:"url" mapstructure:"url"`
	// APIKey is the API key for the server.
	APIKey string `yaml:"api_key" mapstructure:"api_key"`
	// FolderFormat overrides the folder naming template configured in the
	// service itself. Leave empty to use the service's own template.
	FolderFormat string `yaml:"folder_format" mapstructure:"folder_format"`
}

// JellyfinConfig holds the configuration for the Jellyfin server.
type JellyfinConfig struct {
	// URL is the base URL of the Jellyfin server.
	URL string `yaml:"url" mapstructure:"url"`
	// APIKey is the API key for the Jellyfin server.
	APIKey string `yaml:"api_key" mapstructure:"api_key"`
}

// Load reads the configuration from the specified path and returns a Config struct.
// If path is empty, it searches the default locations for a config file.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigType("yaml")
	v.SetEnvPrefix("TIDYARR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.tidyarr")
		v.AddConfigPath("/etc/tidyarr")
	}

	if err := v.ReadInConfig(); err != nil {
		// Missing config file is fine, env vars and defaults still apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		log.Debug("Using config file", "file", v.ConfigFileUsed())
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&c); err != nil {
		return nil, err
	}

	return &c, nil
}

// setDefaults sets default values for the configuration.
func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("dry_run", false)
	v.SetDefault("work_limit", 10)
	v.SetDefault("poll_interval", "10s")
	v.SetDefault("poll_attempts", 6)
	v.SetDefault("verify_attempts", 3)
	v.SetDefault("schedule", "0 */12 * * *")

	v.SetDefault("database.path", "./data")

	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.ttl", "5m")

	v.SetDefault("radarr.enabled", false)
	v.SetDefault("sonarr.enabled", false)
}

// validateConfig validates the configuration.
func validateConfig(c *Config) error {
	enabled := 0
	if c.Radarr != nil && c.Radarr.Enabled {
		enabled++
		if c.Radarr.URL == "" {
			return fmt.Errorf("radarr URL is required when radarr is enabled")
		}
		if c.Radarr.APIKey == "" {
			return fmt.Errorf("radarr API key is required when radarr is enabled")
		}
	}
	if c.Sonarr != nil && c.Sonarr.Enabled {
		enabled++
		if c.Sonarr.URL == "" {
			return fmt.Errorf("sonarr URL is required when sonarr is enabled")
		}
		if c.Sonarr.APIKey == "" {
			return fmt.Errorf("sonarr API key is required when sonarr is enabled")
		}
	}
	if enabled == 0 {
		return fmt.Errorf("at least one of radarr or sonarr must be enabled")
	}

	if c.Jellyfin == nil || c.Jellyfin.URL == "" {
		return fmt.Errorf("jellyfin URL is required")
	}
	if c.Jellyfin.APIKey == "" {
		return fmt.Errorf("jellyfin API key is required")
	}

	if c.Database == nil || c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}

	if c.WorkLimit < 0 {
		return fmt.Errorf("work_limit must not be negative")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	if c.PollAttempts <= 0 {
		return fmt.Errorf("poll_attempts must be positive")
	}
	if c.VerifyAttempts <= 0 {
		return fmt.Errorf("verify_attempts must be positive")
	}

	if c.Cache != nil && c.Cache.Type == CacheTypeRedis && c.Cache.RedisURL == "" {
		return fmt.Errorf("cache redis_url is required when cache type is redis")
	}

	return nil
}
