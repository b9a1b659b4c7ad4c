package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	API        APIConfig        `yaml:"api"`
	Cache      CacheConfig      `yaml:"cache"`
	Redis      RedisConfig      `yaml:"redis"`
	Storage    StorageConfig    `yaml:"storage"`
	Sync       SyncConfig       `yaml:"sync"`
	Auth       AuthConfig       `yaml:"auth"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	Exports    ExportConfig     `yaml:"exports"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type APIConfig struct {
	BaseURL        string   `yaml:"base_url"`
	Timeout        Duration `yaml:"timeout"`
	MaxRetries     int      `yaml:"max_retries"`
	RetryBaseDelay Duration `yaml:"retry_base_delay"`
	RetryMaxDelay  Duration `yaml:"retry_max_delay"`
	BackoffFactor  float64  `yaml:"backoff_factor"`
	// FallbackPolicy decides what category reads do when the API is
	// unreachable and the cache is empty: "fallback" serves the built-in
	// category set, "fail" surfaces the error.
	FallbackPolicy string `yaml:"fallback_policy"`
}

type CacheConfig struct {
	TTL    Duration `yaml:"ttl"`
	MaxAge Duration `yaml:"max_age"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type StorageConfig struct {
	Path string `yaml:"path"`
}

type SyncConfig struct {
	Interval          Duration `yaml:"interval"`
	ConnectivityProbe Duration `yaml:"connectivity_probe"`
	MaxPending        int      `yaml:"max_pending"`
	// ReplayRate limits how many queued operations are replayed per second
	// so a long queue cannot starve other work.
	ReplayRate float64 `yaml:"replay_rate"`
}

type AuthConfig struct {
	SessionLifetime  Duration `yaml:"session_lifetime"`
	RefreshThreshold Duration `yaml:"refresh_threshold"`
	CheckInterval    Duration `yaml:"check_interval"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

const (
	FallbackPolicyFail     = "fail"
	FallbackPolicyFallback = "fallback"
)

// Load reads the YAML config at configPath, overlaying .env variables and
// expanding ${VAR} references before parsing.
func Load(configPath string) (*Config, error) {
	// .env is optional; real environment variables win when both exist.
	_ = godotenv.Load(".env")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return errors.New("api base_url is required")
	}

	if c.Storage.Path == "" {
		return errors.New("storage path is required")
	}

	if c.API.FallbackPolicy != FallbackPolicyFail && c.API.FallbackPolicy != FallbackPolicyFallback {
		return fmt.Errorf("unknown api fallback_policy: %q", c.API.FallbackPolicy)
	}

	if c.Redis.Enabled && c.Redis.Address == "" {
		return errors.New("redis address is required when redis is enabled")
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "bairro"
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = Duration(60 * time.Second)
	}
	if c.API.MaxRetries == 0 {
		c.API.MaxRetries = 5
	}
	if c.API.RetryBaseDelay == 0 {
		c.API.RetryBaseDelay = Duration(2 * time.Second)
	}
	if c.API.RetryMaxDelay == 0 {
		c.API.RetryMaxDelay = Duration(10 * time.Second)
	}
	if c.API.BackoffFactor == 0 {
		c.API.BackoffFactor = 1.5
	}
	if c.API.FallbackPolicy == "" {
		c.API.FallbackPolicy = FallbackPolicyFallback
	}

	if c.Cache.TTL == 0 {
		c.Cache.TTL = Duration(5 * time.Minute)
	}
	if c.Cache.MaxAge == 0 {
		c.Cache.MaxAge = Duration(30 * time.Minute)
	}

	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = 10
	}

	if c.Sync.Interval == 0 {
		c.Sync.Interval = Duration(5 * time.Minute)
	}
	if c.Sync.ConnectivityProbe == 0 {
		c.Sync.ConnectivityProbe = Duration(30 * time.Second)
	}
	if c.Sync.MaxPending == 0 {
		c.Sync.MaxPending = 50
	}
	if c.Sync.ReplayRate == 0 {
		c.Sync.ReplayRate = 10
	}

	if c.Auth.SessionLifetime == 0 {
		c.Auth.SessionLifetime = Duration(24 * time.Hour)
	}
	if c.Auth.RefreshThreshold == 0 {
		c.Auth.RefreshThreshold = Duration(30 * time.Minute)
	}
	if c.Auth.CheckInterval == 0 {
		c.Auth.CheckInterval = Duration(5 * time.Minute)
	}

	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}

	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}
}
