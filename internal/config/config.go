// Package config loads service settings from an optional YAML file overlaid by
// environment variables.
package config

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"awakenfetch/pkg/database"
	"awakenfetch/pkg/integrations/chains"
	"awakenfetch/pkg/integrations/httpfetch"
	"awakenfetch/pkg/integrations/memcache"
	"awakenfetch/pkg/integrations/txcache"
	"awakenfetch/pkg/utils"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPath             = "config.yaml"
	DefaultPort             = "8080"
	DefaultCachePruneEvery  = 5 * time.Minute
	DefaultRedisKey         = "awakenfetch:txcache"
	DefaultMetricsNamespace = "awakenfetch"
	defaultLogLevel         = "info"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Server struct {
		Port     string `yaml:"port"`
		LogLevel string `yaml:"log_level"`
	} `yaml:"server"`
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	Cache struct {
		RedisAddr     string        `yaml:"redis_addr"`
		RedisKey      string        `yaml:"redis_key"`
		TTL           time.Duration `yaml:"ttl"`
		MaxEntries    int           `yaml:"max_entries"`
		PruneInterval time.Duration `yaml:"prune_interval"`
	} `yaml:"cache"`
	Fetch struct {
		MaxRetries int           `yaml:"max_retries"`
		BaseDelay  time.Duration `yaml:"base_delay"`
		Timeout    time.Duration `yaml:"timeout"`
	} `yaml:"fetch"`
	Chains struct {
		EtherscanBaseURL   string `yaml:"etherscan_base_url"`
		EtherscanAPIKey    string `yaml:"etherscan_api_key"`
		HeliusBaseURL      string `yaml:"helius_base_url"`
		HeliusAPIKey       string `yaml:"helius_api_key"`
		HyperliquidBaseURL string `yaml:"hyperliquid_base_url"`
		CosmosHubLCD       string `yaml:"cosmoshub_lcd"`
		OsmosisLCD         string `yaml:"osmosis_lcd"`
	} `yaml:"chains"`
	Pricing struct {
		Enabled          bool   `yaml:"enabled"`
		CoinGeckoBaseURL string `yaml:"coingecko_base_url"`
		CoinGeckoAPIKey  string `yaml:"coingecko_api_key"`
	} `yaml:"pricing"`
}

// Load reads path when it exists, then applies environment overrides and defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "read config %s", path)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "parse config %s", path)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() {
	c.Server.Port = utils.GetEnv("APP_PORT", c.Server.Port)
	c.Server.LogLevel = utils.GetEnv("LOG_LEVEL", c.Server.LogLevel)
	c.Database.Path = utils.GetEnv("DB_PATH", c.Database.Path)
	c.Cache.RedisAddr = utils.GetEnv("REDIS_ADDR", c.Cache.RedisAddr)
	c.Cache.TTL = utils.GetEnvDuration("CACHE_TTL", c.Cache.TTL)
	c.Cache.MaxEntries = utils.GetEnvInt("CACHE_MAX_ENTRIES", c.Cache.MaxEntries)
	c.Chains.EtherscanAPIKey = utils.GetEnv("ETHERSCAN_API_KEY", c.Chains.EtherscanAPIKey)
	c.Chains.HeliusAPIKey = utils.GetEnv("HELIUS_API_KEY", c.Chains.HeliusAPIKey)
	c.Pricing.CoinGeckoAPIKey = utils.GetEnv("COINGECKO_API_KEY", c.Pricing.CoinGeckoAPIKey)
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = DefaultPort
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = defaultLogLevel
	}
	if c.Database.Path == "" {
		c.Database.Path = database.DefaultPath
	}
	if c.Cache.RedisKey == "" {
		c.Cache.RedisKey = DefaultRedisKey
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = txcache.DefaultTTL
	}
	if c.Cache.MaxEntries == 0 {
		c.Cache.MaxEntries = memcache.DefaultMaxEntries
	}
	if c.Cache.PruneInterval == 0 {
		c.Cache.PruneInterval = DefaultCachePruneEvery
	}
	if c.Fetch.MaxRetries == 0 {
		c.Fetch.MaxRetries = httpfetch.DefaultMaxRetries
	}
	if c.Fetch.BaseDelay == 0 {
		c.Fetch.BaseDelay = httpfetch.DefaultBaseDelay
	}
	if c.Fetch.Timeout == 0 {
		c.Fetch.Timeout = httpfetch.DefaultTimeout
	}
}

func (c *Config) Validate() error {
	switch {
	case c.Cache.TTL < 0:
		return errors.Wrap(ErrInvalidConfig, "cache.ttl cannot be negative")
	case c.Cache.MaxEntries < 0:
		return errors.Wrap(ErrInvalidConfig, "cache.max_entries cannot be negative")
	case c.Cache.PruneInterval < 0:
		return errors.Wrap(ErrInvalidConfig, "cache.prune_interval cannot be negative")
	case c.Fetch.MaxRetries < 0:
		return errors.Wrap(ErrInvalidConfig, "fetch.max_retries cannot be negative")
	}
	if _, ok := parseLevel(c.Server.LogLevel); !ok {
		return errors.Wrapf(ErrInvalidConfig, "unknown log level %q", c.Server.LogLevel)
	}
	return nil
}

// LogLevel maps server.log_level onto slog. Unknown names resolve to info.
func (c *Config) LogLevel() slog.Level {
	level, _ := parseLevel(c.Server.LogLevel)
	return level
}

func parseLevel(name string) (slog.Level, bool) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, true
	case "info", "":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// PricingEnabled reports whether fiat valuation should be served. Setting a
// CoinGecko key turns it on.
func (c *Config) PricingEnabled() bool {
	return c.Pricing.Enabled || c.Pricing.CoinGeckoAPIKey != ""
}

func (c *Config) RegistryConfig() chains.Config {
	return chains.Config{
		EtherscanBaseURL:   c.Chains.EtherscanBaseURL,
		EtherscanAPIKey:    c.Chains.EtherscanAPIKey,
		HeliusBaseURL:      c.Chains.HeliusBaseURL,
		HeliusAPIKey:       c.Chains.HeliusAPIKey,
		HyperliquidBaseURL: c.Chains.HyperliquidBaseURL,
		CosmosHubLCD:       c.Chains.CosmosHubLCD,
		OsmosisLCD:         c.Chains.OsmosisLCD,
	}
}

func (c *Config) FetchDefaults() httpfetch.RequestOptions {
	return httpfetch.RequestOptions{
		MaxRetries: c.Fetch.MaxRetries,
		BaseDelay:  c.Fetch.BaseDelay,
	}
}
