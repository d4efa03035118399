package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	API    APIConfig    `mapstructure:"api"`
	Cache  CacheConfig  `mapstructure:"cache"`
	Images ImagesConfig `mapstructure:"images"`
	Proxy  ProxyConfig  `mapstructure:"proxy"`
	Log    LogConfig    `mapstructure:"log"`
	Query  QueryConfig  `mapstructure:"query"`
}

// APIConfig holds storefront API configuration
type APIConfig struct {
	BaseURL              string `mapstructure:"base_url"`
	Version              string `mapstructure:"version"`
	Timeout              int    `mapstructure:"timeout"`
	MaxRequestsPerSecond int    `mapstructure:"max_requests_per_second"`
}

// CacheConfig holds listing cache configuration
type CacheConfig struct {
	Backend  string      `mapstructure:"backend"` // filesystem or redis
	Dir      string      `mapstructure:"dir"`
	TTLMs    int         `mapstructure:"ttl_ms"`
	Capacity int         `mapstructure:"capacity"`
	Redis    RedisConfig `mapstructure:"redis"`
}

// RedisConfig holds Redis connection details for the redis cache backend
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	Database int    `mapstructure:"database"`
}

// ImagesConfig holds image loader tunables
type ImagesConfig struct {
	Timeout             int `mapstructure:"timeout"`
	PreviewConcurrency  int `mapstructure:"preview_concurrency"`
	PreviewDelayMs      int `mapstructure:"preview_delay_ms"`
	PreviewCacheSize    int `mapstructure:"preview_cache_size"`
	ExportRetryAttempts int `mapstructure:"export_retry_attempts"`
	ExportRetryDelayMs  int `mapstructure:"export_retry_delay_ms"`
}

// ProxyConfig holds the outbound proxy URL and the local image proxy address
type ProxyConfig struct {
	URL    string `mapstructure:"url"`
	Listen string `mapstructure:"listen"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// QueryConfig holds the query executed on startup
type QueryConfig struct {
	Path    string   `mapstructure:"path"`
	Exclude []string `mapstructure:"exclude"`
	Sort    string   `mapstructure:"sort"`
	Limit   int      `mapstructure:"limit"`
	Output  string   `mapstructure:"output"`
}

// Load loads configuration from YAML file with environment variable overrides
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil, fmt.Errorf("config.yaml file not found in current directory")
		}
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("api.base_url", "https://api.storefront.example")
	viper.SetDefault("api.version", "v2")
	viper.SetDefault("api.timeout", 30)
	viper.SetDefault("api.max_requests_per_second", 5)

	viper.SetDefault("cache.backend", "filesystem")
	viper.SetDefault("cache.dir", "./cache")
	viper.SetDefault("cache.ttl_ms", 30*60*1000)
	viper.SetDefault("cache.capacity", 10)
	viper.SetDefault("cache.redis.host", "localhost")
	viper.SetDefault("cache.redis.port", 6379)
	viper.SetDefault("cache.redis.password", "")
	viper.SetDefault("cache.redis.database", 0)

	viper.SetDefault("images.timeout", 30)
	viper.SetDefault("images.preview_concurrency", 2)
	viper.SetDefault("images.preview_delay_ms", 1000)
	viper.SetDefault("images.preview_cache_size", 200)
	viper.SetDefault("images.export_retry_attempts", 3)
	viper.SetDefault("images.export_retry_delay_ms", 3000)

	viper.SetDefault("proxy.url", "")
	viper.SetDefault("proxy.listen", "")

	viper.SetDefault("log.level", "info")

	viper.SetDefault("query.sort", "Relevance")
	viper.SetDefault("query.limit", 0)
	viper.SetDefault("query.output", "export.xlsx")
}
