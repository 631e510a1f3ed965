package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	ListenAddr string `mapstructure:"listen_addr"`

	RedisAddr   string `mapstructure:"redis_addr"`
	DatabaseURL string `mapstructure:"database_url"`

	RemoteBaseURL string `mapstructure:"remote_base_url"`
	RemoteAPIKey  string `mapstructure:"remote_api_key"`

	WeatherBaseURL string `mapstructure:"weather_base_url"`
	WeatherAPIKey  string `mapstructure:"weather_api_key"`
	RouteBaseURL   string `mapstructure:"route_base_url"`
	RouteAPIKey    string `mapstructure:"route_api_key"`
	GeocodeBaseURL string `mapstructure:"geocode_base_url"`

	S3Region    string `mapstructure:"s3_region"`
	S3Endpoint  string `mapstructure:"s3_endpoint"`
	S3AccessKey string `mapstructure:"s3_access_key"`
	S3SecretKey string `mapstructure:"s3_secret_key"`
	S3Bucket    string `mapstructure:"s3_bucket"`

	APIKey             string `mapstructure:"api_key"`
	CORSAllowedOrigins string `mapstructure:"cors_allowed_origins"`

	RateLimitRequestsPerSec float64 `mapstructure:"rate_limit_requests_per_sec"`
	RateLimitBurst          int     `mapstructure:"rate_limit_burst"`

	StartOnline                 bool `mapstructure:"start_online"`
	DrainIntervalSeconds        int  `mapstructure:"drain_interval_seconds"`
	CacheCleanupIntervalMinutes int  `mapstructure:"cache_cleanup_interval_minutes"`
	WeatherCacheMaxEntries      int  `mapstructure:"weather_cache_max_entries"`
}

// Load reads configuration from ROADLOG_* environment variables, falling
// back to local-development defaults.
func Load() (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("roadlog")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("database_url", "")
	v.SetDefault("remote_base_url", "")
	v.SetDefault("remote_api_key", "")
	v.SetDefault("weather_base_url", "")
	v.SetDefault("weather_api_key", "")
	v.SetDefault("route_base_url", "")
	v.SetDefault("route_api_key", "")
	v.SetDefault("geocode_base_url", "")
	v.SetDefault("s3_region", "us-east-1")
	v.SetDefault("s3_endpoint", "")
	v.SetDefault("s3_access_key", "")
	v.SetDefault("s3_secret_key", "")
	v.SetDefault("s3_bucket", "")
	v.SetDefault("api_key", "")
	v.SetDefault("cors_allowed_origins", "*")
	v.SetDefault("rate_limit_requests_per_sec", 25.0)
	v.SetDefault("rate_limit_burst", 50)
	v.SetDefault("start_online", true)
	v.SetDefault("drain_interval_seconds", 60)
	v.SetDefault("cache_cleanup_interval_minutes", 60)
	v.SetDefault("weather_cache_max_entries", 50)

	cfg := Config{}
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing configuration: %w", err)
	}
	return cfg, nil
}

// Origins splits the comma separated CORS origins value.
func (c Config) Origins() []string {
	values := strings.Split(c.CORSAllowedOrigins, ",")
	result := make([]string, 0, len(values))
	for _, item := range values {
		trimmed := strings.TrimSpace(item)
		if trimmed == "" {
			continue
		}
		result = append(result, trimmed)
	}

	if len(result) == 0 {
		return []string{"*"}
	}
	return result
}
