package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.ListenAddr != ":8080" {
		t.Fatalf("unexpected listen addr: %q", cfg.ListenAddr)
	}
	if cfg.RedisAddr != "localhost:6379" {
		t.Fatalf("unexpected redis addr: %q", cfg.RedisAddr)
	}
	if !cfg.StartOnline {
		t.Fatalf("expected start_online default true")
	}
	if cfg.WeatherCacheMaxEntries != 50 {
		t.Fatalf("unexpected cache size default: %d", cfg.WeatherCacheMaxEntries)
	}
	if cfg.DrainIntervalSeconds != 60 {
		t.Fatalf("unexpected drain interval default: %d", cfg.DrainIntervalSeconds)
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("ROADLOG_LISTEN_ADDR", ":9090")
	t.Setenv("ROADLOG_REDIS_ADDR", "redis:6380")
	t.Setenv("ROADLOG_DATABASE_URL", "postgres://roadlog:roadlog@db:5432/roadlog")
	t.Setenv("ROADLOG_WEATHER_BASE_URL", "https://weather.example")
	t.Setenv("ROADLOG_START_ONLINE", "false")
	t.Setenv("ROADLOG_RATE_LIMIT_BURST", "10")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.ListenAddr != ":9090" {
		t.Fatalf("listen addr not taken from env: %q", cfg.ListenAddr)
	}
	if cfg.RedisAddr != "redis:6380" {
		t.Fatalf("redis addr not taken from env: %q", cfg.RedisAddr)
	}
	if cfg.DatabaseURL == "" {
		t.Fatalf("database url not taken from env")
	}
	if cfg.WeatherBaseURL != "https://weather.example" {
		t.Fatalf("weather base url not taken from env: %q", cfg.WeatherBaseURL)
	}
	if cfg.StartOnline {
		t.Fatalf("start_online override ignored")
	}
	if cfg.RateLimitBurst != 10 {
		t.Fatalf("rate limit burst override ignored: %d", cfg.RateLimitBurst)
	}
}

func TestOrigins(t *testing.T) {
	cfg := Config{CORSAllowedOrigins: "https://app.example, https://staging.example"}
	origins := cfg.Origins()
	if len(origins) != 2 || origins[0] != "https://app.example" || origins[1] != "https://staging.example" {
		t.Fatalf("unexpected origins: %v", origins)
	}

	cfg = Config{CORSAllowedOrigins: " , "}
	origins = cfg.Origins()
	if len(origins) != 1 || origins[0] != "*" {
		t.Fatalf("expected wildcard fallback, got %v", origins)
	}
}
