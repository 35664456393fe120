package config

import (
	"testing"
	"time"
)

// clearEnv unsets every variable the loader reads so defaults apply.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PORT", "READ_TIMEOUT", "READ_HEADER_TIMEOUT", "WRITE_TIMEOUT",
		"IDLE_TIMEOUT", "MAX_HEADER_BYTES", "GIN_MODE",
		"LOG_LEVEL", "LOG_PRETTY", "SWAGGER_ENABLED", "API_BASE_PATH",
		"DB_DRIVER", "DB_PATH", "DB_DSN",
		"REDIS_ADDR", "REDIS_PASSWORD",
		"MAX_BODY_RUNES", "REQUEST_TIMEOUT",
		"RATE_RPS", "RATE_BURST",
		"CORS_ALLOWED_ORIGINS", "ENABLE_HSTS", "HSTS_MAX_AGE",
		"IDEMPOTENCY_TTL",
		"STREAM_MAX_RETRIES", "STREAM_RETRY_DELAY", "STREAM_HANDSHAKE_TIMEOUT",
		"OTEL_ENABLED", "OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_INSECURE",
		"OTEL_SERVICE_NAME", "OTEL_TRACES_SAMPLER_ARG",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Port = %q", cfg.Port)
	}
	if cfg.GinMode != "release" {
		t.Errorf("GinMode = %q", cfg.GinMode)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
	if cfg.APIBasePath != "/api/v1" {
		t.Errorf("APIBasePath = %q", cfg.APIBasePath)
	}
	if cfg.DBDriver != "sqlite" || cfg.DBPath != "app.db" {
		t.Errorf("DB = %q %q", cfg.DBDriver, cfg.DBPath)
	}
	if cfg.MaxBodyRunes != 2000 {
		t.Errorf("MaxBodyRunes = %d", cfg.MaxBodyRunes)
	}
	if cfg.RateRPS != 5.0 || cfg.RateBurst != 10 {
		t.Errorf("rate = %v / %d", cfg.RateRPS, cfg.RateBurst)
	}
	if cfg.IdempotencyTTL != 24*time.Hour {
		t.Errorf("IdempotencyTTL = %v", cfg.IdempotencyTTL)
	}
	if cfg.Stream.MaxRetries != 3 || cfg.Stream.RetryDelay != 3*time.Second || cfg.Stream.HandshakeTimeout != 5*time.Second {
		t.Errorf("stream = %+v", cfg.Stream)
	}
	if cfg.OTEL.Enabled || cfg.OTEL.ServiceName != "hospital-chat" || cfg.OTEL.SampleRatio != 1.0 {
		t.Errorf("otel = %+v", cfg.OTEL)
	}
	if len(cfg.CORS.AllowedOrigins) != 0 {
		t.Errorf("CORS origins = %v", cfg.CORS.AllowedOrigins)
	}
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "WARNING") // normalized to warn
	t.Setenv("GIN_MODE", "bogus")    // coerced to release
	t.Setenv("API_BASE_PATH", "api/v2/")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example ,")
	t.Setenv("STREAM_MAX_RETRIES", "5")
	t.Setenv("RATE_RPS", "2.5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "9090" {
		t.Errorf("Port = %q", cfg.Port)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
	if cfg.GinMode != "release" {
		t.Errorf("GinMode = %q", cfg.GinMode)
	}
	if cfg.APIBasePath != "/api/v2" {
		t.Errorf("APIBasePath = %q", cfg.APIBasePath)
	}
	if len(cfg.CORS.AllowedOrigins) != 2 || cfg.CORS.AllowedOrigins[0] != "https://a.example" {
		t.Errorf("origins = %v", cfg.CORS.AllowedOrigins)
	}
	if cfg.Stream.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d", cfg.Stream.MaxRetries)
	}
	if cfg.RateRPS != 2.5 {
		t.Errorf("RateRPS = %v", cfg.RateRPS)
	}
}

func TestLoad_ValidationFailures(t *testing.T) {
	cases := []struct {
		name string
		k, v string
	}{
		{"bad log level", "LOG_LEVEL", "verbose"},
		{"bad driver", "DB_DRIVER", "mongodb"},
		{"postgres without dsn", "DB_DRIVER", "postgres"},
		{"zero body cap", "MAX_BODY_RUNES", "0"},
		{"negative rps", "RATE_RPS", "-1"},
		{"zero burst", "RATE_BURST", "0"},
		{"zero idempotency ttl", "IDEMPOTENCY_TTL", "0s"},
		{"negative retries", "STREAM_MAX_RETRIES", "-1"},
		{"bad sample ratio", "OTEL_TRACES_SAMPLER_ARG", "1.5"},
		{"zero read timeout", "READ_TIMEOUT", "0s"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tc.k, tc.v)
			if _, err := Load(); err == nil {
				t.Fatalf("Load accepted %s=%s", tc.k, tc.v)
			}
		})
	}
}

func TestNormalizeBasePath(t *testing.T) {
	cases := []struct{ in, want string }{
		{"", "/"},
		{"/", "/"},
		{"api/v1", "/api/v1"},
		{"/api/v1/", "/api/v1"},
		{"  /api/v1  ", "/api/v1"},
		{"/api//", "/api"},
	}
	for _, tc := range cases {
		if got := normalizeBasePath(tc.in); got != tc.want {
			t.Errorf("normalizeBasePath(%q) = %q; want %q", tc.in, got, tc.want)
		}
	}
}

func TestGetBool(t *testing.T) {
	t.Setenv("FLAG", "YES")
	if !getbool("FLAG", false) {
		t.Error("YES not truthy")
	}
	t.Setenv("FLAG", "off")
	if getbool("FLAG", true) {
		t.Error("off not falsy")
	}
	t.Setenv("FLAG", "maybe")
	if !getbool("FLAG", true) {
		t.Error("unparsable value must keep the default")
	}
}
