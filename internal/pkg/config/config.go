package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type PostgresConfig struct {
	Host     string
	Port     string
	DB       string
	Username string
	Password string
	SSLMode  string
	MaxConns int32
	MinConns int32
}

type RepositoriesConfig struct {
	Postgres PostgresConfig
}

type JWTConfig struct {
	SecretKey string
}

type PlacesConfig struct {
	BaseURL  string
	APIKey   string
	Timeout  time.Duration
	CacheTTL time.Duration
}

// Enabled reports whether an upstream place provider is configured.
func (p PlacesConfig) Enabled() bool {
	return p.APIKey != ""
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type RateLimitConfig struct {
	PerMinute int
	Burst     int
}

type LogConfig struct {
	Level      string
	Format     string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

type ObservabilityConfig struct {
	ServiceName  string
	MetricsAddr  string
	PprofAddr    string
	OTLPEndpoint string
}

type Config struct {
	Repositories      RepositoriesConfig
	ServerPort        string
	JWT               JWTConfig
	Places            PlacesConfig
	Kafka             KafkaConfig
	RateLimit         RateLimitConfig
	Log               LogConfig
	Observability     ObservabilityConfig
	CORSOrigins       []string
	PageSize          int
	CaptureTimezone   *time.Location
	ReconcileInterval time.Duration
}

func Load() (*Config, error) {
	tz := getEnvOrDefault("CAPTURE_TIMEZONE", "UTC")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid CAPTURE_TIMEZONE %q: %w", tz, err)
	}

	cfg := &Config{
		Repositories: RepositoriesConfig{
			Postgres: PostgresConfig{
				Host:     getEnvOrDefault("POSTGRES_HOST", "localhost"),
				Port:     getEnvOrDefault("POSTGRES_PORT", "5454"),
				DB:       getEnvOrDefault("POSTGRES_DB", "loci_routes"),
				Username: getEnvOrDefault("POSTGRES_USER", "postgres"),
				Password: getEnvOrDefault("POSTGRES_PASSWORD", ""),
				SSLMode:  getEnvOrDefault("POSTGRES_SSLMODE", "disable"),
				MaxConns: int32(getIntOrDefault("POSTGRES_MAX_CONNS", 30)),
				MinConns: int32(getIntOrDefault("POSTGRES_MIN_CONNS", 5)),
			},
		},
		ServerPort: getEnvOrDefault("SERVER_PORT", "8091"),
		JWT: JWTConfig{
			SecretKey: getEnvOrDefault("JWT_SECRET_KEY", ""),
		},
		Places: PlacesConfig{
			BaseURL:  getEnvOrDefault("PLACES_BASE_URL", "https://maps.googleapis.com/maps/api/place"),
			APIKey:   getEnvOrDefault("PLACES_API_KEY", ""),
			Timeout:  getDurationOrDefault("PLACES_TIMEOUT", 5*time.Second),
			CacheTTL: getDurationOrDefault("PLACES_CACHE_TTL", 10*time.Minute),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(getEnvOrDefault("KAFKA_BROKERS", "")),
			Topic:   getEnvOrDefault("KAFKA_TOPIC", "routes.events"),
		},
		RateLimit: RateLimitConfig{
			PerMinute: getIntOrDefault("RATE_LIMIT_PER_MINUTE", 120),
			Burst:     getIntOrDefault("RATE_LIMIT_BURST", 20),
		},
		Log: LogConfig{
			Level:      getEnvOrDefault("LOG_LEVEL", "info"),
			Format:     getEnvOrDefault("LOG_FORMAT", "console"),
			File:       getEnvOrDefault("LOG_FILE", ""),
			MaxSizeMB:  getIntOrDefault("LOG_MAX_SIZE_MB", 100),
			MaxBackups: getIntOrDefault("LOG_MAX_BACKUPS", 5),
			MaxAgeDays: getIntOrDefault("LOG_MAX_AGE_DAYS", 28),
		},
		Observability: ObservabilityConfig{
			ServiceName:  getEnvOrDefault("SERVICE_NAME", "loci-routes"),
			MetricsAddr:  getEnvOrDefault("METRICS_ADDR", ":9092"),
			PprofAddr:    getEnvOrDefault("PPROF_ADDR", ":6060"),
			OTLPEndpoint: getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "otel-collector:4318"),
		},
		CORSOrigins:       splitList(getEnvOrDefault("CORS_ALLOW_ORIGINS", "http://localhost:3000,http://localhost:5173")),
		PageSize:          getIntOrDefault("PAGE_SIZE", 10),
		CaptureTimezone:   loc,
		ReconcileInterval: getDurationOrDefault("RECONCILE_INTERVAL", 5*time.Minute),
	}

	if cfg.Repositories.Postgres.Password == "" {
		return nil, fmt.Errorf("POSTGRES_PASSWORD environment variable is required")
	}
	if cfg.JWT.SecretKey == "" {
		return nil, fmt.Errorf("JWT_SECRET_KEY environment variable is required")
	}
	if cfg.PageSize < 1 || cfg.PageSize > 100 {
		return nil, fmt.Errorf("PAGE_SIZE must be between 1 and 100, got %d", cfg.PageSize)
	}

	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
