// Package config builds all runtime configuration from the environment so
// main stays lean and services receive explicit structs at construction.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full runtime configuration for the distribution service.
type Config struct {
	Addr          string
	DatabaseURL   string
	JWTSigningKey string

	Redis    RedisConfig
	Kafka    KafkaConfig
	Registry RegistryConfig
	Royalty  RoyaltyConfig
	Worker   WorkerConfig

	// WebhookMasterSecret seeds per-platform webhook signing keys.
	WebhookMasterSecret string

	// Adapters maps platform codes to delivery API credentials. Platforms
	// without a configured endpoint get the in-process sandbox adapter.
	Adapters map[string]AdapterConfig

	// Seed optionally preloads one published release into the in-memory
	// catalog; used by demos and the end-to-end suite.
	Seed SeedConfig
}

// SeedConfig identifies a release to preload into the catalog at startup.
type SeedConfig struct {
	ReleaseID string
	ArtistID  string
}

// AdapterConfig points one platform adapter at its delivery API.
type AdapterConfig struct {
	BaseURL string
	APIKey  string
}

// RedisConfig captures connection tuning for the shared Redis client.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig points the job queue at a broker set and topic.
type KafkaConfig struct {
	Brokers       []string
	JobsTopic     string
	ConsumerGroup string
}

// RegistryConfig identifies the ISRC registrant this deployment issues for.
type RegistryConfig struct {
	CountryCode    string
	RegistrantCode string
}

// RoyaltyConfig holds the percentage splits applied to gross revenue.
type RoyaltyConfig struct {
	PlatformFeePercent float64
	ServiceFeePercent  float64
}

// WorkerConfig tunes the submission worker pool.
type WorkerConfig struct {
	Concurrency    int
	AdapterTimeout time.Duration
	RetryBudget    int
}

// FromEnv builds a Config from environment variables with development defaults.
func FromEnv() Config {
	return Config{
		Addr:          envOr("TUNECAST_ADDR", ":8080"),
		DatabaseURL:   os.Getenv("TUNECAST_DATABASE_URL"),
		JWTSigningKey: envOr("TUNECAST_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		Redis: RedisConfig{
			URL:          os.Getenv("TUNECAST_REDIS_URL"),
			PoolSize:     envInt("TUNECAST_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("TUNECAST_REDIS_MIN_IDLE", 2),
			DialTimeout:  envDuration("TUNECAST_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("TUNECAST_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("TUNECAST_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:       splitNonEmpty(os.Getenv("TUNECAST_KAFKA_BROKERS")),
			JobsTopic:     envOr("TUNECAST_KAFKA_JOBS_TOPIC", "tunecast.distribution.jobs"),
			ConsumerGroup: envOr("TUNECAST_KAFKA_CONSUMER_GROUP", "tunecast-submission-workers"),
		},
		Registry: RegistryConfig{
			CountryCode:    envOr("TUNECAST_ISRC_COUNTRY", "US"),
			RegistrantCode: os.Getenv("TUNECAST_ISRC_REGISTRANT"),
		},
		Royalty: RoyaltyConfig{
			PlatformFeePercent: envFloat("TUNECAST_PLATFORM_FEE_PERCENT", 15.0),
			ServiceFeePercent:  envFloat("TUNECAST_SERVICE_FEE_PERCENT", 10.0),
		},
		Worker: WorkerConfig{
			Concurrency:    envInt("TUNECAST_WORKER_CONCURRENCY", 4),
			AdapterTimeout: envDuration("TUNECAST_ADAPTER_TIMEOUT", 30*time.Second),
			RetryBudget:    envInt("TUNECAST_RETRY_BUDGET", 3),
		},
		WebhookMasterSecret: envOr("TUNECAST_WEBHOOK_MASTER_SECRET", "dev-webhook-secret"),
		Adapters:            adaptersFromEnv(),
		Seed: SeedConfig{
			ReleaseID: os.Getenv("TUNECAST_SEED_RELEASE_ID"),
			ArtistID:  os.Getenv("TUNECAST_SEED_ARTIST_ID"),
		},
	}
}

// platformCodes mirrors the platforms the distribution package supports.
var platformCodes = []string{"spotify", "apple_music", "youtube_music", "amazon_music", "deezer", "tidal"}

func adaptersFromEnv() map[string]AdapterConfig {
	out := make(map[string]AdapterConfig, len(platformCodes))
	for _, code := range platformCodes {
		prefix := "TUNECAST_ADAPTER_" + strings.ToUpper(code)
		url := os.Getenv(prefix + "_URL")
		if url == "" {
			continue
		}
		out[code] = AdapterConfig{
			BaseURL: url,
			APIKey:  os.Getenv(prefix + "_KEY"),
		}
	}
	return out
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func splitNonEmpty(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
