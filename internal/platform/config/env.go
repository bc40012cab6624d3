// Package config loads a flat, immutable configuration snapshot from
// the environment. Components accept a *Config value, never a global.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// parseDurationWithDays parses a duration string with extended support
// for a "d" (day) unit, e.g. "7d", "1d12h", on top of time.ParseDuration.
func parseDurationWithDays(s string) (time.Duration, error) {
	if !strings.Contains(s, "d") {
		return time.ParseDuration(s)
	}

	dayRegex := regexp.MustCompile(`(\d+(?:\.\d+)?)d`)
	converted := dayRegex.ReplaceAllStringFunc(s, func(match string) string {
		numStr := match[:len(match)-1]
		if num, err := strconv.ParseFloat(numStr, 64); err == nil {
			hours := num * 24
			return strconv.FormatFloat(hours, 'f', -1, 64) + "h"
		}
		return match
	})

	return time.ParseDuration(converted)
}

// GetEnv returns the value of an environment variable or a default.
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetBoolEnv returns the boolean value of an environment variable or a default.
func GetBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetIntEnv returns the integer value of an environment variable or a default.
func GetIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetDurationEnv returns the duration value of an environment variable or
// a default, accepting the extended "7d"-style day suffix.
func GetDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := parseDurationWithDays(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// MustGetEnv returns the value of an environment variable or panics.
func MustGetEnv(key string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	panic("required environment variable " + key + " is not set")
}

// Config is the immutable snapshot every component is built from.
type Config struct {
	Env  string // "development" | "production"
	Port int

	SecretKeyBase string
	OriginHost    string

	ZKB   ZKBConfig
	ESI   ESIConfig
	Cache CacheConfig
	Enrich EnrichConfig
	Store  StoreConfig
	Broker BrokerConfig
	Obs    ObsConfig

	Telemetry TelemetryConfig
}

// ZKBConfig configures the RedisQ poller and zKB API access (spec.md §4.1, §4.4).
type ZKBConfig struct {
	RedisQEndpoint string
	APIBase        string
	QueueID        string

	FastInterval time.Duration
	IdleInterval time.Duration

	BackoffInitial time.Duration
	BackoffFactor  float64
	BackoffMax     time.Duration

	RateCapacity   int
	RateRefillRate int // tokens per second

	CutoffWindow        time.Duration
	RecentlyFetchedTTL  time.Duration
}

// ESIConfig configures ESI access (spec.md §6).
type ESIConfig struct {
	Base      string
	UserAgent string

	RateCapacity   int
	RateRefillRate int
}

// CacheConfig configures the reference cache (spec.md §4.3).
type CacheConfig struct {
	LiveTTL      time.Duration
	ShipTypeTTL  time.Duration
	NegativeTTL  time.Duration
}

// EnrichConfig configures the enricher's attacker fan-out (spec.md §4.2).
type EnrichConfig struct {
	MinAttackersForParallel int
	MaxConcurrency          int
	TaskTimeout              time.Duration
}

// StoreConfig configures the EventStore (spec.md §4.6).
type StoreConfig struct {
	GCInterval         time.Duration
	MaxEventsPerSystem int
}

// BrokerConfig configures the fan-out broker (spec.md §4.9).
type BrokerConfig struct {
	SubscriberBufferSize int
	RedisEnabled         bool
	RedisAddr            string
}

// ObsConfig configures the observability summary cadence (spec.md §2).
type ObsConfig struct {
	SummaryInterval    time.Duration
	IndexSweepInterval time.Duration
}

// TelemetryConfig configures logging/tracing export.
type TelemetryConfig struct {
	Enable            bool
	ServiceName       string
	OTLPEndpoint      string
	LogLevel          string
	EnablePrettyLogs  bool
}

// Load reads the process environment into a Config, applying the
// literal defaults from spec.md §4, and validates production settings.
func Load() (*Config, error) {
	env := GetEnv("NODE_ENV", "development")

	cfg := &Config{
		Env:           env,
		Port:          GetIntEnv("PORT", 4004),
		SecretKeyBase: os.Getenv("SECRET_KEY_BASE"),
		OriginHost:    GetEnv("ORIGIN_HOST", ""),

		ZKB: ZKBConfig{
			RedisQEndpoint:     GetEnv("ZKB_REDISQ_ENDPOINT", "https://zkillredisq.stream/listen.php"),
			APIBase:            GetEnv("ZKB_API_BASE", "https://zkillboard.com/api"),
			QueueID:            GetEnv("ZKB_QUEUE_ID", ""),
			FastInterval:       GetDurationEnv("ZKB_FAST_INTERVAL", 1*time.Second),
			IdleInterval:       GetDurationEnv("ZKB_IDLE_INTERVAL", 5*time.Second),
			BackoffInitial:     GetDurationEnv("ZKB_BACKOFF_INITIAL", 1*time.Second),
			BackoffFactor:      2,
			BackoffMax:         GetDurationEnv("ZKB_BACKOFF_MAX", 30*time.Second),
			RateCapacity:       GetIntEnv("ZKB_RATE_CAPACITY", 100),
			RateRefillRate:     GetIntEnv("ZKB_RATE_REFILL", 50),
			CutoffWindow:       GetDurationEnv("ZKB_CUTOFF_WINDOW", 24*time.Hour),
			RecentlyFetchedTTL: GetDurationEnv("ZKB_RECENTLY_FETCHED_TTL", 5*time.Second),
		},

		ESI: ESIConfig{
			Base:           GetEnv("ESI_BASE", "https://esi.evetech.net/latest"),
			UserAgent:      GetEnv("ESI_USER_AGENT", "wandererkills/1.0 (contact: ops@example.invalid)"),
			RateCapacity:   GetIntEnv("ESI_RATE_CAPACITY", 100),
			RateRefillRate: GetIntEnv("ESI_RATE_REFILL", 100),
		},

		Cache: CacheConfig{
			LiveTTL:     GetDurationEnv("CACHE_LIVE_TTL", 1*time.Hour),
			ShipTypeTTL: GetDurationEnv("CACHE_SHIPTYPE_TTL", 24*time.Hour),
			NegativeTTL: GetDurationEnv("CACHE_NEGATIVE_TTL", 60*time.Second),
		},

		Enrich: EnrichConfig{
			MinAttackersForParallel: GetIntEnv("ENRICH_MIN_ATTACKERS_PARALLEL", 3),
			MaxConcurrency:          GetIntEnv("ENRICH_MAX_CONCURRENCY", 10),
			TaskTimeout:             GetDurationEnv("ENRICH_TASK_TIMEOUT", 30*time.Second),
		},

		Store: StoreConfig{
			GCInterval:         GetDurationEnv("STORE_GC_INTERVAL", 60*time.Second),
			MaxEventsPerSystem: GetIntEnv("STORE_MAX_EVENTS_PER_SYSTEM", 10000),
		},

		Broker: BrokerConfig{
			SubscriberBufferSize: GetIntEnv("BROKER_SUBSCRIBER_BUFFER", 64),
			RedisEnabled:         GetBoolEnv("BROKER_REDIS_ENABLED", false),
			RedisAddr:            GetEnv("BROKER_REDIS_ADDR", "localhost:6379"),
		},

		Obs: ObsConfig{
			SummaryInterval:    GetDurationEnv("OBS_SUMMARY_INTERVAL", 5*time.Minute),
			IndexSweepInterval: GetDurationEnv("SUBSCRIPTION_SWEEP_INTERVAL", 5*time.Minute),
		},

		Telemetry: TelemetryConfig{
			Enable:           GetBoolEnv("ENABLE_TELEMETRY", false),
			ServiceName:      GetEnv("SERVICE_NAME", "wandererkills"),
			OTLPEndpoint:     GetEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
			LogLevel:         GetEnv("LOG_LEVEL", "info"),
			EnablePrettyLogs: GetBoolEnv("ENABLE_PRETTY_LOGS", false),
		},
	}

	if cfg.Env == "production" {
		if len(cfg.SecretKeyBase) < 64 {
			return nil, fmt.Errorf("SECRET_KEY_BASE must be set to at least 64 bytes in production")
		}
	}

	return cfg, nil
}
