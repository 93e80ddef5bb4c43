// Package config loads gateway configuration from the environment,
// resolving every knob to a sane default so the process can boot with
// nothing set.
package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the fully-resolved set of gateway knobs, every one with a
// default so the process can boot with zero environment set.
type Config struct {
	Port      string
	APIPrefix string

	DatabaseURL string

	OpenSearchNode           string
	OpenSearchIndexVariants  string

	RedisHost     string
	RedisPort     string
	RedisPassword string

	ThrottleTTL   time.Duration
	ThrottleLimit int

	CacheTTLSearch time.Duration
	CacheTTLFacets time.Duration

	SearchSalesBoostFactor   float64
	SearchSalesBoostModifier string

	TimeoutRequest    time.Duration
	TimeoutOpenSearch time.Duration
	TimeoutDatabase   time.Duration
	TimeoutConnect    time.Duration

	CircuitErrorThreshold  float64
	CircuitResetTimeout    time.Duration
	CircuitVolumeThreshold int
}

// Load reads a .env file if present (never an error if absent) and
// resolves every field from the environment, defaulting otherwise.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment variables")
	}

	return &Config{
		Port:      getEnv("PORT", "8080"),
		APIPrefix: getEnv("API_PREFIX", "/api/v1"),

		DatabaseURL: getEnv("DATABASE_URL", "postgres://localhost:5432/catalog?sslmode=disable"),

		OpenSearchNode:          getEnv("OPENSEARCH_NODE", "http://localhost:9200"),
		OpenSearchIndexVariants: getEnv("OPENSEARCH_INDEX_VARIANTS", "variants"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		ThrottleTTL:   getDuration("THROTTLE_TTL", 60*time.Second),
		ThrottleLimit: getInt("THROTTLE_LIMIT", 100),

		CacheTTLSearch: getDuration("CACHE_TTL_SEARCH", 300*time.Second),
		CacheTTLFacets: getDuration("CACHE_TTL_FACETS", 600*time.Second),

		SearchSalesBoostFactor:   getFloat("SEARCH_SALES_BOOST_FACTOR", 1.2),
		SearchSalesBoostModifier: getEnv("SEARCH_SALES_BOOST_MODIFIER", "log1p"),

		TimeoutRequest:    getDuration("TIMEOUT_REQUEST", 30*time.Second),
		TimeoutOpenSearch: getDuration("TIMEOUT_OPENSEARCH", 15*time.Second),
		TimeoutDatabase:   getDuration("TIMEOUT_DATABASE", 10*time.Second),
		TimeoutConnect:    getDuration("TIMEOUT_CONNECT", 5*time.Second),

		CircuitErrorThreshold:  getFloat("CIRCUIT_ERROR_THRESHOLD", 0.5),
		CircuitResetTimeout:    getDuration("CIRCUIT_RESET_TIMEOUT", 30*time.Second),
		CircuitVolumeThreshold: getInt("CIRCUIT_VOLUME_THRESHOLD", 5),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}
