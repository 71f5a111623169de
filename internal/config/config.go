package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the application configuration
type Config struct {
	Service ServiceConfig `yaml:"service"`
	Store   StoreConfig   `yaml:"store"`
	NATS    NATSConfig    `yaml:"nats"`
	Redis   RedisConfig   `yaml:"redis"`
	Cache   CacheConfig   `yaml:"cache"`
	Auth    AuthConfig    `yaml:"auth"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServiceConfig holds service-level configuration
type ServiceConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Port    int    `yaml:"port"`
	Domain  string `yaml:"domain"` // the server domain local accounts belong to
}

// StoreConfig selects the durable offline-presence backend
type StoreConfig struct {
	Backend string `yaml:"backend"` // "nats" or "redis"
}

// NATSConfig holds NATS configuration
type NATSConfig struct {
	Embedded      bool   `yaml:"embedded"`
	ServerURL     string `yaml:"server_url"`
	DataDir       string `yaml:"data_dir"`
	KVBucket      string `yaml:"kv_bucket"`
	DeliverPrefix string `yaml:"deliver_prefix"` // subject prefix for outgoing presences
	StartTimeout  string `yaml:"start_timeout"`
}

// RedisConfig holds Redis configuration for the alternate store backend
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	Retention string `yaml:"retention"` // offline row expiry, "0" keeps forever
}

// CacheConfig holds Ristretto cache configuration
type CacheConfig struct {
	MaxCost     int64 `yaml:"max_cost"`     // Maximum memory cost in bytes
	NumCounters int64 `yaml:"num_counters"` // Number of counters for TinyLFU
	BufferItems int64 `yaml:"buffer_items"` // Buffer size for async operations
	Metrics     bool  `yaml:"metrics"`      // Enable cache metrics
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	JWTIssuer string `yaml:"jwt_issuer"`
	JWTTTL    string `yaml:"jwt_ttl"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load loads configuration from environment variables with defaults
func Load() (*Config, error) {
	config := &Config{
		Service: ServiceConfig{
			Name:    getEnvOrDefault("SERVICE_NAME", "presenced"),
			Version: getEnvOrDefault("SERVICE_VERSION", "v1"),
			Port:    getEnvIntOrDefault("SERVICE_PORT", 8080),
			Domain:  getEnvOrDefault("SERVER_DOMAIN", "localhost"),
		},
		Store: StoreConfig{
			Backend: getEnvOrDefault("STORE_BACKEND", "nats"),
		},
		NATS: NATSConfig{
			Embedded:      getEnvBoolOrDefault("NATS_EMBEDDED", true),
			ServerURL:     getEnvOrDefault("NATS_SERVER_URL", ""),
			DataDir:       getEnvOrDefault("NATS_DATA_DIR", "./nats-data"),
			KVBucket:      getEnvOrDefault("NATS_KV_BUCKET", "offline-presence"),
			DeliverPrefix: getEnvOrDefault("NATS_DELIVER_PREFIX", "presence.deliver"),
			StartTimeout:  getEnvOrDefault("NATS_START_TIMEOUT", "30s"),
		},
		Redis: RedisConfig{
			Addr:      getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password:  getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:        getEnvIntOrDefault("REDIS_DB", 0),
			Retention: getEnvOrDefault("REDIS_RETENTION", "0"),
		},
		Cache: CacheConfig{
			MaxCost:     getEnvInt64OrDefault("CACHE_MAX_COST", 1000000), // 1MB default
			NumCounters: getEnvInt64OrDefault("CACHE_NUM_COUNTERS", 100000),
			BufferItems: getEnvInt64OrDefault("CACHE_BUFFER_ITEMS", 64),
			Metrics:     getEnvBoolOrDefault("CACHE_METRICS", true),
		},
		Auth: AuthConfig{
			JWTSecret: getEnvOrDefault("JWT_SECRET", ""),
			JWTIssuer: getEnvOrDefault("JWT_ISSUER", "presenced"),
			JWTTTL:    getEnvOrDefault("JWT_TTL", "24h"),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}

	// Validate required fields
	if config.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}
	if config.Store.Backend != "nats" && config.Store.Backend != "redis" {
		return nil, fmt.Errorf("invalid store backend %q", config.Store.Backend)
	}

	return config, nil
}

// GetRetention returns the Redis row retention as duration
func (c *RedisConfig) GetRetention() (time.Duration, error) {
	return time.ParseDuration(normalizeDuration(c.Retention))
}

// GetJWTTTL returns JWT TTL as duration
func (c *AuthConfig) GetJWTTTL() (time.Duration, error) {
	return time.ParseDuration(c.JWTTTL)
}

func normalizeDuration(s string) string {
	if s == "0" {
		return "0s"
	}
	return s
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64OrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
