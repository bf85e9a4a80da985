package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the booking API and its tools
type Config struct {
	// HTTP
	Port           string
	CORSOrigins    []string
	RequestTimeout time.Duration

	// Database
	DatabaseDriver string // sqlite | postgres
	DatabasePath   string
	DatabaseURL    string

	// Schedule dates and "now" are evaluated in this zone
	Timezone string

	// Route index cache
	RouteCacheSize int
	RouteCacheTTL  time.Duration

	// Booking events (disabled when no brokers are set)
	KafkaBrokers      []string
	KafkaBookingTopic string

	// Booking rate limit (disabled when no redis URL is set)
	RedisURL          string
	RedisPassword     string
	BookingRateLimit  int
	BookingRateWindow time.Duration
}

// Load reads configuration from environment variables with sensible defaults
func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8081"),
		CORSOrigins:    getEnvList("CORS_ORIGINS", []string{"http://localhost:5173"}),
		RequestTimeout: time.Duration(getEnvInt("REQUEST_TIMEOUT_SECONDS", 5)) * time.Second,

		DatabaseDriver: getEnv("DATABASE_DRIVER", "sqlite"),
		DatabasePath:   getEnv("SQLITE_DATABASE", "data/railnet.db"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),

		Timezone: getEnv("TIMEZONE", "UTC"),

		RouteCacheSize: getEnvInt("ROUTE_CACHE_SIZE", 256),
		RouteCacheTTL:  time.Duration(getEnvInt("ROUTE_CACHE_TTL_MINUTES", 60)) * time.Minute,

		KafkaBrokers:      getEnvList("KAFKA_BROKERS", nil),
		KafkaBookingTopic: getEnv("KAFKA_BOOKING_TOPIC", "railnet.bookings"),

		RedisURL:          getEnv("REDIS_URL", ""),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		BookingRateLimit:  getEnvInt("BOOKING_RATE_LIMIT", 10),
		BookingRateWindow: time.Duration(getEnvInt("BOOKING_RATE_WINDOW_SECONDS", 60)) * time.Second,
	}
}

// Location resolves the configured timezone
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated variable, dropping empty entries
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
