// Package config loads and validates environment variables at startup.
// Fail-fast: if a required variable is missing, the process exits.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration for the history service.
type Config struct {
	Port                 string
	DatabaseURL          string
	RedisURL             string
	SweepIntervalHours   int // how often the pointer repair sweep fires
	FingerprintCacheTTLH int // redis fingerprint fast-path entry lifetime, hours
}

// Load reads environment variables (and an optional .env file for local
// runs) and returns a validated Config.
func Load() (*Config, error) {
	// Missing .env is the normal case outside local development.
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}

	port := os.Getenv("HISTORY_PORT")
	if port == "" {
		port = "8083"
	}

	sweep, err := positiveIntEnv("SWEEP_INTERVAL_HOURS", 6)
	if err != nil {
		return nil, err
	}
	cacheTTL, err := positiveIntEnv("FINGERPRINT_CACHE_TTL_HOURS", 24)
	if err != nil {
		return nil, err
	}

	return &Config{
		Port:                 port,
		DatabaseURL:          dbURL,
		RedisURL:             redisURL,
		SweepIntervalHours:   sweep,
		FingerprintCacheTTLH: cacheTTL,
	}, nil
}

func positiveIntEnv(name string, def int) (int, error) {
	s := os.Getenv(name)
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", name, s)
	}
	return v, nil
}
