// Package config reads process configuration from the environment.
package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Detector transports.
const (
	TransportGRPC = "grpc"
	TransportHTTP = "http"
	TransportNone = "none"
)

// Rule book sources.
const (
	RulesEmbedded = "embedded"
	RulesFile     = "file"
	RulesMongo    = "mongo"
)

// Database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverNone     = "none"
)

// Config holds everything main needs to wire the service.
type Config struct {
	HTTPAddr        string
	ShutdownTimeout time.Duration
	LogLevel        string
	AllowedOrigins  []string

	ConfidenceThreshold   float64
	DetectorTransport     string
	DetectorAddr          string
	DetectorURL           string
	DetectorTimeout       time.Duration
	DetectorMaxConcurrent int

	RulesSource   string
	RulesFile     string
	MongoURI      string
	MongoDatabase string

	DatabaseDriver string
	DatabaseDSN    string

	RedisAddr string
	CacheTTL  time.Duration

	JWTSecret   string
	JWTAudience string
}

// Load reads a .env file when present, then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Config from the current environment only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		HTTPAddr:          getEnv("HTTP_ADDR", ":8080"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		AllowedOrigins:    splitList(getEnv("ALLOWED_ORIGINS", "*")),
		DetectorTransport: strings.ToLower(getEnv("DETECTOR_TRANSPORT", TransportGRPC)),
		DetectorAddr:      getEnv("DETECTOR_ADDR", "detector:50051"),
		DetectorURL:       getEnv("DETECTOR_URL", "http://detector:5000"),
		RulesSource:       strings.ToLower(getEnv("RULES_SOURCE", RulesEmbedded)),
		RulesFile:         os.Getenv("RULES_FILE"),
		MongoURI:          getEnv("MONGO_URI", "mongodb://mongo:27017"),
		MongoDatabase:     getEnv("MONGO_DATABASE", "wastesort"),
		DatabaseDriver:    strings.ToLower(getEnv("DATABASE_DRIVER", DriverPostgres)),
		DatabaseDSN:       os.Getenv("DATABASE_DSN"),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		JWTAudience:       os.Getenv("JWT_AUDIENCE"),
	}

	var err error
	if cfg.ConfidenceThreshold, err = getFloat("CONFIDENCE_THRESHOLD", 0.3); err != nil {
		return nil, err
	}
	if math.IsNaN(cfg.ConfidenceThreshold) || cfg.ConfidenceThreshold < 0 || cfg.ConfidenceThreshold >= 1 {
		return nil, fmt.Errorf("CONFIDENCE_THRESHOLD must be in [0, 1), got %v", cfg.ConfidenceThreshold)
	}
	if cfg.DetectorMaxConcurrent, err = getInt("DETECTOR_MAX_CONCURRENCY", 1); err != nil {
		return nil, err
	}
	if cfg.DetectorMaxConcurrent < 1 {
		return nil, fmt.Errorf("DETECTOR_MAX_CONCURRENCY must be at least 1, got %d", cfg.DetectorMaxConcurrent)
	}
	if cfg.DetectorTimeout, err = getDuration("DETECTOR_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = getDuration("SHUTDOWN_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.CacheTTL, err = getDuration("CACHE_TTL", 10*time.Minute); err != nil {
		return nil, err
	}

	if err := oneOf("DETECTOR_TRANSPORT", cfg.DetectorTransport, TransportGRPC, TransportHTTP, TransportNone); err != nil {
		return nil, err
	}
	if err := oneOf("RULES_SOURCE", cfg.RulesSource, RulesEmbedded, RulesFile, RulesMongo); err != nil {
		return nil, err
	}
	if cfg.RulesSource == RulesFile && cfg.RulesFile == "" {
		return nil, fmt.Errorf("RULES_FILE is required when RULES_SOURCE=%s", RulesFile)
	}
	if err := oneOf("DATABASE_DRIVER", cfg.DatabaseDriver, DriverPostgres, DriverSQLite, DriverNone); err != nil {
		return nil, err
	}
	if cfg.DatabaseDSN == "" {
		switch cfg.DatabaseDriver {
		case DriverPostgres:
			cfg.DatabaseDSN = "host=postgres user=postgres password=postgres dbname=wastesort port=5432 sslmode=disable"
		case DriverSQLite:
			cfg.DatabaseDSN = "wastesort.db"
		}
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func getFloat(key string, fallback float64) (float64, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func getInt(key string, fallback int) (int, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func oneOf(key, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %s, got %q", key, strings.Join(allowed, ", "), value)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
