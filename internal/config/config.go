package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	ServiceName string
	ServicePort int
	Database    DatabaseConfig
	Auth        AuthConfig
	RabbitMQ    RabbitMQConfig
	Validation  ValidationConfig
	Anomaly     AnomalyConfig
	CORS        CORSConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL      string
	MaxConns int
}

// AuthConfig holds token signing settings
type AuthConfig struct {
	JWTSecret    string
	JWTExpiresIn time.Duration
}

// RabbitMQConfig holds RabbitMQ connection and queue settings.
// An empty URL disables event publishing in the API process.
type RabbitMQConfig struct {
	URL                  string
	EventsExchange       string
	SubmissionExchange   string
	SubmissionQueue      string
	SubmissionRoutingKey string
	DLQQueue             string
	PrefetchCount        int
}

// ValidationConfig holds validation settings
type ValidationConfig struct {
	ReadingDateToleranceMinutes int
}

// AnomalyConfig holds anomaly detection settings
type AnomalyConfig struct {
	DefaultThreshold  float64
	BaselineSize      int
	LookupConcurrency int
}

// CORSConfig holds allowed origins for browser clients
type CORSConfig struct {
	AllowOrigins []string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	expiresIn, err := parseExpiry(getEnv("JWT_EXPIRES_IN", "90d"))
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_EXPIRES_IN: %w", err)
	}

	cfg := &Config{
		ServiceName: getEnv("SERVICE_NAME", "meter-reading-api"),
		ServicePort: getEnvAsInt("PORT", 3000),
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			MaxConns: getEnvAsInt("DATABASE_MAX_CONNS", 0),
		},
		Auth: AuthConfig{
			JWTSecret:    getEnv("JWT_SECRET", ""),
			JWTExpiresIn: expiresIn,
		},
		RabbitMQ: RabbitMQConfig{
			URL:                  getEnv("RABBITMQ_URL", ""),
			EventsExchange:       getEnv("RABBITMQ_EVENTS_EXCHANGE", "meter-reading.events.exchange"),
			SubmissionExchange:   getEnv("RABBITMQ_SUBMISSION_EXCHANGE", "meter-reading.submissions.exchange"),
			SubmissionQueue:      getEnv("RABBITMQ_SUBMISSION_QUEUE", "meter-reading.submissions.queue"),
			SubmissionRoutingKey: getEnv("RABBITMQ_SUBMISSION_ROUTING_KEY", "reading.submitted"),
			DLQQueue:             getEnv("RABBITMQ_DLQ_QUEUE", "meter-reading.submissions.dlq"),
			PrefetchCount:        getEnvAsInt("RABBITMQ_PREFETCH", 10),
		},
		Validation: ValidationConfig{
			ReadingDateToleranceMinutes: getEnvAsInt("VALIDATION_READING_DATE_TOLERANCE_MINUTES", 1440),
		},
		Anomaly: AnomalyConfig{
			DefaultThreshold:  getEnvAsFloat("ANOMALY_DEFAULT_THRESHOLD", 50),
			BaselineSize:      getEnvAsInt("ANOMALY_BASELINE_SIZE", 3),
			LookupConcurrency: getEnvAsInt("ANOMALY_LOOKUP_CONCURRENCY", 8),
		},
		CORS: CORSConfig{
			AllowOrigins: getEnvAsList("CORS_ALLOW_ORIGINS", []string{"*"}),
		},
	}

	// Validate required fields
	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required but not set in environment variables")
	}

	return cfg, nil
}

// LoadAPI loads configuration for the HTTP process, which additionally needs a signing secret.
func LoadAPI() (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	if cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required but not set in environment variables")
	}
	return cfg, nil
}

// LoadWorker loads configuration for the submission worker, which cannot run without RabbitMQ.
func LoadWorker() (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	if cfg.ServiceName == "meter-reading-api" {
		cfg.ServiceName = "meter-reading-worker"
	}
	if cfg.RabbitMQ.URL == "" {
		return nil, fmt.Errorf("RABBITMQ_URL is required but not set in environment variables")
	}
	return cfg, nil
}

// parseExpiry accepts Go durations ("36h") and whole days ("90d").
func parseExpiry(value string) (time.Duration, error) {
	if days, ok := strings.CutSuffix(value, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("bad day count %q", value)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("expiry must be positive, got %q", value)
	}
	return d, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
