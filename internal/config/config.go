// Package config loads the process configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	RedisURL    string
	JWTSecret   string
	LogLevel    string
	LogFormat   string

	NLPAPIURL   string
	NLPAPIKey   string
	NLPProvider string
	NLPTimeout  time.Duration

	AnalysisWorkers   int
	AnalysisQueueSize int

	MaxClientsPerPresentation int
	SubmitRatePerSecond       float64
	SubmitBurst               int
	// SubmitDebounceWindow > 0 enables the duplicate-submission debounce.
	// Off by default: the upstream behavior is last-write-wins.
	SubmitDebounceWindow time.Duration
}

func Load() (*Config, error) {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", ""),
		JWTSecret:   getEnv("JWT_SECRET", ""),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "text"),
		NLPAPIURL:   getEnv("NLP_API_URL", ""),
		NLPAPIKey:   getEnv("NLP_API_KEY", ""),
		NLPProvider: getEnv("NLP_PROVIDER", "default"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	// NLP config: key without URL is a misconfiguration
	if cfg.NLPAPIKey != "" && cfg.NLPAPIURL == "" {
		return nil, fmt.Errorf("NLP_API_URL is required when NLP_API_KEY is set")
	}

	var err error
	if cfg.NLPTimeout, err = getDurationEnv("NLP_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.AnalysisWorkers, err = getIntEnv("ANALYSIS_WORKERS", 4); err != nil {
		return nil, err
	}
	if cfg.AnalysisQueueSize, err = getIntEnv("ANALYSIS_QUEUE_SIZE", 256); err != nil {
		return nil, err
	}
	if cfg.MaxClientsPerPresentation, err = getIntEnv("MAX_CLIENTS_PER_PRESENTATION", 500); err != nil {
		return nil, err
	}
	if cfg.SubmitBurst, err = getIntEnv("SUBMIT_BURST", 5); err != nil {
		return nil, err
	}
	if cfg.SubmitRatePerSecond, err = getFloatEnv("SUBMIT_RATE_PER_SECOND", 1); err != nil {
		return nil, err
	}
	if cfg.SubmitDebounceWindow, err = getDurationEnv("SUBMIT_DEBOUNCE_WINDOW", 0); err != nil {
		return nil, err
	}

	if cfg.AnalysisWorkers < 1 {
		return nil, fmt.Errorf("ANALYSIS_WORKERS must be at least 1")
	}
	if cfg.AnalysisQueueSize < 1 {
		return nil, fmt.Errorf("ANALYSIS_QUEUE_SIZE must be at least 1")
	}
	if cfg.MaxClientsPerPresentation < 1 {
		return nil, fmt.Errorf("MAX_CLIENTS_PER_PRESENTATION must be at least 1")
	}
	if cfg.SubmitRatePerSecond <= 0 {
		return nil, fmt.Errorf("SUBMIT_RATE_PER_SECOND must be positive")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func getFloatEnv(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number: %w", key, err)
	}
	return f, nil
}

func getDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration like 10s: %w", key, err)
	}
	return d, nil
}
