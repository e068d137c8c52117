package config

import (
	"os"
	"strconv"
	"time"
)

type BreakerConfig struct {
	FailureThreshold int
	Cooldown         time.Duration
	MaxCooldown      time.Duration
}

type RetryConfig struct {
	DefaultMaxAttempts         int
	AttemptTimeout             time.Duration
	BackoffBase                time.Duration
	CountCancellationAsFailure bool
}

func LoadBreakerConfig() *BreakerConfig {
	return &BreakerConfig{
		FailureThreshold: getEnvAsInt("BREAKER_FAILURE_THRESHOLD", 5),
		Cooldown:         getEnvAsDuration("BREAKER_COOLDOWN", 30*time.Second),
		MaxCooldown:      getEnvAsDuration("BREAKER_MAX_COOLDOWN", 8*time.Minute),
	}
}

func LoadRetryConfig() *RetryConfig {
	return &RetryConfig{
		DefaultMaxAttempts:         getEnvAsInt("RETRY_DEFAULT_MAX_ATTEMPTS", 3),
		AttemptTimeout:             getEnvAsDuration("RETRY_ATTEMPT_TIMEOUT", 10*time.Second),
		BackoffBase:                getEnvAsDuration("RETRY_BACKOFF_BASE", 500*time.Millisecond),
		CountCancellationAsFailure: getEnvAsBool("RETRY_COUNT_CANCELLATION_AS_FAILURE", false),
	}
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			return duration
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if boolVal, err := strconv.ParseBool(val); err == nil {
			return boolVal
		}
	}
	return defaultVal
}
