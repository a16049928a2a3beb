// Package config loads and validates application configuration from
// environment variables.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Server settings.
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Persistence.
	DatabasePath string

	// Judge service settings.
	JudgeBaseURL           string
	JudgeAPIKey            string
	JudgeModel             string
	JudgeTimeout           time.Duration
	JudgeRequestsPerMinute int

	// Sandbox settings.
	SandboxWorkRoot string // "" uses the system temp dir.
	CloneTimeout    time.Duration
	TestTimeout     time.Duration
	TestCommand     string // "" auto-detects per repository.

	// Operational settings.
	LogLevel            string
	MaxRequestBodyBytes int64
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	return Config{
		Port:                   envInt("TRACELAB_PORT", 8080),
		ReadTimeout:            envDuration("TRACELAB_READ_TIMEOUT", 30*time.Second),
		WriteTimeout:           envDuration("TRACELAB_WRITE_TIMEOUT", 10*time.Minute),
		DatabasePath:           envStr("TRACELAB_DB_PATH", "tracelab.db"),
		JudgeBaseURL:           envStr("TRACELAB_JUDGE_BASE_URL", "https://api.openai.com/v1"),
		JudgeAPIKey:            envStr("OPENAI_API_KEY", ""),
		JudgeModel:             envStr("TRACELAB_JUDGE_MODEL", "gpt-4o-mini"),
		JudgeTimeout:           envDuration("TRACELAB_JUDGE_TIMEOUT", 60*time.Second),
		JudgeRequestsPerMinute: envInt("TRACELAB_JUDGE_RPM", 60),
		SandboxWorkRoot:        envStr("TRACELAB_SANDBOX_ROOT", ""),
		CloneTimeout:           envDuration("TRACELAB_CLONE_TIMEOUT", 2*time.Minute),
		TestTimeout:            envDuration("TRACELAB_TEST_TIMEOUT", 5*time.Minute),
		TestCommand:            envStr("TRACELAB_TEST_COMMAND", ""),
		LogLevel:               envStr("TRACELAB_LOG_LEVEL", "info"),
		MaxRequestBodyBytes:    int64(envInt("TRACELAB_MAX_REQUEST_BODY_BYTES", 4*1024*1024)),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
