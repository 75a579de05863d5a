// Package plexconfig loads executive configuration from the environment
// (spec §1's ambient "adapter configuration loading" is out of scope, but
// the executive's own tunables — log level/format, step cadence, the
// sample adapter's connection strings — still need a home), grounded on
// the teacher's internal/config package.
package plexconfig

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every environment-tunable setting the demo wiring
// (cmd/plexild) and the sample adapters read.
type Config struct {
	Logging LoggingConfig
	Clock   ClockConfig
	Redis   RedisConfig
	HTTP    HTTPConfig
}

// LoggingConfig controls plextelemetry's zerolog construction.
type LoggingConfig struct {
	Level  string // "debug", "info", "warn", "error"
	Format string // "json" or "console"
}

// ClockConfig controls pkg/plexclock's cron-driven tick cadence.
type ClockConfig struct {
	TickSchedule string // a robfig/cron expression, e.g. "@every 1s"
}

// RedisConfig configures the sample Redis-backed external interface
// (internal/adapters/rediface).
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// HTTPConfig configures the read-only introspection API
// (internal/httpapi).
type HTTPConfig struct {
	Addr string
}

// Load reads a .env file if present (ignored if absent — godotenv.Load
// returns an error when there is no file, which Load treats as "use the
// process environment as-is", matching the teacher's fire-and-forget
// godotenv.Load() call) and overlays environment variables atop defaults.
func Load() *Config {
	godotenv.Load()

	return &Config{
		Logging: LoggingConfig{
			Level:  getEnv("PLEXIL_LOG_LEVEL", "info"),
			Format: getEnv("PLEXIL_LOG_FORMAT", "console"),
		},
		Clock: ClockConfig{
			TickSchedule: getEnv("PLEXIL_TICK_SCHEDULE", "@every 1s"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("PLEXIL_REDIS_ADDR", "localhost:6379"),
			Password: getEnv("PLEXIL_REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("PLEXIL_REDIS_DB", 0),
		},
		HTTP: HTTPConfig{
			Addr: getEnv("PLEXIL_HTTP_ADDR", ":8761"),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultValue
	}
	return d
}
