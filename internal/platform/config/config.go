package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures the process configuration. Everything is read from the
// environment so main stays lean.
type Config struct {
	Addr string

	// DatabaseURL selects the PostgreSQL stores; empty falls back to the
	// in-memory stores (dev and test runs).
	DatabaseURL string

	Redis RedisConfig

	// KafkaBrokers enables the lifecycle event feed; empty disables it.
	KafkaBrokers []string
	KafkaTopic   string

	// SweepSchedule is the cron line of the retention sweep; empty disables it.
	SweepSchedule string
	// RetentionDays bounds how long terminal alerts are kept.
	RetentionDays int

	// BatchLimit bounds parallel entity evaluation in one batch call.
	BatchLimit int

	LogLevel string
}

// RedisConfig captures the optional distributed start-guard backend.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	cfg := Config{
		Addr:          envOr("GOVERN_ADDR", ":8080"),
		DatabaseURL:   os.Getenv("GOVERN_DATABASE_URL"),
		KafkaTopic:    envOr("GOVERN_KAFKA_TOPIC", "govern.engine.events"),
		SweepSchedule: os.Getenv("GOVERN_SWEEP_SCHEDULE"),
		RetentionDays: envInt("GOVERN_RETENTION_DAYS", 90),
		BatchLimit:    envInt("GOVERN_BATCH_LIMIT", 8),
		LogLevel:      envOr("GOVERN_LOG_LEVEL", "info"),
		Redis: RedisConfig{
			URL:          os.Getenv("GOVERN_REDIS_URL"),
			PoolSize:     envInt("GOVERN_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("GOVERN_REDIS_MIN_IDLE", 2),
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
	}

	if brokers := os.Getenv("GOVERN_KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}

	return cfg
}

func envOr(key, fallback string) string {
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
