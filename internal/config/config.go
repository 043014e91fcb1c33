package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"
)

type Config struct {
	ShardConfigPath   string
	ScoringConfigPath string
	Port              string
	NumShards         int
	LogLevel          string
	QueryTimeout      time.Duration

	// Heat-map cache; an empty RedisAddr disables it.
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	HeatmapCacheTTL time.Duration

	// Notifications
	NotifyRetryMax      int
	NotifyRetryBackoff  time.Duration
	NotifyRPCTimeout    time.Duration
	BreakerMaxFailures  int
	BreakerResetTimeout time.Duration
	WatchPollInterval   time.Duration
	WatchBatchSize      int

	// ReminderCron is a standard 5-field cron spec; empty disables reminders.
	ReminderCron string
}

func Load() Config {
	return Config{
		ShardConfigPath:     getEnvRequired("SHARD_CONFIG_PATH"),
		ScoringConfigPath:   getEnv("SCORING_CONFIG_PATH", ""),
		Port:                getEnv("PORT", "8080"),
		NumShards:           getEnvInt("NUM_SHARDS", 16),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		QueryTimeout:        getEnvDuration("QUERY_TIMEOUT", 5*time.Second),
		RedisAddr:           getEnv("REDIS_ADDR", ""),
		RedisPassword:       getEnv("REDIS_PASSWORD", ""),
		RedisDB:             getEnvInt("REDIS_DB", 0),
		HeatmapCacheTTL:     getEnvDuration("HEATMAP_CACHE_TTL", 5*time.Minute),
		NotifyRetryMax:      getEnvInt("NOTIFY_RETRY_MAX", 3),
		NotifyRetryBackoff:  getEnvDuration("NOTIFY_RETRY_BACKOFF", 100*time.Millisecond),
		NotifyRPCTimeout:    getEnvDuration("NOTIFY_RPC_TIMEOUT", 5*time.Second),
		BreakerMaxFailures:  getEnvInt("BREAKER_MAX_FAILURES", 5),
		BreakerResetTimeout: getEnvDuration("BREAKER_RESET_TIMEOUT", 30*time.Second),
		WatchPollInterval:   getEnvDuration("WATCH_POLL_INTERVAL", time.Second),
		WatchBatchSize:      getEnvInt("WATCH_BATCH_SIZE", 100),
		ReminderCron:        getEnv("REMINDER_CRON", ""),
	}
}

// SlogLevel maps LogLevel to a slog level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnvRequired(key string) string {
	v := os.Getenv(key)
	if v == "" {
		panic("required environment variable " + key + " is not set")
	}
	return v
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			slog.Warn("invalid integer env var, using default", "key", key, "value", v, "error", err)
			return fallback
		}
		return n
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			slog.Warn("invalid duration env var, using default", "key", key, "value", v, "error", err)
			return fallback
		}
		return d
	}
	return fallback
}
