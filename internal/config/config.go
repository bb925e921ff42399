package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// MaxSyncConcurrency - верхняя граница одновременных запросов к панели
const MaxSyncConcurrency = 20

type Config struct {
	BotToken     string
	SuperAdminID string

	DBDriver string
	DBDsn    string

	RemnawaveURL   string
	RemnawaveToken string
	RemnawaveMode  string
	RemnawaveRPS   float64

	SyncConcurrency int
	SyncBatchSize   int
	SyncBatchPause  time.Duration
	SyncTimes       []string
	SyncAutoEnabled bool
	TimeZone        string

	RedisAddr    string
	SyncLockFile string

	HealthAddr string

	LogFile  string
	LogLevel string
}

// Load читает конфигурацию из окружения, предварительно подгружая .env если он есть
func Load() *Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	cfg := &Config{
		BotToken:     os.Getenv("BOT_TOKEN"),
		SuperAdminID: os.Getenv("SUPER_ADMIN_ID"),

		DBDriver: getEnvOrDefault("DB_DRIVER", "sqlite"),
		DBDsn:    getEnvOrDefault("DB_DSN", "/data/remnabot.db"),

		RemnawaveURL:   strings.TrimRight(os.Getenv("REMNAWAVE_URL"), "/"),
		RemnawaveToken: os.Getenv("REMNAWAVE_TOKEN"),
		RemnawaveMode:  getEnvOrDefault("REMNAWAVE_MODE", "remote"),
		RemnawaveRPS:   getFloatOrDefault("REMNAWAVE_RPS", 10),

		SyncConcurrency: getIntOrDefault("SYNC_CONCURRENCY", 10),
		SyncBatchSize:   getIntOrDefault("SYNC_BATCH_SIZE", 50),
		SyncBatchPause:  getDurationOrDefault("SYNC_BATCH_PAUSE", 500*time.Millisecond),
		SyncTimes:       splitList(getEnvOrDefault("SYNC_TIMES", "03:00")),
		SyncAutoEnabled: getBoolOrDefault("SYNC_AUTO_ENABLED", false),
		TimeZone:        getEnvOrDefault("TZ_NAME", "UTC"),

		RedisAddr:    os.Getenv("REDIS_ADDR"),
		SyncLockFile: os.Getenv("SYNC_LOCK_FILE"),

		HealthAddr: getEnvOrDefault("HEALTH_ADDR", "0.0.0.0:8080"),

		LogFile:  os.Getenv("LOG_FILE"),
		LogLevel: getEnvOrDefault("LOG_LEVEL", "info"),
	}

	if cfg.SyncConcurrency < 1 {
		cfg.SyncConcurrency = 1
	}
	if cfg.SyncConcurrency > MaxSyncConcurrency {
		cfg.SyncConcurrency = MaxSyncConcurrency
	}
	if cfg.SyncBatchSize < 1 {
		cfg.SyncBatchSize = 50
	}

	return cfg
}

// Location возвращает часовой пояс расписания, UTC при неверном имени
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		slog.Warn("Unknown time zone, falling back to UTC", "tz", c.TimeZone, "error", err)
		return time.UTC
	}
	return loc
}

// HasPanel сообщает, заданы ли реквизиты панели
func (c *Config) HasPanel() bool {
	return c.RemnawaveURL != "" && c.RemnawaveToken != ""
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		slog.Warn("Invalid integer in environment", "key", key, "value", value)
		return defaultValue
	}
	return n
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		slog.Warn("Invalid number in environment", "key", key, "value", value)
		return defaultValue
	}
	return f
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		slog.Warn("Invalid boolean in environment", "key", key, "value", value)
		return defaultValue
	}
	return b
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		slog.Warn("Invalid duration in environment", "key", key, "value", value)
		return defaultValue
	}
	return d
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
