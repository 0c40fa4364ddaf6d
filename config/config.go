package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/jravi291980-star/ravinderalgo/internal/adapters/logger"
)

// Config holds all process-level configuration. Strategy tunables are not
// here: they live in the params store so the dashboard can hot-reload them.
type Config struct {
	// Dhan API
	DhanClientID     string
	DhanAccessToken  string // May be empty at boot; TOKEN_REFRESH supplies it later
	DhanBaseURL      string
	DhanFeedURL      string
	DhanOrderFeedURL string
	ReconnectDelay   time.Duration

	// Instruments to trade, keyed by broker security id
	Watchlist map[string]string

	// Redis
	RedisURL      string
	ConsumerGroup string
	ConsumerName  string

	// Streams
	StreamTicks   string
	StreamCandles string
	StreamOrders  string
	StreamControl string

	// Database
	DBPath string

	// Engine loop
	PollBlock       time.Duration // Max wait in one feed read
	PollBatch       int           // Max messages per read
	MonitorInterval time.Duration // Periodic monitor pass even with no events

	// Exchange timezone for session times and daily keys
	Timezone *time.Location

	// Logging
	LogLevel logger.LogLevel
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var errs []string

	cfg.DhanClientID = getEnv("DHAN_CLIENT_ID", "")
	if cfg.DhanClientID == "" {
		errs = append(errs, "DHAN_CLIENT_ID must be set")
	}
	cfg.DhanAccessToken = getEnv("DHAN_ACCESS_TOKEN", "")
	cfg.DhanBaseURL = getEnv("DHAN_BASE_URL", "https://api.dhan.co/v2")
	cfg.DhanFeedURL = getEnv("DHAN_FEED_URL", "")
	cfg.DhanOrderFeedURL = getEnv("DHAN_ORDER_FEED_URL", "")
	cfg.ReconnectDelay = time.Duration(getEnvAsInt("RECONNECT_DELAY_S", 5)) * time.Second

	watchlist, err := parseWatchlist(getEnv("WATCHLIST", ""))
	if err != nil {
		errs = append(errs, err.Error())
	} else if len(watchlist) == 0 {
		errs = append(errs, "WATCHLIST must be set (securityID:SYMBOL pairs, comma separated)")
	}
	cfg.Watchlist = watchlist

	cfg.RedisURL = getEnv("REDIS_URL", "redis://localhost:6379/0")
	if cfg.RedisURL == "" {
		errs = append(errs, "REDIS_URL must be set")
	}
	cfg.ConsumerGroup = getEnv("REDIS_CONSUMER_GROUP", "algo-engine")
	cfg.ConsumerName = getEnv("REDIS_CONSUMER_NAME", "")
	if cfg.ConsumerName == "" {
		host, herr := os.Hostname()
		if herr != nil || host == "" {
			host = "engine-1"
		}
		cfg.ConsumerName = host
	}

	cfg.StreamTicks = getEnv("STREAM_TICKS", "stream:dhan:market")
	cfg.StreamCandles = getEnv("STREAM_CANDLES", "stream:dhan:candles")
	cfg.StreamOrders = getEnv("STREAM_ORDERS", "stream:dhan:orders")
	cfg.StreamControl = getEnv("STREAM_CONTROL", "stream:algo:control")

	cfg.DBPath = getEnv("DB_PATH", "./data/ravinderalgo.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	pollBlockMs := getEnvAsInt("POLL_BLOCK_MS", 100)
	if pollBlockMs <= 0 {
		errs = append(errs, "POLL_BLOCK_MS must be positive")
	}
	cfg.PollBlock = time.Duration(pollBlockMs) * time.Millisecond

	cfg.PollBatch = getEnvAsInt("POLL_BATCH", 200)
	if cfg.PollBatch <= 0 {
		errs = append(errs, "POLL_BATCH must be positive")
	}

	monitorIntervalMs := getEnvAsInt("MONITOR_INTERVAL_MS", 1000)
	if monitorIntervalMs <= 0 {
		errs = append(errs, "MONITOR_INTERVAL_MS must be positive")
	}
	cfg.MonitorInterval = time.Duration(monitorIntervalMs) * time.Millisecond

	tzName := getEnv("EXCHANGE_TZ", "Asia/Kolkata")
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid EXCHANGE_TZ %q: %v", tzName, err))
	}
	cfg.Timezone = loc

	logLevelStr := getEnv("LOG_LEVEL", "INFO")
	cfg.LogLevel = logger.ParseLevel(logLevelStr)

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// parseWatchlist parses "securityID:SYMBOL,securityID:SYMBOL" pairs.
func parseWatchlist(raw string) (map[string]string, error) {
	watchlist := make(map[string]string)
	if raw == "" {
		return watchlist, nil
	}
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("invalid WATCHLIST entry %q: want securityID:SYMBOL", entry)
		}
		watchlist[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	return watchlist, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
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
