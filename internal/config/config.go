// Package config loads configuration from environment variables, following
// the same getEnv/getIntEnv/getDurationEnv helper pattern used across the
// rest of this codebase's services.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds everything a stage binary needs to start.
type Config struct {
	Redis         RedisConfig
	Database      DatabaseConfig
	Observability ObservabilityConfig
	Arbitrage     ArbitrageConfig
	Polling       PollingConfig
	Kalshi        KalshiConfig
	Polymarket    PolymarketConfig
	OpenAI        OpenAIConfig
}

type RedisConfig struct {
	URL             string
	Password        string
	DB              int
	PoolSize        int
	MinIdleConns    int
	PoolTimeout     time.Duration
	MaxRetries      int
	MinRetryBackoff time.Duration
	MaxRetryBackoff time.Duration
	ReadBlock       time.Duration
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	QueryTimeout    time.Duration
}

type ObservabilityConfig struct {
	ServiceName string
	LogLevel    string
	LogFormat   string
	MetricsPort int
}

// ArbitrageConfig holds the sizer's tunables (spec.md §4.4, §6).
type ArbitrageConfig struct {
	ProfitThreshold  float64
	ExpectedSlippage float64
	MaxTradeCost     *int64 // nil means unset
}

// PollingConfig holds every stage's loop interval plus the executor's
// per-chunk wait timeout.
type PollingConfig struct {
	MarketPollerInterval   time.Duration
	SimilarityInterval     time.Duration
	ArbitrageInterval      time.Duration
	TradeExecutorInterval  time.Duration
	ReconciliationInterval time.Duration
	ChunkTimeout           time.Duration
}

type KalshiConfig struct {
	BaseURL    string
	AccessKey  string
	SigningKey string
}

type PolymarketConfig struct {
	BaseURL       string
	GammaURL      string
	WSBaseURL     string
	PrivateKeyHex string
	FunderAddress string
	ChainID       int64
	APIKey        string
	APISecret     string
	APIPassphrase string
}

type OpenAIConfig struct {
	APIKey string
	Model  string
}

// Load reads every recognized environment variable and applies spec.md §6's
// defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Redis: RedisConfig{
			URL:             getEnv("REDIS_URL", "redis://localhost:6379"),
			Password:        getEnv("REDIS_PASSWORD", ""),
			DB:              getIntEnv("REDIS_DB", 0),
			PoolSize:        getIntEnv("REDIS_POOL_SIZE", 20),
			MinIdleConns:    getIntEnv("REDIS_MIN_IDLE_CONNS", 5),
			PoolTimeout:     getDurationEnv("REDIS_POOL_TIMEOUT", 4*time.Second),
			MaxRetries:      getIntEnv("REDIS_MAX_RETRIES", 3),
			MinRetryBackoff: getDurationEnv("REDIS_MIN_RETRY_BACKOFF", 8*time.Millisecond),
			MaxRetryBackoff: getDurationEnv("REDIS_MAX_RETRY_BACKOFF", 512*time.Millisecond),
			ReadBlock:       getDurationEnv("REDIS_READ_BLOCK", 5*time.Second),
		},
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxOpenConns:    getIntEnv("DB_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    getIntEnv("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getDurationEnv("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			QueryTimeout:    getDurationEnv("DB_QUERY_TIMEOUT", 10*time.Second),
		},
		Observability: ObservabilityConfig{
			ServiceName: getEnv("SERVICE_NAME", "crossvenue"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			LogFormat:   getEnv("LOG_FORMAT", "json"),
			MetricsPort: getIntEnv("METRICS_PORT", 9090),
		},
		Arbitrage: ArbitrageConfig{
			ProfitThreshold:  getFloatEnv("PROFIT_THRESHOLD", 0.05),
			ExpectedSlippage: getFloatEnv("EXPECTED_SLIPPAGE", 0.01),
			MaxTradeCost:     getOptionalInt64Env("MAX_TRADE_COST"),
		},
		Polling: PollingConfig{
			MarketPollerInterval:   getDurationEnv("POLLING_INTERVAL_S", 60*time.Second),
			SimilarityInterval:     getDurationEnv("SIMILARITY_POLLING_INTERVAL_S", 10*time.Second),
			ArbitrageInterval:      getDurationEnv("ARBITRAGE_POLLING_INTERVAL_S", 10*time.Second),
			TradeExecutorInterval:  getDurationEnv("TRADE_POLLING_INTERVAL_S", 5*time.Second),
			ReconciliationInterval: getDurationEnv("RECONCILIATION_POLLING_INTERVAL_S", 15*time.Second),
			ChunkTimeout:           getDurationEnv("POLLING_TIMEOUT_S", 30*time.Second),
		},
		Kalshi: KalshiConfig{
			BaseURL:    getEnv("KALSHI_BASE_URL", "https://trading-api.kalshi.com/trade-api/v2"),
			AccessKey:  getEnv("KALSHI_ACCESS_KEY", ""),
			SigningKey: getEnv("KALSHI_SIGNING_KEY", ""),
		},
		Polymarket: PolymarketConfig{
			BaseURL:       getEnv("POLYMARKET_BASE_URL", "https://clob.polymarket.com"),
			GammaURL:      getEnv("POLYMARKET_GAMMA_URL", "https://gamma-api.polymarket.com"),
			WSBaseURL:     getEnv("POLYMARKET_WS_URL", "wss://ws-subscriptions-clob.polymarket.com/ws/market"),
			PrivateKeyHex: getEnv("POLYMARKET_PRIVATE_KEY", ""),
			FunderAddress: getEnv("POLYMARKET_FUNDER_ADDRESS", ""),
			ChainID:       int64(getIntEnv("POLYMARKET_CHAIN_ID", 137)),
			APIKey:        getEnv("POLYMARKET_API_KEY", ""),
			APISecret:     getEnv("POLYMARKET_API_SECRET", ""),
			APIPassphrase: getEnv("POLYMARKET_API_PASSPHRASE", ""),
		},
		OpenAI: OpenAIConfig{
			APIKey: getEnv("OPENAI_API_KEY", ""),
			Model:  getEnv("OPENAI_MODEL", "gpt-4o-2024-08-06"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		// Also accept bare integer seconds, matching the *_S env var names.
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}

func getOptionalInt64Env(key string) *int64 {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return nil
	}
	return &parsed
}
