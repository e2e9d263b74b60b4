// Package config provides configuration management for the whale tracker.
// It loads configuration from environment variables and .env files.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	str2duration "github.com/xhit/go-str2duration/v2"
)

// Config holds all application configuration
type Config struct {
	Data     DataConfig
	Ledger   LedgerConfig
	Prices   PricesConfig
	Metrics  MetricsConfig
	Pipeline PipelineConfig
	Database DatabaseConfig
	Alerts   AlertsConfig
	Server   ServerConfig
	Logging  LoggingConfig
}

// DataConfig holds the on-disk layout of persisted tables
type DataConfig struct {
	BaseDir   string
	PriceFile string
}

// LedgerConfig holds ledger API configuration
type LedgerConfig struct {
	BaseURL      string
	PageSize     int
	RequestDelay time.Duration // Pause after every request, regardless of latency
	Timeout      time.Duration
	UserAgents   []string
	Proxy        ProxyConfig
}

// ProxyConfig holds an optional outbound proxy credential.
// A "{session}" placeholder in URL is replaced with a random session number per request.
type ProxyConfig struct {
	URL      string
	Username string
	Password string
}

// Enabled reports whether a proxy is configured
func (p ProxyConfig) Enabled() bool {
	return p.URL != ""
}

// PricesConfig holds price API configuration
type PricesConfig struct {
	BaseURL         string
	APIKey          string
	AssetID         string
	VsCurrency      string
	DefaultLookback time.Duration // History fetched when no price file exists yet
	Timeout         time.Duration
	CacheTTL        time.Duration
}

// MetricsConfig holds wallet classification thresholds
type MetricsConfig struct {
	SignificantSellPct    float64 // Portfolio percentage, not a fraction
	ActiveTraderFrequency float64 // Trades per 30 days
	NewWalletDays         int
	ShortWindow           time.Duration
	LongWindow            time.Duration
}

// PipelineConfig holds batch execution settings
type PipelineConfig struct {
	Workers           int
	RequestsPerSecond float64 // Shared cap across workers, 0 disables it
	RequestBudget     int     // Requests per window shared across processes via Redis, 0 disables it
	BudgetWindow      time.Duration
}

// DatabaseConfig holds optional sink configuration
type DatabaseConfig struct {
	Postgres   PostgresConfig
	ClickHouse ClickHouseConfig
	Redis      RedisConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Enabled        bool
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// URL returns the connection URL used by migrations
func (c PostgresConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", c.User, c.Password, c.Host, c.Port, c.Database)
}

// ClickHouseConfig holds ClickHouse configuration
type ClickHouseConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled        bool
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// AlertsConfig holds alert thresholds and delivery channels
type AlertsConfig struct {
	Lookback     time.Duration
	UrgentPct    float64
	HighPct      float64
	InfoPct      float64
	Telegram     TelegramConfig
	Discord      DiscordConfig
	BreakerTrips int
}

// TelegramConfig holds Telegram bot configuration
type TelegramConfig struct {
	BotToken string
	ChatID   int64
}

// DiscordConfig holds Discord bot configuration
type DiscordConfig struct {
	BotToken  string
	ChannelID string
}

// ServerConfig holds API server configuration
type ServerConfig struct {
	Port         string
	Host         string
	RequestsPerS int
	CacheTTL     time.Duration // Metrics read cache lifetime when Redis is enabled
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// .env file is optional - environment variables can be set directly
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	config := &Config{
		Data: DataConfig{
			BaseDir:   getEnv("DATA_DIR", "data"),
			PriceFile: getEnv("PRICE_FILE", "BTC_USD_Bitfinex_Investing_com.csv"),
		},
		Ledger: LedgerConfig{
			BaseURL:      getEnv("LEDGER_BASE_URL", "https://blockchain.info"),
			PageSize:     getEnvAsInt("LEDGER_PAGE_SIZE", 50),
			RequestDelay: getEnvAsDuration("LEDGER_REQUEST_DELAY", 800*time.Millisecond),
			Timeout:      getEnvAsDuration("LEDGER_TIMEOUT", 30*time.Second),
			UserAgents:   getEnvAsList("LEDGER_USER_AGENTS", defaultUserAgents),
			Proxy: ProxyConfig{
				URL:      getEnv("PROXY_URL", ""),
				Username: getEnv("PROXY_USERNAME", ""),
				Password: getEnv("PROXY_PASSWORD", ""),
			},
		},
		Prices: PricesConfig{
			BaseURL:         getEnv("PRICE_API_BASE_URL", "https://api.coingecko.com/api/v3"),
			APIKey:          getEnv("PRICE_API_KEY", ""),
			AssetID:         getEnv("PRICE_ASSET_ID", "bitcoin"),
			VsCurrency:      getEnv("PRICE_VS_CURRENCY", "usd"),
			DefaultLookback: getEnvAsDuration("PRICE_DEFAULT_LOOKBACK", 30*24*time.Hour),
			Timeout:         getEnvAsDuration("PRICE_API_TIMEOUT", 30*time.Second),
			CacheTTL:        getEnvAsDuration("PRICE_CACHE_TTL", time.Hour),
		},
		Metrics: MetricsConfig{
			SignificantSellPct:    getEnvAsFloat("METRICS_SIGNIFICANT_SELL_PCT", 0.01),
			ActiveTraderFrequency: getEnvAsFloat("METRICS_ACTIVE_TRADER_FREQUENCY", 10),
			NewWalletDays:         getEnvAsInt("METRICS_NEW_WALLET_DAYS", 30),
			ShortWindow:           getEnvAsDuration("METRICS_SHORT_WINDOW", 30*24*time.Hour),
			LongWindow:            getEnvAsDuration("METRICS_LONG_WINDOW", 90*24*time.Hour),
		},
		Pipeline: PipelineConfig{
			Workers:           getEnvAsInt("PIPELINE_WORKERS", 1),
			RequestsPerSecond: getEnvAsFloat("PIPELINE_REQUESTS_PER_SECOND", 0),
			RequestBudget:     getEnvAsInt("PIPELINE_REQUEST_BUDGET", 0),
			BudgetWindow:      getEnvAsDuration("PIPELINE_BUDGET_WINDOW", time.Minute),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Enabled:        getEnvAsBool("POSTGRES_ENABLED", false),
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "whale_tracker"),
				User:           getEnv("POSTGRES_USER", "tracker"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 10),
			},
			ClickHouse: ClickHouseConfig{
				Enabled:  getEnvAsBool("CLICKHOUSE_ENABLED", false),
				Host:     getEnv("CLICKHOUSE_HOST", "localhost"),
				Port:     getEnv("CLICKHOUSE_PORT", "9000"),
				Database: getEnv("CLICKHOUSE_DB", "whale_tracker"),
				User:     getEnv("CLICKHOUSE_USER", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			},
			Redis: RedisConfig{
				Enabled:        getEnvAsBool("REDIS_ENABLED", false),
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 10),
			},
		},
		Alerts: AlertsConfig{
			Lookback:  getEnvAsDuration("ALERT_LOOKBACK", 24*time.Hour),
			UrgentPct: getEnvAsFloat("ALERT_URGENT_PCT", 10),
			HighPct:   getEnvAsFloat("ALERT_HIGH_PCT", 5),
			InfoPct:   getEnvAsFloat("ALERT_INFO_PCT", 0.2),
			Telegram: TelegramConfig{
				BotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
				ChatID:   getEnvAsInt64("TELEGRAM_CHAT_ID", 0),
			},
			Discord: DiscordConfig{
				BotToken:  getEnv("DISCORD_BOT_TOKEN", ""),
				ChannelID: getEnv("DISCORD_CHANNEL_ID", ""),
			},
			BreakerTrips: getEnvAsInt("ALERT_BREAKER_TRIPS", 3),
		},
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			RequestsPerS: getEnvAsInt("SERVER_REQUESTS_PER_SECOND", 20),
			CacheTTL:     getEnvAsDuration("SERVER_CACHE_TTL", 5*time.Minute),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if c.Ledger.PageSize <= 0 {
		return errors.New("ledger page size must be positive")
	}
	if c.Ledger.RequestDelay < 0 {
		return errors.New("ledger request delay cannot be negative")
	}
	if c.Pipeline.Workers <= 0 {
		return errors.New("pipeline workers must be at least 1")
	}
	if c.Metrics.SignificantSellPct < 0 {
		return errors.New("significant sell threshold cannot be negative")
	}
	if c.Metrics.NewWalletDays < 0 {
		return errors.New("new wallet days cannot be negative")
	}
	if !(c.Alerts.UrgentPct >= c.Alerts.HighPct && c.Alerts.HighPct >= c.Alerts.InfoPct) {
		return fmt.Errorf("alert thresholds must be ordered urgent >= high >= info, got %v/%v/%v",
			c.Alerts.UrgentPct, c.Alerts.HighPct, c.Alerts.InfoPct)
	}
	return nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsInt64 gets an environment variable as a 64-bit integer with a default value
func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat gets an environment variable as a float with a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool gets an environment variable as a bool with a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value.
// Day and week units are accepted ("30d", "1w2d").
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := str2duration.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList gets a comma-separated environment variable with a default value
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	var out []string
	for _, item := range strings.Split(valueStr, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
