// Package config provides configuration management for the wallet monitor.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Etherscan EtherscanConfig
	Monitor   MonitorConfig
	Telegram  TelegramConfig
	Logging   LoggingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string
	Host string
	// RequestsPerSecond caps API calls per client IP.
	RequestsPerSecond int
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres   PostgresConfig
	ClickHouse ClickHouseConfig
	Redis      RedisConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// ClickHouseConfig holds ClickHouse configuration
type ClickHouseConfig struct {
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// EtherscanConfig holds Etherscan API configuration
type EtherscanConfig struct {
	APIKey  string
	BaseURL string
	// RequestsPerSecond is the provider quota; 5 req/s on the free tier.
	RequestsPerSecond int
	RequestTimeout    time.Duration
}

// MonitorConfig holds monitoring engine configuration
type MonitorConfig struct {
	// PollLoopPeriod is how often the scheduling loop looks for due wallets.
	PollLoopPeriod time.Duration
	// MaxConcurrentChecks bounds in-flight balance fetches. Keep it below
	// the Etherscan quota or every pass starts in backoff.
	MaxConcurrentChecks int
	// DrainTimeout bounds how long Stop waits for in-flight checks.
	DrainTimeout time.Duration
	// DefaultCheckInterval applies to wallets added without an interval.
	DefaultCheckInterval time.Duration
	// DefaultThresholdEth applies to wallets added without a threshold,
	// as a decimal ETH string.
	DefaultThresholdEth string
}

// TelegramConfig holds Telegram alert delivery configuration
type TelegramConfig struct {
	BotToken string
	ChatID   string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// Load .env file (optional in production)
	if err := godotenv.Load(); err != nil {
		// .env file is optional - environment variables can be set directly
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Port:              getEnv("SERVER_PORT", "8080"),
			Host:              getEnv("SERVER_HOST", "0.0.0.0"),
			RequestsPerSecond: getEnvAsInt("SERVER_RATE_LIMIT_RPS", 20),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				// Empty host disables wallet persistence; the monitor
				// then runs purely in memory.
				Host:           getEnv("POSTGRES_HOST", ""),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "wallet_monitor"),
				User:           getEnv("POSTGRES_USER", "monitor"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 20),
			},
			ClickHouse: ClickHouseConfig{
				Host:     getEnv("CLICKHOUSE_HOST", ""),
				Port:     getEnv("CLICKHOUSE_PORT", "9000"),
				Database: getEnv("CLICKHOUSE_DB", "wallet_monitor"),
				User:     getEnv("CLICKHOUSE_USER", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", ""),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 20),
			},
		},
		Etherscan: EtherscanConfig{
			APIKey:            getEnv("ETHERSCAN_API_KEY", ""),
			BaseURL:           getEnv("ETHERSCAN_BASE_URL", "https://api.etherscan.io/api"),
			RequestsPerSecond: getEnvAsInt("ETHERSCAN_RATE_LIMIT_RPS", 5),
			RequestTimeout:    getEnvAsDuration("ETHERSCAN_REQUEST_TIMEOUT", 10*time.Second),
		},
		Monitor: MonitorConfig{
			PollLoopPeriod:       getEnvAsDuration("MONITOR_POLL_LOOP_PERIOD", 10*time.Second),
			MaxConcurrentChecks:  getEnvAsInt("MONITOR_MAX_CONCURRENT_CHECKS", 3),
			DrainTimeout:         getEnvAsDuration("MONITOR_DRAIN_TIMEOUT", 30*time.Second),
			DefaultCheckInterval: getEnvAsDuration("MONITOR_DEFAULT_CHECK_INTERVAL", 5*time.Minute),
			DefaultThresholdEth:  getEnv("MONITOR_DEFAULT_THRESHOLD_ETH", "0.01"),
		},
		Telegram: TelegramConfig{
			BotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
			ChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
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

// Validate checks cross-field constraints that defaults alone cannot enforce.
func (c *Config) Validate() error {
	if c.Etherscan.RequestsPerSecond <= 0 {
		return fmt.Errorf("ETHERSCAN_RATE_LIMIT_RPS must be positive, got %d", c.Etherscan.RequestsPerSecond)
	}
	if c.Monitor.MaxConcurrentChecks <= 0 {
		return fmt.Errorf("MONITOR_MAX_CONCURRENT_CHECKS must be positive, got %d", c.Monitor.MaxConcurrentChecks)
	}
	if c.Monitor.MaxConcurrentChecks >= c.Etherscan.RequestsPerSecond+1 {
		// More in-flight checks than the provider admits per second just
		// queues them inside the limiter and triggers backoff storms.
		return fmt.Errorf("MONITOR_MAX_CONCURRENT_CHECKS (%d) must be below ETHERSCAN_RATE_LIMIT_RPS (%d)",
			c.Monitor.MaxConcurrentChecks, c.Etherscan.RequestsPerSecond)
	}
	if c.Monitor.PollLoopPeriod <= 0 {
		return fmt.Errorf("MONITOR_POLL_LOOP_PERIOD must be positive, got %v", c.Monitor.PollLoopPeriod)
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

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
