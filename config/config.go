package config

import (
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	// Database configuration
	DatabaseURL  string
	DatabaseName string

	// Server configuration
	ListenAddr string

	// Auth configuration
	JWTSecret       string
	AllowRawUserIDs bool // accept a bare userId in user_connect (development only)

	// Betting configuration
	DefaultBettingAmount decimal.Decimal
	PlatformFeeRate      decimal.Decimal

	// Moderation configuration
	ReportBanThreshold int

	// Chat configuration
	ChatHistoryLimit int

	// Event forwarding, disabled when empty
	NATSURL string

	// Logging
	LogLevel  string
	LogFormat string // "text" or "json"

	// Environment
	Environment string // "development", "production" or "test"
}

var (
	instance *Config
	once     sync.Once
)

// Get returns the global configuration instance
func Get() *Config {
	once.Do(func() {
		var err error
		instance, err = load(newViper())
		if err != nil {
			panic(fmt.Sprintf("failed to load config: %v", err))
		}
	})
	return instance
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("DATABASE_NAME", "arena")
	v.SetDefault("LISTEN_ADDR", ":8080")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("AUTH_ALLOW_USER_ID", false)
	v.SetDefault("DEFAULT_BETTING_AMOUNT", "0.25")
	v.SetDefault("PLATFORM_FEE_RATE", "0.10")
	v.SetDefault("REPORT_BAN_THRESHOLD", 5)
	v.SetDefault("CHAT_HISTORY_LIMIT", 50)
	v.SetDefault("NATS_URL", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("ENVIRONMENT", "development")

	v.AddConfigPath(".")
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		log.Debug(".env file not found, using environment variables only")
	}
	return v
}

// load builds the configuration from viper keys
func load(v *viper.Viper) (*Config, error) {
	config := &Config{
		DatabaseURL:        v.GetString("DATABASE_URL"),
		DatabaseName:       v.GetString("DATABASE_NAME"),
		ListenAddr:         v.GetString("LISTEN_ADDR"),
		JWTSecret:          v.GetString("JWT_SECRET"),
		AllowRawUserIDs:    v.GetBool("AUTH_ALLOW_USER_ID"),
		ReportBanThreshold: v.GetInt("REPORT_BAN_THRESHOLD"),
		ChatHistoryLimit:   v.GetInt("CHAT_HISTORY_LIMIT"),
		NATSURL:            v.GetString("NATS_URL"),
		LogLevel:           strings.ToLower(v.GetString("LOG_LEVEL")),
		LogFormat:          strings.ToLower(v.GetString("LOG_FORMAT")),
		Environment:        v.GetString("ENVIRONMENT"),
	}

	var err error
	if config.DefaultBettingAmount, err = decimal.NewFromString(v.GetString("DEFAULT_BETTING_AMOUNT")); err != nil {
		return nil, fmt.Errorf("invalid DEFAULT_BETTING_AMOUNT: %w", err)
	}
	if config.PlatformFeeRate, err = decimal.NewFromString(v.GetString("PLATFORM_FEE_RATE")); err != nil {
		return nil, fmt.Errorf("invalid PLATFORM_FEE_RATE: %w", err)
	}

	if !config.DefaultBettingAmount.IsPositive() {
		return nil, fmt.Errorf("DEFAULT_BETTING_AMOUNT must be positive")
	}
	if config.PlatformFeeRate.IsNegative() || config.PlatformFeeRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("PLATFORM_FEE_RATE must be in [0, 1)")
	}
	if config.ReportBanThreshold < 1 {
		return nil, fmt.Errorf("REPORT_BAN_THRESHOLD must be at least 1")
	}
	if config.ChatHistoryLimit < 0 {
		config.ChatHistoryLimit = 0
	}

	if config.Environment != "test" {
		// Validate required configuration
		if config.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required")
		}
		if config.JWTSecret == "" && !config.AllowRawUserIDs {
			return nil, fmt.Errorf("JWT_SECRET is required unless AUTH_ALLOW_USER_ID is set")
		}
	}

	return config, nil
}

// ConfigureLogging applies LOG_LEVEL and LOG_FORMAT to the standard logrus logger
func (c *Config) ConfigureLogging() {
	if level, err := log.ParseLevel(c.LogLevel); err == nil {
		log.SetLevel(level)
	} else {
		log.WithField("level", c.LogLevel).Warn("Unknown log level, keeping info")
	}
	if c.LogFormat == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}

// NewTestConfig returns a configuration with the default policy values
func NewTestConfig() *Config {
	return &Config{
		DatabaseName:         "arena_test",
		ListenAddr:           ":0",
		JWTSecret:            "test-secret",
		DefaultBettingAmount: decimal.RequireFromString("0.25"),
		PlatformFeeRate:      decimal.RequireFromString("0.10"),
		ReportBanThreshold:   5,
		ChatHistoryLimit:     50,
		LogLevel:             "info",
		LogFormat:            "text",
		Environment:          "test",
	}
}
