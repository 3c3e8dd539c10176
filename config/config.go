package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"ledgerbot/database"

	"github.com/shopspring/decimal"
)

// Lock backends
const (
	LockBackendPostgres = "postgres"
	LockBackendRedis    = "redis"
	LockBackendMemory   = "memory"
)

// Config holds all application configuration
type Config struct {
	// Database configuration
	DatabaseURL      string
	DatabaseName     string
	DatabaseMaxConns int

	// Logging
	LogLevel  string
	LogFormat string // "text" or "json"

	// Lock manager configuration
	LockBackend       string
	LockTTL           time.Duration
	LockAcquireWait   time.Duration // 0 rejects busy locks immediately
	LockSweepInterval time.Duration

	// Redis configuration, used when LockBackend is "redis"
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Reconciliation
	ReconcileInterval  time.Duration
	ReconcileTolerance int64 // minor units

	// Chain gateway configuration
	GatewayTimeout     time.Duration
	ChainRPCURL        string
	TokenContract      string
	TokenDecimals      uint8
	TreasuryAddress    string
	TreasuryPrivateKey string
	TreasuryMnemonic   string
	MinConfirmations   uint64

	// NATS configuration
	NATSServers    string // NATS server addresses (comma-separated), empty disables the stream
	DepositSubject string

	// Rate provider configuration
	RateURL      string
	RateCacheTTL time.Duration

	// Operator alerts
	DiscordToken   string
	AlertChannelID string

	// Ops HTTP API
	OpsAPIAddr string

	// OpenTelemetry configuration
	OTelEnabled              bool
	OTelExporterType         string // "console", "otlp" or "none"
	OTelOTLPEndpoint         string
	OTelServiceName          string
	OTelExportIntervalMillis int

	// Environment
	Environment string // "development", "production" or "test"
}

var (
	instance *Config
	once     sync.Once
	mu       sync.Mutex // Protects instance for test setup
)

// Get returns the global configuration instance
func Get() *Config {
	mu.Lock()
	defer mu.Unlock()

	if instance != nil {
		return instance
	}

	once.Do(func() {
		var err error
		instance, err = load()
		if err != nil {
			if os.Getenv("ENVIRONMENT") == "test" {
				instance = NewTestConfig()
			} else {
				panic(fmt.Sprintf("failed to load config: %v", err))
			}
		}
	})
	return instance
}

// Load reads the configuration from the environment without touching the global instance
func Load() (*Config, error) {
	return load()
}

// GetDatabaseURL constructs the full database URL by combining base URL and database name
func (c *Config) GetDatabaseURL() string {
	return database.ConstructDatabaseURL(c.DatabaseURL, c.DatabaseName)
}

func load() (*Config, error) {
	config := &Config{
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		DatabaseName: os.Getenv("DATABASE_NAME"),

		LogLevel:  getEnvWithDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvWithDefault("LOG_FORMAT", "text"),

		LockBackend: getEnvWithDefault("LOCK_BACKEND", LockBackendPostgres),

		RedisAddr:     getEnvWithDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		ChainRPCURL:        os.Getenv("CHAIN_RPC_URL"),
		TokenContract:      os.Getenv("TOKEN_CONTRACT"),
		TreasuryAddress:    os.Getenv("TREASURY_ADDRESS"),
		TreasuryPrivateKey: os.Getenv("TREASURY_PRIVATE_KEY"),
		TreasuryMnemonic:   os.Getenv("TREASURY_MNEMONIC"),

		NATSServers:    os.Getenv("NATS_SERVERS"),
		DepositSubject: getEnvWithDefault("DEPOSIT_SUBJECT", "chain.deposits.verified"),

		RateURL: os.Getenv("RATE_URL"),

		DiscordToken:   os.Getenv("DISCORD_TOKEN"),
		AlertChannelID: os.Getenv("ALERT_CHANNEL_ID"),

		OpsAPIAddr: getEnvWithDefault("OPS_API_ADDR", ":8081"),

		OTelEnabled:      os.Getenv("OTEL_ENABLED") == "true",
		OTelExporterType: getEnvWithDefault("OTEL_EXPORTER_TYPE", "console"),
		OTelOTLPEndpoint: getEnvWithDefault("OTEL_OTLP_ENDPOINT", "otel-collector:4317"),
		OTelServiceName:  getEnvWithDefault("OTEL_SERVICE_NAME", "ledgerbot"),

		Environment: getEnvWithDefault("ENVIRONMENT", "development"),
	}

	var err error
	durations := []struct {
		key    string
		target *time.Duration
		def    time.Duration
	}{
		{"LOCK_TTL", &config.LockTTL, 2 * time.Minute},
		{"LOCK_ACQUIRE_WAIT", &config.LockAcquireWait, 0},
		{"LOCK_SWEEP_INTERVAL", &config.LockSweepInterval, time.Minute},
		{"RECONCILE_INTERVAL", &config.ReconcileInterval, time.Hour},
		{"GATEWAY_TIMEOUT", &config.GatewayTimeout, 45 * time.Second},
		{"RATE_CACHE_TTL", &config.RateCacheTTL, time.Minute},
	}
	for _, d := range durations {
		if *d.target, err = getDuration(d.key, d.def); err != nil {
			return nil, err
		}
	}

	if config.DatabaseMaxConns, err = getInt("DATABASE_MAX_CONNS", 10); err != nil {
		return nil, err
	}
	if config.DatabaseMaxConns < 1 {
		return nil, fmt.Errorf("DATABASE_MAX_CONNS must be at least 1, got %d", config.DatabaseMaxConns)
	}
	if config.RedisDB, err = getInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if config.OTelExportIntervalMillis, err = getInt("OTEL_EXPORT_INTERVAL_MS", 10000); err != nil {
		return nil, err
	}

	decimals, err := getInt("TOKEN_DECIMALS", 18)
	if err != nil {
		return nil, err
	}
	if decimals < 0 || decimals > 36 {
		return nil, fmt.Errorf("TOKEN_DECIMALS must be between 0 and 36, got %d", decimals)
	}
	config.TokenDecimals = uint8(decimals)

	confirmations, err := getInt("MIN_CONFIRMATIONS", 12)
	if err != nil {
		return nil, err
	}
	if confirmations < 1 {
		return nil, fmt.Errorf("MIN_CONFIRMATIONS must be at least 1, got %d", confirmations)
	}
	config.MinConfirmations = uint64(confirmations)

	// Tolerance is given in tokens, e.g. "0.000001"
	if tolerance := os.Getenv("RECONCILE_TOLERANCE"); tolerance != "" {
		d, err := decimal.NewFromString(tolerance)
		if err != nil || d.IsNegative() {
			return nil, fmt.Errorf("invalid RECONCILE_TOLERANCE %q", tolerance)
		}
		config.ReconcileTolerance = d.Shift(6).IntPart()
	}

	config.LockBackend = strings.ToLower(config.LockBackend)
	switch config.LockBackend {
	case LockBackendPostgres, LockBackendRedis, LockBackendMemory:
	default:
		return nil, fmt.Errorf("unknown LOCK_BACKEND %q", config.LockBackend)
	}

	if config.Environment != "test" {
		if config.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required")
		}
		if config.DatabaseName != "" && strings.TrimSpace(config.DatabaseName) == "" {
			return nil, fmt.Errorf("DATABASE_NAME cannot be empty when provided")
		}
		if config.LockTTL <= config.GatewayTimeout {
			return nil, fmt.Errorf("LOCK_TTL (%s) must exceed GATEWAY_TIMEOUT (%s)", config.LockTTL, config.GatewayTimeout)
		}
	}

	return config, nil
}

// getEnvWithDefault returns the environment variable value or a default if not set
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid %s %q", key, value)
	}
	return d, nil
}

func getInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return n, nil
}

// Test helpers - only use in tests

// SetTestConfig overrides the global config instance for testing
func SetTestConfig(testConfig *Config) {
	mu.Lock()
	defer mu.Unlock()
	instance = testConfig
}

// ResetConfig resets the global config instance and sync.Once for testing
func ResetConfig() {
	mu.Lock()
	defer mu.Unlock()
	instance = nil
	once = sync.Once{}
}

// NewTestConfig creates a minimal config suitable for unit tests
func NewTestConfig() *Config {
	return &Config{
		Environment:       "test",
		LogLevel:          "debug",
		LogFormat:         "text",
		DatabaseMaxConns:  4,
		LockBackend:       LockBackendMemory,
		LockTTL:           2 * time.Minute,
		LockSweepInterval: time.Minute,
		ReconcileInterval: time.Hour,
		GatewayTimeout:    45 * time.Second,
		TokenDecimals:     18,
		MinConfirmations:  1,
		DepositSubject:    "chain.deposits.verified",
		RateCacheTTL:      time.Minute,
		OTelExporterType:  "none",
		OTelServiceName:   "ledgerbot-test",
	}
}
