package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Config holds all configuration for the application
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Run history + watchlist store backend (memory | postgres)
	StoreBackend string

	// Database
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// Collaborators
	MarketData MarketDataConfig
	Model      ModelConfig
	Kafka      KafkaConfig

	// Analysis
	Analysis AnalysisConfig

	// Logging
	LogLevel  string
	LogFormat string

	// Monitoring
	MetricsEnabled bool
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	URL      string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// MarketDataConfig holds the market data service configuration.
// SnapshotPath replays a recorded JSON snapshot instead of calling the service.
type MarketDataConfig struct {
	BaseURL      string
	SnapshotPath string
	Timeout      time.Duration
	RateLimit    int // requests per second (0 = unlimited)
	CacheTTL     time.Duration
}

// ModelConfig holds the remote model scoring service configuration.
// Empty BaseURL keeps the built-in heuristic scorers.
type ModelConfig struct {
	BaseURL   string
	Timeout   time.Duration
	RateLimit float64 // requests per second
	Burst     int
}

// KafkaConfig holds the run event stream configuration
type KafkaConfig struct {
	Enabled bool
	Brokers []string
	Topic   string
}

// AnalysisConfig holds orchestrator wiring
type AnalysisConfig struct {
	PolicyPath       string
	DefaultContextID string
	DefaultAssets    []string
	Schedule         string // cron with seconds
	SchedulerEnabled bool
}

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		// Server
		Port: getEnv("PORT", "8089"),
		Env:  getEnv("ENV", "development"),

		StoreBackend: getEnv("STORE_BACKEND", StoreMemory),

		// Database
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			Name:            getEnv("DB_NAME", "cryptopredict"),
			User:            getEnv("DB_USER", "cryptopredict"),
			Password:        getEnv("DB_PASSWORD", ""),
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 5),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		// Redis
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		MarketData: MarketDataConfig{
			BaseURL:      getEnv("MARKETDATA_URL", ""),
			SnapshotPath: getEnv("MARKETDATA_SNAPSHOT", ""),
			Timeout:      getEnvAsDuration("MARKETDATA_TIMEOUT", "5s"),
			RateLimit:    getEnvAsInt("MARKETDATA_RATE_LIMIT", 10),
			CacheTTL:     getEnvAsDuration("MARKETDATA_CACHE_TTL", "1m"),
		},

		Model: ModelConfig{
			BaseURL:   getEnv("MODEL_SERVICE_URL", ""),
			Timeout:   getEnvAsDuration("MODEL_SERVICE_TIMEOUT", "3s"),
			RateLimit: getEnvAsFloat("MODEL_SERVICE_RATE_LIMIT", 20),
			Burst:     getEnvAsInt("MODEL_SERVICE_BURST", 5),
		},

		Kafka: KafkaConfig{
			Enabled: getEnvAsBool("KAFKA_ENABLED", false),
			Brokers: getEnvAsSlice("KAFKA_BROKERS", "localhost:9092"),
			Topic:   getEnv("KAFKA_RUNS_TOPIC", "cryptopredict.runs"),
		},

		Analysis: AnalysisConfig{
			PolicyPath:       getEnv("POLICY_PATH", "config/policy/cryptopredict_v1.yaml"),
			DefaultContextID: getEnv("DEFAULT_CONTEXT_ID", "default"),
			DefaultAssets:    getEnvAsSlice("DEFAULT_ASSETS", "BTC,ETH,SOL,BNB,XRP,ADA,AVAX,LINK,UNI,AAVE"),
			Schedule:         getEnv("ANALYSIS_SCHEDULE", "0 */15 * * * *"),
			SchedulerEnabled: getEnvAsBool("SCHEDULER_ENABLED", true),
		},

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "debug"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		// Monitoring
		MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	switch c.StoreBackend {
	case StoreMemory:
	case StorePostgres:
		// Database URL is required for the postgres store
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_BACKEND=postgres")
		}
	default:
		return fmt.Errorf("STORE_BACKEND must be one of: memory, postgres")
	}

	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		return fmt.Errorf("KAFKA_BROKERS and KAFKA_RUNS_TOPIC are required when KAFKA_ENABLED=true")
	}

	if c.Analysis.DefaultContextID == "" {
		return fmt.Errorf("DEFAULT_CONTEXT_ID is required")
	}
	if len(c.Analysis.DefaultAssets) == 0 {
		return fmt.Errorf("DEFAULT_ASSETS must list at least one asset")
	}

	return nil
}

// RedisAddr returns host:port
func (c *Config) RedisAddr() string {
	return c.Redis.Host + ":" + c.Redis.Port
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{".env"}

	// Also try relative to executable
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}

// getEnvAsSlice splits a comma separated list, dropping blanks
func getEnvAsSlice(key string, defaultValue string) []string {
	raw := getEnv(key, defaultValue)

	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
