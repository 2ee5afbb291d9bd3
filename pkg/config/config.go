package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/gorm/logger"
)

const ServiceName = "catalog-service"

// Store drivers
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Price policies
const (
	PricePolicyExistingSeller = "existing_seller"
	PricePolicyLowestAlways   = "lowest_always"
)

// DBConfig holds database configuration
type DBConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	LogLevel        logger.LogLevel
}

// GetDSN returns the PostgreSQL connection string
func (c *DBConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port string
	Env  string
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	SigningKey      string
	ExpirationHours int
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Prefix string
}

// CatalogConfig holds the reconciliation engine settings
type CatalogConfig struct {
	StoreDriver string
	// LockTimeout bounds how long a writer waits for an item lock.
	LockTimeout time.Duration
	PricePolicy string
}

// AssetConfig holds upload settings
type AssetConfig struct {
	UploadDir       string
	MaxGalleryFiles int
}

// KafkaConfig holds event publishing settings. Publishing is disabled when
// Brokers is empty.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	BatchTimeout time.Duration
}

// OtelConfig holds OpenTelemetry exporter settings. Export is disabled when
// Endpoint is empty.
type OtelConfig struct {
	Endpoint   string
	AuthHeader string
	TracesPath string
	LogsPath   string
	Insecure   bool
}

// Config holds all configuration
type Config struct {
	DB      DBConfig
	Server  ServerConfig
	JWT     JWTConfig
	Log     LogConfig
	Metrics MetricsConfig
	Catalog CatalogConfig
	Assets  AssetConfig
	Kafka   KafkaConfig
	Otel    OtelConfig
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		// Not returning error as .env file is optional
		fmt.Printf("Warning: .env file not found, using environment variables\n")
	}

	config := &Config{
		DB: DBConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "password"),
			DBName:          getEnv("DB_NAME", "catalog_service"),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 100),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 1*time.Hour),
			LogLevel:        getEnvAsLogLevel("DB_LOG_LEVEL", logger.Error),
		},
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Env:  getEnv("APP_ENV", "development"),
		},
		JWT: JWTConfig{
			SigningKey:      getEnv("JWT_SIGNING_KEY", "defaultsecretkey"),
			ExpirationHours: getEnvAsInt("JWT_EXPIRATION_HOURS", 24),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Metrics: MetricsConfig{
			Prefix: getEnv("METRICS_PREFIX", "catalog"),
		},
		Catalog: CatalogConfig{
			StoreDriver: getEnv("CATALOG_STORE", StoreDriverPostgres),
			LockTimeout: getEnvAsDuration("CATALOG_LOCK_TIMEOUT", 2*time.Second),
			PricePolicy: getEnv("PRICE_POLICY", PricePolicyExistingSeller),
		},
		Assets: AssetConfig{
			UploadDir:       getEnv("ASSET_UPLOAD_DIR", "public/uploads"),
			MaxGalleryFiles: getEnvAsInt("ASSET_MAX_GALLERY_FILES", 10),
		},
		Kafka: KafkaConfig{
			Brokers:      getEnvAsList("KAFKA_BROKERS"),
			Topic:        getEnv("CATALOG_EVENTS_TOPIC", "catalog-events"),
			BatchTimeout: getEnvAsDuration("KAFKA_BATCH_TIMEOUT", 10*time.Millisecond),
		},
		Otel: OtelConfig{
			Endpoint:   getEnv("OTEL_ENDPOINT", ""),
			AuthHeader: getEnv("OTEL_AUTH_HEADER", ""),
			TracesPath: getEnv("OTEL_TRACES_PATH", "/v1/traces"),
			LogsPath:   getEnv("OTEL_LOGS_PATH", "/v1/logs"),
			Insecure:   getEnvAsBool("OTEL_INSECURE", false),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate rejects settings the service cannot run with
func (c *Config) Validate() error {
	switch c.Catalog.StoreDriver {
	case StoreDriverPostgres, StoreDriverMemory:
	default:
		return fmt.Errorf("unknown CATALOG_STORE %q", c.Catalog.StoreDriver)
	}
	switch c.Catalog.PricePolicy {
	case PricePolicyExistingSeller, PricePolicyLowestAlways:
	default:
		return fmt.Errorf("unknown PRICE_POLICY %q", c.Catalog.PricePolicy)
	}
	if c.Catalog.LockTimeout <= 0 {
		return fmt.Errorf("CATALOG_LOCK_TIMEOUT must be positive, got %s", c.Catalog.LockTimeout)
	}
	if c.Assets.MaxGalleryFiles <= 0 {
		return fmt.Errorf("ASSET_MAX_GALLERY_FILES must be positive, got %d", c.Assets.MaxGalleryFiles)
	}
	return nil
}

// LogConfig returns the configuration as a zap logger-friendly format
func (c *Config) LogConfig() []zap.Field {
	return []zap.Field{
		zap.String("environment", c.Server.Env),
		zap.String("server_port", c.Server.Port),
		zap.String("store", c.Catalog.StoreDriver),
		zap.String("db_host", c.DB.Host),
		zap.String("db_name", c.DB.DBName),
		zap.Duration("lock_timeout", c.Catalog.LockTimeout),
		zap.String("price_policy", c.Catalog.PricePolicy),
		zap.Strings("kafka_brokers", c.Kafka.Brokers),
		zap.Bool("otel_enabled", c.Otel.Endpoint != ""),
	}
}

// Helper function to get environment variables with defaults
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// Helper function to get environment variables as integers
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// Helper function to get environment variables as durations
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma separated variable, dropping blanks
func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Helper function to get environment variables as log levels
func getEnvAsLogLevel(key string, defaultValue logger.LogLevel) logger.LogLevel {
	valueStr := getEnv(key, "")
	switch valueStr {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "warn":
		return logger.Warn
	case "info":
		return logger.Info
	default:
		return defaultValue
	}
}
