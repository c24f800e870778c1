// Package config reads the storefront settings from the environment, with an
// optional .env file for development.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
	StoreMongo  = "mongo"

	OrdersMemory    = "memory"
	OrdersFirestore = "firestore"
	OrdersPostgres  = "postgres"
)

type Config struct {
	Env      string
	HTTPPort string
	DeviceID string
	LogLevel string

	APIBaseURL  string
	AuthBaseURL string
	AuthAPIKey  string

	StoreBackend     string
	SQLitePath       string
	SQLiteMigrations string
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	CatalogTTL       time.Duration
	MongoURI         string
	MongoDatabase    string

	OrderSource         string
	FirebaseProjectID   string
	FirebaseCredentials string
	VerifyTokens        bool

	PostgresHost       string
	PostgresPort       int
	PostgresUser       string
	PostgresPassword   string
	PostgresDB         string
	PostgresMigrations string

	KafkaBrokers []string

	RequestTimeout     time.Duration
	ShutdownTimeout    time.Duration
	MaxRequestBodySize int64
	AllowedOrigins     []string

	RetryTimeout      time.Duration
	RetryLightTimeout time.Duration
	RetryBackoff      time.Duration
	RetryAttempts     int

	BreakerMaxFailures uint32
	BreakerOpenTimeout time.Duration
}

// Load reads .env when present (its values win over the process environment)
// and then the environment.
func Load() (*Config, error) {
	if os.Getenv("ENV") != "production" {
		if err := godotenv.Overload(getEnv("ENV_FILE", ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
	}

	cfg := &Config{
		Env:      getEnv("ENV", "development"),
		HTTPPort: strings.TrimPrefix(getEnv("HTTP_PORT", "8080"), ":"),
		DeviceID: getEnv("DEVICE_ID", hostname()),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		APIBaseURL:  getEnv("API_BASE_URL", "http://localhost:3000"),
		AuthBaseURL: getEnv("AUTH_BASE_URL", ""),
		AuthAPIKey:  getEnv("AUTH_API_KEY", ""),

		StoreBackend:     strings.ToLower(getEnv("STORE_BACKEND", StoreSQLite)),
		SQLitePath:       getEnv("SQLITE_PATH", "storefront.db"),
		SQLiteMigrations: getEnv("SQLITE_MIGRATIONS_DIR", "internal/store/migrations"),
		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		RedisDB:          getEnvInt("REDIS_DB", 0),
		CatalogTTL:       getEnvDuration("CATALOG_TTL", 24*time.Hour),
		MongoURI:         getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase:    getEnv("MONGO_DATABASE", "storefront"),

		OrderSource:         strings.ToLower(getEnv("ORDER_SOURCE", OrdersMemory)),
		FirebaseProjectID:   getEnv("FIREBASE_PROJECT_ID", ""),
		FirebaseCredentials: getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
		VerifyTokens:        getEnvBool("VERIFY_ID_TOKENS", false),

		PostgresHost:       getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:       getEnvInt("POSTGRES_PORT", 5432),
		PostgresUser:       getEnv("POSTGRES_USER", "postgres"),
		PostgresPassword:   getEnv("POSTGRES_PASSWORD", "postgres"),
		PostgresDB:         getEnv("POSTGRES_DB", "storefront"),
		PostgresMigrations: getEnv("POSTGRES_MIGRATIONS_DIR", "internal/orders/migrations"),

		KafkaBrokers: getEnvList("KAFKA_BROKERS"),

		RequestTimeout:     getEnvDuration("REQUEST_TIMEOUT", 30*time.Second),
		ShutdownTimeout:    getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		MaxRequestBodySize: int64(getEnvInt("MAX_REQUEST_BODY_SIZE", 1<<20)), // 1MB
		AllowedOrigins:     getEnvList("ALLOWED_ORIGINS"),

		RetryTimeout:      getEnvDuration("RETRY_TIMEOUT", 30*time.Second),
		RetryLightTimeout: getEnvDuration("RETRY_LIGHT_TIMEOUT", 20*time.Second),
		RetryBackoff:      getEnvDuration("RETRY_BACKOFF", 2*time.Second),
		RetryAttempts:     getEnvInt("RETRY_ATTEMPTS", 3),

		BreakerMaxFailures: uint32(getEnvInt("BREAKER_MAX_FAILURES", 5)),
		BreakerOpenTimeout: getEnvDuration("BREAKER_OPEN_TIMEOUT", 30*time.Second),
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	var errs []error
	switch c.StoreBackend {
	case StoreMemory, StoreSQLite, StoreRedis, StoreMongo:
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend))
	}
	switch c.OrderSource {
	case OrdersMemory, OrdersPostgres:
	case OrdersFirestore:
		if c.FirebaseProjectID == "" {
			errs = append(errs, errors.New("FIREBASE_PROJECT_ID is required for the firestore order source"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown ORDER_SOURCE %q", c.OrderSource))
	}
	if c.VerifyTokens && c.FirebaseProjectID == "" {
		errs = append(errs, errors.New("FIREBASE_PROJECT_ID is required to verify id tokens"))
	}
	if c.RetryAttempts <= 0 {
		errs = append(errs, errors.New("RETRY_ATTEMPTS must be positive"))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return v
}

// getEnvDuration accepts Go durations ("30s") or plain seconds ("30").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return v
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "local"
	}
	return h
}
