package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port     string
	LogLevel string

	DBUser     string
	DBPassword string
	DBHost     string
	DBPort     string
	DBName     string
	DBSSLMode  string

	JWTSecret string

	StoragePath   string
	StorageSecret string

	MaxUploadBytes       int64
	LedgerVerifyInterval time.Duration
}

// Load reads .env (if present) and then the process environment.
func Load() (*Config, bool, error) {
	envLoaded := godotenv.Load() == nil

	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		LogLevel:      getEnv("MEDITRUST_LOG_LEVEL", "info"),
		DBUser:        getEnv("user", ""),
		DBPassword:    getEnv("password", ""),
		DBHost:        getEnv("host", "localhost"),
		DBPort:        getEnv("port", "5432"),
		DBName:        getEnv("dbname", "meditrust"),
		DBSSLMode:     getEnv("sslmode", "require"),
		JWTSecret:     getEnv("MEDITRUST_JWT_SECRET", ""),
		StoragePath:   getEnv("MEDITRUST_STORAGE_PATH", "./data/content"),
		StorageSecret: getEnv("MEDITRUST_STORAGE_SECRET", ""),
	}

	maxMB, err := strconv.ParseInt(getEnv("MEDITRUST_MAX_UPLOAD_MB", "25"), 10, 64)
	if err != nil || maxMB <= 0 {
		return nil, envLoaded, fmt.Errorf("invalid MEDITRUST_MAX_UPLOAD_MB: %q", os.Getenv("MEDITRUST_MAX_UPLOAD_MB"))
	}
	cfg.MaxUploadBytes = maxMB << 20

	interval, err := time.ParseDuration(getEnv("MEDITRUST_LEDGER_VERIFY_INTERVAL", "5m"))
	if err != nil {
		return nil, envLoaded, fmt.Errorf("invalid MEDITRUST_LEDGER_VERIFY_INTERVAL: %w", err)
	}
	cfg.LedgerVerifyInterval = interval

	if cfg.JWTSecret == "" {
		return nil, envLoaded, fmt.Errorf("MEDITRUST_JWT_SECRET must be set")
	}
	if cfg.StorageSecret == "" {
		return nil, envLoaded, fmt.Errorf("MEDITRUST_STORAGE_SECRET must be set")
	}
	return cfg, envLoaded, nil
}

// DatabaseURL builds the Postgres connection string.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
