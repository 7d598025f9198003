package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

type ClickHouseConfig struct {
	Host       string
	NativePort int
	DBName     string
	Username   string
	Password   string
}

type Config struct {
	Port           string
	ReleaseMode    bool
	StorageBackend string
	DatabaseURL    string
	ClickHouse     ClickHouseConfig
	SQLitePath     string
	FrontendOrigin string
	AutoSchema     bool
	RequestTimeout time.Duration
}

// Load reads .env (if any) and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found or error loading .env: %v", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a getenv-style lookup.
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		Port:           valueOr(getenv("PORT"), "8080"),
		ReleaseMode:    getenv("GIN_MODE") == "release",
		StorageBackend: valueOr(getenv("STORAGE_BACKEND"), BackendPostgres),
		DatabaseURL:    getenv("DATABASE_URL"),
		SQLitePath:     valueOr(getenv("SQLITE_PATH"), "analytics.db"),
		FrontendOrigin: valueOr(getenv("FE_ORIGIN"), "http://localhost:3000"),
		RequestTimeout: 15 * time.Second,
		ClickHouse: ClickHouseConfig{
			Host:     getenv("CLICKHOUSE_HOST"),
			DBName:   getenv("CLICKHOUSE_DB_NAME"),
			Username: getenv("CLICKHOUSE_USERNAME"),
			Password: getenv("CLICKHOUSE_PASSWORD"),
		},
	}

	switch cfg.StorageBackend {
	case BackendPostgres, BackendSQLite:
	default:
		return nil, fmt.Errorf("invalid STORAGE_BACKEND %q (want %q or %q)", cfg.StorageBackend, BackendPostgres, BackendSQLite)
	}

	if v := getenv("CLICKHOUSE_NATIVE_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid CLICKHOUSE_NATIVE_PORT: %w", err)
		}
		cfg.ClickHouse.NativePort = port
	}

	if v := getenv("DB_AUTO_SCHEMA"); v != "" {
		auto, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid DB_AUTO_SCHEMA: %w", err)
		}
		cfg.AutoSchema = auto
	}

	if v := getenv("REQUEST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid REQUEST_TIMEOUT %q", v)
		}
		cfg.RequestTimeout = d
	}

	return cfg, nil
}

func valueOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
