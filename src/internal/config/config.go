package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const defaultConnectionString = "Host=localhost;Port=5432;Database=bank_ledger_db;Username=postgres;Password=postgres;Timeout=30;CommandTimeout=30"
const defaultEnvironment = "local"
const defaultEventsTopic = "ledger.transaction_completed"
const defaultAccountType = "savings"

type Config struct {
	DatabaseDSN        string
	MigrationsDir      string
	Environment        string
	LogLevel           string
	KafkaBrokers       []string
	EventsTopic        string
	DefaultAccountType string
	DBMaxOpenConns     int
	DBMaxIdleConns     int
}

// Load reads an optional .env file from the working directory and then the
// process environment. Values already present in the environment win.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env file: %w", err)
	}

	conn := envOrDefault("DATABASE_DSN", defaultConnectionString)

	maxOpen, err := envInt("DB_MAX_OPEN_CONNS")
	if err != nil {
		return Config{}, err
	}
	maxIdle, err := envInt("DB_MAX_IDLE_CONNS")
	if err != nil {
		return Config{}, err
	}

	return Config{
		DatabaseDSN:        normalizeConnectionString(conn),
		MigrationsDir:      envOrDefault("MIGRATIONS_DIR", filepath.Join("src", "migrations")),
		Environment:        envOrDefault("ENV_NAME", defaultEnvironment),
		LogLevel:           strings.TrimSpace(os.Getenv("LOG_LEVEL")),
		KafkaBrokers:       splitList(os.Getenv("KAFKA_BROKERS")),
		EventsTopic:        envOrDefault("LEDGER_EVENTS_TOPIC", defaultEventsTopic),
		DefaultAccountType: envOrDefault("DEFAULT_ACCOUNT_TYPE", defaultAccountType),
		DBMaxOpenConns:     maxOpen,
		DBMaxIdleConns:     maxIdle,
	}, nil
}

// envInt returns 0 when key is unset so the pool falls back to its defaults.
func envInt(key string) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer, got %q", key, raw)
	}
	return n, nil
}

func envOrDefault(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func normalizeConnectionString(raw string) string {
	if strings.HasPrefix(raw, "postgres://") || strings.HasPrefix(raw, "postgresql://") {
		return raw
	}

	parts := strings.Split(raw, ";")
	out := make([]string, 0, len(parts))
	hasSSLMode := false

	for _, part := range parts {
		p := strings.TrimSpace(part)
		if p == "" {
			continue
		}

		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}

		key := strings.ToLower(strings.TrimSpace(kv[0]))
		val := strings.TrimSpace(kv[1])

		switch key {
		case "host":
			out = append(out, "host="+val)
		case "port":
			out = append(out, "port="+val)
		case "database":
			out = append(out, "dbname="+val)
		case "username":
			out = append(out, "user="+val)
		case "password":
			out = append(out, "password="+val)
		case "timeout", "connect timeout":
			out = append(out, "connect_timeout="+val)
		case "commandtimeout", "command timeout":
			out = append(out, "statement_timeout="+val+"s")
		case "sslmode":
			hasSSLMode = true
			out = append(out, "sslmode="+val)
		default:
			out = append(out, key+"="+val)
		}
	}

	if len(out) == 0 {
		return raw
	}

	if !hasSSLMode {
		out = append(out, "sslmode=disable")
	}

	return strings.Join(out, " ")
}
