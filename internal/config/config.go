package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/sheikh-saqib/banking-ledger-service/internal/ledger"
)

// Config holds everything the server binary needs, read from the
// environment with an optional .env file underneath.
type Config struct {
	HTTPAddr     string        // listen address, default :8080
	DatabaseURL  string        // empty means the in-memory store
	KafkaBrokers []string      // empty means no event publishing
	LockWait     time.Duration // bound on waiting for a contended account
	LogLevel     string        // logrus level name
}

// Load reads configuration. A missing .env file is not an error; real
// environment variables win over the file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		LockWait:    ledger.DefaultLockWait,
		LogLevel:    getenv("LOG_LEVEL", "info"),
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}
	if wait := os.Getenv("LOCK_WAIT"); wait != "" {
		if d, err := time.ParseDuration(wait); err == nil && d > 0 {
			cfg.LockWait = d
		}
	}
	return cfg
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
