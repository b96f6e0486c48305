package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort string
	ServerHost string

	// Auth: either a JWT secret or an explicit opt-in to no auth.
	JWTSecret    string
	InsecureAuth bool

	// Recording
	SnapshotEvery int // events between rolling snapshots

	// Archive (Postgres); disabled runs memory-only
	ArchiveEnabled       bool
	ArchiveWorkers       int
	ArchiveQueueSize     int
	ArchiveRetentionDays int // 0 keeps recordings forever
	DBHost               string
	DBPort               string
	DBUser               string
	DBPassword           string
	DBName               string
	DBSSLMode            string

	// Presence mirror (Redis); empty addr disables it
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Lifecycle bus (Kafka); empty broker list disables it
	KafkaBrokers []string
	KafkaTopic   string

	// Observability
	JaegerEndpoint string
}

func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		ServerPort: getEnv("SERVER_PORT", "8080"),
		ServerHost: getEnv("SERVER_HOST", "localhost"),

		JWTSecret:    getEnv("JWT_SECRET", ""),
		InsecureAuth: getEnvBool("INSECURE_AUTH", false),

		SnapshotEvery: getEnvInt("SNAPSHOT_EVERY", 250),

		ArchiveEnabled:       getEnvBool("ARCHIVE_ENABLED", true),
		ArchiveWorkers:       getEnvInt("ARCHIVE_WORKERS", 2),
		ArchiveQueueSize:     getEnvInt("ARCHIVE_QUEUE_SIZE", 32),
		ArchiveRetentionDays: getEnvInt("ARCHIVE_RETENTION_DAYS", 0),
		DBHost:               getEnv("DB_HOST", "localhost"),
		DBPort:               getEnv("DB_PORT", "5432"),
		DBUser:               getEnv("DB_USER", "postgres"),
		DBPassword:           getEnv("DB_PASSWORD", "postgres"),
		DBName:               getEnv("DB_NAME", "mol_collab"),
		DBSSLMode:            getEnv("DB_SSLMODE", "disable"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		KafkaBrokers: getEnvList("KAFKA_BROKERS"),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "mol-collab.lifecycle"),

		JaegerEndpoint: getEnv("JAEGER_ENDPOINT", "http://localhost:14268/api/traces"),
	}

	if cfg.JWTSecret == "" && !cfg.InsecureAuth {
		return nil, fmt.Errorf("JWT_SECRET is required (or set INSECURE_AUTH=true for local development)")
	}

	return cfg, nil
}

func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated env var, dropping empty entries.
func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
