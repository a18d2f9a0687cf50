// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Storage backends.
const (
	StorageRedis  = "redis"
	StorageMemory = "memory"
)

// Config holds all configuration shared by the binaries. Component packages
// keep their own Default*Config constructors; cmd/ maps these values onto them.
type Config struct {
	Env      string
	LogLevel string

	ListenAddr string
	ClientURL  string // allowed CORS origin
	ServerName string // identifies this gateway instance for cross-instance relay

	Storage     string // "redis" or "memory"
	RedisURL    string
	DatabaseURL string
	NATSURL     string // empty runs the gateway single-instance

	WorkerPoolSize int
	MaxConnections int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration

	RunWorker         bool
	WorkerConcurrency int

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	MailFrom     string
}

// Load reads configuration from environment variables, loading a .env file
// first when one is present. Production requires REDIS_URL and DATABASE_URL.
func Load() (*Config, error) {
	_ = godotenv.Load()

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "gw-1"
	}

	cfg := &Config{
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		ListenAddr: getEnv("LISTEN_ADDR", ":8080"),
		ClientURL:  getEnv("CLIENT_URL", "*"),
		ServerName: getEnv("SERVER_NAME", hostname),

		Storage:     getEnv("STORAGE", StorageRedis),
		RedisURL:    getEnv("REDIS_URL", "redis://localhost:6379/0"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		NATSURL:     os.Getenv("NATS_URL"),

		WorkerPoolSize: getInt("WORKER_POOL_SIZE", 256),
		MaxConnections: getInt("MAX_CONNECTIONS", 100000),
		ReadTimeout:    getDuration("READ_TIMEOUT", 10*time.Second),
		WriteTimeout:   getDuration("WRITE_TIMEOUT", 10*time.Second),

		RunWorker:         getBool("RUN_WORKER", true),
		WorkerConcurrency: getInt("WORKER_CONCURRENCY", 4),

		SMTPHost:     os.Getenv("SMTP_HOST"),
		SMTPPort:     getInt("SMTP_PORT", 587),
		SMTPUsername: os.Getenv("SMTP_USERNAME"),
		SMTPPassword: os.Getenv("SMTP_PASSWORD"),
		MailFrom:     getEnv("MAIL_FROM", "no-reply@flicker.app"),
	}

	if cfg.Storage != StorageRedis && cfg.Storage != StorageMemory {
		return nil, fmt.Errorf("config: unknown STORAGE %q", cfg.Storage)
	}

	if cfg.IsProduction() {
		if os.Getenv("REDIS_URL") == "" {
			return nil, fmt.Errorf("config: REDIS_URL is required in production")
		}
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("config: DATABASE_URL is required in production")
		}
		if cfg.Storage == StorageMemory {
			return nil, fmt.Errorf("config: memory storage is not allowed in production")
		}
	}

	return cfg, nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// SMTPEnabled reports whether outbound email is configured.
func (c *Config) SMTPEnabled() bool {
	return c.SMTPHost != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}
