package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// Image upload configuration
	Upload UploadConfig

	// Token verification
	Auth AuthConfig

	// Realtime comment feed
	Realtime RealtimeConfig

	// Comment reconciliation tuning
	Comments CommentsConfig

	// Settings used by API clients (commentwatch)
	Client ClientConfig

	// Logging configuration
	Log LogConfig
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	MigrationsPath  string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host         string
	Port         string
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

// UploadConfig holds recipe image upload settings
type UploadConfig struct {
	MaxFileSize  int64 // in bytes
	Dir          string
	AllowedTypes []string
	Serve        bool // expose Dir under /uploads
}

// AuthConfig holds identity token settings
type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

// RealtimeConfig holds comment feed settings
type RealtimeConfig struct {
	Broker       string // "memory" or "redis"
	RedisAddr    string
	RedisPass    string
	RedisDB      int
	PingInterval time.Duration
}

// CommentsConfig holds comment behaviour settings
type CommentsConfig struct {
	MatchWindow    time.Duration
	MaxLength      int
	IdempotencyTTL time.Duration
}

// Environment selects which API endpoint clients talk to
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvProduction  Environment = "production"
)

// DefaultDevelopmentURL is the API base URL used in development
const DefaultDevelopmentURL = "http://localhost:8081/api"

// ClientConfig holds API client settings
type ClientConfig struct {
	Environment    Environment
	DevelopmentURL string
	ProductionURL  string
	Timeout        time.Duration
	MaxRetries     int
	RetryDelay     time.Duration
	MatchWindow    time.Duration // pending/confirmed pairing window for watchers
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string
	Format string // "json" or "pretty"
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "8081"),
			ReadTimeout:     getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getDurationEnv("SERVER_WRITE_TIMEOUT", 0),
			ShutdownTimeout: getDurationEnv("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			MigrationsPath:  getEnv("MIGRATIONS_PATH", "./migrations"),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", "postgres"),
			Name:         getEnv("DB_NAME", "recipememo"),
			SSLMode:      getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns: getIntEnv("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getIntEnv("DB_MAX_IDLE_CONNS", 5),
			MaxLifetime:  getDurationEnv("DB_MAX_LIFETIME", 5*time.Minute),
		},
		Upload: UploadConfig{
			MaxFileSize:  getInt64Env("UPLOAD_MAX_FILE_SIZE", 5*1024*1024), // 5MB
			Dir:          getEnv("UPLOAD_DIR", "./data/uploads"),
			AllowedTypes: getListEnv("UPLOAD_ALLOWED_TYPES", []string{"image/jpeg", "image/jpg", "image/png", "image/gif", "image/webp"}),
			Serve:        getBoolEnv("UPLOAD_SERVE", true),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("AUTH_JWT_SECRET", ""),
			TokenTTL:  getDurationEnv("AUTH_TOKEN_TTL", 24*time.Hour),
		},
		Realtime: RealtimeConfig{
			Broker:       getEnv("REALTIME_BROKER", "memory"),
			RedisAddr:    getEnv("REDIS_ADDR", "localhost:6379"),
			RedisPass:    getEnv("REDIS_PASSWORD", ""),
			RedisDB:      getIntEnv("REDIS_DB", 0),
			PingInterval: getDurationEnv("REALTIME_PING_INTERVAL", 15*time.Second),
		},
		Comments: CommentsConfig{
			MatchWindow:    getDurationEnv("COMMENTS_MATCH_WINDOW", 10*time.Second),
			MaxLength:      getIntEnv("COMMENTS_MAX_LENGTH", 1000),
			IdempotencyTTL: getDurationEnv("COMMENTS_IDEMPOTENCY_TTL", 10*time.Minute),
		},
		Client: LoadClient(),
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	// Validate required configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadClient reads only the client settings; used by binaries that never open a database
func LoadClient() ClientConfig {
	return ClientConfig{
		Environment:    Environment(strings.ToLower(getEnv("ENV", string(EnvDevelopment)))),
		DevelopmentURL: getEnv("API_DEV_URL", DefaultDevelopmentURL),
		ProductionURL:  getEnv("API_URL", ""),
		Timeout:        getDurationEnv("API_TIMEOUT", 30*time.Second),
		MaxRetries:     getIntEnv("API_MAX_RETRIES", 3),
		RetryDelay:     getDurationEnv("API_RETRY_DELAY", time.Second),
		MatchWindow:    getDurationEnv("COMMENTS_MATCH_WINDOW", 10*time.Second),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return fmt.Errorf("DB_HOST is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("DB_NAME is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("AUTH_JWT_SECRET is required")
	}
	if c.Realtime.Broker != "memory" && c.Realtime.Broker != "redis" {
		return fmt.Errorf("REALTIME_BROKER must be one of: memory, redis")
	}
	if c.Comments.MatchWindow <= 0 {
		return fmt.Errorf("COMMENTS_MATCH_WINDOW must be positive")
	}
	return c.Client.Validate()
}

// Validate checks the client environment and its endpoint
func (c ClientConfig) Validate() error {
	switch c.Environment {
	case EnvDevelopment:
		if c.DevelopmentURL == "" {
			return fmt.Errorf("API_DEV_URL must not be empty")
		}
	case EnvProduction:
		if c.ProductionURL == "" {
			return fmt.Errorf("API_URL is required in production")
		}
	default:
		return fmt.Errorf("ENV must be one of: development, production (got %q)", c.Environment)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("API_MAX_RETRIES must not be negative")
	}
	return nil
}

// BaseURL returns the API endpoint selected by the environment
func (c ClientConfig) BaseURL() string {
	if c.Environment == EnvProduction {
		return strings.TrimRight(c.ProductionURL, "/")
	}
	return strings.TrimRight(c.DevelopmentURL, "/")
}

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getInt64Env(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
