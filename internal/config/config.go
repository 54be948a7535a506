package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/franciscosanchezn/gin-oauth2-server/internal/database"
	"github.com/sirupsen/logrus"
)

// Create a new instance of the logger
// Configure it to log at the desired level
// and format it as JSON for structured logging
var log = logrus.New()

func init() {
	log.SetFormatter(&logrus.JSONFormatter{})
	environment := GetEnvWithDefault("APP_ENV", "development")
	switch environment {
	case "development":
		log.SetLevel(logrus.DebugLevel)
	case "production":
		log.SetLevel(logrus.ErrorLevel)
	default:
		// Default to info level for other environments
		log.SetLevel(logrus.InfoLevel)
	}
}

// Code store backends
const (
	CodeStoreDatabase = "database"
	CodeStoreRedis    = "redis"
)

// Config used for the application configuration, loading the input from environment variables
type Config struct {
	// Server Configuration
	Port        int    `json:"port"`
	Host        string `json:"host"`
	Environment string `json:"environment"`

	// Database configuration
	DatabaseURL string `json:"database_url"`
	DBDriver    string `json:"db_driver"`
	DBHost      string `json:"db_host"`
	DBPort      string `json:"db_port"`
	DBName      string `json:"db_name"`
	DBUser      string `json:"db_user"`
	DBPassword  string `json:"db_password"`
	DBSSLMode   string `json:"db_sslmode"`
	DBPath      string `json:"db_path"`

	// Logging configuration
	LogLevel string `json:"log_level"`

	// Security Configuration
	JWTSecret     string `json:"jwt_secret"`
	SessionSecret string `json:"session_secret"`

	// OAuth2 Configuration
	CodeTTL             time.Duration `json:"code_ttl"`
	AccessTokenLifetime time.Duration `json:"access_token_lifetime"`
	RedirectPolicy      string        `json:"redirect_policy"`
	CodeStore           string        `json:"code_store"`
	CodeSweepInterval   time.Duration `json:"code_sweep_interval"`
	LoginURL            string        `json:"login_url"`
	TokenRateLimit      int           `json:"token_rate_limit"`
	TokenRateBurst      int           `json:"token_rate_burst"`

	// Redis Configuration
	RedisAddr     string `json:"redis_addr"`
	RedisPassword string `json:"redis_password"`
	RedisDB       int    `json:"redis_db"`
}

// String returns a string representation of Config with sensitive data masked
func (c *Config) String() string {
	return fmt.Sprintf("Config{Port: %d, Host: %s, Environment: %s, DatabaseURL: %s, DBDriver: %s, DBHost: %s, DBName: %s, DBUser: %s, DBPassword: [REDACTED], LogLevel: %s, JWTSecret: [REDACTED], SessionSecret: [REDACTED], CodeTTL: %s, AccessTokenLifetime: %s, RedirectPolicy: %s, CodeStore: %s, RedisAddr: %s, RedisPassword: [REDACTED]}",
		c.Port, c.Host, c.Environment, maskDatabaseURL(c.DatabaseURL), c.DBDriver, c.DBHost, c.DBName, c.DBUser, c.LogLevel,
		c.CodeTTL, c.AccessTokenLifetime, c.RedirectPolicy, c.CodeStore, c.RedisAddr)
}

// maskDatabaseURL masks password in database URL
func maskDatabaseURL(dbURL string) string {
	if dbURL == "" {
		return ""
	}

	parsed, err := url.Parse(dbURL)
	if err != nil {
		return "[REDACTED_INVALID_URL]"
	}

	if parsed.User != nil {
		// Replace password with [REDACTED]
		parsed.User = url.UserPassword(parsed.User.Username(), "[REDACTED]")
	}

	return parsed.String()
}

// LoadConfig read the proper configuration from environment variables and returns a Config struct
// It validates formats like DatabaseURL and the OAuth2 policies
// Returns an error if any environment variable is invalid
func LoadConfig() (*Config, error) {
	log.Info("Loading configuration from environment variables")
	port, err := strconv.Atoi(GetEnvWithDefault("APP_PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid APP_PORT: %w", err)
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL != "" {
		if _, err := url.ParseRequestURI(dbURL); err != nil {
			return nil, fmt.Errorf("invalid DATABASE_URL format: %w", err)
		}
	}

	config := &Config{
		Port:        port,
		Host:        GetEnvWithDefault("APP_HOST", "localhost"),
		Environment: GetEnvWithDefault("APP_ENV", "development"),

		DatabaseURL: dbURL,
		DBDriver:    GetEnvWithDefault("DB_DRIVER", "sqlite"),
		DBHost:      GetEnvWithDefault("DB_HOST", "localhost"),
		DBPort:      GetEnvWithDefault("DB_PORT", "5432"),
		DBName:      GetEnvWithDefault("DB_NAME", "oauth2"),
		DBUser:      GetEnvWithDefault("DB_USER", "user"),
		DBPassword:  GetEnvWithDefault("DB_PASSWORD", "password"),
		DBSSLMode:   GetEnvWithDefault("DB_SSLMODE", "disable"),
		DBPath:      GetEnvWithDefault("DB_PATH", "oauth2.sqlite"),

		LogLevel: GetEnvWithDefault("LOG_LEVEL", "info"),

		JWTSecret:     GetEnvWithDefault("JWT_SECRET", "secret"),
		SessionSecret: GetEnvWithDefault("SESSION_SECRET", "session-secret"),

		CodeTTL:             GetEnvAsType("OAUTH_CODE_TTL", 10*time.Minute),
		AccessTokenLifetime: GetEnvAsType("OAUTH_ACCESS_TOKEN_LIFETIME", time.Hour),
		RedirectPolicy:      GetEnvWithDefault("OAUTH_REDIRECT_POLICY", "exact"),
		CodeStore:           GetEnvWithDefault("OAUTH_CODE_STORE", CodeStoreDatabase),
		CodeSweepInterval:   GetEnvAsType("CODE_SWEEP_INTERVAL", 5*time.Minute),
		LoginURL:            GetEnvWithDefault("LOGIN_URL", "/login"),
		TokenRateLimit:      GetEnvAsType("TOKEN_RATE_LIMIT", 10),
		TokenRateBurst:      GetEnvAsType("TOKEN_RATE_BURST", 20),

		RedisAddr:     GetEnvWithDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       GetEnvAsType("REDIS_DB", 0),
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	log.Infof("Configuration loaded: %s", config.String())
	return config, nil
}

func (c *Config) validate() error {
	switch c.RedirectPolicy {
	case "exact", "prefix":
	default:
		return fmt.Errorf("invalid OAUTH_REDIRECT_POLICY %q (supported: exact, prefix)", c.RedirectPolicy)
	}
	switch c.CodeStore {
	case CodeStoreDatabase, CodeStoreRedis:
	default:
		return fmt.Errorf("invalid OAUTH_CODE_STORE %q (supported: database, redis)", c.CodeStore)
	}
	if c.CodeTTL <= 0 {
		return fmt.Errorf("OAUTH_CODE_TTL must be positive, got %s", c.CodeTTL)
	}
	if c.RedirectPolicy == "prefix" {
		log.Warn("OAUTH_REDIRECT_POLICY=prefix accepts redirect URIs by string prefix; use exact matching where possible")
	}
	return nil
}

// Helper to get environment with default values
func GetEnvWithDefault(key, defaultValue string) string {
	log.Tracef("Getting environment variable: %s", key)
	value := os.Getenv(key)
	if value == "" {
		log.Debugf("Environment variable %s not set, using default value", key)
		return defaultValue
	}
	return value
}

// GetEnvAsType retrieves an environment variable and converts it to the specified type
// using generic type handling.
func GetEnvAsType[T any](key string, defaultValue T) T {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var result T
	switch any(result).(type) {
	case int:
		intValue, err := strconv.Atoi(value)
		if err != nil {
			return defaultValue
		}
		return any(intValue).(T)
	case string:
		return any(value).(T)
	case bool:
		boolValue, err := strconv.ParseBool(value)
		if err != nil {
			return defaultValue
		}
		return any(boolValue).(T)
	case time.Duration:
		durationValue, err := time.ParseDuration(value)
		if err != nil {
			return defaultValue
		}
		return any(durationValue).(T)
	default:
		return defaultValue // Fallback for unsupported types
	}
}

// Database returns the connection settings for database.InitDatabase.
func (c *Config) Database() database.DatabaseConfig {
	return database.DatabaseConfig{
		Driver:   c.DBDriver,
		URL:      c.DatabaseURL,
		Host:     c.DBHost,
		Port:     c.DBPort,
		User:     c.DBUser,
		Password: c.DBPassword,
		Name:     c.DBName,
		SSLMode:  c.DBSSLMode,
		Path:     c.DBPath,
	}
}
