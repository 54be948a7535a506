package database

import (
	"fmt"
	"strings"
	"time"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	sqliteBusyTimeout = 5 * time.Second
)

// DatabaseConfig holds the connection settings of the authorization server store.
type DatabaseConfig struct {
	Driver string

	// URL, when set, is used as the PostgreSQL DSN instead of the discrete fields
	URL string

	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string

	// Path of the SQLite database file, or ":memory:"
	Path string

	// RetryDelays are the waits between connection attempts; nil uses defaultRetryDelays
	RetryDelays []time.Duration
}

// NormalizedDriver maps driver aliases onto DriverPostgres or DriverSQLite.
// Unknown drivers are returned lower-cased and rejected by InitDatabase.
func (c *DatabaseConfig) NormalizedDriver() string {
	switch driver := strings.ToLower(strings.TrimSpace(c.Driver)); driver {
	case "postgres", "postgresql", "pg":
		return DriverPostgres
	case "sqlite", "sqlite3", "":
		return DriverSQLite
	default:
		return driver
	}
}

// String returns a loggable form with credentials redacted
func (c *DatabaseConfig) String() string {
	if c.NormalizedDriver() == DriverSQLite {
		return fmt.Sprintf("DatabaseConfig{Driver: %s, Path: %s}", DriverSQLite, c.Path)
	}
	url := ""
	if c.URL != "" {
		url = "[REDACTED]"
	}
	return fmt.Sprintf("DatabaseConfig{Driver: %s, URL: %s, Host: %s, Port: %s, User: %s, Password: [REDACTED], Name: %s, SSLMode: %s}",
		c.NormalizedDriver(), url, c.Host, c.Port, c.User, c.Name, c.SSLMode)
}

// DSN builds the driver-specific data source name. SQLite files get a busy
// timeout so concurrent writers wait instead of failing with SQLITE_BUSY.
func (c *DatabaseConfig) DSN() string {
	switch c.NormalizedDriver() {
	case DriverPostgres:
		if c.URL != "" {
			return c.URL
		}
		return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
			c.Host, c.User, c.Password, c.Name, c.Port, c.SSLMode)
	case DriverSQLite:
		if strings.Contains(c.Path, "?") {
			return c.Path
		}
		return fmt.Sprintf("%s?_busy_timeout=%d", c.Path, sqliteBusyTimeout.Milliseconds())
	default:
		return ""
	}
}

func (c *DatabaseConfig) retryDelays() []time.Duration {
	if c.RetryDelays != nil {
		return c.RetryDelays
	}
	return defaultRetryDelays
}
