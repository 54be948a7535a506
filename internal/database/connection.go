package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var log = logrus.New()

func init() {
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetLevel(logrus.InfoLevel)
}

var defaultRetryDelays = []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}

const pingTimeout = 5 * time.Second

// InitDatabase opens and pings the store, retrying with backoff while the
// database comes up. The pool is sized for the driver.
func InitDatabase(cfg DatabaseConfig) (*gorm.DB, error) {
	driver := cfg.NormalizedDriver()
	dialector, err := openDialector(driver, cfg.DSN())
	if err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"db_driver": driver,
		"db_config": cfg.String(),
	}).Info("Initializing database connection")

	delays := cfg.retryDelays()
	attempts := len(delays) + 1
	for attempt := 1; ; attempt++ {
		db, err := connect(dialector)
		if err == nil {
			sqlDB, _ := db.DB()
			configureConnectionPool(sqlDB, driver)
			log.WithFields(logrus.Fields{
				"db_driver": driver,
				"attempt":   attempt,
			}).Info("Database initialized successfully")
			return db, nil
		}

		log.WithFields(logrus.Fields{
			"attempt":      attempt,
			"max_attempts": attempts,
		}).WithError(err).Warn("Database connection attempt failed")

		if attempt == attempts {
			return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", attempts, err)
		}
		time.Sleep(delays[attempt-1])
	}
}

func openDialector(driver, dsn string) (gorm.Dialector, error) {
	switch driver {
	case DriverPostgres:
		return postgres.Open(dsn), nil
	case DriverSQLite:
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s (supported: postgres, sqlite)", driver)
	}
}

// connect opens the pool and verifies it with a bounded ping. Store errors are
// translated to gorm sentinels such as gorm.ErrDuplicatedKey.
func connect(dialector gorm.Dialector) (*gorm.DB, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// poolSettings returns the pool limits for driver. SQLite gets a single
// connection that is never recycled: the conditional UPDATE that consumes a
// code is serialized with other writers, and a ":memory:" database lives only
// as long as its connection.
func poolSettings(driver string) (maxOpen, maxIdle int, maxLifetime time.Duration) {
	if driver == DriverSQLite {
		return 1, 1, 0
	}
	return 25, 5, 5 * time.Minute
}

func configureConnectionPool(sqlDB *sql.DB, driver string) {
	maxOpen, maxIdle, maxLifetime := poolSettings(driver)
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(maxLifetime)

	log.WithFields(logrus.Fields{
		"max_open_conns":    maxOpen,
		"max_idle_conns":    maxIdle,
		"conn_max_lifetime": maxLifetime.String(),
	}).Debug("Connection pool configured")
}
