package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMySQL    = "mysql"
)

// Config selects and tunes the SQL backend.
type Config struct {
	Driver          string        `yaml:"driver"`
	URL             string        `yaml:"url"`
	SQLitePath      string        `yaml:"sqlite_path"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	SlowThreshold   time.Duration `yaml:"slow_threshold"`
}

// dialector resolves the driver the same way the server always has: an
// explicit driver wins, otherwise a URL means postgres and no URL means a
// local sqlite file.
func (c Config) dialector() (gorm.Dialector, string, error) {
	driver := strings.ToLower(strings.TrimSpace(c.Driver))
	sqlitePath := c.SQLitePath
	if sqlitePath == "" {
		sqlitePath = "crud.db"
	}

	switch driver {
	case "", "default":
		if c.URL != "" {
			return postgres.Open(c.URL), DriverPostgres, nil
		}
		return sqlite.Open(sqlitePath), DriverSQLite, nil
	case "postgres", "pgx":
		if c.URL == "" {
			return nil, "", fmt.Errorf("url required for %s driver", driver)
		}
		return postgres.Open(c.URL), DriverPostgres, nil
	case "mysql":
		if c.URL == "" {
			return nil, "", fmt.Errorf("url required for %s driver", driver)
		}
		return mysql.Open(c.URL), DriverMySQL, nil
	case "sqlite", "sqlite3":
		return sqlite.Open(sqlitePath), DriverSQLite, nil
	default:
		return nil, "", fmt.Errorf("unsupported driver: %s", c.Driver)
	}
}

// Open connects to the configured database, applies the pool settings and
// pings it.
func Open(cfg Config, opts ...Option) (*gorm.DB, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}

	dialector, driver, err := cfg.dialector()
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         NewLogger(options.logger, cfg.SlowThreshold),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), options.pingTimeout)
	defer cancel()
	if err := Ping(ctx, db); err != nil {
		_ = Close(db)
		return nil, err
	}
	return db, nil
}

// Ping checks the connection behind db.
func Ping(ctx context.Context, db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("nil db")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
