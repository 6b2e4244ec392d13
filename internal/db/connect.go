// Package db opens the Bruno database and manages its schema.
package db

import (
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/zulandar/bruno/internal/config"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// MySQLDSN normalizes a MySQL DSN so that DATETIME columns scan into
// time.Time in UTC.
func MySQLDSN(raw string) (string, error) {
	cfg, err := mysql.ParseDSN(raw)
	if err != nil {
		return "", fmt.Errorf("db: parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	if cfg.Params == nil {
		cfg.Params = map[string]string{}
	}
	if _, ok := cfg.Params["charset"]; !ok {
		cfg.Params["charset"] = "utf8mb4"
	}
	return cfg.FormatDSN(), nil
}

// Connect opens a GORM connection for the configured driver.
func Connect(cfg config.DatabaseConfig) (*gorm.DB, error) {
	switch cfg.Driver {
	case "mysql":
		dsn, err := MySQLDSN(cfg.DSN)
		if err != nil {
			return nil, err
		}
		db, err := gorm.Open(gormmysql.Open(dsn), gormConfig())
		if err != nil {
			return nil, fmt.Errorf("db: connect mysql: %w", err)
		}
		return db, nil
	case "sqlite", "":
		return OpenSQLite(cfg.DSN)
	default:
		return nil, fmt.Errorf("db: unsupported driver %q", cfg.Driver)
	}
}

// OpenSQLite opens a SQLite database with foreign keys enabled. The pool is
// limited to one connection: SQLite serializes writers anyway, and an
// in-memory database is private to the connection that created it.
func OpenSQLite(path string) (*gorm.DB, error) {
	if path == "" {
		path = ":memory:"
	}
	dsn := path
	if !strings.Contains(dsn, "_foreign_keys") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_foreign_keys=on"
	}
	db, err := gorm.Open(sqlite.Open(dsn), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("db: open sqlite %s: %w", path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("db: sqlite pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}
}
