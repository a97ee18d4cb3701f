package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrNotFound is returned by Store lookups that match no row.
var ErrNotFound = errors.New("record not found")

type Options struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
}

func (o Options) DSN() string {
	sslMode := o.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		o.Host, o.User, o.Password, o.Name, o.Port, sslMode,
	)
}

// Open connects gorm to Postgres and a plain database/sql pool (lib/pq) used
// for health checks.
func Open(o Options) (*gorm.DB, *sql.DB, error) {
	dsn := o.DSN()
	gormDB, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("gorm connection failed: %w", err)
	}

	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("sql connection failed: %w", err)
	}
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	return gormDB, sqlDB, nil
}

// Ping checks the database is reachable within a short deadline.
func Ping(ctx context.Context, sqlDB *sql.DB) error {
	if sqlDB == nil {
		return errors.New("database pool not initialized")
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}
