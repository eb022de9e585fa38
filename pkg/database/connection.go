package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/medrex/zeronet/pkg/config"
	"github.com/medrex/zeronet/pkg/logger"
)

// DB represents the database connection
type DB struct {
	*sql.DB
	config *config.DatabaseConfig
	logger *logger.Logger
}

// NewConnection opens a pooled Postgres connection and pings it
func NewConnection(cfg *config.DatabaseConfig, log *logger.Logger) (*DB, error) {
	sqlDB, err := sql.Open("postgres", buildConnectionString(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.WithComponent("database").WithField("host", cfg.Host).Info("Database connection established")
	return &DB{DB: sqlDB, config: cfg, logger: log}, nil
}

func buildConnectionString(cfg *config.DatabaseConfig) string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.Name,
		cfg.SSLMode,
	)
}

// Close closes the database connection
func (db *DB) Close() error {
	if db.DB != nil {
		return db.DB.Close()
	}
	return nil
}

// Health checks the database connection health
func (db *DB) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

// CreateSchema creates the emergency profile table when missing
func (db *DB) CreateSchema(ctx context.Context) error {
	for _, stmt := range []string{createEmergencyProfilesTable, createEmergencyProfilesIndexes} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	db.logger.WithComponent("database").Info("Database schema ready")
	return nil
}

const (
	createEmergencyProfilesTable = `
		CREATE TABLE IF NOT EXISTS emergency_profiles (
			wallet_address VARCHAR(42) PRIMARY KEY,
			full_name TEXT NOT NULL DEFAULT '',
			blood_group VARCHAR(16) NOT NULL DEFAULT '',
			allergies TEXT NOT NULL DEFAULT '',
			chronic_conditions TEXT NOT NULL DEFAULT '',
			current_medications TEXT NOT NULL DEFAULT '',
			emergency_name TEXT NOT NULL DEFAULT '',
			emergency_phone VARCHAR(32) NOT NULL DEFAULT '',
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		);`

	createEmergencyProfilesIndexes = `
		CREATE INDEX IF NOT EXISTS idx_emergency_profiles_updated_at ON emergency_profiles(updated_at);`
)
