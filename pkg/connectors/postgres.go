// Copyright (c) 2024-2026 VettaAI
// Author: Arjun Mehta <arjun@vetta.ai>
//
// Licensed under GPL-2.0 with Vetta Additional Terms.
// See LICENSE.md or contact sales@vetta.ai for commercial usage.
package connectors

import (
	"context"
	"fmt"
	"time"

	"github.com/vettaai/pkg/commons"
	"github.com/vettaai/pkg/configs"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// PostgresConnector hands out the shared gorm handle. DB takes the
// request context so statement cancellation follows the caller.
type PostgresConnector interface {
	DB(ctx context.Context) *gorm.DB
	Close() error
}

type postgresConnector struct {
	db     *gorm.DB
	logger commons.Logger
}

// NewPostgresConnector opens the connection pool described by cfg.
func NewPostgresConnector(cfg *configs.PostgresConfig, logger commons.Logger) (PostgresConnector, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.Auth.User, cfg.Auth.Password, cfg.DbName, sslMode(cfg))

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access underlying sql.DB: %w", err)
	}
	if cfg.MaxOpenConnection > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConnection)
	}
	if cfg.MaxIdealConnection > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdealConnection)
	}
	sqlDB.SetConnMaxLifetime(time.Hour)

	logger.Infof("postgres connected: host=%s db=%s", cfg.Host, cfg.DbName)
	return &postgresConnector{db: db, logger: logger}, nil
}

// NewPostgresConnectorFromDB wraps an existing gorm handle. Used by
// tests to inject sqlmock or sqlite-backed handles.
func NewPostgresConnectorFromDB(db *gorm.DB, logger commons.Logger) PostgresConnector {
	return &postgresConnector{db: db, logger: logger}
}

func (c *postgresConnector) DB(ctx context.Context) *gorm.DB {
	return c.db.WithContext(ctx)
}

func (c *postgresConnector) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func sslMode(cfg *configs.PostgresConfig) string {
	if cfg.SslMode == "" {
		return "disable"
	}
	return cfg.SslMode
}
