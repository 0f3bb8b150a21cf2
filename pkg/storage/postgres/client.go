// Package postgres is the relational store for instrument dimensions and
// observation facts.
package postgres

import (
	"context"
	"fmt"

	"ratecollector/config"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type Client struct {
	DB     *gorm.DB
	Logger *zap.Logger
}

func NewClient(dsn string, logger *zap.Logger) (*Client, error) {
	// TranslateError maps driver unique-violation errors to
	// gorm.ErrDuplicatedKey, which the dimension resolvers depend on.
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	return &Client{DB: db, Logger: logger}, nil
}

func (c *Client) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

// InitializeAndMigrate connects to Postgres, optionally creates the DB,
// runs AutoMigrate for all tables and applies the pool settings.
func InitializeAndMigrate(cfg config.PostgresConfig, env string, createDB bool, logger *zap.Logger) (*Client, error) {
	if createDB {
		if err := CreateDatabase(cfg, env); err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
	}

	client, err := NewClient(cfg.DSN(env), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	if err := client.AutoMigrate(); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	if err := client.configurePool(cfg); err != nil {
		return nil, fmt.Errorf("failed to configure pool: %w", err)
	}

	return client, nil
}

func (c *Client) AutoMigrate() error {
	if err := c.DB.AutoMigrate(&Currency{}, &ExchangeRate{}, &GoldType{}, &GoldPrice{}); err != nil {
		return fmt.Errorf("auto-migrate rate tables: %w", err)
	}
	return nil
}

func (c *Client) configurePool(cfg config.PostgresConfig) error {
	db, err := c.DB.DB()
	if err != nil {
		return err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return nil
}

func (c *Client) IsHealthy(ctx context.Context) bool {
	db, err := c.DB.DB()
	if err != nil {
		return false
	}
	return db.PingContext(ctx) == nil
}

func (c *Client) Close() error {
	db, err := c.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to retrieve raw DB: %w", err)
	}
	return db.Close()
}
