package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

const (
	defaultApplicationName = "linkreach"
	defaultPingTimeout     = 5 * time.Second
)

type DBConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration

	// ApplicationName shows up in pg_stat_activity; defaults to "linkreach"
	// unless the DSN already names one.
	ApplicationName  string
	StatementTimeout time.Duration
	PingTimeout      time.Duration
	// RequireSchema makes Open fail when the session tables are missing,
	// so a service started before linkreach-migrate exits early.
	RequireSchema bool
}

func Open(ctx context.Context, cfg DBConfig) (*sql.DB, error) {
	connConfig, err := parseConnConfig(cfg)
	if err != nil {
		return nil, err
	}

	db := stdlib.OpenDB(*connConfig)
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	timeout := cfg.PingTimeout
	if timeout <= 0 {
		timeout = defaultPingTimeout
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping catalog db: %w", err)
	}
	if cfg.RequireSchema {
		if err := checkSchema(pingCtx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return db, nil
}

// parseConnConfig turns the DSN into a pgx config carrying the session
// parameters every catalog connection starts with.
func parseConnConfig(cfg DBConfig) (*pgx.ConnConfig, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, fmt.Errorf("catalog dsn is required")
	}
	connConfig, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse catalog dsn: %w", err)
	}
	if connConfig.RuntimeParams == nil {
		connConfig.RuntimeParams = map[string]string{}
	}
	if _, ok := connConfig.RuntimeParams["application_name"]; !ok {
		name := strings.TrimSpace(cfg.ApplicationName)
		if name == "" {
			name = defaultApplicationName
		}
		connConfig.RuntimeParams["application_name"] = name
	}
	if cfg.StatementTimeout > 0 {
		connConfig.RuntimeParams["statement_timeout"] = strconv.FormatInt(cfg.StatementTimeout.Milliseconds(), 10)
	}
	return connConfig, nil
}

func checkSchema(ctx context.Context, db *sql.DB) error {
	var datasets, artifacts bool
	err := db.QueryRowContext(ctx, `
SELECT to_regclass('dataset') IS NOT NULL, to_regclass('artifact') IS NOT NULL`).Scan(&datasets, &artifacts)
	if err != nil {
		return fmt.Errorf("check catalog schema: %w", err)
	}
	if !datasets || !artifacts {
		return fmt.Errorf("catalog schema is missing session tables; run linkreach-migrate first")
	}
	return nil
}
