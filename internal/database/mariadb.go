// Package database owns the MySQL and Redis connections: open, pool
// configuration, readiness ping, and schema migrations. Connections are
// created once at startup and handed to the plugins that need them.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	// MySQL driver, registered for database/sql.
	_ "github.com/go-sql-driver/mysql"

	"github.com/keyxmakerx/darim/internal/config"
)

// pingAttempts bounds how long startup waits for MySQL to accept connections.
const pingAttempts = 10

// NewMariaDB opens a MySQL/MariaDB pool configured from cfg and waits until
// the server answers a ping.
func NewMariaDB(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening mysql connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := waitForPing(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// waitForPing pings with exponential backoff. The database container often
// starts after the app container in compose setups.
func waitForPing(ctx context.Context, db *sql.DB) error {
	backoff := time.Second
	var pingErr error

	for attempt := 1; attempt <= pingAttempts; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		pingErr = db.PingContext(pingCtx)
		cancel()
		if pingErr == nil {
			return nil
		}
		if attempt == pingAttempts {
			break
		}

		slog.Warn("mysql not ready, retrying",
			slog.Int("attempt", attempt),
			slog.Duration("backoff", backoff),
			slog.Any("error", pingErr),
		)

		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for mysql: %w", ctx.Err())
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, 30*time.Second)
	}

	return fmt.Errorf("pinging mysql after %d attempts: %w", pingAttempts, pingErr)
}
