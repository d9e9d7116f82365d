package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/appprecos/scan-gateway/shared"
)

var DB *sql.DB

// Metrics tracks query outcomes across the database layer.
var Metrics = shared.NewDatabaseMetrics()

const schema = `
CREATE TABLE IF NOT EXISTS shopping_list (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	product_name TEXT NOT NULL,
	ean TEXT NOT NULL DEFAULT '',
	ncm TEXT NOT NULL DEFAULT '',
	unidade_comercial TEXT NOT NULL DEFAULT '',
	added_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_shopping_list_ean_name ON shopping_list(ean, product_name);
CREATE INDEX IF NOT EXISTS idx_shopping_list_added_at ON shopping_list(added_at);
`

// Connect opens the local SQLite database and applies pragmas suitable for
// a single long-running process.
func Connect(path string) error {
	var err error
	DB, err = sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// modernc.org/sqlite serializes writes internally; a single connection
	// avoids SQLITE_BUSY under concurrent handlers.
	DB.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := DB.Exec(pragma); err != nil {
			return fmt.Errorf("failed to apply pragma %q: %w", pragma, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := DB.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	logrus.WithField("path", path).Info("Connected to local database")
	return nil
}

// Migrate applies the embedded schema. Statements are idempotent so
// migration runs on every startup.
func Migrate() error {
	if DB == nil {
		return fmt.Errorf("database connection not established")
	}

	started := time.Now()
	_, err := DB.Exec(schema)
	Metrics.RecordQuery(err == nil, time.Since(started), false)
	if err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}

	logrus.Info("Database migration completed successfully")
	return nil
}

// HealthCheck verifies the database is reachable.
func HealthCheck() error {
	if DB == nil {
		return fmt.Errorf("database connection not established")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := DB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// GetConnectionStats returns current connection pool statistics.
func GetConnectionStats() sql.DBStats {
	if DB == nil {
		return sql.DBStats{}
	}
	return DB.Stats()
}

func Close() {
	if DB != nil {
		DB.Close()
		logrus.Info("Database connection closed")
	}
}
