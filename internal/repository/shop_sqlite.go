package repository

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // Pure Go SQLite driver - no CGO required
)

var sqliteDialect = dialect{
	name: "sqlite",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS shop_keys (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			tier TEXT NOT NULL,
			key_value TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_shop_keys_tier ON shop_keys(tier, id)`,
		`CREATE TABLE IF NOT EXISTS shop_orders (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			tier TEXT NOT NULL,
			quantity INTEGER NOT NULL,
			total INTEGER NOT NULL,
			status TEXT NOT NULL,
			delivered_keys TEXT NOT NULL DEFAULT '',
			delivered INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_shop_orders_status ON shop_orders(status)`,
		`CREATE TABLE IF NOT EXISTS shop_settings (
			name TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	},
	upsertSetting: `INSERT INTO shop_settings (name, value) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value`,
}

// NewSQLiteShopRepository opens (or creates) a SQLite database at dbPath.
// Use ":memory:" for a throwaway database.
func NewSQLiteShopRepository(dbPath string) (*SQLShopRepository, error) {
	dsn := dbPath
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create SQLite dir: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)", dbPath)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}

	// SQLite only supports 1 writer; one connection also keeps :memory: shared
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	repo, err := newSQLShopRepository(db, sqliteDialect)
	if err != nil {
		db.Close()
		return nil, err
	}

	zap.L().Info("shop_repository_ready", zap.String("driver", "sqlite"), zap.String("path", dbPath))
	return repo, nil
}
