package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
)

var mysqlDialect = dialect{
	name: "mysql",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS shop_keys (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			tier VARCHAR(16) NOT NULL,
			key_value TEXT NOT NULL,
			INDEX idx_shop_keys_tier (tier, id)
		)`,
		`CREATE TABLE IF NOT EXISTS shop_orders (
			id VARCHAR(64) PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			tier VARCHAR(16) NOT NULL,
			quantity INT NOT NULL,
			total BIGINT NOT NULL,
			status VARCHAR(16) NOT NULL,
			delivered_keys TEXT NOT NULL,
			delivered INT NOT NULL DEFAULT 0,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL,
			INDEX idx_shop_orders_status (status)
		)`,
		`CREATE TABLE IF NOT EXISTS shop_settings (
			name VARCHAR(64) PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	},
	upsertSetting: `INSERT INTO shop_settings (name, value) VALUES (?, ?)
		ON DUPLICATE KEY UPDATE value = VALUES(value)`,
	forUpdate: " FOR UPDATE",
}

// NewMySQLShopRepository connects to MySQL and creates the shop tables.
// dsn format: "user:password@tcp(host:port)/dbname?parseTime=true"
func NewMySQLShopRepository(dsn string) (*SQLShopRepository, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	repo, err := newSQLShopRepository(db, mysqlDialect)
	if err != nil {
		db.Close()
		return nil, err
	}

	zap.L().Info("shop_repository_ready", zap.String("driver", "mysql"))
	return repo, nil
}
