package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

func init() {
	// Load .env file if it exists (silent fail if not)
	_ = godotenv.Load()
}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Server  ServerConfig
	App     AppConfig
	Discord DiscordConfig
	Payment PaymentConfig
	Store   StoreConfig
	Lock    LockConfig
	Sweep   SweepConfig
}

// ServerConfig holds HTTP server settings for the webhook endpoint.
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"PORT" default:"3000"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"15s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name        string `envconfig:"APP_NAME" default:"keyshop-bot"`
	Environment string `envconfig:"APP_ENV" default:"development"`
	Debug       bool   `envconfig:"APP_DEBUG" default:"false"`
	Version     string `envconfig:"APP_VERSION" default:"1.0.0"`
}

// DiscordConfig holds the bot credential and the guild it serves.
type DiscordConfig struct {
	Token       string `envconfig:"BOT_TOKEN"`
	ClientID    string `envconfig:"CLIENT_ID"`
	GuildID     string `envconfig:"GUILD_ID"`
	AdminRoleID string `envconfig:"ADMIN_ROLE_ID"`
}

// PaymentConfig holds payment-provider settings.
type PaymentConfig struct {
	APIKey        string `envconfig:"SEPAY_API_KEY" default:""` // reserved for provider API calls
	WebhookSecret string `envconfig:"WEBHOOK_SECRET"`
}

// StoreConfig selects and configures the shop repository.
type StoreConfig struct {
	Type string `envconfig:"STORE_TYPE" default:"json"` // json, sqlite, mysql, postgres or mongodb
	Path string `envconfig:"STORE_PATH" default:"./database.json"`
	// MySQL / PostgreSQL settings
	Host     string `envconfig:"DB_HOST" default:"localhost"`
	Port     int    `envconfig:"DB_PORT" default:"0"`
	Name     string `envconfig:"DB_NAME" default:"keyshop"`
	User     string `envconfig:"DB_USER" default:"root"`
	Password string `envconfig:"DB_PASS" default:""`
	SSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
	// MongoDB settings
	MongoURI        string `envconfig:"MONGODB_URI" default:""`
	MongoDatabase   string `envconfig:"MONGODB_DATABASE" default:"keyshop"`
	MongoCollection string `envconfig:"MONGODB_COLLECTION" default:"shop"`
}

// LockConfig selects how shop mutations are serialized.
type LockConfig struct {
	Type          string        `envconfig:"LOCK_TYPE" default:"memory"` // memory or redis
	TTL           time.Duration `envconfig:"LOCK_TTL" default:"30s"`
	RedisHost     string        `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int           `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int           `envconfig:"REDIS_DB" default:"0"`
}

// SweepConfig controls the background delivery retry and order expiry.
type SweepConfig struct {
	Interval    time.Duration `envconfig:"SWEEP_INTERVAL" default:"1m"`
	ExpireAfter time.Duration `envconfig:"ORDER_EXPIRE_AFTER" default:"0"` // 0 disables expiry
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RedisAddress returns the Redis address in host:port format.
func (l *LockConfig) RedisAddress() string {
	return fmt.Sprintf("%s:%d", l.RedisHost, l.RedisPort)
}

// MySQLDSN returns the MySQL data source name.
func (s *StoreConfig) MySQLDSN() string {
	port := s.Port
	if port == 0 {
		port = 3306
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		s.User, s.Password, s.Host, port, s.Name)
}

// PostgresDSN returns the PostgreSQL connection string.
func (s *StoreConfig) PostgresDSN() string {
	port := s.Port
	if port == 0 {
		port = 5432
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		s.User, s.Password, s.Host, port, s.Name, s.SSLMode)
}

// IsDevelopment returns true if running in development mode.
func (a *AppConfig) IsDevelopment() bool {
	return a.Environment == "development"
}

// Validate reports every missing required setting at once.
func (c *Config) Validate() error {
	var errs []error
	required := map[string]string{
		"BOT_TOKEN":      c.Discord.Token,
		"CLIENT_ID":      c.Discord.ClientID,
		"GUILD_ID":       c.Discord.GuildID,
		"ADMIN_ROLE_ID":  c.Discord.AdminRoleID,
		"WEBHOOK_SECRET": c.Payment.WebhookSecret,
	}
	for _, name := range []string{"BOT_TOKEN", "CLIENT_ID", "GUILD_ID", "ADMIN_ROLE_ID", "WEBHOOK_SECRET"} {
		if strings.TrimSpace(required[name]) == "" {
			errs = append(errs, fmt.Errorf("%s is required", name))
		}
	}

	switch c.Store.Type {
	case "json", "sqlite", "mysql", "postgres", "postgresql":
	case "mongodb", "mongo":
		if c.Store.MongoURI == "" {
			errs = append(errs, errors.New("MONGODB_URI is required for STORE_TYPE mongodb"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORE_TYPE %q is not supported", c.Store.Type))
	}
	switch c.Lock.Type {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("LOCK_TYPE %q is not supported", c.Lock.Type))
	}
	if c.Sweep.Interval <= 0 {
		errs = append(errs, errors.New("SWEEP_INTERVAL must be positive"))
	}
	if c.Sweep.ExpireAfter < 0 {
		errs = append(errs, errors.New("ORDER_EXPIRE_AFTER must not be negative"))
	}

	return errors.Join(errs...)
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return &cfg, nil
}
