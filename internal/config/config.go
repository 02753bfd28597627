package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Storage  StorageConfig  `yaml:"storage"`
	JWT      JWTConfig      `yaml:"jwt"`
	Line     LineConfig     `yaml:"line"`
	Link     LinkConfig     `yaml:"link"`
	Admin    AdminConfig    `yaml:"admin"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// StorageConfig selects and configures the photo store
type StorageConfig struct {
	Backend    string        `yaml:"backend"` // "s3" or "local"
	LocalPath  string        `yaml:"local_path"`
	Region     string        `yaml:"region"`
	S3Bucket   string        `yaml:"s3_bucket"`
	AccessKey  string        `yaml:"access_key"`
	SecretKey  string        `yaml:"secret_key"`
	Endpoint   string        `yaml:"endpoint"` // S3-compatible providers
	PathStyle  bool          `yaml:"path_style"`
	PresignTTL time.Duration `yaml:"presign_ttl"`
}

// JWTConfig holds session token configuration
type JWTConfig struct {
	Secret      string        `yaml:"secret"`
	AdminTTL    time.Duration `yaml:"admin_ttl"`
	CustomerTTL time.Duration `yaml:"customer_ttl"`
}

// LineConfig holds the LINE Login channel used by the LIFF app.
// An empty ChannelSecret disables ID token verification.
type LineConfig struct {
	ChannelID     string `yaml:"channel_id"`
	ChannelSecret string `yaml:"channel_secret"`
}

// LinkConfig holds link token configuration
type LinkConfig struct {
	TokenTTL        time.Duration `yaml:"token_ttl"`
	CleanupSchedule string        `yaml:"cleanup_schedule"`
}

// AdminConfig holds admin account configuration
type AdminConfig struct {
	AllowRegistration bool `yaml:"allow_registration"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `yaml:"level"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Default returns a configuration with every optional value filled in
func Default() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			User:    "karte",
			DBName:  "karte",
			SSLMode: "disable",
		},
		Storage: StorageConfig{
			Backend:    "local",
			LocalPath:  "./data/photos",
			Region:     "us-east-1",
			PresignTTL: 15 * time.Minute,
		},
		JWT: JWTConfig{
			AdminTTL:    12 * time.Hour,
			CustomerTTL: 30 * 24 * time.Hour,
		},
		Link: LinkConfig{
			TokenTTL:        15 * time.Minute,
			CleanupSchedule: "@every 15m",
		},
		Log: LogConfig{Level: "info"},
	}
}

// applyEnv lets secrets come from the environment instead of the file
func (c *Config) applyEnv() {
	if v := os.Getenv("KARTE_JWT_SECRET"); v != "" {
		c.JWT.Secret = v
	}
	if v := os.Getenv("KARTE_DATABASE_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("KARTE_S3_SECRET_KEY"); v != "" {
		c.Storage.SecretKey = v
	}
	if v := os.Getenv("KARTE_LINE_CHANNEL_SECRET"); v != "" {
		c.Line.ChannelSecret = v
	}
}

// Validate checks the values the server cannot start without
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is required")
	}
	if c.JWT.AdminTTL <= 0 || c.JWT.CustomerTTL <= 0 {
		return fmt.Errorf("jwt ttl values must be positive")
	}
	if c.Link.TokenTTL <= 0 {
		return fmt.Errorf("link.token_ttl must be positive")
	}
	switch c.Storage.Backend {
	case "local":
		if c.Storage.LocalPath == "" {
			return fmt.Errorf("storage.local_path is required for local backend")
		}
	case "s3":
		if c.Storage.S3Bucket == "" {
			return fmt.Errorf("storage.s3_bucket is required for s3 backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Line.ChannelSecret != "" && c.Line.ChannelID == "" {
		return fmt.Errorf("line.channel_id is required when line.channel_secret is set")
	}
	return nil
}

// DSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// MigrationURL returns the connection URL understood by the pgx5 migrate driver
func (c *DatabaseConfig) MigrationURL() string {
	u := url.URL{
		Scheme:   "pgx5",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}
