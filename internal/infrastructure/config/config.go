// Package config loads and validates the audit pipeline's runtime
// configuration from environment variables, a config file, or both, using
// spf13/viper the way the rest of the ecosystem wires it: env vars take
// precedence, a config file supplies defaults, and the result is
// unmarshaled into a typed struct via mapstructure tags.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/healthaudit/audit-pipeline/pkg/apierrors"
)

// DatabaseConfig configures the Postgres connection.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn" validate:"required"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"min=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"min=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RedisConfig configures the ingestion queue's Redis connection.
type RedisConfig struct {
	Addr     string `mapstructure:"addr" validate:"required"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"min=0"`
}

// WorkerConfig configures the ingestion worker pool.
type WorkerConfig struct {
	Count            int           `mapstructure:"count" validate:"min=1"`
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	RecoveryInterval time.Duration `mapstructure:"recovery_interval"`
	QueueVisibility  time.Duration `mapstructure:"queue_visibility"`
}

// IntegrityConfig configures the scheduled verification sweep.
type IntegrityConfig struct {
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	SweepWindow   time.Duration `mapstructure:"sweep_window"`
}

// PseudonymConfig configures the pseudonymization registry's key material.
// HMACKeyHex and EncryptionKeyHex are expected to come from a secrets
// manager or an encrypted env var, never a committed config file.
type PseudonymConfig struct {
	HMACKeyHex       string `mapstructure:"hmac_key_hex" validate:"required,hex_key"`
	EncryptionKeyHex string `mapstructure:"encryption_key_hex" validate:"required,hex_key,len=64"`
}

// ComplianceConfig configures the compliance-report email notifications.
type ComplianceConfig struct {
	SendgridAPIKey   string   `mapstructure:"sendgrid_api_key"`
	FromEmail        string   `mapstructure:"from_email" validate:"omitempty,email"`
	FromName         string   `mapstructure:"from_name"`
	ReportRecipients []string `mapstructure:"report_recipients" validate:"dive,email"`
}

// ServerConfig configures the minimal HTTP surface (health checks only).
type ServerConfig struct {
	Addr string `mapstructure:"addr" validate:"required"`
}

// Config is the fully resolved, validated runtime configuration.
type Config struct {
	Environment string           `mapstructure:"environment" validate:"required,oneof=development staging production"`
	LogLevel    string           `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	Server      ServerConfig     `mapstructure:"server"`
	Database    DatabaseConfig   `mapstructure:"database"`
	Redis       RedisConfig      `mapstructure:"redis"`
	Worker      WorkerConfig     `mapstructure:"worker"`
	Integrity   IntegrityConfig  `mapstructure:"integrity"`
	Pseudonym   PseudonymConfig  `mapstructure:"pseudonym"`
	Compliance  ComplianceConfig `mapstructure:"compliance"`
}

// Load reads configuration from configPath (if non-empty and present) and
// environment variables prefixed AUDIT_, validates the result, and returns
// it. Environment variables always win over file values.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, apierrors.Wrap(apierrors.KindConfigValidation, "load .env file", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("AUDIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, apierrors.Wrap(apierrors.KindConfigValidation, "read config file", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, apierrors.Wrap(apierrors.KindConfigValidation, "unmarshal config", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("worker.count", 4)
	v.SetDefault("worker.poll_interval", 250*time.Millisecond)
	v.SetDefault("worker.recovery_interval", 30*time.Second)
	v.SetDefault("worker.queue_visibility", 30*time.Second)
	v.SetDefault("integrity.sweep_interval", 15*time.Minute)
	v.SetDefault("integrity.sweep_window", 24*time.Hour)
}

// String renders a redacted summary of cfg, safe for logging.
func (c *Config) String() string {
	return fmt.Sprintf("Config{environment=%s log_level=%s server.addr=%s worker.count=%d}",
		c.Environment, c.LogLevel, c.Server.Addr, c.Worker.Count)
}
