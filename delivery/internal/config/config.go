package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Delivery DeliveryConfig `mapstructure:"delivery"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

// ConnString builds the PostgreSQL connection string.
func (d DatabaseConfig) ConnString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Database, d.SSLMode,
	)
}

type NATSConfig struct {
	URL string `mapstructure:"url"`
}

type DeliveryConfig struct {
	// MaxAckPending bounds in-flight messages, and with it worker parallelism.
	MaxAckPending int `mapstructure:"max_ack_pending"`

	// AckWait is the queue visibility timeout before redelivery.
	AckWait time.Duration `mapstructure:"ack_wait"`

	// MaxDeliver bounds infrastructure-level redeliveries of one message.
	MaxDeliver int `mapstructure:"max_deliver"`

	WebhookTimeout time.Duration `mapstructure:"webhook_timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	BackoffBase    time.Duration `mapstructure:"backoff_base"`
	BackoffMax     time.Duration `mapstructure:"backoff_max"`

	// SigningSecret, when set, enables HMAC signing of webhook bodies.
	SigningSecret string `mapstructure:"signing_secret"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.port", 8081)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "relaywire")
	v.SetDefault("database.password", "relaywire")
	v.SetDefault("database.database", "relaywire")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("delivery.max_ack_pending", 64)
	v.SetDefault("delivery.ack_wait", "2m")
	v.SetDefault("delivery.max_deliver", 50)
	v.SetDefault("delivery.webhook_timeout", "30s")
	v.SetDefault("delivery.max_retries", 5)
	v.SetDefault("delivery.backoff_base", "1s")
	v.SetDefault("delivery.backoff_max", "5m")
	v.SetDefault("delivery.signing_secret", "")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Read config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/relaywire/delivery")
	}

	// Environment variables override
	v.SetEnvPrefix("DELIVERY")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found; use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
