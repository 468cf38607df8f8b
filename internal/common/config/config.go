// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct shared by both services.
type Config struct {
	App           AppConfig          `mapstructure:"app"`
	HTTP          HTTPConfig         `mapstructure:"http"`
	Database      DatabaseConfig     `mapstructure:"database"`
	Events        EventsConfig       `mapstructure:"events"`
	Employer      EmployerConfig     `mapstructure:"employer"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	RateLimit     RateLimitConfig    `mapstructure:"rate_limit"`
	Logging       LoggingConfig      `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type HTTPConfig struct {
	Address         string `mapstructure:"address"`
	ReadTimeout     int    `mapstructure:"read_timeout"`     // milliseconds
	WriteTimeout    int    `mapstructure:"write_timeout"`    // milliseconds
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// --- Event channel ---

const (
	EventDriverRedis = "redis"
	EventDriverSNS   = "sns"
)

// EventsConfig describes the lifecycle event channel. The stream/group
// settings are used by both the publisher and the consumer side.
type EventsConfig struct {
	Driver           string `mapstructure:"driver"`
	Stream           string `mapstructure:"stream"`
	Group            string `mapstructure:"group"`
	Consumer         string `mapstructure:"consumer"`
	DeadLetterStream string `mapstructure:"dead_letter_stream"`
	MaxLen           int64  `mapstructure:"max_len"`
	PublishTimeout   int    `mapstructure:"publish_timeout"` // milliseconds
	BlockTimeout     int    `mapstructure:"block_timeout"`   // milliseconds
	ClaimIdle        int    `mapstructure:"claim_idle"`      // milliseconds
	SweepInterval    int    `mapstructure:"sweep_interval"`  // milliseconds
	BatchSize        int64  `mapstructure:"batch_size"`
	Workers          int    `mapstructure:"workers"`
	MaxDeliveries    int64  `mapstructure:"max_deliveries"`

	SNS struct {
		Region   string `mapstructure:"region"`
		TopicARN string `mapstructure:"topic_arn"`
	} `mapstructure:"sns"`
}

// --- Domain collaborators ---

const (
	EmployerSourcePostgres = "postgres"
	EmployerSourceHTTP     = "http"
)

// EmployerConfig selects how project ids are resolved to employer ids.
type EmployerConfig struct {
	Source   string `mapstructure:"source"`
	BaseURL  string `mapstructure:"base_url"`
	Timeout  int    `mapstructure:"timeout"`   // milliseconds
	CacheTTL int    `mapstructure:"cache_ttl"` // milliseconds
}

// NotificationConfig holds settings for the notification inbox.
type NotificationConfig struct {
	UnreadCacheTTL int `mapstructure:"unread_cache_ttl"` // milliseconds
}

type RateLimitConfig struct {
	RequestsPerSecond int `mapstructure:"requests_per_second"`
	Burst             int `mapstructure:"burst"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
