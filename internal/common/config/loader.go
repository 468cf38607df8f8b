// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads configs/config.yaml, merges config.<APP_ENVIRONMENT> on top and
// applies environment overrides (DATABASE_POSTGRES_HOST, EVENTS_STREAM, ...).
func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // environment file is optional

	return decode(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// findProjectRoot walks up from the working directory looking for go.mod.
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// expandEnvVars resolves ${VAR} placeholders left in string values.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			expanded := os.ExpandEnv(strVal)
			if expanded != strVal && expanded != "" {
				v.Set(key, expanded)
			}
		}
	}
}

// overrideEmptyConfig fills credentials from the conventional docker-compose
// variable names when the YAML left them empty.
func overrideEmptyConfig(cfg *Config) {
	if cfg.Database.Postgres.User == "" {
		if val := os.Getenv("DB_USER"); val != "" {
			cfg.Database.Postgres.User = val
		}
	}
	if cfg.Database.Postgres.Password == "" {
		if val := os.Getenv("DB_PASSWORD"); val != "" {
			cfg.Database.Postgres.Password = val
		}
	}
	if cfg.Database.Redis.Password == "" {
		if val := os.Getenv("REDIS_PASSWORD"); val != "" {
			cfg.Database.Redis.Password = val
		}
	}
	if cfg.Events.SNS.TopicARN == "" {
		if val := os.Getenv("SNS_TOPIC_ARN"); val != "" {
			cfg.Events.SNS.TopicARN = val
		}
	}
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.App.Environment == "" {
		cfg.App.Environment = "development"
	}

	// HTTP defaults
	if cfg.HTTP.Address == "" {
		cfg.HTTP.Address = ":8080"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 10000
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 10000
	}
	if cfg.HTTP.ShutdownTimeout == 0 {
		cfg.HTTP.ShutdownTimeout = 30000
	}

	// Database defaults
	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}

	// Event channel defaults
	if cfg.Events.Driver == "" {
		cfg.Events.Driver = EventDriverRedis
	}
	if cfg.Events.Stream == "" {
		cfg.Events.Stream = "notifications.queue"
	}
	if cfg.Events.Group == "" {
		cfg.Events.Group = "notification-service"
	}
	if cfg.Events.Consumer == "" {
		host, _ := os.Hostname()
		if host == "" {
			host = "consumer-1"
		}
		cfg.Events.Consumer = host
	}
	if cfg.Events.DeadLetterStream == "" {
		cfg.Events.DeadLetterStream = cfg.Events.Stream + ".dlq"
	}
	if cfg.Events.MaxLen == 0 {
		cfg.Events.MaxLen = 100000
	}
	if cfg.Events.PublishTimeout == 0 {
		cfg.Events.PublishTimeout = 2000
	}
	if cfg.Events.BlockTimeout == 0 {
		cfg.Events.BlockTimeout = 5000
	}
	if cfg.Events.ClaimIdle == 0 {
		cfg.Events.ClaimIdle = 30000
	}
	if cfg.Events.SweepInterval == 0 {
		cfg.Events.SweepInterval = 15000
	}
	if cfg.Events.BatchSize == 0 {
		cfg.Events.BatchSize = 16
	}
	if cfg.Events.Workers == 0 {
		cfg.Events.Workers = 4
	}
	if cfg.Events.MaxDeliveries == 0 {
		cfg.Events.MaxDeliveries = 5
	}

	// Employer lookup defaults
	if cfg.Employer.Source == "" {
		cfg.Employer.Source = EmployerSourcePostgres
	}
	if cfg.Employer.Timeout == 0 {
		cfg.Employer.Timeout = 3000
	}
	if cfg.Employer.CacheTTL == 0 {
		cfg.Employer.CacheTTL = 600000
	}

	if cfg.Notifications.UnreadCacheTTL == 0 {
		cfg.Notifications.UnreadCacheTTL = 60000
	}

	if cfg.RateLimit.RequestsPerSecond == 0 {
		cfg.RateLimit.RequestsPerSecond = 50
	}
	if cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = 100
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	if cfg.Database.Postgres.Host == "" {
		return fmt.Errorf("database.postgres.host is required")
	}
	if cfg.Database.Postgres.Database == "" {
		return fmt.Errorf("database.postgres.database is required")
	}
	if cfg.Database.Postgres.User == "" {
		return fmt.Errorf("database.postgres.user is required")
	}

	if cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required")
	}

	switch cfg.Events.Driver {
	case EventDriverRedis:
	case EventDriverSNS:
		if cfg.Events.SNS.TopicARN == "" {
			return fmt.Errorf("events.sns.topic_arn is required when events.driver is %q", EventDriverSNS)
		}
		if cfg.Events.SNS.Region == "" {
			return fmt.Errorf("events.sns.region is required when events.driver is %q", EventDriverSNS)
		}
	default:
		return fmt.Errorf("events.driver must be %q or %q, got %q", EventDriverRedis, EventDriverSNS, cfg.Events.Driver)
	}

	if cfg.Events.MaxDeliveries < 1 {
		return fmt.Errorf("events.max_deliveries must be at least 1")
	}

	switch cfg.Employer.Source {
	case EmployerSourcePostgres:
	case EmployerSourceHTTP:
		if cfg.Employer.BaseURL == "" {
			return fmt.Errorf("employer.base_url is required when employer.source is %q", EmployerSourceHTTP)
		}
	default:
		return fmt.Errorf("employer.source must be %q or %q, got %q", EmployerSourcePostgres, EmployerSourceHTTP, cfg.Employer.Source)
	}

	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}
