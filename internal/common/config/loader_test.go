// internal/common/config/loader_test.go
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

const baseYAML = `
app:
  name: application-service
database:
  postgres:
    host: localhost
    database: applications
    user: postgres
    password: password
  redis:
    address: localhost:6379
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// ==========================
// Core Functionality Tests
// ==========================

func TestLoadFromFile_AppliesDefaults(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, baseYAML))
	require.NoError(t, err)

	assert.Equal(t, "application-service", cfg.App.Name)
	assert.Equal(t, ":8080", cfg.HTTP.Address)
	assert.Equal(t, 5432, cfg.Database.Postgres.Port)
	assert.Equal(t, "disable", cfg.Database.Postgres.SSLMode)

	assert.Equal(t, EventDriverRedis, cfg.Events.Driver)
	assert.Equal(t, "notifications.queue", cfg.Events.Stream)
	assert.Equal(t, "notifications.queue.dlq", cfg.Events.DeadLetterStream)
	assert.Equal(t, "notification-service", cfg.Events.Group)
	assert.NotEmpty(t, cfg.Events.Consumer)
	assert.Equal(t, 2000, cfg.Events.PublishTimeout)
	assert.Equal(t, int64(5), cfg.Events.MaxDeliveries)
	assert.Equal(t, 4, cfg.Events.Workers)

	assert.Equal(t, EmployerSourcePostgres, cfg.Employer.Source)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadFromFile_KeepsExplicitValues(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, baseYAML+`
events:
  stream: lifecycle.events
  max_deliveries: 2
  publish_timeout: 500
employer:
  source: http
  base_url: http://projects:8081
`))
	require.NoError(t, err)

	assert.Equal(t, "lifecycle.events", cfg.Events.Stream)
	assert.Equal(t, "lifecycle.events.dlq", cfg.Events.DeadLetterStream)
	assert.Equal(t, int64(2), cfg.Events.MaxDeliveries)
	assert.Equal(t, 500*time.Millisecond, GetDuration(cfg.Events.PublishTimeout))
	assert.Equal(t, EmployerSourceHTTP, cfg.Employer.Source)
	assert.Equal(t, "http://projects:8081", cfg.Employer.BaseURL)
}

func TestLoadFromFile_EnvironmentOverride(t *testing.T) {
	t.Setenv("DATABASE_POSTGRES_HOST", "db.internal")

	cfg, err := LoadFromFile(writeConfig(t, baseYAML))
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Postgres.Host)
}

func TestLoadFromFile_ExpandsPlaceholders(t *testing.T) {
	t.Setenv("TEST_REDIS_ADDR", "cache:6380")

	cfg, err := LoadFromFile(writeConfig(t, `
database:
  postgres:
    host: localhost
    database: notifications
    user: postgres
  redis:
    address: ${TEST_REDIS_ADDR}
`))
	require.NoError(t, err)

	assert.Equal(t, "cache:6380", cfg.Database.Redis.Address)
}

// ==========================
// Validation Tests
// ==========================

func TestLoadFromFile_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name: "missing postgres host",
			yaml: `
database:
  postgres:
    database: applications
    user: postgres
  redis:
    address: localhost:6379
`,
			wantErr: "database.postgres.host is required",
		},
		{
			name: "missing redis address",
			yaml: `
database:
  postgres:
    host: localhost
    database: applications
    user: postgres
`,
			wantErr: "database.redis.address is required",
		},
		{
			name:    "sns driver without topic",
			yaml:    baseYAML + "events:\n  driver: sns\n  sns:\n    region: eu-west-1\n",
			wantErr: "events.sns.topic_arn is required",
		},
		{
			name:    "unknown driver",
			yaml:    baseYAML + "events:\n  driver: kafka\n",
			wantErr: "events.driver must be",
		},
		{
			name:    "http employer source without base url",
			yaml:    baseYAML + "employer:\n  source: http\n",
			wantErr: "employer.base_url is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadFromFile(writeConfig(t, tt.yaml))
			assert.Nil(t, cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadFromFile_MissingFile(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestPostgresConfig_GetDSN(t *testing.T) {
	p := PostgresConfig{Host: "h", Port: 5433, User: "u", Password: "p", Database: "d", SSLMode: "disable"}
	assert.Equal(t, "host=h port=5433 user=u password=p dbname=d sslmode=disable", p.GetDSN())
}
