package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DOCSTORE_DRIVER", "")
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "memory", cfg.DocStore.Driver)
	assert.Equal(t, "@every 1m", cfg.SLA.SweepSchedule)
	assert.Equal(t, 15*time.Minute, cfg.SLA.WarningThreshold)
	assert.Equal(t, "@every 1h", cfg.Quotes.ExpirySchedule)
	assert.Equal(t, "@daily", cfg.Grants.PurgeSchedule)
	assert.Equal(t, 90*24*time.Hour, cfg.Grants.Retention)
	assert.Equal(t, 600, cfg.RateLimit.Requests)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, int32(3), cfg.Kafka.Partitions)
	assert.Equal(t, int16(1), cfg.Kafka.Replication)
	assert.Equal(t, int64(25<<20), cfg.ObjectStore.MaxUploadBytes)
	assert.False(t, cfg.IsProduction())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SERVER_ADDR", ":9090")
	t.Setenv("DOCSTORE_DRIVER", "Postgres")
	t.Setenv("POSTGRES_DSN", "postgres://localhost/opsdesk")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("SLA_WARNING_THRESHOLD", "30m")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "postgres", cfg.DocStore.Driver)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 30*time.Minute, cfg.SLA.WarningThreshold)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"postgres without dsn", func(c *Config) { c.DocStore.Driver = "postgres" }, "POSTGRES_DSN"},
		{"mongo without uri", func(c *Config) { c.DocStore.Driver = "mongo" }, "MONGODB_URI"},
		{"unknown driver", func(c *Config) { c.DocStore.Driver = "sqlite" }, "unknown DOCSTORE_DRIVER"},
		{"dev key in production", func(c *Config) { c.Server.Environment = "production" }, "JWT_SIGNING_KEY"},
		{"zero warning threshold", func(c *Config) { c.SLA.WarningThreshold = 0 }, "SLA_WARNING_THRESHOLD"},
		{"zero grant retention", func(c *Config) { c.Grants.Retention = 0 }, "GRANT_RETENTION"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &Config{
				DocStore: DocStoreConfig{Driver: "memory"},
				Auth:     AuthConfig{JWTSigningKey: devSigningKey},
				SLA:      SLAConfig{WarningThreshold: time.Minute},
				Grants:   GrantsConfig{Retention: time.Hour},
			}
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
