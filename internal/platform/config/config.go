// Package config loads typed runtime configuration from the environment.
// An optional .env file in the working directory is read first.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const devSigningKey = "dev-secret-key-change-in-production"

// Config holds application configuration
type Config struct {
	Server      ServerConfig
	Auth        AuthConfig
	DocStore    DocStoreConfig
	Postgres    PostgresConfig
	Mongo       MongoConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	ObjectStore ObjectStoreConfig
	SLA         SLAConfig
	Quotes      QuotesConfig
	Grants      GrantsConfig
	RateLimit   RateLimitConfig
	Log         LogConfig
}

type ServerConfig struct {
	Addr           string
	Environment    string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	RequestTimeout time.Duration
}

type AuthConfig struct {
	JWTSigningKey string
	Issuer        string
	Audience      string
	TokenTTL      time.Duration
	AdminToken    string
}

// DocStoreConfig selects the document store backend.
type DocStoreConfig struct {
	Driver string // memory, postgres or mongo
}

type PostgresConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
}

type MongoConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
}

// RedisConfig configures counters and rate limits. Empty URL keeps both in memory.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures audit forwarding. No brokers disables it.
type KafkaConfig struct {
	Brokers       []string
	AuditTopic    string
	FlushInterval time.Duration

	// Partitions and Replication are used when the audit topic has to be created.
	Partitions  int32
	Replication int16
}

// ObjectStoreConfig configures document blobs. Empty endpoint means in-memory.
type ObjectStoreConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string

	// MaxUploadBytes caps a single document upload.
	MaxUploadBytes int64
}

type SLAConfig struct {
	SweepSchedule    string
	WarningThreshold time.Duration
}

type QuotesConfig struct {
	ExpirySchedule string
}

// GrantsConfig controls purging of revoked permission grants. Grants revoked
// longer than Retention ago are hard-deleted.
type GrantsConfig struct {
	PurgeSchedule string
	Retention     time.Duration
}

// RateLimitConfig bounds requests per caller on /api. Zero Requests disables it.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

// IsProduction reports whether the server runs with production guards.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		Server: ServerConfig{
			Addr:           v.GetString("SERVER_ADDR"),
			Environment:    v.GetString("ENVIRONMENT"),
			ReadTimeout:    v.GetDuration("SERVER_READ_TIMEOUT"),
			WriteTimeout:   v.GetDuration("SERVER_WRITE_TIMEOUT"),
			RequestTimeout: v.GetDuration("SERVER_REQUEST_TIMEOUT"),
		},
		Auth: AuthConfig{
			JWTSigningKey: v.GetString("JWT_SIGNING_KEY"),
			Issuer:        v.GetString("JWT_ISSUER"),
			Audience:      v.GetString("JWT_AUDIENCE"),
			TokenTTL:      v.GetDuration("JWT_TOKEN_TTL"),
			AdminToken:    v.GetString("ADMIN_API_TOKEN"),
		},
		DocStore: DocStoreConfig{
			Driver: strings.ToLower(v.GetString("DOCSTORE_DRIVER")),
		},
		Postgres: PostgresConfig{
			DSN:             v.GetString("POSTGRES_DSN"),
			MaxOpenConns:    v.GetInt("POSTGRES_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("POSTGRES_MAX_IDLE_CONNS"),
			ConnMaxLifetime: v.GetDuration("POSTGRES_CONN_MAX_LIFETIME"),
			AutoMigrate:     v.GetBool("POSTGRES_AUTO_MIGRATE"),
		},
		Mongo: MongoConfig{
			URI:      v.GetString("MONGODB_URI"),
			Database: v.GetString("MONGODB_DATABASE"),
			Timeout:  v.GetDuration("MONGODB_TIMEOUT"),
		},
		Redis: RedisConfig{
			URL:          v.GetString("REDIS_URL"),
			PoolSize:     v.GetInt("REDIS_POOL_SIZE"),
			MinIdleConns: v.GetInt("REDIS_MIN_IDLE_CONNS"),
			DialTimeout:  v.GetDuration("REDIS_DIAL_TIMEOUT"),
			ReadTimeout:  v.GetDuration("REDIS_READ_TIMEOUT"),
			WriteTimeout: v.GetDuration("REDIS_WRITE_TIMEOUT"),
		},
		Kafka: KafkaConfig{
			Brokers:       splitList(v.GetString("KAFKA_BROKERS")),
			AuditTopic:    v.GetString("KAFKA_AUDIT_TOPIC"),
			FlushInterval: v.GetDuration("KAFKA_FLUSH_INTERVAL"),
			Partitions:    v.GetInt32("KAFKA_AUDIT_PARTITIONS"),
			Replication:   int16(v.GetInt("KAFKA_AUDIT_REPLICATION")),
		},
		ObjectStore: ObjectStoreConfig{
			Endpoint:       v.GetString("MINIO_ENDPOINT"),
			AccessKey:      v.GetString("MINIO_ACCESS_KEY"),
			SecretKey:      v.GetString("MINIO_SECRET_KEY"),
			UseSSL:         v.GetBool("MINIO_USE_SSL"),
			Bucket:         v.GetString("MINIO_BUCKET"),
			MaxUploadBytes: v.GetInt64("DOCUMENT_MAX_BYTES"),
		},
		SLA: SLAConfig{
			SweepSchedule:    v.GetString("SLA_SWEEP_SCHEDULE"),
			WarningThreshold: v.GetDuration("SLA_WARNING_THRESHOLD"),
		},
		Quotes: QuotesConfig{
			ExpirySchedule: v.GetString("QUOTE_EXPIRY_SCHEDULE"),
		},
		Grants: GrantsConfig{
			PurgeSchedule: v.GetString("GRANT_PURGE_SCHEDULE"),
			Retention:     v.GetDuration("GRANT_RETENTION"),
		},
		RateLimit: RateLimitConfig{
			Requests: v.GetInt("RATE_LIMIT_REQUESTS"),
			Window:   v.GetDuration("RATE_LIMIT_WINDOW"),
		},
		Log: LogConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_ADDR", ":8080")
	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("SERVER_READ_TIMEOUT", 15*time.Second)
	v.SetDefault("SERVER_WRITE_TIMEOUT", 30*time.Second)
	v.SetDefault("SERVER_REQUEST_TIMEOUT", 20*time.Second)

	v.SetDefault("JWT_SIGNING_KEY", devSigningKey)
	v.SetDefault("JWT_ISSUER", "opsdesk")
	v.SetDefault("JWT_AUDIENCE", "opsdesk-api")
	v.SetDefault("JWT_TOKEN_TTL", 8*time.Hour)

	v.SetDefault("DOCSTORE_DRIVER", "memory")

	v.SetDefault("POSTGRES_MAX_OPEN_CONNS", 20)
	v.SetDefault("POSTGRES_MAX_IDLE_CONNS", 5)
	v.SetDefault("POSTGRES_CONN_MAX_LIFETIME", 30*time.Minute)
	v.SetDefault("POSTGRES_AUTO_MIGRATE", true)

	v.SetDefault("MONGODB_DATABASE", "opsdesk")
	v.SetDefault("MONGODB_TIMEOUT", 10*time.Second)

	v.SetDefault("REDIS_POOL_SIZE", 10)
	v.SetDefault("REDIS_MIN_IDLE_CONNS", 2)
	v.SetDefault("REDIS_DIAL_TIMEOUT", 5*time.Second)
	v.SetDefault("REDIS_READ_TIMEOUT", 3*time.Second)
	v.SetDefault("REDIS_WRITE_TIMEOUT", 3*time.Second)

	v.SetDefault("KAFKA_AUDIT_TOPIC", "opsdesk.audit")
	v.SetDefault("KAFKA_FLUSH_INTERVAL", time.Second)
	v.SetDefault("KAFKA_AUDIT_PARTITIONS", 3)
	v.SetDefault("KAFKA_AUDIT_REPLICATION", 1)

	v.SetDefault("MINIO_BUCKET", "opsdesk-documents")
	v.SetDefault("DOCUMENT_MAX_BYTES", 25<<20)

	v.SetDefault("SLA_SWEEP_SCHEDULE", "@every 1m")
	v.SetDefault("SLA_WARNING_THRESHOLD", 15*time.Minute)
	v.SetDefault("QUOTE_EXPIRY_SCHEDULE", "@every 1h")
	v.SetDefault("GRANT_PURGE_SCHEDULE", "@daily")
	v.SetDefault("GRANT_RETENTION", 90*24*time.Hour)
	v.SetDefault("RATE_LIMIT_REQUESTS", 600)
	v.SetDefault("RATE_LIMIT_WINDOW", time.Minute)

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
}

// Validate checks cross-field requirements.
func (c *Config) Validate() error {
	switch c.DocStore.Driver {
	case "memory":
	case "postgres":
		if c.Postgres.DSN == "" {
			return fmt.Errorf("POSTGRES_DSN is required when DOCSTORE_DRIVER=postgres")
		}
	case "mongo":
		if c.Mongo.URI == "" {
			return fmt.Errorf("MONGODB_URI is required when DOCSTORE_DRIVER=mongo")
		}
	default:
		return fmt.Errorf("unknown DOCSTORE_DRIVER %q", c.DocStore.Driver)
	}
	if c.SLA.WarningThreshold <= 0 {
		return fmt.Errorf("SLA_WARNING_THRESHOLD must be positive")
	}
	if c.Grants.Retention <= 0 {
		return fmt.Errorf("GRANT_RETENTION must be positive")
	}
	if c.IsProduction() && c.Auth.JWTSigningKey == devSigningKey {
		return fmt.Errorf("JWT_SIGNING_KEY must be set in production")
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
