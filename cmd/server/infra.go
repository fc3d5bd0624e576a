package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/twmb/franz-go/pkg/kgo"
	mongodriver "go.mongodb.org/mongo-driver/mongo"

	"opsdesk/internal/counters"
	"opsdesk/internal/docstore/backend"
	httpapi "opsdesk/internal/http"
	"opsdesk/internal/platform/config"
	"opsdesk/internal/platform/kafka"
	"opsdesk/internal/platform/mongo"
	"opsdesk/internal/platform/objectstore"
	"opsdesk/internal/platform/postgres"
	"opsdesk/internal/platform/redis"
	"opsdesk/internal/ratelimit"
	"opsdesk/pkg/platform/audit"
	"opsdesk/pkg/platform/audit/publishers/compliance"
	kafkapub "opsdesk/pkg/platform/audit/publishers/kafka"
	auditmemory "opsdesk/pkg/platform/audit/store/memory"
	auditpostgres "opsdesk/pkg/platform/audit/store/postgres"
	txcontext "opsdesk/pkg/platform/tx"
)

// infra holds the shared connections and the cross-module plumbing built
// from them. Nil fields are optional backends that were not configured.
type infra struct {
	backend    *backend.Backend
	db         *sql.DB
	mongo      *mongodriver.Client
	redis      *redis.Client
	producer   *kgo.Client
	tx         txcontext.Runner
	counter    counters.Counter
	limiter    ratelimit.Store
	blobs      objectstore.Store
	auditStore audit.Store
	publisher  audit.Publisher
	kafkaAudit *kafkapub.Publisher
	checks     map[string]httpapi.HealthCheck
}

func openInfra(ctx context.Context, cfg *config.Config, reg prometheus.Registerer, logger *slog.Logger) (*infra, error) {
	in := &infra{
		tx:     txcontext.NoopRunner{},
		checks: make(map[string]httpapi.HealthCheck),
	}

	if cfg.Postgres.DSN != "" {
		db, err := postgres.Open(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		in.db = db
		in.checks["postgres"] = db.PingContext
		if cfg.Postgres.AutoMigrate {
			if err := postgres.Apply(ctx, db); err != nil {
				return nil, fmt.Errorf("apply migrations: %w", err)
			}
		}
	}

	switch cfg.DocStore.Driver {
	case backend.DriverPostgres:
		in.backend = backend.Postgres(in.db)
		in.tx = txcontext.NewSQLRunner(in.db)
	case backend.DriverMongo:
		client, err := mongo.Connect(ctx, cfg.Mongo)
		if err != nil {
			return nil, err
		}
		in.mongo = client
		in.backend = backend.Mongo(client.Database(cfg.Mongo.Database))
		in.checks["mongo"] = func(ctx context.Context) error { return client.Ping(ctx, nil) }
	default:
		in.backend = backend.Memory()
	}
	logger.InfoContext(ctx, "document store selected", "driver", in.backend.Driver())

	rc, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	if rc != nil {
		in.redis = rc
		in.counter = counters.NewRedis(rc.Client)
		in.limiter = ratelimit.NewRedis(rc.Client)
		in.checks["redis"] = rc.Health
	} else {
		logger.WarnContext(ctx, "REDIS_URL not set, document numbers and rate limits are kept in memory")
		in.counter = counters.NewMemory()
		in.limiter = ratelimit.NewMemory()
	}

	if cfg.ObjectStore.Endpoint != "" {
		blobs, err := objectstore.NewMinIO(ctx, cfg.ObjectStore)
		if err != nil {
			return nil, err
		}
		in.blobs = blobs
	} else {
		logger.WarnContext(ctx, "MINIO_ENDPOINT not set, document content is kept in memory")
		in.blobs = objectstore.NewMemory()
	}

	if in.db != nil {
		in.auditStore = auditpostgres.New(in.db)
	} else {
		in.auditStore = auditmemory.NewInMemoryStore()
	}
	required := compliance.New(in.auditStore,
		compliance.WithLogger(logger),
		compliance.WithMetrics(compliance.NewMetrics(reg)),
	)

	producer, err := kafka.NewProducer(ctx, cfg.Kafka)
	if err != nil {
		return nil, err
	}
	if producer != nil {
		in.producer = producer
		in.kafkaAudit = kafkapub.New(producer, cfg.Kafka.AuditTopic,
			kafkapub.WithLogger(logger),
			kafkapub.WithMetrics(kafkapub.NewMetrics(reg)),
			kafkapub.WithFlushInterval(cfg.Kafka.FlushInterval),
		)
		in.publisher = audit.NewFanout(required, logger, in.kafkaAudit)
	} else {
		in.publisher = audit.NewFanout(required, logger)
	}
	return in, nil
}

func (in *infra) Close(ctx context.Context) {
	if in.producer != nil {
		in.producer.Close()
	}
	if in.redis != nil {
		_ = in.redis.Close()
	}
	if in.mongo != nil {
		_ = in.mongo.Disconnect(ctx)
	}
	if in.db != nil {
		_ = in.db.Close()
	}
}
