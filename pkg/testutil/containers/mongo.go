//go:build integration

package containers

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/mongo"

	"opsdesk/internal/platform/config"
	mongoclient "opsdesk/internal/platform/mongo"
)

// MongoContainer wraps a single-node MongoDB started through testcontainers.
type MongoContainer struct {
	Container testcontainers.Container
	URI       string
	Client    *mongo.Client
}

var (
	mongoOnce   sync.Once
	mongoShared *MongoContainer
	mongoErr    error
)

// GetMongo returns a process-wide container, starting it on first use.
func GetMongo(t *testing.T) *MongoContainer {
	t.Helper()
	mongoOnce.Do(func() {
		mongoShared, mongoErr = startMongo(context.Background())
	})
	if mongoErr != nil {
		t.Fatalf("failed to start mongo container: %v", mongoErr)
	}
	return mongoShared
}

func startMongo(ctx context.Context) (*MongoContainer, error) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForListeningPort("27017/tcp").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		return nil, err
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, err
	}
	port, err := container.MappedPort(ctx, "27017")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, err
	}
	uri := fmt.Sprintf("mongodb://%s:%s", host, port.Port())

	client, err := mongoclient.Connect(ctx, config.MongoConfig{URI: uri, Timeout: 10 * time.Second})
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, err
	}
	return &MongoContainer{Container: container, URI: uri, Client: client}, nil
}

// Database returns a fresh database handle; dropping it resets test state.
func (m *MongoContainer) Database(ctx context.Context, name string) (*mongo.Database, error) {
	db := m.Client.Database(name)
	if err := db.Drop(ctx); err != nil {
		return nil, err
	}
	return db, nil
}
