//go:build integration

package containers

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/testcontainers/testcontainers-go/modules/redpanda"
	"github.com/twmb/franz-go/pkg/kgo"
)

// RedpandaContainer is a single-broker Kafka-compatible cluster.
type RedpandaContainer struct {
	Container *redpanda.Container
	Broker    string
}

var (
	redpandaOnce   sync.Once
	redpandaShared *RedpandaContainer
	redpandaErr    error
)

// GetRedpanda returns a process-wide broker, starting it on first use.
func GetRedpanda(t *testing.T) *RedpandaContainer {
	t.Helper()
	redpandaOnce.Do(func() {
		redpandaShared, redpandaErr = startRedpanda(context.Background())
	})
	if redpandaErr != nil {
		t.Fatalf("failed to start redpanda container: %v", redpandaErr)
	}
	return redpandaShared
}

func startRedpanda(ctx context.Context) (*RedpandaContainer, error) {
	container, err := redpanda.Run(ctx, "docker.redpanda.com/redpandadata/redpanda:v24.2.4")
	if err != nil {
		return nil, err
	}
	broker, err := container.KafkaSeedBroker(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("seed broker: %w", err)
	}
	return &RedpandaContainer{Container: container, Broker: broker}, nil
}

// NewClient returns a franz-go client pointed at the broker. Extra options
// are appended, so callers can add consumer settings.
func (r *RedpandaContainer) NewClient(t *testing.T, opts ...kgo.Opt) *kgo.Client {
	t.Helper()
	client, err := kgo.NewClient(append([]kgo.Opt{kgo.SeedBrokers(r.Broker)}, opts...)...)
	if err != nil {
		t.Fatalf("kafka client: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}
