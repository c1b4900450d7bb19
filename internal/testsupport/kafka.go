//go:build integration

package testsupport

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	kafkacontainer "github.com/testcontainers/testcontainers-go/modules/kafka"
)

// StartKafka launches a single-node Kafka, creates topics and returns the broker addresses.
func StartKafka(ctx context.Context, t *testing.T, topics ...string) []string {
	t.Helper()

	kc, err := kafkacontainer.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = kc.Terminate(context.Background()) })

	brokers, err := kc.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)

	if len(topics) > 0 {
		conn, err := kafka.DialContext(ctx, "tcp", brokers[0])
		require.NoError(t, err)
		defer conn.Close()

		configs := make([]kafka.TopicConfig, 0, len(topics))
		for _, topic := range topics {
			configs = append(configs, kafka.TopicConfig{Topic: topic, NumPartitions: 1, ReplicationFactor: 1})
		}
		require.NoError(t, conn.CreateTopics(configs...))
	}
	return brokers
}
