//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/rainfall-alerts/internal/adapter/kafka"
	"github.com/couchcryptid/rainfall-alerts/internal/alert"
	"github.com/couchcryptid/rainfall-alerts/internal/domain"
	"github.com/couchcryptid/rainfall-alerts/internal/ingest"
	"github.com/couchcryptid/rainfall-alerts/internal/observability"
	"github.com/couchcryptid/rainfall-alerts/internal/store"
)

const testAlertTopic = "test-rainfall-alerts"

type okChannel struct {
	mu   sync.Mutex
	sent []domain.NotificationRequest
}

func (c *okChannel) Name() string { return "test" }

func (c *okChannel) Send(_ context.Context, req domain.NotificationRequest) alert.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, req)
	return alert.Success()
}

// TestAlertEventsReachKafka feeds readings through the coordinator and checks
// that only the dispatched alert shows up on the event topic.
func TestAlertEventsReachKafka(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testAlertTopic)

	publisher := kafka.NewPublisher([]string{broker}, testAlertTopic, discardLogger())
	t.Cleanup(func() { _ = publisher.Close() })

	metrics := observability.NewMetricsForTesting()
	channel := &okChannel{}
	evaluator := alert.NewEvaluator(domain.DefaultThresholds(), alert.DefaultCooldown,
		[]alert.Channel{channel}, discardLogger(), metrics, alert.WithEventPublisher(publisher))

	snapshots := store.NewSnapshotStore(t.TempDir() + "/snapshot.json")
	coord := ingest.New([]ingest.Persister{snapshots}, evaluator, discardLogger(), metrics)

	coord.Update("s-dry", domain.Reading{SensorID: "s-dry", Value: 12})
	coord.Update("s-wet", domain.Reading{SensorID: "s-wet", Subdivision: "Konkan", Value: 151})
	require.NoError(t, coord.Close(ctx))

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testAlertTopic,
		GroupID:     fmt.Sprintf("test-alerts-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	readCtx, readCancel := context.WithTimeout(ctx, 30*time.Second)
	msg, err := consumer.ReadMessage(readCtx)
	readCancel()
	require.NoError(t, err, "read alert event")

	var event alert.Event
	require.NoError(t, json.Unmarshal(msg.Value, &event))
	assert.Equal(t, "s-wet", string(msg.Key))
	assert.Equal(t, "s-wet", event.SensorID)
	assert.Equal(t, "Konkan", event.Subdivision)
	assert.Equal(t, "severe", event.Severity)
	assert.Equal(t, 150.0, event.Threshold)
	assert.True(t, event.Channels["test"])
	assert.NotEmpty(t, event.ID)

	readCtx, readCancel = context.WithTimeout(ctx, 5*time.Second)
	_, err = consumer.ReadMessage(readCtx)
	readCancel()
	assert.Error(t, err, "dry sensor must not produce an event")

	snapshot, err := snapshots.Load()
	require.NoError(t, err)
	assert.Len(t, snapshot, 2)
}
