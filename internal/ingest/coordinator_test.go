package ingest_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/rainfall-alerts/internal/domain"
	"github.com/couchcryptid/rainfall-alerts/internal/ingest"
	"github.com/couchcryptid/rainfall-alerts/internal/observability"
	"github.com/couchcryptid/rainfall-alerts/internal/store"
)

// --- mocks ---

type countingProcessor struct {
	mu    sync.Mutex
	seen  []domain.Reading
	block chan struct{}
}

func (p *countingProcessor) Process(_ context.Context, r domain.Reading) {
	if p.block != nil {
		<-p.block
	}
	p.mu.Lock()
	p.seen = append(p.seen, r)
	p.mu.Unlock()
}

func (p *countingProcessor) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.seen)
}

type panickingProcessor struct{ calls atomic.Int32 }

func (p *panickingProcessor) Process(context.Context, domain.Reading) {
	p.calls.Add(1)
	panic("boom")
}

type failingPersister struct{ calls atomic.Int32 }

func (f *failingPersister) Name() string { return "broken" }

func (f *failingPersister) Persist(context.Context, []domain.Reading) error {
	f.calls.Add(1)
	return errors.New("disk full")
}

type recordingPersister struct {
	mu    sync.Mutex
	calls int
	last  []domain.Reading
}

func (r *recordingPersister) Name() string { return "memory" }

func (r *recordingPersister) Persist(_ context.Context, readings []domain.Reading) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.last = readings
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func closeCoordinator(t *testing.T, c *ingest.Coordinator) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Close(ctx))
}

func reading(value float64) domain.Reading {
	return domain.Reading{Value: value, Subdivision: "Vidarbha"}
}

// --- tests ---

func TestCoordinator_LastWriteWins(t *testing.T) {
	c := ingest.New(nil, nil, discardLogger(), observability.NewMetricsForTesting())
	defer closeCoordinator(t, c)

	for _, v := range []float64{10, 75, 3.5, 120} {
		c.Update("sensor1", reading(v))
	}

	got, ok := c.Latest("sensor1")
	require.True(t, ok)
	assert.InDelta(t, 120.0, got.Value, 0)
	assert.Equal(t, "sensor1", got.SensorID)
}

func TestCoordinator_ConcurrentUpdates(t *testing.T) {
	c := ingest.New(nil, nil, discardLogger(), observability.NewMetricsForTesting())
	defer closeCoordinator(t, c)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			c.Update(fmt.Sprintf("sensor%d", n%10), reading(float64(n)))
		}(i)
	}
	wg.Wait()

	snap := c.Snapshot()
	assert.Len(t, snap, 10)
	for i := 1; i < len(snap); i++ {
		assert.Less(t, snap[i-1].SensorID, snap[i].SensorID)
	}
}

func TestCoordinator_PersistsSnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "realtime.json")
	fileStore := store.NewSnapshotStore(path)
	c := ingest.New([]ingest.Persister{fileStore}, nil, discardLogger(), observability.NewMetricsForTesting())

	for i := 0; i < 25; i++ {
		c.Update(fmt.Sprintf("sensor%02d", i), reading(float64(i)))
	}
	c.Update("sensor00", reading(99))
	closeCoordinator(t, c)

	got, err := store.LoadSnapshot(path)
	require.NoError(t, err)
	require.Len(t, got, 25)
	assert.Equal(t, "sensor00", got[0].SensorID)
	assert.InDelta(t, 99.0, got[0].Value, 0)
}

func TestCoordinator_PersistFailureIsIsolated(t *testing.T) {
	broken := &failingPersister{}
	good := &recordingPersister{}
	metrics := observability.NewMetricsForTesting()
	c := ingest.New([]ingest.Persister{broken, good}, nil, discardLogger(), metrics)

	c.Update("sensor1", reading(42))
	closeCoordinator(t, c)

	got, ok := c.Latest("sensor1")
	require.True(t, ok)
	assert.InDelta(t, 42.0, got.Value, 0)
	assert.Positive(t, broken.calls.Load())
	assert.Positive(t, good.calls)
	assert.InDelta(t, float64(broken.calls.Load()), testutil.ToFloat64(metrics.SnapshotWrites.WithLabelValues("broken", "error")), 0)
}

func TestCoordinator_DispatchesAlertPerUpdate(t *testing.T) {
	proc := &countingProcessor{}
	c := ingest.New(nil, proc, discardLogger(), observability.NewMetricsForTesting())

	c.Update("sensor1", reading(120))
	c.Update("sensor2", reading(10))
	closeCoordinator(t, c)

	assert.Equal(t, 2, proc.count())
}

func TestCoordinator_UpdateDoesNotBlockOnSlowAlerts(t *testing.T) {
	proc := &countingProcessor{block: make(chan struct{})}
	metrics := observability.NewMetricsForTesting()
	c := ingest.New(nil, proc, discardLogger(), metrics, ingest.WithWorkers(1))

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			c.Update("sensor1", reading(120))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Update blocked on a saturated alert pool")
	}

	close(proc.block)
	closeCoordinator(t, c)

	assert.Equal(t, 1, proc.count())
	assert.InDelta(t, 4.0, testutil.ToFloat64(metrics.TasksDropped), 0)
}

func TestCoordinator_AlertPanicIsIsolated(t *testing.T) {
	proc := &panickingProcessor{}
	c := ingest.New(nil, proc, discardLogger(), observability.NewMetricsForTesting())

	c.Update("sensor1", reading(120))
	c.Update("sensor2", reading(120))
	closeCoordinator(t, c)

	assert.Equal(t, int32(2), proc.calls.Load())
	assert.Len(t, c.Snapshot(), 2)
}

func TestCoordinator_SeedDoesNotScheduleWork(t *testing.T) {
	rec := &recordingPersister{}
	proc := &countingProcessor{}
	c := ingest.New([]ingest.Persister{rec}, proc, discardLogger(), observability.NewMetricsForTesting())

	c.Seed([]domain.Reading{{SensorID: "sensor1", Value: 5}, {SensorID: "", Value: 9}})
	closeCoordinator(t, c)

	assert.Len(t, c.Snapshot(), 1)
	assert.Zero(t, rec.calls)
	assert.Zero(t, proc.count())
}

func TestCoordinator_UpdateAfterCloseOnlyMutatesMap(t *testing.T) {
	proc := &countingProcessor{}
	c := ingest.New(nil, proc, discardLogger(), observability.NewMetricsForTesting())
	closeCoordinator(t, c)

	c.Update("sensor1", reading(120))

	_, ok := c.Latest("sensor1")
	assert.True(t, ok)
	assert.Zero(t, proc.count())
}
