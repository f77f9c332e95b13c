// Package ingest owns the live sensor state map and fans each accepted reading
// out to snapshot persistence and alert evaluation.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/rainfall-alerts/internal/domain"
	"github.com/couchcryptid/rainfall-alerts/internal/observability"
)

// Persister writes a full snapshot of the sensor state map.
type Persister interface {
	Name() string
	Persist(ctx context.Context, readings []domain.Reading) error
}

// AlertProcessor evaluates a reading and dispatches any resulting notification.
type AlertProcessor interface {
	Process(ctx context.Context, reading domain.Reading)
}

const (
	defaultWorkers        = 16
	defaultPersistTimeout = 10 * time.Second
)

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithWorkers bounds the number of concurrently running alert tasks.
func WithWorkers(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithPersistTimeout bounds a single persister call.
func WithPersistTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.persistTimeout = d
		}
	}
}

// Coordinator is the single update path for sensor readings. Both the MQTT
// listener and the HTTP handler call Update.
type Coordinator struct {
	mu      sync.Mutex
	sensors map[string]domain.Reading

	persisters     []Persister
	alerts         AlertProcessor
	logger         *slog.Logger
	metrics        *observability.Metrics
	workers        int
	persistTimeout time.Duration

	tasks         errgroup.Group
	persistSignal chan struct{}
	stop          chan struct{}
	persistDone   chan struct{}
	schedMu       sync.RWMutex // guards closed against concurrent scheduling
	closed        bool
	closeOnce     sync.Once
}

// New creates a Coordinator and starts its persistence loop. alerts may be nil
// to disable alerting. Call Close to drain background work.
func New(persisters []Persister, alerts AlertProcessor, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Coordinator {
	c := &Coordinator{
		sensors:        make(map[string]domain.Reading),
		persisters:     persisters,
		alerts:         alerts,
		logger:         logger,
		metrics:        metrics,
		workers:        defaultWorkers,
		persistTimeout: defaultPersistTimeout,
		persistSignal:  make(chan struct{}, 1),
		stop:           make(chan struct{}),
		persistDone:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.tasks.SetLimit(c.workers)

	go c.persistLoop()
	return c
}

// Seed loads previously persisted readings into the state map without
// triggering persistence or alerts. Existing entries win over seeded ones.
func (c *Coordinator) Seed(readings []domain.Reading) {
	c.mu.Lock()
	for _, r := range readings {
		if r.SensorID == "" {
			continue
		}
		if _, ok := c.sensors[r.SensorID]; !ok {
			c.sensors[r.SensorID] = r
		}
	}
	n := len(c.sensors)
	c.mu.Unlock()

	c.metrics.SensorsTracked.Set(float64(n))
}

// Update replaces the sensor's latest reading, then schedules a snapshot
// persist and an alert evaluation. It never waits on either.
func (c *Coordinator) Update(sensorID string, reading domain.Reading) {
	reading.SensorID = sensorID

	c.mu.Lock()
	c.sensors[sensorID] = reading
	n := len(c.sensors)
	c.mu.Unlock()

	c.metrics.SensorsTracked.Set(float64(n))

	c.schedMu.RLock()
	defer c.schedMu.RUnlock()
	if c.closed {
		c.logger.Debug("coordinator closed, update not scheduled", "sensor_id", sensorID)
		return
	}

	c.schedulePersist()
	c.scheduleAlert(reading)
}

// Snapshot returns a copy of every latest reading, sorted by sensor id.
func (c *Coordinator) Snapshot() []domain.Reading {
	c.mu.Lock()
	out := make([]domain.Reading, 0, len(c.sensors))
	for _, r := range c.sensors {
		out = append(out, r)
	}
	c.mu.Unlock()

	domain.SortBySensorID(out)
	return out
}

// Latest returns the most recent reading for a sensor.
func (c *Coordinator) Latest(sensorID string) (domain.Reading, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.sensors[sensorID]
	return r, ok
}

// Close stops accepting background work, waits for in-flight alert tasks and
// writes a final snapshot. It returns ctx.Err() if draining outlives ctx.
func (c *Coordinator) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		c.schedMu.Lock()
		c.closed = true
		c.schedMu.Unlock()
		go func() {
			_ = c.tasks.Wait()
			close(c.stop)
		}()
	})

	select {
	case <-c.persistDone:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain coordinator: %w", ctx.Err())
	}
}

// schedulePersist wakes the persistence loop. A pending signal already covers
// this update because every cycle snapshots the whole map.
func (c *Coordinator) schedulePersist() {
	select {
	case c.persistSignal <- struct{}{}:
	default:
	}
}

func (c *Coordinator) scheduleAlert(reading domain.Reading) {
	if c.alerts == nil {
		return
	}
	ok := c.tasks.TryGo(func() error {
		defer c.recoverTask(reading.SensorID)
		c.alerts.Process(context.Background(), reading)
		return nil
	})
	if !ok {
		c.metrics.TasksDropped.Inc()
		c.logger.Warn("alert worker pool saturated, dropping evaluation",
			"sensor_id", reading.SensorID,
			"workers", c.workers,
		)
	}
}

func (c *Coordinator) recoverTask(sensorID string) {
	if r := recover(); r != nil {
		c.logger.Error("alert task panicked", "sensor_id", sensorID, "panic", r)
	}
}

func (c *Coordinator) persistLoop() {
	defer close(c.persistDone)
	for {
		select {
		case <-c.persistSignal:
			c.persistAll()
		case <-c.stop:
			select {
			case <-c.persistSignal:
				c.persistAll()
			default:
			}
			return
		}
	}
}

func (c *Coordinator) persistAll() {
	if len(c.persisters) == 0 {
		return
	}
	start := time.Now()
	snapshot := c.Snapshot()

	for _, p := range c.persisters {
		if err := c.persistOne(p, snapshot); err != nil {
			c.metrics.SnapshotWrites.WithLabelValues(p.Name(), "error").Inc()
			c.logger.Error("snapshot persist failed",
				"sink", p.Name(),
				"sensors", len(snapshot),
				"error", err,
			)
			continue
		}
		c.metrics.SnapshotWrites.WithLabelValues(p.Name(), "success").Inc()
	}
	c.metrics.SnapshotWriteDuration.Observe(time.Since(start).Seconds())
}

func (c *Coordinator) persistOne(p Persister, snapshot []domain.Reading) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("persister panicked: %v", r)
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), c.persistTimeout)
	defer cancel()
	return p.Persist(ctx, snapshot)
}
