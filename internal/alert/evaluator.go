package alert

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/rainfall-alerts/internal/domain"
	"github.com/couchcryptid/rainfall-alerts/internal/observability"
)

// DefaultCooldown is the minimum gap between two alerts for one sensor.
const DefaultCooldown = 600 * time.Second

const publishTimeout = 10 * time.Second

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithClock replaces the real clock, mainly for tests.
func WithClock(c clockwork.Clock) Option {
	return func(e *Evaluator) { e.clock = c }
}

// WithEventPublisher records successful dispatches on an event stream.
func WithEventPublisher(p EventPublisher) Option {
	return func(e *Evaluator) { e.events = p }
}

// WithGeocoder resolves missing subdivisions from coordinates before the
// notification is built. Each lookup is bounded by timeout.
func WithGeocoder(g domain.Geocoder, timeout time.Duration) Option {
	return func(e *Evaluator) {
		e.geocoder = g
		e.geocodeTimeout = timeout
	}
}

// Evaluator rate-limits and classifies readings, then dispatches notifications.
// It owns the cooldown ledger.
type Evaluator struct {
	thresholds     domain.Thresholds
	cooldown       time.Duration
	channels       []Channel
	clock          clockwork.Clock
	events         EventPublisher
	geocoder       domain.Geocoder
	geocodeTimeout time.Duration
	logger         *slog.Logger
	metrics        *observability.Metrics

	mu        sync.Mutex
	lastAlert map[string]time.Time
	inFlight  map[string]struct{}

	credentialWarned sync.Map
}

// NewEvaluator creates an Evaluator dispatching to channels in order of registration.
func NewEvaluator(thresholds domain.Thresholds, cooldown time.Duration, channels []Channel, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Evaluator {
	e := &Evaluator{
		thresholds:     thresholds,
		cooldown:       cooldown,
		channels:       channels,
		clock:          clockwork.NewRealClock(),
		geocodeTimeout: 5 * time.Second,
		logger:         logger,
		metrics:        metrics,
		lastAlert:      make(map[string]time.Time),
		inFlight:       make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate reports whether a reading should raise a notification right now and
// builds it. It does not touch the cooldown ledger.
func (e *Evaluator) Evaluate(sensorID string, reading domain.Reading) (domain.NotificationRequest, bool) {
	now := e.clock.Now()

	e.mu.Lock()
	cooling := e.coolingDown(sensorID, now)
	e.mu.Unlock()
	if cooling {
		return domain.NotificationRequest{}, false
	}

	return e.classify(sensorID, reading)
}

// Process evaluates a reading, dispatches the notification to every channel,
// and starts the sensor's cooldown if any channel delivered it. While a
// dispatch for a sensor is in flight, further readings for it are suppressed.
func (e *Evaluator) Process(ctx context.Context, reading domain.Reading) {
	sensorID := reading.SensorID
	now := e.clock.Now()

	e.mu.Lock()
	if _, busy := e.inFlight[sensorID]; busy {
		e.mu.Unlock()
		e.metrics.AlertsSuppressed.WithLabelValues("in_flight").Inc()
		return
	}
	if e.coolingDown(sensorID, now) {
		e.mu.Unlock()
		if e.thresholds.Classify(reading.Value) != domain.SeverityNone {
			e.metrics.AlertsSuppressed.WithLabelValues("cooldown").Inc()
		}
		return
	}
	if e.thresholds.Classify(reading.Value) == domain.SeverityNone {
		e.mu.Unlock()
		return
	}
	e.inFlight[sensorID] = struct{}{}
	e.mu.Unlock()

	delivered := false
	defer func() {
		e.mu.Lock()
		delete(e.inFlight, sensorID)
		if delivered {
			e.lastAlert[sensorID] = now
		}
		e.mu.Unlock()
	}()

	reading = e.resolveSubdivision(ctx, reading)
	req, ok := e.classify(sensorID, reading)
	if !ok {
		return
	}

	e.metrics.AlertsTriggered.WithLabelValues(req.Severity.String()).Inc()
	e.logger.Info("rain alert triggered",
		"sensor_id", sensorID,
		"severity", req.Severity.String(),
		"value", reading.Value,
		"subdivision", req.Subdivision,
	)

	results := e.Dispatch(ctx, req)
	delivered = anySucceeded(results)
	if !delivered {
		e.logger.Warn("alert not delivered on any channel, cooldown not started", "sensor_id", sensorID)
		return
	}

	e.publish(ctx, req, results, now)
}

// Dispatch sends req to every channel concurrently and waits for all results.
// Each channel bounds its own wait, so one slow channel cannot hold back the
// others' sends.
func (e *Evaluator) Dispatch(ctx context.Context, req domain.NotificationRequest) map[string]Result {
	results := make([]Result, len(e.channels))

	var wg sync.WaitGroup
	for i, ch := range e.channels {
		wg.Add(1)
		go func(i int, ch Channel) {
			defer wg.Done()
			results[i] = e.send(ctx, ch, req)
		}(i, ch)
	}
	wg.Wait()

	out := make(map[string]Result, len(e.channels))
	for i, ch := range e.channels {
		out[ch.Name()] = results[i]
	}
	return out
}

// LastAlert returns when the sensor's last delivered alert was evaluated.
func (e *Evaluator) LastAlert(sensorID string) (time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.lastAlert[sensorID]
	return t, ok
}

func (e *Evaluator) coolingDown(sensorID string, now time.Time) bool {
	last, ok := e.lastAlert[sensorID]
	return ok && now.Sub(last) < e.cooldown
}

func (e *Evaluator) classify(sensorID string, reading domain.Reading) (domain.NotificationRequest, bool) {
	sev := e.thresholds.Classify(reading.Value)
	if sev == domain.SeverityNone {
		return domain.NotificationRequest{}, false
	}
	reading.SensorID = sensorID
	return domain.NewNotificationRequest(reading, sev, e.thresholds.ActiveLimit(sev)), true
}

func (e *Evaluator) resolveSubdivision(ctx context.Context, reading domain.Reading) domain.Reading {
	if e.geocoder == nil {
		return reading
	}
	ctx, cancel := context.WithTimeout(ctx, e.geocodeTimeout)
	defer cancel()
	return domain.ResolveSubdivision(ctx, reading, e.geocoder, e.logger)
}

func (e *Evaluator) send(ctx context.Context, ch Channel, req domain.NotificationRequest) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("notification channel panicked", "channel", ch.Name(), "panic", r)
			res = Failure(ReasonNone, nil)
		}
		e.metrics.ChannelSends.WithLabelValues(ch.Name(), res.Outcome()).Inc()
	}()

	res = ch.Send(ctx, req)
	switch {
	case res.OK:
		e.logger.Info("alert sent", "channel", ch.Name(), "sensor_id", req.SensorID)
	case res.Reason == ReasonMissingCredentials:
		if _, warned := e.credentialWarned.LoadOrStore(ch.Name(), true); !warned {
			e.logger.Warn("notification channel not configured", "channel", ch.Name(), "error", res.Err)
		}
	default:
		e.logger.Warn("alert send failed",
			"channel", ch.Name(),
			"sensor_id", req.SensorID,
			"reason", string(res.Reason),
			"error", res.Err,
		)
	}
	return res
}

func (e *Evaluator) publish(ctx context.Context, req domain.NotificationRequest, results map[string]Result, sentAt time.Time) {
	if e.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := e.events.Publish(ctx, newEvent(req, results, sentAt)); err != nil {
		e.metrics.EventsPublished.WithLabelValues("error").Inc()
		e.logger.Warn("alert event publish failed", "sensor_id", req.SensorID, "error", err)
		return
	}
	e.metrics.EventsPublished.WithLabelValues("success").Inc()
}

func anySucceeded(results map[string]Result) bool {
	for _, r := range results {
		if r.OK {
			return true
		}
	}
	return false
}
