package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "rainfall"

// Metrics holds the Prometheus counters, histograms, and gauges for ingestion and alerting.
type Metrics struct {
	ReadingsIngested *prometheus.CounterVec // labels: source={mqtt,http}
	ReadingsRejected *prometheus.CounterVec // labels: source={mqtt,http}
	SensorsTracked   prometheus.Gauge
	TasksDropped     prometheus.Counter

	// Snapshot persistence metrics.
	SnapshotWrites        *prometheus.CounterVec // labels: sink={file,redis}, outcome={success,error}
	SnapshotWriteDuration prometheus.Histogram

	// Alerting metrics.
	AlertsTriggered  *prometheus.CounterVec // labels: severity
	AlertsSuppressed *prometheus.CounterVec // labels: reason={cooldown,in_flight}
	ChannelSends     *prometheus.CounterVec // labels: channel, outcome
	PushDeliveries   *prometheus.CounterVec // labels: outcome={success,error}
	EventsPublished  *prometheus.CounterVec // labels: outcome={success,error}

	// Transport metrics.
	MQTTConnected prometheus.Gauge

	// Geocoding metrics.
	GeocodeRequests    *prometheus.CounterVec // labels: outcome={success,error,empty}
	GeocodeCache       *prometheus.CounterVec // labels: result={hit,miss}
	GeocodeAPIDuration prometheus.Histogram
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics that are not registered anywhere, so
// multiple tests can each build their own set without "already registered" panics.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		ReadingsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_ingested_total",
			Help:      "Readings applied to the sensor state map, by entry point.",
		}, []string{"source"}),
		ReadingsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_rejected_total",
			Help:      "Inbound readings rejected as malformed, by entry point.",
		}, []string{"source"}),
		SensorsTracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sensors_tracked",
			Help:      "Number of sensors in the state map.",
		}),
		TasksDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_tasks_dropped_total",
			Help:      "Alert tasks dropped because the worker pool was saturated.",
		}),
		SnapshotWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_writes_total",
			Help:      "Snapshot persist attempts by sink and outcome.",
		}, []string{"sink", "outcome"}),
		SnapshotWriteDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "snapshot_write_duration_seconds",
			Help:      "Duration of a full snapshot persist cycle across all sinks.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5},
		}),
		AlertsTriggered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_triggered_total",
			Help:      "Readings that crossed a threshold and were dispatched, by severity.",
		}, []string{"severity"}),
		AlertsSuppressed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_suppressed_total",
			Help:      "Threshold crossings suppressed by cooldown or an in-flight dispatch.",
		}, []string{"reason"}),
		ChannelSends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channel_sends_total",
			Help:      "Notification channel send attempts by channel and outcome.",
		}, []string{"channel", "outcome"}),
		PushDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_deliveries_total",
			Help:      "Per-subscriber web push deliveries by outcome.",
		}, []string{"outcome"}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_events_published_total",
			Help:      "Alert events written to the event stream by outcome.",
		}, []string{"outcome"}),
		MQTTConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mqtt_connected",
			Help:      "1 when the MQTT listener is subscribed, 0 otherwise.",
		}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      "Reverse geocoding API requests by outcome.",
		}, []string{"outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_cache_total",
			Help:      "Geocoding cache lookups by result.",
		}, []string{"result"}),
		GeocodeAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "geocode_api_duration_seconds",
			Help:      "Mapbox API request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.ReadingsIngested,
		m.ReadingsRejected,
		m.SensorsTracked,
		m.TasksDropped,
		m.SnapshotWrites,
		m.SnapshotWriteDuration,
		m.AlertsTriggered,
		m.AlertsSuppressed,
		m.ChannelSends,
		m.PushDeliveries,
		m.EventsPublished,
		m.MQTTConnected,
		m.GeocodeRequests,
		m.GeocodeCache,
		m.GeocodeAPIDuration,
	}
}
