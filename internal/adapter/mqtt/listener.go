// Package mqtt receives rainfall readings from an MQTT broker and hands them
// to the ingestion coordinator.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/couchcryptid/rainfall-alerts/internal/domain"
	"github.com/couchcryptid/rainfall-alerts/internal/observability"
)

const (
	qos               = 0
	subscribeTimeout  = 10 * time.Second
	disconnectQuiesce = 250 // milliseconds
)

// State is the connection lifecycle of the listener.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateSubscribed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateSubscribed:
		return "subscribed"
	default:
		return "disconnected"
	}
}

// Updater applies a validated reading to the live state.
type Updater interface {
	Update(sensorID string, reading domain.Reading)
}

// Config holds the broker connection settings.
type Config struct {
	Broker   string
	ClientID string
	Topic    string
}

// Listener subscribes to the sensor topic and forwards each decoded message.
type Listener struct {
	cfg     Config
	updater Updater
	logger  *slog.Logger
	metrics *observability.Metrics

	state     atomic.Int32
	client    paho.Client
	newClient func(*paho.ClientOptions) paho.Client
}

// NewListener creates a listener. Call Start to connect.
func NewListener(cfg Config, updater Updater, logger *slog.Logger, metrics *observability.Metrics) *Listener {
	return &Listener{
		cfg:       cfg,
		updater:   updater,
		logger:    logger,
		metrics:   metrics,
		newClient: paho.NewClient,
	}
}

// Start begins connecting in the background. The client retries the initial
// connection and reconnects after a loss without an upper bound, so Start
// does not wait for the broker.
func (l *Listener) Start() {
	opts := paho.NewClientOptions().
		AddBroker(l.cfg.Broker).
		SetClientID(l.cfg.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetMaxReconnectInterval(time.Minute).
		SetOnConnectHandler(l.onConnect).
		SetConnectionLostHandler(l.onConnectionLost).
		SetReconnectingHandler(func(paho.Client, *paho.ClientOptions) {
			l.setState(StateConnecting)
		})

	l.client = l.newClient(opts)
	l.setState(StateConnecting)
	l.logger.Info("connecting to mqtt broker", "broker", l.cfg.Broker, "topic", l.cfg.Topic)
	l.client.Connect()
}

// Stop disconnects from the broker.
func (l *Listener) Stop() {
	if l.client != nil {
		l.client.Disconnect(disconnectQuiesce)
	}
	l.setState(StateDisconnected)
}

// State reports the current connection state.
func (l *Listener) State() State {
	return State(l.state.Load())
}

// CheckReadiness reports ready once the topic subscription is active.
func (l *Listener) CheckReadiness(_ context.Context) error {
	if s := l.State(); s != StateSubscribed {
		return fmt.Errorf("mqtt listener %s", s)
	}
	return nil
}

func (l *Listener) setState(s State) {
	l.state.Store(int32(s))
	if s == StateSubscribed {
		l.metrics.MQTTConnected.Set(1)
	} else {
		l.metrics.MQTTConnected.Set(0)
	}
}

// onConnect runs on every (re)connect, so the subscription survives a
// broker restart with a clean session.
func (l *Listener) onConnect(c paho.Client) {
	l.setState(StateConnected)
	l.logger.Info("mqtt connected", "broker", l.cfg.Broker)

	token := c.Subscribe(l.cfg.Topic, qos, l.handleMessage)
	if !token.WaitTimeout(subscribeTimeout) {
		l.logger.Error("mqtt subscribe timed out", "topic", l.cfg.Topic)
		return
	}
	if err := token.Error(); err != nil {
		l.logger.Error("mqtt subscribe failed", "topic", l.cfg.Topic, "error", err)
		return
	}
	l.setState(StateSubscribed)
	l.logger.Info("mqtt subscribed", "topic", l.cfg.Topic)
}

func (l *Listener) onConnectionLost(_ paho.Client, err error) {
	l.setState(StateDisconnected)
	l.logger.Warn("mqtt connection lost", "error", err)
}

type payload struct {
	Subdivision string   `json:"subdivision"`
	Value       *number  `json:"value"`
	Lat         *float64 `json:"lat"`
	Lon         *float64 `json:"lon"`
}

func (l *Listener) handleMessage(_ paho.Client, msg paho.Message) {
	reading, err := l.decode(msg.Topic(), msg.Payload())
	if err != nil {
		l.metrics.ReadingsRejected.WithLabelValues("mqtt").Inc()
		l.logger.Warn("discarding mqtt message", "topic", msg.Topic(), "error", err)
		return
	}

	l.updater.Update(reading.SensorID, reading)
	l.metrics.ReadingsIngested.WithLabelValues("mqtt").Inc()
	l.logger.Debug("mqtt reading", "sensor_id", reading.SensorID, "value", reading.Value)
}

func (l *Listener) decode(topic string, body []byte) (domain.Reading, error) {
	sensorID, err := ParseTopic(l.cfg.Topic, topic)
	if err != nil {
		return domain.Reading{}, err
	}
	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return domain.Reading{}, fmt.Errorf("decode payload: %w", err)
	}
	return domain.NewReading(sensorID, domain.ReceiptTimestamp(), p.Subdivision, p.Value.float(), p.Lat, p.Lon)
}

// number accepts a JSON number or a string holding one, as firmware on some
// stations quotes the value.
type number float64

func (n *number) UnmarshalJSON(b []byte) error {
	s := string(b)
	if strings.HasPrefix(s, `"`) {
		unquoted, err := strconv.Unquote(s)
		if err != nil {
			return fmt.Errorf("value: %w", err)
		}
		s = strings.TrimSpace(unquoted)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("value %s is not a number", b)
	}
	*n = number(v)
	return nil
}

func (n *number) float() *float64 {
	if n == nil {
		return nil
	}
	v := float64(*n)
	return &v
}

// ParseTopic extracts the sensor id from topic, taking the segment that sits
// at the single-level wildcard of filter (rainfall/+/data → segment 2). Every
// other segment must match the filter literally.
func ParseTopic(filter, topic string) (string, error) {
	want := strings.Split(filter, "/")
	got := strings.Split(topic, "/")
	if len(want) != len(got) {
		return "", domain.ErrBadTopic
	}

	sensorID := ""
	for i, seg := range want {
		if seg == "+" {
			if sensorID == "" {
				sensorID = strings.TrimSpace(got[i])
			}
			continue
		}
		if seg != got[i] {
			return "", domain.ErrBadTopic
		}
	}
	if sensorID == "" {
		return "", domain.ErrBadTopic
	}
	return sensorID, nil
}
