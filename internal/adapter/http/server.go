// Package http serves the ingest, subscription, and forecast endpoints plus
// health, readiness, and metrics.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/rainfall-alerts/internal/adapter/forecast"
	"github.com/couchcryptid/rainfall-alerts/internal/adapter/webpush"
	"github.com/couchcryptid/rainfall-alerts/internal/alert"
	"github.com/couchcryptid/rainfall-alerts/internal/domain"
	"github.com/couchcryptid/rainfall-alerts/internal/observability"
)

const maxBodyBytes = 1 << 20

// StateStore is the live sensor state the handlers read and write.
type StateStore interface {
	Update(sensorID string, reading domain.Reading)
	Snapshot() []domain.Reading
	Latest(sensorID string) (domain.Reading, bool)
}

// SubscriptionAdder stores a browser push subscription.
type SubscriptionAdder interface {
	Add(sub json.RawMessage) error
}

// Broadcaster sends an ad-hoc push notification to every subscriber.
type Broadcaster interface {
	Broadcast(ctx context.Context, title, body string) alert.Result
}

// Forecaster predicts the next rainfall amount for a subdivision.
type Forecaster interface {
	Predict(ctx context.Context, subdivision string, recentValues []float64) (float64, error)
}

// Handlers groups the collaborators behind the API routes. Push and Forecast
// may be nil; their routes then answer 503.
type Handlers struct {
	State         StateStore
	Subscriptions SubscriptionAdder
	Push          Broadcaster
	Forecast      Forecaster
}

// Server exposes the API plus health, readiness, and metrics HTTP endpoints.
type Server struct {
	httpServer *http.Server
	handlers   Handlers
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewServer creates an HTTP server with the API, /healthz, /readyz, and /metrics routes.
func NewServer(addr string, handlers Handlers, ready sharedobs.ReadinessChecker, logger *slog.Logger, metrics *observability.Metrics) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		handlers: handlers,
		logger:   logger,
		metrics:  metrics,
	}

	mux.HandleFunc("POST /sensor", s.handleSensor)
	mux.HandleFunc("GET /sensors/latest", s.handleLatest)
	mux.HandleFunc("POST /subscribe", s.handleSubscribe)
	mux.HandleFunc("POST /alerts/test-push", s.handleTestPush)
	mux.HandleFunc("POST /alerts/test-pwa", s.handleTestPush)
	mux.HandleFunc("POST /predict", s.handlePredict)

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

// Readiness combines several checks; the first failure wins.
type Readiness []sharedobs.ReadinessChecker

func (r Readiness) CheckReadiness(ctx context.Context) error {
	for _, c := range r {
		if err := c.CheckReadiness(ctx); err != nil {
			return err
		}
	}
	return nil
}

type sensorRequest struct {
	SensorID    string   `json:"sensor_id"`
	Value       *float64 `json:"value"`
	TS          *int64   `json:"ts"`
	Lat         *float64 `json:"lat"`
	Lon         *float64 `json:"lon"`
	Subdivision string   `json:"subdivision"`
}

func (s *Server) handleSensor(w http.ResponseWriter, r *http.Request) {
	var req sensorRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.reject(w, "invalid JSON body", err)
		return
	}

	ts := domain.ReceiptTimestamp()
	if req.TS != nil {
		ts = *req.TS
	}
	reading, err := domain.NewReading(req.SensorID, ts, req.Subdivision, req.Value, req.Lat, req.Lon)
	if err != nil {
		msg := err.Error()
		if errors.Is(err, domain.ErrMissingSensorID) || errors.Is(err, domain.ErrMissingValue) {
			msg = "sensor_id and value required"
		}
		s.reject(w, msg, err)
		return
	}

	s.handlers.State.Update(reading.SensorID, reading)
	s.metrics.ReadingsIngested.WithLabelValues("http").Inc()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) reject(w http.ResponseWriter, msg string, err error) {
	s.metrics.ReadingsRejected.WithLabelValues("http").Inc()
	s.logger.Debug("rejected sensor post", "error", err)
	writeError(w, http.StatusBadRequest, msg)
}

type latestEntry struct {
	TS          int64    `json:"ts"`
	Subdivision *string  `json:"subdivision"`
	Value       float64  `json:"value"`
	Lat         *float64 `json:"lat"`
	Lon         *float64 `json:"lon"`
}

func (s *Server) handleLatest(w http.ResponseWriter, _ *http.Request) {
	readings := s.handlers.State.Snapshot()
	out := make(map[string]latestEntry, len(readings))
	for _, r := range readings {
		e := r.ToSnapshotEntry()
		out[r.SensorID] = latestEntry{
			TS:          r.Timestamp,
			Subdivision: e.Subdivision,
			Value:       e.Value,
			Lat:         e.Lat,
			Lon:         e.Lon,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var sub json.RawMessage
	if err := decodeBody(w, r, &sub); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.handlers.Subscriptions.Add(sub); err != nil {
		if errors.Is(err, webpush.ErrInvalidSubscription) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("saving push subscription failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not save subscription")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Subscribed successfully!"})
}

type testPushRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

func (s *Server) handleTestPush(w http.ResponseWriter, r *http.Request) {
	if s.handlers.Push == nil {
		writeError(w, http.StatusServiceUnavailable, "push notifications are not configured")
		return
	}

	var req testPushRequest
	if err := decodeBody(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Title == "" {
		req.Title = "Rain Alert"
	}
	if req.Body == "" {
		req.Body = "Test push from backend"
	}

	res := s.handlers.Push.Broadcast(r.Context(), req.Title, req.Body)
	if !res.OK {
		s.logger.Warn("test push failed", "reason", res.Reason, "error", res.Err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error":  errorText(res.Err),
			"reason": string(res.Reason),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

type predictRequest struct {
	Subdivision string `json:"subdivision"`
	UseRealtime bool   `json:"use_realtime"`
	SensorID    string `json:"sensor_id"`
}

type predictResponse struct {
	Subdivision       string  `json:"subdivision"`
	PredictedRainfall float64 `json:"predicted_rainfall"`
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	if s.handlers.Forecast == nil {
		writeError(w, http.StatusServiceUnavailable, "forecast model is not configured")
		return
	}

	var req predictRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Subdivision == "" {
		writeError(w, http.StatusBadRequest, "subdivision required")
		return
	}

	var recent []float64
	if req.UseRealtime && req.SensorID != "" {
		if reading, ok := s.handlers.State.Latest(req.SensorID); ok {
			recent = []float64{reading.Value}
		}
	}

	predicted, err := s.handlers.Forecast.Predict(r.Context(), req.Subdivision, recent)
	if err != nil {
		s.logger.Warn("forecast failed", "subdivision", req.Subdivision, "error", err)
		writeError(w, http.StatusBadGateway, "forecast unavailable")
		return
	}
	writeJSON(w, http.StatusOK, predictResponse{
		Subdivision:       forecast.DisplayName(req.Subdivision),
		PredictedRainfall: predicted,
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return dec.Decode(v)
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response body
}
