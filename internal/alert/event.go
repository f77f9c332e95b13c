package alert

import (
	"time"

	"github.com/google/uuid"

	"github.com/couchcryptid/rainfall-alerts/internal/domain"
)

// Event describes a dispatched alert for downstream dashboards.
type Event struct {
	ID          string          `json:"id"`
	SensorID    string          `json:"sensor_id"`
	Subdivision string          `json:"subdivision"`
	Value       float64         `json:"value"`
	Severity    string          `json:"severity"`
	Threshold   float64         `json:"threshold"`
	MapLink     string          `json:"map_link,omitempty"`
	Channels    map[string]bool `json:"channels"`
	SentAt      time.Time       `json:"sent_at"`
}

func newEvent(req domain.NotificationRequest, results map[string]Result, sentAt time.Time) Event {
	channels := make(map[string]bool, len(results))
	for name, r := range results {
		channels[name] = r.OK
	}
	return Event{
		ID:          uuid.NewString(),
		SensorID:    req.SensorID,
		Subdivision: req.Subdivision,
		Value:       req.Value,
		Severity:    req.Severity.String(),
		Threshold:   req.Threshold,
		MapLink:     req.MapLink,
		Channels:    channels,
		SentAt:      sentAt.UTC(),
	}
}
