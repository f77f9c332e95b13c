package domain

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Severity classifies a rainfall amount against the alert thresholds.
type Severity int

const (
	SeverityNone Severity = iota
	SeverityModerate
	SeverityHeavy
	SeveritySevere
)

func (s Severity) String() string {
	switch s {
	case SeverityModerate:
		return "moderate"
	case SeverityHeavy:
		return "heavy"
	case SeveritySevere:
		return "severe"
	default:
		return "none"
	}
}

// Title is the human-readable alert heading used by every channel.
func (s Severity) Title() string {
	switch s {
	case SeverityModerate:
		return "☔ Moderate Rain Alert"
	case SeverityHeavy:
		return "🌧 Heavy Rain Alert"
	case SeveritySevere:
		return "⛈ Severe Rain Alert"
	default:
		return ""
	}
}

// Thresholds are the ascending rainfall limits in millimeters. A value must be
// strictly greater than a limit to reach that severity.
type Thresholds struct {
	Moderate float64
	Heavy    float64
	Severe   float64
}

// DefaultThresholds returns the 50/100/150 mm limits.
func DefaultThresholds() Thresholds {
	return Thresholds{Moderate: 50, Heavy: 100, Severe: 150}
}

// Validate checks that the limits are non-negative and strictly ascending.
func (t Thresholds) Validate() error {
	if t.Moderate < 0 {
		return errors.New("moderate threshold must be non-negative")
	}
	if t.Heavy <= t.Moderate || t.Severe <= t.Heavy {
		return fmt.Errorf("thresholds must ascend: moderate=%g heavy=%g severe=%g", t.Moderate, t.Heavy, t.Severe)
	}
	return nil
}

// Classify returns the highest severity whose limit value exceeds.
// NaN and negative values classify as SeverityNone.
func (t Thresholds) Classify(value float64) Severity {
	if math.IsNaN(value) || value < 0 {
		return SeverityNone
	}
	switch {
	case value > t.Severe:
		return SeveritySevere
	case value > t.Heavy:
		return SeverityHeavy
	case value > t.Moderate:
		return SeverityModerate
	default:
		return SeverityNone
	}
}

// ActiveLimit returns the limit that the severity was classified against.
func (t Thresholds) ActiveLimit(s Severity) float64 {
	switch s {
	case SeveritySevere:
		return t.Severe
	case SeverityHeavy:
		return t.Heavy
	default:
		return t.Moderate
	}
}

// NotificationRequest is what the alert evaluator hands to each channel.
type NotificationRequest struct {
	Severity    Severity
	Title       string
	SensorID    string
	Subdivision string
	Value       float64
	Threshold   float64
	MapLink     string
}

// NewNotificationRequest builds a request for a classified reading.
func NewNotificationRequest(r Reading, sev Severity, threshold float64) NotificationRequest {
	req := NotificationRequest{
		Severity:    sev,
		Title:       sev.Title(),
		SensorID:    r.SensorID,
		Subdivision: r.SubdivisionOrUnknown(),
		Value:       r.Value,
		Threshold:   threshold,
	}
	if r.HasCoordinates() {
		req.MapLink = MapLink(*r.Lat, *r.Lon)
	}
	return req
}

// MapLink points at a Google Maps search for the coordinates.
func MapLink(lat, lon float64) string {
	return "https://maps.google.com/?q=" +
		strconv.FormatFloat(lat, 'f', -1, 64) + "," +
		strconv.FormatFloat(lon, 'f', -1, 64)
}

// FormattedValue renders the amount with one decimal, e.g. "120.0".
func (n NotificationRequest) FormattedValue() string {
	return strconv.FormatFloat(n.Value, 'f', 1, 64)
}

// Markdown renders the multi-line chat message.
func (n NotificationRequest) Markdown() string {
	lines := []string{
		"*" + n.Title + "*",
		"• Sensor: `" + n.SensorID + "`",
		"• Subdivision: " + n.Subdivision,
		"• Amount: *" + n.FormattedValue() + " mm*",
		"• Threshold: " + strconv.FormatFloat(n.Threshold, 'f', -1, 64) + " mm",
	}
	if n.MapLink != "" {
		lines = append(lines, "• Map: "+n.MapLink)
	}
	return strings.Join(lines, "\n")
}

// Summary is the one-line body used for push notifications.
func (n NotificationRequest) Summary() string {
	return n.Subdivision + ": " + n.FormattedValue() + " mm rain"
}
