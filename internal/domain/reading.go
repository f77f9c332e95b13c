package domain

import (
	"errors"
	"math"
	"sort"
	"strings"
)

// Errors returned when an inbound reading cannot be accepted.
var (
	ErrMissingSensorID = errors.New("sensor_id is required")
	ErrMissingValue    = errors.New("value is required")
	ErrNegativeValue   = errors.New("value must be non-negative")
	ErrInvalidValue    = errors.New("value must be a finite number")
	ErrBadTopic        = errors.New("topic does not match rainfall/<sensor_id>/data")
)

// Reading is the latest rainfall observation for one sensor.
type Reading struct {
	SensorID    string   `json:"sensor_id"`
	Timestamp   int64    `json:"ts"`
	Subdivision string   `json:"subdivision,omitempty"`
	Value       float64  `json:"value"`
	Lat         *float64 `json:"lat,omitempty"`
	Lon         *float64 `json:"lon,omitempty"`
}

// HasCoordinates reports whether both lat and lon are present.
func (r Reading) HasCoordinates() bool {
	return r.Lat != nil && r.Lon != nil
}

// SubdivisionOrUnknown returns the subdivision label, or "Unknown" when absent.
func (r Reading) SubdivisionOrUnknown() string {
	if s := strings.TrimSpace(r.Subdivision); s != "" {
		return s
	}
	return UnknownSubdivision
}

// UnknownSubdivision labels readings that carry no subdivision.
const UnknownSubdivision = "Unknown"

// NewReading validates the raw fields of an inbound observation and builds a
// Reading. value is a pointer so that an absent value can be told apart from 0.
func NewReading(sensorID string, ts int64, subdivision string, value *float64, lat, lon *float64) (Reading, error) {
	sensorID = strings.TrimSpace(sensorID)
	if sensorID == "" {
		return Reading{}, ErrMissingSensorID
	}
	if value == nil {
		return Reading{}, ErrMissingValue
	}
	if math.IsNaN(*value) || math.IsInf(*value, 0) {
		return Reading{}, ErrInvalidValue
	}
	if *value < 0 {
		return Reading{}, ErrNegativeValue
	}
	return Reading{
		SensorID:    sensorID,
		Timestamp:   ts,
		Subdivision: strings.TrimSpace(subdivision),
		Value:       *value,
		Lat:         lat,
		Lon:         lon,
	}, nil
}

// SnapshotEntry is one record of the persisted snapshot file.
type SnapshotEntry struct {
	SensorID    string   `json:"sensor_id"`
	Subdivision *string  `json:"subdivision"`
	Value       float64  `json:"value"`
	Lat         *float64 `json:"lat"`
	Lon         *float64 `json:"lon"`
}

// ToSnapshotEntry converts a reading into its on-disk form. An empty
// subdivision is written as null.
func (r Reading) ToSnapshotEntry() SnapshotEntry {
	e := SnapshotEntry{
		SensorID: r.SensorID,
		Value:    r.Value,
		Lat:      r.Lat,
		Lon:      r.Lon,
	}
	if r.Subdivision != "" {
		s := r.Subdivision
		e.Subdivision = &s
	}
	return e
}

// ToReading converts a snapshot entry back into a Reading. The snapshot does
// not carry timestamps, so the reading's Timestamp is zero.
func (e SnapshotEntry) ToReading() Reading {
	r := Reading{
		SensorID: e.SensorID,
		Value:    e.Value,
		Lat:      e.Lat,
		Lon:      e.Lon,
	}
	if e.Subdivision != nil {
		r.Subdivision = *e.Subdivision
	}
	return r
}

// SortBySensorID orders readings by sensor id so snapshots are stable.
func SortBySensorID(readings []Reading) {
	sort.Slice(readings, func(i, j int) bool {
		return readings[i].SensorID < readings[j].SensorID
	})
}

// Float64 returns a pointer to v.
func Float64(v float64) *float64 { return &v }
