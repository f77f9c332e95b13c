package domain

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

// --- mock geocoder ---

type mockGeocoder struct {
	result GeocodingResult
	err    error
	calls  int
}

func (m *mockGeocoder) ReverseGeocode(_ context.Context, _, _ float64) (GeocodingResult, error) {
	m.calls++
	return m.result, m.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- tests ---

func TestResolveSubdivision_NilGeocoder(t *testing.T) {
	r := Reading{SensorID: "sensor1", Lat: Float64(19.07), Lon: Float64(72.87)}

	result := ResolveSubdivision(context.Background(), r, nil, discardLogger())

	assert.Empty(t, result.Subdivision)
}

func TestResolveSubdivision_FillsMissing(t *testing.T) {
	geo := &mockGeocoder{result: GeocodingResult{PlaceName: "Mumbai", FormattedAddress: "Mumbai, Maharashtra, India"}}
	r := Reading{SensorID: "sensor1", Lat: Float64(19.07), Lon: Float64(72.87)}

	result := ResolveSubdivision(context.Background(), r, geo, discardLogger())

	assert.Equal(t, "Mumbai", result.Subdivision)
	assert.Equal(t, 1, geo.calls)
}

func TestResolveSubdivision_KeepsExisting(t *testing.T) {
	geo := &mockGeocoder{result: GeocodingResult{PlaceName: "Mumbai"}}
	r := Reading{SensorID: "sensor1", Subdivision: "Konkan & Goa", Lat: Float64(19.07), Lon: Float64(72.87)}

	result := ResolveSubdivision(context.Background(), r, geo, discardLogger())

	assert.Equal(t, "Konkan & Goa", result.Subdivision)
	assert.Zero(t, geo.calls)
}

func TestResolveSubdivision_NoCoordinates(t *testing.T) {
	geo := &mockGeocoder{result: GeocodingResult{PlaceName: "Mumbai"}}
	r := Reading{SensorID: "sensor1", Lat: Float64(19.07)}

	result := ResolveSubdivision(context.Background(), r, geo, discardLogger())

	assert.Empty(t, result.Subdivision)
	assert.Zero(t, geo.calls)
}

func TestResolveSubdivision_ErrorFallsBack(t *testing.T) {
	geo := &mockGeocoder{err: errors.New("timeout")}
	r := Reading{SensorID: "sensor1", Lat: Float64(19.07), Lon: Float64(72.87)}

	result := ResolveSubdivision(context.Background(), r, geo, discardLogger())

	assert.Empty(t, result.Subdivision)
	assert.Equal(t, UnknownSubdivision, result.SubdivisionOrUnknown())
}
