package domain

import (
	"context"
	"log/slog"
)

// ResolveSubdivision fills in a missing subdivision from the reading's
// coordinates. The reading is returned unchanged when it already has a
// subdivision, lacks coordinates, geocoder is nil, or the lookup fails.
func ResolveSubdivision(ctx context.Context, r Reading, geocoder Geocoder, logger *slog.Logger) Reading {
	if geocoder == nil || r.Subdivision != "" || !r.HasCoordinates() {
		return r
	}

	result, err := geocoder.ReverseGeocode(ctx, *r.Lat, *r.Lon)
	if err != nil {
		logger.Warn("reverse geocoding failed",
			"sensor_id", r.SensorID,
			"lat", *r.Lat,
			"lon", *r.Lon,
			"error", err,
		)
		return r
	}
	if result.PlaceName != "" {
		r.Subdivision = result.PlaceName
	}
	return r
}
