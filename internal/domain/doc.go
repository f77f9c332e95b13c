// Package domain models rainfall sensor readings and the alert rules applied
// to them.
//
// # Readings
//
// Sensors report cumulative rainfall in millimeters. Each sensor is keyed by a
// stable string id, taken from the MQTT topic segment in
//
//	rainfall/<sensor_id>/data
//
// or from the sensor_id field of an HTTP post. Only the latest reading per
// sensor is kept; a new reading replaces the old one. Subdivision is a
// free-form region label (e.g. "Konkan & Goa") and may be absent. Coordinates
// are optional and only used for map links and subdivision lookup.
//
// A reading without a value is rejected. Negative and non-finite values are
// rejected as malformed.
//
// # Alert levels
//
// Amounts are compared against three ascending limits, highest match wins:
//
//	value >  severe    severe   (default 150 mm)
//	value >  heavy     heavy    (default 100 mm)
//	value >  moderate  moderate (default 50 mm)
//	otherwise          no alert
//
// The comparison is strict, so exactly 50.0 mm raises nothing.
//
// # Snapshot format
//
// The persisted snapshot is a JSON array sorted by sensor id:
//
//	[{"sensor_id":"sensor1","subdivision":"Vidarbha","value":72.5,"lat":21.1,"lon":79.0}]
//
// Missing subdivision and coordinates are written as null.
package domain
