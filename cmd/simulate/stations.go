package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"
	"time"
)

type station struct {
	Subdivision string
	Lat         float64
	Lon         float64
}

// defaultStations is one representative point per meteorological subdivision.
var defaultStations = []station{
	{Subdivision: "Konkan & Goa", Lat: 17.0, Lon: 73.3},
	{Subdivision: "Madhya Maharashtra", Lat: 18.5, Lon: 73.9},
	{Subdivision: "Marathwada", Lat: 19.9, Lon: 75.3},
	{Subdivision: "Vidarbha", Lat: 21.1, Lon: 79.1},
	{Subdivision: "Coastal Karnataka", Lat: 13.3, Lon: 74.7},
	{Subdivision: "Kerala", Lat: 10.0, Lon: 76.3},
	{Subdivision: "Tamil Nadu", Lat: 11.1, Lon: 78.7},
	{Subdivision: "Gangetic West Bengal", Lat: 22.6, Lon: 88.4},
	{Subdivision: "Assam & Meghalaya", Lat: 26.1, Lon: 91.7},
	{Subdivision: "East Rajasthan", Lat: 26.9, Lon: 75.8},
}

// loadStations reads stations from a CSV file, keeping the first row of each
// subdivision. An empty path returns the built-in list.
func loadStations(path string) ([]station, error) {
	if path == "" {
		return defaultStations, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseStations(f)
}

func parseStations(r io.Reader) ([]station, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, name := range []string{"subdivision", "latitude", "longitude"} {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("missing required column %q", name)
		}
	}

	seen := make(map[string]bool)
	var stations []station
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		sub := strings.TrimSpace(row[cols["subdivision"]])
		if sub == "" || seen[sub] {
			continue
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(row[cols["latitude"]]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: latitude: %w", line, err)
		}
		lon, err := strconv.ParseFloat(strings.TrimSpace(row[cols["longitude"]]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: longitude: %w", line, err)
		}
		seen[sub] = true
		stations = append(stations, station{Subdivision: sub, Lat: lat, Lon: lon})
	}
	if len(stations) == 0 {
		return nil, errors.New("no stations in file")
	}
	return stations, nil
}

type simulatedReading struct {
	SensorID    string
	Subdivision string
	Value       float64
	Lat         float64
	Lon         float64
	TS          int64
}

func (r simulatedReading) topic() string {
	return "rainfall/" + r.SensorID + "/data"
}

func (r simulatedReading) mqttPayload() map[string]any {
	return map[string]any{
		"subdivision": r.Subdivision,
		"value":       r.Value,
		"lat":         r.Lat,
		"lon":         r.Lon,
	}
}

func (r simulatedReading) httpPayload() map[string]any {
	p := r.mqttPayload()
	p["sensor_id"] = r.SensorID
	p["ts"] = r.TS
	return p
}

type generator struct {
	stations []station
	min, max float64
	rng      *rand.Rand
	now      func() time.Time
}

func newGenerator(stations []station, minValue, maxValue float64) *generator {
	return &generator{
		stations: stations,
		min:      minValue,
		max:      maxValue,
		rng:      rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		now:      time.Now,
	}
}

// next produces one reading per station. Sensor ids are stable across cycles.
func (g *generator) next() []simulatedReading {
	out := make([]simulatedReading, len(g.stations))
	ts := g.now().Unix()
	for i, s := range g.stations {
		v := g.min + g.rng.Float64()*(g.max-g.min)
		out[i] = simulatedReading{
			SensorID:    "sensor" + strconv.Itoa(i+1),
			Subdivision: s.Subdivision,
			Value:       math.Round(v*100) / 100,
			Lat:         s.Lat,
			Lon:         s.Lon,
			TS:          ts,
		}
	}
	return out
}
