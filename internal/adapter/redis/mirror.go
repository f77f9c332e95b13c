// Package redis mirrors the latest-reading snapshot into a Redis hash so
// dashboards can read live state without touching the snapshot file.
package redis

import (
	"context"
	"encoding/json"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/couchcryptid/rainfall-alerts/internal/domain"
)

// DefaultKey is the hash holding one field per sensor.
const DefaultKey = "rainfall:latest"

// Mirror implements ingest.Persister on top of a Redis hash.
type Mirror struct {
	client *goredis.Client
	key    string
}

// NewMirror connects to addr and verifies the server answers a ping.
func NewMirror(ctx context.Context, addr string) (*Mirror, error) {
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis unavailable at %s: %w", addr, err)
	}
	return &Mirror{client: client, key: DefaultKey}, nil
}

func (m *Mirror) Name() string { return "redis" }

// Persist replaces the hash contents with the snapshot in one transaction, so
// readers never observe a half-written map and removed sensors disappear.
func (m *Mirror) Persist(ctx context.Context, readings []domain.Reading) error {
	fields := make(map[string]any, len(readings))
	for _, r := range readings {
		data, err := json.Marshal(r.ToSnapshotEntry())
		if err != nil {
			return fmt.Errorf("encode %s: %w", r.SensorID, err)
		}
		fields[r.SensorID] = data
	}

	_, err := m.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, m.key)
		if len(fields) > 0 {
			pipe.HSet(ctx, m.key, fields)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("mirror snapshot to redis: %w", err)
	}
	return nil
}

// Load reads the mirrored snapshot back, sorted by sensor id.
func (m *Mirror) Load(ctx context.Context) ([]domain.Reading, error) {
	values, err := m.client.HGetAll(ctx, m.key).Result()
	if err != nil {
		return nil, fmt.Errorf("read redis snapshot: %w", err)
	}

	readings := make([]domain.Reading, 0, len(values))
	for id, raw := range values {
		var e domain.SnapshotEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("decode %s: %w", id, err)
		}
		readings = append(readings, e.ToReading())
	}
	domain.SortBySensorID(readings)
	return readings, nil
}

// CheckReadiness pings the server.
func (m *Mirror) CheckReadiness(ctx context.Context) error {
	return m.client.Ping(ctx).Err()
}

// Close releases the connection pool.
func (m *Mirror) Close() error {
	return m.client.Close()
}
