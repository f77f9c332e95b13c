// Command validate checks the integrity of the files the service writes: the
// latest-reading snapshot and the push subscriber list. It verifies JSON
// shape, field types, unique sorted sensor ids, and subscriber key presence.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -snapshot data/realtime_pdn_data.json \
//	  -subscriptions data/pwa_subscriptions.json
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"math"
	"net/url"
	"os"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name    string
	skipped string
	errors  []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	snapshot := flag.String("snapshot", "data/realtime_pdn_data.json", "path to the sensor snapshot file")
	subscriptions := flag.String("subscriptions", "data/pwa_subscriptions.json", "path to the push subscriber file")
	flag.Parse()

	os.Exit(run(*snapshot, *subscriptions))
}

func run(snapshotPath, subscriptionsPath string) int {
	fmt.Println("=== Rainfall Data Integrity Validation ===")
	fmt.Println()

	phases := []*phase{
		validateSnapshot(snapshotPath),
		validateSubscriptions(subscriptionsPath),
	}

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		switch {
		case p.skipped != "":
			status = "SKIP (" + p.skipped + ")"
		case !p.passed():
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// loadArray reads a JSON array of objects. A missing file returns fs.ErrNotExist.
func loadArray(path string) ([]map[string]json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var items []map[string]json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("not a JSON array of objects: %w", err)
	}
	return items, nil
}

// ── Snapshot ──

func validateSnapshot(path string) *phase {
	p := &phase{name: "Snapshot (" + path + ")"}

	items, err := loadArray(path)
	if errors.Is(err, fs.ErrNotExist) {
		p.skipped = "file not found"
		return p
	}
	if err != nil {
		p.errorf("%v", err)
		return p
	}

	seen := make(map[string]int, len(items))
	prev := ""
	for i, item := range items {
		id, ok := stringField(item, "sensor_id")
		if !ok || id == "" {
			p.errorf("entry %d: sensor_id missing or not a string", i)
			continue
		}
		if first, dup := seen[id]; dup {
			p.errorf("entry %d: duplicate sensor_id %q (first at %d)", i, id, first)
		}
		seen[id] = i
		if id < prev {
			p.errorf("entry %d: %q out of order after %q", i, id, prev)
		}
		prev = id

		checkValue(p, i, item)
		checkCoordinates(p, i, item)
		if raw, ok := item["subdivision"]; ok && !isNull(raw) {
			if _, isString := stringField(item, "subdivision"); !isString {
				p.errorf("entry %d (%s): subdivision must be a string or null", i, id)
			}
		}
	}
	return p
}

func checkValue(p *phase, i int, item map[string]json.RawMessage) {
	v, ok := numberField(item, "value")
	switch {
	case !ok:
		p.errorf("entry %d: value missing or not a number", i)
	case v < 0:
		p.errorf("entry %d: negative value %.2f", i, v)
	}
}

func checkCoordinates(p *phase, i int, item map[string]json.RawMessage) {
	lat, latOK := numberField(item, "lat")
	lon, lonOK := numberField(item, "lon")
	latNull := isNull(item["lat"])
	lonNull := isNull(item["lon"])

	switch {
	case latNull && lonNull:
		return
	case latOK != lonOK || latNull != lonNull:
		p.errorf("entry %d: lat and lon must both be set or both be null", i)
	case !latOK:
		p.errorf("entry %d: lat/lon must be numbers", i)
	case math.Abs(lat) > 90 || math.Abs(lon) > 180:
		p.errorf("entry %d: coordinates out of range (%.4f, %.4f)", i, lat, lon)
	}
}

// ── Subscriptions ──

func validateSubscriptions(path string) *phase {
	p := &phase{name: "Push subscriptions (" + path + ")"}

	items, err := loadArray(path)
	if errors.Is(err, fs.ErrNotExist) {
		p.skipped = "file not found"
		return p
	}
	if err != nil {
		p.errorf("%v", err)
		return p
	}

	endpoints := make(map[string]int, len(items))
	for i, item := range items {
		endpoint, ok := stringField(item, "endpoint")
		if !ok || endpoint == "" {
			p.errorf("subscription %d: endpoint missing", i)
			continue
		}
		if u, err := url.Parse(endpoint); err != nil || u.Scheme != "https" || u.Host == "" {
			p.errorf("subscription %d: endpoint %q is not an https URL", i, endpoint)
		}
		if first, dup := endpoints[endpoint]; dup {
			p.errorf("subscription %d: duplicate endpoint (first at %d)", i, first)
		}
		endpoints[endpoint] = i

		var keys struct {
			P256dh string `json:"p256dh"`
			Auth   string `json:"auth"`
		}
		if raw, ok := item["keys"]; !ok || json.Unmarshal(raw, &keys) != nil {
			p.errorf("subscription %d: keys object missing", i)
			continue
		}
		if keys.P256dh == "" || keys.Auth == "" {
			p.errorf("subscription %d: keys.p256dh and keys.auth are required", i)
		}
	}
	return p
}

// ── Field helpers ──

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

func stringField(item map[string]json.RawMessage, key string) (string, bool) {
	raw, ok := item[key]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func numberField(item map[string]json.RawMessage, key string) (float64, bool) {
	raw, ok := item[key]
	if !ok || isNull(raw) {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, false
	}
	return f, true
}
