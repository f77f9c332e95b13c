// Package forecast calls the external rainfall model server.
package forecast

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ErrNoPrediction is returned when the model answers without a number.
var ErrNoPrediction = errors.New("model returned no prediction")

// Client posts prediction requests to the model server.
type Client struct {
	url        string
	httpClient *http.Client
}

// NewClient creates a forecast client for the model endpoint at url.
func NewClient(url string, timeout time.Duration) *Client {
	return &Client{url: url, httpClient: &http.Client{Timeout: timeout}}
}

type predictRequest struct {
	Subdivision  string    `json:"subdivision"`
	RecentValues []float64 `json:"recent_values"`
}

type predictResponse struct {
	PredictedRainfall *float64 `json:"predicted_rainfall"`
	Error             string   `json:"error,omitempty"`
}

// Predict asks the model for the next rainfall amount in mm for subdivision.
// recentValues may be empty, in which case the model relies on its history.
// The result is rounded to two decimals.
func (c *Client) Predict(ctx context.Context, subdivision string, recentValues []float64) (float64, error) {
	if recentValues == nil {
		recentValues = []float64{}
	}
	body, err := json.Marshal(predictRequest{Subdivision: subdivision, RecentValues: recentValues})
	if err != nil {
		return 0, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("forecast request: %w", err)
	}
	defer resp.Body.Close()

	var out predictResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return 0, fmt.Errorf("decode forecast (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		if out.Error != "" {
			return 0, fmt.Errorf("model error: status %d: %s", resp.StatusCode, out.Error)
		}
		return 0, fmt.Errorf("model error: status %d", resp.StatusCode)
	}
	if out.PredictedRainfall == nil || math.IsNaN(*out.PredictedRainfall) {
		return 0, ErrNoPrediction
	}
	return math.Round(*out.PredictedRainfall*100) / 100, nil
}

// DisplayName title-cases a subdivision name the way responses present it.
func DisplayName(subdivision string) string {
	return cases.Title(language.English).String(subdivision)
}
