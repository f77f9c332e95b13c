package telegram

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/rainfall-alerts/internal/alert"
	"github.com/couchcryptid/rainfall-alerts/internal/domain"
)

const (
	testToken  = "123:test-token"
	testChatID = "-1001"
)

func testClient(baseURL string, timeout time.Duration) *Client {
	c := NewClient(testToken, testChatID, timeout, slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.baseURL = baseURL
	return c
}

func testRequest() domain.NotificationRequest {
	return domain.NewNotificationRequest(domain.Reading{
		SensorID:    "sensor1",
		Subdivision: "Vidarbha",
		Value:       120,
		Lat:         domain.Float64(21.1),
		Lon:         domain.Float64(79.0),
	}, domain.SeverityHeavy, 100)
}

func TestClient_Send_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/bot"+testToken+"/sendMessage", r.URL.Path)

		var body sendMessageRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, testChatID, body.ChatID)
		assert.Equal(t, "Markdown", body.ParseMode)
		assert.Contains(t, body.Text, "Heavy Rain Alert")
		assert.Contains(t, body.Text, "https://maps.google.com/?q=21.1,79")

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	res := testClient(srv.URL, 5*time.Second).Send(context.Background(), testRequest())
	assert.True(t, res.OK)
}

func TestClient_Send_Non2xxIsRejected(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"description":"chat not found"}`))
	}))
	defer srv.Close()

	res := testClient(srv.URL, 5*time.Second).Send(context.Background(), testRequest())

	assert.False(t, res.OK)
	assert.Equal(t, alert.ReasonRejected, res.Reason)
	assert.Contains(t, res.Err.Error(), "400")
	assert.Equal(t, 1, calls, "send must not retry")
}

func TestClient_Send_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	res := testClient(srv.URL, 50*time.Millisecond).Send(context.Background(), testRequest())

	assert.False(t, res.OK)
	assert.Equal(t, alert.ReasonTransport, res.Reason)
	assert.NotContains(t, res.Err.Error(), testToken)
}

func TestClient_Send_MissingCredentials(t *testing.T) {
	c := NewClient("", testChatID, time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))

	res := c.Send(context.Background(), testRequest())

	assert.False(t, res.OK)
	assert.Equal(t, alert.ReasonMissingCredentials, res.Reason)
	assert.ErrorIs(t, res.Err, ErrNotConfigured)
}
