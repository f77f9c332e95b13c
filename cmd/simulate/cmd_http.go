package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var baseURL string

var httpCmd = &cobra.Command{
	Use:   "http",
	Short: "POST readings to the /sensor endpoint",
	RunE:  runHTTP,
}

func init() {
	httpCmd.Flags().StringVar(&baseURL, "url", "http://127.0.0.1:8080", "service base URL")
	rootCmd.AddCommand(httpCmd)
}

func runHTTP(cmd *cobra.Command, _ []string) error {
	client := &http.Client{Timeout: 10 * time.Second}
	endpoint := strings.TrimRight(baseURL, "/") + "/sensor"

	return runCycles(cmd, func(ctx context.Context, r simulatedReading) error {
		return postReading(ctx, client, endpoint, r)
	})
}

func postReading(ctx context.Context, client *http.Client, endpoint string, r simulatedReading) error {
	body, err := json.Marshal(r.httpPayload())
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	return nil
}
