package tui

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/loopdesk/loopdesk/internal/lifecycle"
)

// APIClient talks to the running LoopDesk instance over the loopback control
// surface.
type APIClient struct {
	baseURL string
	client  *http.Client
}

// NewAPIClient creates a client for the control surface at baseURL.
func NewAPIClient(baseURL string) *APIClient {
	return &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Status fetches the lifecycle snapshot.
func (c *APIClient) Status() (*lifecycle.Status, error) {
	url := fmt.Sprintf("%s/api/v1/status", c.baseURL)

	resp, err := c.client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
	}

	var status lifecycle.Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &status, nil
}

// ApplyUpdate asks the instance to apply a staged artifact. An empty path
// applies the pending artifact the instance already knows about.
func (c *APIClient) ApplyUpdate(artifactPath string) error {
	url := fmt.Sprintf("%s/api/v1/update/apply", c.baseURL)

	body := fmt.Sprintf(`{"artifact_path":%q}`, artifactPath)
	resp, err := c.client.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("update failed: %s", strings.TrimSpace(string(respBody)))
	}
	return nil
}

// HealthCheck checks if the control surface is reachable.
func (c *APIClient) HealthCheck(ctx context.Context) error {
	url := fmt.Sprintf("%s/api/v1/health", c.baseURL)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("API not reachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API unhealthy: status %d", resp.StatusCode)
	}
	return nil
}
