// internal/api/client.go
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/racedqn/autopilot/pkg/core"
)

const (
	// HealthcheckPath answers 200 when the replay server is up.
	HealthcheckPath = "/healthcheck"
	// SessionsPath registers a training session.
	SessionsPath = "/api/sessions"
	// ReplayPath accepts a JSON array of replay records.
	ReplayPath = "/api/replay"
	// APIKeyHeader carries the shared secret when one is configured.
	APIKeyHeader = "X-Api-Key"
)

// StatusError is returned for any non-200 answer. Body is the trimmed response text.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s returned status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s returned status %d: %s", e.Op, e.Status, e.Body)
}

// Client handles communication with the replay server.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a new API client. A zero timeout means 30s.
func New(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Healthcheck checks if the replay server is reachable.
func (c *Client) Healthcheck() error {
	resp, err := c.httpClient.Get(c.baseURL + HealthcheckPath)
	if err != nil {
		return fmt.Errorf("healthcheck request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &StatusError{Op: "healthcheck", Status: resp.StatusCode}
	}
	return nil
}

// CreateSession registers s with the server.
func (c *Client) CreateSession(s core.Session) error {
	return c.postJSON("create session", SessionsPath, s)
}

// PostReplay sends a batch of records. The server answers "OK" on success,
// 409 on a duplicate (session, seq) and 404 for an unknown session.
func (c *Client) PostReplay(records []core.ReplayRecord) error {
	if records == nil {
		records = []core.ReplayRecord{}
	}
	return c.postJSON("post replay", ReplayPath, records)
}

func (c *Client) postJSON(op, path string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%s: failed to encode body: %w", op, err)
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%s: failed to create request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set(APIKeyHeader, c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", op, err)
	}
	defer resp.Body.Close()

	text, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode != http.StatusOK {
		return &StatusError{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(text))}
	}
	return nil
}
