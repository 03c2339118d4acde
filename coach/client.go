// Package coach talks to the collaborator services that add non-speech
// feedback to a session: EEG stress detection and gesture tracking.
package coach

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/charmbracelet/log"
)

type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *log.Logger
}

func NewClient(baseURL string, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Client{
		BaseURL: baseURL,
		// Baseline capture on the EEG side can take most of a minute.
		HTTPClient: &http.Client{Timeout: 90 * time.Second},
		Logger:     logger,
	}
}

// RequestError is a collaborator call that failed, either with a non-2xx
// status or with status "error" in the body.
type RequestError struct {
	Path       string
	StatusCode int
	Message    string
}

func (e *RequestError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("Request to %s failed.", e.Path)
}

func (c *Client) endpoint(path string) (string, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse base URL: %w", err)
	}
	return u.JoinPath(path).String(), nil
}

// call sends a bodiless request and decodes the JSON reply into out. A
// reply that is not JSON decodes as empty.
func (c *Client) call(ctx context.Context, method, path string, out any) (int, error) {
	target, err := c.endpoint(path)
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read %s response: %w", path, err)
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			c.Logger.Debug("non-JSON collaborator reply", "path", path, "error", err)
		}
	}
	return resp.StatusCode, nil
}

func ok(status int) bool { return status >= 200 && status < 300 }
