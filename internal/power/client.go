// Package power talks to the power outlet control API of the housing racks.
package power

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"housing-backend/internal/logger"

	"github.com/rs/zerolog"
)

// Status is the state of one outlet.
type Status struct {
	State   string `json:"state"`
	Powered bool   `json:"powered"`
}

type Client struct {
	BaseURL    string
	User       string
	Pass       string
	HTTPClient *http.Client
	log        zerolog.Logger
}

func NewClient(baseURL, user, pass string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		BaseURL:    baseURL,
		User:       user,
		Pass:       pass,
		HTTPClient: &http.Client{Timeout: timeout},
		log:        logger.WithComponent("power"),
	}
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	if c.BaseURL == "" {
		return nil, fmt.Errorf("power api url is not configured")
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+endpoint, body)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.User, c.Pass)
	return req, nil
}

// GetStatus reads the outlet state at endpoint.
func (c *Client) GetStatus(ctx context.Context, endpoint string) (*Status, error) {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("power status %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("power status %s: http %d", endpoint, resp.StatusCode)
	}
	var status Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("power status %s: %w", endpoint, err)
	}
	status.Powered = status.State == "ON"
	return &status, nil
}

// SetPower switches the outlet and returns the API's answer.
func (c *Client) SetPower(ctx context.Context, endpoint string, on bool) (string, error) {
	state := "OFF"
	if on {
		state = "ON"
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, strings.NewReader(state))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "text/plain")

	c.log.Info().Str("endpoint", endpoint).Str("state", state).Msg("switching outlet")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("power switch %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("power switch %s: %w", endpoint, err)
	}
	if resp.StatusCode != http.StatusOK {
		c.log.Error().Int("status", resp.StatusCode).Str("body", string(body)).Msg("switching outlet failed")
		return "", fmt.Errorf("power switch %s: http %d", endpoint, resp.StatusCode)
	}
	return strings.TrimSpace(string(body)), nil
}
