// SPDX-License-Identifier: MIT

// Package mtxclient probes an external RTSP server's REST API for liveness
// and stream readiness. It never speaks RTSP itself — only the server's
// HTTP control-plane API, used to answer "is this
// pipeline's output actually playable" without shelling out to ffprobe or
// opening an RTSP session.
//
// Reference: https://github.com/bluenviron/mediamtx (API shape only).
package mtxclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// DefaultAPIURL is the default control-plane API endpoint.
	DefaultAPIURL = "http://localhost:9997"

	// DefaultProbeInterval is how often Prober polls path readiness.
	DefaultProbeInterval = 30 * time.Second

	// DefaultProbeTimeout is the default per-request HTTP timeout.
	DefaultProbeTimeout = 5 * time.Second
)

// Client talks to the RTSP server's REST control-plane API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Path describes one published stream path.
type Path struct {
	Name          string  `json:"name"`
	Source        *Source `json:"source,omitempty"`
	Ready         bool    `json:"ready"`
	ReadyTime     string  `json:"readyTime,omitempty"`
	Tracks        []Track `json:"tracks,omitempty"`
	BytesReceived int64   `json:"bytesReceived"`
}

// Source describes the upstream publisher of a path.
type Source struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
}

// Track describes one media track carried by a path.
type Track struct {
	Type      string `json:"type"`
	Codec     string `json:"codec"`
	ClockRate int    `json:"clockRate"`
	Channels  int    `json:"channels"`
}

// PathList is the response of the list-paths endpoint.
type PathList struct {
	ItemCount int    `json:"itemCount"`
	Items     []Path `json:"items"`
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTimeout overrides the HTTP client timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = timeout }
}

// WithHTTPClient substitutes a custom HTTP client (e.g. for test transports).
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = httpClient }
}

// NewClient builds a client against baseURL, the server's API endpoint
// (e.g. "http://localhost:9997"), not the RTSP port.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: DefaultProbeTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListPaths returns every path currently known to the server.
func (c *Client) ListPaths(ctx context.Context) ([]Path, error) {
	var list PathList
	if err := c.getJSON(ctx, "/v3/paths/list", &list); err != nil {
		return nil, err
	}
	return list.Items, nil
}

// GetPath returns the named path's current state.
func (c *Client) GetPath(ctx context.Context, name string) (*Path, error) {
	url := fmt.Sprintf("%s/v3/paths/get/%s", c.baseURL, name)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("path %q not found", name)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, readBody(resp.Body))
	}

	var path Path
	if err := json.NewDecoder(resp.Body).Decode(&path); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &path, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API returned status %d: %s", resp.StatusCode, readBody(resp.Body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func readBody(r io.Reader) string {
	body, err := io.ReadAll(r)
	if err != nil {
		return fmt.Sprintf("(failed to read body: %v)", err)
	}
	return string(body)
}

// IsPathHealthy reports whether a path exists, is ready, and is receiving
// data from its publisher.
func (c *Client) IsPathHealthy(ctx context.Context, name string) (bool, error) {
	path, err := c.GetPath(ctx, name)
	if err != nil {
		return false, err
	}
	return path.Ready && path.BytesReceived > 0, nil
}

// Ping checks that the control-plane API is reachable at all.
func (c *Client) Ping(ctx context.Context) error {
	var list PathList
	return c.getJSON(ctx, "/v3/paths/list", &list)
}

// Status summarizes server-wide path health, the shape fed into the
// flow-level health surface's per-instance RTSP liveness field.
type Status struct {
	Timestamp    time.Time
	APIReachable bool
	TotalPaths   int
	ReadyPaths   int
	Error        string
}

// Healthy reports API reachability and every known path being ready.
func (s Status) Healthy() bool {
	return s.APIReachable && s.Error == "" && s.ReadyPaths == s.TotalPaths
}

// CheckStatus performs a one-shot health check across all paths.
func (c *Client) CheckStatus(ctx context.Context) Status {
	status := Status{Timestamp: time.Now()}

	if err := c.Ping(ctx); err != nil {
		status.Error = err.Error()
		return status
	}
	status.APIReachable = true

	paths, err := c.ListPaths(ctx)
	if err != nil {
		status.Error = err.Error()
		return status
	}

	status.TotalPaths = len(paths)
	for _, p := range paths {
		if p.Ready {
			status.ReadyPaths++
		}
	}
	return status
}

// Prober periodically checks server status and reports it through a
// channel, used by a flow instance's supervisor to gate readiness reporting
// on the downstream RTSP server without an instance ever opening an RTSP
// connection itself.
type Prober struct {
	client   *Client
	interval time.Duration
}

// NewProber creates a Prober polling at interval (DefaultProbeInterval if
// zero or negative).
func NewProber(client *Client, interval time.Duration) *Prober {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	return &Prober{client: client, interval: interval}
}

// Run polls status at the configured interval, sending each result on ch,
// until ctx is canceled. ch is never closed by Run; the caller owns it.
func (p *Prober) Run(ctx context.Context, ch chan<- Status) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	send := func(s Status) {
		select {
		case ch <- s:
		case <-ctx.Done():
		}
	}

	send(p.client.CheckStatus(ctx))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			send(p.client.CheckStatus(ctx))
		}
	}
}
