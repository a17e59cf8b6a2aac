// SPDX-License-Identifier: MIT

// Package health provides an HTTP health/metrics surface for a mediaflow
// daemon process: /healthz as JSON, suitable for a load balancer probe or
// systemd watchdog, and a Prometheus-compatible /metrics
// endpoint, both sourced from one or more running flow.Graphs rather than
// an external process's exit status.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"
)

// FlowInfo describes the health state of a single flow within a running
// graph: name, state, enabled, restarts, queue_depth, dropped.
type FlowInfo struct {
	Name       string `json:"name"`
	State      string `json:"state"`
	Enabled    bool   `json:"enabled"`
	Restarts   int    `json:"restarts,omitempty"`
	QueueDepth int    `json:"queue_depth"`
	Dropped    int64  `json:"dropped,omitempty"`
}

// StatusProvider returns the current health status of every flow across
// every running pipeline instance. The daemon implements this by walking
// its supervised flow.Graphs and merging in restart counts from the
// supervisor layer.
type StatusProvider interface {
	Flows() []FlowInfo
}

// Response is the JSON body returned by /healthz.
type Response struct {
	Status    string     `json:"status"`
	Timestamp time.Time  `json:"timestamp"`
	Flows     []FlowInfo `json:"flows"`
}

// Handler serves the /healthz and /metrics endpoints.
type Handler struct {
	provider StatusProvider
}

// NewHandler creates a health check HTTP handler.
func NewHandler(provider StatusProvider) *Handler {
	return &Handler{provider: provider}
}

// ServeHTTP implements http.Handler, routing to /healthz and /metrics.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/metrics":
		h.serveMetrics(w, r)
	default:
		h.serveHealth(w, r)
	}
}

func (h *Handler) serveHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var flows []FlowInfo
	if h.provider != nil {
		flows = h.provider.Flows()
	}

	resp := Response{
		Timestamp: time.Now(),
		Flows:     flows,
	}

	switch {
	case len(flows) == 0:
		// No flows = unhealthy: the daemon has nothing running.
		resp.Status = "unhealthy"
	case allEnabled(flows):
		resp.Status = "healthy"
	default:
		resp.Status = "degraded"
	}

	w.Header().Set("Content-Type", "application/json")
	if resp.Status == "healthy" {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	_ = json.NewEncoder(w).Encode(resp)
}

func allEnabled(flows []FlowInfo) bool {
	for _, f := range flows {
		if !f.Enabled {
			return false
		}
	}
	return true
}

// serveMetrics writes a Prometheus text-format metrics response. This
// implements a minimal subset of the exposition format without any
// external dependency.
func (h *Handler) serveMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var sb strings.Builder

	var flows []FlowInfo
	if h.provider != nil {
		flows = h.provider.Flows()
	}

	if len(flows) > 0 {
		fmt.Fprintln(&sb, "# HELP mediaflow_flow_enabled Is the flow currently enabled (1=enabled, 0=disabled).")
		fmt.Fprintln(&sb, "# TYPE mediaflow_flow_enabled gauge")
		for _, f := range flows {
			v := 0
			if f.Enabled {
				v = 1
			}
			fmt.Fprintf(&sb, "mediaflow_flow_enabled{flow=%q} %d\n", f.Name, v)
		}

		fmt.Fprintln(&sb, "# HELP mediaflow_flow_queue_depth Current input queue depth for the flow.")
		fmt.Fprintln(&sb, "# TYPE mediaflow_flow_queue_depth gauge")
		for _, f := range flows {
			fmt.Fprintf(&sb, "mediaflow_flow_queue_depth{flow=%q} %d\n", f.Name, f.QueueDepth)
		}

		fmt.Fprintln(&sb, "# HELP mediaflow_flow_dropped_total Total buffers dropped by admission policy for the flow.")
		fmt.Fprintln(&sb, "# TYPE mediaflow_flow_dropped_total counter")
		for _, f := range flows {
			fmt.Fprintf(&sb, "mediaflow_flow_dropped_total{flow=%q} %d\n", f.Name, f.Dropped)
		}

		fmt.Fprintln(&sb, "# HELP mediaflow_flow_restarts_total Total supervisor restarts for the flow's instance.")
		fmt.Fprintln(&sb, "# TYPE mediaflow_flow_restarts_total counter")
		for _, f := range flows {
			fmt.Fprintf(&sb, "mediaflow_flow_restarts_total{flow=%q} %d\n", f.Name, f.Restarts)
		}
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(sb.String()))
}

// ListenAndServe starts the health check HTTP server on the given address.
// It shuts down gracefully when ctx is cancelled.
func ListenAndServe(ctx context.Context, addr string, handler http.Handler) error {
	return ListenAndServeReady(ctx, addr, handler, nil)
}

// ListenAndServeReady starts the health check HTTP server and signals
// readiness.
//
// The listener is bound synchronously so port-in-use errors are returned
// immediately rather than surfacing only after ctx is cancelled. Once bound,
// the ready channel (if non-nil) is closed to signal the endpoint is live —
// useful for a daemon that wants to confirm health is serving before it
// finishes starting up.
func ListenAndServeReady(ctx context.Context, addr string, handler http.Handler, ready chan<- struct{}) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
	}

	if ready != nil {
		close(ready)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	return <-errCh
}
