// SPDX-License-Identifier: MIT

package flow

import (
	"fmt"
	"sync"

	"github.com/flowforge/mediaflow/internal/errs"
	"github.com/flowforge/mediaflow/internal/paramstring"
	"github.com/flowforge/mediaflow/internal/registry"
	"github.com/flowforge/mediaflow/internal/stage"
)

// InstanceSpec is the graph-building-time shape of one pipeline instance:
// the flows to construct and the edges wiring them together. It mirrors
// config.InstanceConfig/config.FlowConfig/config.EdgeConfig field-for-field
// so callers building a Graph from a loaded pipeline config don't need this
// package to import internal/config (which would invert the natural
// dependency direction, since config is pure data and flow is behavior).
type InstanceSpec struct {
	Flows []FlowSpec
	Edges []EdgeSpec
}

// FlowSpec names one flow to build from the registry.
type FlowSpec struct {
	Name        string
	Kind        string
	Factory     string
	Params      string
	ExtraOutput bool
}

// EdgeSpec wires one flow's output slot to another flow's input slot.
type EdgeSpec struct {
	FromFlow string
	FromSlot int
	ToFlow   string
	ToSlot   int
}

// FlowStatus is a point-in-time snapshot of one flow's health, matching the
// JSON shape the health endpoint reports.
type FlowStatus struct {
	Name       string `json:"name"`
	State      string `json:"state"`
	Enabled    bool   `json:"enabled"`
	QueueDepth int    `json:"queue_depth"`
	Dropped    int64  `json:"dropped"`
}

// Graph is a named pipeline instance: the set of Flows it built plus the
// edges connecting them, as one supervisable unit.
type Graph struct {
	mu    sync.RWMutex
	name  string
	flows map[string]*Flow
	order []string // insertion order, for stable Status() output
}

// NewGraph returns an empty Graph for the named instance.
func NewGraph(name string) *Graph {
	return &Graph{name: name, flows: make(map[string]*Flow)}
}

// Name returns the instance name this graph was built for.
func (g *Graph) Name() string { return g.name }

// Add registers a built Flow under name. Returns an error if name is
// already taken within this graph.
func (g *Graph) Add(name string, f *Flow) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, dup := g.flows[name]; dup {
		return errs.NewInvalidParam("flow.Graph.Add", fmt.Errorf("duplicate flow name %q", name))
	}
	g.flows[name] = f
	g.order = append(g.order, name)
	return nil
}

// Flow looks up a flow by name.
func (g *Graph) Flow(name string) (*Flow, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	f, ok := g.flows[name]
	return f, ok
}

// Stop stops every flow in the graph, in reverse construction order. Order
// doesn't matter for correctness (each Flow's Stop is independent).
func (g *Graph) Stop() {
	g.mu.RLock()
	names := append([]string(nil), g.order...)
	g.mu.RUnlock()

	for i := len(names) - 1; i >= 0; i-- {
		if f, ok := g.Flow(names[i]); ok {
			f.Stop()
		}
	}
}

// Status returns a snapshot of every flow's health, in construction order,
// for the /healthz and /metrics endpoints.
func (g *Graph) Status() []FlowStatus {
	g.mu.RLock()
	names := append([]string(nil), g.order...)
	g.mu.RUnlock()

	statuses := make([]FlowStatus, 0, len(names))
	for _, name := range names {
		f, ok := g.Flow(name)
		if !ok {
			continue
		}
		state := "running"
		if !f.Enabled() {
			state = "disabled"
		}
		statuses = append(statuses, FlowStatus{
			Name:       name,
			State:      state,
			Enabled:    f.Enabled(),
			QueueDepth: f.TotalQueueDepth(),
			Dropped:    f.DroppedCount(),
		})
	}
	return statuses
}

// kindOf maps a config-file kind string onto a registry.Kind.
func kindOf(s string) (registry.Kind, error) {
	switch s {
	case "source":
		return registry.KindSource, nil
	case "codec":
		return registry.KindCodec, nil
	case "filter":
		return registry.KindFilter, nil
	case "muxer":
		return registry.KindMuxer, nil
	case "demuxer":
		return registry.KindDemuxer, nil
	case "sink":
		return registry.KindSink, nil
	default:
		return "", fmt.Errorf("unknown flow kind %q", s)
	}
}

// BuildFromConfig constructs a Graph for one pipeline instance: every
// FlowSpec is created through reg.Create and wrapped in the Flow shape its
// kind demands, then every EdgeSpec is wired with Flow.AddDown.
//
// On any failure, flows already started are stopped before returning, so a
// caller never leaks a half-built graph's goroutines.
func BuildFromConfig(name string, inst InstanceSpec, reg *registry.Registry, opts ...Option) (*Graph, error) {
	g := NewGraph(name)

	for _, fs := range inst.Flows {
		f, err := buildOne(fs, reg, opts...)
		if err != nil {
			g.Stop()
			return nil, fmt.Errorf("building flow %q: %w", fs.Name, err)
		}
		if err := g.Add(fs.Name, f); err != nil {
			f.Stop()
			g.Stop()
			return nil, err
		}
	}

	for _, e := range inst.Edges {
		from, ok := g.Flow(e.FromFlow)
		if !ok {
			g.Stop()
			return nil, fmt.Errorf("edge references unknown flow %q", e.FromFlow)
		}
		to, ok := g.Flow(e.ToFlow)
		if !ok {
			g.Stop()
			return nil, fmt.Errorf("edge references unknown flow %q", e.ToFlow)
		}
		if err := from.AddDown(e.FromSlot, to, e.ToSlot); err != nil {
			g.Stop()
			return nil, fmt.Errorf("wiring %q -> %q: %w", e.FromFlow, e.ToFlow, err)
		}
	}

	return g, nil
}

func buildOne(fs FlowSpec, reg *registry.Registry, opts ...Option) (*Flow, error) {
	kind, err := kindOf(fs.Kind)
	if err != nil {
		return nil, err
	}

	built, err := reg.Create(kind, fs.Factory, fs.Params)
	if err != nil {
		return nil, err
	}

	params := paramstring.Parse(fs.Params, paramstring.Options{})
	flowOpts := ParseOptions(params)

	switch kind {
	case registry.KindSource:
		src, ok := built.(stage.Source)
		if !ok {
			return nil, fmt.Errorf("factory %q did not produce a stage.Source", fs.Factory)
		}
		return NewSourceFlow(fs.Name, src, flowOpts, opts...)

	case registry.KindCodec, registry.KindFilter, registry.KindMuxer, registry.KindDemuxer:
		codec, ok := built.(stage.Codec)
		if !ok {
			return nil, fmt.Errorf("factory %q did not produce a stage.Codec", fs.Factory)
		}
		return NewCodecFlow(fs.Name, codec, fs.ExtraOutput, flowOpts, opts...)

	case registry.KindSink:
		sink, ok := built.(stage.Sink)
		if !ok {
			return nil, fmt.Errorf("factory %q did not produce a stage.Sink", fs.Factory)
		}
		// Stream-specific config/extradata are carried in the parameter
		// string today; no config-file field maps to NewStream's config
		// or extradata arguments yet.
		return NewSinkFlow(fs.Name, sink, nil, nil, flowOpts, opts...)

	default:
		return nil, fmt.Errorf("unhandled kind %q", fs.Kind)
	}
}
