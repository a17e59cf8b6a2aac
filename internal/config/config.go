// SPDX-License-Identifier: MIT

// Package config loads a pipeline topology — named flows and the edges
// between them — from YAML, with environment overrides layered on top via
// KoanfConfig.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"
)

// PipelineFilePath is the default location for the pipeline configuration
// file.
const PipelineFilePath = "/etc/mediaflow/pipeline.yaml"

// PipelineConfig is the top-level document: a set of named pipeline
// instances plus the ambient settings for the supervisor, health surface,
// and MediaMTX liveness probe that run alongside them.
type PipelineConfig struct {
	// Instances holds one InstanceConfig per named pipeline, keyed by
	// instance name (e.g. "front-door-cam", "studio-mic").
	Instances map[string]InstanceConfig `yaml:"instances" koanf:"instances"`

	Health     HealthConfig     `yaml:"health" koanf:"health"`
	Supervisor SupervisorConfig `yaml:"supervisor" koanf:"supervisor"`
	MediaMTX   MtxConfig        `yaml:"mediamtx" koanf:"mediamtx"`
}

// InstanceConfig describes one running pipeline: the flows to construct
// from the registry, and the edges wiring their outputs to downstream
// inputs.
type InstanceConfig struct {
	Flows []FlowConfig `yaml:"flows" koanf:"flows"`
	Edges []EdgeConfig `yaml:"edges" koanf:"edges"`
}

// FlowConfig names one flow to build via the registry: kind, factory name,
// and a raw params string, consumed by config.LoadPipeline and turned into a
// running graph by flow.BuildFromConfig using the Registry.
type FlowConfig struct {
	// Name identifies this flow within its instance; edges reference it.
	Name string `yaml:"name" koanf:"name"`

	// Kind is one of "source", "codec", "filter", "muxer", "demuxer",
	// "stream", "sink" — a registry.Kind spelled as a string for YAML.
	Kind string `yaml:"kind" koanf:"kind"`

	// Factory is the name a constructor was registered under within Kind.
	Factory string `yaml:"factory" koanf:"factory"`

	// Params is the raw, newline-delimited key=value parameter string
	// passed to both the registry predicate and
	// flow.ParseOptions. Structured per-flow settings are expressed as
	// entries here rather than as a second, parallel schema.
	Params string `yaml:"params" koanf:"params"`

	// ExtraOutput requests a second output slot (index 1), for a
	// demuxer-shaped codec that splits one input into two outputs.
	ExtraOutput bool `yaml:"extra_output,omitempty" koanf:"extra_output"`
}

// EdgeConfig wires one flow's output slot to another flow's input slot
// within the same instance.
type EdgeConfig struct {
	FromFlow string `yaml:"from_flow" koanf:"from_flow"`
	FromSlot int    `yaml:"from_slot" koanf:"from_slot"`
	ToFlow   string `yaml:"to_flow" koanf:"to_flow"`
	ToSlot   int    `yaml:"to_slot" koanf:"to_slot"`
}

// HealthConfig controls the /healthz and /metrics HTTP surface.
type HealthConfig struct {
	Enabled bool   `yaml:"enabled" koanf:"enabled"`
	Addr    string `yaml:"addr" koanf:"addr"`
}

// SupervisorConfig controls restart-with-backoff for each pipeline instance.
type SupervisorConfig struct {
	InitialBackoffMs int `yaml:"initial_backoff_ms" koanf:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" koanf:"max_backoff_ms"`
	// FailuresWithinMs is the suture "failure decay" window: a service that
	// fails fewer times than FailureThreshold within this many milliseconds
	// is treated as recovering, not flapping.
	FailuresWithinMs int     `yaml:"failures_within_ms" koanf:"failures_within_ms"`
	FailureThreshold float64 `yaml:"failure_threshold" koanf:"failure_threshold"`
}

// MtxConfig points at an external MediaMTX/RTSP server for liveness probing
// only; mtxclient never implements RTSP itself.
type MtxConfig struct {
	APIURL        string `yaml:"api_url" koanf:"api_url"`
	RTSPURL       string `yaml:"rtsp_url" koanf:"rtsp_url"`
	ProbeIntervalS int   `yaml:"probe_interval_s" koanf:"probe_interval_s"`
	ProbeTimeoutS  int   `yaml:"probe_timeout_s" koanf:"probe_timeout_s"`
}

// LoadPipeline reads and parses the pipeline configuration file.
func LoadPipeline(path string) (*PipelineConfig, error) {
	// #nosec G304 - path is from administrator-controlled configuration
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pipeline config: %w", err)
	}

	var cfg PipelineConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse pipeline config YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline configuration: %w", err)
	}

	return &cfg, nil
}

// atomicFile abstracts file operations used by Save for testability.
type atomicFile interface {
	Write([]byte) (int, error)
	Sync() error
	Chmod(os.FileMode) error
	Close() error
	Name() string
}

// atomicCreateTemp is the injectable temp-file creator used by Save. Tests
// can replace this with a function returning a mock atomicFile.
type atomicCreateTemp func(dir, pattern string) (atomicFile, error)

func defaultCreateTemp(dir, pattern string) (atomicFile, error) {
	return os.CreateTemp(dir, pattern) // #nosec G304
}

// Save writes the pipeline configuration to path, atomically: write to a
// temp file in the same directory, sync, chmod, then rename over path. A
// crash mid-write leaves either the old file or the new one, never a
// partial one. BackupBeforeSave calls it after taking a backup, which is how
// cmd/flowctl's wizard subcommand saves the config the wizard composed.
func (c *PipelineConfig) Save(path string) error {
	return c.saveWith(path, defaultCreateTemp)
}

func (c *PipelineConfig) saveWith(path string, createTemp atomicCreateTemp) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal pipeline config: %w", err)
	}

	dir := filepath.Dir(path)
	tmpFile, err := createTemp(dir, ".pipeline.*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp pipeline config file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			_ = tmpFile.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write temp pipeline config file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp pipeline config file: %w", err)
	}
	// Pipeline config may embed device paths and server URLs; keep it
	// owner+group readable only.
	if err := tmpFile.Chmod(0640); err != nil {
		return fmt.Errorf("failed to set pipeline config file permissions: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp pipeline config file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp pipeline config file: %w", err)
	}

	success = true
	return nil
}

// Validate checks the pipeline configuration for internal consistency:
// every flow has a name/kind/factory, edges reference flows that exist
// within the same instance, and ambient settings are in range.
func (c *PipelineConfig) Validate() error {
	for instName, inst := range c.Instances {
		if err := inst.Validate(); err != nil {
			return fmt.Errorf("instance %q: %w", instName, err)
		}
	}
	if c.Supervisor.FailureThreshold < 0 {
		return fmt.Errorf("supervisor: failure_threshold must not be negative")
	}
	return nil
}

// Validate checks one instance's flows and edges for internal consistency.
func (i *InstanceConfig) Validate() error {
	names := make(map[string]struct{}, len(i.Flows))
	for _, f := range i.Flows {
		if f.Name == "" {
			return fmt.Errorf("flow with empty name")
		}
		if f.Kind == "" {
			return fmt.Errorf("flow %q: empty kind", f.Name)
		}
		if f.Factory == "" {
			return fmt.Errorf("flow %q: empty factory", f.Name)
		}
		if _, dup := names[f.Name]; dup {
			return fmt.Errorf("duplicate flow name %q", f.Name)
		}
		names[f.Name] = struct{}{}
	}
	for _, e := range i.Edges {
		if _, ok := names[e.FromFlow]; !ok {
			return fmt.Errorf("edge references unknown flow %q", e.FromFlow)
		}
		if _, ok := names[e.ToFlow]; !ok {
			return fmt.Errorf("edge references unknown flow %q", e.ToFlow)
		}
	}
	return nil
}

// DefaultPipelineConfig returns a pipeline configuration with no instances
// and sensible defaults for the ambient settings, used when no config file
// exists yet and as the wizard's starting point.
func DefaultPipelineConfig() *PipelineConfig {
	return &PipelineConfig{
		Instances: make(map[string]InstanceConfig),
		Health: HealthConfig{
			Enabled: true,
			Addr:    "127.0.0.1:9998",
		},
		Supervisor: SupervisorConfig{
			InitialBackoffMs: 1000,
			MaxBackoffMs:     60000,
			FailuresWithinMs: 10000,
			FailureThreshold: 5,
		},
		MediaMTX: MtxConfig{
			APIURL:        "http://localhost:9997",
			RTSPURL:       "rtsp://localhost:8554",
			ProbeIntervalS: 30,
			ProbeTimeoutS:  3,
		},
	}
}
