package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/flowforge/mediaflow/internal/config"
	"github.com/flowforge/mediaflow/internal/flow"
	"github.com/flowforge/mediaflow/internal/registry"
	"github.com/flowforge/mediaflow/internal/supervisor"
)

func TestInstanceSpecFrom(t *testing.T) {
	inst := config.InstanceConfig{
		Flows: []config.FlowConfig{
			{Name: "src", Kind: "source", Factory: "alsa-capture", Params: "device=hw:1,0"},
		},
		Edges: []config.EdgeConfig{
			{FromFlow: "src", ToFlow: "snk", FromSlot: 0, ToSlot: 1},
		},
	}

	spec := instanceSpecFrom(inst)
	if len(spec.Flows) != 1 || spec.Flows[0].Name != "src" {
		t.Fatalf("Flows = %+v, want one flow named \"src\"", spec.Flows)
	}
	if len(spec.Edges) != 1 || spec.Edges[0].ToSlot != 1 {
		t.Fatalf("Edges = %+v, want one edge with ToSlot=1", spec.Edges)
	}
}

func TestSupervisorConfigFromDefaults(t *testing.T) {
	cfg := supervisorConfigFrom(config.SupervisorConfig{}, slog.Default())
	def := supervisor.DefaultConfig()
	if cfg.RestartDelay != def.RestartDelay {
		t.Errorf("RestartDelay = %v, want default %v when unset", cfg.RestartDelay, def.RestartDelay)
	}
}

func TestSupervisorConfigFromOverrides(t *testing.T) {
	sc := config.SupervisorConfig{
		InitialBackoffMs: 500,
		MaxBackoffMs:     5000,
		FailuresWithinMs: 2000,
		FailureThreshold: 3,
	}
	cfg := supervisorConfigFrom(sc, slog.Default())
	if cfg.RestartDelay != 500*time.Millisecond {
		t.Errorf("RestartDelay = %v, want 500ms", cfg.RestartDelay)
	}
	if cfg.MaxRestartDelay != 5*time.Second {
		t.Errorf("MaxRestartDelay = %v, want 5s", cfg.MaxRestartDelay)
	}
	if cfg.FailureThreshold != 3 {
		t.Errorf("FailureThreshold = %v, want 3", cfg.FailureThreshold)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"unknown": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLoadPipelineConfigMissingFile(t *testing.T) {
	cfg, err := loadPipelineConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("loadPipelineConfig() error: %v", err)
	}
	if cfg.Instances == nil {
		t.Error("expected a default config with a non-nil Instances map")
	}
}

func TestInstanceServiceRunEmptyGraphRespectsCancellation(t *testing.T) {
	svc := &instanceService{
		name:    "empty",
		spec:    flow.InstanceSpec{},
		reg:     registry.New(),
		lockDir: t.TempDir(),
		logger:  slog.New(slog.NewTextHandler(os.Stderr, nil)),
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	if status := svc.status(); status == nil {
		t.Error("expected a non-nil (empty) status slice once the graph has started")
	}

	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Run() returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after context cancellation")
	}

	if status := svc.status(); status != nil {
		t.Error("expected status() to be nil after the instance stopped")
	}
}

func TestDaemonHealthAggregatesAcrossInstances(t *testing.T) {
	svcA := &instanceService{name: "a", reg: registry.New(), lockDir: t.TempDir(), logger: slog.Default()}
	svcB := &instanceService{name: "b", reg: registry.New(), lockDir: t.TempDir(), logger: slog.Default()}

	sup := supervisor.New(supervisor.DefaultConfig())
	if err := sup.Add(svcA); err != nil {
		t.Fatal(err)
	}
	if err := sup.Add(svcB); err != nil {
		t.Fatal(err)
	}

	dh := &daemonHealth{services: []*instanceService{svcA, svcB}, sup: sup}
	flows := dh.Flows()
	if flows != nil && len(flows) != 0 {
		t.Errorf("Flows() = %+v, want empty before either instance has built a graph", flows)
	}
}
