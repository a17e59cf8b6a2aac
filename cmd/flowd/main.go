// Package main implements flowd, the mediaflow pipeline daemon.
//
// flowd loads a pipeline configuration file, builds one flow.Graph per
// named instance through the stage registry, and runs each instance as a
// supervised, auto-restarting service for as long as the process lives.
//
// Usage:
//
//	flowd [options]
//
// Options:
//
//	--config=PATH     Path to pipeline config file (default: /etc/mediaflow/pipeline.yaml)
//	--lock-dir=PATH   Directory for per-instance lock files (default: /var/run/mediaflow)
//	--log-level=LEVEL Log level: debug, info, warn, error (default: info)
//	--help            Show this help message
//
// The daemon automatically:
//   - Builds a flow.Graph for each instance named in the pipeline config
//   - Restarts a failed instance with exponential backoff
//   - Probes the external MediaMTX server's readiness, when configured
//   - Serves /healthz and /metrics for every running instance
//   - Handles SIGINT/SIGTERM for graceful shutdown
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/flowforge/mediaflow/internal/config"
	"github.com/flowforge/mediaflow/internal/flow"
	"github.com/flowforge/mediaflow/internal/health"
	"github.com/flowforge/mediaflow/internal/instancelock"
	"github.com/flowforge/mediaflow/internal/mtxclient"
	"github.com/flowforge/mediaflow/internal/registry"
	"github.com/flowforge/mediaflow/internal/supervisor"
)

// Build information (set by ldflags).
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var (
	configPath = flag.String("config", config.PipelineFilePath, "Path to pipeline configuration file")
	lockDir    = flag.String("lock-dir", "/var/run/mediaflow", "Directory for per-instance lock files")
	logLevel   = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	showHelp   = flag.Bool("help", false, "Show help message")
)

func main() {
	flag.Parse()

	if *showHelp {
		printUsage()
		os.Exit(0)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(*logLevel)}))
	logger.Info("starting flowd", "version", Version, "commit", Commit, "built", BuildTime)

	if err := os.MkdirAll(*lockDir, 0750); err != nil { //nolint:gosec // lock dir needs group read for monitoring
		logger.Error("failed to create lock directory", "error", err)
		os.Exit(1)
	}

	cfg, err := loadPipelineConfig(*configPath)
	if err != nil {
		logger.Error("failed to load pipeline config", "error", err)
		os.Exit(1)
	}
	logger.Info("loaded pipeline config", "path", *configPath, "instances", len(cfg.Instances))

	reg := registry.New()

	sup := supervisor.New(supervisorConfigFrom(cfg.Supervisor, logger))

	services := make([]*instanceService, 0, len(cfg.Instances))
	for name, inst := range cfg.Instances {
		svc := &instanceService{
			name:    name,
			spec:    instanceSpecFrom(inst),
			reg:     reg,
			lockDir: *lockDir,
			logger:  logger,
		}
		services = append(services, svc)
		if err := sup.Add(svc); err != nil {
			logger.Warn("failed to add instance", "instance", name, "error", err)
			continue
		}
		logger.Info("registered instance", "instance", name, "flows", len(inst.Flows), "edges", len(inst.Edges))
	}

	if cfg.MediaMTX.APIURL != "" {
		interval := time.Duration(cfg.MediaMTX.ProbeIntervalS) * time.Second
		timeout := time.Duration(cfg.MediaMTX.ProbeTimeoutS) * time.Second
		client := mtxclient.NewClient(cfg.MediaMTX.APIURL, mtxclient.WithTimeout(timeout))
		prober := &mtxProbeService{
			prober: mtxclient.NewProber(client, interval),
			logger: logger,
		}
		if err := sup.Add(prober); err != nil {
			logger.Warn("failed to add mediamtx prober", "error", err)
		}
	}

	if sup.ServiceCount() == 0 {
		logger.Info("no instances configured, exiting")
		os.Exit(0)
	}

	var healthSrv *health.Handler
	if cfg.Health.Enabled {
		healthSrv = health.NewHandler(&daemonHealth{services: services, sup: sup})
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	if healthSrv != nil {
		go func() {
			if err := health.ListenAndServe(ctx, cfg.Health.Addr, healthSrv); err != nil {
				logger.Warn("health server stopped", "error", err)
			}
		}()
		logger.Info("serving health endpoint", "addr", cfg.Health.Addr)
	}

	logger.Info("running supervisor", "instances", sup.ServiceCount())
	if err := sup.Run(ctx); err != nil && err != context.Canceled {
		logger.Warn("supervisor exited with error", "error", err)
	}

	logger.Info("shutdown complete")
}

// instanceSpecFrom translates a loaded config.InstanceConfig into the
// flow-package's graph-building shape.
func instanceSpecFrom(inst config.InstanceConfig) flow.InstanceSpec {
	spec := flow.InstanceSpec{
		Flows: make([]flow.FlowSpec, len(inst.Flows)),
		Edges: make([]flow.EdgeSpec, len(inst.Edges)),
	}
	for i, f := range inst.Flows {
		spec.Flows[i] = flow.FlowSpec{
			Name:        f.Name,
			Kind:        f.Kind,
			Factory:     f.Factory,
			Params:      f.Params,
			ExtraOutput: f.ExtraOutput,
		}
	}
	for i, e := range inst.Edges {
		spec.Edges[i] = flow.EdgeSpec{
			FromFlow: e.FromFlow,
			FromSlot: e.FromSlot,
			ToFlow:   e.ToFlow,
			ToSlot:   e.ToSlot,
		}
	}
	return spec
}

func supervisorConfigFrom(sc config.SupervisorConfig, logger *slog.Logger) supervisor.Config {
	cfg := supervisor.DefaultConfig()
	cfg.Name = "flowd"
	cfg.Logger = logger
	if sc.InitialBackoffMs > 0 {
		cfg.RestartDelay = time.Duration(sc.InitialBackoffMs) * time.Millisecond
	}
	if sc.MaxBackoffMs > 0 {
		cfg.MaxRestartDelay = time.Duration(sc.MaxBackoffMs) * time.Millisecond
	}
	if sc.FailuresWithinMs > 0 {
		cfg.FailureDecay = time.Duration(sc.FailuresWithinMs) * time.Millisecond
	}
	if sc.FailureThreshold > 0 {
		cfg.FailureThreshold = sc.FailureThreshold
	}
	return cfg
}

// instanceService wraps one named pipeline instance as a supervisor.Service:
// building its flow.Graph is deferred to Run so a restart rebuilds the
// graph from scratch rather than reusing stopped Flows.
type instanceService struct {
	name    string
	spec    flow.InstanceSpec
	reg     *registry.Registry
	lockDir string
	logger  *slog.Logger

	mu    sync.Mutex
	graph *flow.Graph
}

func (s *instanceService) Name() string { return s.name }

func (s *instanceService) Run(ctx context.Context) error {
	fl, err := instancelock.NewFileLock(filepath.Join(s.lockDir, s.name+".lock"))
	if err != nil {
		return fmt.Errorf("instance %q: creating lock: %w", s.name, err)
	}
	if err := fl.AcquireContext(ctx, instancelock.DefaultAcquireTimeout); err != nil {
		return fmt.Errorf("instance %q: acquiring lock: %w", s.name, err)
	}
	defer func() {
		if err := fl.Release(); err != nil {
			s.logger.Warn("failed to release instance lock", "instance", s.name, "error", err)
		}
	}()

	g, err := flow.BuildFromConfig(s.name, s.spec, s.reg, flow.WithLogger(s.logger.With("instance", s.name)))
	if err != nil {
		return fmt.Errorf("instance %q: building graph: %w", s.name, err)
	}

	s.mu.Lock()
	s.graph = g
	s.mu.Unlock()

	s.logger.Info("instance started", "instance", s.name)
	<-ctx.Done()

	g.Stop()

	s.mu.Lock()
	s.graph = nil
	s.mu.Unlock()

	return ctx.Err()
}

// status returns the current graph's per-flow snapshot, or nil if the
// instance hasn't finished starting (or has been stopped).
func (s *instanceService) status() []flow.FlowStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.graph == nil {
		return nil
	}
	return s.graph.Status()
}

// mtxProbeService runs a continuous MediaMTX liveness probe as a supervised
// background task, logging transitions rather than feeding a consumer
// channel nobody drains.
type mtxProbeService struct {
	prober *mtxclient.Prober
	logger *slog.Logger
}

func (m *mtxProbeService) Name() string { return "mediamtx-prober" }

func (m *mtxProbeService) Run(ctx context.Context) error {
	ch := make(chan mtxclient.Status, 1)
	lastHealthy := true

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case st := <-ch:
				if st.Healthy() != lastHealthy {
					lastHealthy = st.Healthy()
					if lastHealthy {
						m.logger.Info("mediamtx reachable", "ready_paths", st.ReadyPaths, "total_paths", st.TotalPaths)
					} else {
						m.logger.Warn("mediamtx unhealthy", "error", st.Error, "ready_paths", st.ReadyPaths, "total_paths", st.TotalPaths)
					}
				}
			}
		}
	}()

	return m.prober.Run(ctx, ch)
}

// daemonHealth aggregates every instance's flow status plus the
// supervisor's restart counts into the health.StatusProvider shape.
type daemonHealth struct {
	services []*instanceService
	sup      *supervisor.Supervisor
}

func (d *daemonHealth) Flows() []health.FlowInfo {
	restarts := make(map[string]int, len(d.services))
	for _, st := range d.sup.Status() {
		restarts[st.Name] = st.Restarts
	}

	var out []health.FlowInfo
	for _, svc := range d.services {
		for _, fs := range svc.status() {
			out = append(out, health.FlowInfo{
				Name:       svc.name + "/" + fs.Name,
				State:      fs.State,
				Enabled:    fs.Enabled,
				Restarts:   restarts[svc.name],
				QueueDepth: fs.QueueDepth,
				Dropped:    fs.Dropped,
			})
		}
	}
	return out
}

// loadPipelineConfig loads the pipeline config file, falling back to
// config.DefaultPipelineConfig when it doesn't exist yet.
func loadPipelineConfig(path string) (*config.PipelineConfig, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config.DefaultPipelineConfig(), nil
	}
	return config.LoadPipeline(path)
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func printUsage() {
	fmt.Println("flowd - mediaflow pipeline daemon")
	fmt.Printf("Version: %s (%s)\n\n", Version, Commit)
	fmt.Println("Usage: flowd [options]")
	fmt.Println()
	fmt.Println("Options:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("flowd builds one flow graph per configured instance and runs each")
	fmt.Println("as a supervised, auto-restarting service.")
	fmt.Println()
	fmt.Println("Signals:")
	fmt.Println("  SIGINT, SIGTERM  Graceful shutdown")
}
