// SPDX-License-Identifier: MIT

package wizard

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/flowforge/mediaflow/internal/config"
	"github.com/flowforge/mediaflow/internal/devicemap"
	"github.com/flowforge/mediaflow/internal/registry"
)

// kinds lists every registry.Kind offered when authoring a flow, in the
// order a pipeline is typically assembled: a source first, transforms in
// the middle, a sink last.
var kinds = []registry.Kind{
	registry.KindSource,
	registry.KindCodec,
	registry.KindFilter,
	registry.KindMuxer,
	registry.KindDemuxer,
	registry.KindStream,
	registry.KindSink,
}

// PipelineWizard interactively composes a config.PipelineConfig by walking
// a registry.Registry's registered factories. It only ever produces a
// config document; building and running the resulting flow.Graph is the
// daemon's job, not the wizard's.
type PipelineWizard struct {
	reg    *registry.Registry
	input  io.Reader
	output io.Writer
}

// NewPipelineWizard creates a wizard that offers choices from reg.
func NewPipelineWizard(reg *registry.Registry) *PipelineWizard {
	return &PipelineWizard{reg: reg, input: os.Stdin, output: os.Stdout}
}

// WithIO overrides the wizard's input/output streams (for testing, or for
// driving the wizard over a non-terminal transport). in is read one byte at
// a time, so each prompt consumes exactly one line and leaves the remaining
// answers for the prompts that follow.
func (w *PipelineWizard) WithIO(in io.Reader, out io.Writer) *PipelineWizard {
	w.input = oneByteReader{r: in}
	w.output = out
	return w
}

// oneByteReader returns at most one byte per Read, so a bufio.Scanner over
// it stops reading at the end of the line it returns.
type oneByteReader struct{ r io.Reader }

func (o oneByteReader) Read(p []byte) (int, error) {
	if len(p) > 1 {
		p = p[:1]
	}
	return o.r.Read(p)
}

// Run interactively builds one named instance on top of cfg (or a fresh
// config.DefaultPipelineConfig if cfg is nil) and returns the result. It
// does not save the config; call PipelineConfig.Save on the result, or let
// the caller inspect it first.
func (w *PipelineWizard) Run(cfg *config.PipelineConfig) (*config.PipelineConfig, error) {
	if cfg == nil {
		cfg = config.DefaultPipelineConfig()
	}

	name := Input(w.input, w.output, "Instance name (e.g. front-door-cam)")
	if name == "" {
		return nil, fmt.Errorf("instance name cannot be empty")
	}

	inst := cfg.Instances[name]

	for {
		flow, done, err := w.promptFlow()
		if err != nil {
			return nil, err
		}
		if done {
			break
		}
		inst.Flows = append(inst.Flows, flow)

		if !Confirm(w.input, w.output, "Add another flow to this instance?") {
			break
		}
	}

	for len(inst.Flows) > 1 {
		edge, done, err := w.promptEdge(inst)
		if err != nil {
			return nil, err
		}
		if done {
			break
		}
		inst.Edges = append(inst.Edges, edge)

		if !Confirm(w.input, w.output, "Wire another edge?") {
			break
		}
	}

	if cfg.Instances == nil {
		cfg.Instances = make(map[string]config.InstanceConfig)
	}
	cfg.Instances[name] = inst

	return cfg, nil
}

// promptFlow prompts for one flow's kind, registered factory name, and
// parameter string. done is true when the user declines to add a flow at
// all (an empty instance is never useful, but the wizard lets the caller
// decide what to do with it).
func (w *PipelineWizard) promptFlow() (config.FlowConfig, bool, error) {
	var kindLabels []string
	for _, k := range kinds {
		kindLabels = append(kindLabels, string(k))
	}

	idx := Select(w.input, w.output, "Flow kind", kindLabels)
	if idx < 0 {
		return config.FlowConfig{}, true, nil
	}
	kind := kinds[idx]

	names := w.reg.Names(kind)
	if len(names) == 0 {
		_, _ = fmt.Fprintf(w.output, "no factories registered for kind %q\n", kind)
		return config.FlowConfig{}, true, nil
	}

	factoryIdx := Select(w.input, w.output, fmt.Sprintf("Factory (%s)", kind), names)
	if factoryIdx < 0 {
		return config.FlowConfig{}, true, nil
	}

	flowName := Input(w.input, w.output, "Flow name within this instance")
	if flowName == "" {
		return config.FlowConfig{}, false, fmt.Errorf("flow name cannot be empty")
	}

	params := Input(w.input, w.output, "Params (newline-delimited key=value, single line ok)")
	extra := Confirm(w.input, w.output, "Does this flow need a second output slot (demuxer-shaped)?")

	return config.FlowConfig{
		Name:        flowName,
		Kind:        string(kind),
		Factory:     names[factoryIdx],
		Params:      params,
		ExtraOutput: extra,
	}, false, nil
}

// promptEdge prompts for one edge between two already-named flows in inst.
func (w *PipelineWizard) promptEdge(inst config.InstanceConfig) (config.EdgeConfig, bool, error) {
	names := make([]string, 0, len(inst.Flows))
	for _, f := range inst.Flows {
		names = append(names, f.Name)
	}

	fromIdx := Select(w.input, w.output, "From flow", names)
	if fromIdx < 0 {
		return config.EdgeConfig{}, true, nil
	}
	toIdx := Select(w.input, w.output, "To flow", names)
	if toIdx < 0 {
		return config.EdgeConfig{}, true, nil
	}

	fromSlot := slotOrZero(Input(w.input, w.output, "From slot (blank = 0)"))
	toSlot := slotOrZero(Input(w.input, w.output, "To slot (blank = 0)"))

	return config.EdgeConfig{
		FromFlow: names[fromIdx],
		FromSlot: fromSlot,
		ToFlow:   names[toIdx],
		ToSlot:   toSlot,
	}, false, nil
}

func slotOrZero(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return 0
	}
	return n
}

// PromptUSBRule walks the operator through turning one detected USB device
// into a persistent-naming devicemap.DeviceInfo, for the "create udev
// rules" flow. It never writes the rules file itself — that stays the
// caller's (flowctl's) responsibility so a dry-run preview is possible.
func (w *PipelineWizard) PromptUSBRule(sysfsRoot string, busNum, devNum int) (*devicemap.DeviceInfo, error) {
	portPath, product, serial, err := devicemap.GetUSBPhysicalPort(sysfsRoot, busNum, devNum)
	if err != nil {
		return nil, fmt.Errorf("locating USB device: %w", err)
	}

	_, _ = fmt.Fprintf(w.output, "Found device %q (serial %q) on port %s\n", product, serial, portPath)

	subsystem := Input(w.input, w.output, "udev subsystem (blank = \"sound\")")
	kernelPattern := Input(w.input, w.output, "udev kernel pattern (blank = \"controlC[0-9]*\")")

	return &devicemap.DeviceInfo{
		PortPath:      portPath,
		BusNum:        busNum,
		DevNum:        devNum,
		Product:       product,
		Serial:        serial,
		Subsystem:     subsystem,
		KernelPattern: kernelPattern,
	}, nil
}
