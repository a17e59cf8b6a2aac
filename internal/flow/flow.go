// SPDX-License-Identifier: MIT

// Package flow implements the flow graph engine: the scheduling, queueing,
// and admission-policy core of the pipeline. A Flow wraps one internal
// stage's transaction behind a SlotMap that declares its
// input/output topology, scheduling model, and per-slot policies, and hosts
// it on zero or one worker goroutine depending on that model.
package flow

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flowforge/mediaflow/internal/buffer"
	"github.com/flowforge/mediaflow/internal/errs"
	"github.com/flowforge/mediaflow/internal/rtsafety"
)

// Flow is a scheduled node in the graph that wraps one stage's transaction
// function behind input/output slots.
type Flow struct {
	name string

	inputs  []*inputSlot
	outputs []*outputSlot
	co      *coroutine
	model   Model

	enable atomic.Bool
	quit   atomic.Bool

	isSource bool
	gate     *startGate

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	log *slog.Logger
}

// Option configures a Flow at construction time.
type Option func(*Flow)

// WithLogger attaches a structured logger; defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(f *Flow) { f.log = l }
}

// AsSource marks the flow as a source: its worker blocks at startup until
// at least one downstream edge exists.
func AsSource() Option {
	return func(f *Flow) {
		f.isSource = true
		f.gate = newStartGate()
	}
}

// New constructs a Flow from a SlotMap and a transaction function, validates
// the slot map, installs the slots, allocates the coroutine, and starts it
// (parameter-string parsing into a SlotMap/Options is the caller's job —
// see ParseOptions and the registry).
func New(name string, sm SlotMap, txn TransactionFunc, opts ...Option) (*Flow, error) {
	if err := sm.validate(); err != nil {
		return nil, err
	}

	f := &Flow{name: name, stopCh: make(chan struct{}), model: sm.Options.ThreadModel}
	f.enable.Store(true)
	for _, o := range opts {
		o(f)
	}
	if f.log == nil {
		f.log = slog.Default()
	}

	maxIn := maxIndex(sm.InputIndices)
	f.inputs = make([]*inputSlot, maxIn+1)
	for i, idx := range sm.InputIndices {
		f.inputs[idx] = newInputSlot(f, idx, sm.Options.ThreadModel, sm.cacheNumFor(i), sm.Options.ModeWhenFull)
	}

	maxOut := maxIndex(sm.OutputIndices)
	f.outputs = make([]*outputSlot, maxOut+1)
	fifoMode := sm.Options.ThreadModel == AsyncCommon
	for _, idx := range sm.OutputIndices {
		f.outputs[idx] = newOutputSlot(idx, fifoMode)
	}

	period := sm.Period
	if period <= 0 && sm.Options.IntervalUs > 0 {
		period = time.Duration(sm.Options.IntervalUs) * time.Microsecond
	}

	f.co = &coroutine{
		flow:          f,
		model:         f.model,
		period:        period,
		inputIndices:  append([]int(nil), sm.InputIndices...),
		outputIndices: append([]int(nil), sm.OutputIndices...),
		txn:           txn,
	}

	f.start()
	return f, nil
}

func (f *Flow) logger() *slog.Logger { return f.log }

func (f *Flow) start() {
	switch f.model {
	case AsyncCommon:
		f.wg.Add(1)
		rtsafety.Go(context.Background(), f.log, f.name, func() {
			defer f.wg.Done()
			if f.isSource && !f.gate.wait() {
				return
			}
			f.co.runAsyncCommon()
		}, func(any) { f.disableOnPanic() })

	case AsyncAtomic:
		f.wg.Add(1)
		rtsafety.Go(context.Background(), f.log, f.name, func() {
			defer f.wg.Done()
			if f.isSource && !f.gate.wait() {
				return
			}
			f.co.runAsyncAtomic()
		}, func(any) { f.disableOnPanic() })

	case Sync:
		// No worker: RunOnce executes on the caller's goroutine inside
		// SendInput.
	}
}

// Name returns the flow's log/debug name.
func (f *Flow) Name() string { return f.name }

// Enabled reports the flow's enable flag (sticky false = graceful drain).
func (f *Flow) Enabled() bool { return f.enable.Load() }

func (f *Flow) quitting() bool { return f.quit.Load() }

// disableOnPanic implements "that flow goes silent; enable becomes false".
// Restart policy, if any, lives in the supervisor layer above the graph,
// not here.
func (f *Flow) disableOnPanic() {
	f.enable.Store(false)
}

// Disable sets enable=false: subsequent SendInput calls become no-ops and
// any ASYNC_COMMON blocking wait wakes and returns within one sleep quantum.
func (f *Flow) Disable() {
	for _, s := range f.inputs {
		if s == nil {
			continue
		}
		s.mu.Lock()
		f.enable.Store(false)
		s.cond.Broadcast()
		s.mu.Unlock()
	}
	if len(f.inputs) == 0 {
		f.enable.Store(false)
	}
}

// SetOutput is the transaction function's only side effect: it writes buf
// to out_slot's cache. Ownership of one strong reference transfers to the
// flow.
func (f *Flow) SetOutput(buf buffer.MediaBuffer, outSlot int) {
	if outSlot < 0 || outSlot >= len(f.outputs) || f.outputs[outSlot] == nil {
		buf.Release()
		return
	}
	f.outputs[outSlot].setOutput(buf)
}

// SendInput is the admission entry point for one input slot. The caller
// transfers ownership of exactly
// one strong reference to buf; callers that still need buf afterward must
// Retain before calling. SYNC flows execute the entire downstream chain on
// the caller's goroutine before returning.
func (f *Flow) SendInput(buf buffer.MediaBuffer, inSlot int) error {
	if !f.Enabled() {
		buf.Release()
		return nil
	}
	if inSlot < 0 || inSlot >= len(f.inputs) || f.inputs[inSlot] == nil || !f.inputs[inSlot].valid {
		buf.Release()
		return errs.NewInvalidParam("flow.Flow.SendInput", errUnaddressedSlot)
	}

	if f.model == Sync {
		if err := f.inputs[inSlot].send(buf); err != nil {
			return err
		}
		inputs := make([]buffer.MediaBuffer, len(f.co.inputIndices))
		for i, idx := range f.co.inputIndices {
			inputs[i] = f.inputs[idx].fetchSync()
		}
		f.co.runOnce(inputs)
		return nil
	}

	return f.inputs[inSlot].send(buf)
}

// AddDown connects outSlot of f to inSlot of down. If f is a source, this
// also notifies the source-start-gate.
func (f *Flow) AddDown(outSlot int, down *Flow, inSlot int) error {
	if outSlot < 0 || outSlot >= len(f.outputs) || f.outputs[outSlot] == nil {
		return errs.NewInvalidParam("flow.Flow.AddDown", errUnaddressedSlot)
	}
	f.outputs[outSlot].addDown(down, inSlot)
	if f.isSource {
		f.gate.inc()
	}
	return nil
}

// RemoveDown disconnects every edge from any output slot of f to down.
func (f *Flow) RemoveDown(down *Flow) {
	removedAny := false
	for _, o := range f.outputs {
		if o == nil {
			continue
		}
		if o.removeDown(down) {
			removedAny = true
		}
	}
	if removedAny && f.isSource {
		f.gate.dec()
	}
}

// DownstreamCount returns the total number of edges across all output
// slots, for diagnostics and the source-start-gate invariant.
func (f *Flow) DownstreamCount() int {
	n := 0
	for _, o := range f.outputs {
		if o == nil {
			continue
		}
		n += o.edgeCount()
	}
	return n
}

// Stop performs the shutdown ordering: set enable=false and quit=true
// under each input slot's lock and notify
// every condvar, join every coroutine worker, then clear input/output
// caches.
func (f *Flow) Stop() {
	f.stopOnce.Do(func() {
		for _, s := range f.inputs {
			if s == nil {
				continue
			}
			s.mu.Lock()
			f.enable.Store(false)
			f.quit.Store(true)
			s.cond.Broadcast()
			s.mu.Unlock()
		}
		if len(f.inputs) == 0 {
			f.enable.Store(false)
			f.quit.Store(true)
		}
		if f.gate != nil {
			f.gate.abandon()
		}
		close(f.stopCh)

		f.wg.Wait()

		for _, s := range f.inputs {
			s.clear()
		}
		for _, o := range f.outputs {
			if o != nil {
				o.clear()
			}
		}
	})
}

// QueueDepth returns the current FIFO depth of the given input slot (0 for
// non-AsyncCommon slots or an unaddressed index), for the health surface.
func (f *Flow) QueueDepth(inSlot int) int {
	if inSlot < 0 || inSlot >= len(f.inputs) {
		return 0
	}
	return f.inputs[inSlot].depth()
}

// TotalQueueDepth sums QueueDepth across every input slot, for a flow-level
// health summary.
func (f *Flow) TotalQueueDepth() int {
	total := 0
	for _, s := range f.inputs {
		total += s.depth()
	}
	return total
}

// DroppedCount sums the number of buffers discarded by admission policy
// across every input slot, for the health surface.
func (f *Flow) DroppedCount() int64 {
	var total int64
	for _, s := range f.inputs {
		total += s.droppedCount()
	}
	return total
}
