// SPDX-License-Identifier: MIT

package flow

import (
	"errors"
	"time"

	"github.com/flowforge/mediaflow/internal/buffer"
	"github.com/flowforge/mediaflow/internal/rtsafety"
)

// TransactionFunc is the per-flow extension point: the pure function
// (flow, inputs) -> success? that a coroutine invokes each iteration. It may
// call flow.SetOutput zero or more times; its return value controls
// downstream propagation.
type TransactionFunc func(f *Flow, inputs []buffer.MediaBuffer) bool

// coroutine is the per-flow worker loop.
type coroutine struct {
	flow          *Flow
	model         Model
	period        time.Duration
	inputIndices  []int
	outputIndices []int
	txn           TransactionFunc
}

// runOnce executes one transaction iteration. SYNC flows invoke it directly
// on the caller's goroutine from Flow.SendInput; the async worker loops call
// it once per fetched input set, so every model shares one implementation.
func (c *coroutine) runOnce(inputs []buffer.MediaBuffer) {
	for _, o := range c.outputIndices {
		c.flow.outputs[o].resetIterationFlag()
	}

	ok := true
	err := rtsafety.Recover(func() error {
		if !c.txn(c.flow, inputs) {
			return errTransactionFailed
		}
		return nil
	})
	panicked := err != nil && !errors.Is(err, errTransactionFailed)
	if err != nil {
		ok = false
		c.flow.logger().Error("flow coroutine failed",
			"flow", c.flow.name, "error", err)
	}

	// Step 3: reset input holders immediately.
	for _, b := range inputs {
		b.Release()
	}

	// Step 4: propagate per output slot.
	for _, idx := range c.outputIndices {
		out := c.flow.outputs[idx]
		if !ok {
			out.sendDown(buffer.MediaBuffer{})
			continue
		}
		if buf, has := out.consumeForIteration(); has {
			out.sendDown(buf)
		}
	}

	if panicked {
		// "Binder/alloc failures inside a coroutine are logged and break
		// the run-loop (that flow goes silent; enable becomes false)."
		c.flow.disableOnPanic()
	}
}

// runAsyncCommon is the worker loop for AsyncCommon flows: blocking FIFO
// fetch, run, repeat, until disabled or quit.
func (c *coroutine) runAsyncCommon() {
	for {
		if c.flow.quitting() || !c.flow.Enabled() {
			return
		}
		inputs := make([]buffer.MediaBuffer, len(c.inputIndices))
		aborted := false
		for i, idx := range c.inputIndices {
			b, ok := c.flow.inputs[idx].fetchAsyncCommon()
			if !ok {
				aborted = true
				break
			}
			inputs[i] = b
		}
		if aborted {
			for _, b := range inputs {
				b.Release()
			}
			return
		}
		c.runOnce(inputs)
		if c.flow.quitting() {
			return
		}
	}
}

// runAsyncAtomic is the worker loop for AsyncAtomic flows: periodic
// lock-free snapshot of each bound input's single cell.
func (c *coroutine) runAsyncAtomic() {
	period := c.period
	if period <= 0 {
		period = time.Second
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-c.flow.stopCh:
			return
		case <-ticker.C:
			if c.flow.quitting() || !c.flow.Enabled() {
				return
			}
			inputs := make([]buffer.MediaBuffer, len(c.inputIndices))
			for i, idx := range c.inputIndices {
				inputs[i] = c.flow.inputs[idx].fetchAtomic()
			}
			c.runOnce(inputs)
		}
	}
}
