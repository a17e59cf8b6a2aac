// SPDX-License-Identifier: MIT

package flow

import (
	"sync/atomic"
	"time"

	"github.com/flowforge/mediaflow/internal/buffer"
	"github.com/flowforge/mediaflow/internal/errs"
	"github.com/flowforge/mediaflow/internal/stage"
)

// eofMarker builds the zero-length, FlagEOF-tagged buffer the engine
// propagates exactly once when a stage reports end of stream.
func eofMarker() buffer.MediaBuffer {
	b, err := buffer.Alloc(0, buffer.MemCommon)
	if err != nil {
		return buffer.MediaBuffer{}
	}
	b.AddFlags(buffer.FlagEOF)
	return b
}

// NewSourceFlow wraps a stage.Source in a Flow with a single output slot
// (index 0). The wrapped flow is a source for start-gate purposes: its
// worker will not call Read until at least one downstream edge is added.
func NewSourceFlow(name string, src stage.Source, opts Options, flowOpts ...Option) (*Flow, error) {
	if err := src.Init(); err != nil {
		return nil, err
	}
	sm := SlotMap{OutputIndices: []int{0}, Options: opts}
	merged := append([]Option{AsSource()}, flowOpts...)
	return New(name, sm, sourceTxn(src), merged...)
}

func sourceTxn(src stage.Source) TransactionFunc {
	return func(f *Flow, _ []buffer.MediaBuffer) bool {
		buf, err := src.Read()
		switch {
		case err == nil:
			f.SetOutput(buf, 0)
			return true
		case errs.IsAgain(err):
			// No data ready this tick; a source continues unconditionally,
			// so this is not a failure.
			return true
		case errs.IsEof(err):
			f.SetOutput(eofMarker(), 0)
			f.Disable()
			return true
		default:
			f.logger().Error("source read failed", "flow", f.Name(), "error", err)
			return false
		}
	}
}

// NewCodecFlow wraps a stage.Codec in a Flow with one input slot (index 0)
// and one or two output slots (index 0, plus index 1 when extraOutputs is
// true for a demuxer-shaped codec). The wrapper detects at run time whether
// the codec is sync-only (SendInput answers an errs.NewUnimplemented error) and
// downgrades to Process dispatch the first time that happens, caching the
// decision for every later iteration.
func NewCodecFlow(name string, codec stage.Codec, extraOutput bool, opts Options, flowOpts ...Option) (*Flow, error) {
	if err := codec.Init(); err != nil {
		return nil, err
	}
	outputs := []int{0}
	if extraOutput {
		outputs = append(outputs, 1)
	}
	sm := SlotMap{InputIndices: []int{0}, OutputIndices: outputs, Options: opts}
	return New(name, sm, codecTxn(codec), flowOpts...)
}

func codecTxn(codec stage.Codec) TransactionFunc {
	var syncOnly atomic.Bool

	return func(f *Flow, inputs []buffer.MediaBuffer) bool {
		var input buffer.MediaBuffer
		if len(inputs) > 0 {
			input = inputs[0]
		}
		if !input.IsValid() {
			return true
		}

		if syncOnly.Load() {
			return processSync(f, codec, input)
		}

		err := sendInputWithRetry(f, codec, input)
		if err != nil {
			if errs.IsUnimplemented(err) {
				syncOnly.Store(true)
				return processSync(f, codec, input)
			}
			f.logger().Error("codec send_input failed", "flow", f.Name(), "error", err)
			return false
		}

		out, ferr := codec.FetchOutput()
		switch {
		case ferr == nil:
			f.SetOutput(out, 0)
		case errs.IsAgain(ferr):
			// Nothing produced yet; legal for this iteration.
		case errs.IsEof(ferr):
			f.SetOutput(eofMarker(), 0)
			f.Disable()
		default:
			f.logger().Error("codec fetch_output failed", "flow", f.Name(), "error", ferr)
			return false
		}
		return true
	}
}

// sendInputWithRetry retries an Again response without dropping input,
// sleeping againRetryInterval between attempts until the codec accepts the
// buffer, returns a terminal error, or the flow stops being enabled out
// from under the retry loop.
func sendInputWithRetry(f *Flow, codec stage.Codec, input buffer.MediaBuffer) error {
	for {
		err := codec.SendInput(input)
		if err == nil || !errs.IsAgain(err) {
			return err
		}
		if !f.Enabled() {
			return err
		}
		time.Sleep(againRetryInterval)
	}
}

func processSync(f *Flow, codec stage.Codec, input buffer.MediaBuffer) bool {
	out, extra, err := codec.Process(input)
	switch {
	case err == nil:
		if out.IsValid() {
			f.SetOutput(out, 0)
		}
		if extra.IsValid() {
			f.SetOutput(extra, 1)
		}
		return true
	case errs.IsAgain(err):
		return true
	case errs.IsEof(err):
		f.SetOutput(eofMarker(), 0)
		f.Disable()
		return true
	default:
		f.logger().Error("codec process failed", "flow", f.Name(), "error", err)
		return false
	}
}

// NewSinkFlow wraps a stage.Sink in a Flow with a single input slot (index
// 0), registering one stream via NewStream at construction time.
func NewSinkFlow(name string, sink stage.Sink, config any, extradata []byte, opts Options, flowOpts ...Option) (*Flow, error) {
	if err := sink.Init(); err != nil {
		return nil, err
	}
	streamIndex, err := sink.NewStream(config, extradata)
	if err != nil {
		return nil, err
	}
	sm := SlotMap{InputIndices: []int{0}, Options: opts}
	return New(name, sm, sinkTxn(sink, streamIndex), flowOpts...)
}

func sinkTxn(sink stage.Sink, streamIndex int) TransactionFunc {
	return func(f *Flow, inputs []buffer.MediaBuffer) bool {
		if len(inputs) == 0 || !inputs[0].IsValid() {
			return true
		}
		if err := sink.Write(inputs[0], streamIndex); err != nil {
			if errs.IsAgain(err) {
				return true
			}
			f.logger().Error("sink write failed", "flow", f.Name(), "error", err)
			return false
		}
		return true
	}
}
