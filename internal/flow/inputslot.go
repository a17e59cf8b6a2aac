// SPDX-License-Identifier: MIT

package flow

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/flowforge/mediaflow/internal/buffer"
	"github.com/flowforge/mediaflow/internal/errs"
)

// inputSlot holds one input's admission storage. Only one of the three
// representations (fifo / atomic cell / sync cell) is active, selected by
// model; all three share one mutex+condvar since a slot never needs more
// than one representation at a time.
type inputSlot struct {
	index    int
	model    Model
	maxCache int // 0 = unbounded, only legal in AsyncCommon
	policy   FullQueuePolicy
	valid    bool // false = unaddressed; send fails with InvalidArg-equivalent

	owner *Flow

	mu   sync.Mutex
	cond *sync.Cond
	fifo []buffer.MediaBuffer // AsyncCommon
	cell *buffer.MediaBuffer  // AsyncAtomic or Sync: latest/only value

	// dropped counts buffers discarded by the admission policy (DropFront,
	// DropCurrent, or a Block sender giving up on disable), surfaced by the
	// health endpoint.
	dropped atomic.Int64
}

func newInputSlot(owner *Flow, index int, model Model, maxCache int, policy FullQueuePolicy) *inputSlot {
	s := &inputSlot{
		index:    index,
		model:    model,
		maxCache: maxCache,
		policy:   policy,
		valid:    true,
		owner:    owner,
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// send runs the per-input-slot admission policy. Ownership of one strong
// reference to buf transfers to the slot on a successful enqueue; on every
// other path (drop, reject, overwrite) this function releases that
// reference itself, so a caller (Flow.SendInput passes on the reference its
// own caller transferred) must not use buf after send returns unless it
// retained an extra reference first.
func (s *inputSlot) send(buf buffer.MediaBuffer) error {
	if s == nil || !s.valid {
		buf.Release()
		return errs.NewInvalidParam("flow.inputSlot.send", errUnaddressedSlot)
	}

	switch s.model {
	case Sync, AsyncAtomic:
		s.mu.Lock()
		prev := s.cell
		s.cell = &buf
		s.mu.Unlock()
		if prev != nil {
			prev.Release() // "previous value, if any, is dropped silently"
		}
		return nil

	case AsyncCommon:
		return s.sendAsyncCommon(buf)

	default:
		buf.Release()
		return errs.NewInvalidParam("flow.inputSlot.send", errUnknownModel)
	}
}

func (s *inputSlot) sendAsyncCommon(buf buffer.MediaBuffer) error {
	for {
		s.mu.Lock()
		full := s.maxCache > 0 && len(s.fifo) >= s.maxCache
		if !full {
			s.fifo = append(s.fifo, buf)
			s.cond.Signal()
			s.mu.Unlock()
			return nil
		}

		switch s.policy {
		case DropFront:
			var dropped buffer.MediaBuffer
			if len(s.fifo) > 0 {
				dropped = s.fifo[0]
				s.fifo = s.fifo[1:]
			}
			s.fifo = append(s.fifo, buf)
			s.cond.Signal()
			s.mu.Unlock()
			dropped.Release()
			s.dropped.Add(1)
			return nil

		case DropCurrent:
			s.mu.Unlock()
			buf.Release()
			s.dropped.Add(1)
			return nil

		case Block:
			if !s.owner.Enabled() {
				s.mu.Unlock()
				buf.Release()
				s.dropped.Add(1)
				return nil
			}
			s.mu.Unlock()
			time.Sleep(blockPollInterval)
			// re-check on next loop iteration

		default:
			s.mu.Unlock()
			buf.Release()
			return errs.NewInvalidParam("flow.inputSlot.sendAsyncCommon", errUnknownPolicy)
		}
	}
}

// fetchSync reads and clears the single cell (the send that triggered this
// run just filled it).
func (s *inputSlot) fetchSync() buffer.MediaBuffer {
	if s == nil {
		return buffer.MediaBuffer{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cell == nil {
		return buffer.MediaBuffer{}
	}
	b := *s.cell
	s.cell = nil
	return b
}

// fetchAtomic takes the cell's latest value and clears the cell, so the
// caller owns the returned reference; a nil result means "no new data" since
// the previous fetch and is a legal RunOnce input.
func (s *inputSlot) fetchAtomic() buffer.MediaBuffer {
	if s == nil {
		return buffer.MediaBuffer{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cell == nil {
		return buffer.MediaBuffer{}
	}
	b := *s.cell
	s.cell = nil
	return b
}

// fetchAsyncCommon blocks on the condvar until a buffer is enqueued, the
// flow is disabled, or quit is set; returns (buf, ok). ok=false means the
// flow went disabled/quit while waiting and RunOnce should treat this input
// as absent.
func (s *inputSlot) fetchAsyncCommon() (buffer.MediaBuffer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.fifo) == 0 {
		if s.owner.quitting() || !s.owner.Enabled() {
			return buffer.MediaBuffer{}, false
		}
		s.cond.Wait()
	}
	b := s.fifo[0]
	s.fifo = s.fifo[1:]
	return b, true
}

// depth returns the current AsyncCommon FIFO length (0 for other models),
// used by the health surface to report queue depth.
func (s *inputSlot) depth() int {
	if s == nil || s.model != AsyncCommon {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.fifo)
}

// droppedCount returns the number of buffers this slot has discarded under
// backpressure since construction.
func (s *inputSlot) droppedCount() int64 {
	if s == nil {
		return 0
	}
	return s.dropped.Load()
}

// wake broadcasts the condvar; used by shutdown to release blocked waiters.
func (s *inputSlot) wake() {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.cond.Broadcast()
	s.mu.Unlock()
}

// clear drops all buffered references (shutdown step 3).
func (s *inputSlot) clear() {
	if s == nil {
		return
	}
	s.mu.Lock()
	for _, b := range s.fifo {
		b.Release()
	}
	s.fifo = nil
	if s.cell != nil {
		s.cell.Release()
		s.cell = nil
	}
	s.mu.Unlock()
}
