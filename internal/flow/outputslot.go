// SPDX-License-Identifier: MIT

package flow

import (
	"sync"

	"github.com/flowforge/mediaflow/internal/buffer"
)

// edge is one (downstream flow, downstream input slot) connection.
type edge struct {
	down     *Flow
	downSlot int
}

// outputSlot holds one output's edge list and buffer cache. fifoMode flows
// (AsyncCommon) append to a FIFO and consume one entry per coroutine
// iteration; other models keep only the latest value set this iteration.
type outputSlot struct {
	index    int
	fifoMode bool
	valid    bool

	edgeMu sync.Mutex
	edges  []edge

	cacheMu sync.Mutex
	fifo    []buffer.MediaBuffer
	latest  *buffer.MediaBuffer
	latestSetThisRun bool
}

func newOutputSlot(index int, fifoMode bool) *outputSlot {
	return &outputSlot{index: index, fifoMode: fifoMode, valid: true}
}

// setOutput stores buf in the cache. Transfers ownership of one strong
// reference from the caller (the transaction function is expected to have
// produced buf with a reference it is handing off).
func (s *outputSlot) setOutput(buf buffer.MediaBuffer) {
	if s == nil || !s.valid {
		buf.Release()
		return
	}
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if s.fifoMode {
		s.fifo = append(s.fifo, buf)
		return
	}
	if s.latest != nil {
		s.latest.Release()
	}
	s.latest = &buf
	s.latestSetThisRun = true
}

// consumeForIteration returns the buffer to forward downstream this
// iteration, and whether one is available at all. For FIFO mode this pops
// one entry (an empty FIFO reports !ok, triggering the null-propagation
// path). For latest mode this returns the value only if setOutput was
// called during the current iteration; otherwise !ok, and nothing is sent.
func (s *outputSlot) consumeForIteration() (buffer.MediaBuffer, bool) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if s.fifoMode {
		if len(s.fifo) == 0 {
			return buffer.MediaBuffer{}, false
		}
		b := s.fifo[0]
		s.fifo = s.fifo[1:]
		return b, true
	}
	if !s.latestSetThisRun || s.latest == nil {
		s.latestSetThisRun = false
		return buffer.MediaBuffer{}, false
	}
	b := *s.latest
	s.latest = nil
	s.latestSetThisRun = false
	return b, true
}

// resetIterationFlag clears the "set this run" bookkeeping ahead of a new
// RunOnce, called before the transaction function runs.
func (s *outputSlot) resetIterationFlag() {
	s.cacheMu.Lock()
	s.latestSetThisRun = false
	s.cacheMu.Unlock()
}

// addDown appends a new edge, or updates the downstream input slot index if
// the (down, *) edge already exists: duplicates are rejected by updating
// the existing edge's in-slot index rather than appending a second one.
func (s *outputSlot) addDown(down *Flow, downSlot int) {
	s.edgeMu.Lock()
	defer s.edgeMu.Unlock()
	for i := range s.edges {
		if s.edges[i].down == down {
			s.edges[i].downSlot = downSlot
			return
		}
	}
	s.edges = append(s.edges, edge{down: down, downSlot: downSlot})
}

// removeDown removes every edge pointing at down, reporting whether any was
// removed.
func (s *outputSlot) removeDown(down *Flow) bool {
	s.edgeMu.Lock()
	defer s.edgeMu.Unlock()
	removed := false
	kept := s.edges[:0]
	for _, e := range s.edges {
		if e.down == down {
			removed = true
			continue
		}
		kept = append(kept, e)
	}
	s.edges = kept
	return removed
}

// edgeSnapshot copies the edge list under the output-slot mutex then
// releases it, so fan-out never holds the lock across a downstream call.
func (s *outputSlot) edgeSnapshot() []edge {
	s.edgeMu.Lock()
	defer s.edgeMu.Unlock()
	out := make([]edge, len(s.edges))
	copy(out, s.edges)
	return out
}

func (s *outputSlot) edgeCount() int {
	s.edgeMu.Lock()
	defer s.edgeMu.Unlock()
	return len(s.edges)
}

// sendDown forwards buf (which may be the invalid zero value, meaning
// "null", per the failure/empty-cache propagation paths) to every edge, in
// declaration order, on the caller's goroutine.
func (s *outputSlot) sendDown(buf buffer.MediaBuffer) {
	for _, e := range s.edgeSnapshot() {
		_ = e.down.SendInput(buf.Retain(), e.downSlot)
	}
	buf.Release()
}

// clear drops all buffered references (shutdown step 3).
func (s *outputSlot) clear() {
	s.cacheMu.Lock()
	for _, b := range s.fifo {
		b.Release()
	}
	s.fifo = nil
	if s.latest != nil {
		s.latest.Release()
		s.latest = nil
	}
	s.cacheMu.Unlock()
}
