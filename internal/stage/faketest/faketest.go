// SPDX-License-Identifier: MIT

// Package faketest provides minimal in-memory stage doubles used by the flow
// engine's own tests to exercise the Source/Codec/Sink contracts without a
// real codec, device, or container adapter (all external collaborators).
package faketest

import (
	"sync"

	"github.com/flowforge/mediaflow/internal/buffer"
	"github.com/flowforge/mediaflow/internal/errs"
	"github.com/flowforge/mediaflow/internal/stage"
)

// QueueSource replays a fixed slice of buffers, then returns EOF forever.
type QueueSource struct {
	mu   sync.Mutex
	buf  []buffer.MediaBuffer
	next int
}

// NewQueueSource builds a QueueSource over bufs, in order.
func NewQueueSource(bufs ...buffer.MediaBuffer) *QueueSource {
	return &QueueSource{buf: bufs}
}

func (s *QueueSource) Init() error { return nil }
func (s *QueueSource) Control(stage.ControlRequest, any) (any, error) {
	return nil, errs.NewUnimplemented("faketest.QueueSource.Control")
}
func (s *QueueSource) GetConfig() (any, error) { return nil, nil }
func (s *QueueSource) SetConfig(any) error     { return nil }
func (s *QueueSource) Seekable() bool          { return false }
func (s *QueueSource) Seek(int64) error        { return errs.NewUnimplemented("faketest.QueueSource.Seek") }
func (s *QueueSource) Tell() (int64, error) {
	return 0, errs.NewUnimplemented("faketest.QueueSource.Tell")
}

// Read returns the next queued buffer, or EOF once exhausted.
func (s *QueueSource) Read() (buffer.MediaBuffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next >= len(s.buf) {
		return buffer.MediaBuffer{}, errs.NewEof("faketest.QueueSource.Read")
	}
	b := s.buf[s.next]
	s.next++
	return b, nil
}

// PassthroughCodec is a synchronous codec that returns its input unchanged.
type PassthroughCodec struct{}

func (PassthroughCodec) Init() error { return nil }
func (PassthroughCodec) Control(stage.ControlRequest, any) (any, error) {
	return nil, errs.NewUnimplemented("faketest.PassthroughCodec.Control")
}
func (PassthroughCodec) GetConfig() (any, error) { return nil, nil }
func (PassthroughCodec) SetConfig(any) error     { return nil }

// Process hands the same buffer back as output. It must Retain before doing
// so: the engine releases its own input reference immediately after this
// call returns, independent of whatever the transaction produced as output.
func (PassthroughCodec) Process(input buffer.MediaBuffer) (buffer.MediaBuffer, buffer.MediaBuffer, error) {
	return input.Retain(), buffer.MediaBuffer{}, nil
}
func (PassthroughCodec) SendInput(buffer.MediaBuffer) error {
	return errs.NewUnimplemented("faketest.PassthroughCodec.SendInput")
}
func (PassthroughCodec) FetchOutput() (buffer.MediaBuffer, error) {
	return buffer.MediaBuffer{}, errs.NewUnimplemented("faketest.PassthroughCodec.FetchOutput")
}

// RetryCodec is an asynchronous codec that answers SendInput with Again for
// the first failBudget calls, then accepts; FetchOutput answers Again until
// one buffer has been accepted, then emits it exactly once.
type RetryCodec struct {
	mu         sync.Mutex
	failBudget int
	accepted   *buffer.MediaBuffer
	delivered  bool
}

// NewRetryCodec builds a RetryCodec that rejects the first failBudget
// SendInput calls with Again before accepting.
func NewRetryCodec(failBudget int) *RetryCodec {
	return &RetryCodec{failBudget: failBudget}
}

func (c *RetryCodec) Init() error { return nil }
func (c *RetryCodec) Control(stage.ControlRequest, any) (any, error) {
	return nil, errs.NewUnimplemented("faketest.RetryCodec.Control")
}
func (c *RetryCodec) GetConfig() (any, error) { return nil, nil }
func (c *RetryCodec) SetConfig(any) error     { return nil }

func (c *RetryCodec) Process(buffer.MediaBuffer) (buffer.MediaBuffer, buffer.MediaBuffer, error) {
	return buffer.MediaBuffer{}, buffer.MediaBuffer{}, errs.NewUnimplemented("faketest.RetryCodec.Process")
}

func (c *RetryCodec) SendInput(input buffer.MediaBuffer) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failBudget > 0 {
		c.failBudget--
		return errs.NewAgain("faketest.RetryCodec.SendInput")
	}
	if c.accepted == nil {
		b := input.Retain()
		c.accepted = &b
	}
	return nil
}

func (c *RetryCodec) FetchOutput() (buffer.MediaBuffer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.accepted == nil || c.delivered {
		return buffer.MediaBuffer{}, errs.NewAgain("faketest.RetryCodec.FetchOutput")
	}
	c.delivered = true
	return *c.accepted, nil
}

// CapturingSink records every buffer written to it, in order.
type CapturingSink struct {
	mu  sync.Mutex
	buf []buffer.MediaBuffer
}

// NewCapturingSink builds an empty CapturingSink.
func NewCapturingSink() *CapturingSink { return &CapturingSink{} }

func (s *CapturingSink) Init() error { return nil }
func (s *CapturingSink) Control(stage.ControlRequest, any) (any, error) {
	return nil, errs.NewUnimplemented("faketest.CapturingSink.Control")
}
func (s *CapturingSink) GetConfig() (any, error) { return nil, nil }
func (s *CapturingSink) SetConfig(any) error     { return nil }

func (s *CapturingSink) NewStream(any, []byte) (int, error) { return 0, nil }
func (s *CapturingSink) WriteHeader(int) ([]byte, error)     { return nil, nil }

// Write records buf, retaining its own reference: the engine releases its
// input reference right after this call returns, so a sink that wants to
// inspect buffers afterward must hold an independent one. A zero-value
// (invalid) buffer is recorded too, so tests can observe the
// null-propagation path on transaction failure.
func (s *CapturingSink) Write(buf buffer.MediaBuffer, _ int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = append(s.buf, buf.Retain())
	return nil
}

// Buffers returns a snapshot of every buffer written so far, in order.
func (s *CapturingSink) Buffers() []buffer.MediaBuffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]buffer.MediaBuffer, len(s.buf))
	copy(out, s.buf)
	return out
}

// Count returns the number of Write calls observed so far.
func (s *CapturingSink) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buf)
}
