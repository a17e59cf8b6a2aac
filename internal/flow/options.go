// SPDX-License-Identifier: MIT

package flow

import (
	"strconv"
	"time"

	"github.com/flowforge/mediaflow/internal/paramstring"
)

// Model selects a flow's scheduling model.
type Model int

const (
	// Sync runs the coroutine on the caller's goroutine inside SendInput;
	// no worker exists.
	Sync Model = iota
	// AsyncCommon hosts one worker goroutine per flow, blocking on a
	// bounded FIFO per input slot; FIFO-ordered with backpressure.
	AsyncCommon
	// AsyncAtomic hosts one worker goroutine per flow, running
	// periodically and reading a single-slot atomic cell per input;
	// latest-wins, no queueing.
	AsyncAtomic
)

func (m Model) String() string {
	switch m {
	case Sync:
		return "sync"
	case AsyncCommon:
		return "async_common"
	case AsyncAtomic:
		return "async_atomic"
	default:
		return "unknown"
	}
}

// FullQueuePolicy selects the admission behavior when an AsyncCommon input
// slot's FIFO is at capacity.
type FullQueuePolicy int

const (
	// Block sleeps briefly and rechecks until capacity appears or the flow
	// is disabled; a deliberately simple poll loop rather than a condvar wait.
	Block FullQueuePolicy = iota
	// DropFront discards the oldest queued element to make room.
	DropFront
	// DropCurrent discards the newly sent buffer, leaving the queue as is.
	DropCurrent
)

func (p FullQueuePolicy) String() string {
	switch p {
	case Block:
		return "block"
	case DropFront:
		return "drop_front"
	case DropCurrent:
		return "drop_current"
	default:
		return "unknown"
	}
}

// blockPollInterval is how often a Block-mode admission rechecks capacity.
const blockPollInterval = 5 * time.Millisecond

// againRetryInterval is how long RunOnce waits before retrying a codec that
// answered Again.
const againRetryInterval = 5 * time.Millisecond

// Options holds the scheduling options recognized from a parameter string.
type Options struct {
	ThreadModel     Model
	ModeWhenFull    FullQueuePolicy
	InputMaxCacheNum int
	IntervalUs      int64
	modelExplicit   bool
}

// DefaultOptions returns thread_model=sync, mode_when_full=drop_current,
// input_maxcachenum=2.
func DefaultOptions() Options {
	return Options{
		ThreadModel:      Sync,
		ModeWhenFull:     DropCurrent,
		InputMaxCacheNum: 2,
	}
}

// ParseOptions extracts the scheduling options recognized from a parsed
// parameter Map. fps, if present and thread_model is unset,
// defaults the flow to async_atomic with interval_us = 1_000_000/fps.
func ParseOptions(m *paramstring.Map) Options {
	opts := DefaultOptions()

	if v, ok := m.Get("thread_model"); ok {
		switch v {
		case "sync":
			opts.ThreadModel = Sync
			opts.modelExplicit = true
		case "async_common":
			opts.ThreadModel = AsyncCommon
			opts.modelExplicit = true
		case "async_atomic":
			opts.ThreadModel = AsyncAtomic
			opts.modelExplicit = true
		}
	}

	if v, ok := m.Get("mode_when_full"); ok {
		switch v {
		case "block":
			opts.ModeWhenFull = Block
		case "drop_front":
			opts.ModeWhenFull = DropFront
		case "drop_current":
			opts.ModeWhenFull = DropCurrent
		}
	}

	if v, ok := m.Get("input_maxcachenum"); ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			opts.InputMaxCacheNum = n
		}
	}

	if v, ok := m.Get("interval_us"); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			opts.IntervalUs = n
		}
	}

	if v, ok := m.Get("fps"); ok && !opts.modelExplicit {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			opts.ThreadModel = AsyncAtomic
			opts.IntervalUs = int64(1_000_000 / n)
		}
	}

	return opts
}
