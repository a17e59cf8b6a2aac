// SPDX-License-Identifier: MIT

// Package stage declares the abstract contracts the flow graph engine hosts:
// Source, Codec/Filter, and Sink, plus the shared control-channel shape every
// concrete stage exposes. Concrete codec/demuxer/muxer/stream adapters are
// external collaborators and live outside this module; internal/stage/faketest
// provides the minimal in-memory doubles the flow engine's own tests
// exercise against these interfaces.
package stage

import "github.com/flowforge/mediaflow/internal/buffer"

// ControlRequest is a tagged integer request code passed to Stage.Control.
// The core defines a handful of requests relevant to display/source
// plumbing; a Flow passes unknown codes through to its wrapped
// stage unchanged.
type ControlRequest int

const (
	// CtlStreamOff disables a source without tearing down graph edges.
	CtlStreamOff ControlRequest = iota + 1
	// CtlSourceRect sets a display sink's source rectangle.
	CtlSourceRect
	// CtlDestinationRect sets a display sink's destination rectangle.
	CtlDestinationRect
	// CtlGetPlaneImageInfo queries a display sink's plane image info.
	CtlGetPlaneImageInfo
)

// Stage is the contract every concrete stage (Source, Codec, Filter, Sink)
// shares, independent of its data-flow role.
type Stage interface {
	// Init prepares the stage for use; called once before first use.
	Init() error
	// Control forwards a tagged request with a typed payload. Concrete
	// stages return errs.NewUnimplemented for requests they don't support;
	// the Flow wrapper passes unknown codes through unchanged.
	Control(request ControlRequest, arg any) (any, error)
	// GetConfig returns the stage's current configuration value.
	GetConfig() (any, error)
	// SetConfig applies a new configuration value.
	SetConfig(cfg any) error
}

// Source produces buffers. Implementations may be long-lived (network) or
// finite (file); Seek/Tell are only meaningful when Seekable() is true.
type Source interface {
	Stage
	// Read returns the next buffer, errs.NewEof at end of stream, or an
	// I/O error.
	Read() (buffer.MediaBuffer, error)
	Seekable() bool
	Seek(offsetUs int64) error
	Tell() (int64, error)
}

// Codec is a decoder or encoder: it accepts media buffers and produces
// media buffers, either synchronously (Process) or asynchronously
// (SendInput/FetchOutput). A codec whose SendInput always returns
// errs.NewUnimplemented is sync-only; the flow engine detects this on the
// first SendInput call that answers Unimplemented (not at construction) and
// from then on uses Process dispatch.
// input is borrowed for the duration of Process/SendInput: the engine
// releases its own reference to it immediately after the call returns. A
// codec that returns the same buffer as output, or that holds onto it past
// the call (e.g. to deliver later via FetchOutput), must Retain it first.
type Codec interface {
	Stage
	// Process runs a synchronous transform. extraOutput is returned when a
	// codec produces a second output buffer from a single input (e.g. a
	// demuxer-like codec emitting both audio and video).
	Process(input buffer.MediaBuffer) (output buffer.MediaBuffer, extraOutput buffer.MediaBuffer, err error)
	// SendInput queues a buffer for asynchronous processing. Returns
	// errs.NewAgain under backpressure, or errs.NewUnimplemented if the
	// codec is sync-only.
	SendInput(input buffer.MediaBuffer) error
	// FetchOutput retrieves one produced buffer. Returns errs.NewAgain if
	// none is ready yet, or errs.NewEof at the codec's own end of stream.
	FetchOutput() (buffer.MediaBuffer, error)
}

// Filter shares Codec's contract shape for in-place or out-of-place
// transforms on typed views.
type Filter = Codec

// Sink accepts buffers and writes them to an external Stream. buf is
// borrowed for the duration of Write; a sink that needs it afterward (e.g.
// a buffering writer, or a test double that records what it saw) must
// Retain it first.
type Sink interface {
	Stage
	// NewStream registers a stream with the given config/extradata and
	// returns its index.
	NewStream(config any, extradata []byte) (streamIndex int, err error)
	// WriteHeader returns header bytes to write for streamIndex, or an
	// empty slice if the container needs none.
	WriteHeader(streamIndex int) ([]byte, error)
	// Write accepts a buffer for streamIndex and acknowledges or errors.
	Write(buf buffer.MediaBuffer, streamIndex int) error
}

// Stream is the external collaborator contract (file, ALSA, V4L2, DRM)
// that a Sink writes through. It is declared here so Sink
// implementations and their tests share one shape; no concrete Stream ships
// in this module.
type Stream interface {
	Read(p []byte) (n int, err error)
	Write(p []byte) (n int, err error)
	Seek(offset int64, whence int) (int64, error)
	Tell() (int64, error)
	Close() error
	IOCtl(request int, arg any) (any, error)
	Eof() bool
}
