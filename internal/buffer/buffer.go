// SPDX-License-Identifier: MIT

package buffer

import (
	"errors"
	"os"
	"sync"
	"sync/atomic"
)

var (
	errStrideWidth  = errors.New("buffer: stride_w must be >= width")
	errStrideHeight = errors.New("buffer: stride_h must be >= height")
)

// core holds the shared, reference-counted state of a MediaBuffer. Every
// MediaBuffer handle referring to the same payload shares one *core.
type core struct {
	mu sync.Mutex

	payload     []byte
	length      int
	validLength int
	fd          *os.File
	timestamp   uint64
	flags       Flags
	contentType ContentType

	userData any
	deleter  func(userData any)

	fromArena bool

	rc       atomic.Int64
	released atomic.Bool
}

// release decrements the refcount and, on reaching zero, invokes the stored
// deleter exactly once. Deleters must be idempotent and must not panic; a
// panic here is still recovered so one misbehaving buffer cannot take down
// the coroutine that dropped the last reference.
func (c *core) release() {
	if c.rc.Add(-1) > 0 {
		return
	}
	if !c.released.CompareAndSwap(false, true) {
		return
	}
	func() {
		defer func() { _ = recover() }()
		if c.deleter != nil {
			c.deleter(c.userData)
		}
	}()
	if c.fromArena {
		defaultArena.put(c.payload)
	}
	if c.fd != nil {
		_ = c.fd.Close()
		if c.fd.Name() != "" {
			_ = os.Remove(c.fd.Name())
		}
	}
}

// MediaBuffer is a shared-ownership handle to a payload plus its metadata.
// Copying a MediaBuffer value copies the handle, not the payload; use
// Retain to create an independent strong reference before handing the
// buffer to a second owner, and Release exactly once per Retain (including
// the initial one returned by Alloc/Clone/Wrap).
type MediaBuffer struct {
	c *core
}

// IsValid reports whether the handle refers to an allocated buffer.
func (b MediaBuffer) IsValid() bool { return b.c != nil }

// Alloc allocates a new buffer of size bytes. Postcondition: payload length
// == size, valid length == 0, timestamp == 0, flags == 0.
func Alloc(size int, kind MemKind) (MediaBuffer, error) {
	if size < 0 {
		return MediaBuffer{}, errOutOfMemory("buffer.Alloc", errors.New("negative size"))
	}
	payload := defaultArena.get(size)
	if size > 0 && payload == nil {
		return MediaBuffer{}, errOutOfMemory("buffer.Alloc", errors.New("allocator refused"))
	}

	c := &core{
		payload:     payload,
		length:      size,
		validLength: 0,
		fromArena:   true,
	}
	c.rc.Store(1)

	if kind == MemHardware {
		f, err := os.CreateTemp("", "mediaflow-hw-*")
		if err != nil {
			if c.fromArena {
				defaultArena.put(c.payload)
			}
			return MediaBuffer{}, errOutOfMemory("buffer.Alloc", err)
		}
		if err := f.Truncate(int64(size)); err != nil {
			_ = f.Close()
			_ = os.Remove(f.Name())
			if c.fromArena {
				defaultArena.put(c.payload)
			}
			return MediaBuffer{}, errOutOfMemory("buffer.Alloc", err)
		}
		c.fd = f
	}

	return MediaBuffer{c: c}, nil
}

// Clone allocates a new buffer sized to src's valid length, copies the
// payload bytes and the valid length/type/flags/timestamp attributes. If
// both src and the destination kind are hardware buffers, implementations
// are permitted a zero-copy device blit instead of a memcpy; this in-process
// model has no device to blit through, so it always copies bytes, but still
// allocates a fresh hardware fd handle to preserve the zero-copy-eligible
// shape for callers that branch on Fd() != nil.
func Clone(src MediaBuffer, kind MemKind) (MediaBuffer, error) {
	if !src.IsValid() {
		return MediaBuffer{}, errOutOfMemory("buffer.Clone", errors.New("invalid source"))
	}
	src.c.mu.Lock()
	validLen := src.c.validLength
	srcPayload := src.c.payload
	attrs := struct {
		ts    uint64
		flags Flags
		ct    ContentType
	}{src.c.timestamp, src.c.flags, src.c.contentType}
	src.c.mu.Unlock()

	dst, err := Alloc(validLen, kind)
	if err != nil {
		return MediaBuffer{}, err
	}
	copy(dst.c.payload, srcPayload[:validLen])

	dst.c.mu.Lock()
	dst.c.validLength = validLen
	dst.c.timestamp = attrs.ts
	dst.c.flags = attrs.flags
	dst.c.contentType = attrs.ct
	dst.c.mu.Unlock()

	return dst, nil
}

// Wrap adopts an externally owned region. deleter is invoked exactly once,
// at the point the last reference to the returned buffer is released.
func Wrap(data []byte, fd *os.File, userData any, deleter func(any)) MediaBuffer {
	c := &core{
		payload:     data,
		length:      len(data),
		validLength: len(data),
		fd:          fd,
		userData:    userData,
		deleter:     deleter,
	}
	c.rc.Store(1)
	return MediaBuffer{c: c}
}

// Retain creates an additional strong reference to the same underlying
// buffer. The returned handle must be Released independently.
func (b MediaBuffer) Retain() MediaBuffer {
	if !b.IsValid() {
		return b
	}
	b.c.rc.Add(1)
	return b
}

// Release drops one strong reference. When the last reference drops, the
// payload (and any hardware fd) is released and the stored deleter is
// invoked exactly once.
func (b MediaBuffer) Release() {
	if !b.IsValid() {
		return
	}
	b.c.release()
}

// Len returns the payload (allocated) length.
func (b MediaBuffer) Len() int {
	if !b.IsValid() {
		return 0
	}
	return b.c.length
}

// ValidLength returns the valid-data length.
func (b MediaBuffer) ValidLength() int {
	if !b.IsValid() {
		return 0
	}
	b.c.mu.Lock()
	defer b.c.mu.Unlock()
	return b.c.validLength
}

// SetValidLength sets the valid-data length; it is clamped to [0, Len()].
func (b MediaBuffer) SetValidLength(n int) {
	if !b.IsValid() {
		return
	}
	b.c.mu.Lock()
	defer b.c.mu.Unlock()
	if n < 0 {
		n = 0
	}
	if n > b.c.length {
		n = b.c.length
	}
	b.c.validLength = n
}

// Bytes returns the payload slice truncated to the valid length. The slice
// aliases the buffer's storage; callers must not retain it past Release.
func (b MediaBuffer) Bytes() []byte {
	if !b.IsValid() {
		return nil
	}
	b.c.mu.Lock()
	defer b.c.mu.Unlock()
	return b.c.payload[:b.c.validLength]
}

// Fd returns the hardware fd handle, or nil for a MemCommon buffer.
func (b MediaBuffer) Fd() *os.File {
	if !b.IsValid() {
		return nil
	}
	return b.c.fd
}

// Timestamp returns the 64-bit monotonic timestamp in microseconds.
func (b MediaBuffer) Timestamp() uint64 {
	if !b.IsValid() {
		return 0
	}
	b.c.mu.Lock()
	defer b.c.mu.Unlock()
	return b.c.timestamp
}

// SetTimestamp sets the monotonic timestamp in microseconds.
func (b MediaBuffer) SetTimestamp(ts uint64) {
	if !b.IsValid() {
		return
	}
	b.c.mu.Lock()
	defer b.c.mu.Unlock()
	b.c.timestamp = ts
}

// Flags returns the user-flag bitset.
func (b MediaBuffer) Flags() Flags {
	if !b.IsValid() {
		return 0
	}
	b.c.mu.Lock()
	defer b.c.mu.Unlock()
	return b.c.flags
}

// SetFlags replaces the user-flag bitset.
func (b MediaBuffer) SetFlags(f Flags) {
	if !b.IsValid() {
		return
	}
	b.c.mu.Lock()
	defer b.c.mu.Unlock()
	b.c.flags = f
}

// AddFlags ORs bits into the user-flag bitset, e.g. SetEOF.
func (b MediaBuffer) AddFlags(f Flags) {
	if !b.IsValid() {
		return
	}
	b.c.mu.Lock()
	defer b.c.mu.Unlock()
	b.c.flags |= f
}

// IsEOF reports whether the EOF flag is set. A buffer flagged EOF may have
// ValidLength() == 0; downstream must propagate the flag unchanged.
func (b MediaBuffer) IsEOF() bool { return b.Flags().Has(FlagEOF) }

// ContentType returns the content-type tag.
func (b MediaBuffer) ContentType() ContentType {
	if !b.IsValid() {
		return ContentNone
	}
	b.c.mu.Lock()
	defer b.c.mu.Unlock()
	return b.c.contentType
}

// SetContentType sets the content-type tag.
func (b MediaBuffer) SetContentType(t ContentType) {
	if !b.IsValid() {
		return
	}
	b.c.mu.Lock()
	defer b.c.mu.Unlock()
	b.c.contentType = t
}

// UserData returns the private user-data value.
func (b MediaBuffer) UserData() any {
	if !b.IsValid() {
		return nil
	}
	return b.c.userData
}
