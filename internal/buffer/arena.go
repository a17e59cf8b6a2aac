// SPDX-License-Identifier: MIT

package buffer

import "sync"

// arenaSizeClasses mirrors the size-class pooling strategy used for RTMP
// chunk buffers in the wider pack: a handful of power-of-large-step classes
// keep payload allocation off the GC hot path for a 30-120fps capture
// pipeline without the complexity of a general slab allocator.
var arenaSizeClasses = []int{4096, 65536, 1 << 20, 4 << 20}

type arenaClass struct {
	size int
	pool *sync.Pool
}

// arena is a sized-buffer pool backing MemCommon (and, for the handle shape,
// MemHardware) MediaBuffer payload allocation.
type arena struct {
	classes []arenaClass
}

var defaultArena = newArena()

func newArena() *arena {
	classes := make([]arenaClass, len(arenaSizeClasses))
	for i, sz := range arenaSizeClasses {
		size := sz
		classes[i] = arenaClass{
			size: size,
			pool: &sync.Pool{New: func() any { return make([]byte, size) }},
		}
	}
	return &arena{classes: classes}
}

// get returns a byte slice of exactly size bytes, drawn from the nearest
// size class with enough capacity. Requests larger than the largest class
// allocate a fresh, unpooled slice.
func (a *arena) get(size int) []byte {
	if size <= 0 {
		return nil
	}
	for i := range a.classes {
		c := &a.classes[i]
		if size <= c.size {
			buf := c.pool.Get().([]byte)
			return buf[:size]
		}
	}
	return make([]byte, size)
}

// put returns buf to the pool if its capacity matches a known size class.
func (a *arena) put(buf []byte) {
	if buf == nil {
		return
	}
	capBuf := cap(buf)
	for i := range a.classes {
		c := &a.classes[i]
		if capBuf == c.size {
			full := buf[:c.size]
			clear(full)
			c.pool.Put(full)
			return
		}
	}
}
