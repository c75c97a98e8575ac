package buffer

import (
	"sync"
	"sync/atomic"

	"github.com/tqhuy/pagestore/internal/lock"
	"github.com/tqhuy/pagestore/internal/storage"
)

// Frame owns exactly one page-sized byte buffer plus the per-frame
// metadata the buffer pool manager and page guards coordinate over: pin
// count, dirty flag, and the reader-writer latch that read guards take
// shared and write guards take exclusively. The frame ID is immutable for
// the life of the pool.
type Frame struct {
	id   int
	data []byte

	pinCount *locking.RefCount
	isDirty  atomic.Bool

	rwlatch sync.RWMutex
}

func newFrame(id int, pageSize int) *Frame {
	return &Frame{
		id:       id,
		data:     make([]byte, pageSize),
		pinCount: locking.NewRefCount(),
	}
}

// ID returns the frame's immutable index.
func (f *Frame) ID() int { return f.id }

// Data returns an immutable view of the frame's bytes.
func (f *Frame) Data() []byte { return f.data }

// DataMut returns a mutable view of the frame's bytes.
func (f *Frame) DataMut() []byte { return f.data }

// Pin increments the pin count, preventing eviction.
func (f *Frame) Pin() { f.pinCount.Inc() }

// Unpin decrements the pin count and returns the count after decrementing.
func (f *Frame) Unpin() int64 {
	hitZero := f.pinCount.Dec()
	if hitZero {
		return 0
	}
	return int64(f.pinCount.Get())
}

// PinCount returns the current pin count without taking any lock; used for
// observability (spec §5 rule 3).
func (f *Frame) PinCount() int64 { return int64(f.pinCount.Get()) }

// IsDirty reports whether the frame holds modifications not yet flushed.
func (f *Frame) IsDirty() bool { return f.isDirty.Load() }

func (f *Frame) setDirty(dirty bool) { f.isDirty.Store(dirty) }

// Reset zeroes the frame's data and clears pin count and dirty flag. Called
// when a frame returns to the free list or is about to host a different
// page.
func (f *Frame) Reset() {
	storage.Page{Buf: f.data}.Reset()
	f.pinCount.Reset()
	f.isDirty.Store(false)
}
