package buffer

import (
	"sync"

	"github.com/tqhuy/pagestore/internal/storage"
)

// ReadGuard is a scoped, shared-access handle over one page's bytes.
//
// Only the buffer pool manager constructs a valid ReadGuard; callers
// receive one from Pool.FetchRead. A guard is movable but not copyable: use
// Move to transfer ownership, which invalidates the source. Drop on an
// invalid guard is a no-op; any other method on an invalid guard panics.
type ReadGuard struct {
	pageID    int32
	frame     *Frame
	replacer  *Replacer
	bpmMu     *sync.Mutex
	scheduler *storage.Scheduler
	valid     bool
}

func newReadGuard(pageID int32, frame *Frame, replacer *Replacer, bpmMu *sync.Mutex, scheduler *storage.Scheduler, accessType AccessType) *ReadGuard {
	// Acquire the frame's latch, then record the access, then mark valid —
	// in that order, matching the construction protocol every fetch path
	// must follow (frame latch taken after the BPM mutex was released).
	frame.rwlatch.RLock()
	replacer.RecordAccess(frame.ID(), accessType)
	return &ReadGuard{
		pageID:    pageID,
		frame:     frame,
		replacer:  replacer,
		bpmMu:     bpmMu,
		scheduler: scheduler,
		valid:     true,
	}
}

// PageID returns the page this guard protects.
func (g *ReadGuard) PageID() int32 {
	g.mustBeValid()
	return g.pageID
}

// Data returns an immutable view of the page's bytes.
func (g *ReadGuard) Data() []byte {
	g.mustBeValid()
	return g.frame.Data()
}

// IsDirty reports whether the underlying frame has unflushed writes.
func (g *ReadGuard) IsDirty() bool {
	g.mustBeValid()
	return g.frame.IsDirty()
}

// Flush synchronously writes the page through the disk scheduler if dirty.
// It does not take the BPM mutex: the guard already holds the per-frame
// latch, which is enough to make the write race-free.
func (g *ReadGuard) Flush() error {
	g.mustBeValid()
	return flushFrame(g.frame, g.pageID, g.scheduler)
}

// Move transfers ownership of this guard to the returned value, leaving
// the receiver invalid: Drop on it is a no-op and any other method panics.
func (g *ReadGuard) Move() ReadGuard {
	g.mustBeValid()
	moved := *g
	*g = ReadGuard{}
	return moved
}

// Drop releases the frame latch and unpins the page. It is idempotent: a
// second call (or a call on a moved-from guard) is a no-op. Drop is also
// the behavior of going out of scope via a deferred call.
func (g *ReadGuard) Drop() {
	if !g.valid {
		return
	}
	g.frame.rwlatch.RUnlock()

	g.bpmMu.Lock()
	defer g.bpmMu.Unlock()
	g.valid = false
	if g.frame.Unpin() == 0 {
		g.replacer.SetEvictable(g.frame.ID(), true)
	}
}

func (g *ReadGuard) mustBeValid() {
	if !g.valid {
		panic("buffer: use of invalid ReadGuard")
	}
}

// WriteGuard is a scoped, exclusive-access handle over one page's bytes.
// Handing out the mutable view unconditionally marks the page dirty — the
// guard cannot know whether the caller will actually mutate the bytes, so
// it over-approximates rather than under-approximate and lose a write.
type WriteGuard struct {
	pageID    int32
	frame     *Frame
	replacer  *Replacer
	bpmMu     *sync.Mutex
	scheduler *storage.Scheduler
	valid     bool
}

func newWriteGuard(pageID int32, frame *Frame, replacer *Replacer, bpmMu *sync.Mutex, scheduler *storage.Scheduler, accessType AccessType) *WriteGuard {
	frame.rwlatch.Lock()
	replacer.RecordAccess(frame.ID(), accessType)
	return &WriteGuard{
		pageID:    pageID,
		frame:     frame,
		replacer:  replacer,
		bpmMu:     bpmMu,
		scheduler: scheduler,
		valid:     true,
	}
}

// PageID returns the page this guard protects.
func (g *WriteGuard) PageID() int32 {
	g.mustBeValid()
	return g.pageID
}

// Data returns an immutable view of the page's bytes.
func (g *WriteGuard) Data() []byte {
	g.mustBeValid()
	return g.frame.Data()
}

// DataMut returns a mutable view of the page's bytes and marks the page
// dirty unconditionally.
func (g *WriteGuard) DataMut() []byte {
	g.mustBeValid()
	g.frame.setDirty(true)
	return g.frame.DataMut()
}

// IsDirty reports whether the underlying frame has unflushed writes.
func (g *WriteGuard) IsDirty() bool {
	g.mustBeValid()
	return g.frame.IsDirty()
}

// Flush synchronously writes the page through the disk scheduler if dirty.
func (g *WriteGuard) Flush() error {
	g.mustBeValid()
	return flushFrame(g.frame, g.pageID, g.scheduler)
}

// Move transfers ownership of this guard to the returned value, leaving
// the receiver invalid.
func (g *WriteGuard) Move() WriteGuard {
	g.mustBeValid()
	moved := *g
	*g = WriteGuard{}
	return moved
}

// Drop releases the frame latch and unpins the page. Idempotent.
func (g *WriteGuard) Drop() {
	if !g.valid {
		return
	}
	g.frame.rwlatch.Unlock()

	g.bpmMu.Lock()
	defer g.bpmMu.Unlock()
	g.valid = false
	if g.frame.Unpin() == 0 {
		g.replacer.SetEvictable(g.frame.ID(), true)
	}
}

func (g *WriteGuard) mustBeValid() {
	if !g.valid {
		panic("buffer: use of invalid WriteGuard")
	}
}

func flushFrame(frame *Frame, pageID int32, scheduler *storage.Scheduler) error {
	if !frame.IsDirty() {
		return nil
	}
	p := scheduler.CreatePromise()
	if err := scheduler.Schedule(storage.Request{IsWrite: true, PageID: pageID, Buffer: frame.Data()}, p); err != nil {
		return err
	}
	if err := p.Future()(); err != nil {
		return err
	}
	frame.setDirty(false)
	return nil
}
