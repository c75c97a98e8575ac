package buffer

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/tqhuy/pagestore/internal/logmgr"
	"github.com/tqhuy/pagestore/internal/storage"
)

var logPrefix = "buffer: "

// ErrOutOfMemory is returned when every frame is pinned and no victim is
// available for eviction.
var ErrOutOfMemory = errors.New("buffer: out of memory, every frame is pinned")

// Pool is the buffer pool manager: the page table, the free-frame list,
// and the orchestration of fetch/evict/flush against the LRU-K replacer
// and the disk scheduler. All page access to the underlying frames is
// mediated through ReadGuard/WriteGuard obtained from FetchRead/FetchWrite.
type Pool struct {
	numFrames int
	pageSize  int

	nextPageID atomic.Int32

	frames []*Frame

	mu        sync.Mutex
	freeList  []int
	pageTable map[int32]int

	replacer  *Replacer
	scheduler *storage.Scheduler

	// logManager is an external collaborator the core never calls; it is
	// carried only so callers can wire write-ahead logging in above this
	// layer without the buffer pool needing to know about it.
	logManager *logmgr.Manager
}

// New creates a buffer pool of numFrames frames, each pageSize bytes,
// backed by scheduler for I/O and replacer policy parameter k. logManager
// may be nil.
func New(numFrames int, scheduler *storage.Scheduler, k int, pageSize int, logManager *logmgr.Manager) *Pool {
	if numFrames < 1 {
		panic("buffer: numFrames must be >= 1")
	}

	p := &Pool{
		numFrames:  numFrames,
		pageSize:   pageSize,
		frames:     make([]*Frame, numFrames),
		freeList:   make([]int, 0, numFrames),
		pageTable:  make(map[int32]int, numFrames),
		replacer:   NewReplacer(numFrames, k),
		scheduler:  scheduler,
		logManager: logManager,
	}
	for i := 0; i < numFrames; i++ {
		p.frames[i] = newFrame(i, pageSize)
		p.freeList = append(p.freeList, i)
	}
	return p
}

// Size returns the number of frames this pool manages.
func (p *Pool) Size() int { return p.numFrames }

// NewPage reserves a fresh page ID and readies a frame for it: no disk I/O
// is performed and the page is not pinned on return. Callers must
// FetchWrite the returned ID to populate it. Returns storage.InvalidPageID
// if no frame could be made available.
func (p *Pool) NewPage() (int32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fid, err := p.takeFrameLocked()
	if err != nil {
		return storage.InvalidPageID, err
	}

	f := p.frames[fid]
	f.Reset()

	pid := p.nextPageID.Load()
	p.nextPageID.Add(1)

	p.pageTable[pid] = fid
	p.replacer.RecordAccess(fid, AccessUnknown)
	p.replacer.SetEvictable(fid, true)
	slog.Debug(logPrefix+"new page", "pageID", pid, "frameID", fid)
	return pid, nil
}

// takeFrameLocked returns a frame ready to host a new mapping: from the
// free list if one exists, otherwise by evicting a victim (flushing it
// first if dirty). Caller must hold p.mu.
func (p *Pool) takeFrameLocked() (int, error) {
	if n := len(p.freeList); n > 0 {
		fid := p.freeList[n-1]
		p.freeList = p.freeList[:n-1]
		return fid, nil
	}

	fid, ok := p.replacer.Evict()
	if !ok {
		return -1, ErrOutOfMemory
	}
	f := p.frames[fid]
	oldPid, hadMapping := p.reverseLookupLocked(fid)
	if hadMapping {
		if f.IsDirty() {
			if err := p.syncWrite(fid, oldPid); err != nil {
				return -1, err
			}
			f.setDirty(false)
		}
		delete(p.pageTable, oldPid)
	}
	return fid, nil
}

// reverseLookupLocked finds the page ID currently mapped to fid, if any.
// A production implementation should store the resident page ID inside
// the frame header for O(1) lookup; this keeps the reverse scan the
// original BusTub design used, since num_frames is small enough that
// the scan never shows up in a profile.
func (p *Pool) reverseLookupLocked(fid int) (int32, bool) {
	for pid, f := range p.pageTable {
		if f == fid {
			return pid, true
		}
	}
	return 0, false
}

// DeletePage removes pid from disk and memory. Returns true if pid was
// absent or the deletion succeeded, false if pid is resident and pinned.
func (p *Pool) DeletePage(pid int32) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fid, ok := p.pageTable[pid]
	if !ok {
		p.scheduler.DeallocatePage(pid)
		return true, nil
	}
	f := p.frames[fid]
	if f.PinCount() > 0 {
		return false, nil
	}

	if f.IsDirty() {
		if err := p.syncWrite(fid, pid); err != nil {
			return false, err
		}
		f.setDirty(false)
	}

	delete(p.pageTable, pid)
	p.replacer.Remove(fid)
	f.Reset()
	p.freeList = append(p.freeList, fid)
	p.scheduler.DeallocatePage(pid)

	slog.Debug(logPrefix+"deleted page", "pageID", pid, "frameID", fid)
	return true, nil
}

// FetchRead resolves pid to a frame — a hit, an empty free frame, or an
// evict-and-reload — pins it, and returns a shared-access guard.
func (p *Pool) FetchRead(pid int32, accessType AccessType) (*ReadGuard, error) {
	f, err := p.acquireFrame(pid)
	if err != nil {
		return nil, err
	}
	return newReadGuard(pid, f, p.replacer, &p.mu, p.scheduler, accessType), nil
}

// FetchWrite resolves pid the same way as FetchRead but returns an
// exclusive-access guard.
func (p *Pool) FetchWrite(pid int32, accessType AccessType) (*WriteGuard, error) {
	f, err := p.acquireFrame(pid)
	if err != nil {
		return nil, err
	}
	return newWriteGuard(pid, f, p.replacer, &p.mu, p.scheduler, accessType), nil
}

// ReadPage is a convenience wrapper over FetchRead for tests: it aborts
// the process on ErrOutOfMemory instead of returning it.
func (p *Pool) ReadPage(pid int32, accessType AccessType) *ReadGuard {
	g, err := p.FetchRead(pid, accessType)
	if err != nil {
		panic(err)
	}
	return g
}

// WritePage is a convenience wrapper over FetchWrite for tests: it aborts
// the process on ErrOutOfMemory instead of returning it.
func (p *Pool) WritePage(pid int32, accessType AccessType) *WriteGuard {
	g, err := p.FetchWrite(pid, accessType)
	if err != nil {
		panic(err)
	}
	return g
}

// acquireFrame implements the frame-acquisition procedure shared by every
// fetch path: resolve pid to a resident frame (page-table hit), an empty
// free frame (synchronous read-in), or an eviction victim (synchronous
// flush-then-read-in). The BPM mutex is released before returning so that
// the caller constructs the page guard — and so takes the frame's
// reader-writer latch — strictly after the mutex is gone. This is the
// ordering rule that keeps a reader holding the BPM mutex from deadlocking
// against a writer holding the frame latch.
func (p *Pool) acquireFrame(pid int32) (*Frame, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if fid, ok := p.pageTable[pid]; ok {
		f := p.frames[fid]
		f.Pin()
		p.replacer.SetEvictable(fid, false)
		slog.Debug(logPrefix+"fetch hit", "pageID", pid, "frameID", fid)
		return f, nil
	}

	fid, err := p.takeFrameLocked()
	if err != nil {
		return nil, err
	}
	f := p.frames[fid]
	f.Reset()
	p.pageTable[pid] = fid

	if err := p.syncRead(fid, pid); err != nil {
		delete(p.pageTable, pid)
		p.freeList = append(p.freeList, fid)
		return nil, err
	}

	f.Pin()
	p.replacer.SetEvictable(fid, false)
	slog.Debug(logPrefix+"fetch miss, loaded from disk", "pageID", pid, "frameID", fid)
	return f, nil
}

// FlushPage synchronously writes pid's bytes to disk if it is resident and
// dirty, clearing the dirty flag on success. A resident page that is not
// dirty is a vacuous success (true, nil): the page's on-disk bytes already
// match memory, so there is nothing to do. An absent page returns false.
func (p *Pool) FlushPage(pid int32) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flushPageLocked(pid)
}

// FlushPageUnsafe is FlushPage for callers that already hold the BPM
// mutex.
func (p *Pool) FlushPageUnsafe(pid int32) (bool, error) {
	return p.flushPageLocked(pid)
}

func (p *Pool) flushPageLocked(pid int32) (bool, error) {
	fid, ok := p.pageTable[pid]
	if !ok {
		return false, nil
	}
	f := p.frames[fid]
	if !f.IsDirty() {
		return true, nil
	}
	if err := p.syncWrite(fid, pid); err != nil {
		return false, err
	}
	f.setDirty(false)
	return true, nil
}

// FlushAll flushes every resident dirty page.
func (p *Pool) FlushAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flushAllLocked()
}

// FlushAllUnsafe is FlushAll for callers that already hold the BPM mutex.
func (p *Pool) FlushAllUnsafe() error {
	return p.flushAllLocked()
}

func (p *Pool) flushAllLocked() error {
	for pid := range p.pageTable {
		if _, err := p.flushPageLocked(pid); err != nil {
			return err
		}
	}
	return nil
}

// PinCount reads pid's pin count under the BPM mutex. The second return
// value is false if pid is not resident.
func (p *Pool) PinCount(pid int32) (int64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fid, ok := p.pageTable[pid]
	if !ok {
		return 0, false
	}
	return p.frames[fid].PinCount(), true
}

func (p *Pool) syncRead(fid int, pid int32) error {
	f := p.frames[fid]
	prom := p.scheduler.CreatePromise()
	if err := p.scheduler.Schedule(storage.Request{IsWrite: false, PageID: pid, Buffer: f.DataMut()}, prom); err != nil {
		return err
	}
	return prom.Future()()
}

func (p *Pool) syncWrite(fid int, pid int32) error {
	f := p.frames[fid]
	prom := p.scheduler.CreatePromise()
	if err := p.scheduler.Schedule(storage.Request{IsWrite: true, PageID: pid, Buffer: f.Data()}, prom); err != nil {
		return err
	}
	return prom.Future()()
}
