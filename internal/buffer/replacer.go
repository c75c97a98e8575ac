// Package buffer implements the frame pool, LRU-K eviction policy, and
// scoped page guards that sit behind the buffer pool manager.
package buffer

import (
	"fmt"
	"sync"
)

// AccessType classifies why a frame was touched. The replacer accepts it
// on RecordAccess but does not store it; the eviction policy ignores it.
type AccessType int

const (
	AccessUnknown AccessType = iota
	AccessLookup
	AccessScan
	AccessIndex
)

type lruKNode struct {
	// history holds at most k timestamps, oldest first.
	history []uint64
}

// Replacer tracks per-frame access history and picks eviction victims using
// the LRU-K policy: a frame with fewer than k recorded accesses has
// infinite backward-k-distance (it is "cold") and is always preferred for
// eviction over a frame with k or more accesses ("hot"), which is evicted
// by largest backward-k-distance.
type Replacer struct {
	mu sync.Mutex

	numFrames int
	k         int

	currentTimestamp uint64
	curSize          int

	nodes     map[int]*lruKNode
	evictable map[int]bool

	// cold and hot preserve insertion order; a cold node migrates to the
	// tail of hot the instant its history reaches length k.
	cold []int
	hot  []int
}

// NewReplacer creates a replacer tracking up to numFrames frame IDs with
// backward-k-distance parameter k.
func NewReplacer(numFrames, k int) *Replacer {
	return &Replacer{
		numFrames: numFrames,
		k:         k,
		nodes:     make(map[int]*lruKNode),
		evictable: make(map[int]bool),
	}
}

func (r *Replacer) checkFrameID(frameID int) {
	if frameID < 0 || frameID >= r.numFrames {
		panic(fmt.Sprintf("replacer: frame id %d out of bounds [0, %d)", frameID, r.numFrames))
	}
}

// RecordAccess registers a hit on frameID at the next logical timestamp.
func (r *Replacer) RecordAccess(frameID int, accessType AccessType) {
	_ = accessType
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkFrameID(frameID)

	node, ok := r.nodes[frameID]
	if !ok {
		node = &lruKNode{}
		r.nodes[frameID] = node
		r.cold = append(r.cold, frameID)
	}

	node.history = append(node.history, r.currentTimestamp)
	r.currentTimestamp++

	if len(node.history) == r.k {
		r.cold = removeInt(r.cold, frameID)
		r.hot = append(r.hot, frameID)
	}
	if len(node.history) > r.k {
		node.history = node.history[1:]
	}
}

// SetEvictable toggles whether frameID is a candidate for eviction. A
// frame not yet known to the replacer is a silent no-op.
func (r *Replacer) SetEvictable(frameID int, evictable bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkFrameID(frameID)

	if _, ok := r.nodes[frameID]; !ok {
		return
	}

	was := r.evictable[frameID]
	if was == evictable {
		return
	}
	r.evictable[frameID] = evictable
	if evictable {
		r.curSize++
	} else {
		r.curSize--
	}
}

// Evict picks a victim frame and removes it from the replacer entirely.
// Cold frames (history shorter than k) are considered first, in insertion
// order; only if none of them is evictable does the hot set get scanned
// for the largest backward-k-distance.
func (r *Replacer) Evict() (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, fid := range r.cold {
		if r.evictable[fid] {
			r.cold = removeInt(r.cold, fid)
			r.dropNode(fid)
			return fid, true
		}
	}

	victim := -1
	var victimDist uint64
	for _, fid := range r.hot {
		if !r.evictable[fid] {
			continue
		}
		node := r.nodes[fid]
		dist := r.currentTimestamp - node.history[0]
		if victim == -1 || dist > victimDist {
			victim = fid
			victimDist = dist
		}
	}
	if victim == -1 {
		return -1, false
	}
	r.hot = removeInt(r.hot, victim)
	r.dropNode(victim)
	return victim, true
}

// Remove unconditionally drops a known, evictable node. It panics if the
// frame is tracked but not evictable; an unknown frame is a silent no-op.
func (r *Replacer) Remove(frameID int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	node, ok := r.nodes[frameID]
	if !ok {
		return
	}
	if !r.evictable[frameID] {
		panic(fmt.Sprintf("replacer: cannot remove non-evictable frame %d", frameID))
	}

	if len(node.history) < r.k {
		r.cold = removeInt(r.cold, frameID)
	} else {
		r.hot = removeInt(r.hot, frameID)
	}
	r.dropNode(frameID)
}

// dropNode erases all bookkeeping for frameID and adjusts curSize. Caller
// must already hold r.mu and have removed frameID from cold/hot.
func (r *Replacer) dropNode(frameID int) {
	delete(r.nodes, frameID)
	delete(r.evictable, frameID)
	r.curSize--
}

// Size returns the number of currently evictable tracked frames.
func (r *Replacer) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.curSize
}

func removeInt(s []int, v int) []int {
	for i, x := range s {
		if x == v {
			return append(s[:i], s[i+1:]...)
		}
	}
	return s
}
