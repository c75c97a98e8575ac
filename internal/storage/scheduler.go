package storage

import "sync"

// Promise is a single-shot completion handle: only the first call to
// resolve records the result of the scheduled I/O, and Future blocks until
// that happens. It mirrors the promise/future pair the
// buffer pool manager and page guards wait on, without pulling in a
// generics-heavy futures library the rest of the pack doesn't use either.
type Promise struct {
	done chan error
	once sync.Once
}

func newPromise() *Promise {
	return &Promise{done: make(chan error, 1)}
}

// Future returns a function that blocks until the scheduled request
// completes, returning its error (nil on success).
func (p *Promise) Future() func() error {
	return func() error { return <-p.done }
}

func (p *Promise) resolve(err error) {
	p.once.Do(func() {
		p.done <- err
		close(p.done)
	})
}

// Request is a single page-grained disk operation.
type Request struct {
	IsWrite bool
	PageID  int32
	Buffer  []byte // read target or write source, exactly one page long
	promise *Promise
}

// Scheduler queues page reads/writes and runs them against a DiskManager
// on a background worker, completing each request's promise exactly once.
// Deallocation is not queued; DeallocatePage applies it directly. Requests may be completed out of order relative to distinct
// pages, but two requests against the same page ID are served in the order
// they were scheduled (the worker is single-threaded).
type Scheduler struct {
	dm      *DiskManager
	reqs    chan Request
	closeWG sync.WaitGroup

	// mu guards closed: Schedule holds it for reading so concurrent sends
	// race the close under Stop's exclusive hold rather than against a
	// closed channel.
	mu     sync.RWMutex
	closed bool
}

// NewScheduler starts the background worker and returns a Scheduler bound
// to dm. Call Stop to drain and shut the worker down.
func NewScheduler(dm *DiskManager) *Scheduler {
	s := &Scheduler{
		dm:   dm,
		reqs: make(chan Request, 32),
	}
	s.closeWG.Add(1)
	go s.run()
	return s
}

func (s *Scheduler) run() {
	defer s.closeWG.Done()
	for req := range s.reqs {
		var err error
		if req.IsWrite {
			err = s.dm.WritePage(req.PageID, req.Buffer)
		} else {
			err = s.dm.ReadPage(req.PageID, req.Buffer)
		}
		req.promise.resolve(err)
	}
}

// CreatePromise returns a new completion handle for a request about to be
// scheduled.
func (s *Scheduler) CreatePromise() *Promise {
	return newPromise()
}

// Schedule submits req for execution, completing p when it finishes. p
// must have come from CreatePromise on this scheduler. Returns ErrSchedulerClosed if Stop has
// already been called.
func (s *Scheduler) Schedule(req Request, p *Promise) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrSchedulerClosed
	}
	req.promise = p
	s.reqs <- req
	return nil
}

// DeallocatePage reclaims pageID's on-disk slot. Deallocation is treated as
// synchronous bookkeeping rather than a queued I/O request, matching the
// disk manager contract: it never blocks on pending reads/writes.
func (s *Scheduler) DeallocatePage(pageID int32) {
	s.dm.DeallocatePage(pageID)
}

// Stop drains in-flight requests and shuts the worker goroutine down. The
// scheduler must not be used afterwards.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.closed = true
	close(s.reqs)
	s.mu.Unlock()
	s.closeWG.Wait()
}
