package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	dm, err := NewDiskManager(filepath.Join(t.TempDir(), "test.db"), 16)
	require.NoError(t, err)
	t.Cleanup(func() { _ = dm.Close() })

	s := NewScheduler(dm)
	t.Cleanup(s.Stop)
	return s
}

func TestScheduleWriteThenReadCompletes(t *testing.T) {
	s := newTestScheduler(t)

	src := []byte("full page bytes!")[:16]
	wp := s.CreatePromise()
	require.NoError(t, s.Schedule(Request{IsWrite: true, PageID: 7, Buffer: src}, wp))
	require.NoError(t, wp.Future()())

	dst := make([]byte, 16)
	rp := s.CreatePromise()
	require.NoError(t, s.Schedule(Request{IsWrite: false, PageID: 7, Buffer: dst}, rp))
	require.NoError(t, rp.Future()())
	require.Equal(t, src, dst)
}

func TestScheduleAfterStopReturnsErrSchedulerClosed(t *testing.T) {
	dm, err := NewDiskManager(filepath.Join(t.TempDir(), "test.db"), 16)
	require.NoError(t, err)
	t.Cleanup(func() { _ = dm.Close() })

	s := NewScheduler(dm)
	s.Stop()

	p := s.CreatePromise()
	require.ErrorIs(t, s.Schedule(Request{IsWrite: false, PageID: 0, Buffer: make([]byte, 16)}, p), ErrSchedulerClosed)
}

func TestPromiseResolvesExactlyOnce(t *testing.T) {
	p := newPromise()
	p.resolve(nil)
	// A second resolve must not block or panic; once has already fired.
	p.resolve(ErrSchedulerClosed)
	require.NoError(t, p.Future()())
}
