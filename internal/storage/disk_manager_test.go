package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDiskManager(t *testing.T) *DiskManager {
	t.Helper()
	dm, err := NewDiskManager(filepath.Join(t.TempDir(), "test.db"), 16)
	require.NoError(t, err)
	t.Cleanup(func() { _ = dm.Close() })
	return dm
}

func TestReadUnwrittenPageIsZeroed(t *testing.T) {
	dm := newTestDiskManager(t)
	buf := make([]byte, 16)
	require.NoError(t, dm.ReadPage(5, buf))
	assert.Equal(t, make([]byte, 16), buf)
}

func TestWriteThenReadRoundTrips(t *testing.T) {
	dm := newTestDiskManager(t)
	want := []byte("0123456789abcdef")
	require.NoError(t, dm.WritePage(3, want))

	got := make([]byte, 16)
	require.NoError(t, dm.ReadPage(3, got))
	assert.Equal(t, want, got)
}

func TestDeallocatedPageReadsZero(t *testing.T) {
	dm := newTestDiskManager(t)
	require.NoError(t, dm.WritePage(1, []byte("1234567890123456")))
	dm.DeallocatePage(1)

	got := make([]byte, 16)
	require.NoError(t, dm.ReadPage(1, got))
	assert.Equal(t, make([]byte, 16), got)
}

func TestWriteAfterDeallocateClearsTombstone(t *testing.T) {
	dm := newTestDiskManager(t)
	dm.DeallocatePage(2)
	want := []byte("abcdefghijklmnop")
	require.NoError(t, dm.WritePage(2, want))

	got := make([]byte, 16)
	require.NoError(t, dm.ReadPage(2, got))
	assert.Equal(t, want, got)
}

func TestPageSizeMismatchIsRejected(t *testing.T) {
	dm := newTestDiskManager(t)
	assert.ErrorIs(t, dm.ReadPage(0, make([]byte, 8)), ErrPageSizeMismatch)
	assert.ErrorIs(t, dm.WritePage(0, make([]byte, 8)), ErrPageSizeMismatch)
}
