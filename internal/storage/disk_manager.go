package storage

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// DiskManager owns the single on-disk file backing a buffer pool: an array
// of page-sized slots indexed by page ID. It is the synchronous collaborator
// the disk scheduler wraps; nothing above the scheduler talks to it directly.
//
// Reading a page ID beyond the current end of file (or one that was
// deallocated) yields a page of zero bytes, matching the "never-allocated
// page reads as zero" contract the buffer pool manager relies on.
type DiskManager struct {
	mu       sync.Mutex
	file     *os.File
	pageSize int

	deallocated map[int32]struct{}
}

// NewDiskManager opens (creating if necessary) the database file at path.
func NewDiskManager(path string, pageSize int) (*DiskManager, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, FileMode0664)
	if err != nil {
		return nil, fmt.Errorf("disk manager: open %s: %w", path, err)
	}
	return &DiskManager{
		file:        f,
		pageSize:    pageSize,
		deallocated: make(map[int32]struct{}),
	}, nil
}

func (dm *DiskManager) Close() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return dm.file.Close()
}

// ReadPage fills dst (which must be exactly pageSize bytes) with the bytes
// at pageID's slot, zero-filling past EOF or a deallocated slot.
func (dm *DiskManager) ReadPage(pageID int32, dst []byte) error {
	if len(dst) != dm.pageSize {
		return ErrPageSizeMismatch
	}

	dm.mu.Lock()
	defer dm.mu.Unlock()

	if _, ok := dm.deallocated[pageID]; ok {
		clear(dst)
		return nil
	}

	offset := int64(pageID) * int64(dm.pageSize)
	n, err := dm.file.ReadAt(dst, offset)
	if err != nil && err != io.EOF {
		return fmt.Errorf("disk manager: read page %d: %w", pageID, err)
	}
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
	return nil
}

// WritePage writes src (exactly pageSize bytes) to pageID's slot.
func (dm *DiskManager) WritePage(pageID int32, src []byte) error {
	if len(src) != dm.pageSize {
		return ErrPageSizeMismatch
	}

	dm.mu.Lock()
	defer dm.mu.Unlock()

	delete(dm.deallocated, pageID)

	offset := int64(pageID) * int64(dm.pageSize)
	n, err := dm.file.WriteAt(src, offset)
	if err != nil {
		return fmt.Errorf("disk manager: write page %d: %w", pageID, err)
	}
	if n != len(src) {
		return io.ErrShortWrite
	}
	return nil
}

// DeallocatePage reclaims the on-disk slot for pageID. Subsequent reads of
// pageID return zero bytes until it is written again.
func (dm *DiskManager) DeallocatePage(pageID int32) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	dm.deallocated[pageID] = struct{}{}
}
