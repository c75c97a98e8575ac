// Package logmgr implements an append-only redo log of page images. It sits
// beside the buffer pool as an external collaborator: the pool never calls
// into it on the fetch/evict/flush hot path, and wiring a Manager into a
// Pool is left to whatever sits above both (a transaction layer that wants
// write-ahead logging before it lets a WriteGuard's bytes reach disk).
package logmgr

import (
	"bufio"
	"errors"
	"hash/crc32"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/tqhuy/pagestore/internal/alias/bx"
	"github.com/tqhuy/pagestore/pkg/util"
)

var (
	ErrBadMagic  = errors.New("logmgr: bad magic")
	ErrBadCRC    = errors.New("logmgr: bad crc")
	ErrBadRecord = errors.New("logmgr: bad record")
	ErrShortRead = errors.New("logmgr: short read")
)

const (
	magicU32   uint32 = 0x50474C4F // "PGLO"
	versionU16        = 1

	recPageImage uint8 = 1

	fixedHeaderLen = 4 + 2 + 1 + 1 + 4 + 4 + 8 + 4 // magic,ver,typ,rsv,totalLen,crc,lsn,pageID
)

// PageWriter lets Recover replay redo records without importing the buffer
// package, keeping this log free of a dependency on the pool it logs for.
type PageWriter interface {
	WritePage(pageID int32, page []byte) error
}

// Manager is a single append-only log file plus the in-memory LSN counter
// derived from it. A Manager is never required for correctness of the
// buffer pool itself; it exists for a layer above the pool that wants
// durability across process restarts.
type Manager struct {
	mu      sync.Mutex
	f       *os.File
	path    string
	lsn     uint64
	flushed uint64
}

// Open opens (creating if necessary) the log file "pagestore.log" inside
// dir and scans its records from the start to recover the last assigned
// LSN.
func Open(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, "pagestore.log")
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	m := &Manager{f: f, path: path}
	if err := m.initLastLSN(); err != nil {
		slog.Debug("logmgr: could not recover last lsn", "err", err)
	}
	return m, nil
}

// Close closes the underlying file. Safe to call on a nil Manager.
func (m *Manager) Close() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.f == nil {
		return nil
	}
	util.CloseFileFunc(m.f)
	m.f = nil
	return nil
}

// AppendPageImage appends a full-page redo record for pageID and returns
// its assigned LSN.
func (m *Manager) AppendPageImage(pageID int32, page []byte) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.f == nil {
		return 0, errors.New("logmgr: log file closed")
	}

	m.lsn++
	lsn := m.lsn

	totalLen := fixedHeaderLen + len(page)
	buf := make([]byte, totalLen)
	off := 0

	bx.PutU32At(buf, off, magicU32)
	off += 4
	bx.PutU16At(buf, off, versionU16)
	off += 2
	buf[off] = recPageImage
	off++
	buf[off] = 0 // reserved
	off++
	bx.PutU32At(buf, off, uint32(totalLen))
	off += 4

	crcOff := off
	off += 4 // crc placeholder

	bx.PutU64At(buf, off, lsn)
	off += 8
	bx.PutU32At(buf, off, uint32(pageID))
	off += 4

	copy(buf[off:], page)

	crc := crc32.ChecksumIEEE(buf[crcOff+4:])
	bx.PutU32At(buf, crcOff, crc)

	if _, err := m.f.Write(buf); err != nil {
		return 0, err
	}
	return lsn, nil
}

// Flush fsyncs the log up through the given LSN. Calling with an LSN
// already flushed is a no-op.
func (m *Manager) Flush(upto uint64) error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.f == nil || upto == 0 || upto <= m.flushed {
		return nil
	}
	if err := m.f.Sync(); err != nil {
		return err
	}
	m.flushed = upto
	return nil
}

// Recover replays every page-image record in the log against writer, in
// LSN order.
func (m *Manager) Recover(writer PageWriter) error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	path := m.path
	m.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer util.CloseFileFunc(f)

	r := bufio.NewReaderSize(f, 1<<20)
	for {
		rec, err := readOne(r)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, ErrShortRead) {
				return nil
			}
			return err
		}
		if rec.typ != recPageImage {
			continue
		}
		if err := writer.WritePage(rec.pageID, rec.page); err != nil {
			return err
		}
	}
}

type decodedRecord struct {
	typ    uint8
	lsn    uint64
	pageID int32
	page   []byte
}

func readOne(r *bufio.Reader) (*decodedRecord, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	if bx.U32(hdr[:]) != magicU32 {
		return nil, ErrBadMagic
	}

	var verB [2]byte
	if _, err := io.ReadFull(r, verB[:]); err != nil {
		return nil, err
	}
	if bx.U16(verB[:]) != versionU16 {
		return nil, ErrBadRecord
	}

	tp, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if _, err := r.ReadByte(); err != nil { // reserved
		return nil, err
	}

	var lenB [4]byte
	if _, err := io.ReadFull(r, lenB[:]); err != nil {
		return nil, err
	}
	totalLen := bx.U32(lenB[:])
	if totalLen < uint32(fixedHeaderLen) {
		return nil, ErrBadRecord
	}

	var crcB [4]byte
	if _, err := io.ReadFull(r, crcB[:]); err != nil {
		return nil, err
	}
	wantCRC := bx.U32(crcB[:])

	restLen := int(totalLen) - (4 + 2 + 1 + 1 + 4 + 4)
	rest := make([]byte, restLen)
	if _, err := io.ReadFull(r, rest); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrShortRead
		}
		return nil, err
	}
	if crc32.ChecksumIEEE(rest) != wantCRC {
		return nil, ErrBadCRC
	}

	lsn := bx.U64(rest[0:8])
	pageID := int32(bx.U32(rest[8:12]))
	page := make([]byte, restLen-12)
	copy(page, rest[12:])

	return &decodedRecord{typ: tp, lsn: lsn, pageID: pageID, page: page}, nil
}

func (m *Manager) initLastLSN() error {
	f, err := os.Open(m.path)
	if err != nil {
		return err
	}
	defer util.CloseFileFunc(f)

	r := bufio.NewReaderSize(f, 1<<20)
	var last uint64
	for {
		rec, err := readOne(r)
		if err != nil {
			break
		}
		if rec.lsn > last {
			last = rec.lsn
		}
	}
	if last > 0 {
		m.lsn = last
		m.flushed = last
	}
	return nil
}
