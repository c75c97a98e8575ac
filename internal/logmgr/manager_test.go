package logmgr

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendPageImageAssignsMonotonicLSNs(t *testing.T) {
	m, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	lsn1, err := m.AppendPageImage(0, []byte("page zero bytes."))
	require.NoError(t, err)
	lsn2, err := m.AppendPageImage(1, []byte("page one bytes.."))
	require.NoError(t, err)

	assert.Equal(t, uint64(1), lsn1)
	assert.Equal(t, uint64(2), lsn2)
}

type recordingWriter struct {
	pages map[int32][]byte
}

func (w *recordingWriter) WritePage(pageID int32, page []byte) error {
	if w.pages == nil {
		w.pages = make(map[int32][]byte)
	}
	cp := make([]byte, len(page))
	copy(cp, page)
	w.pages[pageID] = cp
	return nil
}

func TestRecoverReplaysPageImagesInOrder(t *testing.T) {
	dir := t.TempDir()
	m, err := Open(dir)
	require.NoError(t, err)

	_, err = m.AppendPageImage(0, []byte("first version...."))
	require.NoError(t, err)
	_, err = m.AppendPageImage(0, []byte("second version..."))
	require.NoError(t, err)
	_, err = m.AppendPageImage(1, []byte("only version page"))
	require.NoError(t, err)
	require.NoError(t, m.Close())

	reopened, err := Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	w := &recordingWriter{}
	require.NoError(t, reopened.Recover(w))

	assert.Equal(t, "second version...", string(w.pages[0]))
	assert.Equal(t, "only version page", string(w.pages[1]))
}

func TestOpenRecoversLastLSNAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	m, err := Open(dir)
	require.NoError(t, err)

	_, err = m.AppendPageImage(0, []byte("aaaaaaaaaaaaaaaa"))
	require.NoError(t, err)
	lsn, err := m.AppendPageImage(1, []byte("bbbbbbbbbbbbbbbb"))
	require.NoError(t, err)
	require.Equal(t, uint64(2), lsn)
	require.NoError(t, m.Close())

	reopened, err := Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	lsn3, err := reopened.AppendPageImage(2, []byte("cccccccccccccccc"))
	require.NoError(t, err)
	assert.Equal(t, uint64(3), lsn3)
}

func TestRecoverOnMissingLogFileIsNoOp(t *testing.T) {
	m, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	path := filepath.Join(t.TempDir(), "does-not-exist.log")
	lm := &Manager{path: path}
	assert.NoError(t, lm.Recover(&recordingWriter{}))
}

func TestFlushIsNoOpBelowAlreadyFlushedLSN(t *testing.T) {
	m, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	lsn, err := m.AppendPageImage(0, []byte("durable bytes!!!"))
	require.NoError(t, err)
	require.NoError(t, m.Flush(lsn))
	require.NoError(t, m.Flush(lsn))
}

func TestCloseOnNilManagerIsNoOp(t *testing.T) {
	var m *Manager
	assert.NoError(t, m.Close())
	assert.NoError(t, m.Recover(&recordingWriter{}))
	assert.NoError(t, m.Flush(1))
}
