package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadGuardMoveInvalidatesSource(t *testing.T) {
	pool := newTestPool(t, 2, 2)
	pid, err := pool.NewPage()
	require.NoError(t, err)

	g, err := pool.FetchRead(pid, AccessUnknown)
	require.NoError(t, err)

	moved := g.Move()
	assert.Panics(t, func() { g.PageID() }, "source guard must be invalid after Move")
	assert.NotPanics(t, func() { moved.PageID() })

	moved.Drop()
}

func TestWriteGuardMoveInvalidatesSource(t *testing.T) {
	pool := newTestPool(t, 2, 2)
	pid, err := pool.NewPage()
	require.NoError(t, err)

	g, err := pool.FetchWrite(pid, AccessUnknown)
	require.NoError(t, err)

	moved := g.Move()
	assert.Panics(t, func() { g.Data() })
	assert.NotPanics(t, func() { moved.Data() })

	moved.Drop()
}

func TestGuardDropIsIdempotent(t *testing.T) {
	pool := newTestPool(t, 2, 2)
	pid, err := pool.NewPage()
	require.NoError(t, err)

	g, err := pool.FetchRead(pid, AccessUnknown)
	require.NoError(t, err)
	g.Drop()
	assert.NotPanics(t, func() { g.Drop() })
}

func TestWriteGuardDataMutMarksDirty(t *testing.T) {
	pool := newTestPool(t, 2, 2)
	pid, err := pool.NewPage()
	require.NoError(t, err)

	g, err := pool.FetchWrite(pid, AccessUnknown)
	require.NoError(t, err)
	assert.False(t, g.IsDirty())
	copy(g.DataMut(), "x")
	assert.True(t, g.IsDirty())
	g.Drop()
}

func TestUsingInvalidGuardPanics(t *testing.T) {
	pool := newTestPool(t, 2, 2)
	pid, err := pool.NewPage()
	require.NoError(t, err)

	g, err := pool.FetchRead(pid, AccessUnknown)
	require.NoError(t, err)
	g.Drop()

	assert.Panics(t, func() { g.Data() })
	assert.Panics(t, func() { g.IsDirty() })
}
