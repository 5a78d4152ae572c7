package binbuf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samcharles93/strata/internal/platform"
)

func TestEncodeDecode(t *testing.T) {
	t.Parallel()
	e := NewEncoder(16)
	e.U8(7)
	e.Pad(4)
	e.U32(0)
	e.U16(0xBEEF)
	e.F32(1.5)
	e.PutU32(4, 0xCAFEF00D)
	require.Equal(t, 14, e.Len())

	d := NewDecoder(e.Bytes())
	assert.Equal(t, uint8(7), d.U8())
	d.Align(4)
	assert.Equal(t, uint32(0xCAFEF00D), d.U32())
	assert.Equal(t, uint16(0xBEEF), d.U16())
	assert.Equal(t, float32(1.5), d.F32())
	require.NoError(t, d.Err())
	assert.Zero(t, d.Remaining())
}

func TestShortReadIsSticky(t *testing.T) {
	t.Parallel()
	d := NewDecoder([]byte{1, 2, 3})
	assert.Zero(t, d.U32())
	require.ErrorIs(t, d.Err(), platform.ErrCorruptNative)
	assert.Zero(t, d.U8())
	assert.Equal(t, 0, d.Offset())
}

func TestCountBoundsElements(t *testing.T) {
	t.Parallel()
	e := NewEncoder(8)
	e.U32(3)
	e.U32(0)
	d := NewDecoder(e.Bytes())
	assert.Zero(t, d.Count(4))
	require.ErrorIs(t, d.Err(), platform.ErrCorruptNative)
}
