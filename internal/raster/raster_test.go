package raster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "8888|pal8|mipmap", (Format8888 | FormatPal8 | FormatMipmap).String())
	assert.Equal(t, "1555", Format1555.String())
	assert.Equal(t, "pixel(0x900)", Format(0x900).String())
	assert.Equal(t, 16, (Format8888 | FormatPal4).PaletteSize())
	assert.Zero(t, Format565.PaletteSize())
}

func TestLevelSizeClampsToOne(t *testing.T) {
	t.Parallel()
	w, h := LevelSize(64, 4, 3)
	assert.Equal(t, 8, w)
	assert.Equal(t, 1, h)
}

func TestValidate(t *testing.T) {
	t.Parallel()
	img := &Image{
		Width: 4, Height: 2, Depth: 4,
		Format:  Format8888 | FormatPal4,
		Palette: make([]RGBA, 16),
		Levels:  [][]byte{make([]byte, 8), make([]byte, 2)},
	}
	require.NoError(t, img.Validate())
	assert.True(t, img.HasAlpha())

	img.Levels[1] = []byte{0, 16}
	require.ErrorIs(t, img.Validate(), ErrInvalidImage)

	img.Levels = img.Levels[:1]
	img.Palette = img.Palette[:8]
	require.ErrorIs(t, img.Validate(), ErrInvalidImage)

	direct := &Image{Width: 1, Height: 1, Depth: 32, Format: Format8888, Levels: [][]byte{{1, 2, 3, 0xFF}}}
	require.NoError(t, direct.Validate())
	assert.False(t, direct.HasAlpha())
}
