package asset

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samcharles93/strata/pkg/chunk"
)

// clumpBytes builds a clump holding a frame list, a good and a broken
// geometry, one atomic and an empty extension.
func clumpBytes(t *testing.T, e *Engine) []byte {
	t.Helper()
	g := boxGeometry(t, e)
	good := encode(t, e, func(w *chunk.Writer) error { return e.WriteGeometry(w, g) })
	broken := rawChunk(t, e, chunk.TypeGeometry,
		rawChunk(t, e, chunk.TypeStruct, u32s(0, 0xFFFFFFFF, 0, 0)))

	return rawChunk(t, e, chunk.TypeClump,
		rawChunk(t, e, chunk.TypeStruct, u32s(1, 0, 0)),
		rawChunk(t, e, chunk.TypeFrameList,
			rawChunk(t, e, chunk.TypeStruct, u32s(1, 0x3F800000, 0, 0)),
			rawChunk(t, e, chunk.TypeExtension)),
		rawChunk(t, e, chunk.TypeGeometryList,
			rawChunk(t, e, chunk.TypeStruct, u32s(2)),
			good, broken),
		rawChunk(t, e, chunk.TypeAtomic,
			rawChunk(t, e, chunk.TypeStruct, u32s(0, 0, 5, 0)),
			rawChunk(t, e, chunk.TypeExtension)),
		rawChunk(t, e, chunk.TypeExtension))
}

func TestClumpRecoversPerGeometry(t *testing.T) {
	t.Parallel()
	e := newEngine(t, Options{})
	b := clumpBytes(t, e)

	c, errs, err := e.ReadClump(reader(t, b))
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, "geometry", errs[0].Kind)
	assert.Equal(t, 1, errs[0].Index)
	require.ErrorIs(t, errs[0], ErrCorruptAsset)

	assert.Equal(t, 1, c.NumAtomics())
	require.Len(t, c.Geometries, 2)
	require.NotNil(t, c.Geometries[0])
	assert.Nil(t, c.Geometries[1])
	var types []chunk.Type
	for _, ch := range c.Children {
		types = append(types, ch.Type)
	}
	assert.Equal(t, []chunk.Type{chunk.TypeFrameList, chunk.TypeGeometryList, chunk.TypeAtomic, chunk.TypeExtension}, types)

	require.Equal(t, len(b), int(e.ClumpSize(c)))
	again := encode(t, e, func(w *chunk.Writer) error { return e.WriteClump(w, c) })
	assert.Equal(t, b, again)
}

func TestClumpTruncated(t *testing.T) {
	t.Parallel()
	e := newEngine(t, Options{})
	b := clumpBytes(t, e)
	_, _, err := e.ReadClump(reader(t, b[:len(b)-30]))
	require.ErrorIs(t, err, chunk.ErrChunkTruncated)
}

func TestDocumentRoundTrip(t *testing.T) {
	t.Parallel()
	e := newEngine(t, Options{})

	d, err := e.NewTexDictionary()
	require.NoError(t, err)
	d.Textures = []*Texture{ps2Texture(t, e, "grass", palettedImage(32, 32, 1))}
	dict := encode(t, e, func(w *chunk.Writer) error { return e.WriteTexDictionary(w, d) })
	clump := clumpBytes(t, e)
	unknown := rawChunk(t, e, chunk.Type(0x0253F2FE), []byte{1, 2, 3, 4})
	sentinel := rawChunk(t, e, chunk.TypeNAObject)

	file := bytes.Join([][]byte{dict, clump, unknown}, nil)
	doc, errs, err := e.ReadDocument(reader(t, append(append([]byte(nil), file...), sentinel...)))
	require.NoError(t, err)
	require.Len(t, errs, 1)
	require.Len(t, doc.Records, 3)
	assert.NotNil(t, doc.Records[0].TexDict)
	assert.NotNil(t, doc.Records[1].Clump)
	require.NotNil(t, doc.Records[2].Raw)
	assert.Equal(t, []byte{1, 2, 3, 4}, doc.Records[2].Raw.Payload)
	assert.Len(t, doc.Geometries(), 1)
	assert.Len(t, doc.Textures(), 1)

	again := encode(t, e, func(w *chunk.Writer) error { return e.WriteDocument(w, doc) })
	assert.Equal(t, file, again)

	g := doc.Geometries()[0]
	e.Destroy(doc)
	assert.False(t, g.Plugins().Constructed())
}

func TestDocumentKeepsBrokenTopLevelGeometry(t *testing.T) {
	t.Parallel()
	e := newEngine(t, Options{})
	broken := rawChunk(t, e, chunk.TypeGeometry,
		rawChunk(t, e, chunk.TypeStruct, u32s(0, 0xFFFFFFFF, 0, 0)))

	doc, errs, err := e.ReadDocument(reader(t, broken))
	require.NoError(t, err)
	require.Len(t, errs, 1)
	require.ErrorIs(t, errs[0], ErrCorruptAsset)
	require.Len(t, doc.Records, 1)
	require.NotNil(t, doc.Records[0].Raw)

	again := encode(t, e, func(w *chunk.Writer) error { return e.WriteDocument(w, doc) })
	assert.Equal(t, broken, again)
}
