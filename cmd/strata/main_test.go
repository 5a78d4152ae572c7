package main

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samcharles93/strata/internal/asset"
	"github.com/samcharles93/strata/internal/platform"
	"github.com/samcharles93/strata/internal/platform/platformtest"
	"github.com/samcharles93/strata/pkg/chunk"
)

// runApp runs the CLI with a config file that does not exist unless the
// caller passes --config first.
func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &errOut
	argv := []string{"strata", "--config", filepath.Join(t.TempDir(), "none.yaml")}
	argv = append(argv, args...)
	err := app.Run(context.Background(), argv)
	return out.String(), err
}

func writeBox(t *testing.T) string {
	t.Helper()
	e, err := asset.NewEngine(asset.DefaultOptions(), nil)
	require.NoError(t, err)
	m, err := e.NewMaterial()
	require.NoError(t, err)
	g, err := e.NewGeometry(platformtest.Box(), []*asset.Material{m, m})
	require.NoError(t, err)

	var buf bytes.Buffer
	w := e.NewWriter(&buf)
	require.NoError(t, e.WriteDocument(w, &asset.Document{Records: []asset.Record{{Geometry: g}}}))
	path := filepath.Join(t.TempDir(), "box.dff")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func readDoc(t *testing.T, path string) (*asset.Engine, *asset.Document, *chunk.Reader) {
	t.Helper()
	e, err := asset.NewEngine(asset.DefaultOptions(), nil)
	require.NoError(t, err)
	f, err := chunk.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	doc, recErrs, err := e.ReadDocument(f.Reader())
	require.NoError(t, err)
	require.Empty(t, recErrs)
	return e, doc, f.Reader()
}

func TestInspectTree(t *testing.T) {
	path := writeBox(t)

	out, err := runApp(t, "inspect", "--records", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Geometry")
	assert.Contains(t, out, "  Struct")
	assert.Contains(t, out, "BinMesh")
	assert.Contains(t, out, "ver=3.6.0.3")
	assert.Contains(t, out, "1 record(s)")

	out, err = runApp(t, "inspect", "--json", "--max-depth", "0", path)
	require.NoError(t, err)
	var got struct {
		File   string     `json:"file"`
		Bytes  int64      `json:"bytes"`
		Chunks []nodeJSON `json:"chunks"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, path, got.File)
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, info.Size(), got.Bytes)
	require.Len(t, got.Chunks, 1)
	assert.Equal(t, "Geometry", got.Chunks[0].Type)
	assert.Equal(t, uint32(0xFFFF), got.Chunks[0].Build)
}

func TestConvertInstancesAndBack(t *testing.T) {
	in := writeBox(t)
	dir := t.TempDir()
	native := filepath.Join(dir, "native.dff")

	_, err := runApp(t, "convert", "--platform", "d3d9", "-o", native, in)
	require.NoError(t, err)
	e, doc, _ := readDoc(t, native)
	geoms := doc.Geometries()
	require.Len(t, geoms, 1)
	require.True(t, geoms[0].IsNative())
	assert.Equal(t, platform.D3D9, e.Native(geoms[0]).Platform)

	generic := filepath.Join(dir, "generic.dff")
	_, err = runApp(t, "convert", "-o", generic, native)
	require.NoError(t, err)
	_, doc, _ = readDoc(t, generic)
	geoms = doc.Geometries()
	require.Len(t, geoms, 1)
	require.False(t, geoms[0].IsNative())
	platformtest.AssertEquivalent(t, platformtest.Box(), geoms[0].Mesh, 1.0/64)
}

func TestConvertRestampsVersion(t *testing.T) {
	in := writeBox(t)
	out := filepath.Join(t.TempDir(), "old.dff")

	_, err := runApp(t, "convert", "--write-version", "3.4.0.3", "--write-build", "0", "-o", out, in)
	require.NoError(t, err)
	_, _, r := readDoc(t, out)
	h, err := r.ReadHeader()
	require.NoError(t, err)
	assert.Equal(t, chunk.TypeGeometry, h.Type)
	assert.Equal(t, uint32(0x34000), h.Version())

	_, err = runApp(t, "convert", "--write-version", "bogus", "-o", out, in)
	require.Error(t, err)
	_, err = runApp(t, "convert", "--platform", "saturn", "-o", out, in)
	require.ErrorIs(t, err, platform.ErrUnsupportedPlatform)
}

func TestConfigFillsUnsetFlags(t *testing.T) {
	in := writeBox(t)
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("platform: ps2\nlog_level: warn\n"), 0o644))

	run := func(args ...string) {
		t.Helper()
		app := newApp()
		app.Writer, app.ErrWriter = &bytes.Buffer{}, &bytes.Buffer{}
		require.NoError(t, app.Run(context.Background(), append([]string{"strata", "--config", cfgPath}, args...)))
	}

	fromConfig := filepath.Join(dir, "cfg.dff")
	run("convert", "-o", fromConfig, in)
	e, doc, _ := readDoc(t, fromConfig)
	assert.Equal(t, platform.PS2, e.Native(doc.Geometries()[0]).Platform)

	fromFlag := filepath.Join(dir, "flag.dff")
	run("convert", "--platform", "gl", "-o", fromFlag, in)
	e, doc, _ = readDoc(t, fromFlag)
	assert.Equal(t, platform.GL, e.Native(doc.Geometries()[0]).Platform)
}

func TestLayoutJSON(t *testing.T) {
	out, err := runApp(t, "layout", "--width", "64", "--height", "64", "--depth", "8", "--format", "8888|pal8", "--json")
	require.NoError(t, err)
	var got struct {
		PSM    string `json:"psm"`
		Levels []struct {
			TBP uint32 `json:"tbp"`
			TBW uint32 `json:"tbw"`
		} `json:"levels"`
		Palette *struct {
			Entries int `json:"entries"`
		} `json:"palette"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got.Levels, 1)
	require.NotNil(t, got.Palette)
	assert.Equal(t, 256, got.Palette.Entries)

	out, err = runApp(t, "layout", "--width", "32", "--height", "32", "--depth", "32", "--format", "8888", "--levels", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "32x32")
	assert.Contains(t, out, "8x8")
	assert.NotContains(t, out, "palette")

	_, err = runApp(t, "layout", "--format", "9999")
	require.Error(t, err)
}

func TestImportTexture(t *testing.T) {
	dir := t.TempDir()
	img := image.NewNRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 8), G: uint8(y * 8), A: 0xFF})
		}
	}
	src := filepath.Join(dir, "brick.png")
	f, err := os.Create(src)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())

	out := filepath.Join(dir, "brick.txd")
	_, err = runApp(t, "import-texture", "--depth", "4", "-o", out, src)
	require.NoError(t, err)

	e, doc, _ := readDoc(t, out)
	require.Len(t, doc.Records, 1)
	dict := doc.Records[0].TexDict
	require.NotNil(t, dict)
	assert.Equal(t, asset.DeviceID(platform.PS2), dict.DeviceID)
	tex := dict.Find("brick")
	require.NotNil(t, tex)
	require.NotNil(t, tex.Native.PS2)
	assert.Equal(t, 32, tex.Native.PS2.Width)
	assert.Equal(t, 4, tex.Native.PS2.Depth)
	assert.Len(t, tex.Native.PS2.Levels, 3)
	assert.NotNil(t, e.SkyMipmap(tex))

	_, err = runApp(t, "import-texture", "-o", out, src, src)
	require.Error(t, err)
}
