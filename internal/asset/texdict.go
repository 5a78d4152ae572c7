package asset

import (
	"fmt"

	"github.com/samcharles93/strata/internal/platform"
	"github.com/samcharles93/strata/pkg/chunk"
	"github.com/samcharles93/strata/pkg/plugin"
)

// Device ids a dictionary records for the back-end its textures target.
var deviceIDs = map[platform.Tag]uint16{
	platform.D3D8: 1,
	platform.D3D9: 2,
	platform.GL:   5,
	platform.PS2:  6,
}

// DeviceID returns the dictionary device id for tag, zero when unknown.
func DeviceID(tag platform.Tag) uint16 { return deviceIDs[tag] }

// TexDictionary is a named collection of native textures.
type TexDictionary struct {
	DeviceID uint16
	Textures []*Texture

	plugins plugin.Block
}

// Plugins implements plugin.Extensible.
func (d *TexDictionary) Plugins() *plugin.Block { return &d.plugins }

// NewTexDictionary allocates and constructs an empty dictionary.
func (e *Engine) NewTexDictionary() (*TexDictionary, error) {
	d := &TexDictionary{}
	if err := e.construct(d); err != nil {
		return nil, err
	}
	return d, nil
}

// Find returns the texture named name, if any.
func (d *TexDictionary) Find(name string) *Texture {
	for _, t := range d.Textures {
		if t.Name == name {
			return t
		}
	}
	return nil
}

// ReadTexDictionary reads a TEXDICTIONARY chunk. A texture that fails to
// decode is skipped and reported through a RecordError; every other texture
// is still returned.
func (e *Engine) ReadTexDictionary(r *chunk.Reader) (*TexDictionary, []*RecordError, error) {
	d := &TexDictionary{}
	if err := e.construct(d); err != nil {
		return nil, nil, err
	}
	errs, err := e.readTexDictionary(r, d)
	if err != nil {
		e.Destroy(d)
		return nil, errs, err
	}
	return d, errs, nil
}

func (e *Engine) readTexDictionary(r *chunk.Reader, d *TexDictionary) ([]*RecordError, error) {
	h, err := r.Expect(chunk.TypeTexDictionary)
	if err != nil {
		return nil, err
	}
	end := r.Pos() + int64(h.Length)

	sh, err := r.Expect(chunk.TypeStruct)
	if err != nil {
		return nil, err
	}
	structEnd := r.Pos() + int64(sh.Length)
	word, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	count := int(word & 0xFFFF)
	d.DeviceID = uint16(word >> 16)
	if err := r.SeekTo(structEnd); err != nil {
		return nil, err
	}

	var errs []*RecordError
	for i := 0; i < count; i++ {
		off := r.Pos()
		th, err := r.Expect(chunk.TypeTextureNative)
		if err != nil {
			return errs, fmt.Errorf("texture %d: %w", i, err)
		}
		next := r.Pos() + int64(th.Length)
		if next > end {
			return errs, fmt.Errorf("%w: texture %d overruns its dictionary", chunk.ErrChunkTruncated, i)
		}
		if err := r.SeekTo(off); err != nil {
			return errs, err
		}
		t, err := e.ReadTextureNative(r)
		if err != nil {
			errs = append(errs, &RecordError{Kind: "texture", Index: i, Offset: off, Err: err})
			if err := r.SeekTo(next); err != nil {
				return errs, err
			}
			continue
		}
		d.Textures = append(d.Textures, t)
	}
	if err := e.readExtension(r, d, e.texDicts); err != nil {
		return errs, err
	}
	return errs, r.SeekTo(end)
}

// WriteTexDictionary writes d as a TEXDICTIONARY chunk.
func (e *Engine) WriteTexDictionary(w *chunk.Writer, d *TexDictionary) error {
	payloads := make([][]byte, len(d.Textures))
	size := 2*chunk.HeaderSize + 4 + e.texDicts.ExtensionChunkSize(d)
	for i, t := range d.Textures {
		p, err := e.nativePayload(t, w.Version())
		if err != nil {
			return err
		}
		payloads[i] = p
		size += e.textureNativeSize(t, p)
	}
	if err := w.WriteHeader(chunk.TypeTexDictionary, size-chunk.HeaderSize); err != nil {
		return err
	}
	_ = w.WriteHeader(chunk.TypeStruct, 4)
	_ = w.WriteU32(uint32(len(d.Textures))&0xFFFF | uint32(d.DeviceID)<<16)
	for i, t := range d.Textures {
		if err := e.writeTextureNative(w, t, payloads[i]); err != nil {
			return err
		}
	}
	if err := e.texDicts.WriteExtension(w, d); err != nil {
		return err
	}
	return w.Err()
}
