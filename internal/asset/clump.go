package asset

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/samcharles93/strata/pkg/chunk"
)

// RawChunk is a chunk carried through unread. Nested headers inside Payload
// keep the versions they were written with; only the outer header is
// restamped on write.
type RawChunk struct {
	Type    chunk.Type
	Payload []byte
}

func (c RawChunk) size() uint32 { return chunk.HeaderSize + uint32(len(c.Payload)) }

func writeRaw(w *chunk.Writer, c RawChunk) error {
	if err := w.WriteHeader(c.Type, uint32(len(c.Payload))); err != nil {
		return err
	}
	_, err := w.Write(c.Payload)
	return err
}

func readRaw(r *chunk.Reader, h chunk.Header) (RawChunk, error) {
	p, err := r.ReadBytes(int(h.Length))
	if err != nil {
		return RawChunk{}, err
	}
	return RawChunk{Type: h.Type, Payload: p}, nil
}

// Clump is a scene clump reduced to what this engine manages: its geometry
// list. Frames, atomics, lights, cameras and the clump's own extension are
// kept as raw chunks in their original order.
type Clump struct {
	Struct     []byte
	Children   []RawChunk
	Geometries []*Geometry

	// raw bytes of geometries that failed to load, by list index
	unread map[int]RawChunk
}

// NumAtomics returns the atomic count recorded in the clump struct.
func (c *Clump) NumAtomics() int {
	if len(c.Struct) < 4 {
		return 0
	}
	return int(int32(binary.LittleEndian.Uint32(c.Struct)))
}

// ReadClump reads a CLUMP chunk. Geometries that fail to load are reported
// as RecordErrors and carried through as raw bytes; the clump itself fails
// only when its own structure is damaged.
func (e *Engine) ReadClump(r *chunk.Reader) (*Clump, []*RecordError, error) {
	h, err := r.Expect(chunk.TypeClump)
	if err != nil {
		return nil, nil, err
	}
	end := r.Pos() + int64(h.Length)
	if end > r.Size() {
		return nil, nil, fmt.Errorf("%w: clump of %d bytes", chunk.ErrChunkTruncated, h.Length)
	}

	c := &Clump{}
	var errs []*RecordError
	for r.Pos() < end {
		ch, err := r.ReadHeader()
		if err != nil {
			e.Destroy(c)
			return nil, errs, err
		}
		if r.Pos()+int64(ch.Length) > end {
			e.Destroy(c)
			return nil, errs, fmt.Errorf("%w: %s overruns its clump", chunk.ErrChunkTruncated, ch.Type)
		}
		switch ch.Type {
		case chunk.TypeStruct:
			if c.Struct, err = r.ReadBytes(int(ch.Length)); err != nil {
				e.Destroy(c)
				return nil, errs, err
			}
		case chunk.TypeGeometryList:
			listErrs, err := e.readGeometryList(r, ch, c)
			errs = append(errs, listErrs...)
			if err != nil {
				e.Destroy(c)
				return nil, errs, err
			}
			c.Children = append(c.Children, RawChunk{Type: chunk.TypeGeometryList})
		default:
			raw, err := readRaw(r, ch)
			if err != nil {
				e.Destroy(c)
				return nil, errs, err
			}
			c.Children = append(c.Children, raw)
		}
	}
	return c, errs, nil
}

func (e *Engine) readGeometryList(r *chunk.Reader, h chunk.Header, c *Clump) ([]*RecordError, error) {
	end := r.Pos() + int64(h.Length)
	sh, err := r.Expect(chunk.TypeStruct)
	if err != nil {
		return nil, err
	}
	structEnd := r.Pos() + int64(sh.Length)
	n, err := r.ReadI32()
	if err != nil {
		return nil, err
	}
	if n < 0 || int64(n)*chunk.HeaderSize > end-structEnd {
		return nil, fmt.Errorf("%w: geometry list of %d entries", ErrCorruptAsset, n)
	}
	if err := r.SeekTo(structEnd); err != nil {
		return nil, err
	}

	var errs []*RecordError
	c.Geometries = make([]*Geometry, n)
	for i := range c.Geometries {
		off := r.Pos()
		gh, err := r.Expect(chunk.TypeGeometry)
		if err != nil {
			return errs, fmt.Errorf("geometry %d: %w", i, err)
		}
		next := r.Pos() + int64(gh.Length)
		if next > end {
			return errs, fmt.Errorf("%w: geometry %d overruns its list", chunk.ErrChunkTruncated, i)
		}
		if err := r.SeekTo(off); err != nil {
			return errs, err
		}
		g, err := e.ReadGeometry(r)
		if err == nil {
			c.Geometries[i] = g
			if err := r.SeekTo(next); err != nil {
				return errs, err
			}
			continue
		}

		errs = append(errs, &RecordError{Kind: "geometry", Index: i, Offset: off, Err: err})
		e.log.Warn("geometry failed to load, keeping raw bytes", "index", i, "offset", off, "error", err)
		if err := r.SeekTo(off + chunk.HeaderSize); err != nil {
			return errs, err
		}
		raw, err := readRaw(r, gh)
		if err != nil {
			return errs, err
		}
		if c.unread == nil {
			c.unread = map[int]RawChunk{}
		}
		c.unread[i] = raw
	}
	return errs, r.SeekTo(end)
}

func (e *Engine) geometryListSize(c *Clump, version uint32) uint32 {
	n := uint32(2*chunk.HeaderSize + 4)
	for i, g := range c.Geometries {
		if g != nil {
			n += e.geometrySize(g, version)
		} else if raw, ok := c.unread[i]; ok {
			n += raw.size()
		}
	}
	return n
}

func (e *Engine) clumpSize(c *Clump, version uint32) uint32 {
	n := 2*chunk.HeaderSize + uint32(len(c.Struct))
	for _, ch := range c.Children {
		if ch.Type == chunk.TypeGeometryList {
			n += e.geometryListSize(c, version)
			continue
		}
		n += ch.size()
	}
	return n
}

// ClumpSize returns the encoded size of c as a CLUMP chunk.
func (e *Engine) ClumpSize(c *Clump) uint32 { return e.clumpSize(c, e.opts.Version) }

// WriteClump writes c back as a CLUMP chunk.
func (e *Engine) WriteClump(w *chunk.Writer, c *Clump) error {
	version := w.Version()
	if err := w.WriteHeader(chunk.TypeClump, e.clumpSize(c, version)-chunk.HeaderSize); err != nil {
		return err
	}
	if err := writeRaw(w, RawChunk{Type: chunk.TypeStruct, Payload: c.Struct}); err != nil {
		return err
	}
	for _, ch := range c.Children {
		if ch.Type != chunk.TypeGeometryList {
			if err := writeRaw(w, ch); err != nil {
				return err
			}
			continue
		}
		if err := e.writeGeometryList(w, c, version); err != nil {
			return err
		}
	}
	return w.Err()
}

func (e *Engine) writeGeometryList(w *chunk.Writer, c *Clump, version uint32) error {
	_ = w.WriteHeader(chunk.TypeGeometryList, e.geometryListSize(c, version)-chunk.HeaderSize)
	_ = w.WriteHeader(chunk.TypeStruct, 4)
	var n int32
	for i, g := range c.Geometries {
		if _, ok := c.unread[i]; g != nil || ok {
			n++
		}
	}
	_ = w.WriteI32(n)
	for i, g := range c.Geometries {
		if g != nil {
			if err := e.WriteGeometry(w, g); err != nil {
				return fmt.Errorf("geometry %d: %w", i, err)
			}
		} else if raw, ok := c.unread[i]; ok {
			if err := writeRaw(w, raw); err != nil {
				return err
			}
		}
	}
	return w.Err()
}

// Document is every top-level record of an asset file in stream order.
// Records this engine does not load are kept as raw chunks.
type Document struct {
	Records []Record
}

// Record is one top-level chunk of a Document. Exactly one field is set.
type Record struct {
	Clump    *Clump
	TexDict  *TexDictionary
	Geometry *Geometry
	Raw      *RawChunk
}

// Geometries returns every loaded geometry of the document.
func (d *Document) Geometries() []*Geometry {
	var out []*Geometry
	for _, rec := range d.Records {
		switch {
		case rec.Geometry != nil:
			out = append(out, rec.Geometry)
		case rec.Clump != nil:
			for _, g := range rec.Clump.Geometries {
				if g != nil {
					out = append(out, g)
				}
			}
		}
	}
	return out
}

// Textures returns every texture held in the document's dictionaries.
func (d *Document) Textures() []*Texture {
	var out []*Texture
	for _, rec := range d.Records {
		if rec.TexDict != nil {
			out = append(out, rec.TexDict.Textures...)
		}
	}
	return out
}

// ReadDocument reads top-level records until the end of the stream or a
// sentinel chunk. Failures inside a clump or dictionary are collected as
// RecordErrors; a failed top-level geometry is kept raw.
func (e *Engine) ReadDocument(r *chunk.Reader) (*Document, []*RecordError, error) {
	doc := &Document{}
	var errs []*RecordError
	for index := 0; ; index++ {
		off := r.Pos()
		h, err := r.ReadHeader()
		if errors.Is(err, io.EOF) || (err == nil && h.Type == chunk.TypeNAObject) {
			return doc, errs, nil
		}
		if err != nil {
			e.Destroy(doc)
			return nil, errs, err
		}
		if err := r.SeekTo(off); err != nil {
			e.Destroy(doc)
			return nil, errs, err
		}

		var rec Record
		var recErrs []*RecordError
		switch h.Type {
		case chunk.TypeClump:
			rec.Clump, recErrs, err = e.ReadClump(r)
		case chunk.TypeTexDictionary:
			rec.TexDict, recErrs, err = e.ReadTexDictionary(r)
		case chunk.TypeGeometry:
			rec.Geometry, err = e.ReadGeometry(r)
			if err != nil {
				recErrs = append(recErrs, &RecordError{Kind: "geometry", Index: index, Offset: off, Err: err})
				err = e.rawRecord(r, off, h, &rec)
			}
		default:
			err = e.rawRecord(r, off, h, &rec)
		}
		errs = append(errs, recErrs...)
		if err != nil {
			e.Destroy(doc)
			return nil, errs, fmt.Errorf("%s at offset %d: %w", h.Type, off, err)
		}
		doc.Records = append(doc.Records, rec)
	}
}

func (e *Engine) rawRecord(r *chunk.Reader, off int64, h chunk.Header, rec *Record) error {
	if err := r.SeekTo(off + chunk.HeaderSize); err != nil {
		return err
	}
	raw, err := readRaw(r, h)
	if err != nil {
		return err
	}
	rec.Raw = &raw
	return nil
}

// WriteDocument writes every record of doc in order.
func (e *Engine) WriteDocument(w *chunk.Writer, doc *Document) error {
	for i, rec := range doc.Records {
		var err error
		switch {
		case rec.Clump != nil:
			err = e.WriteClump(w, rec.Clump)
		case rec.TexDict != nil:
			err = e.WriteTexDictionary(w, rec.TexDict)
		case rec.Geometry != nil:
			err = e.WriteGeometry(w, rec.Geometry)
		case rec.Raw != nil:
			err = writeRaw(w, *rec.Raw)
		}
		if err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
	}
	return w.Err()
}
