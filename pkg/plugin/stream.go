package plugin

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/samcharles93/strata/pkg/chunk"
)

// ReadExtension reads owner's EXTENSION chunk and dispatches each plugin
// sub-chunk to the read hook registered under its id. Sub-chunks with unknown
// ids, or ids without a read hook, are skipped and returned so the caller may
// report them; that is the forward-compatibility contract with newer writers.
// A read hook sees the stream cut off at the end of its own payload.
func (r *Registry) ReadExtension(rd *chunk.Reader, owner Extensible) ([]chunk.Header, error) {
	b := owner.Plugins()
	if b.vals == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotConstructed, r.kind)
	}

	ext, err := rd.Expect(chunk.TypeExtension)
	if err != nil {
		return nil, fmt.Errorf("%w: %s extension: %w", ErrCorruptAsset, r.kind, err)
	}
	end := rd.Pos() + int64(ext.Length)
	if end > rd.Size() {
		return nil, fmt.Errorf("%w: %s extension overruns stream", ErrCorruptAsset, r.kind)
	}

	restore := rd.Limit(end)
	defer restore()

	var skipped []chunk.Header
	for rd.Pos() < end {
		sub, err := rd.ReadHeader()
		if err != nil {
			return skipped, fmt.Errorf("%w: %s extension: %w", ErrCorruptAsset, r.kind, err)
		}
		start := rd.Pos()
		subEnd := start + int64(sub.Length)
		if subEnd > end {
			return skipped, fmt.Errorf("%w: %s plugin %s overruns extension", ErrCorruptAsset, r.kind, sub.Type)
		}

		d, ok := r.byID[sub.Type]
		if !ok || d.read == nil {
			skipped = append(skipped, sub)
			if err := rd.SeekTo(subEnd); err != nil {
				return skipped, err
			}
			continue
		}
		release := rd.Limit(subEnd)
		err = d.read(rd, sub.Length, owner, b.vals[d.index])
		release()
		if err != nil {
			if errors.Is(err, ErrCorruptAsset) {
				return skipped, err
			}
			return skipped, fmt.Errorf("%w: %s plugin %s: %w", ErrCorruptAsset, r.kind, sub.Type, err)
		}
		if err := rd.SeekTo(subEnd); err != nil {
			return skipped, err
		}
	}
	return skipped, nil
}

// ExtensionSize returns the payload length of owner's EXTENSION chunk: the sum
// of header plus payload for every plugin that writes and does not opt out.
func (r *Registry) ExtensionSize(owner Extensible) uint32 {
	b := owner.Plugins()
	var total uint32
	for _, d := range r.descs {
		if n, ok := r.pluginSize(d, owner, b); ok {
			total += chunk.HeaderSize + uint32(n)
		}
	}
	return total
}

// ExtensionChunkSize is ExtensionSize plus the EXTENSION header itself, which
// is what a parent chunk needs when it precomputes its own length.
func (r *Registry) ExtensionChunkSize(owner Extensible) uint32 {
	return chunk.HeaderSize + r.ExtensionSize(owner)
}

func (r *Registry) pluginSize(d *Descriptor, owner Extensible, b *Block) (int32, bool) {
	if d.write == nil || b.vals == nil {
		return 0, false
	}
	if d.size == nil {
		return 0, true
	}
	n := d.size(owner, b.vals[d.index])
	return n, n >= 0
}

// WriteExtension writes owner's EXTENSION chunk. Every plugin's Size is
// queried before its bytes are written and the written length is checked
// against it.
func (r *Registry) WriteExtension(w *chunk.Writer, owner Extensible) error {
	b := owner.Plugins()
	if err := w.WriteHeader(chunk.TypeExtension, r.ExtensionSize(owner)); err != nil {
		return err
	}
	if b.vals == nil {
		return nil
	}
	for _, d := range r.descs {
		n, ok := r.pluginSize(d, owner, b)
		if !ok {
			continue
		}
		if err := w.WriteHeader(d.ID, uint32(n)); err != nil {
			return err
		}
		before := w.Written()
		if err := d.write(w, owner, b.vals[d.index]); err != nil {
			return fmt.Errorf("%s: write plugin %s: %w", r.kind, d.ID, err)
		}
		if got := w.Written() - before; got != int64(n) {
			return fmt.Errorf("%s: plugin %s wrote %d bytes, sized %d", r.kind, d.ID, got, n)
		}
	}
	return w.Err()
}

// EncodeExtension returns owner's EXTENSION chunk as bytes.
func (r *Registry) EncodeExtension(owner Extensible, version, build uint32) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.WriteExtension(chunk.NewWriter(&buf, version, build), owner); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
