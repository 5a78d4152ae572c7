package plugin

import (
	"fmt"

	"github.com/samcharles93/strata/pkg/chunk"
)

// Registry is the append-only plugin table of one record kind.
type Registry struct {
	kind     string
	coreSize uint32
	descs    []*Descriptor
	byID     map[chunk.Type]*Descriptor
	pluginSz uint32
	sealed   bool
}

// NewRegistry returns an empty registry for a record kind whose fixed core
// occupies coreSize bytes.
func NewRegistry(kind string, coreSize uint32) *Registry {
	return &Registry{
		kind:     kind,
		coreSize: coreSize,
		byID:     make(map[chunk.Type]*Descriptor),
	}
}

// Kind returns the record kind name.
func (r *Registry) Kind() string { return r.kind }

// CoreSize returns the size of the kind's fixed core.
func (r *Registry) CoreSize() uint32 { return r.coreSize }

// InstanceSize returns the core size plus every registered plugin's size.
func (r *Registry) InstanceSize() uint32 { return r.coreSize + r.pluginSz }

// Sealed reports whether an instance has been constructed.
func (r *Registry) Sealed() bool { return r.sealed }

// Descriptors returns the registered plugins in registration order.
func (r *Registry) Descriptors() []*Descriptor {
	out := make([]*Descriptor, len(r.descs))
	copy(out, r.descs)
	return out
}

// Lookup returns the descriptor registered under id.
func (r *Registry) Lookup(id chunk.Type) (*Descriptor, bool) {
	d, ok := r.byID[id]
	return d, ok
}

// Register appends a plugin holding a T to r and returns its slot. The slot's
// offset is the kind's core size plus the sizes of every plugin registered
// before it.
func Register[T any](r *Registry, id chunk.Type, size uint32, hooks Hooks[T]) (Slot[T], error) {
	if r.sealed {
		return Slot[T]{}, fmt.Errorf("%w: %s: register 0x%x", ErrRegistrySealed, r.kind, uint32(id))
	}
	if _, ok := r.byID[id]; ok {
		return Slot[T]{}, fmt.Errorf("%w: %s: 0x%x", ErrDuplicatePlugin, r.kind, uint32(id))
	}

	d := &Descriptor{
		ID:     id,
		Offset: r.coreSize + r.pluginSz,
		Size:   size,
		reg:    r,
		index:  len(r.descs),
		newVal: func() any { return new(T) },
	}
	if hooks.Construct != nil {
		d.ctor = func(owner Extensible, v any) error { return hooks.Construct(owner, v.(*T)) }
	}
	if hooks.Destruct != nil {
		d.dtor = func(owner Extensible, v any) { hooks.Destruct(owner, v.(*T)) }
	}
	if hooks.Copy != nil {
		d.copy = func(dst, src any) error { return hooks.Copy(dst.(*T), src.(*T)) }
	}

	r.descs = append(r.descs, d)
	r.byID[id] = d
	r.pluginSz += size
	return Slot[T]{desc: d}, nil
}

// RegisterStream attaches a stream form to the already registered plugin id
// and returns its offset. It fails with ErrPluginNotFound when id was never
// registered. A plugin may legally have data but no stream form.
func RegisterStream[T any](r *Registry, id chunk.Type, hooks StreamHooks[T]) (uint32, error) {
	if r.sealed {
		return 0, fmt.Errorf("%w: %s: register stream 0x%x", ErrRegistrySealed, r.kind, uint32(id))
	}
	d, ok := r.byID[id]
	if !ok {
		return 0, fmt.Errorf("%w: %s: 0x%x", ErrPluginNotFound, r.kind, uint32(id))
	}
	if _, ok := d.newVal().(*T); !ok {
		return 0, fmt.Errorf("%w: %s: 0x%x", ErrTypeMismatch, r.kind, uint32(id))
	}
	if hooks.Read != nil {
		d.read = func(rd *chunk.Reader, length uint32, owner Extensible, v any) error {
			return hooks.Read(rd, length, owner, v.(*T))
		}
	}
	if hooks.Write != nil {
		d.write = func(w *chunk.Writer, owner Extensible, v any) error {
			return hooks.Write(w, owner, v.(*T))
		}
	}
	if hooks.Size != nil {
		d.size = func(owner Extensible, v any) int32 { return hooks.Size(owner, v.(*T)) }
	}
	return d.Offset, nil
}

// Construct seals r, allocates owner's plugin region and runs every
// constructor in registration order. If a constructor fails, the plugins
// constructed so far are destructed and the region is left unconstructed.
func (r *Registry) Construct(owner Extensible) error {
	r.sealed = true
	b := owner.Plugins()
	if b.vals != nil {
		return fmt.Errorf("%s: record already constructed", r.kind)
	}
	vals := make([]any, len(r.descs))
	for i, d := range r.descs {
		vals[i] = d.newVal()
	}
	b.reg = r
	b.vals = vals

	for i, d := range r.descs {
		if d.ctor == nil {
			continue
		}
		if err := d.ctor(owner, vals[i]); err != nil {
			for j := 0; j < i; j++ {
				if dt := r.descs[j].dtor; dt != nil {
					dt(owner, vals[j])
				}
			}
			b.vals = nil
			b.reg = nil
			return fmt.Errorf("%s: construct plugin 0x%x: %w", r.kind, uint32(d.ID), err)
		}
	}
	return nil
}

// Destruct runs every destructor in registration order and releases owner's
// plugin region. Destructing an unconstructed record is a no-op.
func (r *Registry) Destruct(owner Extensible) {
	b := owner.Plugins()
	if b.vals == nil {
		return
	}
	for i, d := range r.descs {
		if d.dtor != nil {
			d.dtor(owner, b.vals[i])
		}
	}
	b.vals = nil
	b.reg = nil
}

// Copy runs every copy hook in registration order from src's region into
// dst's. Plugins without a copy hook keep dst's constructed value.
func (r *Registry) Copy(dst, src Extensible) error {
	db, sb := dst.Plugins(), src.Plugins()
	if db.vals == nil || sb.vals == nil {
		return fmt.Errorf("%w: %s: copy", ErrNotConstructed, r.kind)
	}
	if db.reg != r || sb.reg != r {
		return fmt.Errorf("%s: copy across registries", r.kind)
	}
	for i, d := range r.descs {
		if d.copy == nil {
			continue
		}
		if err := d.copy(db.vals[i], sb.vals[i]); err != nil {
			return fmt.Errorf("%s: copy plugin 0x%x: %w", r.kind, uint32(d.ID), err)
		}
	}
	return nil
}
