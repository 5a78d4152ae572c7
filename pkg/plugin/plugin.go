// Package plugin implements runtime plugin registration for extensible records.
//
// Each record kind (texture, material, geometry, ...) owns one Registry. A
// plugin registered with a Registry reserves a byte range in every instance of
// that kind and may carry construct, destruct and copy hooks plus a stream
// form. The offset table is a schema shared by all instances; the per-instance
// state lives in a Block held by the record.
//
// Registration happens during start-up. The first Construct seals the
// Registry and any later registration fails with ErrRegistrySealed.
package plugin

import (
	"errors"

	"github.com/samcharles93/strata/pkg/chunk"
)

var (
	ErrPluginNotFound  = errors.New("plugin not found")
	ErrDuplicatePlugin = errors.New("plugin already registered")
	ErrRegistrySealed  = errors.New("plugin registry sealed")
	ErrTypeMismatch    = errors.New("plugin value type mismatch")
	ErrNotConstructed  = errors.New("record not constructed")
	// ErrCorruptAsset means a record's extension data was truncated or rejected
	// by a plugin's read hook.
	ErrCorruptAsset = errors.New("corrupt asset")
)

// Extensible is implemented by every record kind that carries plugin data.
type Extensible interface {
	Plugins() *Block
}

// Block is the plugin region of one record instance. The zero value is an
// unconstructed region.
type Block struct {
	reg  *Registry
	vals []any
}

// Constructed reports whether the region has been constructed and not yet
// destructed.
func (b *Block) Constructed() bool { return b.vals != nil }

// Registry returns the registry the region was constructed from.
func (b *Block) Registry() *Registry { return b.reg }

// Descriptor describes one registered plugin. Its fields are fixed once the
// owning Registry is sealed.
type Descriptor struct {
	ID     chunk.Type
	Offset uint32
	Size   uint32

	reg    *Registry
	index  int
	newVal func() any
	ctor   func(owner Extensible, v any) error
	dtor   func(owner Extensible, v any)
	copy   func(dst, src any) error

	read  func(r *chunk.Reader, length uint32, owner Extensible, v any) error
	write func(w *chunk.Writer, owner Extensible, v any) error
	size  func(owner Extensible, v any) int32
}

// Streams reports whether the plugin has a stream form.
func (d *Descriptor) Streams() bool { return d.read != nil || d.write != nil }

// Hooks are the lifetime hooks of a plugin holding a T. Any hook may be nil.
type Hooks[T any] struct {
	Construct func(owner Extensible, v *T) error
	Destruct  func(owner Extensible, v *T)
	Copy      func(dst, src *T) error
}

// StreamHooks are the stream form of a plugin holding a T.
//
// Size is queried before Write and must return the exact payload length Write
// will produce. A negative size omits the plugin from the output entirely,
// sub-chunk header included.
type StreamHooks[T any] struct {
	Read  func(r *chunk.Reader, length uint32, owner Extensible, v *T) error
	Write func(w *chunk.Writer, owner Extensible, v *T) error
	Size  func(owner Extensible, v *T) int32
}

// Slot is a typed handle to a registered plugin's per-instance value.
type Slot[T any] struct {
	desc *Descriptor
}

// Descriptor returns the plugin's descriptor.
func (s Slot[T]) Descriptor() *Descriptor { return s.desc }

// Offset returns the byte offset reserved for the plugin in every instance.
func (s Slot[T]) Offset() uint32 { return s.desc.Offset }

// Get returns owner's value for this plugin, or nil if owner is not constructed.
func (s Slot[T]) Get(owner Extensible) *T {
	b := owner.Plugins()
	if b.vals == nil || s.desc == nil || b.reg != s.desc.reg {
		return nil
	}
	v, _ := b.vals[s.desc.index].(*T)
	return v
}
