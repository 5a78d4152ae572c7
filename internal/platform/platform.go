// Package platform defines the instancing contract every graphics back-end
// implements and the tag that selects a back-end for a native buffer.
package platform

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/samcharles93/strata/internal/mesh"
)

// ErrUnsupportedPlatform means no codec is registered for a platform tag.
var ErrUnsupportedPlatform = errors.New("unsupported platform")

// ErrCorruptNative means a native buffer does not parse for its platform.
var ErrCorruptNative = errors.New("corrupt native buffer")

// Tag identifies a back-end. Values are on-disk.
type Tag uint32

const (
	None Tag = 0
	GL   Tag = 2
	PS2  Tag = 4
	D3D8 Tag = 8
	D3D9 Tag = 9
)

var tagNames = map[Tag]string{
	GL:   "gl",
	PS2:  "ps2",
	D3D8: "d3d8",
	D3D9: "d3d9",
}

func (t Tag) String() string {
	if name, ok := tagNames[t]; ok {
		return name
	}
	return fmt.Sprintf("platform(%d)", uint32(t))
}

// Parse resolves a back-end name as accepted on the command line.
func Parse(name string) (Tag, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for tag, n := range tagNames {
		if n == name {
			return tag, nil
		}
	}
	return None, fmt.Errorf("%w: %q (expected %s)", ErrUnsupportedPlatform, name, Names())
}

// Names returns the known back-end names, comma separated.
func Names() string {
	names := make([]string, 0, len(tagNames))
	for _, n := range tagNames {
		names = append(names, n)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// NativeBuffer is a mesh instanced for one back-end. Payload is owned by the
// buffer; platform views over it are built on demand by the codec.
type NativeBuffer struct {
	Platform Tag
	Payload  []byte
}

// Codec turns generic meshes into native buffers for one back-end and back.
type Codec interface {
	Platform() Tag
	// Instance packs m into the back-end's native layout.
	Instance(m *mesh.Mesh) (NativeBuffer, error)
	// Uninstance unpacks a native buffer produced by Instance.
	Uninstance(buf NativeBuffer) (*mesh.Mesh, error)
	// Validate checks that a payload read from a stream parses.
	Validate(payload []byte) error
}

// Set is the codecs available to an engine, keyed by platform tag.
type Set struct {
	codecs map[Tag]Codec
}

// NewSet returns a Set holding codecs.
func NewSet(codecs ...Codec) *Set {
	s := &Set{codecs: make(map[Tag]Codec, len(codecs))}
	for _, c := range codecs {
		s.codecs[c.Platform()] = c
	}
	return s
}

// Codec returns the codec for tag.
func (s *Set) Codec(tag Tag) (Codec, error) {
	if s != nil {
		if c, ok := s.codecs[tag]; ok {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedPlatform, tag)
}

// Has reports whether a codec for tag is present.
func (s *Set) Has(tag Tag) bool {
	_, err := s.Codec(tag)
	return err == nil
}

// Tags returns the platforms in the set in ascending order.
func (s *Set) Tags() []Tag {
	tags := make([]Tag, 0, len(s.codecs))
	for t := range s.codecs {
		tags = append(tags, t)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags
}
