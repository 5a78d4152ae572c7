// Package asset loads and saves the engine's record kinds (textures,
// materials, geometries and texture dictionaries) on top of the chunk
// stream, and moves geometries between their generic and platform-native
// representations.
//
// An Engine owns one plugin registry per record kind. Built-in plugins are
// registered by NewEngine; callers may register their own through the
// exposed registries until the first record of a kind is constructed.
package asset

import (
	"fmt"
	"io"

	"github.com/samcharles93/strata/internal/logger"
	"github.com/samcharles93/strata/internal/platform"
	"github.com/samcharles93/strata/internal/platform/d3d8"
	"github.com/samcharles93/strata/internal/platform/d3d9"
	"github.com/samcharles93/strata/internal/platform/gl"
	"github.com/samcharles93/strata/internal/platform/ps2"
	"github.com/samcharles93/strata/pkg/chunk"
	"github.com/samcharles93/strata/pkg/plugin"
)

// Core sizes of each record kind, the fixed part every plugin offset starts
// after.
const (
	textureCoreSize  = 88
	materialCoreSize = 72
	geometryCoreSize = 96
	texDictCoreSize  = 16
)

// Options control how an Engine writes and converts records.
type Options struct {
	// Version and Build are stamped into every chunk header written.
	Version uint32
	Build   uint32

	// Platform, when set, is the back-end geometries are instanced for on load.
	Platform platform.Tag

	// InstanceOnLoad instances every generic geometry for Platform as it is read.
	InstanceOnLoad bool
}

// DefaultOptions returns the options of the current library release.
func DefaultOptions() Options {
	return Options{Version: chunk.DefaultVersion, Build: chunk.DefaultBuild}
}

// Engine holds the plugin registries, platform codecs and options shared by
// every load and save.
type Engine struct {
	opts   Options
	log    logger.Logger
	codecs *platform.Set

	textures   *plugin.Registry
	materials  *plugin.Registry
	geometries *plugin.Registry
	texDicts   *plugin.Registry

	skyMipmap  plugin.Slot[SkyMipmap]
	anisotropy plugin.Slot[Anisotropy]
	binMesh    plugin.Slot[BinMesh]
	nativeData plugin.Slot[NativeData]
}

// DefaultCodecs returns a codec for every supported back-end.
func DefaultCodecs() []platform.Codec {
	return []platform.Codec{d3d8.New(), d3d9.New(), gl.New(), ps2.New()}
}

// NewEngine builds an engine with the built-in plugins registered. With no
// codecs given every supported back-end is available.
func NewEngine(opts Options, log logger.Logger, codecs ...platform.Codec) (*Engine, error) {
	if opts.Version == 0 {
		opts.Version = chunk.DefaultVersion
	}
	if log == nil {
		log = logger.Discard()
	}
	if len(codecs) == 0 {
		codecs = DefaultCodecs()
	}
	e := &Engine{
		opts:       opts,
		log:        log,
		codecs:     platform.NewSet(codecs...),
		textures:   plugin.NewRegistry("texture", textureCoreSize),
		materials:  plugin.NewRegistry("material", materialCoreSize),
		geometries: plugin.NewRegistry("geometry", geometryCoreSize),
		texDicts:   plugin.NewRegistry("texdictionary", texDictCoreSize),
	}
	if opts.InstanceOnLoad && !e.codecs.Has(opts.Platform) {
		return nil, fmt.Errorf("asset: instance on load: %w: %s", platform.ErrUnsupportedPlatform, opts.Platform)
	}
	if err := e.registerTexturePlugins(); err != nil {
		return nil, err
	}
	if err := e.registerGeometryPlugins(); err != nil {
		return nil, err
	}
	return e, nil
}

// Options returns the engine's options.
func (e *Engine) Options() Options { return e.opts }

// Logger returns the engine's logger.
func (e *Engine) Logger() logger.Logger { return e.log }

// Codecs returns the engine's platform codecs.
func (e *Engine) Codecs() *platform.Set { return e.codecs }

// Textures returns the texture plugin registry.
func (e *Engine) Textures() *plugin.Registry { return e.textures }

// Materials returns the material plugin registry.
func (e *Engine) Materials() *plugin.Registry { return e.materials }

// Geometries returns the geometry plugin registry.
func (e *Engine) Geometries() *plugin.Registry { return e.geometries }

// TexDictionaries returns the texture dictionary plugin registry.
func (e *Engine) TexDictionaries() *plugin.Registry { return e.texDicts }

// NewWriter returns a chunk writer stamping the engine's version.
func (e *Engine) NewWriter(w io.Writer) *chunk.Writer {
	return chunk.NewWriter(w, e.opts.Version, e.opts.Build)
}

func (e *Engine) registryOf(rec plugin.Extensible) (*plugin.Registry, error) {
	switch rec.(type) {
	case *Texture:
		return e.textures, nil
	case *Material:
		return e.materials, nil
	case *Geometry:
		return e.geometries, nil
	case *TexDictionary:
		return e.texDicts, nil
	}
	return nil, fmt.Errorf("asset: no registry for %T", rec)
}

// construct runs the plugin constructors of a freshly allocated record.
func (e *Engine) construct(rec plugin.Extensible) error {
	reg, err := e.registryOf(rec)
	if err != nil {
		return err
	}
	return reg.Construct(rec)
}

// Destroy runs the plugin destructors of rec and of every record it owns.
// rec is a record, a *Clump or a *Document. Destroying a record twice is a
// no-op.
func (e *Engine) Destroy(rec any) {
	switch r := rec.(type) {
	case *Material:
		if r.Texture != nil {
			e.Destroy(r.Texture)
		}
	case *Geometry:
		for _, m := range r.Materials {
			if m != nil {
				e.Destroy(m)
			}
		}
	case *TexDictionary:
		for _, t := range r.Textures {
			if t != nil {
				e.Destroy(t)
			}
		}
	case *Clump:
		for _, g := range r.Geometries {
			if g != nil {
				e.Destroy(g)
			}
		}
		return
	case *Document:
		for _, rec := range r.Records {
			switch {
			case rec.Clump != nil:
				e.Destroy(rec.Clump)
			case rec.TexDict != nil:
				e.Destroy(rec.TexDict)
			case rec.Geometry != nil:
				e.Destroy(rec.Geometry)
			}
		}
		return
	}
	ext, ok := rec.(plugin.Extensible)
	if !ok {
		return
	}
	if reg, err := e.registryOf(ext); err == nil {
		reg.Destruct(ext)
	}
}

// skipped logs plugin sub-chunks a registry had no reader for.
func (e *Engine) skipped(kind string, hdrs []chunk.Header) {
	for _, h := range hdrs {
		e.log.Debug("skipped unknown plugin", "kind", kind, "id", h.Type.String(), "length", h.Length)
	}
}
