package main

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/strata/internal/asset"
	"github.com/samcharles93/strata/internal/imaging"
	"github.com/samcharles93/strata/internal/logger"
	"github.com/samcharles93/strata/internal/platform"
	"github.com/samcharles93/strata/internal/platform/ps2"
)

func importTextureCmd() *cli.Command {
	var (
		outPath      string
		depth        int64
		mipmaps      bool
		maxSize      int64
		dither       bool
		writeVersion string
		writeBuild   int64
	)

	return &cli.Command{
		Name:      "import-texture",
		Usage:     "Build a PS2 texture dictionary from image files",
		ArgsUsage: "<image>...",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:        "out",
				Aliases:     []string{"o"},
				Usage:       "output .txd path",
				Required:    true,
				Destination: &outPath,
			},
			&cli.Int64Flag{Name: "depth", Aliases: []string{"d"}, Usage: "bits per pixel (32, 8, 4)", Value: 8, Destination: &depth},
			&cli.BoolFlag{Name: "mipmaps", Usage: "generate a mip chain", Value: true, Destination: &mipmaps},
			&cli.Int64Flag{Name: "max-size", Usage: "clamp each side to this power of two", Value: 1024, Destination: &maxSize},
			&cli.BoolFlag{Name: "dither", Usage: "dither when quantising to a palette", Value: true, Destination: &dither},
		}, writeFlags(&writeVersion, &writeBuild)...),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			cfg := configFrom(ctx)
			applyWriteConfig(cmd, cfg, &writeVersion, &writeBuild)
			applyTextureConfig(cmd, cfg, nil, &mipmaps, &depth)

			paths := cmd.Args().Slice()
			if len(paths) == 0 {
				return cli.Exit("error: import-texture needs at least one image", 1)
			}
			ver, build, err := parseStamp(writeVersion, writeBuild)
			if err != nil {
				return err
			}
			engine, err := asset.NewEngine(asset.Options{Version: ver, Build: build}, log)
			if err != nil {
				return err
			}
			opts := imaging.Options{
				Depth:   int(depth),
				Mipmaps: mipmaps,
				MaxSize: int(maxSize),
				Dither:  dither,
			}
			dict, err := buildDictionary(engine, paths, opts)
			if err != nil {
				return err
			}
			defer engine.Destroy(dict)

			if err := writeDictionary(engine, outPath, dict); err != nil {
				return err
			}
			log.Info("wrote texture dictionary", "out", outPath, "textures", len(dict.Textures))
			return nil
		},
	}
}

// buildDictionary converts every image into a PS2 native texture, swizzled
// when the engine writes a version that expects it.
func buildDictionary(e *asset.Engine, paths []string, opts imaging.Options) (*asset.TexDictionary, error) {
	log := e.Logger()
	dict, err := e.NewTexDictionary()
	if err != nil {
		return nil, err
	}
	dict.DeviceID = asset.DeviceID(platform.PS2)
	swizzle := e.Options().Version >= ps2.SwizzleVersion

	for _, path := range paths {
		name := textureName(path)
		if dict.Find(name) != nil {
			e.Destroy(dict)
			return nil, fmt.Errorf("%s: duplicate texture name %q", path, name)
		}
		img, format, err := imaging.Load(path)
		if err != nil {
			e.Destroy(dict)
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		rast, err := imaging.ToRaster(img, opts)
		if err != nil {
			e.Destroy(dict)
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		native, err := ps2.FromImage(rast, name, swizzle)
		if err != nil {
			e.Destroy(dict)
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		tex, err := e.NewPS2Texture(native)
		if err != nil {
			e.Destroy(dict)
			return nil, err
		}
		dict.Textures = append(dict.Textures, tex)
		log.Debug("imported texture", "path", path, "format", format, "name", name,
			"size", fmt.Sprintf("%dx%d", native.Width, native.Height), "levels", len(native.Levels))
	}
	return dict, nil
}

func writeDictionary(e *asset.Engine, path string, dict *asset.TexDictionary) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(f)
	if err := e.WriteTexDictionary(e.NewWriter(bw), dict); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := bw.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
