package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/strata/internal/asset"
	"github.com/samcharles93/strata/internal/logger"
	"github.com/samcharles93/strata/internal/platform"
	"github.com/samcharles93/strata/pkg/chunk"
)

// genericTarget converts every native geometry back to the generic form.
const genericTarget = "generic"

func convertCmd() *cli.Command {
	var (
		outPath      string
		target       string
		writeVersion string
		writeBuild   int64
		strict       bool
	)

	return &cli.Command{
		Name:      "convert",
		Usage:     "Re-instance geometries for a back-end and rewrite the file",
		ArgsUsage: "<file>",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:        "out",
				Aliases:     []string{"o"},
				Usage:       "output path (default $STRATA_OUT_DIR or ./out)",
				Destination: &outPath,
			},
			&cli.StringFlag{
				Name:        "platform",
				Aliases:     []string{"p"},
				Usage:       "target back-end (" + platform.Names() + ", " + genericTarget + ")",
				Value:       genericTarget,
				Destination: &target,
			},
			&cli.BoolFlag{
				Name:        "strict",
				Usage:       "fail instead of skipping records that do not load",
				Destination: &strict,
			},
		}, writeFlags(&writeVersion, &writeBuild)...),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			cfg := configFrom(ctx)
			applyWriteConfig(cmd, cfg, &writeVersion, &writeBuild)
			applyConvertConfig(cmd, cfg, &target)

			in := cmd.Args().First()
			if in == "" {
				return cli.Exit("error: convert needs a file", 1)
			}
			ver, build, err := parseStamp(writeVersion, writeBuild)
			if err != nil {
				return err
			}
			tag := platform.None
			if !strings.EqualFold(target, genericTarget) {
				if tag, err = platform.Parse(target); err != nil {
					return err
				}
			}
			out, defaulted, err := resolveOutput(in, outPath)
			if err != nil {
				return err
			}
			if defaulted {
				log.Info("writing to default output", "path", out)
			}

			engine, err := asset.NewEngine(asset.Options{Version: ver, Build: build}, log)
			if err != nil {
				return err
			}
			n, err := convertFile(engine, in, out, tag, strict)
			if err != nil {
				return err
			}
			log.Info("converted", "in", in, "out", out, "platform", target, "geometries", n)
			return nil
		},
	}
}

// convertFile reads in, moves every geometry to tag (platform.None meaning
// generic) and writes the document to out. It returns the number of
// geometries converted.
func convertFile(e *asset.Engine, in, out string, tag platform.Tag, strict bool) (int, error) {
	log := e.Logger()
	f, err := chunk.Open(in)
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()

	doc, recErrs, err := e.ReadDocument(f.Reader())
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", in, err)
	}
	defer e.Destroy(doc)
	for _, re := range recErrs {
		if strict {
			return 0, re
		}
		log.Warn("record kept unconverted", "kind", re.Kind, "index", re.Index, "offset", re.Offset, "error", re.Err)
	}

	n := 0
	for _, g := range doc.Geometries() {
		converted, err := convertGeometry(e, g, tag)
		switch {
		case errors.Is(err, platform.ErrUnsupportedPlatform) && !strict:
			log.Warn("native geometry kept as is", "error", err)
		case err != nil:
			return n, err
		case converted:
			n++
		}
	}

	file, err := os.Create(out)
	if err != nil {
		return n, err
	}
	bw := bufio.NewWriter(file)
	if err := e.WriteDocument(e.NewWriter(bw), doc); err != nil {
		_ = file.Close()
		return n, fmt.Errorf("write %s: %w", out, err)
	}
	if err := bw.Flush(); err != nil {
		_ = file.Close()
		return n, err
	}
	return n, file.Close()
}

func convertGeometry(e *asset.Engine, g *asset.Geometry, tag platform.Tag) (bool, error) {
	if g.IsNative() {
		if buf := e.Native(g); buf != nil && buf.Platform == tag {
			return false, nil
		}
		if err := e.Uninstance(g); err != nil {
			return false, err
		}
	}
	if tag == platform.None {
		return true, nil
	}
	return true, e.Instance(g, tag)
}
