package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/strata/internal/platform/ps2"
	"github.com/samcharles93/strata/internal/raster"
)

var formatNames = map[string]raster.Format{
	"default": raster.FormatDefault,
	"1555":    raster.Format1555,
	"565":     raster.Format565,
	"4444":    raster.Format4444,
	"lum8":    raster.FormatLUM8,
	"8888":    raster.Format8888,
	"888":     raster.Format888,
	"555":     raster.Format555,
	"pal8":    raster.FormatPal8,
	"pal4":    raster.FormatPal4,
	"mipmap":  raster.FormatMipmap,
}

// parseRasterFormat accepts the names Format.String prints, joined by "|"
// or ",", e.g. "8888|pal8".
func parseRasterFormat(s string) (raster.Format, error) {
	var f raster.Format
	for _, part := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool { return r == '|' || r == ',' }) {
		v, ok := formatNames[strings.TrimSpace(part)]
		if !ok {
			return 0, fmt.Errorf("unknown raster format %q", part)
		}
		f |= v
	}
	return f, nil
}

func layoutCmd() *cli.Command {
	var (
		width, height int64
		depth         int64
		format        string
		levels        int64
		swizzle       bool
		asJSON        bool
	)

	return &cli.Command{
		Name:  "layout",
		Usage: "Compute the PS2 GS memory layout of a raster",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "width", Aliases: []string{"w"}, Value: 256, Destination: &width},
			&cli.Int64Flag{Name: "height", Aliases: []string{"H"}, Value: 256, Destination: &height},
			&cli.Int64Flag{Name: "depth", Aliases: []string{"d"}, Usage: "bits per pixel (4, 8, 16, 24, 32)", Value: 8, Destination: &depth},
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Usage: "raster format, e.g. 8888|pal8", Value: "8888|pal8", Destination: &format},
			&cli.Int64Flag{Name: "levels", Aliases: []string{"l"}, Usage: "mip levels", Value: 1, Destination: &levels},
			&cli.BoolFlag{Name: "swizzle", Usage: "upload paletted levels through the wider modes", Value: true, Destination: &swizzle},
			&cli.BoolFlag{Name: "json", Usage: "print the layout as JSON", Destination: &asJSON},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyTextureConfig(cmd, configFrom(ctx), &swizzle, nil, nil)

			f, err := parseRasterFormat(format)
			if err != nil {
				return err
			}
			l, err := ps2.Compute(ps2.Request{
				Width:   int(width),
				Height:  int(height),
				Depth:   int(depth),
				Format:  f,
				Type:    raster.TypeTexture,
				Levels:  int(levels),
				Swizzle: swizzle,
			})
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(stdout(cmd), l)
			}
			printLayout(stdout(cmd), f, l)
			return nil
		},
	}
}

func printLayout(w io.Writer, f raster.Format, l *ps2.Layout) {
	_, _ = fmt.Fprintf(w, "format %s, psm %s, %d page(s)\n", f, l.PSM, l.Pages)
	if l.NoBacking {
		_, _ = fmt.Fprintln(w, "no backing store")
		return
	}
	_, _ = fmt.Fprintf(w, "%-5s %-9s %-6s %-4s %-8s %s\n", "level", "size", "tbp", "tbw", "swizzled", "bytes")
	for i, lv := range l.Levels {
		_, _ = fmt.Fprintf(w, "%-5d %-9s %-6d %-4d %-8t %d\n",
			i, fmt.Sprintf("%dx%d", lv.Width, lv.Height), lv.TBP, lv.TBW, lv.Swizzled, lv.Size)
	}
	if p := l.Palette; p != nil {
		_, _ = fmt.Fprintf(w, "palette cbp=%d psm=%s entries=%d blocks=%d\n", p.CBP, p.PSM, p.Entries, p.Blocks)
	}
	_, _ = fmt.Fprintf(w, "%d transfer(s), %d texel bytes\n", len(l.Transfers), l.TexelSize())
}
