package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/strata/internal/asset"
	"github.com/samcharles93/strata/internal/logger"
	"github.com/samcharles93/strata/internal/version"
	"github.com/samcharles93/strata/pkg/chunk"
)

type nodeJSON struct {
	Type    string `json:"type"`
	TypeID  uint32 `json:"type_id"`
	Length  uint32 `json:"length"`
	Version string `json:"version"`
	Build   uint32 `json:"build"`
	Offset  int64  `json:"offset"`
	Depth   int    `json:"depth"`
}

type summaryJSON struct {
	Records    int      `json:"records"`
	Clumps     int      `json:"clumps"`
	Geometries int      `json:"geometries"`
	Native     int      `json:"native_geometries"`
	Textures   int      `json:"textures"`
	Raw        int      `json:"raw_records"`
	Errors     []string `json:"errors,omitempty"`
}

func inspectCmd() *cli.Command {
	var (
		asJSON      bool
		showRecords bool
		maxDepth    int
	)

	return &cli.Command{
		Name:      "inspect",
		Usage:     "Dump the chunk tree of an asset file",
		ArgsUsage: "<file>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "print the tree as JSON", Destination: &asJSON},
			&cli.BoolFlag{Name: "records", Usage: "load every record and print a summary", Destination: &showRecords},
			&cli.IntFlag{Name: "max-depth", Usage: "limit tree depth (-1 = no limit)", Value: -1, Destination: &maxDepth},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			path := cmd.Args().First()
			if path == "" {
				return cli.Exit("error: inspect needs a file", 1)
			}

			f, err := chunk.Open(path)
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()
			log.Debug("opened asset file", "path", f.Path(), "bytes", f.Size())

			var nodes []nodeJSON
			err = f.Reader().Walk(-1, func(n chunk.Node) error {
				if maxDepth >= 0 && n.Depth > maxDepth {
					return nil
				}
				nodes = append(nodes, nodeJSON{
					Type:    n.Type.String(),
					TypeID:  uint32(n.Type),
					Length:  n.Length,
					Version: version.Library(n.Version()),
					Build:   n.Build(),
					Offset:  n.Offset,
					Depth:   n.Depth,
				})
				return nil
			})
			if err != nil {
				return fmt.Errorf("walk %s: %w", path, err)
			}

			var summary *summaryJSON
			if showRecords {
				engine, err := asset.NewEngine(asset.DefaultOptions(), log)
				if err != nil {
					return err
				}
				doc, recErrs, err := engine.ReadDocument(f.Reader())
				if err != nil {
					return fmt.Errorf("read %s: %w", path, err)
				}
				summary = summarize(doc, recErrs)
				engine.Destroy(doc)
			}

			out := stdout(cmd)
			if asJSON {
				return writeJSON(out, struct {
					File    string       `json:"file"`
					Bytes   int64        `json:"bytes"`
					Chunks  []nodeJSON   `json:"chunks"`
					Records *summaryJSON `json:"records,omitempty"`
				}{f.Path(), f.Size(), nodes, summary})
			}
			printTree(out, nodes)
			if summary != nil {
				printSummary(out, summary)
			}
			return nil
		},
	}
}

func summarize(doc *asset.Document, recErrs []*asset.RecordError) *summaryJSON {
	s := &summaryJSON{Records: len(doc.Records)}
	for _, rec := range doc.Records {
		switch {
		case rec.Clump != nil:
			s.Clumps++
		case rec.Raw != nil:
			s.Raw++
		}
	}
	for _, g := range doc.Geometries() {
		s.Geometries++
		if g.IsNative() {
			s.Native++
		}
	}
	s.Textures = len(doc.Textures())
	for _, e := range recErrs {
		s.Errors = append(s.Errors, e.Error())
	}
	return s
}

func printTree(w io.Writer, nodes []nodeJSON) {
	for _, n := range nodes {
		_, _ = fmt.Fprintf(w, "%s%-16s len=%-8d ver=%s build=0x%04x @0x%x\n",
			strings.Repeat("  ", n.Depth), n.Type, n.Length, n.Version, n.Build, n.Offset)
	}
}

func printSummary(w io.Writer, s *summaryJSON) {
	_, _ = fmt.Fprintf(w, "\n%d record(s): %d clump(s), %d geometr(ies) (%d native), %d texture(s), %d raw\n",
		s.Records, s.Clumps, s.Geometries, s.Native, s.Textures, s.Raw)
	for _, e := range s.Errors {
		_, _ = fmt.Fprintf(w, "  skipped: %s\n", e)
	}
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
