package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/strata/internal/logger"
	"github.com/samcharles93/strata/internal/version"
	"github.com/samcharles93/strata/pkg/chunk"
)

var (
	configFile string
	logLevel   string
	logFormat  string
	debug      bool
)

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Usage:       "path to config file",
			Value:       configPath(),
			Destination: &configFile,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

// writeFlags are the stamp flags shared by every command that writes a file.
func writeFlags(ver *string, build *int64) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "write-version",
			Usage:       "library version stamped into written headers (e.g. 3.6.0.3 or 0x36003)",
			Value:       version.Library(chunk.DefaultVersion),
			Destination: ver,
		},
		&cli.Int64Flag{
			Name:        "write-build",
			Usage:       "library build stamped into written headers",
			Value:       int64(chunk.DefaultBuild),
			Destination: build,
		},
	}
}

// setup loads the config file and installs the run logger into the context.
func setup(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	cfg, err := LoadConfig(configFile)
	if err != nil {
		return ctx, err
	}
	if cfg.LogLevel != "" && !cmd.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !cmd.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}

	level := slog.LevelDebug
	if !debug {
		if level, err = logger.ParseLevel(logLevel); err != nil {
			return ctx, err
		}
	}
	format, err := logger.ParseFormat(logFormat)
	if err != nil {
		return ctx, err
	}
	log, runID := logger.WithRunID(logger.Open(stderr(cmd), format, level))
	log.Debug("starting", "command", cmd.Args().First(), "run_id", runID, "config", configFile)

	ctx = logger.WithContext(ctx, log)
	return withConfig(ctx, cfg), nil
}

func parseStamp(ver string, build int64) (uint32, uint32, error) {
	v, err := version.ParseLibrary(ver)
	if err != nil {
		return 0, 0, err
	}
	if build < 0 || build > 0xFFFF {
		return 0, 0, fmt.Errorf("write build %d out of range", build)
	}
	return v, uint32(build), nil
}

func stdout(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

func stderr(cmd *cli.Command) io.Writer {
	if w := cmd.Root().ErrWriter; w != nil {
		return w
	}
	return os.Stderr
}
