package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the strata configuration file (~/.config/strata/config.yaml).
// Non-string fields are pointers so we can distinguish "not set" from zero values.
type Config struct {
	// Output
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Conversion
	Platform     string `yaml:"platform"`
	WriteVersion string `yaml:"write_version"`
	WriteBuild   *int64 `yaml:"write_build"`

	// Textures
	SwizzlePaletted *bool  `yaml:"swizzle_paletted"`
	Mipmaps         *bool  `yaml:"mipmaps"`
	Depth           *int64 `yaml:"depth"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "strata", "config.yaml")
}

// LoadConfig reads the config file at path. A missing file yields a zero
// Config; a file that does not parse is an error.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return Config{}, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Config{}, nil
	}
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

type configKey struct{}

func withConfig(ctx context.Context, cfg Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

func configFrom(ctx context.Context) Config {
	cfg, _ := ctx.Value(configKey{}).(Config)
	return cfg
}

// applyWriteConfig applies config file defaults to the header stamp flags
// when they were not explicitly set.
func applyWriteConfig(c *cli.Command, cfg Config, ver *string, build *int64) {
	if cfg.WriteVersion != "" && !c.IsSet("write-version") {
		*ver = cfg.WriteVersion
	}
	if cfg.WriteBuild != nil && !c.IsSet("write-build") {
		*build = *cfg.WriteBuild
	}
}

// applyConvertConfig applies config file defaults to convert command variables.
func applyConvertConfig(c *cli.Command, cfg Config, target *string) {
	if cfg.Platform != "" && !c.IsSet("platform") {
		*target = cfg.Platform
	}
}

// applyTextureConfig applies config file defaults to texture command variables.
func applyTextureConfig(c *cli.Command, cfg Config, swizzle, mipmaps *bool, depth *int64) {
	if cfg.SwizzlePaletted != nil && swizzle != nil && !c.IsSet("swizzle") {
		*swizzle = *cfg.SwizzlePaletted
	}
	if cfg.Mipmaps != nil && mipmaps != nil && !c.IsSet("mipmaps") {
		*mipmaps = *cfg.Mipmaps
	}
	if cfg.Depth != nil && depth != nil && !c.IsSet("depth") {
		*depth = *cfg.Depth
	}
}
