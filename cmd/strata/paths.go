package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const envStrataOutDir = "STRATA_OUT_DIR"

// resolveOutput picks the output path for a converted file. An explicit
// flag wins; otherwise the input's base name is placed under $STRATA_OUT_DIR
// or ./out. The second result reports whether the path was defaulted.
func resolveOutput(in, outFlag string) (string, bool, error) {
	outFlag = strings.TrimSpace(outFlag)
	if outFlag != "" {
		outPath := filepath.Clean(outFlag)
		if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
			return "", false, err
		}
		return outPath, false, nil
	}

	base := filepath.Base(filepath.Clean(in))
	if base == "" || base == "." || base == string(filepath.Separator) {
		return "", true, fmt.Errorf("invalid input path: %q", in)
	}

	outDir := strings.TrimSpace(os.Getenv(envStrataOutDir))
	if outDir == "" {
		outDir = filepath.Join(".", "out")
	}

	outPath := filepath.Join(outDir, base)
	if abs, err := filepath.Abs(in); err == nil {
		if absOut, err := filepath.Abs(outPath); err == nil && abs == absOut {
			return "", true, fmt.Errorf("output %s would overwrite the input", outPath)
		}
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", true, err
	}
	return outPath, true, nil
}

// textureName derives a texture name from an image path: its base name
// without extension, cut to the 31 bytes a native texture can hold.
func textureName(path string) string {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if len(name) > 31 {
		name = name[:31]
	}
	return name
}
