// Package version reports build metadata of the strata binaries and formats
// the asset library versions stamped into chunk headers.
package version

import (
	"fmt"
	"runtime/debug"
	"strconv"
	"strings"
)

var (
	// Version is the release version (set via -ldflags).
	Version = ""
	// Commit is the git commit hash (set via -ldflags).
	Commit = ""
	// BuildTime is the build timestamp (set via -ldflags).
	BuildTime = ""
)

// Info is the resolved build metadata.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildTime string `json:"build_time,omitempty"`
}

// Resolve fills unset fields from the module build info.
func Resolve() Info {
	info := Info{Version: Version, Commit: Commit, BuildTime: BuildTime}
	if bi, ok := debug.ReadBuildInfo(); ok {
		if info.Version == "" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			info.Version = bi.Main.Version
		}
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if info.Commit == "" {
					info.Commit = s.Value
				}
			case "vcs.time":
				if info.BuildTime == "" {
					info.BuildTime = s.Value
				}
			}
		}
	}
	if info.Version == "" {
		info.Version = "dev"
	}
	return info
}

func String() string {
	info := Resolve()
	if info.Commit == "" {
		return info.Version
	}
	return info.Version + " (" + shortCommit(info.Commit) + ")"
}

func shortCommit(commit string) string {
	if len(commit) <= 12 {
		return commit
	}
	return commit[:12]
}

// Library formats a packed library version such as 0x36003 as "3.6.0.3".
func Library(v uint32) string {
	return fmt.Sprintf("%d.%d.%d.%d", v>>16&0xF, v>>12&0xF, v>>8&0xF, v&0xFF)
}

// ParseLibrary accepts either dotted form ("3.4.0.3") or a hex literal
// ("0x34003").
func ParseLibrary(s string) (uint32, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err := strconv.ParseUint(s[2:], 16, 32)
		if err != nil || v < 0x30000 || v > 0x3FFFF {
			return 0, fmt.Errorf("invalid library version %q", s)
		}
		return uint32(v), nil
	}
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return 0, fmt.Errorf("invalid library version %q: want major.minor.revision.build", s)
	}
	limits := [4]uint64{0xF, 0xF, 0xF, 0xFF}
	var v uint32
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 8)
		if err != nil || n > limits[i] {
			return 0, fmt.Errorf("invalid library version %q", s)
		}
		if i < 3 {
			v |= uint32(n) << (16 - 4*i)
		} else {
			v |= uint32(n)
		}
	}
	if v>>16 != 3 {
		return 0, fmt.Errorf("invalid library version %q: only 3.x is supported", s)
	}
	return v, nil
}
